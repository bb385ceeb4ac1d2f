package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yuanying/epubbuild/internal/epub"
	"github.com/yuanying/epubbuild/internal/shell"
)

// ErrToolWarning is reported when an external tool succeeds but writes to stderr.
var ErrToolWarning = errors.New("external tool reported problems")

// packageDir is the package root inside the build tree.
const packageDir = "OEBPS"

// Options holds options for the build pipeline.
type Options struct {
	SourceDir        string
	TemplateDir      string // copied into BuildDir first; skipped when empty
	BuildDir         string
	DistDir          string
	KindlegenTempDir string
	Manifest         string // relative to SourceDir

	Nav        epub.NavOptions
	CoverTitle string
	TocTitle   string

	FontSubsetter   []string // command and leading args; text files are appended
	MobiConverter   string
	MobiArgs        []string
	MobiOKExitCodes []int
	NoMobi          bool

	MaxImageWidth int
	JPEGQuality   int

	// Strict turns warnings about the book content and tool output into errors.
	Strict bool

	Logger *slog.Logger
	Runner shell.Runner
	Now    func() time.Time
}

// Result describes the files a successful build produced.
type Result struct {
	Title      string
	EPUBPath   string
	MOBIPath   string // empty when conversion was skipped
	ReportPath string
	Files      []FileInfo
	Verify     *epub.VerifyReport
	Warnings   []string
}

// Pipeline builds an EPUB from a source tree.
type Pipeline struct {
	Options Options

	logger   *slog.Logger
	stages   stageTracker
	warnings []string
}

// NewPipeline creates a new build pipeline.
func NewPipeline(opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Runner == nil {
		opts.Runner = shell.NewExecRunner(opts.Logger)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Manifest == "" {
		opts.Manifest = "manifest.json"
	}
	return &Pipeline{Options: opts, logger: opts.Logger}
}

// Stage returns the last completed stage.
func (p *Pipeline) Stage() Stage {
	return p.stages.current
}

// Run executes every stage in order. A failed stage stops the build and leaves
// Stage at the last completed one. Each call starts again from StageNone.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	p.stages = stageTracker{}
	p.warnings = nil

	opts := p.Options
	now := opts.Now()
	oebps := filepath.Join(opts.BuildDir, packageDir)

	if err := p.prepare(); err != nil {
		return nil, err
	}

	md, err := p.loadMetadata(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.advance(StageMetadataLoaded); err != nil {
		return nil, err
	}

	idx, err := p.indexAssets(ctx, md, oebps)
	if err != nil {
		return nil, err
	}
	if err := p.advance(StageAssetsIndexed); err != nil {
		return nil, err
	}

	navEntry, navDoc, err := p.resolveNav(idx, oebps)
	if err != nil {
		return nil, err
	}
	if err := p.advance(StageNavPlaceholderResolved); err != nil {
		return nil, err
	}

	opf, err := epub.BuildPackage(md, idx, epub.PackageOptions{
		Modified:   now,
		NCXHref:    epub.DefaultNCXHref,
		CoverTitle: opts.CoverTitle,
		TocTitle:   opts.TocTitle,
	})
	if err != nil {
		return nil, err
	}
	if err := writeFile(filepath.Join(oebps, "content.opf"), opf); err != nil {
		return nil, err
	}
	if err := p.advance(StagePackageDocumentBuilt); err != nil {
		return nil, err
	}

	ncx, err := epub.BuildNCX(md, navDoc, epub.NCXOptions{NavHref: navEntry.Href, NCXHref: epub.DefaultNCXHref})
	if err != nil {
		return nil, err
	}
	for _, w := range ncx.Warnings {
		p.logger.Warn("navigation control", "warning", w)
		p.warnings = append(p.warnings, w)
	}
	if err := writeFile(filepath.Join(oebps, filepath.FromSlash(epub.DefaultNCXHref)), ncx.Document); err != nil {
		return nil, err
	}
	p.logger.Info("generated package documents", "manifest_items", len(idx.Entries)+1, "spine", len(md.TOC), "nav_points", len(ncx.Entries))
	if err := p.advance(StageNavigationControlBuilt); err != nil {
		return nil, err
	}

	if err := p.optimizeImages(oebps, idx); err != nil {
		return nil, err
	}
	if err := p.processFonts(ctx, md, idx, oebps); err != nil {
		return nil, err
	}
	if err := p.advance(StageFontsSubset); err != nil {
		return nil, err
	}

	res := &Result{Title: md.Title}
	name := OutputName(md)
	res.EPUBPath = filepath.Join(opts.DistDir, name+".epub")
	if err := writeArchive(opts.BuildDir, res.EPUBPath, now); err != nil {
		return nil, err
	}
	res.Verify, err = epub.Verify(res.EPUBPath)
	if err != nil {
		if rmErr := os.Remove(res.EPUBPath); rmErr != nil {
			p.logger.Warn("failed to remove unverified archive", "path", res.EPUBPath, "error", rmErr)
		}
		return nil, fmt.Errorf("built archive failed verification: %w", err)
	}
	for _, w := range res.Verify.Warnings {
		p.logger.Warn("verification", "warning", w)
		p.warnings = append(p.warnings, w)
	}
	p.logger.Info("archived", "path", res.EPUBPath)
	if err := p.advance(StageArchived); err != nil {
		return nil, err
	}

	if !opts.NoMobi {
		mobiPath, err := p.convert(ctx, res.EPUBPath)
		if err != nil {
			return nil, err
		}
		res.MOBIPath = mobiPath
	} else {
		p.logger.Info("skipping MOBI conversion")
	}
	if err := p.advance(StageConverted); err != nil {
		return nil, err
	}

	outputs := []string{res.EPUBPath}
	if res.MOBIPath != "" {
		outputs = append(outputs, res.MOBIPath)
	}
	res.Files, err = describeFiles(ctx, outputs...)
	if err != nil {
		return nil, err
	}
	res.ReportPath = filepath.Join(opts.DistDir, "info.txt")
	if err := writeReport(res.ReportPath, res.Files); err != nil {
		return nil, err
	}
	for _, fi := range res.Files {
		p.logger.Info("output", "file", fi.Name, "size", fi.Size, "sha256", fi.SHA256)
	}
	if err := p.advance(StageReported); err != nil {
		return nil, err
	}

	res.Warnings = p.warnings
	return res, nil
}

func (p *Pipeline) advance(next Stage) error {
	if err := p.stages.advance(next); err != nil {
		return err
	}
	p.logger.Debug("stage completed", "stage", next.String())
	return nil
}

// warn records err as a warning, or returns it in strict mode.
func (p *Pipeline) warn(err error) error {
	if p.Options.Strict {
		return err
	}
	p.logger.Warn(err.Error())
	p.warnings = append(p.warnings, err.Error())
	return nil
}

// prepare resets the output directories and copies the template.
func (p *Pipeline) prepare() error {
	opts := p.Options
	dirs := []string{opts.BuildDir, opts.DistDir}
	if !opts.NoMobi {
		dirs = append(dirs, opts.KindlegenTempDir)
	}
	if err := resetDirs(dirs...); err != nil {
		return err
	}
	if opts.TemplateDir != "" {
		p.logger.Info("copying template", "from", opts.TemplateDir)
		if err := copyTree(opts.TemplateDir, opts.BuildDir); err != nil {
			return fmt.Errorf("failed to copy template: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) loadMetadata(ctx context.Context) (*epub.Metadata, error) {
	path := filepath.Join(p.Options.SourceDir, p.Options.Manifest)
	p.logger.Info("reading metadata", "path", path)
	md, err := epub.LoadMetadata(path)
	if err != nil {
		return nil, err
	}
	for _, w := range md.Warnings() {
		p.logger.Warn("metadata", "warning", w)
		p.warnings = append(p.warnings, w)
	}

	rev, err := shell.Output(ctx, p.Options.Runner, shell.Command{Name: "git", Args: []string{"rev-parse", "HEAD"}})
	if err != nil || rev == "" {
		p.logger.Debug("no revision available", "err", err)
		rev = "none"
	}
	return md.WithRevision(rev), nil
}

func (p *Pipeline) indexAssets(ctx context.Context, md *epub.Metadata, oebps string) (*epub.AssetIndex, error) {
	categories := make([]string, 0, len(md.AssetsPath))
	for c := range md.AssetsPath {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	p.logger.Info("copying sources", "from", p.Options.SourceDir)
	for _, c := range categories {
		dir := filepath.FromSlash(md.AssetsPath[c])
		if err := copyTree(filepath.Join(p.Options.SourceDir, dir), filepath.Join(oebps, dir)); err != nil {
			return nil, fmt.Errorf("failed to copy %s assets: %w", c, err)
		}
	}

	idx, err := epub.IndexAssets(ctx, os.DirFS(oebps), md.AssetsPath)
	if err != nil {
		return nil, err
	}
	for _, s := range idx.Skipped {
		p.logger.Debug("skipped asset", "href", s)
	}
	if len(idx.Unresolved) > 0 {
		err := fmt.Errorf("%w: %s", epub.ErrUnresolvedMediaType, strings.Join(idx.Unresolved, ", "))
		if err := p.warn(err); err != nil {
			return nil, err
		}
	}
	p.logger.Info("indexed assets", "count", len(idx.Entries))
	return idx, nil
}

// resolveNav injects the toc into the navigation document in the build tree
// and returns the finalized bytes.
func (p *Pipeline) resolveNav(idx *epub.AssetIndex, oebps string) (epub.AssetEntry, []byte, error) {
	navEntry, ok := idx.Lookup(epub.NavTextID)
	if !ok {
		return epub.AssetEntry{}, nil, epub.ErrNavDocumentMissing
	}
	navPath := filepath.Join(oebps, filepath.FromSlash(navEntry.Href))
	raw, err := os.ReadFile(navPath)
	if err != nil {
		return navEntry, nil, fmt.Errorf("failed to read nav document: %w", err)
	}

	nav, err := epub.ResolveNavTOC(raw, p.Options.Nav)
	if err != nil {
		return navEntry, nil, err
	}
	if !nav.PlaceholderFound {
		if err := p.warn(fmt.Errorf("%w: %s", epub.ErrPlaceholderNotFound, navEntry.Href)); err != nil {
			return navEntry, nil, err
		}
	}
	if missing := epub.UnresolvedTargets(nav.Entries, navEntry.Href, idx); len(missing) > 0 {
		err := fmt.Errorf("%w: %s", epub.ErrUnresolvedTocTarget, strings.Join(missing, ", "))
		if err := p.warn(err); err != nil {
			return navEntry, nil, err
		}
	}

	if err := writeFile(navPath, nav.Document); err != nil {
		return navEntry, nil, err
	}
	p.logger.Info("resolved table of contents", "entries", len(nav.Entries))
	return navEntry, nav.Document, nil
}

func (p *Pipeline) optimizeImages(oebps string, idx *epub.AssetIndex) error {
	o := NewImageOptimizer(p.Options.MaxImageWidth, p.Options.JPEGQuality)
	results, err := o.OptimizeAssets(oebps, idx)
	if err != nil {
		return err
	}
	for _, r := range results {
		switch {
		case r.Warning != "":
			p.logger.Warn("image left unchanged", "href", r.Href, "reason", r.Warning)
		case r.Resized:
			p.logger.Info("resized image", "href", r.Href, "width", r.Width, "height", r.Height, "before", r.Before, "after", r.After)
		}
	}
	return nil
}

func (p *Pipeline) processFonts(ctx context.Context, md *epub.Metadata, idx *epub.AssetIndex, oebps string) error {
	fontDir, ok := md.AssetsPath[epub.CategoryFont]
	if !ok {
		return nil
	}
	textDir := filepath.Join(oebps, filepath.FromSlash(md.AssetsPath[epub.CategoryText]))

	if len(p.Options.FontSubsetter) > 0 {
		p.logger.Info("subsetting fonts", "cmd", strings.Join(p.Options.FontSubsetter, " "))
		res, err := subsetFonts(ctx, p.Options.Runner, p.Options.FontSubsetter, textDir, filepath.Join(oebps, filepath.FromSlash(fontDir)))
		if err != nil {
			return err
		}
		if res.Warned() {
			if err := p.warn(fmt.Errorf("%w: font subsetter: %s", ErrToolWarning, strings.TrimSpace(res.Stderr))); err != nil {
				return err
			}
		}
	}

	used, err := usedRunes(oebps, idx)
	if err != nil {
		return err
	}
	missing, skipped, err := fontCoverage(oebps, idx, used)
	if err != nil {
		return err
	}
	for _, s := range skipped {
		p.logger.Debug("font not checked for coverage", "href", s)
	}
	if missing != "" {
		w := fmt.Sprintf("characters without a glyph in any font: %s", missing)
		p.logger.Warn(w)
		p.warnings = append(p.warnings, w)
	}
	return nil
}

// convert runs the MOBI converter. The converter writes the MOBI file next to
// the EPUB with the same base name.
func (p *Pipeline) convert(ctx context.Context, epubPath string) (string, error) {
	opts := p.Options
	args := []string{}
	if opts.KindlegenTempDir != "" {
		args = append(args, "-tempfolder", opts.KindlegenTempDir)
	}
	args = append(args, opts.MobiArgs...)
	args = append(args, epubPath)

	p.logger.Info("converting to MOBI", "converter", opts.MobiConverter)
	res, err := opts.Runner.Run(ctx, shell.Command{
		Name:        opts.MobiConverter,
		Args:        args,
		OKExitCodes: opts.MobiOKExitCodes,
	})
	if err != nil {
		return "", fmt.Errorf("failed to convert to MOBI: %w", err)
	}
	if opts.KindlegenTempDir != "" {
		if err := os.RemoveAll(opts.KindlegenTempDir); err != nil {
			p.logger.Warn("failed to remove converter temp dir", "err", err)
		}
	}
	if res.Warned() {
		detail := strings.TrimSpace(res.Stderr)
		if detail == "" {
			detail = fmt.Sprintf("exit code %d", res.ExitCode)
		}
		if err := p.warn(fmt.Errorf("%w: %s: %s", ErrToolWarning, opts.MobiConverter, detail)); err != nil {
			return "", err
		}
	}
	return strings.TrimSuffix(epubPath, filepath.Ext(epubPath)) + ".mobi", nil
}

// OutputName is the base file name of the outputs: "{title} - {subtitle}",
// or the title alone. Path separators are replaced.
func OutputName(md *epub.Metadata) string {
	name := md.Title
	if md.Subtitle != "" {
		name += " - " + md.Subtitle
	}
	name = strings.NewReplacer("/", "_", `\`, "_").Replace(strings.TrimSpace(name))
	if name == "" {
		name = "book"
	}
	return name
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
