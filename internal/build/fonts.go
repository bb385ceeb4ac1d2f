package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/yuanying/epubbuild/internal/epub"
	"github.com/yuanying/epubbuild/internal/shell"
	"golang.org/x/image/font/sfnt"
)

// fontSubsetBackupDir is left in the font directory by font-spider.
const fontSubsetBackupDir = ".font-spider"

// subsetFonts runs the subsetter over every text file and removes its backup
// directory afterwards. The returned result carries stderr output, if any.
func subsetFonts(ctx context.Context, r shell.Runner, command []string, textDir, fontDir string) (shell.Result, error) {
	if len(command) == 0 {
		return shell.Result{}, nil
	}
	files, err := filepath.Glob(filepath.Join(textDir, "*"))
	if err != nil {
		return shell.Result{}, fmt.Errorf("failed to list text files: %w", err)
	}
	sort.Strings(files)

	args := append(append([]string{}, command[1:]...), files...)
	res, err := r.Run(ctx, shell.Command{Name: command[0], Args: args})
	if err != nil {
		return res, fmt.Errorf("failed to subset fonts: %w", err)
	}

	if err := os.RemoveAll(filepath.Join(fontDir, fontSubsetBackupDir)); err != nil {
		return res, fmt.Errorf("failed to remove font backup: %w", err)
	}
	return res, nil
}

// usedRunes collects the printable characters of every text asset's body.
func usedRunes(root string, idx *epub.AssetIndex) (map[rune]bool, error) {
	used := make(map[rune]bool)
	for _, e := range idx.Entries {
		if e.Category != epub.CategoryText || !epub.IsXHTML(e.Href) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(e.Href)))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", e.Href, err)
		}
		c, err := epub.LoadContent(e.Href, data)
		if err != nil {
			return nil, err
		}
		for _, r := range c.Text() {
			if unicode.IsSpace(r) || unicode.IsControl(r) {
				continue
			}
			used[r] = true
		}
	}
	return used, nil
}

// fontCoverage returns the characters in used that no parsable TrueType or
// OpenType font asset has a glyph for, sorted. Fonts that cannot be parsed
// (e.g. WOFF) are listed in skipped. Without any parsable font nothing is missing.
func fontCoverage(root string, idx *epub.AssetIndex, used map[rune]bool) (missing string, skipped []string, err error) {
	var fonts []*sfnt.Font
	for _, e := range idx.Entries {
		if e.Category != epub.CategoryFont {
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(e.Href)))
		if err != nil {
			return "", nil, fmt.Errorf("failed to read font %s: %w", e.Href, err)
		}
		f, err := sfnt.Parse(data)
		if err != nil {
			skipped = append(skipped, e.Href)
			continue
		}
		fonts = append(fonts, f)
	}
	if len(fonts) == 0 {
		return "", skipped, nil
	}

	var buf sfnt.Buffer
	var out []rune
	for r := range used {
		covered := false
		for _, f := range fonts {
			if gi, err := f.GlyphIndex(&buf, r); err == nil && gi != 0 {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	var b strings.Builder
	for _, r := range out {
		b.WriteRune(r)
	}
	return b.String(), skipped, nil
}
