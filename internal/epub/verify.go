package epub

import (
	"errors"
	"fmt"
	"path"
	"sort"
)

var (
	ErrDanglingSpineItem = errors.New("spine item not in manifest")
	ErrMissingResource   = errors.New("manifest item missing from archive")
	ErrNavNCXMismatch    = errors.New("nav toc and NCX disagree")
)

// VerifyReport summarizes a built EPUB.
type VerifyReport struct {
	Title      string
	CoverImage string
	Manifest   int
	Spine      int
	NavPoints  int
	Warnings   []string
}

// Verify re-opens a built EPUB and checks that the package document, the
// navigation document and the NCX agree with each other and with the archive.
func Verify(epubPath string) (*VerifyReport, error) {
	a, err := OpenArchive(epubPath)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	opfData, err := a.ReadFile(a.OPFPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read OPF: %w", err)
	}
	opf, err := ParseOPF(opfData, path.Dir(a.OPFPath()))
	if err != nil {
		return nil, err
	}

	report := &VerifyReport{
		Title:    opf.Title,
		Manifest: len(opf.Manifest),
		Spine:    len(opf.Spine),
	}
	if cover, ok := opf.DetectCover(); ok {
		report.CoverImage = cover.Href
	} else {
		report.Warnings = append(report.Warnings, "no cover image found")
	}

	var errs []error
	for _, idref := range opf.Spine {
		if _, ok := opf.Manifest[idref]; !ok {
			errs = append(errs, fmt.Errorf("%w: %q", ErrDanglingSpineItem, idref))
		}
	}

	hrefs := make(map[string]bool, len(opf.Manifest))
	for _, id := range opf.ManifestOrder {
		item := opf.Manifest[id]
		hrefs[item.Href] = true
		if !a.Has(item.Href) {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingResource, item.Href))
		}
	}

	navCount, err := verifyNavigation(a, opf)
	if err != nil {
		errs = append(errs, err)
	}
	report.NavPoints = navCount

	report.Warnings = append(report.Warnings, brokenReferences(a, opf, hrefs)...)

	if err := errors.Join(errs...); err != nil {
		return report, err
	}
	return report, nil
}

// verifyNavigation compares the anchors of the nav toc region with the NCX.
func verifyNavigation(a *Archive, opf *OPF) (int, error) {
	navItem, ok := opf.ItemWithProperty("nav")
	if !ok {
		return 0, fmt.Errorf("%w: no manifest item with properties=\"nav\"", ErrNavNCXMismatch)
	}
	navData, err := a.ReadFile(navItem.Href)
	if err != nil {
		return 0, err
	}
	parsed, err := parseDocument(navData)
	if err != nil {
		return 0, err
	}
	region, ok := findTocRegion(parsed)
	if !ok {
		return 0, ErrMissingTocRegion
	}
	anchors := region.Find("a").Length()

	if opf.NCXPath == "" {
		return anchors, nil
	}
	ncxData, err := a.ReadFile(opf.NCXPath)
	if err != nil {
		return anchors, err
	}
	ncx, err := ParseNCX(ncxData)
	if err != nil {
		return anchors, err
	}
	if n := ncx.Count(); n != anchors {
		return anchors, fmt.Errorf("%w: %d nav anchors, %d navPoints", ErrNavNCXMismatch, anchors, n)
	}
	return anchors, nil
}

// brokenReferences lists stylesheets and images linked from content
// documents that are not part of the manifest.
func brokenReferences(a *Archive, opf *OPF, hrefs map[string]bool) []string {
	var warnings []string
	for _, id := range opf.ManifestOrder {
		item := opf.Manifest[id]
		if item.MediaType != "application/xhtml+xml" || !a.Has(item.Href) {
			continue
		}
		data, err := a.ReadFile(item.Href)
		if err != nil {
			warnings = append(warnings, err.Error())
			continue
		}
		c, err := LoadContent(item.Href, data)
		if err != nil {
			warnings = append(warnings, err.Error())
			continue
		}
		refs := append(append([]string{}, c.StyleLinks...), c.ImageRefs...)
		for _, ref := range refs {
			if !hrefs[ref] {
				warnings = append(warnings, fmt.Sprintf("%s references %s which is not in the manifest", item.Href, ref))
			}
		}
	}
	sort.Strings(warnings)
	return warnings
}
