package epub

import (
	"path"
	"strings"
)

// DetectCover finds the cover image of a parsed package document.
// Methods are tried in priority order:
//  1. properties="cover-image" (EPUB 3.0)
//  2. the reserved image-cover id (EPUB 2.0 meta name="cover" points here)
//  3. filename pattern (basename contains "cover", case-insensitive, SVG excluded)
//
// Returns false if no cover image is found.
func (opf *OPF) DetectCover() (ManifestItem, bool) {
	if item, ok := opf.ItemWithProperty("cover-image"); ok {
		return item, true
	}

	if item, ok := opf.Manifest[CoverImageID]; ok && isImageMediaType(item.MediaType) {
		return item, true
	}

	for _, id := range opf.ManifestOrder {
		item := opf.Manifest[id]
		if !isImageMediaType(item.MediaType) {
			continue
		}
		if strings.Contains(strings.ToLower(path.Base(item.Href)), "cover") {
			return item, true
		}
	}
	return ManifestItem{}, false
}
