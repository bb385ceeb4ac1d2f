package epub

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"
)

// reservedProperties maps reserved manifest ids to their structural property.
var reservedProperties = map[string]string{
	CoverImageID: "cover-image",
	CoverTextID:  "svg",
	NavTextID:    "nav",
}

// AssetID derives the manifest id of a file: "{category}-{name without extension}",
// NFC-normalized, with every run of whitespace collapsed to a single hyphen and
// every character not allowed in an XML name replaced by a hyphen.
func AssetID(category, filename string) string {
	base := strings.TrimSuffix(filename, path.Ext(filename))
	return normalizeID(category + "-" + base)
}

func normalizeID(s string) string {
	return strings.Map(func(r rune) rune {
		if isNameChar(r) {
			return r
		}
		return '-'
	}, collapseSpaceTo(norm.NFC.String(s), "-"))
}

// isNameChar reports whether r may appear after the first character of an
// XML NCName. Colons are excluded so ids stay valid under namespaces.
func isNameChar(r rune) bool {
	switch {
	case r == '-', r == '.', r == '_', r == 0xB7:
		return true
	case unicode.IsLetter(r), unicode.IsDigit(r):
		return true
	case unicode.In(r, unicode.Mn, unicode.Mc, unicode.Nl):
		return true
	}
	return false
}

// IndexAssets lists every category directory in assetsPath (non-recursively)
// and returns one AssetEntry per regular file. Category scans run concurrently;
// every failed category is reported in the returned error.
func IndexAssets(ctx context.Context, fsys fs.FS, assetsPath map[string]string) (*AssetIndex, error) {
	categories := make([]string, 0, len(assetsPath))
	for c := range assetsPath {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	results := make([]*AssetIndex, len(categories))
	errs := make([]error, len(categories))

	var g errgroup.Group
	for i, category := range categories {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			idx, err := scanCategory(fsys, category, assetsPath[category])
			if err != nil {
				errs[i] = fmt.Errorf("failed to index %s assets: %w", category, err)
				return nil
			}
			results[i] = idx
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	merged := &AssetIndex{}
	for _, r := range results {
		merged.Entries = append(merged.Entries, r.Entries...)
		merged.Unresolved = append(merged.Unresolved, r.Unresolved...)
		merged.Skipped = append(merged.Skipped, r.Skipped...)
	}

	sort.SliceStable(merged.Entries, func(i, j int) bool {
		return merged.Entries[i].ID < merged.Entries[j].ID
	})
	sort.Strings(merged.Unresolved)

	if err := checkDuplicateIDs(merged.Entries); err != nil {
		return nil, err
	}
	return merged, nil
}

// scanCategory lists one category directory.
func scanCategory(fsys fs.FS, category, dir string) (*AssetIndex, error) {
	dir = path.Clean(strings.TrimPrefix(dir, "./"))
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	idx := &AssetIndex{}
	for _, de := range entries {
		name := de.Name()
		href := path.Join(dir, name)
		if de.IsDir() || strings.HasPrefix(name, ".") {
			idx.Skipped = append(idx.Skipped, href)
			continue
		}

		id := AssetID(category, name)
		mediaType, ok := MediaTypeFor(name)
		if !ok {
			idx.Unresolved = append(idx.Unresolved, href)
		}

		idx.Entries = append(idx.Entries, AssetEntry{
			ID:        id,
			Href:      href,
			MediaType: mediaType,
			Property:  reservedProperties[id],
			Category:  category,
		})
	}
	return idx, nil
}

// checkDuplicateIDs expects entries sorted by ID.
func checkDuplicateIDs(entries []AssetEntry) error {
	var errs []error
	for i := 1; i < len(entries); i++ {
		if entries[i].ID == entries[i-1].ID {
			errs = append(errs, fmt.Errorf("%w: %q (%s, %s)",
				ErrDuplicateAssetID, entries[i].ID, entries[i-1].Href, entries[i].Href))
		}
	}
	return errors.Join(errs...)
}

// collapseSpaceTo replaces every run of Unicode whitespace in s with sep.
func collapseSpaceTo(s, sep string) string {
	var b strings.Builder
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteString(sep)
				inSpace = true
			}
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
