package epub

import (
	"bytes"
	"net/url"
	"path"
	"strings"
)

// DefaultPlaceholder is the token replaced by the generated toc markup.
const DefaultPlaceholder = "${toc}"

// NavOptions controls toc injection into the navigation document.
type NavOptions struct {
	Placeholder string // defaults to DefaultPlaceholder
	// AnchorSelector limits which anchors become toc entries.
	// Defaults to "a", i.e. every anchor in the document.
	AnchorSelector string
}

// NavResult is the outcome of ResolveNavTOC.
type NavResult struct {
	Document         []byte
	Entries          []TocEntry
	PlaceholderFound bool
}

// ResolveNavTOC replaces the placeholder in doc with an ordered list of every
// anchor found in the document. Without a placeholder the document is returned
// unchanged and PlaceholderFound is false.
func ResolveNavTOC(doc []byte, opts NavOptions) (*NavResult, error) {
	placeholder := opts.Placeholder
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}
	selector := opts.AnchorSelector
	if selector == "" {
		selector = "a"
	}

	if !bytes.Contains(doc, []byte(placeholder)) {
		return &NavResult{Document: doc}, nil
	}

	parsed, err := parseDocument(doc)
	if err != nil {
		return nil, err
	}
	anchors, err := collectAnchors(parsed.Find(selector), sourceAnchors(parsed, doc))
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString(`<nav epub:type="toc" id="toc" role="doc-toc"><ol>`)
	for _, a := range anchors {
		b.WriteString("\n<li>")
		b.WriteString(a.html)
		b.WriteString("</li>")
	}
	b.WriteString("</ol></nav>")

	out := bytes.Replace(doc, []byte(placeholder), []byte(b.String()), 1)
	return &NavResult{
		Document:         out,
		Entries:          entriesOf(anchors),
		PlaceholderFound: true,
	}, nil
}

// UnresolvedTargets returns the targets of entries that do not point at an
// asset. Relative targets are resolved against navHref; external URLs and
// fragment-only targets are ignored.
func UnresolvedTargets(entries []TocEntry, navHref string, idx *AssetIndex) []string {
	known := make(map[string]bool, len(idx.Entries))
	for _, e := range idx.Entries {
		known[e.Href] = true
	}

	var missing []string
	for _, e := range entries {
		if e.Target == "" {
			missing = append(missing, e.Label+" (empty href)")
			continue
		}
		target, ok := resolveTarget(navHref, e.Target)
		if !ok {
			continue
		}
		if !known[target] {
			missing = append(missing, e.Target)
		}
	}
	return missing
}

// resolveTarget resolves a relative href against the document it appears in
// and strips the fragment. ok is false for external or fragment-only hrefs.
func resolveTarget(docHref, href string) (string, bool) {
	u, err := url.Parse(href)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" {
		return "", false
	}
	if strings.HasPrefix(u.Path, "/") {
		return strings.TrimPrefix(path.Clean(u.Path), "/"), true
	}
	return path.Clean(path.Join(path.Dir(docHref), u.Path)), true
}
