package epub

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

const ncxNamespace = "http://www.daisy.org/z3986/2005/ncx/"

// NCXOptions controls NCX generation.
type NCXOptions struct {
	// NavHref and NCXHref are package-relative locations of the two documents.
	// When both are set, relative targets are rebased to resolve from the NCX.
	NavHref string
	NCXHref string
}

// NCXResult is the outcome of BuildNCX.
type NCXResult struct {
	Document []byte
	Entries  []TocEntry
	Warnings []string
}

// ncxDocument is the DAISY NCX 2005-1 document, used for generation and parsing.
type ncxDocument struct {
	XMLName  xml.Name  `xml:"ncx"`
	Xmlns    string    `xml:"xmlns,attr,omitempty"`
	Version  string    `xml:"version,attr"`
	Head     []ncxMeta `xml:"head>meta"`
	DocTitle string    `xml:"docTitle>text"`
	NavMap   ncxNavMap `xml:"navMap"`
}

type ncxNavMap struct {
	NavPoints []ncxNavPoint `xml:"navPoint"`
}

type ncxMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

type ncxNavPoint struct {
	ID        string        `xml:"id,attr"`
	PlayOrder string        `xml:"playOrder,attr,omitempty"`
	Label     string        `xml:"navLabel>text"`
	Content   ncxContent    `xml:"content"`
	Children  []ncxNavPoint `xml:"navPoint"`
}

type ncxContent struct {
	Src string `xml:"src,attr"`
}

// BuildNCX renders the NCX from the toc region of a finalized navigation
// document. It fails with ErrMissingTocRegion when the document has no
// <nav epub:type="toc"> element.
func BuildNCX(md *Metadata, navDoc []byte, opts NCXOptions) (*NCXResult, error) {
	parsed, err := parseDocument(navDoc)
	if err != nil {
		return nil, err
	}
	region, ok := findTocRegion(parsed)
	if !ok {
		return nil, ErrMissingTocRegion
	}
	anchors, err := collectAnchors(region.Find("a"), nil)
	if err != nil {
		return nil, err
	}

	res := &NCXResult{Entries: entriesOf(anchors)}
	points := make([]ncxNavPoint, len(res.Entries))
	for i, e := range res.Entries {
		n := i + 1
		src := e.Target
		if src == "" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("navPoint%d %q has no href", n, e.Label))
		} else if opts.NavHref != "" && opts.NCXHref != "" {
			src = rebaseHref(opts.NavHref, opts.NCXHref, src)
		}
		points[i] = ncxNavPoint{
			ID:        "navPoint" + strconv.Itoa(n),
			PlayOrder: strconv.Itoa(n),
			Label:     e.Label,
			Content:   ncxContent{Src: src},
		}
	}

	doc := ncxDocument{
		Xmlns:   ncxNamespace,
		Version: "2005-1",
		Head: []ncxMeta{
			{Name: "dtb:uid", Content: "urn:uuid:" + md.ID},
			{Name: "dtb:depth", Content: "1"},
			{Name: "dtb:totalPageCount", Content: "0"},
			{Name: "dtb:maxPageNumber", Content: "0"},
		},
		DocTitle: md.Title,
		NavMap:   ncxNavMap{NavPoints: points},
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal NCX: %w", err)
	}
	out = selfClose(out, "meta", "content")
	res.Document = append([]byte(xml.Header), out...)
	return res, nil
}

// rebaseHref rewrites href, written relative to fromDoc, so that it resolves
// identically from toDoc. External URLs are returned unchanged.
func rebaseHref(fromDoc, toDoc, href string) string {
	u, err := url.Parse(href)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return href
	}

	p, frag, hasFrag := strings.Cut(href, "#")
	var target string
	switch {
	case p == "":
		target = fromDoc
	case strings.HasPrefix(p, "/"):
		target = strings.TrimPrefix(path.Clean(p), "/")
	default:
		target = path.Join(path.Dir(fromDoc), p)
	}

	rel, err := filepath.Rel(filepath.FromSlash(path.Dir(toDoc)), filepath.FromSlash(target))
	if err != nil {
		return href
	}
	out := filepath.ToSlash(rel)
	if hasFrag {
		out += "#" + frag
	}
	return out
}

// NCX is a navigation control document read back from an archive.
type NCX struct {
	UID       string
	DocTitle  string
	NavPoints []NavPoint
}

// NavPoint is a single NCX entry.
type NavPoint struct {
	ID        string
	PlayOrder int
	Label     string
	Src       string
	Children  []NavPoint
}

// ParseNCX parses an NCX document.
func ParseNCX(content []byte) (*NCX, error) {
	var doc ncxDocument
	if err := xml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse NCX XML: %w", err)
	}
	ncx := &NCX{DocTitle: strings.TrimSpace(doc.DocTitle)}
	for _, m := range doc.Head {
		if m.Name == "dtb:uid" {
			ncx.UID = m.Content
		}
	}
	ncx.NavPoints = convertNavPoints(doc.NavMap.NavPoints)
	return ncx, nil
}

func convertNavPoints(points []ncxNavPoint) []NavPoint {
	if len(points) == 0 {
		return nil
	}
	out := make([]NavPoint, len(points))
	for i, p := range points {
		order, _ := strconv.Atoi(p.PlayOrder)
		out[i] = NavPoint{
			ID:        p.ID,
			PlayOrder: order,
			Label:     collapseSpace(p.Label),
			Src:       p.Content.Src,
			Children:  convertNavPoints(p.Children),
		}
	}
	return out
}

// Count returns the number of nav points including nested ones.
func (n *NCX) Count() int {
	var count func([]NavPoint) int
	count = func(points []NavPoint) int {
		total := len(points)
		for _, p := range points {
			total += count(p.Children)
		}
		return total
	}
	return count(n.NavPoints)
}
