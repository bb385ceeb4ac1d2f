package epub

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// anchor is an <a> element found in a navigation document.
type anchor struct {
	entry TocEntry
	html  string // element markup, used when rebuilding the toc list
}

// parseDocument parses (X)HTML with goquery.
func parseDocument(doc []byte) (*goquery.Document, error) {
	d, err := goquery.NewDocumentFromReader(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to parse nav document: %w", err)
	}
	return d, nil
}

// collectAnchors returns every anchor matched by sel in document order.
// Markup found in source is used as written; other anchors are serialized
// from the parse tree.
func collectAnchors(sel *goquery.Selection, source map[*html.Node]string) ([]anchor, error) {
	anchors := make([]anchor, 0, sel.Length())
	var renderErr error
	sel.EachWithBreak(func(i int, s *goquery.Selection) bool {
		markup, ok := source[s.Get(0)]
		if !ok {
			outer, err := goquery.OuterHtml(s)
			if err != nil {
				renderErr = fmt.Errorf("failed to render anchor %d: %w", i+1, err)
				return false
			}
			markup = outer
		}
		href, _ := s.Attr("href")
		anchors = append(anchors, anchor{
			entry: TocEntry{Label: collapseSpace(s.Text()), Target: href},
			html:  markup,
		})
		return true
	})
	if renderErr != nil {
		return nil, renderErr
	}
	return anchors, nil
}

// sourceAnchors maps every <a> element of d to its markup as written in doc.
// It returns nil when the tokenizer and the parser disagree on the anchors,
// e.g. for nested or unclosed anchors that the parser restructures.
func sourceAnchors(d *goquery.Document, doc []byte) map[*html.Node]string {
	spans, ok := anchorSpans(doc)
	all := d.Find("a")
	if !ok || len(spans) != all.Length() {
		return nil
	}
	m := make(map[*html.Node]string, len(spans))
	for i, n := range all.Nodes {
		m[n] = spans[i]
	}
	return m
}

// anchorSpans returns the raw bytes of every <a>...</a> span in doc, in
// document order. ok is false when anchors nest or are left open.
func anchorSpans(doc []byte) (spans []string, ok bool) {
	z := html.NewTokenizer(bytes.NewReader(doc))
	var cur *bytes.Buffer
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return spans, errors.Is(z.Err(), io.EOF) && cur == nil
		}
		// TagName lowercases the buffer in place, so copy the raw token first.
		raw := append([]byte(nil), z.Raw()...)
		name, _ := z.TagName()
		isAnchor := string(name) == "a"

		switch {
		case isAnchor && tt == html.SelfClosingTagToken:
			return nil, false
		case isAnchor && tt == html.StartTagToken:
			if cur != nil {
				return nil, false
			}
			cur = bytes.NewBuffer(raw)
		case isAnchor && tt == html.EndTagToken:
			if cur == nil {
				return nil, false
			}
			cur.Write(raw)
			spans = append(spans, cur.String())
			cur = nil
		case cur != nil:
			cur.Write(raw)
		}
	}
}

// findTocRegion returns the first <nav> whose epub:type lists "toc".
func findTocRegion(doc *goquery.Document) (*goquery.Selection, bool) {
	region := doc.Find("nav").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return hasToken(s.AttrOr("epub:type", ""), "toc")
	}).First()
	return region, region.Length() > 0
}

// collapseSpace trims s and collapses whitespace runs to single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// hasToken reports whether the space-separated list contains token.
func hasToken(list, token string) bool {
	for _, f := range strings.Fields(list) {
		if f == token {
			return true
		}
	}
	return false
}

// entriesOf strips the serialized markup from anchors.
func entriesOf(anchors []anchor) []TocEntry {
	entries := make([]TocEntry, len(anchors))
	for i, a := range anchors {
		entries[i] = a.entry
	}
	return entries
}
