package epub

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// Content is a parsed XHTML content document.
type Content struct {
	Href       string            // package-relative path
	Document   *goquery.Document // parsed document
	StyleLinks []string          // resolved stylesheet hrefs
	ImageRefs  []string          // resolved img/image hrefs
}

// LoadContent parses an XHTML document and collects the resources it links.
// href is used to resolve relative references.
func LoadContent(href string, data []byte) (*Content, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse XHTML %s: %w", href, err)
	}

	c := &Content{
		Href:       href,
		Document:   doc,
		StyleLinks: []string{},
		ImageRefs:  []string{},
	}

	doc.Find("link[rel='stylesheet']").Each(func(_ int, s *goquery.Selection) {
		if ref, ok := s.Attr("href"); ok {
			if resolved, ok := resolveTarget(href, ref); ok {
				c.StyleLinks = append(c.StyleLinks, resolved)
			}
		}
	})

	doc.Find("img, image").Each(func(_ int, s *goquery.Selection) {
		ref, ok := s.Attr("src")
		if !ok {
			ref, ok = s.Attr("xlink:href")
		}
		if !ok {
			ref, ok = s.Attr("href")
		}
		if !ok {
			return
		}
		if resolved, ok := resolveTarget(href, ref); ok {
			c.ImageRefs = append(c.ImageRefs, resolved)
		}
	})

	return c, nil
}

// Text returns the visible body text of the document.
func (c *Content) Text() string {
	return c.Document.Find("body").Text()
}

// IsXHTML reports whether a file name is a content document.
func IsXHTML(name string) bool {
	mt, _ := MediaTypeFor(name)
	return mt == "application/xhtml+xml"
}
