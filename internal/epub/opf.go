package epub

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

const (
	opfNamespace = "http://www.idpf.org/2007/opf"
	dcNamespace  = "http://purl.org/dc/elements/1.1/"

	// NCXItemID is the manifest id of the generated NCX document.
	NCXItemID = "ncx"
	// DefaultNCXHref is where the NCX document lives relative to the package root.
	DefaultNCXHref = "ncx/toc.ncx"
	ncxMediaType   = "application/x-dtbncx+xml"

	bookIDElement  = "BookId"
	modifiedLayout = "2006-01-02T15:04:05Z"
)

// PackageOptions controls package document generation.
type PackageOptions struct {
	Modified   time.Time // dcterms:modified, defaults to now
	NCXHref    string    // defaults to DefaultNCXHref
	CoverTitle string    // guide title of the cover reference
	TocTitle   string    // guide title of the toc reference
}

// packageDocument is the OPF 3.0 document written to content.opf.
type packageDocument struct {
	XMLName  xml.Name       `xml:"package"`
	Version  string         `xml:"version,attr"`
	UniqueID string         `xml:"unique-identifier,attr"`
	Xmlns    string         `xml:"xmlns,attr"`
	Metadata packageMeta    `xml:"metadata"`
	Manifest []opfItem      `xml:"manifest>item"`
	Spine    opfSpine       `xml:"spine"`
	Guide    []opfReference `xml:"guide>reference"`
}

type packageMeta struct {
	XmlnsDC  string        `xml:"xmlns:dc,attr"`
	XmlnsOPF string        `xml:"xmlns:opf,attr"`
	Elements []metaElement // element names are carried by XMLName
}

// metaElement is a dc:* or meta element inside <metadata>.
type metaElement struct {
	XMLName  xml.Name
	ID       string `xml:"id,attr,omitempty"`
	Refines  string `xml:"refines,attr,omitempty"`
	Property string `xml:"property,attr,omitempty"`
	Scheme   string `xml:"scheme,attr,omitempty"`
	Name     string `xml:"name,attr,omitempty"`
	Content  string `xml:"content,attr,omitempty"`
	Value    string `xml:",chardata"`
}

// opfItem is a manifest item, shared by generation and parsing.
type opfItem struct {
	ID         string `xml:"id,attr,omitempty"`
	Href       string `xml:"href,attr,omitempty"`
	MediaType  string `xml:"media-type,attr,omitempty"`
	Properties string `xml:"properties,attr,omitempty"`
}

type opfSpine struct {
	Toc      string       `xml:"toc,attr,omitempty"`
	ItemRefs []opfItemRef `xml:"itemref"`
}

type opfItemRef struct {
	IDRef  string `xml:"idref,attr"`
	Linear string `xml:"linear,attr,omitempty"`
}

type opfReference struct {
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
	Href  string `xml:"href,attr"`
}

func dc(local, id, value string) metaElement {
	return metaElement{XMLName: xml.Name{Local: "dc:" + local}, ID: id, Value: value}
}

func meta(m metaElement) metaElement {
	m.XMLName = xml.Name{Local: "meta"}
	return m
}

// BuildPackage renders content.opf from the book metadata and the asset index.
// Every toc id must resolve to a "text-{id}" asset.
func BuildPackage(md *Metadata, idx *AssetIndex, opts PackageOptions) ([]byte, error) {
	if opts.Modified.IsZero() {
		opts.Modified = time.Now()
	}
	if opts.NCXHref == "" {
		opts.NCXHref = DefaultNCXHref
	}
	if opts.CoverTitle == "" {
		opts.CoverTitle = "Cover"
	}
	if opts.TocTitle == "" {
		opts.TocTitle = "Table of Contents"
	}

	spine, err := buildSpine(md.TOC, idx)
	if err != nil {
		return nil, err
	}

	doc := packageDocument{
		Version:  "3.0",
		UniqueID: bookIDElement,
		Xmlns:    opfNamespace,
		Metadata: buildPackageMeta(md, idx, opts.Modified),
		Manifest: buildManifest(idx, opts.NCXHref),
		Spine:    spine,
		Guide: []opfReference{
			{Type: "cover", Title: opts.CoverTitle, Href: idx.Href(CoverTextID)},
			{Type: "toc", Title: opts.TocTitle, Href: idx.Href(NavTextID)},
		},
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal package document: %w", err)
	}
	out = selfClose(out, "item", "itemref", "reference", "meta")
	return append([]byte(xml.Header), out...), nil
}

// selfClose collapses empty elements like <item ...></item> into <item .../>.
func selfClose(out []byte, tags ...string) []byte {
	for _, t := range tags {
		out = bytes.ReplaceAll(out, []byte(`"></`+t+`>`), []byte(`"/>`))
	}
	return out
}

func buildPackageMeta(md *Metadata, idx *AssetIndex, modified time.Time) packageMeta {
	els := []metaElement{dc("language", "", md.Language)}
	if md.ISBN != "" {
		els = append(els, dc("identifier", "", "urn:isbn:"+md.ISBN))
	}
	els = append(els, dc("title", "title", md.Title))
	if md.Subtitle != "" {
		els = append(els, dc("title", "subtitle", md.Subtitle))
	}
	els = append(els,
		dc("publisher", "", md.Publisher),
		dc("creator", "cre", md.Author),
		dc("date", "", md.Date),
		dc("rights", "", md.Rights),
		dc("description", "", strings.Join(md.Description, "\n")),
		dc("identifier", bookIDElement, "urn:uuid:"+md.ID),
	)
	if md.Subtitle != "" {
		els = append(els, meta(metaElement{Refines: "#subtitle", Property: "title-type", Value: "subtitle"}))
	}
	els = append(els,
		meta(metaElement{Refines: "#title", Property: "title-type", Value: "main"}),
		meta(metaElement{Refines: "#cre", Property: "role", Scheme: "marc:relators", Value: "aut"}),
		meta(metaElement{Property: "ibooks:specified-fonts", Value: "true"}),
		meta(metaElement{Property: "dcterms:modified", Value: modified.UTC().Format(modifiedLayout)}),
		meta(metaElement{Name: "git-commit", Content: md.Revision}),
	)
	if _, ok := idx.Lookup(CoverImageID); ok {
		els = append(els, meta(metaElement{Name: "cover", Content: CoverImageID}))
	}

	return packageMeta{XmlnsDC: dcNamespace, XmlnsOPF: opfNamespace, Elements: els}
}

// buildManifest lists the NCX item first, then every asset in id order.
func buildManifest(idx *AssetIndex, ncxHref string) []opfItem {
	items := make([]opfItem, 0, len(idx.Entries)+1)
	items = append(items, opfItem{ID: NCXItemID, Href: ncxHref, MediaType: ncxMediaType})
	for _, e := range idx.Entries {
		items = append(items, opfItem{
			ID:         e.ID,
			Href:       e.Href,
			MediaType:  e.MediaType,
			Properties: e.Property,
		})
	}
	return items
}

func buildSpine(toc []string, idx *AssetIndex) (opfSpine, error) {
	spine := opfSpine{Toc: NCXItemID}
	var errs []error
	for _, id := range toc {
		idref := normalizeID(CategoryText + "-" + id)
		if _, ok := idx.Lookup(idref); !ok {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnresolvedSpineReference, idref))
			continue
		}
		spine.ItemRefs = append(spine.ItemRefs, opfItemRef{IDRef: idref})
	}
	if err := errors.Join(errs...); err != nil {
		return opfSpine{}, err
	}
	return spine, nil
}

// OPF is a package document read back from an archive.
type OPF struct {
	Title         string
	Identifier    string
	Language      string
	Manifest      map[string]ManifestItem // id -> item
	ManifestOrder []string
	Spine         []string          // idrefs
	Guide         map[string]string // type -> href
	NCXPath       string
}

// ManifestItem is a manifest entry with its href resolved against the OPF directory.
type ManifestItem struct {
	ID         string
	Href       string
	MediaType  string
	Properties []string
}

// opfPackage is the subset of an OPF document needed for verification.
type opfPackage struct {
	XMLName  xml.Name `xml:"package"`
	Version  string   `xml:"version,attr"`
	UniqueID string   `xml:"unique-identifier,attr"`
	Metadata struct {
		Title      []string `xml:"http://purl.org/dc/elements/1.1/ title"`
		Language   []string `xml:"http://purl.org/dc/elements/1.1/ language"`
		Identifier []struct {
			Value string `xml:",chardata"`
			ID    string `xml:"id,attr"`
		} `xml:"http://purl.org/dc/elements/1.1/ identifier"`
	} `xml:"metadata"`
	Manifest []opfItem      `xml:"manifest>item"`
	Spine    opfSpine       `xml:"spine"`
	Guide    []opfReference `xml:"guide>reference"`
}

// ParseOPF parses an OPF file. opfDir is the directory containing the OPF
// file inside the archive (e.g. "OEBPS").
func ParseOPF(content []byte, opfDir string) (*OPF, error) {
	var pkg opfPackage
	if err := xml.Unmarshal(content, &pkg); err != nil {
		return nil, fmt.Errorf("failed to parse OPF XML: %w", err)
	}

	opf := &OPF{
		Manifest: make(map[string]ManifestItem),
		Guide:    make(map[string]string),
	}
	if len(pkg.Metadata.Title) > 0 {
		opf.Title = pkg.Metadata.Title[0]
	}
	if len(pkg.Metadata.Language) > 0 {
		opf.Language = pkg.Metadata.Language[0]
	}
	for _, id := range pkg.Metadata.Identifier {
		if id.ID == pkg.UniqueID {
			opf.Identifier = id.Value
			break
		}
	}

	for _, item := range pkg.Manifest {
		opf.Manifest[item.ID] = ManifestItem{
			ID:         item.ID,
			Href:       joinPath(opfDir, item.Href),
			MediaType:  item.MediaType,
			Properties: strings.Fields(item.Properties),
		}
		opf.ManifestOrder = append(opf.ManifestOrder, item.ID)
	}
	for _, ref := range pkg.Spine.ItemRefs {
		opf.Spine = append(opf.Spine, ref.IDRef)
	}
	for _, ref := range pkg.Guide {
		if ref.Href != "" {
			opf.Guide[ref.Type] = joinPath(opfDir, ref.Href)
		}
	}
	if item, ok := opf.Manifest[pkg.Spine.Toc]; ok {
		opf.NCXPath = item.Href
	}
	return opf, nil
}

// ItemWithProperty returns the first manifest item carrying prop.
func (opf *OPF) ItemWithProperty(prop string) (ManifestItem, bool) {
	for _, id := range opf.ManifestOrder {
		item := opf.Manifest[id]
		for _, p := range item.Properties {
			if p == prop {
				return item, true
			}
		}
	}
	return ManifestItem{}, false
}

// joinPath joins the OPF directory with a relative path.
func joinPath(base, rel string) string {
	if base == "" || base == "." {
		return path.Clean(rel)
	}
	return path.Join(base, rel)
}
