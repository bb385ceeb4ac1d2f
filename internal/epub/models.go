package epub

// Asset categories recognised in Metadata.AssetsPath.
const (
	CategoryText  = "text"
	CategoryImage = "image"
	CategoryFont  = "font"
	CategoryStyle = "style"
)

// Reserved manifest ids that carry a structural property.
const (
	CoverImageID = "image-cover"
	CoverTextID  = "text-cover"
	NavTextID    = "text-nav"
)

// Metadata is the book description loaded from manifest.json.
type Metadata struct {
	ID          string
	Title       string
	Subtitle    string
	Publisher   string
	Author      string
	Language    string
	Date        string
	Rights      string
	Description []string
	ISBN        string
	AssetsPath  map[string]string // category -> directory relative to the package root
	TOC         []string          // spine order, each resolved as "text-{id}"
	Revision    string            // e.g. source control commit, advisory only
}

// AssetEntry is one file discovered under an asset category directory.
type AssetEntry struct {
	ID        string
	Href      string // relative to the package root
	MediaType string
	Property  string // "cover-image", "svg", "nav" or empty
	Category  string
}

// AssetIndex is the result of scanning every asset category.
type AssetIndex struct {
	Entries    []AssetEntry // sorted by ID
	Unresolved []string     // hrefs whose extension has no known media type
	Skipped    []string     // directories and hidden files that were ignored
}

// Lookup returns the entry with the given id.
func (idx *AssetIndex) Lookup(id string) (AssetEntry, bool) {
	for _, e := range idx.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return AssetEntry{}, false
}

// Href returns the href of the entry with the given id, or "" when absent.
func (idx *AssetIndex) Href(id string) string {
	e, _ := idx.Lookup(id)
	return e.Href
}

// TocEntry is one anchor extracted from the navigation document.
type TocEntry struct {
	Label  string // visible text, tags stripped, whitespace collapsed
	Target string // raw href attribute, may be empty
}
