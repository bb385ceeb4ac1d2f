package epub

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"
)

func TestAssetID(t *testing.T) {
	tests := []struct {
		name     string
		category string
		filename string
		want     string
	}{
		{name: "simple", category: "text", filename: "ch1.xhtml", want: "text-ch1"},
		{name: "only last extension removed", category: "style", filename: "main.min.css", want: "style-main.min"},
		{name: "space run", category: "text", filename: "chapter  one.xhtml", want: "text-chapter-one"},
		{name: "tab and newline", category: "image", filename: "a\t\nb.png", want: "image-a-b"},
		{name: "ideographic space", category: "text", filename: "第一章　序.xhtml", want: "text-第一章-序"},
		{name: "no extension", category: "font", filename: "LICENSE", want: "font-LICENSE"},
		{name: "decomposed form is normalized", category: "text", filename: "cafe\u0301.xhtml", want: "text-caf\u00e9"},
		{name: "ampersand", category: "text", filename: "a&b.xhtml", want: "text-a-b"},
		{name: "colon and parens", category: "image", filename: "fig:1 (a).png", want: "image-fig-1--a-"},
		{name: "combining mark kept", category: "text", filename: "\u0915\u093f.xhtml", want: "text-\u0915\u093f"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AssetID(tt.category, tt.filename); got != tt.want {
				t.Errorf("AssetID(%q, %q) = %q, want %q", tt.category, tt.filename, got, tt.want)
			}
		})
	}
}

func testBookFS() fstest.MapFS {
	return fstest.MapFS{
		"Text/ch1.xhtml":    {Data: []byte("<html/>")},
		"Text/ch2.xhtml":    {Data: []byte("<html/>")},
		"Text/nav.xhtml":    {Data: []byte("<html/>")},
		"Text/cover.xhtml":  {Data: []byte("<html/>")},
		"Text/.DS_Store":    {Data: []byte{0}},
		"Images/cover.jpg":  {Data: []byte{0xff, 0xd8}},
		"Images/fig 1.png":  {Data: []byte{0x89}},
		"Images/raw/x.png":  {Data: []byte{0x89}},
		"Fonts/body.ttf":    {Data: []byte{0}},
		"Styles/main.css":   {Data: []byte("body{}")},
		"Styles/notes.scss": {Data: []byte("body{}")},
	}
}

func testAssetsPath() map[string]string {
	return map[string]string{
		CategoryText:  "Text",
		CategoryImage: "Images",
		CategoryFont:  "Fonts",
		CategoryStyle: "Styles",
	}
}

func TestIndexAssets_RoundTrip(t *testing.T) {
	idx, err := IndexAssets(context.Background(), testBookFS(), testAssetsPath())
	if err != nil {
		t.Fatalf("IndexAssets() error = %v", err)
	}

	want := map[string]string{
		"text-ch1":    "Text/ch1.xhtml",
		"text-ch2":    "Text/ch2.xhtml",
		"text-nav":    "Text/nav.xhtml",
		"text-cover":  "Text/cover.xhtml",
		"image-cover": "Images/cover.jpg",
		"image-fig-1": "Images/fig 1.png",
		"font-body":   "Fonts/body.ttf",
		"style-main":  "Styles/main.css",
		"style-notes": "Styles/notes.scss",
	}
	if len(idx.Entries) != len(want) {
		t.Fatalf("got %d entries, want %d: %+v", len(idx.Entries), len(want), idx.Entries)
	}

	seen := map[string]bool{}
	for i, e := range idx.Entries {
		if seen[e.ID] {
			t.Errorf("entry %q appears twice", e.ID)
		}
		seen[e.ID] = true
		if want[e.ID] != e.Href {
			t.Errorf("entry %q href = %q, want %q", e.ID, e.Href, want[e.ID])
		}
		if i > 0 && idx.Entries[i-1].ID > e.ID {
			t.Errorf("entries not sorted: %q before %q", idx.Entries[i-1].ID, e.ID)
		}
	}

	if len(idx.Skipped) != 2 {
		t.Errorf("Skipped = %v, want the hidden file and the subdirectory", idx.Skipped)
	}
}

func TestIndexAssets_MediaTypes(t *testing.T) {
	idx, err := IndexAssets(context.Background(), testBookFS(), testAssetsPath())
	if err != nil {
		t.Fatalf("IndexAssets() error = %v", err)
	}

	tests := map[string]string{
		"text-ch1":    "application/xhtml+xml",
		"image-cover": "image/jpeg",
		"image-fig-1": "image/png",
		"font-body":   "font/ttf",
		"style-main":  "text/css",
		"style-notes": "",
	}
	for id, wantType := range tests {
		e, ok := idx.Lookup(id)
		if !ok {
			t.Fatalf("entry %q not found", id)
		}
		if e.MediaType != wantType {
			t.Errorf("%s MediaType = %q, want %q", id, e.MediaType, wantType)
		}
	}

	if len(idx.Unresolved) != 1 || idx.Unresolved[0] != "Styles/notes.scss" {
		t.Errorf("Unresolved = %v, want [Styles/notes.scss]", idx.Unresolved)
	}
}

func TestIndexAssets_ReservedProperties(t *testing.T) {
	idx, err := IndexAssets(context.Background(), testBookFS(), testAssetsPath())
	if err != nil {
		t.Fatalf("IndexAssets() error = %v", err)
	}

	want := map[string]string{
		"image-cover": "cover-image",
		"text-cover":  "svg",
		"text-nav":    "nav",
	}
	for _, e := range idx.Entries {
		if e.Property != want[e.ID] {
			t.Errorf("%s Property = %q, want %q", e.ID, e.Property, want[e.ID])
		}
	}
}

func TestIndexAssets_DuplicateID(t *testing.T) {
	fsys := fstest.MapFS{
		"Text/ch1.xhtml": {Data: []byte("<html/>")},
		"Text/ch1.html":  {Data: []byte("<html/>")},
	}
	_, err := IndexAssets(context.Background(), fsys, map[string]string{CategoryText: "Text"})
	if !errors.Is(err, ErrDuplicateAssetID) {
		t.Fatalf("IndexAssets() error = %v, want ErrDuplicateAssetID", err)
	}
	if !strings.Contains(err.Error(), "Text/ch1.html") || !strings.Contains(err.Error(), "Text/ch1.xhtml") {
		t.Errorf("error should name both files: %v", err)
	}
}

func TestIndexAssets_FailedCategoriesAreAllReported(t *testing.T) {
	fsys := fstest.MapFS{
		"Text/ch1.xhtml": {Data: []byte("<html/>")},
	}
	_, err := IndexAssets(context.Background(), fsys, testAssetsPath())
	if err == nil {
		t.Fatal("IndexAssets() error = nil, want failure for missing directories")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("error should wrap fs.ErrNotExist: %v", err)
	}
	for _, category := range []string{"image", "font", "style"} {
		if !strings.Contains(err.Error(), category+" assets") {
			t.Errorf("error does not mention %s: %v", category, err)
		}
	}
	if strings.Contains(err.Error(), "text assets") {
		t.Errorf("text category succeeded but is reported: %v", err)
	}
}

func TestIndexAssets_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := IndexAssets(ctx, testBookFS(), testAssetsPath())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("IndexAssets() error = %v, want context.Canceled", err)
	}
}

func TestMediaTypeFor(t *testing.T) {
	tests := []struct {
		name   string
		want   string
		wantOK bool
	}{
		{"ch1.xhtml", "application/xhtml+xml", true},
		{"COVER.JPG", "image/jpeg", true},
		{"font.woff2", "font/woff2", true},
		{"toc.ncx", "application/x-dtbncx+xml", true},
		{"notes.md", "", false},
		{"Makefile", "", false},
	}
	for _, tt := range tests {
		got, ok := MediaTypeFor(tt.name)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("MediaTypeFor(%q) = (%q, %v), want (%q, %v)", tt.name, got, ok, tt.want, tt.wantOK)
		}
	}
}
