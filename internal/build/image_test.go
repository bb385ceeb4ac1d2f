package build

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/yuanying/epubbuild/internal/epub"
)

func TestNewImageOptimizer_Defaults(t *testing.T) {
	o := NewImageOptimizer(0, 0)
	if o.MaxWidth != defaultMaxImageWidth || o.JPEGQuality != defaultJPEGQuality {
		t.Errorf("NewImageOptimizer(0, 0) = %+v", o)
	}
	if o := NewImageOptimizer(10, 200); o.JPEGQuality != 100 {
		t.Errorf("JPEGQuality = %d, want clamped to 100", o.JPEGQuality)
	}
}

func TestImageOptimizer_Optimize(t *testing.T) {
	jpg := func(w, h int) []byte {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, nil); err != nil {
			t.Fatal(err)
		}
		return buf.Bytes()
	}

	tests := []struct {
		name        string
		format      string
		input       []byte
		wantResized bool
		wantWidth   int
		wantWarning bool
	}{
		{name: "wide png", format: "png", input: pngBytes(t, 300, 30), wantResized: true, wantWidth: 100},
		{name: "narrow png", format: "png", input: pngBytes(t, 80, 30), wantWidth: 80},
		{name: "wide jpeg", format: "jpeg", input: jpg(250, 50), wantResized: true, wantWidth: 100},
		{name: "not an image", format: "png", input: []byte("garbage"), wantWarning: true},
	}
	o := NewImageOptimizer(100, 80)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, data, err := o.Optimize("Images/x", tt.format, tt.input)
			if err != nil {
				t.Fatalf("Optimize() error = %v", err)
			}
			if res.Resized != tt.wantResized {
				t.Errorf("Resized = %v, want %v", res.Resized, tt.wantResized)
			}
			if (res.Warning != "") != tt.wantWarning {
				t.Errorf("Warning = %q", res.Warning)
			}
			if !tt.wantResized {
				if !bytes.Equal(data, tt.input) {
					t.Error("unchanged image was re-encoded")
				}
				return
			}
			cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("DecodeConfig() error = %v", err)
			}
			if format != tt.format {
				t.Errorf("format = %s, want %s", format, tt.format)
			}
			if cfg.Width != tt.wantWidth || res.Width != tt.wantWidth {
				t.Errorf("width = %d (reported %d), want %d", cfg.Width, res.Width, tt.wantWidth)
			}
		})
	}
}

func TestImageOptimizer_AnimatedGIFUnchanged(t *testing.T) {
	pal := color.Palette{color.Black, color.White}
	anim := &gif.GIF{
		Image: []*image.Paletted{
			image.NewPaletted(image.Rect(0, 0, 300, 10), pal),
			image.NewPaletted(image.Rect(0, 0, 300, 10), pal),
		},
		Delay: []int{10, 10},
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		t.Fatal(err)
	}

	res, data, err := NewImageOptimizer(100, 0).Optimize("Images/a.gif", "gif", buf.Bytes())
	if err != nil {
		t.Fatalf("Optimize() error = %v", err)
	}
	if res.Resized || !bytes.Equal(data, buf.Bytes()) {
		t.Error("animated GIF was modified")
	}
}

func TestImageOptimizer_OptimizeAssets(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string][]byte{
		"Images/cover.png": pngBytes(t, 300, 10),
		"Images/fig.png":   pngBytes(t, 300, 10),
		"Images/icon.svg":  []byte("<svg/>"),
	})
	idx := &epub.AssetIndex{Entries: []epub.AssetEntry{
		{ID: "image-cover", Href: "Images/cover.png", MediaType: "image/png", Category: epub.CategoryImage},
		{ID: "image-fig", Href: "Images/fig.png", MediaType: "image/png", Category: epub.CategoryImage},
		{ID: "image-icon", Href: "Images/icon.svg", MediaType: "image/svg+xml", Category: epub.CategoryImage},
	}}

	results, err := NewImageOptimizer(100, 0).OptimizeAssets(root, idx)
	if err != nil {
		t.Fatalf("OptimizeAssets() error = %v", err)
	}
	if len(results) != 1 || results[0].Href != "Images/fig.png" || !results[0].Resized {
		t.Errorf("results = %+v, want only fig.png resized", results)
	}
	assertImageWidth(t, filepath.Join(root, "Images", "fig.png"), 100)
	assertImageWidth(t, filepath.Join(root, "Images", "cover.png"), 300)

	svg, _ := os.ReadFile(filepath.Join(root, "Images", "icon.svg"))
	if string(svg) != "<svg/>" {
		t.Error("svg was modified")
	}
}
