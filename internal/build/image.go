package build

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/yuanying/epubbuild/internal/epub"
	_ "golang.org/x/image/webp"
)

const (
	defaultMaxImageWidth = 1200
	defaultJPEGQuality   = 85
	defaultMaxPixels     = 100 * 1000 * 1000 // 100 megapixels
)

// ImageOptimizer downscales oversized raster images in the build tree.
// Images keep their format so manifest media types stay valid.
type ImageOptimizer struct {
	MaxWidth    int
	JPEGQuality int
	MaxPixels   int // Total pixel count limit for decode (width * height)
}

// OptimizedImage holds the result for one image.
// Warning is set when the image was left unchanged because it could not be processed.
type OptimizedImage struct {
	Href    string
	Resized bool
	Width   int
	Height  int
	Before  int
	After   int
	Warning string
}

// NewImageOptimizer creates an optimizer, applying defaults to zero values.
func NewImageOptimizer(maxWidth, quality int) *ImageOptimizer {
	if maxWidth <= 0 {
		maxWidth = defaultMaxImageWidth
	}
	if quality <= 0 {
		quality = defaultJPEGQuality
	}
	if quality > 100 {
		quality = 100
	}
	return &ImageOptimizer{
		MaxWidth:    maxWidth,
		JPEGQuality: quality,
		MaxPixels:   defaultMaxPixels,
	}
}

// OptimizeAssets rewrites every image asset under root that is wider than
// MaxWidth. The cover image is never resized.
func (o *ImageOptimizer) OptimizeAssets(root string, idx *epub.AssetIndex) ([]OptimizedImage, error) {
	var results []OptimizedImage
	for _, e := range idx.Entries {
		if e.Category != epub.CategoryImage || e.ID == epub.CoverImageID {
			continue
		}
		format := mediaTypeToFormat(e.MediaType)
		if format == "" {
			continue
		}

		p := filepath.Join(root, filepath.FromSlash(e.Href))
		input, err := os.ReadFile(p)
		if err != nil {
			return results, fmt.Errorf("failed to read image %s: %w", e.Href, err)
		}
		res, data, err := o.Optimize(e.Href, format, input)
		if err != nil {
			return results, err
		}
		if res.Resized {
			if err := os.WriteFile(p, data, 0o644); err != nil {
				return results, fmt.Errorf("failed to write image %s: %w", e.Href, err)
			}
		}
		results = append(results, res)
	}
	return results, nil
}

// Optimize decodes input and downscales it to MaxWidth, re-encoding in the
// same format. Images that cannot be decoded, are too large to decode or are
// animated are returned unchanged with a Warning where appropriate.
func (o *ImageOptimizer) Optimize(href, format string, input []byte) (OptimizedImage, []byte, error) {
	out := OptimizedImage{Href: href, Before: len(input), After: len(input)}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(input))
	if err != nil {
		out.Warning = fmt.Sprintf("image decode failed: %v", err)
		return out, input, nil
	}
	out.Width, out.Height = cfg.Width, cfg.Height
	pixels := uint64(cfg.Width) * uint64(cfg.Height)
	if o.MaxPixels > 0 && pixels > uint64(o.MaxPixels) {
		out.Warning = fmt.Sprintf("image too large to decode: %dx%d (%d pixels)", cfg.Width, cfg.Height, pixels)
		return out, input, nil
	}
	if o.MaxWidth <= 0 || cfg.Width <= o.MaxWidth {
		return out, input, nil
	}

	if format == "gif" {
		animated, err := isAnimatedGIF(input)
		if err == nil && animated {
			return out, input, nil
		}
	}
	if format == "webp" {
		// no webp encoder available
		return out, input, nil
	}

	src, _, err := image.Decode(bytes.NewReader(input))
	if err != nil {
		out.Warning = fmt.Sprintf("image decode failed: %v", err)
		return out, input, nil
	}
	resized := imaging.Resize(src, o.MaxWidth, 0, imaging.Lanczos)

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, resized, &jpeg.Options{Quality: o.JPEGQuality})
	case "png":
		encoder := png.Encoder{CompressionLevel: png.BestCompression}
		err = encoder.Encode(&buf, resized)
	case "gif":
		err = gif.Encode(&buf, resized, nil)
	default:
		return out, input, nil
	}
	if err != nil {
		return out, input, fmt.Errorf("%s encode failed for %s: %w", format, href, err)
	}

	out.Resized = true
	out.Width = resized.Bounds().Dx()
	out.Height = resized.Bounds().Dy()
	out.After = buf.Len()
	return out, buf.Bytes(), nil
}

func mediaTypeToFormat(mediaType string) string {
	switch strings.ToLower(mediaType) {
	case "image/jpeg", "image/jpg":
		return "jpeg"
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	default:
		return ""
	}
}

func isAnimatedGIF(data []byte) (bool, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return false, err
	}
	return len(g.Image) > 1, nil
}
