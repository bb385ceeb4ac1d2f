package epub

import (
	"path"
	"strings"
)

// mediaTypes maps lower-case file extensions to EPUB core media types.
var mediaTypes = map[string]string{
	".xhtml": "application/xhtml+xml",
	".html":  "application/xhtml+xml",
	".htm":   "application/xhtml+xml",
	".css":   "text/css",
	".js":    "application/javascript",
	".ncx":   "application/x-dtbncx+xml",
	".opf":   "application/oebps-package+xml",
	".smil":  "application/smil+xml",
	".pls":   "application/pls+xml",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".png":   "image/png",
	".gif":   "image/gif",
	".webp":  "image/webp",
	".svg":   "image/svg+xml",
	".ttf":   "font/ttf",
	".otf":   "font/otf",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".mp3":   "audio/mpeg",
	".m4a":   "audio/mp4",
	".mp4":   "video/mp4",
	".txt":   "text/plain",
}

// MediaTypeFor resolves the media type of a file name from its extension.
func MediaTypeFor(name string) (string, bool) {
	mt, ok := mediaTypes[strings.ToLower(path.Ext(name))]
	return mt, ok
}

// isImageMediaType checks if a media type is a raster image (SVG excluded).
func isImageMediaType(mediaType string) bool {
	if mediaType == "image/svg+xml" {
		return false
	}
	return strings.HasPrefix(mediaType, "image/")
}
