package storage

import (
	"mime"
	"path"
	"strings"
)

// bookTypes covers EPUB file extensions missing from common mime tables.
var bookTypes = map[string]string{
	".xhtml": "application/xhtml+xml",
	".ncx":   "application/x-dtbncx+xml",
	".opf":   "application/oebps-package+xml",
	".svg":   "image/svg+xml",
	".css":   "text/css",
	".otf":   "font/otf",
	".ttf":   "font/ttf",
	".woff":  "font/woff",
	".woff2": "font/woff2",
}

// contentType guesses the media type of an object from its key.
func contentType(key string) string {
	ext := strings.ToLower(path.Ext(key))
	if t, ok := bookTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
