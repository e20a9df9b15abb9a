package utils

import (
	"mime"
	"path"
	"strings"
)

const DefaultContentType = "application/octet-stream"

// static site extensions that the system mime table tends to miss or get wrong
var siteContentTypes = map[string]string{
	".html":        "text/html; charset=utf-8",
	".htm":         "text/html; charset=utf-8",
	".css":         "text/css; charset=utf-8",
	".js":          "text/javascript; charset=utf-8",
	".mjs":         "text/javascript; charset=utf-8",
	".json":        "application/json",
	".map":         "application/json",
	".webmanifest": "application/manifest+json",
	".xml":         "application/xml",
	".txt":         "text/plain; charset=utf-8",
	".md":          "text/plain; charset=utf-8",
	".svg":         "image/svg+xml",
	".ico":         "image/x-icon",
	".webp":        "image/webp",
	".avif":        "image/avif",
	".woff":        "font/woff",
	".woff2":       "font/woff2",
	".wasm":        "application/wasm",
}

// DetectContentType guesses the content type of an object from its key's extension.
func DetectContentType(key string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(key, "\\", "/")))
	if ext == "" {
		return DefaultContentType
	}
	if ct, ok := siteContentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return DefaultContentType
}
