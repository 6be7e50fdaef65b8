package utils

import (
	"mime"
	"path"
	"strings"
)

// DetectContentType guesses the content type of an object from its key.
func DetectContentType(key string) string {
	ext := strings.ToLower(path.Ext(key))
	switch ext {
	case "":
		return "application/octet-stream"
	case ".md", ".yaml", ".yml", ".toml", ".log":
		return "text/plain; charset=utf-8"
	}
	if mimeType := mime.TypeByExtension(ext); mimeType != "" {
		return mimeType
	}
	return "application/octet-stream"
}
