package utils

import (
	"mime"
	"path"
	"strings"
)

const DefaultDocumentName = "document.pdf"

// SafeName reduces an upload name to a bare file name: directories are
// dropped and ".." sequences removed.
func SafeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	name = strings.ReplaceAll(name, "..", "")
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" {
		return DefaultDocumentName
	}
	return name
}

// Stem drops the final extension of a file name.
func Stem(name string) string {
	if ext := path.Ext(name); ext != "" && ext != name {
		return strings.TrimSuffix(name, ext)
	}
	return name
}

// IsPDFContentType accepts application/pdf and application/octet-stream,
// ignoring parameters.
func IsPDFContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/pdf" || mediaType == "application/octet-stream"
}
