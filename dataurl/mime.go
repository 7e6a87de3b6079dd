package dataurl

import (
	"strings"
)

// DefaultMimeType is used for files with missing or unknown extension.
const DefaultMimeType = "image/png"

var mimeTypes = map[string]string{
	"gif":  "image/gif",
	"jpeg": "image/jpg",
	"jpg":  "image/jpeg",
	"png":  "image/png",
}

// ResolveMime returns MIME type for file name based on its extension.
// Extension comparison is case insensitive. When extension is not known
// DefaultMimeType is returned and known is false.
func ResolveMime(filename string) (mime string, known bool) {
	if mime, known = mimeTypes[strings.ToLower(Extension(filename))]; !known {
		return DefaultMimeType, false
	}
	return mime, true
}

// Extension returns part of the file name after the last dot. Query and
// fragment parts of url are not considered to be part of the name, neither
// are dots in directory names.
func Extension(filename string) string {
	if i := strings.IndexAny(filename, "?#"); i >= 0 {
		filename = filename[:i]
	}
	dot := strings.LastIndexByte(filename, '.')
	if dot < 0 || strings.LastIndexAny(filename, `/\`) > dot {
		return ""
	}
	return filename[dot+1:]
}
