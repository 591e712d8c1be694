package imaging

import (
	"mime"
	"path/filepath"
	"strings"
)

// Kind tells the ingest step how to read a media type.
type Kind int

const (
	// Unsupported media types are rejected.
	Unsupported Kind = iota
	// Direct media types are read as-is.
	Direct
	// Convert media types go through the JPEG converter first.
	Convert
)

var kinds = map[string]Kind{
	"image/jpeg": Direct,
	"image/png":  Direct,
	"image/gif":  Direct,
	"image/bmp":  Direct,
	"image/webp": Direct,
	"image/heic": Convert,
	"image/heif": Convert,
}

var extensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".heic": "image/heic",
	".heif": "image/heif",
}

// Classify returns how a media type is ingested.
func Classify(mediaType string) Kind {
	return kinds[Normalize(mediaType)]
}

// Normalize lowercases a media type and strips its parameters.
func Normalize(mediaType string) string {
	if mt, _, err := mime.ParseMediaType(mediaType); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// Resolve picks the declared media type, falling back to the filename extension
// when the client did not declare a useful one.
func Resolve(declared, filename string) string {
	mt := Normalize(declared)
	if mt != "" && mt != "application/octet-stream" {
		return mt
	}
	if byExt, ok := extensions[strings.ToLower(filepath.Ext(filename))]; ok {
		return byExt
	}
	return mt
}
