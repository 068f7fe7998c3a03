// Package filehandler classifies dataset files and prepares images for
// storage.
//
// A dataset is a flat or nested set of images with optional sidecar caption
// files sharing the image's base name (cat.jpg + cat.txt). Classification is
// by extension first and declared MIME type second, so browsers that send
// application/octet-stream for HEIC still route correctly.
package filehandler

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SupportedImageExtensions defines the file extensions accepted as images.
var SupportedImageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",
	".heif": "image/heif",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// CaptionExtension is the extension of sidecar caption files.
const CaptionExtension = ".txt"

// Kind is the role a file plays in a dataset.
type Kind int

const (
	KindUnsupported Kind = iota
	KindImage
	KindCaption
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindCaption:
		return "caption"
	default:
		return "unsupported"
	}
}

// Classify decides whether a file is an image, a caption or neither.
// A .txt extension always means caption regardless of MIME type.
func Classify(filename, mimeType string) Kind {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == CaptionExtension {
		return KindCaption
	}
	if IsImage(ext) {
		return KindImage
	}
	if strings.HasPrefix(strings.ToLower(mimeType), "image/") {
		return KindImage
	}
	return KindUnsupported
}

// GetMIMEType returns the MIME type for a given file extension.
func GetMIMEType(ext string) (string, error) {
	ext = strings.ToLower(ext)

	if mimeType, ok := SupportedImageExtensions[ext]; ok {
		return mimeType, nil
	}
	if ext == CaptionExtension {
		return "text/plain", nil
	}

	return "", fmt.Errorf("unsupported file extension: %s", ext)
}

// ResolveMIMEType prefers a specific declared type and falls back to the
// extension map. Generic declarations like application/octet-stream are
// ignored.
func ResolveMIMEType(filename, declared string) string {
	d := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(d, ';'); i >= 0 {
		d = strings.TrimSpace(d[:i])
	}
	if d != "" && d != "application/octet-stream" {
		return d
	}
	if m, err := GetMIMEType(filepath.Ext(filename)); err == nil {
		return m
	}
	return "application/octet-stream"
}

// IsImage returns true if the file extension corresponds to an image.
func IsImage(ext string) bool {
	_, ok := SupportedImageExtensions[strings.ToLower(ext)]
	return ok
}

// IsCaption returns true if the file extension marks a caption file.
func IsCaption(ext string) bool {
	return strings.ToLower(ext) == CaptionExtension
}
