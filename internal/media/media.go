// Package media maps declared image MIME types to file extensions.
package media

import (
	"mime"
	"strings"
)

const (
	DefaultContentType = "image/jpeg"
	DefaultExtension   = ".jpg"

	WebPContentType = "image/webp"
	WebPExtension   = ".webp"
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
	"image/tiff": ".tiff",
}

// ExtensionFor never fails: unknown or malformed types get DefaultExtension.
// Parameters such as "; charset=binary" are ignored.
func ExtensionFor(contentType string) string {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}
	if ext, ok := extensions[mediaType]; ok {
		return ext
	}
	return DefaultExtension
}
