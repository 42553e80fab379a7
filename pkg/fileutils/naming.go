package fileutils

import (
	"regexp"
	"strings"
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeFilename replaces every character outside [A-Za-z0-9._-] with an
// underscore. Multi-byte characters become one underscore each.
func SanitizeFilename(name string) string {
	return unsafeFilenameChars.ReplaceAllString(name, "_")
}

// CoverExtension picks the file extension for a cover of the given mime type:
// "png" when the type mentions png, "jpg" for everything else.
func CoverExtension(mimeType string) string {
	if strings.Contains(strings.ToLower(mimeType), "png") {
		return "png"
	}
	return "jpg"
}
