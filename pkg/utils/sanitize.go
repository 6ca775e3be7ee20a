package utils

import (
	"regexp"
	"strings"
)

// --- Filename Sanitization ---
var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`) // Characters invalid in Windows/Unix filenames
var consecutiveUnderscores = regexp.MustCompile(`_+`)                  // Pattern to replace multiple underscores with one
const maxFilenameLength = 100                                          // Max length for sanitized filenames

// unsafeNameChars matches anything outside word characters, '-' and '.'
var unsafeNameChars = regexp.MustCompile(`[^\p{L}\p{N}_\-.]`)

// SanitizeFilename cleans a string to be safe for use as a filename component
func SanitizeFilename(name string) string {
	sanitized := invalidFilenameChars.ReplaceAllString(name, "_")       // Replace invalid chars with underscore
	sanitized = consecutiveUnderscores.ReplaceAllString(sanitized, "_") // Collapse multiple underscores
	sanitized = strings.Trim(sanitized, "_ ")                           // Remove leading/trailing underscores or spaces

	if len(sanitized) > maxFilenameLength {
		sanitized = sanitized[:maxFilenameLength]
		sanitized = strings.Trim(sanitized, "_ ")
	}

	if sanitized == "" {
		sanitized = "untitled"
	}
	return sanitized
}

// SafeName derives the file stem for an identifier: every character outside
// letters, digits, '_', '-' and '.' becomes '_', one for one.
// The mapping is deterministic, so "10.1000/xyz" always yields "10.1000_xyz".
func SafeName(identifier string) string {
	if identifier == "" {
		return "untitled"
	}
	return unsafeNameChars.ReplaceAllString(identifier, "_")
}
