package errors

import (
	"path/filepath"
	"strings"
	"unicode"
)

// maxDocumentNameLength bounds stored document names.
const maxDocumentNameLength = 200

// ValidateDocumentName validates a stored document name for safety.
// It ensures the name is a simple basename without path components, so it
// can be used as a file name in the processed-data directory or as a
// document key in a database.
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - No control characters or null bytes
//   - No path separators or traversal sequences
//   - No hidden files
//   - Maximum length of 200 characters
func ValidateDocumentName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidPath, "document name cannot be empty")
	}

	if len(name) > maxDocumentNameLength {
		return New(ErrCodeInvalidPath, "document name too long (max %d characters)", maxDocumentNameLength)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "document name contains invalid control characters")
		}
	}

	if strings.ContainsAny(name, "/\\") {
		return New(ErrCodeInvalidPath, "document name cannot contain path separators")
	}

	if strings.Contains(name, "..") {
		return New(ErrCodeInvalidPath, "document name cannot contain path traversal sequences (..)")
	}

	if strings.HasPrefix(name, ".") {
		return New(ErrCodeInvalidPath, "document name cannot be a hidden file")
	}

	return nil
}

// SanitizeFilename reduces an uploaded file name to a safe basename made of
// letters, digits, '.', '-' and '_'. Other runes become '_'. Leading dots are
// stripped so the result is never hidden. Returns "" when nothing usable is
// left.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	out := strings.TrimLeft(b.String(), ".")
	if out == "" || out == "_" {
		return ""
	}
	if len(out) > maxDocumentNameLength {
		out = out[len(out)-maxDocumentNameLength:]
	}
	return out
}

// ValidateExtension checks that filename carries one of the allowed
// extensions (case-insensitive, given without the dot).
func ValidateExtension(filename string, allowed ...string) error {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	for _, a := range allowed {
		if ext == a {
			return nil
		}
	}
	return New(ErrCodeUnsupportedFile, "file type not allowed: %q", filename)
}
