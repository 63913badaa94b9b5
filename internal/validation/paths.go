// Package validation checks remote names given on the command line before
// any folder is created.
package validation

import (
	"fmt"
	"strings"
	"unicode"
)

// MaxNameLength is the longest folder or file name the backends accept.
const MaxNameLength = 255

// ValidateName validates one remote path segment.
//
// Returns an error if the name:
//   - Is empty, "." or ".."
//   - Contains path separators (/ or \)
//   - Contains null bytes or other control characters
//   - Is longer than MaxNameLength bytes
func ValidateName(name string) error {
	switch name {
	case "":
		return fmt.Errorf("name cannot be empty")
	case ".", "..":
		return fmt.Errorf("name cannot be %q", name)
	}

	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("name cannot contain path separators: %q", name)
	}

	// Covers null bytes, newlines and tabs
	if i := strings.IndexFunc(name, unicode.IsControl); i >= 0 {
		return fmt.Errorf("name contains control character at offset %d: %q", i, name)
	}

	if len(name) > MaxNameLength {
		return fmt.Errorf("name is longer than %d bytes: %q", MaxNameLength, name)
	}

	return nil
}

// ValidateRelativePath validates a "/"-separated path below the upload root.
// Leading and trailing slashes are ignored; empty segments ("a//b") are not.
func ValidateRelativePath(p string) error {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return fmt.Errorf("path cannot be empty")
	}
	for _, seg := range strings.Split(trimmed, "/") {
		if err := ValidateName(seg); err != nil {
			return fmt.Errorf("invalid path %q: %w", p, err)
		}
	}
	return nil
}
