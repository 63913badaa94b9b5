// Package localfs provides local filesystem operations for upload sources:
// hidden file detection, directory listing, walking and safe opening of
// regular files.
package localfs

import "strings"

// IsHiddenName reports whether a base name is a dot-file. "." and ".." are
// directory references, not hidden entries.
func IsHiddenName(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	return strings.HasPrefix(name, ".")
}
