package localfs

// ListOptions configures the behavior of ListDirectory.
type ListOptions struct {
	// IncludeHidden includes hidden files (starting with .) in results.
	// Default is false (hidden files excluded).
	IncludeHidden bool

	// IncludeSymlinks lists symlinks as entries. They are never followed.
	IncludeSymlinks bool
}
