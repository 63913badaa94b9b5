package folders

// PathMap maps a directory relative path to its remote id. The empty path is
// the upload root. A PathMap is read-only once built and safe for concurrent
// lookups without locking.
type PathMap struct {
	ids map[string]string
}

// NewPathMap builds a map seeded with the root id plus the given entries.
func NewPathMap(rootID string, dirs map[string]string) *PathMap {
	ids := make(map[string]string, len(dirs)+1)
	for k, v := range dirs {
		ids[k] = v
	}
	ids[""] = rootID
	return &PathMap{ids: ids}
}

// Lookup returns the remote id of a directory path.
func (m *PathMap) Lookup(relativePath string) (string, bool) {
	if m == nil {
		return "", false
	}
	id, ok := m.ids[relativePath]
	return id, ok
}

// Len returns the number of mapped directories, including the root.
func (m *PathMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.ids)
}
