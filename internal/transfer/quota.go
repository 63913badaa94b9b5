package transfer

import "sync/atomic"

// QuotaGuard is a set-once flag raised by the first quota failure. Readers
// never block; a worker may see the flag one task late.
type QuotaGuard struct {
	first atomic.Pointer[string]
}

// Trip raises the flag. It returns true only for the call that raised it,
// which also records path as the first file over quota.
func (g *QuotaGuard) Trip(path string) bool {
	return g.first.CompareAndSwap(nil, &path)
}

// Tripped reports whether the flag is set.
func (g *QuotaGuard) Tripped() bool {
	return g.first.Load() != nil
}

// FirstFile returns the file that raised the flag, or "".
func (g *QuotaGuard) FirstFile() string {
	if p := g.first.Load(); p != nil {
		return *p
	}
	return ""
}
