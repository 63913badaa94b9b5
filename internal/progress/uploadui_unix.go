//go:build !windows

package progress

import "os"

// enableWindowsANSI is a no-op: unix terminals understand ANSI natively.
func enableWindowsANSI(*os.File) {}
