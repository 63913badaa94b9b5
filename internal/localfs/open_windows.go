//go:build windows
// +build windows

package localfs

import "os"

func openRegular(path string) (*os.File, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrIsDirectory
	}
	if IsSpecialMode(info.Mode()) || info.Mode()&os.ModeSymlink != 0 {
		return nil, ErrSpecialFile
	}
	return os.Open(path)
}
