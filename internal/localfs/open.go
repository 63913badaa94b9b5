package localfs

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrSpecialFile is returned when opening a pipe, socket or device.
	ErrSpecialFile = errors.New("not a regular file")
	// ErrIsDirectory is returned when opening a directory as a file.
	ErrIsDirectory = errors.New("is a directory")
)

// OpenFile opens path for reading only if it is a regular file. The type is
// checked on the opened descriptor, so a file swapped for a pipe after
// listing is still refused, and opening never blocks on a pipe.
func OpenFile(path string) (*os.File, error) {
	f, err := openRegular(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}
