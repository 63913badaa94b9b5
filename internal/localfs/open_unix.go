//go:build !windows
// +build !windows

package localfs

import (
	"os"

	"golang.org/x/sys/unix"
)

// openRegular opens with O_NONBLOCK so a FIFO does not wait for a writer,
// then verifies the descriptor and restores blocking reads.
func openRegular(path string) (*os.File, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC|unix.O_NOFOLLOW, 0)
	if err != nil {
		return nil, err
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, err
	}
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFREG:
	case unix.S_IFDIR:
		unix.Close(fd)
		return nil, ErrIsDirectory
	default:
		unix.Close(fd)
		return nil, ErrSpecialFile
	}

	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return os.NewFile(uintptr(fd), path), nil
}
