// Package collect normalizes upload inputs into a flat list of readable
// entries with relative paths.
//
// Three input shapes are accepted: plain files (placed at the upload root),
// picked files that already carry a relative path, and directory trees that
// are walked recursively. Every candidate is probed by reading its first byte
// under a timeout; entries that cannot be read are dropped and reported once.
package collect

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var (
	// ErrUnreadableEntry marks an entry that failed the readability probe.
	ErrUnreadableEntry = errors.New("unreadable entry")
	// ErrInvalidPath marks a relative path that escapes the upload root.
	ErrInvalidPath = errors.New("invalid relative path")
)

// ContentHandle is a readable content item.
type ContentHandle interface {
	// Name is the display name, normally the base name.
	Name() string
	// Size is the byte length known at listing time.
	Size() int64
	// Open returns a reader positioned at the start of the content.
	Open(ctx context.Context) (io.ReadCloser, error)
}

// TreeNode is one node of a directory tree. Directories return a nil File and
// list their children; leaves return their content handle.
type TreeNode interface {
	Name() string
	File() ContentHandle
	Children(ctx context.Context) ([]TreeNode, error)
}

// Input is one raw upload source. Exactly one of Handle or Tree is set.
type Input struct {
	Handle       ContentHandle
	RelativePath string
	Tree         TreeNode
}

// FileInput places a file at the upload root.
func FileInput(h ContentHandle) Input {
	return Input{Handle: h}
}

// PickedInput places a file at a relative path such as "a/b/x.txt".
func PickedInput(h ContentHandle, relativePath string) Input {
	return Input{Handle: h, RelativePath: relativePath}
}

// TreeInput walks a directory tree. The root's own name becomes the first
// path segment of every entry under it.
func TreeInput(root TreeNode) Input {
	return Input{Tree: root}
}

// Entry is a readable content item with its path relative to the upload root.
// Paths always use "/" and never start or end with it.
type Entry struct {
	Handle       ContentHandle
	RelativePath string
	Size         int64
}

// ParentPath returns the directory part of the path, "" for root-level files.
func (e Entry) ParentPath() string {
	return ParentPath(e.RelativePath)
}

// FileName returns the last path segment.
func (e Entry) FileName() string {
	return path.Base(e.RelativePath)
}

// ParentPath returns the directory part of a "/"-separated relative path.
func ParentPath(rel string) string {
	i := strings.LastIndexByte(rel, '/')
	if i < 0 {
		return ""
	}
	return rel[:i]
}

// CleanRelativePath normalizes separators and rejects paths that are empty or
// leave the upload root.
func CleanRelativePath(rel string) (string, error) {
	p := strings.ReplaceAll(rel, "\\", "/")
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", ErrInvalidPath
		}
	}
	p = path.Clean(p)
	if p == "." || p == "" {
		return "", ErrInvalidPath
	}
	return p, nil
}
