package collect

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"path/filepath"

	"github.com/rescale/rescale-upload/internal/localfs"
)

// osFile is a local file. Open refuses pipes, sockets and devices.
type osFile struct {
	path string
	name string
	size int64
}

func (f *osFile) Name() string { return f.name }
func (f *osFile) Size() int64  { return f.size }

func (f *osFile) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return localfs.OpenFile(f.path)
}

// OSFile returns a handle for a local file. Directories are rejected; use
// OSTree for those.
func OSFile(p string) (ContentHandle, error) {
	entry, err := localfs.Stat(p)
	if err != nil {
		return nil, err
	}
	name := entry.Name
	// A link named explicitly is followed; links met while walking are not.
	if entry.IsSymlink() {
		target, err := filepath.EvalSymlinks(p)
		if err != nil {
			return nil, err
		}
		if entry, err = localfs.Stat(target); err != nil {
			return nil, err
		}
		p = target
	}
	if entry.IsDir {
		return nil, fmt.Errorf("%s: %w", p, localfs.ErrIsDirectory)
	}
	return &osFile{path: p, name: name, size: entry.Size}, nil
}

// osDir is a local directory. Symlinks below it are not followed.
type osDir struct {
	path string
	name string
	opts localfs.ListOptions
}

func (d *osDir) Name() string        { return d.name }
func (d *osDir) File() ContentHandle { return nil }

func (d *osDir) Children(ctx context.Context) ([]TreeNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := localfs.ListDirectory(d.path, d.opts)
	if err != nil {
		return nil, err
	}
	nodes := make([]TreeNode, 0, len(entries))
	for _, e := range entries {
		if e.IsDir {
			nodes = append(nodes, &osDir{path: e.Path, name: e.Name, opts: d.opts})
			continue
		}
		// Special files are kept so the probe reports them as skipped.
		nodes = append(nodes, &leaf{handle: &osFile{path: e.Path, name: e.Name, size: e.Size}})
	}
	return nodes, nil
}

// OSTree returns the tree rooted at a local directory. Hidden entries are
// left out unless includeHidden is set.
func OSTree(dir string, includeHidden bool) (TreeNode, error) {
	entry, err := localfs.Stat(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	root := dir
	if entry.IsSymlink() {
		if root, err = filepath.EvalSymlinks(dir); err != nil {
			return nil, err
		}
		if entry, err = localfs.Stat(root); err != nil {
			return nil, err
		}
	}
	if !entry.IsDir {
		return nil, fmt.Errorf("%s: not a directory", dir)
	}
	return &osDir{
		path: root,
		name: filepath.Base(abs),
		opts: localfs.ListOptions{IncludeHidden: includeHidden},
	}, nil
}

// leaf adapts a ContentHandle to a TreeNode.
type leaf struct {
	handle ContentHandle
}

func (l *leaf) Name() string                                 { return l.handle.Name() }
func (l *leaf) File() ContentHandle                          { return l.handle }
func (l *leaf) Children(context.Context) ([]TreeNode, error) { return nil, nil }

// fsFile is a file inside an fs.FS.
type fsFile struct {
	fsys fs.FS
	name string
	size int64
}

func (f *fsFile) Name() string { return path.Base(f.name) }
func (f *fsFile) Size() int64  { return f.size }

func (f *fsFile) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.fsys.Open(f.name)
}

// FSFile returns a handle for name inside fsys.
func FSFile(fsys fs.FS, name string) (ContentHandle, error) {
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return nil, err
	}
	return &fsFile{fsys: fsys, name: name, size: info.Size()}, nil
}

// fsDir is a directory inside an fs.FS.
type fsDir struct {
	fsys fs.FS
	name string
}

func (d *fsDir) Name() string        { return path.Base(d.name) }
func (d *fsDir) File() ContentHandle { return nil }

func (d *fsDir) Children(ctx context.Context) ([]TreeNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := fs.ReadDir(d.fsys, d.name)
	if err != nil {
		return nil, err
	}
	nodes := make([]TreeNode, 0, len(entries))
	for _, e := range entries {
		child := path.Join(d.name, e.Name())
		if e.IsDir() {
			nodes = append(nodes, &fsDir{fsys: d.fsys, name: child})
			continue
		}
		if e.Type()&fs.ModeSymlink != 0 {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		nodes = append(nodes, &leaf{handle: &fsFile{fsys: d.fsys, name: child, size: info.Size()}})
	}
	return nodes, nil
}

// FSTree returns the tree rooted at dir inside fsys. A root of "." yields
// entries without a leading root segment.
func FSTree(fsys fs.FS, dir string) TreeNode {
	return &fsDir{fsys: fsys, name: dir}
}
