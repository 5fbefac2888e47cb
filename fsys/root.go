// Package fsys provides sandboxed filesystem roots for preopened directories.
//
// A Root exposes a tree of virtual slash-separated paths beginning at "/".
// Guests never see host paths: every path is resolved lexically against a
// directory inside the root and rejected if it would leave the root.
package fsys

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blang/vfs"
	"github.com/blang/vfs/memfs"
	"github.com/blang/vfs/prefixfs"
)

// Root is one preopened directory tree.
type Root struct {
	fs       vfs.Filesystem
	rw       vfs.Filesystem
	base     string
	readOnly bool
}

// Memory returns a fresh, empty in-memory root.
func Memory() *Root {
	mfs := memfs.Create()
	return &Root{fs: mfs, rw: mfs}
}

// Host returns a root backed by the host directory dir.
func Host(dir string, readOnly bool) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, wrap("preopen", dir, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	st, err := os.Stat(abs)
	if err != nil {
		return nil, wrap("preopen", dir, err)
	}
	if !st.IsDir() {
		return nil, newError("preopen", dir, ErrorNotDirectory)
	}

	pfs := prefixfs.Create(vfs.OS(), abs)
	r := &Root{fs: pfs, rw: pfs, base: abs}
	if readOnly {
		r.MakeReadOnly()
	}
	return r, nil
}

// MakeReadOnly rejects every subsequent mutation made through the root.
func (r *Root) MakeReadOnly() {
	r.fs = vfs.ReadOnly(r.rw)
	r.readOnly = true
}

// ReadOnly reports whether writes through the root are rejected.
func (r *Root) ReadOnly() bool {
	return r.readOnly
}

// IsHost reports whether the root is backed by a host directory.
func (r *Root) IsHost() bool {
	return r.base != ""
}

// Resolve joins rel onto the virtual directory dir.
// Absolute paths and paths climbing above dir fail with ErrorNotCapable.
func Resolve(dir, rel string) (string, error) {
	if strings.HasPrefix(rel, "/") {
		return "", newError("resolve", rel, ErrorNotCapable)
	}
	if strings.IndexByte(rel, 0) >= 0 {
		return "", newError("resolve", rel, ErrorInvalid)
	}
	depth := 0
	for _, seg := range strings.Split(rel, "/") {
		switch seg {
		case "", ".":
		case "..":
			depth--
			if depth < 0 {
				return "", newError("resolve", rel, ErrorNotCapable)
			}
		default:
			depth++
		}
	}
	return path.Clean(path.Join("/", dir, rel)), nil
}

// backing cleans a virtual path and, for host roots, checks that it stays
// inside the base once symlinks are followed.
func (r *Root) backing(p string) (string, error) {
	clean := path.Clean("/" + p)
	if r.base == "" {
		return clean, nil
	}
	if err := r.confine(filepath.Join(r.base, filepath.FromSlash(clean))); err != nil {
		return "", err
	}
	return clean, nil
}

// confine rejects host paths whose symlinks lead outside the base.
// A path that does not exist yet is checked through its parent.
func (r *Root) confine(full string) error {
	cur := full
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			rel, err := filepath.Rel(r.base, resolved)
			if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				return newError("resolve", full, ErrorNotCapable)
			}
			return nil
		}
		parent := filepath.Dir(cur)
		if parent == cur || len(parent) < len(r.base) {
			return nil
		}
		cur = parent
	}
}

// OpenFile opens the file at the virtual path p.
func (r *Root) OpenFile(p string, flag int, perm os.FileMode) (*File, error) {
	bp, err := r.backing(p)
	if err != nil {
		return nil, err
	}
	f, err := r.fs.OpenFile(bp, flag, perm)
	if err != nil {
		return nil, wrap("open", p, err)
	}
	return &File{f: f, root: r, path: path.Clean("/" + p), flag: flag}, nil
}

// Stat returns file info, following symlinks.
func (r *Root) Stat(p string) (fs.FileInfo, error) {
	bp, err := r.backing(p)
	if err != nil {
		return nil, err
	}
	fi, err := r.fs.Stat(bp)
	return fi, wrap("stat", p, err)
}

// Lstat returns file info without following a final symlink.
func (r *Root) Lstat(p string) (fs.FileInfo, error) {
	bp, err := r.backing(p)
	if err != nil {
		return nil, err
	}
	fi, err := r.fs.Lstat(bp)
	return fi, wrap("lstat", p, err)
}

// Mkdir creates a single directory.
func (r *Root) Mkdir(p string, perm os.FileMode) error {
	bp, err := r.backing(p)
	if err != nil {
		return err
	}
	if _, err := r.fs.Stat(bp); err == nil {
		return newError("mkdir", p, ErrorExist)
	}
	return wrap("mkdir", p, r.fs.Mkdir(bp, perm))
}

// MkdirAll creates p and any missing parents.
func (r *Root) MkdirAll(p string, perm os.FileMode) error {
	clean := path.Clean("/" + p)
	if clean == "/" {
		return nil
	}
	if fi, err := r.Stat(clean); err == nil {
		if fi.IsDir() {
			return nil
		}
		return newError("mkdir", p, ErrorNotDirectory)
	}
	if err := r.MkdirAll(path.Dir(clean), perm); err != nil {
		return err
	}
	err := r.Mkdir(clean, perm)
	if CodeOf(err) == ErrorExist {
		return nil
	}
	return err
}

// Unlink removes a non-directory entry.
func (r *Root) Unlink(p string) error {
	fi, err := r.Lstat(p)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return newError("unlink", p, ErrorIsDirectory)
	}
	bp, err := r.backing(p)
	if err != nil {
		return err
	}
	return wrap("unlink", p, r.fs.Remove(bp))
}

// RemoveDir removes an empty directory.
func (r *Root) RemoveDir(p string) error {
	if path.Clean("/"+p) == "/" {
		return newError("rmdir", p, ErrorBusy)
	}
	fi, err := r.Lstat(p)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return newError("rmdir", p, ErrorNotDirectory)
	}
	entries, err := r.ReadDir(p)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return newError("rmdir", p, ErrorNotEmpty)
	}
	bp, err := r.backing(p)
	if err != nil {
		return err
	}
	return wrap("rmdir", p, r.fs.Remove(bp))
}

// Rename moves oldp to newp within the root.
func (r *Root) Rename(oldp, newp string) error {
	if path.Clean("/"+oldp) == "/" || path.Clean("/"+newp) == "/" {
		return newError("rename", oldp, ErrorBusy)
	}
	ob, err := r.backing(oldp)
	if err != nil {
		return err
	}
	nb, err := r.backing(newp)
	if err != nil {
		return err
	}
	src, err := r.fs.Stat(ob)
	if err != nil {
		return wrap("rename", oldp, err)
	}
	if dst, err := r.fs.Stat(nb); err == nil {
		switch {
		case src.IsDir() && !dst.IsDir():
			return newError("rename", newp, ErrorNotDirectory)
		case !src.IsDir() && dst.IsDir():
			return newError("rename", newp, ErrorIsDirectory)
		case !dst.IsDir():
			if err := r.fs.Remove(nb); err != nil {
				return wrap("rename", newp, err)
			}
		}
	}
	return wrap("rename", oldp, r.fs.Rename(ob, nb))
}

// ReadDir lists the directory at p sorted by name.
func (r *Root) ReadDir(p string) ([]fs.FileInfo, error) {
	bp, err := r.backing(p)
	if err != nil {
		return nil, err
	}
	fi, err := r.fs.Stat(bp)
	if err != nil {
		return nil, wrap("readdir", p, err)
	}
	if !fi.IsDir() {
		return nil, newError("readdir", p, ErrorNotDirectory)
	}
	entries, err := r.fs.ReadDir(bp)
	if err != nil {
		return nil, wrap("readdir", p, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

// WriteFile seeds a file, creating parent directories. It bypasses the
// read-only flag so fixtures can be installed before a root is locked.
func (r *Root) WriteFile(p string, data []byte) error {
	clean := path.Clean("/" + p)
	saved, savedRO := r.fs, r.readOnly
	r.fs, r.readOnly = r.rw, false
	defer func() { r.fs, r.readOnly = saved, savedRO }()

	if err := r.MkdirAll(path.Dir(clean), 0o755); err != nil {
		return err
	}
	f, err := r.OpenFile(clean, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadFile returns the contents of the file at p.
func (r *Root) ReadFile(p string) ([]byte, error) {
	f, err := r.OpenFile(p, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := r.Stat(p)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, fi.Size())
	n, err := f.ReadAt(buf, 0)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
