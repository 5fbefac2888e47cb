package fsys

import (
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/blang/vfs"
)

// File is an open regular file inside a Root.
type File struct {
	f    vfs.File
	root *Root
	path string
	flag int
}

// Path returns the virtual path the file was opened with.
func (f *File) Path() string {
	return f.path
}

// Root returns the root the file belongs to.
func (f *File) Root() *Root {
	return f.root
}

// Readable reports whether the file was opened for reading.
func (f *File) Readable() bool {
	return f.flag&(os.O_WRONLY|os.O_RDWR) != os.O_WRONLY
}

// Writable reports whether the file was opened for writing.
func (f *File) Writable() bool {
	return f.flag&(os.O_WRONLY|os.O_RDWR) != 0
}

// Append reports whether writes always go to the end of the file.
func (f *File) Append() bool {
	return f.flag&os.O_APPEND != 0
}

// SetAppend toggles append mode.
func (f *File) SetAppend(on bool) {
	if on {
		f.flag |= os.O_APPEND
	} else {
		f.flag &^= os.O_APPEND
	}
}

// Read reads from the current offset. End of file yields (0, nil).
func (f *File) Read(p []byte) (int, error) {
	n, err := f.f.Read(p)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, wrap("read", f.path, err)
}

// Write writes at the current offset, or at the end in append mode.
func (f *File) Write(p []byte) (int, error) {
	if f.Append() {
		if _, err := f.f.Seek(0, io.SeekEnd); err != nil {
			return 0, wrap("write", f.path, err)
		}
	}
	n, err := f.f.Write(p)
	return n, wrap("write", f.path, err)
}

// ReadAt reads at off without moving the file offset.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	cur, err := f.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, wrap("pread", f.path, err)
	}
	defer f.f.Seek(cur, io.SeekStart)

	if _, err := f.f.Seek(off, io.SeekStart); err != nil {
		return 0, wrap("pread", f.path, err)
	}
	var n int
	for n < len(p) {
		m, err := f.f.Read(p[n:])
		n += m
		if errors.Is(err, io.EOF) || m == 0 {
			break
		}
		if err != nil {
			return n, wrap("pread", f.path, err)
		}
	}
	return n, nil
}

// WriteAt writes at off without moving the file offset.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	cur, err := f.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, wrap("pwrite", f.path, err)
	}
	defer f.f.Seek(cur, io.SeekStart)

	if _, err := f.f.Seek(off, io.SeekStart); err != nil {
		return 0, wrap("pwrite", f.path, err)
	}
	n, err := f.f.Write(p)
	return n, wrap("pwrite", f.path, err)
}

// Seek moves the file offset.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	pos, err := f.f.Seek(offset, whence)
	return pos, wrap("seek", f.path, err)
}

// Tell returns the current file offset.
func (f *File) Tell() (int64, error) {
	return f.Seek(0, io.SeekCurrent)
}

// Truncate changes the file size.
func (f *File) Truncate(size int64) error {
	if f.root.readOnly {
		return newError("truncate", f.path, ErrorReadOnly)
	}
	return wrap("truncate", f.path, f.f.Truncate(size))
}

// Sync flushes the file to its backing store.
func (f *File) Sync() error {
	return wrap("sync", f.path, f.f.Sync())
}

// Stat returns current file info.
func (f *File) Stat() (fs.FileInfo, error) {
	return f.root.Stat(f.path)
}

// Close closes the underlying file.
func (f *File) Close() error {
	return wrap("close", f.path, f.f.Close())
}
