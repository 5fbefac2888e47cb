package preview1

import (
	"context"
	"encoding/binary"
	"io"
	"io/fs"
	"path"

	wasys "github.com/tetratelabs/wazero/sys"

	"github.com/wippyai/wasi-host/fdtable"
	"github.com/wippyai/wasi-host/fsys"
	"github.com/wippyai/wasi-host/memory"
)

func lookup(c *Call, fd uint32) (*fdtable.Entry, Outcome, bool) {
	e, err := c.State.Table.Get(fdtable.Descriptor(fd))
	if err != nil {
		return nil, FailErr(err), false
	}
	return e, Ok, true
}

func requireRight(e *fdtable.Entry, r fdtable.Rights) (Outcome, bool) {
	if e.Rights&r == 0 {
		return Fail(ErrnoNotcapable), false
	}
	return Ok, true
}

// fileOf returns the regular file behind e, or the errno for other kinds.
func fileOf(e *fdtable.Entry) (*fsys.File, Outcome, bool) {
	if f, ok := e.File(); ok {
		return f, Ok, true
	}
	if e.Kind.IsDir() {
		return nil, Fail(ErrnoIsdir), false
	}
	return nil, Fail(ErrnoSpipe), false
}

func filetypeOf(e *fdtable.Entry) uint8 {
	switch e.Kind {
	case fdtable.KindStdin, fdtable.KindStdout, fdtable.KindStderr:
		return FiletypeCharacterDevice
	case fdtable.KindPreopenDir, fdtable.KindDirectory:
		return FiletypeDirectory
	case fdtable.KindRegularFile:
		return FiletypeRegularFile
	default:
		return FiletypeUnknown
	}
}

func filetypeOfMode(m fs.FileMode) uint8 {
	switch {
	case m.IsDir():
		return FiletypeDirectory
	case m&fs.ModeSymlink != 0:
		return FiletypeSymbolicLink
	case m.IsRegular():
		return FiletypeRegularFile
	case m&fs.ModeCharDevice != 0:
		return FiletypeCharacterDevice
	case m&fs.ModeDevice != 0:
		return FiletypeBlockDevice
	case m&fs.ModeSocket != 0:
		return FiletypeSocketStream
	default:
		return FiletypeUnknown
	}
}

func encodeFilestat(st wasys.Stat_t, filetype uint8) []byte {
	b := make([]byte, sizeFilestat)
	binary.LittleEndian.PutUint64(b[0:], st.Dev)
	binary.LittleEndian.PutUint64(b[8:], st.Ino)
	b[16] = filetype
	binary.LittleEndian.PutUint64(b[24:], st.Nlink)
	binary.LittleEndian.PutUint64(b[32:], uint64(st.Size))
	binary.LittleEndian.PutUint64(b[40:], uint64(st.Atim))
	binary.LittleEndian.PutUint64(b[48:], uint64(st.Mtim))
	binary.LittleEndian.PutUint64(b[56:], uint64(st.Ctim))
	return b
}

func statOf(fi fs.FileInfo) []byte {
	return encodeFilestat(wasys.NewStat_t(fi), filetypeOfMode(fi.Mode()))
}

func fdClose(c *Call) Outcome {
	return FailErr(c.State.Table.Close(fdtable.Descriptor(c.u32(0))))
}

func fdSync(c *Call) Outcome {
	e, out, ok := lookup(c, c.u32(0))
	if !ok {
		return out
	}
	if out, ok := requireRight(e, fdtable.RightFdSync); !ok {
		return out
	}
	if f, ok := e.File(); ok {
		return FailErr(f.Sync())
	}
	return Ok
}

func fdDatasync(c *Call) Outcome {
	e, out, ok := lookup(c, c.u32(0))
	if !ok {
		return out
	}
	if f, ok := e.File(); ok {
		return FailErr(f.Sync())
	}
	return Ok
}

func fdFdstatGet(c *Call) Outcome {
	e, out, ok := lookup(c, c.u32(0))
	if !ok {
		return out
	}
	b := make([]byte, sizeFdstat)
	b[0] = filetypeOf(e)
	binary.LittleEndian.PutUint16(b[2:], uint16(e.Flags))
	binary.LittleEndian.PutUint64(b[8:], uint64(e.Rights))
	binary.LittleEndian.PutUint64(b[16:], uint64(e.Inheriting))
	return FailErr(c.Mem.Write(c.u32(1), b))
}

func fdFdstatSetFlags(c *Call) Outcome {
	e, out, ok := lookup(c, c.u32(0))
	if !ok {
		return out
	}
	if out, ok := requireRight(e, fdtable.RightFdFdstatSetFlags); !ok {
		return out
	}
	flags := fdtable.Flags(c.u32(1))
	if flags&(fdtable.FlagDsync|fdtable.FlagRsync|fdtable.FlagSync) != 0 {
		return Fail(ErrnoNotsup)
	}
	if f, ok := e.File(); ok {
		f.SetAppend(flags&fdtable.FlagAppend != 0)
	}
	e.Flags = flags
	return Ok
}

func fdFilestatGet(c *Call) Outcome {
	e, out, ok := lookup(c, c.u32(0))
	if !ok {
		return out
	}
	buf := c.u32(1)
	if err := c.Mem.Check(buf, sizeFilestat); err != nil {
		return FailErr(err)
	}

	var stat []byte
	switch {
	case e.Kind.IsDir():
		d, _ := e.Dir()
		fi, err := d.Root.Stat(d.Path)
		if err != nil {
			return FailErr(err)
		}
		stat = statOf(fi)
	case e.Kind == fdtable.KindRegularFile:
		f, _ := e.File()
		fi, err := f.Stat()
		if err != nil {
			return FailErr(err)
		}
		stat = statOf(fi)
	default:
		stat = encodeFilestat(wasys.Stat_t{Nlink: 1}, FiletypeCharacterDevice)
	}
	return FailErr(c.Mem.Write(buf, stat))
}

func fdFilestatSetSize(c *Call) Outcome {
	e, out, ok := lookup(c, c.u32(0))
	if !ok {
		return out
	}
	f, out, ok := fileOf(e)
	if !ok {
		return out
	}
	if out, ok := requireRight(e, fdtable.RightFdFilestatSetSize); !ok {
		return out
	}
	size := c.i64(1)
	if size < 0 {
		return Fail(ErrnoInval)
	}
	return FailErr(f.Truncate(size))
}

func fdPrestatGet(c *Call) Outcome {
	e, out, ok := lookup(c, c.u32(0))
	if !ok {
		return out
	}
	if e.Kind != fdtable.KindPreopenDir {
		return Fail(ErrnoBadf)
	}
	b := make([]byte, sizePrestat)
	b[0] = PreopentypeDir
	binary.LittleEndian.PutUint32(b[4:], uint32(len(e.Name)))
	return FailErr(c.Mem.Write(c.u32(1), b))
}

func fdPrestatDirName(c *Call) Outcome {
	e, out, ok := lookup(c, c.u32(0))
	if !ok {
		return out
	}
	if e.Kind != fdtable.KindPreopenDir {
		return Fail(ErrnoBadf)
	}
	ptr, n := c.u32(1), c.u32(2)
	if uint32(len(e.Name)) > n {
		return Fail(ErrnoNametoolong)
	}
	return FailErr(c.Mem.Write(ptr, []byte(e.Name)))
}

// readIovecs decodes and validates every destination buffer of an iovec array.
func readIovecs(c *Call, ptr, count uint32) ([]memory.Iovec, Outcome, bool) {
	iovs, err := c.Mem.ReadIovecs(ptr, count)
	if err != nil {
		return nil, FailErr(err), false
	}
	for _, iov := range iovs {
		if err := c.Mem.Check(iov.Ptr, iov.Len); err != nil {
			return nil, FailErr(err), false
		}
	}
	return iovs, Ok, true
}

func (c *Call) syscallContext() (context.Context, context.CancelFunc) {
	if c.State.SyscallTimeout > 0 {
		return context.WithTimeout(c.Ctx, c.State.SyscallTimeout)
	}
	return context.WithCancel(c.Ctx)
}

func fdRead(c *Call) Outcome {
	fd, iovsPtr, iovsLen, nreadPtr := c.u32(0), c.u32(1), c.u32(2), c.u32(3)
	if _, out, ok := lookup(c, fd); !ok {
		return out
	}
	iovs, out, ok := readIovecs(c, iovsPtr, iovsLen)
	if !ok {
		return out
	}
	if err := c.Mem.Check(nreadPtr, 4); err != nil {
		return FailErr(err)
	}

	ctx, cancel := c.syscallContext()
	defer cancel()
	data, err := c.State.Table.Read(ctx, fdtable.Descriptor(fd), int(memory.Capacity(iovs)))
	if err != nil {
		return FailErr(err)
	}
	n, err := c.Mem.Scatter(iovs, data)
	if err != nil {
		return FailErr(err)
	}
	return FailErr(c.Mem.WriteU32(nreadPtr, n))
}

func fdWrite(c *Call) Outcome {
	fd, iovsPtr, iovsLen, nwrittenPtr := c.u32(0), c.u32(1), c.u32(2), c.u32(3)
	if _, out, ok := lookup(c, fd); !ok {
		return out
	}
	iovs, out, ok := readIovecs(c, iovsPtr, iovsLen)
	if !ok {
		return out
	}
	if err := c.Mem.Check(nwrittenPtr, 4); err != nil {
		return FailErr(err)
	}
	data, err := c.Mem.Gather(iovs)
	if err != nil {
		return FailErr(err)
	}
	n, err := c.State.Table.Write(fdtable.Descriptor(fd), data)
	if err != nil {
		return FailErr(err)
	}
	return FailErr(c.Mem.WriteU32(nwrittenPtr, uint32(n)))
}

func fdPread(c *Call) Outcome {
	fd, iovsPtr, iovsLen, offset, nreadPtr := c.u32(0), c.u32(1), c.u32(2), c.i64(3), c.u32(4)
	e, out, ok := lookup(c, fd)
	if !ok {
		return out
	}
	f, out, ok := fileOf(e)
	if !ok {
		return out
	}
	if out, ok := requireRight(e, fdtable.RightFdRead); !ok {
		return out
	}
	if !f.Readable() {
		return Fail(ErrnoBadf)
	}
	if offset < 0 {
		return Fail(ErrnoInval)
	}
	iovs, out, ok := readIovecs(c, iovsPtr, iovsLen)
	if !ok {
		return out
	}
	if err := c.Mem.Check(nreadPtr, 4); err != nil {
		return FailErr(err)
	}

	buf := make([]byte, min(int(memory.Capacity(iovs)), fdtable.MaxRead))
	n, err := f.ReadAt(buf, offset)
	if err != nil {
		return FailErr(err)
	}
	placed, err := c.Mem.Scatter(iovs, buf[:n])
	if err != nil {
		return FailErr(err)
	}
	return FailErr(c.Mem.WriteU32(nreadPtr, placed))
}

func fdPwrite(c *Call) Outcome {
	fd, iovsPtr, iovsLen, offset, nwrittenPtr := c.u32(0), c.u32(1), c.u32(2), c.i64(3), c.u32(4)
	e, out, ok := lookup(c, fd)
	if !ok {
		return out
	}
	f, out, ok := fileOf(e)
	if !ok {
		return out
	}
	if out, ok := requireRight(e, fdtable.RightFdWrite); !ok {
		return out
	}
	if !f.Writable() {
		return Fail(ErrnoBadf)
	}
	if offset < 0 {
		return Fail(ErrnoInval)
	}
	iovs, out, ok := readIovecs(c, iovsPtr, iovsLen)
	if !ok {
		return out
	}
	if err := c.Mem.Check(nwrittenPtr, 4); err != nil {
		return FailErr(err)
	}
	data, err := c.Mem.Gather(iovs)
	if err != nil {
		return FailErr(err)
	}
	n, err := f.WriteAt(data, offset)
	if err != nil {
		return FailErr(err)
	}
	return FailErr(c.Mem.WriteU32(nwrittenPtr, uint32(n)))
}

func fdSeek(c *Call) Outcome {
	fd, offset, whence, resultPtr := c.u32(0), c.i64(1), c.u32(2), c.u32(3)
	e, out, ok := lookup(c, fd)
	if !ok {
		return out
	}
	f, out, ok := fileOf(e)
	if !ok {
		return out
	}
	need := fdtable.RightFdSeek
	if offset == 0 && whence == uint32(WhenceCur) {
		need |= fdtable.RightFdTell
	}
	if e.Rights&need == 0 {
		return Fail(ErrnoNotcapable)
	}

	if whence > uint32(WhenceEnd) {
		return Fail(ErrnoInval)
	}
	var w int
	switch uint8(whence) {
	case WhenceSet:
		w = io.SeekStart
	case WhenceCur:
		w = io.SeekCurrent
	case WhenceEnd:
		w = io.SeekEnd
	}
	if err := c.Mem.Check(resultPtr, 8); err != nil {
		return FailErr(err)
	}
	pos, err := f.Seek(offset, w)
	if err != nil {
		return FailErr(err)
	}
	return FailErr(c.Mem.WriteU64(resultPtr, uint64(pos)))
}

func fdTell(c *Call) Outcome {
	e, out, ok := lookup(c, c.u32(0))
	if !ok {
		return out
	}
	f, out, ok := fileOf(e)
	if !ok {
		return out
	}
	if out, ok := requireRight(e, fdtable.RightFdTell); !ok {
		return out
	}
	resultPtr := c.u32(1)
	if err := c.Mem.Check(resultPtr, 8); err != nil {
		return FailErr(err)
	}
	pos, err := f.Tell()
	if err != nil {
		return FailErr(err)
	}
	return FailErr(c.Mem.WriteU64(resultPtr, uint64(pos)))
}

// dirent is one fd_readdir record before encoding.
type dirent struct {
	name     string
	ino      uint64
	filetype uint8
}

func direntsOf(d *fdtable.Dir) ([]dirent, error) {
	self, err := d.Root.Stat(d.Path)
	if err != nil {
		return nil, err
	}
	parent := self
	if d.Path != "/" {
		if fi, err := d.Root.Stat(path.Dir(d.Path)); err == nil {
			parent = fi
		}
	}
	list, err := d.Root.ReadDir(d.Path)
	if err != nil {
		return nil, err
	}

	out := make([]dirent, 0, len(list)+2)
	out = append(out,
		dirent{name: ".", ino: wasys.NewStat_t(self).Ino, filetype: FiletypeDirectory},
		dirent{name: "..", ino: wasys.NewStat_t(parent).Ino, filetype: FiletypeDirectory},
	)
	for _, fi := range list {
		out = append(out, dirent{
			name:     fi.Name(),
			ino:      wasys.NewStat_t(fi).Ino,
			filetype: filetypeOfMode(fi.Mode()),
		})
	}
	return out, nil
}

// fdReaddir fills the buffer with dirents starting at cookie. The cookie
// is the index of the next entry. A full buffer tells the guest to call again.
func fdReaddir(c *Call) Outcome {
	fd, buf, bufLen, cookie, usedPtr := c.u32(0), c.u32(1), c.u32(2), c.u64(3), c.u32(4)
	e, out, ok := lookup(c, fd)
	if !ok {
		return out
	}
	d, isDir := e.Dir()
	if !isDir {
		return Fail(ErrnoNotdir)
	}
	if out, ok := requireRight(e, fdtable.RightFdReaddir); !ok {
		return out
	}
	if err := c.Mem.Check(buf, bufLen); err != nil {
		return FailErr(err)
	}
	if err := c.Mem.Check(usedPtr, 4); err != nil {
		return FailErr(err)
	}

	entries, err := direntsOf(d)
	if err != nil {
		return FailErr(err)
	}
	if cookie > uint64(len(entries)) {
		return Fail(ErrnoInval)
	}

	var packed []byte
	for i := cookie; i < uint64(len(entries)) && uint32(len(packed)) < bufLen; i++ {
		ent := entries[i]
		hdr := make([]byte, sizeDirentHeader)
		binary.LittleEndian.PutUint64(hdr[0:], i+1)
		binary.LittleEndian.PutUint64(hdr[8:], ent.ino)
		binary.LittleEndian.PutUint32(hdr[16:], uint32(len(ent.name)))
		hdr[20] = ent.filetype
		packed = append(packed, hdr...)
		packed = append(packed, ent.name...)
	}
	if uint32(len(packed)) > bufLen {
		packed = packed[:bufLen]
	}
	if err := c.Mem.Write(buf, packed); err != nil {
		return FailErr(err)
	}
	return FailErr(c.Mem.WriteU32(usedPtr, uint32(len(packed))))
}
