package preview1

import (
	"os"

	"github.com/wippyai/wasi-host/fdtable"
	"github.com/wippyai/wasi-host/fsys"
)

// dirOf returns the directory behind fd along with its entry.
func dirOf(c *Call, fd uint32, right fdtable.Rights) (*fdtable.Entry, *fdtable.Dir, Outcome, bool) {
	e, out, ok := lookup(c, fd)
	if !ok {
		return nil, nil, out, false
	}
	d, isDir := e.Dir()
	if !isDir {
		return nil, nil, Fail(ErrnoNotdir), false
	}
	if out, ok := requireRight(e, right); !ok {
		return nil, nil, out, false
	}
	return e, d, Ok, true
}

// resolvePath reads a guest path and resolves it against d.
func resolvePath(c *Call, d *fdtable.Dir, ptr, n uint32) (string, Outcome, bool) {
	rel, err := c.Mem.ReadString(ptr, n)
	if err != nil {
		return "", FailErr(err), false
	}
	p, err := fsys.Resolve(d.Path, rel)
	if err != nil {
		return "", FailErr(err), false
	}
	return p, Ok, true
}

func pathCreateDirectory(c *Call) Outcome {
	_, d, out, ok := dirOf(c, c.u32(0), fdtable.RightPathCreateDirectory)
	if !ok {
		return out
	}
	p, out, ok := resolvePath(c, d, c.u32(1), c.u32(2))
	if !ok {
		return out
	}
	return FailErr(d.Root.Mkdir(p, 0o755))
}

func pathRemoveDirectory(c *Call) Outcome {
	_, d, out, ok := dirOf(c, c.u32(0), fdtable.RightPathRemoveDirectory)
	if !ok {
		return out
	}
	p, out, ok := resolvePath(c, d, c.u32(1), c.u32(2))
	if !ok {
		return out
	}
	return FailErr(d.Root.RemoveDir(p))
}

func pathUnlinkFile(c *Call) Outcome {
	_, d, out, ok := dirOf(c, c.u32(0), fdtable.RightPathUnlinkFile)
	if !ok {
		return out
	}
	p, out, ok := resolvePath(c, d, c.u32(1), c.u32(2))
	if !ok {
		return out
	}
	return FailErr(d.Root.Unlink(p))
}

func pathFilestatGet(c *Call) Outcome {
	_, d, out, ok := dirOf(c, c.u32(0), fdtable.RightPathFilestatGet)
	if !ok {
		return out
	}
	flags := c.u32(1)
	p, out, ok := resolvePath(c, d, c.u32(2), c.u32(3))
	if !ok {
		return out
	}
	buf := c.u32(4)
	if err := c.Mem.Check(buf, sizeFilestat); err != nil {
		return FailErr(err)
	}

	stat := d.Root.Lstat
	if flags&LookupSymlinkFollow != 0 {
		stat = d.Root.Stat
	}
	fi, err := stat(p)
	if err != nil {
		return FailErr(err)
	}
	return FailErr(c.Mem.Write(buf, statOf(fi)))
}

func pathRename(c *Call) Outcome {
	_, from, out, ok := dirOf(c, c.u32(0), fdtable.RightPathRenameSource)
	if !ok {
		return out
	}
	_, to, out, ok := dirOf(c, c.u32(3), fdtable.RightPathRenameTarget)
	if !ok {
		return out
	}
	if from.Root != to.Root {
		return Fail(ErrnoXdev)
	}
	oldp, out, ok := resolvePath(c, from, c.u32(1), c.u32(2))
	if !ok {
		return out
	}
	newp, out, ok := resolvePath(c, to, c.u32(4), c.u32(5))
	if !ok {
		return out
	}
	return FailErr(from.Root.Rename(oldp, newp))
}

const (
	readRights  = fdtable.RightFdRead | fdtable.RightFdReaddir
	writeRights = fdtable.RightFdWrite | fdtable.RightFdAllocate | fdtable.RightFdFilestatSetSize
)

func pathOpen(c *Call) Outcome {
	dirfd := c.u32(0)
	pathPtr, pathLen := c.u32(2), c.u32(3)
	oflags := uint16(c.u32(4))
	base, inheriting := fdtable.Rights(c.u64(5)), fdtable.Rights(c.u64(6))
	fdflags := fdtable.Flags(c.u32(7))
	resultPtr := c.u32(8)

	dirEntry, d, out, ok := dirOf(c, dirfd, fdtable.RightPathOpen)
	if !ok {
		return out
	}
	p, out, ok := resolvePath(c, d, pathPtr, pathLen)
	if !ok {
		return out
	}
	if err := c.Mem.Check(resultPtr, 4); err != nil {
		return FailErr(err)
	}
	if oflags&OflagCreat != 0 && dirEntry.Rights&fdtable.RightPathCreateFile == 0 {
		return Fail(ErrnoNotcapable)
	}

	// rights of the new descriptor never exceed what the directory passes down
	base &= dirEntry.Inheriting
	inheriting &= dirEntry.Inheriting

	fi, statErr := d.Root.Stat(p)
	isDir := statErr == nil && fi.IsDir()

	if oflags&OflagDirectory != 0 {
		if statErr != nil {
			return FailErr(statErr)
		}
		if !isDir {
			return Fail(ErrnoNotdir)
		}
	}

	table := c.State.Table
	if isDir {
		if oflags&(OflagCreat|OflagExcl) == OflagCreat|OflagExcl {
			return Fail(ErrnoExist)
		}
		if oflags&OflagTrunc != 0 || base&fdtable.RightFdWrite != 0 {
			return Fail(ErrnoIsdir)
		}
		fd, err := table.Open(fdtable.KindDirectory, &fdtable.Dir{Root: d.Root, Path: p},
			fdtable.WithRights(base&fdtable.RightsDir, inheriting),
			fdtable.WithFlags(fdflags))
		if err != nil {
			return FailErr(err)
		}
		return FailErr(c.Mem.WriteU32(resultPtr, uint32(fd)))
	}

	flag := os.O_RDONLY
	wantWrite := base&writeRights != 0 || oflags&OflagTrunc != 0
	wantRead := base&readRights != 0
	switch {
	case wantWrite && wantRead:
		flag = os.O_RDWR
	case wantWrite:
		flag = os.O_WRONLY
	}
	if oflags&OflagCreat != 0 {
		flag |= os.O_CREATE
	}
	if oflags&OflagExcl != 0 {
		flag |= os.O_EXCL
	}
	if oflags&OflagTrunc != 0 {
		flag |= os.O_TRUNC
	}
	if fdflags&(fdtable.FlagDsync|fdtable.FlagRsync|fdtable.FlagSync) != 0 {
		return Fail(ErrnoNotsup)
	}

	f, err := d.Root.OpenFile(p, flag, 0o644)
	if err != nil {
		return FailErr(err)
	}
	if fdflags&fdtable.FlagAppend != 0 {
		f.SetAppend(true)
	}

	fd, err := table.Open(fdtable.KindRegularFile, f,
		fdtable.WithRights(base&fdtable.RightsFile, inheriting&fdtable.RightsFile),
		fdtable.WithFlags(fdflags))
	if err != nil {
		_ = f.Close()
		return FailErr(err)
	}
	return FailErr(c.Mem.WriteU32(resultPtr, uint32(fd)))
}
