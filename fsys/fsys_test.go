package fsys

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		dir, rel string
		want     string
		code     ErrorCode
		fail     bool
	}{
		{dir: "/", rel: "a.txt", want: "/a.txt"},
		{dir: "/", rel: "sub/../b.txt", want: "/b.txt"},
		{dir: "/sub", rel: "./x/y", want: "/sub/x/y"},
		{dir: "/", rel: "", want: "/"},
		{dir: "/", rel: "../etc/passwd", fail: true, code: ErrorNotCapable},
		{dir: "/sub", rel: "../sibling", fail: true, code: ErrorNotCapable},
		{dir: "/", rel: "a/../../b", fail: true, code: ErrorNotCapable},
		{dir: "/", rel: "/abs", fail: true, code: ErrorNotCapable},
		{dir: "/", rel: "nul\x00byte", fail: true, code: ErrorInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			got, err := Resolve(tt.dir, tt.rel)
			if tt.fail {
				require.Error(t, err)
				assert.Equal(t, tt.code, CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemoryRootFiles(t *testing.T) {
	r := Memory()
	require.NoError(t, r.WriteFile("/data/in.txt", []byte("hello")))

	got, err := r.ReadFile("/data/in.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	f, err := r.OpenFile("/data/in.txt", os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 3)
	n, err := f.ReadAt(buf, 2)
	require.NoError(t, err)
	assert.Equal(t, "llo", string(buf[:n]))

	pos, err := f.Tell()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos, "ReadAt moved the offset")

	_, err = f.WriteAt([]byte("J"), 0)
	require.NoError(t, err)
	got, err = r.ReadFile("/data/in.txt")
	require.NoError(t, err)
	assert.Equal(t, "Jello", string(got))

	f.SetAppend(true)
	_, err = f.Write([]byte("!"))
	require.NoError(t, err)
	fi, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(6), fi.Size())
}

func TestMemoryRootDirectories(t *testing.T) {
	r := Memory()
	require.NoError(t, r.MkdirAll("/a/b", 0o755))
	require.NoError(t, r.WriteFile("/a/z.txt", nil))
	require.NoError(t, r.WriteFile("/a/m.txt", nil))

	err := r.Mkdir("/a/b", 0o755)
	assert.Equal(t, ErrorExist, CodeOf(err))

	entries, err := r.ReadDir("/a")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"b", "m.txt", "z.txt"}, names)

	assert.Equal(t, ErrorNotEmpty, CodeOf(r.RemoveDir("/a")))
	assert.Equal(t, ErrorNotDirectory, CodeOf(r.RemoveDir("/a/m.txt")))
	assert.Equal(t, ErrorIsDirectory, CodeOf(r.Unlink("/a/b")))
	require.NoError(t, r.RemoveDir("/a/b"))
	require.NoError(t, r.Unlink("/a/m.txt"))

	_, err = r.Stat("/a/m.txt")
	assert.Equal(t, ErrorNoEntry, CodeOf(err))

	require.NoError(t, r.Rename("/a/z.txt", "/a/y.txt"))
	_, err = r.Stat("/a/y.txt")
	require.NoError(t, err)
}

func TestReadOnlyRoot(t *testing.T) {
	r := Memory()
	require.NoError(t, r.WriteFile("/seed.txt", []byte("x")))
	r.MakeReadOnly()
	assert.True(t, r.ReadOnly())

	_, err := r.OpenFile("/new.txt", os.O_CREATE|os.O_WRONLY, 0o644)
	assert.Equal(t, ErrorReadOnly, CodeOf(err))
	assert.Equal(t, ErrorReadOnly, CodeOf(r.Mkdir("/d", 0o755)))

	got, err := r.ReadFile("/seed.txt")
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))
}

func TestHostRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "host.txt"), []byte("from host"), 0o644))

	r, err := Host(dir, false)
	require.NoError(t, err)
	assert.True(t, r.IsHost())

	got, err := r.ReadFile("/host.txt")
	require.NoError(t, err)
	assert.Equal(t, "from host", string(got))

	require.NoError(t, r.WriteFile("/out/result.txt", []byte("ok")))
	onDisk, err := os.ReadFile(filepath.Join(dir, "out", "result.txt"))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(onDisk))
}

func TestHostRootSymlinkEscape(t *testing.T) {
	outside := t.TempDir()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("s"), 0o644))
	if err := os.Symlink(outside, filepath.Join(dir, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	r, err := Host(dir, true)
	require.NoError(t, err)

	_, err = r.OpenFile("/link/secret", os.O_RDONLY, 0)
	assert.Equal(t, ErrorNotCapable, CodeOf(err))
}

func TestHostRootMissing(t *testing.T) {
	_, err := Host(filepath.Join(t.TempDir(), "nope"), false)
	assert.Equal(t, ErrorNoEntry, CodeOf(err))
}
