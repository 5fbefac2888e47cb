package fdtable

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasi-host/errors"
	"github.com/wippyai/wasi-host/fsys"
)

func TestNewPopulatesStdio(t *testing.T) {
	table := New(Stdio{})
	assert.Equal(t, []Descriptor{0, 1, 2}, table.Descriptors())

	e, err := table.Get(Stdout)
	require.NoError(t, err)
	assert.Equal(t, KindStdout, e.Kind)

	_, ok := e.Sink()
	assert.True(t, ok)
}

func TestWriteOrdering(t *testing.T) {
	out := NewCaptureSink("stdout", 0)
	table := New(Stdio{Stdout: out})

	chunks := []string{"a", "", "bc", "def\n", "g"}
	for _, c := range chunks {
		n, err := table.Write(Stdout, []byte(c))
		require.NoError(t, err)
		assert.Equal(t, len(c), n)
	}
	assert.Equal(t, "abcdef\ng", string(out.Bytes()))
}

func TestInvalidDescriptor(t *testing.T) {
	table := New(Stdio{})

	_, err := table.Read(context.Background(), 5, 10)
	assert.True(t, errors.IsKind(err, errors.KindInvalidDescriptor))

	_, err = table.Write(5, []byte("x"))
	assert.True(t, errors.IsKind(err, errors.KindInvalidDescriptor))

	assert.True(t, errors.IsKind(table.Close(5), errors.KindInvalidDescriptor))
}

func TestWrongDirection(t *testing.T) {
	table := New(Stdio{})

	_, err := table.Read(context.Background(), Stdout, 4)
	assert.True(t, errors.IsKind(err, errors.KindInvalidDescriptor))

	_, err = table.Write(Stdin, []byte("x"))
	assert.True(t, errors.IsKind(err, errors.KindInvalidDescriptor))
}

func TestMonotonicAllocation(t *testing.T) {
	table := New(Stdio{})
	root := fsys.Memory()

	a, err := table.Open(KindPreopenDir, &Dir{Root: root, Path: "/"}, WithName("/a"))
	require.NoError(t, err)
	assert.Equal(t, Descriptor(3), a)

	require.NoError(t, table.Close(a))
	_, err = table.Get(a)
	assert.True(t, errors.IsKind(err, errors.KindInvalidDescriptor))

	b, err := table.Open(KindDirectory, &Dir{Root: root, Path: "/"})
	require.NoError(t, err)
	assert.Equal(t, Descriptor(4), b, "closed descriptor number was reused")

	require.NoError(t, table.Close(Stdin))
	c, err := table.Open(KindDirectory, &Dir{Root: root, Path: "/"})
	require.NoError(t, err)
	assert.Equal(t, Descriptor(5), c)
}

func TestOpenRejectsMismatchedResource(t *testing.T) {
	table := New(Stdio{})
	_, err := table.Open(KindPreopenDir, "not a dir")
	assert.True(t, errors.IsKind(err, errors.KindInvalidInput))

	_, err = table.Open(KindDirectory, &Dir{})
	assert.True(t, errors.IsKind(err, errors.KindInvalidInput))
}

func TestCaptureSinkCapacity(t *testing.T) {
	sink := NewCaptureSink("stdout", 5)
	table := New(Stdio{Stdout: sink})

	_, err := table.Write(Stdout, []byte("abc"))
	require.NoError(t, err)

	_, err = table.Write(Stdout, []byte("def"))
	assert.True(t, errors.IsKind(err, errors.KindResourceExhausted))
	assert.Equal(t, "abc", string(sink.Bytes()), "failed write must not be partial")

	_, err = table.Write(Stdout, []byte("de"))
	require.NoError(t, err)
	assert.Equal(t, 5, sink.Len())
}

func TestWriterSinkRedirect(t *testing.T) {
	var buf bytes.Buffer
	table := New(Stdio{Stderr: NewWriterSink(&buf)})

	_, err := table.Write(Stderr, []byte("oops"))
	require.NoError(t, err)
	assert.Equal(t, "oops", buf.String())
}

func TestBytesSource(t *testing.T) {
	table := New(Stdio{Stdin: NewBytesSource([]byte("hello"))})
	ctx := context.Background()

	got, err := table.Read(ctx, Stdin, 3)
	require.NoError(t, err)
	assert.Equal(t, "hel", string(got))

	got, err = table.Read(ctx, Stdin, 10)
	require.NoError(t, err)
	assert.Equal(t, "lo", string(got))

	got, err = table.Read(ctx, Stdin, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReaderSourceTimeoutKeepsPendingData(t *testing.T) {
	pr, pw := io.Pipe()
	src := NewReaderSource(pr)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := src.Read(ctx, 16)
	assert.True(t, errors.IsKind(err, errors.KindTimeout))

	go func() {
		_, _ = pw.Write([]byte("late"))
		_ = pw.Close()
	}()

	got, err := src.Read(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "la", string(got))

	got, err = src.Read(context.Background(), 16)
	require.NoError(t, err)
	assert.Equal(t, "te", string(got))

	got, err = src.Read(context.Background(), 16)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// emptyThenData returns (0, nil) once before yielding its payload.
type emptyThenData struct {
	data  []byte
	empty bool
}

func (r *emptyThenData) Read(p []byte) (int, error) {
	if !r.empty {
		r.empty = true
		return 0, nil
	}
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestReaderSourceEmptyReadIsNotEOF(t *testing.T) {
	src := NewReaderSource(&emptyThenData{data: []byte("hello")})

	got, err := src.Read(context.Background(), 16)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	got, err = src.Read(context.Background(), 16)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReaderSourceCancel(t *testing.T) {
	pr, _ := io.Pipe()
	src := NewReaderSource(pr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.Read(ctx, 4)
	assert.True(t, errors.IsKind(err, errors.KindClosed))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegularFileReadWrite(t *testing.T) {
	root := fsys.Memory()
	require.NoError(t, root.WriteFile("/f.txt", []byte("0123456789")))
	f, err := root.OpenFile("/f.txt", os.O_RDWR, 0)
	require.NoError(t, err)

	table := New(Stdio{})
	fd, err := table.Open(KindRegularFile, f)
	require.NoError(t, err)

	got, err := table.Read(context.Background(), fd, 4)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(got))

	_, err = table.Write(fd, []byte("ab"))
	require.NoError(t, err)

	require.NoError(t, table.Close(fd))
	data, err := root.ReadFile("/f.txt")
	require.NoError(t, err)
	assert.Equal(t, "0123ab6789", string(data))
}

func TestReadOnlyFileRejectsWrite(t *testing.T) {
	root := fsys.Memory()
	require.NoError(t, root.WriteFile("/r.txt", []byte("x")))
	f, err := root.OpenFile("/r.txt", os.O_RDONLY, 0)
	require.NoError(t, err)

	table := New(Stdio{})
	fd, err := table.Open(KindRegularFile, f)
	require.NoError(t, err)

	_, err = table.Write(fd, []byte("y"))
	assert.True(t, errors.IsKind(err, errors.KindInvalidDescriptor))
}

func TestObserversAndCloseAll(t *testing.T) {
	table := New(Stdio{})
	var events []Event
	table.Subscribe(ObserverFunc(func(e Event) { events = append(events, e) }))

	root := fsys.Memory()
	fd, err := table.Open(KindPreopenDir, &Dir{Root: root, Path: "/"}, WithName("/sandbox"))
	require.NoError(t, err)

	pre := table.Preopens()
	require.Len(t, pre, 1)
	assert.Equal(t, "/sandbox", pre[0].Name)

	require.NoError(t, table.CloseAll())
	assert.Equal(t, 0, table.Len())

	require.Len(t, events, 5)
	assert.Equal(t, EventOpened, events[0].Type)
	assert.Equal(t, fd, events[0].FD)
	assert.Equal(t, EventClosed, events[4].Type)

	_, err = table.Open(KindDirectory, &Dir{Root: root, Path: "/"})
	assert.True(t, errors.IsKind(err, errors.KindClosed))
}
