package fdtable

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/wippyai/wasi-host/errors"
)

// Sink receives bytes written to an output descriptor.
// A Write either accepts all of p or none of it.
type Sink interface {
	Write(p []byte) (int, error)
}

// CaptureSink buffers output in memory with an optional capacity.
type CaptureSink struct {
	name  string
	buf   bytes.Buffer
	limit int
	mu    sync.Mutex
}

// NewCaptureSink returns a sink that accepts up to limit bytes.
// A limit of zero or less means unbounded.
func NewCaptureSink(name string, limit int) *CaptureSink {
	return &CaptureSink{name: name, limit: limit}
}

// Write appends p. Writes that would exceed the capacity fail with
// ResourceExhausted and leave the buffer unchanged.
func (s *CaptureSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limit > 0 && s.buf.Len()+len(p) > s.limit {
		return 0, errors.ResourceExhausted(s.name, s.limit)
	}
	return s.buf.Write(p)
}

// Bytes returns a copy of the captured data.
func (s *CaptureSink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.buf.Bytes())
}

// Len returns the number of captured bytes.
func (s *CaptureSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

// Limit returns the configured capacity, or zero when unbounded.
func (s *CaptureSink) Limit() int {
	return s.limit
}

var _ io.Writer = (*CaptureSink)(nil)

// WriterSink forwards output to an io.Writer.
type WriterSink struct {
	w io.Writer
}

// NewWriterSink redirects output to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if err != nil {
		return n, errors.Wrap(errors.PhaseSyscall, errors.KindUnavailable, err, "redirected output failed")
	}
	return n, nil
}

// Source produces bytes for an input descriptor.
// Read returns an empty slice at end of input.
type Source interface {
	Read(ctx context.Context, max int) ([]byte, error)
}

// BytesSource serves a fixed byte slice.
type BytesSource struct {
	data []byte
}

// NewBytesSource returns a source over a copy of data.
func NewBytesSource(data []byte) *BytesSource {
	return &BytesSource{data: bytes.Clone(data)}
}

func (s *BytesSource) Read(_ context.Context, max int) ([]byte, error) {
	n := min(max, len(s.data))
	out := s.data[:n:n]
	s.data = s.data[n:]
	return out, nil
}

// Remaining returns the number of unread bytes.
func (s *BytesSource) Remaining() int {
	return len(s.data)
}

type readResult struct {
	err  error
	data []byte
}

// ReaderSource adapts a blocking io.Reader. A read that outlives its
// context is left pending and its data is served by the next Read.
type ReaderSource struct {
	r        io.Reader
	pending  chan readResult
	leftover []byte
	err      error
	chunk    int
}

// NewReaderSource wraps r.
func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{r: r, chunk: 32 * 1024}
}

func (s *ReaderSource) Read(ctx context.Context, max int) ([]byte, error) {
	if max <= 0 {
		return []byte{}, nil
	}
	if len(s.leftover) > 0 {
		return s.take(max), nil
	}
	if s.err != nil {
		return s.finish()
	}

	for {
		if s.pending == nil {
			s.pending = make(chan readResult, 1)
			ch := s.pending
			size := s.chunk
			go func() {
				buf := make([]byte, size)
				n, err := s.r.Read(buf)
				ch <- readResult{data: buf[:n], err: err}
			}()
		}

		select {
		case res := <-s.pending:
			s.pending = nil
			s.leftover = res.data
			if res.err != nil {
				s.err = res.err
			}
			if len(s.leftover) > 0 {
				return s.take(max), nil
			}
			if s.err != nil {
				return s.finish()
			}
			// An empty read without error is not EOF; read again.
		case <-ctx.Done():
			return nil, contextError(ctx)
		}
	}
}

func (s *ReaderSource) take(max int) []byte {
	n := min(max, len(s.leftover))
	out := s.leftover[:n:n]
	s.leftover = s.leftover[n:]
	return out
}

func (s *ReaderSource) finish() ([]byte, error) {
	if s.err == io.EOF {
		return []byte{}, nil
	}
	return nil, errors.Wrap(errors.PhaseSyscall, errors.KindUnavailable, s.err, "stdin read failed")
}

func contextError(ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errors.Timeout(errors.PhaseSyscall, ctx.Err())
	}
	return errors.Wrap(errors.PhaseSyscall, errors.KindClosed, ctx.Err(), "read cancelled")
}
