package fdtable

import (
	"context"
	"sort"
	"strconv"

	"github.com/davidmdm/x/xerr"

	"github.com/wippyai/wasi-host/errors"
	"github.com/wippyai/wasi-host/fsys"
)

// Dir is a directory resource: a location inside a root.
type Dir struct {
	Root *fsys.Root
	Path string
}

// Entry is one open descriptor.
type Entry struct {
	Resource   any
	Name       string
	FD         Descriptor
	Kind       Kind
	Flags      Flags
	Rights     Rights
	Inheriting Rights
}

// Sink returns the output sink behind stdout and stderr entries.
func (e *Entry) Sink() (Sink, bool) {
	s, ok := e.Resource.(Sink)
	return s, ok && (e.Kind == KindStdout || e.Kind == KindStderr)
}

// Source returns the input source behind a stdin entry.
func (e *Entry) Source() (Source, bool) {
	s, ok := e.Resource.(Source)
	return s, ok && e.Kind == KindStdin
}

// File returns the open file behind a regular file entry.
func (e *Entry) File() (*fsys.File, bool) {
	f, ok := e.Resource.(*fsys.File)
	return f, ok
}

// Dir returns the directory behind a preopen or directory entry.
func (e *Entry) Dir() (*Dir, bool) {
	d, ok := e.Resource.(*Dir)
	return d, ok
}

// Option configures an entry at open time.
type Option func(*Entry)

// WithName sets the guest-visible name (used for preopens).
func WithName(name string) Option {
	return func(e *Entry) { e.Name = name }
}

// WithFlags sets the initial fdflags.
func WithFlags(f Flags) Option {
	return func(e *Entry) { e.Flags = f }
}

// WithRights restricts base and inheriting rights.
func WithRights(base, inheriting Rights) Option {
	return func(e *Entry) {
		e.Rights = base
		e.Inheriting = inheriting
	}
}

// Stdio supplies the resources behind descriptors 0, 1 and 2.
type Stdio struct {
	Stdin  Source
	Stdout Sink
	Stderr Sink
}

// Table maps descriptors to open resources for one session.
// Descriptors are allocated monotonically and never reused. The table is
// used by a single instance at a time and takes no locks.
type Table struct {
	entries   map[Descriptor]*Entry
	observers []Observer
	next      Descriptor
	closed    bool
}

// New creates a table with descriptors 0, 1 and 2 populated.
// Missing stdio resources default to empty input and unbounded capture.
func New(stdio Stdio) *Table {
	if stdio.Stdin == nil {
		stdio.Stdin = NewBytesSource(nil)
	}
	if stdio.Stdout == nil {
		stdio.Stdout = NewCaptureSink("stdout", 0)
	}
	if stdio.Stderr == nil {
		stdio.Stderr = NewCaptureSink("stderr", 0)
	}

	t := &Table{entries: make(map[Descriptor]*Entry)}
	t.entries[Stdin] = &Entry{FD: Stdin, Kind: KindStdin, Resource: stdio.Stdin, Rights: RightsStdin}
	t.entries[Stdout] = &Entry{FD: Stdout, Kind: KindStdout, Resource: stdio.Stdout, Rights: RightsStdout}
	t.entries[Stderr] = &Entry{FD: Stderr, Kind: KindStderr, Resource: stdio.Stderr, Rights: RightsStdout}
	t.next = Stderr + 1
	return t
}

// Open registers resource under a fresh descriptor.
func (t *Table) Open(kind Kind, resource any, opts ...Option) (Descriptor, error) {
	if t.closed {
		return 0, errors.Closed(errors.PhaseSyscall, "descriptor table")
	}
	if err := checkResource(kind, resource); err != nil {
		return 0, err
	}
	if t.next == ^Descriptor(0) {
		return 0, errors.New(errors.PhaseSyscall, errors.KindResourceExhausted).
			Detail("descriptor space exhausted").
			Build()
	}

	e := &Entry{FD: t.next, Kind: kind, Resource: resource, Rights: defaultRights(kind)}
	if kind.IsDir() {
		e.Inheriting = RightsDir | RightsFile
	}
	for _, opt := range opts {
		opt(e)
	}

	t.entries[e.FD] = e
	t.next++
	t.notify(Event{Type: EventOpened, FD: e.FD, Kind: kind, Entry: e})
	return e.FD, nil
}

func checkResource(kind Kind, resource any) error {
	ok := false
	switch kind {
	case KindStdin:
		_, ok = resource.(Source)
	case KindStdout, KindStderr:
		_, ok = resource.(Sink)
	case KindRegularFile:
		_, ok = resource.(*fsys.File)
	case KindPreopenDir, KindDirectory:
		d, isDir := resource.(*Dir)
		ok = isDir && d.Root != nil
	}
	if !ok {
		return errors.New(errors.PhaseSyscall, errors.KindInvalidInput).
			Path(kind.String()).
			Detail("resource %T does not match descriptor kind", resource).
			Build()
	}
	return nil
}

func defaultRights(kind Kind) Rights {
	switch kind {
	case KindStdin:
		return RightsStdin
	case KindStdout, KindStderr:
		return RightsStdout
	case KindRegularFile:
		return RightsFile
	default:
		return RightsDir
	}
}

// Get returns the entry for fd.
func (t *Table) Get(fd Descriptor) (*Entry, error) {
	e, ok := t.entries[fd]
	if !ok {
		return nil, errors.InvalidDescriptor(uint32(fd))
	}
	return e, nil
}

// Close removes fd from the table and releases its resource.
// The descriptor number is never handed out again.
func (t *Table) Close(fd Descriptor) error {
	e, ok := t.entries[fd]
	if !ok {
		return errors.InvalidDescriptor(uint32(fd))
	}
	delete(t.entries, fd)

	var err error
	if f, ok := e.File(); ok {
		err = f.Close()
	}
	t.notify(Event{Type: EventClosed, FD: fd, Kind: e.Kind, Entry: e})
	return err
}

// Write appends data to fd's resource and returns the bytes written.
func (t *Table) Write(fd Descriptor, data []byte) (int, error) {
	e, err := t.Get(fd)
	if err != nil {
		return 0, err
	}
	if e.Rights&RightFdWrite == 0 {
		return 0, notOpenFor(fd, "writing")
	}
	if s, ok := e.Sink(); ok {
		return s.Write(data)
	}
	if f, ok := e.File(); ok {
		if !f.Writable() {
			return 0, notOpenFor(fd, "writing")
		}
		return f.Write(data)
	}
	return 0, notOpenFor(fd, "writing")
}

// MaxRead caps the bytes returned by a single Read.
const MaxRead = 1 << 20

// Read returns up to max bytes from fd's resource. An empty result means
// end of input. Blocking sources honour ctx.
func (t *Table) Read(ctx context.Context, fd Descriptor, max int) ([]byte, error) {
	e, err := t.Get(fd)
	if err != nil {
		return nil, err
	}
	max = min(max, MaxRead)
	if e.Rights&RightFdRead == 0 {
		return nil, notOpenFor(fd, "reading")
	}
	if s, ok := e.Source(); ok {
		return s.Read(ctx, max)
	}
	if f, ok := e.File(); ok {
		if !f.Readable() {
			return nil, notOpenFor(fd, "reading")
		}
		buf := make([]byte, max)
		n, err := f.Read(buf)
		if err != nil {
			return nil, err
		}
		return buf[:n], nil
	}
	return nil, notOpenFor(fd, "reading")
}

func notOpenFor(fd Descriptor, what string) error {
	return errors.New(errors.PhaseSyscall, errors.KindInvalidDescriptor).
		Value(uint32(fd)).
		Detail("descriptor %d is not open for %s", fd, what).
		Build()
}

// Preopens returns the preopened directory entries in descriptor order.
func (t *Table) Preopens() []*Entry {
	var out []*Entry
	for _, e := range t.entries {
		if e.Kind == KindPreopenDir {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FD < out[j].FD })
	return out
}

// Descriptors returns all open descriptors in ascending order.
func (t *Table) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(t.entries))
	for fd := range t.entries {
		out = append(out, fd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of open descriptors.
func (t *Table) Len() int {
	return len(t.entries)
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.observers = append(t.observers, o)
}

// CloseAll releases every open descriptor and rejects further opens.
func (t *Table) CloseAll() error {
	if t.closed {
		return nil
	}
	t.closed = true

	var errs []error
	for _, fd := range t.Descriptors() {
		if err := t.Close(fd); err != nil {
			errs = append(errs, errors.Wrap(errors.PhaseRun, errors.KindClosed, err, "close fd "+strconv.Itoa(int(fd))))
		}
	}
	return xerr.MultiErrOrderedFrom("", errs...)
}

func (t *Table) notify(e Event) {
	for _, o := range t.observers {
		o.OnDescriptorEvent(e)
	}
}
