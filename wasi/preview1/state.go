package preview1

import (
	"context"
	"crypto/rand"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	wasihost "github.com/wippyai/wasi-host"
	"github.com/wippyai/wasi-host/fdtable"
)

// State is everything a single session exposes to its guest through the
// syscall surface. Host functions locate it through the call context, so
// one registered host module serves any number of isolated sessions.
type State struct {
	Table          *fdtable.Table
	Clock          wasihost.Clock
	Random         io.Reader
	Logger         *zap.Logger
	Args           []string
	Env            []string
	SyscallTimeout time.Duration
	Trace          bool

	startMono int64
	calls     atomic.Uint64
	cancel    atomic.Bool
	mu        sync.Mutex
	exited    bool
	exitCode  uint32
	cancelled bool
	last      string
}

// NewState builds a session state. Args and env are copied.
func NewState(table *fdtable.Table, args, env []string) *State {
	s := &State{
		Table:  table,
		Args:   append([]string(nil), args...),
		Env:    append([]string(nil), env...),
		Clock:  SystemClock(),
		Random: rand.Reader,
		Logger: zap.NewNop(),
	}
	s.startMono = s.Clock.Monotonic()
	return s
}

// WithClock replaces the session clock.
func (s *State) WithClock(c wasihost.Clock) *State {
	if c != nil {
		s.Clock = c
		s.startMono = c.Monotonic()
	}
	return s
}

// Exited reports whether proc_exit was called and with which code.
func (s *State) Exited() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode, s.exited
}

func (s *State) markExited(code uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exited = true
	s.exitCode = code
}

// RequestCancel asks the surface to stop the guest at its next syscall.
// An in-flight syscall completes first.
func (s *State) RequestCancel() {
	s.cancel.Store(true)
}

// CancelRequested reports whether RequestCancel was called.
func (s *State) CancelRequested() bool {
	return s.cancel.Load()
}

// Cancelled reports whether the guest was stopped by a cancellation.
func (s *State) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *State) markCancelled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
}

// Calls returns the number of syscalls dispatched.
func (s *State) Calls() uint64 {
	return s.calls.Load()
}

// LastCall returns the name of the most recent syscall.
func (s *State) LastCall() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *State) record(name string) {
	s.calls.Add(1)
	s.mu.Lock()
	s.last = name
	s.mu.Unlock()
}

type stateKey struct{}

// WithState attaches s to ctx. The context passed to instantiation and to
// every exported call must carry it.
func WithState(ctx context.Context, s *State) context.Context {
	return context.WithValue(ctx, stateKey{}, s)
}

// StateFrom returns the state attached to ctx, or nil.
func StateFrom(ctx context.Context) *State {
	s, _ := ctx.Value(stateKey{}).(*State)
	return s
}
