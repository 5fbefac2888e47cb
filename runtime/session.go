package runtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"path"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davidmdm/x/xerr"
	"github.com/google/uuid"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-host/engine"
	"github.com/wippyai/wasi-host/errors"
	"github.com/wippyai/wasi-host/fdtable"
	"github.com/wippyai/wasi-host/fsys"
	"github.com/wippyai/wasi-host/wasi/preview1"
)

// State is the supervisor state of a session.
type State int32

const (
	StateCreated State = iota
	StateInstantiated
	StateRunning
	StateExited
	StateCompleted
	StateTrapped
	StateTimeout
	StateCancelled
	// StateFailed means the session never ran: imports were unsatisfied,
	// the start section trapped, or the entry point is missing.
	StateFailed
)

var stateNames = [...]string{
	StateCreated:      "created",
	StateInstantiated: "instantiated",
	StateRunning:      "running",
	StateExited:       "exited",
	StateCompleted:    "completed",
	StateTrapped:      "trapped",
	StateTimeout:      "timeout",
	StateCancelled:    "cancelled",
	StateFailed:       "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s >= StateExited
}

// Result is the outcome of a session that reached its entry point.
type Result struct {
	// Trap is set for Trapped, Timeout and Cancelled sessions.
	Trap error
	// Teardown collects errors from releasing the instance and descriptors.
	Teardown error
	Stdout   []byte
	Stderr   []byte
	// Returns holds the entry point's results for a Completed session.
	Returns  []uint64
	Duration time.Duration
	Syscalls uint64
	State    State
	ExitCode int32
}

// Err returns the error that ended the session abnormally, if any.
func (r *Result) Err() error {
	return r.Trap
}

func (r *Result) String() string {
	if r.Trap != nil {
		return fmt.Sprintf("%s: %v", r.State, r.Trap)
	}
	if len(r.Returns) > 0 {
		return fmt.Sprintf("%s (exit %d) returned %v", r.State, r.ExitCode, r.Returns)
	}
	return fmt.Sprintf("%s (exit %d)", r.State, r.ExitCode)
}

// Session is one isolated execution of a module. It owns its descriptor
// table, argument and environment snapshot, and captured output. A session
// runs at most once.
type Session struct {
	created time.Time
	module  *Module
	wasi    *preview1.State
	table   *fdtable.Table
	stdout  *fdtable.CaptureSink
	stderr  *fdtable.CaptureSink
	logger  *zap.Logger
	cancel  context.CancelFunc
	result  *Result
	id      string
	entry   string
	params  []uint64
	returns []uint64
	timeout time.Duration
	state   atomic.Int32
	started atomic.Bool
	mu      sync.Mutex
	closed  bool
}

func newSession(m *Module, cfg Config) (*Session, error) {
	s := &Session{
		id:      uuid.NewString(),
		module:  m,
		entry:   cfg.entryPoint(),
		params:  append([]uint64(nil), cfg.EntryParams...),
		timeout: cfg.Timeout,
		created: time.Now(),
	}
	s.logger = m.runtime.logger.With(zap.String("session", s.id))

	stdio := fdtable.Stdio{}
	if cfg.StdinReader != nil {
		stdio.Stdin = fdtable.NewReaderSource(cfg.StdinReader)
	} else {
		stdio.Stdin = fdtable.NewBytesSource([]byte(cfg.Stdin))
	}
	if cfg.Stdout != nil {
		stdio.Stdout = fdtable.NewWriterSink(cfg.Stdout)
	} else {
		s.stdout = fdtable.NewCaptureSink("stdout", cfg.MaxOutputBytes)
		stdio.Stdout = s.stdout
	}
	if cfg.Stderr != nil {
		stdio.Stderr = fdtable.NewWriterSink(cfg.Stderr)
	} else {
		s.stderr = fdtable.NewCaptureSink("stderr", cfg.MaxOutputBytes)
		stdio.Stderr = s.stderr
	}
	s.table = fdtable.New(stdio)

	if err := mountPreopens(s.logger, s.table, cfg.Preopens); err != nil {
		_ = s.table.CloseAll()
		return nil, err
	}

	st := preview1.NewState(s.table, cfg.Args, cfg.Env)
	st.Logger = s.logger
	st.Trace = cfg.TraceSyscalls
	st.SyscallTimeout = cfg.SyscallTimeout
	switch {
	case cfg.ClockSource != nil:
		st.WithClock(cfg.ClockSource)
	case cfg.Clock == ClockFake:
		st.WithClock(preview1.NewFakeClock(time.Unix(0, 0), time.Microsecond))
	}
	if r := cfg.random(); r != nil {
		st.Random = r
	}
	s.wasi = st

	if cfg.TraceSyscalls {
		s.table.Subscribe(fdtable.ObserverFunc(func(e fdtable.Event) {
			s.logger.Debug("descriptor event",
				zap.Uint32("fd", uint32(e.FD)),
				zap.Stringer("kind", e.Kind),
				zap.Bool("opened", e.Type == fdtable.EventOpened))
		}))
	}
	return s, nil
}

// mountPreopens opens preopened directories in guest-path order so
// descriptor numbers are stable across runs.
func mountPreopens(logger *zap.Logger, table *fdtable.Table, preopens map[string]PreopenDir) error {
	names := make([]string, 0, len(preopens))
	for name := range preopens {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		dir := preopens[name]
		root, err := preopenRoot(dir)
		if err != nil {
			return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Path("preopens", name).
				Detail("cannot mount preopen").
				Cause(err).
				Build()
		}
		fd, err := table.Open(fdtable.KindPreopenDir, &fdtable.Dir{Root: root, Path: "/"}, fdtable.WithName(name))
		if err != nil {
			return err
		}
		logger.Debug("preopen mounted",
			zap.String("name", name),
			zap.Uint32("fd", uint32(fd)),
			zap.Bool("host", root.IsHost()),
			zap.Bool("read_only", root.ReadOnly()))
	}
	return nil
}

func preopenRoot(dir PreopenDir) (*fsys.Root, error) {
	var root *fsys.Root
	if dir.HostPath == "" {
		root = fsys.Memory()
	} else {
		var err error
		if root, err = fsys.Host(dir.HostPath, dir.ReadOnly); err != nil {
			return nil, err
		}
	}
	files := make([]string, 0, len(dir.Files))
	for p := range dir.Files {
		files = append(files, p)
	}
	sort.Strings(files)
	for _, p := range files {
		if err := root.WriteFile(path.Clean("/"+p), []byte(dir.Files[p])); err != nil {
			return nil, err
		}
	}
	if dir.ReadOnly {
		root.MakeReadOnly()
	}
	return root, nil
}

// ID returns the session identifier used by the runtime registry.
func (s *Session) ID() string {
	return s.id
}

// State returns the current supervisor state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Result returns the outcome once the session has finished running.
func (s *Session) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Stdout returns a snapshot of captured standard output. It is empty when
// output was redirected.
func (s *Session) Stdout() []byte {
	if s.stdout == nil {
		return nil
	}
	return s.stdout.Bytes()
}

// Stderr returns a snapshot of captured standard error.
func (s *Session) Stderr() []byte {
	if s.stderr == nil {
		return nil
	}
	return s.stderr.Bytes()
}

// Cancel requests teardown. A syscall in progress completes first; the
// guest is stopped before its next syscall or, for guests that never call
// the host, by interrupting the running code.
func (s *Session) Cancel() {
	s.wasi.RequestCancel()
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.logger.Debug("session cancel requested")
}

// Close releases a session that has not started. A running session is
// cancelled instead and tears itself down when the guest stops.
func (s *Session) Close(ctx context.Context) error {
	if s.started.CompareAndSwap(false, true) {
		s.setState(StateFailed)
		return s.teardown(ctx, nil)
	}
	s.Cancel()
	return nil
}

// Run instantiates the module and invokes the entry point. Failures before
// the entry point runs are returned as errors and produce no Result:
// unsatisfied imports, start-section traps and a missing entry point.
// Everything after that is reported through the Result.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	if s.State() != StateCreated || !s.started.CompareAndSwap(false, true) {
		return nil, errors.InvalidInput(errors.PhaseRun, "session already started")
	}

	res, err := s.module.execute(func() (*Result, error) {
		return s.run(ctx)
	})
	if err != nil && s.State() == StateCreated {
		s.setState(StateFailed)
		_ = s.teardown(ctx, nil)
	}
	return res, err
}

func (s *Session) run(ctx context.Context) (*Result, error) {
	started := time.Now()
	compiled := s.module.compiled

	if _, err := compiled.Resolve(); err != nil {
		s.logger.Warn("unsatisfied imports", zap.Error(err))
		return nil, s.fail(ctx, err)
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if s.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	if s.wasi.CancelRequested() {
		return s.finish(ctx, nil, started, StateCancelled, errCancelled()), nil
	}

	inst, err := compiled.Instantiate(runCtx, s.wasi)
	if err != nil {
		if _, exited := s.wasi.Exited(); !exited {
			if state, trap, ok := s.interrupted(runCtx, err); ok {
				return s.finish(ctx, nil, started, state, trap), nil
			}
			s.logger.Warn("start section trapped", zap.Error(err))
			return nil, s.fail(ctx, errors.InstantiationTrap(err))
		}
		return s.finish(ctx, nil, started, StateExited, nil), nil
	}
	s.setState(StateInstantiated)

	if !compiled.HasExport(s.entry) {
		err := errors.NotFound(errors.PhaseRun, "entry point", s.entry)
		s.logger.Warn("entry point missing", zap.String("entry", s.entry))
		_ = inst.Close(ctx)
		return nil, s.fail(ctx, err)
	}

	s.setState(StateRunning)
	returns, err := inst.Call(runCtx, s.entry, s.params...)
	state, trap := s.classify(runCtx, err)
	if state == StateCompleted {
		s.returns = returns
	}
	return s.finish(ctx, inst, started, state, trap), nil
}

func (s *Session) classify(ctx context.Context, err error) (State, error) {
	if _, exited := s.wasi.Exited(); exited {
		return StateExited, nil
	}
	// A guest can return normally after a blocking read was cut short by
	// the deadline or a cancel.
	if err != nil || ctx.Err() != nil {
		if state, trap, ok := s.interrupted(ctx, err); ok {
			return state, trap
		}
	}
	if err == nil {
		return StateCompleted, nil
	}
	return StateTrapped, errors.ExecutionTrap(s.entry, err)
}

// interrupted recognises a run stopped by Cancel, the caller's context or
// the session deadline.
func (s *Session) interrupted(ctx context.Context, err error) (State, error, bool) {
	if s.wasi.Cancelled() || s.wasi.CancelRequested() {
		return StateCancelled, errCancelled(), true
	}
	var exitErr *sys.ExitError
	deadline := stderrors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(stderrors.As(err, &exitErr) && exitErr.ExitCode() == sys.ExitCodeDeadlineExceeded)
	if deadline {
		return StateTimeout, errors.Timeout(errors.PhaseRun, context.DeadlineExceeded), true
	}
	if ctx.Err() != nil || (exitErr != nil && exitErr.ExitCode() == sys.ExitCodeContextCanceled) {
		return StateCancelled, errCancelled(), true
	}
	return 0, nil, false
}

func (s *Session) fail(ctx context.Context, err error) error {
	s.setState(StateFailed)
	if terr := s.teardown(ctx, nil); terr != nil {
		s.logger.Warn("teardown failed", zap.Error(terr))
	}
	return err
}

func (s *Session) finish(ctx context.Context, inst *engine.Instance, started time.Time, state State, trap error) *Result {
	res := &Result{
		State:    state,
		Trap:     trap,
		Duration: time.Since(started),
		Syscalls: s.wasi.Calls(),
		Returns:  s.returns,
	}
	if code, exited := s.wasi.Exited(); exited {
		res.ExitCode = int32(code)
	}
	s.setState(state)
	res.Teardown = s.teardown(ctx, inst)
	res.Stdout = s.Stdout()
	res.Stderr = s.Stderr()

	s.mu.Lock()
	s.result = res
	s.mu.Unlock()

	fields := []zap.Field{
		zap.Stringer("state", state),
		zap.Int32("exit_code", res.ExitCode),
		zap.Duration("duration", res.Duration),
		zap.Uint64("syscalls", res.Syscalls),
	}
	if trap != nil {
		s.logger.Warn("session ended abnormally", append(fields,
			zap.Error(trap),
			zap.String("last_syscall", s.wasi.LastCall()))...)
	} else {
		s.logger.Debug("session finished", fields...)
	}
	return res
}

// teardown closes the instance and descriptor table and removes the
// session from the registry. It runs once.
func (s *Session) teardown(ctx context.Context, inst *engine.Instance) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancel = nil
	s.mu.Unlock()

	var errs []error
	if inst != nil {
		if err := inst.Close(context.WithoutCancel(ctx)); err != nil {
			errs = append(errs, errors.Wrap(errors.PhaseRun, errors.KindClosed, err, "close instance"))
		}
	}
	if err := s.table.CloseAll(); err != nil {
		errs = append(errs, err)
	}
	s.module.runtime.unregister(s.id)
	return xerr.MultiErrOrderedFrom("teardown", errs...)
}

func (s *Session) setState(state State) {
	prev := State(s.state.Swap(int32(state)))
	if prev != state {
		s.logger.Debug("session state",
			zap.Stringer("from", prev),
			zap.Stringer("to", state))
	}
}

func errCancelled() error {
	return errors.Wrap(errors.PhaseRun, errors.KindClosed, context.Canceled, "session cancelled")
}
