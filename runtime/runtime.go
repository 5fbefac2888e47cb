package runtime

import (
	"bytes"
	"context"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/davidmdm/x/xerr"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-host/engine"
	"github.com/wippyai/wasi-host/errors"
)

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the runtime logger. Sessions log through a child of it.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithEngineConfig overrides the engine defaults.
func WithEngineConfig(cfg engine.Config) Option {
	return func(r *Runtime) {
		r.engineCfg = cfg
	}
}

// WithTrapBreaker makes every compiled module refuse new runs after
// threshold consecutive trapped sessions, until cooldown has elapsed.
func WithTrapBreaker(threshold uint32, cooldown time.Duration) Option {
	return func(r *Runtime) {
		r.breaker = &breakerSettings{threshold: threshold, cooldown: cooldown}
	}
}

type breakerSettings struct {
	threshold uint32
	cooldown  time.Duration
}

// Runtime compiles guest modules and supervises their sessions.
type Runtime struct {
	engine    *engine.Engine
	logger    *zap.Logger
	breaker   *breakerSettings
	sessions  map[string]*Session
	engineCfg engine.Config
	mu        sync.Mutex
}

func New(ctx context.Context, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		logger:    zap.NewNop(),
		engineCfg: engine.DefaultConfig(),
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := validate.Struct(&r.engineCfg); err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("invalid engine config").
			Cause(err).
			Build()
	}

	eng, err := engine.New(ctx, &r.engineCfg)
	if err != nil {
		return nil, errors.Load("create engine", err)
	}
	r.engine = eng
	return r, nil
}

// Close cancels every active session and releases the engine.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	active := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		active = append(active, s)
	}
	r.mu.Unlock()

	var errs []error
	for _, s := range active {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.engine.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return xerr.MultiErrOrderedFrom("close runtime", errs...)
}

// Compile validates wasm and prepares it for instantiation. Import
// resolution is deferred to session start so the caller can inspect
// unsatisfied imports through Module.Imports.
func (r *Runtime) Compile(ctx context.Context, wasm []byte) (*Module, error) {
	compiled, err := r.engine.Compile(ctx, wasm)
	if err != nil {
		return nil, err
	}
	m := &Module{runtime: r, compiled: compiled}
	if r.breaker != nil {
		m.breaker = newTrapBreaker(*r.breaker, r.logger)
	}
	return m, nil
}

// SessionInfo describes an active session.
type SessionInfo struct {
	Created time.Time
	ID      string
	State   State
}

// Sessions lists the active sessions ordered by creation time.
func (r *Runtime) Sessions() []SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]SessionInfo, 0, len(r.sessions))
	for id, s := range r.sessions {
		out = append(out, SessionInfo{ID: id, State: s.State(), Created: s.created})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out
}

// Session looks up an active session by id.
func (r *Runtime) Session(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Cancel requests teardown of the session with the given id.
func (r *Runtime) Cancel(id string) error {
	s, ok := r.Session(id)
	if !ok {
		return errors.NotFound(errors.PhaseRun, "session", id)
	}
	s.Cancel()
	return nil
}

func (r *Runtime) register(s *Session) {
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
}

func (r *Runtime) unregister(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// ReadModule loads a module from disk. Files ending in .br are
// brotli-compressed.
func ReadModule(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load("read "+path, err)
	}
	if !strings.HasSuffix(path, ".br") {
		return data, nil
	}
	out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, errors.Load("decompress "+path, err)
	}
	return out, nil
}
