package runtime

import (
	"context"
	stderrors "errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-host/engine"
	"github.com/wippyai/wasi-host/errors"
)

// Module is a compiled guest. It is immutable and safe to run from many
// goroutines; every run gets its own session.
type Module struct {
	runtime  *Runtime
	compiled *engine.Module
	breaker  *gobreaker.CircuitBreaker
}

// ImportStatus reports how one import of the module resolves.
type ImportStatus struct {
	Module    string
	Name      string
	Signature string
	// Reason explains why an unresolved import cannot be satisfied.
	Reason   string
	Resolved bool
	// Implemented is false for resolved functions that always return ENOSYS.
	Implemented bool
}

// Imports lists the module's imports in declaration order.
func (m *Module) Imports() []ImportStatus {
	resolutions, _ := m.compiled.Resolve()
	out := make([]ImportStatus, 0, len(resolutions))
	for _, res := range resolutions {
		st := ImportStatus{
			Module:    res.Import.Module,
			Name:      res.Import.Name,
			Signature: res.Import.Signature(),
			Reason:    res.Reason,
			Resolved:  res.Resolved(),
		}
		if res.Function != nil {
			st.Implemented = res.Function.Implemented
		}
		out = append(out, st)
	}
	return out
}

// Exports returns the names of exported functions, sorted.
func (m *Module) Exports() []string {
	return m.compiled.Exports()
}

// ExportSignature returns the core type of the exported function name.
func (m *Module) ExportSignature(name string) (engine.Signature, bool) {
	return m.compiled.ExportSignature(name)
}

// NewSession builds a session from cfg without starting it. The session is
// listed by Runtime.Sessions until it finishes or is closed.
func (m *Module) NewSession(cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sig, ok := m.compiled.ExportSignature(cfg.entryPoint()); ok && len(sig.Params) != len(cfg.EntryParams) {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("entry_params").
			Detail("%s%s takes %d parameters, got %d", cfg.entryPoint(), sig, len(sig.Params), len(cfg.EntryParams)).
			Build()
	}
	s, err := newSession(m, cfg)
	if err != nil {
		return nil, err
	}
	m.runtime.register(s)
	s.logger.Debug("session created", zap.String("entry", s.entry))
	return s, nil
}

// Run creates a session from cfg and runs it to completion.
func (m *Module) Run(ctx context.Context, cfg Config) (*Result, error) {
	if m.breaker != nil && m.breaker.State() == gobreaker.StateOpen {
		return nil, errors.Unavailable("module", gobreaker.ErrOpenState)
	}
	s, err := m.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx)
}

// Close releases the compiled code. Sessions still running keep working
// until they finish.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

// execute runs fn through the trap breaker, if any. Only trapped sessions
// count as failures.
func (m *Module) execute(fn func() (*Result, error)) (*Result, error) {
	if m.breaker == nil {
		return fn()
	}
	out, err := m.breaker.Execute(func() (interface{}, error) {
		res, err := fn()
		if err != nil {
			return res, err
		}
		if res.State == StateTrapped {
			return res, res.Trap
		}
		return res, nil
	})
	if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, errors.Unavailable("module", err)
	}
	res, _ := out.(*Result)
	if res != nil && res.State == StateTrapped {
		return res, nil
	}
	return res, err
}

func newTrapBreaker(s breakerSettings, logger *zap.Logger) *gobreaker.CircuitBreaker {
	threshold := s.threshold
	if threshold == 0 {
		threshold = 1
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "traps",
		MaxRequests: 1,
		Timeout:     s.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.IsKind(err, errors.KindExecutionTrap)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("module breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}
