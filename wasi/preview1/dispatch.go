package preview1

import (
	"context"
	stderrors "errors"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-host/errors"
	"github.com/wippyai/wasi-host/memory"
)

// Outcome is the result of one syscall: either a status code for the
// guest or a request to terminate the instance.
type Outcome struct {
	Errno    Errno
	Exit     bool
	ExitCode uint32
}

// Ok is the successful outcome.
var Ok = Outcome{}

// Fail returns an outcome carrying errno.
func Fail(e Errno) Outcome {
	return Outcome{Errno: e}
}

// FailErr returns an outcome carrying the errno mapped from err.
func FailErr(err error) Outcome {
	return Outcome{Errno: ErrnoOf(err)}
}

// Exit returns the outcome that terminates the instance with code.
func Exit(code uint32) Outcome {
	return Outcome{Exit: true, ExitCode: code}
}

// Call carries the arguments of one syscall invocation.
type Call struct {
	Ctx    context.Context
	State  *State
	Mem    *memory.Accessor
	params []uint64
}

// NewCall builds a call over raw parameter slots.
func NewCall(ctx context.Context, st *State, mem *memory.Accessor, params ...uint64) *Call {
	return &Call{Ctx: ctx, State: st, Mem: mem, params: params}
}

func (c *Call) u32(i int) uint32 { return uint32(c.params[i]) }
func (c *Call) u64(i int) uint64 { return c.params[i] }
func (c *Call) i64(i int) int64  { return int64(c.params[i]) }

// Handler implements one syscall.
type Handler func(c *Call) Outcome

// dispatch executes fn for a guest call. It refuses to run once the
// session has exited or been cancelled, or once ctx is done, and turns an
// exit outcome into the engine's exit signal so no further guest code runs.
func dispatch(fn *Function, ctx context.Context, mod api.Module, stack []uint64) {
	st := StateFrom(ctx)
	if st == nil {
		panic(errors.New(errors.PhaseSyscall, errors.KindNotFound).
			Path(fn.Name).
			Detail("no session state attached to call context").
			Build())
	}

	if code, exited := st.Exited(); exited {
		panic(sys.NewExitError(code))
	}
	if st.CancelRequested() {
		st.markCancelled()
		_ = mod.CloseWithExitCode(ctx, sys.ExitCodeContextCanceled)
		panic(sys.NewExitError(sys.ExitCodeContextCanceled))
	}
	if err := ctx.Err(); err != nil {
		code := uint32(sys.ExitCodeContextCanceled)
		if stderrors.Is(err, context.DeadlineExceeded) {
			code = sys.ExitCodeDeadlineExceeded
		}
		_ = mod.CloseWithExitCode(ctx, code)
		panic(sys.NewExitError(code))
	}

	params := make([]uint64, len(fn.Params))
	copy(params, stack)
	call := &Call{Ctx: ctx, State: st, Mem: memory.FromModule(mod), params: params}

	out := fn.Handler(call)
	st.record(fn.Name)

	if st.Trace {
		st.Logger.Debug("syscall",
			zap.String("func", fn.Name),
			zap.Uint64s("params", params),
			zap.Stringer("errno", out.Errno),
			zap.Bool("exit", out.Exit),
		)
	}

	if out.Exit {
		st.markExited(out.ExitCode)
		_ = mod.CloseWithExitCode(ctx, out.ExitCode)
		panic(sys.NewExitError(out.ExitCode))
	}
	if len(fn.Results) > 0 {
		stack[0] = uint64(out.Errno)
	}
}

// Invoke runs a syscall by name outside of the engine, against st and mem.
// The returned outcome is exactly what the guest would observe.
func Invoke(ctx context.Context, st *State, mem *memory.Accessor, name string, params ...uint64) (Outcome, error) {
	fn, ok := Lookup(name)
	if !ok {
		return Outcome{}, errors.NotFound(errors.PhaseSyscall, "function", name)
	}
	if len(params) != len(fn.Params) {
		return Outcome{}, errors.InvalidInput(errors.PhaseSyscall, "wrong parameter count for "+name)
	}
	if code, exited := st.Exited(); exited {
		return Exit(code), nil
	}
	out := fn.Handler(NewCall(ctx, st, mem, params...))
	st.record(name)
	if out.Exit {
		st.markExited(out.ExitCode)
	}
	return out, nil
}
