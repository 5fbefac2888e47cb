// Package preview1 implements the wasi_snapshot_preview1 syscall surface.
//
// Every function in the surface is registered once per engine by Install.
// Calls find their session through the context: the host attaches a *State
// with WithState before instantiating the guest and before invoking its
// entry point, so a single host module serves many isolated sessions.
//
// Handlers validate every guest pointer before touching memory and report
// failures as an Errno. Only proc_exit and cancellation leave a handler
// without returning a status; both stop the instance through the engine's
// exit signal.
//
// Invoke runs a handler against a State and a memory.Buffer without an
// engine, which is how the handlers are tested:
//
//	mem := memory.New(memory.NewBuffer(memory.PageSize))
//	st := preview1.NewState(fdtable.New(fdtable.Stdio{}), []string{"prog"}, nil)
//	out, err := preview1.Invoke(ctx, st, mem, "args_sizes_get", 0, 4)
package preview1
