// Package wasihost runs WebAssembly modules against a WASI preview1 host.
//
// A module is compiled once, checked against the syscall surface, and then
// executed in isolated sessions. Each session owns its descriptor table,
// argument and environment snapshot, captured output and exit status.
//
// # Architecture Overview
//
//	wasihost/            Root package with the Memory and Clock interfaces
//	├── runtime/         Supervisor: compile, instantiate, run, report
//	├── engine/          wazero integration and host module registration
//	├── wasi/preview1/   The wasi_snapshot_preview1 syscall surface
//	├── fdtable/         Per-session file descriptor table and stdio sinks
//	├── fsys/            Sandboxed filesystem roots for preopened directories
//	├── memory/          Bounds-checked accessor over guest linear memory
//	├── errors/          Structured error types
//	└── cmd/run/         Command-line runner
//
// # Quick Start
//
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	mod, err := rt.Compile(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := mod.Run(ctx, runtime.Config{Args: []string{"app", "hello"}})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("exit=%d stdout=%q\n", res.ExitCode, res.Stdout)
//
// # Thread Safety
//
// Runtime and Module are safe for concurrent use. A Session executes one
// guest call at a time; host calls from a single instance are strictly
// sequential, so the descriptor table needs no locking.
//
// # Memory Model
//
// Linear memory can grow during a call. Host functions therefore re-check
// bounds on every access instead of caching a slice of guest memory.
package wasihost
