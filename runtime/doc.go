// Package runtime supervises WASI preview1 guests.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx, runtime.WithLogger(logger))
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
//	res, err := mod.Run(ctx, runtime.Config{
//	    Args:    []string{"app", "--verbose"},
//	    Env:     []string{"HOME=/data"},
//	    Timeout: 5 * time.Second,
//	})
//	if err != nil {
//	    log.Fatal(err) // unsatisfied imports, start trap, bad config
//	}
//	fmt.Println(res.ExitCode, string(res.Stdout))
//
// # Session Lifecycle
//
//	created -> instantiated -> running -> exited | completed | trapped
//	                                      timeout | cancelled
//	created -> failed
//
// A session runs once. Running the module again means a new session from
// the same compiled Module. Failures that happen before the entry point is
// invoked are returned as errors; everything after is described by the
// Result, whose State and Trap tell exits, traps, timeouts and
// cancellation apart.
//
// # Preopens
//
// Config.Preopens maps guest-visible names to directories. A PreopenDir
// with no HostPath is a fresh in-memory filesystem, optionally seeded with
// Files. Preopens receive descriptors from 3 upward in name order.
//
// # Registry
//
// Sessions created through a Runtime are listed by Runtime.Sessions until
// they finish, and can be cancelled by id with Runtime.Cancel.
package runtime
