// Package fdtable implements the per-session file descriptor table.
//
// Descriptors 0, 1 and 2 are populated at construction: standard input
// reads from a Source, standard output and error write to Sinks. By default
// output is captured in memory; a WriterSink redirects it to a real stream.
//
//	table := fdtable.New(fdtable.Stdio{
//		Stdout: fdtable.NewCaptureSink("stdout", 1<<20),
//	})
//	fd, err := table.Open(fdtable.KindPreopenDir, &fdtable.Dir{Root: root, Path: "/"},
//		fdtable.WithName("/data"))
//
// Allocation is monotonic: a closed descriptor number is never handed out
// again within the table's lifetime, so a stale descriptor always fails with
// an invalid_descriptor error rather than reaching an unrelated resource.
//
// # Observers
//
// Observers receive EventOpened and EventClosed notifications, which the
// supervisor uses for syscall tracing.
package fdtable
