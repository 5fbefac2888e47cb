package engine

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"

	"github.com/wippyai/wasi-host/errors"
	"github.com/wippyai/wasi-host/fdtable"
	"github.com/wippyai/wasi-host/internal/wasmbin"
	"github.com/wippyai/wasi-host/memory"
	"github.com/wippyai/wasi-host/wasi/preview1"
)

func newState(args ...string) (*preview1.State, *fdtable.CaptureSink) {
	out := fdtable.NewCaptureSink("stdout", 0)
	table := fdtable.New(fdtable.Stdio{Stdout: out})
	return preview1.NewState(table, args, nil), out
}

func TestNewWithConfig(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		cfg  *Config
		name string
	}{
		{nil, "nil config"},
		{&Config{}, "zero config"},
		{&Config{MemoryLimitPages: 256}, "16MB limit"},
		{&Config{MemoryLimitPages: 1024, CloseOnContextDone: true}, "64MB limit"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			engine, err := New(ctx, tc.cfg)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			defer engine.Close(ctx)

			if engine.runtime == nil {
				t.Error("engine runtime should not be nil")
			}
		})
	}
}

func TestNew_RejectsOversizedLimit(t *testing.T) {
	_, err := New(context.Background(), &Config{MemoryLimitPages: MaxMemoryPages + 1})
	if !errors.IsKind(err, errors.KindInvalidInput) {
		t.Fatalf("expected invalid_input, got %v", err)
	}
}

func TestCompile_InvalidBytes(t *testing.T) {
	ctx := context.Background()
	engine, err := New(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close(ctx)

	for name, bin := range map[string][]byte{
		"empty":   nil,
		"garbage": []byte("not wasm"),
		"trunc":   wasmbin.Empty()[:12],
	} {
		t.Run(name, func(t *testing.T) {
			_, err := engine.Compile(ctx, bin)
			if !errors.IsKind(err, errors.KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCompile_RecordsImportsAndExports(t *testing.T) {
	ctx := context.Background()
	engine, err := New(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close(ctx)

	mod, err := engine.Compile(ctx, wasmbin.WriteExit("hi\n", 0))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	imports := mod.Imports()
	if len(imports) != 2 || imports[0].Name != "fd_write" || imports[1].Name != "proc_exit" {
		t.Fatalf("unexpected imports: %+v", imports)
	}
	if got := imports[0].Signature(); got != "(i32, i32, i32, i32) -> (i32)" {
		t.Errorf("fd_write signature = %s", got)
	}
	if !mod.HasExport("_start") || mod.HasExport("main") {
		t.Errorf("unexpected exports: %v", mod.Exports())
	}
	if !mod.ExportsMemory() {
		t.Error("expected exported memory")
	}
	if _, err := mod.Resolve(); err != nil {
		t.Errorf("Resolve failed: %v", err)
	}
}

func TestResolve_Unsatisfied(t *testing.T) {
	ctx := context.Background()
	engine, err := New(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close(ctx)

	mod, err := engine.Compile(ctx, wasmbin.Importing(wasmbin.Preview1, "foo_bar"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = mod.Resolve()
	var unsatisfied *errors.UnsatisfiedImportError
	if !stderrors.As(err, &unsatisfied) {
		t.Fatalf("expected UnsatisfiedImportError, got %v", err)
	}
	if names := unsatisfied.Names(); len(names) != 1 || names[0] != "foo_bar" {
		t.Errorf("missing = %v", names)
	}
}

func TestInstantiate_CallWritesThroughState(t *testing.T) {
	ctx := context.Background()
	engine, err := New(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close(ctx)

	mod, err := engine.Compile(ctx, wasmbin.WriteExit("hi\n", 2))
	if err != nil {
		t.Fatal(err)
	}

	st, out := newState("prog")
	inst, err := mod.Instantiate(ctx, st)
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	defer inst.Close(ctx)

	_, err = inst.Call(ctx, "_start")
	var exitErr *sys.ExitError
	if !stderrors.As(err, &exitErr) || exitErr.ExitCode() != 2 {
		t.Fatalf("expected exit 2, got %v", err)
	}
	if code, exited := st.Exited(); !exited || code != 2 {
		t.Errorf("state exited=%v code=%d", exited, code)
	}
	if string(out.Bytes()) != "hi\n" {
		t.Errorf("stdout = %q", out.Bytes())
	}
	if memory.FromModule(inst.instance).Size() == 0 {
		t.Error("expected instance memory")
	}
}

func TestInstantiate_ConcurrentHostInit(t *testing.T) {
	ctx := context.Background()
	engine, err := New(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close(ctx)

	mod, err := engine.Compile(ctx, wasmbin.WriteExit("x", -1))
	if err != nil {
		t.Fatal(err)
	}

	const n = 8
	var wg sync.WaitGroup
	outs := make([]*fdtable.CaptureSink, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st, out := newState()
			outs[i] = out
			inst, err := mod.Instantiate(ctx, st)
			if err != nil {
				errs[i] = err
				return
			}
			defer inst.Close(ctx)
			_, errs[i] = inst.Call(ctx, "_start")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Errorf("instance %d: %v", i, errs[i])
		}
		if string(outs[i].Bytes()) != "x" {
			t.Errorf("instance %d stdout = %q", i, outs[i].Bytes())
		}
	}
}

func TestCall_MissingExport(t *testing.T) {
	ctx := context.Background()
	engine, err := New(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close(ctx)

	mod, err := engine.Compile(ctx, wasmbin.Empty())
	if err != nil {
		t.Fatal(err)
	}
	st, _ := newState()
	inst, err := mod.Instantiate(ctx, st)
	if err != nil {
		t.Fatal(err)
	}
	defer inst.Close(ctx)

	if _, err := inst.Call(ctx, "main"); !errors.IsKind(err, errors.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestCall_Params(t *testing.T) {
	ctx := context.Background()
	engine, err := New(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close(ctx)

	mod, err := engine.Compile(ctx, wasmbin.Sum())
	if err != nil {
		t.Fatal(err)
	}
	sig, ok := mod.ExportSignature("sum")
	if !ok || len(sig.Params) != 2 || len(sig.Results) != 1 {
		t.Fatalf("unexpected signature %v (found=%v)", sig, ok)
	}
	if _, ok := mod.ExportSignature("missing"); ok {
		t.Error("expected no signature for missing export")
	}

	st, _ := newState()
	inst, err := mod.Instantiate(ctx, st)
	if err != nil {
		t.Fatal(err)
	}
	defer inst.Close(ctx)

	got, err := inst.Call(ctx, "sum", api.EncodeI32(1), api.EncodeI32(3))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || api.DecodeI32(got[0]) != 4 {
		t.Errorf("sum(1, 3) = %v", got)
	}

	if _, err := inst.Call(ctx, "sum", 1); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Fatalf("expected invalid_input, got %v", err)
	}
}

func TestCloseOnContextDone(t *testing.T) {
	ctx := context.Background()
	engine, err := New(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close(ctx)

	mod, err := engine.Compile(ctx, wasmbin.Spin())
	if err != nil {
		t.Fatal(err)
	}
	st, _ := newState()
	inst, err := mod.Instantiate(ctx, st)
	if err != nil {
		t.Fatal(err)
	}
	defer inst.Close(ctx)

	runCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	_, err = inst.Call(runCtx, "_start")
	var exitErr *sys.ExitError
	if !stderrors.As(err, &exitErr) || exitErr.ExitCode() != sys.ExitCodeDeadlineExceeded {
		t.Fatalf("expected deadline exit, got %v", err)
	}
}

func TestLogger_Default(t *testing.T) {
	if Logger() == nil {
		t.Fatal("Logger() returned nil")
	}
	SetLogger(nil)
	if Logger() == nil {
		t.Fatal("Logger() returned nil after reset")
	}
}
