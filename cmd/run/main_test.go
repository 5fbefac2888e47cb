package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasi-host/internal/wasmbin"
	"github.com/wippyai/wasi-host/runtime"
)

func writeModule(t *testing.T, bin []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "app.wasm")
	require.NoError(t, os.WriteFile(p, bin, 0o644))
	return p
}

func TestParseFlags(t *testing.T) {
	s, err := parseFlags([]string{"-argv", "a,b", "-env", "K=V", "-timeout", "2s", "-func", "sum", "-arg", "1,3", "app.wasm"}, envDefaults{MaxOutput: 64})
	require.NoError(t, err)
	assert.Equal(t, "app.wasm", s.Wasm)
	assert.Equal(t, "sum", s.Func)
	assert.Equal(t, "1,3", s.Arg)
	assert.Equal(t, "a,b", s.Argv)
	assert.Equal(t, 2*time.Second, s.Timeout)
	assert.Equal(t, 64, s.MaxOutput)

	s, err = parseFlags(nil, envDefaults{Timeout: "150ms", MemoryPages: 16})
	require.NoError(t, err)
	assert.Equal(t, 150*time.Millisecond, s.Timeout)
	assert.Equal(t, 16, s.MemoryPages)

	_, err = parseFlags(nil, envDefaults{Timeout: "soon"})
	assert.Error(t, err)
}

func TestBuildConfig(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
args: [tool, one]
env: [A=1]
stdin: from-file
timeout: 3s
preopens:
  /data:
    files:
      in.txt: hello
    read_only: true
`), 0o644))

	cfg, err := buildConfig(settings{Wasm: "app.wasm", ConfigFile: file, Env: "B=2", Preopens: "/tmp=" + dir + ":ro"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tool", "one"}, cfg.Args)
	assert.Equal(t, []string{"A=1", "B=2"}, cfg.Env)
	assert.Equal(t, "from-file", cfg.Stdin)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	require.Contains(t, cfg.Preopens, "/data")
	assert.Equal(t, "hello", cfg.Preopens["/data"].Files["in.txt"])
	assert.Equal(t, runtime.PreopenDir{HostPath: dir, ReadOnly: true}, cfg.Preopens["/tmp"])

	cfg, err = buildConfig(settings{Wasm: "app.wasm"})
	require.NoError(t, err)
	assert.Equal(t, []string{"app.wasm"}, cfg.Args)

	_, err = buildConfig(settings{Wasm: "app.wasm", Env: "NOVALUE"})
	assert.Error(t, err)

	_, err = buildConfig(settings{Wasm: "app.wasm", Preopens: "nohost"})
	assert.Error(t, err)
}

func TestExecute_MirrorsExitCode(t *testing.T) {
	path := writeModule(t, wasmbin.WriteExit("hi\n", 2))

	var out, errOut bytes.Buffer
	code, err := execute(context.Background(), settings{Wasm: path}, streams{out: &out, errOut: &errOut, inIsTerm: true})
	require.NoError(t, err)
	assert.Equal(t, 2, code)
	assert.Equal(t, "hi\n", out.String())
}

func TestExecute_ForwardsPipedStdin(t *testing.T) {
	path := writeModule(t, wasmbin.Echo())

	var out bytes.Buffer
	code, err := execute(context.Background(), settings{Wasm: path}, streams{
		in:     strings.NewReader("piped"),
		out:    &out,
		errOut: &bytes.Buffer{},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "piped", out.String())
}

func TestExecute_CappedOutput(t *testing.T) {
	path := writeModule(t, wasmbin.WriteExit("hello world", -1))

	var out bytes.Buffer
	code, err := execute(context.Background(), settings{Wasm: path, MaxOutput: 5}, streams{out: &out, errOut: &bytes.Buffer{}, inIsTerm: true})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Empty(t, out.String())
}

func TestExecute_Trap(t *testing.T) {
	path := writeModule(t, wasmbin.Trap())

	var errOut bytes.Buffer
	code, err := execute(context.Background(), settings{Wasm: path}, streams{out: &bytes.Buffer{}, errOut: &errOut, inIsTerm: true})
	require.NoError(t, err)
	assert.Equal(t, exitTrap, code)
	assert.Contains(t, errOut.String(), "trapped")
}

func TestExecute_Timeout(t *testing.T) {
	path := writeModule(t, wasmbin.Spin())

	code, err := execute(context.Background(), settings{Wasm: path, Timeout: 50 * time.Millisecond},
		streams{out: &bytes.Buffer{}, errOut: &bytes.Buffer{}, inIsTerm: true})
	require.NoError(t, err)
	assert.Equal(t, exitTimeout, code)
}

func TestExecute_Unsatisfied(t *testing.T) {
	path := writeModule(t, wasmbin.Importing(wasmbin.Preview1, "foo_bar"))

	code, err := execute(context.Background(), settings{Wasm: path}, streams{out: &bytes.Buffer{}, errOut: &bytes.Buffer{}, inIsTerm: true})
	assert.Equal(t, exitFailure, code)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "foo_bar")
}

func TestExecute_CallsExport(t *testing.T) {
	path := writeModule(t, wasmbin.Sum())
	std := func(out *bytes.Buffer) streams {
		return streams{out: out, errOut: &bytes.Buffer{}, inIsTerm: true}
	}

	var out bytes.Buffer
	code, err := execute(context.Background(), settings{Wasm: path, Func: "sum", Arg: "1,3"}, std(&out))
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "Result: 4\n", out.String())

	out.Reset()
	_, err = execute(context.Background(), settings{Wasm: path, Func: "sum", Arg: "-7, 2"}, std(&out))
	require.NoError(t, err)
	assert.Equal(t, "Result: -5\n", out.String())

	_, err = execute(context.Background(), settings{Wasm: path, Func: "sum", Arg: "1"}, std(&bytes.Buffer{}))
	assert.ErrorContains(t, err, "takes 2 arguments")

	_, err = execute(context.Background(), settings{Wasm: path, Func: "sum", Arg: "one,two"}, std(&bytes.Buffer{}))
	assert.Error(t, err)

	_, err = execute(context.Background(), settings{Wasm: path, Func: "sum"}, std(&bytes.Buffer{}))
	assert.Error(t, err)

	_, err = execute(context.Background(), settings{Wasm: path, Func: "product", Arg: "1,2"}, std(&bytes.Buffer{}))
	assert.ErrorContains(t, err, "product")
}

func TestParseValues(t *testing.T) {
	types := []api.ValueType{api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeF64}
	vals, err := parseValues(types, []string{"-1", "0x10", "1.5", "2.25"})
	require.NoError(t, err)
	assert.Equal(t, api.EncodeI32(-1), vals[0])
	assert.Equal(t, uint64(16), vals[1])
	assert.Equal(t, "-1, 16, 1.5, 2.25", formatValues(types, vals))

	_, err = parseValues([]api.ValueType{api.ValueTypeI32}, []string{"5000000000"})
	assert.Error(t, err)
	_, err = parseValues([]api.ValueType{api.ValueTypeExternref}, []string{"1"})
	assert.Error(t, err)
}

func TestExecute_List(t *testing.T) {
	path := writeModule(t, wasmbin.Importing(wasmbin.Preview1, "foo_bar"))

	var out bytes.Buffer
	code, err := execute(context.Background(), settings{Wasm: path, List: true}, streams{out: &out, errOut: &bytes.Buffer{}})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "fd_write")
	assert.Contains(t, out.String(), "unsatisfied")
	assert.Contains(t, out.String(), "_start")
}

func TestExecute_Schema(t *testing.T) {
	var out bytes.Buffer
	code, err := execute(context.Background(), settings{Schema: true}, streams{out: &out, errOut: &bytes.Buffer{}})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "preopens")
}

func TestExecute_NoModule(t *testing.T) {
	var errOut bytes.Buffer
	code, err := execute(context.Background(), settings{}, streams{out: &bytes.Buffer{}, errOut: &errOut})
	assert.Error(t, err)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut.String(), "Usage")
}

func TestExitStatus(t *testing.T) {
	tests := []struct {
		res  runtime.Result
		want int
	}{
		{runtime.Result{State: runtime.StateExited, ExitCode: 7}, 7},
		{runtime.Result{State: runtime.StateCompleted}, 0},
		{runtime.Result{State: runtime.StateTimeout}, exitTimeout},
		{runtime.Result{State: runtime.StateCancelled}, exitCancelled},
		{runtime.Result{State: runtime.StateTrapped}, exitTrap},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitStatus(&tt.res), tt.res.State.String())
	}
}

func TestInteractiveModel_Run(t *testing.T) {
	ctx := context.Background()
	rt, err := runtime.New(ctx)
	require.NoError(t, err)
	defer rt.Close(ctx)

	mod, err := rt.Compile(ctx, wasmbin.ExitArgc())
	require.NoError(t, err)

	m := newInteractiveModel(ctx, mod, runtime.Config{Args: []string{"prog"}}, "argc.wasm")
	assert.Contains(t, m.View(), "args_sizes_get")
	assert.Equal(t, "prog", m.inputs[fieldArgv].Value())

	m.inputs[fieldArgv].SetValue("a,b,c")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, stateRunning, m.state)

	m.Update(cmd())
	assert.Equal(t, stateShowResult, m.state)
	require.NoError(t, m.err)
	assert.Equal(t, int32(3), m.result.ExitCode)
	assert.Contains(t, m.View(), "exit 3")

	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, stateEdit, m.state)

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, fieldEnv, m.focusIdx)
}
