package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/davidmdm/conf"
	"github.com/davidmdm/x/xcontext"
	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasi-host/engine"
	"github.com/wippyai/wasi-host/runtime"
)

// Exit statuses for sessions that did not end through proc_exit.
const (
	exitFailure   = 1
	exitTrap      = 134
	exitTimeout   = 124
	exitCancelled = 130
)

type settings struct {
	Wasm        string
	Func        string
	Arg         string
	Argv        string
	Env         string
	Preopens    string
	Stdin       string
	ConfigFile  string
	Timeout     time.Duration
	MaxOutput   int
	MemoryPages int
	List        bool
	Schema      bool
	Interactive bool
	Verbose     bool
}

// envDefaults are read from WASIHOST_* variables before flags are parsed.
type envDefaults struct {
	Timeout     string
	MaxOutput   int
	MemoryPages int
}

func loadEnvDefaults() (envDefaults, error) {
	var d envDefaults
	conf.Var(conf.Environ, &d.MemoryPages, "WASIHOST_MEMORY_LIMIT_PAGES")
	conf.Var(conf.Environ, &d.Timeout, "WASIHOST_TIMEOUT")
	conf.Var(conf.Environ, &d.MaxOutput, "WASIHOST_MAX_OUTPUT")
	err := conf.Environ.Parse()
	return d, err
}

func parseFlags(args []string, defaults envDefaults) (settings, error) {
	var s settings

	timeout := time.Duration(0)
	if defaults.Timeout != "" {
		d, err := time.ParseDuration(defaults.Timeout)
		if err != nil {
			return s, fmt.Errorf("WASIHOST_TIMEOUT: %w", err)
		}
		timeout = d
	}

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.StringVar(&s.Wasm, "wasm", "", "Path to a preview1 module (.wasm or .wasm.br)")
	fs.StringVar(&s.Func, "func", "", "Export to call instead of _start")
	fs.StringVar(&s.Arg, "arg", "", "Arguments for -func (comma-separated numbers)")
	fs.StringVar(&s.Argv, "argv", "", "Guest arguments (comma-separated)")
	fs.StringVar(&s.Env, "env", "", "Environment variables (KEY=VAL,KEY2=VAL2)")
	fs.StringVar(&s.Preopens, "preopen", "", "Preopened directories (guest=host,guest2=host2); an empty host mounts memory")
	fs.StringVar(&s.Stdin, "stdin", "", "Stdin data")
	fs.StringVar(&s.ConfigFile, "config", "", "YAML run file")
	fs.DurationVar(&s.Timeout, "timeout", timeout, "Whole-run deadline")
	fs.IntVar(&s.MaxOutput, "max-output", defaults.MaxOutput, "Cap on captured stdout/stderr bytes")
	fs.IntVar(&s.MemoryPages, "memory-pages", defaults.MemoryPages, "Memory limit in 64KiB pages")
	fs.BoolVar(&s.List, "list", false, "List imports and exports and exit")
	fs.BoolVar(&s.Schema, "schema", false, "Print the JSON Schema of run files and exit")
	fs.BoolVar(&s.Interactive, "i", false, "Interactive mode with TUI")
	fs.BoolVar(&s.Verbose, "v", false, "Verbose logging")

	if err := fs.Parse(args); err != nil {
		return s, err
	}
	if s.Wasm == "" && fs.NArg() > 0 {
		s.Wasm = fs.Arg(0)
	}
	return s, nil
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	ctx, done := xcontext.WithSignalCancelation(context.Background(), syscall.SIGINT)
	defer done()

	defaults, err := loadEnvDefaults()
	if err != nil {
		return exitFailure, err
	}
	s, err := parseFlags(os.Args[1:], defaults)
	if err != nil {
		if stderrors.Is(err, flag.ErrHelp) {
			return 0, nil
		}
		return exitFailure, err
	}

	return execute(ctx, s, streams{
		in:       os.Stdin,
		out:      os.Stdout,
		errOut:   os.Stderr,
		inIsTerm: term.IsTerminal(int(os.Stdin.Fd())),
	})
}

type streams struct {
	in       io.Reader
	out      io.Writer
	errOut   io.Writer
	inIsTerm bool
}

func execute(ctx context.Context, s settings, std streams) (int, error) {
	if s.Schema {
		schema, err := runtime.ConfigSchema()
		if err != nil {
			return exitFailure, err
		}
		fmt.Fprintln(std.out, string(schema))
		return 0, nil
	}
	if s.Wasm == "" {
		fmt.Fprintln(std.errOut, "Usage: run -wasm <file.wasm> [-func name] [-arg 1,2] [-argv a,b] [-env K=V,...] [-preopen guest=host,...]")
		fmt.Fprintln(std.errOut, "       run -wasm <file.wasm> -list")
		fmt.Fprintln(std.errOut, "       run -wasm <file.wasm> -i  (interactive mode)")
		return exitFailure, fmt.Errorf("no module given")
	}

	logger := zap.NewNop()
	if s.Verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return exitFailure, err
		}
		logger = l
		engine.SetLogger(l)
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := buildConfig(s)
	if err != nil {
		return exitFailure, err
	}

	data, err := runtime.ReadModule(s.Wasm)
	if err != nil {
		return exitFailure, err
	}

	engineCfg := engine.DefaultConfig()
	engineCfg.MemoryLimitPages = uint32(max(s.MemoryPages, 0))
	rt, err := runtime.New(ctx, runtime.WithLogger(logger), runtime.WithEngineConfig(engineCfg))
	if err != nil {
		return exitFailure, err
	}
	defer rt.Close(context.WithoutCancel(ctx))

	mod, err := rt.Compile(ctx, data)
	if err != nil {
		return exitFailure, fmt.Errorf("compile %s: %w", s.Wasm, err)
	}

	if s.List {
		printModule(std.out, mod)
		return 0, nil
	}
	sig, hasEntry := mod.ExportSignature(cfg.EntryPoint)
	if s.Arg != "" {
		if !hasEntry {
			return exitFailure, fmt.Errorf("export %q not found", cfg.EntryPoint)
		}
		params, err := parseValues(sig.Params, splitList(s.Arg))
		if err != nil {
			return exitFailure, fmt.Errorf("%s%s: %w", cfg.EntryPoint, sig, err)
		}
		cfg.EntryParams = params
	}

	if s.Interactive {
		return 0, runInteractive(ctx, mod, cfg, s.Wasm)
	}

	if cfg.Stdin == "" && !std.inIsTerm && std.in != nil {
		cfg.StdinReader = std.in
	}
	// A capped run is captured and printed afterwards; otherwise output
	// streams straight through.
	capped := cfg.MaxOutputBytes > 0
	if !capped {
		cfg.Stdout = std.out
		cfg.Stderr = std.errOut
	}

	res, err := mod.Run(ctx, cfg)
	if err != nil {
		return exitFailure, err
	}
	if capped {
		_, _ = std.out.Write(res.Stdout)
		_, _ = std.errOut.Write(res.Stderr)
	}
	if len(res.Returns) > 0 {
		fmt.Fprintf(std.out, "Result: %s\n", formatValues(sig.Results, res.Returns))
	}
	if res.Trap != nil {
		fmt.Fprintf(std.errOut, "%s\n", res)
	}
	return exitStatus(res), nil
}

// buildConfig loads the run file, if any, and applies flags on top.
func buildConfig(s settings) (runtime.Config, error) {
	var cfg runtime.Config
	if s.ConfigFile != "" {
		data, err := os.ReadFile(s.ConfigFile)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if s.Func != "" {
		cfg.EntryPoint = s.Func
	}
	if cfg.EntryPoint == "" {
		cfg.EntryPoint = runtime.DefaultEntryPoint
	}
	if s.Argv != "" {
		cfg.Args = splitList(s.Argv)
	}
	if len(cfg.Args) == 0 {
		cfg.Args = []string{s.Wasm}
	}
	if s.Env != "" {
		cfg.Env = append(cfg.Env, splitList(s.Env)...)
	}
	if s.Preopens != "" {
		pre, err := parsePreopens(s.Preopens)
		if err != nil {
			return cfg, err
		}
		if cfg.Preopens == nil {
			cfg.Preopens = make(map[string]runtime.PreopenDir)
		}
		for guest, dir := range pre {
			cfg.Preopens[guest] = dir
		}
	}
	if s.Stdin != "" {
		cfg.Stdin = s.Stdin
	}
	if s.Timeout > 0 {
		cfg.Timeout = s.Timeout
	}
	if s.MaxOutput > 0 {
		cfg.MaxOutputBytes = s.MaxOutput
	}
	if s.Verbose {
		cfg.TraceSyscalls = true
	}
	return cfg, cfg.Validate()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parsePreopens(s string) (map[string]runtime.PreopenDir, error) {
	out := make(map[string]runtime.PreopenDir)
	for _, mapping := range splitList(s) {
		guest, host, ok := strings.Cut(mapping, "=")
		if !ok || guest == "" {
			return nil, fmt.Errorf("invalid preopen %q: want guest=host", mapping)
		}
		readOnly := false
		if h, found := strings.CutSuffix(host, ":ro"); found {
			host, readOnly = h, true
		}
		out[guest] = runtime.PreopenDir{HostPath: host, ReadOnly: readOnly}
	}
	return out, nil
}

func exitStatus(res *runtime.Result) int {
	switch res.State {
	case runtime.StateExited, runtime.StateCompleted:
		return int(res.ExitCode)
	case runtime.StateTimeout:
		return exitTimeout
	case runtime.StateCancelled:
		return exitCancelled
	default:
		return exitTrap
	}
}

func printModule(w io.Writer, mod *runtime.Module) {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleRounded)
	tbl.AppendHeader(table.Row{"Module", "Import", "Signature", "Status"})
	for _, imp := range mod.Imports() {
		tbl.AppendRow(table.Row{imp.Module, imp.Name, imp.Signature, importStatus(imp)})
	}
	fmt.Fprintln(w, tbl.Render())

	exports := table.NewWriter()
	exports.SetStyle(table.StyleRounded)
	exports.AppendHeader(table.Row{"Export"})
	for _, name := range mod.Exports() {
		exports.AppendRow(table.Row{name})
	}
	fmt.Fprintln(w, exports.Render())
}

func importStatus(imp runtime.ImportStatus) string {
	switch {
	case !imp.Resolved:
		return "unsatisfied: " + imp.Reason
	case !imp.Implemented:
		return "ENOSYS"
	default:
		return "ok"
	}
}
