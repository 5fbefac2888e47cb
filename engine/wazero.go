package engine

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-host/errors"
	"github.com/wippyai/wasi-host/wasi/preview1"
)

// MaxMemoryPages is the largest memory a 32-bit guest can address.
const MaxMemoryPages = 65536

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means the engine default (65536 pages = 4GB).
	MemoryLimitPages uint32 `yaml:"memory_limit_pages" json:"memory_limit_pages,omitempty" validate:"lte=65536"`

	// CloseOnContextDone stops running guest code when the call context is
	// cancelled or its deadline passes, including code that never calls the host.
	CloseOnContextDone bool `yaml:"close_on_context_done" json:"close_on_context_done,omitempty"`
}

// DefaultConfig interrupts guests on context cancellation.
func DefaultConfig() Config {
	return Config{CloseOnContextDone: true}
}

// Engine wraps one wazero runtime with the preview1 host module installed.
type Engine struct {
	runtime      wazero.Runtime
	hostInitMu   sync.Mutex
	hostInitDone atomic.Bool
}

// New creates an engine. A nil cfg uses DefaultConfig.
func New(ctx context.Context, cfg *Config) (*Engine, error) {
	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}
	if c.MemoryLimitPages > MaxMemoryPages {
		return nil, errors.InvalidInput(errors.PhaseConfig, "memory limit exceeds 65536 pages")
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if c.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(c.MemoryLimitPages)
	}
	if c.CloseOnContextDone {
		runtimeCfg = runtimeCfg.WithCloseOnContextDone(true)
	}

	return &Engine{runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg)}, nil
}

// Close releases the runtime and every module compiled or instantiated in it.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// InitHost instantiates the preview1 host module for this engine's runtime.
// Safe for concurrent calls from multiple modules sharing the same engine.
func (e *Engine) InitHost(ctx context.Context) error {
	if e.hostInitDone.Load() {
		return nil
	}

	e.hostInitMu.Lock()
	defer e.hostInitMu.Unlock()

	if e.hostInitDone.Load() {
		return nil
	}

	if e.runtime.Module(preview1.ModuleName) != nil {
		e.hostInitDone.Store(true)
		return nil
	}

	if _, err := preview1.Install(ctx, e.runtime); err != nil {
		if e.runtime.Module(preview1.ModuleName) == nil {
			return err
		}
	}

	Logger().Debug("host module installed", zap.String("module", preview1.ModuleName))
	e.hostInitDone.Store(true)
	return nil
}

// Compile decodes and validates wasmBytes and records its imports and exports.
func (e *Engine) Compile(ctx context.Context, wasmBytes []byte) (*Module, error) {
	if len(wasmBytes) == 0 {
		return nil, errors.New(errors.PhaseValidate, errors.KindValidation).
			Detail("empty module").
			Build()
	}
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Validation(err)
	}

	m := &Module{engine: e, compiled: compiled}
	for _, def := range compiled.ImportedFunctions() {
		mod, name, _ := def.Import()
		m.imports = append(m.imports, preview1.Import{
			Module:  mod,
			Name:    name,
			Params:  def.ParamTypes(),
			Results: def.ResultTypes(),
		})
	}
	for _, def := range compiled.ImportedMemories() {
		mod, name, _ := def.Import()
		m.imports = append(m.imports, preview1.Import{Module: mod, Name: name, Memory: true})
	}
	m.signatures = make(map[string]Signature)
	for name, def := range compiled.ExportedFunctions() {
		m.exports = append(m.exports, name)
		m.signatures[name] = Signature{Params: def.ParamTypes(), Results: def.ResultTypes()}
	}
	sort.Strings(m.exports)
	_, m.exportsMemory = compiled.ExportedMemories()["memory"]

	Logger().Debug("module compiled",
		zap.Int("imports", len(m.imports)),
		zap.Strings("exports", m.exports))
	return m, nil
}

// Module is a compiled guest module. It is immutable and may be
// instantiated any number of times, concurrently.
type Module struct {
	engine        *Engine
	compiled      wazero.CompiledModule
	signatures    map[string]Signature
	imports       []preview1.Import
	exports       []string
	exportsMemory bool
}

// Signature is the core type of an exported function.
type Signature struct {
	Params  []api.ValueType
	Results []api.ValueType
}

func (s Signature) String() string {
	return preview1.FormatSignature(s.Params, s.Results)
}

// Imports returns the module's imports in declaration order.
func (m *Module) Imports() []preview1.Import {
	return append([]preview1.Import(nil), m.imports...)
}

// Exports returns the names of exported functions, sorted.
func (m *Module) Exports() []string {
	return append([]string(nil), m.exports...)
}

// HasExport reports whether name is an exported function.
func (m *Module) HasExport(name string) bool {
	i := sort.SearchStrings(m.exports, name)
	return i < len(m.exports) && m.exports[i] == name
}

// ExportSignature returns the type of the exported function name.
func (m *Module) ExportSignature(name string) (Signature, bool) {
	sig, ok := m.signatures[name]
	return sig, ok
}

// ExportsMemory reports whether the module exports its memory as "memory".
func (m *Module) ExportsMemory() bool {
	return m.exportsMemory
}

// Resolve matches every import against the preview1 surface.
func (m *Module) Resolve() ([]preview1.Resolution, error) {
	return preview1.Resolve(m.imports)
}

// Instantiate creates an instance bound to st. The module's start section,
// if any, runs here with st attached; exported entry points are not called.
func (m *Module) Instantiate(ctx context.Context, st *preview1.State) (*Instance, error) {
	if err := m.engine.InitHost(ctx); err != nil {
		return nil, err
	}

	modConfig := wazero.NewModuleConfig().
		WithName(""). // anonymous for parallel instantiation
		WithStartFunctions()

	mod, err := m.engine.runtime.InstantiateModule(preview1.WithState(ctx, st), m.compiled, modConfig)
	if err != nil {
		return nil, err
	}
	return &Instance{module: m, instance: mod, state: st}, nil
}

// Close releases the compiled code.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

// Instance is one running incarnation of a Module. It is not safe for
// concurrent calls.
type Instance struct {
	module   *Module
	instance api.Module
	state    *preview1.State
}

// Call invokes the exported function name with params encoded as in
// api.Function. The parameter count must match the export's type.
func (i *Instance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	fn := i.instance.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRun, "export", name)
	}
	if want := len(fn.Definition().ParamTypes()); want != len(params) {
		return nil, errors.New(errors.PhaseRun, errors.KindInvalidInput).
			Path(name).
			Detail("export takes %d parameters, got %d", want, len(params)).
			Build()
	}
	return fn.Call(preview1.WithState(ctx, i.state), params...)
}

// Close releases the instance. Closing an instance that already exited is
// not an error.
func (i *Instance) Close(ctx context.Context) error {
	if i.instance == nil {
		return nil
	}
	err := i.instance.Close(ctx)
	i.instance = nil
	return err
}
