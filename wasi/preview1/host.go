package preview1

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasi-host/errors"
)

// Install instantiates the wasi_snapshot_preview1 host module in r with
// every preview1 function. Session state is resolved per call from the
// context, so one installation serves all sessions of the runtime.
func Install(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	builder := r.NewHostModuleBuilder(ModuleName)
	for _, f := range Functions() {
		f := f
		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				dispatch(f, ctx, mod, stack)
			}), f.Params, f.Results).
			WithName(f.Name).
			Export(f.Name)
	}
	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, errors.Registration(ModuleName, "*", err)
	}
	return mod, nil
}

// Import is one import declared by a guest module. Memory is set for
// memory imports, which the surface never provides.
type Import struct {
	Module  string
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
	Memory  bool
}

// Signature renders the import's type.
func (imp Import) Signature() string {
	if imp.Memory {
		return "memory"
	}
	return FormatSignature(imp.Params, imp.Results)
}

// Resolution is the outcome of matching an import against the surface.
type Resolution struct {
	Function *Function
	Reason   string
	Import   Import
}

// Resolved reports whether the import is satisfied.
func (r Resolution) Resolved() bool {
	return r.Function != nil
}

// ResolveImport matches one import by module, name and signature.
func ResolveImport(imp Import) Resolution {
	res := Resolution{Import: imp}
	if imp.Memory {
		res.Reason = "memory imports are not provided"
		return res
	}
	if imp.Module != ModuleName {
		res.Reason = "unknown module"
		return res
	}
	f, ok := Lookup(imp.Name)
	if !ok {
		res.Reason = "not provided by " + ModuleName
		return res
	}
	if !f.Matches(imp.Params, imp.Results) {
		res.Reason = "signature mismatch: host provides " + f.Signature()
		return res
	}
	res.Function = f
	return res
}

// Resolve checks every import and fails with *errors.UnsatisfiedImportError
// naming each one the surface cannot satisfy.
func Resolve(imports []Import) ([]Resolution, error) {
	out := make([]Resolution, 0, len(imports))
	var missing []errors.MissingImport
	for _, imp := range imports {
		res := ResolveImport(imp)
		out = append(out, res)
		if !res.Resolved() {
			missing = append(missing, errors.MissingImport{
				Module:    imp.Module,
				Function:  imp.Name,
				Signature: imp.Signature(),
				Reason:    res.Reason,
			})
		}
	}
	if len(missing) > 0 {
		return out, errors.NewUnsatisfiedImportError(missing...)
	}
	return out, nil
}
