package preview1

import (
	"sort"
	"strings"

	"github.com/tetratelabs/wazero/api"
)

// Function describes one preview1 import: its exact core signature and
// the host implementation.
type Function struct {
	Handler Handler
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
	// Implemented is false for functions that always return ENOSYS.
	Implemented bool
}

// Signature renders the function type, e.g. "(i32, i32) -> (i32)".
func (f *Function) Signature() string {
	return FormatSignature(f.Params, f.Results)
}

// Matches reports whether the given core types equal the function's.
func (f *Function) Matches(params, results []api.ValueType) bool {
	return sameTypes(f.Params, params) && sameTypes(f.Results, results)
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// FormatSignature renders core value types in text-format notation.
func FormatSignature(params, results []api.ValueType) string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(api.ValueTypeName(p))
	}
	b.WriteString(") -> (")
	for i, r := range results {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(api.ValueTypeName(r))
	}
	b.WriteByte(')')
	return b.String()
}

const (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

func sig(params ...api.ValueType) []api.ValueType { return params }

var errnoResult = []api.ValueType{i32}

func fn(name string, h Handler, params ...api.ValueType) *Function {
	return &Function{Name: name, Handler: h, Params: params, Results: errnoResult, Implemented: true}
}

func stub(name string, params ...api.ValueType) *Function {
	return &Function{Name: name, Handler: notSupported, Params: params, Results: errnoResult}
}

var functions = map[string]*Function{}

func register(fs ...*Function) {
	for _, f := range fs {
		functions[f.Name] = f
	}
}

func init() {
	register(
		fn("args_get", argsGet, i32, i32),
		fn("args_sizes_get", argsSizesGet, i32, i32),
		fn("environ_get", environGet, i32, i32),
		fn("environ_sizes_get", environSizesGet, i32, i32),

		fn("clock_res_get", clockResGet, i32, i32),
		fn("clock_time_get", clockTimeGet, i32, i64, i32),

		stub("fd_advise", i32, i64, i64, i32),
		stub("fd_allocate", i32, i64, i64),
		fn("fd_close", fdClose, i32),
		fn("fd_datasync", fdDatasync, i32),
		fn("fd_fdstat_get", fdFdstatGet, i32, i32),
		fn("fd_fdstat_set_flags", fdFdstatSetFlags, i32, i32),
		stub("fd_fdstat_set_rights", i32, i64, i64),
		fn("fd_filestat_get", fdFilestatGet, i32, i32),
		fn("fd_filestat_set_size", fdFilestatSetSize, i32, i64),
		stub("fd_filestat_set_times", i32, i64, i64, i32),
		fn("fd_pread", fdPread, i32, i32, i32, i64, i32),
		fn("fd_prestat_get", fdPrestatGet, i32, i32),
		fn("fd_prestat_dir_name", fdPrestatDirName, i32, i32, i32),
		fn("fd_pwrite", fdPwrite, i32, i32, i32, i64, i32),
		fn("fd_read", fdRead, i32, i32, i32, i32),
		fn("fd_readdir", fdReaddir, i32, i32, i32, i64, i32),
		stub("fd_renumber", i32, i32),
		fn("fd_seek", fdSeek, i32, i64, i32, i32),
		fn("fd_sync", fdSync, i32),
		fn("fd_tell", fdTell, i32, i32),
		fn("fd_write", fdWrite, i32, i32, i32, i32),

		fn("path_create_directory", pathCreateDirectory, i32, i32, i32),
		fn("path_filestat_get", pathFilestatGet, i32, i32, i32, i32, i32),
		stub("path_filestat_set_times", i32, i32, i32, i32, i64, i64, i32),
		stub("path_link", i32, i32, i32, i32, i32, i32, i32),
		fn("path_open", pathOpen, i32, i32, i32, i32, i32, i64, i64, i32, i32),
		stub("path_readlink", i32, i32, i32, i32, i32, i32),
		fn("path_remove_directory", pathRemoveDirectory, i32, i32, i32),
		fn("path_rename", pathRename, i32, i32, i32, i32, i32, i32),
		stub("path_symlink", i32, i32, i32, i32, i32),
		fn("path_unlink_file", pathUnlinkFile, i32, i32, i32),

		fn("poll_oneoff", pollOneoff, i32, i32, i32, i32),
		&Function{Name: "proc_exit", Handler: procExit, Params: sig(i32), Implemented: true},
		stub("proc_raise", i32),
		fn("sched_yield", schedYield),
		fn("random_get", randomGet, i32, i32),

		stub("sock_accept", i32, i32, i32),
		stub("sock_recv", i32, i32, i32, i32, i32, i32),
		stub("sock_send", i32, i32, i32, i32, i32),
		stub("sock_shutdown", i32, i32),
	)
}

// Lookup returns the preview1 function called name.
func Lookup(name string) (*Function, bool) {
	f, ok := functions[name]
	return f, ok
}

// Functions returns every preview1 function sorted by name.
func Functions() []*Function {
	out := make([]*Function, 0, len(functions))
	for _, f := range functions {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func notSupported(*Call) Outcome {
	return Fail(ErrnoNosys)
}
