package wasmbin

import "encoding/binary"

// Preview1 is the import module name of the WASI preview1 surface.
const Preview1 = "wasi_snapshot_preview1"

var preview1Types = map[string]FuncType{
	"args_sizes_get": {Params: []ValType{I32, I32}, Results: []ValType{I32}},
	"args_get":       {Params: []ValType{I32, I32}, Results: []ValType{I32}},
	"clock_time_get": {Params: []ValType{I32, I64, I32}, Results: []ValType{I32}},
	"fd_read":        {Params: []ValType{I32, I32, I32, I32}, Results: []ValType{I32}},
	"fd_write":       {Params: []ValType{I32, I32, I32, I32}, Results: []ValType{I32}},
	"proc_exit":      {Params: []ValType{I32}},
	"random_get":     {Params: []ValType{I32, I32}, Results: []ValType{I32}},
	"sched_yield":    {Results: []ValType{I32}},
}

// ImportWASI imports the named preview1 function with its standard signature.
func (m *Module) ImportWASI(name string) uint32 {
	t, ok := preview1Types[name]
	if !ok {
		panic("wasmbin: no signature for " + name)
	}
	return m.ImportFunc(Preview1, name, t.Params, t.Results)
}

// LE32 encodes values as consecutive little-endian words.
func LE32(vals ...uint32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[4*i:], v)
	}
	return b
}

// command finishes a module with one page of exported memory and an
// exported _start built from body.
func command(m *Module, body *Code) []byte {
	m.Memory(1).ExportMemory("memory")
	m.ExportFunc("_start", m.Func(nil, nil, nil, body))
	return m.Bytes()
}

// writeCall emits fd_write(fd, iovs, 1, scratch) and drops the status.
func writeCall(c *Code, fdWrite, fd, iovs, scratch uint32) *Code {
	return c.I32Const(int32(fd)).I32Const(int32(iovs)).I32Const(1).I32Const(int32(scratch)).
		Call(fdWrite).Drop()
}

// WriteExit writes text to stdout and then calls proc_exit(code). A
// negative code returns from _start instead of exiting.
func WriteExit(text string, code int32) []byte {
	m := New()
	fdWrite := m.ImportWASI("fd_write")
	procExit := m.ImportWASI("proc_exit")
	m.Data(0, LE32(64, uint32(len(text))))
	m.Data(64, []byte(text))

	body := writeCall(NewCode(), fdWrite, 1, 0, 16)
	if code >= 0 {
		body.I32Const(code).Call(procExit)
	}
	return command(m, body)
}

// WriteTo writes text to each of the given descriptors in order.
func WriteTo(text string, fds ...uint32) []byte {
	m := New()
	fdWrite := m.ImportWASI("fd_write")
	m.Data(0, LE32(64, uint32(len(text))))
	m.Data(64, []byte(text))

	body := NewCode()
	for _, fd := range fds {
		writeCall(body, fdWrite, fd, 0, 16)
	}
	return command(m, body)
}

// ReadClosed calls fd_read on fd. When the status is EBADF it writes
// "ebadf\n"; either way it then writes "done\n" and returns.
func ReadClosed(fd uint32) []byte {
	m := New()
	fdRead := m.ImportWASI("fd_read")
	fdWrite := m.ImportWASI("fd_write")
	m.Data(0, LE32(256, 16))
	m.Data(32, LE32(128, 6))
	m.Data(48, LE32(144, 5))
	m.Data(128, []byte("ebadf\n"))
	m.Data(144, []byte("done\n"))

	body := NewCode().
		I32Const(int32(fd)).I32Const(0).I32Const(1).I32Const(24).Call(fdRead).
		I32Const(8).I32Eq().
		If()
	writeCall(body, fdWrite, 1, 32, 24).End()
	writeCall(body, fdWrite, 1, 48, 24)
	return command(m, body)
}

// Echo copies one read of up to 256 bytes from stdin to stdout.
func Echo() []byte {
	m := New()
	fdRead := m.ImportWASI("fd_read")
	fdWrite := m.ImportWASI("fd_write")
	m.Data(0, LE32(64, 256))
	m.Data(16, LE32(64, 0))

	body := NewCode().
		I32Const(0).I32Const(0).I32Const(1).I32Const(8).Call(fdRead).Drop().
		I32Const(20).I32Const(8).I32Load(0).I32Store(0)
	writeCall(body, fdWrite, 1, 16, 12)
	return command(m, body)
}

// ExitArgc exits with the number of command-line arguments.
func ExitArgc() []byte {
	m := New()
	sizes := m.ImportWASI("args_sizes_get")
	procExit := m.ImportWASI("proc_exit")
	body := NewCode().
		I32Const(0).I32Const(4).Call(sizes).Drop().
		I32Const(0).I32Load(0).Call(procExit)
	return command(m, body)
}

// Trap executes unreachable from _start.
func Trap() []byte {
	m := New()
	return command(m, NewCode().Unreachable())
}

// WriteTrap writes text to stdout and then executes unreachable.
func WriteTrap(text string) []byte {
	m := New()
	fdWrite := m.ImportWASI("fd_write")
	m.Data(0, LE32(64, uint32(len(text))))
	m.Data(64, []byte(text))
	return command(m, writeCall(NewCode(), fdWrite, 1, 0, 16).Unreachable())
}

// Sum exports sum(a, b i32) i32 beside an empty _start.
func Sum() []byte {
	m := New()
	add := m.Func([]ValType{I32, I32}, []ValType{I32}, nil, NewCode().LocalGet(0).LocalGet(1).I32Add())
	m.ExportFunc("sum", add)
	return command(m, NewCode())
}

// StartTrap traps in the start function, before any entry point runs.
func StartTrap() []byte {
	m := New()
	m.Start(m.Func(nil, nil, nil, NewCode().Unreachable()))
	return command(m, NewCode())
}

// StartExit calls proc_exit(code) from the start function.
func StartExit(code int32) []byte {
	m := New()
	procExit := m.ImportWASI("proc_exit")
	m.Start(m.Func(nil, nil, nil, NewCode().I32Const(code).Call(procExit)))
	return command(m, NewCode())
}

// Spin loops forever without calling the host.
func Spin() []byte {
	m := New()
	return command(m, NewCode().Loop().Br(0).End())
}

// SpinYield loops forever calling sched_yield.
func SpinYield() []byte {
	m := New()
	yield := m.ImportWASI("sched_yield")
	return command(m, NewCode().Loop().Call(yield).Drop().Br(0).End())
}

// Importing declares an (i32) -> i32 import module.name beside fd_write.
func Importing(module, name string) []byte {
	m := New()
	m.ImportWASI("fd_write")
	m.ImportFunc(module, name, []ValType{I32}, []ValType{I32})
	return command(m, NewCode())
}

// Empty is a command whose _start returns immediately.
func Empty() []byte {
	return command(New(), NewCode())
}
