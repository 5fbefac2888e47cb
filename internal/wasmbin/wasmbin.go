// Package wasmbin assembles small core WebAssembly binaries.
//
// It covers what host tests need: function types, function imports, one
// memory, exported functions, active data segments and flat code bodies.
// Imported functions take the lowest indices, so every import must be
// declared before the first local function.
package wasmbin

import (
	"bytes"
	"fmt"
)

// ValType is a core value type.
type ValType byte

const (
	I32 ValType = 0x7f
	I64 ValType = 0x7e
)

const (
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionExport   = 7
	sectionStart    = 8
	sectionCode     = 10
	sectionData     = 11

	kindFunc   = 0x00
	kindMemory = 0x02
)

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (t FuncType) key() string {
	return string(valBytes(t.Params)) + "|" + string(valBytes(t.Results))
}

type funcImport struct {
	module, name string
	typeIdx      uint32
}

type function struct {
	typeIdx uint32
	locals  []ValType
	body    []byte
}

type export struct {
	name string
	kind byte
	idx  uint32
}

type segment struct {
	offset uint32
	data   []byte
}

// Module accumulates the sections of one binary.
type Module struct {
	types    []FuncType
	typeIdx  map[string]uint32
	imports  []funcImport
	funcs    []function
	exports  []export
	data     []segment
	start    *uint32
	memPages uint32
	hasMem   bool
}

// New returns an empty module.
func New() *Module {
	return &Module{typeIdx: make(map[string]uint32)}
}

// Type interns a signature and returns its index.
func (m *Module) Type(params, results []ValType) uint32 {
	t := FuncType{Params: params, Results: results}
	if idx, ok := m.typeIdx[t.key()]; ok {
		return idx
	}
	idx := uint32(len(m.types))
	m.types = append(m.types, t)
	m.typeIdx[t.key()] = idx
	return idx
}

// ImportFunc declares a function import and returns its function index.
func (m *Module) ImportFunc(module, name string, params, results []ValType) uint32 {
	if len(m.funcs) > 0 {
		panic("wasmbin: imports must precede local functions")
	}
	m.imports = append(m.imports, funcImport{module: module, name: name, typeIdx: m.Type(params, results)})
	return uint32(len(m.imports) - 1)
}

// Func adds a local function and returns its function index.
func (m *Module) Func(params, results, locals []ValType, body *Code) uint32 {
	m.funcs = append(m.funcs, function{
		typeIdx: m.Type(params, results),
		locals:  locals,
		body:    body.Bytes(),
	})
	return uint32(len(m.imports) + len(m.funcs) - 1)
}

// Memory declares the module's memory with an initial size in pages.
func (m *Module) Memory(pages uint32) *Module {
	m.memPages = pages
	m.hasMem = true
	return m
}

// ExportFunc exports function idx as name.
func (m *Module) ExportFunc(name string, idx uint32) *Module {
	m.exports = append(m.exports, export{name: name, kind: kindFunc, idx: idx})
	return m
}

// ExportMemory exports memory 0 as name.
func (m *Module) ExportMemory(name string) *Module {
	m.exports = append(m.exports, export{name: name, kind: kindMemory})
	return m
}

// Data places b at offset when the module is instantiated.
func (m *Module) Data(offset uint32, b []byte) *Module {
	m.data = append(m.data, segment{offset: offset, data: append([]byte(nil), b...)})
	return m
}

// Start marks function idx as the start function.
func (m *Module) Start(idx uint32) *Module {
	m.start = &idx
	return m
}

// Bytes encodes the module.
func (m *Module) Bytes() []byte {
	var out bytes.Buffer
	out.Write([]byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00})

	if len(m.types) > 0 {
		var sec bytes.Buffer
		putU32(&sec, uint32(len(m.types)))
		for _, t := range m.types {
			sec.WriteByte(0x60)
			putVals(&sec, t.Params)
			putVals(&sec, t.Results)
		}
		putSection(&out, sectionType, sec.Bytes())
	}

	if len(m.imports) > 0 {
		var sec bytes.Buffer
		putU32(&sec, uint32(len(m.imports)))
		for _, imp := range m.imports {
			putName(&sec, imp.module)
			putName(&sec, imp.name)
			sec.WriteByte(kindFunc)
			putU32(&sec, imp.typeIdx)
		}
		putSection(&out, sectionImport, sec.Bytes())
	}

	if len(m.funcs) > 0 {
		var sec bytes.Buffer
		putU32(&sec, uint32(len(m.funcs)))
		for _, f := range m.funcs {
			putU32(&sec, f.typeIdx)
		}
		putSection(&out, sectionFunction, sec.Bytes())
	}

	if m.hasMem {
		var sec bytes.Buffer
		putU32(&sec, 1)
		sec.WriteByte(0x00)
		putU32(&sec, m.memPages)
		putSection(&out, sectionMemory, sec.Bytes())
	}

	if len(m.exports) > 0 {
		var sec bytes.Buffer
		putU32(&sec, uint32(len(m.exports)))
		for _, e := range m.exports {
			putName(&sec, e.name)
			sec.WriteByte(e.kind)
			putU32(&sec, e.idx)
		}
		putSection(&out, sectionExport, sec.Bytes())
	}

	if m.start != nil {
		var sec bytes.Buffer
		putU32(&sec, *m.start)
		putSection(&out, sectionStart, sec.Bytes())
	}

	if len(m.funcs) > 0 {
		var sec bytes.Buffer
		putU32(&sec, uint32(len(m.funcs)))
		for _, f := range m.funcs {
			var body bytes.Buffer
			putLocals(&body, f.locals)
			body.Write(f.body)
			body.WriteByte(opEnd)
			putU32(&sec, uint32(body.Len()))
			sec.Write(body.Bytes())
		}
		putSection(&out, sectionCode, sec.Bytes())
	}

	if len(m.data) > 0 {
		var sec bytes.Buffer
		putU32(&sec, uint32(len(m.data)))
		for _, d := range m.data {
			sec.WriteByte(0x00)
			sec.WriteByte(opI32Const)
			putS64(&sec, int64(d.offset))
			sec.WriteByte(opEnd)
			putU32(&sec, uint32(len(d.data)))
			sec.Write(d.data)
		}
		putSection(&out, sectionData, sec.Bytes())
	}

	return out.Bytes()
}

// String summarises the module for test failure messages.
func (m *Module) String() string {
	return fmt.Sprintf("wasmbin.Module{types:%d imports:%d funcs:%d exports:%d data:%d}",
		len(m.types), len(m.imports), len(m.funcs), len(m.exports), len(m.data))
}

func valBytes(vs []ValType) []byte {
	b := make([]byte, len(vs))
	for i, v := range vs {
		b[i] = byte(v)
	}
	return b
}

func putSection(w *bytes.Buffer, id byte, body []byte) {
	w.WriteByte(id)
	putU32(w, uint32(len(body)))
	w.Write(body)
}

func putName(w *bytes.Buffer, s string) {
	putU32(w, uint32(len(s)))
	w.WriteString(s)
}

func putVals(w *bytes.Buffer, vs []ValType) {
	putU32(w, uint32(len(vs)))
	w.Write(valBytes(vs))
}

// putLocals writes local declarations, run-length encoded by type.
func putLocals(w *bytes.Buffer, locals []ValType) {
	type run struct {
		n uint32
		t ValType
	}
	var runs []run
	for _, t := range locals {
		if len(runs) > 0 && runs[len(runs)-1].t == t {
			runs[len(runs)-1].n++
			continue
		}
		runs = append(runs, run{n: 1, t: t})
	}
	putU32(w, uint32(len(runs)))
	for _, r := range runs {
		putU32(w, r.n)
		w.WriteByte(byte(r.t))
	}
}

func putU32(w *bytes.Buffer, v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

func putS64(w *bytes.Buffer, v int64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			w.WriteByte(b)
			return
		}
		w.WriteByte(b | 0x80)
	}
}
