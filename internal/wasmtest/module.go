// Package wasmtest assembles small WebAssembly modules for tests.
//
// Fixtures are built from opcodes at test time so the repository carries no
// binary artifacts and no toolchain is needed to regenerate them.
package wasmtest

import "sort"

// Value types.
const (
	I32 byte = 0x7F
	I64 byte = 0x7E
)

const (
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionGlobal   = 6
	sectionExport   = 7
	sectionCode     = 10
	sectionData     = 11
)

const (
	exportFunc   = 0x00
	exportMemory = 0x02
)

type funcType struct {
	params, results []byte
}

type importFunc struct {
	module, name string
	typ          uint32
}

type function struct {
	typ    uint32
	locals []byte
	body   []byte
}

type export struct {
	name  string
	kind  byte
	index uint32
}

type segment struct {
	offset uint32
	data   []byte
}

// Module is a minimal module builder. Imports must be declared before
// functions so function indices stay stable.
type Module struct {
	types    []funcType
	imports  []importFunc
	funcs    []function
	globals  []int32
	exports  []export
	data     []segment
	memPages uint32
}

// New returns an empty module.
func New() *Module {
	return &Module{}
}

func (m *Module) typeIndex(params, results []byte) uint32 {
	for i, t := range m.types {
		if string(t.params) == string(params) && string(t.results) == string(results) {
			return uint32(i)
		}
	}
	m.types = append(m.types, funcType{params: params, results: results})
	return uint32(len(m.types) - 1)
}

// Import declares an imported function and returns its function index.
func (m *Module) Import(module, name string, params, results []byte) uint32 {
	if len(m.funcs) > 0 {
		panic("wasmtest: imports must precede functions")
	}
	m.imports = append(m.imports, importFunc{module: module, name: name, typ: m.typeIndex(params, results)})
	return uint32(len(m.imports) - 1)
}

// Func defines a function and returns its index. An empty name keeps it
// unexported. locals lists the value type of each extra local.
func (m *Module) Func(name string, params, results, locals []byte, body ...[]byte) uint32 {
	var code []byte
	for _, b := range body {
		code = append(code, b...)
	}
	m.funcs = append(m.funcs, function{typ: m.typeIndex(params, results), locals: locals, body: code})
	idx := uint32(len(m.imports) + len(m.funcs) - 1)
	if name != "" {
		m.exports = append(m.exports, export{name: name, kind: exportFunc, index: idx})
	}
	return idx
}

// Memory declares an exported linear memory named "memory".
func (m *Module) Memory(pages uint32) *Module {
	m.memPages = pages
	m.exports = append(m.exports, export{name: "memory", kind: exportMemory, index: 0})
	return m
}

// Global declares a mutable i32 global and returns its index.
func (m *Module) Global(init int32) uint32 {
	m.globals = append(m.globals, init)
	return uint32(len(m.globals) - 1)
}

// Data places bytes at offset in memory 0.
func (m *Module) Data(offset uint32, data []byte) *Module {
	m.data = append(m.data, segment{offset: offset, data: data})
	return m
}

// Bytes encodes the module.
func (m *Module) Bytes() []byte {
	out := []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}

	if len(m.types) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.types)))
		for _, t := range m.types {
			s = append(s, 0x60)
			s = appendBytes(s, t.params)
			s = appendBytes(s, t.results)
		}
		out = appendSection(out, sectionType, s)
	}

	if len(m.imports) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.imports)))
		for _, imp := range m.imports {
			s = appendName(s, imp.module)
			s = appendName(s, imp.name)
			s = append(s, exportFunc)
			s = appendU32(s, imp.typ)
		}
		out = appendSection(out, sectionImport, s)
	}

	if len(m.funcs) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.funcs)))
		for _, f := range m.funcs {
			s = appendU32(s, f.typ)
		}
		out = appendSection(out, sectionFunction, s)
	}

	if m.memPages > 0 {
		s := []byte{0x01, 0x00}
		s = appendU32(s, m.memPages)
		out = appendSection(out, sectionMemory, s)
	}

	if len(m.globals) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.globals)))
		for _, g := range m.globals {
			s = append(s, I32, 0x01)
			s = append(s, I32Const(g)...)
			s = append(s, opEnd)
		}
		out = appendSection(out, sectionGlobal, s)
	}

	if len(m.exports) > 0 {
		exports := append([]export(nil), m.exports...)
		sort.SliceStable(exports, func(i, j int) bool { return exports[i].name < exports[j].name })
		var s []byte
		s = appendU32(s, uint32(len(exports)))
		for _, e := range exports {
			s = appendName(s, e.name)
			s = append(s, e.kind)
			s = appendU32(s, e.index)
		}
		out = appendSection(out, sectionExport, s)
	}

	if len(m.funcs) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.funcs)))
		for _, f := range m.funcs {
			var body []byte
			body = appendU32(body, uint32(len(f.locals)))
			for _, l := range f.locals {
				body = append(body, 0x01, l)
			}
			body = append(body, f.body...)
			body = append(body, opEnd)
			s = appendBytes(s, body)
		}
		out = appendSection(out, sectionCode, s)
	}

	if len(m.data) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.data)))
		for _, d := range m.data {
			s = append(s, 0x00)
			s = append(s, I32Const(int32(d.offset))...)
			s = append(s, opEnd)
			s = appendBytes(s, d.data)
		}
		out = appendSection(out, sectionData, s)
	}

	return out
}

func appendSection(out []byte, id byte, payload []byte) []byte {
	out = append(out, id)
	return appendBytes(out, payload)
}

func appendBytes(out, b []byte) []byte {
	out = appendU32(out, uint32(len(b)))
	return append(out, b...)
}

func appendName(out []byte, s string) []byte {
	return appendBytes(out, []byte(s))
}

func appendU32(out []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func appendS64(out []byte, v int64) []byte {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}
