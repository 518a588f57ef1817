package wasmbin

import "slices"

// ValType is a value type.
type ValType byte

const (
	I32 ValType = 0x7f
	I64 ValType = 0x7e
	F32 ValType = 0x7d
	F64 ValType = 0x7c
)

// Export kinds.
const (
	KindFunc   byte = 0x00
	KindMemory byte = 0x02
	KindGlobal byte = 0x03
)

// Section ids.
const (
	sectionType     byte = 1
	sectionImport   byte = 2
	sectionFunction byte = 3
	sectionMemory   byte = 5
	sectionGlobal   byte = 6
	sectionExport   byte = 7
	sectionStart    byte = 8
	sectionCode     byte = 10
	sectionData     byte = 11
)

const (
	magic   = 0x6d736100
	version = 1
)

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (f FuncType) equal(o FuncType) bool {
	return slices.Equal(f.Params, o.Params) && slices.Equal(f.Results, o.Results)
}

// Import is a function import.
type Import struct {
	Module string
	Name   string
	Type   uint32
}

// Func is a defined function. Body holds the instructions without the
// trailing end opcode.
type Func struct {
	Type   uint32
	Locals []ValType
	Body   []byte
}

// Global is an i32 or i64 global initialized with a constant.
type Global struct {
	Type    ValType
	Mutable bool
	Init    int32
}

// Memory is a memory definition.
type Memory struct {
	Min uint32
	Max *uint32
}

// Export names a function, memory or global.
type Export struct {
	Name  string
	Kind  byte
	Index uint32
}

// Data is an active data segment for memory 0.
type Data struct {
	Offset int32
	Bytes  []byte
}

// Module is a core module in construction.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []Func
	Memories []Memory
	Globals  []Global
	Exports  []Export
	Start    *uint32
	Data     []Data
}

// Type returns the index of ft, adding it when new.
func (m *Module) Type(ft FuncType) uint32 {
	for i, t := range m.Types {
		if t.equal(ft) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, ft)
	return uint32(len(m.Types) - 1)
}

// Encode produces the binary module.
func (m *Module) Encode() []byte {
	var w Writer
	w.WriteU32LE(magic)
	w.WriteU32LE(version)

	if len(m.Types) > 0 {
		var sec Writer
		sec.WriteU32(uint32(len(m.Types)))
		for _, ft := range m.Types {
			sec.Byte(0x60)
			writeValTypes(&sec, ft.Params)
			writeValTypes(&sec, ft.Results)
		}
		writeSection(&w, sectionType, &sec)
	}

	if len(m.Imports) > 0 {
		var sec Writer
		sec.WriteU32(uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			sec.WriteName(imp.Module)
			sec.WriteName(imp.Name)
			sec.Byte(KindFunc)
			sec.WriteU32(imp.Type)
		}
		writeSection(&w, sectionImport, &sec)
	}

	if len(m.Funcs) > 0 {
		var sec Writer
		sec.WriteU32(uint32(len(m.Funcs)))
		for _, f := range m.Funcs {
			sec.WriteU32(f.Type)
		}
		writeSection(&w, sectionFunction, &sec)
	}

	if len(m.Memories) > 0 {
		var sec Writer
		sec.WriteU32(uint32(len(m.Memories)))
		for _, mem := range m.Memories {
			if mem.Max != nil {
				sec.Byte(0x01)
				sec.WriteU32(mem.Min)
				sec.WriteU32(*mem.Max)
			} else {
				sec.Byte(0x00)
				sec.WriteU32(mem.Min)
			}
		}
		writeSection(&w, sectionMemory, &sec)
	}

	if len(m.Globals) > 0 {
		var sec Writer
		sec.WriteU32(uint32(len(m.Globals)))
		for _, g := range m.Globals {
			sec.Byte(byte(g.Type))
			if g.Mutable {
				sec.Byte(0x01)
			} else {
				sec.Byte(0x00)
			}
			if g.Type == I64 {
				sec.Byte(OpI64Const)
			} else {
				sec.Byte(OpI32Const)
			}
			sec.WriteI32(g.Init)
			sec.Byte(OpEnd)
		}
		writeSection(&w, sectionGlobal, &sec)
	}

	if len(m.Exports) > 0 {
		var sec Writer
		sec.WriteU32(uint32(len(m.Exports)))
		for _, e := range m.Exports {
			sec.WriteName(e.Name)
			sec.Byte(e.Kind)
			sec.WriteU32(e.Index)
		}
		writeSection(&w, sectionExport, &sec)
	}

	if m.Start != nil {
		var sec Writer
		sec.WriteU32(*m.Start)
		writeSection(&w, sectionStart, &sec)
	}

	if len(m.Funcs) > 0 {
		var sec Writer
		sec.WriteU32(uint32(len(m.Funcs)))
		for _, f := range m.Funcs {
			var body Writer
			writeLocals(&body, f.Locals)
			body.WriteBytes(f.Body)
			body.Byte(OpEnd)
			sec.WriteU32(uint32(body.Len()))
			sec.WriteBytes(body.Bytes())
		}
		writeSection(&w, sectionCode, &sec)
	}

	if len(m.Data) > 0 {
		var sec Writer
		sec.WriteU32(uint32(len(m.Data)))
		for _, d := range m.Data {
			sec.Byte(0x00)
			sec.Byte(OpI32Const)
			sec.WriteI32(d.Offset)
			sec.Byte(OpEnd)
			sec.WriteU32(uint32(len(d.Bytes)))
			sec.WriteBytes(d.Bytes)
		}
		writeSection(&w, sectionData, &sec)
	}

	return w.Bytes()
}

func writeSection(w *Writer, id byte, sec *Writer) {
	w.Byte(id)
	w.WriteU32(uint32(sec.Len()))
	w.WriteBytes(sec.Bytes())
}

func writeValTypes(w *Writer, types []ValType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}

// writeLocals groups consecutive locals of the same type.
func writeLocals(w *Writer, locals []ValType) {
	type group struct {
		n uint32
		t ValType
	}
	var groups []group
	for _, t := range locals {
		if len(groups) > 0 && groups[len(groups)-1].t == t {
			groups[len(groups)-1].n++
			continue
		}
		groups = append(groups, group{1, t})
	}
	w.WriteU32(uint32(len(groups)))
	for _, g := range groups {
		w.WriteU32(g.n)
		w.Byte(byte(g.t))
	}
}
