package wasm

// Module represents a parsed core WebAssembly module restricted to the
// constructs the link pipeline understands.
type Module struct {
	Types   []FuncType
	Imports []Import
	Funcs   []uint32 // type index per declared function
	Memory  *MemoryType
	Exports []Export
	Code    []FuncBody
	Data    []DataSegment
	Customs []CustomSection
}

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether two signatures match exactly.
func (t FuncType) Equal(o FuncType) bool {
	if len(t.Params) != len(o.Params) || len(t.Results) != len(o.Results) {
		return false
	}
	for i, p := range t.Params {
		if p != o.Params[i] {
			return false
		}
	}
	for i, r := range t.Results {
		if r != o.Results[i] {
			return false
		}
	}
	return true
}

// Import is a function import. Imported functions occupy the front of
// the function index space, before declared functions.
type Import struct {
	Module    string
	Name      string
	TypeIndex uint32
}

// MemoryType describes the module's linear memory limits in 64KiB pages.
type MemoryType struct {
	Min    uint32
	Max    uint32
	HasMax bool
}

// Export makes a function or memory visible by name.
type Export struct {
	Name  string
	Index uint32
	Kind  ExportKind
}

// Local declares Count consecutive locals of one type.
type Local struct {
	Count uint32
	Type  ValType
}

// FuncBody is one entry of the code section. Code holds the instruction
// bytes including the terminating end opcode; locals are kept decoded so
// re-encoding after relocation rewriting is exact.
type FuncBody struct {
	Locals []Local
	Code   []byte
}

// DataSegment is an active data segment for memory 0 at a constant offset.
type DataSegment struct {
	Offset uint32
	Init   []byte
}

// CustomSection is an uninterpreted custom section, preserved verbatim.
type CustomSection struct {
	Name string
	Data []byte
}

// NumImportedFuncs returns the number of imported functions.
func (m *Module) NumImportedFuncs() int {
	return len(m.Imports)
}

// FuncTypeAt returns the signature of the function at the given index in
// the combined index space (imports first), and whether it exists.
func (m *Module) FuncTypeAt(index uint32) (FuncType, bool) {
	var typeIdx uint32
	if int(index) < len(m.Imports) {
		typeIdx = m.Imports[index].TypeIndex
	} else {
		declared := int(index) - len(m.Imports)
		if declared >= len(m.Funcs) {
			return FuncType{}, false
		}
		typeIdx = m.Funcs[declared]
	}
	if int(typeIdx) >= len(m.Types) {
		return FuncType{}, false
	}
	return m.Types[typeIdx], true
}

// ExportedFuncs returns the names of exported functions in export order.
func (m *Module) ExportedFuncs() []string {
	var names []string
	for _, e := range m.Exports {
		if e.Kind == ExportFunc {
			names = append(names, e.Name)
		}
	}
	return names
}
