package wasm

import (
	"fmt"

	"github.com/wippyai/jitlink/internal/binary"
)

// Builder assembles a small core module programmatically. Call targets
// are symbolic and resolved when Build runs, so functions may call
// forward. Calls are emitted as padded LEB128 slots, the same shape the
// link pipeline uses for relocation sites.
type Builder struct {
	module  Module
	funcs   []*FuncBuilder
	indexOf map[string]uint32
}

// NewBuilder creates an empty module builder.
func NewBuilder() *Builder {
	return &Builder{indexOf: make(map[string]uint32)}
}

func (b *Builder) typeIndex(t FuncType) uint32 {
	for i, existing := range b.module.Types {
		if existing.Equal(t) {
			return uint32(i)
		}
	}
	b.module.Types = append(b.module.Types, t)
	return uint32(len(b.module.Types) - 1)
}

// ImportFunc declares a function import. Imports must be declared before
// the first Func call because they occupy the front of the index space.
func (b *Builder) ImportFunc(module, name string, t FuncType) *Builder {
	if len(b.funcs) > 0 {
		panic("wasm: ImportFunc after Func would renumber existing bodies")
	}
	idx := uint32(len(b.module.Imports))
	b.module.Imports = append(b.module.Imports, Import{
		Module:    module,
		Name:      name,
		TypeIndex: b.typeIndex(t),
	})
	b.indexOf[name] = idx
	return b
}

// Memory declares a linear memory with a minimum page count.
func (b *Builder) Memory(minPages uint32) *Builder {
	b.module.Memory = &MemoryType{Min: minPages}
	return b
}

// Data adds an active data segment at a constant offset in memory 0.
func (b *Builder) Data(offset uint32, init []byte) *Builder {
	b.module.Data = append(b.module.Data, DataSegment{Offset: offset, Init: init})
	return b
}

// ExportMemory exports the linear memory under the given name.
func (b *Builder) ExportMemory(name string) *Builder {
	b.module.Exports = append(b.module.Exports, Export{Name: name, Kind: ExportMemory})
	return b
}

// Func starts a new function with the given name and signature.
func (b *Builder) Func(name string, t FuncType) *FuncBuilder {
	idx := uint32(len(b.module.Imports) + len(b.funcs))
	fb := &FuncBuilder{
		builder: b,
		name:    name,
		index:   idx,
		typeIdx: b.typeIndex(t),
		code:    binary.NewWriter(),
	}
	b.funcs = append(b.funcs, fb)
	b.indexOf[name] = idx
	return fb
}

// Build resolves symbolic calls and returns the finished module.
// It panics on an undefined call target; the builder is for
// programmatically constructed modules where that is a programming
// error, not input data.
func (b *Builder) Build() *Module {
	for _, fb := range b.funcs {
		code := append([]byte(nil), fb.code.Bytes()...)
		code = append(code, OpEnd)
		for _, ref := range fb.calls {
			target, ok := b.indexOf[ref.name]
			if !ok {
				panic(fmt.Sprintf("wasm: call target %q not defined", ref.name))
			}
			binary.PutU32Padded(code[ref.offset:], target)
		}
		b.module.Funcs = append(b.module.Funcs, fb.typeIdx)
		b.module.Code = append(b.module.Code, FuncBody{Locals: fb.locals, Code: code})
		if fb.exported {
			b.module.Exports = append(b.module.Exports, Export{
				Name:  fb.name,
				Kind:  ExportFunc,
				Index: fb.index,
			})
		}
	}
	return &b.module
}

// Encode builds the module and encodes it to binary.
func (b *Builder) Encode() []byte {
	return EncodeModule(b.Build())
}

type callRef struct {
	name   string
	offset int
}

// FuncBuilder emits the instruction stream of one function.
type FuncBuilder struct {
	builder  *Builder
	code     *binary.Writer
	name     string
	locals   []Local
	calls    []callRef
	index    uint32
	typeIdx  uint32
	exported bool
}

// Export marks the function as exported under its name.
func (f *FuncBuilder) Export() *FuncBuilder {
	f.exported = true
	return f
}

// Locals declares count consecutive locals of one type.
func (f *FuncBuilder) Locals(count uint32, t ValType) *FuncBuilder {
	f.locals = append(f.locals, Local{Count: count, Type: t})
	return f
}

// I32Const pushes an i32 constant.
func (f *FuncBuilder) I32Const(v int32) *FuncBuilder {
	f.code.Byte(OpI32Const)
	f.code.WriteS32(v)
	return f
}

// I64Const pushes an i64 constant.
func (f *FuncBuilder) I64Const(v int64) *FuncBuilder {
	f.code.Byte(OpI64Const)
	f.code.WriteS64(v)
	return f
}

// LocalGet pushes a local.
func (f *FuncBuilder) LocalGet(i uint32) *FuncBuilder {
	f.code.Byte(OpLocalGet)
	f.code.WriteU32(i)
	return f
}

// Call emits a call to the named function, resolved at Build time.
func (f *FuncBuilder) Call(name string) *FuncBuilder {
	f.code.Byte(OpCall)
	f.calls = append(f.calls, callRef{name: name, offset: f.code.Len()})
	f.code.WriteU32Padded(0)
	return f
}

// I32Add pops two i32 values and pushes their sum.
func (f *FuncBuilder) I32Add() *FuncBuilder {
	f.code.Byte(0x6a)
	return f
}

// Drop pops one value.
func (f *FuncBuilder) Drop() *FuncBuilder {
	f.code.Byte(OpDrop)
	return f
}

// Return returns from the function.
func (f *FuncBuilder) Return() *FuncBuilder {
	f.code.Byte(OpReturn)
	return f
}

// Raw appends raw instruction bytes.
func (f *FuncBuilder) Raw(code ...byte) *FuncBuilder {
	f.code.WriteBytes(code)
	return f
}

// Done returns to the module builder.
func (f *FuncBuilder) Done() *Builder {
	return f.builder
}
