package wasm

import (
	"github.com/wippyai/jitlink/internal/binary"
)

// EncodeModule encodes a Module to its binary representation. Sections
// are emitted in canonical order; custom sections are appended last.
func EncodeModule(m *Module) []byte {
	w := binary.NewWriter()
	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	if len(m.Types) > 0 {
		writeSection(w, SectionType, encodeTypeSection(m))
	}
	if len(m.Imports) > 0 {
		writeSection(w, SectionImport, encodeImportSection(m))
	}
	if len(m.Funcs) > 0 {
		writeSection(w, SectionFunction, encodeFunctionSection(m))
	}
	if m.Memory != nil {
		writeSection(w, SectionMemory, encodeMemorySection(m))
	}
	if len(m.Exports) > 0 {
		writeSection(w, SectionExport, encodeExportSection(m))
	}
	if len(m.Code) > 0 {
		writeSection(w, SectionCode, encodeCodeSection(m))
	}
	if len(m.Data) > 0 {
		writeSection(w, SectionData, encodeDataSection(m))
	}
	for _, c := range m.Customs {
		cw := binary.NewWriter()
		cw.WriteName(c.Name)
		cw.WriteBytes(c.Data)
		writeSection(w, SectionCustom, cw.Bytes())
	}

	return w.Bytes()
}

func writeSection(w *binary.Writer, id byte, payload []byte) {
	w.Byte(id)
	w.WriteU32(uint32(len(payload)))
	w.WriteBytes(payload)
}

func encodeTypeSection(m *Module) []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(m.Types)))
	for _, t := range m.Types {
		w.Byte(FuncTypeByte)
		writeValTypes(w, t.Params)
		writeValTypes(w, t.Results)
	}
	return w.Bytes()
}

func writeValTypes(w *binary.Writer, types []ValType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}

func encodeImportSection(m *Module) []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(m.Imports)))
	for _, imp := range m.Imports {
		w.WriteName(imp.Module)
		w.WriteName(imp.Name)
		w.Byte(byte(ImportFunc))
		w.WriteU32(imp.TypeIndex)
	}
	return w.Bytes()
}

func encodeFunctionSection(m *Module) []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(m.Funcs)))
	for _, typeIdx := range m.Funcs {
		w.WriteU32(typeIdx)
	}
	return w.Bytes()
}

func encodeMemorySection(m *Module) []byte {
	w := binary.NewWriter()
	w.WriteU32(1)
	if m.Memory.HasMax {
		w.Byte(0x01)
		w.WriteU32(m.Memory.Min)
		w.WriteU32(m.Memory.Max)
	} else {
		w.Byte(0x00)
		w.WriteU32(m.Memory.Min)
	}
	return w.Bytes()
}

func encodeExportSection(m *Module) []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(m.Exports)))
	for _, e := range m.Exports {
		w.WriteName(e.Name)
		w.Byte(byte(e.Kind))
		w.WriteU32(e.Index)
	}
	return w.Bytes()
}

// EncodeFuncBody encodes one code-section entry without its size prefix.
func EncodeFuncBody(fb FuncBody) []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(fb.Locals)))
	for _, l := range fb.Locals {
		w.WriteU32(l.Count)
		w.Byte(byte(l.Type))
	}
	w.WriteBytes(fb.Code)
	return w.Bytes()
}

func encodeCodeSection(m *Module) []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(m.Code)))
	for _, fb := range m.Code {
		body := EncodeFuncBody(fb)
		w.WriteU32(uint32(len(body)))
		w.WriteBytes(body)
	}
	return w.Bytes()
}

func encodeDataSection(m *Module) []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(m.Data)))
	for _, d := range m.Data {
		w.WriteU32(0)
		w.Byte(OpI32Const)
		w.WriteS32(int32(d.Offset))
		w.Byte(OpEnd)
		w.WriteU32(uint32(len(d.Init)))
		w.WriteBytes(d.Init)
	}
	return w.Bytes()
}
