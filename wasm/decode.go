package wasm

import (
	"errors"
	"fmt"

	"github.com/wippyai/jitlink/internal/binary"
)

// Parsing errors returned by ParseModule.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")
)

// ParseModule parses a core WebAssembly binary into a Module.
func ParseModule(data []byte) (*Module, error) {
	r := binary.NewReader(data)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}

	version, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if version != Version {
		return nil, ErrInvalidVersion
	}

	m := &Module{}

	// Non-custom sections must appear in ascending ID order.
	var lastSection byte

	for r.Len() > 0 {
		sectionID, err := r.ReadByte()
		if err != nil {
			return nil, r.WrapError("section header", err)
		}

		if sectionID != SectionCustom {
			if sectionID <= lastSection {
				return nil, fmt.Errorf("section %d appears out of order", sectionID)
			}
			lastSection = sectionID
		}

		sectionSize, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("section size", err)
		}
		sectionData, err := r.ReadBytes(int(sectionSize))
		if err != nil {
			return nil, r.WrapError("section data", err)
		}

		sr := binary.NewReader(sectionData)

		switch sectionID {
		case SectionCustom:
			if err := parseCustomSection(sr, m); err != nil {
				return nil, fmt.Errorf("custom section: %w", err)
			}
		case SectionType:
			if err := parseTypeSection(sr, m); err != nil {
				return nil, fmt.Errorf("type section: %w", err)
			}
		case SectionImport:
			if err := parseImportSection(sr, m); err != nil {
				return nil, fmt.Errorf("import section: %w", err)
			}
		case SectionFunction:
			if err := parseFunctionSection(sr, m); err != nil {
				return nil, fmt.Errorf("function section: %w", err)
			}
		case SectionMemory:
			if err := parseMemorySection(sr, m); err != nil {
				return nil, fmt.Errorf("memory section: %w", err)
			}
		case SectionExport:
			if err := parseExportSection(sr, m); err != nil {
				return nil, fmt.Errorf("export section: %w", err)
			}
		case SectionCode:
			if err := parseCodeSection(sr, m); err != nil {
				return nil, fmt.Errorf("code section: %w", err)
			}
		case SectionData:
			if err := parseDataSection(sr, m); err != nil {
				return nil, fmt.Errorf("data section: %w", err)
			}
		default:
			// Table, global, start and element sections can reference the
			// function index space, which pruning renumbers. Refusing them
			// is safer than carrying stale indices into the linked image.
			return nil, fmt.Errorf("unsupported section id %d", sectionID)
		}
	}

	if len(m.Funcs) != len(m.Code) {
		return nil, fmt.Errorf("function count %d does not match code count %d", len(m.Funcs), len(m.Code))
	}

	return m, nil
}

func parseCustomSection(r *binary.Reader, m *Module) error {
	name, err := r.ReadName()
	if err != nil {
		return err
	}
	data, err := r.ReadBytes(r.Len())
	if err != nil {
		return err
	}
	m.Customs = append(m.Customs, CustomSection{Name: name, Data: data})
	return nil
}

func parseTypeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		if form != FuncTypeByte {
			return fmt.Errorf("type %d: unsupported form 0x%02x", i, form)
		}
		ft := FuncType{}
		if ft.Params, err = readValTypes(r); err != nil {
			return err
		}
		if ft.Results, err = readValTypes(r); err != nil {
			return err
		}
		m.Types = append(m.Types, ft)
	}
	return nil
}

func readValTypes(r *binary.Reader) ([]ValType, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	types := make([]ValType, 0, count)
	for i := uint32(0); i < count; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		v := ValType(b)
		switch v {
		case I32, I64, F32, F64:
		default:
			return nil, fmt.Errorf("unsupported value type 0x%02x", b)
		}
		types = append(types, v)
	}
	return types, nil
}

func parseImportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		module, err := r.ReadName()
		if err != nil {
			return err
		}
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		if ImportKind(kind) != ImportFunc {
			return fmt.Errorf("import %s.%s: unsupported kind %d", module, name, kind)
		}
		typeIdx, err := r.ReadU32()
		if err != nil {
			return err
		}
		if int(typeIdx) >= len(m.Types) {
			return fmt.Errorf("import %s.%s: type index %d out of range", module, name, typeIdx)
		}
		m.Imports = append(m.Imports, Import{Module: module, Name: name, TypeIndex: typeIdx})
	}
	return nil
}

func parseFunctionSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		typeIdx, err := r.ReadU32()
		if err != nil {
			return err
		}
		if int(typeIdx) >= len(m.Types) {
			return fmt.Errorf("function %d: type index %d out of range", i, typeIdx)
		}
		m.Funcs = append(m.Funcs, typeIdx)
	}
	return nil
}

func parseMemorySection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	if count > 1 {
		return fmt.Errorf("at most one memory supported, got %d", count)
	}
	if count == 0 {
		return nil
	}
	flags, err := r.ReadByte()
	if err != nil {
		return err
	}
	mem := &MemoryType{}
	if mem.Min, err = r.ReadU32(); err != nil {
		return err
	}
	switch flags {
	case 0x00:
	case 0x01:
		mem.HasMax = true
		if mem.Max, err = r.ReadU32(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported memory limits flags 0x%02x", flags)
	}
	m.Memory = mem
	return nil
}

func parseExportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		index, err := r.ReadU32()
		if err != nil {
			return err
		}
		switch ExportKind(kind) {
		case ExportFunc, ExportMemory:
		default:
			return fmt.Errorf("export %q: unsupported kind %d", name, kind)
		}
		m.Exports = append(m.Exports, Export{Name: name, Kind: ExportKind(kind), Index: index})
	}
	return nil
}

func parseCodeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		bodySize, err := r.ReadU32()
		if err != nil {
			return err
		}
		body, err := r.ReadBytes(int(bodySize))
		if err != nil {
			return err
		}
		fb, err := parseFuncBody(body)
		if err != nil {
			return fmt.Errorf("function body %d: %w", i, err)
		}
		m.Code = append(m.Code, fb)
	}
	return nil
}

func parseFuncBody(body []byte) (FuncBody, error) {
	r := binary.NewReader(body)
	localCount, err := r.ReadU32()
	if err != nil {
		return FuncBody{}, err
	}
	fb := FuncBody{}
	for i := uint32(0); i < localCount; i++ {
		n, err := r.ReadU32()
		if err != nil {
			return FuncBody{}, err
		}
		b, err := r.ReadByte()
		if err != nil {
			return FuncBody{}, err
		}
		fb.Locals = append(fb.Locals, Local{Count: n, Type: ValType(b)})
	}
	code, err := r.ReadBytes(r.Len())
	if err != nil {
		return FuncBody{}, err
	}
	if len(code) == 0 || code[len(code)-1] != OpEnd {
		return FuncBody{}, errors.New("function body not terminated by end opcode")
	}
	fb.Code = code
	return fb, nil
}

func parseDataSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		flags, err := r.ReadU32()
		if err != nil {
			return err
		}
		if flags != 0 {
			return fmt.Errorf("data segment %d: unsupported flags %d", i, flags)
		}
		// Offset expression must be "i32.const n end".
		op, err := r.ReadByte()
		if err != nil {
			return err
		}
		if op != OpI32Const {
			return fmt.Errorf("data segment %d: unsupported offset expression opcode 0x%02x", i, op)
		}
		offset, err := r.ReadS32()
		if err != nil {
			return err
		}
		end, err := r.ReadByte()
		if err != nil {
			return err
		}
		if end != OpEnd {
			return fmt.Errorf("data segment %d: offset expression not terminated", i)
		}
		size, err := r.ReadU32()
		if err != nil {
			return err
		}
		init, err := r.ReadBytes(int(size))
		if err != nil {
			return err
		}
		m.Data = append(m.Data, DataSegment{Offset: uint32(offset), Init: init})
	}
	return nil
}
