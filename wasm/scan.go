package wasm

import (
	"fmt"

	"github.com/wippyai/jitlink/internal/binary"
)

// CallSite locates the operand of one call instruction within an
// instruction stream.
type CallSite struct {
	Offset int    // offset of the operand, one past the call opcode
	Length int    // encoded length of the operand
	Index  uint32 // decoded target in the function index space
}

// ScanCalls walks an instruction stream and returns every call site in
// offset order. It fails on opcodes outside the supported subset, so a
// nil error also means the stream is fully decodable.
func ScanCalls(code []byte) ([]CallSite, error) {
	r := binary.NewReader(code)
	var sites []CallSite

	for r.Len() > 0 {
		op, err := r.ReadByte()
		if err != nil {
			return nil, err
		}

		switch {
		case op == OpCall:
			start := r.Position()
			index, err := r.ReadU32()
			if err != nil {
				return nil, fmt.Errorf("call operand at offset %d: %w", start, err)
			}
			sites = append(sites, CallSite{
				Offset: start,
				Length: r.Position() - start,
				Index:  index,
			})

		case op == OpBlock || op == OpLoop || op == OpIf:
			// Block type: either a value type byte or a type index (s33).
			if _, err := r.ReadS64(); err != nil {
				return nil, fmt.Errorf("block type at offset %d: %w", r.Position(), err)
			}

		case op == OpBr || op == OpBrIf ||
			op == OpLocalGet || op == OpLocalSet || op == OpLocalTee ||
			op == OpGlobalGet || op == OpGlobalSet:
			if _, err := r.ReadU32(); err != nil {
				return nil, err
			}

		case op == OpBrTable:
			count, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			for i := uint32(0); i <= count; i++ { // labels plus default
				if _, err := r.ReadU32(); err != nil {
					return nil, err
				}
			}

		case op == OpCallIndirect:
			if _, err := r.ReadU32(); err != nil { // type index
				return nil, err
			}
			if _, err := r.ReadU32(); err != nil { // table index
				return nil, err
			}

		case op >= opMemFirst && op <= opMemLast:
			if _, err := r.ReadU32(); err != nil { // align
				return nil, err
			}
			if _, err := r.ReadU32(); err != nil { // offset
				return nil, err
			}

		case op == OpMemorySize || op == OpMemoryGrow:
			if _, err := r.ReadByte(); err != nil { // memory index
				return nil, err
			}

		case op == OpI32Const:
			if _, err := r.ReadS32(); err != nil {
				return nil, err
			}

		case op == OpI64Const:
			if _, err := r.ReadS64(); err != nil {
				return nil, err
			}

		case op == OpF32Const:
			if _, err := r.ReadBytes(4); err != nil {
				return nil, err
			}

		case op == OpF64Const:
			if _, err := r.ReadBytes(8); err != nil {
				return nil, err
			}

		case op == OpUnreachable || op == OpNop || op == OpElse || op == OpEnd ||
			op == OpReturn || op == OpDrop || op == OpSelect:
			// no immediates

		case op >= opNumFirst && op <= opNumLast:
			// plain numeric, no immediates

		default:
			return nil, fmt.Errorf("unsupported opcode 0x%02x at offset %d", op, r.Position()-1)
		}
	}

	return sites, nil
}
