package jitlink

import (
	"sort"

	"go.uber.org/zap"

	"github.com/wippyai/jitlink/errors"
	"github.com/wippyai/jitlink/internal/binary"
	"github.com/wippyai/jitlink/wasm"
)

// Section base addresses assigned during layout. Real backing memory
// belongs to the execution engine; these addresses exist for the graph
// view and are stable between the post-prune and post-fixup passes.
const (
	CodeBase   uint64 = 0x10000
	DataBase   uint64 = 0x20000
	MemoryBase uint64 = 0x30000
)

// Section names used by the pipeline.
const (
	SectionCode   = "code"
	SectionData   = "data"
	SectionMemory = "memory"
)

// Image is the result of one linking pass: the emitted object ready for
// the execution engine, plus the symbols it defines.
type Image struct {
	Object  string
	Bytes   []byte
	Symbols []string // exported function names, sorted
}

// Link runs one full linking pass over object bytes: parse, prune,
// layout, post-prune passes, fixup, post-fixup passes, emit. cfg may be
// nil to link without instrumentation.
func Link(object, triple string, data []byte, cfg *PassConfig) (*Image, error) {
	if cfg == nil {
		cfg = &PassConfig{}
	}

	m, err := wasm.ParseModule(data)
	if err != nil {
		return nil, errors.ParseFailed(object, err)
	}

	pr, err := prune(m, object)
	if err != nil {
		return nil, err
	}

	st, err := buildGraph(m, pr, object, triple)
	if err != nil {
		return nil, err
	}

	Logger().Debug("link graph built",
		zap.String("object", object),
		zap.Int("sections", len(st.graph.Sections())),
		zap.Int("functions", len(pr.kept)))

	if err := runPasses(cfg.PostPrunePasses, st.graph); err != nil {
		return nil, errors.PassFailed(errors.PhasePrune, object, err)
	}

	if err := applyFixups(st, object); err != nil {
		return nil, err
	}

	if err := runPasses(cfg.PostFixupPasses, st.graph); err != nil {
		return nil, errors.PassFailed(errors.PhaseFixup, object, err)
	}

	return emit(st, object)
}

// linkState ties graph blocks back to the module constructs they were
// built from, for fixup resolution and image emission.
type linkState struct {
	module     *wasm.Module
	prune      *pruneResult
	graph      *LinkGraph
	symtab     map[string]uint32 // symbol -> final function index
	codeBlocks []*Block          // one per kept function, in kept order
}

// buildGraph constructs and lays out the link graph: one content block
// per surviving function body (call operands normalized to zeroed
// padded-LEB relocation slots), one per data segment, and a zero-fill
// block for the linear memory image.
func buildGraph(m *wasm.Module, pr *pruneResult, object, triple string) (*linkState, error) {
	st := &linkState{
		module: m,
		prune:  pr,
		graph:  NewLinkGraph(object, triple),
		symtab: make(map[string]uint32),
	}

	numImports := uint32(m.NumImportedFuncs())
	for i := uint32(0); i < numImports; i++ {
		sym := funcSymbol(m, i)
		if _, dup := st.symtab[sym]; dup {
			return nil, errors.DuplicateSymbol(object, sym)
		}
		st.symtab[sym] = i
	}

	code := st.graph.Section(SectionCode)
	for _, old := range pr.kept {
		sym := funcSymbol(m, old)
		if _, dup := st.symtab[sym]; dup {
			return nil, errors.DuplicateSymbol(object, sym)
		}
		st.symtab[sym] = pr.renumber[old]

		body := m.Code[old-numImports]
		sites, err := wasm.ScanCalls(body.Code)
		if err != nil {
			return nil, errors.New(errors.PhaseLayout, errors.KindInvalidData).
				Object(object).
				Symbol(sym).
				Cause(err).
				Build()
		}

		content, slots := normalizeCalls(body.Code, sites)
		b := code.AddContentBlock(sym, content, 1)
		for _, s := range slots {
			b.AddEdge(Edge{
				Kind:   EdgeCallIndexLEB,
				Offset: uint64(s.offset),
				Target: funcSymbol(m, s.target),
			})
		}
		st.codeBlocks = append(st.codeBlocks, b)
	}

	if len(m.Data) > 0 {
		data := st.graph.Section(SectionData)
		for _, seg := range m.Data {
			data.AddContentBlock("", append([]byte(nil), seg.Init...), 1)
		}
	}

	if m.Memory != nil {
		memSection := st.graph.Section(SectionMemory)
		memSection.AddZeroFillBlock(SectionMemory, uint64(m.Memory.Min)*65536, 65536)
	}

	layout(st.graph)
	return st, nil
}

// relocSlot is a normalized call operand: a zeroed padded-LEB slot at
// offset, to be patched with the final index of target (old index space).
type relocSlot struct {
	offset int
	target uint32
}

// normalizeCalls rewrites every call operand as a zeroed padded LEB128
// slot of fixed width, returning the rewritten stream and the slot
// locations. Offsets in the returned slots are relative to the
// rewritten stream.
func normalizeCalls(code []byte, sites []wasm.CallSite) ([]byte, []relocSlot) {
	out := make([]byte, 0, len(code)+len(sites)*(binary.PaddedU32Len-1))
	slots := make([]relocSlot, 0, len(sites))

	prev := 0
	for _, site := range sites {
		out = append(out, code[prev:site.Offset]...)
		slots = append(slots, relocSlot{offset: len(out), target: site.Index})
		var slot [binary.PaddedU32Len]byte
		binary.PutU32Padded(slot[:], 0)
		out = append(out, slot[:]...)
		prev = site.Offset + site.Length
	}
	out = append(out, code[prev:]...)
	return out, slots
}

// layout assigns virtual addresses: each section packs its blocks in
// creation order from the section's base, honoring block alignment.
func layout(g *LinkGraph) {
	for _, s := range g.Sections() {
		addr := sectionBase(s.Name())
		for _, b := range s.Blocks() {
			if a := b.Alignment(); a > 1 {
				addr = (addr + a - 1) &^ (a - 1)
			}
			b.addr = addr
			addr += b.Size()
		}
	}
}

func sectionBase(name string) uint64 {
	switch name {
	case SectionCode:
		return CodeBase
	case SectionData:
		return DataBase
	case SectionMemory:
		return MemoryBase
	default:
		return MemoryBase + 0x10000
	}
}

// emit re-encodes the module from the fixed-up graph blocks.
func emit(st *linkState, object string) (*Image, error) {
	m := st.module
	numImports := uint32(m.NumImportedFuncs())

	out := &wasm.Module{
		Types:   m.Types,
		Imports: m.Imports,
		Memory:  m.Memory,
		Data:    m.Data,
		Customs: m.Customs,
	}

	for i, old := range st.prune.kept {
		out.Funcs = append(out.Funcs, m.Funcs[old-numImports])
		out.Code = append(out.Code, wasm.FuncBody{
			Locals: m.Code[old-numImports].Locals,
			Code:   st.codeBlocks[i].Content(),
		})
	}

	var symbols []string
	for _, e := range m.Exports {
		switch e.Kind {
		case wasm.ExportFunc:
			newIdx, ok := st.prune.renumber[e.Index]
			if !ok {
				return nil, errors.New(errors.PhaseEmit, errors.KindInvalidData).
					Object(object).
					Symbol(e.Name).
					Detail("exported function was pruned").
					Build()
			}
			out.Exports = append(out.Exports, wasm.Export{Name: e.Name, Kind: e.Kind, Index: newIdx})
			symbols = append(symbols, e.Name)
		default:
			out.Exports = append(out.Exports, e)
		}
	}
	sort.Strings(symbols)

	return &Image{
		Object:  object,
		Bytes:   wasm.EncodeModule(out),
		Symbols: symbols,
	}, nil
}
