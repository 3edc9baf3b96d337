package jitlink

import (
	"bytes"
	stderrors "errors"
	"testing"

	"github.com/wippyai/jitlink/errors"
	"github.com/wippyai/jitlink/internal/binary"
	"github.com/wippyai/jitlink/wasm"
)

const testTriple = "wasm32-unknown-wazero"

func i32Result() wasm.FuncType {
	return wasm.FuncType{Results: []wasm.ValType{wasm.I32}}
}

// demoObject is the canonical two-function unit: entry calls callee
// (defined after it, forcing a forward relocation), callee returns 7.
func demoObject() []byte {
	b := wasm.NewBuilder()
	b.Func("entry", i32Result()).Call("callee").Export()
	b.Func("callee", i32Result()).I32Const(7).Export()
	return b.Encode()
}

func TestLinkEmitsRunnableImage(t *testing.T) {
	img, err := Link("demo", testTriple, demoObject(), nil)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}

	if img.Object != "demo" {
		t.Errorf("object = %q", img.Object)
	}
	if len(img.Symbols) != 2 || img.Symbols[0] != "callee" || img.Symbols[1] != "entry" {
		t.Errorf("symbols = %v, want sorted [callee entry]", img.Symbols)
	}

	m, err := wasm.ParseModule(img.Bytes)
	if err != nil {
		t.Fatalf("emitted image does not parse: %v", err)
	}
	sites, err := wasm.ScanCalls(m.Code[0].Code)
	if err != nil {
		t.Fatalf("scan emitted entry: %v", err)
	}
	if len(sites) != 1 || sites[0].Index != 1 {
		t.Errorf("emitted call sites = %+v, want one call to 1", sites)
	}
	if sites[0].Length != binary.PaddedU32Len {
		t.Errorf("call operand length = %d, want padded %d", sites[0].Length, binary.PaddedU32Len)
	}
}

func TestLinkRunsPassesInOrderWithStableAddresses(t *testing.T) {
	type view struct {
		addrs   []uint64
		content [][]byte
	}
	snapshot := func(g *LinkGraph) view {
		var v view
		for _, s := range g.Sections() {
			for _, b := range s.Blocks() {
				v.addrs = append(v.addrs, b.Address())
				if b.IsZeroFill() {
					v.content = append(v.content, nil)
				} else {
					v.content = append(v.content, append([]byte(nil), b.Content()...))
				}
			}
		}
		return v
	}

	var order []string
	var pre, post view
	cfg := &PassConfig{
		PostPrunePasses: []Pass{func(g *LinkGraph) error {
			order = append(order, "pre")
			pre = snapshot(g)
			return nil
		}},
		PostFixupPasses: []Pass{func(g *LinkGraph) error {
			order = append(order, "post")
			post = snapshot(g)
			return nil
		}},
	}

	if _, err := Link("demo", testTriple, demoObject(), cfg); err != nil {
		t.Fatalf("Link: %v", err)
	}

	if len(order) != 2 || order[0] != "pre" || order[1] != "post" {
		t.Fatalf("pass order = %v", order)
	}
	if len(pre.addrs) != len(post.addrs) {
		t.Fatalf("block count changed across fixup: %d vs %d", len(pre.addrs), len(post.addrs))
	}
	for i := range pre.addrs {
		if pre.addrs[i] != post.addrs[i] {
			t.Errorf("block %d moved: %#x -> %#x", i, pre.addrs[i], post.addrs[i])
		}
	}

	// entry's call slot is zeroed before fixup and holds callee's index
	// afterwards, so the first code block's content must differ.
	if bytes.Equal(pre.content[0], post.content[0]) {
		t.Error("expected fixup to rewrite entry's call slot")
	}
	// callee has no relocations; its bytes are identical.
	if !bytes.Equal(pre.content[1], post.content[1]) {
		t.Error("callee content changed despite having no relocations")
	}
}

func TestLinkPrunesUnreachableFunctions(t *testing.T) {
	b := wasm.NewBuilder()
	b.Func("entry", i32Result()).Call("callee").Export()
	b.Func("unused", i32Result()).I32Const(99)
	b.Func("callee", i32Result()).I32Const(7).Export()

	img, err := Link("demo", testTriple, b.Encode(), nil)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}

	m, err := wasm.ParseModule(img.Bytes)
	if err != nil {
		t.Fatalf("parse image: %v", err)
	}
	if len(m.Funcs) != 2 {
		t.Fatalf("emitted functions = %d, want 2 after pruning", len(m.Funcs))
	}

	// callee was renumbered from 2 to 1; entry's call must follow.
	sites, err := wasm.ScanCalls(m.Code[0].Code)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(sites) != 1 || sites[0].Index != 1 {
		t.Errorf("call sites = %+v, want one call to renumbered index 1", sites)
	}
}

func TestLinkKeepsAllWithoutFunctionExports(t *testing.T) {
	b := wasm.NewBuilder()
	b.Memory(1)
	b.ExportMemory("memory")
	b.Func("helper", i32Result()).I32Const(3)

	img, err := Link("demo", testTriple, b.Encode(), nil)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	m, err := wasm.ParseModule(img.Bytes)
	if err != nil {
		t.Fatalf("parse image: %v", err)
	}
	if len(m.Funcs) != 1 {
		t.Errorf("emitted functions = %d, want 1 (no roots, keep all)", len(m.Funcs))
	}
	if len(img.Symbols) != 0 {
		t.Errorf("symbols = %v, want none", img.Symbols)
	}
}

func TestLinkGraphShapesMemoryAndData(t *testing.T) {
	b := wasm.NewBuilder()
	b.Memory(2)
	b.Data(8, []byte{1, 2, 3, 4})
	b.Func("entry", i32Result()).I32Const(0).Export()

	var sections []string
	var zeroFill, content int
	cfg := &PassConfig{PostPrunePasses: []Pass{func(g *LinkGraph) error {
		for _, s := range g.Sections() {
			sections = append(sections, s.Name())
			for _, blk := range s.Blocks() {
				if blk.IsZeroFill() {
					zeroFill++
					if blk.Size() != 2*65536 {
						return stderrors.New("memory block size wrong")
					}
				} else {
					content++
				}
			}
		}
		return nil
	}}}

	if _, err := Link("demo", testTriple, b.Encode(), cfg); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if len(sections) != 3 || sections[0] != SectionCode || sections[1] != SectionData || sections[2] != SectionMemory {
		t.Errorf("sections = %v", sections)
	}
	if zeroFill != 1 || content != 2 {
		t.Errorf("zeroFill = %d content = %d, want 1/2", zeroFill, content)
	}
}

func TestLinkPropagatesPassFailure(t *testing.T) {
	cause := stderrors.New("malformed block")
	cfg := &PassConfig{PostPrunePasses: []Pass{func(*LinkGraph) error { return cause }}}

	_, err := Link("demo", testTriple, demoObject(), cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !stderrors.Is(err, cause) {
		t.Errorf("err = %v, want wrapped cause", err)
	}
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhasePrune, Kind: errors.KindPassFailed}) {
		t.Errorf("err = %v, want pass_failed in prune phase", err)
	}
}

func TestLinkRejectsGarbage(t *testing.T) {
	_, err := Link("demo", testTriple, []byte("not wasm"), nil)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseParse, Kind: errors.KindInvalidData}) {
		t.Errorf("err = %v, want parse error", err)
	}
}
