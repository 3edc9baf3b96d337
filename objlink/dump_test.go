package objlink

import (
	"bytes"
	"strings"
	"testing"

	jitlink "github.com/wippyai/jitlink"
	"github.com/wippyai/jitlink/engine"
	"github.com/wippyai/jitlink/wasm"
)

func i32Result() wasm.FuncType {
	return wasm.FuncType{Results: []wasm.ValType{wasm.I32}}
}

// demoObject defines entry before callee so the call operand must be
// patched to a nonzero index, making the fixup visible in the dumps.
func demoObject() []byte {
	b := wasm.NewBuilder()
	b.Func("entry", i32Result()).Call("callee").Export()
	b.Func("callee", i32Result()).I32Const(7).Export()
	return b.Encode()
}

// constObject defines a single exported function returning v.
func constObject(name string, v int32) []byte {
	b := wasm.NewBuilder()
	b.Func(name, i32Result()).I32Const(v).Export()
	return b.Encode()
}

func TestRenderGraphShortBlock(t *testing.T) {
	g := jitlink.NewLinkGraph("t", engine.Triple)
	g.Section("code").AddContentBlock("f", []byte{0x01, 0x02, 0x03, 0x04, 0x05}, 1)

	var buf bytes.Buffer
	if err := renderGraph(&buf, g, "T:"); err != nil {
		t.Fatalf("renderGraph: %v", err)
	}

	want := "--- T:---\n" +
		"  section: code\n" +
		"    block@0000000000000000:\n" +
		"    0000000000000000: 01 02 03 04 05 \n" +
		"\n"
	if got := buf.String(); got != want {
		t.Errorf("dump = %q, want %q", got, want)
	}
}

func TestRenderGraphAlignedBlock(t *testing.T) {
	content := make([]byte, dumpWidth)
	for i := range content {
		content[i] = byte(i)
	}
	g := jitlink.NewLinkGraph("t", engine.Triple)
	g.Section("code").AddContentBlock("f", content, 1)

	var buf bytes.Buffer
	if err := renderGraph(&buf, g, "T:"); err != nil {
		t.Fatalf("renderGraph: %v", err)
	}

	// A block ending on the dump width gets no extra line break, just
	// the blank separator line.
	want := "--- T:---\n" +
		"  section: code\n" +
		"    block@0000000000000000:\n" +
		"    0000000000000000: 00 01 02 03 04 05 06 07 08 09 0a 0b 0c 0d 0e 0f \n" +
		"\n"
	if got := buf.String(); got != want {
		t.Errorf("dump = %q, want %q", got, want)
	}
}

func TestRenderGraphZeroFillBlock(t *testing.T) {
	g := jitlink.NewLinkGraph("t", engine.Triple)
	g.Section("memory").AddZeroFillBlock("mem", 65536, 65536)

	var buf bytes.Buffer
	if err := renderGraph(&buf, g, "T:"); err != nil {
		t.Fatalf("renderGraph: %v", err)
	}

	// Zero-fill blocks print their address only, no byte lines.
	want := "--- T:---\n" +
		"  section: memory\n" +
		"    block@0000000000000000:\n"
	if got := buf.String(); got != want {
		t.Errorf("dump = %q, want %q", got, want)
	}
}

func TestDumpPassesShowFixup(t *testing.T) {
	var buf bytes.Buffer
	d := NewDumpPlugin(&buf)
	mr := &MaterializationContext{name: "demo", symbols: []string{"callee", "entry"}, key: 1}

	cfg := &jitlink.PassConfig{}
	d.ModifyPassConfig(mr, engine.Triple, cfg)
	if len(cfg.PostPrunePasses) != 1 || len(cfg.PostFixupPasses) != 1 {
		t.Fatalf("passes = %d/%d, want 1/1",
			len(cfg.PostPrunePasses), len(cfg.PostFixupPasses))
	}
	if got := d.Pending(); len(got) != 1 || got[0] != "demo" {
		t.Errorf("pending = %v, want [demo]", got)
	}

	if _, err := jitlink.Link("demo", engine.Triple, demoObject(), cfg); err != nil {
		t.Fatalf("Link: %v", err)
	}

	out := buf.String()
	before := strings.Index(out, "--- Before fixup:---\n")
	after := strings.Index(out, "--- After fixup:---\n")
	if before < 0 || after < 0 || after < before {
		t.Fatalf("dump titles missing or out of order:\n%s", out)
	}

	// entry's call operand is a zeroed padded slot before fixups and
	// encodes callee's index afterwards; callee's body never changes.
	if !strings.Contains(out[:after], "10 80 80 80 80 00 0b ") {
		t.Errorf("pre-fixup dump missing zeroed call slot:\n%s", out[:after])
	}
	if !strings.Contains(out[after:], "10 81 80 80 80 00 0b ") {
		t.Errorf("post-fixup dump missing patched call slot:\n%s", out[after:])
	}
	if strings.Contains(out[after:], "10 80 80 80 80 00 0b ") {
		t.Errorf("post-fixup dump still shows zeroed call slot:\n%s", out[after:])
	}
	if !strings.Contains(out[:after], "41 07 0b ") || !strings.Contains(out[after:], "41 07 0b ") {
		t.Errorf("callee body missing from a dump:\n%s", out)
	}

	// Fixups patch content in place; block addresses are identical
	// across the two dumps.
	for _, addr := range []string{"block@0000000000010000:", "block@0000000000010007:"} {
		if !strings.Contains(out[:after], addr) || !strings.Contains(out[after:], addr) {
			t.Errorf("address %s not present in both dumps:\n%s", addr, out)
		}
	}
}

func TestDumpLifecycleLines(t *testing.T) {
	var buf bytes.Buffer
	d := NewDumpPlugin(&buf)
	mr := &MaterializationContext{name: "demo", symbols: []string{"callee", "entry"}, key: 1}

	d.ModifyPassConfig(mr, engine.Triple, &jitlink.PassConfig{})
	d.NotifyLoaded(mr)
	if err := d.NotifyEmitted(mr); err != nil {
		t.Fatalf("NotifyEmitted: %v", err)
	}

	want := "Loading object defining [callee, entry]\n" +
		"Emitted object defining [callee, entry]\n"
	if got := buf.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if got := d.Pending(); len(got) != 0 {
		t.Errorf("pending after emit = %v, want empty", got)
	}
}

func TestDumpFailedClearsPending(t *testing.T) {
	d := NewDumpPlugin(&bytes.Buffer{})
	mr := &MaterializationContext{name: "demo", key: 1}

	d.ModifyPassConfig(mr, engine.Triple, &jitlink.PassConfig{})
	if err := d.NotifyFailed(mr); err != nil {
		t.Fatalf("NotifyFailed: %v", err)
	}
	if got := d.Pending(); len(got) != 0 {
		t.Errorf("pending after failure = %v, want empty", got)
	}
}
