package engine

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/jitlink/wasm"
)

func i32Result() wasm.FuncType {
	return wasm.FuncType{Results: []wasm.ValType{wasm.I32}}
}

func TestLoadAndCall(t *testing.T) {
	ctx := context.Background()
	e, err := New(ctx)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close(ctx)

	b := wasm.NewBuilder()
	b.Func("answer", i32Result()).I32Const(42).Export()

	inst, err := e.Load(ctx, "test", b.Encode())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer inst.Close(ctx)

	fn := inst.Function("answer")
	if fn == nil {
		t.Fatal("answer not exported")
	}
	results, err := fn.Call(ctx)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(results) != 1 || results[0] != 42 {
		t.Errorf("results = %v, want [42]", results)
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	e, err := New(ctx)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close(ctx)

	if _, err := e.Load(ctx, "bad", []byte("not wasm")); err == nil {
		t.Error("expected compile error")
	}
}

func TestHostModuleResolvesImports(t *testing.T) {
	ctx := context.Background()
	e, err := New(ctx)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close(ctx)

	var got uint64
	err = e.NewHostModule("env").
		Func("record", func(_ context.Context, _ api.Module, stack []uint64) {
			got = stack[0]
		}, []api.ValueType{api.ValueTypeI32}, nil).
		Build(ctx)
	if err != nil {
		t.Fatalf("Build host module: %v", err)
	}

	b := wasm.NewBuilder()
	b.ImportFunc("env", "record", wasm.FuncType{Params: []wasm.ValType{wasm.I32}})
	b.Func("entry", wasm.FuncType{}).I32Const(7).Call("record").Export()

	inst, err := e.Load(ctx, "imports", b.Encode())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer inst.Close(ctx)

	if _, err := inst.Function("entry").Call(ctx); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != 7 {
		t.Errorf("host saw %d, want 7", got)
	}
}
