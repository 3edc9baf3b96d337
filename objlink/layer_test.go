package objlink

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	jitlink "github.com/wippyai/jitlink"
	"github.com/wippyai/jitlink/engine"
	"github.com/wippyai/jitlink/errors"
)

func newTestLayer(t *testing.T) *Layer {
	t.Helper()
	ctx := context.Background()
	e, err := engine.New(ctx)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() { e.Close(ctx) })
	return NewWithDefaults(e)
}

// recordingPlugin logs every callback it receives and can be told to
// fail NotifyEmitted or NotifyFailed.
type recordingPlugin struct {
	emitErr error
	failErr error
	events  []string
	mu      sync.Mutex
}

func (r *recordingPlugin) record(ev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingPlugin) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recordingPlugin) ModifyPassConfig(mr *MaterializationContext, triple string, cfg *jitlink.PassConfig) {
	r.record("modify " + mr.Name())
	cfg.PostPrunePasses = append(cfg.PostPrunePasses, func(*jitlink.LinkGraph) error {
		r.record("post-prune " + mr.Name())
		return nil
	})
	cfg.PostFixupPasses = append(cfg.PostFixupPasses, func(*jitlink.LinkGraph) error {
		r.record("post-fixup " + mr.Name())
		return nil
	})
}

func (r *recordingPlugin) NotifyLoaded(mr *MaterializationContext) {
	r.record("loaded " + mr.Name())
}

func (r *recordingPlugin) NotifyEmitted(mr *MaterializationContext) error {
	r.record("emitted " + mr.Name())
	return r.emitErr
}

func (r *recordingPlugin) NotifyFailed(mr *MaterializationContext) error {
	r.record("failed " + mr.Name())
	return r.failErr
}

func (r *recordingPlugin) NotifyRemovingResources(key ResourceKey) error {
	r.record(fmt.Sprintf("removing %d", key))
	return nil
}

func (r *recordingPlugin) NotifyTransferringResources(dst, src ResourceKey) {
	r.record(fmt.Sprintf("transferring %d <- %d", dst, src))
}

func TestLayerCallbackOrder(t *testing.T) {
	ctx := context.Background()
	l := newTestLayer(t)
	rec := &recordingPlugin{}
	l.AddPlugin(rec)

	if err := l.Add(ctx, "demo", demoObject()); err != nil {
		t.Fatalf("Add: %v", err)
	}

	want := []string{
		"modify demo",
		"post-prune demo",
		"post-fixup demo",
		"loaded demo",
		"emitted demo",
	}
	got := rec.Events()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	fn, err := l.Lookup("entry")
	if err != nil {
		t.Fatalf("Lookup(entry): %v", err)
	}
	res, err := fn.Call(ctx)
	if err != nil {
		t.Fatalf("entry(): %v", err)
	}
	if len(res) != 1 || res[0] != 7 {
		t.Errorf("entry() = %v, want [7]", res)
	}

	if syms := l.Symbols("demo"); len(syms) != 2 || syms[0] != "callee" || syms[1] != "entry" {
		t.Errorf("symbols = %v, want [callee entry]", syms)
	}
}

func TestLayerEmittedVetoHidesSymbols(t *testing.T) {
	ctx := context.Background()
	l := newTestLayer(t)
	rec := &recordingPlugin{emitErr: stderrors.New("veto")}
	l.AddPlugin(rec)

	err := l.Add(ctx, "demo", demoObject())
	if err == nil {
		t.Fatal("Add succeeded despite emission veto")
	}
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseLinking, Kind: errors.KindPluginFailed}) {
		t.Errorf("err = %v, want plugin failure", err)
	}
	if !stderrors.Is(err, rec.emitErr) {
		t.Errorf("err = %v, does not wrap the veto", err)
	}

	if _, err := l.Lookup("entry"); err == nil {
		t.Error("vetoed object's symbols are resolvable")
	}

	got := rec.Events()
	if got[len(got)-1] != "failed demo" {
		t.Errorf("last event = %q, want \"failed demo\"", got[len(got)-1])
	}

	// The reserved name is released on failure, so a retry reaches the
	// plugin again instead of being rejected as a duplicate.
	err = l.Add(ctx, "demo", demoObject())
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseLinking, Kind: errors.KindPluginFailed}) {
		t.Errorf("retry err = %v, want second veto", err)
	}
}

func TestLayerLinkFailureNotifiesPlugins(t *testing.T) {
	ctx := context.Background()
	l := newTestLayer(t)
	rec := &recordingPlugin{}
	l.AddPlugin(rec)

	err := l.Add(ctx, "bad", []byte("not a wasm module"))
	if err == nil {
		t.Fatal("Add accepted garbage")
	}
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseParse, Kind: errors.KindInvalidData}) {
		t.Errorf("err = %v, want parse failure", err)
	}

	got := strings.Join(rec.Events(), ",")
	if !strings.Contains(got, "failed bad") {
		t.Errorf("events = %v, missing failure callback", rec.Events())
	}
	if strings.Contains(got, "loaded") || strings.Contains(got, "emitted") {
		t.Errorf("events = %v, success callbacks fired on failure", rec.Events())
	}
}

func TestLayerRejectsDuplicateName(t *testing.T) {
	ctx := context.Background()
	l := newTestLayer(t)

	if err := l.Add(ctx, "demo", demoObject()); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := l.Add(ctx, "demo", demoObject()); err == nil {
		t.Fatal("duplicate name accepted")
	}
}

func TestLayerRemoveReleasesResources(t *testing.T) {
	ctx := context.Background()
	l := newTestLayer(t)
	rec := &recordingPlugin{}
	l.AddPlugin(rec)

	if err := l.Add(ctx, "demo", demoObject()); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := l.Remove(ctx, "demo"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	got := rec.Events()
	if got[len(got)-1] != "removing 1" {
		t.Errorf("last event = %q, want \"removing 1\"", got[len(got)-1])
	}
	if _, err := l.Lookup("entry"); err == nil {
		t.Error("removed object's symbols still resolvable")
	}
	if err := l.Remove(ctx, "demo"); !stderrors.Is(err, &errors.Error{Phase: errors.PhaseLinking, Kind: errors.KindNotFound}) {
		t.Errorf("second Remove = %v, want not-found", err)
	}
}

func TestLayerTransferMergesResources(t *testing.T) {
	ctx := context.Background()
	l := newTestLayer(t)
	rec := &recordingPlugin{}
	l.AddPlugin(rec)

	if err := l.Add(ctx, "a", demoObject()); err != nil {
		t.Fatalf("Add(a): %v", err)
	}
	if err := l.Add(ctx, "b", constObject("eight", 8)); err != nil {
		t.Fatalf("Add(b): %v", err)
	}

	if err := l.Transfer("a", "b"); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	got := rec.Events()
	if got[len(got)-1] != "transferring 1 <- 2" {
		t.Errorf("last event = %q, want \"transferring 1 <- 2\"", got[len(got)-1])
	}

	// b's symbols stay live under a's key.
	fn, err := l.Lookup("eight")
	if err != nil {
		t.Fatalf("Lookup(eight): %v", err)
	}
	res, err := fn.Call(ctx)
	if err != nil || len(res) != 1 || res[0] != 8 {
		t.Fatalf("eight() = %v, %v, want [8]", res, err)
	}

	if err := l.Transfer("a", "b"); err == nil {
		t.Error("transfer from untracked object succeeded")
	}
	if err := l.Remove(ctx, "b"); err == nil {
		t.Error("remove of transferred object succeeded")
	}
	if err := l.Remove(ctx, "a"); err != nil {
		t.Errorf("Remove(a): %v", err)
	}
	if _, err := l.Lookup("eight"); err == nil {
		t.Error("transferred symbols survive removal of the owner")
	}
}

func TestLayerConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	l := newTestLayer(t)
	rec := &recordingPlugin{}
	l.AddPlugin(rec)

	objects := map[string][]byte{
		"a": demoObject(),
		"b": constObject("eight", 8),
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(objects))
	for name, obj := range objects {
		wg.Add(1)
		go func(name string, obj []byte) {
			defer wg.Done()
			errs <- l.Add(ctx, name, obj)
		}(name, obj)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Add: %v", err)
		}
	}

	for symbol, want := range map[string]uint64{"entry": 7, "eight": 8} {
		fn, err := l.Lookup(symbol)
		if err != nil {
			t.Fatalf("Lookup(%s): %v", symbol, err)
		}
		res, err := fn.Call(ctx)
		if err != nil || len(res) != 1 || res[0] != want {
			t.Fatalf("%s() = %v, %v, want [%d]", symbol, res, err, want)
		}
	}
}
