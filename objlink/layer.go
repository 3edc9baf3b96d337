package objlink

import (
	"context"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	jitlink "github.com/wippyai/jitlink"
	"github.com/wippyai/jitlink/engine"
	"github.com/wippyai/jitlink/errors"
	"github.com/wippyai/jitlink/wasm"
)

// Options configures layer behavior.
type Options struct {
	// Triple reported to plugins. Defaults to the engine triple.
	Triple string
}

// DefaultOptions returns default layer configuration.
func DefaultOptions() Options {
	return Options{Triple: engine.Triple}
}

// unit is one tracked object: its resource key, the symbols it defines,
// and the engine instances backing it. A unit may back more than one
// instance after a resource transfer.
type unit struct {
	name      string
	symbols   []string
	instances []*engine.Instance
	key       ResourceKey
}

// Layer links objects and tracks the resulting execution resources.
// Thread-safe; objects added from different goroutines link
// independently.
type Layer struct {
	engine  *engine.Engine
	byName  map[string]*unit
	byKey   map[ResourceKey]*unit
	plugins []Plugin
	units   []*unit // emission order, searched by Lookup
	options Options
	nextKey ResourceKey
	mu      sync.RWMutex
}

// New creates a linking layer over the given engine.
func New(e *engine.Engine, opts Options) *Layer {
	if opts.Triple == "" {
		opts.Triple = engine.Triple
	}
	return &Layer{
		engine:  e,
		options: opts,
		byName:  make(map[string]*unit),
		byKey:   make(map[ResourceKey]*unit),
		nextKey: 1,
	}
}

// NewWithDefaults creates a linking layer with default options.
func NewWithDefaults(e *engine.Engine) *Layer {
	return New(e, DefaultOptions())
}

// AddPlugin registers a plugin. Plugins added after objects have been
// submitted only observe objects submitted later.
func (l *Layer) AddPlugin(p Plugin) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.plugins = append(l.plugins, p)
}

// Add links one object and loads the emitted image. On success the
// object's symbols become visible to Lookup; on failure every plugin's
// NotifyFailed runs and the combined error is returned.
func (l *Layer) Add(ctx context.Context, name string, object []byte) error {
	l.mu.Lock()
	if _, exists := l.byName[name]; exists {
		l.mu.Unlock()
		return errors.New(errors.PhaseLinking, errors.KindInvalidData).
			Object(name).
			Detail("object already added").
			Build()
	}
	key := l.nextKey
	l.nextKey++
	u := &unit{name: name, key: key}
	l.byName[name] = u // reserve; not visible to Lookup until emitted
	plugins := append([]Plugin(nil), l.plugins...)
	triple := l.options.Triple
	l.mu.Unlock()

	mr := &MaterializationContext{name: name, key: key}

	fail := func(orig error) error {
		combined := orig
		for _, p := range plugins {
			if err := p.NotifyFailed(mr); err != nil {
				combined = multierr.Append(combined,
					errors.PluginFailed(name, "NotifyFailed", err))
			}
		}
		l.mu.Lock()
		delete(l.byName, name)
		l.mu.Unlock()
		return combined
	}

	m, err := wasm.ParseModule(object)
	if err != nil {
		return fail(errors.ParseFailed(name, err))
	}
	symbols := append([]string(nil), m.ExportedFuncs()...)
	sort.Strings(symbols)
	mr.symbols = symbols

	cfg := &jitlink.PassConfig{}
	for _, p := range plugins {
		p.ModifyPassConfig(mr, triple, cfg)
	}

	img, err := jitlink.Link(name, triple, object, cfg)
	if err != nil {
		return fail(err)
	}

	inst, err := l.engine.Load(ctx, name, img.Bytes)
	if err != nil {
		return fail(err)
	}

	for _, p := range plugins {
		p.NotifyLoaded(mr)
	}

	for _, p := range plugins {
		if err := p.NotifyEmitted(mr); err != nil {
			closeErr := inst.Close(ctx)
			return fail(multierr.Append(
				errors.PluginFailed(name, "NotifyEmitted", err), closeErr))
		}
	}

	l.mu.Lock()
	u.symbols = img.Symbols
	u.instances = []*engine.Instance{inst}
	l.byKey[key] = u
	l.units = append(l.units, u)
	l.mu.Unlock()

	Logger().Debug("object emitted",
		zap.String("object", name),
		zap.Strings("symbols", img.Symbols))
	return nil
}

// Lookup resolves a symbol across all emitted objects in emission
// order.
func (l *Layer) Lookup(symbol string) (api.Function, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, u := range l.units {
		for _, inst := range u.instances {
			if fn := inst.Function(symbol); fn != nil {
				return fn, nil
			}
		}
	}
	return nil, errors.NotFound(errors.PhaseRuntime, "symbol", symbol)
}

// LookupIn resolves a symbol within the named object only.
func (l *Layer) LookupIn(object, symbol string) (api.Function, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	u, ok := l.byName[object]
	if !ok || u.instances == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "object", object)
	}
	for _, inst := range u.instances {
		if fn := inst.Function(symbol); fn != nil {
			return fn, nil
		}
	}
	return nil, errors.NotFound(errors.PhaseRuntime, "symbol", symbol)
}

// Symbols returns the symbols defined by the named object, or nil if it
// is not tracked.
func (l *Layer) Symbols(name string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if u, ok := l.byName[name]; ok {
		return append([]string(nil), u.symbols...)
	}
	return nil
}

// Remove releases the named object's execution resources. Plugins are
// notified before the instances close; their errors and any close
// error are combined.
func (l *Layer) Remove(ctx context.Context, name string) error {
	l.mu.Lock()
	u, ok := l.byName[name]
	if !ok || u.instances == nil {
		l.mu.Unlock()
		return errors.NotFound(errors.PhaseLinking, "object", name)
	}
	delete(l.byName, name)
	delete(l.byKey, u.key)
	for i, other := range l.units {
		if other == u {
			l.units = append(l.units[:i], l.units[i+1:]...)
			break
		}
	}
	plugins := append([]Plugin(nil), l.plugins...)
	l.mu.Unlock()

	var combined error
	for _, p := range plugins {
		if err := p.NotifyRemovingResources(u.key); err != nil {
			combined = multierr.Append(combined,
				errors.PluginFailed(name, "NotifyRemovingResources", err))
		}
	}
	for _, inst := range u.instances {
		combined = multierr.Append(combined, inst.Close(ctx))
	}
	return combined
}

// Transfer moves src's execution resources under dst's resource key.
// src stops being tracked as a separate object but its instances stay
// live and its symbols remain resolvable through dst.
func (l *Layer) Transfer(dst, src string) error {
	l.mu.Lock()
	d, ok := l.byName[dst]
	if !ok || d.instances == nil {
		l.mu.Unlock()
		return errors.NotFound(errors.PhaseLinking, "object", dst)
	}
	s, ok := l.byName[src]
	if !ok || s.instances == nil {
		l.mu.Unlock()
		return errors.NotFound(errors.PhaseLinking, "object", src)
	}
	d.instances = append(d.instances, s.instances...)
	d.symbols = append(d.symbols, s.symbols...)
	delete(l.byName, src)
	delete(l.byKey, s.key)
	for i, other := range l.units {
		if other == s {
			l.units = append(l.units[:i], l.units[i+1:]...)
			break
		}
	}
	plugins := append([]Plugin(nil), l.plugins...)
	l.mu.Unlock()

	for _, p := range plugins {
		p.NotifyTransferringResources(d.key, s.key)
	}
	return nil
}

// Close removes every tracked object. The engine itself is left open;
// closing it is the owner's responsibility.
func (l *Layer) Close(ctx context.Context) error {
	l.mu.RLock()
	names := make([]string, 0, len(l.units))
	for _, u := range l.units {
		names = append(names, u.name)
	}
	l.mu.RUnlock()

	var combined error
	for _, name := range names {
		combined = multierr.Append(combined, l.Remove(ctx, name))
	}
	return combined
}
