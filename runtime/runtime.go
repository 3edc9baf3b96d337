package runtime

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/jitlink/engine"
	"github.com/wippyai/jitlink/errors"
	"github.com/wippyai/jitlink/objlink"
)

// Runtime ties an execution engine and a linking layer together behind
// one handle. Objects added here are linked, observed by any registered
// plugins, and loaded; their exports are then callable through Lookup.
type Runtime struct {
	engine *engine.Engine
	layer  *objlink.Layer
}

// New creates a runtime with default engine configuration.
func New(ctx context.Context) (*Runtime, error) {
	return NewWithConfig(ctx, nil)
}

// NewWithConfig creates a runtime over an engine built from cfg.
func NewWithConfig(ctx context.Context, cfg *engine.Config) (*Runtime, error) {
	eng, err := engine.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Load("create engine", err)
	}
	return &Runtime{
		engine: eng,
		layer:  objlink.NewWithDefaults(eng),
	}, nil
}

// Engine exposes the underlying execution engine, for host module
// registration.
func (r *Runtime) Engine() *engine.Engine {
	return r.engine
}

// Layer exposes the underlying linking layer.
func (r *Runtime) Layer() *objlink.Layer {
	return r.layer
}

// AddPlugin registers an observer on the linking layer. Plugins only
// observe objects added after registration.
func (r *Runtime) AddPlugin(p objlink.Plugin) {
	r.layer.AddPlugin(p)
}

// AddObject links and loads one relocatable object under the given
// name. On success its exports become resolvable through Lookup.
func (r *Runtime) AddObject(ctx context.Context, name string, object []byte) error {
	if err := r.layer.Add(ctx, name, object); err != nil {
		return err
	}
	Logger().Debug("object added", zap.String("object", name))
	return nil
}

// Remove releases the named object and its execution resources.
func (r *Runtime) Remove(ctx context.Context, name string) error {
	return r.layer.Remove(ctx, name)
}

// Symbols returns the exported symbols of the named object, or nil if
// it is not tracked.
func (r *Runtime) Symbols(name string) []string {
	return r.layer.Symbols(name)
}

// Lookup resolves an exported function. With an empty object name the
// search covers every emitted object in emission order; otherwise only
// the named object.
func (r *Runtime) Lookup(object, symbol string) (*Func, error) {
	var (
		fn  api.Function
		err error
	)
	if object == "" {
		fn, err = r.layer.Lookup(symbol)
	} else {
		fn, err = r.layer.LookupIn(object, symbol)
	}
	if err != nil {
		return nil, err
	}
	return &Func{fn: fn, symbol: symbol}, nil
}

// Close removes every object and shuts the engine down.
func (r *Runtime) Close(ctx context.Context) error {
	err := r.layer.Close(ctx)
	return multierr.Append(err, r.engine.Close(ctx))
}

// Func is a resolved exported function.
type Func struct {
	fn     api.Function
	symbol string
}

// Symbol returns the export name the function was resolved under.
func (f *Func) Symbol() string {
	return f.symbol
}

// Call invokes the function. Arguments and results use the engine's
// raw uint64 representation.
func (f *Func) Call(ctx context.Context, args ...uint64) ([]uint64, error) {
	res, err := f.fn.Call(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", f.symbol, err)
	}
	return res, nil
}
