package engine

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/jitlink/errors"
)

// Triple identifies the execution target reported to linking plugins.
const Triple = "wasm32-unknown-wazero"

// Config holds configuration for engine creation.
type Config struct {
	// CacheDir enables a persistent compilation cache at the given
	// directory. Empty disables caching.
	CacheDir string

	// MemoryLimitPages sets the maximum memory per instance in pages
	// (64KB each). 0 means the wazero default.
	MemoryLimitPages uint32
}

// Engine compiles and instantiates linked images on a wazero runtime.
// Thread-safe.
type Engine struct {
	runtime wazero.Runtime
	cache   wazero.CompilationCache
	mu      sync.Mutex
}

// New creates an engine with default configuration.
func New(ctx context.Context) (*Engine, error) {
	return NewWithConfig(ctx, nil)
}

// NewWithConfig creates an engine with custom configuration.
func NewWithConfig(ctx context.Context, cfg *Config) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	var cache wazero.CompilationCache

	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.CacheDir != "" {
			var err error
			cache, err = wazero.NewCompilationCacheWithDir(cfg.CacheDir)
			if err != nil {
				return nil, errors.Load("create compilation cache", err)
			}
			runtimeCfg = runtimeCfg.WithCompilationCache(cache)
		}
	}

	return &Engine{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		cache:   cache,
	}, nil
}

// Load compiles a linked image and instantiates it under the given
// name. The instance is live on return but nothing outside the engine
// refers to it yet; the linking layer decides when it becomes visible.
func (e *Engine) Load(ctx context.Context, name string, image []byte) (*Instance, error) {
	compiled, err := e.runtime.CompileModule(ctx, image)
	if err != nil {
		return nil, errors.Load("compile image", err)
	}

	mod, err := e.runtime.InstantiateModule(ctx, compiled,
		wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, errors.Instantiation(name, err)
	}

	Logger().Debug("image instantiated", zap.String("name", name))
	return &Instance{module: mod}, nil
}

// HostModuleBuilder defines host functions importable by linked images.
type HostModuleBuilder struct {
	builder wazero.HostModuleBuilder
	engine  *Engine
	name    string
}

// NewHostModule starts building a host module with the given name.
func (e *Engine) NewHostModule(name string) *HostModuleBuilder {
	return &HostModuleBuilder{
		engine:  e,
		name:    name,
		builder: e.runtime.NewHostModuleBuilder(name),
	}
}

// Func adds a function to the host module.
func (b *HostModuleBuilder) Func(name string, fn api.GoModuleFunc, params, results []api.ValueType) *HostModuleBuilder {
	b.builder.NewFunctionBuilder().
		WithGoModuleFunction(fn, params, results).
		Export(name)
	return b
}

// Build instantiates the host module into the runtime.
func (b *HostModuleBuilder) Build(ctx context.Context) error {
	b.engine.mu.Lock()
	defer b.engine.mu.Unlock()

	if _, err := b.builder.Instantiate(ctx); err != nil {
		return errors.Load("instantiate host module "+b.name, err)
	}
	return nil
}

// Close releases the runtime and, if configured, the compilation cache.
func (e *Engine) Close(ctx context.Context) error {
	if err := e.runtime.Close(ctx); err != nil {
		return err
	}
	if e.cache != nil {
		return e.cache.Close(ctx)
	}
	return nil
}

// Instance is one loaded image.
type Instance struct {
	module api.Module
}

// Function resolves an exported function by name, nil if absent.
func (i *Instance) Function(name string) api.Function {
	return i.module.ExportedFunction(name)
}

// Name returns the instance name.
func (i *Instance) Name() string {
	return i.module.Name()
}

// Close releases the instance's resources.
func (i *Instance) Close(ctx context.Context) error {
	return i.module.Close(ctx)
}
