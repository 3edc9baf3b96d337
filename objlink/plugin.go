package objlink

import (
	jitlink "github.com/wippyai/jitlink"
)

// ResourceKey is an opaque handle for the pool of execution resources
// tied to one tracked object (its instances in the engine). Keys are
// allocated by the layer and never reused.
type ResourceKey uint64

// MaterializationContext identifies one object in flight through the
// linking layer. It is created before linking begins and handed to
// every plugin callback for that object. Read-only for plugins.
type MaterializationContext struct {
	name    string
	symbols []string
	key     ResourceKey
}

// Name returns the object name.
func (mr *MaterializationContext) Name() string { return mr.name }

// Symbols returns the names of the symbols the object defines, sorted.
// Callers must not modify the returned slice.
func (mr *MaterializationContext) Symbols() []string { return mr.symbols }

// ResourceKey returns the key under which the object's execution
// resources are tracked.
func (mr *MaterializationContext) ResourceKey() ResourceKey { return mr.key }

// Plugin observes the linking layer. All methods are required.
//
// Callbacks for different objects may run concurrently; a plugin must
// not share unsynchronized mutable state between them. For one object
// the layer guarantees the order: ModifyPassConfig, the registered
// passes (post-prune strictly before post-fixup), then NotifyLoaded and
// NotifyEmitted on success or NotifyFailed on failure. Passes and
// callbacks run synchronously on the linking goroutine and must not
// block on unrelated work.
type Plugin interface {
	// ModifyPassConfig is invoked once per object before linking
	// begins. The plugin may append passes to cfg; it must not retain
	// cfg or the graph passed to those passes past their invocation,
	// and must not leak state between objects.
	ModifyPassConfig(mr *MaterializationContext, triple string, cfg *jitlink.PassConfig)

	// NotifyLoaded fires when the object's image has been instantiated
	// in the engine but before its symbols become visible to lookups.
	// Diagnostic only; must not block or fail.
	NotifyLoaded(mr *MaterializationContext)

	// NotifyEmitted fires once the object is fully emitted and its
	// symbols are about to become resolvable. Returning an error aborts
	// exposing the object's symbols.
	NotifyEmitted(mr *MaterializationContext) error

	// NotifyFailed fires if linking or loading failed. Its return value
	// reports the plugin's own cleanup, not the original failure.
	NotifyFailed(mr *MaterializationContext) error

	// NotifyRemovingResources fires when the resource pool identified
	// by key is being released. An error is surfaced to the caller of
	// Remove.
	NotifyRemovingResources(key ResourceKey) error

	// NotifyTransferringResources fires when ownership of src's
	// resource pool moves to dst, after which src is no longer tracked.
	NotifyTransferringResources(dst, src ResourceKey)
}
