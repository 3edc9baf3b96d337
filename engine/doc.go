// Package engine wraps the wazero runtime that executes linked images.
//
// The engine is the external collaborator of the linking layer: it owns
// executable memory, compilation, and symbol invocation. Everything the
// rest of the module knows about execution goes through Engine and
// Instance; wazero types do not leak above this package except for
// api.Function handles returned to callers.
package engine
