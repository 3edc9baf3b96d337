// Package jitlink models the in-memory link graph that the object linking
// layer builds for every unit submitted to the JIT, and the pass pipeline
// that transforms it.
//
// # Architecture Overview
//
// The module is organized into several packages with distinct responsibilities:
//
//	jitlink/             Root package: link graph, passes, link pipeline
//	├── runtime/         High-level API for adding objects and calling symbols
//	├── engine/          Low-level wazero integration (the execution engine)
//	├── objlink/         Object linking layer, plugin contract, dump plugin
//	├── wasm/            Object codec: core module parsing, encoding, builder
//	├── errors/          Structured error types for link diagnostics
//	└── cmd/run/         CLI for linking and running objects
//
// # Link pipeline
//
// Each object runs through one linking pass:
//
//	parse -> prune -> layout -> [post-prune passes] -> fixup -> [post-fixup passes] -> emit
//
// Pruning drops functions unreachable from the object's exports and
// renumbers the survivors. Layout assigns every block a virtual address.
// Fixup patches each call relocation slot with the renumbered target
// index. Passes registered by plugins observe the graph immediately
// before and immediately after fixup.
//
// # Graph lifetime
//
// A LinkGraph is created for one linking pass and discarded after the
// linked image is emitted. Passes receive the live graph: they may
// inspect it freely but must not retain it past their return. Block
// identity and addresses are stable between the post-prune and
// post-fixup points of the same link; only content bytes change.
package jitlink
