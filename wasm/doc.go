// Package wasm is the object codec of the linking layer. It parses core
// WebAssembly modules into a Module, encodes a Module back to bytes, and
// provides a Builder for assembling small modules programmatically.
//
// The codec deliberately supports only the constructs the link pipeline
// understands: function types, function imports, one linear memory,
// exports, code and active data segments. Anything else is rejected at
// parse time rather than passed through unverified, because pruning
// renumbers the function index space and unparsed sections could hold
// stale indices.
package wasm
