// Package objlink is the object linking layer: it runs every submitted
// object through the link pipeline, loads the emitted image into the
// execution engine, and makes its symbols visible for lookup.
//
// Plugins observe the process. A plugin registers graph passes at the
// two fixed instrumentation points (post-prune and post-fixup) and
// receives lifecycle callbacks as each object is loaded, emitted or
// fails, and as execution resources are released or transferred. See
// Plugin for the full contract, and DumpPlugin for the built-in
// observer that renders link graphs as hex dumps.
//
// A Layer is safe for concurrent use; objects submitted from different
// goroutines link independently. Within one object's link, the
// post-prune pass always runs strictly before the post-fixup pass, on
// the linking goroutine.
package objlink
