// Package runtime is the top-level façade: one handle that owns an
// execution engine and an object linking layer.
//
// Typical use:
//
//	rt, err := runtime.New(ctx)
//	rt.AddPlugin(objlink.NewDumpPlugin(os.Stderr))
//	err = rt.AddObject(ctx, "demo", object)
//	fn, err := rt.Lookup("", "entry")
//	res, err := fn.Call(ctx)
package runtime
