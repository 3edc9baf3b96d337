package jitlink

// Pass is a link-graph transformation or inspection step. A pass runs
// synchronously on the linking goroutine; returning an error aborts the
// link for the current object.
type Pass func(*LinkGraph) error

// PassConfig collects the passes to run at the two instrumentation
// points of a linking pass. Plugins append to it during
// ModifyPassConfig; the pipeline runs each list in append order.
type PassConfig struct {
	// PostPrunePasses run after dead-code pruning and layout, before
	// fixups are applied.
	PostPrunePasses []Pass

	// PostFixupPasses run after fixups are applied, before the image
	// is emitted.
	PostFixupPasses []Pass
}

func runPasses(passes []Pass, g *LinkGraph) error {
	for _, p := range passes {
		if err := p(g); err != nil {
			return err
		}
	}
	return nil
}
