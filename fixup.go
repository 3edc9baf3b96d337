package jitlink

import (
	"github.com/wippyai/jitlink/errors"
	"github.com/wippyai/jitlink/internal/binary"
)

// applyFixups patches every relocation slot in the graph with the final
// function index of its target symbol. Content is rewritten in place;
// block addresses and sizes never change.
func applyFixups(st *linkState, object string) error {
	for _, s := range st.graph.Sections() {
		for _, b := range s.Blocks() {
			if b.IsZeroFill() {
				continue
			}
			content := b.Content()
			for _, e := range b.Edges() {
				if e.Kind != EdgeCallIndexLEB {
					return errors.New(errors.PhaseFixup, errors.KindUnsupported).
						Object(object).
						Detail("edge kind %s", e.Kind).
						Build()
				}
				index, ok := st.symtab[e.Target]
				if !ok {
					return errors.UnresolvedSymbol(object, e.Target)
				}
				if e.Offset+binary.PaddedU32Len > b.Size() {
					return errors.OutOfBounds(object, e.Offset, b.Size())
				}
				binary.PutU32Padded(content[e.Offset:], index)
			}
		}
	}
	return nil
}
