package jitlink

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/jitlink/errors"
	"github.com/wippyai/jitlink/wasm"
)

// pruneResult records the outcome of dead-code elimination over one
// module's declared functions. Indices are in the combined function
// index space (imports first).
type pruneResult struct {
	// kept lists surviving declared functions by their old index, in
	// original order.
	kept []uint32

	// renumber maps old combined index to new combined index. Imports
	// map to themselves.
	renumber map[uint32]uint32
}

// prune computes the set of declared functions reachable from the
// module's exported functions and renumbers the survivors. A module
// exporting no functions keeps everything: with no roots to anchor
// reachability, dropping all code would make the linked image useless.
func prune(m *wasm.Module, object string) (*pruneResult, error) {
	numImports := uint32(m.NumImportedFuncs())
	numFuncs := uint32(len(m.Funcs))

	var roots []uint32
	for _, e := range m.Exports {
		if e.Kind != wasm.ExportFunc {
			continue
		}
		if e.Index >= numImports+numFuncs {
			return nil, errors.New(errors.PhasePrune, errors.KindInvalidData).
				Object(object).
				Detail("export %q references function %d outside index space", e.Name, e.Index).
				Build()
		}
		roots = append(roots, e.Index)
	}

	reachable := make(map[uint32]bool)
	if len(roots) == 0 {
		for i := uint32(0); i < numFuncs; i++ {
			reachable[numImports+i] = true
		}
	} else {
		stack := roots
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if reachable[idx] || idx < numImports {
				continue
			}
			reachable[idx] = true

			body := m.Code[idx-numImports]
			sites, err := wasm.ScanCalls(body.Code)
			if err != nil {
				return nil, errors.New(errors.PhasePrune, errors.KindInvalidData).
					Object(object).
					Cause(err).
					Detail("scan function %d", idx).
					Build()
			}
			for _, site := range sites {
				if site.Index >= numImports+numFuncs {
					return nil, errors.New(errors.PhasePrune, errors.KindInvalidData).
						Object(object).
						Detail("function %d calls %d outside index space", idx, site.Index).
						Build()
				}
				stack = append(stack, site.Index)
			}
		}
	}

	res := &pruneResult{renumber: make(map[uint32]uint32)}
	for i := uint32(0); i < numImports; i++ {
		res.renumber[i] = i
	}
	next := numImports
	for i := uint32(0); i < numFuncs; i++ {
		old := numImports + i
		if !reachable[old] {
			continue
		}
		res.renumber[old] = next
		res.kept = append(res.kept, old)
		next++
	}

	if dropped := int(numFuncs) - len(res.kept); dropped > 0 {
		Logger().Debug("pruned unreachable functions",
			zap.String("object", object),
			zap.Int("dropped", dropped),
			zap.Int("kept", len(res.kept)))
	}

	return res, nil
}

// funcSymbol names the function at the given old combined index.
// Exported functions use their export name; imports use module.name;
// anything else gets a positional name.
func funcSymbol(m *wasm.Module, index uint32) string {
	numImports := uint32(m.NumImportedFuncs())
	if index < numImports {
		imp := m.Imports[index]
		return imp.Module + "." + imp.Name
	}
	for _, e := range m.Exports {
		if e.Kind == wasm.ExportFunc && e.Index == index {
			return e.Name
		}
	}
	return fmt.Sprintf("func[%d]", index)
}
