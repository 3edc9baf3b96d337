package objlink

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	jitlink "github.com/wippyai/jitlink"
	"github.com/wippyai/jitlink/errors"
)

const dumpWidth = 16

// DumpPlugin renders every link graph it observes to a writer, once
// before fixups run and once after, plus one line per lifecycle event.
// Each dump is rendered off-line and written in a single call under a
// mutex, so dumps for concurrently linking objects never interleave.
type DumpPlugin struct {
	w       io.Writer
	pending map[string]struct{}
	mu      sync.Mutex
}

// NewDumpPlugin creates a dump plugin writing to w.
func NewDumpPlugin(w io.Writer) *DumpPlugin {
	return &DumpPlugin{w: w, pending: make(map[string]struct{})}
}

// ModifyPassConfig registers the two dump passes for the object.
func (d *DumpPlugin) ModifyPassConfig(mr *MaterializationContext, triple string, cfg *jitlink.PassConfig) {
	d.mu.Lock()
	d.pending[mr.Name()] = struct{}{}
	d.mu.Unlock()

	cfg.PostPrunePasses = append(cfg.PostPrunePasses, func(g *jitlink.LinkGraph) error {
		return d.dump(g, "Before fixup:")
	})
	cfg.PostFixupPasses = append(cfg.PostFixupPasses, func(g *jitlink.LinkGraph) error {
		return d.dump(g, "After fixup:")
	})
}

// NotifyLoaded reports the object's symbols once its image is live.
func (d *DumpPlugin) NotifyLoaded(mr *MaterializationContext) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.w, "Loading object defining [%s]\n",
		strings.Join(mr.Symbols(), ", "))
}

// NotifyEmitted reports the object's symbols as they become resolvable.
func (d *DumpPlugin) NotifyEmitted(mr *MaterializationContext) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, mr.Name())
	fmt.Fprintf(d.w, "Emitted object defining [%s]\n",
		strings.Join(mr.Symbols(), ", "))
	return nil
}

// NotifyFailed drops the object from the pending set.
func (d *DumpPlugin) NotifyFailed(mr *MaterializationContext) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, mr.Name())
	return nil
}

// NotifyRemovingResources is a no-op.
func (d *DumpPlugin) NotifyRemovingResources(key ResourceKey) error {
	return nil
}

// NotifyTransferringResources is a no-op.
func (d *DumpPlugin) NotifyTransferringResources(dst, src ResourceKey) {}

// Pending returns the names of objects whose link is still in flight,
// sorted.
func (d *DumpPlugin) Pending() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.pending))
	for name := range d.pending {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *DumpPlugin) dump(g *jitlink.LinkGraph, title string) error {
	var buf bytes.Buffer
	if err := renderGraph(&buf, g, title); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.w.Write(buf.Bytes())
	return err
}

// renderGraph writes the textual form of a graph. Every block's content
// is validated up front so a malformed graph never produces a partial
// dump.
func renderGraph(buf *bytes.Buffer, g *jitlink.LinkGraph, title string) error {
	for _, s := range g.Sections() {
		for _, b := range s.Blocks() {
			if !b.IsZeroFill() && uint64(len(b.Content())) != b.Size() {
				return errors.New(errors.PhaseLinking, errors.KindInvalidData).
					Object(g.Name()).
					Symbol(b.Symbol()).
					Detail("block content is %d bytes, size is %d",
						len(b.Content()), b.Size()).
					Build()
			}
		}
	}

	fmt.Fprintf(buf, "--- %s---\n", title)
	for _, s := range g.Sections() {
		fmt.Fprintf(buf, "  section: %s\n", s.Name())
		for _, b := range s.Blocks() {
			fmt.Fprintf(buf, "    block@%016x:\n", b.Address())
			if b.IsZeroFill() {
				continue
			}

			start := b.Address()
			end := start + b.Size()
			content := b.Content()
			for cur := start &^ (dumpWidth - 1); cur != end; cur++ {
				if cur%dumpWidth == 0 {
					fmt.Fprintf(buf, "    %016x: ", cur)
				}
				if cur < start {
					buf.WriteString("   ")
				} else {
					fmt.Fprintf(buf, "%02x ", content[cur-start])
				}
				if cur%dumpWidth == dumpWidth-1 {
					buf.WriteByte('\n')
				}
			}
			if end%dumpWidth != 0 {
				buf.WriteByte('\n')
			}
			buf.WriteByte('\n')
		}
	}
	return nil
}
