package jitlink

// EdgeKind identifies the relocation type of an edge.
type EdgeKind byte

const (
	// EdgeCallIndexLEB is a call-site relocation: a 5-byte padded LEB128
	// slot inside a code block that receives the target's final function
	// index during fixup.
	EdgeCallIndexLEB EdgeKind = iota
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeCallIndexLEB:
		return "call_index_leb"
	default:
		return "unknown"
	}
}

// Edge is a relocation record attached to a content block.
// Offset is relative to the block's start; Target names the symbol whose
// resolved value is written into the slot at fixup time.
type Edge struct {
	Target string
	Offset uint64
	Kind   EdgeKind
}

// Block is a contiguous span of bytes at a virtual address within a
// section. A block is either zero-fill (no backing bytes) or
// content-bearing. Content is owned by the graph and valid only while
// the graph is.
type Block struct {
	section  *Section
	symbol   string
	content  []byte
	edges    []Edge
	addr     uint64
	size     uint64
	align    uint64
	zeroFill bool
}

// Section returns the owning section.
func (b *Block) Section() *Section { return b.section }

// Symbol returns the name of the symbol this block defines, or "" for
// anonymous blocks.
func (b *Block) Symbol() string { return b.symbol }

// Address returns the block's virtual address. Zero until layout runs.
func (b *Block) Address() uint64 { return b.addr }

// Size returns the block's size in bytes.
func (b *Block) Size() uint64 { return b.size }

// Alignment returns the block's required alignment.
func (b *Block) Alignment() uint64 { return b.align }

// IsZeroFill reports whether the block has no backing content.
func (b *Block) IsZeroFill() bool { return b.zeroFill }

// Content returns the block's byte view, nil for zero-fill blocks.
// The returned slice aliases the block; callers must not retain it past
// the current pass.
func (b *Block) Content() []byte { return b.content }

// Edges returns the block's relocation records in offset order.
func (b *Block) Edges() []Edge { return b.edges }

// AddEdge appends a relocation record to the block.
func (b *Block) AddEdge(e Edge) { b.edges = append(b.edges, e) }

// Section is a named group of blocks, ordered by creation.
type Section struct {
	name   string
	blocks []*Block
}

// Name returns the section name.
func (s *Section) Name() string { return s.name }

// Blocks returns the section's blocks in creation order.
func (s *Section) Blocks() []*Block { return s.blocks }

// AddContentBlock creates a content-bearing block owning content.
func (s *Section) AddContentBlock(symbol string, content []byte, align uint64) *Block {
	b := &Block{
		section: s,
		symbol:  symbol,
		content: content,
		size:    uint64(len(content)),
		align:   align,
	}
	s.blocks = append(s.blocks, b)
	return b
}

// AddZeroFillBlock creates a zero-fill block of the given size.
func (s *Section) AddZeroFillBlock(symbol string, size, align uint64) *Block {
	b := &Block{
		section:  s,
		symbol:   symbol,
		size:     size,
		align:    align,
		zeroFill: true,
	}
	s.blocks = append(s.blocks, b)
	return b
}

// LinkGraph is the in-memory layout of one object during a linking pass.
// It is created by the pipeline before the post-prune passes run and
// discarded after the linked image is emitted. Not safe for concurrent
// use; each linking pass owns its graph exclusively.
type LinkGraph struct {
	byName   map[string]*Section
	name     string
	triple   string
	sections []*Section
}

// NewLinkGraph creates an empty graph for the named object.
func NewLinkGraph(name, triple string) *LinkGraph {
	return &LinkGraph{
		name:   name,
		triple: triple,
		byName: make(map[string]*Section),
	}
}

// Name returns the object name the graph was built for.
func (g *LinkGraph) Name() string { return g.name }

// Triple returns the target triple.
func (g *LinkGraph) Triple() string { return g.triple }

// Sections returns the graph's sections in creation order.
func (g *LinkGraph) Sections() []*Section { return g.sections }

// Section returns the named section, creating it on first use.
func (g *LinkGraph) Section(name string) *Section {
	if s, ok := g.byName[name]; ok {
		return s
	}
	s := &Section{name: name}
	g.byName[name] = s
	g.sections = append(g.sections, s)
	return s
}

// FindSection returns the named section or nil.
func (g *LinkGraph) FindSection(name string) *Section {
	return g.byName[name]
}

// FindBlock returns the block defining the named symbol, or nil.
func (g *LinkGraph) FindBlock(symbol string) *Block {
	for _, s := range g.sections {
		for _, b := range s.blocks {
			if b.symbol == symbol {
				return b
			}
		}
	}
	return nil
}
