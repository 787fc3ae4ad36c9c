// Package vectorindex implements spec.md §4.7 component I: chunking,
// embedding, and an in-memory normalized-cosine ANN index for semantic code
// search, with an optional Qdrant-backed implementation of the same
// interface. Chunk boundaries come from an opaque SymbolExtractor — the
// AST/tree-sitter grammar internals spec.md explicitly excludes from scope
// are wrapped behind that interface, not reimplemented.
package vectorindex

// ChunkType classifies a CodeChunk per spec.md §3's closed set.
type ChunkType string

const (
	ChunkFunction ChunkType = "function"
	ChunkClass    ChunkType = "class"
	ChunkMethod   ChunkType = "method"
	ChunkStruct   ChunkType = "struct"
	ChunkEnum     ChunkType = "enum"
	ChunkGeneric  ChunkType = "generic"
)

// StrideInfo marks a CodeChunk as one overlapping slice of an oversized
// original chunk that didn't fit the embedding model's token budget.
type StrideInfo struct {
	OriginalID   string
	StrideIndex  int
	Total        int
	OverlapStart int // byte offset into this stride where overlap with the previous stride ends (0 for the first stride)
	OverlapEnd   int // byte offset into this stride where overlap with the next stride begins (the stride's length for the last stride)
}

// CodeChunk is one unit of source code offered to the embedder, per
// spec.md §3.
type CodeChunk struct {
	ID        string
	FilePath  string
	ByteStart int
	ByteEnd   int
	LineStart int
	LineEnd   int
	Content   string
	Type      ChunkType
	Stride    *StrideInfo // nil unless this chunk is a stride of a larger one
}

// CodeVector is a CodeChunk's embedding plus enough metadata to render a
// search hit without re-reading the chunk table.
type CodeVector struct {
	ChunkID  string
	FilePath string
	Vec      []float32 // L2-normalized
}

// Symbol is one named span a SymbolExtractor finds in a source file —
// the chunker turns each Symbol into one CodeChunk (further split into
// strides if it's too large).
type Symbol struct {
	Name      string
	Type      ChunkType
	ByteStart int
	ByteEnd   int
	LineStart int
	LineEnd   int
}

// SymbolExtractor finds named top-level spans (functions, methods, types...)
// in a source file. Grammar/AST internals are entirely behind this
// interface per spec.md's explicit exclusion — implementations may be as
// simple as a blank-line heuristic or as rich as a tree-sitter parse.
type SymbolExtractor interface {
	Extract(path string, content []byte) ([]Symbol, error)
}
