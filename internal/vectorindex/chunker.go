package vectorindex

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Chunker turns source file contents into CodeChunks, splitting any chunk
// that exceeds the target embedding model's token budget into overlapping
// strides (spec.md §4.7).
type Chunker struct {
	extractor     SymbolExtractor
	maxTokens     int // default 8192
	overlapTokens int // default 1024
	// bytesPerToken is the heuristic used to estimate token counts from
	// byte length without invoking the model's real tokenizer — spec.md
	// calls for "a bytes-per-token heuristic tied to the chosen embedding
	// model", not an exact count.
	bytesPerToken float64
}

// NewChunker wires a Chunker from an extractor and an embedding model's
// approximate bytes-per-token ratio (a reasonable default for
// English-leaning source text is ~4).
func NewChunker(extractor SymbolExtractor, bytesPerToken float64) *Chunker {
	if bytesPerToken <= 0 {
		bytesPerToken = 4
	}
	return &Chunker{
		extractor:     extractor,
		maxTokens:     8192,
		overlapTokens: 1024,
		bytesPerToken: bytesPerToken,
	}
}

// Chunk extracts symbols from content and emits one CodeChunk per symbol,
// further split into strides where the symbol's span is too large for the
// configured token budget. Extensions TreeSitterExtractor doesn't cover
// fall back to a whole-file LineExtractor pass, matching the language's
// "opaque extractor" composition point.
func (c *Chunker) Chunk(path string, content []byte) ([]CodeChunk, error) {
	symbols, err := c.extractor.Extract(path, content)
	if err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		symbols, err = LineExtractor{}.Extract(path, content)
		if err != nil {
			return nil, err
		}
	}

	var chunks []CodeChunk
	for _, sym := range symbols {
		span := content[sym.ByteStart:sym.ByteEnd]
		id := uuid.NewString()
		base := CodeChunk{
			ID:        id,
			FilePath:  path,
			ByteStart: sym.ByteStart,
			ByteEnd:   sym.ByteEnd,
			LineStart: sym.LineStart,
			LineEnd:   sym.LineEnd,
			Content:   string(span),
			Type:      sym.Type,
		}
		if c.estimateTokens(len(span)) <= c.maxTokens {
			chunks = append(chunks, base)
			continue
		}
		chunks = append(chunks, c.splitStrides(base)...)
	}
	return chunks, nil
}

func (c *Chunker) estimateTokens(byteLen int) int {
	return int(float64(byteLen)/c.bytesPerToken) + 1
}

// splitStrides breaks an oversized chunk into overlapping strides of at
// most maxTokens each, with overlapTokens of shared content between
// consecutive strides so embeddings near a boundary still see context from
// the neighboring stride.
func (c *Chunker) splitStrides(orig CodeChunk) []CodeChunk {
	maxBytes := int(float64(c.maxTokens) * c.bytesPerToken)
	overlapBytes := int(float64(c.overlapTokens) * c.bytesPerToken)
	if overlapBytes >= maxBytes {
		overlapBytes = maxBytes / 4
	}
	stride := maxBytes - overlapBytes

	content := orig.Content
	var windows [][2]int // [start,end) byte offsets relative to content
	for start := 0; start < len(content); start += stride {
		end := start + maxBytes
		if end > len(content) {
			end = len(content)
		}
		windows = append(windows, [2]int{start, end})
		if end == len(content) {
			break
		}
	}

	lineOffsets := lineStartOffsets(content)
	out := make([]CodeChunk, 0, len(windows))
	for i, w := range windows {
		overlapStart := 0
		if i > 0 {
			overlapStart = overlapBytes
		}
		overlapEnd := w[1] - w[0]
		if i < len(windows)-1 {
			overlapEnd = w[1] - w[0] - (w[1] - windows[i][0] - stride)
			if overlapEnd < 0 || overlapEnd > w[1]-w[0] {
				overlapEnd = w[1] - w[0]
			}
		}
		out = append(out, CodeChunk{
			ID:        uuid.NewString(),
			FilePath:  orig.FilePath,
			ByteStart: orig.ByteStart + w[0],
			ByteEnd:   orig.ByteStart + w[1],
			LineStart: orig.LineStart + lineIndexForByte(lineOffsets, w[0]),
			LineEnd:   orig.LineStart + lineIndexForByte(lineOffsets, w[1]),
			Content:   content[w[0]:w[1]],
			Type:      orig.Type,
			Stride: &StrideInfo{
				OriginalID:   orig.ID,
				StrideIndex:  i,
				Total:        len(windows),
				OverlapStart: overlapStart,
				OverlapEnd:   overlapEnd,
			},
		})
	}
	return out
}

func lineStartOffsets(content string) []int {
	offsets := []int{0}
	for i, b := range content {
		if b == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}

func lineIndexForByte(offsets []int, pos int) int {
	lo, hi := 0, len(offsets)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if offsets[mid] <= pos {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// NewExtractor returns the SymbolExtractor to use for path: Go files get
// tree-sitter grounded symbol extraction, everything else falls back to
// the blank-line heuristic.
func NewExtractor(path string) SymbolExtractor {
	if strings.EqualFold(filepath.Ext(path), ".go") {
		return TreeSitterExtractor{}
	}
	return LineExtractor{}
}
