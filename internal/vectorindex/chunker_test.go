package vectorindex

import (
	"strings"
	"testing"
)

func TestLineExtractorSplitsBlankLineBlocks(t *testing.T) {
	src := "func a() {}\n\nfunc b() {}\n\n\nfunc c() {}\n"
	symbols, err := LineExtractor{}.Extract("x.txt", []byte(src))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(symbols) != 3 {
		t.Fatalf("len(symbols) = %d, want 3", len(symbols))
	}
	for _, s := range symbols {
		if s.Type != ChunkGeneric {
			t.Errorf("symbol type = %v, want ChunkGeneric", s.Type)
		}
	}
}

func TestChunkerSplitsOversizedChunkIntoStrides(t *testing.T) {
	// One giant "block" (no blank lines) so LineExtractor treats it as a
	// single symbol, forcing the chunker's stride-split path.
	body := strings.Repeat("x", 40000)
	chunker := NewChunker(LineExtractor{}, 4)

	chunks, err := chunker.Chunk("big.txt", []byte(body))
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("len(chunks) = %d, want >1 for an oversized single symbol", len(chunks))
	}
	for i, c := range chunks {
		if c.Stride == nil {
			t.Fatalf("chunks[%d].Stride = nil, want StrideInfo", i)
		}
		if c.Stride.Total != len(chunks) {
			t.Errorf("chunks[%d].Stride.Total = %d, want %d", i, c.Stride.Total, len(chunks))
		}
		if c.Stride.StrideIndex != i {
			t.Errorf("chunks[%d].Stride.StrideIndex = %d, want %d", i, c.Stride.StrideIndex, i)
		}
	}
}

func TestChunkerLeavesSmallChunksWhole(t *testing.T) {
	chunker := NewChunker(LineExtractor{}, 4)
	chunks, err := chunker.Chunk("small.txt", []byte("hello world\n"))
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("len(chunks) = %d, want 1", len(chunks))
	}
	if chunks[0].Stride != nil {
		t.Errorf("chunks[0].Stride = %+v, want nil for a small chunk", chunks[0].Stride)
	}
}
