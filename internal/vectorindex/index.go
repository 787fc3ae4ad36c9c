package vectorindex

import (
	"container/heap"
	"fmt"
	"sync"

	"github.com/orbitx-dev/orbitx/internal/orbiterr"
)

// Index is the vector-search surface spec.md §4.7 requires both the
// embedded and Qdrant backends to implement identically.
type Index interface {
	Upsert(vecs []CodeVector) error
	Delete(chunkID string) error
	DeleteFile(filePath string) error
	Search(query []float32, topK int, threshold float32) ([]SearchHit, error)
	Dims() int
}

// SearchHit is one ranked result from Index.Search.
type SearchHit struct {
	ChunkID  string
	FilePath string
	Score    float32 // cosine similarity (dot product of normalized vectors)
}

// MemoryIndex is the embedded backend: an in-memory {ChunkId → vector} map
// guarded by a single RWMutex protecting both the vector map and its
// per-file chunk-id index — spec.md §5's documented "single-lock design".
// Search is brute-force dot product with top-k kept via a min-heap
// (O(n log k) instead of sorting the whole result set).
type MemoryIndex struct {
	mu       sync.RWMutex
	dims     int
	vecs     map[string]CodeVector // chunk id -> vector
	byFile   map[string]map[string]bool
}

// NewMemoryIndex creates an empty embedded index fixed to dims dimensions.
func NewMemoryIndex(dims int) *MemoryIndex {
	return &MemoryIndex{
		dims:   dims,
		vecs:   make(map[string]CodeVector),
		byFile: make(map[string]map[string]bool),
	}
}

func (idx *MemoryIndex) Dims() int { return idx.dims }

// Upsert inserts or replaces vectors. Every vector must already be
// L2-normalized and match the index's fixed dimension (spec.md §3's
// invariant) — Upsert does not normalize on the caller's behalf.
func (idx *MemoryIndex) Upsert(vecs []CodeVector) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, v := range vecs {
		if len(v.Vec) != idx.dims {
			return orbiterr.New(orbiterr.KindVectorDimensionMismatch, "vectorindex.MemoryIndex.Upsert",
				fmt.Errorf("chunk %s: got %d dims, want %d", v.ChunkID, len(v.Vec), idx.dims))
		}
		idx.vecs[v.ChunkID] = v
		byFile, ok := idx.byFile[v.FilePath]
		if !ok {
			byFile = make(map[string]bool)
			idx.byFile[v.FilePath] = byFile
		}
		byFile[v.ChunkID] = true
	}
	return nil
}

// Delete removes a single chunk's vector.
func (idx *MemoryIndex) Delete(chunkID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	v, ok := idx.vecs[chunkID]
	if !ok {
		return nil
	}
	delete(idx.vecs, chunkID)
	if byFile, ok := idx.byFile[v.FilePath]; ok {
		delete(byFile, chunkID)
		if len(byFile) == 0 {
			delete(idx.byFile, v.FilePath)
		}
	}
	return nil
}

// DeleteFile removes every vector belonging to filePath — used when a
// tracked file is re-chunked from scratch after an edit.
func (idx *MemoryIndex) DeleteFile(filePath string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for chunkID := range idx.byFile[filePath] {
		delete(idx.vecs, chunkID)
	}
	delete(idx.byFile, filePath)
	return nil
}

// Search normalizes query if needed, computes a dot product against every
// stored vector, filters by threshold, and keeps the top-k via a min-heap.
func (idx *MemoryIndex) Search(query []float32, topK int, threshold float32) ([]SearchHit, error) {
	if len(query) != idx.dims {
		return nil, orbiterr.New(orbiterr.KindVectorDimensionMismatch, "vectorindex.MemoryIndex.Search",
			fmt.Errorf("query has %d dims, want %d", len(query), idx.dims))
	}
	q := make([]float32, len(query))
	copy(q, query)
	normalize(q)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	h := &hitHeap{}
	heap.Init(h)
	for _, v := range idx.vecs {
		score := dot(q, v.Vec)
		if score < threshold {
			continue
		}
		hit := SearchHit{ChunkID: v.ChunkID, FilePath: v.FilePath, Score: score}
		if h.Len() < topK {
			heap.Push(h, hit)
		} else if h.Len() > 0 && score > (*h)[0].Score {
			heap.Pop(h)
			heap.Push(h, hit)
		}
	}

	out := make([]SearchHit, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(SearchHit)
	}
	return out, nil
}

func dot(a, b []float32) float32 {
	var sum float32
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// hitHeap is a min-heap on Score, so the smallest current top-k member is
// always at the root and cheap to evict.
type hitHeap []SearchHit

func (h hitHeap) Len() int            { return len(h) }
func (h hitHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h hitHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x interface{}) { *h = append(*h, x.(SearchHit)) }
func (h *hitHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
