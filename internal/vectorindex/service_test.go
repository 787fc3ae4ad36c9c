package vectorindex

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/orbitx-dev/orbitx/internal/store"
)

// concurrentStubEmbedder is stubEmbedder plus a mutex, since
// ReindexWorkspace drives EmbedBatch from multiple goroutines at once.
type concurrentStubEmbedder struct {
	mu    sync.Mutex
	dims  int
	calls int
}

func (s *concurrentStubEmbedder) Dims() int    { return s.dims }
func (s *concurrentStubEmbedder) Name() string { return "concurrent-stub" }
func (s *concurrentStubEmbedder) Embed(texts []string) ([][]float32, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	time.Sleep(time.Millisecond) // give overlapping goroutines a chance to race
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func newTestService(t *testing.T) (*Service, *concurrentStubEmbedder) {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	stub := &concurrentStubEmbedder{dims: 2}
	embed := NewEmbedClient(stub)
	embed.sleep = func(time.Duration) {}

	files, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	chunker := NewChunker(NewExtractor(".go"), 4)
	index := NewMemoryIndex(2)
	return NewService(db, chunker, embed, index, files), stub
}

func TestReindexWorkspaceIndexesEveryFile(t *testing.T) {
	svc, stub := newTestService(t)
	workspace := t.TempDir()

	rels := []string{"a.go", "b.go", "c.go", "d.go", "e.go"}
	for _, rel := range rels {
		if err := os.WriteFile(filepath.Join(workspace, rel), []byte("package main\n\nfunc F() {}\n"), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}

	n, err := svc.ReindexWorkspace(context.Background(), workspace, rels)
	if err != nil {
		t.Fatalf("ReindexWorkspace: %v", err)
	}
	if n != len(rels) {
		t.Fatalf("indexed = %d, want %d", n, len(rels))
	}
	if stub.calls == 0 {
		t.Fatal("expected at least one Embed call")
	}

	hits, err := svc.Search("func F", 10, -1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected search hits after reindexing")
	}
}

func TestReindexWorkspaceStopsOnMissingFile(t *testing.T) {
	svc, _ := newTestService(t)
	workspace := t.TempDir()
	if err := os.WriteFile(filepath.Join(workspace, "a.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := svc.ReindexWorkspace(context.Background(), workspace, []string{"a.go", "missing.go"})
	if err == nil {
		t.Fatal("expected an error for a file that doesn't exist")
	}
}
