package vectorindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/orbitx-dev/orbitx/internal/checkpoint"
	"github.com/orbitx-dev/orbitx/internal/store"
)

// reindexConcurrency bounds how many files ReindexWorkspace embeds at once,
// mirroring internal/tools.MaxConcurrency's fixed-chunk fan-out rather than
// an unbounded errgroup.Go per file, since each goroutine drives its own
// EmbedBatch network call against the configured embedding provider.
const reindexConcurrency = 4

// Service is the component spec.md §4.7 describes end-to-end: chunk a file,
// embed its chunks, upsert into an Index, and persist both the chunk
// metadata (SQLite, via store.CodeChunkRepository) and the vectors
// themselves (on disk, via FileStore).
type Service struct {
	db       *store.Store
	chunker  *Chunker
	embed    *EmbedClient
	index    Index
	files    *FileStore
}

// NewService wires a Service from its already-constructed parts.
func NewService(db *store.Store, chunker *Chunker, embed *EmbedClient, index Index, files *FileStore) *Service {
	return &Service{db: db, chunker: chunker, embed: embed, index: index, files: files}
}

// IndexFile re-chunks, re-embeds, and re-upserts one file's vectors,
// replacing whatever chunks/vectors were previously recorded for it. This
// is the operation the FileContextTracker (internal/agentctx, component K)
// calls when a tracked file changes.
func (s *Service) IndexFile(workspacePath, filePath string, content []byte) error {
	chunks, err := s.chunker.Chunk(filePath, content)
	if err != nil {
		return fmt.Errorf("vectorindex.Service.IndexFile: chunk: %w", err)
	}

	if err := s.db.CodeChunks().DeleteByFile(workspacePath, filePath); err != nil {
		return fmt.Errorf("vectorindex.Service.IndexFile: %w", err)
	}
	if err := s.index.DeleteFile(filePath); err != nil {
		return fmt.Errorf("vectorindex.Service.IndexFile: %w", err)
	}
	if err := s.files.Delete(workspacePath, filePath); err != nil {
		return fmt.Errorf("vectorindex.Service.IndexFile: %w", err)
	}

	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vecs, err := s.embed.EmbedBatch(texts)
	if err != nil {
		return fmt.Errorf("vectorindex.Service.IndexFile: embed: %w", err)
	}

	codeVecs := make([]CodeVector, len(chunks))
	for i, c := range chunks {
		codeVecs[i] = CodeVector{ChunkID: c.ID, FilePath: filePath, Vec: vecs[i]}

		strideOriginalID, strideIndex, strideTotal := "", 0, 0
		if c.Stride != nil {
			strideOriginalID, strideIndex, strideTotal = c.Stride.OriginalID, c.Stride.StrideIndex, c.Stride.Total
		}
		rec := store.CodeChunkRecord{
			ID:               c.ID,
			WorkspacePath:    workspacePath,
			FilePath:         filePath,
			ByteStart:        c.ByteStart,
			ByteEnd:          c.ByteEnd,
			LineStart:        c.LineStart,
			LineEnd:          c.LineEnd,
			ChunkType:        string(c.Type),
			StrideOriginalID: strideOriginalID,
			StrideIndex:      strideIndex,
			StrideTotal:      strideTotal,
			ContentHash:      checkpoint.Hash([]byte(c.Content)),
			IndexedAt:        nowUTC(),
		}
		if err := s.db.CodeChunks().Save(rec); err != nil {
			return fmt.Errorf("vectorindex.Service.IndexFile: %w", err)
		}
	}

	if err := s.index.Upsert(codeVecs); err != nil {
		return fmt.Errorf("vectorindex.Service.IndexFile: %w", err)
	}
	if err := s.files.Save(workspacePath, filePath, codeVecs); err != nil {
		return fmt.Errorf("vectorindex.Service.IndexFile: %w", err)
	}
	return nil
}

// ReindexWorkspace re-embeds every file in relPaths, fanning the work out
// across reindexConcurrency goroutines with errgroup.WithContext the way
// internal/tools.Dispatcher fans out a parallel tool group: one IndexFile
// call per file is independent of every other (distinct chunk rows, distinct
// index keys), so unlike EmbedBatch's single provider call per file there's
// real concurrent work here to join. A file that no longer exists or fails
// to chunk/embed aborts its own goroutine; egCtx cancellation stops the
// remaining files in its chunk early, and the first such error is returned
// once every chunk has finished. Returns the count of files indexed before
// any error.
func (s *Service) ReindexWorkspace(ctx context.Context, workspacePath string, relPaths []string) (int, error) {
	indexed := 0
	for start := 0; start < len(relPaths); start += reindexConcurrency {
		end := start + reindexConcurrency
		if end > len(relPaths) {
			end = len(relPaths)
		}
		chunk := relPaths[start:end]

		eg, egCtx := errgroup.WithContext(ctx)
		for _, rel := range chunk {
			rel := rel
			eg.Go(func() error {
				select {
				case <-egCtx.Done():
					return egCtx.Err()
				default:
				}
				content, err := os.ReadFile(filepath.Join(workspacePath, rel))
				if err != nil {
					return fmt.Errorf("vectorindex.Service.ReindexWorkspace: read %s: %w", rel, err)
				}
				return s.IndexFile(workspacePath, rel, content)
			})
		}
		if err := eg.Wait(); err != nil {
			return indexed, fmt.Errorf("vectorindex.Service.ReindexWorkspace: %w", err)
		}
		indexed += len(chunk)
	}
	return indexed, nil
}

// Search embeds query with the same embedder IndexFile used and returns the
// top-k matches from the embedded Index.
func (s *Service) Search(query string, topK int, threshold float32) ([]SearchHit, error) {
	vecs, err := s.embed.EmbedBatch([]string{query})
	if err != nil {
		return nil, fmt.Errorf("vectorindex.Service.Search: embed: %w", err)
	}
	hits, err := s.index.Search(vecs[0], topK, threshold)
	if err != nil {
		return nil, fmt.Errorf("vectorindex.Service.Search: %w", err)
	}
	return hits, nil
}
