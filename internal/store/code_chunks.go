package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CodeChunkRecord is the metadata row persisted for one internal/vectorindex
// CodeChunk — byte/line spans and stride info, so a search hit's vector id
// can be resolved back to a file span without re-reading source. The
// embedding vector itself is not stored here: spec.md §4.7 calls for
// vectors to "persist per file on disk", separately from this table.
type CodeChunkRecord struct {
	ID                string
	WorkspacePath     string
	FilePath          string
	ByteStart         int
	ByteEnd           int
	LineStart         int
	LineEnd           int
	ChunkType         string
	StrideOriginalID  string // empty if this chunk isn't a stride
	StrideIndex       int
	StrideTotal       int
	ContentHash       string
	IndexedAt         time.Time
}

func (CodeChunkRecord) TableName() string { return "code_chunks" }

var codeChunkColumns = []string{
	"id", "workspace_path", "file_path", "byte_start", "byte_end",
	"line_start", "line_end", "chunk_type", "stride_original_id",
	"stride_index", "stride_total", "content_hash", "indexed_at",
}

func scanCodeChunk(row Scanner_Row) (CodeChunkRecord, error) {
	var c CodeChunkRecord
	var strideOriginalID sql.NullString
	var strideIndex, strideTotal sql.NullInt64
	var indexedAt string
	if err := row.Scan(
		&c.ID, &c.WorkspacePath, &c.FilePath, &c.ByteStart, &c.ByteEnd,
		&c.LineStart, &c.LineEnd, &c.ChunkType, &strideOriginalID,
		&strideIndex, &strideTotal, &c.ContentHash, &indexedAt,
	); err != nil {
		return c, err
	}
	c.StrideOriginalID = strideOriginalID.String
	c.StrideIndex = int(strideIndex.Int64)
	c.StrideTotal = int(strideTotal.Int64)
	c.IndexedAt = parseTime(indexedAt)
	return c, nil
}

func bindCodeChunk(c CodeChunkRecord) []any {
	var strideOriginalID any
	var strideIndex, strideTotal any
	if c.StrideOriginalID != "" {
		strideOriginalID = c.StrideOriginalID
		strideIndex = c.StrideIndex
		strideTotal = c.StrideTotal
	}
	return []any{
		c.ID, c.WorkspacePath, c.FilePath, c.ByteStart, c.ByteEnd,
		c.LineStart, c.LineEnd, c.ChunkType, strideOriginalID,
		strideIndex, strideTotal, c.ContentHash, c.IndexedAt.UTC().Format(timeFmt),
	}
}

// CodeChunkRepository is the CodeChunkRecord specialization.
type CodeChunkRepository struct {
	*Repository[CodeChunkRecord]
	db *sql.DB
}

func (s *Store) CodeChunks() *CodeChunkRepository {
	return &CodeChunkRepository{
		Repository: NewRepository(s.db, "code_chunks", "id", codeChunkColumns, scanCodeChunk, bindCodeChunk),
		db:         s.db,
	}
}

// FindByFile returns every chunk recorded for one file, ordered by byte
// offset, so a re-index pass can diff old vs. new chunk boundaries.
func (r *CodeChunkRepository) FindByFile(workspacePath, filePath string) ([]CodeChunkRecord, error) {
	q := NewSafeQueryBuilder().Select(codeChunkColumns...).From("code_chunks").
		Where("workspace_path = ? AND file_path = ?", workspacePath, filePath).OrderBy("byte_start ASC")
	sqlStr, args := q.Build()
	rows, err := r.db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("code_chunks.FindByFile: %w", err)
	}
	defer rows.Close()
	var out []CodeChunkRecord
	for rows.Next() {
		v, err := scanCodeChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// DeleteByFile removes every chunk row for one file — used before
// re-indexing it from scratch.
func (r *CodeChunkRepository) DeleteByFile(workspacePath, filePath string) error {
	q := NewSafeQueryBuilder().DeleteFrom("code_chunks").
		Where("workspace_path = ? AND file_path = ?", workspacePath, filePath)
	sqlStr, args := q.Build()
	if _, err := r.db.Exec(sqlStr, args...); err != nil {
		return fmt.Errorf("code_chunks.DeleteByFile: %w", err)
	}
	return nil
}
