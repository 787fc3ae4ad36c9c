package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Checkpoint is spec.md §3/§4.6/§6.
type Checkpoint struct {
	ID            string
	WorkspacePath string
	SessionID     string
	ParentID      string // empty means no parent
	UserMessage   string
	CreatedAt     time.Time
}

func (Checkpoint) TableName() string { return "checkpoints" }

var checkpointColumns = []string{"id", "workspace_path", "session_id", "parent_id", "user_message", "created_at"}

func scanCheckpoint(row Scanner_Row) (Checkpoint, error) {
	var c Checkpoint
	var parentID, userMessage sql.NullString
	var createdAt string
	if err := row.Scan(&c.ID, &c.WorkspacePath, &c.SessionID, &parentID, &userMessage, &createdAt); err != nil {
		return c, err
	}
	c.ParentID = parentID.String
	c.UserMessage = userMessage.String
	c.CreatedAt = parseTime(createdAt)
	return c, nil
}

func bindCheckpoint(c Checkpoint) []any {
	var parentID any
	if c.ParentID != "" {
		parentID = c.ParentID
	}
	return []any{c.ID, c.WorkspacePath, c.SessionID, parentID, c.UserMessage, c.CreatedAt.UTC().Format(timeFmt)}
}

// CheckpointRepository is the Checkpoints specialization.
type CheckpointRepository struct {
	*Repository[Checkpoint]
	db *sql.DB
}

func (s *Store) Checkpoints() *CheckpointRepository {
	return &CheckpointRepository{
		Repository: NewRepository(s.db, "checkpoints", "id", checkpointColumns, scanCheckpoint, bindCheckpoint),
		db:         s.db,
	}
}

// LatestForWorkspace returns the most recently created checkpoint for
// workspacePath, used as the new checkpoint's parent (spec.md §4.6).
func (r *CheckpointRepository) LatestForWorkspace(workspacePath string) (Checkpoint, bool, error) {
	q := NewSafeQueryBuilder().Select(checkpointColumns...).From("checkpoints").
		Where("workspace_path = ?", workspacePath).OrderBy("created_at DESC").Limit(1)
	sqlStr, args := q.Build()
	c, err := scanCheckpoint(r.db.QueryRow(sqlStr, args...))
	if err == sql.ErrNoRows {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("checkpoints.LatestForWorkspace: %w", err)
	}
	return c, true, nil
}

// FileSnapshotChangeType is spec.md §3 FileSnapshot.change_type.
type FileSnapshotChangeType string

const (
	ChangeAdded    FileSnapshotChangeType = "Added"
	ChangeModified FileSnapshotChangeType = "Modified"
	ChangeDeleted  FileSnapshotChangeType = "Deleted"
)

// FileSnapshot is one file's recorded state within a Checkpoint.
type FileSnapshot struct {
	ID           string
	CheckpointID string
	FilePath     string
	BlobHash     string // empty for Deleted
	ChangeType   FileSnapshotChangeType
	FileSize     int64
	CreatedAt    time.Time
}

func (FileSnapshot) TableName() string { return "file_snapshots" }

var fileSnapshotColumns = []string{"id", "checkpoint_id", "file_path", "blob_hash", "change_type", "file_size", "created_at"}

func scanFileSnapshot(row Scanner_Row) (FileSnapshot, error) {
	var f FileSnapshot
	var blobHash sql.NullString
	var createdAt string
	if err := row.Scan(&f.ID, &f.CheckpointID, &f.FilePath, &blobHash, &f.ChangeType, &f.FileSize, &createdAt); err != nil {
		return f, err
	}
	f.BlobHash = blobHash.String
	f.CreatedAt = parseTime(createdAt)
	return f, nil
}

func bindFileSnapshot(f FileSnapshot) []any {
	var hash any
	if f.BlobHash != "" {
		hash = f.BlobHash
	}
	return []any{f.ID, f.CheckpointID, f.FilePath, hash, string(f.ChangeType), f.FileSize, f.CreatedAt.UTC().Format(timeFmt)}
}

// FileSnapshotRepository is the FileSnapshots specialization.
type FileSnapshotRepository struct {
	*Repository[FileSnapshot]
	db *sql.DB
}

func (s *Store) FileSnapshots() *FileSnapshotRepository {
	return &FileSnapshotRepository{
		Repository: NewRepository(s.db, "file_snapshots", "id", fileSnapshotColumns, scanFileSnapshot, bindFileSnapshot),
		db:         s.db,
	}
}

// FindByCheckpoint returns every snapshot row belonging to checkpointID.
func (r *FileSnapshotRepository) FindByCheckpoint(checkpointID string) ([]FileSnapshot, error) {
	q := NewSafeQueryBuilder().Select(fileSnapshotColumns...).From("file_snapshots").
		Where("checkpoint_id = ?", checkpointID)
	sqlStr, args := q.Build()
	rows, err := r.db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("file_snapshots.FindByCheckpoint: %w", err)
	}
	defer rows.Close()
	var out []FileSnapshot
	for rows.Next() {
		v, err := scanFileSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Blob is a content-addressed blob row (spec.md §3/§4.6: "blobs are
// content-addressed... and deduplicated across checkpoints").
type Blob struct {
	Hash      string
	Size      int64
	CreatedAt time.Time
}

func (Blob) TableName() string { return "blobs" }

// BlobRepository manages blob metadata rows; the bytes themselves live in
// the sharded on-disk blob store (internal/checkpoint), keyed by the same
// hash — this repository only tracks existence/size/gc eligibility.
type BlobRepository struct {
	db *sql.DB
}

func (s *Store) Blobs() *BlobRepository {
	return &BlobRepository{db: s.db}
}

// Ensure records hash/size if not already present. Idempotent by content
// hash (spec.md §5: "blob writes are idempotent by content hash, collisions
// are benign").
func (r *BlobRepository) Ensure(hash string, size int64) error {
	_, err := r.db.Exec(
		"INSERT INTO blobs (hash, size, created_at) VALUES (?, ?, ?) ON CONFLICT(hash) DO NOTHING",
		hash, size, time.Now().UTC().Format(timeFmt),
	)
	if err != nil {
		return fmt.Errorf("blobs.Ensure: %w", err)
	}
	return nil
}

// Exists reports whether hash has been recorded.
func (r *BlobRepository) Exists(hash string) (bool, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM blobs WHERE hash = ?", hash).Scan(&n); err != nil {
		return false, fmt.Errorf("blobs.Exists: %w", err)
	}
	return n > 0, nil
}

// Orphans returns blob hashes no longer referenced by any file_snapshots
// row, for the background GC sweep (spec.md §4.6).
func (r *BlobRepository) Orphans() ([]string, error) {
	rows, err := r.db.Query(`
		SELECT hash FROM blobs
		WHERE hash NOT IN (SELECT DISTINCT blob_hash FROM file_snapshots WHERE blob_hash IS NOT NULL)
	`)
	if err != nil {
		return nil, fmt.Errorf("blobs.Orphans: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Delete removes a blob's metadata row (the caller also removes the on-disk
// blob file).
func (r *BlobRepository) Delete(hash string) error {
	if _, err := r.db.Exec("DELETE FROM blobs WHERE hash = ?", hash); err != nil {
		return fmt.Errorf("blobs.Delete: %w", err)
	}
	return nil
}
