package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/orbitx-dev/orbitx/internal/orbiterr"
	"github.com/orbitx-dev/orbitx/internal/store"
)

// Engine implements spec.md §4.6: create_checkpoint, rollback_to,
// diff_checkpoints, diff_with_workspace, delete_checkpoint. Metadata rows
// go through the Repository layer; blob bytes through BlobStore.
type Engine struct {
	db    *store.Store
	blobs *BlobStore
}

// NewEngine wires a checkpoint Engine to its store and blob directory.
func NewEngine(db *store.Store, blobDir string) (*Engine, error) {
	bs, err := NewBlobStore(blobDir)
	if err != nil {
		return nil, err
	}
	return &Engine{db: db, blobs: bs}, nil
}

// CreateCheckpoint scans files (relative to workspace) and records their
// current content as a new checkpoint linked to the workspace's most recent
// checkpoint as parent.
func (e *Engine) CreateCheckpoint(sessionID, userMessage, workspace string, files []string) (store.Checkpoint, error) {
	parentID := ""
	if parent, ok, err := e.db.Checkpoints().LatestForWorkspace(workspace); err != nil {
		return store.Checkpoint{}, fmt.Errorf("checkpoint.CreateCheckpoint: %w", err)
	} else if ok {
		parentID = parent.ID
	}

	var parentSnaps map[string]store.FileSnapshot
	if parentID != "" {
		rows, err := e.db.FileSnapshots().FindByCheckpoint(parentID)
		if err != nil {
			return store.Checkpoint{}, fmt.Errorf("checkpoint.CreateCheckpoint: %w", err)
		}
		parentSnaps = make(map[string]store.FileSnapshot, len(rows))
		for _, r := range rows {
			parentSnaps[r.FilePath] = r
		}
	}

	cp := store.Checkpoint{
		ID:            uuid.NewString(),
		WorkspacePath: workspace,
		SessionID:     sessionID,
		ParentID:      parentID,
		UserMessage:   userMessage,
		CreatedAt:     nowUTC(),
	}
	if err := e.db.Checkpoints().Save(cp); err != nil {
		return store.Checkpoint{}, fmt.Errorf("checkpoint.CreateCheckpoint: %w", err)
	}

	for _, rel := range files {
		full := filepath.Join(workspace, rel)
		snap := store.FileSnapshot{
			ID:           uuid.NewString(),
			CheckpointID: cp.ID,
			FilePath:     rel,
			CreatedAt:    nowUTC(),
		}
		data, err := os.ReadFile(full)
		if os.IsNotExist(err) {
			snap.ChangeType = store.ChangeDeleted
		} else if err != nil {
			return store.Checkpoint{}, fmt.Errorf("checkpoint.CreateCheckpoint: read %s: %w", rel, err)
		} else {
			hash, err := e.blobs.Write(data)
			if err != nil {
				return store.Checkpoint{}, fmt.Errorf("checkpoint.CreateCheckpoint: write blob %s: %w", rel, err)
			}
			if err := e.db.Blobs().Ensure(hash, int64(len(data))); err != nil {
				return store.Checkpoint{}, fmt.Errorf("checkpoint.CreateCheckpoint: %w", err)
			}
			snap.BlobHash = hash
			snap.FileSize = int64(len(data))
			if prev, ok := parentSnaps[rel]; !ok || prev.ChangeType == store.ChangeDeleted {
				snap.ChangeType = store.ChangeAdded
			} else {
				snap.ChangeType = store.ChangeModified
			}
		}
		if err := e.db.FileSnapshots().Save(snap); err != nil {
			return store.Checkpoint{}, fmt.Errorf("checkpoint.CreateCheckpoint: %w", err)
		}
	}

	return cp, nil
}

// RollbackTo snapshots the current workspace as a new checkpoint (so the
// rollback itself is undoable), then writes every blob recorded by
// targetID's checkpoint to its path, removing files the target recorded as
// Deleted. Returns the pre-rollback snapshot checkpoint.
func (e *Engine) RollbackTo(targetID string) (store.Checkpoint, error) {
	target, ok, err := e.db.Checkpoints().FindByID(targetID)
	if err != nil {
		return store.Checkpoint{}, fmt.Errorf("checkpoint.RollbackTo: %w", err)
	}
	if !ok {
		return store.Checkpoint{}, orbiterr.New(orbiterr.KindCheckpointNotFound, "checkpoint.RollbackTo", nil)
	}
	targetSnaps, err := e.db.FileSnapshots().FindByCheckpoint(targetID)
	if err != nil {
		return store.Checkpoint{}, fmt.Errorf("checkpoint.RollbackTo: %w", err)
	}

	trackedPaths := make([]string, 0, len(targetSnaps))
	for _, s := range targetSnaps {
		trackedPaths = append(trackedPaths, s.FilePath)
	}
	preRollback, err := e.CreateCheckpoint(target.SessionID, "pre-rollback snapshot", target.WorkspacePath, trackedPaths)
	if err != nil {
		return store.Checkpoint{}, fmt.Errorf("checkpoint.RollbackTo: %w", err)
	}

	for _, snap := range targetSnaps {
		full := filepath.Join(target.WorkspacePath, snap.FilePath)
		if snap.ChangeType == store.ChangeDeleted {
			if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
				return store.Checkpoint{}, fmt.Errorf("checkpoint.RollbackTo: remove %s: %w", snap.FilePath, err)
			}
			continue
		}
		data, err := e.blobs.Read(snap.BlobHash)
		if err != nil {
			return store.Checkpoint{}, fmt.Errorf("checkpoint.RollbackTo: read blob %s: %w", snap.FilePath, err)
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return store.Checkpoint{}, fmt.Errorf("checkpoint.RollbackTo: mkdir %s: %w", snap.FilePath, err)
		}
		if err := os.WriteFile(full, data, 0o644); err != nil {
			return store.Checkpoint{}, fmt.Errorf("checkpoint.RollbackTo: write %s: %w", snap.FilePath, err)
		}
	}

	return preRollback, nil
}

// DiffCheckpoints returns one FileDiff per path that differs between from
// and to (by blob hash); unchanged paths are omitted.
func (e *Engine) DiffCheckpoints(fromID, toID string) ([]FileDiff, error) {
	fromSnaps, err := e.snapshotMap(fromID)
	if err != nil {
		return nil, err
	}
	toSnaps, err := e.snapshotMap(toID)
	if err != nil {
		return nil, err
	}

	paths := unionPaths(fromSnaps, toSnaps)
	var diffs []FileDiff
	for _, p := range paths {
		fromSnap, inFrom := fromSnaps[p]
		toSnap, inTo := toSnaps[p]
		if inFrom && inTo && fromSnap.BlobHash == toSnap.BlobHash {
			continue
		}
		oldContent, err := e.readSnapContent(fromSnap, inFrom)
		if err != nil {
			return nil, err
		}
		newContent, err := e.readSnapContent(toSnap, inTo)
		if err != nil {
			return nil, err
		}
		unified, err := unifiedDiff(p, oldContent, newContent)
		if err != nil {
			return nil, err
		}
		diffs = append(diffs, FileDiff{Path: p, Unified: unified})
	}
	return diffs, nil
}

// DiffWithWorkspace diffs checkpoint id's recorded state against the live
// files currently on disk under its workspace.
func (e *Engine) DiffWithWorkspace(id string) ([]FileDiff, error) {
	cp, ok, err := e.db.Checkpoints().FindByID(id)
	if err != nil {
		return nil, fmt.Errorf("checkpoint.DiffWithWorkspace: %w", err)
	}
	if !ok {
		return nil, orbiterr.New(orbiterr.KindCheckpointNotFound, "checkpoint.DiffWithWorkspace", nil)
	}
	snaps, err := e.snapshotMap(id)
	if err != nil {
		return nil, err
	}
	var diffs []FileDiff
	for p, snap := range snaps {
		oldContent, err := e.readSnapContent(snap, true)
		if err != nil {
			return nil, err
		}
		full := filepath.Join(cp.WorkspacePath, p)
		liveBytes, err := os.ReadFile(full)
		var newContent string
		if err == nil {
			newContent = string(liveBytes)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("checkpoint.DiffWithWorkspace: read %s: %w", p, err)
		}
		unified, err := unifiedDiff(p, oldContent, newContent)
		if err != nil {
			return nil, err
		}
		if unified != "" {
			diffs = append(diffs, FileDiff{Path: p, Unified: unified})
		}
	}
	return diffs, nil
}

// DeleteCheckpoint removes the checkpoint row (cascading its file_snapshots
// via the schema's ON DELETE CASCADE). Orphan blobs are not swept here —
// see SweepOrphanBlobs.
func (e *Engine) DeleteCheckpoint(id string) error {
	if err := e.db.Checkpoints().Delete(id); err != nil {
		return fmt.Errorf("checkpoint.DeleteCheckpoint: %w", err)
	}
	return nil
}

// SweepOrphanBlobs is the background maintenance pass from spec.md §4.6:
// it deletes every blob no longer referenced by any file_snapshots row,
// both the metadata row and the on-disk bytes.
func (e *Engine) SweepOrphanBlobs() (int, error) {
	orphans, err := e.db.Blobs().Orphans()
	if err != nil {
		return 0, fmt.Errorf("checkpoint.SweepOrphanBlobs: %w", err)
	}
	for _, hash := range orphans {
		if err := e.blobs.Delete(hash); err != nil {
			return 0, fmt.Errorf("checkpoint.SweepOrphanBlobs: %w", err)
		}
		if err := e.db.Blobs().Delete(hash); err != nil {
			return 0, fmt.Errorf("checkpoint.SweepOrphanBlobs: %w", err)
		}
	}
	return len(orphans), nil
}

func (e *Engine) snapshotMap(checkpointID string) (map[string]store.FileSnapshot, error) {
	rows, err := e.db.FileSnapshots().FindByCheckpoint(checkpointID)
	if err != nil {
		return nil, fmt.Errorf("checkpoint.snapshotMap: %w", err)
	}
	out := make(map[string]store.FileSnapshot, len(rows))
	for _, r := range rows {
		out[r.FilePath] = r
	}
	return out, nil
}

func (e *Engine) readSnapContent(snap store.FileSnapshot, present bool) (string, error) {
	if !present || snap.ChangeType == store.ChangeDeleted {
		return "", nil
	}
	data, err := e.blobs.Read(snap.BlobHash)
	if err != nil {
		return "", fmt.Errorf("checkpoint.readSnapContent: %w", err)
	}
	return string(data), nil
}

func unionPaths(a, b map[string]store.FileSnapshot) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for p := range a {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for p := range b {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
