package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/orbitx-dev/orbitx/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store, string) {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	workspace := t.TempDir()
	blobDir := t.TempDir()
	eng, err := NewEngine(db, blobDir)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return eng, db, workspace
}

func writeFile(t *testing.T, workspace, rel, content string) {
	t.Helper()
	full := filepath.Join(workspace, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCreateCheckpointRecordsAddedFiles(t *testing.T) {
	eng, _, workspace := newTestEngine(t)
	writeFile(t, workspace, "main.go", "package main\n")

	cp, err := eng.CreateCheckpoint("sess-1", "initial", workspace, []string{"main.go"})
	if err != nil {
		t.Fatalf("create checkpoint: %v", err)
	}
	if cp.ParentID != "" {
		t.Errorf("parent id = %q, want empty for the first checkpoint", cp.ParentID)
	}

	snaps, err := eng.db.FileSnapshots().FindByCheckpoint(cp.ID)
	if err != nil {
		t.Fatalf("find snapshots: %v", err)
	}
	if len(snaps) != 1 || snaps[0].ChangeType != store.ChangeAdded {
		t.Fatalf("snapshots = %+v, want one Added entry", snaps)
	}
}

func TestCreateCheckpointChainsParentAndDetectsModified(t *testing.T) {
	eng, _, workspace := newTestEngine(t)
	writeFile(t, workspace, "main.go", "v1\n")

	first, err := eng.CreateCheckpoint("sess-1", "v1", workspace, []string{"main.go"})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}

	writeFile(t, workspace, "main.go", "v2\n")
	second, err := eng.CreateCheckpoint("sess-1", "v2", workspace, []string{"main.go"})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if second.ParentID != first.ID {
		t.Errorf("parent id = %q, want %q", second.ParentID, first.ID)
	}

	snaps, err := eng.db.FileSnapshots().FindByCheckpoint(second.ID)
	if err != nil {
		t.Fatalf("find snapshots: %v", err)
	}
	if len(snaps) != 1 || snaps[0].ChangeType != store.ChangeModified {
		t.Fatalf("snapshots = %+v, want one Modified entry", snaps)
	}
}

func TestRollbackToRestoresContentAndRemovesDeletedFiles(t *testing.T) {
	eng, _, workspace := newTestEngine(t)
	writeFile(t, workspace, "keep.go", "original\n")

	// gone.go does not exist yet, so the target records it as Deleted.
	target, err := eng.CreateCheckpoint("sess-1", "snapshot", workspace, []string{"keep.go", "gone.go"})
	if err != nil {
		t.Fatalf("create checkpoint: %v", err)
	}

	writeFile(t, workspace, "keep.go", "modified after checkpoint\n")
	writeFile(t, workspace, "gone.go", "created after checkpoint\n")
	if _, err := os.Stat(filepath.Join(workspace, "gone.go")); err != nil {
		t.Fatal(err)
	}

	if _, err := eng.RollbackTo(target.ID); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(workspace, "keep.go"))
	if err != nil {
		t.Fatalf("read keep.go: %v", err)
	}
	if string(got) != "original\n" {
		t.Errorf("keep.go = %q, want restored content", got)
	}
	if _, err := os.Stat(filepath.Join(workspace, "gone.go")); !os.IsNotExist(err) {
		t.Errorf("gone.go should not exist after rollback, stat err = %v", err)
	}
}

func TestRollbackToUnknownCheckpoint(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	if _, err := eng.RollbackTo("nonexistent"); err == nil {
		t.Fatal("expected an error rolling back to a missing checkpoint")
	}
}

func TestDiffCheckpointsReportsChangedPathsOnly(t *testing.T) {
	eng, _, workspace := newTestEngine(t)
	writeFile(t, workspace, "a.go", "a-v1\n")
	writeFile(t, workspace, "b.go", "unchanged\n")

	from, err := eng.CreateCheckpoint("sess-1", "v1", workspace, []string{"a.go", "b.go"})
	if err != nil {
		t.Fatalf("create from: %v", err)
	}

	writeFile(t, workspace, "a.go", "a-v2\n")
	to, err := eng.CreateCheckpoint("sess-1", "v2", workspace, []string{"a.go", "b.go"})
	if err != nil {
		t.Fatalf("create to: %v", err)
	}

	diffs, err := eng.DiffCheckpoints(from.ID, to.ID)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if len(diffs) != 1 || diffs[0].Path != "a.go" {
		t.Fatalf("diffs = %+v, want exactly one entry for a.go", diffs)
	}
}

func TestSweepOrphanBlobsRemovesUnreferencedOnly(t *testing.T) {
	eng, db, workspace := newTestEngine(t)
	writeFile(t, workspace, "a.go", "referenced\n")

	if _, err := eng.CreateCheckpoint("sess-1", "v1", workspace, []string{"a.go"}); err != nil {
		t.Fatalf("create checkpoint: %v", err)
	}
	if err := db.Blobs().Ensure("orphan-hash", 5); err != nil {
		t.Fatalf("ensure orphan blob: %v", err)
	}

	n, err := eng.SweepOrphanBlobs()
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept = %d, want 1", n)
	}
	exists, err := db.Blobs().Exists("orphan-hash")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Error("orphan-hash should have been deleted")
	}
}
