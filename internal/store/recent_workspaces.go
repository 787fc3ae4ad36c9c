package store

import (
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// RecentWorkspace is the supplemented-feature repository grounded on
// original_source's storage/repositories/recent_workspaces.rs: a
// frecency-ranked (GLOSSARY) list feeding a workspace picker.
type RecentWorkspace struct {
	Path         string
	OpenCount    int
	LastOpenedAt time.Time
	CreatedAt    time.Time
}

func (RecentWorkspace) TableName() string { return "recent_workspaces" }

var recentWorkspaceColumns = []string{"path", "open_count", "last_opened_at", "created_at"}

func scanRecentWorkspace(row Scanner_Row) (RecentWorkspace, error) {
	var w RecentWorkspace
	var lastOpened, createdAt string
	if err := row.Scan(&w.Path, &w.OpenCount, &lastOpened, &createdAt); err != nil {
		return w, err
	}
	w.LastOpenedAt = parseTime(lastOpened)
	w.CreatedAt = parseTime(createdAt)
	return w, nil
}

func bindRecentWorkspace(w RecentWorkspace) []any {
	return []any{w.Path, w.OpenCount, w.LastOpenedAt.UTC().Format(timeFmt), w.CreatedAt.UTC().Format(timeFmt)}
}

// RecentWorkspaceRepository is the RecentWorkspaces specialization.
type RecentWorkspaceRepository struct {
	*Repository[RecentWorkspace]
	db *sql.DB
}

func (s *Store) RecentWorkspaces() *RecentWorkspaceRepository {
	return &RecentWorkspaceRepository{
		Repository: NewRepository(s.db, "recent_workspaces", "path", recentWorkspaceColumns, scanRecentWorkspace, bindRecentWorkspace),
		db:         s.db,
	}
}

// RecordOpen upserts path, bumping open_count and last_opened_at.
func (r *RecentWorkspaceRepository) RecordOpen(path string) error {
	now := time.Now().UTC().Format(timeFmt)
	_, err := r.db.Exec(`
		INSERT INTO recent_workspaces (path, open_count, last_opened_at, created_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			open_count = open_count + 1,
			last_opened_at = excluded.last_opened_at
	`, path, now, now)
	if err != nil {
		return fmt.Errorf("recent_workspaces.RecordOpen: %w", err)
	}
	return nil
}

// TopByFrecency returns up to limit workspaces ranked by frecency score.
func (r *RecentWorkspaceRepository) TopByFrecency(limit int) ([]RecentWorkspace, error) {
	all, err := r.FindAll()
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool {
		return frecencyScore(all[i].OpenCount, all[i].LastOpenedAt, 14*24*time.Hour) >
			frecencyScore(all[j].OpenCount, all[j].LastOpenedAt, 14*24*time.Hour)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
