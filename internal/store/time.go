package store

import (
	"database/sql"
	"errors"
	"time"
)

// nowFmt formats the current UTC time in the on-disk timestamp format.
func nowFmt() string { return time.Now().UTC().Format(timeFmt) }

// isNoRows reports whether err is database/sql's no-rows sentinel.
func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }

// timeFmt is the on-disk text timestamp format, matching the teacher's
// convention in internal/store/tasks.go of storing UTC timestamps as
// sortable text rather than relying on the driver's time.Time binding.
const timeFmt = "2006-01-02T15:04:05Z"

func parseTime(s string) time.Time {
	for _, layout := range []string{timeFmt, "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parseTimePtr(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t := parseTime(*s)
	if t.IsZero() {
		return nil
	}
	return &t
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(timeFmt)
	return &s
}
