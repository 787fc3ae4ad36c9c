package store

import (
	"database/sql"
	"fmt"
)

// Entity is implemented by every row type a Repository[T] manages: it
// knows its own table name and primary-key column so the generic CRUD
// helpers never need a type switch.
type Entity interface {
	TableName() string
}

// Scanner builds one T from a *sql.Rows cursor positioned at a valid row.
// Each specialization supplies its own Scanner (column order is fixed per
// entity, not discovered reflectively — spec.md's SafeQueryBuilder
// generates placeholders, not column introspection).
type Scanner[T Entity] func(row Scanner_Row) (T, error)

// Scanner_Row is satisfied by both *sql.Row and *sql.Rows.
type Scanner_Row interface {
	Scan(dest ...any) error
}

// Repository is the typed CRUD surface from spec.md §4.5: FindByID,
// FindAll, Save, Update, Delete, generalized over any Entity. Column-level
// SQL still lives in each specialization (e.g. executions.go) because the
// exact column list and positional order must be explicit for
// SafeQueryBuilder to parameterize correctly; Repository[T] supplies the
// shared FindByID/Delete-by-id skeleton every specialization reuses.
type Repository[T Entity] struct {
	db        *sql.DB
	table     string
	idColumn  string
	columns   []string
	scan      Scanner[T]
	bind      func(T) []any
}

// NewRepository constructs a Repository[T] for one table. bind converts a T
// into positional arguments matching columns, in order; scan does the
// reverse.
func NewRepository[T Entity](db *sql.DB, table, idColumn string, columns []string, scan Scanner[T], bind func(T) []any) *Repository[T] {
	return &Repository[T]{db: db, table: table, idColumn: idColumn, columns: columns, scan: scan, bind: bind}
}

// FindByID fetches one row by primary key. Returns (zero, nil, nil) — i.e.
// ok=false — if no row matches.
func (r *Repository[T]) FindByID(id string) (row T, ok bool, err error) {
	q := NewSafeQueryBuilder().Select(r.columns...).From(r.table).Where(r.idColumn+" = ?", id)
	sqlStr, args := q.Build()
	scanned, scanErr := r.scan(r.db.QueryRow(sqlStr, args...))
	if scanErr == sql.ErrNoRows {
		return row, false, nil
	}
	if scanErr != nil {
		return row, false, fmt.Errorf("%s.FindByID: %w", r.table, scanErr)
	}
	return scanned, true, nil
}

// FindAll returns every row in the table in insertion order (by rowid).
func (r *Repository[T]) FindAll() ([]T, error) {
	q := NewSafeQueryBuilder().Select(r.columns...).From(r.table)
	sqlStr, args := q.Build()
	rows, err := r.db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("%s.FindAll: %w", r.table, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("%s.FindAll scan: %w", r.table, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Save inserts a new row, using r.bind(entity) for the column values in the
// same order as r.columns.
func (r *Repository[T]) Save(entity T) error {
	q := NewSafeQueryBuilder().InsertInto(r.table, r.columns...)
	sqlStr, _ := q.Build()
	if _, err := r.db.Exec(sqlStr, r.bind(entity)...); err != nil {
		return fmt.Errorf("%s.Save: %w", r.table, err)
	}
	return nil
}

// Update replaces every non-id column of the row identified by id with
// entity's current values.
func (r *Repository[T]) Update(id string, entity T) error {
	setColumns := make([]string, 0, len(r.columns))
	for _, c := range r.columns {
		if c != r.idColumn {
			setColumns = append(setColumns, c)
		}
	}
	q := NewSafeQueryBuilder().Update(r.table, setColumns...).Where(r.idColumn+" = ?", id)
	sqlStr, whereArgs := q.Build()

	args := r.bind(entity)
	// r.bind returns values ordered like r.columns (id included); drop the
	// id's value from the SET list and append the WHERE id at the end.
	setArgs := make([]any, 0, len(setColumns))
	for i, c := range r.columns {
		if c != r.idColumn {
			setArgs = append(setArgs, args[i])
		}
	}
	setArgs = append(setArgs, whereArgs...)

	if _, err := r.db.Exec(sqlStr, setArgs...); err != nil {
		return fmt.Errorf("%s.Update: %w", r.table, err)
	}
	return nil
}

// Delete removes the row identified by id. Idempotent.
func (r *Repository[T]) Delete(id string) error {
	q := NewSafeQueryBuilder().DeleteFrom(r.table).Where(r.idColumn+" = ?", id)
	sqlStr, args := q.Build()
	if _, err := r.db.Exec(sqlStr, args...); err != nil {
		return fmt.Errorf("%s.Delete: %w", r.table, err)
	}
	return nil
}
