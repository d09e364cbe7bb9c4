// Package load implements the LOAD stage: flattening a canonical record
// into one row of the tracks table.
//
// The loader is schema-agnostic: it introspects the table's column set at
// runtime and resolves a value for every column it recognizes through the
// field-mapping table in mapping.go. Columns with no resolvable evidence
// stay unset; loading the same record twice is a data-level no-op apart
// from the refreshed update timestamp.
package load

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/franz/music-importer/internal/sidecar"
	"github.com/franz/music-importer/internal/store"
	"github.com/franz/music-importer/internal/util"
)

// Status reports whether a load inserted a new row or updated an existing
// one.
type Status string

const (
	StatusInserted Status = "inserted"
	StatusUpdated  Status = "updated"
)

// Loader upserts canonical records into the tracks table.
type Loader struct {
	store *store.Store
	now   func() time.Time

	// columns caches the introspected column set for the run; the schema
	// cannot change under a held pass lock.
	columns []string
}

// New creates a Loader and verifies the tracks table exists. A missing
// table is fatal for the whole run, so it is surfaced here rather than per
// track.
func New(st *store.Store) (*Loader, error) {
	cols, err := st.TableColumns("tracks")
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: tracks table not found", util.ErrSchemaMissing)
	}

	return &Loader{store: st, now: time.Now, columns: cols}, nil
}

// Load flattens doc into the tracks table. finalPath is recorded in the
// final_json_path column when present in the schema.
func (l *Loader) Load(doc *sidecar.FinalDoc, finalPath string) (Status, error) {
	colset := make(map[string]bool, len(l.columns))
	for _, c := range l.columns {
		colset[c] = true
	}

	row := map[string]any{}
	for _, col := range l.columns {
		if v, ok := resolve(col, doc); ok {
			row[col] = v
		}
	}
	if colset["final_json_path"] && finalPath != "" {
		row["final_json_path"] = finalPath
	}

	keyCol, keyVal, err := upsertKey(colset, doc)
	if err != nil {
		return "", err
	}

	var status Status
	err = l.store.Transaction(func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRow(
			fmt.Sprintf("SELECT id FROM tracks WHERE %s = ?", keyCol), keyVal,
		).Scan(&id)

		now := l.now().UTC().Format(time.RFC3339)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			row["added_at"] = now
			row["updated_at"] = now
			if colset["is_missing"] {
				row["is_missing"] = 0
			}
			if colset["is_duplicate"] {
				row["is_duplicate"] = 0
			}
			if insErr := insertRow(tx, row); insErr != nil {
				return insErr
			}
			status = StatusInserted
			return nil

		case err != nil:
			return fmt.Errorf("failed to look up existing row: %w", err)

		default:
			// Update in place: refresh updated_at only, never touch
			// added_at or the key column.
			row["updated_at"] = now
			delete(row, "added_at")
			delete(row, keyCol)
			if updErr := updateRow(tx, row, id); updErr != nil {
				return updErr
			}
			status = StatusUpdated
			return nil
		}
	})
	if err != nil {
		return "", err
	}

	return status, nil
}

// Exists reports whether a row for doc's upsert key is already present.
// The orchestrator uses it to make LOAD a no-op for tracks whose final
// document was not refreshed this pass.
func (l *Loader) Exists(doc *sidecar.FinalDoc) (bool, error) {
	colset := make(map[string]bool, len(l.columns))
	for _, c := range l.columns {
		colset[c] = true
	}

	keyCol, keyVal, err := upsertKey(colset, doc)
	if err != nil {
		return false, err
	}

	var one int
	err = l.store.DB().QueryRow(
		fmt.Sprintf("SELECT 1 FROM tracks WHERE %s = ?", keyCol), keyVal,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up existing row: %w", err)
	}
	return true, nil
}

// RowCount returns the current number of rows in the tracks table, for
// progress reporting after each load.
func (l *Loader) RowCount() (int, error) {
	return l.store.CountTracks()
}

// upsertKey picks the priority-ordered identity for the row: content hash
// first, file path second.
func upsertKey(colset map[string]bool, doc *sidecar.FinalDoc) (string, any, error) {
	if colset["file_hash"] && doc.File.HashSHA256 != "" {
		return "file_hash", doc.File.HashSHA256, nil
	}
	if colset["file_path"] && doc.File.Path != "" {
		return "file_path", doc.File.Path, nil
	}
	return "", nil, fmt.Errorf("%w: record has neither file_hash nor file_path", util.ErrNoUpsertKey)
}

func insertRow(tx *sql.Tx, row map[string]any) error {
	cols := make([]string, 0, len(row))
	vals := make([]any, 0, len(row))
	for col, val := range row {
		cols = append(cols, col)
		vals = append(vals, val)
	}

	query := fmt.Sprintf(
		"INSERT INTO tracks (%s) VALUES (%s)",
		strings.Join(cols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "),
	)
	if _, err := tx.Exec(query, vals...); err != nil {
		return fmt.Errorf("insert failed: %w", err)
	}
	return nil
}

func updateRow(tx *sql.Tx, row map[string]any, id int64) error {
	if len(row) == 0 {
		return nil
	}

	sets := make([]string, 0, len(row))
	vals := make([]any, 0, len(row)+1)
	for col, val := range row {
		sets = append(sets, col+" = ?")
		vals = append(vals, val)
	}
	vals = append(vals, id)

	query := fmt.Sprintf("UPDATE tracks SET %s WHERE id = ?", strings.Join(sets, ", "))
	if _, err := tx.Exec(query, vals...); err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	return nil
}
