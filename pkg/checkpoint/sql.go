package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ormasoftchile/casewright/pkg/model"
)

// SQLStore keeps checkpoints in SQLite. Every commit updates the current row
// and appends to the revision history in one transaction.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLStore wraps a migrated database (see pkg/db).
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// Load returns the current record for a case.
func (s *SQLStore) Load(ctx context.Context, caseID string) (*model.CheckpointRecord, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM checkpoints WHERE case_id = ?`, caseID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	var rec model.CheckpointRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &rec, nil
}

// Commit stores revision rec.Revision+1 if rec is based on the current row.
func (s *SQLStore) Commit(ctx context.Context, rec *model.CheckpointRecord) (*model.CheckpointRecord, error) {
	next := rec.Clone()
	next.Revision = rec.Revision + 1
	next.UpdatedAt = s.now().UTC().Truncate(time.Second)
	fail := func(op string, err error) (*model.CheckpointRecord, error) {
		return nil, &StoreWriteError{CaseID: rec.CaseID, Revision: next.Revision, Op: op, Err: err}
	}

	payload, err := json.Marshal(next)
	if err != nil {
		return fail("encode", err)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fail("begin commit", err)
	}
	var stored int64
	err = tx.QueryRowContext(ctx, `SELECT revision FROM checkpoints WHERE case_id = ?`, rec.CaseID).Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return fail("read revision", err)
	}
	if stored != rec.Revision {
		_ = tx.Rollback()
		return nil, conflict(rec.CaseID, rec.Revision, stored)
	}

	updatedAt := next.UpdatedAt.Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `INSERT INTO checkpoints(case_id, revision, state, payload, updated_at)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(case_id) DO UPDATE SET revision = excluded.revision, state = excluded.state,
			payload = excluded.payload, updated_at = excluded.updated_at`,
		next.CaseID, next.Revision, string(next.Case.State()), string(payload), updatedAt); err != nil {
		_ = tx.Rollback()
		return fail("write checkpoint", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO checkpoint_revisions(case_id, revision, payload, committed_at)
		VALUES(?, ?, ?, ?)`, next.CaseID, next.Revision, string(payload), updatedAt); err != nil {
		_ = tx.Rollback()
		return fail("write revision", err)
	}
	if err := tx.Commit(); err != nil {
		return fail("commit", err)
	}
	return next, nil
}

// Archive moves the current row into archived_checkpoints and drops the
// case's revision history, so a re-run starts a fresh history.
func (s *SQLStore) Archive(ctx context.Context, caseID string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin archive: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO archived_checkpoints(case_id, revision, payload, archived_at)
		SELECT case_id, revision, payload, ? FROM checkpoints WHERE case_id = ?`,
		s.now().UTC().Format(time.RFC3339), caseID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("archive checkpoint: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM checkpoints WHERE case_id = ?`, caseID)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return fmt.Errorf("archive %q: %w", caseID, ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM checkpoint_revisions WHERE case_id = ?`, caseID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete revision history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive: %w", err)
	}
	return nil
}

// List summarises every active case, sorted by case ID.
func (s *SQLStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM checkpoints ORDER BY case_id`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()
	var out []Summary
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		var rec model.CheckpointRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("decode checkpoint: %w", err)
		}
		out = append(out, summarize(&rec))
	}
	return out, rows.Err()
}

// Revisions returns the committed revision numbers of a case in order.
func (s *SQLStore) Revisions(ctx context.Context, caseID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT revision FROM checkpoint_revisions WHERE case_id = ? ORDER BY id`, caseID)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var r int64
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
