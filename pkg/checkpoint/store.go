// Package checkpoint persists per-case execution state so interrupted runs
// can resume from the last committed step.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ormasoftchile/casewright/pkg/model"
)

var (
	// ErrRevisionConflict means the record being committed is not based on
	// the latest stored revision.
	ErrRevisionConflict = errors.New("checkpoint revision conflict")
	// ErrNotFound is returned by Archive for a case with no checkpoint.
	ErrNotFound = errors.New("checkpoint not found")
	// ErrCaseLocked means another process holds the case lock.
	ErrCaseLocked = errors.New("case is locked by another process")
	// ErrCaseMismatch means a checkpoint file belongs to a different case.
	ErrCaseMismatch = errors.New("checkpoint belongs to another case")
)

// StoreWriteError reports a commit that did not become durable. The prior
// revision remains authoritative.
type StoreWriteError struct {
	CaseID   string
	Revision int64
	Op       string
	Err      error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("checkpoint %q revision %d: %s: %v", e.CaseID, e.Revision, e.Op, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// Store is the single source of truth for case progress.
type Store interface {
	// Load returns the latest committed record, or nil when the case has
	// never been committed.
	Load(ctx context.Context, caseID string) (*model.CheckpointRecord, error)
	// Commit atomically stores rec as revision rec.Revision+1. rec.Revision
	// must equal the stored revision (0 for a new case).
	Commit(ctx context.Context, rec *model.CheckpointRecord) (*model.CheckpointRecord, error)
	// Archive removes the case from the active set.
	Archive(ctx context.Context, caseID string) error
	// List summarises every active case.
	List(ctx context.Context) ([]Summary, error)
}

// Summary is a one-line view of a stored case.
type Summary struct {
	CaseID    string          `json:"caseId"`
	Name      string          `json:"name,omitempty"`
	Revision  int64           `json:"revision"`
	State     model.CaseState `json:"state"`
	Done      int             `json:"done"`
	Total     int             `json:"total"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func summarize(rec *model.CheckpointRecord) Summary {
	done, total := rec.Case.Progress()
	return Summary{
		CaseID:    rec.CaseID,
		Name:      rec.Case.Name,
		Revision:  rec.Revision,
		State:     rec.Case.State(),
		Done:      done,
		Total:     total,
		UpdatedAt: rec.UpdatedAt,
	}
}

func conflict(caseID string, have, stored int64) error {
	return fmt.Errorf("case %q: commit based on revision %d, stored revision is %d: %w", caseID, have, stored, ErrRevisionConflict)
}
