package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/ormasoftchile/casewright/pkg/checkpoint"
	"github.com/ormasoftchile/casewright/pkg/classify"
	"github.com/ormasoftchile/casewright/pkg/orchestrator"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// CaseRun is the outcome of running one case document.
type CaseRun struct {
	Path   string               `json:"path"`
	CaseID string               `json:"caseId,omitempty"`
	Result *orchestrator.Result `json:"result,omitempty"`
	// Err is the run's error: an *orchestrator.ActionFailure for a halted
	// case, a *classify.ClassificationAmbiguousError for a blocked one,
	// or the parse, lock or driver error that kept the case from starting.
	Err error `json:"-"`
}

// Outcome returns the run outcome, or "error" when the case never started.
func (r CaseRun) Outcome() string {
	if r.Result == nil {
		return "error"
	}
	return string(r.Result.Outcome)
}

// Run executes each case document in its own session, up to the configured
// parallelism at a time. Per-case failures are reported in the returned
// runs; the error is non-nil only when ctx ends before every case started.
func (s *Service) Run(ctx context.Context, paths []string) ([]CaseRun, error) {
	runs := make([]CaseRun, len(paths))
	limit := s.cfg.Parallel
	if limit < 1 || s.cfg.Driver.Kind == "manual" {
		// One operator, one session.
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(paths); j++ {
				runs[j] = CaseRun{Path: paths[j], Err: err}
			}
			break
		}
		g.Go(func() error {
			runs[i] = s.RunCase(ctx, path)
			return nil
		})
	}
	_ = g.Wait()
	return runs, ctx.Err()
}

// RunCase parses, classifies and runs one case document under the case lock.
func (s *Service) RunCase(ctx context.Context, path string) CaseRun {
	run := CaseRun{Path: path}
	tc, err := s.Prepare(path)
	var amb *classify.ClassificationAmbiguousError
	if err != nil && !errors.As(err, &amb) {
		run.Err = err
		return run
	}
	run.CaseID = tc.ID
	logger := log.With().Str("case", tc.ID).Str("path", path).Logger()

	lock, err := checkpoint.TryLockCase(s.cfg.Checkpoint.Dir, tc.ID)
	if err != nil {
		run.Err = err
		return run
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn().Err(err).Msg("release case lock")
		}
	}()

	rec, err := s.store.Load(ctx, tc.ID)
	if err != nil {
		run.Err = fmt.Errorf("load checkpoint: %w", err)
		return run
	}
	driver, err := s.drivers(ctx, tc.ID, rec)
	if err != nil {
		run.Err = fmt.Errorf("open session for %s: %w", tc.ID, err)
		return run
	}
	defer func() {
		if err := driver.Close(); err != nil {
			logger.Warn().Err(err).Msg("close session")
		}
	}()

	logger.Debug().Msg("running case")
	run.Result, run.Err = s.newOrchestrator(driver).Run(ctx, tc)
	return run
}
