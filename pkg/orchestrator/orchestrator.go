// Package orchestrator drives a test case one step at a time through an
// interactive session, committing a checkpoint after every completed step.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ormasoftchile/casewright/pkg/checkpoint"
	"github.com/ormasoftchile/casewright/pkg/classify"
	"github.com/ormasoftchile/casewright/pkg/model"
	"github.com/ormasoftchile/casewright/pkg/session"
	"github.com/ormasoftchile/casewright/pkg/trace"
	"github.com/rs/zerolog/log"
)

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeComplete Outcome = "complete"
	OutcomeHalted   Outcome = "halted"
	OutcomeAborted  Outcome = "aborted"
	OutcomeBlocked  Outcome = "blocked"
)

// InterruptedObservation is recorded on a step found InProgress at start.
const InterruptedObservation = "interrupted: step was in progress when the previous run stopped; its effect on the session is unknown"

// Options tunes a run.
type Options struct {
	// SkipVerify disables checking expected results against the page.
	SkipVerify bool
	// CommitRetries is how many times a failed checkpoint commit is retried.
	CommitRetries int
	CommitBackoff time.Duration
	Trace         *trace.Writer
	// Out receives human-readable progress lines; nil is silent.
	Out io.Writer
	Now func() time.Time
}

// Orchestrator runs cases against one driver. A driver is an exclusive
// session, so an Orchestrator must not run two cases at once.
type Orchestrator struct {
	store  checkpoint.Store
	driver session.Driver
	opts   Options
}

// New creates an orchestrator.
func New(store checkpoint.Store, driver session.Driver, opts Options) *Orchestrator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CommitRetries < 0 {
		opts.CommitRetries = 0
	}
	if opts.CommitBackoff <= 0 {
		opts.CommitBackoff = 200 * time.Millisecond
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Orchestrator{store: store, driver: driver, opts: opts}
}

// Result summarises a run.
type Result struct {
	CaseID  string
	Outcome Outcome
	// Record is the last committed record (revision 0 if nothing was committed).
	Record *model.CheckpointRecord
	// Dispatched lists the step indices sent to the driver in this run.
	Dispatched []int
	Duration   time.Duration
}

// Run executes the remaining steps of a case. fresh is the parsed and
// classified case, used only when no checkpoint exists.
//
// The returned error is nil only for OutcomeComplete: a halted run returns an
// *ActionFailure, a blocked run a *classify.ClassificationAmbiguousError, an
// aborted run ctx.Err(), and exhausted commit retries a
// *checkpoint.StoreWriteError.
func (o *Orchestrator) Run(ctx context.Context, fresh *model.TestCase) (*Result, error) {
	start := o.opts.Now()
	res := &Result{CaseID: fresh.ID}
	finish := func(outcome Outcome, err error) (*Result, error) {
		res.Outcome = outcome
		res.Duration = o.opts.Now().Sub(start)
		var rev int64
		if res.Record != nil {
			rev = res.Record.Revision
		}
		_ = o.opts.Trace.EmitRunComplete(fresh.ID, string(outcome), rev, res.Duration)
		log.Info().Str("case", fresh.ID).Str("outcome", string(outcome)).Int64("revision", rev).
			Ints("dispatched", res.Dispatched).Msg("run finished")
		return res, err
	}

	rec, err := o.prepare(ctx, fresh)
	if rec != nil {
		res.Record = rec.Clone()
	}
	if err != nil {
		var amb *classify.ClassificationAmbiguousError
		var af *ActionFailure
		switch {
		case errors.As(err, &amb):
			fmt.Fprintf(o.opts.Out, "■ Case %s blocked: %v\n", fresh.ID, err)
			return finish(OutcomeBlocked, err)
		case errors.As(err, &af):
			fmt.Fprintf(o.opts.Out, "✗ %v\n", err)
			return finish(OutcomeHalted, err)
		case rec != nil:
			return finish(OutcomeAborted, err)
		}
		return nil, err
	}

	next := firstPending(&rec.Case)
	_ = o.opts.Trace.EmitRunStart(fresh.ID, rec.Revision, next)
	if next > 0 && rec.Revision > 0 {
		fmt.Fprintf(o.opts.Out, "Resuming %s at step %d (revision %d)\n", fresh.ID, next, rec.Revision)
	}

	for i := range rec.Case.Steps {
		step := &rec.Case.Steps[i]
		if step.Status != model.StatusPending {
			continue
		}
		// Cancellation is honoured only between steps.
		if err := ctx.Err(); err != nil {
			fmt.Fprintf(o.opts.Out, "■ Aborted before step %d\n", step.Index)
			return finish(OutcomeAborted, err)
		}

		failure, err := o.execute(ctx, &rec.Case, step)
		if err != nil {
			return nil, err
		}
		res.Dispatched = append(res.Dispatched, step.Index)

		committed, err := o.commit(ctx, rec)
		if err != nil {
			return finish(OutcomeAborted, err)
		}
		rec = committed
		res.Record = committed.Clone()

		if failure != nil {
			fmt.Fprintf(o.opts.Out, "  ✗ Step %d failed: %s\n", step.Index, failure.Reason)
			return finish(OutcomeHalted, failure)
		}
		fmt.Fprintf(o.opts.Out, "  ✓ Step %d passed\n", rec.Case.Steps[i].Index)
	}

	fmt.Fprintf(o.opts.Out, "\n✓ Case %s completed (%d steps, revision %d)\n", fresh.ID, len(rec.Case.Steps), rec.Revision)
	return finish(OutcomeComplete, nil)
}

// prepare loads the committed record and applies the start-of-run rules:
// an interrupted step fails the case, failed steps are reopened, and Unknown
// steps block it. The returned record is the working copy.
func (o *Orchestrator) prepare(ctx context.Context, fresh *model.TestCase) (*model.CheckpointRecord, error) {
	rec, err := o.store.Load(ctx, fresh.ID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if rec == nil {
		rec = model.NewRecord(fresh)
	}

	for i := range rec.Case.Steps {
		s := &rec.Case.Steps[i]
		if s.Status != model.StatusInProgress {
			continue
		}
		_ = s.Transition(model.StatusFailed)
		s.ObservedBehavior = InterruptedObservation
		log.Warn().Str("case", rec.CaseID).Int("step", s.Index).Msg("step was left in progress; marking failed")
		committed, err := o.commit(ctx, rec)
		if err != nil {
			return rec, err
		}
		return committed, &ActionFailure{CaseID: rec.CaseID, Index: s.Index, Kind: s.Action, Reason: InterruptedObservation}
	}

	for i := range rec.Case.Steps {
		s := &rec.Case.Steps[i]
		if s.Status == model.StatusFailed {
			if err := s.Reopen(o.opts.Now()); err != nil {
				return rec, err
			}
			_ = o.opts.Trace.EmitStepReopened(rec.CaseID, s.Index)
			log.Info().Str("case", rec.CaseID).Int("step", s.Index).Msg("reopened failed step")
		}
	}

	if err := classify.Unresolved(&rec.Case); err != nil {
		var amb *classify.ClassificationAmbiguousError
		if errors.As(err, &amb) {
			_ = o.opts.Trace.EmitCaseBlocked(rec.CaseID, amb.Indices)
		}
		return rec, err
	}
	return rec, nil
}

// execute moves one step through InProgress to a terminal status. The
// returned failure is non-nil when the step failed; err is reserved for
// broken invariants.
func (o *Orchestrator) execute(ctx context.Context, tc *model.TestCase, step *model.Step) (*ActionFailure, error) {
	if err := step.Transition(model.StatusInProgress); err != nil {
		return nil, err
	}
	fmt.Fprintf(o.opts.Out, "\n▶ Step %d/%d: %s [%s]\n", step.Index, len(tc.Steps), step.Description, step.Action)
	_ = o.opts.Trace.EmitStepStart(tc.ID, step.Index, string(step.Action))
	started := o.opts.Now()

	// The action runs to completion even if the operator cancels meanwhile.
	out, err := o.perform(context.WithoutCancel(ctx), *step)

	var failure *ActionFailure
	if err != nil {
		failure = &ActionFailure{CaseID: tc.ID, Index: step.Index, Kind: step.Action, Reason: err.Error(), Err: err}
		step.ObservedBehavior = err.Error()
		if out.observed != "" {
			step.ObservedBehavior = out.observed + "; " + err.Error()
		}
		step.DiscoveredElements = out.locators
		if terr := step.Transition(model.StatusFailed); terr != nil {
			return nil, terr
		}
	} else {
		step.ObservedBehavior = out.observed
		step.DiscoveredElements = out.locators
		step.Notes = append(step.Notes, out.notes...)
		if terr := step.Transition(model.StatusSucceeded); terr != nil {
			return nil, terr
		}
	}

	_ = o.opts.Trace.EmitStepComplete(tc.ID, step.Index, string(step.Status), step.ObservedBehavior, o.opts.Now().Sub(started))
	log.Debug().Str("case", tc.ID).Int("step", step.Index).Str("status", string(step.Status)).Msg("step finished")
	return failure, nil
}

// commit persists rec, retrying only on StoreWriteError. The retries run
// even after cancellation: a completed step must not be lost.
func (o *Orchestrator) commit(ctx context.Context, rec *model.CheckpointRecord) (*model.CheckpointRecord, error) {
	ctx = context.WithoutCancel(ctx)
	b := &backoff.ExponentialBackOff{
		InitialInterval: o.opts.CommitBackoff,
		Multiplier:      2,
		MaxInterval:     time.Minute,
	}
	b.Reset()
	attempt := 0
	committed, err := backoff.Retry(ctx, func() (*model.CheckpointRecord, error) {
		attempt++
		committed, err := o.store.Commit(ctx, rec)
		var swe *checkpoint.StoreWriteError
		if err != nil && !errors.As(err, &swe) {
			return nil, backoff.Permanent(err)
		}
		return committed, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(o.opts.CommitRetries)+1),
		backoff.WithNotify(func(err error, wait time.Duration) {
			_ = o.opts.Trace.EmitCommitRetry(rec.CaseID, attempt, err)
			log.Warn().Err(err).Str("case", rec.CaseID).Dur("backoff", wait).Msg("retrying checkpoint commit")
		}),
	)
	if err != nil {
		log.Error().Err(err).Str("case", rec.CaseID).Int("attempt", attempt).Msg("checkpoint commit failed")
		return nil, err
	}
	_ = o.opts.Trace.EmitCommit(rec.CaseID, committed.Revision)
	return committed, nil
}

func firstPending(tc *model.TestCase) int {
	for _, s := range tc.Steps {
		if s.Status == model.StatusPending {
			return s.Index
		}
	}
	return 0
}
