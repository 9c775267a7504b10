package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/ormasoftchile/casewright/pkg/classify"
	"github.com/ormasoftchile/casewright/pkg/model"
)

// ErrOutOfOrder is returned when a reported step is not the next pending one.
var ErrOutOfOrder = errors.New("step is not the next pending step")

// NextStep is the step an external executor should perform next.
type NextStep struct {
	CaseID   string          `json:"caseId"`
	Revision int64           `json:"revision"`
	Step     model.Step      `json:"step"`
	Params   classify.Params `json:"params"`
	Total    int             `json:"total"`
}

// Next returns the next step to perform, or nil when the case is complete.
// It applies the same start-of-run rules as Run without dispatching.
func (o *Orchestrator) Next(ctx context.Context, fresh *model.TestCase) (*NextStep, error) {
	rec, err := o.prepare(ctx, fresh)
	if err != nil {
		return nil, err
	}
	for _, s := range rec.Case.Steps {
		if s.Status == model.StatusPending {
			return &NextStep{
				CaseID:   rec.CaseID,
				Revision: rec.Revision,
				Step:     s,
				Params:   classify.ParamsFor(s),
				Total:    len(rec.Case.Steps),
			}, nil
		}
	}
	return nil, nil
}

// Report is an externally performed step outcome.
type Report struct {
	Index     int                       `json:"index"`
	Succeeded bool                      `json:"succeeded"`
	Locators  []model.DiscoveredElement `json:"locators,omitempty"`
	Observed  string                    `json:"observed"`
}

// Record applies an externally performed step outcome and commits it. The
// step must be the next pending one; a success without a locator is
// recorded as a failure.
func (o *Orchestrator) Record(ctx context.Context, fresh *model.TestCase, r Report) (*model.CheckpointRecord, error) {
	rec, err := o.prepare(ctx, fresh)
	if err != nil {
		return nil, err
	}
	next := firstPending(&rec.Case)
	if next == 0 {
		return nil, fmt.Errorf("case %q is complete: %w", rec.CaseID, ErrOutOfOrder)
	}
	if r.Index != next {
		return nil, fmt.Errorf("step %d reported, step %d expected: %w", r.Index, next, ErrOutOfOrder)
	}

	step := rec.Case.Step(r.Index)
	if err := step.Transition(model.StatusInProgress); err != nil {
		return nil, err
	}
	_ = o.opts.Trace.EmitStepStart(rec.CaseID, step.Index, string(step.Action))
	step.DiscoveredElements = append([]model.DiscoveredElement(nil), r.Locators...)
	step.ObservedBehavior = r.Observed

	to := model.StatusSucceeded
	switch {
	case !r.Succeeded:
		to = model.StatusFailed
	case len(r.Locators) == 0:
		to = model.StatusFailed
		step.ObservedBehavior = joinObserved(r.Observed, ErrNoTarget.Error())
	}
	if err := step.Transition(to); err != nil {
		return nil, err
	}
	_ = o.opts.Trace.EmitStepComplete(rec.CaseID, step.Index, string(to), step.ObservedBehavior, 0)

	committed, err := o.commit(ctx, rec)
	if err != nil {
		return nil, err
	}
	if to == model.StatusFailed {
		s := committed.Case.Step(r.Index)
		return committed, &ActionFailure{CaseID: committed.CaseID, Index: s.Index, Kind: s.Action, Reason: s.ObservedBehavior}
	}
	return committed, nil
}
