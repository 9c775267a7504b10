package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ormasoftchile/casewright/pkg/classify"
	"github.com/ormasoftchile/casewright/pkg/model"
	"github.com/ormasoftchile/casewright/pkg/phrase"
	"github.com/ormasoftchile/casewright/pkg/session"
	"github.com/ormasoftchile/casewright/pkg/verify"
)

// ActionFailure records why a dispatched step failed. The case halts on it.
type ActionFailure struct {
	CaseID string
	Index  int
	Kind   model.ActionKind
	Reason string
	Err    error
}

func (e *ActionFailure) Error() string {
	return fmt.Sprintf("case %q step %d (%s): %s", e.CaseID, e.Index, e.Kind, e.Reason)
}

func (e *ActionFailure) Unwrap() error { return e.Err }

// Sentinel causes wrapped by ActionFailure.
var (
	ErrNoTarget        = errors.New("no interaction target discovered")
	ErrMissingArgument = errors.New("step has no usable argument")
	ErrExpectation     = errors.New("observed state does not match expected result")
)

type actionOutput struct {
	locators []model.DiscoveredElement
	observed string
	notes    []string
}

// perform dispatches the step to the driver and verifies the outcome.
func (o *Orchestrator) perform(ctx context.Context, s model.Step) (actionOutput, error) {
	p := classify.ParamsFor(s)
	target := session.NewTarget(p.Target, p.Role)

	var (
		res session.Result
		err error
		doc *verify.Document
	)
	switch s.Action {
	case model.ActionNavigate:
		if p.URL == "" {
			return actionOutput{}, fmt.Errorf("navigate: no URL in description or test data: %w", ErrMissingArgument)
		}
		res, err = o.driver.Navigate(ctx, p.URL)
	case model.ActionClick:
		if err = needTarget(target); err == nil {
			res, err = o.driver.Click(ctx, target)
		}
	case model.ActionFill:
		if err = needTarget(target); err == nil {
			res, err = o.driver.Fill(ctx, target, p.Value)
		}
	case model.ActionSelect:
		if err = needTarget(target); err == nil {
			if p.Value == "" {
				return actionOutput{}, fmt.Errorf("select: no option value: %w", ErrMissingArgument)
			}
			res, err = o.driver.Select(ctx, target, p.Value)
		}
	case model.ActionCheck:
		if err = needTarget(target); err == nil {
			res, err = o.driver.Check(ctx, target)
		}
	case model.ActionUpload:
		if err = needTarget(target); err == nil {
			if p.Value == "" {
				return actionOutput{}, fmt.Errorf("upload: no file path: %w", ErrMissingArgument)
			}
			res, err = o.driver.Upload(ctx, target, p.Value)
		}
	case model.ActionAssert:
		res, doc, err = o.assertPresent(ctx, target)
	default:
		return actionOutput{}, fmt.Errorf("cannot dispatch %s step", s.Action)
	}
	out := actionOutput{locators: res.Locators, observed: res.Observed}
	if err != nil {
		return out, err
	}
	if len(res.Locators) == 0 {
		return out, ErrNoTarget
	}

	if o.opts.SkipVerify || strings.TrimSpace(s.ExpectedResult) == "" {
		return out, nil
	}
	if len(phrase.Quoted(s.ExpectedResult)) == 0 {
		out.notes = append(out.notes, "expected result not mechanically checkable; recorded for review")
		return out, nil
	}
	if doc == nil {
		snap, err := o.driver.Snapshot(ctx)
		if err != nil {
			return out, fmt.Errorf("snapshot for verification: %w", err)
		}
		if doc, err = verify.Parse(snap.HTML); err != nil {
			return out, err
		}
	}
	check := verify.Check(doc, s.ExpectedResult)
	if !check.OK() {
		return out, fmt.Errorf("%s: %w", check, ErrExpectation)
	}
	out.observed = joinObserved(out.observed, check.String())
	return out, nil
}

// assertPresent confirms the target is on the page. The matched element is
// the step's discovered element.
func (o *Orchestrator) assertPresent(ctx context.Context, t session.Target) (session.Result, *verify.Document, error) {
	snap, err := o.driver.Snapshot(ctx)
	if err != nil {
		return session.Result{}, nil, fmt.Errorf("snapshot: %w", err)
	}
	doc, err := verify.Parse(snap.HTML)
	if err != nil {
		return session.Result{}, nil, err
	}
	label := t.Selector
	if label == "" {
		label = t.Label
	}
	if label == "" {
		return session.Result{}, doc, fmt.Errorf("assert: nothing to look for: %w", ErrMissingArgument)
	}
	loc, ok := doc.Locate(label, t.Role)
	if !ok {
		return session.Result{}, doc, fmt.Errorf("%s not present on %s: %w", t, orPage(snap.URL), ErrNoTarget)
	}
	return session.Result{
		Locators: []model.DiscoveredElement{loc},
		Observed: fmt.Sprintf("found %s as %s", t, loc),
	}, doc, nil
}

func needTarget(t session.Target) error {
	if t.Label == "" && t.Selector == "" {
		return fmt.Errorf("no target in description: %w", ErrMissingArgument)
	}
	return nil
}

func joinObserved(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}

func orPage(url string) string {
	if url == "" {
		return "the page"
	}
	return url
}
