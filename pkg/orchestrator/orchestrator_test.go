package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ormasoftchile/casewright/pkg/checkpoint"
	"github.com/ormasoftchile/casewright/pkg/classify"
	"github.com/ormasoftchile/casewright/pkg/model"
	"github.com/ormasoftchile/casewright/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func loginCase(t require.TestingT) *model.TestCase {
	tc := &model.TestCase{
		ID:   "TC-2001",
		Name: "Sign in",
		Steps: []model.Step{
			{Index: 1, Description: "Open https://example.com/login"},
			{Index: 2, Description: "Enter the username in the 'Username' field", TestData: "alice"},
			{Index: 3, Description: "Type the password into the 'Password' field", TestData: "s3cret", ExpectedResult: `The banner reads "Password accepted"`},
			{Index: 4, Description: "Click the 'Sign in' button"},
			{Index: 5, Description: `Verify the "Issues" link is visible`, ExpectedResult: `The "Issues" link is shown in the navigation bar`},
		},
	}
	return classified(t, tc)
}

func classified(t require.TestingT, tc *model.TestCase) *model.TestCase {
	for i := range tc.Steps {
		tc.Steps[i].Status = model.StatusPending
		tc.Steps[i].Action = model.ActionUnknown
	}
	// Unknown steps are left for the caller to assert on.
	_ = classify.New().ClassifyCase(tc)
	return tc
}

func loc(strategy, value string) []model.DiscoveredElement {
	return []model.DiscoveredElement{{Strategy: strategy, Value: value}}
}

func newStore(t *testing.T) *checkpoint.FileStore {
	t.Helper()
	s, err := checkpoint.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func statuses(rec *model.CheckpointRecord) []model.StepStatus {
	out := make([]model.StepStatus, len(rec.Case.Steps))
	for i, s := range rec.Case.Steps {
		out[i] = s.Status
	}
	return out
}

var (
	P = model.StatusPending
	S = model.StatusSucceeded
	F = model.StatusFailed
)

func TestRunHaltsOnFailedStepThenResumes(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	tc := loginCase(t)
	require.Equal(t, []model.ActionKind{model.ActionNavigate, model.ActionFill, model.ActionFill, model.ActionClick, model.ActionAssert},
		[]model.ActionKind{tc.Steps[0].Action, tc.Steps[1].Action, tc.Steps[2].Action, tc.Steps[3].Action, tc.Steps[4].Action})

	first := session.NewScriptedDriver(&session.Scenario{
		Actions: []session.ScriptedAction{
			{Op: "navigate", URL: "https://example.com/login", Locators: loc("url", "https://example.com/login"), Observed: "login page"},
			{Op: "fill", Target: "Username", Value: "alice", Locators: loc("css", "#username")},
			{Op: "fill", Target: "Password", Value: "s3cret", Locators: loc("css", "#password")},
		},
		Snapshots: []session.ScriptedSnapshot{
			{After: 3, DOMSnapshot: session.DOMSnapshot{HTML: "<p>Wrong password</p>"}},
		},
	})
	res, err := New(store, first, Options{}).Run(ctx, tc)

	var af *ActionFailure
	require.ErrorAs(t, err, &af)
	assert.ErrorIs(t, err, ErrExpectation)
	assert.Equal(t, 3, af.Index)
	assert.Equal(t, OutcomeHalted, res.Outcome)
	assert.Equal(t, []int{1, 2, 3}, res.Dispatched)

	rec, err := store.Load(ctx, tc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.Revision)
	assert.Equal(t, []model.StepStatus{S, S, F, P, P}, statuses(rec))
	assert.Equal(t, model.StateHalted, rec.Case.State())
	assert.Contains(t, rec.Case.Steps[2].ObservedBehavior, `expected "Password accepted" not found on page`)
	assert.Equal(t, "#password", rec.Case.Steps[2].DiscoveredElements[0].Value)

	// The failure is fixed externally; a new session continues from step 3.
	second := session.NewScriptedDriver(&session.Scenario{
		Actions: []session.ScriptedAction{
			{Op: "fill", Target: "Password", Value: "s3cret", Locators: loc("css", "#password")},
			{Op: "click", Target: "Sign in", Locators: loc("xpath", `//button[normalize-space(.)="Sign in"]`), Observed: "dashboard"},
		},
		Snapshots: []session.ScriptedSnapshot{
			{After: 1, DOMSnapshot: session.DOMSnapshot{HTML: "<p>Password accepted</p>"}},
			{After: 2, DOMSnapshot: session.DOMSnapshot{HTML: `<nav><a id="nav-issues" href="/issues">Issues</a></nav>`}},
		},
	})
	res, err = New(store, second, Options{}).Run(ctx, loginCase(t))
	require.NoError(t, err)
	assert.Equal(t, OutcomeComplete, res.Outcome)
	assert.Equal(t, []int{3, 4, 5}, res.Dispatched)
	assert.Equal(t, []string{"fill Password", "snapshot", "click Sign in", "snapshot"}, second.Calls)

	rec, err = store.Load(ctx, tc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), rec.Revision)
	assert.Equal(t, model.StateComplete, rec.Case.State())
	assert.Contains(t, rec.Case.Steps[2].Notes[0], "reopened after failure")
	assert.Equal(t, model.DiscoveredElement{Strategy: "css", Value: "#nav-issues", Role: "link"}, rec.Case.Steps[4].DiscoveredElements[0])
	assert.Equal(t, "login page", rec.Case.Steps[0].ObservedBehavior, "succeeded steps keep their state")
}

func TestRunCompleteCaseIsNoop(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	tc := classified(t, &model.TestCase{ID: "C", Steps: []model.Step{{Index: 1, Description: "Click the 'Go' button"}}})
	d := session.NewScriptedDriver(&session.Scenario{Actions: []session.ScriptedAction{{Op: "click", Target: "Go", Locators: loc("css", "#go")}}})

	_, err := New(store, d, Options{}).Run(ctx, tc)
	require.NoError(t, err)
	res, err := New(store, d, Options{}).Run(ctx, tc)
	require.NoError(t, err)
	assert.Equal(t, OutcomeComplete, res.Outcome)
	assert.Empty(t, res.Dispatched)
	assert.Equal(t, int64(1), res.Record.Revision)
}

func TestFailingStepFixesRevision(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(rt, "steps")
		k := rapid.IntRange(1, n).Draw(rt, "failing")

		tc := &model.TestCase{ID: "P"}
		var actions []session.ScriptedAction
		for i := 1; i <= n; i++ {
			label := fmt.Sprintf("B%d", i)
			tc.Steps = append(tc.Steps, model.Step{Index: i, Description: fmt.Sprintf("Click the '%s' button", label)})
			a := session.ScriptedAction{Op: "click", Target: label, Locators: loc("css", "#"+label)}
			if i == k {
				a.Error = "boom"
			}
			actions = append(actions, a)
		}
		classified(rt, tc)

		store, err := checkpoint.NewFileStore(t.TempDir())
		require.NoError(rt, err)
		res, err := New(store, session.NewScriptedDriver(&session.Scenario{Actions: actions}), Options{}).Run(context.Background(), tc)
		require.Error(rt, err)
		require.Equal(rt, OutcomeHalted, res.Outcome)

		rec, err := store.Load(context.Background(), "P")
		require.NoError(rt, err)
		require.Equal(rt, int64(k), rec.Revision)
		for _, s := range rec.Case.Steps {
			switch {
			case s.Index < k:
				require.Equal(rt, model.StatusSucceeded, s.Status)
			case s.Index == k:
				require.Equal(rt, model.StatusFailed, s.Status)
				require.Equal(rt, "boom", s.ObservedBehavior)
			default:
				require.Equal(rt, model.StatusPending, s.Status)
			}
		}
	})
}

func TestRunBlocksOnUnknownStep(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	tc := classified(t, &model.TestCase{ID: "U", Steps: []model.Step{
		{Index: 1, Description: "Click the 'Go' button"},
		{Index: 2, Description: "Something vague happens"},
	}})
	d := session.NewScriptedDriver(&session.Scenario{Actions: []session.ScriptedAction{{Op: "click", Target: "Go"}}})

	res, err := New(store, d, Options{}).Run(ctx, tc)
	var amb *classify.ClassificationAmbiguousError
	require.ErrorAs(t, err, &amb)
	assert.Equal(t, []int{2}, amb.Indices)
	assert.Equal(t, OutcomeBlocked, res.Outcome)
	assert.Empty(t, d.Calls, "nothing is dispatched while a step is unclassified")

	rec, err := store.Load(ctx, "U")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRunMarksInterruptedStepFailed(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	tc := loginCase(t)
	rec := model.NewRecord(tc)
	rec.Case.Steps[0].Status = model.StatusSucceeded
	rec.Case.Steps[1].Status = model.StatusInProgress
	_, err := store.Commit(ctx, rec)
	require.NoError(t, err)

	d := session.NewScriptedDriver(&session.Scenario{Actions: []session.ScriptedAction{{Op: "fill", Target: "Username"}}})
	res, err := New(store, d, Options{}).Run(ctx, tc)

	var af *ActionFailure
	require.ErrorAs(t, err, &af)
	assert.Equal(t, 2, af.Index)
	assert.Equal(t, OutcomeHalted, res.Outcome)
	assert.Empty(t, d.Calls)

	got, err := store.Load(ctx, tc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Revision)
	assert.Equal(t, []model.StepStatus{S, F, P, P, P}, statuses(got))
	assert.Equal(t, InterruptedObservation, got.Case.Steps[1].ObservedBehavior)
}

type cancelingDriver struct {
	*session.ScriptedDriver
	cancel      context.CancelFunc
	actionCtxOK bool
}

func (d *cancelingDriver) Navigate(ctx context.Context, url string) (session.Result, error) {
	d.cancel()
	d.actionCtxOK = ctx.Err() == nil
	return d.ScriptedDriver.Navigate(ctx, url)
}

func TestCancellationBetweenStepsOnly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := newStore(t)
	tc := loginCase(t)
	d := &cancelingDriver{
		ScriptedDriver: session.NewScriptedDriver(&session.Scenario{Actions: []session.ScriptedAction{
			{Op: "navigate", URL: "https://example.com/login", Locators: loc("url", "https://example.com/login")},
			{Op: "fill", Target: "Username", Value: "alice", Locators: loc("css", "#username")},
		}}),
		cancel: cancel,
	}

	res, err := New(store, d, Options{}).Run(ctx, tc)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, OutcomeAborted, res.Outcome)
	assert.True(t, d.actionCtxOK, "the in-flight action is not cancelled")
	assert.Equal(t, []int{1}, res.Dispatched)

	rec, err := store.Load(context.Background(), tc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Revision)
	assert.Equal(t, []model.StepStatus{S, P, P, P, P}, statuses(rec))
}

// flakyStore fails the first n commits with a StoreWriteError.
type flakyStore struct {
	checkpoint.Store
	n       int
	commits int
}

func (f *flakyStore) Commit(ctx context.Context, rec *model.CheckpointRecord) (*model.CheckpointRecord, error) {
	f.commits++
	if f.n > 0 {
		f.n--
		return nil, &checkpoint.StoreWriteError{CaseID: rec.CaseID, Revision: rec.Revision + 1, Op: "rename", Err: errors.New("disk full")}
	}
	return f.Store.Commit(ctx, rec)
}

func TestCommitIsRetriedNotTheAction(t *testing.T) {
	ctx := context.Background()
	tc := classified(t, &model.TestCase{ID: "R", Steps: []model.Step{{Index: 1, Description: "Click the 'Go' button"}}})
	scenario := func() *session.ScriptedDriver {
		return session.NewScriptedDriver(&session.Scenario{Actions: []session.ScriptedAction{{Op: "click", Target: "Go", Locators: loc("css", "#go")}}})
	}
	opts := Options{CommitRetries: 2, CommitBackoff: time.Millisecond}

	store := &flakyStore{Store: newStore(t), n: 2}
	d := scenario()
	res, err := New(store, d, opts).Run(ctx, tc)
	require.NoError(t, err)
	assert.Equal(t, OutcomeComplete, res.Outcome)
	assert.Equal(t, 3, store.commits)
	assert.Equal(t, 1, d.Consumed(), "the action ran once")
	assert.Equal(t, int64(1), res.Record.Revision)

	store = &flakyStore{Store: newStore(t), n: 5}
	d = scenario()
	res, err = New(store, d, opts).Run(ctx, tc)
	var swe *checkpoint.StoreWriteError
	require.ErrorAs(t, err, &swe)
	assert.Equal(t, OutcomeAborted, res.Outcome)
	assert.Equal(t, 3, store.commits)
	assert.Equal(t, 1, d.Consumed())

	rec, err := store.Load(ctx, "R")
	require.NoError(t, err)
	assert.Nil(t, rec, "the prior (absent) revision stays authoritative")
}

type conflictStore struct {
	checkpoint.Store
	commits int
}

func (c *conflictStore) Commit(context.Context, *model.CheckpointRecord) (*model.CheckpointRecord, error) {
	c.commits++
	return nil, fmt.Errorf("stale: %w", checkpoint.ErrRevisionConflict)
}

func TestCommitConflictIsNotRetried(t *testing.T) {
	tc := classified(t, &model.TestCase{ID: "C", Steps: []model.Step{{Index: 1, Description: "Click the 'Go' button"}}})
	d := session.NewScriptedDriver(&session.Scenario{Actions: []session.ScriptedAction{{Op: "click", Target: "Go", Locators: loc("css", "#go")}}})
	store := &conflictStore{Store: newStore(t)}

	_, err := New(store, d, Options{CommitRetries: 3, CommitBackoff: time.Millisecond}).Run(context.Background(), tc)
	assert.ErrorIs(t, err, checkpoint.ErrRevisionConflict)
	assert.Equal(t, 1, store.commits)
}

func TestStepWithoutLocatorFails(t *testing.T) {
	ctx := context.Background()
	tc := classified(t, &model.TestCase{ID: "L", Steps: []model.Step{{Index: 1, Description: "Click the 'Go' button"}}})
	d := session.NewScriptedDriver(&session.Scenario{Actions: []session.ScriptedAction{{Op: "click", Target: "Go", Observed: "clicked somewhere"}}})

	_, err := New(newStore(t), d, Options{}).Run(ctx, tc)
	assert.ErrorIs(t, err, ErrNoTarget)
}

func TestNextAndRecord(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	tc := loginCase(t)
	o := New(store, nil, Options{})

	next, err := o.Next(ctx, tc)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, 1, next.Step.Index)
	assert.Equal(t, "https://example.com/login", next.Params.URL)
	assert.Equal(t, int64(0), next.Revision)

	_, err = o.Record(ctx, tc, Report{Index: 2, Succeeded: true, Locators: loc("css", "#username")})
	assert.ErrorIs(t, err, ErrOutOfOrder)

	rec, err := o.Record(ctx, tc, Report{Index: 1, Succeeded: true, Locators: loc("url", "https://example.com/login"), Observed: "loaded"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Revision)

	next, err = o.Next(ctx, tc)
	require.NoError(t, err)
	assert.Equal(t, 2, next.Step.Index)
	assert.Equal(t, "alice", next.Params.Value)
	assert.Equal(t, "Username", next.Params.Target)

	rec, err = o.Record(ctx, tc, Report{Index: 2, Succeeded: true, Observed: "typed"})
	var af *ActionFailure
	require.ErrorAs(t, err, &af)
	assert.Equal(t, int64(2), rec.Revision)
	assert.Equal(t, model.StatusFailed, rec.Case.Steps[1].Status)
	assert.Equal(t, "typed; no interaction target discovered", rec.Case.Steps[1].ObservedBehavior)

	next, err = o.Next(ctx, tc)
	require.NoError(t, err)
	assert.Equal(t, 2, next.Step.Index, "a failed step is offered again")
	assert.Equal(t, model.StatusPending, next.Step.Status)
}

func TestAssertFindsTextInMixedContent(t *testing.T) {
	pages := map[string]string{
		"mixed":   `<html><body><div class="status">Status: Open <a href="/edit">edit</a></div></body></html>`,
		"bare":    `Status: Open`,
		"missing": `<html><body><div class="status">Status: Closed</div></body></html>`,
	}
	for name, html := range pages {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tc := &model.TestCase{ID: "TC-" + name, Steps: []model.Step{{
				Index:          1,
				Description:    "The Issue status should be Open",
				ExpectedResult: "Ticket shows Open",
				Action:         model.ActionAssert,
				KindSource:     "manual",
				Status:         model.StatusPending,
			}}}
			d := session.NewScriptedDriver(&session.Scenario{
				Snapshots: []session.ScriptedSnapshot{{DOMSnapshot: session.DOMSnapshot{URL: "https://example.com/issues/1", HTML: html}}},
			})

			res, err := New(newStore(t), d, Options{}).Run(ctx, tc)
			if name == "missing" {
				assert.ErrorIs(t, err, ErrNoTarget)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, OutcomeComplete, res.Outcome)
			step := res.Record.Case.Steps[0]
			assert.Equal(t, model.StatusSucceeded, step.Status)
			require.Len(t, step.DiscoveredElements, 1)
			assert.Equal(t, model.DiscoveredElement{Strategy: "text", Value: "Open"}, step.DiscoveredElements[0])
		})
	}
}
