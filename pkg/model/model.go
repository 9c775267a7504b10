// Package model defines the test case, step and checkpoint types shared by
// every stage of the casewright pipeline.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ActionKind is the closed set of executable operation categories a step
// can be classified into.
type ActionKind string

const (
	ActionNavigate ActionKind = "Navigate"
	ActionClick    ActionKind = "Click"
	ActionFill     ActionKind = "Fill"
	ActionSelect   ActionKind = "Select"
	ActionCheck    ActionKind = "Check"
	ActionUpload   ActionKind = "Upload"
	ActionAssert   ActionKind = "Assert"
	ActionUnknown  ActionKind = "Unknown"
)

// ActionKinds lists the kinds a step can be executed as, in display order.
var ActionKinds = []ActionKind{
	ActionNavigate, ActionClick, ActionFill, ActionSelect,
	ActionCheck, ActionUpload, ActionAssert,
}

// ParseActionKind resolves a kind name case-insensitively.
func ParseActionKind(s string) (ActionKind, error) {
	for _, k := range append(ActionKinds, ActionUnknown) {
		if strings.EqualFold(string(k), strings.TrimSpace(s)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown action kind %q", s)
}

// StepStatus is the execution status of a step.
type StepStatus string

const (
	StatusPending    StepStatus = "Pending"
	StatusInProgress StepStatus = "InProgress"
	StatusSucceeded  StepStatus = "Succeeded"
	StatusFailed     StepStatus = "Failed"
)

// Terminal reports whether no further transition is allowed within a run.
func (s StepStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// ErrInvalidTransition is returned when a status would move backwards.
var ErrInvalidTransition = errors.New("invalid status transition")

// CanTransition reports whether from -> to is a forward transition.
func CanTransition(from, to StepStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusInProgress
	case StatusInProgress:
		return to == StatusSucceeded || to == StatusFailed
	}
	return false
}

// KindSource values recorded alongside an assigned kind.
const (
	KindSourceManual = "manual"
	KindSourceRule   = "rule:"
)

// DiscoveredElement is a concrete locator that resolved a step's target.
type DiscoveredElement struct {
	Strategy string `yaml:"strategy"       json:"strategy"       jsonschema:"enum=css,enum=xpath,enum=text,enum=label,enum=placeholder,enum=role,enum=testid,enum=url"`
	Value    string `yaml:"value"          json:"value"`
	Role     string `yaml:"role,omitempty" json:"role,omitempty"`
}

func (e DiscoveredElement) String() string {
	if e.Role != "" {
		return fmt.Sprintf("%s=%s (%s)", e.Strategy, e.Value, e.Role)
	}
	return e.Strategy + "=" + e.Value
}

// MethodRef points at a reusable page-object method in the catalog.
type MethodRef struct {
	Reference string `yaml:"reference" json:"reference"`
	Signature string `yaml:"signature" json:"signature"`
}

// Class returns the page-object class of a "Class.method" reference.
func (m MethodRef) Class() string {
	if i := strings.LastIndex(m.Reference, "."); i > 0 {
		return m.Reference[:i]
	}
	return ""
}

// Method returns the method name of a "Class.method" reference.
func (m MethodRef) Method() string {
	return m.Reference[strings.LastIndex(m.Reference, ".")+1:]
}

// Step is one unit of test-case behaviour plus its execution state.
type Step struct {
	Index              int                 `yaml:"index"                         json:"index"`
	Description        string              `yaml:"description"                   json:"description"`
	ExpectedResult     string              `yaml:"expected_result,omitempty"     json:"expectedResult,omitempty"`
	TestData           string              `yaml:"test_data,omitempty"           json:"testData,omitempty"`
	Action             ActionKind          `yaml:"action_kind"                   json:"actionKind"`
	KindSource         string              `yaml:"kind_source,omitempty"         json:"kindSource,omitempty"`
	Status             StepStatus          `yaml:"status"                        json:"status"`
	DiscoveredElements []DiscoveredElement `yaml:"discovered_elements,omitempty" json:"discoveredElements,omitempty"`
	ObservedBehavior   string              `yaml:"observed_behavior,omitempty"   json:"observedBehavior,omitempty"`
	ResolvedMethod     *MethodRef          `yaml:"resolved_method,omitempty"     json:"resolvedMethod,omitempty"`
	Notes              []string            `yaml:"notes,omitempty"               json:"notes,omitempty"`
}

// Transition advances the step status, refusing backward moves.
func (s *Step) Transition(to StepStatus) error {
	if !CanTransition(s.Status, to) {
		return fmt.Errorf("step %d: %s -> %s: %w", s.Index, s.Status, to, ErrInvalidTransition)
	}
	s.Status = to
	return nil
}

// Reopen returns a failed step to Pending for a new run, keeping the failed
// attempt in the notes.
func (s *Step) Reopen(at time.Time) error {
	if s.Status != StatusFailed {
		return fmt.Errorf("step %d: reopen from %s: %w", s.Index, s.Status, ErrInvalidTransition)
	}
	note := fmt.Sprintf("%s reopened after failure", at.UTC().Format(time.RFC3339))
	if s.ObservedBehavior != "" {
		note += ": " + s.ObservedBehavior
	}
	s.Notes = append(s.Notes, note)
	s.Status = StatusPending
	s.DiscoveredElements = nil
	s.ObservedBehavior = ""
	s.ResolvedMethod = nil
	return nil
}

// PrimaryLocator returns the first discovered element, if any.
func (s *Step) PrimaryLocator() (DiscoveredElement, bool) {
	if len(s.DiscoveredElements) == 0 {
		return DiscoveredElement{}, false
	}
	return s.DiscoveredElements[0], true
}

func (s Step) clone() Step {
	c := s
	c.DiscoveredElements = append([]DiscoveredElement(nil), s.DiscoveredElements...)
	c.Notes = append([]string(nil), s.Notes...)
	if s.ResolvedMethod != nil {
		m := *s.ResolvedMethod
		c.ResolvedMethod = &m
	}
	return c
}

// TestCase is a parsed test case with its ordered steps.
type TestCase struct {
	ID            string `yaml:"id"                      json:"id"`
	Name          string `yaml:"name,omitempty"          json:"name,omitempty"`
	Objective     string `yaml:"objective,omitempty"     json:"objective,omitempty"`
	Preconditions string `yaml:"preconditions,omitempty" json:"preconditions,omitempty"`
	Source        string `yaml:"source,omitempty"        json:"source,omitempty"`
	Steps         []Step `yaml:"steps"                   json:"steps"`
}

// Clone returns a deep copy.
func (tc *TestCase) Clone() *TestCase {
	c := *tc
	c.Steps = make([]Step, len(tc.Steps))
	for i, s := range tc.Steps {
		c.Steps[i] = s.clone()
	}
	return &c
}

// Step returns the step with the given index, or nil.
func (tc *TestCase) Step(index int) *Step {
	for i := range tc.Steps {
		if tc.Steps[i].Index == index {
			return &tc.Steps[i]
		}
	}
	return nil
}

// Title is the display name of the case.
func (tc *TestCase) Title() string {
	if tc.Name != "" {
		return tc.Name
	}
	return tc.ID
}

// CaseState summarises the progress of a whole case.
type CaseState string

const (
	StateNotStarted CaseState = "NotStarted"
	StateRunning    CaseState = "Running"
	StateComplete   CaseState = "Complete"
	StateHalted     CaseState = "Halted"
	StateBlocked    CaseState = "Blocked"
)

// State derives the case state from its steps.
func (tc *TestCase) State() CaseState {
	started, done := false, 0
	for _, s := range tc.Steps {
		switch s.Status {
		case StatusFailed:
			return StateHalted
		case StatusSucceeded:
			done++
			started = true
		case StatusInProgress:
			started = true
		}
	}
	if len(tc.Steps) > 0 && done == len(tc.Steps) {
		return StateComplete
	}
	for _, s := range tc.Steps {
		if s.Status != StatusSucceeded && s.Action == ActionUnknown {
			return StateBlocked
		}
	}
	if started {
		return StateRunning
	}
	return StateNotStarted
}

// Progress returns the number of succeeded steps and the total.
func (tc *TestCase) Progress() (done, total int) {
	for _, s := range tc.Steps {
		if s.Status == StatusSucceeded {
			done++
		}
	}
	return done, len(tc.Steps)
}

// CheckpointRecord is the durable state of one case. Revision increases by
// exactly one per successful commit; a never-committed record has revision 0.
type CheckpointRecord struct {
	CaseID    string    `yaml:"case_id"    json:"caseId"`
	Revision  int64     `yaml:"revision"   json:"revision"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updatedAt"`
	Case      TestCase  `yaml:"case"       json:"case"`
}

// NewRecord wraps a freshly parsed case at revision 0.
func NewRecord(tc *TestCase) *CheckpointRecord {
	return &CheckpointRecord{CaseID: tc.ID, Case: *tc.Clone()}
}

// Clone returns a deep copy.
func (r *CheckpointRecord) Clone() *CheckpointRecord {
	c := *r
	c.Case = *r.Case.Clone()
	return &c
}

// ExecutionTrace is the ordered step record handed to the code generator.
type ExecutionTrace struct {
	CaseID        string `json:"caseId"`
	CaseName      string `json:"caseName,omitempty"`
	Objective     string `json:"objective,omitempty"`
	Preconditions string `json:"preconditions,omitempty"`
	Steps         []Step `json:"steps"`
}

// Trace derives the execution trace from the record.
func (r *CheckpointRecord) Trace() ExecutionTrace {
	tc := r.Case.Clone()
	return ExecutionTrace{
		CaseID:        r.CaseID,
		CaseName:      tc.Name,
		Objective:     tc.Objective,
		Preconditions: tc.Preconditions,
		Steps:         tc.Steps,
	}
}

// MethodCatalogEntry describes one reusable page-object method.
type MethodCatalogEntry struct {
	Signature string       `yaml:"signature"          json:"signature"          jsonschema:"required"             validate:"required"`
	Reference string       `yaml:"reference"          json:"reference"          jsonschema:"required"             validate:"required"`
	Kinds     []ActionKind `yaml:"kinds,omitempty"    json:"kinds,omitempty"                                      validate:"dive,oneof=Navigate Click Fill Select Check Upload Assert"`
	Patterns  []string     `yaml:"patterns,omitempty" json:"patterns,omitempty" jsonschema:"description=expr-lang boolean expressions over the step" validate:"dive,required"`
	Args      []string     `yaml:"args,omitempty"     json:"args,omitempty"     jsonschema:"description=argument sources (value|url|target|path)" validate:"dive,oneof=value url target path"`
}
