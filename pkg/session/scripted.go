package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ormasoftchile/casewright/pkg/model"
	"gopkg.in/yaml.v3"
)

// Scenario is a recorded session: the actions in the order they were
// performed and the page snapshots taken along the way.
type Scenario struct {
	Actions   []ScriptedAction   `yaml:"actions"`
	Snapshots []ScriptedSnapshot `yaml:"snapshots,omitempty"`
}

// ScriptedAction is one pre-recorded action and its outcome. A non-empty
// Error replays a failure.
type ScriptedAction struct {
	Op       string                    `yaml:"op"`
	URL      string                    `yaml:"url,omitempty"`
	Target   string                    `yaml:"target,omitempty"`
	Value    string                    `yaml:"value,omitempty"`
	Locators []model.DiscoveredElement `yaml:"locators,omitempty"`
	Observed string                    `yaml:"observed,omitempty"`
	Error    string                    `yaml:"error,omitempty"`
}

// ScriptedSnapshot is the page state after the first After actions.
type ScriptedSnapshot struct {
	After       int `yaml:"after"`
	DOMSnapshot `yaml:",inline"`
}

// LoadScenario reads and parses a scenario YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML bytes.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if len(s.Actions) == 0 && len(s.Snapshots) == 0 {
		return nil, fmt.Errorf("scenario must have at least one action or snapshot")
	}
	for i, a := range s.Actions {
		switch a.Op {
		case "navigate", "click", "fill", "select", "check", "upload":
		default:
			return nil, fmt.Errorf("scenario action %d: unknown op %q", i+1, a.Op)
		}
	}
	return &s, nil
}

// ErrScenarioExhausted is returned when an action has no recorded match.
var ErrScenarioExhausted = errors.New("no matching scenario action")

// ScriptedDriver replays a scenario. Actions are consumed strictly in order
// and must match the recorded op and target; anything else fails closed.
type ScriptedDriver struct {
	scenario *Scenario
	mu       sync.Mutex
	next     int
	// Calls records every dispatched op, for assertions in tests.
	Calls []string
}

// NewScriptedDriver creates a driver from a loaded scenario.
func NewScriptedDriver(s *Scenario) *ScriptedDriver {
	return &ScriptedDriver{scenario: s}
}

// Consumed returns how many recorded actions have been replayed.
func (d *ScriptedDriver) Consumed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.next
}

// Skip marks the first n actions as already performed, for resuming a case
// whose earlier steps are committed.
func (d *ScriptedDriver) Skip(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next = min(n, len(d.scenario.Actions))
}

func (d *ScriptedDriver) Navigate(_ context.Context, url string) (Result, error) {
	return d.replay("navigate", url, "")
}

func (d *ScriptedDriver) Click(_ context.Context, t Target) (Result, error) {
	return d.replay("click", t.key(), "")
}

func (d *ScriptedDriver) Fill(_ context.Context, t Target, value string) (Result, error) {
	return d.replay("fill", t.key(), value)
}

func (d *ScriptedDriver) Select(_ context.Context, t Target, value string) (Result, error) {
	return d.replay("select", t.key(), value)
}

func (d *ScriptedDriver) Check(_ context.Context, t Target) (Result, error) {
	return d.replay("check", t.key(), "")
}

func (d *ScriptedDriver) Upload(_ context.Context, t Target, path string) (Result, error) {
	return d.replay("upload", t.key(), path)
}

// Snapshot returns the latest recorded snapshot taken at or before the
// current position.
func (d *ScriptedDriver) Snapshot(_ context.Context) (DOMSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, "snapshot")

	best := -1
	for i, s := range d.scenario.Snapshots {
		if s.After <= d.next && (best < 0 || s.After >= d.scenario.Snapshots[best].After) {
			best = i
		}
	}
	if best < 0 {
		return DOMSnapshot{}, fmt.Errorf("scenario: no snapshot recorded after %d actions", d.next)
	}
	return d.scenario.Snapshots[best].DOMSnapshot, nil
}

func (d *ScriptedDriver) Close() error { return nil }

func (d *ScriptedDriver) replay(op, target, value string) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, op+" "+target)

	if d.next >= len(d.scenario.Actions) {
		return Result{}, fmt.Errorf("scenario: %s %q: %w", op, target, ErrScenarioExhausted)
	}
	a := d.scenario.Actions[d.next]
	if a.Op != op || !strings.EqualFold(a.key(), target) {
		return Result{}, fmt.Errorf("scenario: action %d is %s %q, got %s %q: %w",
			d.next+1, a.Op, a.key(), op, target, ErrScenarioExhausted)
	}
	if a.Value != "" && value != "" && a.Value != value {
		return Result{}, fmt.Errorf("scenario: action %d expects value %q, got %q: %w",
			d.next+1, a.Value, value, ErrScenarioExhausted)
	}
	d.next++
	if a.Error != "" {
		return Result{}, errors.New(a.Error)
	}
	return Result{Locators: append([]model.DiscoveredElement(nil), a.Locators...), Observed: a.Observed}, nil
}

func (a ScriptedAction) key() string {
	if a.Op == "navigate" {
		return a.URL
	}
	return a.Target
}

func (t Target) key() string {
	if t.Label != "" {
		return t.Label
	}
	return t.Selector
}
