// Package classify maps steps to executable action kinds using an ordered
// list of pattern rules.
package classify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/ormasoftchile/casewright/pkg/model"
)

// Match reports which rule assigned a kind. Rule is empty for Unknown.
type Match struct {
	Kind model.ActionKind `json:"kind"`
	Rule string           `json:"rule,omitempty"`
}

// Classifier holds an immutable rule list.
type Classifier struct {
	rules []Rule
}

// New returns a classifier that evaluates the extra rules before the
// built-in ones.
func New(extra ...Rule) *Classifier {
	rules := append(append([]Rule(nil), extra...), DefaultRules()...)
	return &Classifier{rules: rules}
}

// Rules returns the rules in evaluation order.
func (c *Classifier) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}

// Classify returns the kind of the first matching rule, or Unknown.
func (c *Classifier) Classify(s model.Step) model.ActionKind {
	return c.Explain(s).Kind
}

// Explain is Classify plus the name of the rule that matched.
func (c *Classifier) Explain(s model.Step) Match {
	for _, r := range c.rules {
		if r.Match(s) {
			return Match{Kind: r.Kind, Rule: r.Name}
		}
	}
	return Match{Kind: model.ActionUnknown}
}

// ClassificationAmbiguousError lists steps that no rule matched. The case is
// blocked until a human assigns their kinds.
type ClassificationAmbiguousError struct {
	CaseID  string
	Indices []int
}

func (e *ClassificationAmbiguousError) Error() string {
	idx := make([]string, len(e.Indices))
	for i, n := range e.Indices {
		idx[i] = fmt.Sprint(n)
	}
	return fmt.Sprintf("case %q: steps [%s] could not be classified; assign a kind manually", e.CaseID, strings.Join(idx, ", "))
}

// ClassifyCase assigns kinds to every pending step that was not classified
// by a human. It returns a ClassificationAmbiguousError naming every step
// left Unknown; the kinds that did match are still assigned.
func (c *Classifier) ClassifyCase(tc *model.TestCase) error {
	for i := range tc.Steps {
		s := &tc.Steps[i]
		if s.KindSource == model.KindSourceManual || s.Status != model.StatusPending {
			continue
		}
		m := c.Explain(*s)
		s.Action = m.Kind
		s.KindSource = ""
		if m.Rule != "" {
			s.KindSource = model.KindSourceRule + m.Rule
		}
	}
	return Unresolved(tc)
}

// Unresolved returns a ClassificationAmbiguousError for the unfinished
// Unknown steps of tc, or nil.
func Unresolved(tc *model.TestCase) error {
	var idx []int
	for _, s := range tc.Steps {
		if s.Action == model.ActionUnknown && s.Status != model.StatusSucceeded {
			idx = append(idx, s.Index)
		}
	}
	if len(idx) == 0 {
		return nil
	}
	sort.Ints(idx)
	return &ClassificationAmbiguousError{CaseID: tc.ID, Indices: idx}
}

// Assign records a human decision for one step.
func Assign(tc *model.TestCase, index int, kind model.ActionKind) error {
	s := tc.Step(index)
	if s == nil {
		return fmt.Errorf("case %q has no step %d", tc.ID, index)
	}
	if kind == model.ActionUnknown {
		return fmt.Errorf("step %d: cannot assign %s", index, kind)
	}
	if s.Status != model.StatusPending && s.Status != model.StatusFailed {
		return fmt.Errorf("step %d is %s; only pending or failed steps can be reclassified", index, s.Status)
	}
	s.Action = kind
	s.KindSource = model.KindSourceManual
	return nil
}

// exprEnv is the environment configured rules are compiled against.
func exprEnv(s model.Step) map[string]any {
	return map[string]any{
		"description": s.Description,
		"testData":    s.TestData,
		"expected":    s.ExpectedResult,
		"index":       s.Index,
	}
}

// ExprRule compiles a configured rule whose predicate is an expr-lang
// boolean expression over description, testData, expected and index.
func ExprRule(name string, kind model.ActionKind, when string) (Rule, error) {
	if kind == model.ActionUnknown {
		return Rule{}, fmt.Errorf("rule %q: kind must not be %s", name, kind)
	}
	prog, err := expr.Compile(when, expr.Env(exprEnv(model.Step{})), expr.AsBool())
	if err != nil {
		return Rule{}, fmt.Errorf("rule %q: compile %q: %w", name, when, err)
	}
	return Rule{Name: name, Kind: kind, Match: func(s model.Step) bool {
		return runBool(prog, exprEnv(s))
	}}, nil
}

func runBool(prog *vm.Program, env map[string]any) bool {
	out, err := expr.Run(prog, env)
	if err != nil {
		return false
	}
	b, _ := out.(bool)
	return b
}
