// Package resolver matches executed steps against the page-object method
// catalog. It never modifies the catalog: steps nothing matches are reported
// as NeedsNewMethod proposals for a human to accept.
package resolver

import (
	"fmt"
	"net/url"
	"slices"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/ormasoftchile/casewright/pkg/classify"
	"github.com/ormasoftchile/casewright/pkg/model"
	"github.com/ormasoftchile/casewright/pkg/phrase"
)

// Resolution is the outcome for one step: exactly one of Method and
// NeedsNew is set.
type Resolution struct {
	Index    int              `json:"index"`
	Method   *model.MethodRef `json:"method,omitempty"`
	NeedsNew *NeedsNewMethod  `json:"needsNew,omitempty"`
}

// NeedsNewMethod is a proposal for a catalog entry that would cover a step.
type NeedsNewMethod struct {
	Index     int                     `json:"index"`
	Kind      model.ActionKind        `json:"kind"`
	Signature string                  `json:"signature"`
	Reference string                  `json:"reference"`
	Locator   model.DiscoveredElement `json:"locator"`
	// Partial lists catalog references that matched the kind or the
	// patterns but not both.
	Partial []string `json:"partial,omitempty"`
}

func (n *NeedsNewMethod) String() string {
	s := fmt.Sprintf("step %d needs a new method: %s (%s)", n.Index, n.Reference, n.Signature)
	if len(n.Partial) > 0 {
		s += "; partial matches: " + strings.Join(n.Partial, ", ")
	}
	return s
}

// Entry renders the proposal as a catalog entry a human can add.
func (n *NeedsNewMethod) Entry() model.MethodCatalogEntry {
	e := model.MethodCatalogEntry{
		Signature: n.Signature,
		Reference: n.Reference,
		Kinds:     []model.ActionKind{n.Kind},
		Args:      argsFor(n.Kind),
	}
	if n.Locator.Value != "" {
		e.Patterns = []string{fmt.Sprintf("locator == %q", n.Locator.Value)}
	}
	return e
}

type compiled struct {
	entry    model.MethodCatalogEntry
	patterns []*vm.Program
}

// Catalog is a compiled, read-only method catalog.
type Catalog struct {
	entries []compiled
}

// Compile compiles every pattern. A pattern that does not compile to a
// boolean expression is an error.
func Compile(entries []model.MethodCatalogEntry) (*Catalog, error) {
	c := &Catalog{}
	env := Env(model.Step{})
	for _, e := range entries {
		ce := compiled{entry: e}
		for _, p := range e.Patterns {
			prog, err := expr.Compile(p, expr.Env(env), expr.AsBool())
			if err != nil {
				return nil, fmt.Errorf("catalog entry %s: pattern %q: %w", e.Reference, p, err)
			}
			ce.patterns = append(ce.patterns, prog)
		}
		c.entries = append(c.entries, ce)
	}
	return c, nil
}

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.entries) }

// Env is the expression environment patterns are evaluated against.
func Env(s model.Step) map[string]any {
	primary, _ := s.PrimaryLocator()
	locators := make([]string, len(s.DiscoveredElements))
	for i, e := range s.DiscoveredElements {
		locators[i] = e.Value
	}
	return map[string]any{
		"kind":        string(s.Action),
		"description": s.Description,
		"testData":    s.TestData,
		"expected":    s.ExpectedResult,
		"strategy":    primary.Strategy,
		"locator":     primary.Value,
		"role":        primary.Role,
		"locators":    locators,
	}
}

// Resolve matches one step. Among full matches the entry with the most
// patterns wins; ties keep catalog order.
func (c *Catalog) Resolve(s model.Step) Resolution {
	env := Env(s)
	best := -1
	var partial []string
	for i, ce := range c.entries {
		kindOK := len(ce.entry.Kinds) == 0 || slices.Contains(ce.entry.Kinds, s.Action)
		patternsOK := true
		for _, prog := range ce.patterns {
			if !eval(prog, env) {
				patternsOK = false
				break
			}
		}
		switch {
		case kindOK && patternsOK:
			if best < 0 || len(ce.patterns) > len(c.entries[best].patterns) {
				best = i
			}
		case kindOK && len(ce.patterns) > 0, patternsOK && len(ce.patterns) > 0:
			partial = append(partial, ce.entry.Reference)
		}
	}
	if best >= 0 {
		e := c.entries[best].entry
		return Resolution{Index: s.Index, Method: &model.MethodRef{Reference: e.Reference, Signature: e.Signature}}
	}
	return Resolution{Index: s.Index, NeedsNew: propose(s, partial)}
}

func eval(prog *vm.Program, env map[string]any) bool {
	out, err := expr.Run(prog, env)
	if err != nil {
		return false
	}
	b, _ := out.(bool)
	return b
}

// ResolveRecord resolves every succeeded step and returns a copy of the
// record with ResolvedMethod set where a method matched. Steps that need a
// new method are left unresolved.
func (c *Catalog) ResolveRecord(rec *model.CheckpointRecord) (*model.CheckpointRecord, []Resolution) {
	out := rec.Clone()
	var res []Resolution
	for i := range out.Case.Steps {
		s := &out.Case.Steps[i]
		if s.Status != model.StatusSucceeded {
			continue
		}
		r := c.Resolve(*s)
		s.ResolvedMethod = r.Method
		res = append(res, r)
	}
	return out, res
}

// Pending returns the proposals among resolutions, in step order.
func Pending(res []Resolution) []*NeedsNewMethod {
	var out []*NeedsNewMethod
	for _, r := range res {
		if r.NeedsNew != nil {
			out = append(out, r.NeedsNew)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

var kindVerbs = map[model.ActionKind]string{
	model.ActionNavigate: "open",
	model.ActionClick:    "click",
	model.ActionFill:     "enter",
	model.ActionSelect:   "select",
	model.ActionCheck:    "toggle",
	model.ActionUpload:   "upload to",
	model.ActionAssert:   "verify",
}

var roleNouns = map[string]string{
	"textbox":  "field",
	"combobox": "dropdown",
	"document": "",
}

func argsFor(kind model.ActionKind) []string {
	switch kind {
	case model.ActionNavigate:
		return []string{"url"}
	case model.ActionFill, model.ActionSelect:
		return []string{"value"}
	case model.ActionUpload:
		return []string{"path"}
	case model.ActionAssert:
		return []string{"target"}
	}
	return nil
}

// propose derives a signature and reference from the step text and its
// primary locator.
func propose(s model.Step, partial []string) *NeedsNewMethod {
	primary, _ := s.PrimaryLocator()
	p := classify.ParamsFor(s)

	subject := p.Target
	if s.Action == model.ActionNavigate {
		subject = pageName(p.URL)
	}
	if subject == "" {
		subject = primary.Value
	}
	role := p.Role
	if role == "" {
		role = primary.Role
	}
	if n, ok := roleNouns[role]; ok {
		role = n
	}
	signature := strings.TrimSpace(kindVerbs[s.Action] + " " + strings.ToLower(subject))
	if role != "" && s.Action != model.ActionNavigate && !strings.HasSuffix(signature, " "+role) {
		signature += " " + role
	}

	class := "Page"
	if len(partial) > 0 {
		if c := (model.MethodRef{Reference: partial[0]}).Class(); c != "" {
			class = c
		}
	}
	return &NeedsNewMethod{
		Index:     s.Index,
		Kind:      s.Action,
		Signature: signature,
		Reference: class + "." + phrase.Identifier(signature),
		Locator:   primary,
		Partial:   partial,
	}
}

// pageName turns a URL into a short page name ("/issues/new" -> "issues new page").
func pageName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || raw == "" {
		return ""
	}
	parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' || r == '-' || r == '_' })
	if len(parts) == 0 {
		return u.Hostname() + " home page"
	}
	return strings.Join(parts, " ") + " page"
}
