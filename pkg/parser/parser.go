// Package parser turns a loaded case document into an ordered TestCase.
package parser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ormasoftchile/casewright/pkg/model"
	"github.com/ormasoftchile/casewright/pkg/schema"
)

// Problem is one reason a case document was rejected.
type Problem struct {
	Position int    `json:"position"` // 1-based position in the document, 0 for case-level problems
	Index    int    `json:"index,omitempty"`
	Message  string `json:"message"`
}

func (p Problem) String() string {
	if p.Position == 0 {
		return p.Message
	}
	return fmt.Sprintf("step at position %d: %s", p.Position, p.Message)
}

// MalformedCaseError rejects a whole case before any execution.
type MalformedCaseError struct {
	CaseID   string
	Problems []Problem
}

func (e *MalformedCaseError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.String()
	}
	return fmt.Sprintf("malformed case %q: %s", e.CaseID, strings.Join(msgs, "; "))
}

var validate = validator.New()

// Parse strips markup from every free-text field, orders the steps by index
// and rejects documents whose indices are not exactly 1..n or whose steps
// lack a description. All steps start Pending and Unknown.
func Parse(doc *schema.CaseDocument) (*model.TestCase, error) {
	bad := &MalformedCaseError{CaseID: doc.ID}
	if err := validate.Struct(doc); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrs {
				bad.Problems = append(bad.Problems, Problem{Message: fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())})
			}
		} else {
			return nil, fmt.Errorf("validate case: %w", err)
		}
	}

	tc := &model.TestCase{
		ID:            strings.TrimSpace(doc.ID),
		Name:          StripMarkup(doc.Name),
		Objective:     StripMarkup(doc.Objective),
		Preconditions: StripMarkup(doc.Preconditions),
	}

	seen := make(map[int]int)
	for i, sd := range doc.Steps {
		pos := i + 1
		step := model.Step{
			Index:          sd.Index,
			Description:    StripMarkup(sd.Description),
			ExpectedResult: StripMarkup(sd.ExpectedResult),
			TestData:       StripMarkup(sd.TestData),
			Action:         model.ActionUnknown,
			Status:         model.StatusPending,
		}
		switch prev, dup := seen[sd.Index]; {
		case sd.Index <= 0:
			bad.Problems = append(bad.Problems, Problem{Position: pos, Index: sd.Index, Message: "missing or non-positive index"})
		case dup:
			bad.Problems = append(bad.Problems, Problem{Position: pos, Index: sd.Index, Message: fmt.Sprintf("duplicate index %d (also at position %d)", sd.Index, prev)})
		default:
			seen[sd.Index] = pos
		}
		if step.Description == "" {
			bad.Problems = append(bad.Problems, Problem{Position: pos, Index: sd.Index, Message: "empty description"})
		}
		tc.Steps = append(tc.Steps, step)
	}

	if len(bad.Problems) == 0 {
		for want := 1; want <= len(doc.Steps); want++ {
			if _, ok := seen[want]; !ok {
				bad.Problems = append(bad.Problems, Problem{Message: fmt.Sprintf("index %d missing: indices must run 1..%d", want, len(doc.Steps))})
			}
		}
	}
	if len(bad.Problems) > 0 {
		return nil, bad
	}

	sort.SliceStable(tc.Steps, func(i, j int) bool { return tc.Steps[i].Index < tc.Steps[j].Index })
	return tc, nil
}

// ParseFile loads and parses a case file in one call.
func ParseFile(path string) (*model.TestCase, error) {
	doc, err := schema.LoadFile(path)
	if err != nil {
		return nil, err
	}
	tc, err := Parse(doc)
	if err != nil {
		return nil, err
	}
	tc.Source = path
	return tc, nil
}
