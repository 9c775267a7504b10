package parser

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ormasoftchile/casewright/pkg/model"
	"github.com/ormasoftchile/casewright/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseXMLStripsMarkup(t *testing.T) {
	tc, err := ParseFile("../../testdata/cases/issue-status.xml")
	require.NoError(t, err)

	assert.Equal(t, "TC-1042", tc.ID)
	assert.Equal(t, "Check that a new issue is Open.", tc.Objective)
	require.Len(t, tc.Steps, 2)
	assert.Equal(t, "Open https://example.com/issues/42", tc.Steps[0].Description)
	assert.Equal(t, "The Issue status should be Open", tc.Steps[1].Description)
	for _, s := range tc.Steps {
		assert.Equal(t, model.StatusPending, s.Status)
		assert.Equal(t, model.ActionUnknown, s.Action)
	}
}

func TestParseOrdersByIndex(t *testing.T) {
	tc, err := ParseFile("../../testdata/cases/login.json")
	require.NoError(t, err)
	require.Len(t, tc.Steps, 2)
	assert.Equal(t, 1, tc.Steps[0].Index)
	assert.Equal(t, 2, tc.Steps[1].Index)
	assert.Equal(t, "Tick the Remember me checkbox", tc.Steps[1].Description)
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := ParseFile("../../testdata/invalid/duplicate-index.yaml")
	require.Error(t, err)

	var bad *MalformedCaseError
	require.True(t, errors.As(err, &bad))
	assert.Equal(t, "TC-9001", bad.CaseID)
	require.Len(t, bad.Problems, 2)
	assert.Equal(t, 2, bad.Problems[0].Position)
	assert.Contains(t, bad.Problems[0].Message, "duplicate index 1")
	assert.Equal(t, 3, bad.Problems[1].Position)
	assert.Contains(t, bad.Problems[1].Message, "empty description")
}

func TestParseRejectsGapsAndMissingIndex(t *testing.T) {
	doc := &schema.CaseDocument{ID: "gap", Steps: []schema.StepDocument{
		{Index: 1, Description: "Open https://example.com"},
		{Index: 3, Description: "Click 'Save'"},
	}}
	_, err := Parse(doc)
	var bad *MalformedCaseError
	require.ErrorAs(t, err, &bad)
	assert.Contains(t, bad.Error(), "index 2 missing")

	doc.Steps[1].Index = 0
	_, err = Parse(doc)
	require.ErrorAs(t, err, &bad)
	assert.Contains(t, bad.Error(), "missing or non-positive index")
}

func TestParseRejectsEmptyCase(t *testing.T) {
	_, err := Parse(&schema.CaseDocument{})
	var bad *MalformedCaseError
	require.ErrorAs(t, err, &bad)
	assert.NotEmpty(t, bad.Problems)
}

func TestStripMarkup(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain   text", "plain text"},
		{"<p>Click <b>Save</b></p>", "Click Save"},
		{"line one<br/>line two", "line one line two"},
		{"&lt;p&gt;escaped&lt;/p&gt;", "escaped"},
		{"&amp;lt;b&amp;gt;double&amp;lt;/b&amp;gt;", "double"},
		{"Enter <username> in the field", "Enter <username> in the field"},
		{"<p>Enter <username> and <b>submit</b></p>", "Enter <username> and submit"},
		{"Tom &amp; Jerry", "Tom & Jerry"},
		{"<![CDATA[<i>x</i>]]>", "x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripMarkup(tt.in), tt.in)
	}
}

// Any permutation of 1..n parses back into index order.
func TestParseOrderingRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 30).Draw(rt, "n")
		perm := rapid.Permutation(indices(n)).Draw(rt, "perm")

		doc := &schema.CaseDocument{ID: "prop"}
		for _, idx := range perm {
			doc.Steps = append(doc.Steps, schema.StepDocument{Index: idx, Description: fmt.Sprintf("step %d", idx)})
		}
		tc, err := Parse(doc)
		if err != nil {
			rt.Fatalf("Parse: %v", err)
		}
		for i, s := range tc.Steps {
			if s.Index != i+1 || s.Description != fmt.Sprintf("step %d", i+1) {
				rt.Fatalf("position %d holds index %d (%q)", i, s.Index, s.Description)
			}
		}
	})
}

func indices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}
