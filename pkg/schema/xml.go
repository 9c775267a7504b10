package schema

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// xmlCase mirrors the test-management XML export. Free-text fields are kept as
// raw inner XML so embedded formatting survives until the parser strips it.
type xmlCase struct {
	XMLName       xml.Name
	IDAttr        string    `xml:"id,attr"`
	NameAttr      string    `xml:"name,attr"`
	ID            string    `xml:"id"`
	Name          string    `xml:"name"`
	Title         string    `xml:"title"`
	Objective     xmlText   `xml:"objective"`
	Summary       xmlText   `xml:"summary"`
	Preconditions xmlText   `xml:"preconditions"`
	Steps         []xmlStep `xml:"steps>step"`
	Cases         []xmlCase `xml:"testcase"`
}

type xmlStep struct {
	IndexAttr       string  `xml:"index,attr"`
	Index           string  `xml:"index"`
	StepNumber      string  `xml:"step_number"`
	Description     xmlText `xml:"description"`
	Actions         xmlText `xml:"actions"`
	ExpectedResult  xmlText `xml:"expectedresult"`
	Expected        xmlText `xml:"expected"`
	ExpectedResults xmlText `xml:"expectedresults"`
	ExpectedUnder   xmlText `xml:"expected_result"`
	TestData        xmlText `xml:"testdata"`
	Data            xmlText `xml:"data"`
	TestDataUnder   xmlText `xml:"test_data"`
}

type xmlText struct {
	Inner string `xml:",innerxml"`
}

func (t xmlText) String() string {
	s := strings.TrimSpace(t.Inner)
	for strings.HasPrefix(s, "<![CDATA[") && strings.HasSuffix(s, "]]>") {
		s = strings.TrimSpace(s[len("<![CDATA[") : len(s)-len("]]>")])
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func loadXML(r io.Reader) (*CaseDocument, error) {
	var root xmlCase
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("decode case xml: %w", err)
	}
	c := root
	if strings.EqualFold(root.XMLName.Local, "testcases") {
		if len(root.Cases) != 1 {
			return nil, fmt.Errorf("decode case xml: expected exactly one <testcase>, found %d", len(root.Cases))
		}
		c = root.Cases[0]
	}

	doc := &CaseDocument{
		ID:            firstNonEmpty(c.IDAttr, c.ID),
		Name:          firstNonEmpty(c.NameAttr, c.Name, c.Title),
		Objective:     firstNonEmpty(c.Objective.String(), c.Summary.String()),
		Preconditions: c.Preconditions.String(),
	}

	indexed := false
	for _, s := range c.Steps {
		if firstNonEmpty(s.IndexAttr, s.Index, s.StepNumber) != "" {
			indexed = true
			break
		}
	}
	for i, s := range c.Steps {
		sd := StepDocument{
			Description:    firstNonEmpty(s.Description.String(), s.Actions.String()),
			ExpectedResult: firstNonEmpty(s.ExpectedResult.String(), s.Expected.String(), s.ExpectedResults.String(), s.ExpectedUnder.String()),
			TestData:       firstNonEmpty(s.TestData.String(), s.Data.String(), s.TestDataUnder.String()),
		}
		if !indexed {
			// Exports without explicit numbering are ordered by position.
			sd.Index = i + 1
		} else if raw := firstNonEmpty(s.IndexAttr, s.Index, s.StepNumber); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("decode case xml: step %d: index %q is not a number", i+1, raw)
			}
			sd.Index = n
		}
		doc.Steps = append(doc.Steps, sd)
	}
	return doc, nil
}
