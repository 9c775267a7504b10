package schema

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadYAMLCase(t *testing.T) {
	doc, err := LoadFile("../../testdata/cases/login.yaml")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if doc.ID != "TC-2001" {
		t.Errorf("id = %q, want TC-2001", doc.ID)
	}
	if len(doc.Steps) != 5 {
		t.Fatalf("steps = %d, want 5", len(doc.Steps))
	}
	if doc.Steps[1].TestData != "alice" {
		t.Errorf("steps[1].testData = %q", doc.Steps[1].TestData)
	}
}

func TestLoadJSONCase(t *testing.T) {
	doc, err := LoadFile("../../testdata/cases/login.json")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if doc.Steps[0].Index != 2 || doc.Steps[1].Index != 1 {
		t.Errorf("indices kept in document order, got %d,%d", doc.Steps[0].Index, doc.Steps[1].Index)
	}
}

func TestLoadXMLCase(t *testing.T) {
	doc, err := LoadFile("../../testdata/cases/issue-status.xml")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if doc.ID != "TC-1042" || doc.Name != "Issue status is shown" {
		t.Errorf("identity = %q/%q", doc.ID, doc.Name)
	}
	if len(doc.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(doc.Steps))
	}
	if !strings.Contains(doc.Steps[0].Description, "<p>Open&nbsp;https://example.com/issues/42</p>") {
		t.Errorf("CDATA content not preserved: %q", doc.Steps[0].Description)
	}
	if doc.Steps[1].Index != 2 {
		t.Errorf("steps[1].index = %d", doc.Steps[1].Index)
	}
	if doc.Steps[1].ExpectedResult != `Status badge reads "Open"` {
		t.Errorf("expected = %q", doc.Steps[1].ExpectedResult)
	}
}

func TestLoadXMLPositionalIndex(t *testing.T) {
	x := `<testcases><testcase><id>C-7</id><title>Search</title><steps>
<step><actions>Open https://example.com</actions><expected>Home</expected></step>
<step><actions>Click 'Search'</actions><data>books</data></step>
</steps></testcase></testcases>`
	doc, err := Load(strings.NewReader(x), FormatXML)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.ID != "C-7" || doc.Name != "Search" {
		t.Errorf("identity = %q/%q", doc.ID, doc.Name)
	}
	if doc.Steps[0].Index != 1 || doc.Steps[1].Index != 2 {
		t.Errorf("positional indices = %d,%d", doc.Steps[0].Index, doc.Steps[1].Index)
	}
	if doc.Steps[1].TestData != "books" || doc.Steps[0].ExpectedResult != "Home" {
		t.Errorf("aliases not applied: %+v", doc.Steps)
	}
}

func TestLoadXMLRejectsMultipleCases(t *testing.T) {
	x := `<testcases><testcase id="a"/><testcase id="b"/></testcases>`
	if _, err := Load(strings.NewReader(x), FormatXML); err == nil {
		t.Fatal("expected error for two cases in one document")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	if _, err := LoadFile("../../testdata/invalid/unknown-field.yaml"); err == nil {
		t.Fatal("expected unknown field error")
	}
	j := `{"id":"x","steps":[{"index":1,"description":"a","owner":"bob"}]}`
	if _, err := Load(strings.NewReader(j), FormatJSON); err == nil {
		t.Fatal("expected unknown field error for JSON")
	}
}

func TestValidateFile(t *testing.T) {
	doc, errs := ValidateFile("../../testdata/cases/login.yaml")
	if HasErrors(errs) {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if doc == nil {
		t.Fatal("nil document")
	}
}

func TestValidateDocumentReportsMissingSteps(t *testing.T) {
	errs := ValidateDocument(&CaseDocument{ID: "x"})
	if !HasErrors(errs) {
		t.Fatal("expected errors for a case without steps")
	}
	var semantic, domain bool
	for _, e := range errs {
		semantic = semantic || e.Phase == "semantic"
		domain = domain || e.Phase == "domain"
	}
	if !semantic || !domain {
		t.Errorf("want semantic and domain errors, got %v", errs)
	}
}

func TestValidateDocumentWarnsOnBareStep(t *testing.T) {
	errs := ValidateDocument(&CaseDocument{ID: "x", Steps: []StepDocument{{Index: 1, Description: "Click 'Go'"}}})
	if HasErrors(errs) {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(errs) != 1 || errs[0].Severity != "warning" {
		t.Fatalf("want one warning, got %v", errs)
	}
}

func TestCatalogRoundTripAndValidate(t *testing.T) {
	c, err := LoadCatalogFile("../../testdata/catalog.yaml")
	if err != nil {
		t.Fatalf("LoadCatalogFile: %v", err)
	}
	if len(c.Methods) != 6 {
		t.Fatalf("methods = %d, want 6", len(c.Methods))
	}
	if errs := ValidateCatalog(c); HasErrors(errs) {
		t.Fatalf("catalog invalid: %v", errs)
	}

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := SaveCatalogFile(path, c); err != nil {
		t.Fatalf("SaveCatalogFile: %v", err)
	}
	again, err := LoadCatalogFile(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Methods[2].Reference != "LoginPage.enterUsername" {
		t.Errorf("methods[2] = %q", again.Methods[2].Reference)
	}
}

func TestValidateCatalogDuplicateAndBadKind(t *testing.T) {
	c, err := LoadCatalog(strings.NewReader(`methods:
  - {signature: a, reference: P.a, kinds: [Click]}
  - {signature: b, reference: P.a, kinds: [Hover]}
`))
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	errs := ValidateCatalog(c)
	var dup, kind bool
	for _, e := range errs {
		dup = dup || strings.Contains(e.Message, "duplicate reference")
		kind = kind || strings.Contains(e.Message, "oneof")
	}
	if !dup || !kind {
		t.Errorf("want duplicate and oneof errors, got %v", errs)
	}
}

func TestMissingCatalogIsEmpty(t *testing.T) {
	c, err := LoadCatalogFile(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("LoadCatalogFile: %v", err)
	}
	if len(c.Methods) != 0 {
		t.Errorf("methods = %d", len(c.Methods))
	}
}

func TestGenerateJSONSchema(t *testing.T) {
	for name, gen := range map[string]func() ([]byte, error){
		"case":    GenerateJSONSchema,
		"catalog": GenerateCatalogJSONSchema,
	} {
		data, err := gen()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("%s: invalid JSON: %v", name, err)
		}
		if _, ok := m["$id"]; !ok {
			t.Errorf("%s: schema has no $id", name)
		}
	}
}

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}
