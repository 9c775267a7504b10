package resolver

import (
	"path/filepath"
	"testing"

	"github.com/ormasoftchile/casewright/pkg/model"
	"github.com/ormasoftchile/casewright/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureCatalog(t *testing.T) *Catalog {
	t.Helper()
	cat, err := schema.LoadCatalogFile(filepath.Join("..", "..", "testdata", "catalog.yaml"))
	require.NoError(t, err)
	c, err := Compile(cat.Methods)
	require.NoError(t, err)
	require.Equal(t, 6, c.Len())
	return c
}

func step(index int, kind model.ActionKind, desc, data string, loc model.DiscoveredElement) model.Step {
	return model.Step{
		Index: index, Description: desc, TestData: data, Action: kind,
		Status: model.StatusSucceeded, DiscoveredElements: []model.DiscoveredElement{loc},
	}
}

func TestResolveReusesCatalogMethods(t *testing.T) {
	c := fixtureCatalog(t)
	tests := []struct {
		name string
		step model.Step
		want string
	}{
		{"most specific navigate wins", step(1, model.ActionNavigate, "Open https://example.com/login", "",
			model.DiscoveredElement{Strategy: "url", Value: "https://example.com/login"}), "LoginPage.open"},
		{"generic navigate", step(1, model.ActionNavigate, "Open https://example.com/issues", "",
			model.DiscoveredElement{Strategy: "url", Value: "https://example.com/issues"}), "BasePage.goto"},
		{"fill username", step(2, model.ActionFill, "Enter the username in the 'Username' field", "alice",
			model.DiscoveredElement{Strategy: "css", Value: "#username"}), "LoginPage.enterUsername"},
		{"fill password", step(3, model.ActionFill, "Type the password into the 'Password' field", "s3cret",
			model.DiscoveredElement{Strategy: "css", Value: "#password"}), "LoginPage.enterPassword"},
		{"click", step(4, model.ActionClick, "Click the 'Sign in' button", "",
			model.DiscoveredElement{Strategy: "xpath", Value: `//button[normalize-space(.)="Sign in"]`, Role: "button"}), "LoginPage.submit"},
		{"assert by role", step(5, model.ActionAssert, `Verify the "Issues" link is visible`, "",
			model.DiscoveredElement{Strategy: "css", Value: "#nav-issues", Role: "link"}), "NavBar.linkVisible"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := c.Resolve(tt.step)
			require.Nil(t, r.NeedsNew)
			require.NotNil(t, r.Method)
			assert.Equal(t, tt.want, r.Method.Reference)
			assert.Equal(t, tt.step.Index, r.Index)
		})
	}
}

func TestResolveProposesNewMethod(t *testing.T) {
	c := fixtureCatalog(t)

	r := c.Resolve(step(2, model.ActionFill, "Enter the email in the 'Email' field", "a@x.test",
		model.DiscoveredElement{Strategy: "css", Value: "#email", Role: "textbox"}))
	require.Nil(t, r.Method)
	require.NotNil(t, r.NeedsNew)
	n := r.NeedsNew
	assert.Equal(t, "enter email field", n.Signature)
	assert.Equal(t, "LoginPage.enterEmailField", n.Reference)
	assert.Equal(t, []string{"LoginPage.enterUsername", "LoginPage.enterPassword"}, n.Partial)
	assert.Equal(t, "#email", n.Locator.Value)

	e := n.Entry()
	assert.Equal(t, []model.ActionKind{model.ActionFill}, e.Kinds)
	assert.Equal(t, []string{`locator == "#email"`}, e.Patterns)
	assert.Equal(t, []string{"value"}, e.Args)

	// The proposal, once added, resolves the same step.
	c2, err := Compile([]model.MethodCatalogEntry{e})
	require.NoError(t, err)
	r2 := c2.Resolve(step(2, model.ActionFill, "Enter the email in the 'Email' field", "a@x.test",
		model.DiscoveredElement{Strategy: "css", Value: "#email", Role: "textbox"}))
	require.NotNil(t, r2.Method)
	assert.Equal(t, "LoginPage.enterEmailField", r2.Method.Reference)
}

func TestResolveWithEmptyCatalog(t *testing.T) {
	c, err := Compile(nil)
	require.NoError(t, err)
	r := c.Resolve(step(1, model.ActionNavigate, "Open https://example.com/issues/new", "",
		model.DiscoveredElement{Strategy: "url", Value: "https://example.com/issues/new"}))
	require.NotNil(t, r.NeedsNew)
	assert.Equal(t, "open issues new page", r.NeedsNew.Signature)
	assert.Equal(t, "Page.openIssuesNewPage", r.NeedsNew.Reference)
	assert.Empty(t, r.NeedsNew.Partial)
	assert.Contains(t, r.NeedsNew.String(), "step 1 needs a new method")
}

func TestCompileRejectsBadPatterns(t *testing.T) {
	_, err := Compile([]model.MethodCatalogEntry{{Reference: "A.b", Patterns: []string{"description +"}}})
	assert.ErrorContains(t, err, "A.b")
	_, err = Compile([]model.MethodCatalogEntry{{Reference: "A.c", Patterns: []string{"1 + 1"}}})
	assert.Error(t, err)
	_, err = Compile([]model.MethodCatalogEntry{{Reference: "A.d", Patterns: []string{"unknownVar == 1"}}})
	assert.Error(t, err)
}

func TestResolveRecordOnlySucceededSteps(t *testing.T) {
	c := fixtureCatalog(t)
	rec := model.NewRecord(&model.TestCase{ID: "TC", Steps: []model.Step{
		step(1, model.ActionNavigate, "Open https://example.com/login", "", model.DiscoveredElement{Strategy: "url", Value: "https://example.com/login"}),
		step(2, model.ActionClick, "Click the 'Cancel' button", "", model.DiscoveredElement{Strategy: "css", Value: "#cancel", Role: "button"}),
		{Index: 3, Description: "Enter the username in the 'Username' field", Action: model.ActionFill, Status: model.StatusPending},
	}})

	out, res := c.ResolveRecord(rec)
	require.Len(t, res, 2)
	assert.Nil(t, rec.Case.Steps[0].ResolvedMethod, "input record is not mutated")
	assert.Equal(t, "LoginPage.open", out.Case.Steps[0].ResolvedMethod.Reference)
	assert.Nil(t, out.Case.Steps[1].ResolvedMethod)
	assert.Nil(t, out.Case.Steps[2].ResolvedMethod)

	pending := Pending(res)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Index)
	assert.Equal(t, "click cancel button", pending[0].Signature)
	assert.Equal(t, "LoginPage.clickCancelButton", pending[0].Reference)
}
