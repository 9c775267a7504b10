package codegen

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ormasoftchile/casewright/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ref(r string) *model.MethodRef { return &model.MethodRef{Reference: r} }

func loginTrace() model.ExecutionTrace {
	ok := model.StatusSucceeded
	return model.ExecutionTrace{
		CaseID:        "TC-2001",
		CaseName:      "Sign in with valid credentials",
		Objective:     "A registered user can sign in\nand reach the dashboard.",
		Preconditions: "User alice exists.",
		Steps: []model.Step{
			{Index: 1, Description: "Open https://example.com/login", Action: model.ActionNavigate, Status: ok,
				ExpectedResult: "The sign-in form is displayed", ResolvedMethod: ref("LoginPage.open")},
			{Index: 2, Description: "Enter the username in the 'Username' field", TestData: "alice", Action: model.ActionFill,
				Status: ok, ResolvedMethod: ref("LoginPage.enterUsername")},
			{Index: 3, Description: "Type the password into the 'Password' field", TestData: "it's", Action: model.ActionFill,
				Status: ok, ResolvedMethod: ref("LoginPage.enterPassword")},
			{Index: 4, Description: "Click the 'Sign in' button", Action: model.ActionClick, Status: ok,
				ExpectedResult: `Dashboard shows "Welcome, Alice"`, ResolvedMethod: ref("LoginPage.submit")},
			{Index: 5, Description: `Verify the "Issues" link is visible`, Action: model.ActionAssert, Status: ok,
				ResolvedMethod: ref("NavBar.linkVisible")},
		},
	}
}

func catalog() []model.MethodCatalogEntry {
	return []model.MethodCatalogEntry{
		{Reference: "LoginPage.open", Args: []string{"url"}},
		{Reference: "NavBar.linkVisible", Args: []string{"target"}},
	}
}

func TestGenerateLoginCase(t *testing.T) {
	g, err := New(Options{Catalog: catalog()})
	require.NoError(t, err)

	a, err := g.Generate(loginTrace())
	require.NoError(t, err)
	assert.Equal(t, "TC-2001", a.CaseID)
	assert.Equal(t, "tc-2001.spec.ts", a.Path)

	for _, want := range []string{
		"// TC-2001: Sign in with valid credentials\n",
		"// Objective: A registered user can sign in and reach the dashboard.\n",
		"import { test, expect } from '@playwright/test';\n",
		"import { LoginPage } from '../pages/LoginPage';\nimport { NavBar } from '../pages/NavBar';\n",
		"test.describe('TC-2001', () => {",
		"const loginPage = new LoginPage(page);",
		"const navBar = new NavBar(page);",
		"await test.step('1. Open https://example.com/login', async () => {",
		"await loginPage.open('https://example.com/login');",
		"// Expected: The sign-in form is displayed",
		"await loginPage.enterUsername('alice');",
		`await loginPage.enterPassword('it\'s');`,
		"await loginPage.submit();",
		"await expect(page.getByText('Welcome, Alice')).toBeVisible();",
		"await navBar.linkVisible('Issues');",
	} {
		assert.Contains(t, a.Content, want)
	}
	assert.Less(t, strings.Index(a.Content, "1. Open"), strings.Index(a.Content, "5. Verify"))
}

func TestGenerateIsDeterministic(t *testing.T) {
	g, err := New(Options{Catalog: catalog()})
	require.NoError(t, err)

	tr := loginTrace()
	first, err := g.Generate(tr)
	require.NoError(t, err)

	// Reordered input renders the same file.
	tr.Steps[0], tr.Steps[4] = tr.Steps[4], tr.Steps[0]
	for i := 0; i < 5; i++ {
		again, err := g.Generate(tr)
		require.NoError(t, err)
		assert.Equal(t, first.Content, again.Content)
	}
}

func TestGenerateRejectsIncompleteTrace(t *testing.T) {
	g, err := New(Options{})
	require.NoError(t, err)

	tr := loginTrace()
	tr.Steps[3].Status = model.StatusFailed
	tr.Steps[1].ResolvedMethod = nil

	_, err = g.Generate(tr)
	var ite *IncompleteTraceError
	require.True(t, errors.As(err, &ite))
	assert.Equal(t, []int{2, 4}, ite.Indices)
	assert.Equal(t, "no resolved method", ite.Reasons[2])
	assert.Equal(t, "failed", ite.Reasons[4])
	assert.Contains(t, err.Error(), "4 (failed)")

	_, err = g.Generate(model.ExecutionTrace{CaseID: "TC-0"})
	assert.ErrorContains(t, err, "no steps")
}

func TestCustomTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "min.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("{{ .CaseID }}{{ range .Steps }}|{{ .Label }}{{ end }}"), 0o644))
	g, err := New(Options{TemplatePath: path})
	require.NoError(t, err)

	tr := loginTrace()
	tr.Steps = tr.Steps[:2]
	a, err := g.Generate(tr)
	require.NoError(t, err)
	assert.Equal(t, "TC-2001|1. Open https://example.com/login|2. Enter the username in the 'Username' field", a.Content)

	_, err = New(Options{TemplatePath: filepath.Join(t.TempDir(), "missing.tmpl")})
	assert.Error(t, err)
}

func TestWriteKeepsBackup(t *testing.T) {
	dir := t.TempDir()
	a := &SourceArtifact{CaseID: "TC-1", Path: "tc-1.spec.ts", Content: "v1"}
	path, err := Write(a, dir)
	require.NoError(t, err)
	_, err = os.Stat(path + ".bak")
	assert.True(t, os.IsNotExist(err))

	a.Content = "v2"
	_, err = Write(a, dir)
	require.NoError(t, err)
	bak, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(bak))
	cur, _ := os.ReadFile(path)
	assert.Equal(t, "v2", string(cur))
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "tc-12-a-b.spec.ts", FileName("TC 12/a.b"))
	assert.Equal(t, "case.spec.ts", FileName("///"))
	assert.Equal(t, "pageObject", instanceName("Page"))
	assert.Equal(t, "loginPage", instanceName("LoginPage"))
	assert.Equal(t, `a\\b\'c\nd`, tsString("a\\b'c\nd"))
	long := strings.Repeat("word ", 30)
	assert.True(t, strings.HasSuffix(label(long), "..."))
	assert.LessOrEqual(t, len([]rune(label(long))), 80)
}
