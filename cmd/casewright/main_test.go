package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ormasoftchile/casewright/pkg/classify"
	"github.com/ormasoftchile/casewright/pkg/model"
	"github.com/ormasoftchile/casewright/pkg/orchestrator"
	"github.com/ormasoftchile/casewright/pkg/pipeline"
	"github.com/ormasoftchile/casewright/pkg/tui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	loginCase     = filepath.Join("..", "..", "testdata", "cases", "login.yaml")
	loginScenario = filepath.Join("..", "..", "testdata", "scenarios", "login.scenario.yaml")
	fixtureCat    = filepath.Join("..", "..", "testdata", "catalog.yaml")
)

// writeConfig creates an isolated workspace and returns its config path.
func writeConfig(t *testing.T) (cfgPath, dir string) {
	t.Helper()
	dir = t.TempDir()
	data, err := os.ReadFile(fixtureCat)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "catalog.yaml"), data, 0o644))

	scenario, err := filepath.Abs(loginScenario)
	require.NoError(t, err)
	body := fmt.Sprintf(`checkpoint:
  dir: %[1]s/checkpoints
  commit_backoff: 1ms
driver:
  kind: scripted
  scenario: %[2]s
codegen:
  out_dir: %[1]s/tests
catalog:
  path: %[1]s/catalog.yaml
`, filepath.ToSlash(dir), filepath.ToSlash(scenario))
	cfgPath = filepath.Join(dir, "casewright.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))
	return cfgPath, dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", loginCase)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ TC-2001 is valid (5 steps)")

	_, err = execute(t, "validate", filepath.Join("..", "..", "testdata", "invalid", "duplicate-index.yaml"))
	assert.Error(t, err)
}

func TestEndToEnd(t *testing.T) {
	cfg, dir := writeConfig(t)

	out, err := execute(t, "--config", cfg, "run", loginCase)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ TC-2001 complete (5 dispatched, rev 5")

	out, err = execute(t, "--config", cfg, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "TC-2001")
	assert.Contains(t, out, "5/5")

	out, err = execute(t, "--config", cfg, "status", "TC-2001")
	require.NoError(t, err)
	assert.Contains(t, out, "**State:** Complete")

	out, err = execute(t, "--config", cfg, "resolve", "TC-2001")
	require.NoError(t, err, out)
	assert.Contains(t, out, "TC-2001 (revision 6)")
	assert.Contains(t, out, "LoginPage.open")

	out, err = execute(t, "--config", cfg, "generate", "TC-2001")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ TC-2001 -> ")
	matches, err := filepath.Glob(filepath.Join(dir, "tests", "*.spec.ts"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	out, err = execute(t, "--config", cfg, "archive", "TC-2001")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ archived TC-2001")

	out, err = execute(t, "--config", cfg, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "no active cases")
}

func TestClassifySetUnblocksCase(t *testing.T) {
	cfg, dir := writeConfig(t)
	path := filepath.Join(dir, "blocked.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`id: TC-7
steps:
  - index: 1
    description: Open https://example.com
  - index: 2
    description: Wait for the spinner to disappear
`), 0o644))

	out, err := execute(t, "--config", cfg, "classify", path)
	var amb *classify.ClassificationAmbiguousError
	require.ErrorAs(t, err, &amb)
	assert.Equal(t, []int{2}, amb.Indices)
	assert.Contains(t, out, "?   2. Unknown")

	out, err = execute(t, "--config", cfg, "classify", path, "--set", "2=Assert")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ step 2 is now Assert (revision 1)")
	assert.Contains(t, out, "[manual]")
}

func TestCatalogAddFromProposals(t *testing.T) {
	cfg, dir := writeConfig(t)
	proposals := filepath.Join(dir, "proposals.yaml")
	require.NoError(t, os.WriteFile(proposals, []byte(`methods:
  - signature: "hover(target: string): Promise<void>"
    reference: Menu.hover
    kinds: [Click]
    patterns: ['description contains "hover"']
`), 0o644))

	out, err := execute(t, "--config", cfg, "catalog", "add", "-f", proposals)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ added Menu.hover")

	out, err = execute(t, "--config", cfg, "catalog", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Menu.hover")

	_, err = execute(t, "--config", cfg, "catalog", "add", "--reference", "Bad.kind", "--signature", "x()", "--kind", "Hover")
	assert.ErrorContains(t, err, "unknown action kind")
}

func TestSchemaCommand(t *testing.T) {
	for _, typ := range []string{"case", "catalog"} {
		out, err := execute(t, "schema", typ)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(strings.TrimSpace(out), "{"), typ)
	}
	_, err := execute(t, "schema", "workflow")
	assert.Error(t, err)
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"2=click", " 4 =Fill"})
	require.NoError(t, err)
	assert.Equal(t, []tui.Assignment{{Index: 2, Kind: model.ActionClick}, {Index: 4, Kind: model.ActionFill}}, got)

	for _, bad := range []string{"2", "x=Click", "2=Hover", "2=Unknown"} {
		_, err := parseAssignments([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestDescribeRun(t *testing.T) {
	rec := &model.CheckpointRecord{Revision: 3}
	cases := []struct {
		run  pipeline.CaseRun
		want string
	}{
		{pipeline.CaseRun{Path: "a.yaml", Err: os.ErrNotExist}, "! a.yaml: file does not exist"},
		{pipeline.CaseRun{CaseID: "TC-1", Result: &orchestrator.Result{Outcome: orchestrator.OutcomeComplete, Record: rec, Dispatched: []int{1, 2, 3}, Duration: 1500 * time.Microsecond}},
			"✓ TC-1 complete (3 dispatched, rev 3, 1ms)"},
		{pipeline.CaseRun{CaseID: "TC-1", Result: &orchestrator.Result{Outcome: orchestrator.OutcomeHalted, Record: rec},
			Err: &orchestrator.ActionFailure{CaseID: "TC-1", Index: 4, Kind: model.ActionClick, Reason: "no element"}},
			"✗ TC-1 halted at step 4 (Click): no element"},
		{pipeline.CaseRun{CaseID: "TC-1", Path: "c.yaml", Result: &orchestrator.Result{Outcome: orchestrator.OutcomeBlocked, Record: rec},
			Err: &classify.ClassificationAmbiguousError{CaseID: "TC-1", Indices: []int{2}}},
			"? TC-1 blocked: steps [2] need a kind"},
	}
	for _, tc := range cases {
		assert.Contains(t, describeRun(tc.run), tc.want)
	}
}
