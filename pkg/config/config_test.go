package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "casewright.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "file", cfg.Checkpoint.Backend)
	assert.Equal(t, 3, cfg.Checkpoint.CommitRetries)
	assert.Equal(t, 200*time.Millisecond, cfg.Checkpoint.CommitBackoff)
	assert.Equal(t, "chrome", cfg.Driver.Kind)
	assert.True(t, cfg.Driver.Headless)
	assert.Equal(t, 30*time.Second, cfg.Driver.Timeout)
	assert.Equal(t, "../pages", cfg.Codegen.ImportPrefix)
	assert.Equal(t, 1, cfg.Parallel)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
checkpoint:
  backend: sqlite
  db_path: state.db
  commit_backoff: 50ms
driver:
  kind: scripted
  scenario: login.scenario.yaml
  timeout: 5s
classifier:
  rules:
    - name: press-enter
      kind: Click
      when: description contains "press Enter"
trace:
  path: run.jsonl
  redact:
    - pattern: 'password=\S+'
      replace: password=***
parallel: 4
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Checkpoint.Backend)
	assert.Equal(t, "state.db", cfg.Checkpoint.DBPath)
	assert.Equal(t, 50*time.Millisecond, cfg.Checkpoint.CommitBackoff)
	assert.Equal(t, 5*time.Second, cfg.Driver.Timeout)
	assert.Equal(t, "login.scenario.yaml", cfg.Driver.Scenario)
	require.Len(t, cfg.Classifier.Rules, 1)
	assert.Equal(t, "Click", cfg.Classifier.Rules[0].Kind)
	assert.Equal(t, 4, cfg.Parallel)
	assert.Equal(t, []RedactRule{{Pattern: `password=\S+`, Replace: "password=***"}}, cfg.Trace.Redact)
	assert.Equal(t, ".casewright/checkpoints", cfg.Checkpoint.Dir, "unset keys keep defaults")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CASEWRIGHT_DRIVER_KIND", "manual")
	t.Setenv("CASEWRIGHT_PARALLEL", "2")
	cfg, err := Load(writeConfig(t, "driver:\n  headless: false\n"))
	require.NoError(t, err)
	assert.Equal(t, "manual", cfg.Driver.Kind)
	assert.False(t, cfg.Driver.Headless)
	assert.Equal(t, 2, cfg.Parallel)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read config")

	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err, "missing default file falls back to defaults")
	assert.Equal(t, "file", cfg.Checkpoint.Backend)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown backend", "checkpoint:\n  backend: redis\n", "config schema validation failed"},
		{"bad driver", "driver:\n  kind: firefox\n", "config schema validation failed"},
		{"parallel zero", "parallel: 0\n", "parallel"},
		{"rule kind", "classifier:\n  rules:\n    - {name: x, kind: Hover, when: \"true\"}\n", "kind"},
		{"scripted without scenario", "driver:\n  kind: scripted\n", "driver.scenario is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
