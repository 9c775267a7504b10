package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/ormasoftchile/casewright/pkg/config"
	"github.com/ormasoftchile/casewright/pkg/model"
	"github.com/ormasoftchile/casewright/pkg/session"
)

// DriverFactory opens a session for one case. rec is the committed record
// the run resumes from, or nil for a first run.
type DriverFactory func(ctx context.Context, caseID string, rec *model.CheckpointRecord) (session.Driver, error)

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// ConfiguredDrivers returns the factory for cfg.Kind.
func ConfiguredDrivers(cfg config.DriverConfig, out io.Writer) DriverFactory {
	return func(ctx context.Context, caseID string, rec *model.CheckpointRecord) (session.Driver, error) {
		switch cfg.Kind {
		case "", "chrome":
			d, err := session.NewChromeDriver(session.ChromeOptions{
				Headless:  cfg.Headless,
				Timeout:   cfg.Timeout,
				UserAgent: cfg.UserAgent,
			})
			if err != nil {
				return nil, err
			}
			return d, nil
		case "manual":
			p, err := session.NewReadlinePrompter()
			if err != nil {
				return nil, err
			}
			return session.NewManualDriver(p, out), nil
		case "scripted":
			d, err := ScriptedDriver(scenarioPath(cfg.Scenario, caseID), rec)
			if err != nil {
				return nil, err
			}
			return d, nil
		default:
			return nil, fmt.Errorf("unknown driver kind %q", cfg.Kind)
		}
	}
}

// ScriptedDriver loads a scenario and positions it after the actions the
// committed record already performed, so a resumed run replays only the
// remaining steps.
func ScriptedDriver(path string, rec *model.CheckpointRecord) (*session.ScriptedDriver, error) {
	sc, err := session.LoadScenario(path)
	if err != nil {
		return nil, err
	}
	d := session.NewScriptedDriver(sc)
	d.Skip(performedActions(rec))
	return d, nil
}

// performedActions counts succeeded steps that consumed a driver action.
// Assert steps only take snapshots.
func performedActions(rec *model.CheckpointRecord) int {
	if rec == nil {
		return 0
	}
	n := 0
	for _, s := range rec.Case.Steps {
		if s.Status == model.StatusSucceeded && s.Action != model.ActionAssert {
			n++
		}
	}
	return n
}

// scenarioPath resolves a scenario directory to <dir>/<case>.scenario.yaml.
func scenarioPath(path, caseID string) string {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, caseID+".scenario.yaml")
	}
	return path
}
