package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/ormasoftchile/casewright/pkg/checkpoint"
	"github.com/ormasoftchile/casewright/pkg/classify"
	"github.com/ormasoftchile/casewright/pkg/orchestrator"
	"github.com/ormasoftchile/casewright/pkg/pipeline"
	"github.com/ormasoftchile/casewright/pkg/tui"
	"github.com/spf13/cobra"
)

type runFlags struct {
	parallel int
	driver   string
	scenario string
	headless bool
	jsonOut  bool
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [case document...]",
		Short: "Run the remaining steps of one or more cases",
		Long: "Run drives every remaining step of each case against a live session, committing a " +
			"checkpoint after each step. An interrupted or halted case resumes from its checkpoint " +
			"on the next run.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("parallel") {
				cfg.Parallel = rf.parallel
			}
			if cmd.Flags().Changed("driver") {
				cfg.Driver.Kind = rf.driver
			}
			if cmd.Flags().Changed("scenario") {
				cfg.Driver.Scenario = rf.scenario
			}
			if cmd.Flags().Changed("headless") {
				cfg.Driver.Headless = rf.headless
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			// Keep stdout clean for --json.
			progress := cmd.OutOrStdout()
			if rf.jsonOut {
				progress = cmd.ErrOrStderr()
			}
			return withConfigService(cfg, progress, func(svc *pipeline.Service) error {
				return runCases(ctx, cmd.OutOrStdout(), svc, args, rf.jsonOut)
			})
		},
	}
	cmd.Flags().IntVar(&rf.parallel, "parallel", 1, "Number of cases to run at once")
	cmd.Flags().StringVar(&rf.driver, "driver", "", "Session driver: chrome, manual or scripted")
	cmd.Flags().StringVar(&rf.scenario, "scenario", "", "Scenario file or directory for the scripted driver")
	cmd.Flags().BoolVar(&rf.headless, "headless", true, "Run Chrome without a window")
	cmd.Flags().BoolVar(&rf.jsonOut, "json", false, "Output results as JSON")
	return cmd
}

func runCases(ctx context.Context, w io.Writer, svc *pipeline.Service, paths []string, jsonOut bool) error {
	runs, err := svc.Run(ctx, paths)
	if jsonOut {
		if jerr := writeRunsJSON(w, runs); jerr != nil {
			return jerr
		}
	} else {
		for _, r := range runs {
			fmt.Fprintln(w, describeRun(r))
		}
	}
	if err != nil {
		return fmt.Errorf("run interrupted: %w", err)
	}
	failed := 0
	for _, r := range runs {
		if r.Outcome() != string(orchestrator.OutcomeComplete) {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d case(s) did not complete", failed, len(runs))
	}
	return nil
}

// describeRun renders one line per case run.
func describeRun(r pipeline.CaseRun) string {
	id := r.CaseID
	if id == "" {
		id = r.Path
	}
	if r.Result == nil {
		return fmt.Sprintf("! %s: %v", id, r.Err)
	}
	res := r.Result
	rev := int64(0)
	if res.Record != nil {
		rev = res.Record.Revision
	}
	stats := fmt.Sprintf("(%d dispatched, rev %d, %s)", len(res.Dispatched), rev, res.Duration.Truncate(time.Millisecond))
	switch res.Outcome {
	case orchestrator.OutcomeComplete:
		return fmt.Sprintf("✓ %s complete %s", id, stats)
	case orchestrator.OutcomeHalted:
		var af *orchestrator.ActionFailure
		if errors.As(r.Err, &af) {
			return fmt.Sprintf("✗ %s halted at step %d (%s): %s %s", id, af.Index, af.Kind, af.Reason, stats)
		}
		return fmt.Sprintf("✗ %s halted: %v %s", id, r.Err, stats)
	case orchestrator.OutcomeBlocked:
		var amb *classify.ClassificationAmbiguousError
		if errors.As(r.Err, &amb) {
			return fmt.Sprintf("? %s blocked: steps %v need a kind (casewright classify --interactive %s)", id, amb.Indices, r.Path)
		}
		return fmt.Sprintf("? %s blocked: %v", id, r.Err)
	}
	return fmt.Sprintf("! %s %s: %v %s", id, res.Outcome, r.Err, stats)
}

type runJSON struct {
	Path     string `json:"path"`
	CaseID   string `json:"caseId,omitempty"`
	Outcome  string `json:"outcome"`
	Revision int64  `json:"revision"`
	Error    string `json:"error,omitempty"`
}

func writeRunsJSON(w io.Writer, runs []pipeline.CaseRun) error {
	out := make([]runJSON, len(runs))
	for i, r := range runs {
		out[i] = runJSON{Path: r.Path, CaseID: r.CaseID, Outcome: r.Outcome()}
		if r.Result != nil && r.Result.Record != nil {
			out[i].Revision = r.Result.Record.Revision
		}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
		}
	}
	return writeJSON(w, out)
}

func newStatusCmd(flags *rootFlags) *cobra.Command {
	var (
		render  bool
		jsonOut bool
		width   int
	)
	cmd := &cobra.Command{
		Use:   "status [case-id]",
		Short: "Show active cases or the checkpoint of one case",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, flags, func(svc *pipeline.Service) error {
				w := cmd.OutOrStdout()
				if len(args) == 0 {
					sums, err := svc.List(cmd.Context())
					if err != nil {
						return err
					}
					if jsonOut {
						return writeJSON(w, sums)
					}
					return tui.WriteSummaries(w, sums)
				}

				rec, err := svc.Status(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				switch {
				case jsonOut:
					return writeJSON(w, rec)
				case render:
					fmt.Fprintln(w, tui.RenderRecord(rec, width))
				default:
					fmt.Fprint(w, checkpoint.RenderChecklist(rec))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&render, "render", false, "Render the checklist as styled Markdown")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&width, "width", 100, "Wrap width for --render")
	return cmd
}

func newArchiveCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "archive [case-id...]",
		Short: "Move cases out of the active set",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, flags, func(svc *pipeline.Service) error {
				for _, id := range args {
					if err := svc.Archive(cmd.Context(), id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "✓ archived %s\n", id)
				}
				return nil
			})
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
