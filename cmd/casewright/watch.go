package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ormasoftchile/casewright/pkg/checkpoint"
	"github.com/ormasoftchile/casewright/pkg/model"
	"github.com/ormasoftchile/casewright/pkg/pipeline"
	"github.com/ormasoftchile/casewright/pkg/tui"
	"github.com/spf13/cobra"
)

func newWatchCmd(flags *rootFlags) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch [case-id]",
		Short: "Follow a case's checkpoint while it runs",
		Long: "Watch polls the checkpoint store and shows each step's status, discovered elements and " +
			"observations. It only reads, so it can run next to `casewright run` or an agent.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return fmt.Errorf("invalid --interval %s", interval)
			}
			return withService(cmd, flags, func(svc *pipeline.Service) error {
				m := tui.NewWatch(cmd.Context(), args[0], storeLoader(svc, args[0]), interval)
				p := tea.NewProgram(m,
					tea.WithAltScreen(),
					tea.WithInput(cmd.InOrStdin()),
					tea.WithOutput(cmd.OutOrStdout()),
					tea.WithContext(cmd.Context()),
				)
				_, err := p.Run()
				return err
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", tui.DefaultInterval, "Polling interval (e.g. 500ms, 2s)")
	return cmd
}

// storeLoader reads the committed record of caseID. A case with no
// checkpoint yet is not an error.
func storeLoader(svc *pipeline.Service, caseID string) tui.Loader {
	return func(ctx context.Context) (*model.CheckpointRecord, error) {
		rec, err := svc.Status(ctx, caseID)
		if errors.Is(err, checkpoint.ErrNotFound) {
			return nil, nil
		}
		return rec, err
	}
}
