package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ormasoftchile/casewright/pkg/classify"
	"github.com/ormasoftchile/casewright/pkg/model"
	"github.com/ormasoftchile/casewright/pkg/phrase"
	"github.com/ormasoftchile/casewright/pkg/pipeline"
	"github.com/ormasoftchile/casewright/pkg/tui"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [case.yaml|case.json|case.xml]",
		Short: "Validate a test case document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, findings, err := pipeline.ValidateFile(args[0])
			if n := printFindings(cmd.ErrOrStderr(), findings); n > 0 {
				return fmt.Errorf("validation failed with %d error(s)", n)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is valid (%d steps)\n", tc.ID, len(tc.Steps))
			return nil
		},
	}
}

func newClassifyCmd(flags *rootFlags) *cobra.Command {
	var (
		sets        []string
		interactive bool
	)
	cmd := &cobra.Command{
		Use:   "classify [case document]",
		Short: "Classify each step into an action kind",
		Long: "Classify prints the kind assigned to every step. Steps no rule matches are Unknown " +
			"and block the case until a kind is assigned with --set or --interactive.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			assignments, err := parseAssignments(sets)
			if err != nil {
				return err
			}
			return withService(cmd, flags, func(svc *pipeline.Service) error {
				ctx := cmd.Context()
				path := args[0]
				tc, kinds, err := svc.Classify(ctx, path)
				var amb *classify.ClassificationAmbiguousError
				if err != nil && !errors.As(err, &amb) {
					return err
				}

				if interactive && amb != nil {
					picked, err := pickKinds(cmd, tc)
					if err != nil {
						return err
					}
					assignments = append(assignments, picked...)
				}
				for _, a := range assignments {
					rec, err := svc.SetKind(ctx, path, a.Index, a.Kind)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "✓ step %d is now %s (revision %d)\n", a.Index, a.Kind, rec.Revision)
				}
				if len(assignments) > 0 {
					if tc, kinds, err = svc.Classify(ctx, path); err != nil && !errors.As(err, &amb) {
						return err
					}
					if err == nil {
						amb = nil
					}
				}

				printClassification(cmd, tc, kinds)
				if amb != nil {
					return fmt.Errorf("%w; assign kinds with --set index=Kind or --interactive", amb)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Assign a kind to a step (index=Kind), repeatable")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Pick kinds for Unknown steps interactively")
	return cmd
}

// parseAssignments parses --set values of the form "3=Click".
func parseAssignments(sets []string) ([]tui.Assignment, error) {
	out := make([]tui.Assignment, 0, len(sets))
	for _, s := range sets {
		idx, name, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --set %q: expected index=Kind", s)
		}
		n, err := strconv.Atoi(strings.TrimSpace(idx))
		if err != nil {
			return nil, fmt.Errorf("invalid --set %q: %w", s, err)
		}
		kind, err := model.ParseActionKind(name)
		if err != nil {
			return nil, fmt.Errorf("invalid --set %q: %w", s, err)
		}
		if kind == model.ActionUnknown {
			return nil, fmt.Errorf("invalid --set %q: Unknown cannot be assigned", s)
		}
		out = append(out, tui.Assignment{Index: n, Kind: kind})
	}
	return out, nil
}

func pickKinds(cmd *cobra.Command, tc *model.TestCase) ([]tui.Assignment, error) {
	p := tea.NewProgram(tui.NewKindPicker(tc),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.ErrOrStderr()),
		tea.WithContext(cmd.Context()),
	)
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("kind picker: %w", err)
	}
	picker := final.(tui.KindPicker)
	if picker.Cancelled() {
		return nil, errors.New("classification cancelled")
	}
	fmt.Fprint(cmd.ErrOrStderr(), picker.Summary())
	return picker.Assignments(), nil
}

func printClassification(cmd *cobra.Command, tc *model.TestCase, kinds []pipeline.Classification) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s (%s)\n", tc.Title(), tc.ID)
	for _, k := range kinds {
		mark := "✓"
		if k.Kind == model.ActionUnknown {
			mark = "?"
		}
		src := ""
		if k.Source != "" {
			src = "  [" + k.Source + "]"
		}
		fmt.Fprintf(w, "  %s %3d. %-9s %s%s\n", mark, k.Index, k.Kind, phrase.Collapse(k.Description), src)
	}
}
