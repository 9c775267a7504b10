package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ormasoftchile/casewright/pkg/mcp"
	"github.com/ormasoftchile/casewright/pkg/pipeline"
	"github.com/ormasoftchile/casewright/pkg/schema"
	"github.com/spf13/cobra"
)

func newSchemaCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:       "schema [case|catalog]",
		Short:     "Export the JSON Schema of case documents or the method catalog",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"case", "catalog"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "catalog" {
				data, err = schema.GenerateCatalogJSONSchema()
			} else {
				data, err = schema.GenerateJSONSchema()
			}
			if err != nil {
				return fmt.Errorf("generating schema: %w", err)
			}
			if out == "" {
				_, err := cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("writing schema: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "✓ schema written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write to a file instead of stdout")
	return cmd
}

func newMCPCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the casewright tools over MCP on stdio",
		Long: "mcp lets an agent act as the interactive session: it asks for the next step, performs " +
			"it in its own browser and records the outcome, one checkpoint per step.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol; progress and logs go to stderr.
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			return withConfigService(cfg, cmd.ErrOrStderr(), func(svc *pipeline.Service) error {
				return server.ServeStdio(mcp.NewServer(version, svc))
			})
		},
	}
}
