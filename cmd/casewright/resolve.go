package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ormasoftchile/casewright/pkg/model"
	"github.com/ormasoftchile/casewright/pkg/pipeline"
	"github.com/ormasoftchile/casewright/pkg/resolver"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newResolveCmd(flags *rootFlags) *cobra.Command {
	var (
		jsonOut   bool
		proposals bool
	)
	cmd := &cobra.Command{
		Use:   "resolve [case-id]",
		Short: "Match each executed step to a page-object method",
		Long: "Resolve matches every succeeded step against the method catalog and records the " +
			"resolved methods in the checkpoint. Steps with no match are reported as proposals for " +
			"new catalog entries and block generation.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, flags, func(svc *pipeline.Service) error {
				res, err := svc.Resolve(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				switch {
				case jsonOut:
					if err := writeJSON(w, res); err != nil {
						return err
					}
				case proposals:
					if err := writeProposals(w, res.Pending); err != nil {
						return err
					}
				default:
					printResolutions(cmd, res)
				}
				if n := len(res.Pending); n > 0 {
					return fmt.Errorf("%d step(s) need a new catalog method; add them with `casewright catalog add`", n)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&proposals, "proposals", false, "Print proposed catalog entries as YAML")
	return cmd
}

func printResolutions(cmd *cobra.Command, res *pipeline.ResolveResult) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s (revision %d)\n", res.Record.CaseID, res.Record.Revision)
	for _, r := range res.Resolutions {
		switch {
		case r.Method != nil:
			fmt.Fprintf(w, "  ✓ %3d. %s\n", r.Index, r.Method.Reference)
		case r.NeedsNew != nil:
			fmt.Fprintf(w, "  ? %3d. needs %s\n", r.Index, r.NeedsNew)
			if len(r.NeedsNew.Partial) > 0 {
				fmt.Fprintf(w, "         partial matches: %s\n", strings.Join(r.NeedsNew.Partial, ", "))
			}
		}
	}
}

func writeProposals(w io.Writer, pending []*resolver.NeedsNewMethod) error {
	entries := make([]model.MethodCatalogEntry, len(pending))
	for i, p := range pending {
		entries[i] = p.Entry()
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]any{"methods": entries}); err != nil {
		return err
	}
	return enc.Close()
}

func newGenerateCmd(flags *rootFlags) *cobra.Command {
	var (
		outDir   string
		template string
		archive  bool
		stdout   bool
	)
	cmd := &cobra.Command{
		Use:   "generate [case-id...]",
		Short: "Generate Playwright test source for fully resolved cases",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("out") {
				cfg.Codegen.OutDir = outDir
			}
			if cmd.Flags().Changed("template") {
				cfg.Codegen.Template = template
			}
			if cmd.Flags().Changed("archive") {
				cfg.Codegen.Archive = archive
			}
			return withConfigService(cfg, cmd.ErrOrStderr(), func(svc *pipeline.Service) error {
				w := cmd.OutOrStdout()
				for _, id := range args {
					gen, err := svc.Generate(cmd.Context(), id)
					if err != nil {
						return err
					}
					if stdout {
						fmt.Fprint(w, gen.Artifact.Content)
						continue
					}
					fmt.Fprintf(w, "✓ %s -> %s\n", id, gen.Path)
					if gen.Archived {
						fmt.Fprintf(w, "  archived %s\n", id)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "Output directory (overrides codegen.out_dir)")
	cmd.Flags().StringVar(&template, "template", "", "Custom text/template file")
	cmd.Flags().BoolVar(&archive, "archive", false, "Archive the checkpoint after generating")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "Also print the generated source")
	return cmd
}

func newCatalogCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and extend the page-object method catalog",
	}
	cmd.AddCommand(newCatalogListCmd(flags), newCatalogAddCmd(flags))
	return cmd
}

func newCatalogListCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalog methods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, flags, func(svc *pipeline.Service) error {
				doc, _, err := svc.Catalog()
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				for _, m := range doc.Methods {
					kinds := make([]string, len(m.Kinds))
					for i, k := range m.Kinds {
						kinds[i] = string(k)
					}
					fmt.Fprintf(w, "%-32s %-40s %s\n", m.Reference, m.Signature, strings.Join(kinds, ","))
				}
				return nil
			})
		},
	}
}

func newCatalogAddCmd(flags *rootFlags) *cobra.Command {
	var (
		entry    model.MethodCatalogEntry
		kinds    []string
		fromFile string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add methods to the catalog",
		Long: "Add appends one method described by flags, or every method in a YAML file such as " +
			"the output of `casewright resolve --proposals`.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var entries []model.MethodCatalogEntry
			if fromFile != "" {
				data, err := os.ReadFile(fromFile)
				if err != nil {
					return err
				}
				var doc struct {
					Methods []model.MethodCatalogEntry `yaml:"methods"`
				}
				if err := yaml.Unmarshal(data, &doc); err != nil {
					return fmt.Errorf("%s: %w", fromFile, err)
				}
				entries = doc.Methods
			} else {
				for _, k := range kinds {
					kind, err := model.ParseActionKind(k)
					if err != nil {
						return err
					}
					entry.Kinds = append(entry.Kinds, kind)
				}
				entries = []model.MethodCatalogEntry{entry}
			}
			return withService(cmd, flags, func(svc *pipeline.Service) error {
				for _, e := range entries {
					if err := svc.AddMethod(e); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "✓ added %s\n", e.Reference)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&entry.Reference, "reference", "", "Method reference (Class.method)")
	cmd.Flags().StringVar(&entry.Signature, "signature", "", "Method signature")
	cmd.Flags().StringArrayVar(&kinds, "kind", nil, "Action kind the method performs, repeatable")
	cmd.Flags().StringArrayVar(&entry.Patterns, "pattern", nil, "Match expression over the step, repeatable")
	cmd.Flags().StringArrayVar(&entry.Args, "arg", nil, "Argument source (value, url, target, path), repeatable")
	cmd.Flags().StringVarP(&fromFile, "file", "f", "", "YAML file with a methods list")
	cmd.MarkFlagsMutuallyExclusive("file", "reference")
	return cmd
}
