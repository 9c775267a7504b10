// Package main provides the casewright CLI.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/ormasoftchile/casewright/pkg/config"
	"github.com/ormasoftchile/casewright/pkg/logging"
	"github.com/ormasoftchile/casewright/pkg/pipeline"
	"github.com/ormasoftchile/casewright/pkg/schema"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// .env is optional and never overrides the environment.
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootFlags are shared by every command.
type rootFlags struct {
	configPath string
	debug      bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "casewright",
		Short: "Turn written test cases into executable browser tests",
		Long: "casewright parses test-case documents, runs their steps against a live browser session " +
			"with a checkpoint after every step, resolves each interaction to a page-object method " +
			"and generates Playwright test source.",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.InitWriter(cmd.ErrOrStderr(), flags.debug)
		},
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Config file (default "+config.DefaultFile+")")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		newValidateCmd(),
		newClassifyCmd(flags),
		newRunCmd(flags),
		newStatusCmd(flags),
		newWatchCmd(flags),
		newArchiveCmd(flags),
		newResolveCmd(flags),
		newGenerateCmd(flags),
		newCatalogCmd(flags),
		newSchemaCmd(),
		newMCPCmd(flags),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads the configuration named by --config.
func loadConfig(flags *rootFlags) (config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openService builds a pipeline service from cfg. Progress goes to out.
func openService(cfg config.Config, out io.Writer) (*pipeline.Service, error) {
	svc, err := pipeline.New(cfg, pipeline.WithOutput(out))
	if err != nil {
		return nil, err
	}
	log.Debug().Str("backend", cfg.Checkpoint.Backend).Str("driver", cfg.Driver.Kind).Msg("service ready")
	return svc, nil
}

// withService loads the config, opens a service, calls fn and closes it.
func withService(cmd *cobra.Command, flags *rootFlags, fn func(*pipeline.Service) error) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	return withConfigService(cfg, cmd.OutOrStdout(), fn)
}

func withConfigService(cfg config.Config, progress io.Writer, fn func(*pipeline.Service) error) error {
	svc, err := openService(cfg, progress)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Warn().Err(err).Msg("close service")
		}
	}()
	return fn(svc)
}

// printFindings writes validation warnings and errors to w and returns the
// number of errors.
func printFindings(w io.Writer, findings []*schema.ValidationError) int {
	var errs []*schema.ValidationError
	for _, f := range findings {
		if f.Severity == "warning" {
			fmt.Fprintf(w, "  ⚠ [%s] %s\n", f.Phase, f.Message)
			if f.Path != "" {
				fmt.Fprintf(w, "    at: %s\n", f.Path)
			}
			continue
		}
		errs = append(errs, f)
	}
	if len(errs) == 0 {
		return 0
	}
	fmt.Fprintf(w, "Validation failed: %d error(s)\n\n", len(errs))
	for i, e := range errs {
		fmt.Fprintf(w, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
		if e.Path != "" {
			fmt.Fprintf(w, "     at: %s\n", e.Path)
		}
	}
	return len(errs)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "casewright %s (%s)\n", version, commit)
		},
	}
}
