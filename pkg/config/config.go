// Package config loads casewright settings from .casewright.yaml, CASEWRIGHT_*
// environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// DefaultFile is the config file looked up in the working directory when no
// path is given.
const DefaultFile = ".casewright.yaml"

// EnvPrefix prefixes environment overrides (CASEWRIGHT_DRIVER_KIND, ...).
const EnvPrefix = "CASEWRIGHT"

// Config is the root configuration.
type Config struct {
	Checkpoint CheckpointConfig `json:"checkpoint" mapstructure:"checkpoint"`
	Classifier ClassifierConfig `json:"classifier" mapstructure:"classifier"`
	Driver     DriverConfig     `json:"driver"     mapstructure:"driver"`
	Codegen    CodegenConfig    `json:"codegen"    mapstructure:"codegen"`
	Catalog    CatalogConfig    `json:"catalog"    mapstructure:"catalog"`
	Trace      TraceConfig      `json:"trace"      mapstructure:"trace"`
	Parallel   int              `json:"parallel"   mapstructure:"parallel"`
}

// CheckpointConfig selects and tunes the checkpoint store.
type CheckpointConfig struct {
	Backend       string        `json:"backend"        mapstructure:"backend"`
	Dir           string        `json:"dir"            mapstructure:"dir"`
	DBPath        string        `json:"db_path"        mapstructure:"db_path"`
	CommitRetries int           `json:"commit_retries" mapstructure:"commit_retries"`
	CommitBackoff time.Duration `json:"commit_backoff" mapstructure:"commit_backoff"`
}

// ClassifierConfig holds user rules evaluated before the built-in ones.
type ClassifierConfig struct {
	Rules []RuleConfig `json:"rules" mapstructure:"rules"`
}

// RuleConfig is an expression rule: when the boolean expression holds for a
// step, the step gets Kind.
type RuleConfig struct {
	Name string `json:"name" mapstructure:"name"`
	Kind string `json:"kind" mapstructure:"kind"`
	When string `json:"when" mapstructure:"when"`
}

// DriverConfig selects the session driver.
type DriverConfig struct {
	Kind      string        `json:"kind"       mapstructure:"kind"`
	Headless  bool          `json:"headless"   mapstructure:"headless"`
	Timeout   time.Duration `json:"timeout"    mapstructure:"timeout"`
	Scenario  string        `json:"scenario"   mapstructure:"scenario"`
	UserAgent string        `json:"user_agent" mapstructure:"user_agent"`
}

// CodegenConfig controls generated test output.
type CodegenConfig struct {
	OutDir       string `json:"out_dir"       mapstructure:"out_dir"`
	Template     string `json:"template"      mapstructure:"template"`
	ImportPrefix string `json:"import_prefix" mapstructure:"import_prefix"`
	Archive      bool   `json:"archive"       mapstructure:"archive"`
}

// CatalogConfig locates the method catalog.
type CatalogConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// TraceConfig locates the JSONL run trace. Empty disables tracing.
type TraceConfig struct {
	Path   string       `json:"path"   mapstructure:"path"`
	Redact []RedactRule `json:"redact" mapstructure:"redact"`
}

// RedactRule masks matches of a regular expression in traced step data,
// such as typed passwords echoed in observations.
type RedactRule struct {
	Pattern string `json:"pattern" mapstructure:"pattern"`
	Replace string `json:"replace" mapstructure:"replace"`
}

// SetDefaults registers every key with its default so that environment
// overrides apply to all of them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("checkpoint.backend", "file")
	v.SetDefault("checkpoint.dir", ".casewright/checkpoints")
	v.SetDefault("checkpoint.db_path", ".casewright/checkpoints.db")
	v.SetDefault("checkpoint.commit_retries", 3)
	v.SetDefault("checkpoint.commit_backoff", 200*time.Millisecond)
	v.SetDefault("classifier.rules", []RuleConfig{})
	v.SetDefault("driver.kind", "chrome")
	v.SetDefault("driver.headless", true)
	v.SetDefault("driver.timeout", 30*time.Second)
	v.SetDefault("driver.scenario", "")
	v.SetDefault("driver.user_agent", "")
	v.SetDefault("codegen.out_dir", "tests")
	v.SetDefault("codegen.template", "")
	v.SetDefault("codegen.import_prefix", "../pages")
	v.SetDefault("codegen.archive", false)
	v.SetDefault("catalog.path", "catalog.yaml")
	v.SetDefault("trace.path", "")
	v.SetDefault("trace.redact", []RedactRule{})
	v.SetDefault("parallel", 1)
}

// Default returns the configuration with nothing overridden.
func Default() Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg, decodeHook())
	return cfg
}

// Load reads path (or DefaultFile when path is empty), applies environment
// overrides and validates the result. A missing DefaultFile is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case !explicit && (errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)):
		default:
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeHook() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
}

// Validate checks the settings against the embedded schema and the rules the
// schema cannot express.
func (c Config) Validate() error {
	if err := ValidateSettings(c); err != nil {
		return err
	}
	if c.Driver.Kind == "scripted" && c.Driver.Scenario == "" {
		return fmt.Errorf("driver.scenario is required when driver.kind is scripted")
	}
	if c.Checkpoint.Backend == "sqlite" && c.Checkpoint.DBPath == "" {
		return fmt.Errorf("checkpoint.db_path is required when checkpoint.backend is sqlite")
	}
	return nil
}
