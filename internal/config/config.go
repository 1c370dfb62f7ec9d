// Package config loads calcx settings from defaults, an optional calcx.yaml,
// CALCX_ environment variables and command-line flags, in increasing order
// of precedence.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Defaults.
const (
	DefaultSpecsDir     = "specs"
	DefaultScenariosDir = "testdata/scenarios"
	DefaultDatabase     = ":memory:"
	DefaultFormat       = "text"
	DefaultLogLevel     = "warn"

	EnvPrefix = "CALCX_"
)

// FileNames are the config file names searched in the working directory.
var FileNames = []string{"calcx.yaml", "calcx.yml"}

// Config holds all calcx settings.
type Config struct {
	Specs     string `koanf:"specs"`
	Scenarios string `koanf:"scenarios"`
	Database  string `koanf:"database"`
	Format    string `koanf:"format"`
	Verbose   bool   `koanf:"verbose"`
	LogLevel  string `koanf:"log_level"`

	// File is the config file that was read, empty when none.
	File string `koanf:"-"`
}

// Load reads the configuration. cfgFile names an explicit config file; when
// empty, the FileNames are looked up in dir. flags may be nil; only flags
// that were set on the command line override other sources.
func Load(cfgFile, dir string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]any{
		"specs":     DefaultSpecsDir,
		"scenarios": DefaultScenariosDir,
		"database":  DefaultDatabase,
		"format":    DefaultFormat,
		"verbose":   false,
		"log_level": DefaultLogLevel,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if cfgFile == "" {
		cfgFile = findConfigFile(dir)
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	// CALCX_LOG_LEVEL -> log_level
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			// Transform kebab-case to snake_case for config keys
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = cfgFile
	return &cfg, nil
}

func findConfigFile(dir string) string {
	for _, name := range FileNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// Validate checks the settings that have a closed set of values.
func (c *Config) Validate() error {
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid format %q: must be text or json", c.Format)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Database) == "" {
		return fmt.Errorf("database is required")
	}
	return nil
}

// Level is the slog level to log at. Verbose forces debug.
func (c *Config) Level() (slog.Level, error) {
	if c.Verbose {
		return slog.LevelDebug, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}
