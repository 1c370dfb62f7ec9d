package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/calcx/internal/config"
)

// RootOptions holds global flags for all commands. After the root command's
// pre-run they hold the merged configuration rather than the raw flags.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
	Specs      string // declarations directory
	Scenarios  string // scenarios directory, config only
	Database   string
	LogLevel   string

	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the calcx CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "calcx",
		Short: "calcx - computed attributes that compile to SQL",
		Long: `Declare computed members once, inline them into expressions that read
stored fields only, and translate queries over them to SQL.`,
		SilenceErrors: true, // main reports the error and picks the exit code
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", config.DefaultFormat, "output format (json|text)")
	flags.StringVar(&opts.ConfigFile, "config", "", "config file (default: calcx.yaml in the working directory)")
	flags.StringVar(&opts.Specs, "specs", config.DefaultSpecsDir, "declarations directory")
	flags.StringVar(&opts.Database, "database", config.DefaultDatabase, "SQLite database for queries")
	flags.StringVar(&opts.LogLevel, "log-level", config.DefaultLogLevel, "log level (debug|info|warn|error)")

	cmd.AddCommand(NewExpandCommand(opts))
	cmd.AddCommand(NewSQLCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// load merges defaults, the config file, the environment and the flags set
// on cmd into opts and builds the logger.
func (opts *RootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(opts.ConfigFile, ".", cmd.Flags())
	if err != nil {
		return NewExitError(ExitCommandError, err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return NewExitError(ExitCommandError, err.Error())
	}
	level, err := cfg.Level()
	if err != nil {
		return NewExitError(ExitCommandError, err.Error())
	}

	opts.Verbose = cfg.Verbose
	opts.Format = cfg.Format
	opts.Specs = cfg.Specs
	opts.Scenarios = cfg.Scenarios
	opts.Database = cfg.Database
	opts.LogLevel = cfg.LogLevel
	opts.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	if cfg.File != "" {
		opts.Logger.Debug("loaded config", "file", cfg.File)
	}
	return nil
}

// logger returns the configured logger, or one that discards everything
// when the root pre-run did not run (commands built on their own).
func (opts *RootOptions) logger() *slog.Logger {
	if opts.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return opts.Logger
}

// specsDir returns args[0] when given, else the configured directory.
func (opts *RootOptions) specsDir(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	if opts.Specs == "" {
		return config.DefaultSpecsDir
	}
	return opts.Specs
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (opts *RootOptions) formatter(cmd *cobra.Command) (*OutputFormatter, error) {
	if !isValidFormat(opts.Format) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
	}
	return &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}, nil
}
