package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/calcx/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool                       `json:"valid"`
	Files      int                        `json:"files"`
	Types      int                        `json:"types"`
	Attributes int                        `json:"attributes"`
	Errors     []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [specs-dir]",
		Short: "Check declarations compile and every attribute inlines",
		Long: `Validate computed-attribute declarations.

Compiles the declarations, runs the schema checks (missing definitions,
body types, attribute cycles, dynamic join separators) and then inlines
every attribute, reporting the ones that cannot be translated.

The directory defaults to --specs.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), rootOpts, rootOpts.specsDir(args), cmd)
		},
	}

	return cmd
}

func runValidate(ctx context.Context, opts *RootOptions, specsDir string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter, err := opts.formatter(cmd)
	if err != nil {
		return err
	}

	res, m, err := NewMap(specsDir, opts.logger())
	if err != nil {
		return failLoad(formatter, err)
	}

	result := ValidationResult{
		Files:      res.FileCount,
		Types:      len(res.Schema.Types),
		Attributes: len(res.Schema.Attributes),
	}
	if result.Types == 0 {
		result.Errors = append(result.Errors, compiler.ValidationError{
			Field:   "specs",
			Message: "no types found in specs",
			Code:    ErrCodeGeneric,
		})
	}

	result.Errors = append(result.Errors, compiler.Validate(res.Schema)...)

	// Inlining is only meaningful once the schema checks pass: a cycle
	// would otherwise be reported twice.
	if len(result.Errors) == 0 {
		symbols, err := expandAll(ctx, res.Schema, m)
		if err != nil {
			result.Errors = append(result.Errors, compiler.ValidationError{
				Field:   "specs",
				Message: err.Error(),
				Code:    translationCode(err),
			})
		}
		for _, s := range symbols {
			if s.Error != nil {
				result.Errors = append(result.Errors, compiler.ValidationError{
					Field:   s.Symbol,
					Message: s.Error.Message,
					Code:    s.Error.Code,
				})
			}
		}
	}

	opts.logger().Debug("validated declarations",
		"dir", specsDir, "types", result.Types, "attributes", result.Attributes, "errors", len(result.Errors))

	if len(result.Errors) > 0 {
		// Validation failures = exit code 1 (test/validation failure)
		msg := fmt.Sprintf("validation failed with %d error(s)", len(result.Errors))
		return formatter.Failure(ExitFailure, result.Errors[0].Code, msg, result, func(w io.Writer) {
			fmt.Fprintln(w, "✗ Validation failed")
			fmt.Fprintln(w)
			for _, e := range result.Errors {
				if e.Line > 0 {
					fmt.Fprintf(w, "line %d\n", e.Line)
				}
				fmt.Fprintf(w, "  %s: %s: %s\n\n", e.Code, e.Field, e.Message)
			}
		})
	}

	result.Valid = true
	return formatter.Success(result, func(w io.Writer) {
		fmt.Fprintln(w, "✓ All specs valid")
		fmt.Fprintf(w, "  %d file(s), %d type(s), %d attribute(s)\n", result.Files, result.Types, result.Attributes)
	})
}
