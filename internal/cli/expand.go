package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/calcx/internal/compiler"
	"github.com/roach88/calcx/internal/translation"
	"github.com/roach88/calcx/internal/types"
)

// ExpandedSymbol is the inlined form of one member, or why it has none.
type ExpandedSymbol struct {
	Symbol   string    `json:"symbol"`
	Kind     string    `json:"kind"`
	Expanded string    `json:"expanded,omitempty"`
	Error    *CLIError `json:"error,omitempty"`
}

// ExpandResult holds the expand command output.
type ExpandResult struct {
	Symbols []ExpandedSymbol `json:"symbols"`
	Failed  int              `json:"failed"`
}

// NewExpandCommand creates the expand command.
func NewExpandCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expand [Type.Member ...]",
		Short: "Print members inlined down to stored fields",
		Long: `Inline computed members and print the resulting lambdas.

With no arguments every declared attribute is expanded. A member may be
named with or without trailing parentheses: Account.Describe().

Exit codes:
  0 - All members expanded
  1 - One or more members could not be inlined
  2 - Command error (declarations not found or invalid)

Examples:
  calcx expand
  calcx expand Account.Status --specs ./specs
  calcx expand Account.Describe --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpand(cmd.Context(), rootOpts, args, cmd)
		},
	}
	return cmd
}

func runExpand(ctx context.Context, opts *RootOptions, refs []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter, err := opts.formatter(cmd)
	if err != nil {
		return err
	}

	res, m, err := NewMap(opts.specsDir(nil), opts.logger())
	if err != nil {
		return failLoad(formatter, err)
	}

	var symbols []ExpandedSymbol
	if len(refs) == 0 {
		symbols, err = expandAll(ctx, res.Schema, m)
		if err != nil {
			return formatter.Fail(ExitFailure, translationCode(err), err.Error())
		}
	} else {
		for _, ref := range refs {
			symbols = append(symbols, expandRef(res.Schema.Universe, m, ref))
		}
	}

	result := ExpandResult{Symbols: symbols}
	for _, s := range symbols {
		if s.Error != nil {
			result.Failed++
		}
	}

	text := func(w io.Writer) {
		for _, s := range symbols {
			if s.Error != nil {
				fmt.Fprintf(w, "✗ %s: %s: %s\n", s.Symbol, s.Error.Code, s.Error.Message)
				continue
			}
			fmt.Fprintf(w, "%s: %s\n", s.Symbol, s.Expanded)
		}
	}
	if result.Failed > 0 {
		msg := fmt.Sprintf("%d member(s) could not be inlined", result.Failed)
		return formatter.Failure(ExitFailure, firstErrorCode(symbols), msg, result, text)
	}
	return formatter.Success(result, text)
}

// expandRef inlines one "Type.Member" reference.
func expandRef(u *types.Universe, m *translation.Map, ref string) ExpandedSymbol {
	out := ExpandedSymbol{Symbol: ref, Kind: translation.PropertyMember.String()}
	typeName, member, ok := strings.Cut(strings.TrimSuffix(ref, "()"), ".")
	if !ok || typeName == "" || member == "" {
		out.Error = &CLIError{Code: ErrCodeGeneric, Message: fmt.Sprintf("expected Type.Member, got %q", ref)}
		return out
	}
	t, ok := u.Lookup(typeName)
	if !ok {
		out.Error = &CLIError{Code: ErrCodeGeneric, Message: fmt.Sprintf("unknown type %s", typeName)}
		return out
	}
	if decl, ok := t.LookupMember(member); ok && decl.Kind == types.Method {
		out.Kind = translation.MethodMember.String()
	}
	return inlineSymbol(m, t, member, out)
}

// expandAll inlines every attribute registered on a declared type,
// concurrently. Results keep registration order. The returned error is only
// set when the map itself cannot be initialized; per-member failures are
// reported in the symbols.
func expandAll(ctx context.Context, s *compiler.Schema, m *translation.Map) ([]ExpandedSymbol, error) {
	if err := m.EnsureAllInitialized(); err != nil {
		return nil, err
	}

	var entries []*translation.Entry
	for _, e := range m.Entries() {
		if e.IsAuto || !s.Declared(e.Symbol.Type) {
			continue
		}
		entries = append(entries, e)
	}

	out := make([]ExpandedSymbol, len(entries))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, e := range entries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = inlineSymbol(m, e.Symbol.Type, e.Symbol.Member, ExpandedSymbol{
				Symbol: e.Symbol.String(),
				Kind:   e.Symbol.Kind.String(),
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func inlineSymbol(m *translation.Map, t *types.Type, member string, out ExpandedSymbol) ExpandedSymbol {
	l, err := m.InlineMember(t, member)
	if err != nil {
		out.Error = &CLIError{Code: translationCode(err), Message: err.Error()}
		return out
	}
	out.Expanded = l.String()
	return out
}

// translationCode is the translation error code of err, or E001.
func translationCode(err error) string {
	var terr *translation.Error
	if errors.As(err, &terr) {
		return string(terr.Code)
	}
	return ErrCodeGeneric
}

func firstErrorCode(symbols []ExpandedSymbol) string {
	for _, s := range symbols {
		if s.Error != nil {
			return s.Error.Code
		}
	}
	return ErrCodeGeneric
}

// failLoad reports a declaration loading error. Loading failures are
// command errors (exit code 2).
func failLoad(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		msg := loadErr.Message
		if loadErr.Pos.IsValid() {
			msg = fmt.Sprintf("%s:%d:%d: %s", loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column(), msg)
		}
		return formatter.Fail(ExitCommandError, loadErr.Code, msg)
	}
	return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error())
}
