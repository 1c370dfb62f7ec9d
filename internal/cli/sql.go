package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/cobra"

	"github.com/roach88/calcx/internal/compiler"
	"github.com/roach88/calcx/internal/expr"
	"github.com/roach88/calcx/internal/ir"
	"github.com/roach88/calcx/internal/queryir"
	"github.com/roach88/calcx/internal/querysql"
	"github.com/roach88/calcx/internal/store"
	"github.com/roach88/calcx/internal/types"
)

// SQLOptions holds flags for the sql command.
type SQLOptions struct {
	*RootOptions
	Columns []string // name=<expression>
	Where   string
	OrderBy []string // <expression> [asc|desc]
	Run     bool
}

// SQLResult holds the sql command output.
type SQLResult struct {
	SQL      string        `json:"sql"`
	Params   ir.IRArray    `json:"params"`
	Warnings []string      `json:"warnings,omitempty"`
	Rows     []ir.IRObject `json:"rows,omitempty"`
}

// NewSQLCommand creates the sql command.
func NewSQLCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SQLOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sql <Type>",
		Short: "Translate a query over computed members to SQL",
		Long: `Build a query over a declared type, inline every computed member it
reads and print the SQL with its parameters.

Expressions use the same CUE forms as declaration bodies; {this: true}
denotes the row. With --run the statement is executed against --database.

Examples:
  calcx sql Account --column 'status={field: "Status"}'
  calcx sql Account --column 'name={field: "Name"}' \
      --where '{eq: [{field: "Tier"}, {enum: "Tier.Gold"}]}' \
      --order-by '{field: "Status"} desc'
  calcx sql Account --column 'label={field: "Label"}' --run --database app.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSQL(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Columns, "column", "c", nil, "result column as name=<expression> (repeatable)")
	cmd.Flags().StringVarP(&opts.Where, "where", "w", "", "filter expression")
	cmd.Flags().StringArrayVar(&opts.OrderBy, "order-by", nil, "ordering expression, optionally followed by asc or desc (repeatable)")
	cmd.Flags().BoolVar(&opts.Run, "run", false, "execute the statement and print the rows")

	return cmd
}

func runSQL(ctx context.Context, opts *SQLOptions, from string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter, err := opts.formatter(cmd)
	if err != nil {
		return err
	}
	if len(opts.Columns) == 0 {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidQuery, "at least one --column is required")
	}

	res, m, err := NewMap(opts.specsDir(nil), opts.logger())
	if err != nil {
		return failLoad(formatter, err)
	}
	u := res.Schema.Universe

	q, err := buildQuery(u, from, opts)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidQuery, err.Error())
	}

	inlined, err := m.InlineQuery(q)
	if err != nil {
		return formatter.Fail(ExitFailure, translationCode(err), err.Error())
	}

	result := SQLResult{Warnings: queryir.Validate(inlined).Warnings}
	for _, w := range result.Warnings {
		opts.logger().Warn("query outside the translatable fragment", "warning", w)
	}

	sqlText, params, err := querysql.NewSQLCompiler(u).Compile(inlined)
	if err != nil {
		return formatter.Fail(ExitFailure, translationCode(err), err.Error())
	}
	result.SQL = sqlText
	result.Params = ir.IRArray{}
	for _, p := range params {
		v, err := ir.FromGo(p)
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeGeneric, err.Error())
		}
		result.Params = append(result.Params, v)
	}

	if opts.Run {
		rows, err := queryStore(ctx, opts.Database, u, inlined, sqlText, params)
		if err != nil {
			_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitFailure, "query failed", err)
		}
		result.Rows = rows
		opts.logger().Debug("query executed", "database", opts.Database, "rows", len(rows))
	}

	return formatter.Success(result, func(w io.Writer) {
		fmt.Fprintln(w, result.SQL)
		fmt.Fprintf(w, "-- params: %s\n", ir.Format(result.Params))
		for _, row := range result.Rows {
			fmt.Fprintln(w, ir.Format(row))
		}
	})
}

func queryStore(ctx context.Context, path string, u *types.Universe, q *queryir.Select, sqlText string, params []any) ([]ir.IRObject, error) {
	st, err := store.Open(path, u)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	defer st.Close()
	return st.Query(ctx, q, sqlText, params)
}

// buildQuery parses the column, filter and ordering flags into a select
// over the type named from.
func buildQuery(u *types.Universe, from string, opts *SQLOptions) (*queryir.Select, error) {
	t, ok := u.Lookup(from)
	if !ok {
		return nil, fmt.Errorf("unknown type %s", from)
	}
	if t.Kind != types.KindStruct {
		return nil, fmt.Errorf("%s is not a struct type", from)
	}

	ctx := cuecontext.New()
	q := queryir.NewSelect(t)
	for _, c := range opts.Columns {
		name, src, ok := strings.Cut(c, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("column %q: expected name=<expression>", c)
		}
		n, err := parseExpr(ctx, u, q.Row, src)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		q.Column(name, n)
	}

	if opts.Where != "" {
		n, err := parseExpr(ctx, u, q.Row, opts.Where)
		if err != nil {
			return nil, fmt.Errorf("where: %w", err)
		}
		q.Where(n)
	}

	for i, o := range opts.OrderBy {
		src, desc := splitDirection(o)
		n, err := parseExpr(ctx, u, q.Row, src)
		if err != nil {
			return nil, fmt.Errorf("order-by[%d]: %w", i, err)
		}
		q.Order(n, desc)
	}
	return q, nil
}

func parseExpr(ctx *cue.Context, u *types.Universe, row *expr.Parameter, src string) (expr.Node, error) {
	v := ctx.CompileString(src)
	if err := v.Err(); err != nil {
		return nil, err
	}
	return compiler.ParseExpr(u, row, v)
}

// splitDirection strips a trailing asc or desc keyword.
func splitDirection(s string) (string, bool) {
	s = strings.TrimSpace(s)
	i := strings.LastIndexAny(s, " \t")
	if i < 0 {
		return s, false
	}
	switch strings.ToLower(s[i+1:]) {
	case "desc":
		return strings.TrimSpace(s[:i]), true
	case "asc":
		return strings.TrimSpace(s[:i]), false
	}
	return s, false
}
