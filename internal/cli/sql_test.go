package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/calcx/internal/expr"
	"github.com/roach88/calcx/internal/ir"
	"github.com/roach88/calcx/internal/store"
)

// sqlResponse decodes the JSON envelope of the sql command. IR values are
// read back as plain JSON values.
type sqlResponse struct {
	Status string `json:"status"`
	Data   struct {
		SQL      string           `json:"sql"`
		Params   []any            `json:"params"`
		Warnings []string         `json:"warnings"`
		Rows     []map[string]any `json:"rows"`
	} `json:"data"`
	Error *CLIError `json:"error"`
}

func runSQLJSON(t *testing.T, opts *RootOptions, args ...string) (sqlResponse, error) {
	t.Helper()
	opts.Format = "json"
	out, err := execute(t, NewSQLCommand(opts), args...)
	var resp sqlResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp, err
}

func TestSQLCommand_StoredColumn(t *testing.T) {
	out, err := execute(t, NewSQLCommand(&RootOptions{Format: "text", Specs: specsDir}),
		"Book", "--column", `title={field: "Title"}`)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "Title" AS "title" FROM "Book" ORDER BY "id" COLLATE BINARY ASC`+"\n"+
			"-- params: []\n",
		out)
}

func TestSQLCommand_InlinesOverride(t *testing.T) {
	resp, err := runSQLJSON(t, &RootOptions{Specs: specsDir},
		"Book", "-c", `availability={field: "Availability"}`)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Contains(t, resp.Data.SQL, `CASE WHEN "_type" IN (?) THEN`)
	assert.Contains(t, resp.Data.SQL, `CASE WHEN "OnLoan" THEN ? ELSE ? END`)
	require.NotEmpty(t, resp.Data.Params)
	assert.Equal(t, "RareBook", resp.Data.Params[0])
	assert.Empty(t, resp.Data.Warnings)
}

func TestSQLCommand_WhereAndOrder(t *testing.T) {
	resp, err := runSQLJSON(t, &RootOptions{Specs: specsDir},
		"Book",
		"--column", `title={field: "Title"}`,
		"--where", `{eq: [{field: "Genre"}, {enum: "Genre.NonFiction"}]}`,
		"--order-by", `{field: "Title"} desc`,
	)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "Title" AS "title" FROM "Book" WHERE ("Genre" IS ?) ORDER BY "Title" DESC, "id" COLLATE BINARY ASC`,
		resp.Data.SQL)
	assert.Equal(t, []any{float64(1)}, resp.Data.Params)
}

func TestSQLCommand_Run(t *testing.T) {
	db := filepath.Join(t.TempDir(), "library.db")
	res, err := LoadSpecs(specsDir)
	require.NoError(t, err)
	u := res.Schema.Universe
	book, _ := u.Lookup("Book")
	rare, _ := u.Lookup("RareBook")

	st, err := store.Open(db, u)
	require.NoError(t, err)
	_, err = st.InsertAll(context.Background(), []*expr.Record{
		expr.NewRecord(book, ir.IRObject{"Title": ir.IRString("Dune"), "Genre": ir.IRInt(0), "OnLoan": ir.IRBool(true)}),
		expr.NewRecord(rare, ir.IRObject{"Title": ir.IRString("Folio"), "Genre": ir.IRInt(1), "OnLoan": ir.IRBool(false)}),
	})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	resp, err := runSQLJSON(t, &RootOptions{Specs: specsDir, Database: db},
		"Book",
		"--column", `title={field: "Title"}`,
		"--column", `availability={field: "Availability"}`,
		"--order-by", `{field: "Title"}`,
		"--run",
	)
	require.NoError(t, err)
	require.Len(t, resp.Data.Rows, 2)
	assert.Equal(t, map[string]any{"title": "Dune", "availability": "on loan"}, resp.Data.Rows[0])
	assert.Equal(t, map[string]any{"title": "Folio", "availability": "reading room"}, resp.Data.Rows[1])
}

func TestSQLCommand_Errors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		exitCode int
		code     string
	}{
		{
			name:     "no columns",
			args:     []string{"Book"},
			exitCode: ExitCommandError,
			code:     ErrCodeInvalidQuery,
		},
		{
			name:     "unknown type",
			args:     []string{"Nope", "-c", `x={field: "Title"}`},
			exitCode: ExitCommandError,
			code:     ErrCodeInvalidQuery,
		},
		{
			name:     "enum is not queryable",
			args:     []string{"Genre", "-c", `x={this: true}`},
			exitCode: ExitCommandError,
			code:     ErrCodeInvalidQuery,
		},
		{
			name:     "malformed column",
			args:     []string{"Book", "-c", `{field: "Title"}`},
			exitCode: ExitCommandError,
			code:     ErrCodeInvalidQuery,
		},
		{
			name:     "unknown member",
			args:     []string{"Book", "-c", `x={field: "Missing"}`},
			exitCode: ExitCommandError,
			code:     ErrCodeInvalidQuery,
		},
		{
			name:     "row as a column",
			args:     []string{"Book", "-c", `x={this: true}`},
			exitCode: ExitFailure,
			code:     "UNSUPPORTED_TRANSLATION",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := runSQLJSON(t, &RootOptions{Specs: specsDir}, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.exitCode, GetExitCode(err))
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestSQLCommand_CycleReported(t *testing.T) {
	resp, err := runSQLJSON(t, &RootOptions{Specs: badSpecsDir}, "Loop", "-c", `x={field: "Ping"}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "CIRCULAR_REFERENCE", resp.Error.Code)
}

func TestSplitDirection(t *testing.T) {
	tests := []struct {
		in   string
		src  string
		desc bool
	}{
		{`{field: "Title"}`, `{field: "Title"}`, false},
		{`{field: "Title"} desc`, `{field: "Title"}`, true},
		{`{field: "Title"}  DESC `, `{field: "Title"}`, true},
		{`{field: "Title"} asc`, `{field: "Title"}`, false},
		{`{const: "a desc"}`, `{const: "a desc"}`, false},
	}
	for _, tt := range tests {
		src, desc := splitDirection(tt.in)
		assert.Equal(t, tt.src, src, tt.in)
		assert.Equal(t, tt.desc, desc, tt.in)
	}
}
