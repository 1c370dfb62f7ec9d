package harness

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/calcx/internal/compiler"
	"github.com/roach88/calcx/internal/ir"
	"github.com/roach88/calcx/internal/translation"
	"github.com/roach88/calcx/internal/types"
)

var accountsSpec = filepath.Join("testdata", "specs", "accounts.cue")

func resultNode(t *testing.T, v any) yaml.Node {
	t.Helper()
	var n yaml.Node
	require.NoError(t, n.Encode(v))
	return n
}

func TestRun_ExampleScenarios(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Len(t, result.Trace, len(scenario.Flow))
		})
	}
}

func TestRun_OverrideChainGolden(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "override_chain.yaml"))
	require.NoError(t, err)
	require.NoError(t, RunWithGolden(t, scenario))
}

func TestRun_ExpectMismatchReported(t *testing.T) {
	scenario := &Scenario{
		Name:        "mismatch",
		Description: "wrong expectations",
		Specs:       []string{accountsSpec},
		Records: []RecordStep{
			{Type: "Account", Fields: map[string]any{"Name": "alice", "Active": true}},
		},
		Flow: []FlowStep{
			{Evaluate: "Status", Expect: &ExpectClause{Result: resultNode(t, "closed")}},
			{Expand: "Account.Status", Expect: &ExpectClause{Error: "CIRCULAR_REFERENCE"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], `expected result "closed", got "active"`)
	assert.Contains(t, result.Errors[1], `expected error "CIRCULAR_REFERENCE", got ""`)
}

func TestRun_UnexpectedErrorReported(t *testing.T) {
	scenario := &Scenario{
		Name:        "unexpected",
		Description: "a step fails without an expectation",
		Specs:       []string{accountsSpec},
		Flow: []FlowStep{
			{Query: &QueryStep{From: "Account", Columns: []ColumnStep{{Name: "row", Expr: map[string]any{"this": true}}}}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, "UNSUPPORTED_TRANSLATION", result.Trace[0].Error)
	assert.Contains(t, result.Errors[0], "unexpected error UNSUPPORTED_TRANSLATION")
}

func TestRun_RowMismatchReported(t *testing.T) {
	scenario := &Scenario{
		Name:        "rows",
		Description: "wrong rows",
		Specs:       []string{accountsSpec},
		Records: []RecordStep{
			{Type: "Account", Fields: map[string]any{"Name": "alice", "Tier": "Gold"}},
		},
		Flow: []FlowStep{
			{
				Query: &QueryStep{From: "Account", Columns: []ColumnStep{{Name: "tier", Expr: map[string]any{"field": "Tier"}}}},
				Expect: &ExpectClause{Rows: []map[string]any{
					{"tier": "Basic"},
				}},
			},
			{
				Query:  &QueryStep{From: "Account", Columns: []ColumnStep{{Name: "name", Expr: map[string]any{"field": "Name"}}}},
				Expect: &ExpectClause{Rows: []map[string]any{{"name": "alice"}, {"name": "bob"}}},
			},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "row 0: column tier: expected 0, got 1")
	assert.Contains(t, result.Errors[1], "expected 2 rows, got 1")
}

func TestRun_NullResult(t *testing.T) {
	scenario := &Scenario{
		Name:        "null",
		Description: "an unset field evaluates to null",
		Specs:       []string{accountsSpec},
		Records:     []RecordStep{{Type: "Premium", Fields: map[string]any{"Name": "carol"}}},
		Flow: []FlowStep{
			{Evaluate: "Sponsor", Expect: &ExpectClause{Result: resultNode(t, nil)}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.True(t, ir.IsNull(result.Trace[0].Output))
}

func TestRun_FreshDatabasePerRun(t *testing.T) {
	scenario := &Scenario{
		Name:        "fresh",
		Description: "each run starts empty",
		Specs:       []string{accountsSpec},
		Records:     []RecordStep{{Type: "Account", Fields: map[string]any{"Name": "alice"}}},
		Flow: []FlowStep{
			{Query: &QueryStep{From: "Account", Columns: []ColumnStep{{Name: "name", Expr: map[string]any{"field": "Name"}}}}},
		},
	}

	for i := 0; i < 2; i++ {
		result, err := Run(scenario)
		require.NoError(t, err)
		require.True(t, result.Pass, "errors: %v", result.Errors)
		assert.Len(t, result.Trace[0].Rows, 1)
	}
}

func TestRun_SetupErrors(t *testing.T) {
	tests := []struct {
		name     string
		scenario *Scenario
		contains string
	}{
		{
			name:     "missing spec",
			scenario: &Scenario{Specs: []string{filepath.Join("testdata", "specs", "missing.cue")}},
			contains: "failed to compile specs",
		},
		{
			name: "unknown record type",
			scenario: &Scenario{
				Specs:   []string{accountsSpec},
				Records: []RecordStep{{Type: "Nope"}},
			},
			contains: `unknown type "Nope"`,
		},
		{
			name: "computed member as record field",
			scenario: &Scenario{
				Specs:   []string{accountsSpec},
				Records: []RecordStep{{Type: "Account", Fields: map[string]any{"Status": "x"}}},
			},
			contains: "Account.Status is not a stored field",
		},
		{
			name: "unknown enum value",
			scenario: &Scenario{
				Specs:   []string{accountsSpec},
				Records: []RecordStep{{Type: "Account", Fields: map[string]any{"Tier": "Platinum"}}},
			},
			contains: "enum Tier has no value Platinum",
		},
		{
			name: "float field",
			scenario: &Scenario{
				Specs:   []string{accountsSpec},
				Records: []RecordStep{{Type: "Account", Fields: map[string]any{"Name": 1.5}}},
			},
			contains: "floats are forbidden",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(tt.scenario)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "CIRCULAR_REFERENCE", ErrorCode(fmt.Errorf("wrapped: %w", &translation.Error{Code: translation.ErrCodeCircularReference})))
	assert.Equal(t, ErrCodeCompile, ErrorCode(fmt.Errorf("column x: %w", &compiler.CompileError{Field: "field", Message: "bad"})))
	assert.Equal(t, ErrCodeGeneric, ErrorCode(errors.New("boom")))
}

func TestToValue(t *testing.T) {
	tier := types.NewEnum("Tier", types.EnumValue{Name: "Basic", Value: 0}, types.EnumValue{Name: "Gold", Value: 1})

	v, err := toValue(tier, "Gold")
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(1), v)

	v, err = toValue(tier, 0)
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(0), v)

	v, err = toValue(types.String, "Gold")
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("Gold"), v)

	v, err = toValue(nil, true)
	require.NoError(t, err)
	assert.Equal(t, ir.IRBool(true), v)

	_, err = toValue(tier, "Silver")
	assert.Error(t, err)
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	assert.Empty(t, r.Errors)

	r.AddError("first")
	r.AddError("second")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"first", "second"}, r.Errors)
}

func TestSnapshot_Error(t *testing.T) {
	r := NewResult()
	r.AddEvent(TraceEvent{Step: 1, Kind: StepExpand, Subject: "Node.Left", Error: "CIRCULAR_REFERENCE"})
	r.AddEvent(TraceEvent{Step: 2, Kind: StepEvaluate, Subject: "Node[0].Name", Output: ir.IRNull{}})

	want := "scenario: s\n" +
		"[1] expand Node.Left\n" +
		"    error: CIRCULAR_REFERENCE\n" +
		"[2] evaluate Node[0].Name\n" +
		"    null\n"
	assert.Equal(t, want, string(Snapshot("s", r)))
}
