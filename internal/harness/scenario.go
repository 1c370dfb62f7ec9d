package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
// Scenarios compile a set of declarations, store a few records and check
// what inlining, direct evaluation and SQL queries produce for them.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs lists paths to CUE declaration files to compile together.
	// Paths are relative to the scenario file location.
	Specs []string `yaml:"specs"`

	// Records are stored before the flow runs, in order. Evaluate steps
	// refer to them by index.
	Records []RecordStep `yaml:"records,omitempty"`

	// Flow contains the steps to execute, each with an optional expectation.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the trace and the stored state after the flow.
	// Supported types: stored_only, row_count, final_state
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// RecordStep is one record to store.
type RecordStep struct {
	// Type is the runtime type of the record.
	Type string `yaml:"type"`

	// Fields holds stored field values. Enum fields take a value name or
	// its integer value. Fields left out are null.
	Fields map[string]any `yaml:"fields,omitempty"`
}

// FlowStep is one step of the flow. Exactly one of Expand, Evaluate and
// Query must be set.
type FlowStep struct {
	// Expand inlines a member read, e.g. "Account.Status". The result is
	// the inlined lambda over a parameter named o.
	Expand string `yaml:"expand,omitempty"`

	// Evaluate calls a member directly on Records[Record].
	Evaluate string `yaml:"evaluate,omitempty"`
	Record   int    `yaml:"record,omitempty"`

	// Query is inlined, compiled to SQL and run against the stored records.
	Query *QueryStep `yaml:"query,omitempty"`

	// Expect specifies the expected outcome.
	// If nil, the step only has to succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// QueryStep describes a select over a type hierarchy. Expressions use the
// declaration syntax, with {this: true} standing for the row.
type QueryStep struct {
	From    string         `yaml:"from"`
	Columns []ColumnStep   `yaml:"columns"`
	Where   map[string]any `yaml:"where,omitempty"`
	OrderBy []OrderStep    `yaml:"order_by,omitempty"`
}

// ColumnStep is one named result column.
type ColumnStep struct {
	Name string         `yaml:"name"`
	Expr map[string]any `yaml:"expr"`
}

// OrderStep is one ORDER BY term.
type OrderStep struct {
	Expr map[string]any `yaml:"expr"`
	Desc bool           `yaml:"desc,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Result is the expected inlined form (expand) or value (evaluate).
	// A node is used so an explicit null can be told from no expectation.
	Result yaml.Node `yaml:"result,omitempty"`

	// Rows are the expected query rows, in order. Only the columns listed
	// are compared.
	Rows []map[string]any `yaml:"rows,omitempty"`

	// SQL is the expected statement text of a query step.
	SQL string `yaml:"sql,omitempty"`

	// Error is the expected error code, e.g. "CIRCULAR_REFERENCE".
	Error string `yaml:"error,omitempty"`
}

// HasResult reports whether a result expectation was given.
func (e *ExpectClause) HasResult() bool {
	return e.Result.Kind != 0
}

// Assertion validates the trace or the stored state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "stored_only": inlined expressions read stored fields only
	// - "row_count": a query step returned exactly Count rows
	// - "final_state": a stored record matching Where has the Expect values
	Type string `yaml:"type"`

	// Step is the 1-based flow step the assertion looks at. Zero means
	// every step (stored_only only).
	Step int `yaml:"step,omitempty"`

	// Count is the expected number of rows (used by row_count).
	Count int `yaml:"count,omitempty"`

	// Table is the type whose records are searched (used by final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies field filters (used by final_state).
	// All fields must match exactly.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected field values (used by final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertStoredOnly = "stored_only"
	AssertRowCount   = "row_count"
	AssertFinalState = "final_state"
)

// Step kinds, as recorded in the trace.
const (
	StepExpand   = "expand"
	StepEvaluate = "evaluate"
	StepQuery    = "query"
)

// Kind returns the kind of the step, or "" when it sets none or several.
func (s FlowStep) Kind() string {
	var kinds []string
	if s.Expand != "" {
		kinds = append(kinds, StepExpand)
	}
	if s.Evaluate != "" {
		kinds = append(kinds, StepEvaluate)
	}
	if s.Query != nil {
		kinds = append(kinds, StepQuery)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// LoadScenario reads and parses a scenario YAML file.
// Spec paths are resolved relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving spec paths relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "expands:" vs "expand:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve spec paths relative to base path BEFORE validation
	for i, specPath := range scenario.Specs {
		if !filepath.IsAbs(specPath) && basePath != "" {
			scenario.Specs[i] = filepath.Join(basePath, specPath)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Specs) == 0 {
		return fmt.Errorf("specs list is required and must be non-empty")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for _, specPath := range s.Specs {
		if _, err := os.Stat(specPath); os.IsNotExist(err) {
			return fmt.Errorf("spec file not found: %s", specPath)
		}
	}

	for i, rec := range s.Records {
		if rec.Type == "" {
			return fmt.Errorf("records[%d]: type is required", i)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(i, step, len(s.Records)); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, len(s.Flow)); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step FlowStep, records int) error {
	switch step.Kind() {
	case "":
		return fmt.Errorf("flow[%d]: exactly one of expand, evaluate or query is required", index)
	case StepEvaluate:
		if step.Record < 0 || step.Record >= records {
			return fmt.Errorf("flow[%d]: record %d out of range (%d records)", index, step.Record, records)
		}
	case StepQuery:
		q := step.Query
		if q.From == "" {
			return fmt.Errorf("flow[%d].query: from is required", index)
		}
		if len(q.Columns) == 0 {
			return fmt.Errorf("flow[%d].query: columns list is required and must be non-empty", index)
		}
		for j, c := range q.Columns {
			if c.Name == "" || c.Expr == nil {
				return fmt.Errorf("flow[%d].query.columns[%d]: name and expr are required", index, j)
			}
		}
		for j, o := range q.OrderBy {
			if o.Expr == nil {
				return fmt.Errorf("flow[%d].query.order_by[%d]: expr is required", index, j)
			}
		}
	}
	if step.Expect != nil && step.Kind() != StepQuery && (step.Expect.Rows != nil || step.Expect.SQL != "") {
		return fmt.Errorf("flow[%d].expect: rows and sql apply to query steps only", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, steps int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Step < 0 || a.Step > steps {
		return fmt.Errorf("assertions[%d]: step %d out of range (%d steps)", index, a.Step, steps)
	}

	switch a.Type {
	case AssertStoredOnly:
	case AssertRowCount:
		if a.Step == 0 {
			return fmt.Errorf("assertions[%d]: step is required for row_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
