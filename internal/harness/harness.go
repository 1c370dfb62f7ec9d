package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/calcx/internal/compiler"
	"github.com/roach88/calcx/internal/expr"
	"github.com/roach88/calcx/internal/ir"
	"github.com/roach88/calcx/internal/queryir"
	"github.com/roach88/calcx/internal/querysql"
	"github.com/roach88/calcx/internal/store"
	"github.com/roach88/calcx/internal/translation"
	"github.com/roach88/calcx/internal/types"
)

// Error codes recorded for failures that are not translation errors.
const (
	ErrCodeCompile = "COMPILE_ERROR"
	ErrCodeGeneric = "ERROR"
)

// Harness is the test execution engine for one scenario.
type Harness struct {
	universe *types.Universe
	tmap     *translation.Map
	store    *store.Store
	sql      *querysql.SQLCompiler
	cue      *cue.Context
	records  []*expr.Record
	logger   *slog.Logger
}

// Option configures Run.
type Option func(*Harness)

// WithLogger routes translation and harness logs to l. By default logs are
// discarded.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Compile the scenario's declaration files
// 2. Install them into a new translation map
// 3. Store the records
// 4. Execute flow steps with expect validation
// 5. Evaluate assertions
//
// An error is returned only when the scenario cannot be set up; step
// failures are reported in the result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	return RunContext(context.Background(), scenario, opts...)
}

// RunContext is Run with a caller-supplied context for store access.
func RunContext(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		cue:    cuecontext.New(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}

	schema, err := compiler.CompileFiles(scenario.Specs...)
	if err != nil {
		return nil, fmt.Errorf("failed to compile specs: %w", err)
	}
	h.universe = schema.Universe

	h.tmap, err = schema.NewMap(translation.WithLogger(h.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to install specs: %w", err)
	}
	h.sql = querysql.NewSQLCompiler(h.universe)

	st, err := store.Open(":memory:", h.universe)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()
	h.store = st

	if err := h.storeRecords(ctx, scenario.Records); err != nil {
		return nil, fmt.Errorf("failed to store records: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Flow {
		ev := h.execute(ctx, i+1, step)
		h.logger.Debug("step executed", "scenario", scenario.Name, "step", ev.Step, "kind", ev.Kind, "error", ev.Error)
		result.AddEvent(ev)
		for _, msg := range checkExpect(ev, step, h) {
			result.AddError(fmt.Sprintf("flow[%d] %s %s: %s", i, ev.Kind, ev.Subject, msg))
		}
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) storeRecords(ctx context.Context, steps []RecordStep) error {
	for i, step := range steps {
		rec, err := h.record(step)
		if err != nil {
			return fmt.Errorf("records[%d]: %w", i, err)
		}
		h.records = append(h.records, rec)
	}
	_, err := h.store.InsertAll(ctx, h.records)
	return err
}

// record builds the in-memory record for step.
func (h *Harness) record(step RecordStep) (*expr.Record, error) {
	t, ok := h.universe.Lookup(step.Type)
	if !ok {
		return nil, fmt.Errorf("unknown type %q", step.Type)
	}
	if t.IsEnum() {
		return nil, fmt.Errorf("%s is an enum, not a record type", t)
	}
	values, err := fieldValues(t, step.Fields)
	if err != nil {
		return nil, err
	}
	return expr.NewRecord(t, values), nil
}

// fieldValues converts scenario field values using the member types of t.
func fieldValues(t *types.Type, fields map[string]any) (ir.IRObject, error) {
	values := make(ir.IRObject, len(fields))
	for name, raw := range fields {
		m, ok := t.LookupMember(name)
		if !ok || m.Kind != types.Field {
			return nil, fmt.Errorf("%s.%s is not a stored field", t, name)
		}
		v, err := toValue(m.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t, name, err)
		}
		values[name] = v
	}
	return values, nil
}

// toValue converts a YAML value to an IRValue of type t. Enum values may be
// given by name.
func toValue(t *types.Type, raw any) (ir.IRValue, error) {
	if s, ok := raw.(string); ok && t != nil && t.IsEnum() {
		v, ok := t.Value(s)
		if !ok {
			return nil, fmt.Errorf("enum %s has no value %s", t, s)
		}
		return ir.IRInt(v.Value), nil
	}
	return ir.FromGo(raw)
}

// execute runs one flow step and records its outcome.
func (h *Harness) execute(ctx context.Context, n int, step FlowStep) TraceEvent {
	ev := TraceEvent{Step: n, Kind: step.Kind()}
	var err error
	switch ev.Kind {
	case StepExpand:
		ev.Subject = step.Expand
		err = h.expand(&ev, step.Expand)
	case StepEvaluate:
		ev.Subject = fmt.Sprintf("%s[%d].%s", h.records[step.Record].Typ, step.Record, step.Evaluate)
		err = h.evaluate(&ev, h.records[step.Record], step.Evaluate)
	case StepQuery:
		ev.Subject = step.Query.From
		err = h.query(ctx, &ev, step.Query)
	}
	if err != nil {
		ev.Error = ErrorCode(err)
		h.logger.Debug("step failed", "step", n, "error", err)
	}
	return ev
}

// expand inlines a read of ref ("Type.Member") over a parameter named o.
func (h *Harness) expand(ev *TraceEvent, ref string) error {
	typeName, member, ok := strings.Cut(ref, ".")
	if !ok {
		return fmt.Errorf("expand %q: expected Type.Member", ref)
	}
	t, ok := h.universe.Lookup(typeName)
	if !ok {
		return fmt.Errorf("expand %q: unknown type %s", ref, typeName)
	}

	inlined, err := h.tmap.InlineMember(t, member)
	if err != nil {
		return err
	}
	ev.Output = ir.IRString(inlined.String())
	ev.inlined = []expr.Node{inlined}
	return nil
}

func (h *Harness) evaluate(ev *TraceEvent, rec *expr.Record, member string) error {
	v, err := h.tmap.Evaluate(rec, member)
	if err != nil {
		return err
	}
	ev.Output = v
	return nil
}

// query builds the select, inlines it, compiles it to SQL and runs it.
func (h *Harness) query(ctx context.Context, ev *TraceEvent, step *QueryStep) error {
	q, err := h.buildQuery(step)
	if err != nil {
		return err
	}
	inlined, err := h.tmap.InlineQuery(q)
	if err != nil {
		return err
	}
	ev.inlined = inlined.Exprs()

	sqlText, params, err := h.sql.Compile(inlined)
	if err != nil {
		return err
	}
	ev.SQL = sqlText
	ev.Params = ir.IRArray{}
	for _, p := range params {
		v, err := ir.FromGo(p)
		if err != nil {
			return err
		}
		ev.Params = append(ev.Params, v)
	}

	rows, err := h.store.Query(ctx, inlined, sqlText, params)
	if err != nil {
		return err
	}
	ev.Rows = rows
	return nil
}

func (h *Harness) buildQuery(step *QueryStep) (*queryir.Select, error) {
	from, ok := h.universe.Lookup(step.From)
	if !ok {
		return nil, fmt.Errorf("query: unknown type %s", step.From)
	}
	q := queryir.NewSelect(from)
	for _, c := range step.Columns {
		n, err := h.parse(q.Row, c.Expr)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		q.Column(c.Name, n)
	}
	if step.Where != nil {
		n, err := h.parse(q.Row, step.Where)
		if err != nil {
			return nil, fmt.Errorf("where: %w", err)
		}
		q.Where(n)
	}
	for i, o := range step.OrderBy {
		n, err := h.parse(q.Row, o.Expr)
		if err != nil {
			return nil, fmt.Errorf("order_by[%d]: %w", i, err)
		}
		q.Order(n, o.Desc)
	}
	return q, nil
}

// parse compiles a YAML expression object through the declaration parser.
func (h *Harness) parse(row *expr.Parameter, e map[string]any) (expr.Node, error) {
	v := h.cue.Encode(e)
	if err := v.Err(); err != nil {
		return nil, err
	}
	return compiler.ParseExpr(h.universe, row, v)
}

// ErrorCode classifies err for scenario expectations: the translation
// error code when there is one, COMPILE_ERROR for declaration and
// expression errors, ERROR otherwise.
func ErrorCode(err error) string {
	var te *translation.Error
	if errors.As(err, &te) {
		return string(te.Code)
	}
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		return ErrCodeCompile
	}
	return ErrCodeGeneric
}

// checkExpect compares ev against the step's expectation and returns one
// message per mismatch.
func checkExpect(ev TraceEvent, step FlowStep, h *Harness) []string {
	exp := step.Expect
	if exp == nil {
		if ev.Error != "" {
			return []string{fmt.Sprintf("unexpected error %s", ev.Error)}
		}
		return nil
	}

	if exp.Error != "" || ev.Error != "" {
		if exp.Error != ev.Error {
			return []string{fmt.Sprintf("expected error %q, got %q", exp.Error, ev.Error)}
		}
		return nil
	}

	var msgs []string
	if exp.HasResult() {
		var raw any
		if err := exp.Result.Decode(&raw); err != nil {
			return []string{fmt.Sprintf("invalid expected result: %v", err)}
		}
		want, err := toValue(resultType(step, h), raw)
		if err != nil {
			return []string{fmt.Sprintf("invalid expected result: %v", err)}
		}
		if !ir.Equal(want, ev.Output) {
			msgs = append(msgs, fmt.Sprintf("expected result %s, got %s", ir.Format(want), ir.Format(ev.Output)))
		}
	}
	if exp.SQL != "" && exp.SQL != ev.SQL {
		msgs = append(msgs, fmt.Sprintf("expected sql %q, got %q", exp.SQL, ev.SQL))
	}
	if exp.Rows != nil {
		msgs = append(msgs, compareRows(exp.Rows, ev.Rows, step.Query, h)...)
	}
	return msgs
}

// resultType returns the static type of an evaluate step's member, used to
// read enum value names in expectations.
func resultType(step FlowStep, h *Harness) *types.Type {
	if step.Kind() != StepEvaluate {
		return nil
	}
	m, ok := h.records[step.Record].Typ.LookupMember(step.Evaluate)
	if !ok {
		return nil
	}
	return m.Type
}

func compareRows(want []map[string]any, got []ir.IRObject, q *QueryStep, h *Harness) []string {
	if len(want) != len(got) {
		return []string{fmt.Sprintf("expected %d rows, got %d", len(want), len(got))}
	}
	colType := make(map[string]*types.Type)
	if qs, err := h.buildQuery(q); err == nil {
		for _, c := range qs.Columns {
			colType[c.Name] = c.Expr.Type()
		}
	}

	var msgs []string
	for i, row := range want {
		for name, raw := range row {
			v, err := toValue(colType[name], raw)
			if err != nil {
				msgs = append(msgs, fmt.Sprintf("row %d: column %s: %v", i, name, err))
				continue
			}
			actual, ok := got[i][name]
			if !ok {
				msgs = append(msgs, fmt.Sprintf("row %d: no column %s", i, name))
				continue
			}
			if !ir.Equal(v, actual) {
				msgs = append(msgs, fmt.Sprintf("row %d: column %s: expected %s, got %s", i, name, ir.Format(v), ir.Format(actual)))
			}
		}
	}
	return msgs
}
