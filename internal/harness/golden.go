package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/calcx/internal/ir"
)

// Snapshot renders the trace of a scenario as stable text, one block per
// step:
//
//	[1] expand Account.Status
//	    o => ...
//	[2] query Account
//	    sql: SELECT ...
//	    params: ["Premium"]
//	    row: {"name": "alice"}
//
// Row ids never appear, so snapshots do not depend on generated ids.
func Snapshot(scenarioName string, result *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", scenarioName)
	for _, ev := range result.Trace {
		fmt.Fprintf(&b, "[%d] %s %s\n", ev.Step, ev.Kind, ev.Subject)
		if ev.Error != "" {
			fmt.Fprintf(&b, "    error: %s\n", ev.Error)
			continue
		}
		switch ev.Kind {
		case StepExpand:
			if s, ok := ev.Output.(ir.IRString); ok {
				fmt.Fprintf(&b, "    %s\n", string(s))
			}
		case StepEvaluate:
			fmt.Fprintf(&b, "    %s\n", ir.Format(ev.Output))
		case StepQuery:
			fmt.Fprintf(&b, "    sql: %s\n", ev.SQL)
			fmt.Fprintf(&b, "    params: %s\n", ir.Format(ev.Params))
			for _, row := range ev.Rows {
				fmt.Fprintf(&b, "    row: %s\n", ir.Format(row))
			}
		}
	}
	return []byte(b.String())
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result's snapshot against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, Snapshot(scenarioName, result))

	return nil
}
