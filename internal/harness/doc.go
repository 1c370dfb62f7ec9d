// Package harness provides conformance testing for computed-attribute
// declarations.
//
// The harness compiles declaration files, stores records in an in-memory
// database and runs a flow of steps against them: inlining a member,
// evaluating it directly on a record, and querying through SQL. Each step
// may carry an expectation; assertions then check the trace as a whole.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	specs:
//	  - ../specs/accounts.cue
//	records:
//	  - type: Premium
//	    fields: { Name: bob, Tier: Gold, Sponsor: acme }
//	flow:
//	  - expand: Account.Status
//	    expect:
//	      result: 'o => ...'
//	  - evaluate: Status
//	    record: 0
//	    expect:
//	      result: acme
//	  - query:
//	      from: Account
//	      columns:
//	        - { name: status, expr: { field: Status } }
//	      where: { eq: [ { field: Tier }, { enum: Tier.Gold } ] }
//	    expect:
//	      rows:
//	        - { status: acme }
//	assertions:
//	  - type: stored_only
//	  - type: final_state
//	    table: Account
//	    where: { Name: bob }
//	    expect: { Sponsor: acme }
//
// A step that is expected to fail names the error code instead:
//
//	expect:
//	  error: CIRCULAR_REFERENCE
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - stored_only: Inlined expressions read stored fields only
//   - row_count: A query step returned exactly N rows
//   - final_state: A stored record matching where holds the expected values
//
// # Deterministic Testing
//
// Row ids are UUIDv7 and never part of a step's output. Queries always
// order by id last, so rows come back in insertion order unless the query
// orders them otherwise. Snapshots of a run can therefore be compared
// against golden files with RunWithGolden.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/override_chain.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, err := range result.Errors {
//	        log.Println(err)
//	    }
//	}
package harness
