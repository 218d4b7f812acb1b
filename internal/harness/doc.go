// Package harness runs scripted scoring scenarios against the engine.
//
// # Scenario Format
//
// Scenarios are YAML files. Each step is one batch and carries exactly one
// of insert, retract or update:
//
//	name: high_risk_alert
//	description: "What this scenario validates"
//	params: ../params/narrow.cue   # optional, relative to this file
//	steps:
//	  - name: load
//	    insert:
//	      customers:
//	        - {id: 1, risk_level: high, status: active}
//	      transactions:
//	        - {id: 1, customer_id: 1, amount: "50000", location: loc_a}
//	    expect:
//	      score: "1050"
//	      constraints:
//	        high_value_transaction: {count: 1, contribution: "50"}
//	  - insert:
//	      alerts:
//	        - {ref: a1, location: loc_a, severity: 3}
//	  - retract: ["@a1"]
//	  - update:
//	      - target: "Customer#1"
//	        customer: {id: 1, risk_level: high, status: inactive}
//
// Facts with a ref can be targeted by later steps as @ref. Alerts have no
// natural id, so refs are the usual way to retract them.
//
// # Expectations
//
// An expect clause may check the total score, per-constraint counts and
// contributions, the exact set of live matches of a constraint (as tuple
// keys such as "Customer#1|Transaction#1") and the error code of a rejected
// batch. Decimals compare by value.
//
// # Golden Traces
//
// The trace of a run renders as canonical JSON, one entry per step with
// the facts touched and the committed snapshot. RunWithGolden compares it
// against testdata/golden/<name>.golden.
package harness
