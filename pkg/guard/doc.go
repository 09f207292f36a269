// Package guard provides Open Policy Agent (OPA) rules that the governance engine consults
// before it creates a proposal or executes an action batch.
//
// Every rule is a Rego module defining a deny set. The guard evaluates the deny set of each
// enabled rule against a Document built from the engine's GuardInput:
//
//	{
//	    "operation": "execute",
//	    "entity": "erd1...",
//	    "proposal": {"id": 3, "proposer": "erd1...", "permissions": ["grants"], ...},
//	    "actions": [{"destination": "erd1...", "endpoint": "fund", "value": "0", ...}],
//	    "proposer_roles": ["builder"]
//	}
//
// Amounts are decimal strings and call arguments are hex strings. A violation with severity
// error or critical blocks the operation.
//
// # Built-in Rules
//
//  1. action-batch-limit - At most 64 actions per batch
//  2. self-call-value - Self-calls may not carry native value
//  3. destination-required - Every action names a destination
//
// # Custom Rules
//
// Custom rules are loaded from .rego files, named after the file, or from JSON bundles:
//
//	package covenant.guard.treasury
//
//	import rego.v1
//
//	# Large payouts need the council role.
//	deny contains violation if {
//	    input.operation == "execute"
//	    some action in input.actions
//	    some payment in action.payments
//	    to_number(payment.amount) > 1000000
//	    not "council" in input.proposer_roles
//	    violation := {"message": "payout above 1000000 requires council", "severity": "error"}
//	}
//
// Guard.Watch reloads custom rules when their files change. Built-in rules cannot be replaced,
// only disabled.
package guard
