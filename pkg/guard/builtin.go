package guard

// MaxBatchActions is the largest action batch the action-batch-limit rule allows.
const MaxBatchActions = 64

// BuiltinRules returns the rules every guard starts with.
func BuiltinRules() []Rule {
	return []Rule{
		actionBatchLimitRule(),
		selfCallValueRule(),
		destinationRequiredRule(),
	}
}

// actionBatchLimitRule caps the number of actions in a batch.
func actionBatchLimitRule() Rule {
	return Rule{
		Name:        "action-batch-limit",
		Description: "Limits an action batch to 64 actions",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"actions", "limits"},
		Rego: `package covenant.guard.batch

import rego.v1

max_actions := 64

deny contains violation if {
	n := count(input.actions)
	n > max_actions
	violation := {
		"message": sprintf("action batch of %d exceeds the limit of %d", [n, max_actions]),
		"severity": "error",
	}
}`,
	}
}

// selfCallValueRule rejects native value sent to the entity itself. Payments stay allowed since
// createPermission carries the permission's payment limits as payments.
func selfCallValueRule() Rule {
	return Rule{
		Name:        "self-call-value",
		Description: "Self-calls may not carry native value",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"actions", "self-call"},
		Rego: `package covenant.guard.selfcall

import rego.v1

deny contains violation if {
	some i, action in input.actions
	action.destination == input.entity
	action.value != "0"
	violation := {
		"message": sprintf("self-call %d to %s carries value %s", [i, action.endpoint, action.value]),
		"severity": "error",
	}
}`,
	}
}

// destinationRequiredRule requires every action to name a destination.
func destinationRequiredRule() Rule {
	return Rule{
		Name:        "destination-required",
		Description: "Every action must name a destination",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"actions"},
		Rego: `package covenant.guard.destination

import rego.v1

deny contains violation if {
	some i, action in input.actions
	action.destination == ""
	violation := {
		"message": sprintf("action %d has no destination", [i]),
		"severity": "error",
	}
}`,
	}
}
