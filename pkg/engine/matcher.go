package engine

import "bytes"

// Matches reports whether action falls within the scope of perm.
//
// Empty scoping fields leave their axis unconstrained, but a permission that constrains none
// of endpoint, arguments and payments only covers actions that move native value.
func Matches(perm *Permission, action *Action) bool {
	if perm == nil || action == nil {
		return false
	}

	value := amountOrZero(action.Value)
	if isPositive(perm.ValueLimit) && value.Cmp(perm.ValueLimit) > 0 {
		return false
	}

	if !perm.Destination.IsZero() && perm.Destination != action.Destination {
		return false
	}

	if perm.Endpoint != "" && perm.Endpoint != action.Endpoint {
		return false
	}

	// Permission arguments are a prefix of the call arguments.
	if len(perm.Arguments) > 0 {
		if len(action.Arguments) < len(perm.Arguments) {
			return false
		}
		for i, arg := range perm.Arguments {
			if !bytes.Equal(arg, action.Arguments[i]) {
				return false
			}
		}
	}

	if len(perm.Payments) > 0 {
		for _, pay := range action.Payments {
			if !paymentAllowed(perm.Payments, pay) {
				return false
			}
		}
	}

	if perm.Endpoint == "" && len(perm.Arguments) == 0 && len(perm.Payments) == 0 && value.Sign() == 0 {
		return false
	}

	return true
}

func paymentAllowed(limits []Payment, pay Payment) bool {
	for _, limit := range limits {
		if limit.Token != pay.Token {
			continue
		}
		return amountOrZero(pay.Amount).Cmp(amountOrZero(limit.Amount)) <= 0
	}
	return false
}

// matchesAny reports whether action is covered by at least one of perms.
func matchesAny(perms []*Permission, action *Action) bool {
	for _, perm := range perms {
		if Matches(perm, action) {
			return true
		}
	}
	return false
}
