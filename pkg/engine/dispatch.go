package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

// Self-call endpoints handled by the entity itself.
const (
	EndpointCreateRole          = "createRole"
	EndpointRemoveRole          = "removeRole"
	EndpointAssignRole          = "assignRole"
	EndpointUnassignRole        = "unassignRole"
	EndpointCreatePermission    = "createPermission"
	EndpointRemovePermission    = "removePermission"
	EndpointCreatePolicy        = "createPolicy"
	EndpointRemovePolicy        = "removePolicy"
	EndpointSetQuorum           = "setQuorum"
	EndpointSetMinVoteWeight    = "setMinVoteWeight"
	EndpointSetMinProposeWeight = "setMinProposeWeight"
	EndpointSetVotingPeriod     = "setVotingPeriod"
)

func (e *Engine) recordActions(target string, n int) {
	if e.metrics == nil {
		return
	}
	for i := 0; i < n; i++ {
		e.metrics.RecordActionExecuted(target)
	}
}

// dispatchSelf applies a self-call to the registry or settings inside tx.
func (e *Engine) dispatchSelf(ctx context.Context, tx Tx, op *operation, action *Action) error {
	args := callArgs(action.Arguments)
	r := e.registry(tx, op)

	switch action.Endpoint {
	case EndpointCreateRole:
		name, err := args.str(0)
		if err != nil {
			return err
		}
		return r.createRole(ctx, name)

	case EndpointRemoveRole:
		name, err := args.str(0)
		if err != nil {
			return err
		}
		return r.removeRole(ctx, name)

	case EndpointAssignRole, EndpointUnassignRole:
		name, err := args.str(0)
		if err != nil {
			return err
		}
		user, err := args.str(1)
		if err != nil {
			return err
		}
		if action.Endpoint == EndpointAssignRole {
			return r.assignRole(ctx, name, Address(user))
		}
		return r.unassignRole(ctx, name, Address(user))

	case EndpointCreatePermission:
		name, err := args.str(0)
		if err != nil {
			return err
		}
		limit, err := args.amount(1)
		if err != nil {
			return err
		}
		dest, err := args.str(2)
		if err != nil {
			return err
		}
		endpoint, err := args.str(3)
		if err != nil {
			return err
		}
		perm := &Permission{
			Name:        name,
			ValueLimit:  limit,
			Destination: Address(dest),
			Endpoint:    endpoint,
			Arguments:   args.rest(4),
			Payments:    action.Payments,
		}
		return r.createPermission(ctx, perm)

	case EndpointRemovePermission:
		name, err := args.str(0)
		if err != nil {
			return err
		}
		return r.removePermission(ctx, name)

	case EndpointCreatePolicy:
		role, err := args.str(0)
		if err != nil {
			return err
		}
		perm, err := args.str(1)
		if err != nil {
			return err
		}
		methodName, err := args.str(2)
		if err != nil {
			return err
		}
		method, err := ParsePolicyMethod(methodName)
		if err != nil {
			return err
		}
		quorum, err := args.amount(3)
		if err != nil {
			return err
		}
		minutes, err := args.u64(4)
		if err != nil {
			return err
		}
		return r.createPolicy(ctx, Policy{
			Role:                role,
			Permission:          perm,
			Method:              method,
			Quorum:              quorum,
			VotingPeriodMinutes: minutes,
		})

	case EndpointRemovePolicy:
		role, err := args.str(0)
		if err != nil {
			return err
		}
		perm, err := args.str(1)
		if err != nil {
			return err
		}
		return r.removePolicy(ctx, role, perm)

	case EndpointSetQuorum, EndpointSetMinVoteWeight, EndpointSetMinProposeWeight, EndpointSetVotingPeriod:
		return e.updateSettings(ctx, tx, op, action.Endpoint, args)

	default:
		return ErrUnknownEndpoint.WithDetail("endpoint", action.Endpoint)
	}
}

func (e *Engine) updateSettings(ctx context.Context, tx Tx, op *operation, endpoint string, args callArgs) error {
	current, err := e.settings(ctx, tx)
	if err != nil {
		return err
	}
	s := current.Clone()

	switch endpoint {
	case EndpointSetQuorum:
		v, err := args.amount(0)
		if err != nil {
			return err
		}
		if v.Sign() == 0 {
			return ErrZeroQuorum
		}
		s.Quorum = v
	case EndpointSetMinVoteWeight:
		v, err := args.amount(0)
		if err != nil {
			return err
		}
		s.MinVoteWeight = v
	case EndpointSetMinProposeWeight:
		v, err := args.amount(0)
		if err != nil {
			return err
		}
		s.MinProposeWeight = v
	case EndpointSetVotingPeriod:
		v, err := args.u64(0)
		if err != nil {
			return err
		}
		if v == 0 {
			return ErrInvalidArgument.Wrap(errors.New("voting period must be greater than zero"))
		}
		s.VotingPeriodMinutes = v
	}

	if err := tx.PutSettings(ctx, s); err != nil {
		return internal(fmt.Errorf("failed to store settings: %w", err))
	}
	op.emit(Event{Type: EventRegistryChanged, Data: map[string]interface{}{"change": endpoint}})
	return nil
}

// callArgs decodes positional self-call arguments.
type callArgs [][]byte

func (a callArgs) arg(i int) ([]byte, error) {
	if i >= len(a) {
		return nil, ErrInvalidArgument.Wrap(fmt.Errorf("missing argument %d", i))
	}
	return a[i], nil
}

func (a callArgs) str(i int) (string, error) {
	raw, err := a.arg(i)
	return string(raw), err
}

func (a callArgs) amount(i int) (*big.Int, error) {
	raw, err := a.arg(i)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

func (a callArgs) u64(i int) (uint64, error) {
	v, err := a.amount(i)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, ErrInvalidArgument.Wrap(fmt.Errorf("argument %d overflows uint64", i))
	}
	return v.Uint64(), nil
}

func (a callArgs) rest(i int) [][]byte {
	if i >= len(a) {
		return nil
	}
	out := make([][]byte, len(a)-i)
	copy(out, a[i:])
	return out
}
