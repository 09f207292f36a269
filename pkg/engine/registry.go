package engine

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// registry applies role, permission and policy changes inside a transaction. It is shared by
// the public self-only operations, self-call dispatch and genesis bootstrap.
type registry struct {
	e  *Engine
	tx Tx
	op *operation
}

func (e *Engine) registry(tx Tx, op *operation) *registry {
	return &registry{e: e, tx: tx, op: op}
}

func (r *registry) changed(kind, name string, extra map[string]interface{}) {
	data := map[string]interface{}{"change": kind, "name": name}
	for k, v := range extra {
		data[k] = v
	}
	r.op.emit(Event{Type: EventRegistryChanged, Data: data})
}

// hasSovereigntyAnchor reports whether the entity can still be governed without leaders.
func (e *Engine) hasSovereigntyAnchor() bool {
	return e.hasVoteSource()
}

func (r *registry) createRole(ctx context.Context, name string) error {
	if name == "" {
		return ErrInvalidArgument.Wrap(errors.New("role name is required"))
	}
	existing, err := r.tx.GetRole(ctx, name)
	if err != nil {
		return internal(fmt.Errorf("failed to load role: %w", err))
	}
	if existing != nil {
		return ErrRoleExists.WithDetail("role", name)
	}
	if err := r.tx.PutRole(ctx, name); err != nil {
		return internal(fmt.Errorf("failed to create role: %w", err))
	}
	r.changed("role_created", name, nil)
	return nil
}

func (r *registry) removeRole(ctx context.Context, name string) error {
	role, err := r.tx.GetRole(ctx, name)
	if err != nil {
		return internal(fmt.Errorf("failed to load role: %w", err))
	}
	if role == nil {
		return ErrRoleNotFound.WithDetail("role", name)
	}
	if name == RoleLeader && role.MemberCount > 0 && !r.e.hasSovereigntyAnchor() {
		return ErrLeaderlessForbidden
	}
	if err := r.tx.DeleteRole(ctx, name); err != nil {
		return internal(fmt.Errorf("failed to remove role: %w", err))
	}
	r.changed("role_removed", name, nil)
	return nil
}

func (r *registry) assignRole(ctx context.Context, name string, user Address) error {
	if user.IsZero() {
		return ErrInvalidArgument.Wrap(errors.New("user address is required"))
	}
	role, err := r.tx.GetRole(ctx, name)
	if err != nil {
		return internal(fmt.Errorf("failed to load role: %w", err))
	}
	if role == nil {
		return ErrRoleNotFound.WithDetail("role", name)
	}
	id, err := r.tx.EnsureUser(ctx, user)
	if err != nil {
		return internal(fmt.Errorf("failed to register user: %w", err))
	}
	added, err := r.tx.AddRoleMember(ctx, name, id)
	if err != nil {
		return internal(fmt.Errorf("failed to assign role: %w", err))
	}
	if added {
		r.changed("role_assigned", name, map[string]interface{}{"user": string(user)})
	}
	return nil
}

func (r *registry) unassignRole(ctx context.Context, name string, user Address) error {
	id, err := r.tx.UserID(ctx, user)
	if err != nil {
		return internal(fmt.Errorf("failed to resolve user: %w", err))
	}
	if id == 0 {
		return nil
	}
	role, err := r.tx.GetRole(ctx, name)
	if err != nil {
		return internal(fmt.Errorf("failed to load role: %w", err))
	}
	if role == nil {
		return nil
	}

	if name == RoleLeader && role.MemberCount == 1 && !r.e.hasSovereigntyAnchor() {
		members, err := r.tx.RoleMembers(ctx, name)
		if err != nil {
			return internal(fmt.Errorf("failed to load role members: %w", err))
		}
		if containsID(members, id) {
			return ErrLeaderlessForbidden
		}
	}

	removed, err := r.tx.RemoveRoleMember(ctx, name, id)
	if err != nil {
		return internal(fmt.Errorf("failed to unassign role: %w", err))
	}
	if removed {
		r.changed("role_unassigned", name, map[string]interface{}{"user": string(user)})
	}
	return nil
}

func (r *registry) createPermission(ctx context.Context, perm *Permission) error {
	if perm == nil || perm.Name == "" {
		return ErrInvalidArgument.Wrap(errors.New("permission name is required"))
	}
	if perm.ValueLimit != nil && perm.ValueLimit.Sign() < 0 {
		return ErrInvalidArgument.Wrap(errors.New("value limit must not be negative"))
	}
	if err := r.tx.PutPermission(ctx, perm); err != nil {
		return internal(fmt.Errorf("failed to store permission: %w", err))
	}
	r.changed("permission_created", perm.Name, nil)
	return nil
}

func (r *registry) removePermission(ctx context.Context, name string) error {
	perm, err := r.tx.GetPermission(ctx, name)
	if err != nil {
		return internal(fmt.Errorf("failed to load permission: %w", err))
	}
	if perm == nil {
		return ErrPermissionNotFound.WithDetail("permission", name)
	}
	if err := r.tx.DeletePermission(ctx, name); err != nil {
		return internal(fmt.Errorf("failed to remove permission: %w", err))
	}
	r.changed("permission_removed", name, nil)
	return nil
}

func (r *registry) createPolicy(ctx context.Context, policy Policy) error {
	if err := policy.Method.Validate(); err != nil {
		return err
	}
	if policy.Method.RequiresQuorum() && !isPositive(policy.Quorum) {
		return ErrZeroQuorum
	}

	role, err := r.tx.GetRole(ctx, policy.Role)
	if err != nil {
		return internal(fmt.Errorf("failed to load role: %w", err))
	}
	if role == nil {
		return ErrRoleNotFound.WithDetail("role", policy.Role)
	}
	perm, err := r.tx.GetPermission(ctx, policy.Permission)
	if err != nil {
		return internal(fmt.Errorf("failed to load permission: %w", err))
	}
	if perm == nil {
		return ErrPermissionNotFound.WithDetail("permission", policy.Permission)
	}
	existing, err := r.tx.GetPolicy(ctx, policy.Role, policy.Permission)
	if err != nil {
		return internal(fmt.Errorf("failed to load policy: %w", err))
	}
	if existing != nil {
		return ErrPolicyExists.WithDetail("role", policy.Role).WithDetail("permission", policy.Permission)
	}

	policy.Quorum = amountOrZero(policy.Quorum)
	if err := r.tx.PutPolicy(ctx, &policy); err != nil {
		return internal(fmt.Errorf("failed to store policy: %w", err))
	}
	r.changed("policy_created", policy.Role, map[string]interface{}{
		"permission": policy.Permission,
		"method":     string(policy.Method),
	})
	return nil
}

func (r *registry) removePolicy(ctx context.Context, role, permission string) error {
	existing, err := r.tx.GetPolicy(ctx, role, permission)
	if err != nil {
		return internal(fmt.Errorf("failed to load policy: %w", err))
	}
	if existing == nil {
		return ErrPolicyNotFound.WithDetail("role", role).WithDetail("permission", permission)
	}
	if err := r.tx.DeletePolicy(ctx, role, permission); err != nil {
		return internal(fmt.Errorf("failed to remove policy: %w", err))
	}
	r.changed("policy_removed", role, map[string]interface{}{"permission": permission})
	return nil
}

// selfOnly runs fn as a registry mutation after checking that caller is the entity itself.
func (e *Engine) selfOnly(ctx context.Context, name string, caller Address, attrs []attribute.KeyValue, fn func(ctx context.Context, r *registry) error) error {
	return e.run(ctx, name, caller, attrs, func(ctx context.Context, op *operation) error {
		if caller != e.cfg.EntityAddress {
			return ErrNotSelf
		}
		return e.store.Update(ctx, func(tx Tx) error {
			return fn(ctx, e.registry(tx, op))
		})
	})
}

// CreateRole creates an empty role. Only the entity itself may call it.
func (e *Engine) CreateRole(ctx context.Context, caller Address, name string) error {
	return e.selfOnly(ctx, "create_role", caller, []attribute.KeyValue{attribute.String("role", name)},
		func(ctx context.Context, r *registry) error {
			return r.createRole(ctx, name)
		})
}

// RemoveRole removes a role and unassigns all of its members.
func (e *Engine) RemoveRole(ctx context.Context, caller Address, name string) error {
	return e.selfOnly(ctx, "remove_role", caller, []attribute.KeyValue{attribute.String("role", name)},
		func(ctx context.Context, r *registry) error {
			return r.removeRole(ctx, name)
		})
}

// AssignRole adds user to a role. Assigning an existing member is a no-op.
func (e *Engine) AssignRole(ctx context.Context, caller Address, name string, user Address) error {
	return e.selfOnly(ctx, "assign_role", caller, []attribute.KeyValue{attribute.String("role", name)},
		func(ctx context.Context, r *registry) error {
			return r.assignRole(ctx, name, user)
		})
}

// UnassignRole removes user from a role. Removing a non-member is a no-op.
func (e *Engine) UnassignRole(ctx context.Context, caller Address, name string, user Address) error {
	return e.selfOnly(ctx, "unassign_role", caller, []attribute.KeyValue{attribute.String("role", name)},
		func(ctx context.Context, r *registry) error {
			return r.unassignRole(ctx, name, user)
		})
}

// CreatePermission creates or replaces a permission.
func (e *Engine) CreatePermission(ctx context.Context, caller Address, perm *Permission) error {
	name := ""
	if perm != nil {
		name = perm.Name
	}
	return e.selfOnly(ctx, "create_permission", caller, []attribute.KeyValue{attribute.String("permission", name)},
		func(ctx context.Context, r *registry) error {
			return r.createPermission(ctx, perm)
		})
}

// RemovePermission removes a permission together with the policies that reference it.
func (e *Engine) RemovePermission(ctx context.Context, caller Address, name string) error {
	return e.selfOnly(ctx, "remove_permission", caller, []attribute.KeyValue{attribute.String("permission", name)},
		func(ctx context.Context, r *registry) error {
			return r.removePermission(ctx, name)
		})
}

// CreatePolicy grants a role authority over a permission.
func (e *Engine) CreatePolicy(ctx context.Context, caller Address, policy Policy) error {
	return e.selfOnly(ctx, "create_policy", caller, []attribute.KeyValue{
		attribute.String("role", policy.Role),
		attribute.String("permission", policy.Permission),
	}, func(ctx context.Context, r *registry) error {
		return r.createPolicy(ctx, policy)
	})
}

// RemovePolicy revokes a role's policy for a permission.
func (e *Engine) RemovePolicy(ctx context.Context, caller Address, role, permission string) error {
	return e.selfOnly(ctx, "remove_policy", caller, []attribute.KeyValue{
		attribute.String("role", role),
		attribute.String("permission", permission),
	}, func(ctx context.Context, r *registry) error {
		return r.removePolicy(ctx, role, permission)
	})
}

// Roles lists every role.
func (e *Engine) Roles(ctx context.Context) ([]Role, error) {
	var out []Role
	err := e.store.View(ctx, func(tx Tx) error {
		var err error
		out, err = tx.ListRoles(ctx)
		return internal(err)
	})
	return out, err
}

// RoleMembers returns the addresses holding a role.
func (e *Engine) RoleMembers(ctx context.Context, name string) ([]Address, error) {
	var out []Address
	err := e.store.View(ctx, func(tx Tx) error {
		ids, err := tx.RoleMembers(ctx, name)
		if err != nil {
			return internal(err)
		}
		out, err = addressesOf(ctx, tx, ids)
		return err
	})
	return out, err
}

// UserRoles returns the roles held by addr.
func (e *Engine) UserRoles(ctx context.Context, addr Address) ([]string, error) {
	var out []string
	err := e.store.View(ctx, func(tx Tx) error {
		var err error
		_, out, err = rolesOf(ctx, tx, addr)
		return err
	})
	return out, err
}

// Permissions lists every permission.
func (e *Engine) Permissions(ctx context.Context) ([]Permission, error) {
	var out []Permission
	err := e.store.View(ctx, func(tx Tx) error {
		var err error
		out, err = tx.ListPermissions(ctx)
		return internal(err)
	})
	return out, err
}

// Policies lists every policy.
func (e *Engine) Policies(ctx context.Context) ([]Policy, error) {
	var out []Policy
	err := e.store.View(ctx, func(tx Tx) error {
		var err error
		out, err = tx.ListPolicies(ctx)
		return internal(err)
	})
	return out, err
}

// CheckPermission reports whether action falls within the named permission.
func (e *Engine) CheckPermission(ctx context.Context, name string, action Action) (bool, error) {
	var ok bool
	err := e.store.View(ctx, func(tx Tx) error {
		perm, err := tx.GetPermission(ctx, name)
		if err != nil {
			return internal(err)
		}
		if perm == nil {
			return ErrPermissionNotFound.WithDetail("permission", name)
		}
		ok = Matches(perm, &action)
		return nil
	})
	return ok, err
}

func addressesOf(ctx context.Context, tx Tx, ids []uint64) ([]Address, error) {
	out := make([]Address, 0, len(ids))
	for _, id := range ids {
		addr, err := tx.UserAddress(ctx, id)
		if err != nil {
			return nil, internal(fmt.Errorf("failed to resolve user %d: %w", id, err))
		}
		out = append(out, addr)
	}
	return out, nil
}
