package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// Genesis is the initial registry of an entity, applied once by Bootstrap.
type Genesis struct {
	// Leaders are assigned the built-in leader role.
	Leaders []Address `json:"leaders"`

	// Roles are created with their initial members.
	Roles []GenesisRole `json:"roles"`

	// Permissions are created before policies.
	Permissions []Permission `json:"permissions"`

	// Policies bind roles to permissions.
	Policies []Policy `json:"policies"`
}

// GenesisRole is a role with its initial members.
type GenesisRole struct {
	Name    string    `json:"name"`
	Members []Address `json:"members"`
}

// Bootstrap stores the configured settings and applies the genesis registry. It may run only once.
func (e *Engine) Bootstrap(ctx context.Context, g *Genesis) error {
	if g == nil {
		g = &Genesis{}
	}
	attrs := []attribute.KeyValue{
		attribute.Int("leaders", len(g.Leaders)),
		attribute.Int("roles", len(g.Roles)),
	}
	return e.run(ctx, "bootstrap", e.cfg.EntityAddress, attrs, func(ctx context.Context, op *operation) error {
		return e.store.Update(ctx, func(tx Tx) error {
			stored, err := tx.GetSettings(ctx)
			if err != nil {
				return internal(fmt.Errorf("failed to load settings: %w", err))
			}
			if stored != nil && stored.Bootstrapped {
				return ErrAlreadyBootstrapped
			}

			s := e.cfg.settings()
			if stored != nil {
				s = stored.Clone()
			}
			s.Bootstrapped = true
			if err := tx.PutSettings(ctx, s); err != nil {
				return internal(fmt.Errorf("failed to store settings: %w", err))
			}

			r := e.registry(tx, op)

			leader, err := tx.GetRole(ctx, RoleLeader)
			if err != nil {
				return internal(fmt.Errorf("failed to load leader role: %w", err))
			}
			if leader == nil {
				if err := r.createRole(ctx, RoleLeader); err != nil {
					return err
				}
			}
			for _, addr := range g.Leaders {
				if err := r.assignRole(ctx, RoleLeader, addr); err != nil {
					return fmt.Errorf("failed to assign leader %s: %w", addr, err)
				}
			}

			for _, role := range g.Roles {
				if role.Name != RoleLeader {
					if err := r.createRole(ctx, role.Name); err != nil {
						return fmt.Errorf("failed to create role %s: %w", role.Name, err)
					}
				}
				for _, addr := range role.Members {
					if err := r.assignRole(ctx, role.Name, addr); err != nil {
						return fmt.Errorf("failed to assign role %s to %s: %w", role.Name, addr, err)
					}
				}
			}

			for i := range g.Permissions {
				perm := g.Permissions[i]
				if err := r.createPermission(ctx, &perm); err != nil {
					return fmt.Errorf("failed to create permission %s: %w", perm.Name, err)
				}
			}

			for _, policy := range g.Policies {
				if err := r.createPolicy(ctx, policy); err != nil {
					return fmt.Errorf("failed to create policy %s/%s: %w", policy.Role, policy.Permission, err)
				}
			}

			e.logger.Info().
				Int("leaders", len(g.Leaders)).
				Int("roles", len(g.Roles)).
				Int("permissions", len(g.Permissions)).
				Int("policies", len(g.Policies)).
				Msg("Bootstrapped governance registry")
			return nil
		})
	})
}
