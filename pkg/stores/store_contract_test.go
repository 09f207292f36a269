package stores

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/covenantdao/covenant/pkg/engine"
)

// storeFactories lists every engine.Store implementation under test.
func storeFactories() map[string]func(t *testing.T) engine.Store {
	return map[string]func(t *testing.T) engine.Store{
		"memory": func(t *testing.T) engine.Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) engine.Store { return setupTestStore(t) },
	}
}

// forEachStore runs fn as a subtest against every store implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, store engine.Store)) {
	t.Helper()
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func mustUpdate(t *testing.T, store engine.Store, fn func(ctx context.Context, tx engine.Tx) error) {
	t.Helper()
	ctx := context.Background()
	if err := store.Update(ctx, func(tx engine.Tx) error { return fn(ctx, tx) }); err != nil {
		t.Fatalf("update failed: %v", err)
	}
}

func mustView(t *testing.T, store engine.Store, fn func(ctx context.Context, tx engine.Tx) error) {
	t.Helper()
	ctx := context.Background()
	if err := store.View(ctx, func(tx engine.Tx) error { return fn(ctx, tx) }); err != nil {
		t.Fatalf("view failed: %v", err)
	}
}

func TestUsers(t *testing.T) {
	forEachStore(t, func(t *testing.T, store engine.Store) {
		mustUpdate(t, store, func(ctx context.Context, tx engine.Tx) error {
			alice, err := tx.EnsureUser(ctx, "erd1alice")
			if err != nil {
				return err
			}
			bob, err := tx.EnsureUser(ctx, "erd1bob")
			if err != nil {
				return err
			}
			again, err := tx.EnsureUser(ctx, "erd1alice")
			if err != nil {
				return err
			}

			if alice != 1 || bob != 2 {
				t.Errorf("expected sequential ids 1 and 2, got %d and %d", alice, bob)
			}
			if again != alice {
				t.Errorf("expected EnsureUser to be idempotent, got %d and %d", alice, again)
			}
			return nil
		})

		mustView(t, store, func(ctx context.Context, tx engine.Tx) error {
			id, err := tx.UserID(ctx, "erd1bob")
			if err != nil {
				return err
			}
			if id != 2 {
				t.Errorf("expected id 2, got %d", id)
			}

			missing, err := tx.UserID(ctx, "erd1nobody")
			if err != nil {
				return err
			}
			if missing != 0 {
				t.Errorf("expected 0 for unknown address, got %d", missing)
			}

			addr, err := tx.UserAddress(ctx, 1)
			if err != nil {
				return err
			}
			if addr != "erd1alice" {
				t.Errorf("expected erd1alice, got %s", addr)
			}

			none, err := tx.UserAddress(ctx, 99)
			if err != nil {
				return err
			}
			if none != "" {
				t.Errorf("expected empty address for unknown id, got %s", none)
			}
			return nil
		})
	})
}

func TestRoleMembership(t *testing.T) {
	forEachStore(t, func(t *testing.T, store engine.Store) {
		mustUpdate(t, store, func(ctx context.Context, tx engine.Tx) error {
			if err := tx.PutRole(ctx, "builder"); err != nil {
				return err
			}
			for _, addr := range []engine.Address{"erd1alice", "erd1bob"} {
				id, err := tx.EnsureUser(ctx, addr)
				if err != nil {
					return err
				}
				added, err := tx.AddRoleMember(ctx, "builder", id)
				if err != nil {
					return err
				}
				if !added {
					t.Errorf("expected %s to be added", addr)
				}
			}
			// PutRole on an existing role keeps its members.
			if err := tx.PutRole(ctx, "builder"); err != nil {
				return err
			}

			added, err := tx.AddRoleMember(ctx, "builder", 1)
			if err != nil {
				return err
			}
			if added {
				t.Error("expected duplicate membership to be ignored")
			}

			added, err = tx.AddRoleMember(ctx, "ghost", 1)
			if err != nil {
				return err
			}
			if added {
				t.Error("expected membership in missing role to be ignored")
			}
			return nil
		})

		mustView(t, store, func(ctx context.Context, tx engine.Tx) error {
			role, err := tx.GetRole(ctx, "builder")
			if err != nil {
				return err
			}
			if role == nil || role.MemberCount != 2 {
				t.Fatalf("expected builder with 2 members, got %+v", role)
			}

			members, err := tx.RoleMembers(ctx, "builder")
			if err != nil {
				return err
			}
			if len(members) != 2 || members[0] != 1 || members[1] != 2 {
				t.Errorf("expected members [1 2], got %v", members)
			}

			roles, err := tx.UserRoles(ctx, 2)
			if err != nil {
				return err
			}
			if len(roles) != 1 || roles[0] != "builder" {
				t.Errorf("expected [builder], got %v", roles)
			}

			missing, err := tx.GetRole(ctx, "ghost")
			if err != nil {
				return err
			}
			if missing != nil {
				t.Errorf("expected nil for missing role, got %+v", missing)
			}
			return nil
		})

		mustUpdate(t, store, func(ctx context.Context, tx engine.Tx) error {
			removed, err := tx.RemoveRoleMember(ctx, "builder", 1)
			if err != nil {
				return err
			}
			if !removed {
				t.Error("expected member to be removed")
			}
			removed, err = tx.RemoveRoleMember(ctx, "builder", 1)
			if err != nil {
				return err
			}
			if removed {
				t.Error("expected second removal to be a no-op")
			}

			role, err := tx.GetRole(ctx, "builder")
			if err != nil {
				return err
			}
			if role.MemberCount != 1 {
				t.Errorf("expected member count 1, got %d", role.MemberCount)
			}
			return nil
		})
	})
}

func TestDeleteRoleCascades(t *testing.T) {
	forEachStore(t, func(t *testing.T, store engine.Store) {
		mustUpdate(t, store, func(ctx context.Context, tx engine.Tx) error {
			if err := tx.PutRole(ctx, "builder"); err != nil {
				return err
			}
			id, err := tx.EnsureUser(ctx, "erd1alice")
			if err != nil {
				return err
			}
			if _, err := tx.AddRoleMember(ctx, "builder", id); err != nil {
				return err
			}
			if err := tx.PutPermission(ctx, &engine.Permission{Name: "send", ValueLimit: big.NewInt(10)}); err != nil {
				return err
			}
			return tx.PutPolicy(ctx, &engine.Policy{
				Role:       "builder",
				Permission: "send",
				Method:     engine.MethodOne,
				Quorum:     big.NewInt(1),
			})
		})

		mustUpdate(t, store, func(ctx context.Context, tx engine.Tx) error {
			return tx.DeleteRole(ctx, "builder")
		})

		mustView(t, store, func(ctx context.Context, tx engine.Tx) error {
			roles, err := tx.UserRoles(ctx, 1)
			if err != nil {
				return err
			}
			if len(roles) != 0 {
				t.Errorf("expected memberships to be removed, got %v", roles)
			}
			policies, err := tx.ListPolicies(ctx)
			if err != nil {
				return err
			}
			if len(policies) != 0 {
				t.Errorf("expected policies to be removed, got %v", policies)
			}
			perm, err := tx.GetPermission(ctx, "send")
			if err != nil {
				return err
			}
			if perm == nil {
				t.Error("expected permission to survive role deletion")
			}
			return nil
		})
	})
}

func TestPermissionsAndPolicies(t *testing.T) {
	forEachStore(t, func(t *testing.T, store engine.Store) {
		perm := &engine.Permission{
			Name:        "pay-builders",
			ValueLimit:  big.NewInt(500),
			Destination: "erd1vault",
			Endpoint:    "deposit",
			Arguments:   [][]byte{[]byte("a"), []byte("b")},
			Payments: []engine.Payment{
				{Token: "GOV-123456", Nonce: 0, Amount: big.NewInt(1000)},
			},
		}

		mustUpdate(t, store, func(ctx context.Context, tx engine.Tx) error {
			if err := tx.PutRole(ctx, "builder"); err != nil {
				return err
			}
			if err := tx.PutPermission(ctx, perm); err != nil {
				return err
			}
			return tx.PutPolicy(ctx, &engine.Policy{
				Role:                "builder",
				Permission:          "pay-builders",
				Method:              engine.MethodQuorum,
				Quorum:              big.NewInt(2),
				VotingPeriodMinutes: 60,
			})
		})

		mustView(t, store, func(ctx context.Context, tx engine.Tx) error {
			got, err := tx.GetPermission(ctx, "pay-builders")
			if err != nil {
				return err
			}
			if got == nil {
				t.Fatal("expected permission")
			}
			if got.ValueLimit.Cmp(big.NewInt(500)) != 0 {
				t.Errorf("expected value limit 500, got %s", got.ValueLimit)
			}
			if got.Destination != "erd1vault" || got.Endpoint != "deposit" {
				t.Errorf("unexpected destination/endpoint: %s/%s", got.Destination, got.Endpoint)
			}
			if len(got.Arguments) != 2 || string(got.Arguments[1]) != "b" {
				t.Errorf("unexpected arguments: %q", got.Arguments)
			}
			if len(got.Payments) != 1 || got.Payments[0].Amount.Cmp(big.NewInt(1000)) != 0 {
				t.Errorf("unexpected payments: %+v", got.Payments)
			}

			policy, err := tx.GetPolicy(ctx, "builder", "pay-builders")
			if err != nil {
				return err
			}
			if policy == nil {
				t.Fatal("expected policy")
			}
			if policy.Method != engine.MethodQuorum || policy.Quorum.Cmp(big.NewInt(2)) != 0 {
				t.Errorf("unexpected policy: %+v", policy)
			}
			if policy.VotingPeriodMinutes != 60 {
				t.Errorf("expected 60 minute period, got %d", policy.VotingPeriodMinutes)
			}

			forRole, err := tx.PoliciesForRole(ctx, "builder")
			if err != nil {
				return err
			}
			if len(forRole) != 1 {
				t.Errorf("expected 1 policy for role, got %d", len(forRole))
			}
			return nil
		})

		// Upsert replaces the stored permission.
		mustUpdate(t, store, func(ctx context.Context, tx engine.Tx) error {
			return tx.PutPermission(ctx, &engine.Permission{Name: "pay-builders", ValueLimit: big.NewInt(1)})
		})

		mustView(t, store, func(ctx context.Context, tx engine.Tx) error {
			got, err := tx.GetPermission(ctx, "pay-builders")
			if err != nil {
				return err
			}
			if got.ValueLimit.Cmp(big.NewInt(1)) != 0 || len(got.Payments) != 0 || got.Endpoint != "" {
				t.Errorf("expected permission to be replaced, got %+v", got)
			}
			perms, err := tx.ListPermissions(ctx)
			if err != nil {
				return err
			}
			if len(perms) != 1 {
				t.Errorf("expected 1 permission, got %d", len(perms))
			}
			return nil
		})

		mustUpdate(t, store, func(ctx context.Context, tx engine.Tx) error {
			return tx.DeletePermission(ctx, "pay-builders")
		})

		mustView(t, store, func(ctx context.Context, tx engine.Tx) error {
			policies, err := tx.ListPolicies(ctx)
			if err != nil {
				return err
			}
			if len(policies) != 0 {
				t.Errorf("expected policy to be removed with its permission, got %v", policies)
			}
			return nil
		})
	})
}

func TestProposals(t *testing.T) {
	forEachStore(t, func(t *testing.T, store engine.Store) {
		start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		proposal := &engine.Proposal{
			Proposer:     "erd1alice",
			ContentHash:  []byte("content"),
			ActionsHash:  []byte("actions"),
			StartsAt:     start,
			EndsAt:       start.Add(time.Hour),
			VotesFor:     big.NewInt(7),
			VotesAgainst: big.NewInt(0),
			Permissions:  []string{"send"},
		}

		var first, second uint64
		mustUpdate(t, store, func(ctx context.Context, tx engine.Tx) error {
			var err error
			if first, err = tx.CreateProposal(ctx, proposal); err != nil {
				return err
			}
			second, err = tx.CreateProposal(ctx, &engine.Proposal{
				Proposer:     "erd1bob",
				StartsAt:     start,
				EndsAt:       start,
				VotesFor:     new(big.Int),
				VotesAgainst: new(big.Int),
			})
			return err
		})

		if first != 0 || second != 1 {
			t.Fatalf("expected ids 0 and 1, got %d and %d", first, second)
		}

		mustUpdate(t, store, func(ctx context.Context, tx engine.Tx) error {
			p, err := tx.GetProposal(ctx, first)
			if err != nil {
				return err
			}
			p.Executed = true
			p.VotesAgainst = big.NewInt(3)
			return tx.UpdateProposal(ctx, p)
		})

		mustView(t, store, func(ctx context.Context, tx engine.Tx) error {
			p, err := tx.GetProposal(ctx, first)
			if err != nil {
				return err
			}
			if p == nil {
				t.Fatal("expected proposal")
			}
			if p.Proposer != "erd1alice" || string(p.ContentHash) != "content" || string(p.ActionsHash) != "actions" {
				t.Errorf("unexpected proposal: %+v", p)
			}
			if !p.StartsAt.Equal(start) || !p.EndsAt.Equal(start.Add(time.Hour)) {
				t.Errorf("unexpected window: %s - %s", p.StartsAt, p.EndsAt)
			}
			if !p.Executed || p.VotesFor.Int64() != 7 || p.VotesAgainst.Int64() != 3 {
				t.Errorf("unexpected tally: executed=%v for=%s against=%s", p.Executed, p.VotesFor, p.VotesAgainst)
			}
			if len(p.Permissions) != 1 || p.Permissions[0] != "send" {
				t.Errorf("unexpected permissions: %v", p.Permissions)
			}

			empty, err := tx.GetProposal(ctx, second)
			if err != nil {
				return err
			}
			if empty.HasActions() {
				t.Error("expected proposal without actions")
			}

			missing, err := tx.GetProposal(ctx, 42)
			if err != nil {
				return err
			}
			if missing != nil {
				t.Errorf("expected nil for missing proposal, got %+v", missing)
			}

			count, err := tx.ProposalCount(ctx)
			if err != nil {
				return err
			}
			if count != 2 {
				t.Errorf("expected 2 proposals, got %d", count)
			}
			return nil
		})

		ctx := context.Background()
		err := store.Update(ctx, func(tx engine.Tx) error {
			return tx.UpdateProposal(ctx, &engine.Proposal{ID: 42, VotesFor: new(big.Int), VotesAgainst: new(big.Int)})
		})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSignersAndPolls(t *testing.T) {
	forEachStore(t, func(t *testing.T, store engine.Store) {
		mustUpdate(t, store, func(ctx context.Context, tx engine.Tx) error {
			if _, err := tx.CreateProposal(ctx, &engine.Proposal{
				Proposer:     "erd1alice",
				StartsAt:     time.Unix(0, 0),
				EndsAt:       time.Unix(60, 0),
				VotesFor:     new(big.Int),
				VotesAgainst: new(big.Int),
			}); err != nil {
				return err
			}

			for _, id := range []uint64{3, 1, 3} {
				if _, err := tx.AddSigner(ctx, 0, "builder", id); err != nil {
					return err
				}
			}
			added, err := tx.AddSigner(ctx, 0, "builder", 1)
			if err != nil {
				return err
			}
			if added {
				t.Error("expected duplicate signature to be ignored")
			}

			if err := tx.AddPollVote(ctx, 0, 1, big.NewInt(5)); err != nil {
				return err
			}
			if err := tx.AddPollVote(ctx, 0, 1, big.NewInt(2)); err != nil {
				return err
			}
			return tx.AddPollVote(ctx, 0, 2, big.NewInt(1))
		})

		mustView(t, store, func(ctx context.Context, tx engine.Tx) error {
			signers, err := tx.Signers(ctx, 0, "builder")
			if err != nil {
				return err
			}
			if len(signers) != 2 || signers[0] != 1 || signers[1] != 3 {
				t.Errorf("expected signers [1 3], got %v", signers)
			}

			other, err := tx.Signers(ctx, 0, "leader")
			if err != nil {
				return err
			}
			if len(other) != 0 {
				t.Errorf("expected no leader signers, got %v", other)
			}

			results, err := tx.PollResults(ctx, 0)
			if err != nil {
				return err
			}
			if results[1].Int64() != 7 || results[2].Int64() != 1 {
				t.Errorf("unexpected poll results: %v", results)
			}
			return nil
		})
	})
}

func TestDepositsAndReserves(t *testing.T) {
	forEachStore(t, func(t *testing.T, store engine.Store) {
		mustUpdate(t, store, func(ctx context.Context, tx engine.Tx) error {
			if _, err := tx.CreateProposal(ctx, &engine.Proposal{
				Proposer:     "erd1alice",
				StartsAt:     time.Unix(0, 0),
				EndsAt:       time.Unix(60, 0),
				VotesFor:     new(big.Int),
				VotesAgainst: new(big.Int),
			}); err != nil {
				return err
			}
			for _, amount := range []int64{10, 15} {
				if err := tx.AddDeposit(ctx, engine.Deposit{
					ProposalID: 0,
					Voter:      "erd1bob",
					Token:      "GOV-123456",
					Amount:     big.NewInt(amount),
				}); err != nil {
					return err
				}
			}
			return tx.AdjustReserved(ctx, "GOV-123456", 0, big.NewInt(25))
		})

		ctx := context.Background()
		err := store.Update(ctx, func(tx engine.Tx) error {
			return tx.AdjustReserved(ctx, "GOV-123456", 0, big.NewInt(-26))
		})
		if !errors.Is(err, ErrNegativeReserve) {
			t.Errorf("expected ErrNegativeReserve, got %v", err)
		}

		mustUpdate(t, store, func(ctx context.Context, tx engine.Tx) error {
			deposits, err := tx.TakeDeposits(ctx, 0, "erd1bob")
			if err != nil {
				return err
			}
			if len(deposits) != 1 || deposits[0].Amount.Int64() != 25 {
				t.Fatalf("expected one accumulated deposit of 25, got %+v", deposits)
			}
			if deposits[0].Token != "GOV-123456" || deposits[0].Voter != "erd1bob" {
				t.Errorf("unexpected deposit: %+v", deposits[0])
			}

			again, err := tx.TakeDeposits(ctx, 0, "erd1bob")
			if err != nil {
				return err
			}
			if len(again) != 0 {
				t.Errorf("expected deposits to be taken once, got %+v", again)
			}
			return tx.AdjustReserved(ctx, "GOV-123456", 0, big.NewInt(-25))
		})

		mustView(t, store, func(ctx context.Context, tx engine.Tx) error {
			reserved, err := tx.Reserved(ctx, "GOV-123456", 0)
			if err != nil {
				return err
			}
			if reserved.Sign() != 0 {
				t.Errorf("expected nothing reserved, got %s", reserved)
			}
			return nil
		})
	})
}

func TestSettingsAndAttestations(t *testing.T) {
	forEachStore(t, func(t *testing.T, store engine.Store) {
		mustView(t, store, func(ctx context.Context, tx engine.Tx) error {
			s, err := tx.GetSettings(ctx)
			if err != nil {
				return err
			}
			if s != nil {
				t.Errorf("expected no settings before bootstrap, got %+v", s)
			}
			return nil
		})

		mustUpdate(t, store, func(ctx context.Context, tx engine.Tx) error {
			return tx.PutSettings(ctx, &engine.Settings{
				Quorum:              big.NewInt(100),
				MinVoteWeight:       big.NewInt(1),
				MinProposeWeight:    big.NewInt(10),
				VotingPeriodMinutes: 4320,
				Bootstrapped:        true,
			})
		})

		mustUpdate(t, store, func(ctx context.Context, tx engine.Tx) error {
			first, err := tx.ConsumeAttestation(ctx, "host-a", []byte{1, 2, 3})
			if err != nil {
				return err
			}
			replay, err := tx.ConsumeAttestation(ctx, "host-a", []byte{1, 2, 3})
			if err != nil {
				return err
			}
			otherHost, err := tx.ConsumeAttestation(ctx, "host-b", []byte{1, 2, 3})
			if err != nil {
				return err
			}
			if !first || replay || !otherHost {
				t.Errorf("unexpected consumption results: first=%v replay=%v other=%v", first, replay, otherHost)
			}
			return nil
		})

		mustView(t, store, func(ctx context.Context, tx engine.Tx) error {
			s, err := tx.GetSettings(ctx)
			if err != nil {
				return err
			}
			if s == nil {
				t.Fatal("expected settings")
			}
			if s.Quorum.Int64() != 100 || s.MinProposeWeight.Int64() != 10 || s.VotingPeriodMinutes != 4320 || !s.Bootstrapped {
				t.Errorf("unexpected settings: %+v", s)
			}
			return nil
		})
	})
}

func TestUpdateRollsBackOnError(t *testing.T) {
	forEachStore(t, func(t *testing.T, store engine.Store) {
		ctx := context.Background()
		boom := errors.New("boom")

		err := store.Update(ctx, func(tx engine.Tx) error {
			if err := tx.PutRole(ctx, "builder"); err != nil {
				return err
			}
			if _, err := tx.EnsureUser(ctx, "erd1alice"); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}

		mustView(t, store, func(ctx context.Context, tx engine.Tx) error {
			role, err := tx.GetRole(ctx, "builder")
			if err != nil {
				return err
			}
			if role != nil {
				t.Error("expected role creation to be rolled back")
			}
			id, err := tx.UserID(ctx, "erd1alice")
			if err != nil {
				return err
			}
			if id != 0 {
				t.Error("expected user creation to be rolled back")
			}
			return nil
		})
	})
}

func TestMemoryStoreViewIsReadOnly(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.View(ctx, func(tx engine.Tx) error {
		return tx.PutRole(ctx, "builder")
	})
	if !errors.Is(err, ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}
}

func TestMemoryStoreIsolatesCallerCopies(t *testing.T) {
	store := NewMemoryStore()
	perm := &engine.Permission{Name: "send", ValueLimit: big.NewInt(10)}

	mustUpdate(t, store, func(ctx context.Context, tx engine.Tx) error {
		return tx.PutPermission(ctx, perm)
	})
	perm.ValueLimit.SetInt64(999)

	mustView(t, store, func(ctx context.Context, tx engine.Tx) error {
		got, err := tx.GetPermission(ctx, "send")
		if err != nil {
			return err
		}
		if got.ValueLimit.Int64() != 10 {
			t.Errorf("expected stored copy to be unaffected, got %s", got.ValueLimit)
		}
		return nil
	})
}

// dumpState renders everything a transaction in TestUpdateRollbackRestoresEveryWrite touches.
func dumpState(t *testing.T, store engine.Store) string {
	t.Helper()
	var b strings.Builder
	mustView(t, store, func(ctx context.Context, tx engine.Tx) error {
		roles, err := tx.ListRoles(ctx)
		if err != nil {
			return err
		}
		for _, r := range roles {
			members, err := tx.RoleMembers(ctx, r.Name)
			if err != nil {
				return err
			}
			fmt.Fprintf(&b, "role %s %d %v\n", r.Name, r.MemberCount, members)
		}
		perms, err := tx.ListPermissions(ctx)
		if err != nil {
			return err
		}
		for _, p := range perms {
			fmt.Fprintf(&b, "permission %s %s\n", p.Name, p.ValueLimit)
		}
		policies, err := tx.ListPolicies(ctx)
		if err != nil {
			return err
		}
		for _, p := range policies {
			fmt.Fprintf(&b, "policy %s/%s %s %s\n", p.Role, p.Permission, p.Method, p.Quorum)
		}
		count, err := tx.ProposalCount(ctx)
		if err != nil {
			return err
		}
		for id := uint64(0); id < count; id++ {
			p, err := tx.GetProposal(ctx, id)
			if err != nil {
				return err
			}
			signers, err := tx.Signers(ctx, id, "builder")
			if err != nil {
				return err
			}
			results, err := tx.PollResults(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(&b, "proposal %d %s %s %t %v %v\n", id, p.VotesFor, p.VotesAgainst, p.Executed, signers, results)
		}
		reserved, err := tx.Reserved(ctx, "GOV-123456", 0)
		if err != nil {
			return err
		}
		s, err := tx.GetSettings(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "reserved %s quorum %s\n", reserved, s.Quorum)
		return nil
	})
	return b.String()
}

func TestUpdateRollbackRestoresEveryWrite(t *testing.T) {
	forEachStore(t, func(t *testing.T, store engine.Store) {
		gov := engine.TokenID("GOV-123456")
		mustUpdate(t, store, func(ctx context.Context, tx engine.Tx) error {
			if err := tx.PutSettings(ctx, &engine.Settings{
				Quorum:              big.NewInt(100),
				MinVoteWeight:       big.NewInt(1),
				MinProposeWeight:    big.NewInt(0),
				VotingPeriodMinutes: 60,
				Bootstrapped:        true,
			}); err != nil {
				return err
			}
			if err := tx.PutRole(ctx, "builder"); err != nil {
				return err
			}
			alice, err := tx.EnsureUser(ctx, "erd1alice")
			if err != nil {
				return err
			}
			if _, err := tx.AddRoleMember(ctx, "builder", alice); err != nil {
				return err
			}
			if err := tx.PutPermission(ctx, &engine.Permission{Name: "send", ValueLimit: big.NewInt(10)}); err != nil {
				return err
			}
			if err := tx.PutPolicy(ctx, &engine.Policy{
				Role: "builder", Permission: "send", Method: engine.MethodOne, Quorum: big.NewInt(1),
			}); err != nil {
				return err
			}
			if _, err := tx.CreateProposal(ctx, &engine.Proposal{
				Proposer:     "erd1alice",
				StartsAt:     time.Unix(0, 0),
				EndsAt:       time.Unix(60, 0),
				VotesFor:     big.NewInt(5),
				VotesAgainst: new(big.Int),
			}); err != nil {
				return err
			}
			if _, err := tx.AddSigner(ctx, 0, "builder", alice); err != nil {
				return err
			}
			if err := tx.AddPollVote(ctx, 0, 1, big.NewInt(3)); err != nil {
				return err
			}
			if err := tx.AddDeposit(ctx, engine.Deposit{ProposalID: 0, Voter: "erd1bob", Token: gov, Amount: big.NewInt(10)}); err != nil {
				return err
			}
			return tx.AdjustReserved(ctx, gov, 0, big.NewInt(10))
		})
		before := dumpState(t, store)

		ctx := context.Background()
		boom := errors.New("boom")
		err := store.Update(ctx, func(tx engine.Tx) error {
			bob, err := tx.EnsureUser(ctx, "erd1bob")
			if err != nil {
				return err
			}
			if _, err := tx.AddRoleMember(ctx, "builder", bob); err != nil {
				return err
			}
			if _, err := tx.AddSigner(ctx, 0, "builder", bob); err != nil {
				return err
			}
			if err := tx.AddPollVote(ctx, 0, 1, big.NewInt(4)); err != nil {
				return err
			}
			p, err := tx.GetProposal(ctx, 0)
			if err != nil {
				return err
			}
			p.Executed = true
			p.VotesFor = big.NewInt(50)
			if err := tx.UpdateProposal(ctx, p); err != nil {
				return err
			}
			if _, err := tx.CreateProposal(ctx, &engine.Proposal{
				Proposer:     "erd1bob",
				StartsAt:     time.Unix(0, 0),
				EndsAt:       time.Unix(60, 0),
				VotesFor:     new(big.Int),
				VotesAgainst: new(big.Int),
			}); err != nil {
				return err
			}
			if err := tx.AddDeposit(ctx, engine.Deposit{ProposalID: 0, Voter: "erd1bob", Token: gov, Amount: big.NewInt(7)}); err != nil {
				return err
			}
			if _, err := tx.TakeDeposits(ctx, 0, "erd1bob"); err != nil {
				return err
			}
			if err := tx.AdjustReserved(ctx, gov, 0, big.NewInt(-10)); err != nil {
				return err
			}
			if err := tx.DeletePermission(ctx, "send"); err != nil {
				return err
			}
			if err := tx.DeleteRole(ctx, "builder"); err != nil {
				return err
			}
			if err := tx.PutSettings(ctx, &engine.Settings{
				Quorum:              big.NewInt(1),
				MinVoteWeight:       big.NewInt(1),
				MinProposeWeight:    big.NewInt(0),
				VotingPeriodMinutes: 1,
				Bootstrapped:        true,
			}); err != nil {
				return err
			}
			if _, err := tx.ConsumeAttestation(ctx, "host-a", []byte{9}); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}

		if after := dumpState(t, store); after != before {
			t.Errorf("state changed by failed update:\nbefore:\n%s\nafter:\n%s", before, after)
		}

		mustUpdate(t, store, func(ctx context.Context, tx engine.Tx) error {
			if id, err := tx.UserID(ctx, "erd1bob"); err != nil || id != 0 {
				t.Errorf("expected erd1bob to be unknown, got id %d (err %v)", id, err)
			}
			deposits, err := tx.TakeDeposits(ctx, 0, "erd1bob")
			if err != nil {
				return err
			}
			if len(deposits) != 1 || deposits[0].Amount.Int64() != 10 {
				t.Errorf("expected the original deposit of 10, got %+v", deposits)
			}
			fresh, err := tx.ConsumeAttestation(ctx, "host-a", []byte{9})
			if err != nil {
				return err
			}
			if !fresh {
				t.Error("expected attestation consumed by the failed update to be reusable")
			}
			return nil
		})
	})
}
