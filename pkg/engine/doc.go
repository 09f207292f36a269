// Package engine implements the governance and authorization rules of a decentralized entity.
//
// # Overview
//
// An entity is governed by two fused authorization models:
//
//   - Token-weighted voting: votes lock governance tokens (or read weight from a WeightSource)
//     and a proposal passes with a supermajority reaching a quorum.
//   - Role-based signing: roles hold policies over permissions, and a proposal passes once the
//     signers required by each policy's method have signed.
//
// A permission scopes concrete actions by destination, endpoint, argument prefix, native value
// and token payments. Matches is the pure function deciding whether an action falls inside a
// permission.
//
// # Proposal Lifecycle
//
// Proposals move through pending, active, succeeded or defeated, and finally executed:
//
//	pending -> active -> succeeded -> executed
//	                  \-> defeated
//
// Status is never cached besides the executed flag. Engine.Status recomputes it from the
// stored proposal, its signer sets, the registry and the injected Clock.
//
// # Transactions
//
// Every mutating operation (Propose, Vote, Sign, Execute, Withdraw and the registry calls)
// runs inside a single Store.Update. A failing operation leaves no partial state behind.
// Execute marks the proposal executed in the same transaction that dispatches its actions, so
// a batch runs at most once.
//
// # Self-calls
//
// The registry may only be changed by the entity itself. Outside of Bootstrap, this happens
// when an executed proposal carries an action addressed to Config.EntityAddress; such
// actions are applied internally (see the Endpoint constants) rather than forwarded to the
// Ledger.
//
// # Errors
//
// All rejections are *Error values classified as validation, authorization, state, resource
// or internal. Use errors.Is with the exported sentinels, or the IsValidation family of
// helpers:
//
//	if err := eng.Vote(ctx, req); errors.Is(err, engine.ErrProposalNotActive) {
//	    // voting window closed
//	}
//
// # Collaborators
//
// The engine is assembled by dependency injection. Store persists state (see pkg/stores);
// Ledger holds assets; Clock provides time; Guard, EventSink and Metrics are optional.
package engine
