// Package ledger provides an in-memory implementation of the entity's asset ledger.
package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/rs/zerolog"

	"github.com/covenantdao/covenant/pkg/engine"
)

type balanceKey struct {
	token engine.TokenID
	nonce uint64
}

// Transfer records a token transfer made by the ledger.
type Transfer struct {
	To     engine.Address
	Token  engine.TokenID
	Nonce  uint64
	Amount *big.Int
}

// MemoryLedger keeps balances in memory and records every call and transfer it performs.
type MemoryLedger struct {
	mu        sync.Mutex
	balances  map[balanceKey]*big.Int
	transfers []Transfer
	calls     []engine.Action
	failures  map[engine.Address]error
	refusals  map[engine.Address]error
	logger    zerolog.Logger
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger(logger zerolog.Logger) *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[balanceKey]*big.Int),
		failures: make(map[engine.Address]error),
		refusals: make(map[engine.Address]error),
		logger:   logger.With().Str("component", "memory-ledger").Logger(),
	}
}

// Credit adds amount of a token to the entity's balance.
func (l *MemoryLedger) Credit(token engine.TokenID, nonce uint64, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(balanceKey{token, nonce}, amount)
}

func (l *MemoryLedger) credit(key balanceKey, amount *big.Int) {
	cur, ok := l.balances[key]
	if !ok {
		cur = new(big.Int)
		l.balances[key] = cur
	}
	cur.Add(cur, amount)
}

func (l *MemoryLedger) debit(key balanceKey, amount *big.Int) error {
	cur := l.balances[key]
	if cur == nil || cur.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance of %s/%d", key.token, key.nonce)
	}
	cur.Sub(cur, amount)
	return nil
}

// FailCallsTo makes every call to dest fail with err. A nil err clears the failure.
func (l *MemoryLedger) FailCallsTo(dest engine.Address, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.failures, dest)
		return
	}
	l.failures[dest] = err
}

// FailTransfersTo makes every transfer to recipient fail with err. A nil err clears the failure.
func (l *MemoryLedger) FailTransfersTo(recipient engine.Address, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.refusals, recipient)
		return
	}
	l.refusals[recipient] = err
}

// Balance implements engine.Ledger.
func (l *MemoryLedger) Balance(ctx context.Context, token engine.TokenID, nonce uint64) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.balances[balanceKey{token, nonce}]; ok {
		return new(big.Int).Set(cur), nil
	}
	return new(big.Int), nil
}

// Transfer implements engine.Ledger.
func (l *MemoryLedger) Transfer(ctx context.Context, to engine.Address, token engine.TokenID, nonce uint64, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.refusals[to]; err != nil {
		return err
	}
	if err := l.debit(balanceKey{token, nonce}, amount); err != nil {
		return err
	}
	l.transfers = append(l.transfers, Transfer{To: to, Token: token, Nonce: nonce, Amount: new(big.Int).Set(amount)})

	l.logger.Debug().
		Str("to", string(to)).
		Str("token", string(token)).
		Str("amount", amount.String()).
		Msg("Transferred tokens")
	return nil
}

// Call implements engine.Ledger. Payments attached to the action leave the entity's balance.
func (l *MemoryLedger) Call(ctx context.Context, action engine.Action) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.failures[action.Destination]; err != nil {
		return err
	}

	// Check every payment before debiting any of them.
	need := make(map[balanceKey]*big.Int)
	for _, p := range action.Payments {
		key := balanceKey{p.Token, p.Nonce}
		if need[key] == nil {
			need[key] = new(big.Int)
		}
		need[key].Add(need[key], p.Amount)
	}
	for key, amount := range need {
		if cur := l.balances[key]; cur == nil || cur.Cmp(amount) < 0 {
			return fmt.Errorf("insufficient balance of %s/%d", key.token, key.nonce)
		}
	}
	for key, amount := range need {
		l.balances[key].Sub(l.balances[key], amount)
	}

	l.calls = append(l.calls, action)

	l.logger.Debug().
		Str("destination", string(action.Destination)).
		Str("endpoint", action.Endpoint).
		Int("payments", len(action.Payments)).
		Msg("Forwarded call")
	return nil
}

// Calls returns the actions forwarded so far.
func (l *MemoryLedger) Calls() []engine.Action {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]engine.Action, len(l.calls))
	copy(out, l.calls)
	return out
}

// Transfers returns the transfers made so far.
func (l *MemoryLedger) Transfers() []Transfer {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Transfer, len(l.transfers))
	copy(out, l.transfers)
	return out
}
