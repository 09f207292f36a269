package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/rs/zerolog"

	"github.com/covenantdao/covenant/pkg/engine"
)

func TestMemoryLedgerTransfer(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(zerolog.Nop())
	l.Credit("GOV", 0, big.NewInt(100))

	if err := l.Transfer(ctx, "alice", "GOV", 0, big.NewInt(40)); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	bal, _ := l.Balance(ctx, "GOV", 0)
	if bal.Int64() != 60 {
		t.Errorf("balance = %s, want 60", bal)
	}

	if err := l.Transfer(ctx, "alice", "GOV", 0, big.NewInt(61)); err == nil {
		t.Error("expected overdraft to fail")
	}
	if len(l.Transfers()) != 1 {
		t.Errorf("expected 1 transfer, got %d", len(l.Transfers()))
	}
}

func TestMemoryLedgerCall(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(zerolog.Nop())
	l.Credit("USDC", 0, big.NewInt(10))

	action := engine.Action{
		Destination: "vendor",
		Endpoint:    "pay",
		Payments:    []engine.Payment{{Token: "USDC", Amount: big.NewInt(7)}},
	}
	if err := l.Call(ctx, action); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if err := l.Call(ctx, action); err == nil {
		t.Error("expected second call to fail on balance")
	}

	bal, _ := l.Balance(ctx, "USDC", 0)
	if bal.Int64() != 3 {
		t.Errorf("balance = %s, want 3", bal)
	}
	if len(l.Calls()) != 1 {
		t.Errorf("expected 1 recorded call, got %d", len(l.Calls()))
	}
}

func TestMemoryLedgerFailCallsTo(t *testing.T) {
	l := NewMemoryLedger(zerolog.Nop())
	boom := errors.New("boom")
	l.FailCallsTo("broken", boom)

	if err := l.Call(context.Background(), engine.Action{Destination: "broken"}); !errors.Is(err, boom) {
		t.Errorf("expected injected failure, got %v", err)
	}

	l.FailCallsTo("broken", nil)
	if err := l.Call(context.Background(), engine.Action{Destination: "broken"}); err != nil {
		t.Errorf("expected call to succeed after clearing failure, got %v", err)
	}
}

func TestMemoryLedgerFailTransfersTo(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(zerolog.Nop())
	l.Credit("GOV", 0, big.NewInt(10))
	frozen := errors.New("frozen")
	l.FailTransfersTo("alice", frozen)

	if err := l.Transfer(ctx, "alice", "GOV", 0, big.NewInt(4)); !errors.Is(err, frozen) {
		t.Errorf("expected injected failure, got %v", err)
	}
	bal, _ := l.Balance(ctx, "GOV", 0)
	if bal.Int64() != 10 {
		t.Errorf("balance = %s, want 10 after refused transfer", bal)
	}

	l.FailTransfersTo("alice", nil)
	if err := l.Transfer(ctx, "alice", "GOV", 0, big.NewInt(4)); err != nil {
		t.Errorf("expected transfer to succeed after clearing failure, got %v", err)
	}
}
