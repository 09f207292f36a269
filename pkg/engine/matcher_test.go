package engine_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/covenantdao/covenant/pkg/engine"
)

func TestMatches(t *testing.T) {
	args := func(vals ...string) [][]byte {
		out := make([][]byte, len(vals))
		for i, v := range vals {
			out[i] = []byte(v)
		}
		return out
	}

	tests := []struct {
		name   string
		perm   engine.Permission
		action engine.Action
		want   bool
	}{
		{
			name:   "value within limit",
			perm:   engine.Permission{ValueLimit: big.NewInt(100), Destination: vault},
			action: engine.Action{Destination: vault, Value: big.NewInt(100)},
			want:   true,
		},
		{
			name:   "value above limit",
			perm:   engine.Permission{ValueLimit: big.NewInt(100)},
			action: engine.Action{Destination: vault, Value: big.NewInt(101)},
			want:   false,
		},
		{
			name:   "zero limit is unlimited",
			perm:   engine.Permission{ValueLimit: big.NewInt(0)},
			action: engine.Action{Destination: vault, Value: big.NewInt(1_000_000)},
			want:   true,
		},
		{
			name:   "destination mismatch",
			perm:   engine.Permission{Destination: vault, Endpoint: "deposit"},
			action: engine.Action{Destination: "erd1other", Endpoint: "deposit"},
			want:   false,
		},
		{
			name:   "endpoint mismatch",
			perm:   engine.Permission{Endpoint: "deposit"},
			action: engine.Action{Destination: vault, Endpoint: "withdraw"},
			want:   false,
		},
		{
			name:   "endpoint match with zero value",
			perm:   engine.Permission{Destination: vault, Endpoint: "deposit"},
			action: engine.Action{Destination: vault, Endpoint: "deposit"},
			want:   true,
		},
		{
			name:   "argument prefix with trailing arguments",
			perm:   engine.Permission{Endpoint: "stake", Arguments: args("pool-a")},
			action: engine.Action{Destination: vault, Endpoint: "stake", Arguments: args("pool-a", "extra")},
			want:   true,
		},
		{
			name:   "argument mismatch",
			perm:   engine.Permission{Endpoint: "stake", Arguments: args("pool-a")},
			action: engine.Action{Destination: vault, Endpoint: "stake", Arguments: args("pool-b")},
			want:   false,
		},
		{
			name:   "missing constrained argument",
			perm:   engine.Permission{Endpoint: "stake", Arguments: args("pool-a", "x")},
			action: engine.Action{Destination: vault, Endpoint: "stake", Arguments: args("pool-a")},
			want:   false,
		},
		{
			name: "payment within token limit",
			perm: engine.Permission{Payments: []engine.Payment{{Token: govToken, Amount: big.NewInt(50)}}},
			action: engine.Action{
				Destination: vault,
				Payments:    []engine.Payment{{Token: govToken, Amount: big.NewInt(50)}},
			},
			want: true,
		},
		{
			name: "payment above token limit",
			perm: engine.Permission{Payments: []engine.Payment{{Token: govToken, Amount: big.NewInt(50)}}},
			action: engine.Action{
				Destination: vault,
				Payments:    []engine.Payment{{Token: govToken, Amount: big.NewInt(51)}},
			},
			want: false,
		},
		{
			name: "payment in unlisted token",
			perm: engine.Permission{Payments: []engine.Payment{{Token: govToken, Amount: big.NewInt(50)}}},
			action: engine.Action{
				Destination: vault,
				Payments:    []engine.Payment{{Token: "USDC-c76f1f", Amount: big.NewInt(1)}},
			},
			want: false,
		},
		{
			name:   "value-only permission rejects zero value call",
			perm:   engine.Permission{ValueLimit: big.NewInt(100), Destination: vault},
			action: engine.Action{Destination: vault, Endpoint: "drain"},
			want:   false,
		},
		{
			name:   "empty permission rejects zero value call",
			perm:   engine.Permission{},
			action: engine.Action{Destination: vault},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, engine.Matches(&tt.perm, &tt.action))
		})
	}
}

func TestMatchesNil(t *testing.T) {
	assert.False(t, engine.Matches(nil, &engine.Action{}))
	assert.False(t, engine.Matches(&engine.Permission{}, nil))
}
