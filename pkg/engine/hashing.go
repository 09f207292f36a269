package engine

import (
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

var actionEncMode cbor.EncMode

func init() {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to build deterministic CBOR encoder: %v", err))
	}
	actionEncMode = mode
}

// EncodeActions returns the deterministic CBOR encoding of an action batch.
func EncodeActions(actions []Action) ([]byte, error) {
	normalized := make([]Action, len(actions))
	for i, a := range actions {
		normalized[i] = a
		normalized[i].Value = amountOrZero(a.Value)
		if len(a.Payments) > 0 {
			normalized[i].Payments = make([]Payment, len(a.Payments))
			for j, p := range a.Payments {
				normalized[i].Payments[j] = Payment{Token: p.Token, Nonce: p.Nonce, Amount: amountOrZero(p.Amount)}
			}
		}
	}
	return actionEncMode.Marshal(normalized)
}

// HashActions hashes an action batch with the engine's hash service. An empty batch hashes to nil.
func (e *Engine) HashActions(actions []Action) ([]byte, error) {
	if len(actions) == 0 {
		return nil, nil
	}
	data, err := EncodeActions(actions)
	if err != nil {
		return nil, ErrInternal.Wrap(fmt.Errorf("failed to encode actions: %w", err))
	}
	return e.hasher.Hash(data), nil
}

// SelfCall builds an action addressed to the entity itself.
func (e *Engine) SelfCall(endpoint string, args ...[]byte) Action {
	return Action{Destination: e.cfg.EntityAddress, Endpoint: endpoint, Arguments: args}
}

// StringArg encodes a string call argument.
func StringArg(s string) []byte {
	return []byte(s)
}

// AmountArg encodes an amount as a big-endian unsigned integer.
func AmountArg(v *big.Int) []byte {
	return amountOrZero(v).Bytes()
}

// Uint64Arg encodes an integer as a big-endian unsigned integer.
func Uint64Arg(v uint64) []byte {
	return new(big.Int).SetUint64(v).Bytes()
}
