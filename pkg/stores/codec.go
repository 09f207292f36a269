package stores

import (
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"

	"github.com/covenantdao/covenant/pkg/engine"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to build CBOR encoder: %v", err))
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to build CBOR decoder: %v", err))
	}
}

// encodeList encodes a list column. Empty lists are stored as NULL.
func encodeList(v interface{}, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode list: %w", err)
	}
	return data, nil
}

func decodeList(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode list: %w", err)
	}
	return nil
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

func copyAmount(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func copyArgs(args [][]byte) [][]byte {
	if len(args) == 0 {
		return nil
	}
	out := make([][]byte, len(args))
	for i, a := range args {
		out[i] = copyBytes(a)
	}
	return out
}

func copyPayments(ps []engine.Payment) []engine.Payment {
	if len(ps) == 0 {
		return nil
	}
	out := make([]engine.Payment, len(ps))
	for i, p := range ps {
		out[i] = engine.Payment{Token: p.Token, Nonce: p.Nonce, Amount: copyAmount(p.Amount)}
	}
	return out
}

func copyStrings(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func copyPermission(p *engine.Permission) *engine.Permission {
	return &engine.Permission{
		Name:        p.Name,
		ValueLimit:  copyAmount(p.ValueLimit),
		Destination: p.Destination,
		Endpoint:    p.Endpoint,
		Arguments:   copyArgs(p.Arguments),
		Payments:    copyPayments(p.Payments),
	}
}

func copyPolicy(p *engine.Policy) *engine.Policy {
	c := *p
	c.Quorum = copyAmount(p.Quorum)
	return &c
}

func copyProposal(p *engine.Proposal) *engine.Proposal {
	c := *p
	c.ContentHash = copyBytes(p.ContentHash)
	c.ActionsHash = copyBytes(p.ActionsHash)
	c.VotesFor = copyAmount(p.VotesFor)
	c.VotesAgainst = copyAmount(p.VotesAgainst)
	c.Permissions = copyStrings(p.Permissions)
	return &c
}
