package guard_test

import (
	"context"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"

	"github.com/covenantdao/covenant/pkg/engine"
	"github.com/covenantdao/covenant/pkg/guard"
)

func ExampleGuard_Evaluate() {
	g, err := guard.New(zerolog.Nop())
	if err != nil {
		fmt.Printf("Failed to create guard: %v\n", err)
		return
	}

	result, err := g.Evaluate(context.Background(), &engine.GuardInput{
		Operation: "execute",
		Entity:    "erd1entity",
		Actions: []engine.Action{
			{Destination: "erd1entity", Endpoint: "setQuorum", Value: big.NewInt(10)},
		},
	})
	if err != nil {
		fmt.Printf("Failed to evaluate: %v\n", err)
		return
	}

	fmt.Printf("Allowed: %v\n", result.Allowed)
	for _, v := range result.Violations {
		fmt.Printf("%s: %s\n", v.Rule, v.Message)
	}

	// Output:
	// Allowed: false
	// self-call-value: self-call 0 to setQuorum carries value 10
}
