package guard

import (
	"encoding/hex"
	"math/big"
	"time"

	"github.com/covenantdao/covenant/pkg/engine"
)

// Severity represents the severity level of a rule violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for violations that are reported but do not block.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that block the operation.
	SeverityError Severity = "error"

	// SeverityCritical is for violations that block the operation and need attention.
	SeverityCritical Severity = "critical"
)

// Blocks reports whether violations of this severity block the operation.
func (s Severity) Blocks() bool {
	return s == SeverityError || s == SeverityCritical
}

// Rule is a guard rule with its Rego source. The module must define a deny set.
type Rule struct {
	// Name is the unique name of the rule.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego module source.
	Rego string `json:"rego"`

	// Severity is the default severity for violations that do not set one.
	Severity Severity `json:"severity"`

	// Enabled indicates if the rule is evaluated.
	Enabled bool `json:"enabled"`

	// Builtin marks rules shipped with the guard. They survive reloads.
	Builtin bool `json:"builtin,omitempty"`

	// Tags are labels for organizing rules.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional rule metadata, such as its source file.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// UpdatedAt is when the rule was last loaded.
	UpdatedAt time.Time `json:"updated_at"`
}

// RuleBundle is a collection of related rules stored in a single JSON file.
type RuleBundle struct {
	// Name is the unique name of the bundle.
	Name string `json:"name"`

	// Version is the bundle version.
	Version string `json:"version"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rules are the rules in this bundle.
	Rules []Rule `json:"rules"`
}

// Document is the Rego input built from an engine.GuardInput. Amounts are decimal strings and
// byte fields are hex so rules can compare them without numeric precision loss.
type Document struct {
	// Operation is "propose" or "execute".
	Operation string `json:"operation"`

	// Entity is the governed entity's own address.
	Entity string `json:"entity"`

	// Proposal is the proposal under evaluation.
	Proposal *ProposalDocument `json:"proposal,omitempty"`

	// Actions is the action batch, present at execute time.
	Actions []ActionDocument `json:"actions,omitempty"`

	// ProposerRoles are the roles currently held by the proposer.
	ProposerRoles []string `json:"proposer_roles"`
}

// ProposalDocument is the Rego view of a proposal.
type ProposalDocument struct {
	ID           uint64    `json:"id"`
	Proposer     string    `json:"proposer"`
	ActionsHash  string    `json:"actions_hash,omitempty"`
	Permissions  []string  `json:"permissions"`
	VotesFor     string    `json:"votes_for"`
	VotesAgainst string    `json:"votes_against"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
}

// ActionDocument is the Rego view of an action.
type ActionDocument struct {
	Destination string            `json:"destination"`
	Endpoint    string            `json:"endpoint"`
	Arguments   []string          `json:"arguments"`
	Value       string            `json:"value"`
	Payments    []PaymentDocument `json:"payments"`
	GasLimit    uint64            `json:"gas_limit"`
}

// PaymentDocument is the Rego view of a token payment.
type PaymentDocument struct {
	Token  string `json:"token"`
	Nonce  uint64 `json:"nonce"`
	Amount string `json:"amount"`
}

// NewDocument converts an engine guard input into a Rego input document.
func NewDocument(in *engine.GuardInput) *Document {
	doc := &Document{
		Operation:     in.Operation,
		Entity:        string(in.Entity),
		ProposerRoles: in.ProposerRoles,
	}
	if doc.ProposerRoles == nil {
		doc.ProposerRoles = []string{}
	}

	if p := in.Proposal; p != nil {
		doc.Proposal = &ProposalDocument{
			ID:           p.ID,
			Proposer:     string(p.Proposer),
			ActionsHash:  hex.EncodeToString(p.ActionsHash),
			Permissions:  p.Permissions,
			VotesFor:     decimal(p.VotesFor),
			VotesAgainst: decimal(p.VotesAgainst),
			StartsAt:     p.StartsAt,
			EndsAt:       p.EndsAt,
		}
		if doc.Proposal.Permissions == nil {
			doc.Proposal.Permissions = []string{}
		}
	}

	for _, a := range in.Actions {
		ad := ActionDocument{
			Destination: string(a.Destination),
			Endpoint:    a.Endpoint,
			Arguments:   make([]string, 0, len(a.Arguments)),
			Value:       decimal(a.Value),
			Payments:    make([]PaymentDocument, 0, len(a.Payments)),
			GasLimit:    a.GasLimit,
		}
		for _, arg := range a.Arguments {
			ad.Arguments = append(ad.Arguments, hex.EncodeToString(arg))
		}
		for _, pay := range a.Payments {
			ad.Payments = append(ad.Payments, PaymentDocument{
				Token:  string(pay.Token),
				Nonce:  pay.Nonce,
				Amount: decimal(pay.Amount),
			})
		}
		doc.Actions = append(doc.Actions, ad)
	}

	return doc
}

func decimal(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
