package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of a governance error.
type ErrorClass string

const (
	// ErrorClassValidation indicates malformed input, rejected before any state mutation.
	// Examples: zero weight, zero quorum, invalid hash length.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassAuthorization indicates the caller is not allowed to perform the operation.
	// Examples: caller is not self, no permission for action, invalid attestation.
	ErrorClassAuthorization ErrorClass = "authorization"

	// ErrorClassState indicates the operation does not fit the current state.
	// Examples: proposal not active, already executed, role not found.
	ErrorClassState ErrorClass = "state"

	// ErrorClassResource indicates an exhausted resource, such as available token balance.
	ErrorClassResource ErrorClass = "resource"

	// ErrorClassInternal indicates a collaborator or storage failure.
	ErrorClassInternal ErrorClass = "internal"
)

// Error represents a classified governance error with a stable code and message.
type Error struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Code is a stable identifier for programmatic handling.
	Code string `json:"code"`

	// Message is the short human-readable message.
	Message string `json:"message"`

	// Err is the underlying error, if any.
	Err error `json:"-"`

	// Details contains additional context.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", e.Class, e.Message)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// Wrap returns a copy of the error carrying err as its cause.
func (e *Error) Wrap(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

// WithDetail returns a copy of the error with an additional detail field.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	c := *e
	c.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		c.Details[k] = v
	}
	c.Details[key] = value
	return &c
}

func newError(class ErrorClass, code, message string) *Error {
	return &Error{Class: class, Code: code, Message: message}
}

// Validation errors.
var (
	ErrZeroWeight         = newError(ErrorClassValidation, "ZERO_WEIGHT", "vote weight must be greater than zero")
	ErrWeightBelowMinimum = newError(ErrorClassValidation, "WEIGHT_BELOW_MINIMUM", "vote weight below minimum")
	ErrZeroQuorum         = newError(ErrorClassValidation, "ZERO_QUORUM", "quorum must be greater than zero")
	ErrInvalidHashLength  = newError(ErrorClassValidation, "INVALID_HASH_LENGTH", "invalid actions hash length")
	ErrActionsMismatch    = newError(ErrorClassValidation, "ACTIONS_MISMATCH", "actions do not match proposal")
	ErrInvalidArgument    = newError(ErrorClassValidation, "INVALID_ARGUMENT", "invalid argument")
	ErrUnknownEndpoint    = newError(ErrorClassValidation, "UNKNOWN_ENDPOINT", "unknown self endpoint")
	ErrNoVoteSource       = newError(ErrorClassValidation, "NO_VOTE_SOURCE", "no vote weight source configured")
)

// Authorization errors.
var (
	ErrNotSelf            = newError(ErrorClassAuthorization, "NOT_SELF", "caller is not self")
	ErrNoPermission       = newError(ErrorClassAuthorization, "NO_PERMISSION", "no permission for action")
	ErrInvalidSignature   = newError(ErrorClassAuthorization, "INVALID_SIGNATURE", "invalid signature")
	ErrNotTrustedHost     = newError(ErrorClassAuthorization, "NOT_TRUSTED_HOST", "not a trusted host")
	ErrTrustedHostIDUsed  = newError(ErrorClassAuthorization, "TRUSTED_HOST_ID_USED", "trusted host id already used")
	ErrNoRoleToSign       = newError(ErrorClassAuthorization, "NO_ROLE_TO_SIGN", "caller has no role to sign with")
	ErrBlockedByGuardRule = newError(ErrorClassAuthorization, "BLOCKED_BY_GUARD", "blocked by guard rule")
)

// State errors.
var (
	ErrProposalNotFound      = newError(ErrorClassState, "PROPOSAL_NOT_FOUND", "proposal not found")
	ErrProposalNotActive     = newError(ErrorClassState, "PROPOSAL_NOT_ACTIVE", "proposal is not active")
	ErrProposalNotExecutable = newError(ErrorClassState, "PROPOSAL_NOT_EXECUTABLE", "proposal is not executable")
	ErrAlreadyExecuted       = newError(ErrorClassState, "ALREADY_EXECUTED", "proposal already executed")
	ErrVotingWindowOpen      = newError(ErrorClassState, "VOTING_WINDOW_OPEN", "voting window still open")
	ErrNothingToWithdraw     = newError(ErrorClassState, "NOTHING_TO_WITHDRAW", "nothing to withdraw")
	ErrRoleExists            = newError(ErrorClassState, "ROLE_EXISTS", "role already exists")
	ErrRoleNotFound          = newError(ErrorClassState, "ROLE_NOT_FOUND", "role not found")
	ErrPermissionNotFound    = newError(ErrorClassState, "PERMISSION_NOT_FOUND", "permission not found")
	ErrPolicyExists          = newError(ErrorClassState, "POLICY_EXISTS", "policy already exists")
	ErrPolicyNotFound        = newError(ErrorClassState, "POLICY_NOT_FOUND", "policy not found")
	ErrLeaderlessForbidden   = newError(ErrorClassState, "LEADERLESS_FORBIDDEN", "leaderless entity requires a governance token or vote plug")
	ErrAlreadyBootstrapped   = newError(ErrorClassState, "ALREADY_BOOTSTRAPPED", "entity already bootstrapped")
)

// Resource errors.
var (
	ErrInsufficientBalance = newError(ErrorClassResource, "INSUFFICIENT_BALANCE", "insufficient available balance")
)

// Internal errors.
var (
	// ErrInternal wraps collaborator and storage failures.
	ErrInternal = newError(ErrorClassInternal, "INTERNAL", "internal error")

	// ErrExecutionIncomplete reports a ledger failure after the proposal was marked executed.
	// The remaining actions are never retried.
	ErrExecutionIncomplete = newError(ErrorClassInternal, "EXECUTION_INCOMPLETE", "proposal executed with undispatched actions")
)

// internal wraps err as an internal error unless it is already classified.
func internal(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return ErrInternal.Wrap(err)
}

// ClassOf returns the class of a governance error, or "" for unclassified errors.
func ClassOf(err error) ErrorClass {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// CodeOf returns the stable code of a governance error, or "" for unclassified errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsValidation returns true if the error is classified as a validation error.
func IsValidation(err error) bool {
	return ClassOf(err) == ErrorClassValidation
}

// IsAuthorization returns true if the error is classified as an authorization error.
func IsAuthorization(err error) bool {
	return ClassOf(err) == ErrorClassAuthorization
}

// IsState returns true if the error is classified as a state error.
func IsState(err error) bool {
	return ClassOf(err) == ErrorClassState
}

// IsResource returns true if the error is classified as a resource error.
func IsResource(err error) bool {
	return ClassOf(err) == ErrorClassResource
}
