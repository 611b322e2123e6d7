package types

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Error codes. Every error crossing the payer/payee boundary reduces to one
// of these plus a short human-readable message; raw transport errors never
// reach the wire.
const (
	// ErrConfiguration marks missing or invalid route/client configuration.
	// Surfaced as 500 or a startup failure, never retried.
	ErrConfiguration = "configuration_error"

	// ErrProtocolViolation marks a malformed envelope or requirements from
	// a counterpart. Surfaced as 400, never retried.
	ErrProtocolViolation = "protocol_violation"

	// ErrCeilingExceeded marks a payer-side policy rejection.
	ErrCeilingExceeded = "spending_ceiling_exceeded"

	// ErrSignerDeclined marks a signer refusal (user declined or key
	// unavailable). Fatal, not retried.
	ErrSignerDeclined = "signer_declined"

	// ErrSettlementRejected marks a structured facilitator failure
	// (insufficient balance, expired authorization, nonce reuse). Surfaced
	// to the payer as a fresh 402 with the failure reason.
	ErrSettlementRejected = "settlement_rejected"

	// ErrTransport marks a connection-level network failure.
	ErrTransport = "transport_error"

	// ErrTimedOut marks a facilitator call that exceeded its deadline.
	ErrTimedOut = "timed_out"
)

// X402Error is the engine's error type: a stable code for programmatic
// handling plus a message safe to embed in a 402 or 400 body.
type X402Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *X402Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *X402Error) Unwrap() error { return e.Err }

// Is matches two X402Errors by code, so sentinels like
// &X402Error{Code: ErrTimedOut} work with errors.Is.
func (e *X402Error) Is(target error) bool {
	var t *X402Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// CodeOf returns the x402 error code of err, or "" if err carries none.
func CodeOf(err error) string {
	var xe *X402Error
	if errors.As(err, &xe) {
		return xe.Code
	}
	return ""
}

// CeilingError reports an amount the caller did not approve. Both amounts
// are in human-readable units of the asset.
type CeilingError struct {
	Requested decimal.Decimal
	Ceiling   decimal.Decimal
	Asset     string
}

func (e *CeilingError) Error() string {
	return fmt.Sprintf("payment of %s exceeds spending ceiling %s (asset %s)",
		e.Requested.String(), e.Ceiling.String(), e.Asset)
}

// Is lets errors.Is match a CeilingError against the
// spending_ceiling_exceeded code.
func (e *CeilingError) Is(target error) bool {
	var xe *X402Error
	return errors.As(target, &xe) && xe.Code == ErrCeilingExceeded
}
