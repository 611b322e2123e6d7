// Package types defines the wire objects and data model of the x402
// payment-authorization protocol: requirements, envelopes, authorizations,
// facilitator requests/responses and the error taxonomy shared by the
// payer and payee sides.
package types

import "fmt"

// X402Version is the protocol version carried in every wire object.
const X402Version = 1

// Header names exchanged between payer and payee.
const (
	PaymentHeader         = "X-PAYMENT"
	PaymentResponseHeader = "X-PAYMENT-RESPONSE"
)

// Scheme tags how a token settles an authorization.
type Scheme string

const (
	// SchemeNative covers tokens that implement the authorized-transfer
	// primitive directly; the signed message itself moves the funds.
	SchemeNative Scheme = "exact"

	// SchemeProxied covers tokens without that primitive; a proxy
	// settlement contract executes the transfer from a pre-approved
	// allowance.
	SchemeProxied Scheme = "proxied"
)

func (s Scheme) String() string { return string(s) }

// Valid reports whether s is one of the two known schemes.
func (s Scheme) Valid() bool {
	return s == SchemeNative || s == SchemeProxied
}

// Authorization is a signed off-chain transfer authorization. Value is an
// unsigned integer in atomic token units. Nonce is a 0x-prefixed 32-byte hex
// value for the native scheme or a decimal counter read from the proxy
// contract for the proxied scheme. All numeric fields travel as decimal
// strings because uint256 does not fit a JSON number.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
	Signature   string `json:"signature"`
}

// PaymentRequirements is the payee's declaration of what payment it accepts
// for a resource. Immutable once issued. Extra carries the exact signing
// domain data the payer must reuse verbatim: token name and version for the
// native scheme, or the proxy contract address for the proxied scheme.
type PaymentRequirements struct {
	// Scheme of the payment protocol to use.
	Scheme string `json:"scheme" validate:"required"`

	// Network identifier of the chain to pay on (e.g. "base").
	Network string `json:"network" validate:"required"`

	// Maximum amount required, in atomic units of the asset.
	MaxAmountRequired string `json:"maxAmountRequired" validate:"required"`

	// Resource identifies what is being paid for, typically the URL path.
	Resource string `json:"resource"`

	// Description of the resource being purchased.
	Description string `json:"description,omitempty"`

	// MimeType of the resource response.
	MimeType string `json:"mimeType,omitempty"`

	// PayTo is the recipient address.
	PayTo string `json:"payTo" validate:"required"`

	// MaxTimeoutSeconds bounds how long the payee waits for settlement.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds"`

	// Asset is the token contract address.
	Asset string `json:"asset" validate:"required"`

	// Extra carries scheme-specific signing-domain data.
	Extra map[string]string `json:"extra,omitempty"`
}

// Validate checks the fields a counterpart must never omit.
func (pr *PaymentRequirements) Validate() error {
	if pr.Scheme == "" {
		return &X402Error{Code: ErrProtocolViolation, Message: "requirements: scheme is required"}
	}
	if pr.Network == "" {
		return &X402Error{Code: ErrProtocolViolation, Message: "requirements: network is required"}
	}
	if pr.MaxAmountRequired == "" {
		return &X402Error{Code: ErrProtocolViolation, Message: "requirements: maxAmountRequired is required"}
	}
	if pr.PayTo == "" {
		return &X402Error{Code: ErrProtocolViolation, Message: "requirements: payTo is required"}
	}
	if pr.Asset == "" {
		return &X402Error{Code: ErrProtocolViolation, Message: "requirements: asset is required"}
	}
	return nil
}

// PaymentEnvelope is the complete signed, network-tagged payment object
// exchanged between payer and payee in the X-PAYMENT header. The scheme tag
// is routing metadata only; the signature, verified against the domain in
// the requirement's extra data, is the sole source of truth.
type PaymentEnvelope struct {
	X402Version int           `json:"x402Version"`
	Scheme      string        `json:"scheme"`
	Network     string        `json:"network"`
	Payload     Authorization `json:"payload"`
}

// Validate checks that the envelope carries every required field.
func (e *PaymentEnvelope) Validate() error {
	if e.X402Version != X402Version {
		return &X402Error{
			Code:    ErrProtocolViolation,
			Message: fmt.Sprintf("envelope: unsupported x402Version %d", e.X402Version),
		}
	}
	if e.Scheme == "" || e.Network == "" {
		return &X402Error{Code: ErrProtocolViolation, Message: "envelope: scheme and network are required"}
	}
	p := e.Payload
	if p.From == "" || p.To == "" || p.Value == "" || p.Nonce == "" || p.Signature == "" {
		return &X402Error{Code: ErrProtocolViolation, Message: "envelope: incomplete authorization payload"}
	}
	if p.ValidAfter == "" || p.ValidBefore == "" {
		return &X402Error{Code: ErrProtocolViolation, Message: "envelope: missing validity window"}
	}
	return nil
}

// PaymentRequired is the 402 response body: the protocol version, the list
// of acceptable payments and, after a failed settlement, a short error
// annotation that lets the payer rebuild a corrected authorization.
type PaymentRequired struct {
	X402Version int                   `json:"x402Version"`
	Accepts     []PaymentRequirements `json:"accepts"`
	Error       string                `json:"error,omitempty"`
}

// SettlementResult is the terminal outcome of settling one envelope,
// produced by the facilitator and surfaced to both payer and payee.
type SettlementResult struct {
	Success     bool   `json:"success"`
	TxHash      string `json:"transactionHash,omitempty"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	Network     string `json:"network,omitempty"`
	Error       string `json:"error,omitempty"`
}

// FacilitatorRequest is the body POSTed to the facilitator's /verify and
// /settle endpoints.
type FacilitatorRequest struct {
	X402Version         int                 `json:"x402Version"`
	PaymentPayload      PaymentEnvelope     `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// VerifyResponse is the facilitator's answer to /verify.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// ProxyContract describes the per-network proxy settlement contract
// advertised by the facilitator's /contracts endpoint.
type ProxyContract struct {
	Address string `json:"address"`
	Version string `json:"version"`
}

// ContractsResponse maps network identifier to proxy contract.
type ContractsResponse map[string]ProxyContract

// SupportedKind is one (scheme, network) tuple a facilitator can settle.
type SupportedKind struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
}

// SupportedResponse is the facilitator's answer to /supported.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}
