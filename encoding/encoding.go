// Package encoding serializes x402 wire objects to the base64 JSON form
// carried in the X-PAYMENT and X-PAYMENT-RESPONSE headers, and decodes them
// with typed parse errors so the payee's error path can answer 400 instead
// of 402 or 500.
package encoding

import (
	"encoding/base64"
	"encoding/json"

	"github.com/megalith-labs/x402-go/types"
)

// EncodeEnvelope renders an envelope as base64 of canonical JSON.
func EncodeEnvelope(env types.PaymentEnvelope) (string, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeEnvelope parses a payment header value. Malformed base64, malformed
// JSON and missing required fields all return a protocol_violation error.
func DecodeEnvelope(encoded string) (types.PaymentEnvelope, error) {
	var env types.PaymentEnvelope

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return env, &types.X402Error{
			Code:    types.ErrProtocolViolation,
			Message: "payment header is not valid base64",
			Err:     err,
		}
	}

	if err := json.Unmarshal(data, &env); err != nil {
		return env, &types.X402Error{
			Code:    types.ErrProtocolViolation,
			Message: "payment header is not valid JSON",
			Err:     err,
		}
	}

	if err := env.Validate(); err != nil {
		return env, err
	}
	return env, nil
}

// EncodeSettlement renders a settlement result for the response header.
func EncodeSettlement(res types.SettlementResult) (string, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeSettlement parses an X-PAYMENT-RESPONSE header value.
func DecodeSettlement(encoded string) (types.SettlementResult, error) {
	var res types.SettlementResult

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return res, &types.X402Error{
			Code:    types.ErrProtocolViolation,
			Message: "settlement header is not valid base64",
			Err:     err,
		}
	}

	if err := json.Unmarshal(data, &res); err != nil {
		return res, &types.X402Error{
			Code:    types.ErrProtocolViolation,
			Message: "settlement header is not valid JSON",
			Err:     err,
		}
	}
	return res, nil
}

// DecodePaymentRequired parses a 402 response body. An unparsable body is a
// protocol violation by the server.
func DecodePaymentRequired(body []byte) (types.PaymentRequired, error) {
	var pr types.PaymentRequired

	if err := json.Unmarshal(body, &pr); err != nil {
		return pr, &types.X402Error{
			Code:    types.ErrProtocolViolation,
			Message: "402 body is not valid JSON",
			Err:     err,
		}
	}
	if len(pr.Accepts) == 0 {
		return pr, &types.X402Error{
			Code:    types.ErrProtocolViolation,
			Message: "402 body lists no acceptable payments",
		}
	}
	for i := range pr.Accepts {
		if err := pr.Accepts[i].Validate(); err != nil {
			return pr, err
		}
	}
	return pr, nil
}
