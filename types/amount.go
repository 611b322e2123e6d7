package types

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a human-readable decimal amount to atomic units.
// The decimals value must come from a live token lookup, never assumed.
func ParseAmount(amount string, decimals uint8) (*big.Int, error) {
	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, &X402Error{Code: ErrConfiguration, Message: "invalid amount " + amount, Err: err}
	}
	if dec.IsNegative() {
		return nil, &X402Error{Code: ErrConfiguration, Message: "amount cannot be negative"}
	}
	return dec.Shift(int32(decimals)).BigInt(), nil
}

// FormatAmount renders an atomic-unit amount as a human-readable decimal.
func FormatAmount(amount *big.Int, decimals uint8) string {
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

// ParseAtomic parses a base-10 atomic-unit string into a big.Int.
func ParseAtomic(value string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(value, 10)
	if !ok || n.Sign() < 0 {
		return nil, &X402Error{Code: ErrProtocolViolation, Message: "invalid atomic amount " + value}
	}
	return n, nil
}

// AtomicToDecimal converts an atomic-unit string to a human-readable
// decimal using the asset's declared decimals.
func AtomicToDecimal(value string, decimals uint8) (decimal.Decimal, error) {
	n, err := ParseAtomic(value)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromBigInt(n, -int32(decimals)), nil
}
