// Package clients provides read-only blockchain access for the payment
// engine: the capability probe, token metadata reads, and the proxy
// contract's nonce counter. All writes go through the facilitator; this
// package never broadcasts a transaction.
package clients

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ChainReader is the read surface the token caches and authorization
// builder depend on. Implemented by EVMClient over JSON-RPC; tests inject
// stubs.
type ChainReader interface {
	// AuthorizationState reads the native scheme's nonce-consumption flag.
	// Used as the capability probe with a throwaway nonce: tokens without
	// the method revert, which classifies them as proxied.
	AuthorizationState(ctx context.Context, token, authorizer common.Address, nonce [32]byte) (bool, error)

	// TokenDecimals reads the token's decimals.
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)

	// TokenName reads the token's display name, a native signing-domain field.
	TokenName(ctx context.Context, token common.Address) (string, error)

	// TokenVersion reads the token's EIP-712 version. Many deployed tokens
	// omit version(); callers default it rather than fail.
	TokenVersion(ctx context.Context, token common.Address) (string, error)

	// ProxyNonce reads the proxy contract's strictly-increasing counter
	// for (user, token).
	ProxyNonce(ctx context.Context, proxy, user, token common.Address) (*big.Int, error)

	// ChainID returns the EIP-155 chain id the reader is connected to.
	ChainID() *big.Int

	Close()
}
