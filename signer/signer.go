// Package signer defines the opaque signing capability the engine depends
// on. Key custody stays outside the protocol core; the engine only ever
// hands a 32-byte digest to a Signer and receives a 65-byte signature back.
package signer

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/megalith-labs/x402-go/types"
)

// Signer signs EIP-712 digests. A refusal (user declined, key unavailable)
// must surface as an error; the engine treats it as fatal and never retries.
type Signer interface {
	Address() common.Address
	SignDigest(digest common.Hash) ([]byte, error)
}

// Local signs with an in-process secp256k1 key. Intended for services and
// tests; interactive wallets implement Signer over their own channel.
type Local struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

var _ Signer = (*Local)(nil)

// NewLocal parses a hex private key, with or without 0x prefix.
func NewLocal(hexKey string) (*Local, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrConfiguration,
			Message: "invalid signer private key",
			Err:     err,
		}
	}
	return &Local{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

func (l *Local) Address() common.Address { return l.addr }

// SignDigest returns R||S||V with V normalized to 27/28, the convention
// settlement contracts expect.
func (l *Local) SignDigest(digest common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(digest.Bytes(), l.key)
	if err != nil {
		return nil, &types.X402Error{Code: types.ErrSignerDeclined, Message: "signing failed", Err: err}
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

// Func adapts a function to the Signer interface.
type Func struct {
	Addr common.Address
	Sign func(digest common.Hash) ([]byte, error)
}

var _ Signer = (*Func)(nil)

func (f *Func) Address() common.Address { return f.Addr }

func (f *Func) SignDigest(digest common.Hash) ([]byte, error) {
	return f.Sign(digest)
}
