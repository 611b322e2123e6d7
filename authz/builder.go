// Package authz constructs signed transfer authorizations: the typed-data
// domain and message for either scheme, the validity window, the nonce, and
// the signature requested from the external signer.
package authz

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/megalith-labs/x402-go/eip712"
	"github.com/megalith-labs/x402-go/signer"
	"github.com/megalith-labs/x402-go/token"
	"github.com/megalith-labs/x402-go/types"
)

// Validity window applied at construction time: validAfter backdates 60s to
// absorb clock skew, validBefore expires the authorization after an hour.
const (
	ValiditySkew   = 60 * time.Second
	ValidityWindow = time.Hour
)

// NativeParams carries everything the native path needs to rebuild the
// exact signing domain the settling side will reconstruct. TokenName and
// TokenVersion must come verbatim from the payee's requirements extra data
// (or the same metadata cache the payee used); recomputing them risks a
// domain mismatch that invalidates the signature.
type NativeParams struct {
	Network      types.Network
	Token        string
	TokenName    string
	TokenVersion string
}

// ProxiedParams identifies the proxy settlement contract and the nonce
// source that reads its counter.
type ProxiedParams struct {
	Network types.Network
	Token   string
	Proxy   string
	Nonces  token.NonceReader
}

// BuildNative constructs and signs a native-scheme authorization with a
// random 256-bit nonce.
func BuildNative(ctx context.Context, s signer.Signer, p NativeParams, to string, value *big.Int) (types.Authorization, error) {
	if p.TokenName == "" {
		return types.Authorization{}, &types.X402Error{
			Code:    types.ErrConfiguration,
			Message: "native authorization requires the token's signing-domain name",
		}
	}
	if p.TokenVersion == "" {
		p.TokenVersion = token.DefaultVersion
	}

	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return types.Authorization{}, fmt.Errorf("generate nonce: %w", err)
	}

	validAfter, validBefore := window()
	from := s.Address()

	domainSep, err := eip712.DomainSeparator(eip712.Domain{
		Name:              p.TokenName,
		Version:           p.TokenVersion,
		ChainID:           big.NewInt(p.Network.ChainID),
		VerifyingContract: common.HexToAddress(p.Token),
	})
	if err != nil {
		return types.Authorization{}, err
	}

	structHash := eip712.HashNativeTransfer(
		from, common.HexToAddress(to), value, validAfter, validBefore, nonce)

	sig, err := signDigest(ctx, s, eip712.Digest(domainSep, structHash))
	if err != nil {
		return types.Authorization{}, err
	}

	return types.Authorization{
		From:        from.Hex(),
		To:          common.HexToAddress(to).Hex(),
		Value:       value.String(),
		ValidAfter:  validAfter.String(),
		ValidBefore: validBefore.String(),
		Nonce:       hexutil.Encode(nonce[:]),
		Signature:   hexutil.Encode(sig),
	}, nil
}

// BuildProxied constructs and signs a proxied-scheme authorization. The
// nonce is read fresh from the proxy contract on every call; concurrent
// builds for the same (user, token) are expected to race and the contract
// rejects the loser.
func BuildProxied(ctx context.Context, s signer.Signer, p ProxiedParams, to string, value *big.Int) (types.Authorization, error) {
	if p.Proxy == "" {
		return types.Authorization{}, &types.X402Error{
			Code:    types.ErrConfiguration,
			Message: "proxied authorization requires the proxy contract address",
		}
	}

	from := s.Address()

	nonce, err := p.Nonces.Next(ctx, from.Hex(), p.Token)
	if err != nil {
		return types.Authorization{}, err
	}

	validAfter, validBefore := window()

	domainSep, err := eip712.DomainSeparator(eip712.Domain{
		Name:              eip712.ProxiedDomainName,
		Version:           eip712.ProxiedDomainVersion,
		ChainID:           big.NewInt(p.Network.ChainID),
		VerifyingContract: common.HexToAddress(p.Proxy),
	})
	if err != nil {
		return types.Authorization{}, err
	}

	structHash := eip712.HashProxiedTransfer(
		common.HexToAddress(p.Token), from, common.HexToAddress(to),
		value, nonce, validAfter, validBefore)

	sig, err := signDigest(ctx, s, eip712.Digest(domainSep, structHash))
	if err != nil {
		return types.Authorization{}, err
	}

	return types.Authorization{
		From:        from.Hex(),
		To:          common.HexToAddress(to).Hex(),
		Value:       value.String(),
		ValidAfter:  validAfter.String(),
		ValidBefore: validBefore.String(),
		Nonce:       nonce.String(),
		Signature:   hexutil.Encode(sig),
	}, nil
}

func window() (validAfter, validBefore *big.Int) {
	now := time.Now()
	return big.NewInt(now.Add(-ValiditySkew).Unix()),
		big.NewInt(now.Add(ValidityWindow).Unix())
}

func signDigest(ctx context.Context, s signer.Signer, digest common.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sig, err := s.SignDigest(digest)
	if err != nil {
		var xe *types.X402Error
		if errors.As(err, &xe) {
			return nil, err
		}
		return nil, &types.X402Error{Code: types.ErrSignerDeclined, Message: "signer declined", Err: err}
	}
	if len(sig) != 65 {
		return nil, &types.X402Error{
			Code:    types.ErrSignerDeclined,
			Message: fmt.Sprintf("signer returned %d-byte signature, want 65", len(sig)),
		}
	}
	return sig, nil
}
