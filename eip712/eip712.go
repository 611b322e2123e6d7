// Package eip712 builds the typed-data digests signed and recovered by the
// payment engine: the EIP-712 domain separator, the native
// TransferWithAuthorization struct hash, and the proxied-transfer struct
// hash used by the Megalith settlement contract.
package eip712

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Domain is the signing domain. Any divergence between the domain used at
// signing time and the one the settlement contract reconstructs invalidates
// the signature, so these fields travel verbatim in requirements extra data.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// Proxied-scheme domain constants. The proxy contract owns this domain
// regardless of which token it settles.
const (
	ProxiedDomainName    = "Megalith"
	ProxiedDomainVersion = "1"
)

var (
	domainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))

	nativeTypeHash = crypto.Keccak256Hash([]byte(
		"TransferWithAuthorization(address from,address to,uint256 value,uint256 validAfter,uint256 validBefore,bytes32 nonce)"))

	proxiedTypeHash = crypto.Keccak256Hash([]byte(
		"ProxiedTransfer(address token,address from,address to,uint256 value,uint256 nonce,uint256 validAfter,uint256 validBefore)"))
)

// DomainSeparator hashes the domain per EIP-712:
// keccak256(abi.encode(typeHash, keccak256(name), keccak256(version), chainId, verifyingContract)).
func DomainSeparator(d Domain) (common.Hash, error) {
	if d.Name == "" || d.Version == "" || d.ChainID == nil {
		return common.Hash{}, errors.New("eip712: incomplete domain")
	}
	return concatHash(
		domainTypeHash.Bytes(),
		crypto.Keccak256([]byte(d.Name)),
		crypto.Keccak256([]byte(d.Version)),
		padUint(d.ChainID),
		padAddress(d.VerifyingContract),
	), nil
}

// HashNativeTransfer hashes the TransferWithAuthorization message struct.
func HashNativeTransfer(from, to common.Address, value, validAfter, validBefore *big.Int, nonce [32]byte) common.Hash {
	return concatHash(
		nativeTypeHash.Bytes(),
		padAddress(from),
		padAddress(to),
		padUint(value),
		padUint(validAfter),
		padUint(validBefore),
		nonce[:],
	)
}

// HashProxiedTransfer hashes the ProxiedTransfer message struct. The nonce
// here is the proxy contract's per-(user, token) counter, a uint256.
func HashProxiedTransfer(token, from, to common.Address, value, nonce, validAfter, validBefore *big.Int) common.Hash {
	return concatHash(
		proxiedTypeHash.Bytes(),
		padAddress(token),
		padAddress(from),
		padAddress(to),
		padUint(value),
		padUint(nonce),
		padUint(validAfter),
		padUint(validBefore),
	)
}

// Digest produces the final signable hash: keccak256("\x19\x01" || domainSeparator || structHash).
func Digest(domainSeparator, structHash common.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domainSeparator.Bytes(), structHash.Bytes())
}

// RecoverSigner recovers the address that signed digest. sig must be 65
// bytes R||S||V; V of 27/28 is normalized to 0/1 before recovery.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("eip712: signature must be 65 bytes, got %d", len(sig))
	}

	s := make([]byte, 65)
	copy(s, sig)
	if s[64] >= 27 {
		s[64] -= 27
	}

	pub, err := crypto.SigToPub(digest.Bytes(), s)
	if err != nil {
		return common.Address{}, fmt.Errorf("eip712: recover: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// HexToBytes32 decodes a 0x-prefixed hex string into exactly 32 bytes.
func HexToBytes32(hexStr string) ([32]byte, error) {
	var out [32]byte
	if len(hexStr) >= 2 && hexStr[:2] == "0x" {
		hexStr = hexStr[2:]
	}
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("eip712: expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// DecodeSignature decodes a 0x-prefixed 65-byte signature.
func DecodeSignature(sigHex string) ([]byte, error) {
	if len(sigHex) >= 2 && sigHex[:2] == "0x" {
		sigHex = sigHex[2:]
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return nil, fmt.Errorf("eip712: bad signature hex: %w", err)
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("eip712: signature must be 65 bytes, got %d", len(sig))
	}
	return sig, nil
}

func concatHash(parts ...[]byte) common.Hash {
	var joined []byte
	for _, p := range parts {
		joined = append(joined, p...)
	}
	return crypto.Keccak256Hash(joined)
}

// padUint right-aligns a uint256 into 32 bytes.
func padUint(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

// padAddress left-pads an address into a 32-byte word.
func padAddress(a common.Address) []byte {
	out := make([]byte, 32)
	copy(out[12:], a.Bytes())
	return out
}
