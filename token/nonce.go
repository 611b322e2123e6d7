package token

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/megalith-labs/x402-go/clients"
	"github.com/megalith-labs/x402-go/types"
)

// NonceReader supplies the next proxied-scheme nonce for (user, token).
// The authorization builder depends on this interface so tests can stub it.
type NonceReader interface {
	Next(ctx context.Context, user, token string) (*big.Int, error)
}

// ProxyNonceSource reads the proxy contract's counter on every call. It
// keeps no local state: two concurrent builds for the same (user, token)
// may read the same nonce and race, and the proxy contract alone rejects
// the loser as a replay. Synthesizing nonces locally would desynchronize
// from that authority.
type ProxyNonceSource struct {
	Reader clients.ChainReader
	Proxy  string
}

var _ NonceReader = (*ProxyNonceSource)(nil)

func (s *ProxyNonceSource) Next(ctx context.Context, user, token string) (*big.Int, error) {
	nonce, err := s.Reader.ProxyNonce(ctx,
		common.HexToAddress(s.Proxy),
		common.HexToAddress(user),
		common.HexToAddress(token),
	)
	if err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrTransport,
			Message: "failed to read proxy nonce",
			Err:     err,
		}
	}
	return nonce, nil
}
