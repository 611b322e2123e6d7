// Package token holds the process-wide token facts the engine caches:
// scheme classification, metadata (decimals, name, signing version) and the
// proxy nonce source. Caches are explicit injected objects so tests can
// construct a fresh one per case; entries live for the process lifetime
// with no eviction.
package token

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/megalith-labs/x402-go/clients"
	"github.com/megalith-labs/x402-go/logger"
	"github.com/megalith-labs/x402-go/metrics"
	"github.com/megalith-labs/x402-go/types"
)

// SchemeResolver classifies tokens as native or proxied and caches the
// outcome per (network, token).
type SchemeResolver struct {
	mu      sync.Mutex
	schemes map[string]types.Scheme
	log     logger.Logger

	// Metrics records probe latency when set.
	Metrics metrics.Recorder
}

func NewSchemeResolver(log logger.Logger) *SchemeResolver {
	if log == nil {
		log = logger.Noop{}
	}
	return &SchemeResolver{
		schemes: make(map[string]types.Scheme),
		log:     log,
	}
}

// Resolve probes the token once and caches the answer. The probe reads the
// authorization state for a throwaway nonce: success means the token speaks
// the native authorized-transfer primitive; any failure, including an
// unrelated RPC revert, falls back to the proxied scheme. The fallback is
// deliberate, so a mis-probed proxied token is harmless, while a native
// token misclassified by a transient error fails deterministically on the
// ERC-20 path later.
func (r *SchemeResolver) Resolve(ctx context.Context, reader clients.ChainReader, network, token, probeAddr string) types.Scheme {
	key := network + "/" + normalize(token)

	r.mu.Lock()
	if s, ok := r.schemes[key]; ok {
		r.mu.Unlock()
		return s
	}
	r.mu.Unlock()

	var nonce [32]byte
	_, _ = rand.Read(nonce[:])

	scheme := types.SchemeProxied
	started := time.Now()
	_, err := reader.AuthorizationState(ctx, common.HexToAddress(token), common.HexToAddress(probeAddr), nonce)
	r.rec().ObserveLatency(metrics.OpProbe, network, time.Since(started))
	if err == nil {
		scheme = types.SchemeNative
	} else {
		r.log.Debug("capability probe failed, treating token as proxied",
			"network", network, "token", token, "error", err.Error())
	}

	r.mu.Lock()
	r.schemes[key] = scheme
	r.mu.Unlock()

	r.log.Info("token scheme resolved", "network", network, "token", token, "scheme", scheme.String())
	return scheme
}

// Known returns the cached scheme, if any, without probing.
func (r *SchemeResolver) Known(network, token string) (types.Scheme, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schemes[network+"/"+normalize(token)]
	return s, ok
}

func normalize(addr string) string {
	return common.HexToAddress(addr).Hex()
}

func (r *SchemeResolver) rec() metrics.Recorder {
	if r.Metrics != nil {
		return r.Metrics
	}
	return metrics.Noop{}
}
