package token

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/megalith-labs/x402-go/clients"
	"github.com/megalith-labs/x402-go/logger"
	"github.com/megalith-labs/x402-go/types"
)

// Fallbacks for tokens that omit name() or version(). Metadata fetch must
// stay resilient; a missing view is not an error.
const (
	DefaultName    = "Unknown Token"
	DefaultVersion = "1"
)

// Metadata is the cached per-token record.
type Metadata struct {
	Decimals uint8
	Name     string
	Version  string
}

// MetadataCache memoizes token metadata per (network, token). Entries are
// never invalidated within a process lifetime; token decimals and name are
// immutable post-deployment by convention. Long-lived multi-day processes
// that must survive a token redeploy need an external invalidation path.
type MetadataCache struct {
	mu      sync.Mutex
	entries map[string]Metadata
	log     logger.Logger
}

func NewMetadataCache(log logger.Logger) *MetadataCache {
	if log == nil {
		log = logger.Noop{}
	}
	return &MetadataCache{
		entries: make(map[string]Metadata),
		log:     log,
	}
}

// Get returns the cached record or fetches it. The three reads are not
// causally dependent, so a miss issues them concurrently and joins. Only
// the decimals read can fail the lookup; name and version default instead,
// because many deployed tokens omit version().
func (c *MetadataCache) Get(ctx context.Context, reader clients.ChainReader, network, token string) (Metadata, error) {
	key := network + "/" + normalize(token)

	c.mu.Lock()
	if m, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return m, nil
	}
	c.mu.Unlock()

	addr := common.HexToAddress(token)
	meta := Metadata{Name: DefaultName, Version: DefaultVersion}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		decimals, err := reader.TokenDecimals(gctx, addr)
		if err != nil {
			return &types.X402Error{
				Code:    types.ErrConfiguration,
				Message: "failed to read decimals for " + token + " on " + network,
				Err:     err,
			}
		}
		meta.Decimals = decimals
		return nil
	})
	g.Go(func() error {
		if name, err := reader.TokenName(gctx, addr); err == nil && name != "" {
			meta.Name = name
		}
		return nil
	})
	g.Go(func() error {
		if version, err := reader.TokenVersion(gctx, addr); err == nil && version != "" {
			meta.Version = version
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return Metadata{}, err
	}

	// Two concurrent misses may both reach here; the writes are idempotent
	// with identical results, so last-write-wins is fine.
	c.mu.Lock()
	c.entries[key] = meta
	c.mu.Unlock()

	c.log.Debug("token metadata cached",
		"network", network, "token", token,
		"decimals", meta.Decimals, "name", meta.Name, "version", meta.Version)
	return meta, nil
}
