// Package x402 implements the x402 HTTP micropayment handshake: a payee
// demands payment with status 402, a payer signs an off-chain authorization
// and retries once, and a facilitator settles the authorization on chain.
// This root package wires the shared caches, chain readers and facilitator
// client into ready-to-use payer and payee entry points.
package x402

import (
	"context"
	"time"

	"github.com/megalith-labs/x402-go/clients"
	"github.com/megalith-labs/x402-go/facilitator"
	"github.com/megalith-labs/x402-go/logger"
	"github.com/megalith-labs/x402-go/metrics"
	"github.com/megalith-labs/x402-go/payee"
	"github.com/megalith-labs/x402-go/payer"
	"github.com/megalith-labs/x402-go/signer"
	"github.com/megalith-labs/x402-go/token"
	"github.com/megalith-labs/x402-go/types"
)

// Config is the engine's startup configuration. Network descriptors are
// immutable after New returns.
type Config struct {
	// Networks lists the chains this process can read.
	Networks []types.Network

	// FacilitatorURL is the settlement service base URL.
	FacilitatorURL string
}

// Engine owns the process-wide state: one chain reader per network, the
// token caches, and the facilitator client. Construct one per process and
// share it between payer and payee roles.
type Engine struct {
	networks map[string]types.Network
	readers  map[string]clients.ChainReader
	metadata *token.MetadataCache
	schemes  *token.SchemeResolver
	fc       *facilitator.Client

	log     logger.Logger
	rec     metrics.Recorder
	timeout time.Duration
}

// New dials every configured network and prepares the shared caches.
func New(cfg Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		networks: make(map[string]types.Network, len(cfg.Networks)),
		readers:  make(map[string]clients.ChainReader, len(cfg.Networks)),
		log:      logger.Noop{},
		rec:      metrics.Noop{},
		timeout:  facilitator.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}

	if len(cfg.Networks) == 0 {
		return nil, &types.X402Error{Code: types.ErrConfiguration, Message: "at least one network is required"}
	}

	for _, n := range cfg.Networks {
		reader, err := clients.NewEVMClient(n)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.networks[n.ID] = n
		e.readers[n.ID] = reader
	}

	e.metadata = token.NewMetadataCache(e.log)
	e.schemes = token.NewSchemeResolver(e.log)
	e.schemes.Metrics = e.rec

	if cfg.FacilitatorURL != "" {
		e.fc = facilitator.NewClient(cfg.FacilitatorURL)
		e.fc.Timeout = e.timeout
		e.fc.Logger = e.log
		e.fc.Metrics = e.rec
	}

	return e, nil
}

// Payer builds an HTTP client that automatically pays 402 responses, with
// the given signer and spending ceiling in human-readable asset units.
func (e *Engine) Payer(s signer.Signer, ceiling string) (*payer.Client, error) {
	opts := []payer.Option{
		payer.WithLogger(e.log),
		payer.WithMetrics(e.rec),
		payer.WithCaches(e.metadata, e.schemes),
	}
	if e.fc != nil {
		opts = append(opts, payer.WithFacilitator(e.fc))
	}
	return payer.NewClient(s, ceiling, e.networks, e.readers, opts...)
}

// Payee builds the middleware handler gating routes behind payment to the
// given recipient. proxyContracts may be nil when every priced token is
// native; it can be populated from ProxyContracts.
func (e *Engine) Payee(payTo string, routes payee.RouteTable, proxyContracts map[string]string) (*payee.Handler, error) {
	if e.fc == nil {
		return nil, &types.X402Error{Code: types.ErrConfiguration, Message: "payee role requires a facilitator URL"}
	}
	if payTo == "" {
		return nil, &types.X402Error{Code: types.ErrConfiguration, Message: "payee recipient address is required"}
	}

	return &payee.Handler{
		Routes: routes,
		Engine: &payee.RequirementEngine{
			PayTo:          payTo,
			Readers:        e.readers,
			Metadata:       e.metadata,
			Schemes:        e.schemes,
			ProxyContracts: proxyContracts,
		},
		Facilitator: e.fc,
		Logger:      e.log,
		Metrics:     e.rec,
	}, nil
}

// ProxyContracts fetches the facilitator's per-network proxy settlement
// contracts, in the shape Payee expects.
func (e *Engine) ProxyContracts(ctx context.Context) (map[string]string, error) {
	if e.fc == nil {
		return nil, &types.X402Error{Code: types.ErrConfiguration, Message: "no facilitator configured"}
	}
	contracts, err := e.fc.Contracts(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(contracts))
	for network, pc := range contracts {
		out[network] = pc.Address
	}
	return out, nil
}

// Facilitator exposes the underlying facilitator client, or nil when none
// is configured.
func (e *Engine) Facilitator() *facilitator.Client { return e.fc }

// Close tears down every RPC connection.
func (e *Engine) Close() {
	for _, r := range e.readers {
		r.Close()
	}
}
