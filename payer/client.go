package payer

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/megalith-labs/x402-go/clients"
	"github.com/megalith-labs/x402-go/facilitator"
	"github.com/megalith-labs/x402-go/logger"
	"github.com/megalith-labs/x402-go/metrics"
	"github.com/megalith-labs/x402-go/signer"
	"github.com/megalith-labs/x402-go/token"
	"github.com/megalith-labs/x402-go/types"
)

// Client is an http.Client whose transport pays 402 responses.
type Client struct {
	*http.Client
}

// Option configures the payer transport.
type Option func(*Transport)

// WithBase sets the underlying RoundTripper.
func WithBase(rt http.RoundTripper) Option {
	return func(t *Transport) { t.Base = rt }
}

// WithFacilitator enables proxy-contract discovery via /contracts.
func WithFacilitator(fc *facilitator.Client) Option {
	return func(t *Transport) { t.Facilitator = fc }
}

// WithCaches shares existing token caches with the transport. A process
// running both payer and payee roles passes the same caches to both so each
// token is probed and fetched once.
func WithCaches(meta *token.MetadataCache, schemes *token.SchemeResolver) Option {
	return func(t *Transport) {
		t.Metadata = meta
		t.Schemes = schemes
	}
}

// WithLogger sets the transport logger.
func WithLogger(log logger.Logger) Option {
	return func(t *Transport) { t.Logger = log }
}

// WithMetrics sets the transport metrics recorder.
func WithMetrics(rec metrics.Recorder) Option {
	return func(t *Transport) { t.Metrics = rec }
}

// NewClient builds a paying HTTP client. ceiling is the maximum approved
// amount per payment in human-readable asset units, e.g. "0.50".
func NewClient(
	s signer.Signer,
	ceiling string,
	networks map[string]types.Network,
	readers map[string]clients.ChainReader,
	opts ...Option,
) (*Client, error) {
	max, err := decimal.NewFromString(ceiling)
	if err != nil || max.IsNegative() {
		return nil, &types.X402Error{
			Code:    types.ErrConfiguration,
			Message: "invalid spending ceiling " + ceiling,
			Err:     err,
		}
	}

	t := &Transport{
		Signer:   s,
		Ceiling:  max,
		Networks: networks,
		Readers:  readers,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.Metadata == nil {
		t.Metadata = token.NewMetadataCache(t.Logger)
	}
	if t.Schemes == nil {
		t.Schemes = token.NewSchemeResolver(t.Logger)
		t.Schemes.Metrics = t.Metrics
	}

	return &Client{Client: &http.Client{Transport: t}}, nil
}
