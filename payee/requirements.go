package payee

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/megalith-labs/x402-go/clients"
	"github.com/megalith-labs/x402-go/token"
	"github.com/megalith-labs/x402-go/types"
)

var validate = validator.New()

// DefaultMaxTimeoutSeconds bounds how long a payer should expect the payee
// to wait on settlement.
const DefaultMaxTimeoutSeconds = 60

// RequirementEngine turns a route's price config into the 402 response
// body: atomic amount, recipient, scheme tag and the signing-domain extra
// data the payer needs to reproduce the exact domain at signing time.
type RequirementEngine struct {
	// PayTo is the recipient address, also used as the probe address for
	// scheme classification.
	PayTo string

	// Readers provides per-network chain access, keyed by network id.
	Readers map[string]clients.ChainReader

	// Metadata and Schemes are the shared token caches. The payee's
	// metadata result is authoritative for what it will accept.
	Metadata *token.MetadataCache
	Schemes  *token.SchemeResolver

	// ProxyContracts maps network id to the proxy settlement contract,
	// embedded in proxied-scheme extra data.
	ProxyContracts map[string]string
}

// Build validates the route config and produces immutable requirements for
// one resource. Missing amount/asset/network is a server misconfiguration,
// reported as a configuration error (a 500, not a 402) by callers.
func (e *RequirementEngine) Build(ctx context.Context, cfg RouteConfig, resource string) (*types.PaymentRequirements, error) {
	if err := validate.Struct(&cfg); err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrConfiguration,
			Message: "route config for " + resource + " is incomplete",
			Err:     err,
		}
	}

	reader, ok := e.Readers[cfg.Network]
	if !ok {
		return nil, &types.X402Error{
			Code:    types.ErrConfiguration,
			Message: "no chain reader configured for network " + cfg.Network,
		}
	}

	// Atomic conversion always uses a live decimals lookup; 18 or 6 are
	// never assumed.
	meta, err := e.Metadata.Get(ctx, reader, cfg.Network, cfg.Asset)
	if err != nil {
		return nil, err
	}

	atomic, err := types.ParseAmount(cfg.Amount, meta.Decimals)
	if err != nil {
		return nil, err
	}

	scheme := e.Schemes.Resolve(ctx, reader, cfg.Network, cfg.Asset, e.PayTo)

	// Extra carries the domain fields verbatim so the payer reconstructs
	// an identical signing domain without its own metadata fetch.
	extra := map[string]string{
		"name":    meta.Name,
		"version": meta.Version,
	}
	if scheme == types.SchemeProxied {
		proxy, ok := e.ProxyContracts[cfg.Network]
		if !ok || proxy == "" {
			return nil, &types.X402Error{
				Code:    types.ErrConfiguration,
				Message: fmt.Sprintf("token %s on %s needs proxied settlement but no proxy contract is configured", cfg.Asset, cfg.Network),
			}
		}
		extra["proxyContract"] = proxy
	}

	return &types.PaymentRequirements{
		Scheme:            scheme.String(),
		Network:           cfg.Network,
		MaxAmountRequired: atomic.String(),
		Resource:          resource,
		Description:       cfg.Description,
		MimeType:          cfg.MimeType,
		PayTo:             e.PayTo,
		MaxTimeoutSeconds: DefaultMaxTimeoutSeconds,
		Asset:             cfg.Asset,
		Extra:             extra,
	}, nil
}
