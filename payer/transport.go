// Package payer wraps an outbound HTTP client with the 402-retry handshake:
// parse requirements from a 402, enforce the caller's spending ceiling,
// build and sign an authorization, and reissue the request exactly once
// with the payment envelope attached.
package payer

import (
	"context"
	"io"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/megalith-labs/x402-go/authz"
	"github.com/megalith-labs/x402-go/clients"
	"github.com/megalith-labs/x402-go/encoding"
	"github.com/megalith-labs/x402-go/facilitator"
	"github.com/megalith-labs/x402-go/logger"
	"github.com/megalith-labs/x402-go/metrics"
	"github.com/megalith-labs/x402-go/signer"
	"github.com/megalith-labs/x402-go/token"
	"github.com/megalith-labs/x402-go/types"
)

// Requirement extra keys the payer consumes. The payee transmits the
// signing-domain fields verbatim; the payer must not recompute them.
const (
	extraName    = "name"
	extraVersion = "version"
	extraProxy   = "proxyContract"
)

// Transport is an http.RoundTripper implementing the payer state machine.
// The retry happens at most once per logical request; the second response
// is returned verbatim whatever its status, so a misbehaving server cannot
// drive an infinite 402 loop.
type Transport struct {
	// Base issues the actual requests, http.DefaultTransport if nil.
	Base http.RoundTripper

	// Signer is the opaque signing capability. Its address is also the
	// probe address for scheme resolution.
	Signer signer.Signer

	// Ceiling is the maximum the caller approves per payment, in
	// human-readable units of whatever asset the payee demands.
	Ceiling decimal.Decimal

	// Networks and Readers describe the chains this payer can pay on,
	// keyed by network id.
	Networks map[string]types.Network
	Readers  map[string]clients.ChainReader

	// Metadata and Schemes are the process-wide token caches.
	Metadata *token.MetadataCache
	Schemes  *token.SchemeResolver

	// Facilitator resolves proxy contract addresses via /contracts when a
	// proxied requirement omits one. Optional.
	Facilitator *facilitator.Client

	Logger  logger.Logger
	Metrics metrics.Recorder
}

// RoundTrip implements http.RoundTripper. The retried flag is the explicit
// state of the handshake, not an artifact of call depth.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	retried := false
	attempt := req.Clone(req.Context())

	for {
		resp, err := t.base().RoundTrip(attempt)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusPaymentRequired || retried {
			// Done: non-402, or the single paid retry already happened.
			// The second attempt's response passes through verbatim.
			return resp, nil
		}

		// RequirementsReceived: the 402 body is consumed here; the caller
		// only ever sees the second attempt's response.
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if err != nil {
			return nil, &types.X402Error{Code: types.ErrTransport, Message: "failed to read 402 body", Err: err}
		}

		required, err := encoding.DecodePaymentRequired(body)
		if err != nil {
			return nil, err
		}

		header, reqs, err := t.preparePayment(req.Context(), required)
		if err != nil {
			return nil, err
		}

		t.log().Info("retrying with payment",
			"url", req.URL.String(), "network", reqs.Network, "scheme", reqs.Scheme,
			"amount", reqs.MaxAmountRequired)
		t.rec().IncEvent(metrics.EventPaymentRetried, reqs.Network)

		attempt = req.Clone(req.Context())
		if err := rewindBody(req, attempt); err != nil {
			return nil, err
		}
		attempt.Header.Set(types.PaymentHeader, header)
		retried = true
	}
}

// preparePayment runs ceiling enforcement and authorization construction
// for the first payable requirement, returning the encoded header value.
func (t *Transport) preparePayment(ctx context.Context, required types.PaymentRequired) (string, *types.PaymentRequirements, error) {
	reqs, err := t.selectRequirement(required.Accepts)
	if err != nil {
		return "", nil, err
	}

	network := t.Networks[reqs.Network]
	reader := t.Readers[reqs.Network]

	// The ceiling comparison uses the requirement's own asset decimals,
	// never a caller assumption.
	meta, err := t.Metadata.Get(ctx, reader, reqs.Network, reqs.Asset)
	if err != nil {
		return "", nil, err
	}

	amount, err := types.AtomicToDecimal(reqs.MaxAmountRequired, meta.Decimals)
	if err != nil {
		return "", nil, err
	}
	if amount.GreaterThan(t.Ceiling) {
		t.rec().IncEvent(metrics.EventCeilingRejected, reqs.Network)
		return "", nil, &types.CeilingError{Requested: amount, Ceiling: t.Ceiling, Asset: reqs.Asset}
	}

	atomic, err := types.ParseAtomic(reqs.MaxAmountRequired)
	if err != nil {
		return "", nil, err
	}

	scheme := t.Schemes.Resolve(ctx, reader, reqs.Network, reqs.Asset, t.Signer.Address().Hex())

	var auth types.Authorization
	switch scheme {
	case types.SchemeNative:
		name, version := reqs.Extra[extraName], reqs.Extra[extraVersion]
		if name == "" {
			// Payee omitted the domain; fall back to the shared cache.
			name, version = meta.Name, meta.Version
		}
		auth, err = authz.BuildNative(ctx, t.Signer, authz.NativeParams{
			Network:      network,
			Token:        reqs.Asset,
			TokenName:    name,
			TokenVersion: version,
		}, reqs.PayTo, atomic)

	case types.SchemeProxied:
		proxy := reqs.Extra[extraProxy]
		if proxy == "" {
			proxy, err = t.lookupProxy(ctx, reqs.Network)
			if err != nil {
				return "", nil, err
			}
		}
		auth, err = authz.BuildProxied(ctx, t.Signer, authz.ProxiedParams{
			Network: network,
			Token:   reqs.Asset,
			Proxy:   proxy,
			Nonces:  &token.ProxyNonceSource{Reader: reader, Proxy: proxy},
		}, reqs.PayTo, atomic)
	}
	if err != nil {
		return "", nil, err
	}

	header, err := encoding.EncodeEnvelope(types.PaymentEnvelope{
		X402Version: types.X402Version,
		Scheme:      scheme.String(),
		Network:     reqs.Network,
		Payload:     auth,
	})
	if err != nil {
		return "", nil, err
	}
	return header, reqs, nil
}

// selectRequirement picks the first accepted requirement on a configured
// network, in the payee's declaration order. Both the descriptor and the
// reader must exist; a missing descriptor would sign with chain id 0.
func (t *Transport) selectRequirement(accepts []types.PaymentRequirements) (*types.PaymentRequirements, error) {
	for i := range accepts {
		if _, ok := t.Readers[accepts[i].Network]; !ok {
			continue
		}
		if _, ok := t.Networks[accepts[i].Network]; !ok {
			continue
		}
		return &accepts[i], nil
	}
	return nil, &types.X402Error{
		Code:    types.ErrConfiguration,
		Message: "no acceptable payment requirement targets a configured network",
	}
}

func (t *Transport) lookupProxy(ctx context.Context, network string) (string, error) {
	if t.Facilitator == nil {
		return "", &types.X402Error{
			Code:    types.ErrConfiguration,
			Message: "proxied payment needs a proxy contract address but no facilitator is configured",
		}
	}
	contracts, err := t.Facilitator.Contracts(ctx)
	if err != nil {
		return "", err
	}
	pc, ok := contracts[network]
	if !ok || pc.Address == "" {
		return "", &types.X402Error{
			Code:    types.ErrConfiguration,
			Message: "facilitator advertises no proxy contract for network " + network,
		}
	}
	return pc.Address, nil
}

// rewindBody re-arms the request body for the second attempt.
func rewindBody(orig, retry *http.Request) error {
	if orig.Body == nil || orig.Body == http.NoBody {
		return nil
	}
	if orig.GetBody == nil {
		// The first attempt consumed a non-replayable body; buffered
		// callers set GetBody (http.NewRequest does for common types).
		return &types.X402Error{
			Code:    types.ErrConfiguration,
			Message: "request body is not replayable for the payment retry",
		}
	}
	body, err := orig.GetBody()
	if err != nil {
		return err
	}
	retry.Body = body
	return nil
}

// Settlement extracts the decoded settlement result from a response served
// through a paid retry, or nil if the header is absent or unparsable.
func Settlement(resp *http.Response) *types.SettlementResult {
	header := resp.Header.Get(types.PaymentResponseHeader)
	if header == "" {
		return nil
	}
	res, err := encoding.DecodeSettlement(header)
	if err != nil {
		return nil
	}
	return &res
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) log() logger.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return logger.Noop{}
}

func (t *Transport) rec() metrics.Recorder {
	if t.Metrics != nil {
		return t.Metrics
	}
	return metrics.Noop{}
}
