// Package facilitator is the HTTP client for the third-party settlement
// service: POST /verify and /settle, GET /supported and /contracts, with
// bounded timeouts and a typed translation of transport, timeout and
// application failures.
package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/megalith-labs/x402-go/logger"
	"github.com/megalith-labs/x402-go/metrics"
	"github.com/megalith-labs/x402-go/types"
)

// DefaultTimeout bounds a verify or settle call when the caller's context
// carries no deadline.
const DefaultTimeout = 30 * time.Second

// Interface is the surface the payee middleware depends on; tests stub it.
type Interface interface {
	Verify(ctx context.Context, env types.PaymentEnvelope, reqs types.PaymentRequirements) (*types.VerifyResponse, error)
	Settle(ctx context.Context, env types.PaymentEnvelope, reqs types.PaymentRequirements) (*types.SettlementResult, error)
}

// Client talks to one facilitator. Both Verify and Settle look idempotent
// from here, but the facilitator may have consumed the envelope's nonce on
// a failed attempt; retrying /settle with an unmodified envelope is wrong,
// the caller must rebuild a fresh authorization instead.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     logger.Logger
	Metrics    metrics.Recorder
}

var _ Interface = (*Client)(nil)

// NewClient builds a client with default timeout, noop logger and metrics.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
		Timeout:    DefaultTimeout,
		Logger:     logger.Noop{},
		Metrics:    metrics.Noop{},
	}
}

// Verify asks the facilitator to validate an envelope without settling it.
func (c *Client) Verify(ctx context.Context, env types.PaymentEnvelope, reqs types.PaymentRequirements) (*types.VerifyResponse, error) {
	started := time.Now()
	defer func() {
		c.metrics().ObserveLatency(metrics.OpVerify, env.Network, time.Since(started))
	}()

	var out types.VerifyResponse
	if err := c.post(ctx, "/verify", env, reqs, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Settle asks the facilitator to broadcast the settlement transaction.
func (c *Client) Settle(ctx context.Context, env types.PaymentEnvelope, reqs types.PaymentRequirements) (*types.SettlementResult, error) {
	started := time.Now()
	defer func() {
		c.metrics().ObserveLatency(metrics.OpSettle, env.Network, time.Since(started))
	}()

	var out types.SettlementResult
	if err := c.post(ctx, "/settle", env, reqs, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Supported lists the (scheme, network) tuples the facilitator can settle.
func (c *Client) Supported(ctx context.Context) (*types.SupportedResponse, error) {
	var out types.SupportedResponse
	if err := c.get(ctx, "/supported", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Contracts returns the per-network proxy settlement contract addresses.
// The payer uses this to discover the verifying contract for proxied-scheme
// domains when the requirements extra data omits it.
func (c *Client) Contracts(ctx context.Context) (types.ContractsResponse, error) {
	var out types.ContractsResponse
	if err := c.get(ctx, "/contracts", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, env types.PaymentEnvelope, reqs types.PaymentRequirements, out any) error {
	body, err := json.Marshal(types.FacilitatorRequest{
		X402Version:         types.X402Version,
		PaymentPayload:      env,
		PaymentRequirements: reqs,
	})
	if err != nil {
		return fmt.Errorf("marshal facilitator request: %w", err)
	}

	ctx, cancel := c.bound(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build facilitator request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return c.translate(ctx, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return rejectionError(path, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &types.X402Error{
			Code:    types.ErrProtocolViolation,
			Message: "facilitator returned an unparsable " + path + " response",
			Err:     err,
		}
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build facilitator request: %w", err)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return c.translate(ctx, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &types.X402Error{
			Code:    types.ErrTransport,
			Message: fmt.Sprintf("facilitator %s returned status %d", path, resp.StatusCode),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &types.X402Error{
			Code:    types.ErrProtocolViolation,
			Message: "facilitator returned an unparsable " + path + " response",
			Err:     err,
		}
	}
	return nil
}

// bound applies the client timeout unless the caller already set a
// deadline. Cancelling the returned context tears down the in-flight
// connection rather than leaking it.
func (c *Client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// translate classifies a connection-level failure as TimedOut or Transport.
func (c *Client) translate(ctx context.Context, path string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return &types.X402Error{
			Code:    types.ErrTimedOut,
			Message: "facilitator " + path + " timed out",
			Err:     err,
		}
	}
	return &types.X402Error{
		Code:    types.ErrTransport,
		Message: "facilitator " + path + " unreachable",
		Err:     err,
	}
}

// rejectionError extracts a structured failure reason from a non-2xx
// response. The reason is the only part safe to echo into a 402 body.
func rejectionError(path string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	reason := fmt.Sprintf("facilitator %s returned status %d", path, resp.StatusCode)
	var structured struct {
		Error         string `json:"error"`
		InvalidReason string `json:"invalidReason"`
	}
	if err := json.Unmarshal(body, &structured); err == nil {
		switch {
		case structured.Error != "":
			reason = structured.Error
		case structured.InvalidReason != "":
			reason = structured.InvalidReason
		}
	}

	return &types.X402Error{Code: types.ErrSettlementRejected, Message: reason}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) metrics() metrics.Recorder {
	if c.Metrics != nil {
		return c.Metrics
	}
	return metrics.Noop{}
}
