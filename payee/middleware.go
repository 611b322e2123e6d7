package payee

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/megalith-labs/x402-go/encoding"
	"github.com/megalith-labs/x402-go/facilitator"
	"github.com/megalith-labs/x402-go/logger"
	"github.com/megalith-labs/x402-go/metrics"
	"github.com/megalith-labs/x402-go/types"
)

// Verdict is the outcome of evaluating one inbound request.
type Verdict int

const (
	// VerdictPass means the path matched no priced route; the request
	// proceeds untouched.
	VerdictPass Verdict = iota

	// VerdictProceed means payment settled; the handler runs with the
	// settlement header attached.
	VerdictProceed

	// VerdictReject means the engine produced a terminal HTTP response.
	VerdictReject
)

// Decision is the framework-independent result of the payee state machine:
// either pass/proceed, or a status plus body to write. Framework shims only
// translate it, they never decide.
type Decision struct {
	Verdict Verdict

	// Status and Body are set when Verdict is VerdictReject.
	Status int
	Body   *types.PaymentRequired

	// Message replaces Body for 400-class protocol errors.
	Message string

	// SettlementHeader is the encoded X-PAYMENT-RESPONSE value when
	// Verdict is VerdictProceed.
	SettlementHeader string
}

// Handler drives the payee state machine per inbound request: route check,
// header check, decode, settle.
type Handler struct {
	Routes      RouteTable
	Engine      *RequirementEngine
	Facilitator facilitator.Interface

	// VerifyOnly calls /verify instead of /settle, gating access without
	// moving funds.
	VerifyOnly bool

	Logger  logger.Logger
	Metrics metrics.Recorder
}

// Evaluate runs the state machine for one request. It never writes to a
// network; translating the Decision into a response is the shim's job.
func (h *Handler) Evaluate(ctx context.Context, path, paymentHeader string) Decision {
	cfg, matched := h.Routes.Match(path)
	if !matched {
		return Decision{Verdict: VerdictPass}
	}

	// HeaderCheck: absent payment yields exactly one 402 with the
	// requirements; a requirements-build failure is the server's fault.
	if paymentHeader == "" {
		reqs, err := h.Engine.Build(ctx, *cfg, path)
		if err != nil {
			h.log().Error("failed to build payment requirements", "path", path, "error", err.Error())
			return Decision{Verdict: VerdictReject, Status: http.StatusInternalServerError, Message: "payment configuration error"}
		}
		h.rec().IncEvent(metrics.EventPaymentRequired, cfg.Network)
		return Decision{
			Verdict: VerdictReject,
			Status:  http.StatusPaymentRequired,
			Body: &types.PaymentRequired{
				X402Version: types.X402Version,
				Accepts:     []types.PaymentRequirements{*reqs},
			},
		}
	}

	// Decode: a malformed header is a client protocol error, not "payment
	// needed" — it gets a 400, never a 402 or 500.
	env, err := encoding.DecodeEnvelope(paymentHeader)
	if err != nil {
		h.log().Warn("rejected malformed payment header", "path", path, "error", err.Error())
		h.rec().IncEvent(metrics.EventDecodeRejected, cfg.Network)
		return Decision{Verdict: VerdictReject, Status: http.StatusBadRequest, Message: err.Error()}
	}

	reqs, err := h.Engine.Build(ctx, *cfg, path)
	if err != nil {
		h.log().Error("failed to build payment requirements", "path", path, "error", err.Error())
		return Decision{Verdict: VerdictReject, Status: http.StatusInternalServerError, Message: "payment configuration error"}
	}

	result, err := h.settle(ctx, env, *reqs)
	if err != nil {
		return h.settlementFailure(cfg.Network, *reqs, err)
	}
	if !result.Success {
		reason := result.Error
		if reason == "" {
			reason = "settlement failed"
		}
		return h.settlementFailure(cfg.Network, *reqs, &types.X402Error{
			Code:    types.ErrSettlementRejected,
			Message: reason,
		})
	}

	header, err := encoding.EncodeSettlement(*result)
	if err != nil {
		h.log().Error("failed to encode settlement result", "error", err.Error())
		return Decision{Verdict: VerdictReject, Status: http.StatusInternalServerError, Message: "settlement encoding error"}
	}

	h.log().Info("payment settled", "path", path, "network", env.Network, "tx", result.TxHash)
	h.rec().IncEvent(metrics.EventPaymentSettled, env.Network)
	return Decision{Verdict: VerdictProceed, SettlementHeader: header}
}

func (h *Handler) settle(ctx context.Context, env types.PaymentEnvelope, reqs types.PaymentRequirements) (*types.SettlementResult, error) {
	if h.VerifyOnly {
		vr, err := h.Facilitator.Verify(ctx, env, reqs)
		if err != nil {
			return nil, err
		}
		if !vr.IsValid {
			return &types.SettlementResult{Success: false, Error: vr.InvalidReason}, nil
		}
		return &types.SettlementResult{Success: true, Network: env.Network}, nil
	}
	return h.Facilitator.Settle(ctx, env, reqs)
}

// settlementFailure maps a settle error to the outbound response: a
// structured rejection becomes a fresh 402 annotated with the reason, so
// the payer can rebuild a corrected authorization through the same flow; a
// facilitator transport failure is not the payer's fault and maps to 502.
func (h *Handler) settlementFailure(network string, reqs types.PaymentRequirements, err error) Decision {
	h.rec().IncEvent(metrics.EventSettlementFailed, network)

	switch types.CodeOf(err) {
	case types.ErrTransport, types.ErrTimedOut:
		h.log().Error("facilitator unavailable", "network", network, "error", err.Error())
		return Decision{Verdict: VerdictReject, Status: http.StatusBadGateway, Message: "payment facilitator unavailable"}
	}

	h.log().Warn("settlement rejected", "network", network, "reason", err.Error())
	return Decision{
		Verdict: VerdictReject,
		Status:  http.StatusPaymentRequired,
		Body: &types.PaymentRequired{
			X402Version: types.X402Version,
			Accepts:     []types.PaymentRequirements{reqs},
			Error:       reasonOf(err),
		},
	}
}

// reasonOf extracts the short wire-safe message from an error. Wrapped
// transport details never leak; only the X402Error message crosses the wire.
func reasonOf(err error) string {
	var xe *types.X402Error
	if errors.As(err, &xe) {
		return xe.Message
	}
	return "settlement failed"
}

// Middleware wraps a net/http handler with the payee state machine.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := h.Evaluate(r.Context(), r.URL.Path, r.Header.Get(types.PaymentHeader))
		switch d.Verdict {
		case VerdictPass:
			next.ServeHTTP(w, r)
		case VerdictProceed:
			w.Header().Set(types.PaymentResponseHeader, d.SettlementHeader)
			next.ServeHTTP(w, r)
		case VerdictReject:
			WriteDecision(w, d)
		}
	})
}

// WriteDecision renders a rejecting Decision onto a ResponseWriter.
func WriteDecision(w http.ResponseWriter, d Decision) {
	if d.Body != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(d.Status)
		_ = json.NewEncoder(w).Encode(d.Body)
		return
	}
	http.Error(w, d.Message, d.Status)
}

func (h *Handler) log() logger.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return logger.Noop{}
}

func (h *Handler) rec() metrics.Recorder {
	if h.Metrics != nil {
		return h.Metrics
	}
	return metrics.Noop{}
}
