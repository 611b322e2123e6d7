// Package metrics defines the event recorder injected into the payer and
// payee engines, with noop and Prometheus implementations.
package metrics

import "time"

// Event counter names recorded by the engine.
const (
	EventPaymentRequired  = "payment_required"
	EventPaymentRetried   = "payment_retried"
	EventPaymentSettled   = "payment_settled"
	EventSettlementFailed = "settlement_failed"
	EventDecodeRejected   = "decode_rejected"
	EventCeilingRejected  = "ceiling_rejected"
)

// Operation names observed for latency.
const (
	OpVerify = "verify"
	OpSettle = "settle"
	OpProbe  = "probe"
)

type Recorder interface {
	IncEvent(event, network string)
	ObserveLatency(operation, network string, d time.Duration)
}

type Noop struct{}

func (Noop) IncEvent(string, string)                      {}
func (Noop) ObserveLatency(string, string, time.Duration) {}
