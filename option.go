package x402

import (
	"time"

	"github.com/megalith-labs/x402-go/logger"
	"github.com/megalith-labs/x402-go/metrics"
)

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger injects a logger; the default discards everything.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics injects a metrics recorder; the default discards everything.
func WithMetrics(r metrics.Recorder) Option {
	return func(e *Engine) { e.rec = r }
}

// WithTimeout bounds facilitator verify/settle calls.
func WithTimeout(t time.Duration) Option {
	return func(e *Engine) {
		if t > 0 {
			e.timeout = t
		}
	}
}
