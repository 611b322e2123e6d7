// Package logger defines the logging interface injected into every protocol
// component, with a zap-backed implementation for production use.
package logger

// Logger accepts a message and alternating key/value context, the
// SugaredLogger convention.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Noop discards everything. It is the default so that library users opt in
// to output explicitly.
type Noop struct{}

func (Noop) Debug(string, ...any) {}
func (Noop) Info(string, ...any)  {}
func (Noop) Warn(string, ...any)  {}
func (Noop) Error(string, ...any) {}
