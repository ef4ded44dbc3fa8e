// Package logging defines the structured logger used across the module and
// adapters for log/slog, logrus and testing.T.
package logging

// Logger is a structured, leveled logger taking alternating key-value pairs.
// Implementations must be safe for concurrent use.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Nop discards everything.
type Nop struct{}

var _ Logger = Nop{}

// NewNop returns a logger that discards all messages.
func NewNop() Nop { return Nop{} }

func (Nop) Debug(string, ...any) {}
func (Nop) Info(string, ...any)  {}
func (Nop) Warn(string, ...any)  {}
func (Nop) Error(string, ...any) {}
