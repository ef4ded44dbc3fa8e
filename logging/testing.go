package logging

import (
	"fmt"
	"strings"
	"testing"
)

// TestLogger writes to testing.TB so messages show up next to the failing test.
type TestLogger struct {
	tb testing.TB
}

var _ Logger = (*TestLogger)(nil)

// NewTest returns a logger writing through tb.Logf.
func NewTest(tb testing.TB) *TestLogger {
	return &TestLogger{tb: tb}
}

func (l *TestLogger) Debug(msg string, keysAndValues ...any) { l.log("DEBUG", msg, keysAndValues) }
func (l *TestLogger) Info(msg string, keysAndValues ...any)  { l.log("INFO", msg, keysAndValues) }
func (l *TestLogger) Warn(msg string, keysAndValues ...any)  { l.log("WARN", msg, keysAndValues) }
func (l *TestLogger) Error(msg string, keysAndValues ...any) { l.log("ERROR", msg, keysAndValues) }

func (l *TestLogger) log(level, msg string, keysAndValues []any) {
	l.tb.Helper()
	var b strings.Builder
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 < len(keysAndValues) {
			fmt.Fprintf(&b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
		} else {
			fmt.Fprintf(&b, " %v=<missing>", keysAndValues[i])
		}
	}
	l.tb.Logf("%s: %s%s", level, msg, b.String())
}
