package warehouse

import (
	"log"
	"time"
)

// Logger is the minimal logging interface used by the warehouse pipeline.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// logfOrDiscard returns a Printf-shaped logging function, falling back to a
// discarding logger when l is nil so callers never branch on nil.
func logfOrDiscard(l Logger) func(format string, v ...any) {
	if l == nil {
		dl := log.New(discardWriter{}, "", 0)
		return dl.Printf
	}
	return l.Printf
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }
