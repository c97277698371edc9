package log

import "time"

// Logger receives protocol events. Implementations must be safe for
// concurrent use and should not block: events are emitted from the
// transport read loop and the dispatch workers.
type Logger interface {
	Log(event Event)
}

// NoopLogger discards all events. Usable as a zero value.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// Emit logs event through l, stamping the timestamp if unset. A nil logger
// is allowed.
func Emit(l Logger, event Event) {
	if l == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	l.Log(event)
}

var _ Logger = NoopLogger{}
