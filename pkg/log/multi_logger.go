package log

// MultiLogger fans events out to several loggers, typically a SlogAdapter
// and a FileLogger.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a MultiLogger. Nil loggers are skipped.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

// Log sends the event to every logger.
func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

// Len returns the number of attached loggers.
func (m *MultiLogger) Len() int {
	return len(m.loggers)
}

var _ Logger = (*MultiLogger)(nil)
