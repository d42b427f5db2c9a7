package relay

// Sink receives events for one run, in output order. Send is called from the
// run's goroutine; its error is logged and never stops the run.
type Sink interface {
	Send(ev Event) error
}

// SessionBinder is implemented by sinks that want to learn the real session
// ID as soon as the CLI reports it.
type SessionBinder interface {
	SetSessionID(id string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event) error

// Send implements Sink.
func (f SinkFunc) Send(ev Event) error {
	return f(ev)
}
