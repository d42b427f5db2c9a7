package relay

// Outcome is how a run ended.
type Outcome string

// Run outcomes.
const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeAborted   Outcome = "aborted"
)

// Observer receives run lifecycle notifications, for metrics.
type Observer interface {
	RunStarted()
	RunFinished(outcome Outcome)
	EventSent(t EventType)
	AbortRequested(found bool)
}

// NoopObserver discards all notifications.
type NoopObserver struct{}

func (NoopObserver) RunStarted() {}
func (NoopObserver) RunFinished(Outcome) {}
func (NoopObserver) EventSent(EventType) {}
func (NoopObserver) AbortRequested(bool) {}
