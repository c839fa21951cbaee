package bedjet

// Observer receives core lifecycle events. The metrics package implements
// it; everything else uses the no-op.
type Observer interface {
	// SessionStarted is called when the supervisor begins a connection
	// attempt.
	SessionStarted()
	// SessionReady is called when a session finishes subscribing.
	SessionReady()
	// SessionFailed is called when a session ends with an error.
	SessionFailed(err error)
	// NotificationDecoded is called for every accepted status frame.
	NotificationDecoded()
	// DecodeError is called for every dropped frame.
	DecodeError(err error)
	// CommandCompleted is called when a drained command resolves.
	CommandCompleted(o Outcome)
}

// NopObserver ignores all events.
type NopObserver struct{}

func (NopObserver) SessionStarted()          {}
func (NopObserver) SessionReady()            {}
func (NopObserver) SessionFailed(error)      {}
func (NopObserver) NotificationDecoded()     {}
func (NopObserver) DecodeError(error)        {}
func (NopObserver) CommandCompleted(Outcome) {}

var _ Observer = NopObserver{}
