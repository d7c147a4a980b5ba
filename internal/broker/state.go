package broker

// Status is the lifecycle position of an endpoint connection
type Status int32

const (
	Disconnected Status = iota
	Connecting
	Verified
)

func (s Status) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Verified:
		return "verified"
	default:
		return "disconnected"
	}
}

// ConnectionState is owned by exactly one Manager and only changes through Transition
type ConnectionState struct {
	Status    Status
	Attempts  int
	LastError string
}

type EventKind int

const (
	// EventAttempt starts a new open+probe attempt
	EventAttempt EventKind = iota
	// EventVerified means the probe answered
	EventVerified
	// EventFailed means the open or the probe failed; attempts are kept for the backoff
	EventFailed
	// EventExhausted ends a retry cycle; the next caller starts from zero
	EventExhausted
	// EventDemoted is raised by the gateway after a timeout or transport error
	EventDemoted
)

type Event struct {
	Kind EventKind
	Err  string
}

// Transition is the only way a ConnectionState changes
func Transition(s ConnectionState, e Event) ConnectionState {
	switch e.Kind {
	case EventAttempt:
		s.Status = Connecting
		s.Attempts++
	case EventVerified:
		s.Status = Verified
		s.Attempts = 0
		s.LastError = ""
	case EventFailed:
		s.Status = Disconnected
		s.LastError = e.Err
	case EventExhausted:
		s.Status = Disconnected
		s.Attempts = 0
	case EventDemoted:
		s.Status = Disconnected
		if e.Err != "" {
			s.LastError = e.Err
		}
	}
	return s
}
