package broker

import "errors"

var (
	// ErrConnection means the transport could not be opened or verified
	ErrConnection = errors.New("broker connection unavailable")
	// ErrTimeout means a request exceeded its per-call bound
	ErrTimeout = errors.New("broker request timed out")
	// ErrRemote means the remote handler replied with an error payload
	ErrRemote = errors.New("remote handler error")
)
