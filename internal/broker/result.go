package broker

import "fmt"

// Kind tags a Result
type Kind int

const (
	KindOK Kind = iota
	KindTimedOut
	KindTransportError
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindTimedOut:
		return "timeout"
	default:
		return "transport_error"
	}
}

// Result is the outcome of one RPC. Value is only meaningful when Kind is KindOK
type Result[T any] struct {
	Kind   Kind
	Value  T
	Reason string
}

func Ok[T any](v T) Result[T] {
	return Result[T]{Kind: KindOK, Value: v}
}

func TimedOut[T any](reason string) Result[T] {
	return Result[T]{Kind: KindTimedOut, Reason: reason}
}

func TransportError[T any](reason string) Result[T] {
	return Result[T]{Kind: KindTransportError, Reason: reason}
}

func (r Result[T]) OK() bool {
	return r.Kind == KindOK
}

// Err maps the failure tags onto the package sentinels
func (r Result[T]) Err() error {
	switch r.Kind {
	case KindOK:
		return nil
	case KindTimedOut:
		return fmt.Errorf("%w: %s", ErrTimeout, r.Reason)
	default:
		return fmt.Errorf("%w: %s", ErrConnection, r.Reason)
	}
}

// mapResult carries a failure across types
func mapResult[T, U any](r Result[T]) Result[U] {
	return Result[U]{Kind: r.Kind, Reason: r.Reason}
}
