package broker

import "context"

// Transport is a request/reply channel to one remote queue
type Transport interface {
	// Open establishes the underlying link. It must be a no-op when the link is healthy
	Open(ctx context.Context) error
	// Request publishes payload under pattern and blocks until the correlated reply or ctx ends
	Request(ctx context.Context, pattern string, payload []byte) ([]byte, error)
	Close() error
}
