package broker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// fakeTransport answers ping with "pong" and delegates everything else to handle
type fakeTransport struct {
	openErr  error
	openHook func(ctx context.Context) error
	handle   func(ctx context.Context, pattern string, payload []byte) ([]byte, error)

	opens    atomic.Int32
	requests atomic.Int32

	mu       sync.Mutex
	patterns []string
}

func (f *fakeTransport) Open(ctx context.Context) error {
	f.opens.Add(1)
	if f.openHook != nil {
		return f.openHook(ctx)
	}
	return f.openErr
}

func (f *fakeTransport) Request(ctx context.Context, pattern string, payload []byte) ([]byte, error) {
	f.requests.Add(1)
	f.mu.Lock()
	f.patterns = append(f.patterns, pattern)
	f.mu.Unlock()

	if pattern == PingPattern {
		return []byte(`"pong"`), nil
	}
	if f.handle == nil {
		return nil, errors.New("no handler")
	}
	return f.handle(ctx, pattern, payload)
}

func (f *fakeTransport) Close() error { return nil }

func noSleep(context.Context, time.Duration) error { return nil }
