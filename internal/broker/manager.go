package broker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Guizzs26/go-meta-sync/pkg/infra"
	"github.com/Guizzs26/go-meta-sync/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMaxAttempts  = 5
	DefaultBaseDelay    = 2 * time.Second
	DefaultDelayFactor  = 1.5
	DefaultProbeTimeout = 5 * time.Second
	maxRetryDelay       = time.Minute
)

// Manager owns the connection lifecycle of one endpoint
type Manager struct {
	endpoint     Endpoint
	transport    Transport
	logger       *slog.Logger
	backoff      *infra.Backoff
	maxAttempts  int
	probeTimeout time.Duration
	sleep        func(ctx context.Context, d time.Duration) error

	group singleflight.Group

	mu    sync.Mutex
	state ConnectionState
}

type ManagerOption func(*Manager)

// WithRetryPolicy overrides MAX_ATTEMPTS and the base*factor^(n-1) delay curve
func WithRetryPolicy(maxAttempts int, baseDelay time.Duration, factor float64) ManagerOption {
	return func(m *Manager) {
		if maxAttempts > 0 {
			m.maxAttempts = maxAttempts
		}
		m.backoff = infra.NewBackoff(baseDelay, maxRetryDelay, factor).WithoutJitter()
	}
}

func WithProbeTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.probeTimeout = d
		}
	}
}

// WithSleep replaces the wait between attempts
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) ManagerOption {
	return func(m *Manager) {
		m.sleep = sleep
	}
}

func NewManager(endpoint Endpoint, transport Transport, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		endpoint:     endpoint,
		transport:    transport,
		logger:       logger.With("component", "connection_manager", "domain", endpoint.Domain),
		backoff:      infra.NewBackoff(DefaultBaseDelay, maxRetryDelay, DefaultDelayFactor).WithoutJitter(),
		maxAttempts:  DefaultMaxAttempts,
		probeTimeout: DefaultProbeTimeout,
		sleep:        sleepContext,
	}
	for _, opt := range opts {
		opt(m)
	}
	metrics.ConnectionState.WithLabelValues(endpoint.Domain).Set(float64(Disconnected))
	return m
}

func (m *Manager) Endpoint() Endpoint {
	return m.endpoint
}

func (m *Manager) Transport() Transport {
	return m.transport
}

// State returns a snapshot of the connection state
func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) apply(e Event) ConnectionState {
	m.mu.Lock()
	m.state = Transition(m.state, e)
	s := m.state
	m.mu.Unlock()

	metrics.ConnectionState.WithLabelValues(m.endpoint.Domain).Set(float64(s.Status))
	return s
}

// EnsureConnection brings the endpoint to Verified or gives up after maxAttempts.
// It never returns an error: the caller inspects the returned state. Concurrent callers
// share the attempt already in flight. The attempt is detached from the caller's
// cancellation; a caller whose ctx ends stops waiting and gets the current state
func (m *Manager) EnsureConnection(ctx context.Context) ConnectionState {
	if s := m.State(); s.Status == Verified || ctx.Err() != nil {
		return s
	}

	ch := m.group.DoChan(m.endpoint.Domain, func() (any, error) {
		// Another flight may have finished between the check above and this one
		if s := m.State(); s.Status == Verified {
			return s, nil
		}
		return m.connect(context.WithoutCancel(ctx)), nil
	})

	select {
	case r := <-ch:
		return r.Val.(ConnectionState)
	case <-ctx.Done():
		m.logger.Debug("Caller stopped waiting for connection attempt", "error", ctx.Err())
		return m.State()
	}
}

// Demote forces the next caller to reconnect
func (m *Manager) Demote(reason string) {
	s := m.apply(Event{Kind: EventDemoted, Err: reason})
	m.logger.Warn("Connection demoted, will reconnect on next use", "reason", reason, "status", s.Status.String())
}

func (m *Manager) connect(ctx context.Context) ConnectionState {
	for {
		s := m.apply(Event{Kind: EventAttempt})
		m.logger.Info("Connection attempt to meta service",
			"attempt", s.Attempts,
			"max_attempts", m.maxAttempts,
			"queue", m.endpoint.Queue,
		)

		err := m.openAndProbe(ctx)
		if err == nil {
			metrics.ConnectionAttempts.WithLabelValues(m.endpoint.Domain, "success").Inc()
			s = m.apply(Event{Kind: EventVerified})
			m.logger.Info("Connection verified")
			return s
		}

		metrics.ConnectionAttempts.WithLabelValues(m.endpoint.Domain, "failure").Inc()
		s = m.apply(Event{Kind: EventFailed, Err: err.Error()})
		m.logger.Error("Failed to establish connection to meta service", "attempt", s.Attempts, "error", err)

		if s.Attempts >= m.maxAttempts {
			m.logger.Error("Maximum connection attempts reached. Giving up", "max_attempts", m.maxAttempts)
			return m.apply(Event{Kind: EventExhausted})
		}

		delay := m.backoff.Delay(s.Attempts)
		m.logger.Info("Retrying connection", "retry_in", delay)
		if err := m.sleep(ctx, delay); err != nil {
			m.logger.Warn("Connection retry interrupted", "error", err)
			return m.apply(Event{Kind: EventExhausted})
		}
	}
}

func (m *Manager) openAndProbe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	if err := m.transport.Open(probeCtx); err != nil {
		return fmt.Errorf("open: %w", err)
	}

	reply, err := m.transport.Request(probeCtx, PingPattern, []byte("{}"))
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if !truthy(reply) {
		return fmt.Errorf("ping: empty reply %q", string(reply))
	}
	return nil
}

// truthy accepts any structured or non-falsy JSON reply
func truthy(reply []byte) bool {
	switch string(bytes.TrimSpace(reply)) {
	case "", "null", "false", "0", `""`:
		return false
	default:
		return true
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
