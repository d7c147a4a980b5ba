package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-meta-sync/pkg/metrics"
)

// Gateway performs bounded request/reply exchanges against one endpoint
type Gateway struct {
	manager *Manager
	logger  *slog.Logger
}

func NewGateway(m *Manager, logger *slog.Logger) *Gateway {
	return &Gateway{
		manager: m,
		logger:  logger.With("component", "rpc_gateway", "domain", m.Endpoint().Domain),
	}
}

func (g *Gateway) Manager() *Manager {
	return g.manager
}

// Call sends payload under pattern and waits at most timeout for the reply.
// It never returns an error: every failure is folded into the Result
func (g *Gateway) Call(ctx context.Context, pattern string, payload any, timeout time.Duration) Result[json.RawMessage] {
	start := time.Now()
	res := g.call(ctx, pattern, payload, timeout)
	metrics.RPCDuration.WithLabelValues(g.manager.Endpoint().Domain, pattern, res.Kind.String()).
		Observe(time.Since(start).Seconds())
	return res
}

func (g *Gateway) call(ctx context.Context, pattern string, payload any, timeout time.Duration) Result[json.RawMessage] {
	if timeout <= 0 {
		return TransportError[json.RawMessage](fmt.Sprintf("invalid timeout %s for pattern %s", timeout, pattern))
	}

	state := g.manager.EnsureConnection(ctx)
	if state.Status != Verified {
		reason := "meta service unavailable"
		if state.LastError != "" {
			reason = fmt.Sprintf("meta service unavailable: %s", state.LastError)
		}
		return TransportError[json.RawMessage](reason)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return TransportError[json.RawMessage](fmt.Sprintf("failed to serialize payload: %v", err))
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type reply struct {
		body []byte
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		b, err := g.manager.Transport().Request(reqCtx, pattern, body)
		done <- reply{body: b, err: err}
	}()

	l := g.logger.With("pattern", pattern)

	select {
	case r := <-done:
		if r.err == nil {
			return Ok(json.RawMessage(r.body))
		}
		if errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return g.timedOut(l, pattern, timeout)
		}
		if ctx.Err() != nil {
			return TransportError[json.RawMessage](fmt.Sprintf("request cancelled: %v", ctx.Err()))
		}
		if errors.Is(r.err, ErrRemote) {
			// The link worked; the handler refused the request
			l.Warn("Meta service returned an error", "error", r.err)
			return TransportError[json.RawMessage](r.err.Error())
		}
		l.Error("Transport error during request", "error", r.err)
		g.manager.Demote(r.err.Error())
		return TransportError[json.RawMessage](r.err.Error())

	case <-reqCtx.Done():
		if ctx.Err() != nil {
			return TransportError[json.RawMessage](fmt.Sprintf("request cancelled: %v", ctx.Err()))
		}
		return g.timedOut(l, pattern, timeout)
	}
}

func (g *Gateway) timedOut(l *slog.Logger, pattern string, timeout time.Duration) Result[json.RawMessage] {
	reason := fmt.Sprintf("Request timed out after %dms: %s", timeout.Milliseconds(), pattern)
	l.Error("Request timed out, demoting connection", "timeout", timeout)
	g.manager.Demote(reason)
	return TimedOut[json.RawMessage](reason)
}

// CallTyped decodes an OK reply into T. A reply that does not fit T is a transport error
func CallTyped[T any](ctx context.Context, g *Gateway, pattern string, payload any, timeout time.Duration) Result[T] {
	raw := g.Call(ctx, pattern, payload, timeout)
	if !raw.OK() {
		return mapResult[json.RawMessage, T](raw)
	}

	var v T
	if err := json.Unmarshal(raw.Value, &v); err != nil {
		return TransportError[T](fmt.Sprintf("failed to decode reply for %s: %v", pattern, err))
	}
	return Ok(v)
}

// Validator is implemented by request payloads that can be checked before sending
type Validator interface {
	Validate() error
}

// Pattern is a named request/response pair
type Pattern[Req, Resp any] struct {
	Name    string
	Timeout time.Duration
}

func NewPattern[Req, Resp any](name string, timeout time.Duration) Pattern[Req, Resp] {
	return Pattern[Req, Resp]{Name: name, Timeout: timeout}
}

// Invoke validates req when possible and calls the pattern with its own timeout
func Invoke[Req, Resp any](ctx context.Context, g *Gateway, p Pattern[Req, Resp], req Req) Result[Resp] {
	return InvokeWithTimeout(ctx, g, p, req, p.Timeout)
}

// InvokeWithTimeout overrides the pattern's timeout for one call
func InvokeWithTimeout[Req, Resp any](ctx context.Context, g *Gateway, p Pattern[Req, Resp], req Req, timeout time.Duration) Result[Resp] {
	if v, ok := any(req).(Validator); ok {
		if err := v.Validate(); err != nil {
			return TransportError[Resp](fmt.Sprintf("invalid %s request: %v", p.Name, err))
		}
	}
	return CallTyped[Resp](ctx, g, p.Name, req, timeout)
}
