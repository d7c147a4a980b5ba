package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Guizzs26/go-meta-sync/pkg/encoding"
	"github.com/google/uuid"

	amqp "github.com/rabbitmq/amqp091-go"
)

// directReplyTo is RabbitMQ's pseudo-queue for RPC replies without declaring a queue
const directReplyTo = "amq.rabbitmq.reply-to"

const (
	heartbeatInterval  = 5 * time.Second
	defaultDialTimeout = 10 * time.Second
)

// wireRequest mirrors the NestJS RMQ client framing used by the meta system
type wireRequest struct {
	Pattern string          `json:"pattern"`
	Data    json.RawMessage `json:"data"`
	ID      string          `json:"id"`
}

type wireReply struct {
	Err        json.RawMessage `json:"err"`
	Response   json.RawMessage `json:"response"`
	IsDisposed bool            `json:"isDisposed"`
}

// RabbitMQTransport is a request/reply client bound to a single remote queue
type RabbitMQTransport struct {
	url    string
	queue  string
	logger *slog.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	cancel  context.CancelFunc
	healthy atomic.Bool

	generation atomic.Uint64
	pendingMu  sync.Mutex
	pending    map[string]waiter
	// swept is the newest generation whose waiters were failed; guarded by pendingMu
	swept uint64
}

type waiter struct {
	replies    chan wireReply
	generation uint64
}

func NewRabbitMQTransport(url, queue string, l *slog.Logger) *RabbitMQTransport {
	return &RabbitMQTransport{
		url:     url,
		queue:   queue,
		logger:  l.With("queue", queue),
		pending: make(map[string]waiter),
	}
}

// Open dials the broker, declares the target queue and starts the direct reply-to consumer.
// A healthy transport is left untouched
func (r *RabbitMQTransport) Open(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.healthy.Load() {
		return nil
	}
	r.closeLocked()

	dialTimeout := defaultDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		dialTimeout = time.Until(deadline)
	}

	c, err := amqp.DialConfig(r.url, amqp.Config{
		Heartbeat: heartbeatInterval,
		Locale:    "en_US",
		Dial: func(network, addr string) (net.Conn, error) {
			return net.DialTimeout(network, addr, dialTimeout)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %v", err)
	}

	ch, err := c.Channel()
	if err != nil {
		c.Close()
		return fmt.Errorf("failed to open RabbitMQ channel: %v", err)
	}

	// The meta handlers consume from a non-durable queue; declaring it here keeps a fresh
	// broker usable before the remote side boots
	if _, err := ch.QueueDeclare(r.queue, false, false, false, false, nil); err != nil {
		ch.Close()
		c.Close()
		return fmt.Errorf("failed to declare queue %s: %v", r.queue, err)
	}

	deliveries, err := ch.Consume(directReplyTo, "", true, false, false, false, nil)
	if err != nil {
		ch.Close()
		c.Close()
		return fmt.Errorf("failed to consume direct reply-to: %v", err)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	gen := r.generation.Add(1)
	r.conn = c
	r.channel = ch
	r.cancel = cancel
	r.healthy.Store(true)

	connClosed := c.NotifyClose(make(chan *amqp.Error, 1))
	chanClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	go func() {
		select {
		case err := <-connClosed:
			if watchCtx.Err() != nil {
				return
			}
			r.healthy.Store(false)
			r.logger.Warn("RabbitMQ connection closed", "error", err)
		case err := <-chanClosed:
			if watchCtx.Err() != nil {
				return
			}
			r.healthy.Store(false)
			r.logger.Warn("RabbitMQ channel closed", "error", err)
		case <-watchCtx.Done():
			return
		}
	}()

	go r.dispatch(deliveries, gen)

	r.logger.Info("RabbitMQ RPC link established")
	return nil
}

// dispatch routes replies to their waiting callers by correlation id
func (r *RabbitMQTransport) dispatch(deliveries <-chan amqp.Delivery, gen uint64) {
	for d := range deliveries {
		body := encoding.NormalizeBody(d.ContentEncoding, d.Body)

		var reply wireReply
		if err := json.Unmarshal(body, &reply); err != nil {
			r.logger.Error("Dropping malformed reply", "correlation_id", d.CorrelationId, "error", err)
			continue
		}

		r.pendingMu.Lock()
		w, ok := r.pending[d.CorrelationId]
		if ok {
			select {
			case w.replies <- reply:
			default:
			}
		}
		r.pendingMu.Unlock()

		if !ok {
			r.logger.Debug("Reply for unknown or expired request", "correlation_id", d.CorrelationId)
		}
	}

	// Channel gone: in-flight requests of this link fail now instead of waiting for their timeout
	if r.generation.Load() == gen {
		r.healthy.Store(false)
	}
	r.pendingMu.Lock()
	r.swept = max(r.swept, gen)
	for id, w := range r.pending {
		if w.generation != gen {
			continue
		}
		close(w.replies)
		delete(r.pending, id)
	}
	r.pendingMu.Unlock()
}

// Request publishes one framed message and waits for the correlated reply
func (r *RabbitMQTransport) Request(ctx context.Context, pattern string, payload []byte) ([]byte, error) {
	if !r.IsHealthy() {
		return nil, fmt.Errorf("%w: link is closed", ErrConnection)
	}

	id := uuid.NewString()
	if len(payload) == 0 {
		payload = []byte("null")
	}
	body, err := json.Marshal(wireRequest{Pattern: pattern, Data: payload, ID: id})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize request: %v", err)
	}

	r.mu.Lock()
	ch := r.channel
	gen := r.generation.Load()
	r.mu.Unlock()
	if ch == nil {
		return nil, fmt.Errorf("%w: no channel", ErrConnection)
	}

	replies, err := r.register(id, gen)
	if err != nil {
		return nil, err
	}
	defer r.unregister(id)

	l := r.logger.With("correlation_id", id, "pattern", pattern)

	err = ch.PublishWithContext(
		ctx,
		"",
		r.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Transient,
			CorrelationId: id,
			ReplyTo:       directReplyTo,
			Body:          body,
		},
	)
	if err != nil {
		l.Error("failed to publish request", "error", err)
		return nil, fmt.Errorf("%w: publish call failed: %v", ErrConnection, err)
	}

	return awaitReply(ctx, replies)
}

// register adds a waiter for id. A link whose replies were already swept accepts no new waiters
func (r *RabbitMQTransport) register(id string, gen uint64) (chan wireReply, error) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()

	if gen <= r.swept {
		return nil, fmt.Errorf("%w: link closed before the request was sent", ErrConnection)
	}
	replies := make(chan wireReply, 2)
	r.pending[id] = waiter{replies: replies, generation: gen}
	return replies, nil
}

func (r *RabbitMQTransport) unregister(id string) {
	r.pendingMu.Lock()
	delete(r.pending, id)
	r.pendingMu.Unlock()
}

// awaitReply waits for the first reply carrying a response or an error. A bare
// isDisposed message ends a stream that produced no value
func awaitReply(ctx context.Context, replies <-chan wireReply) ([]byte, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case reply, ok := <-replies:
			if !ok {
				return nil, fmt.Errorf("%w: link closed while waiting for reply", ErrConnection)
			}
			if len(reply.Err) > 0 && string(reply.Err) != "null" {
				return nil, fmt.Errorf("%w: %s", ErrRemote, string(reply.Err))
			}
			if len(reply.Response) > 0 {
				return reply.Response, nil
			}
			if reply.IsDisposed {
				return []byte("null"), nil
			}
		}
	}
}

// Close gracefully shuts down the RabbitMQ resources
func (r *RabbitMQTransport) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
	return nil
}

func (r *RabbitMQTransport) closeLocked() {
	r.healthy.Store(false)
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	if r.channel != nil {
		r.channel.Close()
		r.channel = nil
	}
	if r.conn != nil {
		r.logger.Info("Terminating RabbitMQ link")
		r.conn.Close()
		r.conn = nil
	}
}

// IsHealthy returns true if the connection and channel are active
func (r *RabbitMQTransport) IsHealthy() bool {
	return r.healthy.Load()
}
