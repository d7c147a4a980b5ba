package integration

import (
	"context"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-meta-sync/internal/broker"
	"github.com/Guizzs26/go-meta-sync/internal/models"
)

// Timeouts are the per-operation RPC bounds of one client
type Timeouts struct {
	Bulk       time.Duration
	Lookup     time.Duration
	LookupCold time.Duration
	Cache      time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Bulk:       5 * time.Minute,
		Lookup:     20 * time.Second,
		LookupCold: 40 * time.Second,
		Cache:      10 * time.Second,
	}
}

// Client exposes the read operations of one meta domain. Every method returns a
// normalized envelope; transport failures collapse into a failed envelope
type Client[R any] struct {
	gateway    *broker.Gateway
	byDate     broker.Pattern[models.SyncDate, *models.Envelope[R]]
	list       broker.Pattern[models.PaginationParams, *models.Envelope[R]]
	byID       broker.Pattern[models.ByIDParams, *models.Envelope[R]]
	invalidate broker.Pattern[models.InvalidateParams, models.Ack]
	timeouts   Timeouts
	logger     *slog.Logger
}

func NewClient[R any](g *broker.Gateway, timeouts Timeouts, logger *slog.Logger) *Client[R] {
	ep := g.Manager().Endpoint()
	return &Client[R]{
		gateway:    g,
		byDate:     broker.NewPattern[models.SyncDate, *models.Envelope[R]](ep.Patterns.ByDate, timeouts.Bulk),
		list:       broker.NewPattern[models.PaginationParams, *models.Envelope[R]](ep.Patterns.List, timeouts.Bulk),
		byID:       broker.NewPattern[models.ByIDParams, *models.Envelope[R]](ep.Patterns.ByID, timeouts.Lookup),
		invalidate: broker.NewPattern[models.InvalidateParams, models.Ack](ep.Patterns.Invalidate, timeouts.Cache),
		timeouts:   timeouts,
		logger:     logger.With("component", "meta_client", "domain", ep.Domain),
	}
}

func (c *Client[R]) Domain() string {
	return c.gateway.Manager().Endpoint().Domain
}

// ByDate fetches every record changed on date (YYYY-MM-DD)
func (c *Client[R]) ByDate(ctx context.Context, date string) models.Envelope[R] {
	res := broker.Invoke(ctx, c.gateway, c.byDate, models.SyncDate(date))
	return c.envelope(c.byDate.Name, res)
}

// List fetches one page of records
func (c *Client[R]) List(ctx context.Context, params models.PaginationParams) models.Envelope[R] {
	res := broker.Invoke(ctx, c.gateway, c.list, params)
	return c.envelope(c.list.Name, res)
}

// ByID looks up a single record. Before the first verified connection the remote side may
// still be warming its own cache, so the cold timeout applies
func (c *Client[R]) ByID(ctx context.Context, id int64) models.Envelope[R] {
	res := broker.InvokeWithTimeout(ctx, c.gateway, c.byID, models.ByIDParams{ID: id}, c.lookupTimeout())
	return c.envelope(c.byID.Name, res)
}

// InvalidateCache asks the remote side to drop its cached copy of one record, or all when id is nil
func (c *Client[R]) InvalidateCache(ctx context.Context, id *int64) models.Ack {
	res := broker.Invoke(ctx, c.gateway, c.invalidate, models.InvalidateParams{ID: id})
	if !res.OK() {
		c.logger.Error("Cache invalidation failed", "pattern", c.invalidate.Name, "kind", res.Kind.String(), "reason", res.Reason)
		return models.Ack{Status: false, Message: res.Reason}
	}
	return res.Value.Normalize()
}

func (c *Client[R]) lookupTimeout() time.Duration {
	if c.gateway.Manager().State().Status == broker.Verified {
		return c.byID.Timeout
	}
	return c.timeouts.LookupCold
}

func (c *Client[R]) envelope(pattern string, res broker.Result[*models.Envelope[R]]) models.Envelope[R] {
	if !res.OK() {
		c.logger.Error("Meta request failed", "pattern", pattern, "kind", res.Kind.String(), "reason", res.Reason)
		return models.FailedEnvelope[R](res.Reason)
	}
	if res.Value == nil {
		return models.Envelope[R]{}.Normalize()
	}
	return res.Value.Normalize()
}
