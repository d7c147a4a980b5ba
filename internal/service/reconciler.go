package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Guizzs26/go-meta-sync/internal/models"
	"github.com/Guizzs26/go-meta-sync/pkg/metrics"
	"golang.org/x/sync/semaphore"
)

// ErrUpstreamEmpty is not a failure: zero records is a valid outcome of a run
var ErrUpstreamEmpty = errors.New("no records received from meta service")

// Fetcher pulls the records of one domain changed on a date
type Fetcher[R models.MetaRecord] interface {
	Domain() string
	ByDate(ctx context.Context, date string) models.Envelope[R]
}

// Upserter merges one record into local storage
type Upserter interface {
	CreateOrUpdate(ctx context.Context, rec models.MetaRecord) (models.MergeAction, error)
}

// Syncer is the domain-agnostic view used by the scheduler and the admin trigger
type Syncer interface {
	Domain() string
	Sync(ctx context.Context, date string) Outcome
	LastOutcome() (Outcome, bool)
}

// Outcome summarizes one reconciliation pass
type Outcome struct {
	Domain     string        `json:"domain"`
	Date       string        `json:"date"`
	Count      int           `json:"count"`
	Created    int           `json:"created"`
	Updated    int           `json:"updated"`
	Failed     int           `json:"failed"`
	Status     bool          `json:"status"`
	Message    string        `json:"message"`
	Duration   time.Duration `json:"duration"`
	FinishedAt time.Time     `json:"finished_at"`
}

type runState string

const (
	stateIdle       runState = "idle"
	stateFetching   runState = "fetching"
	stateEmpty      runState = "empty"
	stateHasRecords runState = "has_records"
	stateMerging    runState = "merging"
)

// Reconciler runs Sync(date) for one domain: fetch by date, then upsert every record
// in its own transaction. A failing record never aborts the batch
type Reconciler[R models.MetaRecord] struct {
	fetcher     Fetcher[R]
	upserter    Upserter
	concurrency int
	logger      *slog.Logger

	running sync.Mutex

	mu   sync.Mutex
	last *Outcome
}

func NewReconciler[R models.MetaRecord](f Fetcher[R], u Upserter, concurrency int, logger *slog.Logger) *Reconciler[R] {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Reconciler[R]{
		fetcher:     f,
		upserter:    u,
		concurrency: concurrency,
		logger:      logger.With("component", "reconciler", "domain", f.Domain()),
	}
}

func (r *Reconciler[R]) Domain() string {
	return r.fetcher.Domain()
}

// LastOutcome returns the result of the most recent finished pass
func (r *Reconciler[R]) LastOutcome() (Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return Outcome{}, false
	}
	return *r.last, true
}

// Sync reconciles every record changed on date (YYYY-MM-DD). Passes of the same domain never overlap
func (r *Reconciler[R]) Sync(ctx context.Context, date string) (out Outcome) {
	out = Outcome{Domain: r.Domain(), Date: date}

	if _, err := time.Parse(time.DateOnly, date); err != nil {
		out.Message = fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", date)
		return out
	}

	if !r.running.TryLock() {
		out.Message = "a reconciliation pass for this domain is already running"
		r.logger.Warn("Sync skipped, previous pass still running", "date", date)
		return out
	}
	defer r.running.Unlock()

	start := time.Now()
	l := r.logger.With("date", date)

	defer func() {
		out.Duration = time.Since(start)
		out.FinishedAt = time.Now()
		metrics.SyncDuration.WithLabelValues(out.Domain).Observe(out.Duration.Seconds())

		r.mu.Lock()
		r.last = &out
		r.mu.Unlock()

		l.Info("Sync cycle telemetry",
			"state", stateIdle,
			"count", out.Count,
			"created", out.Created,
			"updated", out.Updated,
			"failed", out.Failed,
			"duration_ms", out.Duration.Milliseconds(),
		)
	}()

	l.Info("Fetching meta records", "state", stateFetching)
	env := r.fetcher.ByDate(ctx, date)

	if len(env.Data) == 0 {
		out.Status = env.Status
		out.Message = env.Message
		if env.Status {
			out.Message = ErrUpstreamEmpty.Error()
		}
		l.Info("No records to reconcile", "state", stateEmpty, "remote_status", env.Status, "message", env.Message)
		return out
	}

	out.Count = len(env.Data)
	l.Info("Meta records received", "state", stateHasRecords, "count", out.Count, "remote_count", env.Count)

	l.Info("Merging records", "state", stateMerging, "concurrency", r.concurrency)
	created, updated, failed := r.merge(ctx, l, env.Data)

	out.Created, out.Updated, out.Failed = created, updated, failed
	out.Status = failed == 0
	out.Message = fmt.Sprintf("Processed %d records: %d created, %d updated, %d failed", out.Count, created, updated, failed)
	return out
}

func (r *Reconciler[R]) merge(ctx context.Context, l *slog.Logger, records []R) (created, updated, failed int) {
	var mu sync.Mutex
	record := func(action models.MergeAction, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err != nil:
			failed++
		case action == models.ActionCreated:
			created++
		default:
			updated++
		}
	}

	upsert := func(rec R) {
		action, err := r.upserter.CreateOrUpdate(ctx, rec)
		if err != nil {
			l.Error("Failed to merge record", "natural_key", models.KeyString(rec.NaturalKey()), "error", err)
		}
		record(action, err)
	}

	// Sequential mode keeps the remote order
	if r.concurrency == 1 {
		for i, rec := range records {
			if ctx.Err() != nil {
				l.Warn("Shutdown signal received, stopping merge", "remaining", len(records)-i)
				failed += len(records) - i
				return
			}
			upsert(rec)
		}
		return
	}

	sem := semaphore.NewWeighted(int64(r.concurrency))
	var wg sync.WaitGroup
	for i, rec := range records {
		if err := sem.Acquire(ctx, 1); err != nil {
			l.Warn("Shutdown signal received, stopping merge", "remaining", len(records)-i)
			mu.Lock()
			failed += len(records) - i
			mu.Unlock()
			break
		}
		wg.Add(1)
		go func(rec R) {
			defer wg.Done()
			defer sem.Release(1)
			upsert(rec)
		}(rec)
	}
	wg.Wait()
	return
}
