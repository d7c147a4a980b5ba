package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/Guizzs26/go-meta-sync/internal/db"
	"github.com/Guizzs26/go-meta-sync/internal/models"
	"github.com/Guizzs26/go-meta-sync/pkg/metrics"
)

// Store opens one transaction per record
type Store interface {
	WithinTx(ctx context.Context, fn func(db.RecordTx) error) error
}

const (
	maxAttempts = 3
	txTimeout   = 15 * time.Second
)

// Merger writes meta records into local storage. It owns the enrichment columns only:
// identity columns are seeded on insert and never touched again
type Merger struct {
	store  Store
	domain string
	logger *slog.Logger
	now    func() time.Time
	sleep  func(time.Duration)
}

func NewMerger(store Store, domain string, logger *slog.Logger) *Merger {
	return &Merger{
		store:  store,
		domain: domain,
		logger: logger.With("component", "merger", "domain", domain),
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// CreateOrUpdate upserts one record by natural key inside its own transaction
func (m *Merger) CreateOrUpdate(ctx context.Context, rec models.MetaRecord) (models.MergeAction, error) {
	key := rec.NaturalKey()
	l := m.logger.With("natural_key", models.KeyString(key))

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		txCtx, cancel := context.WithTimeout(ctx, txTimeout)
		action, err := m.merge(txCtx, rec)
		cancel()

		if err == nil {
			metrics.SyncRecords.WithLabelValues(m.domain, string(action)).Inc()
			l.Debug("Record merged", "action", action)
			return action, nil
		}
		lastErr = err

		switch {
		case errors.Is(err, db.ErrConflict):
			// A concurrent writer inserted the same key; the retry finds and updates it
			metrics.SyncConflicts.WithLabelValues(m.domain).Inc()
			l.Warn("Natural key conflict detected, retrying as update", "attempt", attempt, "error", err)
		case errors.Is(err, db.ErrLockContention):
			backoff := time.Duration(attempt) * 200 * time.Millisecond
			l.Warn("Lock contention detected, retrying", "attempt", attempt, "backoff", backoff, "error", err)
			m.sleep(backoff)
		default:
			metrics.SyncRecords.WithLabelValues(m.domain, "failed").Inc()
			return "", err
		}

		if ctx.Err() != nil {
			break
		}
	}

	metrics.SyncRecords.WithLabelValues(m.domain, "failed").Inc()
	return "", fmt.Errorf("failed after %d attempts (last error: %w)", maxAttempts, lastErr)
}

func (m *Merger) merge(ctx context.Context, rec models.MetaRecord) (models.MergeAction, error) {
	var action models.MergeAction

	err := m.store.WithinTx(ctx, func(tx db.RecordTx) error {
		id, found, err := tx.FindID(ctx, rec.Table(), rec.NaturalKey())
		if err != nil {
			return err
		}

		if found {
			fields := maps.Clone(rec.EnrichmentFields())
			fields["updated_by"] = models.SystemActor
			fields["updated_at"] = m.now()
			action = models.ActionUpdated
			return tx.Update(ctx, rec.Table(), id, fields)
		}

		fields := make(map[string]any)
		maps.Copy(fields, rec.IdentityFields())
		maps.Copy(fields, rec.EnrichmentFields())
		maps.Copy(fields, rec.NaturalKey())
		fields["created_by"] = models.SystemActor
		fields["updated_by"] = models.SystemActor
		action = models.ActionCreated
		_, err = tx.Insert(ctx, rec.Table(), fields)
		return err
	})
	if err != nil {
		return "", err
	}
	return action, nil
}
