package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Guizzs26/go-meta-sync/pkg/metrics"
)

var (
	ErrSessionMissing = errors.New("session not found or expired")
	// ErrSessionMismatch means a newer login replaced this token
	ErrSessionMismatch = errors.New("session superseded by a newer login")
)

const DefaultTTL = 30 * time.Minute

// Cache is the shared key/value store holding session state. It must be visible to every
// service instance, so it is never an in-process map in production
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Swap sets key and returns the value it replaced, atomically
	Swap(ctx context.Context, key, value string, ttl time.Duration) (string, bool, error)
	Del(ctx context.Context, keys ...string) error
	// DelIfValue deletes key only while it still holds value
	DelIfValue(ctx context.Context, key, value string) (bool, error)
}

// Record is the JSON document stored under session:<token>
type Record struct {
	UserID     int64     `json:"userId"`
	Token      string    `json:"token"`
	DeviceInfo string    `json:"deviceInfo"`
	IPAddress  string    `json:"ipAddress"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Store enforces one valid session per user on top of a Cache
type Store struct {
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewStore(cache Cache, ttl time.Duration, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		cache:  cache,
		ttl:    ttl,
		logger: logger.With("component", "session_store"),
	}
}

func SessionKey(token string) string {
	return "session:" + token
}

func UserKey(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}

// Open stores rec and makes its token the only valid one for the user. The previous
// session, if any, is deleted
func (s *Store) Open(ctx context.Context, rec Record) error {
	if rec.Token == "" {
		return errors.New("session token is empty")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}

	if err := s.cache.Set(ctx, SessionKey(rec.Token), string(body), s.ttl); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	previous, had, err := s.cache.Swap(ctx, UserKey(rec.UserID), rec.Token, s.ttl)
	if err != nil {
		return fmt.Errorf("failed to store current token: %w", err)
	}

	if had && previous != rec.Token {
		if err := s.cache.Del(ctx, SessionKey(previous)); err != nil {
			// The old record stays until TTL but Validate already rejects it
			s.logger.Warn("Failed to delete superseded session", "user_id", rec.UserID, "error", err)
		}
		metrics.SessionsSuperseded.Inc()
		s.logger.Info("Previous session superseded by new login", "user_id", rec.UserID)
	}
	return nil
}

// Lookup returns the record of token or the reason it is not valid
func (s *Store) Lookup(ctx context.Context, token string) (*Record, error) {
	raw, ok, err := s.cache.Get(ctx, SessionKey(token))
	if err != nil {
		metrics.SessionValidations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if !ok {
		metrics.SessionValidations.WithLabelValues("missing").Inc()
		return nil, ErrSessionMissing
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		metrics.SessionValidations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("corrupt session record: %w", err)
	}

	current, ok, err := s.cache.Get(ctx, UserKey(rec.UserID))
	if err != nil {
		metrics.SessionValidations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to read current token: %w", err)
	}
	if !ok || current != token {
		metrics.SessionValidations.WithLabelValues("superseded").Inc()
		return nil, ErrSessionMismatch
	}

	metrics.SessionValidations.WithLabelValues("valid").Inc()
	return &rec, nil
}

// Validate returns nil for any token that is not the user's current session.
// Only cache failures are reported as errors
func (s *Store) Validate(ctx context.Context, token string) (*Record, error) {
	rec, err := s.Lookup(ctx, token)
	switch {
	case errors.Is(err, ErrSessionMissing), errors.Is(err, ErrSessionMismatch):
		s.logger.Debug("Session rejected", "reason", err)
		return nil, nil
	case err != nil:
		return nil, err
	}
	return rec, nil
}

// Revoke deletes token's session. The user's current-token pointer is cleared only
// while it still references token, so a concurrent newer login survives
func (s *Store) Revoke(ctx context.Context, token string) error {
	raw, ok, err := s.cache.Get(ctx, SessionKey(token))
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}
	if !ok {
		return nil
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return s.cache.Del(ctx, SessionKey(token))
	}

	if err := s.cache.Del(ctx, SessionKey(token)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if _, err := s.cache.DelIfValue(ctx, UserKey(rec.UserID), token); err != nil {
		return fmt.Errorf("failed to clear current token: %w", err)
	}
	s.logger.Info("Session revoked", "user_id", rec.UserID)
	return nil
}
