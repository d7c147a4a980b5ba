package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Guizzs26/go-meta-sync/internal/service"
	"github.com/Guizzs26/go-meta-sync/internal/session"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*session.Record, error)
}

// SyncResponse is the summary returned by the on-demand trigger
type SyncResponse struct {
	Count    int               `json:"count"`
	Status   bool              `json:"status"`
	Message  string            `json:"message"`
	Outcomes []service.Outcome `json:"outcomes,omitempty"`
}

// Handler exposes reconciliation to operators
type Handler struct {
	auth    Authenticator
	syncers map[string]service.Syncer
	today   func() string
	logger  *slog.Logger
}

func NewHandler(auth Authenticator, syncers []service.Syncer, today func() string, logger *slog.Logger) *Handler {
	byDomain := make(map[string]service.Syncer, len(syncers))
	for _, s := range syncers {
		byDomain[s.Domain()] = s
	}
	return &Handler{
		auth:    auth,
		syncers: byDomain,
		today:   today,
		logger:  logger.With("component", "admin"),
	}
}

// Register mounts the admin routes on mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /admin/meta-sync", h.requireSession(http.HandlerFunc(h.triggerSync)))
	mux.Handle("GET /admin/meta-sync", h.requireSession(http.HandlerFunc(h.lastSync)))
}

func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, SyncResponse{Message: "Missing token"})
			return
		}

		rec, err := h.auth.Authenticate(r.Context(), token)
		if err != nil {
			h.logger.Error("Session validation failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, SyncResponse{Message: "Session store unavailable"})
			return
		}
		if rec == nil {
			writeJSON(w, http.StatusUnauthorized, SyncResponse{Message: "Invalid or expired session"})
			return
		}

		h.logger.Info("Admin request", "user_id", rec.UserID, "path", r.URL.Path, "method", r.Method)
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) triggerSync(w http.ResponseWriter, r *http.Request) {
	syncers, err := h.selected(r.URL.Query().Get("domain"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, SyncResponse{Message: err.Error()})
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		date = h.today()
	}
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		writeJSON(w, http.StatusBadRequest, SyncResponse{Message: fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", date)})
		return
	}

	outcomes := make([]service.Outcome, 0, len(syncers))
	for _, s := range syncers {
		outcomes = append(outcomes, s.Sync(r.Context(), date))
	}
	writeJSON(w, http.StatusOK, summarize(outcomes))
}

func (h *Handler) lastSync(w http.ResponseWriter, r *http.Request) {
	syncers, err := h.selected(r.URL.Query().Get("domain"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, SyncResponse{Message: err.Error()})
		return
	}

	var outcomes []service.Outcome
	for _, s := range syncers {
		if out, ok := s.LastOutcome(); ok {
			outcomes = append(outcomes, out)
		}
	}
	if len(outcomes) == 0 {
		writeJSON(w, http.StatusOK, SyncResponse{Message: "No reconciliation pass has run yet"})
		return
	}
	writeJSON(w, http.StatusOK, summarize(outcomes))
}

// selected resolves the domain filter; empty means every domain in name order
func (h *Handler) selected(domain string) ([]service.Syncer, error) {
	if domain != "" {
		s, ok := h.syncers[domain]
		if !ok {
			return nil, fmt.Errorf("unknown domain %q", domain)
		}
		return []service.Syncer{s}, nil
	}

	names := make([]string, 0, len(h.syncers))
	for name := range h.syncers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]service.Syncer, 0, len(names))
	for _, name := range names {
		out = append(out, h.syncers[name])
	}
	return out, nil
}

func summarize(outcomes []service.Outcome) SyncResponse {
	resp := SyncResponse{Status: true, Outcomes: outcomes}
	msgs := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		resp.Count += o.Count
		resp.Status = resp.Status && o.Status
		msgs = append(msgs, fmt.Sprintf("%s: %s", o.Domain, o.Message))
	}
	resp.Message = strings.Join(msgs, "; ")
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
