package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Guizzs26/go-meta-sync/internal/service"
	"github.com/Guizzs26/go-meta-sync/internal/session"
	"github.com/Guizzs26/go-meta-sync/pkg/infra"
)

type stubAuth struct {
	valid string
	err   error
}

func (s stubAuth) Authenticate(_ context.Context, token string) (*session.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	if token != s.valid {
		return nil, nil
	}
	return &session.Record{UserID: 1, Token: token}, nil
}

type stubSyncer struct {
	domain string
	count  int
	dates  []string
	last   *service.Outcome
}

func (s *stubSyncer) Domain() string { return s.domain }

func (s *stubSyncer) Sync(_ context.Context, date string) service.Outcome {
	s.dates = append(s.dates, date)
	out := service.Outcome{Domain: s.domain, Date: date, Count: s.count, Status: true, Message: "ok"}
	s.last = &out
	return out
}

func (s *stubSyncer) LastOutcome() (service.Outcome, bool) {
	if s.last == nil {
		return service.Outcome{}, false
	}
	return *s.last, true
}

func newTestMux(auth Authenticator, syncers ...service.Syncer) *http.ServeMux {
	mux := http.NewServeMux()
	NewHandler(auth, syncers, func() string { return "2024-06-01" }, infra.Discard()).Register(mux)
	return mux
}

func do(mux http.Handler, method, target, token string) (*httptest.ResponseRecorder, SyncResponse) {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var body SyncResponse
	_ = json.NewDecoder(rec.Body).Decode(&body)
	return rec, body
}

func TestTriggerRequiresValidSession(t *testing.T) {
	branch := &stubSyncer{domain: "branch"}
	mux := newTestMux(stubAuth{valid: "good"}, branch)

	if rec, _ := do(mux, http.MethodPost, "/admin/meta-sync", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: got %d", rec.Code)
	}
	if rec, _ := do(mux, http.MethodPost, "/admin/meta-sync", "superseded"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("invalid token: got %d", rec.Code)
	}
	if len(branch.dates) != 0 {
		t.Fatal("sync ran without a valid session")
	}
}

func TestTriggerSingleDomain(t *testing.T) {
	branch := &stubSyncer{domain: "branch", count: 3}
	region := &stubSyncer{domain: "region", count: 2}
	mux := newTestMux(stubAuth{valid: "good"}, branch, region)

	rec, body := do(mux, http.MethodPost, "/admin/meta-sync?domain=branch&date=2024-05-30", "good")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}
	if body.Count != 3 || !body.Status {
		t.Fatalf("unexpected body %+v", body)
	}
	if len(branch.dates) != 1 || branch.dates[0] != "2024-05-30" || len(region.dates) != 0 {
		t.Fatalf("wrong syncers ran: branch=%v region=%v", branch.dates, region.dates)
	}
}

func TestTriggerAllDomainsDefaultsToToday(t *testing.T) {
	branch := &stubSyncer{domain: "branch", count: 3}
	region := &stubSyncer{domain: "region", count: 2}
	mux := newTestMux(stubAuth{valid: "good"}, branch, region)

	_, body := do(mux, http.MethodPost, "/admin/meta-sync", "good")
	if body.Count != 5 || len(body.Outcomes) != 2 {
		t.Fatalf("unexpected body %+v", body)
	}
	if branch.dates[0] != "2024-06-01" {
		t.Fatalf("expected today's date, got %s", branch.dates[0])
	}
}

func TestTriggerBadInput(t *testing.T) {
	mux := newTestMux(stubAuth{valid: "good"}, &stubSyncer{domain: "branch"})

	if rec, _ := do(mux, http.MethodPost, "/admin/meta-sync?domain=warehouse", "good"); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown domain: got %d", rec.Code)
	}
	if rec, _ := do(mux, http.MethodPost, "/admin/meta-sync?date=June", "good"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date: got %d", rec.Code)
	}
}

func TestSessionStoreDown(t *testing.T) {
	mux := newTestMux(stubAuth{err: errors.New("dial tcp: connection refused")}, &stubSyncer{domain: "branch"})

	if rec, _ := do(mux, http.MethodPost, "/admin/meta-sync", "good"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d", rec.Code)
	}
}

func TestLastSync(t *testing.T) {
	branch := &stubSyncer{domain: "branch", count: 4}
	mux := newTestMux(stubAuth{valid: "good"}, branch)

	_, body := do(mux, http.MethodGet, "/admin/meta-sync", "good")
	if body.Count != 0 || body.Status {
		t.Fatalf("expected no outcome yet, got %+v", body)
	}

	do(mux, http.MethodPost, "/admin/meta-sync", "good")
	_, body = do(mux, http.MethodGet, "/admin/meta-sync", "good")
	if body.Count != 4 || !body.Status {
		t.Fatalf("unexpected last outcome %+v", body)
	}
}
