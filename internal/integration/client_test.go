package integration

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Guizzs26/go-meta-sync/internal/broker"
	"github.com/Guizzs26/go-meta-sync/internal/models"
	"github.com/Guizzs26/go-meta-sync/pkg/infra"
)

type call struct {
	pattern string
	payload string
	timeout time.Duration
}

// stubTransport replies to ping and serves canned bodies per pattern
type stubTransport struct {
	replies map[string]string
	failErr error

	mu    sync.Mutex
	calls []call
}

func (s *stubTransport) Open(context.Context) error { return nil }
func (s *stubTransport) Close() error               { return nil }

func (s *stubTransport) Request(ctx context.Context, pattern string, payload []byte) ([]byte, error) {
	if pattern == broker.PingPattern {
		return []byte(`"pong"`), nil
	}

	c := call{pattern: pattern, payload: string(payload)}
	if deadline, ok := ctx.Deadline(); ok {
		c.timeout = time.Until(deadline)
	}
	s.mu.Lock()
	s.calls = append(s.calls, c)
	s.mu.Unlock()

	if s.failErr != nil {
		return nil, s.failErr
	}
	body, ok := s.replies[pattern]
	if !ok {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []byte(body), nil
}

func (s *stubTransport) last() call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

func newBranchClient(st *stubTransport, timeouts Timeouts) *Client[models.MetaBranch] {
	ep := broker.NewEndpoint("branch", "branches", "amqp://localhost", "meta_branch_queue")
	m := broker.NewManager(ep, st, infra.Discard(), broker.WithSleep(func(context.Context, time.Duration) error { return nil }))
	return NewClient[models.MetaBranch](broker.NewGateway(m, infra.Discard()), timeouts, infra.Discard())
}

func TestByDate(t *testing.T) {
	st := &stubTransport{replies: map[string]string{
		"get_meta_branches_by_date": `{"data":[{"organization_id":7,"org_id":"123","organization_name":"Cabang Bandung"}],"count":1,"status":true,"message":"ok"}`,
	}}
	c := newBranchClient(st, DefaultTimeouts())

	env := c.ByDate(context.Background(), "2024-06-01")
	if !env.Status || env.Count != 1 || len(env.Data) != 1 {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if env.Data[0].OrganizationName != "Cabang Bandung" {
		t.Fatalf("got %+v", env.Data[0])
	}

	last := st.last()
	if last.payload != `"2024-06-01"` {
		t.Fatalf("date must be sent as a bare string, got %s", last.payload)
	}
	if last.timeout <= 4*time.Minute {
		t.Fatalf("bulk fetch should use the long timeout, got %s", last.timeout)
	}
}

func TestByDateDefaultsMissingFields(t *testing.T) {
	st := &stubTransport{replies: map[string]string{"get_meta_branches_by_date": `{}`}}
	c := newBranchClient(st, DefaultTimeouts())

	env := c.ByDate(context.Background(), "2024-06-01")
	if env.Data == nil || env.Count != 0 || env.Status || env.Message == "" {
		t.Fatalf("missing fields were not defaulted: %+v", env)
	}

	st.replies["get_meta_branches_by_date"] = `null`
	env = c.ByDate(context.Background(), "2024-06-01")
	if env.Data == nil || env.Message == "" {
		t.Fatalf("null reply was not defaulted: %+v", env)
	}
}

func TestTimeoutCollapsesIntoFailedEnvelope(t *testing.T) {
	st := &stubTransport{replies: map[string]string{}}
	timeouts := DefaultTimeouts()
	timeouts.Bulk = 30 * time.Millisecond
	c := newBranchClient(st, timeouts)

	env := c.ByDate(context.Background(), "2024-06-01")
	if env.Status || env.Count != 0 || len(env.Data) != 0 {
		t.Fatalf("got %+v", env)
	}
	if !strings.Contains(env.Message, "timed out") {
		t.Fatalf("reason should be embedded, got %q", env.Message)
	}
	if c.gateway.Manager().State().Status != broker.Disconnected {
		t.Fatal("timeout should demote the endpoint")
	}
}

func TestByIDUsesColdTimeoutUntilVerified(t *testing.T) {
	st := &stubTransport{replies: map[string]string{
		"get_meta_branch_by_id": `{"data":[],"count":0,"status":true,"message":"not found"}`,
	}}
	timeouts := Timeouts{Bulk: time.Minute, Lookup: 2 * time.Second, LookupCold: 4 * time.Second, Cache: time.Second}
	c := newBranchClient(st, timeouts)

	c.ByID(context.Background(), 42)
	first := st.last()
	if first.timeout <= 3*time.Second {
		t.Fatalf("first lookup should use the cold timeout, got %s", first.timeout)
	}
	if first.payload != `{"id":42}` {
		t.Fatalf("unexpected payload %s", first.payload)
	}

	c.ByID(context.Background(), 42)
	if second := st.last(); second.timeout > 2*time.Second {
		t.Fatalf("warm lookup should use the short timeout, got %s", second.timeout)
	}
}

func TestList(t *testing.T) {
	st := &stubTransport{replies: map[string]string{
		"get_meta_branches": `{"data":[],"count":0,"status":true,"message":"ok","currentPage":2,"limit":10,"totalPages":5}`,
	}}
	c := newBranchClient(st, DefaultTimeouts())

	page, limit := 2, 10
	env := c.List(context.Background(), models.PaginationParams{Page: &page, Limit: &limit, Search: "bdg"})
	if env.CurrentPage == nil || *env.CurrentPage != 2 || env.TotalPages == nil || *env.TotalPages != 5 {
		t.Fatalf("pagination fields lost: %+v", env)
	}

	var sent map[string]any
	if err := json.Unmarshal([]byte(st.last().payload), &sent); err != nil {
		t.Fatal(err)
	}
	if sent["search"] != "bdg" || sent["page"] != float64(2) {
		t.Fatalf("unexpected payload %v", sent)
	}
}

func TestInvalidateCache(t *testing.T) {
	st := &stubTransport{replies: map[string]string{
		"invalidate_branch_cache": `{"status":true,"message":"Cache cleared"}`,
	}}
	c := newBranchClient(st, DefaultTimeouts())

	ack := c.InvalidateCache(context.Background(), nil)
	if !ack.Status || ack.Message != "Cache cleared" {
		t.Fatalf("got %+v", ack)
	}
	if st.last().payload != `{}` {
		t.Fatalf("invalidate-all should omit the id, got %s", st.last().payload)
	}

	id := int64(9)
	c.InvalidateCache(context.Background(), &id)
	if st.last().payload != `{"id":9}` {
		t.Fatalf("got %s", st.last().payload)
	}
}

func TestInvalidateCacheFailure(t *testing.T) {
	st := &stubTransport{failErr: errors.Join(broker.ErrConnection, errors.New("channel closed"))}
	c := newBranchClient(st, DefaultTimeouts())

	ack := c.InvalidateCache(context.Background(), nil)
	if ack.Status || ack.Message == "" {
		t.Fatalf("got %+v", ack)
	}
}

func TestInvalidRequestsNeverReachTransport(t *testing.T) {
	st := &stubTransport{replies: map[string]string{
		"get_meta_branches_by_date": `{"data":[],"count":0,"status":true,"message":"ok"}`,
		"get_meta_branches":         `{"data":[],"count":0,"status":true,"message":"ok"}`,
		"get_meta_branch_by_id":     `{"data":[],"count":0,"status":true,"message":"ok"}`,
		"invalidate_branch_cache":   `{"status":true,"message":"ok"}`,
	}}
	c := newBranchClient(st, DefaultTimeouts())
	ctx := context.Background()

	zero, negative := 0, -1
	badID := int64(-3)
	failures := map[string]bool{
		"by date":    c.ByDate(ctx, "06/01/2024").Status,
		"by id":      c.ByID(ctx, -5).Status,
		"zero page":  c.List(ctx, models.PaginationParams{Page: &zero}).Status,
		"bad limit":  c.List(ctx, models.PaginationParams{Limit: &negative}).Status,
		"invalidate": c.InvalidateCache(ctx, &badID).Status,
	}
	for name, status := range failures {
		if status {
			t.Errorf("%s: expected a failed reply", name)
		}
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.calls) != 0 {
		t.Fatalf("invalid requests were sent: %+v", st.calls)
	}
}

func TestInvalidRequestReasonNamesPattern(t *testing.T) {
	c := newBranchClient(&stubTransport{}, DefaultTimeouts())

	env := c.ByID(context.Background(), 0)
	if !strings.Contains(env.Message, "get_meta_branch_by_id") || !strings.Contains(env.Message, "id must be > 0") {
		t.Fatalf("unexpected message %q", env.Message)
	}
}
