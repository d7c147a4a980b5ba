package broker

import "testing"

func TestTransition(t *testing.T) {
	var s ConnectionState

	s = Transition(s, Event{Kind: EventAttempt})
	if s.Status != Connecting || s.Attempts != 1 {
		t.Fatalf("after attempt: %+v", s)
	}

	s = Transition(s, Event{Kind: EventFailed, Err: "dial tcp: refused"})
	if s.Status != Disconnected || s.Attempts != 1 || s.LastError != "dial tcp: refused" {
		t.Fatalf("after failure: %+v", s)
	}

	s = Transition(s, Event{Kind: EventAttempt})
	s = Transition(s, Event{Kind: EventVerified})
	if s.Status != Verified || s.Attempts != 0 || s.LastError != "" {
		t.Fatalf("after verify: %+v", s)
	}

	s = Transition(s, Event{Kind: EventDemoted, Err: "timeout"})
	if s.Status != Disconnected || s.LastError != "timeout" {
		t.Fatalf("after demote: %+v", s)
	}
}

func TestTransitionExhaustedResetsAttempts(t *testing.T) {
	s := ConnectionState{Status: Disconnected, Attempts: 5, LastError: "boom"}

	s = Transition(s, Event{Kind: EventExhausted})
	if s.Status != Disconnected || s.Attempts != 0 {
		t.Fatalf("got %+v", s)
	}
	if s.LastError != "boom" {
		t.Fatal("exhaustion must keep the last error for diagnostics")
	}
}

func TestTransitionIsPure(t *testing.T) {
	before := ConnectionState{Status: Verified}
	_ = Transition(before, Event{Kind: EventDemoted, Err: "x"})
	if before.Status != Verified {
		t.Fatal("input state was mutated")
	}
}

func TestDefaultPatterns(t *testing.T) {
	p := DefaultPatterns("branch", "branches")
	if p.ByDate != "get_meta_branches_by_date" || p.List != "get_meta_branches" ||
		p.ByID != "get_meta_branch_by_id" || p.Invalidate != "invalidate_branch_cache" {
		t.Fatalf("unexpected patterns %+v", p)
	}
}
