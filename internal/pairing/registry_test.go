package pairing

import (
	"sync"
	"testing"
)

// acceptAll pairs with any candidate.
func acceptAll(int64) bool { return true }

// acceptNone rejects every candidate.
func acceptNone(int64) bool { return false }

// checkInvariants verifies the registry's structural invariants: symmetric
// in-chat pairing, queue membership iff waiting, no duplicate queue entries.
func checkInvariants(t *testing.T, r *Registry) {
	t.Helper()

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[int64]bool)
	for _, id := range r.queue {
		if seen[id] {
			t.Fatalf("user %d appears twice in queue", id)
		}
		seen[id] = true

		s, ok := r.sessions[id]
		if !ok || s.state != StateWaiting {
			t.Fatalf("user %d queued but not in waiting state", id)
		}
	}

	for id, s := range r.sessions {
		switch s.state {
		case StateWaiting:
			if !seen[id] {
				t.Fatalf("user %d waiting but missing from queue", id)
			}
		case StateInChat:
			p, ok := r.sessions[s.partner]
			if !ok || p.state != StateInChat || p.partner != id {
				t.Fatalf("user %d in chat with %d but pairing is not symmetric", id, s.partner)
			}
			if seen[id] {
				t.Fatalf("user %d in chat but still queued", id)
			}
		}
	}
}

func TestMatch_EmptyQueueEnqueues(t *testing.T) {
	r := NewRegistry()

	status, _ := r.Match(1, acceptAll)
	if status != Enqueued {
		t.Fatalf("Match status = %v, want Enqueued", status)
	}

	if state, _ := r.StateOf(1); state != StateWaiting {
		t.Errorf("state = %q, want %q", state, StateWaiting)
	}
	if got := r.Waiting(); len(got) != 1 || got[0] != 1 {
		t.Errorf("queue = %v, want [1]", got)
	}
	checkInvariants(t, r)
}

func TestMatch_PairsWithWaitingUser(t *testing.T) {
	r := NewRegistry()
	r.Match(1, acceptAll)

	status, partner := r.Match(2, acceptAll)
	if status != Matched {
		t.Fatalf("Match status = %v, want Matched", status)
	}
	if partner != 1 {
		t.Fatalf("partner = %d, want 1", partner)
	}

	if state, p := r.StateOf(1); state != StateInChat || p != 2 {
		t.Errorf("user 1 state = %q partner = %d, want in_chat/2", state, p)
	}
	if state, p := r.StateOf(2); state != StateInChat || p != 1 {
		t.Errorf("user 2 state = %q partner = %d, want in_chat/1", state, p)
	}
	if n := r.WaitingCount(); n != 0 {
		t.Errorf("waiting count = %d, want 0", n)
	}
	checkInvariants(t, r)
}

func TestMatch_IncompatibleCandidateEnqueues(t *testing.T) {
	r := NewRegistry()
	r.Match(1, acceptAll)

	status, _ := r.Match(3, acceptNone)
	if status != Enqueued {
		t.Fatalf("Match status = %v, want Enqueued", status)
	}

	if got := r.Waiting(); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("queue = %v, want [1 3]", got)
	}
	checkInvariants(t, r)
}

func TestMatch_FirstFitSkipsIncompatible(t *testing.T) {
	r := NewRegistry()
	r.Match(1, acceptAll) // queue: [1]
	r.Match(2, acceptNone) // queue: [1 2]

	// Accept only user 2, skipping the older waiter.
	status, partner := r.Match(3, func(id int64) bool { return id == 2 })
	if status != Matched || partner != 2 {
		t.Fatalf("Match = (%v, %d), want (Matched, 2)", status, partner)
	}
	if got := r.Waiting(); len(got) != 1 || got[0] != 1 {
		t.Errorf("queue = %v, want [1]", got)
	}
	checkInvariants(t, r)
}

func TestMatch_ReentrancyGuard(t *testing.T) {
	r := NewRegistry()
	r.Match(1, acceptAll)

	if status, _ := r.Match(1, acceptAll); status != AlreadyWaiting {
		t.Errorf("second search while waiting = %v, want AlreadyWaiting", status)
	}

	r.Match(2, acceptAll) // pair 1 and 2

	if status, _ := r.Match(1, acceptAll); status != AlreadyInChat {
		t.Errorf("search while in chat = %v, want AlreadyInChat", status)
	}
	checkInvariants(t, r)
}

func TestMatch_NeverSelectsSelf(t *testing.T) {
	r := NewRegistry()
	r.Match(1, acceptAll)
	r.Leave(1)
	r.Match(1, acceptAll)

	if state, _ := r.StateOf(1); state != StateWaiting {
		t.Fatalf("state = %q, want waiting (self-match must not occur)", state)
	}
}

func TestLeave_Chat(t *testing.T) {
	r := NewRegistry()
	r.Match(1, acceptAll)
	r.Match(2, acceptAll)

	status, partner := r.Leave(1)
	if status != LeftChat || partner != 2 {
		t.Fatalf("Leave = (%v, %d), want (LeftChat, 2)", status, partner)
	}

	if state, _ := r.StateOf(1); state != StateIdle {
		t.Errorf("user 1 state = %q, want idle", state)
	}
	if state, _ := r.StateOf(2); state != StateIdle {
		t.Errorf("user 2 state = %q, want idle", state)
	}
	checkInvariants(t, r)
}

func TestLeave_CancelsSearch(t *testing.T) {
	r := NewRegistry()
	r.Match(1, acceptAll)

	status, _ := r.Leave(1)
	if status != SearchCancelled {
		t.Fatalf("Leave = %v, want SearchCancelled", status)
	}
	if n := r.WaitingCount(); n != 0 {
		t.Errorf("waiting count = %d, want 0", n)
	}
	checkInvariants(t, r)
}

func TestLeave_IdleIsIdempotent(t *testing.T) {
	r := NewRegistry()

	for i := 0; i < 2; i++ {
		status, _ := r.Leave(1)
		if status != NotActive {
			t.Fatalf("Leave #%d = %v, want NotActive", i+1, status)
		}
	}
	if state, _ := r.StateOf(1); state != StateIdle {
		t.Errorf("state = %q, want idle", state)
	}
}

func TestForceIdle_ResetsPartnerToo(t *testing.T) {
	r := NewRegistry()
	r.Match(1, acceptAll)
	r.Match(2, acceptAll)

	r.ForceIdle(1)

	if state, _ := r.StateOf(2); state != StateIdle {
		t.Errorf("partner state = %q, want idle", state)
	}
	checkInvariants(t, r)
}

// TestMatch_ConcurrentSearchersSingleCandidate runs many concurrent searches
// against one waiting user. Exactly one searcher may win the candidate; the
// rest must enqueue. The pairing must never be observed half-done.
func TestMatch_ConcurrentSearchersSingleCandidate(t *testing.T) {
	r := NewRegistry()
	r.Match(1, acceptAll)

	const searchers = 32
	var wg sync.WaitGroup
	results := make([]MatchStatus, searchers)

	for i := 0; i < searchers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status, _ := r.Match(int64(100+i), func(id int64) bool { return id == 1 })
			results[i] = status
		}(i)
	}
	wg.Wait()

	matched := 0
	for _, status := range results {
		if status == Matched {
			matched++
		}
	}
	if matched != 1 {
		t.Fatalf("%d searchers matched user 1, want exactly 1", matched)
	}
	checkInvariants(t, r)
}

// TestConcurrent_MixedOperations hammers the registry with interleaved
// searches and leaves and verifies the invariants hold at the end.
func TestConcurrent_MixedOperations(t *testing.T) {
	r := NewRegistry()

	const users = 64
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Match(id, acceptAll)
				if j%3 == 0 {
					r.Leave(id)
				}
			}
		}(int64(i + 1))
	}
	wg.Wait()

	checkInvariants(t, r)
}
