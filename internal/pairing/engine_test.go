package pairing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pairwise/anonchat/internal/profile"
)

// fakeProfiles is an in-memory ProfileSource. Individual reads can be made
// to fail to exercise the skip-on-fetch-error path.
type fakeProfiles struct {
	mu      sync.Mutex
	byID    map[int64]*profile.Profile
	failing map[int64]bool
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{
		byID:    make(map[int64]*profile.Profile),
		failing: make(map[int64]bool),
	}
}

func (f *fakeProfiles) add(p *profile.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[p.UserID] = p
}

func (f *fakeProfiles) Get(_ context.Context, userID int64) (*profile.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[userID] {
		return nil, errors.New("profile store down")
	}
	return f.byID[userID], nil
}

func completeProfile(id int64, gender, lookingFor string) *profile.Profile {
	return &profile.Profile{
		UserID:     id,
		Gender:     gender,
		Age:        30,
		Region:     "east",
		LookingFor: lookingFor,
	}
}

func newTestEngine() (*Engine, *fakeProfiles) {
	profiles := newFakeProfiles()
	return NewEngine(NewRegistry(), profiles), profiles
}

func TestSearch_EmptyQueueEntersWaiting(t *testing.T) {
	e, profiles := newTestEngine()
	profiles.add(completeProfile(1, "M", "F"))

	res, err := e.Search(context.Background(), 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Status != SearchWaiting {
		t.Fatalf("status = %v, want SearchWaiting", res.Status)
	}
	if got := e.Registry().Waiting(); len(got) != 1 || got[0] != 1 {
		t.Errorf("queue = %v, want [1]", got)
	}
}

func TestSearch_MatchesCompatibleWaiter(t *testing.T) {
	e, profiles := newTestEngine()
	profiles.add(completeProfile(1, "M", "F"))
	profiles.add(completeProfile(2, "F", "M"))

	if _, err := e.Search(context.Background(), 1); err != nil {
		t.Fatalf("Search(1): %v", err)
	}

	res, err := e.Search(context.Background(), 2)
	if err != nil {
		t.Fatalf("Search(2): %v", err)
	}
	if res.Status != SearchMatched || res.PartnerID != 1 {
		t.Fatalf("result = %+v, want matched with partner 1", res)
	}

	if state, p := e.Registry().StateOf(1); state != StateInChat || p != 2 {
		t.Errorf("user 1 = %q/%d, want in_chat/2", state, p)
	}
	if state, p := e.Registry().StateOf(2); state != StateInChat || p != 1 {
		t.Errorf("user 2 = %q/%d, want in_chat/1", state, p)
	}
	if n := e.Registry().WaitingCount(); n != 0 {
		t.Errorf("waiting count = %d, want 0", n)
	}
}

func TestSearch_IncompatibleFiltersEnqueue(t *testing.T) {
	e, profiles := newTestEngine()
	// User 1: man seeking women. User 3: man seeking men. Filters do not
	// line up in either direction against user 1.
	profiles.add(completeProfile(1, "M", "F"))
	profiles.add(completeProfile(3, "M", "M"))

	e.Search(context.Background(), 1)

	res, err := e.Search(context.Background(), 3)
	if err != nil {
		t.Fatalf("Search(3): %v", err)
	}
	if res.Status != SearchWaiting {
		t.Fatalf("status = %v, want SearchWaiting", res.Status)
	}
	if got := e.Registry().Waiting(); len(got) != 2 {
		t.Errorf("queue = %v, want both users waiting", got)
	}
}

func TestSearch_IncompleteProfileRejected(t *testing.T) {
	e, profiles := newTestEngine()
	p := completeProfile(1, "M", "F")
	p.Region = ""
	profiles.add(p)

	res, err := e.Search(context.Background(), 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Status != SearchProfileIncomplete {
		t.Fatalf("status = %v, want SearchProfileIncomplete", res.Status)
	}
	if n := e.Registry().WaitingCount(); n != 0 {
		t.Errorf("incomplete profile must not enqueue, queue size = %d", n)
	}
}

func TestSearch_UnknownUserRejected(t *testing.T) {
	e, _ := newTestEngine()

	res, err := e.Search(context.Background(), 99)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Status != SearchProfileIncomplete {
		t.Fatalf("status = %v, want SearchProfileIncomplete", res.Status)
	}
}

func TestSearch_OwnProfileReadFailurePropagates(t *testing.T) {
	e, profiles := newTestEngine()
	profiles.add(completeProfile(1, "M", "F"))
	profiles.failing[1] = true

	if _, err := e.Search(context.Background(), 1); err == nil {
		t.Fatal("expected error from failed profile read")
	}
	if n := e.Registry().WaitingCount(); n != 0 {
		t.Errorf("failed search must not mutate state, queue size = %d", n)
	}
}

func TestSearch_CandidateReadFailureSkipped(t *testing.T) {
	e, profiles := newTestEngine()
	profiles.add(completeProfile(1, "F", "any"))
	profiles.add(completeProfile(2, "F", "any"))
	profiles.add(completeProfile(3, "M", "any"))

	e.Search(context.Background(), 1)
	e.Search(context.Background(), 2)
	profiles.failing[1] = true

	// User 1's profile read fails mid-scan; user 2 is the next candidate.
	res, err := e.Search(context.Background(), 3)
	if err != nil {
		t.Fatalf("Search(3): %v", err)
	}
	if res.Status != SearchMatched || res.PartnerID != 2 {
		t.Fatalf("result = %+v, want matched with partner 2", res)
	}
	if got := e.Registry().Waiting(); len(got) != 1 || got[0] != 1 {
		t.Errorf("queue = %v, want [1] (unreadable candidate stays queued)", got)
	}
}

func TestSearch_BannedWaiterNeverMatched(t *testing.T) {
	e, profiles := newTestEngine()
	banned := completeProfile(1, "F", "any")
	banned.Banned = true
	profiles.add(banned)
	profiles.add(completeProfile(2, "M", "any"))

	e.Search(context.Background(), 1)

	res, err := e.Search(context.Background(), 2)
	if err != nil {
		t.Fatalf("Search(2): %v", err)
	}
	if res.Status != SearchWaiting {
		t.Fatalf("status = %v, want SearchWaiting (banned waiter skipped)", res.Status)
	}
}
