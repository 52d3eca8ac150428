package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/pairwise/anonchat/internal/moderation"
	"github.com/pairwise/anonchat/internal/pairing"
	"github.com/pairwise/anonchat/internal/profile"
	"github.com/pairwise/anonchat/internal/ratelimit"
)

// recordingMessenger captures outbound traffic per user.
type recordingMessenger struct {
	mu      sync.Mutex
	texts   map[int64][]string
	notices map[int64][]string
	typing  map[int64]int
	order   []string // operation order, e.g. "typing:2", "text:2"
}

func newRecordingMessenger() *recordingMessenger {
	return &recordingMessenger{
		texts:   make(map[int64][]string),
		notices: make(map[int64][]string),
		typing:  make(map[int64]int),
	}
}

func (m *recordingMessenger) SendText(userID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts[userID] = append(m.texts[userID], text)
	m.order = append(m.order, "text")
	return nil
}

func (m *recordingMessenger) SendNotice(userID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices[userID] = append(m.notices[userID], text)
	return nil
}

func (m *recordingMessenger) SendTyping(userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typing[userID]++
	m.order = append(m.order, "typing")
	return nil
}

// staticLimiter always answers the same way.
type staticLimiter struct{ allow bool }

func (l staticLimiter) Allow(context.Context, int64, ratelimit.Rule) bool { return l.allow }

// memProfiles is a trivial in-memory profile source.
type memProfiles struct {
	byID map[int64]*profile.Profile
	err  error
}

func (p *memProfiles) Get(_ context.Context, userID int64) (*profile.Profile, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.byID[userID], nil
}

// pairedRouter builds a router with users 1 and 2 already in chat.
func pairedRouter(t *testing.T, profiles *memProfiles, limiter Limiter) (*Router, *pairing.Registry, *recordingMessenger) {
	t.Helper()

	registry := pairing.NewRegistry()
	registry.Match(1, func(int64) bool { return true })
	if status, _ := registry.Match(2, func(int64) bool { return true }); status != pairing.Matched {
		t.Fatal("failed to pair test users")
	}

	out := newRecordingMessenger()
	filter := moderation.NewFilter([]string{"badword1"})
	return NewRouter(registry, profiles, filter, limiter, out), registry, out
}

func basicProfiles() *memProfiles {
	return &memProfiles{byID: map[int64]*profile.Profile{
		1: {UserID: 1, Gender: "M", Age: 25, Region: "north", LookingFor: "F"},
		2: {UserID: 2, Gender: "F", Age: 25, Region: "north", LookingFor: "M"},
	}}
}

func TestDeliver_RelaysToPartner(t *testing.T) {
	r, _, out := pairedRouter(t, basicProfiles(), staticLimiter{true})

	if err := r.Deliver(context.Background(), 1, "hello"); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if got := out.texts[2]; len(got) != 1 || got[0] != "hello" {
		t.Fatalf("partner received %v, want [hello]", got)
	}
	if out.typing[2] != 1 {
		t.Errorf("typing indicator count = %d, want 1", out.typing[2])
	}
	if len(out.order) < 2 || out.order[0] != "typing" || out.order[1] != "text" {
		t.Errorf("delivery order = %v, want typing before text", out.order)
	}
	if len(out.notices[1]) != 0 {
		t.Errorf("sender got unexpected notices: %v", out.notices[1])
	}
}

func TestDeliver_PremiumPrefix(t *testing.T) {
	profiles := basicProfiles()
	profiles.byID[1].Premium = true
	r, _, out := pairedRouter(t, profiles, staticLimiter{true})

	if err := r.Deliver(context.Background(), 1, "hello"); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	got := out.texts[2]
	if len(got) != 1 {
		t.Fatalf("partner received %d messages, want exactly 1", len(got))
	}
	if got[0] != "[Premium] hello" {
		t.Errorf("partner received %q, want %q", got[0], "[Premium] hello")
	}
}

func TestDeliver_BannedWordBlocked(t *testing.T) {
	r, _, out := pairedRouter(t, basicProfiles(), staticLimiter{true})

	if err := r.Deliver(context.Background(), 1, "this is badword1 test"); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if len(out.texts[2]) != 0 {
		t.Fatalf("partner received %v, want nothing", out.texts[2])
	}
	if got := out.notices[1]; len(got) != 1 || got[0] != NoticeBlocked {
		t.Errorf("sender notices = %v, want [%q]", got, NoticeBlocked)
	}
}

func TestDeliver_NotInChat(t *testing.T) {
	registry := pairing.NewRegistry()
	out := newRecordingMessenger()
	r := NewRouter(registry, basicProfiles(), moderation.NewFilter(nil), staticLimiter{true}, out)

	if err := r.Deliver(context.Background(), 1, "hello"); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if got := out.notices[1]; len(got) != 1 || got[0] != NoticeNotInChat {
		t.Errorf("sender notices = %v, want [%q]", got, NoticeNotInChat)
	}
	if len(out.texts) != 0 {
		t.Errorf("nothing should be relayed, got %v", out.texts)
	}
}

func TestDeliver_RateLimited(t *testing.T) {
	r, _, out := pairedRouter(t, basicProfiles(), staticLimiter{false})

	if err := r.Deliver(context.Background(), 1, "hello"); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if len(out.texts[2]) != 0 {
		t.Fatalf("rate-limited message must not be relayed, got %v", out.texts[2])
	}
	if got := out.notices[1]; len(got) != 1 || got[0] != NoticeRateLimited {
		t.Errorf("sender notices = %v, want [%q]", got, NoticeRateLimited)
	}
}

func TestDeliver_OversizedRejected(t *testing.T) {
	r, _, out := pairedRouter(t, basicProfiles(), staticLimiter{true})

	if err := r.Deliver(context.Background(), 1, strings.Repeat("a", MaxMessageBytes+1)); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if len(out.texts[2]) != 0 {
		t.Fatal("oversized message must not be relayed")
	}
	if len(out.notices[1]) != 1 {
		t.Errorf("sender notices = %v, want exactly one", out.notices[1])
	}
}

func TestDeliver_ProfileFailurePropagates(t *testing.T) {
	profiles := basicProfiles()
	r, registry, out := pairedRouter(t, profiles, staticLimiter{true})
	profiles.err = errors.New("store down")

	if err := r.Deliver(context.Background(), 1, "hello"); err == nil {
		t.Fatal("expected collaborator failure to propagate")
	}

	if len(out.texts[2]) != 0 {
		t.Fatal("nothing must be relayed on profile failure")
	}
	// The chat itself stays intact; no session mutation happened.
	if state, p := registry.StateOf(1); state != pairing.StateInChat || p != 2 {
		t.Errorf("user 1 state = %q/%d, want in_chat/2", state, p)
	}
}

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{"normal", "hello there", true},
		{"empty", "", false},
		{"too many bytes", strings.Repeat("x", MaxMessageBytes+1), false},
		{"too many chars", strings.Repeat("ф", MaxTextChars+1), false},
		{"invalid utf8", string([]byte{0xff, 0xfe}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessage(tt.input)
			if (err == nil) != tt.ok {
				t.Errorf("ValidateMessage(%q) error = %v, want ok=%v", tt.input, err, tt.ok)
			}
		})
	}
}
