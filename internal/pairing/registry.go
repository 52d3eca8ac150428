// Package pairing implements the matching core: the per-user session state
// machine, the FIFO waiting queue, and the mutual-compatibility predicate.
// All shared state lives behind a single mutex: the queue scan, candidate
// removal, and the dual session transition of a match attempt commit as one
// atomic unit.
package pairing

import "sync"

// Session states. A user absent from the registry is equivalent to idle.
const (
	StateIdle    = "idle"
	StateWaiting = "waiting"
	StateInChat  = "in_chat"
)

// session is one user's entry in the registry. partner is meaningful only
// while state == StateInChat.
type session struct {
	state   string
	partner int64
}

// MatchStatus describes the outcome of a Match call.
type MatchStatus int

const (
	// Matched means a compatible candidate was found; both users are now
	// in chat with each other.
	Matched MatchStatus = iota
	// Enqueued means no candidate was compatible; the user now waits.
	Enqueued
	// AlreadyWaiting means the user was already in the queue.
	AlreadyWaiting
	// AlreadyInChat means the user already has a partner.
	AlreadyInChat
)

// LeaveStatus describes the outcome of a Leave call.
type LeaveStatus int

const (
	// LeftChat means the user was in a chat; both sides are idle again.
	LeftChat LeaveStatus = iota
	// SearchCancelled means the user was waiting and left the queue.
	SearchCancelled
	// NotActive means the user was neither chatting nor waiting.
	NotActive
)

// Registry owns the session table and the waiting queue. It is safe for
// concurrent use by independent per-user flows.
type Registry struct {
	mu       sync.Mutex
	sessions map[int64]*session
	queue    []int64 // user IDs in StateWaiting, insertion order
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]*session)}
}

// StateOf returns the user's current state and, when in chat, the partner ID.
func (r *Registry) StateOf(userID int64) (string, int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[userID]
	if !ok {
		return StateIdle, 0
	}
	return s.state, s.partner
}

// PartnerOf returns the user's chat partner. ok is false unless the user is
// in chat.
func (r *Registry) PartnerOf(userID int64) (int64, bool) {
	state, partner := r.StateOf(userID)
	if state != StateInChat {
		return 0, false
	}
	return partner, true
}

// Match attempts to pair userID with a waiting candidate. The queue is
// scanned in insertion order and the first candidate for which accept
// returns true wins (greedy first-fit; a newer waiter can match before an
// older incompatible one). On a match the candidate leaves the queue and
// both sessions transition to in-chat together. With no acceptable
// candidate, userID is appended to the queue.
//
// The accept callback runs with the registry lock held, so concurrent match
// attempts serialize and can never select the same candidate. Callbacks may
// block on collaborator reads; that round-trip bounds the hold time.
func (r *Registry) Match(userID int64, accept func(candidateID int64) bool) (MatchStatus, int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.stateLocked(userID) {
	case StateWaiting:
		return AlreadyWaiting, 0
	case StateInChat:
		return AlreadyInChat, 0
	}

	for i, candidateID := range r.queue {
		if candidateID == userID {
			continue
		}
		if !accept(candidateID) {
			continue
		}

		r.queue = append(r.queue[:i], r.queue[i+1:]...)
		r.setLocked(userID, StateInChat, candidateID)
		r.setLocked(candidateID, StateInChat, userID)
		return Matched, candidateID
	}

	r.queue = append(r.queue, userID)
	r.setLocked(userID, StateWaiting, 0)
	return Enqueued, 0
}

// Leave takes the user out of whatever they are in: an active chat (the
// partner is reset to idle in the same critical section) or the waiting
// queue. Idle users are left untouched.
func (r *Registry) Leave(userID int64) (LeaveStatus, int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[userID]
	if !ok {
		return NotActive, 0
	}

	switch s.state {
	case StateInChat:
		partnerID := s.partner
		r.setLocked(userID, StateIdle, 0)
		r.setLocked(partnerID, StateIdle, 0)
		return LeftChat, partnerID

	case StateWaiting:
		r.removeFromQueueLocked(userID)
		r.setLocked(userID, StateIdle, 0)
		return SearchCancelled, 0

	default:
		return NotActive, 0
	}
}

// ForceIdle unconditionally resets a user to idle, dropping any queue entry
// and, if paired, resetting the partner too. It is the defensive recovery
// path for consistency faults and is also used on transport disconnect.
func (r *Registry) ForceIdle(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[userID]
	if !ok {
		return
	}
	if s.state == StateInChat {
		r.setLocked(s.partner, StateIdle, 0)
	}
	r.removeFromQueueLocked(userID)
	r.setLocked(userID, StateIdle, 0)
}

// WaitingCount returns the number of users currently queued.
func (r *Registry) WaitingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// ActiveChats returns the number of established chat pairs.
func (r *Registry) ActiveChats() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, s := range r.sessions {
		if s.state == StateInChat {
			n++
		}
	}
	return n / 2
}

// Waiting returns a snapshot of the queue in order.
func (r *Registry) Waiting() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, len(r.queue))
	copy(out, r.queue)
	return out
}

func (r *Registry) stateLocked(userID int64) string {
	if s, ok := r.sessions[userID]; ok {
		return s.state
	}
	return StateIdle
}

func (r *Registry) setLocked(userID int64, state string, partner int64) {
	if state == StateIdle {
		// Idle is equivalent to absence; drop the entry instead of
		// keeping a tombstone per user.
		delete(r.sessions, userID)
		return
	}
	s, ok := r.sessions[userID]
	if !ok {
		s = &session{}
		r.sessions[userID] = s
	}
	s.state = state
	s.partner = partner
}

func (r *Registry) removeFromQueueLocked(userID int64) {
	for i, id := range r.queue {
		if id == userID {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			return
		}
	}
}
