package pairing

import (
	"context"
	"log"

	"github.com/pairwise/anonchat/internal/profile"
)

// ProfileSource is the profile lookup contract the engine depends on.
// *profile.Store satisfies it.
type ProfileSource interface {
	Get(ctx context.Context, userID int64) (*profile.Profile, error)
}

// SearchStatus describes the outcome of a search request.
type SearchStatus int

const (
	// SearchMatched means a partner was found and both users are in chat.
	SearchMatched SearchStatus = iota
	// SearchWaiting means the user entered the waiting queue.
	SearchWaiting
	// SearchAlreadyWaiting rejects a search from a user already queued.
	SearchAlreadyWaiting
	// SearchAlreadyInChat rejects a search from a user already chatting.
	SearchAlreadyInChat
	// SearchProfileIncomplete rejects a search until registration is done.
	SearchProfileIncomplete
)

// SearchResult is the outcome of Engine.Search. PartnerID is set only for
// SearchMatched.
type SearchResult struct {
	Status    SearchStatus
	PartnerID int64
}

// Engine orchestrates the registry, the profile store, and the compatibility
// predicate to serve search requests. Matching is request-driven only; there
// is no background scheduler.
type Engine struct {
	registry *Registry
	profiles ProfileSource
}

// NewEngine creates an Engine over the given registry and profile source.
func NewEngine(registry *Registry, profiles ProfileSource) *Engine {
	return &Engine{registry: registry, profiles: profiles}
}

// Registry returns the underlying session registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Search admits a user into a partner search. The caller's profile is read
// before any state is touched, so a profile store failure leaves the
// registry unmodified. Candidate profiles are read per-candidate during the
// scan; a candidate whose read fails is skipped rather than failing the
// whole search.
func (e *Engine) Search(ctx context.Context, userID int64) (SearchResult, error) {
	prof, err := e.profiles.Get(ctx, userID)
	if err != nil {
		return SearchResult{}, err
	}
	if prof == nil || !prof.Complete() {
		return SearchResult{Status: SearchProfileIncomplete}, nil
	}

	status, partnerID := e.registry.Match(userID, func(candidateID int64) bool {
		cand, err := e.profiles.Get(ctx, candidateID)
		if err != nil {
			log.Printf("[pairing] candidate %d profile read failed, skipping: %v", candidateID, err)
			return false
		}
		if cand == nil {
			return false
		}
		return Compatible(prof, cand)
	})

	switch status {
	case Matched:
		return SearchResult{Status: SearchMatched, PartnerID: partnerID}, nil
	case AlreadyWaiting:
		return SearchResult{Status: SearchAlreadyWaiting}, nil
	case AlreadyInChat:
		return SearchResult{Status: SearchAlreadyInChat}, nil
	default:
		return SearchResult{Status: SearchWaiting}, nil
	}
}
