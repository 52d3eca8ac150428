// Package relay forwards chat text between paired partners. The router
// decides whether an inbound message is deliverable (session validity,
// hygiene limits, rate limit, word filter) and annotates messages from
// premium senders. Delivery is fire-and-forget; transport failures are the
// transport layer's concern.
package relay

import (
	"context"
	"fmt"
	"log"

	"github.com/pairwise/anonchat/internal/metrics"
	"github.com/pairwise/anonchat/internal/moderation"
	"github.com/pairwise/anonchat/internal/pairing"
	"github.com/pairwise/anonchat/internal/ratelimit"
)

// PremiumPrefix is prepended to messages sent by premium users.
const PremiumPrefix = "[Premium] "

// User-visible notices produced by the router.
const (
	NoticeNotInChat   = "You are not in a chat. Use search to find a partner."
	NoticeBlocked     = "Your message contains a banned word and was not delivered."
	NoticeSpam        = "Your message looks like spam and was not delivered."
	NoticeRateLimited = "You are sending messages too fast. Slow down."
	NoticeStateError  = "Something went wrong with your chat. Please search again."
)

// Messenger is the outbound side of the transport layer.
type Messenger interface {
	// SendText delivers relayed chat text to a user.
	SendText(userID int64, text string) error
	// SendNotice delivers a status or policy message to a user.
	SendNotice(userID int64, text string) error
	// SendTyping shows a typing indicator to a user.
	SendTyping(userID int64) error
}

// Limiter throttles message delivery per sender. *ratelimit.Limiter
// satisfies it.
type Limiter interface {
	Allow(ctx context.Context, userID int64, rule ratelimit.Rule) bool
}

// Router routes inbound chat text to the sender's partner.
type Router struct {
	registry *pairing.Registry
	profiles pairing.ProfileSource
	filter   *moderation.Filter
	limiter  Limiter
	out      Messenger
}

// NewRouter creates a Router over the given collaborators.
func NewRouter(registry *pairing.Registry, profiles pairing.ProfileSource, filter *moderation.Filter, limiter Limiter, out Messenger) *Router {
	return &Router{
		registry: registry,
		profiles: profiles,
		filter:   filter,
		limiter:  limiter,
		out:      out,
	}
}

// Deliver processes one inbound text message from userID. Every rejection
// produces exactly one notice to the sender and nothing to the partner.
// The returned error is non-nil only for collaborator failures; policy
// rejections are not errors.
func (r *Router) Deliver(ctx context.Context, userID int64, text string) error {
	state, partnerID := r.registry.StateOf(userID)
	if state != pairing.StateInChat {
		r.notify(userID, NoticeNotInChat)
		return nil
	}

	if partnerID == 0 {
		// Unreachable while the registry upholds symmetric pairing;
		// recover by resetting the user rather than crashing.
		log.Printf("[relay] consistency fault: user %d in chat without partner", userID)
		r.registry.ForceIdle(userID)
		r.notify(userID, NoticeStateError)
		return nil
	}

	if err := ValidateMessage(text); err != nil {
		r.notify(userID, fmt.Sprintf("Message rejected: %v.", err))
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return nil
	}

	if !r.limiter.Allow(ctx, userID, ratelimit.RuleMessage) {
		r.notify(userID, NoticeRateLimited)
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return nil
	}

	if result := r.filter.Check(text); result.Blocked {
		log.Printf("[relay] blocked message from %d: reason=%s term=%q", userID, result.Reason, result.Term)
		if result.Reason == "spam_pattern" {
			r.notify(userID, NoticeSpam)
		} else {
			r.notify(userID, NoticeBlocked)
		}
		metrics.MessagesTotal.WithLabelValues("blocked").Inc()
		return nil
	}

	prof, err := r.profiles.Get(ctx, userID)
	if err != nil {
		r.notify(userID, NoticeStateError)
		return fmt.Errorf("relay: sender profile: %w", err)
	}

	out := text
	if prof != nil && prof.Premium {
		out = PremiumPrefix + text
	}

	if err := r.out.SendTyping(partnerID); err != nil {
		log.Printf("[relay] typing indicator to %d: %v", partnerID, err)
	}
	if err := r.out.SendText(partnerID, out); err != nil {
		log.Printf("[relay] deliver to %d: %v", partnerID, err)
	}
	metrics.MessagesTotal.WithLabelValues("relayed").Inc()
	return nil
}

// notify sends a notice to the sender, logging delivery failures.
func (r *Router) notify(userID int64, text string) {
	if err := r.out.SendNotice(userID, text); err != nil {
		log.Printf("[relay] notice to %d: %v", userID, err)
	}
}
