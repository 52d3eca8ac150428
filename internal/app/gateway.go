// Package app wires the chat service's operations together behind a single
// gateway. Every user-facing entry point passes the moderation gate (profile
// bootstrap + ban check) before any other effect, then dispatches to the
// pairing engine, the relay router, the registration dialogue, or the
// moderation stores.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/pairwise/anonchat/internal/alert"
	"github.com/pairwise/anonchat/internal/metrics"
	"github.com/pairwise/anonchat/internal/pairing"
	"github.com/pairwise/anonchat/internal/payment"
	"github.com/pairwise/anonchat/internal/profile"
	"github.com/pairwise/anonchat/internal/ratelimit"
	"github.com/pairwise/anonchat/internal/register"
	"github.com/pairwise/anonchat/internal/relay"
	"github.com/pairwise/anonchat/internal/report"
)

// User-visible notices produced by the gateway.
const (
	NoticeWelcome = "Welcome! This is an anonymous chat. Use register to fill in " +
		"your profile, then search to find a partner."
	NoticeBanned = "You are banned from using this service."

	NoticeSearching         = "Searching for a partner..."
	NoticePartnerFound      = "Partner found! Say hi."
	NoticeAlreadyWaiting    = "You are already searching for a partner."
	NoticeAlreadyInChat     = "You are already in a chat. Use stop to leave it first."
	NoticeProfileIncomplete = "Please complete registration first. Use register."
	NoticeSearchThrottled   = "You are searching too often. Try again in a minute."

	NoticeSearchCancelled = "Search cancelled."
	NoticeLeftChat        = "You left the chat. Use search to find a new partner."
	NoticePartnerLeft     = "Your partner left the chat. Use search to find a new one."
	NoticeNothingToStop   = "You are not searching or chatting."

	NoticeReportNotInChat = "You can report only while in a chat."
	NoticeReported        = "Report submitted. Thank you."

	NoticePremiumActive = "Premium is now active on your account."
	NoticeNotAdmin      = "You are not allowed to do that."

	NoticeServiceError = "Service temporarily unavailable. Please try again."
)

// ProfileStore is the profile storage contract the gateway depends on.
// *profile.Store satisfies it.
type ProfileStore interface {
	Get(ctx context.Context, userID int64) (*profile.Profile, error)
	CreateIfAbsent(ctx context.Context, userID int64, username string) error
	IsBanned(ctx context.Context, userID int64) (bool, error)
	SetPremium(ctx context.Context, userID int64, premium bool) error
	SetBanned(ctx context.Context, userID int64, banned bool) error
}

// ReportStore persists abuse reports. *report.Store satisfies it.
type ReportStore interface {
	Create(ctx context.Context, reporterID, targetID int64, reason string) error
}

// PaymentStore issues and settles premium invoices. *payment.Store
// satisfies it.
type PaymentStore interface {
	Create(ctx context.Context, userID int64) (*payment.Invoice, error)
	Confirm(ctx context.Context, invoiceID string) (int64, error)
}

// Messenger extends the relay transport with invoice delivery.
type Messenger interface {
	relay.Messenger
	// SendInvoice delivers a pending premium invoice to a user.
	SendInvoice(userID int64, invoiceID string, amountMinor int) error
}

// Gateway dispatches user commands. All methods are safe for concurrent use.
type Gateway struct {
	profiles ProfileStore
	engine   *pairing.Engine
	router   *relay.Router
	form     *register.Form
	reports  ReportStore
	payments PaymentStore
	limiter  relay.Limiter
	alerts   *alert.Publisher
	out      Messenger
	adminID  int64
}

// Config collects the gateway's collaborators.
type Config struct {
	Profiles ProfileStore
	Engine   *pairing.Engine
	Router   *relay.Router
	Form     *register.Form
	Reports  ReportStore
	Payments PaymentStore
	Limiter  relay.Limiter
	Alerts   *alert.Publisher // nil disables moderation alerts
	Out      Messenger
	AdminID  int64 // 0 disables admin commands and report notifications
}

// NewGateway creates a Gateway from cfg.
func NewGateway(cfg Config) *Gateway {
	return &Gateway{
		profiles: cfg.Profiles,
		engine:   cfg.Engine,
		router:   cfg.Router,
		form:     cfg.Form,
		reports:  cfg.Reports,
		payments: cfg.Payments,
		limiter:  cfg.Limiter,
		alerts:   cfg.Alerts,
		out:      cfg.Out,
		adminID:  cfg.AdminID,
	}
}

// gate bootstraps the profile row and rejects banned users. It returns
// false when the caller must stop processing; a banned user receives the
// ban notice and nothing else happens.
func (g *Gateway) gate(ctx context.Context, userID int64, username string) (bool, error) {
	if err := g.profiles.CreateIfAbsent(ctx, userID, username); err != nil {
		g.notify(userID, NoticeServiceError)
		return false, fmt.Errorf("app: bootstrap profile: %w", err)
	}
	banned, err := g.profiles.IsBanned(ctx, userID)
	if err != nil {
		g.notify(userID, NoticeServiceError)
		return false, fmt.Errorf("app: ban check: %w", err)
	}
	if banned {
		g.notify(userID, NoticeBanned)
		return false, nil
	}
	return true, nil
}

// Start handles the initial greeting.
func (g *Gateway) Start(ctx context.Context, userID int64, username string) error {
	ok, err := g.gate(ctx, userID, username)
	if !ok {
		return err
	}
	g.notify(userID, NoticeWelcome)
	return nil
}

// Register begins (or restarts) the registration dialogue.
func (g *Gateway) Register(ctx context.Context, userID int64, username string) error {
	ok, err := g.gate(ctx, userID, username)
	if !ok {
		return err
	}
	g.notify(userID, g.form.Begin(userID))
	return nil
}

// Input routes free text: to the open registration dialogue if one exists,
// to the chat relay otherwise.
func (g *Gateway) Input(ctx context.Context, userID int64, username, text string) error {
	ok, err := g.gate(ctx, userID, username)
	if !ok {
		return err
	}

	if g.form.Active(userID) {
		prompt, err := g.form.Answer(ctx, userID, text)
		if err != nil {
			g.notify(userID, NoticeServiceError)
			return fmt.Errorf("app: registration answer: %w", err)
		}
		g.notify(userID, prompt)
		return nil
	}

	return g.router.Deliver(ctx, userID, text)
}

// Search admits the user into a partner search. On a match both sides are
// notified.
func (g *Gateway) Search(ctx context.Context, userID int64, username string) error {
	ok, err := g.gate(ctx, userID, username)
	if !ok {
		return err
	}

	if !g.limiter.Allow(ctx, userID, ratelimit.RuleSearch) {
		g.notify(userID, NoticeSearchThrottled)
		return nil
	}

	result, err := g.engine.Search(ctx, userID)
	if err != nil {
		g.notify(userID, NoticeServiceError)
		return fmt.Errorf("app: search: %w", err)
	}

	switch result.Status {
	case pairing.SearchMatched:
		g.notify(userID, NoticePartnerFound)
		g.notify(result.PartnerID, NoticePartnerFound)
		metrics.MatchesTotal.Inc()
	case pairing.SearchWaiting:
		g.notify(userID, NoticeSearching)
	case pairing.SearchAlreadyWaiting:
		g.notify(userID, NoticeAlreadyWaiting)
	case pairing.SearchAlreadyInChat:
		g.notify(userID, NoticeAlreadyInChat)
	case pairing.SearchProfileIncomplete:
		g.notify(userID, NoticeProfileIncomplete)
	}

	g.syncGauges()
	return nil
}

// Stop leaves the current chat or cancels a pending search.
func (g *Gateway) Stop(ctx context.Context, userID int64, username string) error {
	ok, err := g.gate(ctx, userID, username)
	if !ok {
		return err
	}

	status, partnerID := g.engine.Registry().Leave(userID)
	switch status {
	case pairing.LeftChat:
		g.notify(userID, NoticeLeftChat)
		g.notify(partnerID, NoticePartnerLeft)
	case pairing.SearchCancelled:
		g.notify(userID, NoticeSearchCancelled)
	default:
		g.notify(userID, NoticeNothingToStop)
	}

	g.syncGauges()
	return nil
}

// Report files an abuse report against the user's current partner. Reports
// are accepted only while in a chat.
func (g *Gateway) Report(ctx context.Context, userID int64, username, reason string) error {
	ok, err := g.gate(ctx, userID, username)
	if !ok {
		return err
	}

	partnerID, inChat := g.engine.Registry().PartnerOf(userID)
	if !inChat {
		g.notify(userID, NoticeReportNotInChat)
		return nil
	}

	if reason == "" {
		reason = report.DefaultReason
	}
	if err := g.reports.Create(ctx, userID, partnerID, reason); err != nil {
		g.notify(userID, NoticeServiceError)
		return fmt.Errorf("app: create report: %w", err)
	}

	metrics.ReportsTotal.Inc()
	g.alerts.Report(userID, partnerID, reason)
	if g.adminID != 0 {
		g.notify(g.adminID, fmt.Sprintf("Report: user %d reported user %d: %s", userID, partnerID, reason))
	}
	g.notify(userID, NoticeReported)
	return nil
}

// Premium sends the premium pitch with the current price.
func (g *Gateway) Premium(ctx context.Context, userID int64, username string) error {
	ok, err := g.gate(ctx, userID, username)
	if !ok {
		return err
	}
	g.notify(userID, fmt.Sprintf(
		"Premium marks your messages with a %q badge. Price: %d.%02d. Use buy to purchase.",
		"[Premium]", payment.PremiumPriceMinor/100, payment.PremiumPriceMinor%100))
	return nil
}

// Buy issues a premium invoice and delivers it to the user.
func (g *Gateway) Buy(ctx context.Context, userID int64, username string) error {
	ok, err := g.gate(ctx, userID, username)
	if !ok {
		return err
	}

	inv, err := g.payments.Create(ctx, userID)
	if err != nil {
		g.notify(userID, NoticeServiceError)
		return fmt.Errorf("app: create invoice: %w", err)
	}
	if err := g.out.SendInvoice(userID, inv.ID, inv.AmountMinor); err != nil {
		log.Printf("[app] invoice to %d: %v", userID, err)
	}
	return nil
}

// ConfirmPayment settles a paid invoice: the invoice is consumed, the payer
// becomes premium, and the payer is notified. Called from the payment
// provider callback, not from a user command, so it does not pass the gate.
func (g *Gateway) ConfirmPayment(ctx context.Context, invoiceID string) (int64, error) {
	userID, err := g.payments.Confirm(ctx, invoiceID)
	if err != nil {
		return 0, fmt.Errorf("app: confirm invoice: %w", err)
	}
	if err := g.profiles.SetPremium(ctx, userID, true); err != nil {
		return 0, fmt.Errorf("app: grant premium: %w", err)
	}
	g.notify(userID, NoticePremiumActive)
	return userID, nil
}

// AdminBan sets the banned flag on targetID. Only the configured admin may
// call it. The ban takes effect on the target's next action.
func (g *Gateway) AdminBan(ctx context.Context, actorID, targetID int64) error {
	if g.adminID == 0 || actorID != g.adminID {
		g.notify(actorID, NoticeNotAdmin)
		return nil
	}
	if err := g.profiles.SetBanned(ctx, targetID, true); err != nil {
		g.notify(actorID, NoticeServiceError)
		return fmt.Errorf("app: ban user %d: %w", targetID, err)
	}
	g.alerts.Ban(targetID, true)
	g.notify(actorID, fmt.Sprintf("User %d banned.", targetID))
	return nil
}

// AdminUnban clears the banned flag on targetID.
func (g *Gateway) AdminUnban(ctx context.Context, actorID, targetID int64) error {
	if g.adminID == 0 || actorID != g.adminID {
		g.notify(actorID, NoticeNotAdmin)
		return nil
	}
	if err := g.profiles.SetBanned(ctx, targetID, false); err != nil {
		g.notify(actorID, NoticeServiceError)
		return fmt.Errorf("app: unban user %d: %w", targetID, err)
	}
	g.alerts.Ban(targetID, false)
	g.notify(actorID, fmt.Sprintf("User %d unbanned.", targetID))
	return nil
}

// Disconnect cleans up after a dropped connection: any open registration
// dialogue is abandoned and the user leaves their chat or search, with the
// partner notified.
func (g *Gateway) Disconnect(userID int64) {
	g.form.Cancel(userID)

	status, partnerID := g.engine.Registry().Leave(userID)
	if status == pairing.LeftChat {
		g.notify(partnerID, NoticePartnerLeft)
	}

	g.syncGauges()
}

// notify sends a notice, logging delivery failures. Delivery failure is not
// an operation failure; the user may simply be offline.
func (g *Gateway) notify(userID int64, text string) {
	if err := g.out.SendNotice(userID, text); err != nil {
		log.Printf("[app] notice to %d: %v", userID, err)
	}
}

func (g *Gateway) syncGauges() {
	registry := g.engine.Registry()
	metrics.WaitingUsers.Set(float64(registry.WaitingCount()))
	metrics.ActiveChats.Set(float64(registry.ActiveChats()))
}
