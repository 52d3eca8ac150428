// Package payment handles the premium upsell. Invoices are issued when the
// user asks to buy and held in Redis with a TTL until the payment provider
// confirms them through the HTTP callback:
//
//	Key:   invoice:<invoice_id>
//	Value: <user_id>
//	TTL:   invoice lifetime
//
// The core never talks to the provider directly; capture is the provider's
// concern and only its confirmation callback reaches this package.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// InvoicePrefix is the Redis key prefix for pending invoices.
	InvoicePrefix = "invoice:"

	// InvoiceTTL is how long a pending invoice stays payable.
	InvoiceTTL = 15 * time.Minute

	// PremiumPriceMinor is the premium subscription price in minor
	// currency units (one month).
	PremiumPriceMinor = 10000
)

// ErrInvoiceNotFound is returned when confirming an unknown or expired invoice.
var ErrInvoiceNotFound = errors.New("payment: invoice not found or expired")

// Invoice is a pending premium purchase.
type Invoice struct {
	ID          string
	UserID      int64
	AmountMinor int
}

// Store manages pending invoices in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates an invoice store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Create issues a new pending invoice for the user.
func (s *Store) Create(ctx context.Context, userID int64) (*Invoice, error) {
	inv := &Invoice{
		ID:          uuid.New().String(),
		UserID:      userID,
		AmountMinor: PremiumPriceMinor,
	}

	key := InvoicePrefix + inv.ID
	if err := s.client.Set(ctx, key, userID, InvoiceTTL).Err(); err != nil {
		return nil, fmt.Errorf("payment: create invoice: %w", err)
	}
	return inv, nil
}

// Confirm consumes a pending invoice and returns the paying user's ID.
// Each invoice is confirmable exactly once; replayed provider callbacks get
// ErrInvoiceNotFound.
func (s *Store) Confirm(ctx context.Context, invoiceID string) (int64, error) {
	key := InvoicePrefix + invoiceID

	userID, err := s.client.GetDel(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrInvoiceNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("payment: confirm invoice: %w", err)
	}
	return userID, nil
}
