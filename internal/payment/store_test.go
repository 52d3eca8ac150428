package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
)

// newTestStore connects to a local Redis instance, skipping the test when
// none is available.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	t.Cleanup(func() {
		iter := client.Scan(ctx, 0, InvoicePrefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
		client.Close()
	})
	return NewStore(client)
}

func TestCreateAndConfirm(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inv, err := store.Create(ctx, 42)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if inv.ID == "" {
		t.Fatal("invoice ID is empty")
	}
	if inv.AmountMinor != PremiumPriceMinor {
		t.Errorf("amount = %d, want %d", inv.AmountMinor, PremiumPriceMinor)
	}

	userID, err := store.Confirm(ctx, inv.ID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if userID != 42 {
		t.Errorf("userID = %d, want 42", userID)
	}
}

func TestConfirm_Unknown(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Confirm(context.Background(), "no-such-invoice")
	if !errors.Is(err, ErrInvoiceNotFound) {
		t.Fatalf("err = %v, want ErrInvoiceNotFound", err)
	}
}

func TestConfirm_ReplayRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inv, err := store.Create(ctx, 7)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := store.Confirm(ctx, inv.ID); err != nil {
		t.Fatalf("first Confirm: %v", err)
	}
	if _, err := store.Confirm(ctx, inv.ID); !errors.Is(err, ErrInvoiceNotFound) {
		t.Fatalf("replayed Confirm err = %v, want ErrInvoiceNotFound", err)
	}
}
