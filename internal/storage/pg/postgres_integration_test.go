//go:build integration

package pg_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/pvzzle/buywatch/internal/storage"
	"github.com/pvzzle/buywatch/internal/storage/pg"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestRepo_PurchaseAndDeliveries(t *testing.T) {
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		dsn = os.Getenv("PG_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_PG_DSN/PG_DSN is not set")
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)

	repo := pg.New(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	_, _ = pool.Exec(ctx, "TRUNCATE deliveries, purchases")

	msgID := uuid.New()
	hash := "0x" + repeat("1", 64)

	p := storage.PurchaseRecord{
		Hash:      hash,
		ChainID:   "56",
		BlockNum:  1000,
		FromAddr:  "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		ToAddr:    "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		ValueWei:  "30000000000000000",
		MessageID: msgID,
	}
	if err := repo.UpsertPurchase(ctx, p); err != nil {
		t.Fatalf("UpsertPurchase: %v", err)
	}
	// same hash again must not fail
	if err := repo.UpsertPurchase(ctx, p); err != nil {
		t.Fatalf("UpsertPurchase again: %v", err)
	}

	if err := repo.AddDelivery(ctx, storage.DeliveryRecord{
		MessageID: msgID,
		Kind:      "alert",
		TxHash:    &hash,
		Status:    storage.DeliverySent,
		At:        time.Now().UTC(),
	}); err != nil {
		t.Fatalf("AddDelivery: %v", err)
	}

	reason := "context deadline exceeded"
	if err := repo.AddDelivery(ctx, storage.DeliveryRecord{
		MessageID: uuid.New(),
		Kind:      "reminder",
		Status:    storage.DeliveryDropped,
		Error:     &reason,
	}); err != nil {
		t.Fatalf("AddDelivery reminder: %v", err)
	}

	sent, err := repo.CountDeliveries(ctx, storage.DeliverySent)
	if err != nil {
		t.Fatalf("CountDeliveries: %v", err)
	}
	if sent != 1 {
		t.Fatalf("expected 1 sent delivery, got=%d", sent)
	}

	dropped, err := repo.CountDeliveries(ctx, storage.DeliveryDropped)
	if err != nil {
		t.Fatalf("CountDeliveries: %v", err)
	}
	if dropped != 1 {
		t.Fatalf("expected 1 dropped delivery, got=%d", dropped)
	}
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
