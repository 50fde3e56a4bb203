package storage

import "context"

type Repository interface {
	EnsureSchema(ctx context.Context) error

	UpsertPurchase(ctx context.Context, p PurchaseRecord) error
	AddDelivery(ctx context.Context, d DeliveryRecord) error
}

// Nop is used when no journal database is configured.
type Nop struct{}

func (Nop) EnsureSchema(context.Context) error                 { return nil }
func (Nop) UpsertPurchase(context.Context, PurchaseRecord) error { return nil }
func (Nop) AddDelivery(context.Context, DeliveryRecord) error    { return nil }
