package storage

import (
	"time"

	"github.com/google/uuid"
)

type PurchaseRecord struct {
	Hash      string
	ChainID   string
	BlockNum  uint64
	FromAddr  string
	ToAddr    string
	ValueWei  string // big.Int as decimal string
	MessageID uuid.UUID
}

type DeliveryStatus string

const (
	DeliverySent    DeliveryStatus = "sent"
	DeliveryDropped DeliveryStatus = "dropped"
)

type DeliveryRecord struct {
	MessageID uuid.UUID
	Kind      string
	TxHash    *string // nil for reminders
	Status    DeliveryStatus
	Error     *string
	At        time.Time
}
