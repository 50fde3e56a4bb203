package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Kind string

const (
	KindAlert    Kind = "alert"
	KindReminder Kind = "reminder"
)

// Message is one chat post. A non-empty ImageURL makes it a photo with Text
// as the caption.
type Message struct {
	ID       uuid.UUID
	Kind     Kind
	Text     string
	ImageURL string
	TxHash   string
}

// Sender delivers a single message to the chat backend.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// DispatchError is a failed send. The message is dropped, never retried.
type DispatchError struct {
	MessageID uuid.UUID
	Kind      Kind
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s %s: %v", e.Kind, e.MessageID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
