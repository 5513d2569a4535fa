package domain

import (
	"fmt"
	"time"
)

// ConversationTurn is one persisted exchange: the user query, a reference to
// the assembled context it was answered with, and the response. Turns are
// append-only; this subsystem never mutates or deletes them.
type ConversationTurn struct {
	ConversationID string
	Sequence       int64
	IdempotencyKey string
	UserMessage    string
	ContextRef     string
	Response       string
	CreatedAt      time.Time
}

// ValidateConversationTurn checks the fields required before a turn may be
// appended to the durable store.
func ValidateConversationTurn(t *ConversationTurn) error {
	if t == nil {
		return fmt.Errorf("conversation turn cannot be nil")
	}
	if t.ConversationID == "" {
		return fmt.Errorf("conversation turn ConversationID is required")
	}
	if t.IdempotencyKey == "" {
		return fmt.Errorf("conversation turn IdempotencyKey is required")
	}
	if t.UserMessage == "" {
		return fmt.Errorf("conversation turn UserMessage is required")
	}
	return nil
}
