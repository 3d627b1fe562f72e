// Package transcript persists the caller and assistant turns of each call.
package transcript

import (
	"context"
	"time"
)

const (
	RoleCaller    = "caller"
	RoleAssistant = "assistant"
)

// Turn is one utterance within a call.
type Turn struct {
	ID          string    `json:"id"`
	CallSID     string    `json:"call_sid"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists and retrieves call turns. Recent returns turns oldest first.
type Store interface {
	SaveTurn(ctx context.Context, turn Turn) error
	Recent(ctx context.Context, callSID string, limit int) ([]Turn, error)
	Close() error
}
