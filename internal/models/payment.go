package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Payment statuses. pending is the only non-terminal state; the transition
// into completed happens at most once (enforced by a conditional update).
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

type Payment struct {
	ID               uuid.UUID       `json:"id"`
	UserID           *uuid.UUID      `json:"user_id,omitempty"`
	Amount           int64           `json:"amount"`
	CreditsPurchased int64           `json:"credits_purchased"`
	PaymentMethod    string          `json:"payment_method"`
	Status           string          `json:"status"`
	TransactionID    *string         `json:"transaction_id,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Terminal reports whether no further status transition is permitted.
func (p *Payment) Terminal() bool {
	return p.Status == PaymentStatusCompleted || p.Status == PaymentStatusFailed
}
