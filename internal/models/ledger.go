package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction kinds. The transaction log is append-only; a row's sign tells
// the direction (negative = debit), kind tells the origin.
const (
	TxKindEarned    = "earned"
	TxKindSpent     = "spent"
	TxKindPurchased = "purchased"
)

// StartingGrant is credited when a balance row is created lazily on first use.
const StartingGrant int64 = 30

// LowBalanceThreshold triggers a low_balance notification after a debit.
const LowBalanceThreshold int64 = 10

type Balance struct {
	UserID    uuid.UUID `json:"user_id"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Transaction struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Amount      int64     `json:"amount"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}
