package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/padhaihub/backend/internal/models"
	"github.com/padhaihub/backend/internal/notify"
)

// Repo is the subset of the ledger repository the service depends on.
// Tests substitute an in-memory implementation with the same atomicity
// semantics.
type Repo interface {
	Debit(ctx context.Context, userID uuid.UUID, amount int64, description string) (int64, error)
	Credit(ctx context.Context, userID uuid.UUID, amount int64, kind, description string) (int64, error)
	CreditTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, kind, description string) (int64, error)
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	History(ctx context.Context, userID uuid.UUID) ([]*models.Transaction, error)
	Audit(ctx context.Context, userID uuid.UUID) error
}

// Service exposes the ledger operations. Callers that need a credit atomic
// with their own state transition use CreditTx inside their transaction and
// call FlushBalance after commit.
type Service interface {
	Debit(ctx context.Context, userID uuid.UUID, amount int64, description string) (int64, error)
	Credit(ctx context.Context, userID uuid.UUID, amount int64, kind, description string) (int64, error)
	CreditTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, kind, description string) (int64, error)
	Refund(ctx context.Context, userID uuid.UUID, amount int64, reason string) (int64, error)
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	History(ctx context.Context, userID uuid.UUID) ([]*models.Transaction, error)
	Audit(ctx context.Context, userID uuid.UUID) error
	FlushBalance(ctx context.Context, userID uuid.UUID)
}

type service struct {
	repo    Repo
	cache   BalanceCache
	emitter notify.Emitter
}

func NewService(repo Repo, cache BalanceCache, emitter notify.Emitter) Service {
	if cache == nil {
		cache = NopBalanceCache{}
	}
	if emitter == nil {
		emitter = notify.NopEmitter{}
	}
	return &service{repo: repo, cache: cache, emitter: emitter}
}

var _ Service = (*service)(nil)

func (s *service) Debit(ctx context.Context, userID uuid.UUID, amount int64, description string) (int64, error) {
	if amount <= 0 {
		return 0, errors.New("debit amount must be positive")
	}
	remaining, err := s.repo.Debit(ctx, userID, amount, description)
	if err != nil {
		return remaining, err
	}
	s.cache.Invalidate(ctx, userID)
	// Emit only on the debit that crosses the threshold, not on every debit
	// below it.
	if remaining < models.LowBalanceThreshold && remaining+amount >= models.LowBalanceThreshold {
		s.emitter.Emit(ctx, notify.Event{
			UserID:   userID,
			Type:     notify.EventLowBalance,
			Title:    "Credits running low",
			Message:  fmt.Sprintf("Only %d credits left on your account.", remaining),
			Priority: notify.PriorityNormal,
		})
	}
	return remaining, nil
}

func (s *service) Credit(ctx context.Context, userID uuid.UUID, amount int64, kind, description string) (int64, error) {
	if amount <= 0 {
		return 0, errors.New("credit amount must be positive")
	}
	newBalance, err := s.repo.Credit(ctx, userID, amount, kind, description)
	if err != nil {
		return 0, err
	}
	s.cache.Invalidate(ctx, userID)
	return newBalance, nil
}

func (s *service) CreditTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, kind, description string) (int64, error) {
	return s.repo.CreditTx(ctx, tx, userID, amount, kind, description)
}

// Refund credits back an amount after a paid operation failed downstream.
// Tagged in the description so the audit trail distinguishes it from earnings.
func (s *service) Refund(ctx context.Context, userID uuid.UUID, amount int64, reason string) (int64, error) {
	return s.Credit(ctx, userID, amount, models.TxKindEarned, "refund: "+reason)
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	if cached, ok := s.cache.Get(ctx, userID); ok {
		return cached, nil
	}
	balance, err := s.repo.Balance(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.cache.Set(ctx, userID, balance)
	return balance, nil
}

func (s *service) History(ctx context.Context, userID uuid.UUID) ([]*models.Transaction, error) {
	return s.repo.History(ctx, userID)
}

func (s *service) Audit(ctx context.Context, userID uuid.UUID) error {
	return s.repo.Audit(ctx, userID)
}

func (s *service) FlushBalance(ctx context.Context, userID uuid.UUID) {
	s.cache.Invalidate(ctx, userID)
}
