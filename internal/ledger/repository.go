package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/padhaihub/backend/internal/models"
)

// ErrInvariantViolation means a balance no longer matches the sum of its
// transaction log. Something bypassed the conditional-update primitives;
// this is fatal and must never be swallowed.
var ErrInvariantViolation = errors.New("ledger invariant violation")

// InsufficientFundsError carries the balance that remained after the debit
// was refused, so callers can show it to the user.
type InsufficientFundsError struct {
	Remaining int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds (remaining balance %d)", e.Remaining)
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensureBalance creates the balance row lazily with the starting grant.
// The grant writes a matching earned transaction so the invariant
// balance == SUM(transactions.amount) holds from the very first row.
func (r *Repository) ensureBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	tag, err := tx.Exec(ctx, `
		INSERT INTO balances (user_id, balance) VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, models.StartingGrant)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return nil
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (id, user_id, amount, kind, description)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), userID, models.StartingGrant, models.TxKindEarned, "starting grant")
	return err
}

// Debit atomically decreases the balance by amount and appends a spent
// transaction, but only if balance >= amount. The check and the decrement are
// a single conditional UPDATE: concurrent debits serialize on the row and can
// never drive the balance negative.
func (r *Repository) Debit(ctx context.Context, userID uuid.UUID, amount int64, description string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if err := r.ensureBalance(ctx, tx, userID); err != nil {
		return 0, err
	}

	var remaining int64
	err = tx.QueryRow(ctx, `
		UPDATE balances SET balance = balance - $1, updated_at = now()
		WHERE user_id = $2 AND balance >= $1
		RETURNING balance
	`, amount, userID).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := tx.QueryRow(ctx, `
			SELECT balance FROM balances WHERE user_id = $1
		`, userID).Scan(&remaining); err != nil {
			return 0, err
		}
		if err := tx.Commit(ctx); err != nil {
			return 0, err
		}
		return remaining, &InsufficientFundsError{Remaining: remaining}
	}
	if err != nil {
		return 0, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (id, user_id, amount, kind, description)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), userID, -amount, models.TxKindSpent, description)
	if err != nil {
		return 0, err
	}
	return remaining, tx.Commit(ctx)
}

// CreditTx increases the balance and appends a transaction inside the
// caller's transaction, so settlement and award flows can make the credit
// atomic with their one-time state transition. Idempotency is the caller's
// job: the credit must be guarded behind a conditional transition that can
// only succeed once.
func (r *Repository) CreditTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, kind, description string) (int64, error) {
	if err := r.ensureBalance(ctx, tx, userID); err != nil {
		return 0, err
	}
	var newBalance int64
	err := tx.QueryRow(ctx, `
		UPDATE balances SET balance = balance + $1, updated_at = now()
		WHERE user_id = $2
		RETURNING balance
	`, amount, userID).Scan(&newBalance)
	if err != nil {
		return 0, err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (id, user_id, amount, kind, description)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), userID, amount, kind, description)
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

// Credit runs CreditTx in its own transaction.
func (r *Repository) Credit(ctx context.Context, userID uuid.UUID, amount int64, kind, description string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)
	newBalance, err := r.CreditTx(ctx, tx, userID, amount, kind, description)
	if err != nil {
		return 0, err
	}
	return newBalance, tx.Commit(ctx)
}

// Balance returns the current balance, creating the row lazily.
func (r *Repository) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)
	if err := r.ensureBalance(ctx, tx, userID); err != nil {
		return 0, err
	}
	var balance int64
	if err := tx.QueryRow(ctx, `
		SELECT balance FROM balances WHERE user_id = $1
	`, userID).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, tx.Commit(ctx)
}

// History returns the transaction log, newest first.
func (r *Repository) History(ctx context.Context, userID uuid.UUID) ([]*models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, amount, kind, description, created_at
		FROM transactions WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Kind, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}

// Audit recomputes SUM(transactions.amount) for the user and compares it to
// the stored balance. A mismatch returns ErrInvariantViolation.
func (r *Repository) Audit(ctx context.Context, userID uuid.UUID) error {
	var balance, logged int64
	err := r.pool.QueryRow(ctx, `
		SELECT b.balance,
		       COALESCE((SELECT SUM(t.amount) FROM transactions t WHERE t.user_id = b.user_id), 0)
		FROM balances b WHERE b.user_id = $1
	`, userID).Scan(&balance, &logged)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if balance != logged {
		return fmt.Errorf("%w: user %s balance %d, transaction sum %d", ErrInvariantViolation, userID, balance, logged)
	}
	return nil
}
