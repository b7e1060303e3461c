package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/padhaihub/backend/internal/models"
)

var ErrPaymentNotFound = errors.New("payment not found")

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts the pending row inside the caller's transaction, so the
// reconcile job enqueue commits or rolls back together with it.
func (r *Repository) Create(ctx context.Context, tx pgx.Tx, p *models.Payment) error {
	return tx.QueryRow(ctx, `
		INSERT INTO payments (id, user_id, amount, credits_purchased, payment_method, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, '{}'::jsonb))
		RETURNING created_at, updated_at
	`, p.ID, p.UserID, p.Amount, p.CreditsPurchased, p.PaymentMethod, p.Status, p.Metadata).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, amount, credits_purchased, payment_method, status, transaction_id, metadata, created_at, updated_at
		FROM payments WHERE id = $1
	`, id).Scan(&p.ID, &p.UserID, &p.Amount, &p.CreditsPurchased, &p.PaymentMethod, &p.Status, &p.TransactionID, &p.Metadata, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, amount, credits_purchased, payment_method, status, transaction_id, metadata, created_at, updated_at
		FROM payments WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Payment
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(&p.ID, &p.UserID, &p.Amount, &p.CreditsPurchased, &p.PaymentMethod, &p.Status, &p.TransactionID, &p.Metadata, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &p)
	}
	return list, rows.Err()
}

// TryComplete performs the one conditional update the whole settlement design
// rests on: pending -> completed, recording the external transaction id. It
// returns whether THIS call performed the transition. Only the caller that
// gets true may credit the purchase; replays and races get false and must not
// touch the ledger.
func (r *Repository) TryComplete(ctx context.Context, tx pgx.Tx, id uuid.UUID, externalTxID string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE payments SET status = $2, transaction_id = $3, updated_at = now()
		WHERE id = $1 AND status = $4
	`, id, models.PaymentStatusCompleted, externalTxID, models.PaymentStatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed conditionally transitions pending -> failed. A no-op if the
// payment is already terminal; returns whether this call made the transition.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payments SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
	`, id, models.PaymentStatusFailed, models.PaymentStatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
