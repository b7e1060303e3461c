package submissions

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/padhaihub/backend/internal/models"
)

var ErrSubmissionNotFound = errors.New("submission not found")

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, s *models.Submission) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO submissions (id, user_id, group_id, submission_type, status, word_count, can_use_for_training)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, s.ID, s.UserID, s.GroupID, s.SubmissionType, s.Status, s.WordCount, s.CanUseForTraining).Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	var s models.Submission
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, group_id, submission_type, status, quality_score, word_count,
		       credits_awarded, can_use_for_training, used_in_training, created_at, updated_at
		FROM submissions WHERE id = $1
	`, id).Scan(&s.ID, &s.UserID, &s.GroupID, &s.SubmissionType, &s.Status, &s.QualityScore, &s.WordCount,
		&s.CreditsAwarded, &s.CanUseForTraining, &s.UsedInTraining, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSubmissionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// TryApprove is the award guard: a conditional update that only succeeds
// while the submission is still reviewable. It sets quality_score and
// credits_awarded in the same statement, so credits_awarded is written
// exactly once. Returns whether THIS call performed the transition.
func (r *Repository) TryApprove(ctx context.Context, tx pgx.Tx, id uuid.UUID, qualityScore int, credits int64) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE submissions
		SET status = $2, quality_score = $3, credits_awarded = $4, updated_at = now()
		WHERE id = $1 AND status IN ($5, $6)
	`, id, models.SubmissionStatusApproved, qualityScore, credits,
		models.SubmissionStatusPending, models.SubmissionStatusUnderReview)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// TryTransition moves a reviewable submission to a non-awarding status
// (rejected, needs_revision, under_review). Same conditional shape as
// TryApprove, no ledger effect.
func (r *Repository) TryTransition(ctx context.Context, id uuid.UUID, toStatus string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE submissions SET status = $2, updated_at = now()
		WHERE id = $1 AND status IN ($3, $4)
	`, id, toStatus, models.SubmissionStatusPending, models.SubmissionStatusUnderReview)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// VerifiedGroupMembers reads the group membership relation. This subsystem
// never writes it.
func (r *Repository) VerifiedGroupMembers(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id FROM group_members WHERE group_id = $1 AND verified
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		members = append(members, id)
	}
	return members, rows.Err()
}

// CountApprovedByUser feeds the achievement checks.
func (r *Repository) CountApprovedByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM submissions WHERE user_id = $1 AND status = $2
	`, userID, models.SubmissionStatusApproved).Scan(&n)
	return n, err
}

// GrantAchievement inserts the one-time grant row. The (user_id, code)
// primary key plus ON CONFLICT DO NOTHING make re-invocation a no-op:
// only the call that actually inserted may credit the bonus.
func (r *Repository) GrantAchievement(ctx context.Context, tx pgx.Tx, userID uuid.UUID, code string, credits int64) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO achievements (user_id, code, credits)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, code) DO NOTHING
	`, userID, code, credits)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
