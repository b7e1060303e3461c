package submissions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/padhaihub/backend/internal/models"
	"github.com/padhaihub/backend/internal/notify"
)

// ErrAlreadyReviewed means the submission already left the reviewable states;
// the conditional approve/reject update found nothing to transition.
var ErrAlreadyReviewed = errors.New("submission already reviewed")

// Achievement bonus amounts.
const (
	bonusFirstApproval int64 = 10
	bonusFiveApprovals int64 = 50
	bonusTrainingOptIn int64 = 15
)

// Repo is the submission storage contract the service depends on.
type Repo interface {
	Create(ctx context.Context, s *models.Submission) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Submission, error)
	TryApprove(ctx context.Context, tx pgx.Tx, id uuid.UUID, qualityScore int, credits int64) (bool, error)
	TryTransition(ctx context.Context, id uuid.UUID, toStatus string) (bool, error)
	VerifiedGroupMembers(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error)
	CountApprovedByUser(ctx context.Context, userID uuid.UUID) (int, error)
	GrantAchievement(ctx context.Context, tx pgx.Tx, userID uuid.UUID, code string, credits int64) (bool, error)
}

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Ledger is the subset of the ledger service awarding needs.
type Ledger interface {
	CreditTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, kind, description string) (int64, error)
	FlushBalance(ctx context.Context, userID uuid.UUID)
}

type Service interface {
	Create(ctx context.Context, userID uuid.UUID, groupID *uuid.UUID, submissionType string, wordCount int, trainingOptIn bool) (*models.Submission, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Submission, error)
	PreviewAward(ctx context.Context, id uuid.UUID, qualityScore int) (int64, error)
	Approve(ctx context.Context, id uuid.UUID, qualityScore int) (*models.Submission, error)
	Reject(ctx context.Context, id uuid.UUID) error
	RequestRevision(ctx context.Context, id uuid.UUID) error
	CheckAchievements(ctx context.Context, userID uuid.UUID, trainingOptIn bool) error
}

type service struct {
	db      TxBeginner
	repo    Repo
	ledger  Ledger
	emitter notify.Emitter
	log     *slog.Logger
}

func NewService(db TxBeginner, repo Repo, ledger Ledger, emitter notify.Emitter, log *slog.Logger) Service {
	if emitter == nil {
		emitter = notify.NopEmitter{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &service{db: db, repo: repo, ledger: ledger, emitter: emitter, log: log}
}

var _ Service = (*service)(nil)

func (s *service) Create(ctx context.Context, userID uuid.UUID, groupID *uuid.UUID, submissionType string, wordCount int, trainingOptIn bool) (*models.Submission, error) {
	if submissionType == "" {
		submissionType = models.SubmissionTypeNotes
	}
	sub := &models.Submission{
		ID:                uuid.New(),
		UserID:            userID,
		GroupID:           groupID,
		SubmissionType:    submissionType,
		Status:            models.SubmissionStatusPending,
		WordCount:         wordCount,
		CanUseForTraining: trainingOptIn,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	return s.repo.GetByID(ctx, id)
}

// PreviewAward runs the pure calculator against a hypothetical score.
func (s *service) PreviewAward(ctx context.Context, id uuid.UUID, qualityScore int) (int64, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	return CalculateAward(sub.SubmissionType, qualityScore, sub.WordCount, sub.CanUseForTraining), nil
}

// Approve flips the submission to approved and pays out, all behind the
// conditional status transition. The submitter receives the full award; each
// other verified group member receives the floor share. Every credit happens
// in the same database transaction as the transition, so a replayed approval
// (which loses the conditional update) can never double-pay.
func (s *service) Approve(ctx context.Context, id uuid.UUID, qualityScore int) (*models.Submission, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	credits := CalculateAward(sub.SubmissionType, qualityScore, sub.WordCount, sub.CanUseForTraining)

	var others []uuid.UUID
	if sub.GroupID != nil {
		members, err := s.repo.VerifiedGroupMembers(ctx, *sub.GroupID)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if m != sub.UserID {
				others = append(others, m)
			}
		}
	}
	share := GroupShare(credits, len(others))

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	first, err := s.repo.TryApprove(ctx, tx, id, qualityScore, credits)
	if err != nil {
		return nil, err
	}
	if !first {
		return nil, ErrAlreadyReviewed
	}

	if credits > 0 {
		if _, err := s.ledger.CreditTx(ctx, tx, sub.UserID, credits, models.TxKindEarned,
			fmt.Sprintf("submission approved %s", id)); err != nil {
			return nil, err
		}
		if share > 0 {
			for _, member := range others {
				if _, err := s.ledger.CreditTx(ctx, tx, member, share, models.TxKindEarned,
					fmt.Sprintf("group share for submission %s", id)); err != nil {
					return nil, err
				}
			}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.ledger.FlushBalance(ctx, sub.UserID)
	if credits > 0 {
		s.emitCreditsAwarded(ctx, sub.UserID, credits, id)
		if share > 0 {
			for _, member := range others {
				s.ledger.FlushBalance(ctx, member)
				s.emitCreditsAwarded(ctx, member, share, id)
			}
		}
	}

	if err := s.CheckAchievements(ctx, sub.UserID, sub.CanUseForTraining); err != nil {
		// Achievement bonuses are guarded by their own one-time grants; a
		// failure here is retried on the next check, not rolled into the award.
		s.log.Error("achievement check failed", "user_id", sub.UserID, "error", err)
	}

	return s.repo.GetByID(ctx, id)
}

func (s *service) Reject(ctx context.Context, id uuid.UUID) error {
	first, err := s.repo.TryTransition(ctx, id, models.SubmissionStatusRejected)
	if err != nil {
		return err
	}
	if !first {
		return ErrAlreadyReviewed
	}
	return nil
}

func (s *service) RequestRevision(ctx context.Context, id uuid.UUID) error {
	first, err := s.repo.TryTransition(ctx, id, models.SubmissionStatusNeedsRevision)
	if err != nil {
		return err
	}
	if !first {
		return ErrAlreadyReviewed
	}
	return nil
}

// CheckAchievements awards one-time bonuses. Safe to re-invoke at any time:
// each grant is guarded by the achievements primary key, and only the call
// that actually inserted the row credits the bonus.
func (s *service) CheckAchievements(ctx context.Context, userID uuid.UUID, trainingOptIn bool) error {
	approved, err := s.repo.CountApprovedByUser(ctx, userID)
	if err != nil {
		return err
	}
	if approved >= 1 {
		if err := s.grant(ctx, userID, models.AchievementFirstApproval, bonusFirstApproval); err != nil {
			return err
		}
	}
	if approved >= 5 {
		if err := s.grant(ctx, userID, models.AchievementFiveApprovals, bonusFiveApprovals); err != nil {
			return err
		}
	}
	if trainingOptIn {
		if err := s.grant(ctx, userID, models.AchievementTrainingOptIn, bonusTrainingOptIn); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) grant(ctx context.Context, userID uuid.UUID, code string, credits int64) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	inserted, err := s.repo.GrantAchievement(ctx, tx, userID, code, credits)
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}
	if _, err := s.ledger.CreditTx(ctx, tx, userID, credits, models.TxKindEarned,
		"achievement: "+code); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.ledger.FlushBalance(ctx, userID)
	s.emitter.Emit(ctx, notify.Event{
		UserID:   userID,
		Type:     notify.EventAchievementUnlocked,
		Title:    "Achievement unlocked",
		Message:  fmt.Sprintf("You earned %d bonus credits for %q.", credits, code),
		Priority: notify.PriorityLow,
		Metadata: map[string]string{"code": code},
	})
	return nil
}

func (s *service) emitCreditsAwarded(ctx context.Context, userID uuid.UUID, credits int64, submissionID uuid.UUID) {
	s.emitter.Emit(ctx, notify.Event{
		UserID:   userID,
		Type:     notify.EventCreditsAwarded,
		Title:    "Credits awarded",
		Message:  fmt.Sprintf("You earned %d credits for an approved submission.", credits),
		Priority: notify.PriorityNormal,
		Metadata: map[string]string{"submission_id": submissionID.String()},
	})
}
