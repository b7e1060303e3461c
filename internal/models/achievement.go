package models

import (
	"time"

	"github.com/google/uuid"
)

// Achievement codes awarded by the post-approval checks. The (user_id, code)
// primary key is the one-time-grant guard.
const (
	AchievementFirstApproval = "first_approval"
	AchievementFiveApprovals = "five_approvals"
	AchievementTrainingOptIn = "training_opt_in"
)

type Achievement struct {
	UserID    uuid.UUID `json:"user_id"`
	Code      string    `json:"code"`
	Credits   int64     `json:"credits"`
	GrantedAt time.Time `json:"granted_at"`
}
