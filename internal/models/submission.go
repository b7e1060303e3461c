package models

import (
	"time"

	"github.com/google/uuid"
)

// Submission statuses. approved and rejected are terminal for awarding
// purposes: credits_awarded is set exactly once, when status flips to approved.
const (
	SubmissionStatusPending       = "pending"
	SubmissionStatusUnderReview   = "under_review"
	SubmissionStatusApproved      = "approved"
	SubmissionStatusRejected      = "rejected"
	SubmissionStatusNeedsRevision = "needs_revision"
)

// Submission types recognised by the award calculator.
const (
	SubmissionTypeNotes     = "notes"
	SubmissionTypeNotesPack = "notes_pack"
)

type Submission struct {
	ID                uuid.UUID  `json:"id"`
	UserID            uuid.UUID  `json:"user_id"`
	GroupID           *uuid.UUID `json:"group_id,omitempty"`
	SubmissionType    string     `json:"submission_type"`
	Status            string     `json:"status"`
	QualityScore      int        `json:"quality_score"`
	WordCount         int        `json:"word_count"`
	CreditsAwarded    int64      `json:"credits_awarded"`
	CanUseForTraining bool       `json:"can_use_for_training"`
	UsedInTraining    bool       `json:"used_in_training"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// GroupMember is a row of the read-only group membership relation. It is
// consulted only to split awards; this subsystem never mutates it.
type GroupMember struct {
	GroupID  uuid.UUID `json:"group_id"`
	UserID   uuid.UUID `json:"user_id"`
	Verified bool      `json:"verified"`
}
