package submissions

import "github.com/padhaihub/backend/internal/models"

// Award formula constants.
const (
	creditsPerQualityPoint = 20
	wordsPerBonusCredit    = 100
	maxLengthBonus         = 50
	notesPackMultiplier    = 2
)

// CalculateAward computes the credits a submission earns on approval. Pure
// and deterministic, so it is also safe to call for preview/display before a
// reviewer has acted.
//
// base: quality_score * 20, plus 1 credit per 100 words (capped at 50);
// notes packs count double; opting the content into model training adds 25%.
func CalculateAward(submissionType string, qualityScore, wordCount int, trainingOptIn bool) int64 {
	if qualityScore <= 0 {
		return 0
	}
	if qualityScore > 5 {
		qualityScore = 5
	}

	award := int64(qualityScore) * creditsPerQualityPoint

	lengthBonus := int64(wordCount / wordsPerBonusCredit)
	if lengthBonus > maxLengthBonus {
		lengthBonus = maxLengthBonus
	}
	award += lengthBonus

	if submissionType == models.SubmissionTypeNotesPack {
		award *= notesPackMultiplier
	}
	if trainingOptIn {
		award += award / 4
	}
	return award
}

// GroupShare is what each verified group member other than the submitter
// receives: floor(credits / (otherMemberCount + 1)).
func GroupShare(credits int64, otherMemberCount int) int64 {
	if otherMemberCount <= 0 {
		return 0
	}
	return credits / int64(otherMemberCount+1)
}
