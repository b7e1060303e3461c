package auth

// Roles known to the policy table.
const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleUser      = "user"
)

// Operations guarded by the policy table. Every HTTP entry point consults
// Allow exactly once with one of these.
const (
	OpSpendCredits     = "spend_credits"
	OpViewLedger       = "view_ledger"
	OpPurchaseCredits  = "purchase_credits"
	OpVerifyPayment    = "verify_payment"
	OpSubmitContent    = "submit_content"
	OpReviewSubmission = "review_submission"
	OpAdminOverride    = "admin_override"
	OpAuditLedger      = "audit_ledger"
)

var policy = map[string]map[string]bool{
	RoleUser: {
		OpSpendCredits:    true,
		OpViewLedger:      true,
		OpPurchaseCredits: true,
		OpVerifyPayment:   true,
		OpSubmitContent:   true,
	},
	RoleModerator: {
		OpSpendCredits:     true,
		OpViewLedger:       true,
		OpPurchaseCredits:  true,
		OpVerifyPayment:    true,
		OpSubmitContent:    true,
		OpReviewSubmission: true,
	},
	RoleAdmin: {
		OpSpendCredits:     true,
		OpViewLedger:       true,
		OpPurchaseCredits:  true,
		OpVerifyPayment:    true,
		OpSubmitContent:    true,
		OpReviewSubmission: true,
		OpAdminOverride:    true,
		OpAuditLedger:      true,
	},
}

// Allow is the single policy-evaluation point: role x operation -> allow/deny.
// Unknown roles and operations deny.
func Allow(role, operation string) bool {
	return policy[role][operation]
}
