package auth

import "testing"

func TestAllow(t *testing.T) {
	cases := []struct {
		role      string
		operation string
		want      bool
	}{
		{RoleUser, OpSpendCredits, true},
		{RoleUser, OpViewLedger, true},
		{RoleUser, OpPurchaseCredits, true},
		{RoleUser, OpVerifyPayment, true},
		{RoleUser, OpSubmitContent, true},
		{RoleUser, OpReviewSubmission, false},
		{RoleUser, OpAdminOverride, false},
		{RoleUser, OpAuditLedger, false},

		{RoleModerator, OpReviewSubmission, true},
		{RoleModerator, OpAdminOverride, false},
		{RoleModerator, OpAuditLedger, false},

		{RoleAdmin, OpReviewSubmission, true},
		{RoleAdmin, OpAdminOverride, true},
		{RoleAdmin, OpAuditLedger, true},

		// Unknown roles and operations deny.
		{"", OpSpendCredits, false},
		{"superuser", OpAdminOverride, false},
		{RoleAdmin, "drop_tables", false},
	}
	for _, tc := range cases {
		if got := Allow(tc.role, tc.operation); got != tc.want {
			t.Errorf("Allow(%q, %q) = %v, want %v", tc.role, tc.operation, got, tc.want)
		}
	}
}
