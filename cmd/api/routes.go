package main

import (
	"net/http"

	"github.com/padhaihub/backend/internal/auth"
	"github.com/padhaihub/backend/internal/ledger"
	"github.com/padhaihub/backend/internal/middleware"
	"github.com/padhaihub/backend/internal/payments"
	"github.com/padhaihub/backend/internal/submissions"
)

// RegisterRoutes wires every endpoint through the same middleware chain:
// BearerAuth -> RequireOp(policy) -> handler. The gateway webhook is the one
// exception; it authenticates with the shared static key inside the handler.
func RegisterRoutes(
	mux *http.ServeMux,
	authSvc auth.Service,
	ledgerHandler *ledger.Handler,
	paymentsHandler *payments.Handler,
	submissionsHandler *submissions.Handler,
) {
	bearer := middleware.BearerAuth(authSvc)
	guarded := func(op string, h http.HandlerFunc) http.Handler {
		return bearer(middleware.RequireOp(op)(h))
	}

	// Ledger
	mux.Handle("POST /v1/credits/spend", guarded(auth.OpSpendCredits, ledgerHandler.Spend))
	mux.Handle("GET /v1/credits/balance", guarded(auth.OpViewLedger, ledgerHandler.Balance))
	mux.Handle("GET /v1/credits/history", guarded(auth.OpViewLedger, ledgerHandler.History))
	mux.Handle("GET /v1/admin/ledger/{user_id}/audit", guarded(auth.OpAuditLedger, ledgerHandler.Audit))

	// Payments / settlement triggers
	mux.Handle("POST /v1/payments", guarded(auth.OpPurchaseCredits, paymentsHandler.Initiate))
	mux.Handle("GET /v1/payments", guarded(auth.OpViewLedger, paymentsHandler.List))
	mux.Handle("POST /v1/payments/webhook", http.HandlerFunc(paymentsHandler.Webhook))
	mux.Handle("POST /v1/payments/{id}/poll", guarded(auth.OpVerifyPayment, paymentsHandler.Poll))
	mux.Handle("POST /v1/payments/{id}/verify", guarded(auth.OpVerifyPayment, paymentsHandler.Verify))
	mux.Handle("POST /v1/admin/payments/{id}/mark-paid", guarded(auth.OpAdminOverride, paymentsHandler.AdminMarkPaid))

	// Submissions / awards
	mux.Handle("POST /v1/submissions", guarded(auth.OpSubmitContent, submissionsHandler.Create))
	mux.Handle("POST /v1/submissions/{id}/approve", guarded(auth.OpReviewSubmission, submissionsHandler.Approve))
	mux.Handle("POST /v1/submissions/{id}/reject", guarded(auth.OpReviewSubmission, submissionsHandler.Reject))
	mux.Handle("POST /v1/submissions/{id}/request-revision", guarded(auth.OpReviewSubmission, submissionsHandler.RequestRevision))
	mux.Handle("POST /v1/submissions/{id}/preview-award", guarded(auth.OpReviewSubmission, submissionsHandler.PreviewAward))
}
