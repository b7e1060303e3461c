package payments

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/padhaihub/backend/internal/auth"
	"github.com/padhaihub/backend/internal/middleware"
)

type Handler struct {
	svc  Service
	auth auth.Service
	log  *slog.Logger
}

func NewHandler(svc Service, authSvc auth.Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, auth: authSvc, log: log}
}

type initiateRequest struct {
	Amount           int64           `json:"amount"`
	CreditsPurchased int64           `json:"credits_purchased"`
	PaymentMethod    string          `json:"payment_method"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
}

// Initiate handles POST /v1/payments.
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 || req.CreditsPurchased <= 0 {
		http.Error(w, `{"error":"amount and credits_purchased must be > 0"}`, http.StatusBadRequest)
		return
	}
	if req.PaymentMethod == "" {
		http.Error(w, `{"error":"payment_method is required"}`, http.StatusBadRequest)
		return
	}

	p, err := h.svc.Initiate(r.Context(), id.UserID, req.Amount, req.CreditsPurchased, req.PaymentMethod, req.Metadata)
	if err != nil {
		if errors.Is(err, ErrGatewayUnavailable) {
			// Payment row exists and stays pending; client can poll or verify later.
			h.log.Warn("gateway unavailable on initiate", "payment_id", p.ID, "error", err)
			writeJSON(w, http.StatusAccepted, p)
			return
		}
		h.log.Error("initiate payment", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// Webhook handles POST /v1/payments/webhook — the gateway callback trigger.
// Authenticated by the shared static key, not by a user token.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var payload CallbackPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	err := h.svc.HandleCallback(r.Context(), payload, r.Header.Get("X-Gateway-Key"))
	if err != nil {
		if errors.Is(err, ErrUnauthorizedCallback) {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		if errors.Is(err, ErrPaymentNotFound) {
			http.Error(w, `{"error":"payment not found"}`, http.StatusNotFound)
			return
		}
		h.log.Error("webhook settle failed", "order_id", payload.OrderID, "error", err)
		http.Error(w, `{"error":"settlement failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Poll handles POST /v1/payments/{id}/poll — the client-initiated trigger.
func (h *Handler) Poll(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid payment id"}`, http.StatusBadRequest)
		return
	}
	p, err := h.svc.Poll(r.Context(), paymentID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			http.Error(w, `{"error":"payment not found"}`, http.StatusNotFound)
			return
		}
		if errors.Is(err, ErrGatewayUnavailable) {
			h.log.Warn("gateway unavailable on poll", "payment_id", paymentID, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "gateway unavailable, try again"})
			return
		}
		h.log.Error("poll failed", "payment_id", paymentID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Verify handles POST /v1/payments/{id}/verify — the manual trigger.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	paymentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid payment id"}`, http.StatusBadRequest)
		return
	}
	p, err := h.svc.VerifyManual(r.Context(), paymentID, id.UserID)
	if err != nil {
		switch {
		case errors.Is(err, ErrPaymentNotFound):
			http.Error(w, `{"error":"payment not found"}`, http.StatusNotFound)
		case errors.Is(err, ErrNotPaymentOwner):
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		case errors.Is(err, ErrGatewayUnavailable):
			h.log.Warn("gateway unavailable on verify", "payment_id", paymentID, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "gateway unavailable, try again"})
		default:
			h.log.Error("verify failed", "payment_id", paymentID, "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type markPaidRequest struct {
	OperatorKey string `json:"operator_key"`
	Reference   string `json:"reference"`
}

// AdminMarkPaid handles POST /v1/admin/payments/{id}/mark-paid. Requires the
// admin role (policy middleware) plus a valid operator key.
func (h *Handler) AdminMarkPaid(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid payment id"}`, http.StatusBadRequest)
		return
	}
	var req markPaidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if err := h.auth.VerifyOperatorKey(req.OperatorKey); err != nil {
		http.Error(w, `{"error":"invalid operator key"}`, http.StatusForbidden)
		return
	}
	if req.Reference == "" {
		http.Error(w, `{"error":"reference is required"}`, http.StatusBadRequest)
		return
	}
	p, err := h.svc.AdminMarkPaid(r.Context(), paymentID, req.Reference)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			http.Error(w, `{"error":"payment not found"}`, http.StatusNotFound)
			return
		}
		h.log.Error("admin mark-paid failed", "payment_id", paymentID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// List handles GET /v1/payments — the caller's payment history.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	list, err := h.svc.ListByUser(r.Context(), id.UserID)
	if err != nil {
		h.log.Error("list payments", "user_id", id.UserID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
