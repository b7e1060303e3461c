package ledger

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/padhaihub/backend/internal/middleware"
)

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

type spendRequest struct {
	Amount  int64  `json:"amount"`
	Feature string `json:"feature"`
}

type spendResponse struct {
	RemainingBalance int64 `json:"remaining_balance"`
}

type insufficientFundsResponse struct {
	Error            string `json:"error"`
	RemainingBalance int64  `json:"remaining_balance"`
}

// Spend handles POST /v1/credits/spend: the debit entry point for paid features.
func (h *Handler) Spend(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req spendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		http.Error(w, `{"error":"amount must be > 0"}`, http.StatusBadRequest)
		return
	}
	if req.Feature == "" {
		http.Error(w, `{"error":"feature is required"}`, http.StatusBadRequest)
		return
	}

	remaining, err := h.svc.Debit(r.Context(), id.UserID, req.Amount, "feature: "+req.Feature)
	if err != nil {
		var insufficient *InsufficientFundsError
		if errors.As(err, &insufficient) {
			writeJSON(w, http.StatusPaymentRequired, insufficientFundsResponse{
				Error:            "insufficient funds",
				RemainingBalance: insufficient.Remaining,
			})
			return
		}
		h.log.Error("debit failed", "user_id", id.UserID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, spendResponse{RemainingBalance: remaining})
}

// Balance handles GET /v1/credits/balance.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	balance, err := h.svc.Balance(r.Context(), id.UserID)
	if err != nil {
		h.log.Error("balance read failed", "user_id", id.UserID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

// History handles GET /v1/credits/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	list, err := h.svc.History(r.Context(), id.UserID)
	if err != nil {
		h.log.Error("history read failed", "user_id", id.UserID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Audit handles GET /v1/admin/ledger/{user_id}/audit. A detected invariant
// violation is logged at Error and surfaced as 500; it is never swallowed.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("user_id"))
	if err != nil {
		http.Error(w, `{"error":"invalid user_id"}`, http.StatusBadRequest)
		return
	}
	if err := h.svc.Audit(r.Context(), userID); err != nil {
		if errors.Is(err, ErrInvariantViolation) {
			h.log.Error("LEDGER INVARIANT VIOLATION", "user_id", userID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error":  "invariant violation",
				"detail": err.Error(),
			})
			return
		}
		h.log.Error("audit failed", "user_id", userID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "consistent"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
