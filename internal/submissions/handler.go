package submissions

import (
	"context"
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

type createRequest struct {
	GroupID           *uuid.UUID `json:"group_id,omitempty"`
	SubmissionType    string     `json:"submission_type"`
	WordCount         int        `json:"word_count"`
	CanUseForTraining bool       `json:"can_use_for_training"`
}

// Create handles POST /v1/submissions.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.WordCount < 0 {
		http.Error(w, `{"error":"word_count must be >= 0"}`, http.StatusBadRequest)
		return
	}
	sub, err := h.svc.Create(r.Context(), id.UserID, req.GroupID, req.SubmissionType, req.WordCount, req.CanUseForTraining)
	if err != nil {
		h.log.Error("create submission", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

type reviewRequest struct {
	QualityScore int `json:"quality_score"`
}

// Approve handles POST /v1/submissions/{id}/approve — the single reviewer
// action that awards credits.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	subID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid submission id"}`, http.StatusBadRequest)
		return
	}
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.QualityScore < 0 || req.QualityScore > 5 {
		http.Error(w, `{"error":"quality_score must be between 0 and 5"}`, http.StatusBadRequest)
		return
	}
	sub, err := h.svc.Approve(r.Context(), subID, req.QualityScore)
	if err != nil {
		switch {
		case errors.Is(err, ErrSubmissionNotFound):
			http.Error(w, `{"error":"submission not found"}`, http.StatusNotFound)
		case errors.Is(err, ErrAlreadyReviewed):
			http.Error(w, `{"error":"submission already reviewed"}`, http.StatusConflict)
		default:
			h.log.Error("approve submission", "submission_id", subID, "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// Reject handles POST /v1/submissions/{id}/reject.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Reject)
}

// RequestRevision handles POST /v1/submissions/{id}/request-revision.
func (h *Handler) RequestRevision(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.RequestRevision)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uuid.UUID) error) {
	subID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid submission id"}`, http.StatusBadRequest)
		return
	}
	if err := fn(r.Context(), subID); err != nil {
		switch {
		case errors.Is(err, ErrSubmissionNotFound):
			http.Error(w, `{"error":"submission not found"}`, http.StatusNotFound)
		case errors.Is(err, ErrAlreadyReviewed):
			http.Error(w, `{"error":"submission already reviewed"}`, http.StatusConflict)
		default:
			h.log.Error("submission transition", "submission_id", subID, "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type previewRequest struct {
	QualityScore int `json:"quality_score"`
}

// PreviewAward handles POST /v1/submissions/{id}/preview-award. Pure
// calculation, no side effects, safe to call repeatedly.
func (h *Handler) PreviewAward(w http.ResponseWriter, r *http.Request) {
	subID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid submission id"}`, http.StatusBadRequest)
		return
	}
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	credits, err := h.svc.PreviewAward(r.Context(), subID, req.QualityScore)
	if err != nil {
		if errors.Is(err, ErrSubmissionNotFound) {
			http.Error(w, `{"error":"submission not found"}`, http.StatusNotFound)
			return
		}
		h.log.Error("preview award", "submission_id", subID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"credits": credits})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
