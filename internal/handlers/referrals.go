package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/xao-fun/xao-go/internal/db"
	"github.com/xao-fun/xao-go/internal/referral"
)

const (
	maxBodyBytes     = 1 << 20
	maxBatchBodySize = 16 << 20
	defaultListLimit = 20
	maxListLimit     = 100
)

// Store reads stored verifications. *db.DB satisfies it.
type Store interface {
	GetVerification(ctx context.Context, id uuid.UUID) (*referral.Verification, error)
	RecentVerifications(ctx context.Context, limit int) ([]referral.Verification, error)
	VerificationStats(ctx context.Context) (*db.Stats, error)
}

type ReferralHandler struct {
	pipeline *referral.Pipeline
	store    Store
	maxBatch int
	logger   *slog.Logger
}

// NewReferralHandler creates the referral API. store may be nil, in which case
// the history endpoints answer 501.
func NewReferralHandler(pipeline *referral.Pipeline, store Store, maxBatch int, logger *slog.Logger) *ReferralHandler {
	return &ReferralHandler{pipeline: pipeline, store: store, maxBatch: maxBatch, logger: logger}
}

type verifyResponse struct {
	ID string `json:"id"`
	*referral.Result
}

// Verify handles POST /v1/referrals/verify.
func (h *ReferralHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var rec referral.Record
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid referral record: " + err.Error(), Kind: referral.KindInput})
		return
	}

	v, err := h.pipeline.Verify(r.Context(), rec)
	if err != nil {
		verificationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{ID: v.ID.String(), Result: v.Result})
}

type batchRequest struct {
	Records []referral.Record `json:"records"`
}

type batchResult struct {
	ID        string           `json:"id"`
	Result    *referral.Result `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	Kind      referral.Kind    `json:"kind,omitempty"`
	Retryable bool             `json:"retryable,omitempty"`
}

// VerifyBatch handles POST /v1/referrals/verify/batch.
func (h *ReferralHandler) VerifyBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBodySize)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error(), Kind: referral.KindInput})
		return
	}
	if n := len(req.Records); n == 0 || n > h.maxBatch {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error: fmt.Sprintf("records must contain 1 to %d entries, got %d", h.maxBatch, n),
			Kind:  referral.KindInput,
		})
		return
	}

	items := h.pipeline.VerifyBatch(r.Context(), req.Records)
	results := make([]batchResult, len(items))
	for i, item := range items {
		res := batchResult{ID: item.Verification.ID.String(), Result: item.Verification.Result}
		if item.Err != nil {
			res.Error = item.Err.Error()
			res.Kind = referral.KindOf(item.Err)
			res.Retryable = referral.IsRetryable(item.Err)
		}
		results[i] = res
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// Get handles GET /v1/referrals/{id}.
func (h *ReferralHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		jsonError(w, "history requires a database", http.StatusNotImplemented)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, "invalid id", http.StatusBadRequest)
		return
	}

	v, err := h.store.GetVerification(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		jsonError(w, "verification not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to get verification", "id", id, "err", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// List handles GET /v1/referrals?limit=N.
func (h *ReferralHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		jsonError(w, "history requires a database", http.StatusNotImplemented)
		return
	}

	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxListLimit)
	}

	recent, err := h.store.RecentVerifications(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list verifications", "err", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	stats, err := h.store.VerificationStats(r.Context())
	if err != nil {
		h.logger.Error("failed to get verification stats", "err", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if recent == nil {
		recent = []referral.Verification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"verifications": recent, "stats": stats})
}
