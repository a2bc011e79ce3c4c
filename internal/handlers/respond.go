package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/xao-fun/xao-go/internal/referral"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

type errorBody struct {
	Error     string        `json:"error"`
	Kind      referral.Kind `json:"kind"`
	Retryable bool          `json:"retryable"`
}

// verificationError writes a classifier failure with its kind.
func verificationError(w http.ResponseWriter, err error) {
	kind := referral.KindOf(err)
	writeJSON(w, statusForKind(kind), errorBody{
		Error:     err.Error(),
		Kind:      kind,
		Retryable: referral.IsRetryable(err),
	})
}

func statusForKind(k referral.Kind) int {
	switch k {
	case referral.KindInput:
		return http.StatusBadRequest
	case referral.KindAuth:
		return http.StatusServiceUnavailable
	case referral.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}
