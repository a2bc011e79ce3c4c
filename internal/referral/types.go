package referral

import (
	"time"

	"github.com/google/uuid"
)

// Record describes one referral event. Each section is an arbitrary mapping
// of observation keys to values; a nil section is treated as empty.
type Record struct {
	Activity     map[string]any `json:"activity,omitempty"`
	Timing       map[string]any `json:"timing,omitempty"`
	Interactions map[string]any `json:"interactions,omitempty"`
}

// Result is the classifier verdict plus the metadata attached after the
// model responds.
type Result struct {
	Verified     bool    `json:"verified"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
	Timestamp    string  `json:"timestamp"`
	ModelVersion string  `json:"model_version"`
}

// Verification is one pipeline run: the input, the verdict or failure, and
// bookkeeping used by the store and the live feed.
type Verification struct {
	ID         uuid.UUID `json:"id"`
	Record     Record    `json:"record"`
	Result     *Result   `json:"result,omitempty"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	ErrorKind  Kind      `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	Attempts   int       `json:"attempts"`
	DurationMs float64   `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Outcome is "verified", "flagged" or "failed".
func (v *Verification) Outcome() string {
	switch {
	case v.Result == nil:
		return "failed"
	case v.Result.Verified:
		return "verified"
	default:
		return "flagged"
	}
}
