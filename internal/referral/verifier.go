// Package referral asks a hosted language model whether a referral looks
// legitimate and turns its JSON answer into a Result.
package referral

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/xao-fun/xao-go/internal/llm"
)

// Verifier is a stateless classifier bound to one model client. It is safe
// for concurrent use.
type Verifier struct {
	llm llm.Completer
	now func() time.Time
}

// NewVerifier returns a Verifier that sends every request through c.
func NewVerifier(c llm.Completer) *Verifier {
	return &Verifier{llm: c, now: time.Now}
}

// Model returns the identifier stamped on every Result.
func (v *Verifier) Model() string { return v.llm.Model() }

// Provider returns the backend name of the model client.
func (v *Verifier) Provider() string { return v.llm.Provider() }

// Verify makes exactly one model call. Any failure is returned as a
// *VerificationError and no partial Result is produced.
func (v *Verifier) Verify(ctx context.Context, rec Record) (*Result, error) {
	prompt, err := BuildPrompt(rec)
	if err != nil {
		return nil, newError(KindInput, err)
	}

	content, err := v.llm.Complete(ctx, SystemPrompt, prompt)
	if err != nil {
		return nil, newError(completionKind(err), err)
	}

	result, err := parseVerdict(content)
	if err != nil {
		return nil, err
	}
	result.Timestamp = strconv.FormatInt(v.now().Unix(), 10)
	result.ModelVersion = v.llm.Model()
	return result, nil
}

// parseVerdict decodes the model reply. The body must be a JSON object with
// a boolean "verified", a number "confidence" in [0,1] and a string
// "reasoning"; anything else is rejected.
func parseVerdict(content string) (*Result, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		return nil, newError(KindParse, fmt.Errorf("decode model response: %w", err))
	}

	var r Result
	if err := field(fields, "verified", &r.Verified); err != nil {
		return nil, err
	}
	if err := field(fields, "confidence", &r.Confidence); err != nil {
		return nil, err
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return nil, newError(KindInvalidOutput, fmt.Errorf("confidence %v outside [0,1]", r.Confidence))
	}
	if err := field(fields, "reasoning", &r.Reasoning); err != nil {
		return nil, err
	}
	return &r, nil
}

func field(fields map[string]json.RawMessage, name string, dst any) error {
	raw, ok := fields[name]
	if !ok || string(raw) == "null" {
		return newError(KindInvalidOutput, fmt.Errorf("model response missing %q", name))
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return newError(KindInvalidOutput, fmt.Errorf("model response field %q has type %s", name, typeErr.Value))
		}
		return newError(KindInvalidOutput, fmt.Errorf("model response field %q: %w", name, err))
	}
	return nil
}
