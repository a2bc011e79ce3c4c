package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xao-fun/xao-go/internal/db"
	"github.com/xao-fun/xao-go/internal/llm"
	"github.com/xao-fun/xao-go/internal/referral"
)

const okVerdict = `{"verified": true, "confidence": 0.75, "reasoning": "organic spacing"}`

type scriptedCompleter struct {
	mu      sync.Mutex
	calls   int
	respond func(prompt string) (string, error)
}

func (c *scriptedCompleter) Complete(_ context.Context, _, prompt string) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.respond(prompt)
}
func (c *scriptedCompleter) Model() string    { return "gpt-4o" }
func (c *scriptedCompleter) Provider() string { return "openai" }

type memStore struct {
	items []referral.Verification
	err   error
}

func (s *memStore) GetVerification(_ context.Context, id uuid.UUID) (*referral.Verification, error) {
	for i := range s.items {
		if s.items[i].ID == id {
			return &s.items[i], nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *memStore) RecentVerifications(_ context.Context, limit int) ([]referral.Verification, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.items[:min(limit, len(s.items))], nil
}

func (s *memStore) VerificationStats(context.Context) (*db.Stats, error) {
	st := &db.Stats{Total: int64(len(s.items))}
	for _, v := range s.items {
		switch v.Outcome() {
		case "verified":
			st.Verified++
		case "flagged":
			st.Flagged++
		default:
			st.Failed++
		}
	}
	return st, nil
}

func newRouter(c llm.Completer, store Store) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := referral.NewPipeline(referral.NewVerifier(c), logger)
	h := NewReferralHandler(p, store, 3, logger)

	r := chi.NewRouter()
	r.Post("/v1/referrals/verify", h.Verify)
	r.Post("/v1/referrals/verify/batch", h.VerifyBatch)
	r.Get("/v1/referrals", h.List)
	r.Get("/v1/referrals/{id}", h.Get)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, rdr))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestVerifyEndpoint(t *testing.T) {
	c := &scriptedCompleter{respond: func(string) (string, error) { return okVerdict, nil }}
	rec := do(t, newRouter(c, nil), http.MethodPost, "/v1/referrals/verify",
		`{"activity":{"logins":3},"timing":{},"interactions":{"messages":2}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decode(t, rec)
	assert.Equal(t, true, body["verified"])
	assert.Equal(t, 0.75, body["confidence"])
	assert.Equal(t, "organic spacing", body["reasoning"])
	assert.Equal(t, "gpt-4o", body["model_version"])
	assert.NotEmpty(t, body["timestamp"])
	_, err := uuid.Parse(body["id"].(string))
	assert.NoError(t, err)
}

func TestVerifyEndpointEmptyRecord(t *testing.T) {
	c := &scriptedCompleter{respond: func(string) (string, error) { return okVerdict, nil }}
	rec := do(t, newRouter(c, nil), http.MethodPost, "/v1/referrals/verify", `{}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, c.calls)
}

func TestVerifyEndpointBadBody(t *testing.T) {
	c := &scriptedCompleter{respond: func(string) (string, error) { return okVerdict, nil }}
	for _, body := range []string{`[1,2]`, `{"activity": 5}`, `nope`} {
		rec := do(t, newRouter(c, nil), http.MethodPost, "/v1/referrals/verify", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "invalid_input", decode(t, rec)["kind"], body)
	}
	assert.Equal(t, 0, c.calls)
}

func TestVerifyEndpointFailureStatus(t *testing.T) {
	cases := []struct {
		name      string
		respond   func(string) (string, error)
		status    int
		kind      string
		retryable bool
	}{
		{"auth", func(string) (string, error) { return "", fmt.Errorf("%w: 401", llm.ErrAuth) }, http.StatusServiceUnavailable, "auth", false},
		{"rate limited", func(string) (string, error) { return "", fmt.Errorf("%w: 429", llm.ErrRateLimited) }, http.StatusTooManyRequests, "rate_limited", true},
		{"upstream", func(string) (string, error) { return "", fmt.Errorf("%w: 500", llm.ErrUpstream) }, http.StatusBadGateway, "upstream", true},
		{"network", func(string) (string, error) { return "", fmt.Errorf("%w: refused", llm.ErrNetwork) }, http.StatusBadGateway, "network", true},
		{"parse", func(string) (string, error) { return "not json", nil }, http.StatusBadGateway, "parse", false},
		{"invalid output", func(string) (string, error) { return `{"verified":"yes"}`, nil }, http.StatusBadGateway, "invalid_output", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, newRouter(&scriptedCompleter{respond: tc.respond}, nil), http.MethodPost, "/v1/referrals/verify", `{}`)
			assert.Equal(t, tc.status, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, tc.kind, body["kind"])
			assert.Equal(t, tc.retryable, body["retryable"])
			assert.True(t, strings.HasPrefix(body["error"].(string), "verification failed: "))
		})
	}
}

func TestVerifyBatchEndpoint(t *testing.T) {
	c := &scriptedCompleter{respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, `"bad": true`) {
			return "", fmt.Errorf("%w: 502", llm.ErrUpstream)
		}
		return okVerdict, nil
	}}
	rec := do(t, newRouter(c, nil), http.MethodPost, "/v1/referrals/verify/batch",
		`{"records":[{"activity":{"n":1}},{"activity":{"bad":true}},{}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Results []batchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Results, 3)

	assert.NotNil(t, out.Results[0].Result)
	assert.Empty(t, out.Results[0].Kind)
	assert.Nil(t, out.Results[1].Result)
	assert.Equal(t, referral.KindUpstream, out.Results[1].Kind)
	assert.True(t, out.Results[1].Retryable)
	assert.NotNil(t, out.Results[2].Result)
	for _, r := range out.Results {
		assert.NotEmpty(t, r.ID)
	}
}

func TestVerifyBatchEndpointSizeLimits(t *testing.T) {
	c := &scriptedCompleter{respond: func(string) (string, error) { return okVerdict, nil }}
	h := newRouter(c, nil)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/referrals/verify/batch", `{"records":[]}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/referrals/verify/batch", `{"records":[{},{},{},{}]}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/referrals/verify/batch", `{`).Code)
	assert.Equal(t, 0, c.calls)
}

func TestHistoryWithoutStore(t *testing.T) {
	h := newRouter(&scriptedCompleter{}, nil)
	assert.Equal(t, http.StatusNotImplemented, do(t, h, http.MethodGet, "/v1/referrals", "").Code)
	assert.Equal(t, http.StatusNotImplemented, do(t, h, http.MethodGet, "/v1/referrals/"+uuid.NewString(), "").Code)
}

func TestHistoryEndpoints(t *testing.T) {
	ok := referral.Verification{
		ID:        uuid.New(),
		Result:    &referral.Result{Verified: true, Confidence: 0.9, Reasoning: "fine"},
		CreatedAt: time.Now().UTC(),
	}
	failed := referral.Verification{ID: uuid.New(), ErrorKind: referral.KindAuth, CreatedAt: time.Now().UTC()}
	store := &memStore{items: []referral.Verification{failed, ok}}
	h := newRouter(&scriptedCompleter{}, store)

	rec := do(t, h, http.MethodGet, "/v1/referrals/"+ok.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got referral.Verification
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&got))
	assert.Equal(t, ok.ID, got.ID)
	assert.Equal(t, ok.Result, got.Result)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/referrals/"+uuid.NewString(), "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/referrals/not-a-uuid", "").Code)

	rec = do(t, h, http.MethodGet, "/v1/referrals?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Verifications []referral.Verification `json:"verifications"`
		Stats         db.Stats                `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Verifications, 1)
	assert.Equal(t, failed.ID, list.Verifications[0].ID)
	assert.Equal(t, db.Stats{Total: 2, Verified: 1, Failed: 1}, list.Stats)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/referrals?limit=0", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/referrals?limit=x", "").Code)
}

func TestListStoreError(t *testing.T) {
	h := newRouter(&scriptedCompleter{}, &memStore{err: fmt.Errorf("db down")})
	assert.Equal(t, http.StatusInternalServerError, do(t, h, http.MethodGet, "/v1/referrals", "").Code)
}
