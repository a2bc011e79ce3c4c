package ws

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xao-fun/xao-go/internal/referral"
)

type staticHistory struct {
	items []referral.Verification
	err   error
}

func (h staticHistory) RecentVerifications(_ context.Context, limit int) ([]referral.Verification, error) {
	if len(h.items) > limit {
		return h.items[:limit], h.err
	}
	return h.items, h.err
}

func newTestFeed(t *testing.T, history History) (*Manager, *httptest.Server) {
	t.Helper()
	m := NewManager(history, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(http.HandlerFunc(m.HandleWS))
	t.Cleanup(srv.Close)
	return m, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f map[string]any
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func verified(reasoning string) referral.Verification {
	return referral.Verification{
		ID:        uuid.New(),
		Provider:  "openai",
		Model:     "gpt-4o",
		Result:    &referral.Result{Verified: true, Confidence: 0.9, Reasoning: reasoning},
		Attempts:  1,
		CreatedAt: time.Now(),
	}
}

func TestBroadcastVerification(t *testing.T) {
	m, srv := newTestFeed(t, nil)
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return m.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	v := verified("steady engagement")
	m.NotifyVerification(&v)

	f := readFrame(t, conn)
	assert.Equal(t, "verification", f["type"])
	assert.Equal(t, v.ID.String(), f["id"])
	assert.Equal(t, "verified", f["outcome"])
	assert.Equal(t, true, f["verified"])
	assert.Equal(t, 0.9, f["confidence"])
	assert.Equal(t, "steady engagement", f["reasoning"])
	assert.NotContains(t, f, "error_kind")
}

func TestBroadcastFailure(t *testing.T) {
	m, srv := newTestFeed(t, nil)
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return m.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	m.NotifyVerification(&referral.Verification{
		ID:        uuid.New(),
		ErrorKind: referral.KindRateLimited,
		Error:     "verification failed: rate limited",
		CreatedAt: time.Now(),
	})

	f := readFrame(t, conn)
	assert.Equal(t, "failed", f["outcome"])
	assert.Equal(t, "rate_limited", f["error_kind"])
	assert.NotContains(t, f, "verified")
}

func TestHydrationOldestFirst(t *testing.T) {
	newest, older := verified("newest"), verified("older")
	m, srv := newTestFeed(t, staticHistory{items: []referral.Verification{newest, older}})
	conn := dial(t, srv)

	assert.Equal(t, "older", readFrame(t, conn)["reasoning"])
	assert.Equal(t, "newest", readFrame(t, conn)["reasoning"])

	require.Eventually(t, func() bool { return m.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	live := verified("live")
	m.NotifyVerification(&live)
	assert.Equal(t, "live", readFrame(t, conn)["reasoning"])
}

func TestHydrationErrorStillRegisters(t *testing.T) {
	m, srv := newTestFeed(t, staticHistory{err: errors.New("db down")})
	dial(t, srv)
	require.Eventually(t, func() bool { return m.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestDisconnectRemovesClient(t *testing.T) {
	m, srv := newTestFeed(t, nil)
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return m.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return m.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastDropsStalledClient(t *testing.T) {
	m, srv := newTestFeed(t, nil)
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return m.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Nothing drains this queue, like a peer that stopped reading.
	stalled := &client{send: make(chan []byte, 1)}
	m.register(stalled)
	require.Equal(t, 2, m.ClientCount())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			v := verified("burst")
			m.NotifyVerification(&v)
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a stalled client")
	}

	assert.Equal(t, 1, m.ClientCount())
	assert.False(t, stalled.enqueue([]byte("{}")))

	// The healthy client keeps receiving.
	assert.Equal(t, "burst", readFrame(t, conn)["reasoning"])
}

func TestClientCloseIsIdempotent(t *testing.T) {
	c := newClient(nil)
	require.True(t, c.enqueue([]byte("{}")))
	c.close()
	c.close()
	assert.False(t, c.enqueue([]byte("{}")))
}
