package sse

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xao-fun/xao-go/internal/referral"
)

func newTestHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event")
		return Event{}
	}
}

func TestNotifyVerificationRoutesByOutcome(t *testing.T) {
	h := newTestHub()
	all, cancelAll := h.Subscribe(TopicAll)
	defer cancelAll()
	flagged, cancelFlagged := h.Subscribe("flagged")
	defer cancelFlagged()
	failed, cancelFailed := h.Subscribe("failed")
	defer cancelFailed()

	v := &referral.Verification{ID: uuid.New(), Result: &referral.Result{Verified: false, Confidence: 0.7}}
	h.NotifyVerification(v)

	ev := receive(t, all)
	assert.Equal(t, "verification", ev.Type)
	assert.Equal(t, v.ID.String(), ev.ID)
	var got referral.Verification
	require.NoError(t, json.Unmarshal(ev.Data, &got))
	assert.Equal(t, v.ID, got.ID)

	receive(t, flagged)
	assert.Empty(t, failed)
}

func TestCancelUnsubscribes(t *testing.T) {
	h := newTestHub()
	ch, cancel := h.Subscribe("verified")
	assert.Equal(t, 1, h.SubscriberCount("verified"))

	cancel()
	cancel()
	assert.Equal(t, 0, h.SubscriberCount("verified"))
	_, open := <-ch
	assert.False(t, open)

	h.Publish("verified", Event{Type: "verification"})
}

func TestPublishDropsForSlowClient(t *testing.T) {
	h := newTestHub()
	ch, cancel := h.Subscribe(TopicAll)
	defer cancel()

	for i := 0; i < 100; i++ {
		h.Publish(TopicAll, Event{Type: "verification"})
	}
	assert.Len(t, ch, 64)
}

func TestValidTopic(t *testing.T) {
	assert.True(t, ValidTopic("all"))
	assert.True(t, ValidTopic("failed"))
	assert.False(t, ValidTopic("pending"))
}
