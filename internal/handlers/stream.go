package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/xao-fun/xao-go/internal/sse"
)

const streamHydrateLimit = 20

// StreamHandler serves verification events over SSE.
type StreamHandler struct {
	hub       *sse.Hub
	store     Store
	keepalive time.Duration
	logger    *slog.Logger
}

// NewStreamHandler creates a new StreamHandler. store may be nil.
func NewStreamHandler(hub *sse.Hub, store Store, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{hub: hub, store: store, keepalive: 30 * time.Second, logger: logger}
}

// HandleSSE handles GET /v1/referrals/stream?outcome=verified|flagged|failed.
// It hydrates with recent matching verifications and current stats when a
// store is configured, then streams live events with periodic keepalives.
func (sh *StreamHandler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	topic := r.URL.Query().Get("outcome")
	if topic == "" {
		topic = sse.TopicAll
	}
	if !sse.ValidTopic(topic) {
		jsonError(w, "outcome must be one of verified, flagged, failed", http.StatusBadRequest)
		return
	}

	// Subscribe before hydrating so nothing published in between is lost;
	// live events already sent during hydration are skipped by id.
	ch, cancel := sh.hub.Subscribe(topic)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sent := map[string]bool{}
	if sh.store != nil {
		recent, err := sh.store.RecentVerifications(r.Context(), streamHydrateLimit)
		if err != nil {
			sh.logger.Warn("stream hydration failed", "err", err)
		}
		for i := len(recent) - 1; i >= 0; i-- {
			if topic != sse.TopicAll && recent[i].Outcome() != topic {
				continue
			}
			data, _ := json.Marshal(recent[i])
			fmt.Fprintf(w, "event: verification\ndata: %s\n\n", data)
			sent[recent[i].ID.String()] = true
		}
		if stats, err := sh.store.VerificationStats(r.Context()); err == nil {
			data, _ := json.Marshal(stats)
			fmt.Fprintf(w, "event: stats\ndata: %s\n\n", data)
		} else {
			sh.logger.Warn("stream stats failed", "err", err)
		}
	}
	flusher.Flush()

	keepalive := time.NewTicker(sh.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.ID != "" && sent[event.ID] {
				delete(sent, event.ID)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, event.Data)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}
