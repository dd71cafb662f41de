package ws

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/leafsii/leafsii-vault/internal/account"
	"github.com/leafsii/leafsii-vault/internal/store"
	"go.uber.org/zap"
)

type SSEHandler struct {
	cache     *store.Cache
	logger    *zap.SugaredLogger
	heartbeat time.Duration
}

func NewSSEHandler(cache *store.Cache, logger *zap.SugaredLogger) *SSEHandler {
	return &SSEHandler{
		cache:     cache,
		logger:    logger,
		heartbeat: 30 * time.Second,
	}
}

// HandleSSE streams vault events. Query: topics=events,updates,SharesMinted,...
// and an optional address filter. CORS headers come from the router.
func (h *SSEHandler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var address *account.Address
	if raw := r.URL.Query().Get("address"); raw != "" {
		addr, err := account.ParseAddress(raw)
		if err != nil {
			http.Error(w, "invalid address", http.StatusBadRequest)
			return
		}
		address = &addr
	}

	var topics []string
	if raw := r.URL.Query().Get("topics"); raw != "" {
		topics = strings.Split(raw, ",")
	}
	channels := channelsFor(topics)
	if len(channels) == 0 {
		channels = channelsFor([]string{TopicEvents})
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	sub := h.cache.Subscribe(ctx, channels...)
	defer sub.Close()

	h.logger.Debugw("SSE connection established", "channels", channels, "address", addressString(address))
	h.sendEvent(w, flusher, "connected", "0", map[string]any{"channels": channels})

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debugw("SSE client disconnected")
			return

		case <-heartbeat.C:
			h.sendEvent(w, flusher, "heartbeat", "ping", map[string]any{
				"timestamp": time.Now().Unix(),
			})

		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			if address != nil && msg.Channel != store.ChannelVaultUpdates && !mentions(msg.Payload, *address) {
				continue
			}

			var data any
			if err := json.Unmarshal([]byte(msg.Payload), &data); err != nil {
				h.logger.Warnw("Failed to parse message payload", "error", err)
				continue
			}
			h.sendEvent(w, flusher, eventName(msg.Channel), msg.Channel, data)
		}
	}
}

func (h *SSEHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType, id string, data any) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		h.logger.Errorw("Failed to marshal SSE data", "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "id: %s\n", id)
	fmt.Fprintf(w, "data: %s\n\n", dataBytes)
	flusher.Flush()
}

func addressString(addr *account.Address) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
