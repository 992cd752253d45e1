package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
	"github.com/zatekoja/medlogistics/backend/internal/domain/providers"
	"github.com/zatekoja/medlogistics/backend/internal/infrastructure/observability"
)

const heartbeatInterval = 30 * time.Second

// SSEHandler streams committed allocation events to browsers
type SSEHandler struct {
	eventBus  providers.EventBus
	heartbeat time.Duration
	clients   map[string]int // channel -> connected clients
	mu        sync.RWMutex
	done      chan struct{}
	closeOnce sync.Once
}

// NewSSEHandler creates a new SSE handler
func NewSSEHandler(eventBus providers.EventBus) *SSEHandler {
	return &SSEHandler{
		eventBus:  eventBus,
		heartbeat: heartbeatInterval,
		clients:   make(map[string]int),
		done:      make(chan struct{}),
	}
}

// Close ends every open stream
func (h *SSEHandler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// StreamResourceEvents handles GET /api/stream/resources/{id}
func (h *SSEHandler) StreamResourceEvents(w http.ResponseWriter, r *http.Request) {
	resourceID := r.PathValue("id")
	if resourceID == "" {
		respondWithError(w, http.StatusBadRequest, "resource ID is required")
		return
	}
	h.stream(w, r, providers.GetResourceChannel(resourceID), map[string]interface{}{
		"resource_id": resourceID,
	})
}

// StreamEvents handles GET /api/stream/events?kind=reservation|dispatch|workflow|resource
func (h *SSEHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	channel := providers.EventChannelAllocation
	kind := entities.AggregateKind(r.URL.Query().Get("kind"))
	switch kind {
	case "":
	case entities.AggregateReservation, entities.AggregateDispatch, entities.AggregateWorkflow, entities.AggregateResource:
		channel = providers.GetAggregateChannel(kind)
	default:
		respondWithError(w, http.StatusBadRequest, "unknown aggregate kind "+string(kind))
		return
	}
	h.stream(w, r, channel, map[string]interface{}{"channel": channel})
}

func (h *SSEHandler) stream(w http.ResponseWriter, r *http.Request, channel string, hello map[string]interface{}) {
	logger := observability.ComponentLogger(r.Context(), "sse")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	eventChan, err := h.eventBus.Subscribe(r.Context(), channel)
	if err != nil {
		logger.Error().Err(err).Str("channel", channel).Msg("failed to subscribe")
		respondWithError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	h.register(channel)
	defer h.unregister(channel)

	hello["timestamp"] = time.Now().UTC()
	h.sendEvent(w, "connected", hello)
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Debug().Str("channel", channel).Msg("client disconnected")
			return
		case <-h.done:
			return
		case <-ticker.C:
			h.sendEvent(w, "heartbeat", map[string]interface{}{"timestamp": time.Now().UTC()})
			flusher.Flush()
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			h.sendEvent(w, string(event.Type), event)
			flusher.Flush()
		}
	}
}

func (h *SSEHandler) register(channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[channel]++
}

func (h *SSEHandler) unregister(channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[channel]--; h.clients[channel] <= 0 {
		delete(h.clients, channel)
	}
}

// sendEvent writes one SSE frame
func (h *SSEHandler) sendEvent(w http.ResponseWriter, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		observability.GetLogger().Warn().Err(err).Str("event_type", eventType).Msg("failed to marshal event data")
		return
	}
	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
}

// GetClientCount returns the number of connected clients
func (h *SSEHandler) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, n := range h.clients {
		count += n
	}
	return count
}
