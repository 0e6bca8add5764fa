package booking_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ms-coaching/internal/auth"
	"ms-coaching/internal/logger"
	"ms-coaching/internal/sse"
)

// SSEHandler streams booking events to the signed-in coach.
type SSEHandler struct {
	Logger       *logger.Logger
	EventEmitter *sse.BookingEventEmitter
}

func NewSSEHandler(log *logger.Logger, emitter *sse.BookingEventEmitter) *SSEHandler {
	return &SSEHandler{Logger: log, EventEmitter: emitter}
}

// HandleCoachBookings writes one SSE frame per booking created or settled for
// the caller until the client goes away.
func (h *SSEHandler) HandleCoachBookings(w http.ResponseWriter, r *http.Request) {
	coachID := auth.UserID(r.Context())
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h.setupSSEHeaders(w)
	ctx := r.Context()
	eventChan := h.EventEmitter.SubscribeToCoach(ctx, coachID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"coach_id\":%d}\n\n", coachID)
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Coach %d connected to booking stream", coachID))

	for {
		select {
		case evt, ok := <-eventChan:
			if !ok {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize booking event: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Coach %d disconnected from booking stream", coachID))
			return
		}
	}
}

func (h *SSEHandler) setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
