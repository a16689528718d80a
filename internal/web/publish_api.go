package web

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/inercia/specula/internal/event"
)

// maxPublishBody caps the size of a published event envelope.
const maxPublishBody = 1 << 20 // 1 MiB

// handlePublish accepts one event envelope from an out-of-process producer
// and hands it to the bus. The only guarantee given to the caller is
// "accepted for fan-out": 202 means the envelope was valid and enqueued.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPublishBody+1))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	if len(body) > maxPublishBody {
		http.Error(w, "Event too large", http.StatusRequestEntityTooLarge)
		return
	}

	ev, err := event.Decode(body)
	if err != nil {
		s.logger.Warn("Rejected published event", "error", err, "client_ip", clientIP(r))
		http.Error(w, "Invalid event: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.bus.Publish(ev); err != nil {
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}
