package web

import (
	"fmt"
	"net/http"

	"github.com/inercia/specula/internal/event"
	"github.com/inercia/specula/internal/logging"
)

// handleEvents serves the SSE subscribe endpoint.
//
// Each bus event becomes one "data: <json>\n\n" frame, in bus publish order.
// The first frame on every connection is a synthetic server.connected event
// so a client can tell "connected, no data yet" from "never connected".
// Teardown happens exactly once, on write failure or request cancellation,
// whichever comes first.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub, err := s.bus.Subscribe()
	if err != nil {
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	logger := logging.WithSubscription(s.logger, sub.ID(), clientIP(r))
	logger.Info("Event stream attached", "transport", "sse")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeFrame(w, event.ServerConnected()); err != nil {
		logger.Debug("Event stream write failed", "error", err)
		return
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				// Subscription was closed under us: the bus shut down or
				// this consumer fell too far behind and was dropped.
				logger.Info("Event stream detached", "reason", "subscription_closed")
				return
			}
			if err := writeFrame(w, ev); err != nil {
				logger.Debug("Event stream write failed", "error", err)
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			logger.Info("Event stream detached", "reason", "client_disconnected")
			return
		}
	}
}

// writeFrame writes one event as a self-delimited SSE frame.
func writeFrame(w http.ResponseWriter, ev event.Event) error {
	data, err := ev.Encode()
	if err != nil {
		// Unencodable events are skipped, not fatal to the stream.
		return nil
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
