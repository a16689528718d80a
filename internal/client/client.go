// Package client consumes a specula event stream and reconciles it locally.
// It is used by the watch command and by integration tests; it talks to the
// server's own API only, so it carries no authentication.
package client

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/inercia/specula/internal/event"
	"github.com/inercia/specula/internal/logging"
	"github.com/inercia/specula/internal/reconcile"
)

// maxFrameSize caps a single SSE frame read from the server.
const maxFrameSize = 4 << 20 // 4 MiB

// Client connects to a specula server's subscribe endpoint and feeds every
// frame to a reconciler. One Client drives one reconciler; both are owned by
// the goroutine that calls Run.
type Client struct {
	baseURL   string
	apiPrefix string
	rec       *reconcile.Reconciler
	logger    *slog.Logger

	// streamClient has no timeout: the subscribe request is long-lived and
	// ends only via context cancellation or server close.
	streamClient *http.Client
	// apiClient is for short request/response calls like Publish.
	apiClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithAPIPrefix sets the server's API prefix (default "/specula").
func WithAPIPrefix(prefix string) Option {
	return func(c *Client) {
		c.apiPrefix = prefix
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for the given server address
// (e.g. "http://127.0.0.1:8080") that feeds the given reconciler.
// A nil reconciler yields a publish-only client; Run refuses to start.
func New(baseURL string, rec *reconcile.Reconciler, opts ...Option) *Client {
	c := &Client{
		baseURL:      baseURL,
		apiPrefix:    "/specula",
		rec:          rec,
		logger:       logging.Client(),
		streamClient: &http.Client{},
		apiClient:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) apiURL(path string) string {
	return c.baseURL + c.apiPrefix + path
}

// Run subscribes to the event stream and ingests frames until the context is
// canceled or the connection ends. The first frame is always the server's
// server.connected marker; Run fails if the stream ends before it arrives.
//
// Run returns nil on context cancellation and the terminal error otherwise.
func (c *Client) Run(ctx context.Context) error {
	if c.rec == nil {
		// Publish-only clients (nil reconciler) have no stream to drive.
		return fmt.Errorf("run: no reconciler configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL("/api/events"), nil)
	if err != nil {
		return fmt.Errorf("subscribe request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("subscribe: status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)

	connected := false
	var data []byte
	for scanner.Scan() {
		line := scanner.Bytes()

		// A blank line ends the frame; "data:" lines accumulate into it.
		if len(line) == 0 {
			if len(data) == 0 {
				continue
			}
			frame := data
			data = nil
			if !connected {
				ev, err := event.Decode(frame)
				if err != nil || ev.Type != event.KindServerConnected {
					return fmt.Errorf("stream did not open with %s", event.KindServerConnected)
				}
				connected = true
				c.logger.Info("Connected to event stream", "url", c.baseURL)
				continue
			}
			if _, err := c.rec.Ingest(frame); err != nil {
				// Malformed frames are skipped, not fatal.
				c.logger.Warn("Skipped frame", "error", err)
			}
			continue
		}

		if rest, ok := bytes.CutPrefix(line, []byte("data:")); ok {
			// Multiple data lines in one frame join with a newline.
			if len(data) > 0 {
				data = append(data, '\n')
			}
			data = append(data, bytes.TrimPrefix(rest, []byte(" "))...)
		}
		// Other SSE fields (comments, ids) are not used by this protocol.
	}

	if ctx.Err() != nil {
		return nil
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("event stream: %w", err)
	}
	if !connected {
		return fmt.Errorf("stream ended before %s", event.KindServerConnected)
	}
	c.logger.Info("Event stream closed by server")
	return nil
}

// Publish sends one event to the server's publish endpoint.
func (c *Client) Publish(ev event.Event) error {
	body, err := ev.Encode()
	if err != nil {
		return err
	}

	resp, err := c.apiClient.Post(c.apiURL("/api/publish"), "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("publish %s: status %d", ev.Type, resp.StatusCode)
	}
	return nil
}
