package stream

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"certify/internal/registry/models"
	"certify/pkg/requestcontext"
)

// Handler upgrades GET /events to a websocket and writes one JSON
// CredentialAdded message per committed insert. Clients never send data;
// anything they send closes the connection.
type Handler struct {
	hub            *Hub
	logger         *slog.Logger
	originPatterns []string
	pingInterval   time.Duration
	writeTimeout   time.Duration
}

// Option configures the Handler.
type Option func(*Handler)

// WithOriginPatterns allows cross-origin browsers whose host matches one of
// the patterns (path.Match syntax).
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) {
		h.originPatterns = patterns
	}
}

// WithPingInterval sets the heartbeat period.
func WithPingInterval(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// NewHandler serves subscriptions from hub.
func NewHandler(hub *Hub, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		hub:          hub,
		logger:       logger,
		pingInterval: 30 * time.Second,
		writeTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP runs one subscription. The optional identity_key query
// parameter narrows the feed to a single credential.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	// The server's write timeout would otherwise cut long-lived feeds.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.WarnContext(ctx, "websocket upgrade failed", "request_id", requestID, "error", err)
		return
	}
	defer conn.CloseNow() //nolint:errcheck

	sub := h.hub.Subscribe(models.IdentityKey(r.URL.Query().Get("identity_key")))
	defer sub.Close()
	h.logger.InfoContext(ctx, "stream subscriber connected", "request_id", requestID, "subscribers", h.hub.Len())

	ctx = conn.CloseRead(ctx)
	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Dropped():
			_ = conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
			return
		case <-ping.C:
			if err := h.withTimeout(ctx, conn.Ping); err != nil {
				h.logger.InfoContext(ctx, "stream heartbeat failed", "request_id", requestID, "error", err)
				return
			}
		case event := <-sub.Events():
			err := h.withTimeout(ctx, func(ctx context.Context) error {
				return wsjson.Write(ctx, conn, event)
			})
			if err != nil {
				h.logger.InfoContext(ctx, "stream write failed", "request_id", requestID, "error", err)
				return
			}
		}
	}
}

func (h *Handler) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return fn(ctx)
}
