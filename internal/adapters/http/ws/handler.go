package ws

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/okian/crease/internal/adapters/hub"
	"github.com/okian/crease/pkg/logger"
)

const defaultSendBuffer = 256

// Handler upgrades spectator requests and attaches them to a hub room.
type Handler struct {
	hub      *hub.Hub
	upgrader websocket.Upgrader
	buffer   int
	log      logger.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithSendBuffer sets the per-client queue length.
func WithSendBuffer(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithCheckOrigin overrides the origin policy. The default accepts any origin.
func WithCheckOrigin(f func(r *http.Request) bool) Option {
	return func(h *Handler) {
		if f != nil {
			h.upgrader.CheckOrigin = f
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// NewHandler creates a spectator handler for h.
func NewHandler(h *hub.Hub, opts ...Option) *Handler {
	s := &Handler{
		hub:    h,
		buffer: defaultSendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("ws")
	}
	return s
}

// Serve upgrades the request and blocks until the spectator disconnects.
func (s *Handler) Serve(w http.ResponseWriter, r *http.Request, matchID string) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn(r.Context(), "websocket upgrade failed", logger.MatchID(matchID), logger.Error(err))
		return
	}
	ctx := r.Context()
	c := newClient(uuid.NewString(), conn, s.buffer, s.log)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump(ctx)
	}()

	if err := s.hub.Join(ctx, c, matchID); err != nil {
		s.log.Warn(ctx, "join failed", logger.MatchID(matchID), logger.Error(err))
		_ = c.Close()
		<-done
		return
	}
	s.log.Info(ctx, "spectator connected", logger.MatchID(matchID), logger.String("conn_id", c.id))

	c.readPump(ctx)

	s.hub.Leave(ctx, c, matchID)
	_ = c.Close()
	<-done
	s.log.Info(ctx, "spectator disconnected", logger.MatchID(matchID), logger.String("conn_id", c.id))
}
