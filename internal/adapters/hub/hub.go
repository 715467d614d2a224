// Package hub fans match events out to spectator connections grouped in
// per-match rooms.
package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/crease/internal/domain/events"
	"github.com/okian/crease/internal/domain/types"
	"github.com/okian/crease/pkg/logger"
	"github.com/okian/crease/pkg/metrics"
)

// Conn is one spectator connection. Send must not block; a connection that
// cannot keep up returns an error and is dropped from its room.
type Conn interface {
	ID() string
	Send(env types.Envelope) error
	Close() error
}

// Snapshotter builds the state a spectator receives on join.
type Snapshotter interface {
	Snapshot(ctx context.Context, matchID string) (any, error)
}

// SnapshotFunc adapts a function to Snapshotter.
type SnapshotFunc func(ctx context.Context, matchID string) (any, error)

// Snapshot calls f.
func (f SnapshotFunc) Snapshot(ctx context.Context, matchID string) (any, error) {
	return f(ctx, matchID)
}

type room map[string]Conn

// Hub owns the rooms. It is safe for concurrent use.
type Hub struct {
	snap Snapshotter
	log  logger.Logger
	live func(ctx context.Context, matchID string) bool
	now  func() time.Time

	mu     sync.RWMutex
	rooms  map[string]room
	closed bool
}

// New creates a hub.
func New(snap Snapshotter, opts ...Option) *Hub {
	h := &Hub{
		snap:  snap,
		rooms: make(map[string]room),
		live:  func(context.Context, string) bool { return false },
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = logger.Get().Named("hub")
	}
	return h
}

// Join sends the current snapshot to conn and adds it to the match room.
// Broadcasts are held back while the snapshot is sent so nothing published
// after it is missed.
func (h *Hub) Join(ctx context.Context, conn Conn, matchID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}

	state, err := h.snap.Snapshot(ctx, matchID)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", matchID, err)
	}
	env := types.Envelope{
		EventType: string(events.Snapshot),
		MatchID:   matchID,
		Payload:   state,
		Timestamp: h.now().UTC(),
	}
	if err := conn.Send(env); err != nil {
		return fmt.Errorf("send snapshot: %w", err)
	}

	r, ok := h.rooms[matchID]
	if !ok {
		r = make(room)
		h.rooms[matchID] = r
	}
	r[conn.ID()] = conn
	h.gauges()
	h.log.Debug(ctx, "spectator joined", logger.MatchID(matchID), logger.String("conn_id", conn.ID()))
	return nil
}

// Leave removes conn from the room. The room goes away once it is empty and
// the match is no longer live.
func (h *Hub) Leave(ctx context.Context, conn Conn, matchID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(ctx, conn.ID(), matchID)
}

func (h *Hub) remove(ctx context.Context, connID, matchID string) {
	r, ok := h.rooms[matchID]
	if !ok {
		return
	}
	delete(r, connID)
	if len(r) == 0 && !h.live(ctx, matchID) {
		delete(h.rooms, matchID)
	}
	h.gauges()
}

// Broadcast sends env to every connection in the match room. A failed send
// closes and removes that connection only.
func (h *Hub) Broadcast(ctx context.Context, matchID string, env types.Envelope) int {
	h.mu.RLock()
	r := h.rooms[matchID]
	conns := make([]Conn, 0, len(r))
	for _, c := range r {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	sent := 0
	var failed []Conn
	for _, c := range conns {
		if err := c.Send(env); err != nil {
			failed = append(failed, c)
			if errors.Is(err, ErrSlowConsumer) {
				metrics.RecordHubDroppedSend()
			}
			h.log.Warn(ctx, "dropping spectator",
				logger.MatchID(matchID),
				logger.String("conn_id", c.ID()),
				logger.Error(err))
			continue
		}
		sent++
	}
	if len(conns) > 0 {
		metrics.RecordHubBroadcast()
	}

	if len(failed) > 0 {
		h.mu.Lock()
		for _, c := range failed {
			h.remove(ctx, c.ID(), matchID)
		}
		h.mu.Unlock()
		for _, c := range failed {
			_ = c.Close()
		}
	}
	return sent
}

// Size returns the number of connections in a room.
func (h *Hub) Size(matchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[matchID])
}

// Rooms returns the number of open rooms.
func (h *Hub) Rooms() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Shutdown closes every connection. Later joins fail with ErrClosed.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[string]room)
	h.closed = true
	h.gauges()
	h.mu.Unlock()

	n := 0
	for _, r := range rooms {
		for _, c := range r {
			_ = c.Close()
			n++
		}
	}
	h.log.Info(context.Background(), "hub shut down", logger.Int("connections", n))
}

// gauges must be called with mu held.
func (h *Hub) gauges() {
	conns := 0
	for _, r := range h.rooms {
		conns += len(r)
	}
	metrics.UpdateHubRooms(len(h.rooms))
	metrics.UpdateHubConnections(conns)
}

// Sink adapts the hub to the event dispatcher.
type Sink struct {
	hub *Hub
}

// NewSink wraps h.
func NewSink(h *Hub) *Sink { return &Sink{hub: h} }

// Name implements worker.Sink.
func (s *Sink) Name() string { return "hub" }

// Handle broadcasts the event and tears down the room once a match ends
// with nobody watching.
func (s *Sink) Handle(ctx context.Context, e events.Event) error {
	s.hub.Broadcast(ctx, e.MatchID, e.Envelope())
	if e.Type == events.MatchEnded {
		s.hub.mu.Lock()
		if r, ok := s.hub.rooms[e.MatchID]; ok && len(r) == 0 {
			delete(s.hub.rooms, e.MatchID)
			s.hub.gauges()
		}
		s.hub.mu.Unlock()
	}
	return nil
}
