// Package events defines the domain events emitted by the ledger, the
// consensus engine and the dispute resolver.
package events

import (
	"context"
	"time"

	"github.com/okian/crease/internal/domain/model"
	"github.com/okian/crease/internal/domain/types"
)

// Type names an event on the wire.
type Type string

// Event types.
const (
	BallCommitted   Type = "ball_committed"
	WicketFallen    Type = "wicket_fallen"
	OverComplete    Type = "over_complete"
	InningsStarted  Type = "innings_started"
	InningsComplete Type = "innings_complete"
	BallAbandoned   Type = "ball_abandoned"
	DisputeRaised   Type = "dispute_raised"
	DisputeResolved Type = "dispute_resolved"
	DisputeReminder Type = "dispute_reminder"
	DisputeSettled  Type = "dispute_settled"
	MatchEnded      Type = "match_ended"
	Snapshot        Type = "snapshot"
)

// Durable reports whether events of this type record ledger history.
// Downstream consumers such as the performance stream must not miss them.
func (t Type) Durable() bool {
	switch t {
	case BallCommitted, WicketFallen, OverComplete, InningsStarted, InningsComplete, BallAbandoned, MatchEnded:
		return true
	default:
		return false
	}
}

// Event is one domain occurrence.
type Event struct {
	Type      Type
	MatchID   string
	InningsID string
	Sequence  int64
	Payload   any
	At        time.Time
}

// Envelope converts the event to its wire form.
func (e Event) Envelope() types.Envelope {
	return types.Envelope{
		EventType:      string(e.Type),
		MatchID:        e.MatchID,
		InningsID:      e.InningsID,
		Payload:        e.Payload,
		SequenceNumber: e.Sequence,
		Timestamp:      e.At,
	}
}

// Publisher receives events in the order they happened for a match.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, e Event)

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, e Event) { f(ctx, e) }

// Nop drops every event.
var Nop Publisher = PublisherFunc(func(context.Context, Event) {})

// BallPayload accompanies BallCommitted.
type BallPayload struct {
	Ball   model.Ball    `json:"ball"`
	Wicket *model.Wicket `json:"wicket,omitempty"`
}

// DisputePayload accompanies dispute events.
type DisputePayload struct {
	Dispute model.Dispute        `json:"dispute"`
	Claims  []model.ScoringEvent `json:"claims,omitempty"`
	Ball    *model.Ball          `json:"ball,omitempty"`
	Gap     *model.Gap           `json:"gap,omitempty"`
	Age     string               `json:"age,omitempty"`
}
