// Package notify alerts match officials about disputes that need a decision.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/crease/internal/domain/events"
	"github.com/okian/crease/internal/domain/model"
	"github.com/okian/crease/pkg/logger"
)

// Format renders a dispute event as an alert. It reports false for events
// officials are not alerted about.
func Format(e events.Event) (string, bool) {
	p, ok := e.Payload.(events.DisputePayload)
	if !ok {
		return "", false
	}
	d := p.Dispute
	slot := fmt.Sprintf("%d.%d", d.Slot.OverNumber, d.Slot.BallNumber)

	var b strings.Builder
	switch e.Type {
	case events.DisputeRaised:
		fmt.Fprintf(&b, "Dispute raised: match %s, innings %s, ball %s\n", d.MatchID, d.InningsID, slot)
		fmt.Fprintf(&b, "Type: %s, claims: %d\n", d.Type, len(p.Claims))
		for _, c := range p.Claims {
			fmt.Fprintf(&b, "- %s (%s): %s\n", c.ScorerID, c.Role, describe(c.Claim))
		}
	case events.DisputeReminder:
		fmt.Fprintf(&b, "Dispute %s still open after %s: match %s, ball %s\n", d.ID, p.Age, d.MatchID, slot)
	case events.DisputeResolved:
		if d.Status == model.DisputeAbandoned {
			fmt.Fprintf(&b, "Ball %s abandoned: match %s, dispute %s\n", slot, d.MatchID, d.ID)
			if d.Reason != "" {
				fmt.Fprintf(&b, "Reason: %s\n", d.Reason)
			}
		} else {
			fmt.Fprintf(&b, "Dispute %s resolved by %s: match %s, ball %s\n", d.ID, d.Method, d.MatchID, slot)
		}
	default:
		return "", false
	}
	fmt.Fprintf(&b, "Dispute ID: %s", d.ID)
	return b.String(), true
}

func describe(c model.BallClaim) string {
	s := fmt.Sprintf("%d run(s)", c.RunsScored)
	if c.ExtraType != "" && c.ExtraType != model.ExtraNone {
		s += fmt.Sprintf(", %d %s", c.ExtraRuns, c.ExtraType)
	}
	if c.IsWicket && c.Dismissal != nil {
		s += fmt.Sprintf(", %s %s", c.Dismissal.PlayerOutID, c.Dismissal.Type)
	}
	return s
}

// Log is a sink that writes alerts to the logger. It is used when no
// messaging channel is configured.
type Log struct {
	log logger.Logger
}

// NewLog creates a log notifier.
func NewLog(l logger.Logger) *Log {
	if l == nil {
		l = logger.Get().Named("notify")
	}
	return &Log{log: l}
}

// Name implements worker.Sink.
func (n *Log) Name() string { return "notify_log" }

// Handle implements worker.Sink.
func (n *Log) Handle(ctx context.Context, e events.Event) error {
	text, ok := Format(e)
	if !ok {
		return nil
	}
	n.log.Warn(ctx, "dispute alert",
		logger.MatchID(e.MatchID),
		logger.String("event_type", string(e.Type)),
		logger.String("alert", text))
	return nil
}
