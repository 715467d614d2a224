package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInvalidClaim is wrapped by every claim validation failure.
var ErrInvalidClaim = errors.New("invalid claim")

// MaxRunsPerBall bounds runs_scored and extra_runs on a single delivery.
const MaxRunsPerBall = 10

// DismissalClaim describes the wicket part of a claim.
type DismissalClaim struct {
	Type        DismissalType `json:"dismissal_type"`
	PlayerOutID string        `json:"player_out_id"`
	FielderIDs  []string      `json:"fielder_ids,omitempty"`
}

// BallClaim is what a scorer says happened on one delivery.
type BallClaim struct {
	OverNumber   int             `json:"over_number"`
	BallNumber   int             `json:"ball_number"`
	BowlerID     string          `json:"bowler_id"`
	StrikerID    string          `json:"striker_id"`
	NonStrikerID string          `json:"non_striker_id"`
	RunsScored   int             `json:"runs_scored"`
	ExtraType    ExtraType       `json:"extra_type"`
	ExtraRuns    int             `json:"extra_runs"`
	IsBoundary   bool            `json:"is_boundary"`
	IsWicket     bool            `json:"is_wicket"`
	Dismissal    *DismissalClaim `json:"dismissal,omitempty"`
}

// Slot returns the slot the claim targets.
func (c BallClaim) Slot(inningsID string) Slot {
	return Slot{InningsID: inningsID, OverNumber: c.OverNumber, BallNumber: c.BallNumber}
}

// Normalize returns a copy with the empty extra type mapped to none and
// fielders sorted.
func (c BallClaim) Normalize() BallClaim {
	c.ExtraType = c.ExtraType.Normalize()
	if c.Dismissal != nil {
		d := *c.Dismissal
		if len(d.FielderIDs) > 0 {
			d.FielderIDs = append([]string(nil), d.FielderIDs...)
			sort.Strings(d.FielderIDs)
		}
		c.Dismissal = &d
	}
	return c
}

// Validate checks the claim is well formed. It never consults ledger state.
func (c BallClaim) Validate() error {
	switch {
	case c.OverNumber < 0:
		return fmt.Errorf("%w: over_number must not be negative", ErrInvalidClaim)
	case c.BallNumber < 1:
		return fmt.Errorf("%w: ball_number must be at least 1", ErrInvalidClaim)
	case c.BowlerID == "":
		return fmt.Errorf("%w: bowler_id is required", ErrInvalidClaim)
	case c.StrikerID == "":
		return fmt.Errorf("%w: striker_id is required", ErrInvalidClaim)
	case c.NonStrikerID == "":
		return fmt.Errorf("%w: non_striker_id is required", ErrInvalidClaim)
	case c.StrikerID == c.NonStrikerID:
		return fmt.Errorf("%w: striker and non-striker must differ", ErrInvalidClaim)
	case c.RunsScored < 0 || c.RunsScored > MaxRunsPerBall:
		return fmt.Errorf("%w: runs_scored out of range", ErrInvalidClaim)
	case c.ExtraRuns < 0 || c.ExtraRuns > MaxRunsPerBall:
		return fmt.Errorf("%w: extra_runs out of range", ErrInvalidClaim)
	case !c.ExtraType.Valid():
		return fmt.Errorf("%w: unknown extra_type %q", ErrInvalidClaim, c.ExtraType)
	}

	switch c.ExtraType.Normalize() {
	case ExtraNone:
		if c.ExtraRuns != 0 {
			return fmt.Errorf("%w: extra_runs requires an extra_type", ErrInvalidClaim)
		}
	case ExtraWide:
		if c.ExtraRuns < 1 {
			return fmt.Errorf("%w: a wide carries at least one extra run", ErrInvalidClaim)
		}
		if c.RunsScored != 0 {
			return fmt.Errorf("%w: no runs off the bat on a wide", ErrInvalidClaim)
		}
	case ExtraNoBall:
		if c.ExtraRuns < 1 {
			return fmt.Errorf("%w: a no-ball carries at least one extra run", ErrInvalidClaim)
		}
	case ExtraBye, ExtraLegBye, ExtraPenalty:
		if c.RunsScored != 0 {
			return fmt.Errorf("%w: no runs off the bat with %s", ErrInvalidClaim, c.ExtraType)
		}
		if c.ExtraRuns < 1 {
			return fmt.Errorf("%w: %s requires extra_runs", ErrInvalidClaim, c.ExtraType)
		}
	}

	if c.IsBoundary {
		et := c.ExtraType.Normalize()
		if (et == ExtraNone || et == ExtraNoBall) && c.RunsScored != 4 && c.RunsScored != 6 {
			return fmt.Errorf("%w: a boundary off the bat scores 4 or 6", ErrInvalidClaim)
		}
	}

	if c.IsWicket {
		if c.Dismissal == nil {
			return fmt.Errorf("%w: a wicket requires a dismissal", ErrInvalidClaim)
		}
		if !c.Dismissal.Type.Valid() {
			return fmt.Errorf("%w: unknown dismissal_type %q", ErrInvalidClaim, c.Dismissal.Type)
		}
		if c.Dismissal.PlayerOutID == "" {
			return fmt.Errorf("%w: player_out_id is required", ErrInvalidClaim)
		}
		if c.Dismissal.PlayerOutID != c.StrikerID && c.Dismissal.PlayerOutID != c.NonStrikerID {
			return fmt.Errorf("%w: player_out_id must be at the crease", ErrInvalidClaim)
		}
	} else if c.Dismissal != nil {
		return fmt.Errorf("%w: dismissal given without a wicket", ErrInvalidClaim)
	}
	return nil
}

// Mismatch returns the first tracked field on which a and b disagree, or the
// empty string when they match. Tracked fields are runs_scored, extras,
// is_wicket, dismissal_type, striker_id and bowler_id.
func Mismatch(a, b BallClaim) DisputeType {
	a, b = a.Normalize(), b.Normalize()
	switch {
	case a.RunsScored != b.RunsScored:
		return DisputeRuns
	case a.ExtraType != b.ExtraType || a.ExtraRuns != b.ExtraRuns:
		return DisputeExtra
	case a.IsWicket != b.IsWicket:
		return DisputeWicket
	case a.dismissalType() != b.dismissalType():
		return DisputeDismissal
	case a.StrikerID != b.StrikerID || a.BowlerID != b.BowlerID:
		return DisputePlayer
	}
	return ""
}

// Agree reports whether two claims match on every tracked field.
func Agree(a, b BallClaim) bool {
	return Mismatch(a, b) == ""
}

func (c BallClaim) dismissalType() DismissalType {
	if c.Dismissal == nil {
		return ""
	}
	return c.Dismissal.Type
}

// canonicalClaim fixes field order for hashing. Slot fields are hashed separately.
type canonicalClaim struct {
	BowlerID     string   `json:"b"`
	StrikerID    string   `json:"s"`
	NonStrikerID string   `json:"ns"`
	RunsScored   int      `json:"r"`
	ExtraType    string   `json:"et"`
	ExtraRuns    int      `json:"er"`
	IsBoundary   bool     `json:"bd"`
	IsWicket     bool     `json:"w"`
	Dismissal    string   `json:"d"`
	PlayerOutID  string   `json:"po"`
	FielderIDs   []string `json:"f"`
}

// Canonical encodes the claim payload deterministically.
func (c BallClaim) Canonical() []byte {
	n := c.Normalize()
	cc := canonicalClaim{
		BowlerID:     n.BowlerID,
		StrikerID:    n.StrikerID,
		NonStrikerID: n.NonStrikerID,
		RunsScored:   n.RunsScored,
		ExtraType:    string(n.ExtraType),
		ExtraRuns:    n.ExtraRuns,
		IsBoundary:   n.IsBoundary,
		IsWicket:     n.IsWicket,
		FielderIDs:   []string{},
	}
	if n.Dismissal != nil {
		cc.Dismissal = string(n.Dismissal.Type)
		cc.PlayerOutID = n.Dismissal.PlayerOutID
		if len(n.Dismissal.FielderIDs) > 0 {
			cc.FielderIDs = n.Dismissal.FielderIDs
		}
	}
	// Marshal of a flat struct of strings, ints and bools cannot fail.
	out, _ := json.Marshal(cc)
	return out
}

// ClaimOf rebuilds the claim a committed ball was created from. w must be the
// ball's wicket when IsWicket is set.
func ClaimOf(b Ball, w *Wicket) BallClaim {
	c := BallClaim{
		OverNumber:   b.OverNumber,
		BallNumber:   b.BallNumber,
		BowlerID:     b.BowlerID,
		StrikerID:    b.StrikerID,
		NonStrikerID: b.NonStrikerID,
		RunsScored:   b.RunsScored,
		ExtraType:    b.ExtraType,
		ExtraRuns:    b.ExtraRuns,
		IsBoundary:   b.IsBoundary,
		IsWicket:     b.IsWicket,
	}
	if b.IsWicket && w != nil {
		c.Dismissal = &DismissalClaim{
			Type:        w.DismissalType,
			PlayerOutID: w.PlayerOutID,
			FielderIDs:  append([]string(nil), w.FielderIDs...),
		}
	}
	return c.Normalize()
}

// ScoringEvent is a tentative claim from one official. It lives until its
// slot commits, is abandoned or it is withdrawn.
type ScoringEvent struct {
	ID           string    `json:"id"`
	SubmissionID string    `json:"submission_id,omitempty"`
	MatchID      string    `json:"match_id"`
	InningsID    string    `json:"innings_id"`
	ScorerID     string    `json:"scorer_id"`
	Role         Role      `json:"role"`
	TeamID       string    `json:"team_id,omitempty"`
	Claim        BallClaim `json:"claim"`
	EventHash    string    `json:"event_hash"`
	PrevHash     string    `json:"prev_hash"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// Slot returns the targeted slot.
func (e ScoringEvent) Slot() Slot {
	return e.Claim.Slot(e.InningsID)
}

// Dispute references two or more conflicting claims, or one lone claim on
// timeout, for the same slot.
type Dispute struct {
	ID          string           `json:"id"`
	MatchID     string           `json:"match_id"`
	InningsID   string           `json:"innings_id"`
	Slot        Slot             `json:"slot"`
	Tier        Tier             `json:"tier"`
	Type        DisputeType      `json:"dispute_type"`
	Status      DisputeStatus    `json:"status"`
	ClaimIDs    []string         `json:"claim_ids"`
	Method      ResolutionMethod `json:"resolution_method,omitempty"`
	Final       *BallClaim       `json:"final_payload,omitempty"`
	BallID      string           `json:"ball_id,omitempty"`
	GapID       string           `json:"gap_id,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	RaisedAt    time.Time        `json:"raised_at"`
	ResolvedAt  *time.Time       `json:"resolved_at,omitempty"`
	LastAlertAt time.Time        `json:"-"`
}
