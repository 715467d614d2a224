package model

import (
	"fmt"
	"time"
)

// Defaults applied when a match does not configure its own values.
const (
	DefaultBallsPerOver   = 6
	DefaultWicketsToFall  = 10
	DefaultMatchingWindow = 30 * time.Second
)

// MatchConfig is supplied by the match lifecycle collaborator when a match goes live.
type MatchConfig struct {
	MatchID        string        `json:"match_id"`
	Tier           Tier          `json:"tier"`
	BallsPerOver   int           `json:"balls_per_over"`
	WicketsToFall  int           `json:"wickets_to_fall"`
	MaxOvers       int           `json:"max_overs"`
	MatchingWindow time.Duration `json:"matching_window"`
	HomeTeamID     string        `json:"home_team_id"`
	AwayTeamID     string        `json:"away_team_id"`
	Live           bool          `json:"live"`
	RegisteredAt   time.Time     `json:"registered_at"`
}

// WithDefaults fills zero values with the package defaults.
func (c MatchConfig) WithDefaults() MatchConfig {
	if c.BallsPerOver <= 0 {
		c.BallsPerOver = DefaultBallsPerOver
	}
	if c.WicketsToFall <= 0 {
		c.WicketsToFall = DefaultWicketsToFall
	}
	if c.MatchingWindow <= 0 {
		c.MatchingWindow = DefaultMatchingWindow
	}
	return c
}

// Innings is one batting turn of a team. Running totals are never stored here;
// they come from the projection of committed balls.
type Innings struct {
	ID               string           `json:"id"`
	MatchID          string           `json:"match_id"`
	Number           int              `json:"innings_number"`
	BattingTeamID    string           `json:"batting_team_id"`
	BowlingTeamID    string           `json:"bowling_team_id"`
	Target           int              `json:"target,omitempty"`
	StrikerID        string           `json:"striker_id,omitempty"`
	NonStrikerID     string           `json:"non_striker_id,omitempty"`
	BowlerID         string           `json:"bowler_id,omitempty"`
	IsCompleted      bool             `json:"is_completed"`
	CompletionReason CompletionReason `json:"completion_reason,omitempty"`
	StartedAt        time.Time        `json:"started_at"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
}

// OverID builds the arena key of an over.
func OverID(inningsID string, overNumber int) string {
	return fmt.Sprintf("%s:%d", inningsID, overNumber)
}

// Over groups the deliveries of one bowler. OverNumber is zero-based so the
// first legal ball of the innings displays as 0.1.
type Over struct {
	ID         string   `json:"id"`
	InningsID  string   `json:"innings_id"`
	Number     int      `json:"over_number"`
	BowlerID   string   `json:"bowler_id"`
	Outcomes   []string `json:"outcomes"`
	Deliveries int      `json:"deliveries"`
	LegalCount int      `json:"legal_count"`
	Runs       int      `json:"runs"`
	AllLegal   bool     `json:"-"`
	IsComplete bool     `json:"is_complete"`
}

// IsMaiden reports a completed over of legal deliveries that conceded no runs at all.
func (o Over) IsMaiden() bool {
	return o.IsComplete && o.AllLegal && o.Runs == 0
}

// Slot addresses one delivery within an innings.
type Slot struct {
	InningsID  string `json:"innings_id"`
	OverNumber int    `json:"over_number"`
	BallNumber int    `json:"ball_number"`
}

// Key is a stable map key for the slot.
func (s Slot) Key() string {
	return fmt.Sprintf("%s:%d.%d", s.InningsID, s.OverNumber, s.BallNumber)
}

// Before reports whether s comes strictly before o in delivery order.
func (s Slot) Before(o Slot) bool {
	if s.OverNumber != o.OverNumber {
		return s.OverNumber < o.OverNumber
	}
	return s.BallNumber < o.BallNumber
}

// Ball is the atomic committed event. It is never updated or deleted.
type Ball struct {
	ID                  string     `json:"id"`
	MatchID             string     `json:"match_id"`
	InningsID           string     `json:"innings_id"`
	OverID              string     `json:"over_id"`
	OverNumber          int        `json:"over_number"`
	BallNumber          int        `json:"ball_number"`
	Label               string     `json:"label"`
	Sequence            int64      `json:"sequence_number"`
	BowlerID            string     `json:"bowler_id"`
	StrikerID           string     `json:"striker_id"`
	NonStrikerID        string     `json:"non_striker_id"`
	RunsScored          int        `json:"runs_scored"`
	ExtraType           ExtraType  `json:"extra_type"`
	ExtraRuns           int        `json:"extra_runs"`
	IsLegal             bool       `json:"is_legal_delivery"`
	IsWicket            bool       `json:"is_wicket"`
	IsBoundary          bool       `json:"is_boundary"`
	WicketID            string     `json:"wicket_id,omitempty"`
	Provenance          Provenance `json:"provenance"`
	MatchingSubmissions int        `json:"matching_submissions"`
	LowConfidence       bool       `json:"low_confidence,omitempty"`
	EventHash           string     `json:"event_hash"`
	PrevHash            string     `json:"prev_hash"`
	CommittedAt         time.Time  `json:"committed_at"`
}

// Slot returns the slot the ball occupies.
func (b Ball) Slot() Slot {
	return Slot{InningsID: b.InningsID, OverNumber: b.OverNumber, BallNumber: b.BallNumber}
}

// TotalRuns is what the ball adds to the team total.
func (b Ball) TotalRuns() int {
	return b.RunsScored + b.ExtraRuns
}

// BowlerRuns is what the ball adds to the bowler's conceded figure.
func (b Ball) BowlerRuns() int {
	if b.ExtraType.ChargedToBowler() {
		return b.RunsScored + b.ExtraRuns
	}
	return b.RunsScored
}

// FacedByStriker reports whether the delivery counts as a ball faced.
func (b Ball) FacedByStriker() bool {
	return b.ExtraType != ExtraWide
}

// RunsRun is the number of runs physically completed between the wickets,
// which drives strike rotation.
func (b Ball) RunsRun() int {
	switch b.ExtraType {
	case ExtraWide:
		if b.IsBoundary {
			return 0
		}
		return b.ExtraRuns - 1
	case ExtraNoBall:
		if b.IsBoundary {
			return 0
		}
		return b.RunsScored
	case ExtraBye, ExtraLegBye:
		if b.IsBoundary {
			return 0
		}
		return b.ExtraRuns
	case ExtraPenalty:
		return 0
	}
	if b.IsBoundary {
		return 0
	}
	return b.RunsScored
}

// Outcome is the short label used in over summaries.
func (b Ball) Outcome() string {
	var s string
	switch b.ExtraType {
	case ExtraWide:
		s = fmt.Sprintf("%dwd", b.ExtraRuns)
	case ExtraNoBall:
		if b.RunsScored > 0 {
			s = fmt.Sprintf("%dnb", b.RunsScored)
		} else {
			s = "nb"
		}
	case ExtraBye:
		s = fmt.Sprintf("%db", b.ExtraRuns)
	case ExtraLegBye:
		s = fmt.Sprintf("%dlb", b.ExtraRuns)
	case ExtraPenalty:
		s = fmt.Sprintf("%dp", b.ExtraRuns)
	default:
		if b.RunsScored == 0 {
			s = "."
		} else {
			s = fmt.Sprintf("%d", b.RunsScored)
		}
	}
	if b.IsWicket {
		if s == "." {
			return "W"
		}
		return s + "W"
	}
	return s
}

// Wicket is created atomically with its Ball.
type Wicket struct {
	ID               string        `json:"id"`
	BallID           string        `json:"ball_id"`
	InningsID        string        `json:"innings_id"`
	DismissalType    DismissalType `json:"dismissal_type"`
	PlayerOutID      string        `json:"player_out_id"`
	BowlerID         string        `json:"bowler_id,omitempty"`
	FielderIDs       []string      `json:"fielder_ids,omitempty"`
	WicketNumber     int           `json:"wicket_number"`
	ScoreAtDismissal int           `json:"score_at_dismissal"`
	PartnershipRuns  int           `json:"partnership_runs"`
}

// Gap records an abandoned slot. No Ball exists for it and its ball number is
// skipped so consumers can display the anomaly.
type Gap struct {
	ID         string    `json:"id"`
	MatchID    string    `json:"match_id"`
	InningsID  string    `json:"innings_id"`
	OverID     string    `json:"over_id"`
	OverNumber int       `json:"over_number"`
	BallNumber int       `json:"ball_number"`
	Sequence   int64     `json:"sequence_number"`
	DisputeID  string    `json:"dispute_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Slot returns the abandoned slot.
func (g Gap) Slot() Slot {
	return Slot{InningsID: g.InningsID, OverNumber: g.OverNumber, BallNumber: g.BallNumber}
}
