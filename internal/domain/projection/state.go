// Package projection derives innings state from committed ledger events.
// Nothing here mutates history; every figure is recomputed from balls.
package projection

import (
	"fmt"
	"math"

	"github.com/okian/crease/internal/domain/model"
)

// Input is everything a projection reads. Balls and gaps must be in
// sequence order.
type Input struct {
	Config  model.MatchConfig
	Innings model.Innings
	Balls   []model.Ball
	Wickets map[string]model.Wicket
	Gaps    []model.Gap
}

// Extras breaks extra runs down by type.
type Extras struct {
	Wides     int `json:"wides"`
	NoBalls   int `json:"no_balls"`
	Byes      int `json:"byes"`
	LegByes   int `json:"leg_byes"`
	Penalties int `json:"penalties"`
	Total     int `json:"total"`
}

// BatterFigures are per-innings batting figures.
type BatterFigures struct {
	PlayerID   string              `json:"player_id"`
	Runs       int                 `json:"runs"`
	BallsFaced int                 `json:"balls_faced"`
	Fours      int                 `json:"fours"`
	Sixes      int                 `json:"sixes"`
	StrikeRate float64             `json:"strike_rate"`
	IsOut      bool                `json:"is_out"`
	Dismissal  model.DismissalType `json:"dismissal,omitempty"`
	BowlerID   string              `json:"bowler_id,omitempty"`
}

// BowlerFigures are per-innings bowling figures.
type BowlerFigures struct {
	PlayerID     string  `json:"player_id"`
	LegalBalls   int     `json:"legal_balls"`
	Overs        string  `json:"overs"`
	Maidens      int     `json:"maidens"`
	RunsConceded int     `json:"runs_conceded"`
	Wickets      int     `json:"wickets"`
	Economy      float64 `json:"economy"`
	Wides        int     `json:"wides"`
	NoBalls      int     `json:"no_balls"`
}

// Partnership tracks runs added between two wickets.
type Partnership struct {
	Number   int    `json:"number"`
	BatterA  string `json:"batter_a"`
	BatterB  string `json:"batter_b"`
	Runs     int    `json:"runs"`
	Balls    int    `json:"balls"`
	Unbroken bool   `json:"unbroken"`
}

// FallOfWicket is one entry in the fall-of-wickets line.
type FallOfWicket struct {
	WicketNumber  int                 `json:"wicket_number"`
	PlayerOutID   string              `json:"player_out_id"`
	Score         int                 `json:"score"`
	Overs         string              `json:"overs"`
	DismissalType model.DismissalType `json:"dismissal_type"`
}

// InningsState is the derived view of one innings.
type InningsState struct {
	MatchID          string                 `json:"match_id"`
	InningsID        string                 `json:"innings_id"`
	InningsNumber    int                    `json:"innings_number"`
	BattingTeamID    string                 `json:"batting_team_id"`
	BowlingTeamID    string                 `json:"bowling_team_id"`
	Runs             int                    `json:"runs"`
	Wickets          int                    `json:"wickets"`
	LegalBalls       int                    `json:"legal_balls"`
	Overs            string                 `json:"overs"`
	CompletedOvers   int                    `json:"completed_overs"`
	BallInOver       int                    `json:"ball_in_over"`
	RunRate          float64                `json:"run_rate"`
	Target           int                    `json:"target,omitempty"`
	RunsRequired     int                    `json:"runs_required,omitempty"`
	BallsRemaining   int                    `json:"balls_remaining,omitempty"`
	RequiredRunRate  float64                `json:"required_run_rate,omitempty"`
	Extras           Extras                 `json:"extras"`
	Batting          []BatterFigures        `json:"batting"`
	Bowling          []BowlerFigures        `json:"bowling"`
	Partnerships     []Partnership          `json:"partnerships"`
	FallOfWickets    []FallOfWicket         `json:"fall_of_wickets"`
	OverSummaries    []model.Over           `json:"overs_summary"`
	Gaps             []model.Gap            `json:"gaps"`
	StrikerID        string                 `json:"striker_id,omitempty"`
	NonStrikerID     string                 `json:"non_striker_id,omitempty"`
	BowlerID         string                 `json:"bowler_id,omitempty"`
	LastSequence     int64                  `json:"sequence_number"`
	IsCompleted      bool                   `json:"is_completed"`
	CompletionReason model.CompletionReason `json:"completion_reason,omitempty"`
}

// MatchState groups the innings of a match in innings order.
type MatchState struct {
	MatchID string         `json:"match_id"`
	Tier    model.Tier     `json:"tier"`
	Live    bool           `json:"live"`
	Innings []InningsState `json:"innings"`
}

// Project is the pure projection of a full innings log.
func Project(in Input) InningsState {
	acc := NewAccumulator(in.Config, in.Innings)
	gi := 0
	for _, b := range in.Balls {
		for gi < len(in.Gaps) && in.Gaps[gi].Sequence < b.Sequence {
			acc.ApplyGap(in.Gaps[gi])
			gi++
		}
		var w *model.Wicket
		if b.IsWicket {
			if wk, ok := in.Wickets[b.WicketID]; ok {
				w = &wk
			}
		}
		acc.Apply(b, w)
	}
	for ; gi < len(in.Gaps); gi++ {
		acc.ApplyGap(in.Gaps[gi])
	}
	return acc.State()
}

// Completion reports why an innings should end given its state, or the empty
// reason while it continues.
func Completion(cfg model.MatchConfig, st InningsState) model.CompletionReason {
	cfg = cfg.WithDefaults()
	switch {
	case st.Wickets >= cfg.WicketsToFall:
		return model.CompletionAllOut
	case st.Target > 0 && st.Runs >= st.Target:
		return model.CompletionTargetReached
	case cfg.MaxOvers > 0 && st.LegalBalls >= cfg.MaxOvers*cfg.BallsPerOver:
		return model.CompletionOversExhausted
	}
	return model.CompletionNone
}

// OversLabel formats legal balls as completed overs and balls, e.g. 12.3.
func OversLabel(legal, ballsPerOver int) string {
	if ballsPerOver <= 0 {
		ballsPerOver = model.DefaultBallsPerOver
	}
	return fmt.Sprintf("%d.%d", legal/ballsPerOver, legal%ballsPerOver)
}

func perOver(num float64, legal, ballsPerOver int) float64 {
	if legal == 0 {
		return 0
	}
	return round2(num / (float64(legal) / float64(ballsPerOver)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
