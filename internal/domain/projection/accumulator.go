package projection

import (
	"fmt"

	"github.com/okian/crease/internal/domain/model"
)

// Accumulator folds committed events one at a time. Project is an
// Accumulator run over the whole log, so incremental and full replays agree.
// It is not safe for concurrent use.
type Accumulator struct {
	cfg     model.MatchConfig
	innings model.Innings

	runs    int
	wickets int
	legal   int
	lastSeq int64
	extras  Extras

	batters     map[string]*BatterFigures
	batterOrder []string
	bowlers     map[string]*BowlerFigures
	bowlerOrder []string

	partnerships []Partnership
	fow          []FallOfWicket
	overs        map[int]*model.Over
	overOrder    []int
	gaps         []model.Gap

	striker    string
	nonStriker string
	bowler     string
}

// NewAccumulator starts an empty fold for an innings.
func NewAccumulator(cfg model.MatchConfig, inn model.Innings) *Accumulator {
	return &Accumulator{
		cfg:        cfg.WithDefaults(),
		innings:    inn,
		batters:    make(map[string]*BatterFigures),
		bowlers:    make(map[string]*BowlerFigures),
		overs:      make(map[int]*model.Over),
		striker:    inn.StrikerID,
		nonStriker: inn.NonStrikerID,
		bowler:     inn.BowlerID,
	}
}

// SetInnings replaces innings metadata such as target or completion.
func (a *Accumulator) SetInnings(inn model.Innings) {
	a.innings = inn
}

// Runs is the running team total.
func (a *Accumulator) Runs() int { return a.runs }

// Wickets is the number of wickets fallen.
func (a *Accumulator) Wickets() int { return a.wickets }

// PartnershipRuns is the total of the open partnership, zero right after a wicket.
func (a *Accumulator) PartnershipRuns() int {
	if n := len(a.partnerships); n > 0 && a.partnerships[n-1].Unbroken {
		return a.partnerships[n-1].Runs
	}
	return 0
}

// LegalBalls is the legal delivery count of the innings.
func (a *Accumulator) LegalBalls() int { return a.legal }

// Crease returns the current striker, non-striker and bowler.
func (a *Accumulator) Crease() (striker, nonStriker, bowler string) {
	return a.striker, a.nonStriker, a.bowler
}

// OverComplete reports whether an over has reached its legal ball count.
func (a *Accumulator) OverComplete(overNumber int) bool {
	o, ok := a.overs[overNumber]
	return ok && o.IsComplete
}

// Over returns a copy of an over summary.
func (a *Accumulator) Over(overNumber int) (model.Over, bool) {
	o, ok := a.overs[overNumber]
	if !ok {
		return model.Over{}, false
	}
	c := *o
	c.Outcomes = append([]string{}, o.Outcomes...)
	return c, true
}

// LastSequence is the highest sequence number folded so far.
func (a *Accumulator) LastSequence() int64 { return a.lastSeq }

// OverLegal is the legal delivery count of an over.
func (a *Accumulator) OverLegal(overNumber int) int {
	if o, ok := a.overs[overNumber]; ok {
		return o.LegalCount
	}
	return 0
}

// Next returns the next expected over and ball number.
func (a *Accumulator) Next() (overNumber, ballNumber int) {
	if len(a.overOrder) == 0 {
		return 0, 1
	}
	last := a.overs[a.overOrder[len(a.overOrder)-1]]
	if last.IsComplete {
		return last.Number + 1, 1
	}
	return last.Number, last.Deliveries + 1
}

// Apply folds a committed ball and its wicket, if any.
func (a *Accumulator) Apply(b model.Ball, w *model.Wicket) {
	bpo := a.cfg.BallsPerOver
	total := b.TotalRuns()

	a.runs += total
	a.lastSeq = b.Sequence
	if b.IsLegal {
		a.legal++
	}
	a.addExtras(b)

	o := a.over(b.OverNumber)
	if o.BowlerID == "" {
		o.BowlerID = b.BowlerID
	}
	o.Outcomes = append(o.Outcomes, b.Outcome())
	o.Deliveries++
	o.Runs += total
	if b.IsLegal {
		o.LegalCount++
	} else {
		o.AllLegal = false
	}

	striker := a.batter(b.StrikerID)
	a.batter(b.NonStrikerID)
	if b.ExtraType == model.ExtraNone || b.ExtraType == model.ExtraNoBall {
		striker.Runs += b.RunsScored
		if b.IsBoundary && b.RunsScored == 4 {
			striker.Fours++
		}
		if b.IsBoundary && b.RunsScored == 6 {
			striker.Sixes++
		}
	}
	if b.FacedByStriker() {
		striker.BallsFaced++
	}

	bw := a.bowlerFigures(b.BowlerID)
	if b.IsLegal {
		bw.LegalBalls++
	}
	bw.RunsConceded += b.BowlerRuns()
	switch b.ExtraType {
	case model.ExtraWide:
		bw.Wides++
	case model.ExtraNoBall:
		bw.NoBalls++
	}

	p := a.partnership(b.StrikerID, b.NonStrikerID)
	p.Runs += total
	if b.IsLegal {
		p.Balls++
	}

	s, ns := b.StrikerID, b.NonStrikerID
	if b.RunsRun()%2 == 1 {
		s, ns = ns, s
	}

	if b.IsWicket {
		a.wickets++
		p.Unbroken = false
		var out string
		var dt model.DismissalType
		if w != nil {
			out, dt = w.PlayerOutID, w.DismissalType
		}
		if out != "" {
			ob := a.batter(out)
			ob.IsOut = true
			ob.Dismissal = dt
			if dt.CreditedToBowler() {
				ob.BowlerID = b.BowlerID
			}
		}
		if dt.CreditedToBowler() {
			bw.Wickets++
		}
		a.fow = append(a.fow, FallOfWicket{
			WicketNumber:  a.wickets,
			PlayerOutID:   out,
			Score:         a.runs,
			Overs:         OversLabel(a.legal, bpo),
			DismissalType: dt,
		})
		switch out {
		case s:
			s = ""
		case ns:
			ns = ""
		}
	}

	a.bowler = b.BowlerID
	if o.LegalCount >= bpo && !o.IsComplete {
		o.IsComplete = true
		if o.IsMaiden() {
			a.bowlerFigures(o.BowlerID).Maidens++
		}
		s, ns = ns, s
		a.bowler = ""
	}
	a.striker, a.nonStriker = s, ns
}

// ApplyGap folds an abandoned slot. The over records it but no figures move.
func (a *Accumulator) ApplyGap(g model.Gap) {
	a.lastSeq = g.Sequence
	o := a.over(g.OverNumber)
	o.Outcomes = append(o.Outcomes, "x")
	o.Deliveries++
	o.AllLegal = false
	a.gaps = append(a.gaps, g)
}

// State materializes the fold as an independent value.
func (a *Accumulator) State() InningsState {
	bpo := a.cfg.BallsPerOver
	st := InningsState{
		MatchID:          a.innings.MatchID,
		InningsID:        a.innings.ID,
		InningsNumber:    a.innings.Number,
		BattingTeamID:    a.innings.BattingTeamID,
		BowlingTeamID:    a.innings.BowlingTeamID,
		Runs:             a.runs,
		Wickets:          a.wickets,
		LegalBalls:       a.legal,
		Overs:            OversLabel(a.legal, bpo),
		CompletedOvers:   a.legal / bpo,
		BallInOver:       a.legal % bpo,
		RunRate:          perOver(float64(a.runs), a.legal, bpo),
		Target:           a.innings.Target,
		Extras:           a.extras,
		Batting:          make([]BatterFigures, 0, len(a.batterOrder)),
		Bowling:          make([]BowlerFigures, 0, len(a.bowlerOrder)),
		Partnerships:     append([]Partnership{}, a.partnerships...),
		FallOfWickets:    append([]FallOfWicket{}, a.fow...),
		OverSummaries:    make([]model.Over, 0, len(a.overOrder)),
		Gaps:             append([]model.Gap{}, a.gaps...),
		StrikerID:        a.striker,
		NonStrikerID:     a.nonStriker,
		BowlerID:         a.bowler,
		LastSequence:     a.lastSeq,
		IsCompleted:      a.innings.IsCompleted,
		CompletionReason: a.innings.CompletionReason,
	}
	for _, id := range a.batterOrder {
		f := *a.batters[id]
		if f.BallsFaced > 0 {
			f.StrikeRate = round2(float64(f.Runs) * 100 / float64(f.BallsFaced))
		}
		st.Batting = append(st.Batting, f)
	}
	for _, id := range a.bowlerOrder {
		f := *a.bowlers[id]
		f.Overs = OversLabel(f.LegalBalls, bpo)
		f.Economy = perOver(float64(f.RunsConceded), f.LegalBalls, bpo)
		st.Bowling = append(st.Bowling, f)
	}
	for _, n := range a.overOrder {
		o := *a.overs[n]
		o.Outcomes = append([]string{}, o.Outcomes...)
		st.OverSummaries = append(st.OverSummaries, o)
	}
	if st.Target > 0 {
		st.RunsRequired = max(st.Target-st.Runs, 0)
		if a.cfg.MaxOvers > 0 {
			st.BallsRemaining = max(a.cfg.MaxOvers*bpo-a.legal, 0)
			if st.BallsRemaining > 0 {
				st.RequiredRunRate = round2(float64(st.RunsRequired) / (float64(st.BallsRemaining) / float64(bpo)))
			}
		}
	}
	return st
}

func (a *Accumulator) addExtras(b model.Ball) {
	switch b.ExtraType {
	case model.ExtraWide:
		a.extras.Wides += b.ExtraRuns
	case model.ExtraNoBall:
		a.extras.NoBalls += b.ExtraRuns
	case model.ExtraBye:
		a.extras.Byes += b.ExtraRuns
	case model.ExtraLegBye:
		a.extras.LegByes += b.ExtraRuns
	case model.ExtraPenalty:
		a.extras.Penalties += b.ExtraRuns
	}
	a.extras.Total += b.ExtraRuns
}

func (a *Accumulator) over(n int) *model.Over {
	if o, ok := a.overs[n]; ok {
		return o
	}
	o := &model.Over{
		ID:        model.OverID(a.innings.ID, n),
		InningsID: a.innings.ID,
		Number:    n,
		AllLegal:  true,
	}
	a.overs[n] = o
	a.overOrder = append(a.overOrder, n)
	return o
}

func (a *Accumulator) batter(id string) *BatterFigures {
	if f, ok := a.batters[id]; ok {
		return f
	}
	f := &BatterFigures{PlayerID: id}
	a.batters[id] = f
	a.batterOrder = append(a.batterOrder, id)
	return f
}

func (a *Accumulator) bowlerFigures(id string) *BowlerFigures {
	if f, ok := a.bowlers[id]; ok {
		return f
	}
	f := &BowlerFigures{PlayerID: id}
	a.bowlers[id] = f
	a.bowlerOrder = append(a.bowlerOrder, id)
	return f
}

// partnership returns the open partnership, starting a new one after a wicket.
func (a *Accumulator) partnership(s, ns string) *Partnership {
	if n := len(a.partnerships); n > 0 && a.partnerships[n-1].Unbroken {
		return &a.partnerships[n-1]
	}
	a.partnerships = append(a.partnerships, Partnership{
		Number:   len(a.partnerships) + 1,
		BatterA:  s,
		BatterB:  ns,
		Unbroken: true,
	})
	return &a.partnerships[len(a.partnerships)-1]
}

// Label is the over.ball display label of a delivery bowled after legalBefore
// legal balls in its over.
func Label(overNumber, legalBefore int) string {
	return fmt.Sprintf("%d.%d", overNumber, legalBefore+1)
}
