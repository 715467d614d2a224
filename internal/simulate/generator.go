package simulate

import (
	"fmt"
	"math/rand/v2"

	"github.com/okian/crease/internal/domain/model"
)

// Generator produces a plausible sequence of deliveries and tracks who is at
// the crease so every claim names the right players.
type Generator struct {
	rng          *rand.Rand
	ballsPerOver int
	maxOvers     int
	wicketsLimit int

	over, delivery, legal int
	wickets               int
	striker, nonStriker   string
	nextBatter            int
	bowlers               [2]string
}

// NewGenerator creates a generator for an innings of maxOvers overs.
func NewGenerator(seed uint64, maxOvers int) *Generator {
	return &Generator{
		rng:          rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		ballsPerOver: model.DefaultBallsPerOver,
		maxOvers:     maxOvers,
		wicketsLimit: model.DefaultWicketsToFall,
		striker:      batter(1),
		nonStriker:   batter(2),
		nextBatter:   3,
		bowlers:      [2]string{"bowler-1", "bowler-2"},
	}
}

func batter(n int) string { return fmt.Sprintf("batter-%d", n) }

// Openers returns the opening pair and first bowler.
func (g *Generator) Openers() (striker, nonStriker, bowler string) {
	return g.striker, g.nonStriker, g.bowlers[0]
}

// Done reports whether the innings is over.
func (g *Generator) Done() bool {
	return g.wickets >= g.wicketsLimit || g.over >= g.maxOvers
}

// Next returns the claim for the next delivery and advances the state.
func (g *Generator) Next() model.BallClaim {
	g.delivery++
	c := model.BallClaim{
		OverNumber:   g.over,
		BallNumber:   g.delivery,
		BowlerID:     g.bowlers[g.over%2],
		StrikerID:    g.striker,
		NonStrikerID: g.nonStriker,
		ExtraType:    model.ExtraNone,
	}

	switch roll := g.rng.IntN(100); {
	case roll < 4:
		c.ExtraType, c.ExtraRuns = model.ExtraWide, 1
	case roll < 6:
		c.ExtraType, c.ExtraRuns = model.ExtraNoBall, 1
	case roll < 9:
		c.ExtraType, c.ExtraRuns = model.ExtraLegBye, 1+g.rng.IntN(2)
	case roll < 13:
		c.IsWicket = true
		c.Dismissal = &model.DismissalClaim{Type: model.DismissalBowled, PlayerOutID: g.striker}
	case roll < 23:
		c.RunsScored, c.IsBoundary = 4, true
	case roll < 27:
		c.RunsScored, c.IsBoundary = 6, true
	default:
		c.RunsScored = []int{0, 0, 0, 1, 1, 1, 2, 3}[g.rng.IntN(8)]
	}

	g.advance(c)
	return c
}

func (g *Generator) advance(c model.BallClaim) {
	if c.IsWicket {
		g.wickets++
		g.striker = batter(g.nextBatter)
		g.nextBatter++
	}
	ran := c.RunsScored
	if c.ExtraType == model.ExtraLegBye {
		ran = c.ExtraRuns
	}
	if !c.IsBoundary && ran%2 == 1 {
		g.striker, g.nonStriker = g.nonStriker, g.striker
	}
	if c.ExtraType.IsLegal() {
		g.legal++
	}
	if g.legal == g.ballsPerOver {
		g.over++
		g.delivery, g.legal = 0, 0
		g.striker, g.nonStriker = g.nonStriker, g.striker
	}
}

// misreport returns a claim that disagrees with c on runs only.
func misreport(c model.BallClaim) model.BallClaim {
	out := c
	out.IsBoundary = false
	switch c.ExtraType.Normalize() {
	case model.ExtraNone, model.ExtraNoBall:
		if c.RunsScored >= 3 {
			out.RunsScored = c.RunsScored - 1
		} else {
			out.RunsScored = c.RunsScored + 1
		}
	default:
		out.ExtraRuns = c.ExtraRuns + 1
	}
	return out
}
