package consensus

import (
	"fmt"

	"github.com/okian/crease/internal/domain/model"
)

type verdict int

const (
	waiting verdict = iota
	agreed
	disputed
)

type decision struct {
	verdict  verdict
	claim    model.BallClaim
	matching int
	kind     model.DisputeType
}

// rule is the commit decision of one tier. claims holds at most one claim per
// scorer, in submission order.
type rule struct {
	provenance    model.Provenance
	lowConfidence bool
	// timesOut marks tiers where an expired window raises a dispute.
	timesOut bool
	decide   func(claims []model.ScoringEvent) decision
	// admit checks ev against the officials already claiming the slot.
	admit func(claims []model.ScoringEvent, ev model.ScoringEvent, disputed bool) error
}

var rules = map[model.Tier]rule{
	model.TierHonor:  {provenance: model.ProvenanceHonor, decide: first},
	model.TierSingle: {provenance: model.ProvenanceSingle, lowConfidence: true, decide: first},
	model.TierDual:   {provenance: model.ProvenanceDual, timesOut: true, decide: pair, admit: dualMakeup},
	model.TierTriple: {provenance: model.ProvenanceTriple, timesOut: true, decide: majority, admit: tripleMakeup},
}

// dualMakeup admits one scorer per side. Umpires only add evidence to a
// disputed slot.
func dualMakeup(claims []model.ScoringEvent, ev model.ScoringEvent, disputed bool) error {
	if ev.Role == model.RoleUmpire {
		if disputed {
			return nil
		}
		return fmt.Errorf("%w: umpires do not score DUAL matches", ErrForbidden)
	}
	return scorerMakeup(claims, ev)
}

// tripleMakeup admits two scorers and one umpire.
func tripleMakeup(claims []model.ScoringEvent, ev model.ScoringEvent, _ bool) error {
	if ev.Role != model.RoleUmpire {
		return scorerMakeup(claims, ev)
	}
	for _, c := range claims {
		if c.Role == model.RoleUmpire && c.ScorerID != ev.ScorerID {
			return fmt.Errorf("%w: umpire %s already claimed this ball", ErrForbidden, c.ScorerID)
		}
	}
	return nil
}

func scorerMakeup(claims []model.ScoringEvent, ev model.ScoringEvent) error {
	others := 0
	for _, c := range claims {
		if c.Role != model.RoleScorer || c.ScorerID == ev.ScorerID {
			continue
		}
		if c.TeamID != "" && c.TeamID == ev.TeamID {
			return fmt.Errorf("%w: team %s already has a scorer on this ball", ErrForbidden, ev.TeamID)
		}
		others++
	}
	if others >= 2 {
		return fmt.Errorf("%w: two scorers already claimed this ball", ErrForbidden)
	}
	return nil
}

func first(claims []model.ScoringEvent) decision {
	if len(claims) == 0 {
		return decision{verdict: waiting}
	}
	return decision{verdict: agreed, claim: claims[0].Claim, matching: 1}
}

func pair(claims []model.ScoringEvent) decision {
	if len(claims) < 2 {
		return decision{verdict: waiting}
	}
	if kind := model.Mismatch(claims[0].Claim, claims[1].Claim); kind != "" {
		return decision{verdict: disputed, kind: kind}
	}
	return decision{verdict: agreed, claim: claims[0].Claim, matching: 2}
}

// majority commits as soon as two claims agree. Three claims with no pair in
// agreement is a dispute.
func majority(claims []model.ScoringEvent) decision {
	for i := range claims {
		n := 1
		for j := range claims {
			if i != j && model.Agree(claims[i].Claim, claims[j].Claim) {
				n++
			}
		}
		if n >= 2 {
			return decision{verdict: agreed, claim: claims[i].Claim, matching: n}
		}
	}
	if len(claims) >= 3 {
		return decision{verdict: disputed, kind: model.Mismatch(claims[0].Claim, claims[1].Claim)}
	}
	return decision{verdict: waiting}
}
