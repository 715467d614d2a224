package dispute

import "github.com/okian/crease/internal/domain/model"

// Decision is input to Resolve. ActorID, Role and TeamID identify the
// authenticated official; Claim is that official's own ruling and is kept on
// the dispute as their vote. Each call carries at most one position.
type Decision struct {
	ActorID string           `json:"actor_id"`
	Role    model.Role       `json:"role"`
	TeamID  string           `json:"team_id,omitempty"`
	Claim   *model.BallClaim `json:"claim,omitempty"`
	Abandon bool             `json:"abandon,omitempty"`
	Reason  string           `json:"reason,omitempty"`
}

type outcome struct {
	method   model.ResolutionMethod
	claim    model.BallClaim
	matching int
}

type step func(tier model.Tier, dec Decision, pool []model.ScoringEvent) (outcome, bool)

// ladder is applied in order until a step yields an outcome.
var ladder = []step{umpireOverride, videoReview, majorityVote, captainConsensus, abandon}

func umpireOverride(_ model.Tier, dec Decision, pool []model.ScoringEvent) (outcome, bool) {
	if dec.Role == model.RoleUmpire && dec.Claim != nil {
		return outcome{method: model.ResolutionUmpireOverride, claim: *dec.Claim, matching: 1}, true
	}
	for i := len(pool) - 1; i >= 0; i-- {
		if pool[i].Role == model.RoleUmpire {
			return outcome{method: model.ResolutionUmpireOverride, claim: pool[i].Claim, matching: 1}, true
		}
	}
	return outcome{}, false
}

func videoReview(_ model.Tier, dec Decision, _ []model.ScoringEvent) (outcome, bool) {
	if dec.Role == model.RoleReviewer && dec.Claim != nil {
		return outcome{method: model.ResolutionVideoReview, claim: *dec.Claim, matching: 1}, true
	}
	return outcome{}, false
}

// majorityVote needs at least two identical claims forming a strict majority
// of the latest claim per scorer. Only TRIPLE matches vote.
func majorityVote(tier model.Tier, _ Decision, pool []model.ScoringEvent) (outcome, bool) {
	if tier != model.TierTriple {
		return outcome{}, false
	}
	latest := make(map[string]model.BallClaim)
	var order []string
	for _, ev := range pool {
		if ev.Role == model.RoleCaptain {
			continue
		}
		if _, ok := latest[ev.ScorerID]; !ok {
			order = append(order, ev.ScorerID)
		}
		latest[ev.ScorerID] = ev.Claim
	}
	for _, id := range order {
		c := latest[id]
		n := 0
		for _, other := range order {
			if model.Agree(c, latest[other]) {
				n++
			}
		}
		if n >= 2 && n*2 > len(order) {
			return outcome{method: model.ResolutionMajorityVote, claim: c, matching: n}, true
		}
	}
	return outcome{}, false
}

// captainConsensus needs captains of two different teams backing the same claim.
func captainConsensus(_ model.Tier, _ Decision, pool []model.ScoringEvent) (outcome, bool) {
	var captains []model.ScoringEvent
	for _, ev := range pool {
		if ev.Role == model.RoleCaptain && ev.TeamID != "" {
			captains = append(captains, ev)
		}
	}
	for i := range captains {
		for j := i + 1; j < len(captains); j++ {
			a, b := captains[i], captains[j]
			if a.TeamID != b.TeamID && model.Agree(a.Claim, b.Claim) {
				return outcome{method: model.ResolutionCaptainConsensus, claim: a.Claim, matching: 2}, true
			}
		}
	}
	return outcome{}, false
}

func abandon(_ model.Tier, dec Decision, _ []model.ScoringEvent) (outcome, bool) {
	if dec.Abandon {
		return outcome{method: model.ResolutionAbandon}, true
	}
	return outcome{}, false
}
