// Package model contains domain models passed between layers.
package model

// ExtraType classifies runs not credited to the striker.
type ExtraType string

// Extra types.
const (
	ExtraNone    ExtraType = "none"
	ExtraWide    ExtraType = "wide"
	ExtraNoBall  ExtraType = "no_ball"
	ExtraBye     ExtraType = "bye"
	ExtraLegBye  ExtraType = "leg_bye"
	ExtraPenalty ExtraType = "penalty"
)

// Valid reports whether e is a known extra type. The empty value is treated as none.
func (e ExtraType) Valid() bool {
	switch e {
	case "", ExtraNone, ExtraWide, ExtraNoBall, ExtraBye, ExtraLegBye, ExtraPenalty:
		return true
	}
	return false
}

// Normalize maps the empty value to ExtraNone.
func (e ExtraType) Normalize() ExtraType {
	if e == "" {
		return ExtraNone
	}
	return e
}

// IsLegal reports whether a delivery with this extra counts toward the over.
func (e ExtraType) IsLegal() bool {
	return e != ExtraWide && e != ExtraNoBall
}

// ChargedToBowler reports whether the extra runs count against the bowler's figures.
func (e ExtraType) ChargedToBowler() bool {
	return e == ExtraWide || e == ExtraNoBall
}

// DismissalType is how a batter got out.
type DismissalType string

// Dismissal types.
const (
	DismissalBowled           DismissalType = "bowled"
	DismissalCaught           DismissalType = "caught"
	DismissalLBW              DismissalType = "lbw"
	DismissalRunOut           DismissalType = "run_out"
	DismissalStumped          DismissalType = "stumped"
	DismissalHitWicket        DismissalType = "hit_wicket"
	DismissalObstructingField DismissalType = "obstructing_field"
	DismissalHitBallTwice     DismissalType = "hit_ball_twice"
	DismissalTimedOut         DismissalType = "timed_out"
	DismissalRetiredOut       DismissalType = "retired_out"
)

// Valid reports whether d is a known dismissal type.
func (d DismissalType) Valid() bool {
	switch d {
	case DismissalBowled, DismissalCaught, DismissalLBW, DismissalRunOut, DismissalStumped,
		DismissalHitWicket, DismissalObstructingField, DismissalHitBallTwice,
		DismissalTimedOut, DismissalRetiredOut:
		return true
	}
	return false
}

// CreditedToBowler reports whether the bowler is credited with the wicket.
func (d DismissalType) CreditedToBowler() bool {
	switch d {
	case DismissalBowled, DismissalCaught, DismissalLBW, DismissalStumped, DismissalHitWicket:
		return true
	}
	return false
}

// Tier is the validation tier configured once per match.
type Tier string

// Validation tiers.
const (
	TierHonor  Tier = "honor"
	TierSingle Tier = "single"
	TierDual   Tier = "dual"
	TierTriple Tier = "triple"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierHonor, TierSingle, TierDual, TierTriple:
		return true
	}
	return false
}

// Role identifies the kind of official submitting a claim or decision.
type Role string

// Roles.
const (
	RoleScorer    Role = "scorer"
	RoleUmpire    Role = "umpire"
	RoleReviewer  Role = "reviewer"
	RoleCaptain   Role = "captain"
	RoleSpectator Role = "spectator"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleScorer, RoleUmpire, RoleReviewer, RoleCaptain, RoleSpectator:
		return true
	}
	return false
}

// CanScore reports whether the role may submit ball claims.
func (r Role) CanScore() bool {
	return r == RoleScorer || r == RoleUmpire
}

// CompletionReason explains why an innings ended.
type CompletionReason string

// Completion reasons.
const (
	CompletionNone           CompletionReason = ""
	CompletionAllOut         CompletionReason = "all_out"
	CompletionOversExhausted CompletionReason = "overs_exhausted"
	CompletionDeclared       CompletionReason = "declared"
	CompletionTargetReached  CompletionReason = "target_reached"
)

// Provenance records how a committed ball was validated.
type Provenance string

// Provenance values. Tier provenances come from automatic consensus, the rest
// from dispute resolution.
const (
	ProvenanceHonor            Provenance = "honor"
	ProvenanceSingle           Provenance = "single"
	ProvenanceDual             Provenance = "dual"
	ProvenanceTriple           Provenance = "triple"
	ProvenanceUmpireOverride   Provenance = "umpire_override"
	ProvenanceVideoReview      Provenance = "video_review"
	ProvenanceMajorityVote     Provenance = "majority_vote"
	ProvenanceCaptainConsensus Provenance = "captain_consensus"
)

// SlotState is the lifecycle state of one ball slot inside the consensus engine.
type SlotState string

// Slot states.
const (
	SlotPending   SlotState = "pending"
	SlotValidated SlotState = "validated"
	SlotDisputed  SlotState = "disputed"
	SlotResolved  SlotState = "resolved"
	SlotCommitted SlotState = "committed"
	SlotAbandoned SlotState = "abandoned"
)

// DisputeType names the first field on which claims disagreed.
type DisputeType string

// Dispute types.
const (
	DisputeRuns      DisputeType = "runs_mismatch"
	DisputeWicket    DisputeType = "wicket_mismatch"
	DisputeExtra     DisputeType = "extra_mismatch"
	DisputeDismissal DisputeType = "dismissal_mismatch"
	DisputePlayer    DisputeType = "player_mismatch"
	DisputeTimeout   DisputeType = "timeout"
)

// DisputeStatus is the resolution state of a dispute.
type DisputeStatus string

// Dispute statuses.
const (
	DisputePending   DisputeStatus = "pending"
	DisputeResolved  DisputeStatus = "resolved"
	DisputeAbandoned DisputeStatus = "abandoned"
)

// ResolutionMethod is the rung of the resolution ladder that settled a dispute.
type ResolutionMethod string

// Resolution methods in ladder order.
const (
	ResolutionUmpireOverride   ResolutionMethod = "umpire_override"
	ResolutionVideoReview      ResolutionMethod = "video_review"
	ResolutionMajorityVote     ResolutionMethod = "majority_vote"
	ResolutionCaptainConsensus ResolutionMethod = "captain_consensus"
	ResolutionAbandon          ResolutionMethod = "abandon_ball"
)

// Provenance maps a resolution method onto the provenance stored on the ball.
func (m ResolutionMethod) Provenance() Provenance {
	switch m {
	case ResolutionUmpireOverride:
		return ProvenanceUmpireOverride
	case ResolutionVideoReview:
		return ProvenanceVideoReview
	case ResolutionMajorityVote:
		return ProvenanceMajorityVote
	case ResolutionCaptainConsensus:
		return ProvenanceCaptainConsensus
	}
	return ""
}
