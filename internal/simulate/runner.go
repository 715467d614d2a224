package simulate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/crease/internal/adapters/http/auth"
	"github.com/okian/crease/internal/domain/consensus"
	"github.com/okian/crease/internal/domain/dispute"
	"github.com/okian/crease/internal/domain/integrity"
	"github.com/okian/crease/internal/domain/model"
	"github.com/okian/crease/internal/domain/projection"
	"github.com/okian/crease/pkg/logger"
)

// ErrVerify is returned when the ledger chain fails verification.
var ErrVerify = errors.New("ledger verification failed")

const (
	homeTeam = "home"
	awayTeam = "away"
)

type officials struct {
	umpire  *client
	scorers []*client
}

// Run registers a match, scores one innings through every configured
// scorer, resolves injected disputes as umpire and verifies the ledger.
func Run(ctx context.Context, cfg Config) (Result, error) {
	cfg.withDefaults()
	if cfg.MatchID == "" {
		cfg.MatchID = "sim-" + uuid.NewString()[:8]
	}
	out := newOutput(cfg.Quiet)
	stats := Stats{StartTime: time.Now()}
	log := logger.Get().Named("simulate")

	log.Info(ctx, "starting simulated innings",
		logger.String("baseURL", cfg.BaseURL),
		logger.MatchID(cfg.MatchID),
		logger.String("tier", string(cfg.Tier)),
		logger.Int("overs", cfg.Overs))

	team, err := newOfficials(&cfg)
	if err != nil {
		return Result{}, err
	}

	if err := checkServiceHealth(ctx, team.umpire); err != nil {
		return Result{}, fmt.Errorf("service health check failed: %w", err)
	}

	gen := NewGenerator(cfg.Seed, cfg.Overs)
	inn, err := setUp(ctx, team.umpire, &cfg, gen)
	if err != nil {
		return Result{}, err
	}
	out.header(cfg.MatchID, cfg.Tier, cfg.Overs)

	spin := out.spinner("Scoring deliveries...")
	for !gen.Done() {
		if err := ctx.Err(); err != nil {
			spin.fail("cancelled")
			return Result{}, err
		}
		claim := gen.Next()
		stats.Balls++
		if err := scoreBall(ctx, team, inn.ID, claim, &cfg, &stats); err != nil {
			spin.fail(err.Error())
			return Result{}, err
		}
		spin.update(fmt.Sprintf("Scored %d deliveries (%d disputes)", stats.Balls, stats.Disputed))
	}
	spin.success(fmt.Sprintf("Scored %d deliveries", stats.Balls))

	var report integrity.Report
	if _, err := team.umpire.do(ctx, http.MethodGet, "/v1/innings/"+inn.ID+"/verify", nil, &report); err != nil {
		return Result{}, err
	}
	var state projection.InningsState
	if _, err := team.umpire.do(ctx, http.MethodGet, "/v1/innings/"+inn.ID+"/state", nil, &state); err != nil {
		return Result{}, err
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	out.scorecard(state)
	out.summary(stats, report)

	res := Result{
		MatchID:   cfg.MatchID,
		InningsID: inn.ID,
		Stats:     stats,
		Runs:      state.Runs,
		Wickets:   state.Wickets,
		Overs:     state.Overs,
		Valid:     report.Valid,
		Checked:   report.Checked,
	}
	if !report.Valid {
		return res, fmt.Errorf("%w: %s", ErrVerify, inn.ID)
	}
	log.Info(ctx, "simulation completed",
		logger.Int("balls", stats.Balls),
		logger.Int("disputes", stats.Disputed),
		logger.Duration("duration", stats.Duration))
	return res, nil
}

func newOfficials(cfg *Config) (*officials, error) {
	umpire, err := newClient(cfg, auth.Actor{ID: "umpire-1", Role: model.RoleUmpire})
	if err != nil {
		return nil, err
	}
	n := scorersFor(cfg.Tier)
	team := &officials{umpire: umpire}
	for i := 1; i <= n; i++ {
		if i == 3 {
			// The third TRIPLE claim comes from the umpire.
			team.scorers = append(team.scorers, umpire)
			continue
		}
		teamID := homeTeam
		if i%2 == 0 {
			teamID = awayTeam
		}
		sc, err := newClient(cfg, auth.Actor{ID: fmt.Sprintf("scorer-%d", i), Role: model.RoleScorer, TeamID: teamID})
		if err != nil {
			return nil, err
		}
		team.scorers = append(team.scorers, sc)
	}
	return team, nil
}

func scorersFor(tier model.Tier) int {
	switch tier {
	case model.TierDual:
		return 2
	case model.TierTriple:
		return 3
	default:
		return 1
	}
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, c *client) error {
	_, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil)
	return err
}

func setUp(ctx context.Context, umpire *client, cfg *Config, gen *Generator) (model.Innings, error) {
	match := map[string]any{
		"match_id":     cfg.MatchID,
		"tier":         cfg.Tier,
		"max_overs":    cfg.Overs,
		"home_team_id": homeTeam,
		"away_team_id": awayTeam,
	}
	if _, err := umpire.do(ctx, http.MethodPost, "/v1/matches", match, nil); err != nil {
		return model.Innings{}, fmt.Errorf("register match: %w", err)
	}
	striker, nonStriker, bowler := gen.Openers()
	var inn model.Innings
	_, err := umpire.do(ctx, http.MethodPost, "/v1/matches/"+cfg.MatchID+"/innings", map[string]any{
		"batting_team_id": homeTeam,
		"bowling_team_id": awayTeam,
		"striker_id":      striker,
		"non_striker_id":  nonStriker,
		"bowler_id":       bowler,
	}, &inn)
	if err != nil {
		return model.Innings{}, fmt.Errorf("start innings: %w", err)
	}
	return inn, nil
}

// scoreBall submits claim from every scorer at once and settles any
// dispute as umpire with the true claim.
func scoreBall(ctx context.Context, team *officials, inningsID string, claim model.BallClaim, cfg *Config, stats *Stats) error {
	inject := cfg.MismatchEvery > 0 && len(team.scorers) > 1 && stats.Balls%cfg.MismatchEvery == 0

	results := make([]consensus.Result, len(team.scorers))
	errs := make([]error, len(team.scorers))
	var wg sync.WaitGroup
	for i, sc := range team.scorers {
		c := claim
		if inject && i == len(team.scorers)-1 {
			c = misreport(claim)
		}
		wg.Add(1)
		go func(i int, sc *client, c model.BallClaim) {
			defer wg.Done()
			_, errs[i] = sc.do(ctx, http.MethodPost, "/v1/matches/"+cfg.MatchID+"/claims", map[string]any{
				"submission_id": fmt.Sprintf("%s-%s-%d.%d", sc.actor.ID, inningsID, c.OverNumber, c.BallNumber),
				"innings_id":    inningsID,
				"claim":         c,
			}, &results[i])
		}(i, sc, c)
	}
	wg.Wait()
	stats.Claims += len(team.scorers)

	var disputeID string
	committed := false
	for i, err := range errs {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == "sequence_error" {
			// Arrived after the others had already settled the slot.
			continue
		}
		if err != nil {
			stats.Failed++
			return fmt.Errorf("submit %d.%d: %w", claim.OverNumber, claim.BallNumber, err)
		}
		switch results[i].Status {
		case consensus.StatusCommitted:
			committed = true
		case consensus.StatusDisputed:
			disputeID = results[i].DisputeID
		}
	}
	if committed {
		stats.Committed++
		return nil
	}
	if disputeID == "" {
		stats.Failed++
		return fmt.Errorf("slot %d.%d neither committed nor disputed", claim.OverNumber, claim.BallNumber)
	}

	stats.Disputed++
	var res dispute.Resolution
	ruling := claim
	_, err := team.umpire.do(ctx, http.MethodPost, "/v1/disputes/"+disputeID+"/resolve", map[string]any{
		"claim":  ruling,
		"reason": "umpire ruling",
	}, &res)
	if err != nil {
		stats.Failed++
		return fmt.Errorf("resolve %s: %w", disputeID, err)
	}
	stats.Resolved++
	stats.Committed++
	return nil
}
