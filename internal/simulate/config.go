// Package simulate drives a scoring node over HTTP the way a pair of match
// scorers and an umpire would.
package simulate

import (
	"time"

	"github.com/okian/crease/internal/domain/model"
)

// Config holds configuration for a simulated innings.
type Config struct {
	BaseURL string        // Base URL of the service
	MatchID string        // Match to register; generated when empty
	Tier    model.Tier    // Verification tier of the match
	Overs   int           // Overs to bowl
	Seed    uint64        // Seed of the ball generator
	Timeout time.Duration // HTTP request timeout

	// MismatchEvery makes the second scorer misreport every Nth ball. Zero
	// disables injected disputes.
	MismatchEvery int

	// JWTSecret signs actor tokens. Empty sends development identity headers.
	JWTSecret string
	JWTIssuer string

	Quiet bool // Suppress terminal output
}

// Stats holds run statistics.
type Stats struct {
	Balls     int
	Claims    int
	Committed int
	Disputed  int
	Resolved  int
	Failed    int
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// Result is what a completed run observed.
type Result struct {
	MatchID   string
	InningsID string
	Stats     Stats
	Runs      int
	Wickets   int
	Overs     string
	Valid     bool
	Checked   int
}

const (
	defaultOvers   = 2
	defaultTimeout = 10 * time.Second
)

func (c *Config) withDefaults() {
	if c.Tier == "" {
		c.Tier = model.TierDual
	}
	if c.Overs <= 0 {
		c.Overs = defaultOvers
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}
