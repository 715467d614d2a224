package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/crease/internal/domain/model"
	"github.com/okian/crease/internal/simulate"
	"github.com/okian/crease/pkg/logger"
)

const (
	defaultOvers    = 5
	defaultTimeout  = 10 * time.Second
	defaultMismatch = 7
	defaultRunLimit = 10 * time.Minute
)

func main() {
	if err := run(); err != nil {
		os.Stderr.WriteString("simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the service")
		matchID  = flag.String("match", "", "Match id (default: generated)")
		tier     = flag.String("tier", string(model.TierDual), "Verification tier: honor, single, dual or triple")
		overs    = flag.Int("overs", defaultOvers, "Overs to bowl")
		seed     = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Ball generator seed")
		mismatch = flag.Int("mismatch-every", defaultMismatch, "Misreport every Nth ball from the last scorer (0 disables)")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		secret   = flag.String("jwt-secret", os.Getenv("CREASE_JWT_SECRET"), "Signing secret for actor tokens (default: development headers)")
		issuer   = flag.String("jwt-issuer", "crease", "Token issuer")
		level    = flag.String("log-level", "warn", "Log level")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		return err
	}
	_ = logger.SetLevelString(*level)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunLimit)
	defer cancel()

	_, err := simulate.Run(ctx, simulate.Config{
		BaseURL:       *baseURL,
		MatchID:       *matchID,
		Tier:          model.Tier(*tier),
		Overs:         *overs,
		Seed:          *seed,
		MismatchEvery: *mismatch,
		Timeout:       *timeout,
		JWTSecret:     *secret,
		JWTIssuer:     *issuer,
	})
	return err
}
