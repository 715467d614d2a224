// Package service wires the ledger, projector, consensus engine, dispute
// resolver and their adapters into the process the HTTP API talks to.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/crease/internal/adapters/hub"
	"github.com/okian/crease/internal/adapters/mq/stream"
	workerpool "github.com/okian/crease/internal/adapters/mq/worker"
	"github.com/okian/crease/internal/adapters/notify"
	"github.com/okian/crease/internal/adapters/repository"
	"github.com/okian/crease/internal/config"
	"github.com/okian/crease/internal/domain/consensus"
	"github.com/okian/crease/internal/domain/dedupe"
	"github.com/okian/crease/internal/domain/dispute"
	"github.com/okian/crease/internal/domain/integrity"
	"github.com/okian/crease/internal/domain/ledger"
	"github.com/okian/crease/internal/domain/model"
	"github.com/okian/crease/internal/domain/projection"
	"github.com/okian/crease/pkg/logger"
	"github.com/okian/crease/pkg/tracing"
)

// ErrNotStarted is returned by operations called before Start.
var ErrNotStarted = errors.New("service not started")

// Snapshot is what a spectator receives on joining a match room.
type Snapshot struct {
	Match    projection.MatchState `json:"match"`
	Disputes []model.Dispute       `json:"open_disputes"`
}

// Service owns every component of a running scoring node.
type Service struct {
	mu sync.RWMutex

	cfg    *config.Config
	logger logger.Logger
	clock  func() time.Time

	store      ledger.Store
	closeStore func() error
	redis      *redis.Client
	extraSinks []workerpool.Sink

	ledger    *ledger.Ledger
	projector *projection.Projector
	engine    *consensus.Engine
	resolver  *dispute.Resolver
	dispatch  *workerpool.Pool
	hub       *hub.Hub

	started bool
	cancel  context.CancelFunc
	loops   sync.WaitGroup
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the process configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore injects a ledger store instead of opening the configured one.
func WithStore(st ledger.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithClock sets the clock of the engine and resolver.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithSinks adds dispatcher sinks next to the configured ones.
func WithSinks(sinks ...workerpool.Sink) Option {
	return func(s *Service) {
		s.extraSinks = append(s.extraSinks, sinks...)
	}
}

// New constructs a Service. Components are built by Start.
func New(opts ...Option) *Service {
	s := &Service{cfg: config.New(), clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store, builds the components and starts the background
// loops. Calling it again is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting scoring service...")

	if err := s.openStore(ctx); err != nil {
		return err
	}

	s.hub = hub.New(hub.SnapshotFunc(s.snapshot),
		hub.WithLogger(s.logger.Named("hub")),
		hub.WithLiveCheck(s.live))

	sinks, err := s.sinks(ctx)
	if err != nil {
		s.closeAll()
		return err
	}
	s.dispatch = workerpool.NewPool(s.cfg.WorkerCount, s.cfg.EventQueueSize, sinks...)

	s.ledger = ledger.New(
		ledger.WithStore(s.store),
		ledger.WithPublisher(s.dispatch),
		ledger.WithLogger(s.logger.Named("ledger")),
	)
	s.projector = projection.NewProjector(s.ledger, projection.WithLogger(s.logger.Named("projector")))
	s.ledger.OnCommit(s.projector.Invalidate)

	s.resolver = dispute.New(
		dispute.WithPublisher(s.dispatch),
		dispute.WithLogger(s.logger.Named("dispute")),
		dispute.WithClock(s.clock),
		dispute.WithAlertInterval(s.cfg.DisputeAlertInterval()),
	)
	s.engine = consensus.New(s.ledger,
		consensus.WithDisputes(s.resolver),
		consensus.WithLogger(s.logger.Named("consensus")),
		consensus.WithClock(s.clock),
		consensus.WithMatchingWindow(s.cfg.MatchingWindow()),
		consensus.WithSweepInterval(s.cfg.SweepInterval()),
		consensus.WithDedupe(dedupe.NewInMemory[consensus.Result](dedupe.WithMaxSize(s.cfg.DedupeSize))),
	)
	s.resolver.SetCommitter(s.engine)
	s.ledger.OnClose(func(ctx context.Context, inn model.Innings, reason string) {
		s.resolver.CloseInnings(ctx, inn.ID, reason)
	})

	// Dispatch outlives the loops so queued events drain on Stop.
	s.dispatch.Start(context.WithoutCancel(ctx))

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.loops.Add(2)
	go func() {
		defer s.loops.Done()
		_ = s.engine.Run(runCtx)
	}()
	go func() {
		defer s.loops.Done()
		_ = s.resolver.Run(runCtx)
	}()

	s.started = true
	s.logger.Info(ctx, "scoring service started",
		logger.String("store", s.cfg.StoreDriver),
		logger.Int("shards", s.cfg.WorkerCount),
		logger.Int("sinks", len(sinks)),
		logger.Duration("matching_window", s.cfg.MatchingWindow()))
	return nil
}

func (s *Service) openStore(ctx context.Context) error {
	if s.store != nil {
		return nil
	}
	switch s.cfg.StoreDriver {
	case config.DriverSQLite:
		st, err := repository.OpenSQLite(ctx, s.cfg.StoreDSN, repository.WithLogger(s.logger.Named("repository")))
		if err != nil {
			return fmt.Errorf("open ledger store: %w", err)
		}
		s.store, s.closeStore = st, st.Close
	case config.DriverPostgres:
		st, err := repository.OpenPostgres(ctx, s.cfg.StoreDSN, repository.WithLogger(s.logger.Named("repository")))
		if err != nil {
			return fmt.Errorf("open ledger store: %w", err)
		}
		s.store, s.closeStore = st, st.Close
	default:
		s.store = ledger.NewMemoryStore()
	}
	return nil
}

// sinks builds the dispatcher fan-out: spectators, the performance stream
// and official alerts.
func (s *Service) sinks(ctx context.Context) ([]workerpool.Sink, error) {
	out := []workerpool.Sink{hub.NewSink(s.hub)}

	if s.cfg.RedisAddr != "" {
		s.redis = redis.NewClient(&redis.Options{Addr: s.cfg.RedisAddr, Password: s.cfg.RedisPassword})
		if err := s.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis %s: %w", s.cfg.RedisAddr, err)
		}
		out = append(out, stream.NewPublisher(s.redis,
			stream.WithPrefix(s.cfg.RedisStreamPrefix),
			stream.WithMaxLen(s.cfg.RedisStreamMaxLen),
			stream.WithLogger(s.logger.Named("stream"))))
	}

	if s.cfg.TelegramToken != "" {
		tg, err := notify.DialTelegram(s.cfg.TelegramToken, s.cfg.TelegramChatID,
			notify.WithTelegramLogger(s.logger.Named("telegram")))
		if err != nil {
			return nil, err
		}
		out = append(out, tg)
	} else {
		out = append(out, notify.NewLog(s.logger.Named("notify")))
	}

	return append(out, s.extraSinks...), nil
}

// Stop stops the loops, drains the dispatcher and closes connections.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping scoring service...")

	s.cancel()
	s.loops.Wait()
	if err := s.dispatch.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "dispatcher did not drain", logger.Error(err))
	}
	s.hub.Shutdown()
	s.closeAll()

	s.started = false
	s.logger.Info(ctx, "scoring service stopped")
}

func (s *Service) closeAll() {
	if s.redis != nil {
		_ = s.redis.Close()
		s.redis = nil
	}
	if s.closeStore != nil {
		if err := s.closeStore(); err != nil {
			s.logger.Warn(context.Background(), "closing ledger store", logger.Error(err))
		}
		s.closeStore = nil
		s.store = nil
	}
}

// Hub returns the spectator hub.
func (s *Service) Hub() *hub.Hub {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hub
}

func (s *Service) snapshot(ctx context.Context, matchID string) (any, error) {
	st, err := s.projector.Match(ctx, matchID)
	if err != nil {
		return nil, err
	}
	return Snapshot{Match: st, Disputes: s.resolver.List(ctx, matchID, model.DisputePending)}, nil
}

func (s *Service) live(ctx context.Context, matchID string) bool {
	cfg, err := s.ledger.Match(ctx, matchID)
	return err == nil && cfg.Live
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// RegisterMatch registers a match, filling unset values from configuration.
func (s *Service) RegisterMatch(ctx context.Context, cfg model.MatchConfig) (model.MatchConfig, error) {
	if err := s.ready(); err != nil {
		return model.MatchConfig{}, err
	}
	if cfg.BallsPerOver <= 0 {
		cfg.BallsPerOver = s.cfg.BallsPerOver
	}
	if cfg.WicketsToFall <= 0 {
		cfg.WicketsToFall = s.cfg.WicketsToFall
	}
	if cfg.MatchingWindow <= 0 {
		cfg.MatchingWindow = s.cfg.MatchingWindow()
	}
	return s.ledger.RegisterMatch(ctx, cfg)
}

// EndMatch marks a match as no longer live.
func (s *Service) EndMatch(ctx context.Context, matchID string) (model.MatchConfig, error) {
	if err := s.ready(); err != nil {
		return model.MatchConfig{}, err
	}
	return s.ledger.EndMatch(ctx, matchID)
}

// StartInnings opens the next innings of a match.
func (s *Service) StartInnings(ctx context.Context, inn model.Innings) (model.Innings, error) {
	if err := s.ready(); err != nil {
		return model.Innings{}, err
	}
	return s.ledger.StartInnings(ctx, inn)
}

// CompleteInnings closes an innings, typically on declaration.
func (s *Service) CompleteInnings(ctx context.Context, inningsID string, reason model.CompletionReason) (model.Innings, error) {
	if err := s.ready(); err != nil {
		return model.Innings{}, err
	}
	return s.ledger.CompleteInnings(ctx, inningsID, reason)
}

// Submit hands a claim to the consensus engine.
func (s *Service) Submit(ctx context.Context, sub consensus.Submission) (consensus.Result, error) {
	if err := s.ready(); err != nil {
		return consensus.Result{}, err
	}
	ctx, span := tracing.Start(ctx, "service", "submit", tracing.Match(sub.MatchID))
	res, err := s.engine.Submit(ctx, sub)
	tracing.End(span, err)
	return res, err
}

// Withdraw removes a scorer's pending claim.
func (s *Service) Withdraw(ctx context.Context, matchID, eventID, scorerID string) (model.ScoringEvent, error) {
	if err := s.ready(); err != nil {
		return model.ScoringEvent{}, err
	}
	return s.engine.Withdraw(ctx, matchID, eventID, scorerID)
}

// InningsState projects one innings.
func (s *Service) InningsState(ctx context.Context, inningsID string) (projection.InningsState, error) {
	if err := s.ready(); err != nil {
		return projection.InningsState{}, err
	}
	return s.projector.Project(ctx, inningsID)
}

// MatchState projects every innings of a match.
func (s *Service) MatchState(ctx context.Context, matchID string) (projection.MatchState, error) {
	if err := s.ready(); err != nil {
		return projection.MatchState{}, err
	}
	return s.projector.Match(ctx, matchID)
}

// Log returns the full ledger record of an innings.
func (s *Service) Log(ctx context.Context, inningsID string) (ledger.Log, error) {
	if err := s.ready(); err != nil {
		return ledger.Log{}, err
	}
	return s.ledger.Log(ctx, inningsID)
}

// Verify walks the hash chain of an innings.
func (s *Service) Verify(ctx context.Context, inningsID string) (integrity.Report, error) {
	if err := s.ready(); err != nil {
		return integrity.Report{}, err
	}
	return s.ledger.Verify(ctx, inningsID)
}

// Pending lists the open slots of an innings.
func (s *Service) Pending(ctx context.Context, inningsID string) ([]consensus.SlotView, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if _, err := s.ledger.Innings(ctx, inningsID); err != nil {
		return nil, err
	}
	return s.engine.Pending(inningsID), nil
}

// Disputes lists the disputes of a match, optionally by status.
func (s *Service) Disputes(ctx context.Context, matchID string, status model.DisputeStatus) ([]model.Dispute, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.resolver.List(ctx, matchID, status), nil
}

// Dispute returns one dispute with its claims.
func (s *Service) Dispute(ctx context.Context, id string) (dispute.View, error) {
	if err := s.ready(); err != nil {
		return dispute.View{}, err
	}
	return s.resolver.Get(ctx, id)
}

// Resolve applies an official's decision to a dispute.
func (s *Service) Resolve(ctx context.Context, id string, dec dispute.Decision) (dispute.Resolution, error) {
	if err := s.ready(); err != nil {
		return dispute.Resolution{}, err
	}
	return s.resolver.Resolve(ctx, id, dec)
}

// GetStats returns runtime statistics for /stats.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := map[string]any{
		"started": s.started,
		"store":   s.cfg.StoreDriver,
	}
	if !s.started {
		return stats
	}
	ctx := context.Background()
	stats["queueLength"] = s.dispatch.Len(ctx)
	stats["workerCount"] = s.cfg.WorkerCount
	stats["hubRooms"] = s.hub.Rooms()
	stats["openDisputes"] = s.resolver.Open()
	stats["matchingWindowMs"] = s.cfg.MatchingWindowMS
	return stats
}
