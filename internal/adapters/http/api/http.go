// Package api exposes the scoring service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/okian/crease/internal/adapters/http/auth"
	"github.com/okian/crease/internal/domain/consensus"
	"github.com/okian/crease/internal/domain/dispute"
	"github.com/okian/crease/internal/domain/integrity"
	"github.com/okian/crease/internal/domain/ledger"
	"github.com/okian/crease/internal/domain/model"
	"github.com/okian/crease/internal/domain/projection"
	"github.com/okian/crease/pkg/logger"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	RegisterMatch(ctx context.Context, cfg model.MatchConfig) (model.MatchConfig, error)
	EndMatch(ctx context.Context, matchID string) (model.MatchConfig, error)
	StartInnings(ctx context.Context, inn model.Innings) (model.Innings, error)
	CompleteInnings(ctx context.Context, inningsID string, reason model.CompletionReason) (model.Innings, error)

	Submit(ctx context.Context, sub consensus.Submission) (consensus.Result, error)
	Withdraw(ctx context.Context, matchID, eventID, scorerID string) (model.ScoringEvent, error)
	Pending(ctx context.Context, inningsID string) ([]consensus.SlotView, error)

	InningsState(ctx context.Context, inningsID string) (projection.InningsState, error)
	MatchState(ctx context.Context, matchID string) (projection.MatchState, error)
	Log(ctx context.Context, inningsID string) (ledger.Log, error)
	Verify(ctx context.Context, inningsID string) (integrity.Report, error)

	Disputes(ctx context.Context, matchID string, status model.DisputeStatus) ([]model.Dispute, error)
	Dispute(ctx context.Context, id string) (dispute.View, error)
	Resolve(ctx context.Context, id string, dec dispute.Decision) (dispute.Resolution, error)
}

// Spectator serves the live feed of a match.
type Spectator interface {
	Serve(w http.ResponseWriter, r *http.Request, matchID string)
}

// Server wires HTTP routes for the scoring API.
type Server struct {
	deps      Dependencies
	auth      *auth.Authenticator
	spectator Spectator
	origins   []string
	log       logger.Logger

	healthHandler *HealthHandler
	statsHandler  *StatsHandler
}

// Option configures a Server.
type Option func(*Server)

// WithAuthenticator sets the identity source. The default trusts
// development headers.
func WithAuthenticator(a *auth.Authenticator) Option {
	return func(s *Server) {
		if a != nil {
			s.auth = a
		}
	}
}

// WithSpectator enables the websocket live route.
func WithSpectator(sp Spectator) Option {
	return func(s *Server) { s.spectator = sp }
}

// WithCORSOrigins sets the allowed origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		deps:          deps,
		auth:          auth.New("", ""),
		origins:       []string{"*"},
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("api")
	}
	return s
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r chi.Router) {
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", auth.HeaderActorID, auth.HeaderActorRole, auth.HeaderActorTeam},
		MaxAge:         300,
	}))
	r.Use(MetricsMiddleware)

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/stats", s.statsHandler.HandleStats)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Post("/matches", s.handleRegisterMatch)
		r.Route("/matches/{matchID}", func(r chi.Router) {
			r.Post("/end", s.handleEndMatch)
			r.Post("/innings", s.handleStartInnings)
			r.Post("/claims", s.handleSubmitClaim)
			r.Delete("/claims/{claimID}", s.handleWithdrawClaim)
			r.Get("/scorecard", s.handleScorecard)
			r.Get("/disputes", s.handleListDisputes)
			if s.spectator != nil {
				r.Get("/live", s.handleLive)
			}
		})
		r.Route("/innings/{inningsID}", func(r chi.Router) {
			r.Post("/complete", s.handleCompleteInnings)
			r.Get("/state", s.handleInningsState)
			r.Get("/balls", s.handleBalls)
			r.Get("/verify", s.handleVerify)
			r.Get("/pending", s.handlePending)
		})
		r.Get("/disputes/{disputeID}", s.handleGetDispute)
		r.Post("/disputes/{disputeID}/resolve", s.handleResolve)
	})
}

// Handler returns a router with every route registered.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.Register(r)
	return r
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchID")
	if _, err := s.deps.MatchState(r.Context(), matchID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.spectator.Serve(w, r, matchID)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// fail writes err with the status its kind maps to.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.String("request_id", middleware.GetReqID(r.Context())),
			logger.Error(err))
	}
	writeError(w, status, code, err)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

// actor returns the authenticated official, if any.
func actor(r *http.Request) (auth.Actor, error) {
	a, ok := auth.FromContext(r.Context())
	if !ok {
		return auth.Actor{}, auth.ErrUnauthenticated
	}
	return a, nil
}

// official requires one of roles.
func official(r *http.Request, roles ...model.Role) (auth.Actor, error) {
	a, err := actor(r)
	if err != nil {
		return a, err
	}
	for _, role := range roles {
		if a.Role == role {
			return a, nil
		}
	}
	return a, fmt.Errorf("%w: role %s", ErrForbidden, a.Role)
}
