// Package api exposes coachd over HTTP: session creation, a server-sent
// event stream per conversation turn, and the command submission
// endpoint for direct workout mutations.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"coachd/internal/checkpoint"
	"coachd/internal/config"
	"coachd/internal/contextbuild"
	"coachd/internal/knowledge"
	"coachd/internal/logging"
	"coachd/internal/loop"
	"coachd/internal/provider"
	"coachd/internal/store"
	"coachd/internal/workout"
)

// Server is the HTTP boundary.
type Server struct {
	store   *store.Store
	applier *workout.Applier
	prov    provider.Provider
	limits  config.Limits
	profile map[string]string

	httpServer *http.Server
}

// NewServer wires the HTTP boundary. profile holds the slow-changing
// user facts rendered into every stable prefix.
func NewServer(st *store.Store, prov provider.Provider, limits config.Limits, profile map[string]string) *Server {
	return &Server{
		store:   st,
		applier: workout.NewApplier(st),
		prov:    prov,
		limits:  limits,
		profile: profile,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("POST /v1/sessions/{id}/messages", s.handleMessage)
	mux.HandleFunc("GET /v1/workouts/{id}", s.handleGetWorkout)
	mux.HandleFunc("POST /v1/workouts/{id}/commands", s.handleCommand)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	})
	return mux
}

// Run serves until ctx is cancelled, then drains with a short grace
// period.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{Handler: s.Handler()}
	logging.API("listening on %s", ln.Addr())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// runnerFor assembles the per-session turn pipeline. Constructing it per
// request keeps sessions fully independent; all durable state lives in
// the store.
func (s *Server) runnerFor(sessionID, ownerID string) *loop.Runner {
	registry := loop.NewRegistry()
	loop.RegisterCoachTools(registry, loop.CoachToolDeps{
		SessionID: sessionID,
		Resolver:  s.store,
		Applier:   s.applier,
		Reader:    s.store,
	})

	builder := contextbuild.NewBuilder(s.store, s.profile)
	cp := checkpoint.NewManager(s.store, builder, s.prov, s.limits.CheckpointBudgetTokens)
	l := loop.New(registry, builder, s.prov, s.store, loop.Config{
		MaxIterations: s.limits.MaxIterations,
		ToolTimeout:   s.limits.ToolTimeout,
	})

	fetchers := knowledge.NewFetchers()
	fetchers.Register(knowledge.SourceUserProfile, knowledge.ProfileFetcher(s.profile))
	fetchers.Register(knowledge.SourceWorkoutHistory, knowledge.HistoryFetcher(s.store, ownerID))
	fetchers.Register(knowledge.SourceExerciseLibrary, knowledge.LibraryFetcher())

	return loop.NewRunner(s.store, knowledge.NewSelector(), fetchers, cp, l)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
