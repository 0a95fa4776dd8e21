package leaderboard

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/devguild/internal/principal"
	"github.com/kazz187/devguild/pkg/cerr"
)

type Server struct {
	service *Service
}

func NewServer(service *Service) *Server {
	return &Server{service: service}
}

func (s *Server) Mount(r chi.Router) {
	r.Get("/leaderboard", s.handleLeaderboard)
	r.Get("/candidates/{id}/stats", s.handleCandidateStats)
}

type Entry struct {
	Rank int `json:"rank"`
	*Stats
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := principal.Require(ctx); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	stats, err := s.service.Leaderboard(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v < len(stats) {
		stats = stats[:v]
	}
	entries := make([]*Entry, 0, len(stats))
	for i, st := range stats {
		entries = append(entries, &Entry{Rank: i + 1, Stats: st})
	}
	cerr.SetJSONResponse(ctx, map[string]any{"leaderboard": entries})
}

func (s *Server) handleCandidateStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := principal.Require(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	id := chi.URLParam(r, "id")
	if !p.IsAdmin() && id != p.ID {
		cerr.SetNewJSONError(ctx, cerr.PermissionDenied, "developers can only view their own stats", nil)
		return
	}
	st, err := s.service.CandidateStats(ctx, id)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"stats": st})
}
