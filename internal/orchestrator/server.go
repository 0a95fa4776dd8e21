package orchestrator

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/devguild/internal/principal"
	"github.com/kazz187/devguild/pkg/cerr"
)

type Server struct {
	orchestrator *Orchestrator
}

func NewServer(o *Orchestrator) *Server {
	return &Server{orchestrator: o}
}

func (s *Server) Mount(r chi.Router) {
	r.Post("/tasks/{id}/assign", s.handleAssign)
}

type AssignRequest struct {
	// CandidateID is only honoured for admins; developers always assign
	// themselves.
	CandidateID string `json:"candidate_id"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := principal.Require(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req AssignRequest
	if r.ContentLength != 0 {
		if err := cerr.DecodeJSONBody(r, &req); err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
	}

	candidateID := p.ID
	if req.CandidateID != "" && req.CandidateID != p.ID {
		if !p.IsAdmin() {
			cerr.SetNewJSONError(ctx, cerr.PermissionDenied, "developers can only assign themselves", nil)
			return
		}
		candidateID = req.CandidateID
	}

	res, err := s.orchestrator.Assign(ctx, chi.URLParam(r, "id"), candidateID)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, res)
}
