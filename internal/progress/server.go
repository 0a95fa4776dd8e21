package progress

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/devguild/internal/assignment"
	"github.com/kazz187/devguild/internal/principal"
	"github.com/kazz187/devguild/pkg/cerr"
)

type Server struct {
	service *Service
	repo    assignment.Repository
}

func NewServer(service *Service, repo assignment.Repository) *Server {
	return &Server{service: service, repo: repo}
}

func (s *Server) Mount(r chi.Router) {
	r.Put("/assignments/{id}/status", s.handleUpdateStatus)
	r.Put("/assignments/{id}/evaluation", s.handleSubmitEvaluation)
	r.Delete("/assignments/{id}", s.handleRemove)
}

type UpdateStatusRequest struct {
	Status assignment.Status `json:"status"`
}

// SubmitEvaluationRequest carries every criterion as a pointer so an omitted
// score is rejected instead of read as zero.
type SubmitEvaluationRequest struct {
	Speed          *float64 `json:"speed"`
	Accuracy       *float64 `json:"accuracy"`
	Communication  *float64 `json:"communication"`
	ProblemSolving *float64 `json:"problem_solving"`
	CodeQuality    *float64 `json:"code_quality"`
	Independence   *float64 `json:"independence"`
	Alignment      *float64 `json:"alignment"`
	Efficiency     *float64 `json:"efficiency"`
	Initiative     *float64 `json:"initiative"`
	Collaboration  *float64 `json:"collaboration"`
	Comments       string   `json:"comments"`
}

// Scores returns the submitted scores, or an InvalidArgument error with one
// required violation per missing criterion.
func (r *SubmitEvaluationRequest) Scores() (assignment.Scores, error) {
	var scores assignment.Scores
	fields := []struct {
		name string
		in   *float64
		out  *float64
	}{
		{"speed", r.Speed, &scores.Speed},
		{"accuracy", r.Accuracy, &scores.Accuracy},
		{"communication", r.Communication, &scores.Communication},
		{"problem_solving", r.ProblemSolving, &scores.ProblemSolving},
		{"code_quality", r.CodeQuality, &scores.CodeQuality},
		{"independence", r.Independence, &scores.Independence},
		{"alignment", r.Alignment, &scores.Alignment},
		{"efficiency", r.Efficiency, &scores.Efficiency},
		{"initiative", r.Initiative, &scores.Initiative},
		{"collaboration", r.Collaboration, &scores.Collaboration},
	}
	verr := cerr.NewError(cerr.InvalidArgument, "invalid evaluation", nil)
	for _, f := range fields {
		if f.in == nil {
			verr.AddViolation(f.name, "required", f.name+" is required")
			continue
		}
		*f.out = *f.in
	}
	if len(verr.Details) > 0 {
		return assignment.Scores{}, verr
	}
	return scores, nil
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := principal.Require(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req UpdateStatusRequest
	if err := cerr.DecodeJSONBody(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	id := chi.URLParam(r, "id")
	if !p.IsAdmin() {
		a, err := s.repo.Get(ctx, id)
		if err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
		if a.CandidateID != p.ID {
			cerr.SetNewJSONError(ctx, cerr.NotFound, "assignment not found", nil)
			return
		}
	}

	a, err := s.service.UpdateStatus(ctx, id, req.Status)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"assignment": toView(a)})
}

func (s *Server) handleSubmitEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := principal.RequireAdmin(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req SubmitEvaluationRequest
	if err := cerr.DecodeJSONBody(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	scores, err := req.Scores()
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	a, err := s.service.SubmitEvaluation(ctx, chi.URLParam(r, "id"), scores, req.Comments, p.ID)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"assignment": toView(a)})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := principal.RequireAdmin(ctx); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	a, err := s.service.Remove(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"assignment": toView(a)})
}

func toView(a *assignment.Assignment) *assignment.View {
	v := &assignment.View{Assignment: a}
	if a.Evaluation != nil {
		v.OverallScoreRounded = assignment.RoundScore(a.Evaluation.OverallScore)
	}
	return v
}
