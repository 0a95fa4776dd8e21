package assignment

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/devguild/internal/principal"
	"github.com/kazz187/devguild/pkg/cerr"
)

type Server struct {
	repo        Repository
	paymentRepo PaymentRepository
}

func NewServer(repo Repository, paymentRepo PaymentRepository) *Server {
	return &Server{
		repo:        repo,
		paymentRepo: paymentRepo,
	}
}

func (s *Server) Mount(r chi.Router) {
	r.Get("/assignments", s.handleList)
	r.Get("/assignments/{id}", s.handleGet)
	r.Get("/assignments/{id}/payments", s.handleListPayments)
}

// View is the presentation shape of an assignment: its latest payment attempt
// and the rounded overall score are attached for readers.
type View struct {
	*Assignment
	Payment             *Payment `json:"payment,omitempty"`
	OverallScoreRounded string   `json:"overall_score_rounded,omitempty"`
}

type ListAssignmentsResponse struct {
	Assignments []*View `json:"assignments"`
	Total       int     `json:"total"`
	Limit       int     `json:"limit"`
	Offset      int     `json:"offset"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := principal.Require(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	q := r.URL.Query()
	filter := ListFilter{
		TaskID:      q.Get("task_id"),
		CandidateID: q.Get("candidate_id"),
		Status:      Status(q.Get("status")),
		Limit:       50,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		cerr.SetJSONError(ctx, cerr.NewValidationError("status", "in", "unknown assignment status"))
		return
	}
	if !p.IsAdmin() {
		filter.CandidateID = p.ID
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v >= 0 {
		filter.Offset = v
	}

	list, total, err := s.repo.List(ctx, filter)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	views := make([]*View, 0, len(list))
	for _, a := range list {
		v, err := s.view(ctx, a)
		if err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
		views = append(views, v)
	}
	cerr.SetJSONResponse(ctx, &ListAssignmentsResponse{Assignments: views, Total: total, Limit: filter.Limit, Offset: filter.Offset})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, err := s.authorizedGet(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	v, err := s.view(ctx, a)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"assignment": v})
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, err := s.authorizedGet(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	payments, err := s.paymentRepo.ListByAssignment(ctx, a.ID)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if payments == nil {
		payments = []*Payment{}
	}
	cerr.SetJSONResponse(ctx, map[string]any{"payments": payments})
}

// authorizedGet loads an assignment the caller may see: admins see all,
// developers only their own.
func (s *Server) authorizedGet(ctx context.Context, id string) (*Assignment, error) {
	p, err := principal.Require(ctx)
	if err != nil {
		return nil, err
	}
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && a.CandidateID != p.ID {
		return nil, cerr.NewError(cerr.NotFound, "assignment not found", nil)
	}
	return a, nil
}

func (s *Server) view(ctx context.Context, a *Assignment) (*View, error) {
	v := &View{Assignment: a}
	payments, err := s.paymentRepo.ListByAssignment(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	if len(payments) > 0 {
		v.Payment = payments[len(payments)-1]
	}
	if a.Evaluation != nil {
		v.OverallScoreRounded = RoundScore(a.Evaluation.OverallScore)
	}
	return v, nil
}
