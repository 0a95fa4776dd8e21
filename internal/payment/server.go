package payment

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/devguild/internal/principal"
	"github.com/kazz187/devguild/pkg/cerr"
)

type Server struct {
	engine *Engine
}

func NewServer(engine *Engine) *Server {
	return &Server{engine: engine}
}

func (s *Server) Mount(r chi.Router) {
	r.Post("/assignments/{id}/payment", s.handleProcess)
	r.Post("/assignments/{id}/payment/reconcile", s.handleReconcile)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := principal.RequireAdmin(ctx); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	p, err := s.engine.Process(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, map[string]any{"payment": p})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := principal.RequireAdmin(ctx); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	closed, err := s.engine.Reconcile(ctx, chi.URLParam(r, "id"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"payments": closed})
}
