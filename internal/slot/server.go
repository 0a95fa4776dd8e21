package slot

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/devguild/internal/principal"
	"github.com/kazz187/devguild/pkg/cerr"
)

type HTTPServer struct {
	allocator *Allocator
}

func NewHTTPServer(allocator *Allocator) *HTTPServer {
	return &HTTPServer{allocator: allocator}
}

func (s *HTTPServer) Mount(r chi.Router) {
	r.Get("/servers", s.handleList)
}

func (s *HTTPServer) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := principal.RequireAdmin(ctx); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	servers, err := s.allocator.Servers(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{"servers": servers})
}
