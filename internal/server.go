package internal

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"connectrpc.com/grpchealth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kazz187/devguild/internal/assignment"
	"github.com/kazz187/devguild/internal/config"
	"github.com/kazz187/devguild/internal/leaderboard"
	"github.com/kazz187/devguild/internal/orchestrator"
	"github.com/kazz187/devguild/internal/payment"
	"github.com/kazz187/devguild/internal/principal"
	"github.com/kazz187/devguild/internal/progress"
	"github.com/kazz187/devguild/internal/pushnotification"
	"github.com/kazz187/devguild/internal/slot"
	"github.com/kazz187/devguild/internal/task"
	"github.com/kazz187/devguild/pkg/cerr"
	"github.com/kazz187/devguild/pkg/clog"
)

// Mounter is implemented by every domain HTTP server.
type Mounter interface {
	Mount(r chi.Router)
}

type Server struct {
	server  *http.Server
	env     *config.Env
	mounted []Mounter
}

func NewServer(
	env *config.Env,
	taskServer *task.Server,
	orchestratorServer *orchestrator.Server,
	assignmentServer *assignment.Server,
	progressServer *progress.Server,
	paymentServer *payment.Server,
	leaderboardServer *leaderboard.Server,
	slotServer *slot.HTTPServer,
	pushNotificationServer *pushnotification.Server,
) *Server {
	return &Server{
		env: env,
		mounted: []Mounter{
			taskServer,
			orchestratorServer,
			assignmentServer,
			progressServer,
			paymentServer,
			leaderboardServer,
			slotServer,
			pushNotificationServer,
		},
	}
}

// Handler builds the full HTTP handler chain.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(
			middleware.RequestID,
			clog.SlogChiMiddleware(),
			cerr.NewJSONResponseChiMiddleware(),
			principal.Middleware,
		)
		for _, m := range s.mounted {
			m.Mount(r)
		}
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.NotFound, "not found", nil)
		})
	})

	mux := http.NewServeMux()
	mux.Handle("/health", &HealthChecker{})
	mux.Handle("/api/", r)
	mux.Handle(grpchealth.NewHandler(grpchealth.NewStaticChecker()))

	return h2c.NewHandler(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.apiKeyMiddleware(mux)), &http2.Server{})
}

// ListenAndServe starts the HTTP server. ctx becomes the base context of every
// request, so cancelling it also cancels in-flight handlers.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)

	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip API key check for health endpoints.
		if r.URL.Path == "/health" || r.URL.Path == "/grpc.health.v1.Health/Check" {
			next.ServeHTTP(w, r)
			return
		}
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.env.APIKey)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
