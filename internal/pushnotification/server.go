package pushnotification

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/kazz187/devguild/internal/config"
	"github.com/kazz187/devguild/internal/principal"
	"github.com/kazz187/devguild/internal/pushsubscription"
	"github.com/kazz187/devguild/pkg/cerr"
)

type Server struct {
	vapidEnv *config.VAPIDEnv
	repo     pushsubscription.Repository
	sender   *Sender
}

func NewServer(vapidEnv *config.VAPIDEnv, repo pushsubscription.Repository, sender *Sender) *Server {
	return &Server{
		vapidEnv: vapidEnv,
		repo:     repo,
		sender:   sender,
	}
}

func (s *Server) Mount(r chi.Router) {
	r.Get("/push-subscriptions/vapid-key", s.handleVapidKey)
	r.Post("/push-subscriptions", s.handleRegister)
	r.Delete("/push-subscriptions", s.handleUnregister)
	r.Post("/push-subscriptions/test", s.handleTest)
}

type RegisterRequest struct {
	Endpoint  string `json:"endpoint"`
	P256dhKey string `json:"p256dh_key"`
	AuthKey   string `json:"auth_key"`
}

type UnregisterRequest struct {
	Endpoint string `json:"endpoint"`
}

func (s *Server) handleVapidKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.vapidEnv.VAPIDPublicKey == "" {
		cerr.SetNewJSONError(ctx, cerr.FailedPrecondition, "VAPID keys not configured", nil)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]string{"public_key": s.vapidEnv.VAPIDPublicKey})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := principal.Require(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req RegisterRequest
	if err := cerr.DecodeJSONBody(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	verr := cerr.NewError(cerr.InvalidArgument, "invalid request", nil)
	if req.Endpoint == "" {
		verr.AddViolation("endpoint", "required", "endpoint is required")
	}
	if req.P256dhKey == "" {
		verr.AddViolation("p256dh_key", "required", "p256dh_key is required")
	}
	if req.AuthKey == "" {
		verr.AddViolation("auth_key", "required", "auth_key is required")
	}
	if len(verr.Details) > 0 {
		cerr.SetJSONError(ctx, verr)
		return
	}

	now := time.Now()
	sub := &pushsubscription.Subscription{
		ID:          ulid.Make().String(),
		PrincipalID: p.ID,
		Role:        p.Role,
		Endpoint:    req.Endpoint,
		P256dhKey:   req.P256dhKey,
		AuthKey:     req.AuthKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Save(ctx, sub); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, map[string]string{"id": sub.ID})
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := principal.Require(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req UnregisterRequest
	if err := cerr.DecodeJSONBody(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if req.Endpoint == "" {
		cerr.SetJSONError(ctx, cerr.NewValidationError("endpoint", "required", "endpoint is required"))
		return
	}
	sub, err := s.repo.FindByEndpoint(ctx, req.Endpoint)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if sub.PrincipalID != p.ID && !p.IsAdmin() {
		cerr.SetNewJSONError(ctx, cerr.NotFound, "push subscription not found", nil)
		return
	}
	if err := s.repo.Delete(ctx, sub.ID); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]any{})
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := principal.Require(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	sent := s.sender.Send(ctx, Audience{PrincipalIDs: []string{p.ID}}, &NotificationPayload{
		Title: "devguild test",
		Body:  "Push notifications are working!",
	})
	cerr.SetJSONResponse(ctx, map[string]int{"sent": sent})
}
