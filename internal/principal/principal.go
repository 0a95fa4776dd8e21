package principal

import (
	"context"
	"net/http"

	"github.com/kazz187/devguild/pkg/cerr"
	"github.com/kazz187/devguild/pkg/clog"
)

type Role string

const (
	RoleDeveloper Role = "developer"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleDeveloper || r == RoleAdmin
}

// Principal is the caller identity asserted by the upstream authenticator.
type Principal struct {
	ID   string
	Role Role
}

func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

const (
	HeaderID   = "X-Principal-Id"
	HeaderRole = "X-Principal-Role"
)

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}

// Require returns the caller or an Unauthenticated error.
func Require(ctx context.Context) (*Principal, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return nil, cerr.NewError(cerr.Unauthenticated, "principal is required", nil)
	}
	return p, nil
}

func RequireAdmin(ctx context.Context) (*Principal, error) {
	p, err := Require(ctx)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() {
		return nil, cerr.NewError(cerr.PermissionDenied, "admin role is required", nil)
	}
	return p, nil
}

// Middleware reads the principal headers. Requests without them pass through
// unauthenticated; handlers decide whether that is acceptable.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderID)
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		role := Role(r.Header.Get(HeaderRole))
		if role == "" {
			role = RoleDeveloper
		}
		if !role.Valid() {
			cerr.SetJSONError(r.Context(), cerr.NewValidationError(HeaderRole, "in", "role must be developer or admin"))
			return
		}
		ctx := r.Context()
		clog.AddAttributes(ctx, map[string]any{"principal_id": id, "principal_role": string(role)})
		next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, &Principal{ID: id, Role: role})))
	})
}
