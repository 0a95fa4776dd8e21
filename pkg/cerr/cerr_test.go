package cerr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/devguild/pkg/storage"
)

func serve(t *testing.T, h http.HandlerFunc) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	NewJSONResponseChiMiddleware()(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestJSONResponse(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantCode   string
		wantReason string
	}{
		{
			name: "success",
			handler: func(w http.ResponseWriter, r *http.Request) {
				SetJSONResponse(r.Context(), map[string]string{"ok": "yes"})
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "created",
			handler: func(w http.ResponseWriter, r *http.Request) {
				SetJSONResponseWithStatus(r.Context(), http.StatusCreated, map[string]string{"ok": "yes"})
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "reason error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				SetJSONError(r.Context(), NewReasonError(ResourceExhausted, ReasonNoCapacity, "no workspace server has room", nil))
			},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "resource_exhausted",
			wantReason: "NO_CAPACITY",
		},
		{
			name: "failed precondition",
			handler: func(w http.ResponseWriter, r *http.Request) {
				SetNewJSONError(r.Context(), FailedPrecondition, "not yet", nil)
			},
			wantStatus: http.StatusConflict,
			wantCode:   "failed_precondition",
		},
		{
			name: "plain error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				SetJSONError(r.Context(), errors.New("boom"))
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "unknown",
		},
		{
			name: "canceled",
			handler: func(w http.ResponseWriter, r *http.Request) {
				SetJSONError(r.Context(), context.Canceled)
			},
			wantStatus: 499,
			wantCode:   "canceled",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := serve(t, tt.handler)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
			if tt.wantCode == "" {
				assert.Equal(t, "yes", body["ok"])
				return
			}
			assert.Equal(t, tt.wantCode, body["code"])
			if tt.wantReason != "" {
				assert.Equal(t, tt.wantReason, body["reason"])
			} else {
				assert.NotContains(t, body, "reason")
			}
		})
	}
}

func TestValidationDetails(t *testing.T) {
	rec, body := serve(t, func(w http.ResponseWriter, r *http.Request) {
		verr := NewError(InvalidArgument, "invalid task", nil)
		verr.AddViolation("title", "required", "title is required")
		verr.AddViolation("category", "in", "category is unknown")
		SetJSONError(r.Context(), verr)
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	details, ok := body["details"].([]any)
	require.True(t, ok)
	require.Len(t, details, 2)
	first := details[0].(map[string]any)
	assert.Equal(t, "title.required", first["rule"])
	assert.Equal(t, "title is required", first["message"])
}

func TestReasonOf(t *testing.T) {
	inner := NewReasonError(FailedPrecondition, ReasonInvalidTransition, "bad", nil)
	outer := NewError(Internal, "server error", fmt.Errorf("update: %w", inner))

	assert.Equal(t, ReasonInvalidTransition, ReasonOf(inner))
	assert.Equal(t, ReasonInvalidTransition, ReasonOf(outer))
	assert.True(t, IsReason(fmt.Errorf("wrapped: %w", inner), ReasonInvalidTransition))
	assert.Equal(t, Reason(""), ReasonOf(errors.New("plain")))
	assert.Equal(t, Reason(""), ReasonOf(nil))
}

func TestWrapStorageReadError(t *testing.T) {
	err := WrapStorageReadError("task", fmt.Errorf("tasks/x.yaml: %w", storage.ErrNotFound))
	assert.True(t, IsCode(err, NotFound))

	err = WrapStorageReadError("task", errors.New("disk on fire"))
	assert.True(t, IsCode(err, Internal))
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestDecodeJSONBody(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`))
	require.NoError(t, DecodeJSONBody(req, &v))
	assert.Equal(t, "a", v.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	assert.True(t, IsCode(DecodeJSONBody(req, &v), InvalidArgument))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	assert.True(t, IsCode(DecodeJSONBody(req, &v), InvalidArgument))
}
