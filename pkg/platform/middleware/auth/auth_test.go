package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certregistry/pkg/domain-errors"
	audit "certregistry/pkg/platform/audit"
	"certregistry/pkg/platform/middleware/metadata"
	"certregistry/pkg/requestcontext"
)

type stubValidator struct {
	claims *Claims
	err    error
}

func (v stubValidator) ValidateToken(string) (*Claims, error) {
	return v.claims, v.err
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []audit.SecurityEvent
}

func (r *recordingEmitter) Emit(_ context.Context, ev audit.SecurityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func serve(t *testing.T, validator TokenValidator, emitter SecurityEmitter, header string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var authority string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authority = requestcontext.Authority(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := metadata.ClientMetadata(RequireAuthority(validator, emitter, slog.New(slog.NewTextHandler(io.Discard, nil)))(next))

	req := httptest.NewRequest(http.MethodPost, "/certificates", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, authority
}

func TestRequireAuthority(t *testing.T) {
	t.Run("valid token passes subject downstream", func(t *testing.T) {
		rec, authority := serve(t, stubValidator{claims: &Claims{Subject: "registry-authority"}}, nil, "Bearer good")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "registry-authority", authority)
	})

	t.Run("missing header is 401 and recorded", func(t *testing.T) {
		emitter := &recordingEmitter{}
		rec, _ := serve(t, stubValidator{}, emitter, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Len(t, emitter.events, 1)
		assert.Equal(t, "missing_token", emitter.events[0].Reason)
		assert.Equal(t, "192.0.2.10", emitter.events[0].IP)
		assert.Equal(t, "POST /certificates", emitter.events[0].Subject)
	})

	t.Run("invalid token is 401", func(t *testing.T) {
		emitter := &recordingEmitter{}
		rec, _ := serve(t, stubValidator{err: errors.New("bad signature")}, emitter, "Bearer bad")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"unauthorized","error_description":"missing or invalid authority token"}`, rec.Body.String())
		require.Len(t, emitter.events, 1)
		assert.Equal(t, "invalid_token", emitter.events[0].Reason)
	})

	t.Run("token without scope is 403", func(t *testing.T) {
		rec, _ := serve(t, stubValidator{err: dErrors.New(dErrors.CodeForbidden, "token lacks registry scope")}, nil, "Bearer weak")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("non bearer scheme is 401", func(t *testing.T) {
		rec, _ := serve(t, stubValidator{claims: &Claims{Subject: "x"}}, nil, "Basic Zm9vOmJhcg==")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
