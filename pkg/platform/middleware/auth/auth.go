// Package auth guards mutating routes with an authority bearer token.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	dErrors "certregistry/pkg/domain-errors"
	audit "certregistry/pkg/platform/audit"
	"certregistry/pkg/platform/httputil"
	"certregistry/pkg/platform/middleware/metadata"
	"certregistry/pkg/requestcontext"
)

// TokenValidator validates a raw bearer token.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// SecurityEmitter records failed authentication attempts. It must not block.
type SecurityEmitter interface {
	Emit(ctx context.Context, event audit.SecurityEvent)
}

// Claims are the token facts the middleware needs.
type Claims struct {
	Subject string
	JTI     string
}

// RequireAuthority rejects requests without a valid authority token and puts
// the token subject into the request context. security may be nil.
func RequireAuthority(validator TokenValidator, security SecurityEmitter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			reject := func(reason string, err error) {
				logger.WarnContext(ctx, "unauthorized authority access",
					"reason", reason,
					"error", err,
					"request_id", requestID,
				)
				if security != nil {
					security.Emit(ctx, audit.SecurityEvent{
						Action:    string(audit.EventAuthorityAuthFailed),
						Reason:    reason,
						IP:        metadata.GetClientIP(ctx),
						RequestID: requestID,
						Subject:   r.Method + " " + r.URL.Path,
					})
				}
				if err == nil || !dErrors.HasCode(err, dErrors.CodeForbidden) {
					err = dErrors.New(dErrors.CodeUnauthorized, "missing or invalid authority token")
				}
				httputil.WriteError(w, err)
			}

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				reject("missing_token", nil)
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				reject("invalid_token", err)
				return
			}

			ctx = requestcontext.WithAuthority(ctx, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
