package testutil

import (
	"net/http"
	"time"

	"certregistry/pkg/requestcontext"
)

// FixedTime pins requestcontext.Now for every request passing through it.
func FixedTime(now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), now())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
