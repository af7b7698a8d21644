// Package requesttime pins one "now" per HTTP request so audit entries,
// deadlines and completion stamps inside a request agree with each other.
package requesttime

import (
	"net/http"
	"time"

	"compliance/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
