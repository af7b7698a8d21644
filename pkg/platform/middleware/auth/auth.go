package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "compliance/pkg/domain"
	"compliance/pkg/requestcontext"
)

// TokenValidator validates bearer tokens issued by the identity provider.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// Claims is the subset of token claims the service needs to build an actor.
type Claims struct {
	ActorID  string
	TenantID string
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

func parseActor(claims *Claims) (id.Actor, error) {
	actorID, err := id.ParseActorID(claims.ActorID)
	if err != nil {
		return id.Actor{}, fmt.Errorf("invalid actor_id: %w", err)
	}
	tenantID, err := id.ParseTenantID(claims.TenantID)
	if err != nil {
		return id.Actor{}, fmt.Errorf("invalid tenant_id: %w", err)
	}
	actor := id.NewActor(actorID, tenantID)
	if err := actor.Authenticate(); err != nil {
		return id.Actor{}, err
	}
	return actor, nil
}

// RequireActor validates the bearer token and stores the resolved actor in
// the request context. Requests without a resolvable actor or tenant get 401.
func RequireActor(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token", "request_id", requestID)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			actor, err := parseActor(claims)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - unresolvable actor",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(ctx, actor)))
		})
	}
}
