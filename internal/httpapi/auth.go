package httpapi

import (
	"context"
	"net/http"
	"strings"

	"turnero/internal/auth"
	"turnero/internal/dispatch"
	"turnero/internal/models"
)

type identityContextKey struct{}

// AuthMiddleware resolves the caller's identity from a bearer token. Public
// endpoints pass through untouched; everything else requires a valid token.
func AuthMiddleware(tokens *auth.Manager, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing token")
			return
		}
		claims, err := tokens.Parse(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		identity := dispatch.Identity{ActorID: claims.UserID, Role: claims.Role}
		if claims.BoxNumber != nil {
			identity.Station = *claims.BoxNumber
		}
		ctx := context.WithValue(r.Context(), identityContextKey{}, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFromContext(ctx context.Context) (dispatch.Identity, bool) {
	value := ctx.Value(identityContextKey{})
	if value == nil {
		return dispatch.Identity{}, false
	}
	identity, ok := value.(dispatch.Identity)
	return identity, ok
}

func requireIdentity(w http.ResponseWriter, r *http.Request) (dispatch.Identity, bool) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing token")
		return dispatch.Identity{}, false
	}
	return identity, true
}

func requireAdmin(w http.ResponseWriter, r *http.Request) (dispatch.Identity, bool) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return dispatch.Identity{}, false
	}
	if identity.Role != models.RoleAdmin {
		writeError(w, http.StatusForbidden, "forbidden", "admin role required")
		return dispatch.Identity{}, false
	}
	return identity, true
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func isPublicEndpoint(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return true
	case "/api/auth/login":
		return r.Method == http.MethodPost
	case "/api/snapshot":
		return r.Method == http.MethodGet
	default:
		return r.Method == http.MethodOptions
	}
}
