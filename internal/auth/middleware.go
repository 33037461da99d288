package auth

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey int

const (
	ctxKeyIdentity ctxKey = iota
	ctxKeyToken
)

// RequireAuth resolves the access token from the bearer header or the token
// cookie and rejects the request unless its session row is still live.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := accessTokenFromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		identity, err := h.service.Sessions().Validate(r.Context(), token)
		if err != nil {
			h.writeServiceError(w, err, "validate_session")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyIdentity, identity)
		ctx = context.WithValue(ctx, ctxKeyToken, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityFromContext returns the principal and raw access token stored by RequireAuth.
func IdentityFromContext(ctx context.Context) (Identity, string, bool) {
	identity, ok := ctx.Value(ctxKeyIdentity).(Identity)
	if !ok {
		return Identity{}, "", false
	}
	token, _ := ctx.Value(ctxKeyToken).(string)
	return identity, token, true
}

func accessTokenFromRequest(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			if token := strings.TrimSpace(parts[1]); token != "" {
				return token, true
			}
		}
	}

	cookie, err := r.Cookie(TokenCookieName)
	if err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return "", false
}
