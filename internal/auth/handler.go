package auth

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"outreach-auth/internal/observability"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service       *Service
	logger        *observability.Logger
	secureCookies bool
}

func NewHandler(service *Service, logger *observability.Logger, secureCookies bool) *Handler {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Handler{service: service, logger: logger, secureCookies: secureCookies}
}

// Mount registers the auth and admin session routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/auth/login", h.Login)
	r.Post("/auth/refresh", h.Refresh)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Post("/auth/logout", h.Logout)
		r.Get("/auth/me", h.Me)
		r.Post("/auth/change-password", h.ChangePassword)

		r.Get("/admin/users/{userID}/sessions", h.ListUserSessions)
		r.Delete("/admin/users/{userID}/sessions", h.RevokeUserSessions)
		r.Delete("/admin/sessions/{sessionID}", h.RevokeSession)
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token        string     `json:"token"`
	RefreshToken string     `json:"refreshToken"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	User         PublicUser `json:"user"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.Email = strings.TrimSpace(body.Email)
	if body.Email == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	result, err := h.service.Login(r.Context(), body.Email, body.Password, clientMeta(r))
	if err != nil {
		h.writeServiceError(w, err, "login")
		return
	}

	h.setTokenCookie(w, result.Tokens.AccessToken)
	writeJSON(w, http.StatusOK, loginResponse{
		Token:        result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		ExpiresAt:    result.Tokens.ExpiresAt,
		User:         result.User,
	})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.RefreshToken = strings.TrimSpace(body.RefreshToken)
	if body.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "Refresh token is required")
		return
	}

	tokens, err := h.service.Refresh(r.Context(), body.RefreshToken, clientMeta(r))
	if err != nil {
		h.writeServiceError(w, err, "refresh")
		return
	}

	h.setTokenCookie(w, tokens.AccessToken)
	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, token, _ := IdentityFromContext(r.Context())

	if err := h.service.Logout(r.Context(), token, identity.UserID, clientMeta(r)); err != nil {
		h.writeServiceError(w, err, "logout")
		return
	}

	h.clearTokenCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	identity, _, _ := IdentityFromContext(r.Context())

	user, err := h.service.CurrentUser(r.Context(), identity.UserID)
	if err != nil {
		h.writeServiceError(w, err, "current_user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var body changePasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if body.CurrentPassword == "" || body.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "Current password and new password are required")
		return
	}
	if len(body.NewPassword) < MinPasswordLength {
		writeError(w, http.StatusBadRequest, "New password must be at least "+strconv.Itoa(MinPasswordLength)+" characters")
		return
	}
	if len(body.NewPassword) > MaxPasswordBytes {
		writeError(w, http.StatusBadRequest, "New password must be at most "+strconv.Itoa(MaxPasswordBytes)+" bytes")
		return
	}

	identity, _, _ := IdentityFromContext(r.Context())
	if err := h.service.ChangePassword(r.Context(), identity.UserID, body.CurrentPassword, body.NewPassword, clientMeta(r)); err != nil {
		h.writeServiceError(w, err, "change_password")
		return
	}

	h.clearTokenCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully. Please log in again."})
}

func (h *Handler) ListUserSessions(w http.ResponseWriter, r *http.Request) {
	identity, _, _ := IdentityFromContext(r.Context())

	sessions, err := h.service.ListUserSessions(r.Context(), identity, chi.URLParam(r, "userID"))
	if err != nil {
		h.writeServiceError(w, err, "list_sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	identity, _, _ := IdentityFromContext(r.Context())

	if err := h.service.RevokeSession(r.Context(), identity, chi.URLParam(r, "sessionID"), clientMeta(r)); err != nil {
		h.writeServiceError(w, err, "revoke_session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Session revoked"})
}

func (h *Handler) RevokeUserSessions(w http.ResponseWriter, r *http.Request) {
	identity, _, _ := IdentityFromContext(r.Context())

	count, err := h.service.RevokeUserSessions(r.Context(), identity, chi.URLParam(r, "userID"), clientMeta(r))
	if err != nil {
		h.writeServiceError(w, err, "revoke_user_sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "Sessions revoked", "count": count})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, operation string) {
	var authErr *Error
	if !errors.As(err, &authErr) || authErr.Kind == KindInternal {
		observability.CaptureError(err)
		h.logger.Error("auth_operation_failed", map[string]any{
			"operation": operation,
			"error":     err.Error(),
		})
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if authErr.Kind == KindAccountLocked {
		retryAfter := int(time.Until(authErr.LockedUntil).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}

	writeError(w, statusFor(authErr.Kind), authErr.Message)
}

func statusFor(kind ErrorKind) int {
	switch kind {
	case KindInvalidCredentials, KindAccountLocked, KindAccountInactive, KindInvalidOrExpiredToken, KindUserInactive:
		return http.StatusUnauthorized
	case KindInvalidCurrentPassword, KindForbiddenSelfRevoke:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func clientMeta(r *http.Request) ClientMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return ClientMeta{IPAddress: ip, UserAgent: r.UserAgent()}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
