package auth_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach-auth/internal/auth"
)

func (f *fixture) router() http.Handler {
	r := chi.NewRouter()
	auth.NewHandler(f.service, nil, true).Mount(r)
	return r
}

type request struct {
	method string
	path   string
	body   any
	token  string
	cookie *http.Cookie
}

func serve(t *testing.T, h http.Handler, req request) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if req.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(req.body))
	}
	r := httptest.NewRequest(req.method, req.path, &body)
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("User-Agent", "handler-test")
	if req.token != "" {
		r.Header.Set("Authorization", "Bearer "+req.token)
	}
	if req.cookie != nil {
		r.AddCookie(req.cookie)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func tokenCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.TokenCookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie set", auth.TokenCookieName)
	return nil
}

func loginOverHTTP(t *testing.T, h http.Handler, email, password string) (string, string) {
	t.Helper()
	rec := serve(t, h, request{
		method: http.MethodPost,
		path:   "/auth/login",
		body:   map[string]string{"email": email, "password": password},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	return body["token"].(string), body["refreshToken"].(string)
}

func TestLoginEndpoint(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "a@x.com", "Secret123!", auth.RoleUser)
	h := f.router()

	rec := serve(t, h, request{
		method: http.MethodPost,
		path:   "/auth/login",
		body:   map[string]string{"email": "a@x.com", "password": "Secret123!"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	cookie := tokenCookie(t, rec)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, int(auth.SessionTTL.Seconds()), cookie.MaxAge)

	body := decode(t, rec)
	assert.Equal(t, cookie.Value, body["token"])
	assert.NotEmpty(t, body["refreshToken"])
	assert.NotEmpty(t, body["expiresAt"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "a@x.com", user["email"])
	assert.Equal(t, "user", user["role"])
	assert.NotContains(t, user, "passwordHash")
}

func TestLoginEndpointErrors(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "a@x.com", "Secret123!", auth.RoleUser)
	h := f.router()

	tests := []struct {
		name    string
		body    any
		status  int
		message string
	}{
		{name: "missing password", body: map[string]string{"email": "a@x.com"}, status: http.StatusBadRequest, message: "Email and password are required"},
		{name: "unknown field", body: map[string]string{"email": "a@x.com", "password": "x", "extra": "y"}, status: http.StatusBadRequest, message: "invalid json body"},
		{name: "unknown email", body: map[string]string{"email": "b@x.com", "password": "Secret123!"}, status: http.StatusUnauthorized, message: "Invalid credentials"},
		{name: "wrong password", body: map[string]string{"email": "a@x.com", "password": "wrong"}, status: http.StatusUnauthorized, message: "Invalid credentials"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, h, request{method: http.MethodPost, path: "/auth/login", body: tt.body})
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, decode(t, rec)["error"])
		})
	}
}

func TestLoginEndpointLockedAccount(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "a@x.com", "Secret123!", auth.RoleUser)
	h := f.router()

	for i := 0; i < auth.MaxFailedLoginAttempts; i++ {
		rec := serve(t, h, request{
			method: http.MethodPost,
			path:   "/auth/login",
			body:   map[string]string{"email": "a@x.com", "password": "wrong"},
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "Invalid credentials", decode(t, rec)["error"])
	}

	rec := serve(t, h, request{
		method: http.MethodPost,
		path:   "/auth/login",
		body:   map[string]string{"email": "a@x.com", "password": "Secret123!"},
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "Account is locked. Try again in 30 minutes.", decode(t, rec)["error"])
}

func TestMeAcceptsBearerAndCookie(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "a@x.com", "Secret123!", auth.RoleUser)
	h := f.router()
	token, _ := loginOverHTTP(t, h, "a@x.com", "Secret123!")

	rec := serve(t, h, request{method: http.MethodGet, path: "/auth/me", token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a@x.com", decode(t, rec)["user"].(map[string]any)["email"])

	rec = serve(t, h, request{
		method: http.MethodGet,
		path:   "/auth/me",
		cookie: &http.Cookie{Name: auth.TokenCookieName, Value: token},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, h, request{method: http.MethodGet, path: "/auth/me"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(t, h, request{method: http.MethodGet, path: "/auth/me", token: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid or expired token", decode(t, rec)["error"])
}

func TestMeReportsDeletedUser(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, "a@x.com", "Secret123!", auth.RoleUser)
	h := f.router()
	token, _ := loginOverHTTP(t, h, "a@x.com", "Secret123!")

	f.store.DeleteUser(user.ID)

	rec := serve(t, h, request{method: http.MethodGet, path: "/auth/me", token: token})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found", decode(t, rec)["error"])
}

func TestRefreshEndpointIssuesCurrentRole(t *testing.T) {
	f := newFixture(t)
	admin := f.seedUser(t, "admin@x.com", "AdminPass1!", auth.RoleAdmin)
	h := f.router()
	_, refresh := loginOverHTTP(t, h, "admin@x.com", "AdminPass1!")

	f.store.SetUserRole(admin.ID, auth.RoleUser)

	rec := serve(t, h, request{method: http.MethodPost, path: "/auth/refresh", body: map[string]string{"refreshToken": refresh}})
	require.Equal(t, http.StatusOK, rec.Code)
	token := decode(t, rec)["token"].(string)

	rec = serve(t, h, request{method: http.MethodGet, path: "/admin/users/" + admin.ID + "/sessions", token: token})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLogoutEndpoint(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "a@x.com", "Secret123!", auth.RoleUser)
	h := f.router()
	token, _ := loginOverHTTP(t, h, "a@x.com", "Secret123!")

	rec := serve(t, h, request{method: http.MethodPost, path: "/auth/logout", token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, -1, tokenCookie(t, rec).MaxAge)

	rec = serve(t, h, request{method: http.MethodGet, path: "/auth/me", token: token})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshEndpoint(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "a@x.com", "Secret123!", auth.RoleUser)
	h := f.router()
	_, refresh := loginOverHTTP(t, h, "a@x.com", "Secret123!")

	rec := serve(t, h, request{method: http.MethodPost, path: "/auth/refresh", body: map[string]string{"refreshToken": refresh}})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.NotEmpty(t, body["token"])
	assert.NotEqual(t, refresh, body["refreshToken"])
	assert.Equal(t, body["token"], tokenCookie(t, rec).Value)

	rec = serve(t, h, request{method: http.MethodPost, path: "/auth/refresh", body: map[string]string{"refreshToken": refresh}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(t, h, request{method: http.MethodPost, path: "/auth/refresh", body: map[string]string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChangePasswordEndpoint(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "a@x.com", "Secret123!", auth.RoleUser)
	h := f.router()
	token, _ := loginOverHTTP(t, h, "a@x.com", "Secret123!")

	tests := []struct {
		name   string
		body   map[string]string
		status int
	}{
		{name: "missing fields", body: map[string]string{"currentPassword": "Secret123!"}, status: http.StatusBadRequest},
		{name: "too short", body: map[string]string{"currentPassword": "Secret123!", "newPassword": "short"}, status: http.StatusBadRequest},
		{name: "too long for bcrypt", body: map[string]string{"currentPassword": "Secret123!", "newPassword": strings.Repeat("y", 100)}, status: http.StatusBadRequest},
		{name: "wrong current", body: map[string]string{"currentPassword": "nope", "newPassword": "NewSecret456!"}, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, h, request{method: http.MethodPost, path: "/auth/change-password", token: token, body: tt.body})
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	rec := serve(t, h, request{
		method: http.MethodPost,
		path:   "/auth/change-password",
		token:  token,
		body:   map[string]string{"currentPassword": "Secret123!", "newPassword": "NewSecret456!"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(decode(t, rec)["message"].(string), "Password changed"))

	rec = serve(t, h, request{method: http.MethodGet, path: "/auth/me", token: token})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminEndpoints(t *testing.T) {
	f := newFixture(t)
	admin := f.seedUser(t, "admin@x.com", "AdminPass1!", auth.RoleAdmin)
	member := f.seedUser(t, "a@x.com", "Secret123!", auth.RoleUser)
	h := f.router()

	adminToken, _ := loginOverHTTP(t, h, "admin@x.com", "AdminPass1!")
	memberToken, _ := loginOverHTTP(t, h, "a@x.com", "Secret123!")

	rec := serve(t, h, request{method: http.MethodGet, path: "/admin/users/" + member.ID + "/sessions", token: memberToken})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(t, h, request{method: http.MethodGet, path: "/admin/users/" + member.ID + "/sessions", token: adminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	sessions := decode(t, rec)["sessions"].([]any)
	require.Len(t, sessions, 1)
	view := sessions[0].(map[string]any)
	assert.NotContains(t, view, "accessToken")
	sessionID := view["id"].(string)

	rec = serve(t, h, request{method: http.MethodDelete, path: "/admin/users/" + admin.ID + "/sessions", token: adminToken})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, h, request{method: http.MethodDelete, path: "/admin/sessions/" + sessionID, token: adminToken})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, h, request{method: http.MethodDelete, path: "/admin/sessions/" + sessionID, token: adminToken})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, h, request{method: http.MethodGet, path: "/auth/me", token: memberToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	loginOverHTTP(t, h, "a@x.com", "Secret123!")
	rec = serve(t, h, request{method: http.MethodDelete, path: "/admin/users/" + member.ID + "/sessions", token: adminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["count"])
}
