package token_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Egold-Exchange/uigisc-be/internal/token"
)

func echoClaims(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := token.ClaimsFromContext(r.Context())
		if !ok {
			_, _ = w.Write([]byte("anonymous"))
			return
		}
		_, _ = w.Write([]byte(claims.UserID()))
	})
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "absent"},
		{name: "bearer", header: "Bearer abc", want: "abc"},
		{name: "lower case scheme", header: "bearer abc", want: "abc"},
		{name: "basic scheme", header: "Basic abc", wantErr: true},
		{name: "scheme only", header: "Bearer", wantErr: true},
		{name: "blank token", header: "Bearer   ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, err := token.BearerToken(r)
			if tt.wantErr {
				assert.ErrorIs(t, err, token.ErrTokenMalformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMiddleware(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	svc := newService(t, clock)
	logger := zap.NewNop().Sugar()

	userTok, err := svc.Issue(token.Identity{ID: "user-1", Role: "user"})
	require.NoError(t, err)
	adminTok, err := svc.Issue(token.Identity{ID: "admin-1", Role: "admin"})
	require.NoError(t, err)

	required := token.RequireAuth(svc, logger)(echoClaims(t))
	optional := token.OptionalAuth(svc, logger)(echoClaims(t))
	admin := token.RequireAuth(svc, logger)(token.RequireAdmin(echoClaims(t)))

	tests := []struct {
		name       string
		handler    http.Handler
		header     string
		wantStatus int
		wantBody   string
	}{
		{name: "required without token", handler: required, wantStatus: http.StatusUnauthorized},
		{name: "required with bad token", handler: required, header: "Bearer junk", wantStatus: http.StatusUnauthorized},
		{name: "required with token", handler: required, header: "Bearer " + userTok, wantStatus: http.StatusOK, wantBody: "user-1"},
		{name: "optional anonymous", handler: optional, wantStatus: http.StatusOK, wantBody: "anonymous"},
		{name: "optional with bad token", handler: optional, header: "Bearer junk", wantStatus: http.StatusUnauthorized},
		{name: "optional with wrong scheme", handler: optional, header: "Basic dXNlcg==", wantStatus: http.StatusUnauthorized},
		{name: "optional with token", handler: optional, header: "Bearer " + userTok, wantStatus: http.StatusOK, wantBody: "user-1"},
		{name: "admin as user", handler: admin, header: "Bearer " + userTok, wantStatus: http.StatusForbidden},
		{name: "admin as admin", handler: admin, header: "Bearer " + adminTok, wantStatus: http.StatusOK, wantBody: "admin-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			tt.handler.ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
				assert.JSONEq(t, `{"error":"Could not validate credentials"}`, w.Body.String())
			}
		})
	}
}

func TestRequireAdmin_WithoutClaims(t *testing.T) {
	w := httptest.NewRecorder()
	token.RequireAdmin(echoClaims(t)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// countingValidator records which entry point the middleware used.
type countingValidator struct {
	*token.Service
	optional []string
}

func (v *countingValidator) ValidateOptional(tok string) (*token.Claims, error) {
	v.optional = append(v.optional, tok)
	return v.Service.ValidateOptional(tok)
}

func TestOptionalAuth_UsesValidateOptional(t *testing.T) {
	svc := newService(t, &fakeClock{now: time.Now()})
	v := &countingValidator{Service: svc}
	tok, err := svc.Issue(token.Identity{ID: "user-1", Role: "user"})
	require.NoError(t, err)

	h := token.OptionalAuth(v, zap.NewNop().Sugar())(echoClaims(t))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/session", nil))
	assert.Equal(t, "anonymous", w.Body.String())

	r := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "user-1", w.Body.String())

	assert.Equal(t, []string{"", tok}, v.optional)
}
