package token_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Egold-Exchange/uigisc-be/internal/token"
)

var (
	testSecret = []byte("test-signing-key-0123456789abcdef")
	issuedAt   = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newService(t *testing.T, clock *fakeClock, opts ...token.Option) *token.Service {
	t.Helper()
	opts = append([]token.Option{token.WithClock(clock.Now)}, opts...)
	return token.NewService(testSecret, time.Hour, opts...)
}

func TestService_IssueAndValidate(t *testing.T) {
	clock := &fakeClock{now: issuedAt}
	svc := newService(t, clock)

	tok, err := svc.Issue(token.Identity{ID: "user-123", Email: "a@x.com", Role: "admin"})
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(tok, "."))

	claims, err := svc.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID())
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, "admin", claims.Role)
	assert.True(t, claims.IsAdmin())
	assert.NotEmpty(t, claims.ID)
	assert.True(t, claims.IssuedAt.Time.Equal(issuedAt))
	assert.True(t, claims.ExpiresAt.Time.Equal(issuedAt.Add(time.Hour)))
}

func TestService_ExpiryBoundary(t *testing.T) {
	clock := &fakeClock{now: issuedAt}
	svc := newService(t, clock)
	ttl := 30 * time.Minute

	tok, err := svc.IssueWithTTL(token.Identity{ID: "u1", Role: "user"}, ttl)
	require.NoError(t, err)

	tests := []struct {
		name    string
		at      time.Time
		wantErr error
	}{
		{name: "at issue", at: issuedAt},
		{name: "one second before expiry", at: issuedAt.Add(ttl - time.Second)},
		{name: "exactly at expiry", at: issuedAt.Add(ttl), wantErr: token.ErrTokenExpired},
		{name: "after expiry", at: issuedAt.Add(ttl + time.Hour), wantErr: token.ErrTokenExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock.now = tt.at
			_, err := svc.Validate(tok)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestService_SubSecondIssueKeepsFullTTL(t *testing.T) {
	issued := issuedAt.Add(700 * time.Millisecond)
	clock := &fakeClock{now: issued}
	svc := newService(t, clock)

	tok, err := svc.Issue(token.Identity{ID: "u1", Role: "user"})
	require.NoError(t, err)

	clock.now = issued.Add(time.Hour - 300*time.Millisecond)
	claims, err := svc.Validate(tok)
	require.NoError(t, err)
	assert.True(t, claims.IssuedAt.Time.Equal(issuedAt))
	assert.True(t, claims.ExpiresAt.Time.Equal(issuedAt.Add(time.Hour+time.Second)))

	clock.now = issued.Add(time.Hour - time.Nanosecond)
	_, err = svc.Validate(tok)
	assert.NoError(t, err)

	clock.now = issuedAt.Add(time.Hour + time.Second)
	_, err = svc.Validate(tok)
	assert.ErrorIs(t, err, token.ErrTokenExpired)
}

func TestService_ValidateRejects(t *testing.T) {
	clock := &fakeClock{now: issuedAt}
	svc := newService(t, clock)

	valid, err := svc.Issue(token.Identity{ID: "u1"})
	require.NoError(t, err)

	otherKey := token.NewService([]byte("another-secret-another-secret-xx"), time.Hour, token.WithClock(clock.Now))
	forged, err := otherKey.Issue(token.Identity{ID: "u1"})
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "u1",
		"exp": issuedAt.Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).SignedString(testSecret)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "empty", token: "", wantErr: token.ErrTokenMalformed},
		{name: "garbage", token: "not-a-token", wantErr: token.ErrTokenMalformed},
		{name: "tampered", token: tamper(valid), wantErr: token.ErrTokenMalformed},
		{name: "wrong key", token: forged, wantErr: token.ErrTokenMalformed},
		{name: "alg none", token: noneAlg, wantErr: token.ErrTokenMalformed},
		{name: "missing exp", token: noExp, wantErr: token.ErrTokenMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := svc.Validate(tt.token)
			assert.Nil(t, claims)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestService_MissingSubject(t *testing.T) {
	clock := &fakeClock{now: issuedAt}
	svc := newService(t, clock)

	tok, err := svc.Issue(token.Identity{Email: "a@x.com", Role: "user"})
	require.NoError(t, err)

	_, err = svc.Validate(tok)
	assert.ErrorIs(t, err, token.ErrTokenMissingSubject)
}

func TestService_ForgedExpiredTokenIsMalformed(t *testing.T) {
	clock := &fakeClock{now: issuedAt}
	other := token.NewService([]byte("another-secret-another-secret-xx"), time.Minute, token.WithClock(clock.Now))
	forged, err := other.Issue(token.Identity{ID: "u1"})
	require.NoError(t, err)

	clock.now = issuedAt.Add(time.Hour)
	_, err = newService(t, clock).Validate(forged)
	assert.ErrorIs(t, err, token.ErrTokenMalformed)
}

func TestService_Issuer(t *testing.T) {
	clock := &fakeClock{now: issuedAt}
	svc := newService(t, clock, token.WithIssuer("uigisc"))
	plain := newService(t, clock)

	tok, err := plain.Issue(token.Identity{ID: "u1"})
	require.NoError(t, err)
	_, err = svc.Validate(tok)
	assert.ErrorIs(t, err, token.ErrTokenMalformed)

	tok, err = svc.Issue(token.Identity{ID: "u1"})
	require.NoError(t, err)
	claims, err := svc.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "uigisc", claims.Issuer)
}

func TestService_ValidateOptional(t *testing.T) {
	clock := &fakeClock{now: issuedAt}
	svc := newService(t, clock)

	claims, err := svc.ValidateOptional("")
	assert.NoError(t, err)
	assert.Nil(t, claims)

	_, err = svc.ValidateOptional("bad")
	assert.ErrorIs(t, err, token.ErrTokenMalformed)
}

func TestService_Defaults(t *testing.T) {
	svc := token.NewService(testSecret, 0)
	assert.Equal(t, token.DefaultTTL, svc.TTL())

	_, err := svc.IssueWithTTL(token.Identity{ID: "u1"}, -time.Second)
	assert.Error(t, err)
}

// tamper flips a signature character away from the trailing padding bits.
func tamper(tok string) string {
	i := len(tok) - 5
	repl := byte('A')
	if tok[i] == 'A' {
		repl = 'Q'
	}
	return tok[:i] + string(repl) + tok[i+1:]
}
