// Package token issues and validates stateless HS256 bearer tokens.
//
// Tokens are not revocable: a token stays valid until its exp claim passes,
// even across password changes.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/Egold-Exchange/uigisc-be/internal/role"
	"github.com/Egold-Exchange/uigisc-be/pkg/utilities"
)

var (
	ErrTokenMalformed      = errors.New("token malformed")
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenMissingSubject = errors.New("token missing subject")
)

// DefaultTTL is the access token lifetime when none is configured.
const DefaultTTL = 24 * time.Hour

// Identity is the subject a token is issued for.
type Identity struct {
	ID    string
	Email string
	Role  string
}

// Claims is the signed payload. Subject carries the user ID.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c *Claims) UserID() string {
	return c.Subject
}

// IsAdmin reports whether the token carries the admin role.
func (c *Claims) IsAdmin() bool {
	return c.Role == role.Admin
}

// Service signs and validates tokens with a process-wide secret. It holds no
// mutable state and is safe for concurrent use.
type Service struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
	logger *zap.SugaredLogger
}

// Option configures a Service.
type Option func(*Service)

// WithIssuer sets the iss claim and requires it on validation.
func WithIssuer(issuer string) Option {
	return func(s *Service) { s.issuer = issuer }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used for validation diagnostics.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a Service. A non-positive ttl falls back to DefaultTTL.
func NewService(secret []byte, ttl time.Duration, opts ...Option) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Service{
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the default token lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for identity using the default TTL.
func (s *Service) Issue(identity Identity) (string, error) {
	return s.IssueWithTTL(identity, s.ttl)
}

// IssueWithTTL signs a token that expires ttl from now.
func (s *Service) IssueWithTTL(identity Identity, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	// NumericDate keeps whole seconds: iat rounds down and exp rounds up so
	// the token is never shorter than ttl measured from the real issue time.
	now := s.now()
	exp := now.Add(ttl)
	if rounded := exp.Truncate(time.Second); !rounded.Equal(exp) {
		exp = rounded.Add(time.Second)
	}
	claims := &Claims{
		Email: identity.Email,
		Role:  identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        utilities.NewKSUID(),
			Issuer:    s.issuer,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now.Truncate(time.Second)),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate verifies signature and expiry and returns the decoded claims.
// No lookup or revocation check is performed.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		s.logger.Debugw("token rejected", "err", err)
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	if claims.Subject == "" {
		return nil, ErrTokenMissingSubject
	}
	return claims, nil
}

// ValidateOptional treats an empty token as anonymous (nil claims, nil
// error). A non-empty token that fails validation still returns an error.
func (s *Service) ValidateOptional(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, nil
	}
	return s.Validate(tokenString)
}
