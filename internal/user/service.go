package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Egold-Exchange/uigisc-be/internal/mailer"
	"github.com/Egold-Exchange/uigisc-be/internal/otp"
	"github.com/Egold-Exchange/uigisc-be/internal/token"
	"github.com/Egold-Exchange/uigisc-be/internal/user/entity"
	userrepo "github.com/Egold-Exchange/uigisc-be/internal/user/repo"
)

// mailTimeout bounds a background reset mail.
const mailTimeout = 30 * time.Second

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrSubdomainTaken     = errors.New("subdomain already taken")
	ErrResetNotVerified   = errors.New("password reset code not verified")
	ErrUserNotFound       = errors.New("user not found")
	ErrWrongPassword      = errors.New("current password is incorrect")
)

// Repository is the persistence the service needs; *repo.UserRepo
// satisfies it.
type Repository interface {
	Create(ctx context.Context, u *entity.User, w *entity.Website) error
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	GetByID(ctx context.Context, id string) (*entity.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	SubdomainExists(ctx context.Context, subdomain string) (bool, error)
	UpdatePassword(ctx context.Context, id, hash string) error
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

type TokenIssuer interface {
	Issue(identity token.Identity) (string, error)
}

// CodeStore is the subset of *otp.Store used by the auth flows.
type CodeStore interface {
	Issue(email string, flow otp.Flow) (string, error)
	Check(email string, flow otp.Flow, candidate string) otp.Outcome
	IsVerified(email string, flow otp.Flow) bool
	Clear(email string, flow otp.Flow)
	Policy(flow otp.Flow) (otp.Policy, bool)
}

type RoleClassifier interface {
	RoleFor(email string) string
}

type IDGenerator interface {
	NewID() string
}

// AuthService orchestrates registration, login and password flows.
type AuthService struct {
	repo   Repository
	hasher PasswordHasher
	tokens TokenIssuer
	codes  CodeStore
	roles  RoleClassifier
	mail   mailer.Mailer
	ids    IDGenerator
	logger *zap.SugaredLogger
	now    func() time.Time

	// dummy is compared against on unknown-email logins.
	dummy string
	// outbox tracks reset mails still being delivered.
	outbox sync.WaitGroup
}

// Deps groups the collaborators of AuthService.
type Deps struct {
	Repo   Repository
	Hasher PasswordHasher
	Tokens TokenIssuer
	Codes  CodeStore
	Roles  RoleClassifier
	Mailer mailer.Mailer
	IDs    IDGenerator
	Logger *zap.SugaredLogger
	Now    func() time.Time
}

func NewAuthService(d Deps) *AuthService {
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	s := &AuthService{
		repo:   d.Repo,
		hasher: d.Hasher,
		tokens: d.Tokens,
		codes:  d.Codes,
		roles:  d.Roles,
		mail:   d.Mailer,
		ids:    d.IDs,
		logger: d.Logger,
		now:    d.Now,
	}
	if s.hasher != nil {
		h, err := s.hasher.Hash("uigisc-dummy-password")
		if err != nil {
			s.logger.Warnw("dummy hash unavailable", "err", err)
		}
		s.dummy = h
	}
	return s
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        *entity.User `json:"user"`
}

type RegisterInput struct {
	Email     string
	Password  string
	Subdomain string
	Name      string
	Mobile    string
	Code      string
}

// SendVerificationCode issues a registration code for an unregistered email
// and mails it.
func (s *AuthService) SendVerificationCode(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	taken, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return fmt.Errorf("lookup email: %w", err)
	}
	if taken {
		return ErrEmailTaken
	}
	code, err := s.codes.Issue(email, otp.FlowRegistrationVerify)
	if err != nil {
		return fmt.Errorf("issue verification code: %w", err)
	}
	if err := s.mail.SendVerificationCode(ctx, email, code, s.ttl(otp.FlowRegistrationVerify)); err != nil {
		s.codes.Clear(email, otp.FlowRegistrationVerify)
		return err
	}
	return nil
}

// Register consumes the registration code and creates the user and website.
// Availability is checked before the code so a taken email or subdomain does
// not burn it.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email := normalizeEmail(in.Email)
	subdomain := strings.ToLower(strings.TrimSpace(in.Subdomain))

	taken, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lookup email: %w", err)
	}
	if taken {
		return nil, ErrEmailTaken
	}
	taken, err = s.repo.SubdomainExists(ctx, subdomain)
	if err != nil {
		return nil, fmt.Errorf("lookup subdomain: %w", err)
	}
	if taken {
		return nil, ErrSubdomainTaken
	}

	if err := s.codes.Check(email, otp.FlowRegistrationVerify, strings.TrimSpace(in.Code)).Err(); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	u := &entity.User{
		ID:           s.ids.NewID(),
		Email:        email,
		PasswordHash: hash,
		Subdomain:    &subdomain,
		Name:         optional(in.Name),
		Mobile:       optional(in.Mobile),
		Role:         s.roles.RoleFor(email),
		IsVerified:   true,
	}
	w := &entity.Website{
		ID:                s.ids.NewID(),
		Subdomain:         subdomain,
		Status:            entity.WebsiteActive,
		CanUpdateReferral: true,
		DatePublished:     &now,
	}
	if err := s.repo.Create(ctx, u, w); err != nil {
		switch {
		case errors.Is(err, userrepo.ErrEmailExists):
			return nil, ErrEmailTaken
		case errors.Is(err, userrepo.ErrSubdomainExist):
			return nil, ErrSubdomainTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.codes.Clear(email, otp.FlowRegistrationVerify)

	s.logger.Infow("user registered", "user_id", u.ID, "role", u.Role)
	return s.authResult(u)
}

// Login never reveals whether the email exists: unknown emails pay for a
// bcrypt comparison against a throwaway hash.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			s.hasher.Verify(password, s.dummy)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return s.authResult(u)
}

// ForgotPassword issues a reset code when the account exists. Delivery runs
// in the background so known and unknown emails answer alike; the result is
// nil either way unless the lookup or the store fails.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return fmt.Errorf("lookup email: %w", err)
	}
	if !exists {
		s.logger.Debugw("password reset requested for unknown email")
		return nil
	}
	code, err := s.codes.Issue(email, otp.FlowPasswordReset)
	if err != nil {
		return fmt.Errorf("issue reset code: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mailTimeout)
	s.outbox.Add(1)
	go func() {
		defer s.outbox.Done()
		defer cancel()
		if err := s.mail.SendPasswordResetCode(sendCtx, email, code, s.ttl(otp.FlowPasswordReset)); err != nil {
			s.codes.Clear(email, otp.FlowPasswordReset)
			s.logger.Errorw("password reset email failed", "err", err)
		}
	}()
	return nil
}

// Wait blocks until background reset mails have been handed off.
func (s *AuthService) Wait() {
	s.outbox.Wait()
}

func (s *AuthService) VerifyResetCode(_ context.Context, email, code string) otp.Outcome {
	return s.codes.Check(normalizeEmail(email), otp.FlowPasswordReset, strings.TrimSpace(code))
}

// ResetPassword requires a verified reset code and consumes it on success.
func (s *AuthService) ResetPassword(ctx context.Context, email, newPassword string) error {
	email = normalizeEmail(email)
	if !s.codes.IsVerified(email, otp.FlowPasswordReset) {
		return ErrResetNotVerified
	}
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			s.codes.Clear(email, otp.FlowPasswordReset)
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	if err := s.setPassword(ctx, u.ID, newPassword); err != nil {
		return err
	}
	s.codes.Clear(email, otp.FlowPasswordReset)
	s.logger.Infow("password reset", "user_id", u.ID)
	return nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID, current, newPassword string) error {
	u, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(current, u.PasswordHash) {
		return ErrWrongPassword
	}
	return s.setPassword(ctx, u.ID, newPassword)
}

func (s *AuthService) Me(ctx context.Context, userID string) (*entity.User, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return u, nil
}

// SubdomainAvailable reports whether a subdomain can still be claimed.
func (s *AuthService) SubdomainAvailable(ctx context.Context, subdomain string) (bool, error) {
	taken, err := s.repo.SubdomainExists(ctx, strings.ToLower(strings.TrimSpace(subdomain)))
	if err != nil {
		return false, fmt.Errorf("lookup subdomain: %w", err)
	}
	return !taken, nil
}

func (s *AuthService) setPassword(ctx context.Context, userID, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *AuthService) authResult(u *entity.User) (*AuthResult, error) {
	tok, err := s.tokens.Issue(token.Identity{ID: u.ID, Email: u.Email, Role: u.Role})
	if err != nil {
		return nil, err
	}
	return &AuthResult{AccessToken: tok, TokenType: "bearer", User: u}, nil
}

func (s *AuthService) ttl(flow otp.Flow) time.Duration {
	p, _ := s.codes.Policy(flow)
	return p.TTL
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
