package user_test

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/Egold-Exchange/uigisc-be/internal/user/entity"
	userrepo "github.com/Egold-Exchange/uigisc-be/internal/user/repo"
)

// MockMailer implements mailer.Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendVerificationCode(ctx context.Context, to, code string, ttl time.Duration) error {
	args := m.Called(ctx, to, code, ttl)
	return args.Error(0)
}

func (m *MockMailer) SendPasswordResetCode(ctx context.Context, to, code string, ttl time.Duration) error {
	args := m.Called(ctx, to, code, ttl)
	return args.Error(0)
}

// MockRepository implements user.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, u *entity.User, w *entity.Website) error {
	return m.Called(ctx, u, w).Error(0)
}

func (m *MockRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*entity.User)
	return u, args.Error(1)
}

func (m *MockRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*entity.User)
	return u, args.Error(1)
}

func (m *MockRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) SubdomainExists(ctx context.Context, subdomain string) (bool, error) {
	args := m.Called(ctx, subdomain)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	return m.Called(ctx, id, hash).Error(0)
}

// memRepo is an in-memory user.Repository.
type memRepo struct {
	mu       sync.Mutex
	users    map[string]*entity.User
	websites map[string]*entity.Website
}

func newMemRepo() *memRepo {
	return &memRepo{users: map[string]*entity.User{}, websites: map[string]*entity.Website{}}
}

func (r *memRepo) Create(_ context.Context, u *entity.User, w *entity.Website) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return userrepo.ErrEmailExists
		}
	}
	if _, ok := r.websites[w.Subdomain]; ok {
		return userrepo.ErrSubdomainExist
	}
	cp := *u
	r.users[u.ID] = &cp
	w.UserID = u.ID
	r.websites[w.Subdomain] = w
	return nil
}

func (r *memRepo) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, userrepo.ErrNotFound
}

func (r *memRepo) GetByID(_ context.Context, id string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, userrepo.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	return err == nil, nil
}

func (r *memRepo) SubdomainExists(_ context.Context, subdomain string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.websites[subdomain]
	return ok, nil
}

func (r *memRepo) UpdatePassword(_ context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return userrepo.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return strconv.Itoa(1000 + s.n)
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
