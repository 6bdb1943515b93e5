// Package otp keeps short numeric one-time codes in memory, keyed by email
// and flow.
//
// Each (email, flow) key moves through absent -> active -> absent. An entry
// leaves the store when it is consumed, cleared, found expired on read, or
// evicted after too many failed checks. Expiry is enforced lazily by the
// operation that touches the entry; Sweep only reclaims memory held by
// entries nobody touches again.
//
// The store lives in process memory only. Running several service instances
// requires an external shared store, which this package does not provide.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"
	"time"
)

// Flow names the purpose a code was issued for.
type Flow string

const (
	FlowRegistrationVerify Flow = "registration-verify"
	FlowPasswordReset      Flow = "password-reset"
)

// ErrUnknownFlow is returned by Issue for a flow without a policy.
var ErrUnknownFlow = errors.New("unknown code flow")

// Policy is the per-flow behavior. RetainOnSuccess keeps the entry with its
// verified flag set after a successful check instead of deleting it.
type Policy struct {
	TTL             time.Duration
	RetainOnSuccess bool
}

// Config holds the store settings.
type Config struct {
	Policies    map[Flow]Policy
	MaxAttempts int
	CodeLength  int
}

// DefaultConfig returns 10 minute single-use registration codes and 15
// minute retained reset codes, 6 digits, 5 attempts.
func DefaultConfig() Config {
	return Config{
		Policies: map[Flow]Policy{
			FlowRegistrationVerify: {TTL: 10 * time.Minute},
			FlowPasswordReset:      {TTL: 15 * time.Minute, RetainOnSuccess: true},
		},
		MaxAttempts: 5,
		CodeLength:  6,
	}
}

type key struct {
	email string
	flow  Flow
}

type entry struct {
	code      string
	expiresAt time.Time
	attempts  int
	verified  bool
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// Store is safe for concurrent use. A single mutex guards the map, so every
// read-modify-write on an entry is atomic.
type Store struct {
	mu      sync.Mutex
	entries map[key]*entry

	cfg    Config
	now    func() time.Time
	random io.Reader
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRandom overrides the entropy source used for codes. Tests use it to
// pin codes or force an entropy failure; production keeps crypto/rand.
func WithRandom(r io.Reader) Option {
	return func(s *Store) {
		if r != nil {
			s.random = r
		}
	}
}

// NewStore creates an empty store. Zero MaxAttempts or CodeLength fall back
// to the defaults.
func NewStore(cfg Config, opts ...Option) *Store {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = def.CodeLength
	}
	if cfg.Policies == nil {
		cfg.Policies = def.Policies
	}
	s := &Store{
		entries: make(map[key]*entry),
		cfg:     cfg,
		now:     time.Now,
		random:  rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the configured policy for flow.
func (s *Store) Policy(flow Flow) (Policy, bool) {
	p, ok := s.cfg.Policies[flow]
	return p, ok
}

// Issue generates a fresh code for (email, flow), replacing any previous
// entry, and returns it for delivery. An entropy failure is returned as an
// error and nothing is stored.
func (s *Store) Issue(email string, flow Flow) (string, error) {
	policy, ok := s.cfg.Policies[flow]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFlow, flow)
	}
	code, err := s.generate()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.purgeLocked(now)
	s.entries[key{email: normalize(email), flow: flow}] = &entry{
		code:      code,
		expiresAt: now.Add(policy.TTL),
	}
	return code, nil
}

// Check compares candidate against the live code for (email, flow).
func (s *Store) Check(email string, flow Flow, candidate string) Outcome {
	k := key{email: normalize(email), flow: flow}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[k]
	if !ok {
		return Outcome{Status: StatusNotFound}
	}
	if e.expired(s.now()) {
		delete(s.entries, k)
		return Outcome{Status: StatusExpired}
	}
	if e.attempts >= s.cfg.MaxAttempts {
		delete(s.entries, k)
		return Outcome{Status: StatusTooManyAttempts}
	}
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(e.code)) != 1 {
		e.attempts++
		return Outcome{Status: StatusMismatch, Remaining: s.cfg.MaxAttempts - e.attempts}
	}

	if s.cfg.Policies[flow].RetainOnSuccess {
		e.verified = true
	} else {
		delete(s.entries, k)
	}
	return Outcome{Status: StatusValid}
}

// IsVerified reports whether a live entry for (email, flow) has passed
// Check. An expired entry is deleted and reported as not verified.
func (s *Store) IsVerified(email string, flow Flow) bool {
	k := key{email: normalize(email), flow: flow}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[k]
	if !ok {
		return false
	}
	if e.expired(s.now()) {
		delete(s.entries, k)
		return false
	}
	return e.verified
}

// Clear removes the entry for (email, flow). It is a no-op when absent.
func (s *Store) Clear(email string, flow Flow) {
	s.mu.Lock()
	delete(s.entries, key{email: normalize(email), flow: flow})
	s.mu.Unlock()
}

// PurgeExpired drops every expired entry and returns how many were removed.
func (s *Store) PurgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purgeLocked(s.now())
}

// Sweep calls PurgeExpired every interval until ctx is done.
func (s *Store) Sweep(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.PurgeExpired()
		}
	}
}

// Len returns the number of stored entries, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) purgeLocked(now time.Time) int {
	n := 0
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// generate draws a uniformly random code of CodeLength digits, leading
// zeros included.
func (s *Store) generate() (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(s.cfg.CodeLength)), nil)
	n, err := rand.Int(s.random, limit)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", s.cfg.CodeLength, n), nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
