// Package auth handles account registration, sign-in, and session tokens.
//
// Passwords are stored as bcrypt hashes. A successful sign-in issues an
// opaque bearer token held in an in-process session table; tokens expire
// after a configurable TTL and die with the process, which matches the
// transient session model of the rest of the system.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/talkscene/talkscene/internal/user"
)

// Errors returned by the service. Handlers map these onto the HTTP taxonomy.
var (
	// ErrInvalidCredentials covers unknown emails and wrong passwords alike,
	// so a caller cannot probe which accounts exist.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrEmailTaken is returned by Register for an already registered email.
	ErrEmailTaken = errors.New("auth: email already registered")

	// ErrTokenInvalid covers unknown and expired session tokens.
	ErrTokenInvalid = errors.New("auth: session token invalid or expired")

	// ErrWeakPassword is returned by Register for too-short passwords.
	ErrWeakPassword = errors.New("auth: password must be at least 8 characters")
)

// DefaultTTL is the session lifetime used when none is configured.
const DefaultTTL = 7 * 24 * time.Hour

type session struct {
	userID  string
	expires time.Time
}

// Service authenticates users and manages their session tokens.
// It is safe for concurrent use.
type Service struct {
	users user.Store
	log   *slog.Logger
	ttl   time.Duration
	now   func() time.Time

	mu       sync.Mutex
	sessions map[string]session
}

// Option is a functional option for Service.
type Option func(*Service)

// WithTTL sets the session token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates an auth Service over the given user store.
func NewService(users user.Store, log *slog.Logger, opts ...Option) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		users:    users,
		log:      log,
		ttl:      DefaultTTL,
		now:      time.Now,
		sessions: make(map[string]session),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register creates a new password account. Returns [ErrEmailTaken] if the
// email is already registered and [ErrWeakPassword] for short passwords.
func (s *Service) Register(ctx context.Context, email, password, firstName, lastName string) (*user.User, error) {
	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("auth: email %q is invalid", email)
	}
	if len(password) < 8 {
		return nil, ErrWeakPassword
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("auth: look up email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	u := &user.User{
		ID:           uuid.NewString(),
		Email:        email,
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		PasswordHash: string(hash),
		Role:         user.RoleUser,
		Tier:         user.TierFree,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("auth: create user: %w", err)
	}

	s.log.Info("user registered", "user_id", u.ID)
	return u, nil
}

// Login verifies the credentials and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (*user.User, string, error) {
	u, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, "", fmt.Errorf("auth: look up email: %w", err)
	}
	if u == nil || u.PasswordHash == "" {
		return nil, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.IssueToken(u.ID)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// IssueToken creates a session token for an already authenticated user.
// Used directly by the OAuth callback.
func (s *Service) IssueToken(userID string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate token: %w", err)
	}
	token := hex.EncodeToString(buf)

	s.mu.Lock()
	s.sessions[token] = session{userID: userID, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return token, nil
}

// Authenticate resolves a session token to its user. Returns
// [ErrTokenInvalid] for unknown or expired tokens.
func (s *Service) Authenticate(ctx context.Context, token string) (*user.User, error) {
	if token == "" {
		return nil, ErrTokenInvalid
	}

	s.mu.Lock()
	sess, ok := s.sessions[token]
	if ok && s.now().After(sess.expires) {
		delete(s.sessions, token)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return nil, ErrTokenInvalid
	}

	u, err := s.users.Get(ctx, sess.userID)
	if err != nil {
		return nil, fmt.Errorf("auth: load user: %w", err)
	}
	if u == nil {
		return nil, ErrTokenInvalid
	}
	return u, nil
}

// Logout revokes a session token. Revoking an unknown token is not an error.
func (s *Service) Logout(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}
