package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Guizzs26/go-meta-sync/internal/db"
	"github.com/Guizzs26/go-meta-sync/internal/models"
	"github.com/Guizzs26/go-meta-sync/internal/session"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials covers unknown emails, wrong passwords and inactive users alike
var ErrInvalidCredentials = errors.New("invalid credentials")

type UserRepository interface {
	UserByEmail(ctx context.Context, email string) (*models.User, error)
}

type SessionStore interface {
	Open(ctx context.Context, rec session.Record) error
	Validate(ctx context.Context, token string) (*session.Record, error)
	Revoke(ctx context.Context, token string) error
}

type Credentials struct {
	Email      string
	Password   string
	DeviceInfo string
	IPAddress  string
}

type LoginResult struct {
	TokenPair
	UserID int64 `json:"userId"`
	RoleID int64 `json:"roleId"`
}

// Service checks credentials, issues tokens and keeps the single-session invariant
type Service struct {
	users    UserRepository
	sessions SessionStore
	issuer   *Issuer
	logger   *slog.Logger
}

func NewService(users UserRepository, sessions SessionStore, issuer *Issuer, logger *slog.Logger) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		issuer:   issuer,
		logger:   logger.With("component", "auth"),
	}
}

// Login verifies the credentials and opens a session that supersedes any previous one
func (s *Service) Login(ctx context.Context, c Credentials) (*LoginResult, error) {
	email := strings.TrimSpace(c.Email)
	l := s.logger.With("email", email)

	user, err := s.users.UserByEmail(ctx, email)
	if errors.Is(err, db.ErrNotFound) {
		l.Warn("Login rejected: unknown user")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !user.IsActive {
		l.Warn("Login rejected: inactive user", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(c.Password)); err != nil {
		l.Warn("Login rejected: password mismatch", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	pair, err := s.issuer.Issue(user.ID, user.RoleID)
	if err != nil {
		return nil, err
	}

	err = s.sessions.Open(ctx, session.Record{
		UserID:     user.ID,
		Token:      pair.AccessToken,
		DeviceInfo: c.DeviceInfo,
		IPAddress:  c.IPAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	l.Info("User logged in", "user_id", user.ID)
	return &LoginResult{TokenPair: pair, UserID: user.ID, RoleID: user.RoleID}, nil
}

// Authenticate accepts only a correctly signed access token that is also the user's
// current session. Any rejection returns (nil, nil)
func (s *Service) Authenticate(ctx context.Context, token string) (*session.Record, error) {
	claims, err := s.issuer.VerifyAccess(token)
	if err != nil {
		s.logger.Debug("Token rejected", "error", err)
		return nil, nil
	}

	rec, err := s.sessions.Validate(ctx, token)
	if err != nil || rec == nil {
		return nil, err
	}
	if rec.UserID != claims.ID {
		s.logger.Warn("Session owner does not match token subject", "session_user", rec.UserID, "token_user", claims.ID)
		return nil, nil
	}
	return rec, nil
}

// Logout revokes the session of token
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}

// HashPassword uses bcrypt with the default cost
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(h), nil
}
