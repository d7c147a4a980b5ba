package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Guizzs26/go-meta-sync/internal/db"
	"github.com/Guizzs26/go-meta-sync/internal/models"
	"github.com/Guizzs26/go-meta-sync/internal/session"
	"github.com/Guizzs26/go-meta-sync/pkg/infra"
	"golang.org/x/crypto/bcrypt"
)

type stubUsers struct {
	users map[string]*models.User
}

func (s *stubUsers) UserByEmail(_ context.Context, email string) (*models.User, error) {
	u, ok := s.users[strings.ToLower(email)]
	if !ok {
		return nil, db.ErrNotFound
	}
	return u, nil
}

type kv struct {
	mu   sync.Mutex
	data map[string]string
}

func (k *kv) Get(_ context.Context, key string) (string, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.data[key]
	return v, ok, nil
}

func (k *kv) Set(_ context.Context, key, value string, _ time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.data[key] = value
	return nil
}

func (k *kv) Swap(_ context.Context, key, value string, _ time.Duration) (string, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	old, ok := k.data[key]
	k.data[key] = value
	return old, ok, nil
}

func (k *kv) Del(_ context.Context, keys ...string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, key := range keys {
		delete(k.data, key)
	}
	return nil
}

func (k *kv) DelIfValue(_ context.Context, key, value string) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.data[key] != value {
		return false, nil
	}
	delete(k.data, key)
	return true, nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("superadmin123"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	users := &stubUsers{users: map[string]*models.User{
		"superadmin@example.com": {ID: 1, Email: "superadmin@example.com", PasswordHash: string(hash), RoleID: 1, IsActive: true},
		"retired@example.com":    {ID: 2, Email: "retired@example.com", PasswordHash: string(hash), RoleID: 2, IsActive: false},
	}}

	store := session.NewStore(&kv{data: map[string]string{}}, 30*time.Minute, infra.Discard())
	issuer := NewIssuer("access-secret", "refresh-secret", 30*time.Minute, 7*24*time.Hour)
	return NewService(users, store, issuer, infra.Discard())
}

func TestLoginTwiceKeepsOnlyLatestSession(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	creds := Credentials{Email: "superadmin@example.com", Password: "superadmin123"}

	first, err := s.Login(ctx, creds)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Login(ctx, creds)
	if err != nil {
		t.Fatal(err)
	}

	if first.AccessToken == second.AccessToken {
		t.Fatal("two logins must produce distinct tokens")
	}

	if rec, err := s.Authenticate(ctx, first.AccessToken); err != nil || rec != nil {
		t.Fatalf("tokenA should be rejected, got %+v %v", rec, err)
	}
	rec, err := s.Authenticate(ctx, second.AccessToken)
	if err != nil || rec == nil {
		t.Fatalf("tokenB should be accepted, got %v", err)
	}
	if rec.UserID != 1 {
		t.Fatalf("unexpected user %d", rec.UserID)
	}
}

func TestLoginRejections(t *testing.T) {
	s := newTestService(t)

	cases := []struct {
		name  string
		creds Credentials
	}{
		{"unknown email", Credentials{Email: "nobody@example.com", Password: "x"}},
		{"wrong password", Credentials{Email: "superadmin@example.com", Password: "wrong"}},
		{"inactive user", Credentials{Email: "retired@example.com", Password: "superadmin123"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Login(context.Background(), tc.creds)
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
		})
	}
}

func TestAuthenticateRejectsRefreshAndForeignTokens(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	res, err := s.Login(ctx, Credentials{Email: "superadmin@example.com", Password: "superadmin123"})
	if err != nil {
		t.Fatal(err)
	}

	if rec, _ := s.Authenticate(ctx, res.RefreshToken); rec != nil {
		t.Fatal("refresh token accepted as access token")
	}

	other := NewIssuer("other-secret", "other-refresh", time.Minute, time.Hour)
	forged, err := other.Issue(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if rec, _ := s.Authenticate(ctx, forged.AccessToken); rec != nil {
		t.Fatal("token signed with another secret accepted")
	}
}

func TestLogout(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	res, err := s.Login(ctx, Credentials{Email: "superadmin@example.com", Password: "superadmin123"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Logout(ctx, res.AccessToken); err != nil {
		t.Fatal(err)
	}
	if rec, _ := s.Authenticate(ctx, res.AccessToken); rec != nil {
		t.Fatal("token still valid after logout")
	}
}

func TestVerifyAccessExpired(t *testing.T) {
	issuer := NewIssuer("a", "r", time.Minute, time.Hour)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	pair, err := issuer.Issue(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := issuer.VerifyAccess(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestHashPassword(t *testing.T) {
	h, err := HashPassword("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(h), []byte("s3cret")) != nil {
		t.Fatal("hash does not verify")
	}
}
