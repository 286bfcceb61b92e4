package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/foliodb/folio/internal/model"
	"github.com/foliodb/folio/internal/orm"
	"github.com/foliodb/folio/internal/site"
)

func newTestAuth(t *testing.T) *AuthService {
	t.Helper()
	db, err := orm.Open(orm.Config{LogLevel: "silent"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := site.Define(context.Background(), db); err != nil {
		t.Fatalf("Define: %v", err)
	}
	return NewAuthService(db, "test-secret-key-for-jwt", time.Hour)
}

func TestJWTRoundTrip(t *testing.T) {
	auth := newTestAuth(t)
	ctx := context.Background()

	token, expires, err := auth.IssueJWT(ctx, model.User{ID: 42, Email: "admin@example.com", Role: "admin"})
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}
	if token == "" || expires.IsZero() {
		t.Fatal("expected a token and an expiry")
	}

	principal, err := auth.ValidateJWT(ctx, token)
	if err != nil {
		t.Fatalf("ValidateJWT: %v", err)
	}
	if principal.UserID != 42 || principal.Email != "admin@example.com" || principal.Role != "admin" {
		t.Errorf("principal = %+v", principal)
	}
}

func TestJWTExpired(t *testing.T) {
	auth := newTestAuth(t)
	ctx := context.Background()

	token, _, err := auth.IssueJWT(ctx, model.User{ID: 1, Email: "test@test.com"})
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}
	auth.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if _, err := auth.ValidateJWT(ctx, token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
}

func TestJWTInvalidToken(t *testing.T) {
	auth := newTestAuth(t)
	ctx := context.Background()

	tests := []string{"", "garbage.token.here"}
	other := NewAuthService(nil, "another-secret", time.Hour)
	forged, _, _ := other.IssueJWT(ctx, model.User{ID: 1})
	tests = append(tests, forged)

	for _, tok := range tests {
		if _, err := auth.ValidateJWT(ctx, tok); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("ValidateJWT(%q) err = %v", tok, err)
		}
	}
}

func TestCreateUserAndLogin(t *testing.T) {
	auth := newTestAuth(t)
	ctx := context.Background()

	u, err := auth.CreateUser(ctx, " Admin@Example.com ", "correct horse", site.RoleAdmin)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.Email != "admin@example.com" || !u.IsAdmin() || u.ID == 0 {
		t.Errorf("user = %+v", u)
	}

	resp, err := auth.Login(ctx, "ADMIN@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	p, err := auth.ValidateJWT(ctx, resp.Token)
	if err != nil {
		t.Fatalf("ValidateJWT: %v", err)
	}
	if p.UserID != u.ID {
		t.Errorf("token user = %d, want %d", p.UserID, u.ID)
	}

	for _, tc := range []struct{ email, password string }{
		{"admin@example.com", "wrong password"},
		{"nobody@example.com", "correct horse"},
	} {
		if _, err := auth.Login(ctx, tc.email, tc.password); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Login(%q) err = %v", tc.email, err)
		}
	}
}

func TestCreateUserErrors(t *testing.T) {
	auth := newTestAuth(t)
	ctx := context.Background()

	if _, err := auth.CreateUser(ctx, "a@b.co", "short", ""); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("short password err = %v", err)
	}
	if _, err := auth.CreateUser(ctx, "not-an-email", "long enough", ""); !errors.Is(err, orm.ErrValidation) {
		t.Errorf("bad email err = %v", err)
	}
	if _, err := auth.CreateUser(ctx, "a@b.co", "long enough", "root"); !errors.Is(err, orm.ErrValidation) {
		t.Errorf("bad role err = %v", err)
	}
	if _, err := auth.CreateUser(ctx, "a@b.co", "long enough", ""); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := auth.CreateUser(ctx, "a@b.co", "long enough", ""); !errors.Is(err, orm.ErrConstraint) {
		t.Errorf("duplicate err = %v", err)
	}

	users, err := auth.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 || users[0].Role != site.RoleEditor {
		t.Errorf("users = %+v", users)
	}
	got, err := auth.GetUser(ctx, users[0].ID)
	if err != nil || got.Email != "a@b.co" {
		t.Errorf("GetUser = %+v, %v", got, err)
	}
}
