package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/foliodb/folio/internal/model"
	"github.com/foliodb/folio/internal/orm"
	"github.com/foliodb/folio/internal/site"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

// MinPasswordLength is enforced by CreateUser.
const MinPasswordLength = 8

// dummyHash is compared against when the email is unknown so a failed
// login takes as long as a wrong password.
const dummyHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z1aXo0bD2bZ1QxEwVZ3uYV1e"

// JWTPrincipal is the identity carried by a bearer token.
type JWTPrincipal struct {
	UserID int64
	Email  string
	Role   string
}

// AuthService signs users in against the users table and issues and
// verifies bearer tokens.
type AuthService struct {
	db        *orm.DB
	jwtSecret []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewAuthService returns a service issuing tokens valid for ttl.
func NewAuthService(db *orm.DB, jwtSecret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{
		db:        db,
		jwtSecret: []byte(jwtSecret),
		ttl:       ttl,
		now:       time.Now,
	}
}

// CreateUser hashes password with bcrypt and stores a new user.
func (s *AuthService) CreateUser(ctx context.Context, email, password, role string) (*model.User, error) {
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}
	hash, err := site.HashPassword(password)
	if err != nil {
		return nil, err
	}
	rec := orm.Record{
		"email":         strings.ToLower(strings.TrimSpace(email)),
		"password_hash": hash,
	}
	if role != "" {
		rec["role"] = role
	}
	created, err := s.db.Create(ctx, site.Users, rec)
	if err != nil {
		return nil, err
	}
	u := model.UserFromRecord(created.Record)
	return &u, nil
}

// ListUsers returns every user ordered by email.
func (s *AuthService) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.FindAll(ctx, site.Users, orm.FindOptions{OrderBy: []orm.Order{orm.Asc("email")}})
	if err != nil {
		return nil, err
	}
	users := make([]model.User, len(rows))
	for i, r := range rows {
		users[i] = model.UserFromRecord(r)
	}
	return users, nil
}

// GetUser loads a user by id.
func (s *AuthService) GetUser(ctx context.Context, id int64) (*model.User, error) {
	rec, err := s.db.FindByPK(ctx, site.Users, id, orm.FindOptions{})
	if err != nil {
		return nil, err
	}
	u := model.UserFromRecord(rec)
	return &u, nil
}

// Authenticate checks an email and password pair.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	rec, err := s.db.FindOne(ctx, site.Users, orm.FindOptions{
		Where: orm.Where{"email": strings.ToLower(strings.TrimSpace(email))},
	})
	if errors.Is(err, orm.ErrNotFound) {
		site.CheckPassword(dummyHash, password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	hash, _ := rec["password_hash"].(string)
	if !site.CheckPassword(hash, password) {
		return nil, ErrInvalidCredentials
	}
	u := model.UserFromRecord(rec)
	return &u, nil
}

// Login authenticates and issues a token for the user.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.LoginResponse, error) {
	u, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	token, expires, err := s.IssueJWT(ctx, *u)
	if err != nil {
		return nil, err
	}
	return &model.LoginResponse{
		Token:     token,
		ExpiresAt: expires.UTC().Format(time.RFC3339),
		User:      *u,
	}, nil
}

// ValidateJWT verifies a JWT bearer token and returns the identity it carries.
func (s *AuthService) ValidateJWT(ctx context.Context, tokenStr string) (*JWTPrincipal, error) {
	claims := &jwtClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrTokenExpired
	}
	if err != nil || !token.Valid {
		return nil, ErrInvalidCredentials
	}

	return &JWTPrincipal{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   claims.Role,
	}, nil
}

// IssueJWT creates a signed token for u and returns it with its expiry.
func (s *AuthService) IssueJWT(ctx context.Context, u model.User) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := jwtClaims{
		UserID: u.ID,
		Email:  u.Email,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			Issuer:    "folio",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

type jwtClaims struct {
	UserID int64  `json:"uid"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}
