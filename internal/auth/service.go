package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/labops/rigctl/internal/control"
	"github.com/labops/rigctl/internal/store"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// UserStore is the credential surface the service needs; the full
// store.Store satisfies it.
type UserStore interface {
	GetUser(ctx context.Context, username string) (store.User, error)
	ListUsers(ctx context.Context) ([]store.User, error)
	SaveUser(ctx context.Context, u store.User) error
	DeleteUser(ctx context.Context, username string) error
}

// Claims are the JWT claims issued on login.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Service authenticates operators against stored bcrypt hashes and
// issues/verifies HMAC-signed JWTs.
type Service struct {
	users      UserStore
	jwtSecret  []byte
	tokenTTL   time.Duration
	bcryptCost int
}

func NewService(users UserStore, jwtSecret string, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Service{
		users:      users,
		jwtSecret:  []byte(jwtSecret),
		tokenTTL:   tokenTTL,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// Login verifies a username/password pair and returns a signed token.
// Unknown users and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	if username == "" || password == "" {
		return "", ErrInvalidCredentials
	}
	u, err := s.users.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, control.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("get user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	claims := Claims{
		Username: u.Username,
		Role:     u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses and validates a token, returning its claims.
func (s *Service) VerifyToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// CreateUser hashes the password and stores the credential.
func (s *Service) CreateUser(ctx context.Context, username, password, role string) error {
	if username == "" || password == "" {
		return fmt.Errorf("%w: username and password are required", control.ErrInvalidArgument)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.users.SaveUser(ctx, store.User{Username: username, PasswordHash: string(hash), Role: role})
}

// DeleteUser removes a credential.
func (s *Service) DeleteUser(ctx context.Context, username string) error {
	return s.users.DeleteUser(ctx, username)
}

// ListUsers returns stored credentials with hashes omitted by JSON tags.
func (s *Service) ListUsers(ctx context.Context) ([]store.User, error) {
	return s.users.ListUsers(ctx)
}
