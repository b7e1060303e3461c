package auth

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidOperatorKey = errors.New("invalid operator key")
)

// Service validates bearer tokens issued by the platform's auth layer and
// operator keys for the admin override path. Token issuance lives outside
// this subsystem.
type Service interface {
	ValidateToken(ctx context.Context, token string) (uuid.UUID, string, error)
	VerifyOperatorKey(key string) error
}

type service struct {
	secret          []byte
	operatorKeyHash string
}

func NewService(secret []byte, operatorKeyHash string) Service {
	return &service{secret: secret, operatorKeyHash: operatorKeyHash}
}

var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// ValidateToken returns the user id and role carried by a valid HS256 token.
func (s *service) ValidateToken(ctx context.Context, token string) (uuid.UUID, string, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return uuid.Nil, "", err
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return uuid.Nil, "", ErrInvalidToken
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, "", err
	}
	return id, c.Role, nil
}

// VerifyOperatorKey compares the presented key against the bcrypt hash from
// configuration. Required in addition to an admin token for mark-paid.
func (s *service) VerifyOperatorKey(key string) error {
	if s.operatorKeyHash == "" || key == "" {
		return ErrInvalidOperatorKey
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.operatorKeyHash), []byte(key)); err != nil {
		return ErrInvalidOperatorKey
	}
	return nil
}
