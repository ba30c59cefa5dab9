// Package token issues and verifies the HS256 access tokens carried in the
// Authorization header.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
)

var (
	ErrMissingSecret = errors.New("token: secret is empty")
	ErrInvalid       = errors.New("token: invalid token")
)

// Claims is the authenticated principal attached to a request.
type Claims struct {
	jwt.StandardClaims
	Email string   `json:"email"`
	Roles []string `json:"roles,omitempty"`
}

type Config struct {
	Secret    string
	AccessTTL time.Duration
	Issuer    string
}

type Service struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	return &Service{secret: []byte(cfg.Secret), ttl: cfg.AccessTTL, issuer: cfg.Issuer, now: time.Now}, nil
}

func (s *Service) TTL() time.Duration { return s.ttl }

// Sign issues an access token for subject.
func (s *Service) Sign(subject, email string, roles []string) (string, error) {
	now := s.now()
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(s.ttl).Unix(),
		},
		Email: email,
		Roles: roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Parse verifies signature, algorithm and expiry.
func (s *Service) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !tok.Valid {
		return nil, ErrInvalid
	}
	return claims, nil
}
