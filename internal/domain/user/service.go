package user

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"gnest/internal/infra/pgsql"
	"gnest/internal/pkg/token"
)

var (
	ErrEmailTaken         = errors.New("this email has already been registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

type UserService struct {
	repo   Repository
	tokens *token.Service
	cost   int
}

func NewUserService(repo Repository, tokens *token.Service) *UserService {
	return &UserService{repo: repo, tokens: tokens, cost: bcrypt.DefaultCost}
}

func (s *UserService) Register(ctx context.Context, in *CreateUserDTO) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	found, err := s.repo.FindByEmail(ctx, email)
	if found != nil {
		return nil, ErrEmailTaken
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, err
	}
	u := &User{
		Email:     email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Password:  string(hashed),
		Roles:     []string{"user"},
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *UserService) Authenticate(ctx context.Context, in *LoginDTO) (*TokenResponse, error) {
	u, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(in.Email)))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(in.Password)) != nil {
		return nil, ErrInvalidCredentials
	}

	access, err := s.tokens.Sign(u.ID, u.Email, u.Roles)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.tokens.TTL().Seconds()),
	}, nil
}

// Profile returns gorm.ErrRecordNotFound for unknown ids.
func (s *UserService) Profile(ctx context.Context, id string) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *UserService) List(ctx context.Context, page, pageSize int) (*pgsql.PageResult[User], error) {
	return s.repo.List(ctx, page, pageSize)
}
