package user

import (
	"context"
	"fmt"
	"strings"

	"github.com/otp-identity/internal/domain"
)

type Service interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	// UpdateName renames the user and returns a token carrying the new name.
	UpdateName(ctx context.Context, userID, name string) (*domain.User, string, error)
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	UpdateName(ctx context.Context, userID, name string) error
}

type jwtSigner interface {
	Sign(u *domain.User) (string, error)
}

type service struct {
	repo        userStore
	jwtProvider jwtSigner
}

type ServiceDeps struct {
	UserRepo    userStore
	JWTProvider jwtSigner
}

func NewService(deps ServiceDeps) Service {
	return &service{
		repo:        deps.UserRepo,
		jwtProvider: deps.JWTProvider,
	}
}

func (s *service) Get(ctx context.Context, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id required: %w", domain.ErrBadRequest)
	}
	return s.repo.Get(ctx, userID)
}

func (s *service) List(ctx context.Context) ([]domain.User, error) {
	return s.repo.List(ctx)
}

func (s *service) UpdateName(ctx context.Context, userID, name string) (*domain.User, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", fmt.Errorf("name required: %w", domain.ErrBadRequest)
	}
	if err := s.repo.UpdateName(ctx, userID, name); err != nil {
		return nil, "", err
	}
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	token, err := s.jwtProvider.Sign(u)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	return u, token, nil
}
