package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"flowdesk/internal/model"
	"flowdesk/pkg/util"
)

// UserRepo is the persistence surface the service needs.
type UserRepo interface {
	CreateUser(ctx context.Context, u *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

type Service struct {
	userRepo  UserRepo
	jwtSecret string
}

func NewService(userRepo UserRepo, jwtSecret string) *Service {
	return &Service{
		userRepo:  userRepo,
		jwtSecret: jwtSecret,
	}
}

// Register creates a new user.
func (s *Service) Register(ctx context.Context, email, password string) (*model.User, error) {
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if existing != nil {
		return nil, errors.New("email already exists")
	}

	hash, err := util.HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &model.User{
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}

	if err := s.userRepo.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	return u, nil
}

// Login checks user credentials and returns a JWT.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return "", errors.New("invalid email or password")
	}

	if !util.CheckPassword(password, u.PasswordHash) {
		return "", errors.New("invalid email or password")
	}

	token, err := util.GenerateJWT(u.ID, s.jwtSecret)
	if err != nil {
		return "", err
	}

	return token, nil
}
