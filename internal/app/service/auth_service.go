package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"starblog/internal/common"
	"starblog/internal/common/security"
	"starblog/internal/domain/model"
	"starblog/internal/domain/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AuthService struct {
	userRepo   repository.UserRepository
	tokens     *security.TokenService
	bcryptCost int
	log        *zap.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(userRepo repository.UserRepository, tokens *security.TokenService, bcryptCost int, log *zap.Logger) *AuthService {
	return &AuthService{userRepo: userRepo, tokens: tokens, bcryptCost: bcryptCost, log: log}
}

type SignupRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50,alphanum"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"-"`
}

func (s *AuthService) Signup(ctx context.Context, req SignupRequest) (*model.User, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if len(req.Password) > model.PasswordMaxLength {
		return nil, &common.ValidationError{Fields: map[string]string{"password": "must be at most 72 bytes"}}
	}

	hashedPassword, err := security.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		ID:             uuid.NewString(),
		Username:       req.Username,
		HashedPassword: hashedPassword,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// Repo returns common.ErrDuplicateUsername on conflict
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.log.Info("user signed up", zap.String("user_id", user.ID), zap.String("username", user.Username))
	user.HashedPassword = "" // Clear password before returning
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if req.Username == "" || req.Password == "" {
		return nil, common.ErrInvalidCredentials
	}

	user, err := s.userRepo.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// Spend the same bcrypt work as a real comparison.
			security.CheckPasswordHash(req.Password, s.placeholderHash())
			return nil, common.ErrInvalidCredentials // Generic message for security
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if !security.CheckPasswordHash(req.Password, user.HashedPassword) {
		return nil, common.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	user.HashedPassword = ""
	return &AuthResponse{User: user, Token: token}, nil
}

// Authenticate resolves a raw session token to its user. It is the only
// place tokens are turned into identities.
func (s *AuthService) Authenticate(ctx context.Context, rawToken string) (*model.User, error) {
	if rawToken == "" {
		return nil, common.ErrUnauthenticated
	}

	username, err := s.tokens.Verify(rawToken)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("subject %q: %w", username, common.ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("failed to resolve session user: %w", err)
	}
	user.HashedPassword = ""
	return user, nil
}

func (s *AuthService) TokenTTL() int {
	return int(s.tokens.TTL().Seconds())
}

func (s *AuthService) placeholderHash() string {
	s.dummyOnce.Do(func() {
		hash, err := security.HashPassword(uuid.NewString(), s.bcryptCost)
		if err != nil {
			s.log.Warn("failed to build placeholder hash", zap.Error(err))
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}
