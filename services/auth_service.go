package services

import (
	"context"
	"fmt"
	"log/slog"

	"chat-relay/auth"
	"chat-relay/errors"
	"chat-relay/repositories"
)

type IAuthService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (AuthResult, error)
	Login(ctx context.Context, req auth.LoginRequest) (AuthResult, error)
}

type Token string

func (t Token) String() string {
	return string(t)
}

type AuthResult struct {
	User  repositories.User
	Token Token
}

type AuthService struct {
	userRepository repositories.IUserRepository
	tokens         *auth.TokenService
	presence       IPresenceService
	log            *slog.Logger
}

func NewAuthService(repo repositories.IUserRepository, tokens *auth.TokenService, presence IPresenceService, log *slog.Logger) *AuthService {
	return &AuthService{userRepository: repo, tokens: tokens, presence: presence, log: log}
}

// Register creates the account, announces it to connected clients and
// returns a first session token.
func (s *AuthService) Register(ctx context.Context, req auth.RegisterRequest) (AuthResult, error) {
	// Business rules are checked before any expensive hashing
	if err := auth.ValidateRegister(req); err != nil {
		return AuthResult{}, err
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hashing failed: %w", err)
	}

	user, err := s.userRepository.CreateUser(ctx, req.Email, req.Username, hashedPassword)
	if err != nil {
		return AuthResult{}, err
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Email, []string{user.Role})
	if err != nil {
		return AuthResult{}, err
	}

	profile := user.Profile()
	profile.Online = true
	s.presence.NewUser(profile)
	s.log.Info("User registered", "participant", user.Email)

	return AuthResult{User: user, Token: Token(token)}, nil
}

func (s *AuthService) Login(ctx context.Context, req auth.LoginRequest) (AuthResult, error) {
	if err := auth.ValidateLogin(req); err != nil {
		return AuthResult{}, errors.ErrInvalidCredentials
	}

	user, err := s.userRepository.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, errors.ErrStorage) {
		return AuthResult{}, err
	}
	if err != nil {
		// Same answer as a wrong password to prevent user enumeration
		return AuthResult{}, errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(req.Password, user.PasswordHash)
	if err != nil || !match {
		return AuthResult{}, errors.ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Email, []string{user.Role})
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{User: user, Token: Token(token)}, nil
}
