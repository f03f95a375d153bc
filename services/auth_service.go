//go:generate go run go.uber.org/mock/mockgen -destination=../mocks/mock_services.go -package=mocks bourracho/services IAuthService,IMembershipService,IChatService
package services

import (
	"bourracho/auth"
	"bourracho/domain"
	"bourracho/errors"
	"bourracho/repositories"
	stderrors "errors"
	"fmt"
	"log/slog"
)

type IAuthService interface {
	Register(username, password string) (domain.User, error)
	Login(username, password string) (domain.Session, error)
	GetByID(userID string) (domain.User, error)
	GetManyByIDs(userIDs []string) ([]domain.User, error)
	List() ([]domain.User, error)
}

type AuthService struct {
	log       *slog.Logger
	users     repositories.IUserRepository
	tokenizer auth.Tokenizer
}

func NewAuthService(log *slog.Logger, users repositories.IUserRepository, tokenizer auth.Tokenizer) IAuthService {
	return &AuthService{log: log, users: users, tokenizer: tokenizer}
}

func (s *AuthService) Register(username, password string) (domain.User, error) {
	// Validated before any expensive cryptographic operation
	if err := auth.ValidateCredentials(auth.Credentials{Username: username, Password: password}); err != nil {
		return domain.User{}, err
	}

	// The repository never sees plain passwords
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hashing failed: %w", err)
	}

	user, err := s.users.CreateUser(username, hashedPassword)
	if err != nil {
		return domain.User{}, err
	}
	s.log.Info("User registered", "user_id", user.ID)
	return user, nil
}

func (s *AuthService) Login(username, password string) (domain.Session, error) {
	user, err := s.users.GetUserByUsername(username)
	if stderrors.Is(err, errors.ErrNotFound) {
		// Same answer as a wrong password, usernames are not enumerable
		return domain.Session{}, errors.ErrInvalidCredentials
	}
	if err != nil {
		return domain.Session{}, err
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil {
		s.log.Error("Stored password hash is unreadable", "user_id", user.ID, "error", err)
		return domain.Session{}, errors.ErrInvalidCredentials
	}
	if !match {
		return domain.Session{}, errors.ErrInvalidCredentials
	}

	token, err := s.tokenizer.Generate(user.ID, user.Username)
	if err != nil {
		return domain.Session{}, err
	}
	return domain.Session{User: user, Token: token}, nil
}

func (s *AuthService) GetByID(userID string) (domain.User, error) {
	return s.users.GetUserByID(userID)
}

// GetManyByIDs skips unknown ids.
func (s *AuthService) GetManyByIDs(userIDs []string) ([]domain.User, error) {
	return s.users.GetUsersByIDs(userIDs)
}

func (s *AuthService) List() ([]domain.User, error) {
	return s.users.ListUsers()
}
