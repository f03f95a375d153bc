package services

import (
	"bourracho/auth"
	"bourracho/domain"
	"bourracho/errors"
	"bourracho/mocks"
	"bourracho/repositories"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var tokenizer = auth.NewTokenizer("test-secret", time.Hour)

func TestAuthService_Register(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockIUserRepository(ctrl)
	svc := NewAuthService(slog.Default(), mockRepo, tokenizer)

	t.Run("should register successfully when input is valid", func(t *testing.T) {
		req := require.New(t)

		// Expect CreateUser to be called with a hashed password (not the plain one)
		mockRepo.EXPECT().
			CreateUser("alice", gomock.Not("password123")).
			Return(domain.User{ID: "user-uuid", Username: "alice"}, nil).
			Times(1)

		user, err := svc.Register("alice", "password123")

		req.NoError(err)
		req.Equal("user-uuid", user.ID)
	})

	t.Run("should fail when password is too short", func(t *testing.T) {
		req := require.New(t)

		// Repository should NEVER be called
		mockRepo.EXPECT().CreateUser(gomock.Any(), gomock.Any()).Times(0)

		_, err := svc.Register("alice", "short")

		req.ErrorIs(err, errors.ErrInvalidArgument)
	})

	t.Run("should fail when user already exists in repository", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().
			CreateUser("duplicate", gomock.Any()).
			Return(domain.User{}, errors.ErrUserAlreadyExists).
			Times(1)

		_, err := svc.Register("duplicate", "password123")

		req.ErrorIs(err, errors.ErrConflict)
	})
}

func TestAuthService_Login(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockIUserRepository(ctrl)
	svc := NewAuthService(slog.Default(), mockRepo, tokenizer)

	hashedPassword, err := auth.HashPassword("Secret123456!")
	require.NoError(t, err)
	storedUser := domain.User{ID: "uuid-123", Username: "alice", PasswordHash: hashedPassword}

	t.Run("should login successfully with correct credentials", func(t *testing.T) {
		req := require.New(t)
		mockRepo.EXPECT().GetUserByUsername("alice").Return(storedUser, nil).Times(1)

		session, err := svc.Login("alice", "Secret123456!")

		req.NoError(err)
		req.Equal("uuid-123", session.User.ID)
		claims, err := tokenizer.Validate(session.Token)
		req.NoError(err)
		req.Equal("uuid-123", claims.UserID)
	})

	t.Run("should fail with wrong password", func(t *testing.T) {
		req := require.New(t)
		mockRepo.EXPECT().GetUserByUsername("alice").Return(storedUser, nil).Times(1)

		_, err := svc.Login("alice", "WrongPassword")

		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})

	t.Run("should not reveal unknown usernames", func(t *testing.T) {
		req := require.New(t)
		mockRepo.EXPECT().GetUserByUsername("ghost").Return(domain.User{}, errors.ErrNotFound).Times(1)

		_, err := svc.Login("ghost", "whatever1")

		req.ErrorIs(err, errors.ErrInvalidCredentials)
		req.ErrorIs(err, errors.ErrUnauthenticated)
	})

	t.Run("should surface storage failures", func(t *testing.T) {
		req := require.New(t)
		mockRepo.EXPECT().GetUserByUsername("alice").Return(domain.User{}, errors.ErrUnavailable).Times(1)

		_, err := svc.Login("alice", "Secret123456!")

		req.ErrorIs(err, errors.ErrUnavailable)
	})
}

func TestAuthService_With_Badger(t *testing.T) {
	req := require.New(t)
	svc := NewAuthService(slog.Default(), repositories.NewUserRepository(openTestDB(t)), tokenizer)

	alice, err := svc.Register("alice", "password123")
	req.NoError(err)
	bob, err := svc.Register("bob", "password456")
	req.NoError(err)

	_, err = svc.Register("alice", "password789")
	req.ErrorIs(err, errors.ErrConflict)

	session, err := svc.Login("alice", "password123")
	req.NoError(err)
	req.Equal(alice.ID, session.User.ID)

	users, err := svc.GetManyByIDs([]string{bob.ID, "unknown", alice.ID})
	req.NoError(err)
	req.Len(users, 2)
	req.Equal("bob", users[0].Username)

	found, err := svc.GetByID(bob.ID)
	req.NoError(err)
	req.Equal("bob", found.Username)

	all, err := svc.List()
	req.NoError(err)
	req.Len(all, 2)
}
