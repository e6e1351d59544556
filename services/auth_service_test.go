package services

import (
	"testing"
	"time"

	"panel-lab/auth"
	"panel-lab/errors"
	"panel-lab/mocks"
	"panel-lab/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var issuer = auth.NewIssuer("a-test-secret", 24*time.Hour)

func TestAuthService_Register(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockIUserRepository(ctrl)
	svc := NewAuthService(mockRepo, issuer)

	t.Run("should register successfully when input is valid", func(t *testing.T) {
		req := require.New(t)
		email := "test@example.com"
		password := "ComplexPass123!"

		// The repository gets a hash, never the plain password
		mockRepo.EXPECT().
			CreateUser(email, "Tester", gomock.Not(password)).
			Return("user-uuid", nil).
			Times(1)

		token, err := svc.Register(email, password, "Tester")

		req.NoError(err)
		claims, err := issuer.ValidateToken(string(token))
		req.NoError(err)
		req.Equal("user-uuid", claims.UserID)
		req.Equal("Tester", claims.DisplayName)
	})

	t.Run("should fail when password complexity is not met", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().CreateUser(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		token, err := svc.Register("test@example.com", "simple", "Tester")

		req.ErrorIs(err, errors.ErrInvalidPassword)
		req.Empty(token)
	})

	t.Run("should fail when user already exists in repository", func(t *testing.T) {
		req := require.New(t)
		email := "duplicate@example.com"

		mockRepo.EXPECT().
			CreateUser(email, "Tester", gomock.Any()).
			Return("", errors.ErrUserAlreadyExists).
			Times(1)

		_, err := svc.Register(email, "ComplexPass123!", "Tester")

		req.ErrorIs(err, errors.ErrUserAlreadyExists)
	})
}

func TestAuthService_Login(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockIUserRepository(ctrl)
	svc := NewAuthService(mockRepo, issuer)

	t.Run("should login successfully with correct credentials", func(t *testing.T) {
		req := require.New(t)
		email := "user@example.com"
		password := "Secret123456!"

		hashedPassword, err := auth.HashPassword(password)
		req.NoError(err)
		storedUser := repositories.User{
			ID:           "uuid-123",
			Email:        email,
			DisplayName:  "User",
			PasswordHash: hashedPassword,
			Roles:        []string{"user"},
		}

		mockRepo.EXPECT().
			GetUserByEmail(email).
			Return(storedUser, nil).
			Times(1)

		token, err := svc.Login(email, password)

		req.NoError(err)
		claims, err := issuer.ValidateToken(string(token))
		req.NoError(err)
		req.Equal(storedUser.ID, claims.UserID)
		req.Equal("User", claims.DisplayName)
	})

	t.Run("should return invalid credentials when password matches nothing", func(t *testing.T) {
		req := require.New(t)
		email := "user@example.com"

		hashedPassword, err := auth.HashPassword("CorrectPassword123!")
		req.NoError(err)

		mockRepo.EXPECT().
			GetUserByEmail(email).
			Return(repositories.User{Email: email, PasswordHash: hashedPassword}, nil).
			Times(1)

		_, err = svc.Login(email, "WrongPassword123!")

		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})

	t.Run("should return invalid credentials when user is not found", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().
			GetUserByEmail("unknown@example.com").
			Return(repositories.User{}, badger.ErrKeyNotFound).
			Times(1)

		_, err := svc.Login("unknown@example.com", "anyPassword")

		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})
}
