package services

import (
	"fmt"

	"panel-lab/auth"
	"panel-lab/errors"
	"panel-lab/repositories"
)

type IAuthService interface {
	Login(email, password string) (Token, error)
	Register(email, password, displayName string) (Token, error)
}

type AuthService struct {
	userRepository repositories.IUserRepository
	issuer         auth.Issuer
}

type Token string

func NewAuthService(repo repositories.IUserRepository, issuer auth.Issuer) IAuthService {
	return &AuthService{userRepository: repo, issuer: issuer}
}

func (s *AuthService) Register(email, password, displayName string) (Token, error) {
	valReq := auth.RegisterRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	}

	// Checked before any expensive cryptographic operation
	if err := auth.ValidateRegister(valReq); err != nil {
		return "", err
	}

	// The repository never sees a plain password
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}

	userID, err := s.userRepository.CreateUser(email, displayName, hashedPassword)
	if err != nil {
		return "", err // ErrUserAlreadyExists if email is taken
	}

	token, err := s.issuer.GenerateToken(userID, displayName, []string{"user"})
	if err != nil {
		return "", errors.ErrTokenGeneration
	}

	return Token(token), nil
}

func (s *AuthService) Login(email, password string) (Token, error) {
	user, err := s.userRepository.GetUserByEmail(email)
	if err != nil {
		// Same error whether the email exists or not
		return "", errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return "", errors.ErrInvalidCredentials
	}

	token, err := s.issuer.GenerateToken(user.ID, user.DisplayName, user.Roles)
	if err != nil {
		return "", errors.ErrTokenGeneration
	}

	return Token(token), nil
}
