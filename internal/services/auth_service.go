// Package services hosts request-facing services that sit in front of the
// scoring pipeline: authentication and registration.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/enterprise/fraudscore/internal/auth"
	"github.com/enterprise/fraudscore/internal/models"
	"github.com/enterprise/fraudscore/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password does not meet requirements")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrAccountLocked      = errors.New("account is locked")
)

// startingTrustScore is the neutral trust score assigned to new accounts.
const startingTrustScore = 75.0

// AuthService handles registration, login, and token refresh.
type AuthService struct {
	store      store.Store
	jwtManager *auth.JWTManager
	hasher     *auth.PasswordHasher
}

// NewAuthService creates an AuthService backed by the given Store, JWTManager,
// and PasswordHasher.
func NewAuthService(s store.Store, jwtManager *auth.JWTManager, hasher *auth.PasswordHasher) *AuthService {
	return &AuthService{store: s, jwtManager: jwtManager, hasher: hasher}
}

// RegisterRequest is a registration request.
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	PhoneNumber string `json:"phone_number" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Password    string `json:"password" binding:"required,min=8"`
}

// LoginRequest is a login request.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse is the token and user returned by Register/Login/RefreshToken.
type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresIn int64        `json:"expires_in"`
	User      UserResponse `json:"user"`
}

// UserResponse is the public view of a User.
type UserResponse struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	TrustScore    float64   `json:"trust_score"`
	AccountLocked bool      `json:"account_locked"`
	CreatedAt     string    `json:"created_at"`
}

// Register creates a new user account and issues a token for it.
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	if !s.hasher.ValidateStrength(req.Password) {
		return nil, ErrWeakPassword
	}

	exists, err := s.store.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing email: %w", err)
	}
	if exists {
		return nil, ErrEmailTaken
	}

	hashedPassword, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &models.User{
		Email:            req.Email,
		PhoneNumber:      req.PhoneNumber,
		Name:             req.Name,
		PasswordHash:     hashedPassword,
		TrustScore:       startingTrustScore,
		Enabled:          true,
		RegistrationDate: now,
	}

	if err := s.store.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return s.issueToken(user)
}

// Login authenticates a user by email and password.
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	user, err := s.store.FindUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	if !s.hasher.Check(req.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if user.AccountLocked {
		return nil, ErrAccountLocked
	}

	return s.issueToken(user)
}

// RefreshToken issues a new token for the holder of a still-valid token.
func (s *AuthService) RefreshToken(ctx context.Context, currentToken string) (*AuthResponse, error) {
	claims, err := s.jwtManager.ValidateToken(currentToken)
	if err != nil {
		return nil, err
	}

	user, err := s.store.FindUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if user.AccountLocked {
		return nil, ErrAccountLocked
	}

	return s.issueToken(user)
}

// GetUser retrieves a user's public profile.
func (s *AuthService) GetUser(ctx context.Context, userID uuid.UUID) (*UserResponse, error) {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	resp := toUserResponse(user)
	return &resp, nil
}

func (s *AuthService) issueToken(user *models.User) (*AuthResponse, error) {
	token, err := s.jwtManager.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &AuthResponse{
		Token:     token,
		ExpiresIn: int64((24 * time.Hour).Seconds()),
		User:      toUserResponse(user),
	}, nil
}

func toUserResponse(user *models.User) UserResponse {
	return UserResponse{
		ID:            user.ID,
		Email:         user.Email,
		Name:          user.Name,
		TrustScore:    user.TrustScore,
		AccountLocked: user.AccountLocked,
		CreatedAt:     user.CreatedAt.Format(time.RFC3339),
	}
}
