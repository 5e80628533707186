// Package authpw provides email/password authentication with verification.
package authpw

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"taskloom/api/internal/store"
	"taskloom/api/internal/util"
)

// ResetRequestLimit caps password reset requests per rolling hour per account.
const ResetRequestLimit = 3

var ErrResetRateLimited = errors.New("too many reset requests")

// Service provides email/password authentication
type Service struct {
	store       UserStore
	tokenSecret []byte
}

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	HasDeletedUserWithOriginalEmail(ctx context.Context, email string) (bool, error)
	CreateUser(ctx context.Context, user store.User) error
	CreatePersonalSpace(ctx context.Context, space store.PersonalSpace) error
	UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	VerifyUserEmail(ctx context.Context, token string) (store.User, bool, error)
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	CountResetRequest(ctx context.Context, userID string) (int, error)
	CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error
	GetPasswordReset(ctx context.Context, token string) (string, error)
	MarkPasswordResetUsed(ctx context.Context, token string) error
}

// NewService creates a new auth service
func NewService(store UserStore, tokenSecret string) *Service {
	return &Service{
		store:       store,
		tokenSecret: []byte(tokenSecret),
	}
}

// CheckEmailAvailability reports whether an email can be registered. An email
// freed by account deletion is available again, flagged so the UI can say the
// previous account is unrecoverable.
func (s *Service) CheckEmailAvailability(ctx context.Context, email string) (store.EmailAvailability, error) {
	if email == "" {
		return store.EmailAvailability{}, errors.New("email is required")
	}

	_, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		return store.EmailAvailability{Available: false}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return store.EmailAvailability{}, fmt.Errorf("check email: %w", err)
	}

	previouslyDeleted, err := s.store.HasDeletedUserWithOriginalEmail(ctx, email)
	if err != nil {
		return store.EmailAvailability{}, fmt.Errorf("check deleted email: %w", err)
	}

	return store.EmailAvailability{Available: true, PreviouslyDeleted: previouslyDeleted}, nil
}

// SignUpRequest contains sign-up parameters
type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// SignUpResponse contains sign-up result
type SignUpResponse struct {
	UserID              string
	VerificationToken   string
	RequiresEmailVerify bool
}

// SignUp creates a new user account with an unverified email and a personal
// space the user's private workspaces will live in.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResponse, error) {
	if req.Email == "" || req.Password == "" || req.DisplayName == "" {
		return nil, errors.New("email, password, and display name are required")
	}

	if len(req.Password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}

	availability, err := s.CheckEmailAvailability(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if !availability.Available {
		return nil, errors.New("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	verificationToken, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate verification token: %w", err)
	}

	expiresAt := time.Now().Add(24 * time.Hour)
	user := store.User{
		ID:                    util.NewID("usr"),
		DisplayName:           req.DisplayName,
		Email:                 req.Email,
		PasswordHash:          string(hash),
		EmailVerified:         false,
		VerificationToken:     verificationToken,
		VerificationExpiresAt: &expiresAt,
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	space := store.PersonalSpace{
		ID:     util.NewID("ps"),
		UserID: user.ID,
		Name:   req.DisplayName + "'s Space",
	}
	if err := s.store.CreatePersonalSpace(ctx, space); err != nil {
		return nil, fmt.Errorf("create personal space: %w", err)
	}

	return &SignUpResponse{
		UserID:              user.ID,
		VerificationToken:   verificationToken,
		RequiresEmailVerify: true,
	}, nil
}

// SignInRequest contains sign-in parameters
type SignInRequest struct {
	Email    string
	Password string
}

// SignInResponse contains sign-in result
type SignInResponse struct {
	User           store.User
	RequiresVerify bool
}

// SignIn authenticates a user
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (*SignInResponse, error) {
	if req.Email == "" || req.Password == "" {
		return nil, errors.New("email and password are required")
	}

	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, errors.New("invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errors.New("invalid email or password")
	}

	if !user.EmailVerified {
		return &SignInResponse{
			User:           user,
			RequiresVerify: true,
		}, nil
	}

	return &SignInResponse{
		User:           user,
		RequiresVerify: false,
	}, nil
}

// VerifyEmail consumes a verification token. The returned flag is true only
// for the first successful consumption; a concurrent or repeated attempt on an
// already verified account succeeds without it, so downstream one-time side
// effects (the welcome email) fire exactly once.
func (s *Service) VerifyEmail(ctx context.Context, token string) (store.User, bool, error) {
	if token == "" {
		return store.User{}, false, errors.New("verification token required")
	}

	user, first, err := s.store.VerifyUserEmail(ctx, token)
	if err != nil {
		return store.User{}, false, errors.New("invalid or expired verification token")
	}

	return user, first, nil
}

// RequestPasswordReset creates a password reset token. At most
// ResetRequestLimit requests per account are honored per rolling hour.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		// Don't reveal if email exists
		return "", nil
	}

	count, err := s.store.CountResetRequest(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("count reset request: %w", err)
	}
	if count > ResetRequestLimit {
		return "", ErrResetRateLimited
	}

	token, err := generateToken()
	if err != nil {
		return "", err
	}

	expiresAt := time.Now().Add(1 * time.Hour)
	if err := s.store.CreatePasswordReset(ctx, user.ID, token, expiresAt); err != nil {
		return "", err
	}

	return token, nil
}

// ResetPasswordRequest contains password reset parameters
type ResetPasswordRequest struct {
	Token       string
	NewPassword string
}

// ResetPassword resets a user's password using a reset token
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if req.Token == "" || req.NewPassword == "" {
		return errors.New("token and new password are required")
	}

	if len(req.NewPassword) < 8 {
		return errors.New("password must be at least 8 characters")
	}

	userID, err := s.store.GetPasswordReset(ctx, req.Token)
	if err != nil {
		return errors.New("invalid or expired reset token")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.store.UpdateUserPassword(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	// Best effort: the password is already reset.
	_ = s.store.MarkPasswordResetUsed(ctx, req.Token)

	return nil
}

// generateToken creates a secure random token
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
