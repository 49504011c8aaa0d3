// Package authpw provides email/password authentication for principals.
// It stands in for a hosted identity provider: it issues identities, not
// roster entries; joining the team roster is a separate step.
package authpw

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/yash1258/TeamSync-sub000/internal/store"
	"github.com/yash1258/TeamSync-sub000/internal/util"
)

// Service provides email/password authentication
type Service struct {
	store IdentityStore
}

// IdentityStore defines the storage interface for auth
type IdentityStore interface {
	GetIdentityByEmail(ctx context.Context, email string) (store.Identity, error)
	GetIdentityByID(ctx context.Context, id string) (store.Identity, error)
	CreateIdentity(ctx context.Context, identity store.Identity) error
	VerifyIdentityEmail(ctx context.Context, token string) error
}

// NewService creates a new auth service
func NewService(identities IdentityStore) *Service {
	return &Service{store: identities}
}

// SignUpRequest contains sign-up parameters
type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// SignUpResponse contains sign-up result
type SignUpResponse struct {
	IdentityID          string
	VerificationToken   string
	RequiresEmailVerify bool
}

// SignUp creates a new principal
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResponse, error) {
	if req.Email == "" || req.Password == "" || req.DisplayName == "" {
		return nil, errors.New("email, password, and display name are required")
	}

	if len(req.Password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}

	if _, err := s.store.GetIdentityByEmail(ctx, req.Email); err == nil {
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
	identity := store.Identity{
		ID:                    util.NewID("idn"),
		Email:                 req.Email,
		DisplayName:           req.DisplayName,
		PasswordHash:          string(hash),
		IsEmailVerified:       false,
		VerificationToken:     verificationToken,
		VerificationExpiresAt: &expiresAt,
	}

	if err := s.store.CreateIdentity(ctx, identity); err != nil {
		return nil, fmt.Errorf("create identity: %w", err)
	}

	return &SignUpResponse{
		IdentityID:          identity.ID,
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
	Identity       store.Identity
	RequiresVerify bool
}

// SignIn authenticates a principal
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (*SignInResponse, error) {
	if req.Email == "" || req.Password == "" {
		return nil, errors.New("email and password are required")
	}

	identity, err := s.store.GetIdentityByEmail(ctx, req.Email)
	if err != nil {
		return nil, errors.New("invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errors.New("invalid email or password")
	}

	if !identity.IsEmailVerified {
		return &SignInResponse{
			Identity:       identity,
			RequiresVerify: true,
		}, nil
	}

	return &SignInResponse{
		Identity:       identity,
		RequiresVerify: false,
	}, nil
}

// VerifyEmail verifies an email address using a token
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("verification token required")
	}

	if err := s.store.VerifyIdentityEmail(ctx, token); err != nil {
		return errors.New("invalid or expired verification token")
	}

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
