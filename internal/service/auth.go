package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"

	"github.com/doctalk-ai/doctalk/internal/domain"
)

// User represents an account the admin CLI provisions. Registration
// and login live outside this service; only token validation is here.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// APIToken is the hashed-at-rest bearer credential for a user.
type APIToken struct {
	ID        string
	UserID    string
	Name      string
	TokenHash string
	Revoked   bool
	CreatedAt time.Time
}

// UserRepositoryInterface defines user persistence
type UserRepositoryInterface interface {
	Create(ctx context.Context, u *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// TokenRepositoryInterface defines api token persistence
type TokenRepositoryInterface interface {
	Create(ctx context.Context, t *APIToken) error
	GetByHash(ctx context.Context, hash string) (*APIToken, error)
}

var tokenPattern = regexp.MustCompile(`^dct_[0-9a-f]{64}$`)

// IsValidAPIToken reports whether a string has the token format.
func IsValidAPIToken(token string) bool {
	return tokenPattern.MatchString(token)
}

// HashToken returns the sha256 hex digest stored for a token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GenerateAPIToken creates a new random token in the dct_<64 hex> form.
func GenerateAPIToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return "dct_" + hex.EncodeToString(buf), nil
}

// AuthService validates bearer tokens and provisions users and tokens
// for the admin CLI.
type AuthService struct {
	users   UserRepositoryInterface
	tokens  TokenRepositoryInterface
	uuidGen UUIDGenerator
}

// NewAuthService creates a new AuthService instance
func NewAuthService(users UserRepositoryInterface, tokens TokenRepositoryInterface, uuidGen UUIDGenerator) *AuthService {
	return &AuthService{
		users:   users,
		tokens:  tokens,
		uuidGen: uuidGen,
	}
}

// ValidateToken resolves a presented bearer token to a user id.
// Invalid and revoked tokens fail without revealing which.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (string, error) {
	if !IsValidAPIToken(token) {
		return "", domain.ErrInvalidToken
	}

	stored, err := s.tokens.GetByHash(ctx, HashToken(token))
	if err != nil {
		return "", domain.ErrInvalidToken
	}
	if stored.Revoked {
		return "", domain.ErrTokenRevoked
	}

	return stored.UserID, nil
}

// CreateUser provisions a user account.
func (s *AuthService) CreateUser(ctx context.Context, email string) (*User, error) {
	if email == "" {
		return nil, domain.ErrMissingRequiredField
	}

	user := &User{
		ID:        s.uuidGen.NewString(),
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// CreateToken issues a new token for the user identified by email.
// The plaintext is returned exactly once; only its hash is stored.
func (s *AuthService) CreateToken(ctx context.Context, email, name string) (string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	token, err := GenerateAPIToken()
	if err != nil {
		return "", err
	}

	record := &APIToken{
		ID:        s.uuidGen.NewString(),
		UserID:    user.ID,
		Name:      name,
		TokenHash: HashToken(token),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return "", err
	}

	return token, nil
}
