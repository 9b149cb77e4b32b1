package auth

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// account is an in-memory user record. The engine has no user-management
// surface; accounts are seeded from configuration at startup.
type account struct {
	ID           string
	Email        string
	PasswordHash string
	IsAdmin      bool
}

// Service authenticates configured users and issues token pairs. It owns the
// password manager and the JWT manager the API middleware validates against.
type Service struct {
	jwt       *JWTManager
	passwords *PasswordManager

	mu       sync.RWMutex
	accounts map[string]account // keyed by lowercase email
}

// NewService creates an auth service with no registered users
func NewService(jwt *JWTManager, passwords *PasswordManager) *Service {
	return &Service{
		jwt:       jwt,
		passwords: passwords,
		accounts:  make(map[string]account),
	}
}

// RegisterUser adds a user account. The password must pass the strength rules
// before it is hashed and stored.
func (s *Service) RegisterUser(email, password string, isAdmin bool) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if err := s.passwords.ValidatePasswordStrength(password); err != nil {
		return err
	}
	hash, err := s.passwords.HashPassword(password)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(email)
	if _, exists := s.accounts[key]; exists {
		return fmt.Errorf("user %s already exists", email)
	}
	s.accounts[key] = account{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      isAdmin,
	}
	return nil
}

// Login verifies credentials and mints a token pair. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (s *Service) Login(req LoginRequest) (*TokenPair, error) {
	s.mu.RLock()
	acct, ok := s.accounts[strings.ToLower(req.Email)]
	s.mu.RUnlock()

	if !ok || !s.passwords.VerifyPassword(req.Password, acct.PasswordHash) {
		return nil, ErrUnauthorized
	}

	return s.jwt.GenerateTokenPair(UserClaims{
		UserID:  acct.ID,
		Email:   acct.Email,
		IsAdmin: acct.IsAdmin,
	})
}

// JWT exposes the token manager for middleware validation
func (s *Service) JWT() *JWTManager {
	return s.jwt
}
