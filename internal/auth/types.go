// Package auth provides JWT authentication for the engine API
package auth

// UserClaims represents the JWT claims for a user
type UserClaims struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}

// TokenPair represents an access and refresh token pair
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // access token expiry in seconds
	TokenType    string `json:"token_type"` // always "Bearer"
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// AuthError is a coded authentication error surfaced to API clients
type AuthError struct {
	Code    string
	Message string
}

func (e AuthError) Error() string {
	return e.Message
}

var (
	ErrInvalidToken = AuthError{Code: "INVALID_TOKEN", Message: "invalid or malformed token"}
	ErrTokenExpired = AuthError{Code: "TOKEN_EXPIRED", Message: "token has expired"}
	ErrUnauthorized = AuthError{Code: "UNAUTHORIZED", Message: "authentication required"}
	ErrForbidden    = AuthError{Code: "FORBIDDEN", Message: "insufficient permissions"}
)
