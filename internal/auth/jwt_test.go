package auth

import (
	"errors"
	"testing"
	"time"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", 15*time.Minute, 168*time.Hour)

	claims := UserClaims{UserID: "u1", Email: "trader@example.com", IsAdmin: true}
	token, err := m.GenerateAccessToken(claims)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	got, err := m.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken failed: %v", err)
	}
	if got.UserID != "u1" || got.Email != "trader@example.com" || !got.IsAdmin {
		t.Errorf("claims mismatch: %+v", got)
	}
}

func TestJWTManager_RejectsExpired(t *testing.T) {
	m := NewJWTManager("test-secret", -time.Minute, time.Hour)
	token, err := m.GenerateAccessToken(UserClaims{UserID: "u1"})
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	_, err = m.ValidateAccessToken(token)
	var authErr AuthError
	if !errors.As(err, &authErr) || authErr.Code != ErrTokenExpired.Code {
		t.Errorf("expected TOKEN_EXPIRED, got %v", err)
	}
}

func TestJWTManager_RejectsWrongSecret(t *testing.T) {
	a := NewJWTManager("secret-a", 15*time.Minute, time.Hour)
	b := NewJWTManager("secret-b", 15*time.Minute, time.Hour)

	token, err := a.GenerateAccessToken(UserClaims{UserID: "u1"})
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}
	if _, err := b.ValidateAccessToken(token); err == nil {
		t.Error("token signed with a different secret must not validate")
	}
}

func TestPasswordManager_HashAndVerify(t *testing.T) {
	p := NewPasswordManager(4, 8) // low cost for test speed

	hash, err := p.HashPassword("Str0ng!pass")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if !p.VerifyPassword("Str0ng!pass", hash) {
		t.Error("correct password must verify")
	}
	if p.VerifyPassword("wrong-pass", hash) {
		t.Error("wrong password must not verify")
	}
}

func TestPasswordManager_Strength(t *testing.T) {
	p := NewPasswordManager(4, 8)

	tests := []struct {
		password string
		wantErr  bool
	}{
		{"Str0ng!pass", false},
		{"short1!", true},
		{"alllowercase", true},
		{"NoSpecial1", false}, // upper+lower+number = 3 of 4
	}
	for _, tt := range tests {
		err := p.ValidatePasswordStrength(tt.password)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePasswordStrength(%q) error = %v, wantErr %v", tt.password, err, tt.wantErr)
		}
	}
}
