// ABOUTME: Unit tests for token inspection and loading
// ABOUTME: Tests expiry detection, opaque tokens, and env/file precedence

package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/chat-sync/internal/model"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-secret"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return token
}

func TestInspect(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	token := signed(t, jwt.MapClaims{"sub": "42", "exp": exp.Unix()})

	claims, err := Inspect(token)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if claims.Subject != "42" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "42")
	}
	if !claims.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt, exp)
	}
}

func TestInspect_Garbage(t *testing.T) {
	_, err := Inspect("not-a-jwt")
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Inspect() error = %v, want ErrInvalidToken", err)
	}
}

func TestCheckExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"valid", signed(t, jwt.MapClaims{"sub": "1", "exp": now.Add(time.Hour).Unix()}), nil},
		{"expired", signed(t, jwt.MapClaims{"sub": "1", "exp": now.Add(-time.Minute).Unix()}), model.ErrAuthExpired},
		{"no exp", signed(t, jwt.MapClaims{"sub": "1"}), nil},
		{"opaque", "opaque-session-token", nil},
		{"empty", "", model.ErrAuthExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckExpiry(tt.token, now)
			if tt.wantErr == nil && err != nil {
				t.Errorf("CheckExpiry() error = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckExpiry() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSource(t *testing.T) {
	s := NewSource("a")
	if s.Token() != "a" {
		t.Fatalf("Token() = %q", s.Token())
	}
	s.Set("b")
	if s.Token() != "b" {
		t.Fatalf("Token() = %q", s.Token())
	}
	s.Clear()
	if s.Token() != "" {
		t.Fatalf("Token() = %q after Clear", s.Token())
	}
}

func TestLoadToken_EnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("  from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CHAT_SYNC_TEST_TOKEN", "")
	if got := LoadToken("CHAT_SYNC_TEST_TOKEN", path); got != "from-file" {
		t.Errorf("LoadToken() = %q, want from-file", got)
	}

	t.Setenv("CHAT_SYNC_TEST_TOKEN", "from-env")
	if got := LoadToken("CHAT_SYNC_TEST_TOKEN", path); got != "from-env" {
		t.Errorf("LoadToken() = %q, want from-env", got)
	}

	if got := LoadToken("", filepath.Join(t.TempDir(), "missing")); got != "" {
		t.Errorf("LoadToken() = %q, want empty", got)
	}
}

func TestDefaultTokenPath_UsesXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got := DefaultTokenPath(); got != "/tmp/xdg/chat-sync/token" {
		t.Errorf("DefaultTokenPath() = %q", got)
	}
}
