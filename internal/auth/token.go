// ABOUTME: Bearer token handling for the sync client
// ABOUTME: Reads tokens from env or file and inspects JWT expiry without verifying signatures

package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/chat-sync/internal/model"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = fmt.Errorf("token expired: %w", model.ErrAuthExpired)
)

// Claims are the parts of a session token the client cares about.
type Claims struct {
	Subject   string
	ExpiresAt time.Time // zero when the token carries no exp claim
}

// Inspect decodes a JWT's claims without verifying its signature. The server
// stays authoritative; this only lets the client skip requests with a token
// it already knows has lapsed.
func Inspect(tokenString string) (Claims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var out Claims
	out.Subject, _ = claims.GetSubject()
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// CheckExpiry returns ErrExpiredToken when tokenString is a JWT whose exp is
// not after now. Opaque tokens pass; the server decides for them.
func CheckExpiry(tokenString string, now time.Time) error {
	if tokenString == "" {
		return fmt.Errorf("no session token: %w", model.ErrAuthExpired)
	}
	claims, err := Inspect(tokenString)
	if err != nil {
		return nil
	}
	if !claims.ExpiresAt.IsZero() && !now.Before(claims.ExpiresAt) {
		return ErrExpiredToken
	}
	return nil
}

// Source holds the current bearer token. Safe for concurrent use; it
// satisfies api.TokenSource.
type Source struct {
	mu    sync.RWMutex
	token string
}

// NewSource creates a Source holding token.
func NewSource(token string) *Source {
	return &Source{token: token}
}

// Token returns the current token.
func (s *Source) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Set replaces the token.
func (s *Source) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Clear forgets the token.
func (s *Source) Clear() {
	s.Set("")
}

// LoadToken returns the token from the envVar environment variable, falling
// back to the contents of path.
func LoadToken(envVar, path string) string {
	if envVar != "" {
		if token := os.Getenv(envVar); token != "" {
			return token
		}
	}
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// DefaultTokenPath returns XDG_CONFIG_HOME/chat-sync/token, or
// ~/.config/chat-sync/token.
func DefaultTokenPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "chat-sync", "token")
}
