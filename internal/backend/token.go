package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/heygaia/chat-sync/internal/security"
)

// ErrTokenExpired means the stored backend token's exp claim has passed. A
// sync pass hitting this aborts quietly; the app shell must push a fresh token
// through the local API.
var ErrTokenExpired = errors.New("backend token expired")

var ErrNoToken = errors.New("no backend token configured")

// TokenSource provides the bearer token attached to backend requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is an environment-supplied token, mainly for development.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrNoToken
	}
	if expired(string(t)) {
		return "", ErrTokenExpired
	}
	return string(t), nil
}

// FileTokenSource keeps the backend token encrypted at rest in a local file,
// so the cached JWT never sits on disk in the clear.
type FileTokenSource struct {
	path      string
	encryptor *security.Encryptor

	mu    sync.RWMutex
	token string
}

func NewFileTokenSource(path string, encryptor *security.Encryptor) *FileTokenSource {
	return &FileTokenSource{path: path, encryptor: encryptor}
}

func (s *FileTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if token == "" {
		loaded, err := s.load()
		if err != nil {
			return "", err
		}
		token = loaded
	}
	if expired(token) {
		return "", ErrTokenExpired
	}
	return token, nil
}

// Set stores a fresh token, replacing the on-disk copy.
func (s *FileTokenSource) Set(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrNoToken
	}
	sealed, err := s.encryptor.EncryptString(token)
	if err != nil {
		return fmt.Errorf("failed to encrypt token: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(sealed), 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// Clear drops the cached and on-disk token. Used on logout.
func (s *FileTokenSource) Clear() error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

func (s *FileTokenSource) load() (string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	token, err := s.encryptor.DecryptString(strings.TrimSpace(string(data)))
	if err != nil {
		return "", fmt.Errorf("failed to decrypt token: %w", err)
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return token, nil
}

// expired inspects the token's exp claim without verifying the signature;
// verification is the backend's job, this only avoids doomed requests. Tokens
// that are not JWTs (or carry no exp) are assumed live.
func expired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Now().After(exp.Time)
}
