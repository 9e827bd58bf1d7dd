package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/glueops/tools-api/pkg/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// Principal is the caller identified by an API key.
type Principal struct {
	Name string
}

// Anonymous is used for requests when authentication is disabled.
var Anonymous = &Principal{Name: "anonymous"}

// Service defines the interface for API key authentication.
type Service interface {
	// Enabled reports whether requests must carry an API key.
	Enabled() bool

	// Authenticate resolves an API key to the principal it belongs to.
	Authenticate(ctx context.Context, key string) (*Principal, error)
}

// service implements Service.
type service struct {
	log  logrus.FieldLogger
	cfg  config.AuthConfig
	mu   sync.RWMutex
	seen map[string]*Principal
}

// Ensure service implements Service.
var _ Service = (*service)(nil)

// NewService creates a new auth service.
func NewService(log logrus.FieldLogger, cfg config.AuthConfig) Service {
	return &service{
		log:  log.WithField("component", "auth"),
		cfg:  cfg,
		seen: make(map[string]*Principal, len(cfg.APIKeys)),
	}
}

// Enabled reports whether authentication is required.
func (s *service) Enabled() bool {
	return s.cfg.Enabled
}

// Authenticate compares key against every configured bcrypt hash. Keys that
// matched once are remembered by their sha256 so later requests skip bcrypt.
func (s *service) Authenticate(_ context.Context, key string) (*Principal, error) {
	if !s.cfg.Enabled {
		return Anonymous, nil
	}

	if key == "" {
		return nil, fmt.Errorf("missing api key")
	}

	keyHash := hashToken(key)

	s.mu.RLock()
	principal, ok := s.seen[keyHash]
	s.mu.RUnlock()

	if ok {
		return principal, nil
	}

	for _, apiKey := range s.cfg.APIKeys {
		if err := bcrypt.CompareHashAndPassword([]byte(apiKey.Hash), []byte(key)); err != nil {
			continue
		}

		principal = &Principal{Name: apiKey.Name}

		s.mu.Lock()
		s.seen[keyHash] = principal
		s.mu.Unlock()

		s.log.WithField("key", apiKey.Name).Debug("API key accepted")

		return principal, nil
	}

	return nil, fmt.Errorf("invalid api key")
}

// GenerateKey generates a cryptographically secure random API key.
func GenerateKey() (string, error) {
	bytes := make([]byte, 32)

	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// HashKey returns the bcrypt hash to place in auth.api_keys.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing api key: %w", err)
	}

	return string(hash), nil
}

// hashToken hashes a key for the lookup cache.
func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))

	return hex.EncodeToString(hash[:])
}
