// ABOUTME: Tag registry service enforcing tag uniqueness and ownership
// ABOUTME: Serialises load-mutate-save so concurrent mutations never lose writes

package registry

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/fundgate/internal/apperr"
	"github.com/2389/fundgate/internal/brc29"
)

// Match is one lookup hit.
type Match struct {
	Tag         string `json:"tag"`
	IdentityKey string `json:"identityKey"`
}

// TagInfo is one tag owned by an identity.
type TagInfo struct {
	Tag       string    `json:"tag"`
	CreatedAt time.Time `json:"createdAt"`
}

// RegisterResult reports the outcome of a successful Register.
type RegisterResult struct {
	Tag               string
	AlreadyRegistered bool
}

// Service resolves tags to identity keys and manages registrations.
type Service struct {
	mu     sync.Mutex
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a registry service over store.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// loadForRead treats an unreadable registry as empty.
func (s *Service) loadForRead(ctx context.Context) []Entry {
	entries, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Warn("registry unreadable, serving empty result", "error", err)
		return nil
	}
	return entries
}

// Lookup returns every entry whose tag contains query, case-insensitively,
// in registry order.
func (s *Service) Lookup(ctx context.Context, query string) ([]Match, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, apperr.Validation("Missing query parameter")
	}

	s.mu.Lock()
	entries := s.loadForRead(ctx)
	s.mu.Unlock()

	matches := []Match{}
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Tag), q) {
			matches = append(matches, Match{Tag: e.Tag, IdentityKey: e.IdentityKey})
		}
	}
	return matches, nil
}

// ListForIdentity returns the tags registered to identityKey.
func (s *Service) ListForIdentity(ctx context.Context, identityKey string) ([]TagInfo, error) {
	key := strings.ToLower(strings.TrimSpace(identityKey))
	if key == "" {
		return nil, apperr.Validation("Missing identityKey parameter")
	}

	s.mu.Lock()
	entries := s.loadForRead(ctx)
	s.mu.Unlock()

	tags := []TagInfo{}
	for _, e := range entries {
		if e.IdentityKey == key {
			tags = append(tags, TagInfo{Tag: e.Tag, CreatedAt: e.CreatedAt})
		}
	}
	return tags, nil
}

// Register binds tag to identityKey. Registering an existing pair again
// succeeds with AlreadyRegistered set.
func (s *Service) Register(ctx context.Context, tag, identityKey string) (*RegisterResult, error) {
	if tag == "" || identityKey == "" {
		return nil, apperr.Validation("Missing required fields: tag, identityKey")
	}
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, apperr.Validation("Tag cannot be empty")
	}
	key, err := normalizeIdentityKey(identityKey)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.store.Load(ctx)
	if err != nil {
		return nil, apperr.Storage("Failed to read registry", err)
	}

	lower := strings.ToLower(tag)
	for _, e := range entries {
		if strings.ToLower(e.Tag) != lower {
			continue
		}
		if e.IdentityKey == key {
			return &RegisterResult{Tag: e.Tag, AlreadyRegistered: true}, nil
		}
		return nil, apperr.Conflict(fmt.Sprintf(`Tag "%s" is already registered to another identity`, tag))
	}

	entries = append(entries, Entry{
		Tag:         tag,
		IdentityKey: key,
		CreatedAt:   s.now().UTC(),
	})
	if err := s.store.Save(ctx, entries); err != nil {
		return nil, apperr.Storage("Failed to save registry", err)
	}

	s.logger.Info("tag registered", "tag", tag, "identity_key", key)
	return &RegisterResult{Tag: tag}, nil
}

// Revoke removes the entry binding tag to identityKey.
func (s *Service) Revoke(ctx context.Context, tag, identityKey string) (string, error) {
	if tag == "" || identityKey == "" {
		return "", apperr.Validation("Missing required fields: tag, identityKey")
	}
	lower := strings.ToLower(strings.TrimSpace(tag))
	key := strings.ToLower(strings.TrimSpace(identityKey))

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.store.Load(ctx)
	if err != nil {
		return "", apperr.Storage("Failed to read registry", err)
	}

	idx := -1
	for i, e := range entries {
		if strings.ToLower(e.Tag) == lower && e.IdentityKey == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", apperr.NotFound("Tag not found or does not belong to this identity")
	}

	removed := entries[idx]
	remaining := make([]Entry, 0, len(entries)-1)
	remaining = append(remaining, entries[:idx]...)
	remaining = append(remaining, entries[idx+1:]...)
	if err := s.store.Save(ctx, remaining); err != nil {
		return "", apperr.Storage("Failed to save registry", err)
	}

	s.logger.Info("tag revoked", "tag", removed.Tag, "identity_key", key)
	return removed.Tag, nil
}

// normalizeIdentityKey requires a 33-byte compressed point and returns its
// lower-case hex form.
func normalizeIdentityKey(s string) (string, error) {
	s = strings.TrimSpace(s)
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 33 {
		return "", apperr.Validation("Invalid identityKey: expected 66 hex characters")
	}
	pub, err := brc29.ParsePublicKey(s)
	if err != nil {
		return "", apperr.Validation("Invalid identityKey: not a valid secp256k1 public key")
	}
	return brc29.IdentityKey(pub), nil
}
