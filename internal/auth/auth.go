// Package auth resolves the caller identity for the riskmesh API.
//
// Every mutating request carries an API key ("Authorization: Bearer sk_..."
// or "X-API-Key"). The key maps to an actor address; that address is the
// caller every service checks capabilities against. Keys are issued by an
// operator holding ADMIN_SECRET, or by an already-authenticated actor for
// itself.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/mbd888/riskmesh/internal/idgen"
	"github.com/mbd888/riskmesh/internal/logging"
	"github.com/mbd888/riskmesh/internal/validation"
)

var (
	ErrNoAPIKey      = errors.New("API key required")
	ErrInvalidAPIKey = errors.New("invalid or expired API key")
	ErrKeyNotFound   = errors.New("API key not found")
)

const (
	keyPrefix = "sk_"

	// LastUsed is written at most this often per key.
	touchInterval = time.Minute
)

// APIKey is the stored form of an issued key. The raw key is never stored.
type APIKey struct {
	ID        string     `json:"id"`
	Hash      string     `json:"-"`
	Address   string     `json:"address"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"createdAt"`
	LastUsed  time.Time  `json:"lastUsed,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Revoked   bool       `json:"revoked"`
}

func (k *APIKey) usable(now time.Time) bool {
	return !k.Revoked && (k.ExpiresAt == nil || !now.After(*k.ExpiresAt))
}

// Store persists API keys.
type Store interface {
	Create(ctx context.Context, key *APIKey) error
	GetByHash(ctx context.Context, hash string) (*APIKey, error)
	GetByAddress(ctx context.Context, addr string) ([]*APIKey, error)
	Update(ctx context.Context, key *APIKey) error
}

// Manager issues and validates keys.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func NewManager(store Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

// WithKeyTTL makes newly issued keys expire after ttl. Zero means never.
func (m *Manager) WithKeyTTL(ttl time.Duration) *Manager {
	m.ttl = ttl
	return m
}

// WithClock overrides the time source.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// GenerateKey creates a key for addr and returns the raw key once.
func (m *Manager) GenerateKey(ctx context.Context, addr, name string) (rawKey string, key *APIKey, err error) {
	rawKey = keyPrefix + idgen.Hex(32)
	now := m.now().UTC()
	key = &APIKey{
		ID:        idgen.WithPrefix("ak_"),
		Hash:      hashKey(rawKey),
		Address:   validation.SanitizeAddress(addr),
		Name:      validation.SanitizeString(name, 64),
		CreatedAt: now,
	}
	if m.ttl > 0 {
		exp := now.Add(m.ttl)
		key.ExpiresAt = &exp
	}

	if err := m.store.Create(ctx, key); err != nil {
		return "", nil, err
	}
	return rawKey, key, nil
}

// ValidateKey resolves a raw key, optionally "Bearer "-prefixed.
func (m *Manager) ValidateKey(ctx context.Context, rawKey string) (*APIKey, error) {
	rawKey = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rawKey), "Bearer "))
	if rawKey == "" {
		return nil, ErrNoAPIKey
	}
	if !strings.HasPrefix(rawKey, keyPrefix) {
		return nil, ErrInvalidAPIKey
	}

	key, err := m.store.GetByHash(ctx, hashKey(rawKey))
	if err != nil {
		return nil, ErrInvalidAPIKey
	}
	now := m.now()
	if !key.usable(now) {
		return nil, ErrInvalidAPIKey
	}

	if now.Sub(key.LastUsed) >= touchInterval {
		key.LastUsed = now
		if err := m.store.Update(ctx, key); err != nil {
			logging.L(ctx).Warn("failed to record API key use", "keyId", key.ID, "error", err)
		}
	}
	return key, nil
}

// ListKeys returns all keys for addr.
func (m *Manager) ListKeys(ctx context.Context, addr string) ([]*APIKey, error) {
	return m.store.GetByAddress(ctx, validation.SanitizeAddress(addr))
}

// RevokeKey revokes keyID if it belongs to addr.
func (m *Manager) RevokeKey(ctx context.Context, keyID, addr string) error {
	keys, err := m.ListKeys(ctx, addr)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k.ID == keyID {
			k.Revoked = true
			return m.store.Update(ctx, k)
		}
	}
	return ErrKeyNotFound
}

func hashKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// MemoryStore keeps keys in memory, indexed by hash.
type MemoryStore struct {
	mu     sync.RWMutex
	byHash map[string]*APIKey
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byHash: make(map[string]*APIKey)}
}

func (s *MemoryStore) Create(_ context.Context, key *APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *key
	s.byHash[key.Hash] = &cp
	return nil
}

func (s *MemoryStore) GetByHash(_ context.Context, hash string) (*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.byHash[hash]
	if !ok {
		return nil, ErrKeyNotFound
	}
	cp := *k
	return &cp, nil
}

func (s *MemoryStore) GetByAddress(_ context.Context, addr string) ([]*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*APIKey
	for _, k := range s.byHash {
		if k.Address == addr {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Update writes LastUsed and Revoked. A revoked key stays revoked.
func (s *MemoryStore) Update(_ context.Context, key *APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byHash[key.Hash]
	if !ok {
		return ErrKeyNotFound
	}
	existing.LastUsed = key.LastUsed
	existing.Revoked = existing.Revoked || key.Revoked
	return nil
}
