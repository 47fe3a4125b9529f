package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore records session tokens that were signed out before their
// natural expiry.
type RevocationStore interface {
	Revoke(ctx context.Context, jti, userID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// revocationEntry stores metadata about a revoked token.
type revocationEntry struct {
	ExpiresAt time.Time
	UserID    string
}

// MemoryRevocationStore keeps revoked token ids in process memory and
// forgets each one once the token would have expired anyway.
type MemoryRevocationStore struct {
	mu       sync.RWMutex
	entries  map[string]revocationEntry // JTI -> entry
	userJTIs map[string][]string        // userID -> []JTI
	done     chan struct{}
	now      func() time.Time
}

// NewMemoryRevocationStore creates a store and starts a goroutine that
// sweeps expired entries every interval (5 minutes when zero).
func NewMemoryRevocationStore(interval time.Duration) *MemoryRevocationStore {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	s := &MemoryRevocationStore{
		entries:  make(map[string]revocationEntry),
		userJTIs: make(map[string][]string),
		done:     make(chan struct{}),
		now:      time.Now,
	}
	go s.cleanupLoop(interval)
	return s
}

func (s *MemoryRevocationStore) Revoke(_ context.Context, jti, userID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[jti]; exists {
		return nil
	}
	s.entries[jti] = revocationEntry{ExpiresAt: expiresAt, UserID: userID}
	if userID != "" {
		s.userJTIs[userID] = append(s.userJTIs[userID], jti)
	}
	return nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.entries[jti]
	return ok, nil
}

// CountForUser returns how many of userID's tokens are currently revoked.
func (s *MemoryRevocationStore) CountForUser(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.userJTIs[userID])
}

// Count returns the number of currently revoked tokens.
func (s *MemoryRevocationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (s *MemoryRevocationStore) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *MemoryRevocationStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup removes entries whose tokens have expired.
func (s *MemoryRevocationStore) cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for jti, entry := range s.entries {
		if !now.After(entry.ExpiresAt) {
			continue
		}
		delete(s.entries, jti)
		if entry.UserID == "" {
			continue
		}
		jtis := s.userJTIs[entry.UserID]
		for i, id := range jtis {
			if id == jti {
				s.userJTIs[entry.UserID] = append(jtis[:i], jtis[i+1:]...)
				break
			}
		}
		if len(s.userJTIs[entry.UserID]) == 0 {
			delete(s.userJTIs, entry.UserID)
		}
	}
}

// RedisRevocationStore shares revocations across instances. Each revoked
// jti is a key that expires together with the token.
type RedisRevocationStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisRevocationStore wraps an existing client.
func NewRedisRevocationStore(client *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{client: client, prefix: "triage:revoked:", now: time.Now}
}

func (s *RedisRevocationStore) key(jti string) string { return s.prefix + jti }

func (s *RedisRevocationStore) Revoke(ctx context.Context, jti, userID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		// Already expired; nothing left to revoke.
		return nil
	}
	if err := s.client.Set(ctx, s.key(jti), userID, ttl).Err(); err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("checking revocation: %w", err)
	}
	return n > 0, nil
}
