package session

import (
	"context"
	"time"

	"corpora/api/internal/store"
	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is the single-process fallback used when no Redis is configured.
// Sessions do not survive a restart.
type MemoryStore struct {
	refresh *gocache.Cache
	revoked *gocache.Cache
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		refresh: gocache.New(gocache.NoExpiration, 10*time.Minute),
		revoked: gocache.New(gocache.NoExpiration, 10*time.Minute),
	}
}

func (s *MemoryStore) SaveRefreshSession(_ context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	s.refresh.Set(tokenHash, tokenDataFor(user), ttl)
	return nil
}

func (s *MemoryStore) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	value, ok := s.refresh.Get(tokenHash)
	if !ok {
		return store.User{}, ErrNotFound
	}
	return value.(TokenData).user(), nil
}

func (s *MemoryStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	s.refresh.Delete(tokenHash)
	return nil
}

func (s *MemoryStore) RevokeAccessToken(_ context.Context, jti string, expiresAt time.Time) error {
	if ttl := time.Until(expiresAt); ttl > 0 {
		s.revoked.Set(jti, struct{}{}, ttl)
	}
	return nil
}

func (s *MemoryStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	_, ok := s.revoked.Get(jti)
	return ok, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
