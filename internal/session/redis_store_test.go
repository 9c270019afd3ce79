package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"corpora/api/internal/store"
	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	rs, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { _ = rs.Close() })
	return rs, s
}

func testUser(id string) store.User {
	return store.User{ID: id, Username: "user-" + id, Role: "annotator"}
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore("://nope"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	rs, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := rs.SaveRefreshSession(ctx, "hash-1", testUser("usr_1"), time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	user, err := rs.LookupRefreshSession(ctx, "hash-1")
	if err != nil {
		t.Fatalf("LookupRefreshSession failed: %v", err)
	}
	if user.ID != "usr_1" || user.Username != "user-usr_1" || user.Role != "annotator" {
		t.Fatalf("unexpected user %+v", user)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	rs, s := setupTestRedis(t)
	ctx := context.Background()

	if err := rs.SaveRefreshSession(ctx, "short", testUser("usr_2"), time.Now().Add(2*time.Second)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	s.FastForward(5 * time.Second)

	if _, err := rs.LookupRefreshSession(ctx, "short"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveRejectsExpiredSession(t *testing.T) {
	rs, _ := setupTestRedis(t)
	if err := rs.SaveRefreshSession(context.Background(), "old", testUser("usr_3"), time.Now().Add(-time.Minute)); err == nil {
		t.Fatal("expected expired session to be rejected")
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	rs, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := rs.SaveRefreshSession(ctx, "revoke-me", testUser("usr_4"), time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	if err := rs.RevokeRefreshSession(ctx, "revoke-me"); err != nil {
		t.Fatalf("RevokeRefreshSession failed: %v", err)
	}
	if _, err := rs.LookupRefreshSession(ctx, "revoke-me"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected revoked token to be gone, got %v", err)
	}
	if err := rs.RevokeRefreshSession(ctx, "never-existed"); err != nil {
		t.Fatalf("revoking unknown token should not fail: %v", err)
	}
}

func TestSessionIsolation(t *testing.T) {
	rs, _ := setupTestRedis(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour)

	for _, id := range []string{"usr_a", "usr_b"} {
		if err := rs.SaveRefreshSession(ctx, "hash-"+id, testUser(id), expiresAt); err != nil {
			t.Fatalf("SaveRefreshSession(%s) failed: %v", id, err)
		}
	}
	if err := rs.RevokeRefreshSession(ctx, "hash-usr_a"); err != nil {
		t.Fatalf("RevokeRefreshSession failed: %v", err)
	}
	if _, err := rs.LookupRefreshSession(ctx, "hash-usr_a"); err == nil {
		t.Fatal("expected usr_a session to be revoked")
	}
	user, err := rs.LookupRefreshSession(ctx, "hash-usr_b")
	if err != nil || user.ID != "usr_b" {
		t.Fatalf("expected usr_b session to survive, got %+v %v", user, err)
	}
}

func TestRevokedAccessTokens(t *testing.T) {
	rs, s := setupTestRedis(t)
	ctx := context.Background()

	if err := rs.RevokeAccessToken(ctx, "jti_1", time.Now().Add(10*time.Second)); err != nil {
		t.Fatalf("RevokeAccessToken failed: %v", err)
	}
	revoked, err := rs.IsAccessTokenRevoked(ctx, "jti_1")
	if err != nil || !revoked {
		t.Fatalf("expected jti_1 revoked, got %v %v", revoked, err)
	}
	if revoked, _ := rs.IsAccessTokenRevoked(ctx, "jti_2"); revoked {
		t.Fatal("jti_2 was never revoked")
	}

	s.FastForward(11 * time.Second)
	if revoked, _ := rs.IsAccessTokenRevoked(ctx, "jti_1"); revoked {
		t.Fatal("revocation should expire with the token")
	}
}

func TestMemoryStore(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	if err := ms.SaveRefreshSession(ctx, "h", testUser("usr_m"), time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	user, err := ms.LookupRefreshSession(ctx, "h")
	if err != nil || user.ID != "usr_m" {
		t.Fatalf("unexpected lookup result %+v %v", user, err)
	}
	_ = ms.RevokeRefreshSession(ctx, "h")
	if _, err := ms.LookupRefreshSession(ctx, "h"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_ = ms.RevokeAccessToken(ctx, "jti", time.Now().Add(time.Minute))
	if revoked, _ := ms.IsAccessTokenRevoked(ctx, "jti"); !revoked {
		t.Fatal("expected jti to be revoked")
	}
}
