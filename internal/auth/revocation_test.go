package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"userhub.org/internal/auth"
)

func TestMemoryRevocationsExpiryAndPruning(t *testing.T) {
	clock := newFakeClock()
	set := auth.NewMemoryRevocations(clock.Now)
	ctx := context.Background()

	if err := set.Revoke(ctx, "tok-1", clock.Now().Add(10*time.Minute)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := set.Revoke(ctx, "tok-2", clock.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	// Already-expired entries are never stored.
	if err := set.Revoke(ctx, "tok-stale", clock.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	if revoked, _ := set.IsRevoked(ctx, "tok-1"); !revoked {
		t.Fatal("tok-1 should be revoked")
	}
	if revoked, _ := set.IsRevoked(ctx, "tok-stale"); revoked {
		t.Fatal("stale entry should not be revoked")
	}
	if got := set.Len(); got != 2 {
		t.Fatalf("Len = %d, want 2", got)
	}

	// Past its expiry a revoked id is clean again, and pruning shrinks the
	// set without any background work.
	clock.Advance(11 * time.Minute)
	if revoked, _ := set.IsRevoked(ctx, "tok-1"); revoked {
		t.Fatal("tok-1 should have expired out of the set")
	}
	if got := set.Len(); got != 1 {
		t.Fatalf("Len after prune = %d, want 1", got)
	}
	clock.Advance(time.Hour)
	if got := set.Len(); got != 0 {
		t.Fatalf("Len after full expiry = %d, want 0", got)
	}
}

func TestRedisRevocations(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	set := auth.NewRedisRevocations(client, "", nil)
	ctx := context.Background()

	if err := set.Revoke(ctx, "tok-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if revoked, err := set.IsRevoked(ctx, "tok-1"); err != nil || !revoked {
		t.Fatalf("IsRevoked = %v, %v; want true", revoked, err)
	}
	if revoked, err := set.IsRevoked(ctx, "tok-other"); err != nil || revoked {
		t.Fatalf("IsRevoked(other) = %v, %v; want false", revoked, err)
	}

	// Redis expiry prunes the entry.
	mr.FastForward(2 * time.Hour)
	if revoked, err := set.IsRevoked(ctx, "tok-1"); err != nil || revoked {
		t.Fatalf("IsRevoked after expiry = %v, %v; want false", revoked, err)
	}
}
