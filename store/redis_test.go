package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) *RedisSessionStore {
	t.Helper()
	addr := os.Getenv("CHECKOUT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CHECKOUT_TEST_REDIS_ADDR not set")
	}
	s, err := DialRedis(context.Background(), Options{RedisAddr: addr, RedisDB: 15})
	if err != nil {
		t.Fatalf("expected redis at %s, got %v", addr, err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRedisKey(t *testing.T) {
	if got := redisKey(" st-1 "); got != "checkout:session:st-1" {
		t.Fatalf("unexpected key: %s", got)
	}
}

func TestDialRedis_Unreachable(t *testing.T) {
	_, err := DialRedis(context.Background(), Options{RedisAddr: "127.0.0.1:1"})
	if err == nil {
		t.Fatal("expected error for unreachable redis")
	}
}

func TestRedisSessionStore_RoundTrip(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	s.now = func() time.Time { return now }

	session := testSession("st-redis", now.Add(5*time.Minute))
	if err := s.Save(ctx, session); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	t.Cleanup(func() { _ = s.Clear(context.Background(), "st-redis") })

	ttl, err := s.client.TTL(ctx, redisKey("st-redis")).Result()
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if ttl <= 0 || ttl > 5*time.Minute {
		t.Fatalf("expected TTL bounded by the hold, got %v", ttl)
	}

	got, ok, err := s.Load(ctx, "st-redis")
	if err != nil || !ok {
		t.Fatalf("expected snapshot, got ok=%v err=%v", ok, err)
	}
	if got.BookingId != session.BookingId {
		t.Fatalf("unexpected snapshot: %+v", got)
	}

	sessions, err := s.List(ctx)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	found := false
	for _, listed := range sessions {
		found = found || listed.Showtime.ShowtimeId == "st-redis"
	}
	if !found {
		t.Fatalf("expected st-redis in %+v", sessions)
	}

	if err := s.Clear(ctx, "st-redis"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if _, err := s.client.Get(ctx, redisKey("st-redis")).Result(); err != redis.Nil {
		t.Fatalf("expected key deleted, got %v", err)
	}
}

func TestRedisSessionStore_ExpiredSaveDeletes(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	now := time.Now()
	s.now = func() time.Time { return now }

	if err := s.Save(ctx, testSession("st-gone", now.Add(time.Minute))); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if err := s.Save(ctx, testSession("st-gone", now.Add(-time.Minute))); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if _, ok, _ := s.Load(ctx, "st-gone"); ok {
		t.Fatal("expected expired snapshot to be deleted")
	}
}
