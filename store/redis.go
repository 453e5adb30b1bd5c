package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"cinema-checkout-cli/model"
)

const (
	redisKeyPrefix   = "checkout:session:"
	redisDialTimeout = 2 * time.Second
)

// RedisSessionStore keeps snapshots in redis, expiring them together with the hold.
type RedisSessionStore struct {
	client *redis.Client
	now    func() time.Time
}

// DialRedis connects and pings the server so a bad address fails at startup.
func DialRedis(ctx context.Context, opts Options) (*RedisSessionStore, error) {
	addr := opts.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: opts.RedisPassword,
		DB:       opts.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	return NewRedisSessionStore(client), nil
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client, now: time.Now}
}

func redisKey(showtimeID string) string {
	return redisKeyPrefix + strings.TrimSpace(showtimeID)
}

func (s *RedisSessionStore) Load(ctx context.Context, showtimeID string) (model.BookingSession, bool, error) {
	data, err := s.client.Get(ctx, redisKey(showtimeID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.BookingSession{}, false, nil
		}
		return model.BookingSession{}, false, err
	}
	var cache cacheEnvelope[model.BookingSession]
	if err := json.Unmarshal(data, &cache); err != nil {
		return model.BookingSession{}, false, err
	}
	return cache.Data, true, nil
}

// Save writes the snapshot with a TTL that ends with the hold. A snapshot that is
// already past its TTL is deleted instead.
func (s *RedisSessionStore) Save(ctx context.Context, session model.BookingSession) error {
	if strings.TrimSpace(session.Showtime.ShowtimeId) == "" {
		return errors.New("session has no showtime id")
	}
	now := s.now()
	ttl := snapshotTTL(session, now, now)
	key := redisKey(session.Showtime.ShowtimeId)
	if ttl <= 0 {
		return s.client.Del(ctx, key).Err()
	}
	payload, err := json.Marshal(cacheEnvelope[model.BookingSession]{UpdatedAt: now, Data: session})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, payload, ttl).Err()
}

func (s *RedisSessionStore) Clear(ctx context.Context, showtimeID string) error {
	return s.client.Del(ctx, redisKey(showtimeID)).Err()
}

func (s *RedisSessionStore) List(ctx context.Context) ([]model.BookingSession, error) {
	var sessions []model.BookingSession
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		showtimeID := strings.TrimPrefix(iter.Val(), redisKeyPrefix)
		session, ok, err := s.Load(ctx, showtimeID)
		if err != nil {
			return nil, err
		}
		if ok {
			sessions = append(sessions, session)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sortSessions(sessions)
	return sessions, nil
}

func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}
