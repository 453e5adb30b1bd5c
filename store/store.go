package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cinema-checkout-cli/model"
)

const (
	appDir = "cinema-checkout-cli"

	// selectionTTL bounds snapshots that have no booking expiry yet.
	selectionTTL = 30 * time.Minute

	BackendFile  = "file"
	BackendRedis = "redis"
)

// SessionStore keeps one in-progress session snapshot per showtime.
type SessionStore interface {
	Load(ctx context.Context, showtimeID string) (model.BookingSession, bool, error)
	Save(ctx context.Context, session model.BookingSession) error
	Clear(ctx context.Context, showtimeID string) error
	List(ctx context.Context) ([]model.BookingSession, error)
}

type Options struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Open returns the session store for the configured backend.
func Open(ctx context.Context, opts Options) (SessionStore, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendFile:
		s, err := NewFileSessionStore()
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendRedis:
		s, err := DialRedis(ctx, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown session store backend %q", opts.Backend)
	}
}

type cacheEnvelope[T any] struct {
	UpdatedAt time.Time `json:"updated_at"`
	Data      T         `json:"data"`
}

// snapshotTTL is how long a snapshot stays useful: until the booking hold
// expires, or selectionTTL after the last write while still selecting.
func snapshotTTL(session model.BookingSession, updatedAt time.Time, now time.Time) time.Duration {
	if !session.ExpiresAt.IsZero() {
		return session.ExpiresAt.Sub(now)
	}
	return updatedAt.Add(selectionTTL).Sub(now)
}

func loadCache[T any](path string) (cacheEnvelope[T], bool, error) {
	var cache cacheEnvelope[T]
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cache, false, nil
		}
		return cache, false, err
	}
	if err := json.Unmarshal(data, &cache); err != nil {
		return cache, false, err
	}
	return cache, true, nil
}

func saveCache[T any](path string, data T, updatedAt time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	cache := cacheEnvelope[T]{
		UpdatedAt: updatedAt,
		Data:      data,
	}
	payload, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func configPath(name string) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appDir, name), nil
}

func cachePath(name string) (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appDir, name), nil
}

// ConfigDir is where the config file and ticket history live.
func ConfigDir() (string, error) {
	return configPath("")
}

// CacheDir is where session snapshots and logs live.
func CacheDir() (string, error) {
	return cachePath("")
}

// safeName keeps ids usable as file names.
func safeName(id string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(id) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
