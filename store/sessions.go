package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cinema-checkout-cli/model"
)

const sessionFilePrefix = "session_"

// FileSessionStore keeps snapshots as JSON files in the user cache dir.
type FileSessionStore struct {
	dir string
	now func() time.Time
}

func NewFileSessionStore() (*FileSessionStore, error) {
	dir, err := cachePath("sessions")
	if err != nil {
		return nil, err
	}
	return &FileSessionStore{dir: dir, now: time.Now}, nil
}

func (s *FileSessionStore) path(showtimeID string) string {
	return filepath.Join(s.dir, sessionFilePrefix+safeName(showtimeID)+".json")
}

// Load returns the snapshot for showtimeID. Snapshots past their TTL are removed
// and reported as missing.
func (s *FileSessionStore) Load(_ context.Context, showtimeID string) (model.BookingSession, bool, error) {
	if strings.TrimSpace(showtimeID) == "" {
		return model.BookingSession{}, false, errors.New("showtime id is required")
	}
	path := s.path(showtimeID)
	cache, ok, err := loadCache[model.BookingSession](path)
	if err != nil || !ok {
		return model.BookingSession{}, false, err
	}
	if snapshotTTL(cache.Data, cache.UpdatedAt, s.now()) <= 0 {
		_ = os.Remove(path)
		return model.BookingSession{}, false, nil
	}
	return cache.Data, true, nil
}

func (s *FileSessionStore) Save(_ context.Context, session model.BookingSession) error {
	if strings.TrimSpace(session.Showtime.ShowtimeId) == "" {
		return errors.New("session has no showtime id")
	}
	return saveCache(s.path(session.Showtime.ShowtimeId), session, s.now())
}

func (s *FileSessionStore) Clear(_ context.Context, showtimeID string) error {
	err := os.Remove(s.path(showtimeID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List returns every live snapshot, soonest expiry first.
func (s *FileSessionStore) List(ctx context.Context) ([]model.BookingSession, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, sessionFilePrefix+"*.json"))
	if err != nil {
		return nil, err
	}
	var sessions []model.BookingSession
	for _, path := range matches {
		cache, ok, err := loadCache[model.BookingSession](path)
		if err != nil || !ok {
			continue
		}
		if snapshotTTL(cache.Data, cache.UpdatedAt, s.now()) <= 0 {
			_ = os.Remove(path)
			continue
		}
		sessions = append(sessions, cache.Data)
	}
	sortSessions(sessions)
	return sessions, nil
}

func sortSessions(sessions []model.BookingSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := sessions[i].ExpiresAt, sessions[j].ExpiresAt
		switch {
		case a.IsZero() != b.IsZero():
			return !a.IsZero()
		case !a.Equal(b):
			return a.Before(b)
		default:
			return sessions[i].Showtime.ShowtimeId < sessions[j].Showtime.ShowtimeId
		}
	})
}
