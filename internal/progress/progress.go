// Package progress records how far each user got into each video.
package progress

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrInvalidUpdate = errors.New("seriesId and videoFile are required")

type Entry struct {
	CurrentTime float64   `json:"currentTime"`
	Duration    float64   `json:"duration"`
	Completed   bool      `json:"completed"`
	LastWatched time.Time `json:"lastWatched"`
}

type Update struct {
	SeriesID    string  `json:"seriesId"`
	VideoFile   string  `json:"videoFile"`
	CurrentTime float64 `json:"currentTime"`
	Duration    float64 `json:"duration"`
	Completed   bool    `json:"completed"`
}

func (u Update) Validate() error {
	if u.SeriesID == "" || u.VideoFile == "" {
		return ErrInvalidUpdate
	}
	if u.CurrentTime < 0 || u.Duration < 0 {
		return errors.New("currentTime and duration must not be negative")
	}
	return nil
}

// UserProgress is series id -> video filename -> entry.
type UserProgress map[string]map[string]Entry

type Store interface {
	Save(ctx context.Context, userID string, u Update) error
	ForUser(ctx context.Context, userID string) (UserProgress, error)
}

// MemoryStore keeps progress in process; it is the default when no cluster is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]UserProgress
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]UserProgress), now: time.Now}
}

func (m *MemoryStore) Save(_ context.Context, userID string, u Update) error {
	if err := u.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	up, ok := m.users[userID]
	if !ok {
		up = make(UserProgress)
		m.users[userID] = up
	}
	series, ok := up[u.SeriesID]
	if !ok {
		series = make(map[string]Entry)
		up[u.SeriesID] = series
	}
	series[u.VideoFile] = Entry{
		CurrentTime: u.CurrentTime,
		Duration:    u.Duration,
		Completed:   u.Completed,
		LastWatched: m.now().UTC(),
	}
	return nil
}

func (m *MemoryStore) ForUser(_ context.Context, userID string) (UserProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(UserProgress, len(m.users[userID]))
	for seriesID, videos := range m.users[userID] {
		cp := make(map[string]Entry, len(videos))
		for file, e := range videos {
			cp[file] = e
		}
		out[seriesID] = cp
	}
	return out, nil
}
