package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/realtime-chat/internal/registry"
)

type stubHandle struct{ id string }

func (s *stubHandle) ID() string          { return s.id }
func (s *stubHandle) Deliver(string, any) {}

type stubSource struct {
	seen map[string]time.Time
}

func (s *stubSource) LastSeen(_ context.Context, userID string) (time.Time, error) {
	t, ok := s.seen[userID]
	if !ok {
		return time.Time{}, errors.New("no record")
	}
	return t, nil
}

func TestSnapshot(t *testing.T) {
	reg := registry.New()
	reg.Bind("alice", &stubHandle{id: "c1"})

	lastSeen := time.Date(2025, 5, 30, 8, 0, 0, 0, time.UTC)
	tracker := NewTracker(reg, &stubSource{seen: map[string]time.Time{
		"bob": lastSeen,
	}})

	statuses := tracker.Snapshot(context.Background(), []string{"alice", "bob", "ghost"})
	require.Len(t, statuses, 3, "missing record keeps the entry")

	byUser := make(map[string]Status)
	for _, s := range statuses {
		byUser[s.UserID] = s
	}
	assert.True(t, byUser["alice"].IsOnline)
	assert.False(t, byUser["bob"].IsOnline)
	assert.Equal(t, lastSeen, byUser["bob"].LastSeen)
	assert.True(t, byUser["ghost"].LastSeen.IsZero())
}

func TestCachedLastSeenFallsBack(t *testing.T) {
	fallbackAt := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	src := NewCachedLastSeen(nil, &stubSource{seen: map[string]time.Time{
		"alice": fallbackAt,
	}})

	got, err := src.LastSeen(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, fallbackAt, got)
}

type stubCache struct {
	seen map[string]time.Time
}

func (s *stubCache) GetLastSeen(_ context.Context, userID string) (time.Time, error) {
	t, ok := s.seen[userID]
	if !ok {
		return time.Time{}, errors.New("cache miss")
	}
	return t, nil
}

func TestCachedLastSeenPrefersCache(t *testing.T) {
	cachedAt := time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC)
	fallbackAt := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	src := NewCachedLastSeen(
		&stubCache{seen: map[string]time.Time{"alice": cachedAt}},
		&stubSource{seen: map[string]time.Time{"alice": fallbackAt}},
	)

	got, err := src.LastSeen(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, cachedAt, got)
}
