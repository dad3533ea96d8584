package playback

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chorusfm/chorus/internal/model"
)

func TestRegistryRegisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	userID := uuid.New()

	first := &fakeTransport{}
	second := &fakeTransport{}

	r.Register("phone", "My Phone", userID, first)
	r.Register("desktop", "Desktop", userID, &fakeTransport{})

	// Reconnect with the same id replaces the transport and keeps the
	// device's position in the user's list.
	r.Register("phone", "My Phone (renamed)", userID, second)

	assert.True(t, first.isClosed())
	assert.False(t, second.isClosed())

	devices := r.ListByUser(userID)
	require.Len(t, devices, 2)
	assert.Equal(t, "phone", devices[0].ID)
	assert.Equal(t, "My Phone (renamed)", devices[0].Name)
	assert.Equal(t, "desktop", devices[1].ID)
}

func TestRegistryUpdateSnapshotIgnoresUnknownAndCrossUser(t *testing.T) {
	r := NewRegistry()
	owner := uuid.New()
	intruder := uuid.New()

	r.Register("phone", "Phone", owner, &fakeTransport{})

	playing := model.PlaybackSnapshot{IsPlaying: true, Volume: 0.5}

	r.UpdateSnapshot("ghost", owner, playing)
	r.UpdateSnapshot("phone", intruder, playing)

	d, ok := r.FindByID("phone")
	require.True(t, ok)
	assert.False(t, d.Snapshot.IsPlaying, "cross-user snapshot must not land")

	r.UpdateSnapshot("phone", owner, playing)
	d, ok = r.FindByID("phone")
	require.True(t, ok)
	assert.True(t, d.Snapshot.IsPlaying)
	assert.Equal(t, 0.5, d.Snapshot.Volume)
}

func TestRegistryUnregisterIsForgiving(t *testing.T) {
	r := NewRegistry()
	userID := uuid.New()

	r.Register("phone", "Phone", userID, &fakeTransport{})
	r.Unregister("phone")
	r.Unregister("phone") // second removal is a no-op

	_, ok := r.FindByID("phone")
	assert.False(t, ok)
	assert.Empty(t, r.ListByUser(userID))
}

func TestRegistryStaleUsesLastSeen(t *testing.T) {
	r := NewRegistry()
	userID := uuid.New()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }
	r.Register("phone", "Phone", userID, &fakeTransport{})

	r.now = func() time.Time { return base.Add(10 * time.Minute) }
	r.Register("desktop", "Desktop", userID, &fakeTransport{})

	stale := r.Stale(base.Add(5 * time.Minute))
	require.Len(t, stale, 1)
	assert.Equal(t, "phone", stale[0].ID)

	// A heartbeat refreshes liveness.
	r.Heartbeat("phone")
	assert.Empty(t, r.Stale(base.Add(5*time.Minute)))
}

func TestRegistryListReturnsCopies(t *testing.T) {
	r := NewRegistry()
	userID := uuid.New()

	r.Register("phone", "Phone", userID, &fakeTransport{})

	devices := r.ListByUser(userID)
	require.Len(t, devices, 1)
	devices[0].Name = "mutated"

	d, ok := r.FindByID("phone")
	require.True(t, ok)
	assert.Equal(t, "Phone", d.Name)
}
