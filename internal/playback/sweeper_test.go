package playback

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSweepEvictsOnlySilentDevices(t *testing.T) {
	fanout := &fakeFanout{}
	c := newTestCoordinator(fanout, nil)
	userID := uuid.New()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c.registry.now = func() time.Time { return base }
	c.RegisterDevice(userID, "phone", "Phone", &fakeTransport{})
	c.RegisterDevice(userID, "desktop", "Desktop", &fakeTransport{})

	// Desktop keeps heartbeating, phone goes silent.
	c.registry.now = func() time.Time { return base.Add(4 * time.Minute) }
	c.Heartbeat("desktop")

	s := NewSweeper(c, time.Minute, 5*time.Minute)
	s.now = func() time.Time { return base.Add(6 * time.Minute) }

	assert.Equal(t, 1, s.Sweep())

	list := c.DeviceList(userID)
	assert.Len(t, list, 1)
	assert.Equal(t, "desktop", list[0].ID)

	// Nothing left to evict on the next pass.
	assert.Equal(t, 0, s.Sweep())
}
