package playback

import (
	"sync"
	"time"

	"github.com/chorusfm/chorus/internal/model"
	"github.com/google/uuid"
)

// Registry is the process-wide mapping from device id to device state. Remote
// devices churn constantly (mobile backgrounding, tab close), so every lookup
// on an unknown id is a forgiving no-op, never an error.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*model.Device
	order   map[uuid.UUID][]string // insertion order per user
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]*model.Device),
		order:   make(map[uuid.UUID][]string),
		now:     time.Now,
	}
}

// Register upserts a device entry. Idempotent per device id: a reconnect with
// the same id overwrites the entry and keeps its position in the user's list.
// A replaced entry's transport is closed if it differs from the new one.
func (r *Registry) Register(deviceID, deviceName string, userID uuid.UUID, transport model.Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.devices[deviceID]; ok {
		if prev.Transport != nil && prev.Transport != transport {
			_ = prev.Transport.Close()
		}
		if prev.UserID != userID {
			r.removeFromOrder(prev.UserID, deviceID)
			r.order[userID] = append(r.order[userID], deviceID)
		}
		prev.Name = deviceName
		prev.UserID = userID
		prev.Transport = transport
		prev.LastSeen = r.now()
		return
	}

	r.devices[deviceID] = &model.Device{
		ID:        deviceID,
		Name:      deviceName,
		UserID:    userID,
		Transport: transport,
		LastSeen:  r.now(),
	}
	r.order[userID] = append(r.order[userID], deviceID)
}

// UpdateSnapshot stores a device's self-reported state. Silently ignored when
// the device is unknown or owned by a different user, which keeps cross-user
// state injection out without turning expected churn into errors.
func (r *Registry) UpdateSnapshot(deviceID string, userID uuid.UUID, snapshot model.PlaybackSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[deviceID]
	if !ok || d.UserID != userID {
		return
	}
	d.Snapshot = snapshot
	d.LastSeen = r.now()
}

// Heartbeat refreshes a device's liveness timestamp; no-op if unknown.
func (r *Registry) Heartbeat(deviceID string) {
	r.Touch(deviceID)
}

// Touch updates lastSeen. Any inbound message from a device counts as
// liveness, not just explicit heartbeats.
func (r *Registry) Touch(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.devices[deviceID]; ok {
		d.LastSeen = r.now()
	}
}

// Unregister removes a device entry; no-op if unknown.
func (r *Registry) Unregister(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[deviceID]
	if !ok {
		return
	}
	delete(r.devices, deviceID)
	r.removeFromOrder(d.UserID, deviceID)
}

// ListByUser returns copies of a user's devices in insertion order.
func (r *Registry) ListByUser(userID uuid.UUID) []model.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.order[userID]
	devices := make([]model.Device, 0, len(ids))
	for _, id := range ids {
		if d, ok := r.devices[id]; ok {
			devices = append(devices, *d)
		}
	}
	return devices
}

// FindByID returns a copy of the device, or false if unknown.
func (r *Registry) FindByID(deviceID string) (model.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[deviceID]
	if !ok {
		return model.Device{}, false
	}
	return *d, true
}

// Stale returns copies of all devices whose lastSeen is older than cutoff.
func (r *Registry) Stale(cutoff time.Time) []model.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stale []model.Device
	for _, d := range r.devices {
		if d.LastSeen.Before(cutoff) {
			stale = append(stale, *d)
		}
	}
	return stale
}

// caller must hold r.mu
func (r *Registry) removeFromOrder(userID uuid.UUID, deviceID string) {
	ids := r.order[userID]
	for i, id := range ids {
		if id == deviceID {
			r.order[userID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(r.order[userID]) == 0 {
		delete(r.order, userID)
	}
}
