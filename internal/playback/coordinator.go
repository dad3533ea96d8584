package playback

import (
	"context"
	"log"
	"time"

	"github.com/chorusfm/chorus/internal/model"
	"github.com/google/uuid"
)

// WakeNotifier pushes a wake-up notification to a device that has no live
// connection, so it can reconnect and pick up authority it was handed.
type WakeNotifier interface {
	WakeDevice(ctx context.Context, userID uuid.UUID, deviceID string) error
}

// Coordinator ties the registry, authority directory, router and broadcaster
// together behind the operations the transport layer invokes. All mutations
// for one user funnel through here and the per-user serialization the
// directory provides, so no caller ever read-modify-writes shared state.
type Coordinator struct {
	registry    *Registry
	authority   *Directory
	router      *Router
	broadcaster *Broadcaster
	fanout      Fanout
	notifier    WakeNotifier

	// Pause between flipping authority and emitting transfer commands, so
	// the losing device can silence itself before the winner starts.
	// Best-effort anti-overlap mitigation, not a guarantee.
	handoffDelay time.Duration
}

func NewCoordinator(registry *Registry, authority *Directory, fanout Fanout, artwork ArtworkResolver, notifier WakeNotifier, handoffDelay time.Duration) *Coordinator {
	c := &Coordinator{
		registry:     registry,
		authority:    authority,
		router:       NewRouter(registry, fanout),
		broadcaster:  NewBroadcaster(registry, fanout, artwork),
		fanout:       fanout,
		notifier:     notifier,
		handoffDelay: handoffDelay,
	}

	// Every authority mutation notifies the whole group, including the
	// device that just lost it.
	authority.OnChange(func(userID uuid.UUID, deviceID string) {
		var id *string
		if deviceID != "" {
			id = &deviceID
		}
		c.fanout.ToUser(userID, &model.WSEvent{
			Type:    model.WSEventActivePlayer,
			Payload: model.ActivePlayerEvent{DeviceID: id},
		})
	})

	return c
}

// RegisterDevice upserts the device and broadcasts the updated device list to
// the user's group.
func (c *Coordinator) RegisterDevice(userID uuid.UUID, deviceID, deviceName string, transport model.Transport) {
	c.registry.Register(deviceID, deviceName, userID, transport)
	log.Printf("🔊 Device registered: %s (%q) for user %s", deviceID, deviceName, userID)
	c.broadcastDevices(userID)
}

// Disconnect removes a device after its connection closed. The active-player
// directory is left untouched: a temporarily unreachable device keeps its
// authority until a client explicitly reclaims or transfers it.
func (c *Coordinator) Disconnect(deviceID string) {
	d, ok := c.registry.FindByID(deviceID)
	if !ok {
		return
	}
	c.registry.Unregister(deviceID)
	log.Printf("🔇 Device disconnected: %s (%q)", deviceID, d.Name)
	c.broadcastDevices(d.UserID)
}

// Heartbeat refreshes device liveness; no-op for unknown devices.
func (c *Coordinator) Heartbeat(deviceID string) {
	c.registry.Heartbeat(deviceID)
}

// Touch records liveness from any inbound message.
func (c *Coordinator) Touch(deviceID string) {
	c.registry.Touch(deviceID)
}

// PublishState records and relays a device's snapshot. The first snapshot that
// reports isPlaying while nobody holds authority implicitly claims it for the
// reporting device, which closes the both-devices-default-to-active window of
// the null-authority bootstrap.
func (c *Coordinator) PublishState(userID uuid.UUID, deviceID string, snapshot model.PlaybackSnapshot) {
	if snapshot.IsPlaying {
		if c.authority.ClaimIfUnset(userID, deviceID) {
			log.Printf("🎯 Device %s implicitly claimed playback authority for user %s", deviceID, userID)
		}
	}
	c.broadcaster.Publish(userID, deviceID, snapshot)
}

// RouteCommand forwards a control command to the target device.
func (c *Coordinator) RouteCommand(userID uuid.UUID, fromDeviceID, targetDeviceID, command string, payload interface{}) error {
	return c.router.Route(userID, fromDeviceID, targetDeviceID, command, payload)
}

// RequestState asks the target device to re-broadcast its playback state.
func (c *Coordinator) RequestState(userID uuid.UUID, targetDeviceID string) error {
	target, ok := c.registry.FindByID(targetDeviceID)
	if !ok {
		return model.ErrDeviceNotFound
	}
	if target.UserID != userID {
		return model.ErrNotAuthorized
	}
	c.fanout.ToDevice(userID, targetDeviceID, &model.WSEvent{
		Type: model.WSEventStateRequest,
	})
	return nil
}

// ActivePlayer returns the current authority holder, or "" when unset.
func (c *Coordinator) ActivePlayer(userID uuid.UUID) string {
	return c.authority.Get(userID)
}

// SetActivePlayer overwrites the user's authority. An empty device id clears
// it.
func (c *Coordinator) SetActivePlayer(userID uuid.UUID, deviceID string) {
	c.authority.Set(userID, deviceID)
}

// DeviceList returns summaries of the user's devices in insertion order.
func (c *Coordinator) DeviceList(userID uuid.UUID) []model.DeviceSummary {
	active := c.authority.Get(userID)
	devices := c.registry.ListByUser(userID)
	summaries := make([]model.DeviceSummary, 0, len(devices))
	for i := range devices {
		summaries = append(summaries, devices[i].Summary(active))
	}
	return summaries
}

func (c *Coordinator) broadcastDevices(userID uuid.UUID) {
	c.fanout.ToUser(userID, &model.WSEvent{
		Type:    model.WSEventDevicesList,
		Payload: c.DeviceList(userID),
	})
}

// EvictStale removes devices unseen since cutoff, closing their transports.
// Authority is deliberately untouched; a command failing against the dead
// holder is the recovery signal for clients to call becomeActivePlayer.
func (c *Coordinator) EvictStale(cutoff time.Time) int {
	stale := c.registry.Stale(cutoff)
	for _, d := range stale {
		c.registry.Unregister(d.ID)
		if d.Transport != nil {
			_ = d.Transport.Close()
		}
		log.Printf("🧹 Evicted stale device %s (%q), last seen %s", d.ID, d.Name, d.LastSeen.Format(time.RFC3339))
		c.broadcastDevices(d.UserID)
	}
	return len(stale)
}
