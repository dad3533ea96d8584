package playback

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const activePlayerKeyPrefix = "connect:active:"

// Directory is the active-player directory: the per-user pointer to the single
// device authorized to produce audio. It is the sole mutation point for
// authority. Set calls are serialized per user so two concurrent transfers can
// never interleave and leave two devices both believing they are active.
//
// The device id is deliberately not validated against the registry: authority
// may point at a device that is mid-registration or already gone, and this
// self-heals when that device's commands fail or it re-registers.
type Directory struct {
	mu    sync.Mutex
	users map[uuid.UUID]*userAuthority

	// Optional write-through persistence so assignments survive restarts.
	rdb *redis.Client

	// Called after every mutation, outside the directory's own locks but
	// still within the per-user critical section. Empty id means cleared.
	onChange func(userID uuid.UUID, deviceID string)
}

type userAuthority struct {
	mu       sync.Mutex
	deviceID string
	loaded   bool
}

// NewDirectory creates the directory. rdb may be nil (no persistence).
func NewDirectory(rdb *redis.Client) *Directory {
	return &Directory{
		users: make(map[uuid.UUID]*userAuthority),
		rdb:   rdb,
	}
}

// OnChange registers the authority-change fan-out hook. Must be set before
// the directory is shared between goroutines.
func (d *Directory) OnChange(fn func(userID uuid.UUID, deviceID string)) {
	d.onChange = fn
}

func (d *Directory) user(userID uuid.UUID) *userAuthority {
	d.mu.Lock()
	defer d.mu.Unlock()

	ua, ok := d.users[userID]
	if !ok {
		ua = &userAuthority{}
		d.users[userID] = ua
	}
	return ua
}

// caller must hold ua.mu
func (d *Directory) hydrate(userID uuid.UUID, ua *userAuthority) {
	if ua.loaded {
		return
	}
	ua.loaded = true
	if d.rdb == nil {
		return
	}
	val, err := d.rdb.Get(context.Background(), activePlayerKeyPrefix+userID.String()).Result()
	if err == nil {
		ua.deviceID = val
	}
}

// Get returns the active device id for the user, or "" when no device has
// claimed authority yet.
func (d *Directory) Get(userID uuid.UUID) string {
	ua := d.user(userID)
	ua.mu.Lock()
	defer ua.mu.Unlock()
	d.hydrate(userID, ua)
	return ua.deviceID
}

// Set overwrites the user's authority. Total overwrite, no merge, no CAS.
// Every call notifies the whole device group, including the device that just
// lost authority.
func (d *Directory) Set(userID uuid.UUID, deviceID string) {
	ua := d.user(userID)
	ua.mu.Lock()
	defer ua.mu.Unlock()
	d.hydrate(userID, ua)
	d.set(userID, ua, deviceID)
}

// ClaimIfUnset atomically claims authority for deviceID when nobody holds it.
// Used by the first-playing-state-wins bootstrap rule.
func (d *Directory) ClaimIfUnset(userID uuid.UUID, deviceID string) bool {
	ua := d.user(userID)
	ua.mu.Lock()
	defer ua.mu.Unlock()
	d.hydrate(userID, ua)
	if ua.deviceID != "" {
		return false
	}
	d.set(userID, ua, deviceID)
	return true
}

// caller must hold ua.mu
func (d *Directory) set(userID uuid.UUID, ua *userAuthority, deviceID string) {
	ua.deviceID = deviceID

	if d.rdb != nil {
		ctx := context.Background()
		key := activePlayerKeyPrefix + userID.String()
		var err error
		if deviceID == "" {
			err = d.rdb.Del(ctx, key).Err()
		} else {
			err = d.rdb.Set(ctx, key, deviceID, 0).Err()
		}
		if err != nil {
			log.Printf("⚠️  Failed to persist active player for %s: %v", userID, err)
		}
	}

	if d.onChange != nil {
		d.onChange(userID, deviceID)
	}
}
