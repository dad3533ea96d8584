package playback

import (
	"log"

	"github.com/chorusfm/chorus/internal/model"
	"github.com/google/uuid"
)

// ArtworkResolver rewrites a track's cover-art URL to a server-side cached
// copy so siblings never fetch artwork from the origin. Optional.
type ArtworkResolver interface {
	Resolve(track *model.Track) string
}

// Broadcaster propagates a device's self-reported snapshot to all of its
// user's other devices. Snapshots are last-write-wins per source device; no
// merged global state exists.
type Broadcaster struct {
	registry *Registry
	fanout   Fanout
	artwork  ArtworkResolver
}

func NewBroadcaster(registry *Registry, fanout Fanout, artwork ArtworkResolver) *Broadcaster {
	return &Broadcaster{registry: registry, fanout: fanout, artwork: artwork}
}

// Publish updates the registry snapshot for the sender and emits it, annotated
// with the device's name and id, to every sibling. The sender does not receive
// its own broadcast.
func (b *Broadcaster) Publish(userID uuid.UUID, fromDeviceID string, snapshot model.PlaybackSnapshot) {
	if b.artwork != nil && snapshot.CurrentTrack != nil && snapshot.CurrentTrack.CoverArt != "" {
		track := *snapshot.CurrentTrack
		track.CoverArt = b.artwork.Resolve(snapshot.CurrentTrack)
		snapshot.CurrentTrack = &track
	}

	b.registry.UpdateSnapshot(fromDeviceID, userID, snapshot)

	sender, ok := b.registry.FindByID(fromDeviceID)
	if !ok || sender.UserID != userID {
		// Unknown or cross-user sender: the snapshot was already dropped
		// by the registry, don't relay it either.
		return
	}

	if snapshot.IsPlaying {
		b.logDualPlayback(userID, fromDeviceID)
	}

	b.fanout.ToSiblings(userID, fromDeviceID, &model.WSEvent{
		Type: model.WSEventStateUpdate,
		Payload: model.StateUpdateEvent{
			DeviceID:         fromDeviceID,
			DeviceName:       sender.Name,
			PlaybackSnapshot: snapshot,
		},
	})
}

// logDualPlayback flags the dual-authority race diagnostically: two devices of
// one user both reporting isPlaying means the null-authority bootstrap raced.
func (b *Broadcaster) logDualPlayback(userID uuid.UUID, fromDeviceID string) {
	for _, d := range b.registry.ListByUser(userID) {
		if d.ID != fromDeviceID && d.Snapshot.IsPlaying {
			log.Printf("⚠️  Dual playback detected for user %s: %s and %s both report playing", userID, fromDeviceID, d.ID)
			return
		}
	}
}
