package playback

import (
	"context"
	"log"
	"time"

	"github.com/chorusfm/chorus/internal/model"
	"github.com/google/uuid"
)

// Transfer moves active-player status from one device to another.
//
// Authority is reassigned before any stop/start signal goes out, so a command
// racing in from either device during the transition is routed by the new
// authority, never both. The short pause after the flip gives the source's
// local agent time to observe the change and silence its output before the
// destination starts.
//
// The transfer proceeds even when the destination is not currently registered:
// authority is set anyway and the device picks it up when it connects. If a
// wake notifier is configured, the destination gets a push so it knows to.
func (c *Coordinator) Transfer(userID uuid.UUID, fromDeviceID, toDeviceID string, withState bool) {
	log.Printf("🔀 Transferring playback for user %s: %s → %s (withState=%v)", userID, fromDeviceID, toDeviceID, withState)

	c.authority.Set(userID, toDeviceID)

	if c.handoffDelay > 0 {
		time.Sleep(c.handoffDelay)
	}

	source, sourceOK := c.registry.FindByID(fromDeviceID)
	// A source registered to another user is treated as unknown; its
	// snapshot never crosses user boundaries.
	sourceOK = sourceOK && source.UserID == userID
	_, targetOK := c.registry.FindByID(toDeviceID)

	if !targetOK && c.notifier != nil {
		if err := c.notifier.WakeDevice(context.Background(), userID, toDeviceID); err != nil {
			log.Printf("⚠️  Wake push to %s failed: %v", toDeviceID, err)
		}
	}

	if withState && sourceOK && source.Snapshot.CurrentTrack != nil {
		c.fanout.ToDevice(userID, toDeviceID, &model.WSEvent{
			Type: model.WSEventRemoteCommand,
			Payload: model.RemoteCommandEvent{
				Command: model.CommandTransferPlayback,
				Payload: model.TransferStatePayload{
					Track:       source.Snapshot.CurrentTrack,
					CurrentTime: source.Snapshot.CurrentTime,
					IsPlaying:   source.Snapshot.IsPlaying,
					Volume:      source.Snapshot.Volume,
				},
				FromDeviceID: fromDeviceID,
			},
		})
	}

	if sourceOK && fromDeviceID != toDeviceID {
		c.fanout.ToDevice(userID, fromDeviceID, &model.WSEvent{
			Type: model.WSEventRemoteCommand,
			Payload: model.RemoteCommandEvent{
				Command:      model.CommandPause,
				Payload:      model.PauseReasonPayload{Reason: model.PauseReasonTransferred},
				FromDeviceID: toDeviceID,
			},
		})
	}
}

// BecomeActivePlayer is the self-transfer shortcut: a device reclaims
// authority for itself, e.g. the user pressed play locally while the remote
// holder was idle or gone.
func (c *Coordinator) BecomeActivePlayer(userID uuid.UUID, deviceID string) {
	c.Transfer(userID, deviceID, deviceID, false)
}
