package playback

import (
	"github.com/chorusfm/chorus/internal/model"
	"github.com/google/uuid"
)

// Fanout delivers events to devices in a user's group. Implemented by the
// websocket hub; the playback core never touches connections directly beyond
// the transport handles the registry owns.
type Fanout interface {
	ToDevice(userID uuid.UUID, deviceID string, event *model.WSEvent)
	ToUser(userID uuid.UUID, event *model.WSEvent)
	ToSiblings(userID uuid.UUID, exceptDeviceID string, event *model.WSEvent)
}

// Router validates and forwards control commands to a target device.
type Router struct {
	registry *Registry
	fanout   Fanout
}

func NewRouter(registry *Registry, fanout Fanout) *Router {
	return &Router{registry: registry, fanout: fanout}
}

// Route delivers {command, payload, fromDeviceId} to the target device's
// connection. The target must exist and belong to userID; cross-user
// addressing is rejected before anything is sent. Delivery itself is
// fire-and-forget: the target's own state broadcast is the implicit ack.
func (r *Router) Route(userID uuid.UUID, fromDeviceID, targetDeviceID, command string, payload interface{}) error {
	target, ok := r.registry.FindByID(targetDeviceID)
	if !ok {
		return model.ErrDeviceNotFound
	}
	if target.UserID != userID {
		return model.ErrNotAuthorized
	}

	r.fanout.ToDevice(userID, targetDeviceID, &model.WSEvent{
		Type: model.WSEventRemoteCommand,
		Payload: model.RemoteCommandEvent{
			Command:      command,
			Payload:      payload, // opaque cargo, never inspected
			FromDeviceID: fromDeviceID,
		},
	})
	return nil
}
