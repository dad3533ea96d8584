package connect

import (
	"context"

	"github.com/chorusfm/chorus/internal/model"
)

// LocalPlayer is the device's local playback engine as the coordination agent
// sees it. The audio pipeline behind it is opaque; the agent only decides
// when these are invoked versus when an action is forwarded to the active
// player.
type LocalPlayer interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Seek(ctx context.Context, seconds float64) error
	SetVolume(ctx context.Context, volume float64) error
	PlayTrack(ctx context.Context, track model.Track) error
	SetQueue(ctx context.Context, tracks []model.Track, index int) error

	// State reports the engine's current snapshot for publishing.
	State(ctx context.Context) (model.PlaybackSnapshot, error)
}
