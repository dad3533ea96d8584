package connect

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/chorusfm/chorus/internal/model"
)

// CommandSender forwards a control action to another device by way of the
// server. Implemented by Session; separated so the agent's decision logic is
// testable without a socket.
type CommandSender interface {
	SendCommand(targetDeviceID, command string, payload interface{}) error
}

// Hooks are the agent's integration points with the embedding application.
// All hooks are optional.
type Hooks struct {
	// OnBecameActive fires when server-pushed authority lands on this
	// device.
	OnBecameActive func()

	// OnLostAuthority fires after local output has been silenced, when
	// authority moved to another device.
	OnLostAuthority func()

	// OnError surfaces playback:error events as transient notifications.
	OnError func(message string)
}

// Agent is the per-device coordination logic, identical on every device.
// It decides, per control action, whether to execute against the local player
// or forward to whichever device currently holds playback authority, and
// reconciles its own "am I the active player" belief against server pushes.
//
// Authority state is only ever read through the mutex-guarded accessors at
// the moment an action is dispatched, never through values captured when a
// callback was registered: a command sent on a stale "I am active" belief
// after authority moved away would play audio on two devices.
type Agent struct {
	deviceID string
	player   LocalPlayer
	sender   CommandSender
	hooks    Hooks

	mu             sync.RWMutex
	activePlayerID *string
	activeState    *model.StateUpdateEvent
}

func NewAgent(deviceID string, player LocalPlayer, sender CommandSender, hooks Hooks) *Agent {
	return &Agent{
		deviceID: deviceID,
		player:   player,
		sender:   sender,
		hooks:    hooks,
	}
}

// ActivePlayerID returns the authority holder as last pushed by the server,
// or nil when none is known.
func (a *Agent) ActivePlayerID() *string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.activePlayerID
}

// IsActivePlayer reports whether this device should produce audio: true when
// authority is unset (bootstrap default) or points at this device.
func (a *Agent) IsActivePlayer() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.activePlayerID == nil || *a.activePlayerID == a.deviceID
}

// ActivePlayerState returns the last snapshot broadcast by the current
// authority holder, for display while this device is not it.
func (a *Agent) ActivePlayerState() *model.StateUpdateEvent {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.activeState
}

// ==================== Control actions ====================

func (a *Agent) Play(ctx context.Context) error {
	return a.dispatch(ctx, model.CommandPlay, nil, func() error { return a.player.Play(ctx) })
}

func (a *Agent) Pause(ctx context.Context) error {
	return a.dispatch(ctx, model.CommandPause, nil, func() error { return a.player.Pause(ctx) })
}

func (a *Agent) Next(ctx context.Context) error {
	return a.dispatch(ctx, model.CommandNext, nil, func() error { return a.player.Next(ctx) })
}

func (a *Agent) Previous(ctx context.Context) error {
	return a.dispatch(ctx, model.CommandPrevious, nil, func() error { return a.player.Previous(ctx) })
}

func (a *Agent) Seek(ctx context.Context, seconds float64) error {
	return a.dispatch(ctx, model.CommandSeek, seconds, func() error { return a.player.Seek(ctx, seconds) })
}

func (a *Agent) SetVolume(ctx context.Context, volume float64) error {
	return a.dispatch(ctx, model.CommandSetVolume, volume, func() error { return a.player.SetVolume(ctx, volume) })
}

func (a *Agent) PlayTrack(ctx context.Context, track model.Track) error {
	return a.dispatch(ctx, model.CommandPlayTrack, track, func() error { return a.player.PlayTrack(ctx, track) })
}

// PlayTracks replaces the queue and starts playback at index.
func (a *Agent) PlayTracks(ctx context.Context, tracks []model.Track, index int) error {
	payload := map[string]interface{}{"tracks": tracks, "index": index}
	return a.dispatch(ctx, model.CommandSetQueue, payload, func() error { return a.player.SetQueue(ctx, tracks, index) })
}

// dispatch applies the three-way routing rule. Authority is read fresh here,
// on every call.
func (a *Agent) dispatch(ctx context.Context, command string, payload interface{}, local func() error) error {
	a.mu.RLock()
	active := a.activePlayerID
	a.mu.RUnlock()

	switch {
	case active != nil && *active == a.deviceID:
		return local()
	case active != nil:
		return a.sender.SendCommand(*active, command, payload)
	default:
		// Nobody has claimed authority yet; play locally so first-ever
		// playback needs no handshake. The server's first-state-wins
		// rule collapses this to one device once state is reported.
		log.Printf("No active player known, executing %s locally (degraded)", command)
		return local()
	}
}

// ==================== Server push handling ====================

// HandleAuthorityChange reconciles against a playback:activePlayer push.
func (a *Agent) HandleAuthorityChange(deviceID *string) {
	a.mu.Lock()
	wasActive := a.activePlayerID == nil || *a.activePlayerID == a.deviceID
	a.activePlayerID = deviceID
	if deviceID == nil || *deviceID != a.deviceID {
		// Snapshot of the previous holder is no longer authoritative.
		a.activeState = nil
	}
	nowActive := deviceID == nil || *deviceID == a.deviceID
	a.mu.Unlock()

	if nowActive && !wasActive {
		if a.hooks.OnBecameActive != nil {
			a.hooks.OnBecameActive()
		}
	}
	if !nowActive && wasActive {
		// Silence immediately; the hold-over transferPlayback command
		// tells the new holder where to resume.
		if err := a.player.Pause(context.Background()); err != nil {
			log.Printf("Failed to silence local player on authority loss: %v", err)
		}
		if a.hooks.OnLostAuthority != nil {
			a.hooks.OnLostAuthority()
		}
	}
}

// HandleRemoteCommand executes a forwarded command against the local player.
func (a *Agent) HandleRemoteCommand(ctx context.Context, cmd model.RemoteCommandEvent) error {
	switch cmd.Command {
	case model.CommandPlay:
		return a.player.Play(ctx)
	case model.CommandPause:
		return a.player.Pause(ctx)
	case model.CommandNext:
		return a.player.Next(ctx)
	case model.CommandPrevious:
		return a.player.Previous(ctx)
	case model.CommandSeek:
		var seconds float64
		if err := decode(cmd.Payload, &seconds); err != nil {
			return err
		}
		return a.player.Seek(ctx, seconds)
	case model.CommandSetVolume:
		var volume float64
		if err := decode(cmd.Payload, &volume); err != nil {
			return err
		}
		return a.player.SetVolume(ctx, volume)
	case model.CommandPlayTrack:
		var track model.Track
		if err := decode(cmd.Payload, &track); err != nil {
			return err
		}
		return a.player.PlayTrack(ctx, track)
	case model.CommandSetQueue:
		var payload struct {
			Tracks []model.Track `json:"tracks"`
			Index  int           `json:"index"`
		}
		if err := decode(cmd.Payload, &payload); err != nil {
			return err
		}
		return a.player.SetQueue(ctx, payload.Tracks, payload.Index)
	case model.CommandTransferPlayback:
		var payload model.TransferStatePayload
		if err := decode(cmd.Payload, &payload); err != nil {
			return err
		}
		return a.applyTransfer(ctx, payload)
	default:
		log.Printf("Unknown remote command: %s", cmd.Command)
		return nil
	}
}

// applyTransfer resumes in-flight playback handed over from another device.
func (a *Agent) applyTransfer(ctx context.Context, payload model.TransferStatePayload) error {
	if payload.Track != nil {
		if err := a.player.PlayTrack(ctx, *payload.Track); err != nil {
			return err
		}
		if err := a.player.Seek(ctx, payload.CurrentTime); err != nil {
			return err
		}
	}
	if err := a.player.SetVolume(ctx, payload.Volume); err != nil {
		return err
	}
	if !payload.IsPlaying {
		return a.player.Pause(ctx)
	}
	return nil
}

// HandleStateUpdate records a sibling's snapshot when it comes from the
// current authority holder, for local UI display.
func (a *Agent) HandleStateUpdate(update model.StateUpdateEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activePlayerID != nil && update.DeviceID == *a.activePlayerID {
		a.activeState = &update
	}
}

// HandleError surfaces a playback:error event.
func (a *Agent) HandleError(message string) {
	if a.hooks.OnError != nil {
		a.hooks.OnError(message)
		return
	}
	log.Printf("Playback error from server: %s", message)
}

func decode(payload, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
