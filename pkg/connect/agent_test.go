package connect

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chorusfm/chorus/internal/model"
)

type fakePlayer struct {
	mu    sync.Mutex
	calls []string
	state model.PlaybackSnapshot
}

func (p *fakePlayer) record(call string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
	return nil
}

func (p *fakePlayer) Play(context.Context) error     { return p.record("play") }
func (p *fakePlayer) Pause(context.Context) error    { return p.record("pause") }
func (p *fakePlayer) Next(context.Context) error     { return p.record("next") }
func (p *fakePlayer) Previous(context.Context) error { return p.record("previous") }

func (p *fakePlayer) Seek(_ context.Context, seconds float64) error {
	return p.record(fmt.Sprintf("seek:%v", seconds))
}

func (p *fakePlayer) SetVolume(_ context.Context, volume float64) error {
	return p.record(fmt.Sprintf("volume:%v", volume))
}

func (p *fakePlayer) PlayTrack(_ context.Context, track model.Track) error {
	return p.record("playTrack:" + track.ID)
}

func (p *fakePlayer) SetQueue(_ context.Context, tracks []model.Track, index int) error {
	return p.record(fmt.Sprintf("setQueue:%d:%d", len(tracks), index))
}

func (p *fakePlayer) State(context.Context) (model.PlaybackSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, nil
}

func (p *fakePlayer) recorded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}

type sentCommand struct {
	target  string
	command string
	payload interface{}
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentCommand
}

func (s *fakeSender) SendCommand(target, command string, payload interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentCommand{target: target, command: command, payload: payload})
	return nil
}

func (s *fakeSender) all() []sentCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentCommand, len(s.sent))
	copy(out, s.sent)
	return out
}

func ptr(s string) *string { return &s }

func TestDispatchExecutesLocallyWhenActive(t *testing.T) {
	player := &fakePlayer{}
	sender := &fakeSender{}
	a := NewAgent("phone", player, sender, Hooks{})

	a.HandleAuthorityChange(ptr("phone"))

	require.NoError(t, a.Play(context.Background()))
	require.NoError(t, a.Seek(context.Background(), 30))

	assert.Equal(t, []string{"play", "seek:30"}, player.recorded())
	assert.Empty(t, sender.all())
}

func TestDispatchForwardsWhenAnotherDeviceIsActive(t *testing.T) {
	player := &fakePlayer{}
	sender := &fakeSender{}
	a := NewAgent("phone", player, sender, Hooks{})

	a.HandleAuthorityChange(ptr("desktop"))

	require.NoError(t, a.Pause(context.Background()))
	require.NoError(t, a.SetVolume(context.Background(), 0.5))

	assert.Empty(t, player.recorded(), "no local playback while another device is active")

	sent := sender.all()
	require.Len(t, sent, 2)
	assert.Equal(t, "desktop", sent[0].target)
	assert.Equal(t, model.CommandPause, sent[0].command)
	assert.Equal(t, model.CommandSetVolume, sent[1].command)
	assert.Equal(t, 0.5, sent[1].payload)
}

func TestDispatchFallsBackToLocalWhenNoAuthorityKnown(t *testing.T) {
	player := &fakePlayer{}
	sender := &fakeSender{}
	a := NewAgent("phone", player, sender, Hooks{})

	require.NoError(t, a.Play(context.Background()))

	assert.Equal(t, []string{"play"}, player.recorded())
	assert.Empty(t, sender.all())
}

func TestDispatchReadsAuthorityFreshPerCall(t *testing.T) {
	player := &fakePlayer{}
	sender := &fakeSender{}
	a := NewAgent("phone", player, sender, Hooks{})

	a.HandleAuthorityChange(ptr("phone"))
	require.NoError(t, a.Play(context.Background()))

	// Authority moves between two presses of the same button; the second
	// press must be forwarded, not replayed locally.
	a.HandleAuthorityChange(ptr("desktop"))
	require.NoError(t, a.Play(context.Background()))

	assert.Equal(t, []string{"play", "pause"}, player.recorded(), "local pause comes from authority loss, not the second play")

	sent := sender.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "desktop", sent[0].target)
	assert.Equal(t, model.CommandPlay, sent[0].command)
}

func TestAuthorityChangeFiresHooksAndSilencesOnLoss(t *testing.T) {
	player := &fakePlayer{}
	var became, lost int
	a := NewAgent("phone", player, &fakeSender{}, Hooks{
		OnBecameActive:  func() { became++ },
		OnLostAuthority: func() { lost++ },
	})

	// Bootstrap default is active, so losing to desktop silences us.
	a.HandleAuthorityChange(ptr("desktop"))
	assert.Equal(t, []string{"pause"}, player.recorded())
	assert.Equal(t, 1, lost)
	assert.Equal(t, 0, became)
	assert.False(t, a.IsActivePlayer())

	a.HandleAuthorityChange(ptr("phone"))
	assert.Equal(t, 1, became)
	assert.True(t, a.IsActivePlayer())

	// Re-assertion of the same holder is not a transition.
	a.HandleAuthorityChange(ptr("phone"))
	assert.Equal(t, 1, became)
	assert.Equal(t, 1, lost)
}

func TestHandleRemoteCommandTransferResumesPlayback(t *testing.T) {
	player := &fakePlayer{}
	a := NewAgent("desktop", player, &fakeSender{}, Hooks{})

	err := a.HandleRemoteCommand(context.Background(), model.RemoteCommandEvent{
		Command: model.CommandTransferPlayback,
		Payload: model.TransferStatePayload{
			Track:       &model.Track{ID: "t1"},
			CurrentTime: 30,
			IsPlaying:   true,
			Volume:      0.8,
		},
		FromDeviceID: "phone",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"playTrack:t1", "seek:30", "volume:0.8"}, player.recorded())
}

func TestHandleRemoteCommandTransferPausedState(t *testing.T) {
	player := &fakePlayer{}
	a := NewAgent("desktop", player, &fakeSender{}, Hooks{})

	err := a.HandleRemoteCommand(context.Background(), model.RemoteCommandEvent{
		Command: model.CommandTransferPlayback,
		Payload: model.TransferStatePayload{
			Track:       &model.Track{ID: "t1"},
			CurrentTime: 12,
			IsPlaying:   false,
			Volume:      1,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"playTrack:t1", "seek:12", "volume:1", "pause"}, player.recorded())
}

func TestHandleRemoteCommandDecodesJSONPayloads(t *testing.T) {
	player := &fakePlayer{}
	a := NewAgent("phone", player, &fakeSender{}, Hooks{})

	// Payloads arrive as raw JSON values after a round trip through the
	// server, not as the Go types the sender used.
	require.NoError(t, a.HandleRemoteCommand(context.Background(), model.RemoteCommandEvent{
		Command: model.CommandSeek,
		Payload: 45.0,
	}))
	require.NoError(t, a.HandleRemoteCommand(context.Background(), model.RemoteCommandEvent{
		Command: model.CommandPlayTrack,
		Payload: map[string]interface{}{"id": "t2", "title": "Other"},
	}))
	require.NoError(t, a.HandleRemoteCommand(context.Background(), model.RemoteCommandEvent{
		Command: model.CommandSetQueue,
		Payload: map[string]interface{}{
			"tracks": []map[string]interface{}{{"id": "t1"}, {"id": "t2"}},
			"index":  1,
		},
	}))

	assert.Equal(t, []string{"seek:45", "playTrack:t2", "setQueue:2:1"}, player.recorded())
}

func TestHandleStateUpdateOnlyTrustsAuthorityHolder(t *testing.T) {
	a := NewAgent("phone", &fakePlayer{}, &fakeSender{}, Hooks{})
	a.HandleAuthorityChange(ptr("desktop"))

	a.HandleStateUpdate(model.StateUpdateEvent{
		DeviceID:         "tablet",
		PlaybackSnapshot: model.PlaybackSnapshot{IsPlaying: true},
	})
	assert.Nil(t, a.ActivePlayerState(), "non-authority snapshots are display noise")

	a.HandleStateUpdate(model.StateUpdateEvent{
		DeviceID:         "desktop",
		PlaybackSnapshot: model.PlaybackSnapshot{IsPlaying: true, CurrentTime: 10},
	})
	state := a.ActivePlayerState()
	require.NotNil(t, state)
	assert.Equal(t, 10.0, state.CurrentTime)

	// Losing track of the authority clears the cached snapshot.
	a.HandleAuthorityChange(nil)
	assert.Nil(t, a.ActivePlayerState())
}

func TestHandleErrorPrefersHook(t *testing.T) {
	var got string
	a := NewAgent("phone", &fakePlayer{}, &fakeSender{}, Hooks{
		OnError: func(msg string) { got = msg },
	})

	a.HandleError("device not found")
	assert.Equal(t, "device not found", got)
}
