package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chorusfm/chorus/internal/model"
	"github.com/chorusfm/chorus/internal/playback"
	"github.com/chorusfm/chorus/internal/service"
	"github.com/chorusfm/chorus/internal/ws"
	"github.com/google/uuid"
)

type tokenResolver struct {
	identities map[string]*model.UserIdentity
}

func (r *tokenResolver) ResolveIdentity(_ context.Context, creds service.Credentials) (*model.UserIdentity, error) {
	if identity, ok := r.identities[creds.SessionToken]; ok {
		return identity, nil
	}
	return nil, model.ErrInvalidCredentials
}

func newWSTestServer(t *testing.T, resolver service.IdentityResolver) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	hub := ws.NewHub(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	coordinator := playback.NewCoordinator(playback.NewRegistry(), playback.NewDirectory(nil), hub, nil, nil, 0)
	wsHandler := NewWSHandler(hub, coordinator, resolver)

	router := gin.New()
	router.GET("/ws", wsHandler.HandleWebSocket)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

// dialDevice connects, authenticates via query token, and announces the
// device, the same handshake a real client performs.
func dialDevice(t *testing.T, srv *httptest.Server, token, deviceID, deviceName string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.WriteJSON(model.WSEvent{
		Type:    model.WSEventDeviceRegister,
		Payload: model.RegisterDeviceEvent{DeviceID: deviceID, DeviceName: deviceName},
	}))
	return conn
}

// nextEventOfType reads events until one of the wanted type arrives, skipping
// interleaved broadcasts like devices:list.
func nextEventOfType(t *testing.T, conn *websocket.Conn, eventType string) model.WSEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		var event model.WSEvent
		if err := conn.ReadJSON(&event); err != nil {
			t.Fatalf("waiting for %s: %v", eventType, err)
		}
		if event.Type == eventType {
			return event
		}
	}
	t.Fatalf("no %s event before deadline", eventType)
	return model.WSEvent{}
}

// collectEvents drains whatever arrives within the window.
func collectEvents(t *testing.T, conn *websocket.Conn, window time.Duration) []model.WSEvent {
	t.Helper()
	var events []model.WSEvent
	conn.SetReadDeadline(time.Now().Add(window))
	for {
		var event model.WSEvent
		if err := conn.ReadJSON(&event); err != nil {
			return events
		}
		events = append(events, event)
	}
}

func decodeInto(t *testing.T, payload interface{}, out interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
}

func TestCommandToForeignDeviceReturnsErrorEvent(t *testing.T) {
	alice := uuid.New()
	bob := uuid.New()
	srv := newWSTestServer(t, &tokenResolver{identities: map[string]*model.UserIdentity{
		"alice-token": {UserID: alice, Name: "Alice"},
		"bob-token":   {UserID: bob, Name: "Bob"},
	}})

	aliceConn := dialDevice(t, srv, "alice-token", "alice-phone", "Phone")
	bobConn := dialDevice(t, srv, "bob-token", "bob-desktop", "Desktop")

	// Each registration echoes a devices:list to its own group; seeing it
	// means the registration has been processed.
	_ = nextEventOfType(t, aliceConn, model.WSEventDevicesList)
	_ = nextEventOfType(t, bobConn, model.WSEventDevicesList)

	require.NoError(t, aliceConn.WriteJSON(model.WSEvent{
		Type:    model.WSEventCommand,
		Payload: model.CommandEvent{TargetDeviceID: "bob-desktop", Command: model.CommandPause},
	}))

	// The originating device gets the error.
	errEvent := nextEventOfType(t, aliceConn, model.WSEventPlaybackError)
	var errPayload model.PlaybackErrorEvent
	decodeInto(t, errEvent.Payload, &errPayload)
	assert.Equal(t, model.ErrNotAuthorized.Error(), errPayload.Message)

	// The foreign target gets nothing.
	for _, event := range collectEvents(t, bobConn, 300*time.Millisecond) {
		assert.NotEqual(t, model.WSEventRemoteCommand, event.Type)
	}
}

func TestCommandToUnknownDeviceReturnsErrorEvent(t *testing.T) {
	alice := uuid.New()
	srv := newWSTestServer(t, &tokenResolver{identities: map[string]*model.UserIdentity{
		"alice-token": {UserID: alice, Name: "Alice"},
	}})

	aliceConn := dialDevice(t, srv, "alice-token", "alice-phone", "Phone")
	_ = nextEventOfType(t, aliceConn, model.WSEventDevicesList)

	require.NoError(t, aliceConn.WriteJSON(model.WSEvent{
		Type:    model.WSEventCommand,
		Payload: model.CommandEvent{TargetDeviceID: "ghost", Command: model.CommandPlay},
	}))

	errEvent := nextEventOfType(t, aliceConn, model.WSEventPlaybackError)
	var errPayload model.PlaybackErrorEvent
	decodeInto(t, errEvent.Payload, &errPayload)
	assert.Equal(t, model.ErrDeviceNotFound.Error(), errPayload.Message)
}

func TestTransferCannotPullForeignState(t *testing.T) {
	victim := uuid.New()
	attacker := uuid.New()
	srv := newWSTestServer(t, &tokenResolver{identities: map[string]*model.UserIdentity{
		"victim-token":   {UserID: victim, Name: "Victim"},
		"attacker-token": {UserID: attacker, Name: "Attacker"},
	}})

	victimConn := dialDevice(t, srv, "victim-token", "victim-phone", "Phone")
	attackerConn := dialDevice(t, srv, "attacker-token", "attacker-dev", "Laptop")
	_ = nextEventOfType(t, victimConn, model.WSEventDevicesList)
	_ = nextEventOfType(t, attackerConn, model.WSEventDevicesList)

	require.NoError(t, victimConn.WriteJSON(model.WSEvent{
		Type: model.WSEventPlaybackState,
		Payload: model.PlaybackStateEvent{
			DeviceID: "victim-phone",
			PlaybackSnapshot: model.PlaybackSnapshot{
				IsPlaying:    true,
				CurrentTrack: &model.Track{ID: "t1", Title: "Private Song"},
				CurrentTime:  30,
			},
		},
	}))
	// The playing report claims authority in the victim's group; the push
	// confirms the snapshot has landed server-side.
	_ = nextEventOfType(t, victimConn, model.WSEventActivePlayer)

	// The directory accepts arbitrary ids, so point our own authority at
	// the foreign device and then ask for a handoff with state.
	foreign := "victim-phone"
	require.NoError(t, attackerConn.WriteJSON(model.WSEvent{
		Type:    model.WSEventSetActivePlayer,
		Payload: model.SetActivePlayerEvent{DeviceID: &foreign},
	}))
	require.NoError(t, attackerConn.WriteJSON(model.WSEvent{
		Type:    model.WSEventTransfer,
		Payload: model.TransferEvent{ToDeviceID: "attacker-dev", WithState: true},
	}))

	// Authority lands on the attacker's own device, but no remote command
	// carrying the foreign snapshot ever arrives.
	for _, event := range collectEvents(t, attackerConn, 300*time.Millisecond) {
		assert.NotEqual(t, model.WSEventRemoteCommand, event.Type)
	}

	// And the victim's device is never paused by a stranger's transfer.
	for _, event := range collectEvents(t, victimConn, 300*time.Millisecond) {
		assert.NotEqual(t, model.WSEventRemoteCommand, event.Type)
	}
}
