package connect

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chorusfm/chorus/internal/model"
)

const (
	sessionWriteWait    = 10 * time.Second
	heartbeatInterval   = 30 * time.Second
	stateReportInterval = 5 * time.Second
)

// SessionConfig describes how a device connects to the coordination server.
// Exactly one credential field should be set.
type SessionConfig struct {
	ServerURL  string // e.g. ws://host:8080/ws
	Token      string // session token
	APIKey     string // chk_... API key
	DeviceID   string
	DeviceName string
}

// Session is the device side of the coordination protocol: it dials the
// server, registers the device, heartbeats, republishes local playback state,
// and feeds server pushes into the Agent.
type Session struct {
	cfg    SessionConfig
	agent  *Agent
	player LocalPlayer
	conn   *websocket.Conn
	send   chan []byte
}

// NewSession wires a session around a local player. The returned session's
// Agent carries the control-action API the embedding app calls.
func NewSession(cfg SessionConfig, player LocalPlayer, hooks Hooks) *Session {
	s := &Session{
		cfg:    cfg,
		player: player,
		send:   make(chan []byte, 64),
	}
	s.agent = NewAgent(cfg.DeviceID, player, s, hooks)
	return s
}

// Agent exposes the coordination agent bound to this session.
func (s *Session) Agent() *Agent {
	return s.agent
}

// Run connects and processes the session until ctx is cancelled or the
// connection drops.
func (s *Session) Run(ctx context.Context) error {
	u, err := url.Parse(s.cfg.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	q := u.Query()
	if s.cfg.Token != "" {
		q.Set("token", s.cfg.Token)
	}
	if s.cfg.APIKey != "" {
		q.Set("api_key", s.cfg.APIKey)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	s.conn = conn
	defer conn.Close()

	if err := s.sendEvent(model.WSEventDeviceRegister, model.RegisterDeviceEvent{
		DeviceID:   s.cfg.DeviceID,
		DeviceName: s.cfg.DeviceName,
	}); err != nil {
		return err
	}

	go s.writePump(ctx)
	go s.reportLoop(ctx)

	return s.readLoop(ctx)
}

// SendCommand implements CommandSender: the action goes to the server
// addressed at the target device.
func (s *Session) SendCommand(targetDeviceID, command string, payload interface{}) error {
	return s.sendEvent(model.WSEventCommand, model.CommandEvent{
		TargetDeviceID: targetDeviceID,
		Command:        command,
		Payload:        payload,
	})
}

// PublishState reports the local player's snapshot to the server.
func (s *Session) PublishState(ctx context.Context) error {
	snapshot, err := s.player.State(ctx)
	if err != nil {
		return err
	}
	return s.sendEvent(model.WSEventPlaybackState, model.PlaybackStateEvent{
		DeviceID:         s.cfg.DeviceID,
		PlaybackSnapshot: snapshot,
	})
}

func (s *Session) sendEvent(eventType string, payload interface{}) error {
	data, err := json.Marshal(model.WSEvent{Type: eventType, Payload: payload})
	if err != nil {
		return err
	}
	select {
	case s.send <- data:
		return nil
	default:
		return fmt.Errorf("session send buffer full")
	}
}

func (s *Session) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(sessionWriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// reportLoop heartbeats and republishes local state while this device is the
// active player, so siblings always have a fresh snapshot to display.
func (s *Session) reportLoop(ctx context.Context) {
	heartbeat := time.NewTicker(heartbeatInterval)
	report := time.NewTicker(stateReportInterval)
	defer heartbeat.Stop()
	defer report.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			_ = s.sendEvent(model.WSEventDeviceHeartbeat, model.HeartbeatEvent{DeviceID: s.cfg.DeviceID})
		case <-report.C:
			if s.agent.IsActivePlayer() {
				if err := s.PublishState(ctx); err != nil {
					log.Printf("Failed to publish state: %v", err)
				}
			}
		}
	}
}

func (s *Session) readLoop(ctx context.Context) error {
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}

		var event model.WSEvent
		if err := json.Unmarshal(message, &event); err != nil {
			log.Printf("Error parsing server message: %v", err)
			continue
		}

		s.handleEvent(ctx, event)
	}
}

func (s *Session) handleEvent(ctx context.Context, event model.WSEvent) {
	switch event.Type {
	case model.WSEventActivePlayer:
		var payload model.ActivePlayerEvent
		if decode(event.Payload, &payload) == nil {
			s.agent.HandleAuthorityChange(payload.DeviceID)
		}

	case model.WSEventRemoteCommand:
		var payload model.RemoteCommandEvent
		if decode(event.Payload, &payload) == nil {
			if err := s.agent.HandleRemoteCommand(ctx, payload); err != nil {
				log.Printf("Remote command %s failed: %v", payload.Command, err)
			}
			// The resulting local state is the implicit ack.
			if err := s.PublishState(ctx); err != nil {
				log.Printf("Failed to publish state: %v", err)
			}
		}

	case model.WSEventStateRequest:
		if err := s.PublishState(ctx); err != nil {
			log.Printf("Failed to publish state: %v", err)
		}

	case model.WSEventStateUpdate:
		var payload model.StateUpdateEvent
		if decode(event.Payload, &payload) == nil {
			s.agent.HandleStateUpdate(payload)
		}

	case model.WSEventPlaybackError:
		var payload model.PlaybackErrorEvent
		if decode(event.Payload, &payload) == nil {
			s.agent.HandleError(payload.Message)
		}

	case model.WSEventDevicesList:
		// Device lists are display data; the embedding app can request
		// them over REST, so the push is informational here.

	default:
		log.Printf("Unknown server event type: %s", event.Type)
	}
}
