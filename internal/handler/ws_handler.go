package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/chorusfm/chorus/internal/middleware"
	"github.com/chorusfm/chorus/internal/model"
	"github.com/chorusfm/chorus/internal/playback"
	"github.com/chorusfm/chorus/internal/service"
	"github.com/chorusfm/chorus/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // In production, validate origin
	},
}

// WSHandler owns the device connection lifecycle: credential resolution at
// upgrade time, message dispatch into the playback coordinator, and cleanup
// when the socket drops.
type WSHandler struct {
	hub         *ws.Hub
	coordinator *playback.Coordinator
	resolver    service.IdentityResolver
}

func NewWSHandler(hub *ws.Hub, coordinator *playback.Coordinator, resolver service.IdentityResolver) *WSHandler {
	return &WSHandler{
		hub:         hub,
		coordinator: coordinator,
		resolver:    resolver,
	}
}

// HandleWebSocket upgrades HTTP to WebSocket and manages the connection.
// Credentials must resolve to a user before any other message is processed;
// connections failing all three schemes are refused.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	identity, err := h.resolver.ResolveIdentity(c.Request.Context(), middleware.CredentialsFromRequest(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or missing credentials"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := ws.NewClient(h.hub, conn, identity.UserID, identity.Name)
	h.hub.Register(client)

	log.Printf("✅ WS connected: user=%s (%s)", identity.UserID, identity.Name)

	go client.WritePump()
	go func() {
		client.ReadPump(h.handleWSMessage)
		// The registry entry outlives the hub membership only for the
		// moment it takes to get here.
		if deviceID := client.DeviceID(); deviceID != "" {
			h.coordinator.Disconnect(deviceID)
		}
	}()
}

// handleWSMessage dispatches one inbound device message.
func (h *WSHandler) handleWSMessage(client *ws.Client, event model.WSEvent) {
	// Any inbound message counts as liveness, not just heartbeats.
	if deviceID := client.DeviceID(); deviceID != "" {
		h.coordinator.Touch(deviceID)
	}

	switch event.Type {
	case model.WSEventDeviceRegister:
		h.handleRegister(client, event)

	case model.WSEventDeviceHeartbeat:
		var payload model.HeartbeatEvent
		if decodePayload(event, &payload) {
			h.coordinator.Heartbeat(payload.DeviceID)
		}

	case model.WSEventPlaybackState:
		h.handlePlaybackState(client, event)

	case model.WSEventCommand:
		h.handleCommand(client, event)

	case model.WSEventRequestState:
		h.handleRequestState(client, event)

	case model.WSEventDevicesList:
		// Request/response on the same event name: reply to the caller
		// only, rather than broadcasting.
		_ = client.Send(&model.WSEvent{
			Type:    model.WSEventDevicesList,
			Payload: h.coordinator.DeviceList(client.UserID),
		})

	case model.WSEventTransfer:
		h.handleTransfer(client, event)

	case model.WSEventSetActivePlayer:
		var payload model.SetActivePlayerEvent
		if decodePayload(event, &payload) {
			deviceID := ""
			if payload.DeviceID != nil {
				deviceID = *payload.DeviceID
			}
			h.coordinator.SetActivePlayer(client.UserID, deviceID)
		}

	default:
		log.Printf("Unknown WebSocket event type: %s", event.Type)
	}
}

func (h *WSHandler) handleRegister(client *ws.Client, event model.WSEvent) {
	var payload model.RegisterDeviceEvent
	if !decodePayload(event, &payload) || payload.DeviceID == "" {
		return
	}

	client.SetDeviceID(payload.DeviceID)
	h.coordinator.RegisterDevice(client.UserID, payload.DeviceID, payload.DeviceName, client)
}

func (h *WSHandler) handlePlaybackState(client *ws.Client, event model.WSEvent) {
	var payload model.PlaybackStateEvent
	if !decodePayload(event, &payload) {
		return
	}
	h.coordinator.PublishState(client.UserID, payload.DeviceID, payload.PlaybackSnapshot)
}

func (h *WSHandler) handleCommand(client *ws.Client, event model.WSEvent) {
	var payload model.CommandEvent
	if !decodePayload(event, &payload) {
		return
	}

	err := h.coordinator.RouteCommand(client.UserID, client.DeviceID(), payload.TargetDeviceID, payload.Command, payload.Payload)
	if err != nil {
		// Authorization and lookup failures on explicit commands go back
		// to the originating device; nothing reaches the target.
		h.sendError(client, err)
	}
}

func (h *WSHandler) handleRequestState(client *ws.Client, event model.WSEvent) {
	var payload model.RequestStateEvent
	if !decodePayload(event, &payload) {
		return
	}

	if err := h.coordinator.RequestState(client.UserID, payload.DeviceID); err != nil {
		h.sendError(client, err)
	}
}

func (h *WSHandler) handleTransfer(client *ws.Client, event model.WSEvent) {
	var payload model.TransferEvent
	if !decodePayload(event, &payload) || payload.ToDeviceID == "" {
		return
	}

	// The handoff source is whichever device currently holds authority;
	// the caller is usually the destination asking to take over.
	fromDeviceID := h.coordinator.ActivePlayer(client.UserID)
	if fromDeviceID == "" {
		fromDeviceID = client.DeviceID()
	}

	h.coordinator.Transfer(client.UserID, fromDeviceID, payload.ToDeviceID, payload.WithState)
}

func (h *WSHandler) sendError(client *ws.Client, err error) {
	_ = client.Send(&model.WSEvent{
		Type:    model.WSEventPlaybackError,
		Payload: model.PlaybackErrorEvent{Message: err.Error()},
	})
}

// decodePayload re-marshals the loosely typed payload into its concrete shape.
func decodePayload(event model.WSEvent, out interface{}) bool {
	data, err := json.Marshal(event.Payload)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		log.Printf("Error parsing %s payload: %v", event.Type, err)
		return false
	}
	return true
}
