package model

import "github.com/google/uuid"

// ========== Auth DTOs ==========

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type RegisterPushTokenRequest struct {
	DeviceID string `json:"device_id" binding:"required"`
	Token    string `json:"token" binding:"required"`
}

// ========== REST Playback DTOs ==========

type TransferRequest struct {
	FromDeviceID string `json:"from_device_id" binding:"required"`
	ToDeviceID   string `json:"to_device_id" binding:"required"`
	WithState    bool   `json:"with_state"`
}

// ========== WebSocket Event DTOs ==========

type WSEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WebSocket event types, device -> server
const (
	WSEventDeviceRegister  = "device:register"
	WSEventDeviceHeartbeat = "device:heartbeat"
	WSEventPlaybackState   = "playback:state"
	WSEventCommand         = "playback:command"
	WSEventRequestState    = "playback:requestState"
	WSEventDevicesList     = "devices:list"
	WSEventTransfer        = "playback:transfer"
	WSEventSetActivePlayer = "playback:setActivePlayer"
)

// WebSocket event types, server -> device(s)
const (
	WSEventStateUpdate   = "playback:stateUpdate"
	WSEventRemoteCommand = "playback:remoteCommand"
	WSEventStateRequest  = "playback:stateRequest"
	WSEventActivePlayer  = "playback:activePlayer"
	WSEventPlaybackError = "playback:error"
)

// Remote command names carried in playback:command / playback:remoteCommand.
const (
	CommandPlay             = "play"
	CommandPause            = "pause"
	CommandNext             = "next"
	CommandPrevious         = "previous"
	CommandSeek             = "seek"
	CommandSetVolume        = "setVolume"
	CommandSetQueue         = "setQueue"
	CommandPlayTrack        = "playTrack"
	CommandTransferPlayback = "transferPlayback"
)

type RegisterDeviceEvent struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
}

type HeartbeatEvent struct {
	DeviceID string `json:"deviceId"`
}

// PlaybackStateEvent is the inbound playback:state payload: the reporting
// device's id plus its full snapshot.
type PlaybackStateEvent struct {
	DeviceID string `json:"deviceId"`
	PlaybackSnapshot
}

type CommandEvent struct {
	TargetDeviceID string      `json:"targetDeviceId"`
	Command        string      `json:"command"`
	Payload        interface{} `json:"payload,omitempty"`
}

type RequestStateEvent struct {
	DeviceID string `json:"deviceId"`
}

type TransferEvent struct {
	ToDeviceID string `json:"toDeviceId"`
	WithState  bool   `json:"withState"`
}

type SetActivePlayerEvent struct {
	DeviceID *string `json:"deviceId"`
}

// StateUpdateEvent is a sibling's snapshot annotated with its identity.
type StateUpdateEvent struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	PlaybackSnapshot
}

type RemoteCommandEvent struct {
	Command      string      `json:"command"`
	Payload      interface{} `json:"payload,omitempty"`
	FromDeviceID string      `json:"fromDeviceId"`
}

// TransferStatePayload rides a transferPlayback remote command so the
// destination can resume at the right position without a catalog round trip.
type TransferStatePayload struct {
	Track       *Track  `json:"track"`
	CurrentTime float64 `json:"currentTime"`
	IsPlaying   bool    `json:"isPlaying"`
	Volume      float64 `json:"volume"`
}

// PauseReasonPayload distinguishes "paused because transferred away" from a
// user-initiated pause.
type PauseReasonPayload struct {
	Reason string `json:"reason"`
}

const PauseReasonTransferred = "transferred"

type ActivePlayerEvent struct {
	DeviceID *string `json:"deviceId"`
}

type PlaybackErrorEvent struct {
	Message string `json:"message"`
}

// ========== Identity ==========

// UserIdentity is what credential resolution yields; everything downstream of
// the connection authenticator keys on it.
type UserIdentity struct {
	UserID uuid.UUID
	Name   string
}

// ========== Common ==========

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
