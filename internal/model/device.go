package model

import (
	"time"

	"github.com/google/uuid"
)

// Transport delivers server-to-device messages over the device's live
// connection. Owned by the device's registry entry; invalidated on disconnect.
type Transport interface {
	Send(event *WSEvent) error
	Close() error
}

// Track is the opaque catalog payload carried inside playback snapshots.
// The coordination core never interprets it beyond passing it along.
type Track struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Artist          string  `json:"artist"`
	Album           string  `json:"album"`
	CoverArt        string  `json:"coverArt,omitempty"`
	DurationSeconds float64 `json:"duration"`
}

// PlaybackSnapshot is a device's self-reported playback state at a point in
// time. CurrentTrack is nil when nothing is loaded. CurrentTime only advances
// while IsPlaying; the reporting device's clock is trusted as-is.
type PlaybackSnapshot struct {
	IsPlaying    bool    `json:"isPlaying"`
	CurrentTrack *Track  `json:"currentTrack"`
	CurrentTime  float64 `json:"currentTime"`
	Volume       float64 `json:"volume"`
	Queue        []Track `json:"queue,omitempty"`
	QueueIndex   int     `json:"queueIndex,omitempty"`
}

// Device is one connected client instance. Created on register (a second
// register with the same id overwrites the entry, which handles reconnects),
// destroyed on disconnect or by the liveness sweeper.
type Device struct {
	ID        string
	Name      string
	UserID    uuid.UUID
	Transport Transport
	Snapshot  PlaybackSnapshot
	LastSeen  time.Time
}

// Summary returns the wire representation used in devices:list broadcasts.
func (d *Device) Summary(activeDeviceID string) DeviceSummary {
	return DeviceSummary{
		ID:       d.ID,
		Name:     d.Name,
		IsActive: d.ID == activeDeviceID,
		LastSeen: d.LastSeen,
		Snapshot: d.Snapshot,
	}
}

// DeviceSummary is the safe view of a Device sent to clients.
type DeviceSummary struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	IsActive bool             `json:"isActive"`
	LastSeen time.Time        `json:"lastSeen"`
	Snapshot PlaybackSnapshot `json:"snapshot"`
}
