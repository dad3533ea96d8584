package model

import "errors"

// Common errors used across the application
var (
	// Command routing errors. Both are reported back to the originating
	// device as a playback:error event; neither ever crashes a session.
	ErrDeviceNotFound = errors.New("device not found")
	ErrNotAuthorized  = errors.New("device belongs to a different user")

	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoCredentials      = errors.New("no credentials provided")
)
