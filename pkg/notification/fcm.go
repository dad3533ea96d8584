package notification

import (
	"context"
	"log"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/chorusfm/chorus/internal/repository"
)

// WakeService pushes FCM wake-up notifications to devices that hold (or were
// just handed) playback authority but have no live connection, so they know
// to reconnect.
type WakeService struct {
	client        *messaging.Client
	pushTokenRepo *repository.PushTokenRepository
}

// NewWakeService creates the FCM wake service. Returns nil (pushes disabled)
// when credentials are missing or Firebase cannot be initialized; a nil
// service is safe to call.
func NewWakeService(credentialsFile string, pushTokenRepo *repository.PushTokenRepository) (*WakeService, error) {
	if credentialsFile == "" {
		log.Println("⚠️ Firebase credentials not provided, wake pushes disabled")
		return nil, nil
	}

	opt := option.WithCredentialsFile(credentialsFile)
	app, err := firebase.NewApp(context.Background(), nil, opt)
	if err != nil {
		// Log warning instead of error to not block server startup
		log.Printf("⚠️ Failed to initialize Firebase app: %v (wake pushes disabled)", err)
		return nil, nil
	}

	client, err := app.Messaging(context.Background())
	if err != nil {
		log.Printf("⚠️ Failed to get messaging client: %v", err)
		return nil, nil
	}

	log.Println("✅ Firebase FCM initialized")
	return &WakeService{
		client:        client,
		pushTokenRepo: pushTokenRepo,
	}, nil
}

// WakeDevice sends a data-only push telling the device it now holds playback
// authority. Devices without a registered push token are silently skipped.
func (s *WakeService) WakeDevice(ctx context.Context, userID uuid.UUID, deviceID string) error {
	if s == nil || s.client == nil {
		return nil
	}

	token, err := s.pushTokenRepo.FindByDevice(userID, deviceID)
	if err != nil {
		return nil // no token registered, nothing to wake
	}

	_, err = s.client.Send(ctx, &messaging.Message{
		Token: token.Token,
		Data: map[string]string{
			"type":     "playback:wake",
			"deviceId": deviceID,
		},
		Android: &messaging.AndroidConfig{Priority: "high"},
	})
	if err != nil {
		log.Printf("⚠️ Failed to send wake push to device %s: %v", deviceID, err)
		return err
	}

	log.Printf("📲 Wake push sent to device %s", deviceID)
	return nil
}
