package playback

import (
	"context"
	"sync"

	"github.com/chorusfm/chorus/internal/model"
	"github.com/google/uuid"
)

type fakeTransport struct {
	mu     sync.Mutex
	sent   []*model.WSEvent
	closed bool
}

func (t *fakeTransport) Send(event *model.WSEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, event)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type delivery struct {
	kind     string // "device", "user", "siblings"
	userID   uuid.UUID
	deviceID string // target for "device", excluded for "siblings"
	event    *model.WSEvent
}

type fakeFanout struct {
	mu         sync.Mutex
	deliveries []delivery
}

func (f *fakeFanout) ToDevice(userID uuid.UUID, deviceID string, event *model.WSEvent) {
	f.record(delivery{kind: "device", userID: userID, deviceID: deviceID, event: event})
}

func (f *fakeFanout) ToUser(userID uuid.UUID, event *model.WSEvent) {
	f.record(delivery{kind: "user", userID: userID, event: event})
}

func (f *fakeFanout) ToSiblings(userID uuid.UUID, exceptDeviceID string, event *model.WSEvent) {
	f.record(delivery{kind: "siblings", userID: userID, deviceID: exceptDeviceID, event: event})
}

func (f *fakeFanout) record(d delivery) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, d)
}

func (f *fakeFanout) all() []delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]delivery, len(f.deliveries))
	copy(out, f.deliveries)
	return out
}

// ofType returns deliveries whose event type matches, in emission order.
func (f *fakeFanout) ofType(eventType string) []delivery {
	var out []delivery
	for _, d := range f.all() {
		if d.event.Type == eventType {
			out = append(out, d)
		}
	}
	return out
}

func (f *fakeFanout) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = nil
}

type fakeWaker struct {
	mu    sync.Mutex
	woken []string
}

func (w *fakeWaker) WakeDevice(_ context.Context, _ uuid.UUID, deviceID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.woken = append(w.woken, deviceID)
	return nil
}

func (w *fakeWaker) wokenDevices() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.woken))
	copy(out, w.woken)
	return out
}
