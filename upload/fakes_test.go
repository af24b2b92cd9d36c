package upload

import (
	"context"
	"sync"

	"github.com/bitrise-io/go-utils/v2/analytics"

	"github.com/saaskit/go-uploadkit/upload/network"
)

// fakeSlots issues one slot per file, with write URLs pointing at a test
// server. Call counting proves that rejected batches never reach the network.
type fakeSlots struct {
	mu      sync.Mutex
	calls   int
	baseURL string
	err     error
}

func (f *fakeSlots) RequestSlots(ctx context.Context, request network.SlotRequest) ([]network.UploadSlot, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	slots := make([]network.UploadSlot, 0, len(request.Files))
	for _, file := range request.Files {
		slots = append(slots, network.UploadSlot{
			StorageKey: "test/" + file.Filename,
			WriteURL:   f.baseURL + "/" + file.Filename,
			ExpiresIn:  90,
		})
	}
	return slots, nil
}

func (f *fakeSlots) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type trackedEvent struct {
	name       string
	properties []analytics.Properties
}

type fakeTracker struct {
	mu     sync.Mutex
	events []trackedEvent
}

func (t *fakeTracker) Enqueue(eventName string, properties ...analytics.Properties) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, trackedEvent{name: eventName, properties: properties})
}

func (t *fakeTracker) Wait() {}

func (t *fakeTracker) eventNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.events))
	for _, event := range t.events {
		names = append(names, event.name)
	}
	return names
}
