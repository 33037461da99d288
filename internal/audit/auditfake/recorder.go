package auditfake

import (
	"context"
	"errors"
	"sync"

	"outreach-auth/internal/audit"
)

var _ audit.Recorder = (*Recorder)(nil)

var ErrUnavailable = errors.New("audit sink unavailable")

// Recorder keeps events in memory. When Fail is set every call errors.
type Recorder struct {
	mu     sync.Mutex
	events []audit.Event
	Fail   bool
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func NewFailingRecorder() *Recorder {
	return &Recorder{Fail: true}
}

func (r *Recorder) Record(_ context.Context, event audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Fail {
		return ErrUnavailable
	}
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Events() []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]audit.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) Actions() []string {
	events := r.Events()
	actions := make([]string, 0, len(events))
	for _, event := range events {
		actions = append(actions, event.Action)
	}
	return actions
}
