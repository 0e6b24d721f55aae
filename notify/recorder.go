package notify

import (
	"context"
	"sync"
)

// Recorder is a [Gateway] that keeps every message in memory. Set Err to make
// every Send fail.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	Err      error
	notify   chan struct{}
}

func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1024)}
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	err := r.Err
	if err == nil {
		r.messages = append(r.messages, msg)
	}
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
	return err
}

// Messages returns a copy of everything delivered so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// LastFor returns the most recent message sent to destination.
func (r *Recorder) LastFor(destination string) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].Destination == destination {
			return r.messages[i], true
		}
	}
	return Message{}, false
}

// Attempts returns a channel that receives once per Send call, successful or not.
func (r *Recorder) Attempts() <-chan struct{} {
	return r.notify
}
