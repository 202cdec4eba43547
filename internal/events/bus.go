// Package events is an in-process broadcast bus for agent progress.
// The agent publishes one event per pipeline step; the MQTT relay and
// "fleetd ask --events" subscribe. Publishing on a nil *Bus is a
// no-op so components need no guards.
package events

import (
	"sync"
	"time"
)

// Sources.
const (
	SourceAgent   = "agent"
	SourceGateway = "gateway"
	SourceSurface = "surface"
)

// Kinds. The Data keys each kind carries are listed alongside.
const (
	// KindRequestStart: session_id, message_len, use_ui.
	KindRequestStart = "request_start"
	// KindAttempt: session_id, attempt, max_attempts.
	KindAttempt = "attempt"
	// KindToolCall: session_id, tool, ok.
	KindToolCall = "tool_call"
	// KindLLMResponse: provider, model, tokens_in, tokens_out, elapsed_ms.
	KindLLMResponse = "llm_response"
	// KindValidationFailed: session_id, attempt, error.
	KindValidationFailed = "validation_failed"
	// KindA2UIMessage: session_id, surface_id, message_index, message.
	KindA2UIMessage = "a2ui_message"
	// KindContent: session_id, content.
	KindContent = "content"
	// KindComplete: session_id, message_count, attempts, elapsed_ms.
	KindComplete = "complete"
	// KindError: session_id, error.
	KindError = "error"
	// KindSurfaceDeleted: surface_id.
	KindSurfaceDeleted = "surface_deleted"
)

// Event is one published occurrence.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	Source    string         `json:"source"`
	Kind      string         `json:"kind"`
	Data      map[string]any `json:"data,omitempty"`
}

// Bus fans events out to buffered subscriber channels. A full
// subscriber misses events instead of stalling the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend lets Unsubscribe accept the receive-only view handed
	// out by Subscribe.
	recvToSend map[<-chan Event]chan Event
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish delivers e to every subscriber with room in its buffer.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Emit publishes an event stamped with the current time.
func (b *Bus) Emit(source, kind string, data map[string]any) {
	if b == nil {
		return
	}
	b.Publish(Event{Timestamp: time.Now(), Source: source, Kind: kind, Data: data})
}

// Subscribe registers a subscriber. Callers must Unsubscribe.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes and closes ch. Unknown channels are ignored.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount reports active subscriptions.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
