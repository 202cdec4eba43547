package agent

import (
	"context"
	"time"

	"github.com/fleetchat/fleetd/internal/sse"
)

// Stream event names.
const (
	EventUpdate      = "update"
	EventA2UIMessage = "a2ui_message"
	EventContent     = "content"
	EventComplete    = "complete"
	EventError       = "error"
)

// StreamMessage runs SendMessage and reports it as a sequence of
// events: a processing update, then one event per A2UI message (or a
// single content event when there are none), then completion. A
// pipeline failure is reported as an error event and also returned.
// The first error from send stops the stream.
func (a *Agent) StreamMessage(ctx context.Context, req SendRequest, send func(sse.Event) error) error {
	stamp := func() string { return a.now().UTC().Format(time.RFC3339) }

	if err := send(sse.Event{Name: EventUpdate, Data: map[string]any{
		"type":      "processing",
		"message":   "Generating response...",
		"timestamp": stamp(),
	}}); err != nil {
		return err
	}

	resp, err := a.SendMessage(ctx, req)
	if err != nil {
		if serr := send(sse.Event{Name: EventError, Data: map[string]any{
			"type":      "error",
			"message":   err.Error(),
			"timestamp": stamp(),
		}}); serr != nil {
			return serr
		}
		return err
	}

	if len(resp.A2UIMessages) == 0 {
		if err := send(sse.Event{Name: EventContent, Data: map[string]any{
			"type":       "content_message",
			"session_id": resp.SessionID,
			"content":    resp.Content,
			"timestamp":  stamp(),
		}}); err != nil {
			return err
		}
	}
	for i, m := range resp.A2UIMessages {
		if err := send(sse.Event{Name: EventA2UIMessage, Data: map[string]any{
			"type":          "a2ui_message",
			"session_id":    resp.SessionID,
			"message_index": i,
			"a2ui_message":  m,
			"timestamp":     stamp(),
		}}); err != nil {
			return err
		}
	}

	data := map[string]any{
		"type":          "completed",
		"session_id":    resp.SessionID,
		"message_id":    resp.MessageID,
		"message_count": len(resp.A2UIMessages),
		"attempts":      resp.Attempts,
		"timestamp":     stamp(),
	}
	if resp.Updates != "" {
		data["updates"] = resp.Updates
	}
	return send(sse.Event{Name: EventComplete, Data: data})
}
