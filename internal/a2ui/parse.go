package a2ui

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoMessages is returned when a non-empty batch yields no usable
// message at all.
var ErrNoMessages = errors.New("a2ui: no valid messages in batch")

// SkippedMessage records a batch entry that failed to decode.
type SkippedMessage struct {
	Index int // position in the batch, from 0
	Err   error
}

// ParseResult is the outcome of Parse.
type ParseResult struct {
	Messages []Message
	Skipped  []SkippedMessage
	// Repaired is set when the payload only decoded after Repair.
	Repaired bool
}

// Parse decodes a payload holding either an array of messages or a
// single message object. Entries that fail to decode are skipped and
// reported; only a batch with no usable entry is an error.
func Parse(payload string) (*ParseResult, error) {
	payload = strings.TrimSpace(payload)
	res := &ParseResult{}
	if payload == "" {
		return res, nil
	}

	entries, err := splitEntries(payload)
	if err != nil {
		fixed, rerr := Repair(payload)
		if rerr != nil {
			return nil, fmt.Errorf("parse a2ui payload: %w", rerr)
		}
		entries, err = splitEntries(fixed)
		if err != nil {
			return nil, fmt.Errorf("parse a2ui payload: %w: %v", ErrMalformedJSON, err)
		}
		res.Repaired = true
	}

	for i, raw := range entries {
		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			res.Skipped = append(res.Skipped, SkippedMessage{Index: i, Err: err})
			continue
		}
		res.Messages = append(res.Messages, m)
	}

	if len(entries) > 0 && len(res.Messages) == 0 {
		return res, fmt.Errorf("%w: %s", ErrNoMessages, res.SkippedSummary())
	}
	return res, nil
}

// SkippedSummary joins the skipped entry errors into one line.
func (r *ParseResult) SkippedSummary() string {
	parts := make([]string, len(r.Skipped))
	for i, s := range r.Skipped {
		parts[i] = fmt.Sprintf("message %d: %v", s.Index+1, s.Err)
	}
	return strings.Join(parts, "; ")
}

// splitEntries returns the raw elements of an array payload, or the
// payload itself when it is a single object.
func splitEntries(payload string) ([]json.RawMessage, error) {
	var entries []json.RawMessage
	arrErr := json.Unmarshal([]byte(payload), &entries)
	if arrErr == nil {
		return entries, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &obj); err == nil {
		return []json.RawMessage{json.RawMessage(payload)}, nil
	}
	return nil, arrErr
}

// Normalize fills in a missing surfaceId when the batch opens exactly
// one surface with beginRendering. It edits msgs in place and returns
// the number of messages it changed.
func Normalize(msgs []Message) int {
	var surface string
	seen := make(map[string]struct{})
	for _, m := range msgs {
		if m.BeginRendering == nil || m.BeginRendering.SurfaceID == "" {
			continue
		}
		surface = m.BeginRendering.SurfaceID
		seen[surface] = struct{}{}
	}
	if len(seen) != 1 {
		return 0
	}

	changed := 0
	for i := range msgs {
		if msgs[i].Kind() != "" && msgs[i].SurfaceID() == "" {
			msgs[i].setSurfaceID(surface)
			changed++
		}
	}
	return changed
}
