// Package a2ui models the A2UI protocol: the declarative UI messages a
// model emits and a renderer consumes. It extracts message batches
// from free-form model output, repairs and parses them, validates them
// against the embedded JSON Schema, and replays them into per-surface
// state.
package a2ui

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind names the single key carried by a Message.
type Kind string

// Message kinds.
const (
	KindBeginRendering  Kind = "beginRendering"
	KindSurfaceUpdate   Kind = "surfaceUpdate"
	KindDataModelUpdate Kind = "dataModelUpdate"
	KindDeleteSurface   Kind = "deleteSurface"
)

var messageKinds = []Kind{KindBeginRendering, KindSurfaceUpdate, KindDataModelUpdate, KindDeleteSurface}

// Message is one A2UI message. Exactly one field is set; on the wire it
// is an object with a single key naming the kind.
type Message struct {
	BeginRendering  *BeginRendering  `json:"beginRendering,omitempty"`
	SurfaceUpdate   *SurfaceUpdate   `json:"surfaceUpdate,omitempty"`
	DataModelUpdate *DataModelUpdate `json:"dataModelUpdate,omitempty"`
	DeleteSurface   *DeleteSurface   `json:"deleteSurface,omitempty"`
}

// BeginRendering tells the renderer to show a surface starting at Root.
type BeginRendering struct {
	SurfaceID string  `json:"surfaceId"`
	Root      string  `json:"root"`
	Styles    *Styles `json:"styles,omitempty"`
}

// Styles are optional surface-wide style hints.
type Styles struct {
	Font         string `json:"font,omitempty"`
	PrimaryColor string `json:"primaryColor,omitempty"`
}

// SurfaceUpdate adds or replaces components on a surface.
type SurfaceUpdate struct {
	SurfaceID  string      `json:"surfaceId"`
	Components []Component `json:"components"`
}

// DataModelUpdate changes a surface's data model. Patches is the
// canonical form; Contents is the keyed-entry form some models emit,
// applied at Path (root when empty).
type DataModelUpdate struct {
	SurfaceID string      `json:"surfaceId"`
	Path      string      `json:"path,omitempty"`
	Patches   []DataPatch `json:"patches,omitempty"`
	Contents  []DataEntry `json:"contents,omitempty"`
}

// MarshalJSON keeps an empty but non-nil Patches or Contents, so an
// update that explicitly carries no patches still encodes the key.
func (u DataModelUpdate) MarshalJSON() ([]byte, error) {
	w := struct {
		SurfaceID string       `json:"surfaceId"`
		Path      string       `json:"path,omitempty"`
		Patches   *[]DataPatch `json:"patches,omitempty"`
		Contents  *[]DataEntry `json:"contents,omitempty"`
	}{SurfaceID: u.SurfaceID, Path: u.Path}
	if u.Patches != nil {
		w.Patches = &u.Patches
	}
	if u.Contents != nil {
		w.Contents = &u.Contents
	}
	return json.Marshal(w)
}

// DataPatch sets Value at a slash-separated Path.
type DataPatch struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// DataEntry is one keyed value in the Contents form. At most one of the
// value fields is set; ValueMap nests.
type DataEntry struct {
	Key          string      `json:"key"`
	ValueString  *string     `json:"valueString,omitempty"`
	ValueNumber  *float64    `json:"valueNumber,omitempty"`
	ValueBoolean *bool       `json:"valueBoolean,omitempty"`
	ValueMap     []DataEntry `json:"valueMap,omitempty"`
}

// DeleteSurface removes a surface.
type DeleteSurface struct {
	SurfaceID string `json:"surfaceId"`
}

// Kind reports which field is set, or "" for an empty Message.
func (m Message) Kind() Kind {
	switch {
	case m.BeginRendering != nil:
		return KindBeginRendering
	case m.SurfaceUpdate != nil:
		return KindSurfaceUpdate
	case m.DataModelUpdate != nil:
		return KindDataModelUpdate
	case m.DeleteSurface != nil:
		return KindDeleteSurface
	}
	return ""
}

// SurfaceID returns the target surface of whichever kind is set.
func (m Message) SurfaceID() string {
	switch {
	case m.BeginRendering != nil:
		return m.BeginRendering.SurfaceID
	case m.SurfaceUpdate != nil:
		return m.SurfaceUpdate.SurfaceID
	case m.DataModelUpdate != nil:
		return m.DataModelUpdate.SurfaceID
	case m.DeleteSurface != nil:
		return m.DeleteSurface.SurfaceID
	}
	return ""
}

func (m *Message) setSurfaceID(id string) {
	switch {
	case m.BeginRendering != nil:
		m.BeginRendering.SurfaceID = id
	case m.SurfaceUpdate != nil:
		m.SurfaceUpdate.SurfaceID = id
	case m.DataModelUpdate != nil:
		m.DataModelUpdate.SurfaceID = id
	case m.DeleteSurface != nil:
		m.DeleteSurface.SurfaceID = id
	}
}

// ErrUnknownMessage is returned when an object carries none of the
// message kind keys.
var ErrUnknownMessage = errors.New("a2ui: no message kind key")

// UnmarshalJSON requires exactly one known kind key. Other keys are
// ignored.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("a2ui message: %w", err)
	}

	var found []Kind
	for _, k := range messageKinds {
		if _, ok := raw[string(k)]; ok {
			found = append(found, k)
		}
	}
	switch len(found) {
	case 0:
		keys := make([]string, 0, len(raw))
		for k := range raw {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Errorf("%w (keys: %s)", ErrUnknownMessage, strings.Join(keys, ", "))
	case 1:
	default:
		return fmt.Errorf("a2ui message: ambiguous, has %d kind keys %v", len(found), found)
	}

	*m = Message{}
	payload := raw[string(found[0])]
	var err error
	switch found[0] {
	case KindBeginRendering:
		m.BeginRendering = new(BeginRendering)
		err = json.Unmarshal(payload, m.BeginRendering)
	case KindSurfaceUpdate:
		m.SurfaceUpdate = new(SurfaceUpdate)
		err = json.Unmarshal(payload, m.SurfaceUpdate)
	case KindDataModelUpdate:
		m.DataModelUpdate = new(DataModelUpdate)
		err = json.Unmarshal(payload, m.DataModelUpdate)
	case KindDeleteSurface:
		m.DeleteSurface = new(DeleteSurface)
		err = json.Unmarshal(payload, m.DeleteSurface)
	}
	if err != nil {
		return fmt.Errorf("a2ui %s: %w", found[0], err)
	}
	return nil
}

// Value converts an entry to a plain JSON value.
func (e DataEntry) Value() any {
	switch {
	case e.ValueString != nil:
		return *e.ValueString
	case e.ValueNumber != nil:
		return *e.ValueNumber
	case e.ValueBoolean != nil:
		return *e.ValueBoolean
	case e.ValueMap != nil:
		return entriesToMap(e.ValueMap)
	}
	return nil
}

func entriesToMap(entries []DataEntry) map[string]any {
	out := make(map[string]any, len(entries))
	for _, e := range entries {
		out[e.Key] = e.Value()
	}
	return out
}

// AllPatches returns Patches followed by Contents folded into a single
// object patch at Path.
func (u *DataModelUpdate) AllPatches() []DataPatch {
	out := make([]DataPatch, 0, len(u.Patches)+1)
	out = append(out, u.Patches...)
	if len(u.Contents) > 0 {
		path := u.Path
		if path == "" {
			path = "/"
		}
		out = append(out, DataPatch{Path: path, Value: entriesToMap(u.Contents)})
	}
	return out
}

// MarshalMessages encodes a batch as a JSON array. A nil batch encodes
// as [].
func MarshalMessages(msgs []Message) ([]byte, error) {
	if msgs == nil {
		msgs = []Message{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(msgs); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
