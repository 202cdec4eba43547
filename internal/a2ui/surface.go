package a2ui

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSurfaceNotFound is returned for operations on an unknown surface.
var ErrSurfaceNotFound = errors.New("surface not found")

// Surface is a snapshot of one rendered surface.
type Surface struct {
	ID         string               `json:"surfaceId"`
	Root       string               `json:"root,omitempty"`
	Styles     *Styles              `json:"styles,omitempty"`
	Components map[string]Component `json:"components"`
	DataModel  map[string]any       `json:"dataModel"`
	UpdatedAt  time.Time            `json:"updatedAt"`
}

// SortedComponents returns the components ordered by ID.
func (s *Surface) SortedComponents() []Component {
	ids := make([]string, 0, len(s.Components))
	for id := range s.Components {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Component, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.Components[id])
	}
	return out
}

func (s *Surface) clone() *Surface {
	c := *s
	c.Components = make(map[string]Component, len(s.Components))
	for k, v := range s.Components {
		c.Components[k] = v.clone()
	}
	c.DataModel = deepCopyMap(s.DataModel)
	c.Styles = clonePtr(s.Styles)
	return &c
}

// SurfaceStore holds surface state for the lifetime of the process.
// Every operation returns the message a renderer needs to mirror it.
type SurfaceStore struct {
	mu       sync.RWMutex
	surfaces map[string]*Surface
	logger   *slog.Logger
	now      func() time.Time
}

// NewSurfaceStore returns an empty store.
func NewSurfaceStore(logger *slog.Logger) *SurfaceStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SurfaceStore{
		surfaces: make(map[string]*Surface),
		logger:   logger.With("component", "surfaces"),
		now:      time.Now,
	}
}

func (s *SurfaceStore) newSurface(id string) *Surface {
	return &Surface{
		ID:         id,
		Components: make(map[string]Component),
		DataModel:  make(map[string]any),
		UpdatedAt:  s.now(),
	}
}

// Create registers a surface, generating an ID when id is empty. An
// existing surface with the same ID is replaced.
func (s *SurfaceStore) Create(id, root string, styles *Styles) (Message, string) {
	if id == "" {
		id = uuid.NewString()
	}
	sf := s.newSurface(id)
	sf.Root = root
	sf.Styles = clonePtr(styles)

	s.mu.Lock()
	s.surfaces[id] = sf
	s.mu.Unlock()

	return Message{BeginRendering: &BeginRendering{SurfaceID: id, Root: root, Styles: clonePtr(styles)}}, id
}

// UpdateComponents upserts comps by ID and returns a surfaceUpdate
// carrying the surface's full component set.
func (s *SurfaceStore) UpdateComponents(id string, comps []Component) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sf, ok := s.surfaces[id]
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrSurfaceNotFound, id)
	}
	for _, c := range comps {
		sf.Components[c.ID] = c.clone()
	}
	sf.UpdatedAt = s.now()
	return Message{SurfaceUpdate: &SurfaceUpdate{SurfaceID: id, Components: cloneComponents(sf.SortedComponents())}}, nil
}

// UpdateData applies patches to the surface's data model and returns a
// dataModelUpdate echoing them.
func (s *SurfaceStore) UpdateData(id string, patches []DataPatch) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sf, ok := s.surfaces[id]
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrSurfaceNotFound, id)
	}
	s.applyLocked(sf, patches)
	return Message{DataModelUpdate: &DataModelUpdate{SurfaceID: id, Patches: patches}}, nil
}

func (s *SurfaceStore) applyLocked(sf *Surface, patches []DataPatch) {
	for _, sk := range ApplyPatches(sf.DataModel, patches) {
		s.logger.Warn("skipped data patch",
			"surface_id", sf.ID,
			"path", sk.Patch.Path,
			"reason", sk.Reason,
		)
	}
	sf.UpdatedAt = s.now()
}

// RecordAction stores the action as the surface's lastAction and
// returns its context resolved against the data model.
func (s *SurfaceStore) RecordAction(id string, action Action) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sf, ok := s.surfaces[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSurfaceNotFound, id)
	}

	resolved := make(map[string]any, len(action.Context))
	for _, c := range action.Context {
		resolved[c.Key] = deepCopyValue(c.Value.Resolve(sf.DataModel))
	}

	var rawContext any = []any{}
	if data, err := json.Marshal(action.Context); err == nil && len(action.Context) > 0 {
		_ = json.Unmarshal(data, &rawContext)
	}
	sf.DataModel["lastAction"] = map[string]any{
		"actionName": action.Name,
		"context":    rawContext,
		"timestamp":  s.now().UTC().Format(time.RFC3339),
	}
	sf.UpdatedAt = s.now()
	return resolved, nil
}

// Delete removes a surface and returns the deleteSurface message.
func (s *SurfaceStore) Delete(id string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.surfaces[id]; !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrSurfaceNotFound, id)
	}
	delete(s.surfaces, id)
	return Message{DeleteSurface: &DeleteSurface{SurfaceID: id}}, nil
}

// Get returns a copy of the surface.
func (s *SurfaceStore) Get(id string) (*Surface, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sf, ok := s.surfaces[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSurfaceNotFound, id)
	}
	return sf.clone(), nil
}

// List returns the IDs of all surfaces, sorted.
func (s *SurfaceStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.surfaces))
	for id := range s.surfaces {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Apply replays one agent-produced message. Updates to a surface that
// has not been opened create it; deleting an unknown surface is a no-op.
func (s *SurfaceStore) Apply(m Message) error {
	id := m.SurfaceID()
	if id == "" {
		return fmt.Errorf("apply %s: missing surfaceId", kindLabel(m))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if m.DeleteSurface != nil {
		delete(s.surfaces, id)
		return nil
	}

	sf, ok := s.surfaces[id]
	if !ok {
		sf = s.newSurface(id)
		s.surfaces[id] = sf
	}

	switch {
	case m.BeginRendering != nil:
		sf.Root = m.BeginRendering.Root
		sf.Styles = clonePtr(m.BeginRendering.Styles)
		sf.UpdatedAt = s.now()
	case m.SurfaceUpdate != nil:
		for _, c := range m.SurfaceUpdate.Components {
			sf.Components[c.ID] = c.clone()
		}
		sf.UpdatedAt = s.now()
	case m.DataModelUpdate != nil:
		s.applyLocked(sf, m.DataModelUpdate.AllPatches())
	}
	return nil
}

// ApplyAll replays a batch in order, stopping at the first error.
func (s *SurfaceStore) ApplyAll(msgs []Message) error {
	for i, m := range msgs {
		if err := s.Apply(m); err != nil {
			return fmt.Errorf("message %d: %w", i+1, err)
		}
	}
	return nil
}
