package agent

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newSQLiteTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	s, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func storeImpls(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": newSQLiteTestStore(t),
	}
}

func testSession(id, user string, updated time.Time) *Session {
	return &Session{
		ID:        id,
		CreatedAt: updated,
		UpdatedAt: updated,
		Messages:  []SessionMessage{},
		Context: SessionContext{
			UserID:            user,
			AppName:           "fleetd",
			SessionState:      map[string]string{},
			ConversationState: StateInitial,
		},
		ToolsUsed: []string{},
	}
}

func TestStore_CRUD(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	for name, s := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.Create(ctx, testSession("a", "u1", base)); err != nil {
				t.Fatalf("Create: %v", err)
			}
			if err := s.Create(ctx, testSession("a", "u1", base)); err == nil {
				t.Error("duplicate Create succeeded")
			}

			updated, err := s.Update(ctx, "a", func(sess *Session) error {
				sess.Messages = append(sess.Messages, SessionMessage{
					ID:        "m1",
					Role:      RoleAssistant,
					Content:   "hello",
					Timestamp: base,
					Metadata: &MessageMetadata{
						ToolCalls: []ToolCall{{
							Name:       ToolGetContactInfo,
							Parameters: map[string]any{"name": "alice"},
							Result:     &ToolResult{Success: true, Data: []any{map[string]any{"name": "Alice"}}},
						}},
						UIComponents:     []string{"beginRendering"},
						ValidationStatus: ValidationValid,
						ModelUsed:        "gpt-4o-mini",
					},
					A2UI: json.RawMessage(`[{"deleteSurface":{"surfaceId":"main"}}]`),
				})
				sess.Context.SessionState["k"] = "v"
				sess.Context.ConversationState = StateComplete
				sess.ToolsUsed = append(sess.ToolsUsed, ToolGetContactInfo)
				sess.UpdatedAt = base.Add(time.Minute)
				return nil
			})
			if err != nil {
				t.Fatalf("Update: %v", err)
			}
			if len(updated.Messages) != 1 {
				t.Fatalf("Update returned %d messages", len(updated.Messages))
			}

			got, err := s.Get(ctx, "a")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !got.UpdatedAt.Equal(base.Add(time.Minute)) || !got.CreatedAt.Equal(base) {
				t.Errorf("times = %v / %v", got.CreatedAt, got.UpdatedAt)
			}
			if got.Context.SessionState["k"] != "v" || got.Context.ConversationState != StateComplete {
				t.Errorf("context = %+v", got.Context)
			}
			if len(got.ToolsUsed) != 1 || got.ToolsUsed[0] != ToolGetContactInfo {
				t.Errorf("ToolsUsed = %v", got.ToolsUsed)
			}
			m := got.Messages[0]
			if m.Metadata == nil || m.Metadata.ModelUsed != "gpt-4o-mini" || len(m.Metadata.ToolCalls) != 1 {
				t.Fatalf("metadata = %+v", m.Metadata)
			}
			if r := m.Metadata.ToolCalls[0].Result; r == nil || !r.Success {
				t.Errorf("tool result = %+v", r)
			}
			msgs, err := m.A2UIMessages()
			if err != nil || len(msgs) != 1 || msgs[0].SurfaceID() != "main" {
				t.Errorf("A2UIMessages = %v, %v", msgs, err)
			}

			// The result must still encode as JSON after a round trip.
			if _, err := json.Marshal(got); err != nil {
				t.Errorf("Marshal: %v", err)
			}

			if err := s.Delete(ctx, "a"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrSessionNotFound) {
				t.Errorf("Get after delete: %v", err)
			}
			if err := s.Delete(ctx, "a"); !errors.Is(err, ErrSessionNotFound) {
				t.Errorf("second Delete: %v", err)
			}
			if _, err := s.Update(ctx, "a", func(*Session) error { return nil }); !errors.Is(err, ErrSessionNotFound) {
				t.Errorf("Update missing: %v", err)
			}
		})
	}
}

func TestStore_UpdateErrorDiscardsChanges(t *testing.T) {
	for name, s := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.Create(ctx, testSession("a", "u1", time.Now())); err != nil {
				t.Fatalf("Create: %v", err)
			}
			boom := errors.New("boom")
			_, err := s.Update(ctx, "a", func(sess *Session) error {
				sess.BaseURL = "http://changed"
				return boom
			})
			if !errors.Is(err, boom) {
				t.Fatalf("Update err = %v", err)
			}
			got, _ := s.Get(ctx, "a")
			if got.BaseURL != "" {
				t.Errorf("failed update leaked: BaseURL = %q", got.BaseURL)
			}
		})
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	for name, s := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.Create(ctx, testSession("a", "u1", time.Now())); err != nil {
				t.Fatalf("Create: %v", err)
			}
			got, _ := s.Get(ctx, "a")
			got.Context.SessionState["x"] = "y"
			got.ToolsUsed = append(got.ToolsUsed, "t")

			again, _ := s.Get(ctx, "a")
			if len(again.Context.SessionState) != 0 || len(again.ToolsUsed) != 0 {
				t.Errorf("caller mutation reached the store: %+v", again)
			}
		})
	}
}

func TestStore_ToolCallsAreCopied(t *testing.T) {
	for name, s := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sess := testSession("a", "u1", time.Now())
			params := map[string]any{"name": "alice", "filters": map[string]any{"dept": "sales"}}
			result := &ToolResult{Success: true, Data: map[string]any{"count": 1.0}}
			sess.Messages = []SessionMessage{{
				ID:   "m1",
				Role: RoleAssistant,
				Metadata: &MessageMetadata{ToolCalls: []ToolCall{
					{Name: "get_contact_info", Parameters: params, Result: result},
				}},
			}}
			if err := s.Create(ctx, sess); err != nil {
				t.Fatalf("Create: %v", err)
			}
			params["name"] = "created"
			result.Success = false

			got, _ := s.Get(ctx, "a")
			tc := got.Messages[0].Metadata.ToolCalls[0]
			tc.Parameters["name"] = "MUTATED"
			tc.Parameters["filters"].(map[string]any)["dept"] = "MUTATED"
			tc.Result.Data.(map[string]any)["count"] = 9.0
			tc.Result.Error = "MUTATED"

			// A tool result handed in through Update stays with the caller.
			shared := &ToolResult{Success: true, Data: map[string]any{"ok": true}}
			if _, err := s.Update(ctx, "a", func(sess *Session) error {
				sess.Messages[0].Metadata.ToolCalls[0].Result = shared
				return nil
			}); err != nil {
				t.Fatalf("Update: %v", err)
			}
			shared.Data.(map[string]any)["ok"] = false

			again, _ := s.Get(ctx, "a")
			tc = again.Messages[0].Metadata.ToolCalls[0]
			if tc.Parameters["name"] != "alice" {
				t.Errorf("name param = %v, want alice", tc.Parameters["name"])
			}
			if dept := tc.Parameters["filters"].(map[string]any)["dept"]; dept != "sales" {
				t.Errorf("dept param = %v, want sales", dept)
			}
			if tc.Result.Error != "" || tc.Result.Data.(map[string]any)["ok"] != true {
				t.Errorf("result = %+v", tc.Result)
			}
		})
	}
}

func TestCloneValue(t *testing.T) {
	type row struct {
		Name string `json:"name"`
	}
	typed := []row{{Name: "a"}}
	got := cloneValue(typed).([]any)
	typed[0].Name = "b"
	if got[0].(map[string]any)["name"] != "a" {
		t.Errorf("clone = %#v", got)
	}
	if cloneValue(nil) != nil {
		t.Error("cloneValue(nil) != nil")
	}
	if cloneValue("x") != "x" {
		t.Error("strings pass through")
	}
}

func TestStore_List(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for name, s := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, sess := range []*Session{
				testSession("old", "u1", base),
				testSession("new", "u1", base.Add(2*time.Hour)),
				testSession("mid-b", "u2", base.Add(time.Hour)),
				testSession("mid-a", "u1", base.Add(time.Hour)),
			} {
				if err := s.Create(ctx, sess); err != nil {
					t.Fatalf("Create: %v", err)
				}
			}

			tests := []struct {
				user string
				want []string
			}{
				{"", []string{"new", "mid-a", "mid-b", "old"}},
				{"u1", []string{"new", "mid-a", "old"}},
				{"u2", []string{"mid-b"}},
				{"nobody", []string{}},
			}
			for _, tt := range tests {
				got, err := s.List(ctx, tt.user)
				if err != nil {
					t.Fatalf("List(%q): %v", tt.user, err)
				}
				if len(got) != len(tt.want) {
					t.Errorf("List(%q) = %v, want %v", tt.user, got, tt.want)
					continue
				}
				for i := range got {
					if got[i] != tt.want[i] {
						t.Errorf("List(%q) = %v, want %v", tt.user, got, tt.want)
						break
					}
				}
			}
		})
	}
}

func TestOpenSQLite_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	ctx := context.Background()

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := s.Create(ctx, testSession("keep", "u1", time.Now())); err != nil {
		t.Fatalf("Create: %v", err)
	}
	s.Close()

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if _, err := s.Get(ctx, "keep"); err != nil {
		t.Errorf("Get after reopen: %v", err)
	}
}

func TestSessionRecent(t *testing.T) {
	s := testSession("a", "u", time.Now())
	for _, c := range []string{"1", "2", "3", "4"} {
		s.Messages = append(s.Messages, SessionMessage{Content: c})
	}
	tests := []struct {
		limit int
		want  string
	}{
		{0, ""},
		{2, "23"},
		{10, "123"},
	}
	for _, tt := range tests {
		var got string
		for _, m := range s.recent(tt.limit) {
			got += m.Content
		}
		if got != tt.want {
			t.Errorf("recent(%d) = %q, want %q", tt.limit, got, tt.want)
		}
	}
}
