package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lennartpollvogt/mochi-server/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestStore_CreateAndGet(t *testing.T) {
	s := newTestStore(t)

	doc, err := s.Create("llama3", nil)
	require.NoError(t, err)
	assert.Equal(t, types.FormatVersion, doc.Metadata.FormatVersion)
	assert.Equal(t, "llama3", doc.Metadata.Model)

	got, err := s.Get(doc.Metadata.SessionID)
	require.NoError(t, err)
	assert.Equal(t, doc.Metadata.SessionID, got.Metadata.SessionID)
}

func TestStore_Create_WithSystemMessage(t *testing.T) {
	s := newTestStore(t)
	sys := types.NewSystemMessage("be terse", nil)

	doc, err := s.Create("llama3", &sys)
	require.NoError(t, err)
	require.Len(t, doc.Messages, 1)
	assert.Equal(t, types.RoleSystem, doc.Messages[0].Role)
}

func TestStore_Get_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Delete_IdempotentOnMissing(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Delete("missing"))
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)
	doc, err := s.Create("llama3", nil)
	require.NoError(t, err)

	require.NoError(t, s.Delete(doc.Metadata.SessionID))
	_, err = s.Get(doc.Metadata.SessionID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_AppendMessage(t *testing.T) {
	s := newTestStore(t)
	doc, err := s.Create("llama3", nil)
	require.NoError(t, err)

	msg := types.NewUserMessage("hello")
	require.NoError(t, s.AppendMessage(doc, msg))

	got, err := s.Get(doc.Metadata.SessionID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hello", got.Messages[0].Content)
	assert.Equal(t, 1, got.Metadata.MessageCount)
}

func TestStore_EditMessage(t *testing.T) {
	s := newTestStore(t)
	doc, err := s.Create("llama3", nil)
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(doc, types.NewUserMessage("first")))
	require.NoError(t, s.AppendMessage(doc, types.NewAssistantMessage("reply", "llama3", 1, 1, nil)))
	require.NoError(t, s.AppendMessage(doc, types.NewUserMessage("second")))

	require.NoError(t, s.EditMessage(doc, 0, "edited"))

	assert.Equal(t, "edited", doc.Messages[0].Content)
	assert.Len(t, doc.Messages, 1, "editing truncates every later message")
}

func TestStore_EditMessage_InvalidIndex(t *testing.T) {
	s := newTestStore(t)
	doc, err := s.Create("llama3", nil)
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(doc, types.NewUserMessage("first")))

	assert.ErrorIs(t, s.EditMessage(doc, 5, "x"), ErrInvalidIndex)
	assert.ErrorIs(t, s.EditMessage(doc, -1, "x"), ErrInvalidIndex)
}

func TestStore_EditMessage_NonUserTarget(t *testing.T) {
	s := newTestStore(t)
	doc, err := s.Create("llama3", nil)
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(doc, types.NewAssistantMessage("reply", "llama3", 1, 1, nil)))

	assert.ErrorIs(t, s.EditMessage(doc, 0, "x"), ErrInvalidIndex)
}

func TestStore_SetAndRemoveSystemMessage(t *testing.T) {
	s := newTestStore(t)
	doc, err := s.Create("llama3", nil)
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(doc, types.NewUserMessage("hi")))

	require.NoError(t, s.SetSystemMessage(doc, "be terse", nil))
	require.Len(t, doc.Messages, 2)
	assert.Equal(t, types.RoleSystem, doc.Messages[0].Role)
	assert.Equal(t, "be terse", doc.Messages[0].Content)

	require.NoError(t, s.SetSystemMessage(doc, "be verbose", nil))
	require.Len(t, doc.Messages, 2, "replacing the system message must not insert a second one")
	assert.Equal(t, "be verbose", doc.Messages[0].Content)

	require.NoError(t, s.RemoveSystemMessage(doc))
	require.Len(t, doc.Messages, 1)
	assert.Equal(t, types.RoleUser, doc.Messages[0].Role)
}

func TestStore_List_SortedByUpdatedAtDescending(t *testing.T) {
	s := newTestStore(t)
	first, err := s.Create("llama3", nil)
	require.NoError(t, err)
	second, err := s.Create("llama3", nil)
	require.NoError(t, err)

	require.NoError(t, s.AppendMessage(second, types.NewUserMessage("touch second last")))

	summaries, err := s.List()
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, second.Metadata.SessionID, summaries[0].SessionID)
	assert.Equal(t, first.Metadata.SessionID, summaries[1].SessionID)
}

func TestStore_List_PreviewFromFirstUserMessage(t *testing.T) {
	s := newTestStore(t)
	sys := types.NewSystemMessage("be terse", nil)
	doc, err := s.Create("llama3", &sys)
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(doc, types.NewUserMessage("what is the weather")))

	summaries, err := s.List()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "what is the weather", summaries[0].Preview)
}

// TestStore_Get_MigratesLegacyDocument writes a raw format_version "1.0"
// document directly to disk, bypassing Create, and asserts Get backfills
// every field introduced by later schema versions (spec.md §6.4) without
// disturbing the caller-supplied fields that already existed.
func TestStore_Get_MigratesLegacyDocument(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	legacy := map[string]any{
		"metadata": map[string]any{
			"session_id":     "legacy-session",
			"model":          "llama3",
			"created_at":     "2024-01-01T00:00:00Z",
			"updated_at":     "2024-01-01T00:00:00Z",
			"message_count":  1,
			"format_version": "1.0",
		},
		"messages": []map[string]any{
			{
				"id":        "m1",
				"role":      "user",
				"content":   "hello",
				"timestamp": "2024-01-01T00:00:00Z",
			},
		},
	}
	data, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "legacy-session.json"), data, 0o644))

	doc, err := s.Get("legacy-session")
	require.NoError(t, err)

	assert.Equal(t, types.FormatVersion, doc.Metadata.FormatVersion)
	assert.Equal(t, types.PolicyAlwaysConfirm, doc.Metadata.ToolSettings.Policy, "tool_settings backfilled from 1.0->1.1")
	assert.Empty(t, doc.Metadata.AgentSettings.Enabled, "agent_settings backfilled from 1.2->1.3 with its own default")
	assert.Equal(t, 8192, doc.Metadata.ContextWindowConfig.CurrentWindow, "context_window_config backfilled from 1.1->1.2")
	assert.Equal(t, "hello", doc.Messages[0].Content, "pre-existing fields are untouched by migration")
}

func TestStore_Get_PartiallyMigratedDocument_KeepsExistingFields(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	doc := map[string]any{
		"metadata": map[string]any{
			"session_id":     "partial-session",
			"model":          "llama3",
			"created_at":     "2024-01-01T00:00:00Z",
			"updated_at":     "2024-01-01T00:00:00Z",
			"message_count":  0,
			"format_version": "1.1",
			"tool_settings":  map[string]any{"enabled": []string{"echo"}, "policy": "never_confirm"},
		},
		"messages": []map[string]any{},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "partial-session.json"), data, 0o644))

	got, err := s.Get("partial-session")
	require.NoError(t, err)
	assert.Equal(t, types.FormatVersion, got.Metadata.FormatVersion)
	assert.Equal(t, types.PolicyNeverConfirm, got.Metadata.ToolSettings.Policy, "migration must not overwrite an existing tool_settings value")
	assert.Equal(t, []string{"echo"}, got.Metadata.ToolSettings.Enabled)
}

func TestStore_Get_CorruptJSON(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644))

	_, err = s.Get("broken")
	var corrupt *ErrCorrupt
	assert.ErrorAs(t, err, &corrupt)
}

func TestStore_Get_DuplicateSystemMessages_IsCorrupt(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	doc := map[string]any{
		"metadata": map[string]any{
			"session_id":     "dup-system",
			"model":          "llama3",
			"created_at":     "2024-01-01T00:00:00Z",
			"updated_at":     "2024-01-01T00:00:00Z",
			"format_version": types.FormatVersion,
		},
		"messages": []map[string]any{
			{"id": "a", "role": "system", "content": "one", "timestamp": "2024-01-01T00:00:00Z"},
			{"id": "b", "role": "system", "content": "two", "timestamp": "2024-01-01T00:00:00Z"},
		},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dup-system.json"), data, 0o644))

	_, err = s.Get("dup-system")
	var corrupt *ErrCorrupt
	assert.ErrorAs(t, err, &corrupt)
}
