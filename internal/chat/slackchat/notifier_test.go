package slackchat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bissquit/incident-bot/internal/chat"
	"github.com/bissquit/incident-bot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNotifier(t *testing.T, handler http.HandlerFunc) *Notifier {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	n, err := NewNotifier(Config{BotToken: "xoxb-test", APIURL: server.URL})
	require.NoError(t, err)
	return n
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestNewNotifier_RequiresToken(t *testing.T) {
	_, err := NewNotifier(Config{})
	assert.Error(t, err)
}

func TestNotifier_CreateChannel(t *testing.T) {
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations.create", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "inc-202401011200-db-down", r.FormValue("name"))

		writeJSON(t, w, map[string]any{
			"ok":      true,
			"channel": map[string]any{"id": "C123", "name": "inc-202401011200-db-down"},
		})
	})

	ch, err := n.CreateChannel(context.Background(), "inc-202401011200-db-down")
	require.NoError(t, err)
	assert.Equal(t, "C123", ch.ID)
	assert.Equal(t, "inc-202401011200-db-down", ch.Name)
}

func TestNotifier_CreateChannel_NameTaken(t *testing.T) {
	n := newTestNotifier(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{"ok": false, "error": "name_taken"})
	})

	_, err := n.CreateChannel(context.Background(), "inc-x")
	assert.ErrorIs(t, err, chat.ErrChannelNameTaken)
}

func TestNotifier_PostMessage_WithBlocks(t *testing.T) {
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat.postMessage", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "C123", r.FormValue("channel"))
		assert.Equal(t, "status changed", r.FormValue("text"))

		var blocks []map[string]any
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("blocks")), &blocks))
		require.Len(t, blocks, 2)
		assert.Equal(t, "section", blocks[0]["type"])
		assert.Equal(t, "actions", blocks[1]["type"])
		assert.Equal(t, "status", blocks[1]["block_id"])

		writeJSON(t, w, map[string]any{"ok": true, "channel": "C123", "ts": "1700000000.000100"})
	})

	msg := chat.Message{
		Text: "status changed",
		Sections: []chat.Section{
			{Kind: chat.SectionText, Text: "*Status* changed"},
			{ID: "status", Kind: chat.SectionActions, Controls: []chat.Control{{
				Kind:     chat.ControlStaticSelect,
				ActionID: "incident.set_status",
				Label:    "Status",
				Options:  []chat.Option{{Value: "investigating", Label: "Investigating"}},
				Selected: "investigating",
			}}},
		},
	}

	ref, err := n.PostMessage(context.Background(), "C123", msg)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageRef{ChannelID: "C123", Timestamp: "1700000000.000100"}, ref)
}

func TestNotifier_PostThreadReply(t *testing.T) {
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "1.1", r.FormValue("thread_ts"))
		writeJSON(t, w, map[string]any{"ok": true, "channel": "C1", "ts": "1.2"})
	})

	ref, err := n.PostThreadReply(context.Background(), domain.MessageRef{ChannelID: "C1", Timestamp: "1.1"}, chat.Plain("update"))
	require.NoError(t, err)
	assert.Equal(t, "1.2", ref.Timestamp)
}

func TestNotifier_UpdateMessage(t *testing.T) {
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat.update", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "1.1", r.FormValue("ts"))
		writeJSON(t, w, map[string]any{"ok": true, "channel": "C1", "ts": "1.1", "text": "x"})
	})

	err := n.UpdateMessage(context.Background(), domain.MessageRef{ChannelID: "C1", Timestamp: "1.1"}, chat.Plain("x"))
	assert.NoError(t, err)
}

func TestNotifier_UpdateMessage_NotFound(t *testing.T) {
	n := newTestNotifier(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{"ok": false, "error": "message_not_found"})
	})

	err := n.UpdateMessage(context.Background(), domain.MessageRef{ChannelID: "C1", Timestamp: "1.1"}, chat.Plain("x"))
	assert.ErrorIs(t, err, chat.ErrMessageNotFound)
}

func TestNotifier_InviteUser_AlreadyInChannel(t *testing.T) {
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations.invite", r.URL.Path)
		writeJSON(t, w, map[string]any{"ok": false, "error": "already_in_channel"})
	})

	assert.NoError(t, n.InviteUser(context.Background(), "C1", "U1"))
}

func TestNotifier_InviteUser_Error(t *testing.T) {
	n := newTestNotifier(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{"ok": false, "error": "channel_not_found"})
	})

	err := n.InviteUser(context.Background(), "C1", "U1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
}

func TestNotifier_PinMessage_AlreadyPinned(t *testing.T) {
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pins.add", r.URL.Path)
		writeJSON(t, w, map[string]any{"ok": false, "error": "already_pinned"})
	})

	assert.NoError(t, n.PinMessage(context.Background(), domain.MessageRef{ChannelID: "C1", Timestamp: "1.1"}))
}

func TestNotifier_IsMember_Paginates(t *testing.T) {
	calls := 0
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.NoError(t, r.ParseForm())
		if r.FormValue("cursor") == "" {
			writeJSON(t, w, map[string]any{
				"ok":                true,
				"members":           []string{"U1", "U2"},
				"response_metadata": map[string]string{"next_cursor": "page2"},
			})
			return
		}
		writeJSON(t, w, map[string]any{
			"ok":                true,
			"members":           []string{"U3"},
			"response_metadata": map[string]string{"next_cursor": ""},
		})
	})

	ok, err := n.IsMember(context.Background(), "C1", "U3")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, calls)

	ok, err = n.IsMember(context.Background(), "C1", "U9")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestToBlocks_UserSelectAndButton(t *testing.T) {
	blocks := toBlocks([]chat.Section{
		{Kind: chat.SectionHeader, Text: "Incident"},
		{ID: "roles", Kind: chat.SectionActions, Controls: []chat.Control{
			{Kind: chat.ControlUserSelect, ActionID: "incident.assign_role", Label: "Assign", Selected: "U1"},
			{Kind: chat.ControlButton, ActionID: "incident.claim_role", Label: "Claim", Value: "incident_commander"},
		}},
		{Kind: chat.SectionDivider},
		{Kind: chat.SectionContext, Text: "footer"},
	})

	require.Len(t, blocks, 4)
	raw, err := json.Marshal(blocks[1])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"initial_user":"U1"`)
	assert.Contains(t, string(raw), `"value":"incident_commander"`)
}
