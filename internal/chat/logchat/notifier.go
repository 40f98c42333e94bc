// Package logchat is a chat.Notifier that only logs. It backs the bot when
// Slack is disabled, e.g. for local runs driven through the REST API.
package logchat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bissquit/incident-bot/internal/chat"
	"github.com/bissquit/incident-bot/internal/domain"
)

// Notifier implements chat.Notifier by writing every call to a logger.
type Notifier struct {
	logger *slog.Logger

	mu       sync.Mutex
	seq      int
	channels map[string]string
	members  map[string]map[string]bool
}

// NewNotifier creates a new logging notifier.
func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{
		logger:   logger.With("component", "logchat"),
		channels: make(map[string]string),
		members:  make(map[string]map[string]bool),
	}
}

func (n *Notifier) next(prefix string) string {
	n.seq++
	return fmt.Sprintf("%s%06d", prefix, n.seq)
}

// CreateChannel registers a channel. Names are unique.
func (n *Notifier) CreateChannel(ctx context.Context, name string) (chat.Channel, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.channels[name]; ok {
		return chat.Channel{}, chat.ErrChannelNameTaken
	}
	id := n.next("L")
	n.channels[name] = id
	n.logger.InfoContext(ctx, "channel created", "channel_id", id, "name", name)
	return chat.Channel{ID: id, Name: name}, nil
}

func (n *Notifier) PostMessage(ctx context.Context, channelID string, msg chat.Message) (domain.MessageRef, error) {
	n.mu.Lock()
	ts := n.next("ts.")
	n.mu.Unlock()

	n.logger.InfoContext(ctx, "message posted", "channel_id", channelID, "ts", ts, "text", msg.Text)
	return domain.MessageRef{ChannelID: channelID, Timestamp: ts}, nil
}

func (n *Notifier) PostThreadReply(ctx context.Context, parent domain.MessageRef, msg chat.Message) (domain.MessageRef, error) {
	n.mu.Lock()
	ts := n.next("ts.")
	n.mu.Unlock()

	n.logger.InfoContext(ctx, "thread reply posted", "channel_id", parent.ChannelID, "thread_ts", parent.Timestamp, "text", msg.Text)
	return domain.MessageRef{ChannelID: parent.ChannelID, Timestamp: ts}, nil
}

func (n *Notifier) UpdateMessage(ctx context.Context, ref domain.MessageRef, msg chat.Message) error {
	n.logger.InfoContext(ctx, "message updated", "channel_id", ref.ChannelID, "ts", ref.Timestamp, "text", msg.Text)
	return nil
}

func (n *Notifier) DeleteMessage(ctx context.Context, ref domain.MessageRef) error {
	n.logger.InfoContext(ctx, "message deleted", "channel_id", ref.ChannelID, "ts", ref.Timestamp)
	return nil
}

func (n *Notifier) PinMessage(ctx context.Context, ref domain.MessageRef) error {
	n.logger.DebugContext(ctx, "message pinned", "channel_id", ref.ChannelID, "ts", ref.Timestamp)
	return nil
}

func (n *Notifier) InviteUser(ctx context.Context, channelID, userID string) error {
	n.mu.Lock()
	if n.members[channelID] == nil {
		n.members[channelID] = make(map[string]bool)
	}
	n.members[channelID][userID] = true
	n.mu.Unlock()

	n.logger.InfoContext(ctx, "user invited", "channel_id", channelID, "user", userID)
	return nil
}

func (n *Notifier) IsMember(_ context.Context, channelID, userID string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.members[channelID][userID], nil
}

func (n *Notifier) SendDirect(ctx context.Context, userID string, msg chat.Message) error {
	n.logger.InfoContext(ctx, "direct message sent", "user", userID, "text", msg.Text)
	return nil
}
