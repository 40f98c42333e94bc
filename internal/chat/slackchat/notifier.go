// Package slackchat implements chat.Notifier on top of the Slack Web API.
package slackchat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bissquit/incident-bot/internal/chat"
	"github.com/bissquit/incident-bot/internal/domain"
	"github.com/slack-go/slack"
	"golang.org/x/time/rate"
)

// Config holds Slack notifier configuration.
type Config struct {
	BotToken        string
	APIURL          string  // overrides the Slack API base URL, used in tests
	RateLimit       float64 // calls per second, 0 disables limiting
	PrivateChannels bool
}

// Notifier implements chat.Notifier for Slack.
type Notifier struct {
	client  *slack.Client
	limiter *rate.Limiter
	private bool
}

// NewNotifier creates a new Slack notifier.
func NewNotifier(cfg Config) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("slack notifier: bot token is required")
	}

	var opts []slack.Option
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(strings.TrimSuffix(cfg.APIURL, "/")+"/"))
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit)+1)
	}

	return &Notifier{
		client:  slack.New(cfg.BotToken, opts...),
		limiter: limiter,
		private: cfg.PrivateChannels,
	}, nil
}

// Client exposes the underlying Slack client for ephemeral responses.
func (n *Notifier) Client() *slack.Client {
	return n.client
}

// CreateChannel creates a conversation with the given name.
func (n *Notifier) CreateChannel(ctx context.Context, name string) (chat.Channel, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return chat.Channel{}, err
	}

	ch, err := n.client.CreateConversationContext(ctx, slack.CreateConversationParams{
		ChannelName: name,
		IsPrivate:   n.private,
	})
	if err != nil {
		if isSlackError(err, "name_taken") {
			return chat.Channel{}, fmt.Errorf("create channel %s: %w", name, chat.ErrChannelNameTaken)
		}
		return chat.Channel{}, fmt.Errorf("create channel %s: %w", name, err)
	}

	return chat.Channel{ID: ch.ID, Name: ch.Name}, nil
}

// PostMessage posts msg to a channel.
func (n *Notifier) PostMessage(ctx context.Context, channelID string, msg chat.Message) (domain.MessageRef, error) {
	return n.post(ctx, channelID, msg)
}

// PostThreadReply posts msg as a reply in the thread of parent.
func (n *Notifier) PostThreadReply(ctx context.Context, parent domain.MessageRef, msg chat.Message) (domain.MessageRef, error) {
	return n.post(ctx, parent.ChannelID, msg, slack.MsgOptionTS(parent.Timestamp))
}

func (n *Notifier) post(ctx context.Context, channelID string, msg chat.Message, extra ...slack.MsgOption) (domain.MessageRef, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return domain.MessageRef{}, err
	}

	opts := append(messageOptions(msg), extra...)
	channel, ts, err := n.client.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		return domain.MessageRef{}, fmt.Errorf("post message to %s: %w", channelID, err)
	}

	return domain.MessageRef{ChannelID: channel, Timestamp: ts}, nil
}

// UpdateMessage replaces the content of a sent message.
func (n *Notifier) UpdateMessage(ctx context.Context, ref domain.MessageRef, msg chat.Message) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}

	if _, _, _, err := n.client.UpdateMessageContext(ctx, ref.ChannelID, ref.Timestamp, messageOptions(msg)...); err != nil {
		if isSlackError(err, "message_not_found") {
			return fmt.Errorf("update message %s: %w", ref.Timestamp, chat.ErrMessageNotFound)
		}
		return fmt.Errorf("update message %s: %w", ref.Timestamp, err)
	}
	return nil
}

// DeleteMessage deletes a sent message.
func (n *Notifier) DeleteMessage(ctx context.Context, ref domain.MessageRef) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}

	if _, _, err := n.client.DeleteMessageContext(ctx, ref.ChannelID, ref.Timestamp); err != nil {
		if isSlackError(err, "message_not_found") {
			return fmt.Errorf("delete message %s: %w", ref.Timestamp, chat.ErrMessageNotFound)
		}
		return fmt.Errorf("delete message %s: %w", ref.Timestamp, err)
	}
	return nil
}

// PinMessage pins a message in its channel. Already pinned messages are not an error.
func (n *Notifier) PinMessage(ctx context.Context, ref domain.MessageRef) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}

	err := n.client.AddPinContext(ctx, ref.ChannelID, slack.NewRefToMessage(ref.ChannelID, ref.Timestamp))
	if err != nil && !isSlackError(err, "already_pinned") {
		return fmt.Errorf("pin message %s: %w", ref.Timestamp, err)
	}
	return nil
}

// InviteUser invites a user to a channel. Existing members are not an error.
func (n *Notifier) InviteUser(ctx context.Context, channelID, userID string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := n.client.InviteUsersToConversationContext(ctx, channelID, userID)
	if err != nil {
		if isSlackError(err, "already_in_channel") {
			slog.Debug("user already in channel", "channel_id", channelID, "user_id", userID)
			return nil
		}
		return fmt.Errorf("invite %s to %s: %w", userID, channelID, err)
	}
	return nil
}

// IsMember reports whether userID is a member of channelID.
func (n *Notifier) IsMember(ctx context.Context, channelID, userID string) (bool, error) {
	params := &slack.GetUsersInConversationParameters{ChannelID: channelID, Limit: 200}

	for {
		if err := n.limiter.Wait(ctx); err != nil {
			return false, err
		}

		members, cursor, err := n.client.GetUsersInConversationContext(ctx, params)
		if err != nil {
			return false, fmt.Errorf("list members of %s: %w", channelID, err)
		}
		for _, m := range members {
			if m == userID {
				return true, nil
			}
		}
		if cursor == "" {
			return false, nil
		}
		params.Cursor = cursor
	}
}

// SendDirect sends msg to a user's direct message channel.
func (n *Notifier) SendDirect(ctx context.Context, userID string, msg chat.Message) error {
	if _, err := n.post(ctx, userID, msg); err != nil {
		return fmt.Errorf("send direct message: %w", err)
	}
	return nil
}

func isSlackError(err error, code string) bool {
	return err != nil && strings.Contains(err.Error(), code)
}
