// Package chat defines the chat platform abstraction used by the incident lifecycle.
package chat

import (
	"context"
	"errors"

	"github.com/bissquit/incident-bot/internal/domain"
)

// Notifier errors.
var (
	ErrChannelNameTaken = errors.New("channel name already taken")
	ErrMessageNotFound  = errors.New("message not found")
)

// Channel is a created chat channel.
type Channel struct {
	ID   string
	Name string
}

// Notifier sends and edits messages on a chat platform.
type Notifier interface {
	CreateChannel(ctx context.Context, name string) (Channel, error)
	PostMessage(ctx context.Context, channelID string, msg Message) (domain.MessageRef, error)
	PostThreadReply(ctx context.Context, parent domain.MessageRef, msg Message) (domain.MessageRef, error)
	UpdateMessage(ctx context.Context, ref domain.MessageRef, msg Message) error
	DeleteMessage(ctx context.Context, ref domain.MessageRef) error
	PinMessage(ctx context.Context, ref domain.MessageRef) error
	InviteUser(ctx context.Context, channelID, userID string) error
	IsMember(ctx context.Context, channelID, userID string) (bool, error)
	SendDirect(ctx context.Context, userID string, msg Message) error
}
