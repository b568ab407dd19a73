package service

import (
	"context"

	"fleetchat/internal/domain/entity"
)

type NotificationResult string

const (
	NotificationSent    NotificationResult = "sent"
	NotificationSkipped NotificationResult = "skipped"
	NotificationFailed  NotificationResult = "failed"
)

type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// NotificationDispatcher delivers a push notification to one recipient.
// Delivery failures must not surface to message senders; dispatchers report
// them through the result and (for transport faults) the error.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, recipient *entity.User, notification *Notification) (NotificationResult, error)
}

// NoopDispatcher skips every notification. Used in tests and environments
// without push credentials.
type NoopDispatcher struct{}

func (NoopDispatcher) Dispatch(ctx context.Context, recipient *entity.User, notification *Notification) (NotificationResult, error) {
	return NotificationSkipped, nil
}

// MessageNotification derives the push payload for a direct message.
// Admin-to-customer pushes carry the brand title so customers see the
// product, not an operator's name.
func MessageNotification(brandTitle string, sender *entity.User, msg *entity.Message) *Notification {
	title := sender.DisplayName()
	if sender.Role == entity.RoleAdmin {
		title = brandTitle
	}
	return &Notification{
		Title: title,
		Body:  notificationBody(msg),
		Data: map[string]string{
			"type":           "new_message",
			"conversationId": msg.ConversationID,
			"messageId":      msg.ID,
			"senderId":       msg.SenderID,
			"messageType":    msg.Type,
		},
	}
}

// GroupMessageNotification derives the push payload for a group message.
func GroupMessageNotification(groupName string, sender *entity.User, msg *entity.Message) *Notification {
	return &Notification{
		Title: "💬 " + groupName,
		Body:  sender.DisplayName() + ": " + notificationBody(msg),
		Data: map[string]string{
			"type":           "new_group_message",
			"conversationId": msg.ConversationID,
			"groupId":        msg.GroupID,
			"messageId":      msg.ID,
			"senderId":       msg.SenderID,
			"messageType":    msg.Type,
		},
	}
}

func notificationBody(msg *entity.Message) string {
	if msg.Type == entity.MessageTypeText {
		return msg.Text
	}
	return msg.Preview()
}
