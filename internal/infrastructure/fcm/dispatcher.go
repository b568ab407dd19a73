package fcm

import (
	"context"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"

	"fleetchat/internal/domain/entity"
	"fleetchat/internal/domain/repository"
	"fleetchat/internal/domain/service"
	"fleetchat/pkg/errors"
	"fleetchat/pkg/logger"
)

// sender is the slice of the FCM client the dispatcher needs.
type sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// Dispatcher delivers pushes through Firebase Cloud Messaging. A recipient
// without a token is skipped; a token the provider reports as unregistered
// is cleared from the user record so the next refresh starts clean.
type Dispatcher struct {
	client       sender
	userRepo     repository.UserRepository
	timeout      time.Duration
	invalidToken func(error) bool
}

func NewDispatcher(ctx context.Context, app *firebase.App, userRepo repository.UserRepository, timeout time.Duration) (*Dispatcher, error) {
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, errors.Internal("Failed to initialize messaging client", err)
	}
	return &Dispatcher{
		client:       client,
		userRepo:     userRepo,
		timeout:      timeout,
		invalidToken: messaging.IsRegistrationTokenNotRegistered,
	}, nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, recipient *entity.User, notification *service.Notification) (service.NotificationResult, error) {
	if recipient.PushToken == "" {
		return service.NotificationSkipped, nil
	}

	msg := &messaging.Message{
		Token: recipient.PushToken,
		Notification: &messaging.Notification{
			Title: notification.Title,
			Body:  notification.Body,
		},
		Data: withClickAction(notification.Data),
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: "fleetchat_messages",
				Sound:     "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
					Badge: intPtr(1),
				},
			},
		},
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if _, err := d.client.Send(sendCtx, msg); err != nil {
		if d.invalidToken(err) {
			if clearErr := d.userRepo.ClearPushToken(ctx, recipient.ID); clearErr != nil {
				logger.Error("Failed to clear dead push token for %s: %v", recipient.ID, clearErr)
			} else {
				logger.Info("Cleared dead push token for %s", recipient.ID)
			}
			return service.NotificationSkipped, nil
		}
		return service.NotificationFailed, errors.DeliveryFailed("Push delivery failed", err)
	}

	return service.NotificationSent, nil
}

func withClickAction(data map[string]string) map[string]string {
	out := make(map[string]string, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out["click_action"] = "FLUTTER_NOTIFICATION_CLICK"
	return out
}

func intPtr(n int) *int { return &n }
