package client

import "context"

// MailerInterface delivers one template e-mail.
type MailerInterface interface {
	Send(ctx context.Context, template string, body map[string]any) error
}

// EventPublisherInterface mirrors notification outcomes to the event bus.
type EventPublisherInterface interface {
	PublishNotification(ctx context.Context, event *NotificationEvent)
}

var (
	_ MailerInterface         = (*MailerClient)(nil)
	_ EventPublisherInterface = (*NotificationPublisher)(nil)
)
