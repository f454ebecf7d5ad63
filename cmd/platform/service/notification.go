package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/exprsn/platform/common/clients"
	"github.com/exprsn/platform/common/logger"
	"github.com/exprsn/platform/common/queue"
)

// NotificationTopic is the queue topic drained by the Herald forwarder
const NotificationTopic = "notifications"

// Notifier delivers notifications and email. *clients.HeraldClient
// satisfies it.
type Notifier interface {
	Notify(ctx context.Context, n clients.Notification) error
	SendEmail(ctx context.Context, e clients.Email) error
}

// EventPublisher pushes real-time events. *clients.SparkClient satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, channel, event string, data any) error
}

// NotificationService queues in-app notifications and forwards them to
// Herald from a subscriber so callers never wait on delivery
type NotificationService struct {
	q      queue.Queue
	herald Notifier
	log    *logger.Logger
}

// NewNotificationService creates a notification service. With a nil queue
// notifications are forwarded inline.
func NewNotificationService(q queue.Queue, herald Notifier, log *logger.Logger) *NotificationService {
	return &NotificationService{q: q, herald: herald, log: log}
}

// Start subscribes the Herald forwarder until ctx is cancelled
func (s *NotificationService) Start(ctx context.Context) error {
	if s.q == nil {
		return nil
	}
	return s.q.Subscribe(ctx, NotificationTopic, s.forward)
}

// Send enqueues n. Failures are logged and swallowed.
func (s *NotificationService) Send(ctx context.Context, n clients.Notification) {
	if s.q == nil {
		if err := s.herald.Notify(ctx, n); err != nil {
			s.log.Warn("notification failed", "user_id", n.UserID, "type", n.Type, "error", err)
		}
		return
	}

	body, err := json.Marshal(n)
	if err != nil {
		s.log.Error("failed to encode notification", "type", n.Type, "error", err)
		return
	}
	if err := s.q.Publish(ctx, NotificationTopic, n.UserID, body); err != nil {
		s.log.Warn("failed to enqueue notification", "user_id", n.UserID, "type", n.Type, "error", err)
	}
}

// SendEmail dispatches an email directly; delivery errors are returned
func (s *NotificationService) SendEmail(ctx context.Context, e clients.Email) error {
	return s.herald.SendEmail(ctx, e)
}

func (s *NotificationService) forward(ctx context.Context, key string, value []byte) error {
	var n clients.Notification
	if err := json.Unmarshal(value, &n); err != nil {
		return fmt.Errorf("failed to decode notification for %s: %w", key, err)
	}
	if err := s.herald.Notify(ctx, n); err != nil {
		s.log.Warn("notification failed", "user_id", n.UserID, "type", n.Type, "error", err)
	}
	return nil
}
