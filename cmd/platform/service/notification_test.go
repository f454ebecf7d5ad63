package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exprsn/platform/common/clients"
	"github.com/exprsn/platform/common/logger"
	"github.com/exprsn/platform/common/queue"
)

func TestNotificationService_ForwardsQueuedNotifications(t *testing.T) {
	q := queue.NewMemoryQueue(logger.Discard())
	herald := &recordingNotifier{}
	svc := NewNotificationService(q, herald, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Start(ctx))

	svc.Send(ctx, clients.Notification{UserID: "ana", Type: "pr.review_requested", Title: "Review", Priority: clients.PriorityHigh})

	require.Eventually(t, func() bool { return len(herald.notifications()) == 1 }, time.Second, 10*time.Millisecond)
	got := herald.notifications()[0]
	assert.Equal(t, "ana", got.UserID)
	assert.Equal(t, clients.PriorityHigh, got.Priority)

	cancel()
	require.NoError(t, q.Close())
}

func TestNotificationService_InlineWithoutQueue(t *testing.T) {
	herald := &recordingNotifier{}
	svc := NewNotificationService(nil, herald, logger.Discard())

	require.NoError(t, svc.Start(context.Background()))
	svc.Send(context.Background(), clients.Notification{UserID: "bob", Type: "ci.failed"})
	require.NoError(t, svc.SendEmail(context.Background(), clients.Email{To: []string{"bob@example.com"}, Subject: "CI"}))

	assert.Len(t, herald.notifications(), 1)
	assert.Len(t, herald.emails, 1)
}
