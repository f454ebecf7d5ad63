package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exprsn/platform/common/logger"
)

func users(list []Presence) []string {
	out := make([]string, 0, len(list))
	for _, p := range list {
		out = append(out, p.UserID)
	}
	return out
}

func TestPresence_JoinHeartbeatLeave(t *testing.T) {
	events := &recordingPublisher{}
	tracker := NewPresenceTracker(events, logger.Discard())
	now := t0
	tracker.now = func() time.Time { return now }
	ctx := context.Background()
	doc := uuid.New()

	assert.Equal(t, []string{"ana"}, users(tracker.Join(ctx, doc, "ana", PresenceUpdate{})))
	assert.Equal(t, []string{"ana", "bob"}, users(tracker.Join(ctx, doc, "bob", PresenceUpdate{})))

	now = now.Add(3 * time.Minute)
	tracker.Heartbeat(ctx, doc, "ana", PresenceUpdate{})
	assert.Len(t, events.names(), 2)

	now = now.Add(3 * time.Minute)
	active := tracker.Active(ctx, doc)
	assert.Equal(t, []string{"ana"}, users(active))
	assert.Equal(t, t0.Add(3*time.Minute), active[0].LastActivity)

	assert.Empty(t, tracker.Leave(ctx, doc, "ana"))
	assert.Empty(t, tracker.Active(ctx, doc))

	assert.Equal(t, []string{
		"presence.changed",
		"presence.changed",
		"presence.changed",
		"presence.changed",
	}, events.names())
	assert.Equal(t, "document:"+doc.String(), events.events[0].Channel)
}

func TestPresence_DocumentsAreIndependent(t *testing.T) {
	tracker := NewPresenceTracker(nil, logger.Discard())
	tracker.now = clock(t0)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	tracker.Join(ctx, a, "ana", PresenceUpdate{})
	tracker.Join(ctx, b, "bob", PresenceUpdate{})

	assert.Equal(t, []string{"ana"}, users(tracker.Active(ctx, a)))
	assert.Equal(t, []string{"bob"}, users(tracker.Active(ctx, b)))
	assert.Equal(t, []string{"bob"}, users(tracker.Leave(ctx, b, "ana")))
}

func TestPresence_TracksNameAndCursor(t *testing.T) {
	events := &recordingPublisher{}
	tracker := NewPresenceTracker(events, logger.Discard())
	now := t0
	tracker.now = func() time.Time { return now }
	ctx := context.Background()
	doc := uuid.New()

	list := tracker.Join(ctx, doc, "u-ana", PresenceUpdate{UserName: "Ana", CursorPosition: &Cursor{Line: 1, Column: 1}})
	require.Len(t, list, 1)
	assert.Equal(t, "Ana", list[0].UserName)
	assert.Equal(t, &Cursor{Line: 1, Column: 1}, list[0].CursorPosition)

	now = now.Add(time.Minute)
	list = tracker.Heartbeat(ctx, doc, "u-ana", PresenceUpdate{CursorPosition: &Cursor{Line: 12, Column: 4}})
	require.Len(t, list, 1)
	assert.Equal(t, "Ana", list[0].UserName)
	assert.Equal(t, &Cursor{Line: 12, Column: 4}, list[0].CursorPosition)
	assert.Equal(t, t0.Add(time.Minute), list[0].LastActivity)
	assert.Len(t, events.names(), 2)

	// same cursor refreshes activity without broadcasting
	now = now.Add(time.Minute)
	tracker.Heartbeat(ctx, doc, "u-ana", PresenceUpdate{CursorPosition: &Cursor{Line: 12, Column: 4}})
	assert.Len(t, events.names(), 2)

	tracker.Join(ctx, doc, "u-bob", PresenceUpdate{})
	active := tracker.Active(ctx, doc)
	require.Len(t, active, 2)
	assert.Empty(t, active[1].UserName)
	assert.Nil(t, active[1].CursorPosition)
	assert.Equal(t, t0.Add(2*time.Minute), active[0].LastActivity)
}
