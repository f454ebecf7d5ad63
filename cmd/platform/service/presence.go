package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/exprsn/platform/common/logger"
)

// PresenceTTL is how long a viewer stays listed without a heartbeat
const PresenceTTL = 5 * time.Minute

// Cursor is an editor's caret inside a document
type Cursor struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Presence is one active viewer of a document
type Presence struct {
	UserID         string    `json:"userId"`
	UserName       string    `json:"userName,omitempty"`
	CursorPosition *Cursor   `json:"cursorPosition,omitempty"`
	LastActivity   time.Time `json:"lastActivity"`
}

// PresenceUpdate carries what a viewer reports on join and heartbeat. Empty
// fields keep the previous value.
type PresenceUpdate struct {
	UserName       string  `json:"userName"`
	CursorPosition *Cursor `json:"cursorPosition"`
}

type viewer struct {
	userName     string
	cursor       *Cursor
	lastActivity time.Time
}

// PresenceTracker records who is viewing which document. State is held in
// memory and expired entries are evicted whenever a document is read.
type PresenceTracker struct {
	mu     sync.Mutex
	docs   map[uuid.UUID]map[string]*viewer
	ttl    time.Duration
	events EventPublisher
	log    *logger.Logger
	now    func() time.Time
}

// NewPresenceTracker creates a tracker. events may be nil.
func NewPresenceTracker(events EventPublisher, log *logger.Logger) *PresenceTracker {
	return &PresenceTracker{
		docs:   make(map[uuid.UUID]map[string]*viewer),
		ttl:    PresenceTTL,
		events: events,
		log:    log,
		now:    time.Now,
	}
}

// Join marks userID as viewing docID
func (t *PresenceTracker) Join(ctx context.Context, docID uuid.UUID, userID string, in PresenceUpdate) []Presence {
	t.mu.Lock()
	viewers, changed := t.evict(docID)
	if viewers == nil {
		viewers = make(map[string]*viewer)
		t.docs[docID] = viewers
	}
	v, ok := viewers[userID]
	if !ok {
		v = &viewer{}
		viewers[userID] = v
		changed = true
	}
	if in.UserName != "" && in.UserName != v.userName {
		v.userName = in.UserName
		changed = true
	}
	if in.CursorPosition != nil && (v.cursor == nil || *v.cursor != *in.CursorPosition) {
		c := *in.CursorPosition
		v.cursor = &c
		changed = true
	}
	v.lastActivity = t.now().UTC()
	list := snapshotOf(viewers)
	t.mu.Unlock()

	if changed {
		t.publish(ctx, docID, list)
	}
	return list
}

// Heartbeat refreshes userID on docID and moves its cursor. A viewer that
// already expired joins again.
func (t *PresenceTracker) Heartbeat(ctx context.Context, docID uuid.UUID, userID string, in PresenceUpdate) []Presence {
	return t.Join(ctx, docID, userID, in)
}

// Leave removes userID from docID
func (t *PresenceTracker) Leave(ctx context.Context, docID uuid.UUID, userID string) []Presence {
	t.mu.Lock()
	viewers, changed := t.evict(docID)
	if _, ok := viewers[userID]; ok {
		delete(viewers, userID)
		changed = true
	}
	if len(viewers) == 0 {
		delete(t.docs, docID)
	}
	list := snapshotOf(viewers)
	t.mu.Unlock()

	if changed {
		t.publish(ctx, docID, list)
	}
	return list
}

// Active lists the current viewers of docID
func (t *PresenceTracker) Active(ctx context.Context, docID uuid.UUID) []Presence {
	t.mu.Lock()
	viewers, changed := t.evict(docID)
	if len(viewers) == 0 {
		delete(t.docs, docID)
	}
	list := snapshotOf(viewers)
	t.mu.Unlock()

	if changed {
		t.publish(ctx, docID, list)
	}
	return list
}

// evict drops expired viewers of docID. Callers hold t.mu.
func (t *PresenceTracker) evict(docID uuid.UUID) (map[string]*viewer, bool) {
	viewers := t.docs[docID]
	cutoff := t.now().Add(-t.ttl)
	evicted := false
	for user, v := range viewers {
		if v.lastActivity.Before(cutoff) {
			delete(viewers, user)
			evicted = true
		}
	}
	return viewers, evicted
}

func snapshotOf(viewers map[string]*viewer) []Presence {
	list := make([]Presence, 0, len(viewers))
	for user, v := range viewers {
		p := Presence{UserID: user, UserName: v.userName, LastActivity: v.lastActivity}
		if v.cursor != nil {
			c := *v.cursor
			p.CursorPosition = &c
		}
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UserID < list[j].UserID })
	return list
}

func (t *PresenceTracker) publish(ctx context.Context, docID uuid.UUID, list []Presence) {
	if t.events == nil {
		return
	}
	if err := t.events.Publish(ctx, "document:"+docID.String(), "presence.changed", map[string]any{
		"documentId": docID,
		"viewers":    list,
	}); err != nil {
		t.log.Warn("failed to publish presence", "document_id", docID, "error", err)
	}
}
