package notify

import (
	"context"
	"sync"
	"time"

	"advisy/internal/types"
)

// defaultFeedSize is the number of recent notifications a feed retains.
const defaultFeedSize = 20

// FeedStore is the subset of the notification repository the feed needs.
type FeedStore interface {
	ListRecent(ctx context.Context, scope types.NotificationScope, limit int) ([]*types.Notification, error)
	CountUnread(ctx context.Context, scope types.NotificationScope) (int, error)
	MarkRead(ctx context.Context, scope types.NotificationScope, id string) error
	MarkAllRead(ctx context.Context, scope types.NotificationScope) (int, error)
}

// Feed is the in-memory view of one scope's recent notifications: newest
// first, capped, with an unread counter. Live events are prepended through
// Apply; duplicate deliveries (reconnects, replays) are dropped by id.
//
// Local state only moves forward on repository success. A failed mark leaves
// the feed unchanged and the error is returned to the caller; the next Load
// re-syncs from the database either way.
type Feed struct {
	store FeedStore
	scope types.NotificationScope
	limit int

	mu     sync.Mutex
	items  []*types.Notification
	seen   map[string]struct{}
	unread int
}

// NewFeed creates an empty feed for the scope. limit <= 0 selects the
// default size.
func NewFeed(store FeedStore, scope types.NotificationScope, limit int) *Feed {
	if limit <= 0 {
		limit = defaultFeedSize
	}
	return &Feed{
		store: store,
		scope: scope,
		limit: limit,
		seen:  make(map[string]struct{}),
	}
}

// Load replaces the feed contents with the most recent notifications and the
// authoritative unread count from the store.
func (f *Feed) Load(ctx context.Context) error {
	items, err := f.store.ListRecent(ctx, f.scope, f.limit)
	if err != nil {
		return err
	}
	unread, err := f.store.CountUnread(ctx, f.scope)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(items))
	for _, n := range items {
		seen[n.ID] = struct{}{}
	}

	f.mu.Lock()
	f.items = items
	f.seen = seen
	f.unread = unread
	f.mu.Unlock()
	return nil
}

// Apply prepends a live notification and reports whether it was new.
// Already-seen ids are ignored. The feed is trimmed to its limit; trimmed
// entries stay in the seen set so a late duplicate cannot re-enter.
func (f *Feed) Apply(n *types.Notification) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, dup := f.seen[n.ID]; dup {
		return false
	}
	f.seen[n.ID] = struct{}{}

	f.items = append([]*types.Notification{n}, f.items...)
	if len(f.items) > f.limit {
		f.items = f.items[:f.limit]
	}
	if n.Unread() {
		f.unread++
	}
	return true
}

// Run consumes a subscription until its Events channel closes or ctx is
// canceled. Each event is applied to the feed.
func (f *Feed) Run(ctx context.Context, sub *Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-sub.Events():
			if !ok {
				return
			}
			f.Apply(n)
		}
	}
}

// Items returns a snapshot copy of the feed, newest first.
func (f *Feed) Items() []*types.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*types.Notification, len(f.items))
	copy(out, f.items)
	return out
}

// UnreadCount returns the current unread counter.
func (f *Feed) UnreadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread
}

// MarkRead marks one notification read in the store, then mirrors the
// transition locally. Marking an already-read notification is a no-op at
// both levels. The counter never goes below zero.
func (f *Feed) MarkRead(ctx context.Context, id string) error {
	if err := f.store.MarkRead(ctx, f.scope, id); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.items {
		if n.ID != id {
			continue
		}
		if n.Unread() {
			now := time.Now().UTC()
			n.ReadAt = &now
			if f.unread > 0 {
				f.unread--
			}
		}
		break
	}
	return nil
}

// MarkAllRead marks every unread notification for the scope in the store and
// zeroes the local counter in the same step as the list update. Returns the
// number of rows the store transitioned.
func (f *Feed) MarkAllRead(ctx context.Context) (int, error) {
	count, err := f.store.MarkAllRead(ctx, f.scope)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	f.mu.Lock()
	for _, n := range f.items {
		if n.Unread() {
			n.ReadAt = &now
		}
	}
	f.unread = 0
	f.mu.Unlock()
	return count, nil
}
