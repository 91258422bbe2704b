// Package notify implements the in-app notification fan-out: a Postgres
// LISTEN/NOTIFY hub for live delivery, a per-scope feed with an unread
// counter, and an SQS publisher for outbound email/SMS delivery jobs.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"advisy/internal/types"
)

// Channel is the Postgres notification channel the repository publishes on
// after every insert. The hub LISTENs on the same channel.
const Channel = "advisy_notifications"

// subscriptionBuffer bounds the per-subscription event channel. A consumer
// that falls behind loses live events; the feed re-syncs on its next load.
const subscriptionBuffer = 32

// reconnectWait is the pause before re-acquiring a listen connection after a
// connection-level failure.
const reconnectWait = 2 * time.Second

// Subscription is a live stream of notifications for one scope. Events is
// closed when the subscription is closed, either explicitly or because a
// newer Subscribe claimed the same scope.
type Subscription struct {
	scope  types.NotificationScope
	events chan *types.Notification
	hub    *Hub
	once   sync.Once
}

// Events returns the channel live notifications arrive on. The channel is
// closed when the subscription ends.
func (s *Subscription) Events() <-chan *types.Notification {
	return s.events
}

// Scope returns the scope this subscription was opened for.
func (s *Subscription) Scope() types.NotificationScope {
	return s.scope
}

// Close ends the subscription and closes the Events channel. Safe to call
// more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.release(s)
		close(s.events)
	})
}

// Hub fans Postgres notifications out to live subscribers. At most one
// subscription is active per scope key; subscribing again for the same scope
// closes the previous subscription.
type Hub struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]*Subscription
}

// NewHub creates a Hub backed by the given pool. Run must be called for live
// events to flow.
func NewHub(pool *pgxpool.Pool, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		pool:   pool,
		logger: logger,
		subs:   make(map[string]*Subscription),
	}
}

// Subscribe opens a live subscription for the scope. If a subscription
// already exists for the same scope key it is closed first, so its consumer
// sees a closed Events channel.
func (h *Hub) Subscribe(scope types.NotificationScope) *Subscription {
	sub := &Subscription{
		scope:  scope,
		events: make(chan *types.Notification, subscriptionBuffer),
		hub:    h,
	}

	h.mu.Lock()
	prev := h.subs[scope.Key()]
	h.subs[scope.Key()] = sub
	h.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	return sub
}

// release detaches a subscription from the hub. Only the current holder of
// the scope key is removed; a subscription already replaced by a newer one
// must not evict its successor.
func (h *Hub) release(s *Subscription) {
	h.mu.Lock()
	if h.subs[s.scope.Key()] == s {
		delete(h.subs, s.scope.Key())
	}
	h.mu.Unlock()
}

// Run holds a dedicated connection in LISTEN mode and dispatches payloads to
// subscribers until ctx is canceled. Connection failures are retried with a
// fixed pause; notifications sent while disconnected are not replayed, the
// feed reconciles them on its next load.
func (h *Hub) Run(ctx context.Context) error {
	for {
		if err := h.listen(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			h.logger.ErrorContext(ctx, "notification listener lost connection",
				"error", err.Error(),
				"retry_in", reconnectWait.String(),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectWait):
		}
	}
}

func (h *Hub) listen(ctx context.Context) error {
	conn, err := h.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "notification listener started", "channel", Channel)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		h.dispatch([]byte(n.Payload))
	}
}

// dispatch decodes a channel payload and publishes it. Malformed payloads
// are dropped.
func (h *Hub) dispatch(payload []byte) {
	var n types.Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		h.logger.Error("dropping malformed notification payload", "error", err.Error())
		return
	}
	if n.ID == "" || n.TenantID == "" {
		h.logger.Error("dropping notification payload without identity")
		return
	}
	h.Publish(&n)
}

// Publish delivers a notification to every matching subscription in the
// tenant. A tenant-wide notification (empty UserID) reaches all of the
// tenant's subscribers; a user-level one reaches that user and any
// tenant-wide subscriber. Sends never block: a full subscriber buffer
// loses the event.
func (h *Hub) Publish(n *types.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if sub.scope.TenantID != n.TenantID {
			continue
		}
		if n.UserID != "" && sub.scope.UserID != "" && sub.scope.UserID != n.UserID {
			continue
		}
		// Each subscriber gets its own copy; feeds mutate read state in
		// place and must not share a record across scopes.
		nc := *n
		select {
		case sub.events <- &nc:
		default:
			h.logger.Warn("subscriber buffer full, dropping live event",
				"scope", sub.scope.Key(),
				"notification_id", n.ID,
			)
		}
	}
}
