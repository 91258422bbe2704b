package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"advisy/internal/core"
	"advisy/internal/notify"
	"advisy/internal/types"
)

// streamHeartbeat keeps intermediaries from closing an idle SSE connection.
const streamHeartbeat = 25 * time.Second

// NotificationStore is the data access contract for the notification feed.
type NotificationStore interface {
	ListRecent(ctx context.Context, scope types.NotificationScope, limit int) ([]*types.Notification, error)
	CountUnread(ctx context.Context, scope types.NotificationScope) (int, error)
	MarkRead(ctx context.Context, scope types.NotificationScope, id string) error
	MarkAllRead(ctx context.Context, scope types.NotificationScope) (int, error)
}

// LiveSubscriber opens live notification streams. Implemented by notify.Hub.
type LiveSubscriber interface {
	Subscribe(scope types.NotificationScope) *notify.Subscription
}

// NotificationHandler serves the in-app notification feed: recent list,
// unread counter, the read transitions, and the live SSE stream.
type NotificationHandler struct {
	store  NotificationStore
	live   LiveSubscriber
	logger *slog.Logger
}

func NewNotificationHandler(store NotificationStore, l *slog.Logger) *NotificationHandler {
	if l == nil {
		l = slog.Default()
	}
	return &NotificationHandler{store: store, logger: l}
}

// WithLiveSubscriber enables GET /v1/notifications/stream. Without it the
// stream endpoint reports the feature unavailable.
func (h *NotificationHandler) WithLiveSubscriber(live LiveSubscriber) *NotificationHandler {
	h.live = live
	return h
}

// RegisterRoutes mounts notification routes.
func (h *NotificationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/unread-count", h.UnreadCount)
		r.Get("/stream", h.Stream)
		r.Post("/{id}/read", h.MarkRead)
		r.Post("/read-all", h.MarkAllRead)
	})
}

// scopeFor builds the notification scope for the request. The feed covers
// the actor's personal notifications plus tenant-wide ones; the repository
// resolves that from the scope's user id.
func scopeFor(actor types.Actor) types.NotificationScope {
	return types.NotificationScope{
		TenantID: actor.TenantID,
		UserID:   actor.ID,
	}
}

// List handles GET /v1/notifications?limit=n, newest first.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 || parsed > 100 {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationMissingField,
				"limit must be a number between 1 and 100",
				nil,
			))
			return
		}
		limit = parsed
	}

	scope := scopeFor(actor)
	items, err := h.store.ListRecent(r.Context(), scope, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	unread, err := h.store.CountUnread(r.Context(), scope)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{
		"notifications": items,
		"unread_count":  unread,
	}})
}

// UnreadCount handles GET /v1/notifications/unread-count.
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	unread, err := h.store.CountUnread(r.Context(), scopeFor(actor))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]int{
		"unread_count": unread,
	}})
}

// MarkRead handles POST /v1/notifications/{id}/read. The transition is
// one-way and idempotent; marking an already-read notification succeeds
// without effect.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "id", "notification ID")
	if !ok {
		return
	}

	if err := h.store.MarkRead(r.Context(), scopeFor(actor), id); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stream handles GET /v1/notifications/stream as Server-Sent Events. The hub
// allows one live stream per scope: opening a second stream for the same
// user closes the first.
func (h *NotificationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if h.live == nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			"live notifications are not available",
			nil,
		))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"streaming is not supported on this connection",
			nil,
		))
		return
	}

	scope := scopeFor(actor)
	sub := h.live.Subscribe(scope)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// The feed opens with a snapshot of recent notifications and the unread
	// counter, then deduplicates the live events against it: a notification
	// already delivered in the snapshot is not sent again.
	feed := notify.NewFeed(h.store, scope, 0)
	if err := feed.Load(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "feed snapshot unavailable for stream",
			"tenant_id", scope.TenantID,
			"error", err,
		)
	} else {
		snapshot, err := json.Marshal(map[string]any{
			"notifications": feed.Items(),
			"unread_count":  feed.UnreadCount(),
		})
		if err == nil {
			fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", snapshot)
			flusher.Flush()
		}
	}

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case n, open := <-sub.Events():
			if !open {
				// Replaced by a newer stream for the same scope.
				return
			}
			if !feed.Apply(n) {
				continue
			}
			payload, err := json.Marshal(n)
			if err != nil {
				h.logger.ErrorContext(r.Context(), "failed to encode live notification",
					"notification_id", n.ID,
					"error", err,
				)
				continue
			}
			fmt.Fprintf(w, "event: notification\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// MarkAllRead handles POST /v1/notifications/read-all and reports how many
// rows flipped.
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	count, err := h.store.MarkAllRead(r.Context(), scopeFor(actor))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "notifications marked read",
		"tenant_id", actor.TenantID,
		"user_id", actor.ID,
		"count", count,
	)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]int{
		"marked_read": count,
	}})
}
