package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"advisy/internal/types"
)

type mockFeedStore struct {
	mock.Mock
}

func (m *mockFeedStore) ListRecent(ctx context.Context, scope types.NotificationScope, limit int) ([]*types.Notification, error) {
	args := m.Called(ctx, scope, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.Notification), args.Error(1)
}

func (m *mockFeedStore) CountUnread(ctx context.Context, scope types.NotificationScope) (int, error) {
	args := m.Called(ctx, scope)
	return args.Int(0), args.Error(1)
}

func (m *mockFeedStore) MarkRead(ctx context.Context, scope types.NotificationScope, id string) error {
	args := m.Called(ctx, scope, id)
	return args.Error(0)
}

func (m *mockFeedStore) MarkAllRead(ctx context.Context, scope types.NotificationScope) (int, error) {
	args := m.Called(ctx, scope)
	return args.Int(0), args.Error(1)
}

func unreadNotification(id string) *types.Notification {
	return testNotification(id, "ten_1", "usr_1")
}

func readNotification(id string) *types.Notification {
	n := testNotification(id, "ten_1", "usr_1")
	at := time.Now().UTC().Add(-time.Hour)
	n.ReadAt = &at
	return n
}

func feedScope() types.NotificationScope {
	return types.NotificationScope{TenantID: "ten_1", UserID: "usr_1"}
}

func TestFeed_Load(t *testing.T) {
	store := &mockFeedStore{}
	feed := NewFeed(store, feedScope(), 20)

	store.On("ListRecent", mock.Anything, feedScope(), 20).
		Return([]*types.Notification{unreadNotification("ntf_2"), readNotification("ntf_1")}, nil)
	store.On("CountUnread", mock.Anything, feedScope()).Return(5, nil)

	require.NoError(t, feed.Load(context.Background()))

	items := feed.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "ntf_2", items[0].ID)
	// Counter comes from the store, not the page: unread rows can exist
	// beyond the retained window.
	assert.Equal(t, 5, feed.UnreadCount())
}

func TestFeed_LoadError(t *testing.T) {
	store := &mockFeedStore{}
	feed := NewFeed(store, feedScope(), 20)

	store.On("ListRecent", mock.Anything, feedScope(), 20).
		Return(nil, errors.New("connection refused"))

	assert.Error(t, feed.Load(context.Background()))
	assert.Empty(t, feed.Items())
}

func TestFeed_ApplyPrependsNewestFirst(t *testing.T) {
	feed := NewFeed(&mockFeedStore{}, feedScope(), 20)

	feed.Apply(unreadNotification("ntf_1"))
	feed.Apply(unreadNotification("ntf_2"))

	items := feed.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "ntf_2", items[0].ID)
	assert.Equal(t, "ntf_1", items[1].ID)
	assert.Equal(t, 2, feed.UnreadCount())
}

func TestFeed_ApplyDedupesByID(t *testing.T) {
	feed := NewFeed(&mockFeedStore{}, feedScope(), 20)

	assert.True(t, feed.Apply(unreadNotification("ntf_1")))
	assert.False(t, feed.Apply(unreadNotification("ntf_1")))

	assert.Len(t, feed.Items(), 1)
	assert.Equal(t, 1, feed.UnreadCount())
}

func TestFeed_ApplyTrimsToLimit(t *testing.T) {
	feed := NewFeed(&mockFeedStore{}, feedScope(), 2)

	feed.Apply(unreadNotification("ntf_1"))
	feed.Apply(unreadNotification("ntf_2"))
	feed.Apply(unreadNotification("ntf_3"))

	items := feed.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "ntf_3", items[0].ID)
	assert.Equal(t, "ntf_2", items[1].ID)

	// A trimmed id stays deduped.
	feed.Apply(unreadNotification("ntf_1"))
	assert.Len(t, feed.Items(), 2)
	assert.Equal(t, "ntf_3", feed.Items()[0].ID)
}

func TestFeed_ApplyReadEventDoesNotCount(t *testing.T) {
	feed := NewFeed(&mockFeedStore{}, feedScope(), 20)

	feed.Apply(readNotification("ntf_1"))

	assert.Len(t, feed.Items(), 1)
	assert.Equal(t, 0, feed.UnreadCount())
}

func TestFeed_MarkRead(t *testing.T) {
	store := &mockFeedStore{}
	feed := NewFeed(store, feedScope(), 20)
	feed.Apply(unreadNotification("ntf_1"))

	store.On("MarkRead", mock.Anything, feedScope(), "ntf_1").Return(nil)

	require.NoError(t, feed.MarkRead(context.Background(), "ntf_1"))
	assert.Equal(t, 0, feed.UnreadCount())
	assert.False(t, feed.Items()[0].Unread())

	// Repeating the mark changes nothing.
	require.NoError(t, feed.MarkRead(context.Background(), "ntf_1"))
	assert.Equal(t, 0, feed.UnreadCount())
}

func TestFeed_MarkReadStoreFailureLeavesStateUntouched(t *testing.T) {
	store := &mockFeedStore{}
	feed := NewFeed(store, feedScope(), 20)
	feed.Apply(unreadNotification("ntf_1"))

	store.On("MarkRead", mock.Anything, feedScope(), "ntf_1").
		Return(types.NewAppError(types.ErrCodeInternalDB, "erreur de base de donnees", nil))

	err := feed.MarkRead(context.Background(), "ntf_1")
	require.Error(t, err)
	assert.Equal(t, 1, feed.UnreadCount())
	assert.True(t, feed.Items()[0].Unread())
}

func TestFeed_MarkReadUnknownIDCounterStaysNonNegative(t *testing.T) {
	store := &mockFeedStore{}
	feed := NewFeed(store, feedScope(), 20)

	store.On("MarkRead", mock.Anything, feedScope(), "ntf_ghost").Return(nil)

	require.NoError(t, feed.MarkRead(context.Background(), "ntf_ghost"))
	assert.Equal(t, 0, feed.UnreadCount())
}

func TestFeed_MarkAllRead(t *testing.T) {
	store := &mockFeedStore{}
	feed := NewFeed(store, feedScope(), 20)
	feed.Apply(unreadNotification("ntf_1"))
	feed.Apply(unreadNotification("ntf_2"))

	store.On("MarkAllRead", mock.Anything, feedScope()).Return(2, nil)

	count, err := feed.MarkAllRead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 0, feed.UnreadCount())
	for _, n := range feed.Items() {
		assert.False(t, n.Unread())
	}
}

func TestFeed_MarkAllReadStoreFailure(t *testing.T) {
	store := &mockFeedStore{}
	feed := NewFeed(store, feedScope(), 20)
	feed.Apply(unreadNotification("ntf_1"))

	store.On("MarkAllRead", mock.Anything, feedScope()).
		Return(0, errors.New("context deadline exceeded"))

	_, err := feed.MarkAllRead(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, feed.UnreadCount())
}

func TestFeed_RunConsumesSubscription(t *testing.T) {
	hub := NewHub(nil, testLogger())
	sub := hub.Subscribe(feedScope())
	feed := NewFeed(&mockFeedStore{}, feedScope(), 20)

	done := make(chan struct{})
	go func() {
		feed.Run(context.Background(), sub)
		close(done)
	}()

	hub.dispatch(mustMarshal(t, testNotification("ntf_1", "ten_1", "usr_1")))
	hub.dispatch(mustMarshal(t, testNotification("ntf_2", "ten_1", "usr_1")))
	sub.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("feed run did not stop after subscription close")
	}

	items := feed.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "ntf_2", items[0].ID)
	assert.Equal(t, 2, feed.UnreadCount())
}
