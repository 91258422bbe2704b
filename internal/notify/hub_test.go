package notify

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisy/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testNotification(id, tenantID, userID string) *types.Notification {
	return &types.Notification{
		ID:        id,
		TenantID:  tenantID,
		UserID:    userID,
		Kind:      types.KindNewDocument,
		Title:     "Nouveau document",
		Message:   "Un document a ete ajoute",
		CreatedAt: time.Now().UTC(),
	}
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestHub_DispatchToUserScope(t *testing.T) {
	hub := NewHub(nil, testLogger())
	sub := hub.Subscribe(types.NotificationScope{TenantID: "ten_1", UserID: "usr_1"})
	defer sub.Close()

	hub.dispatch(mustMarshal(t, testNotification("ntf_1", "ten_1", "usr_1")))

	select {
	case got := <-sub.Events():
		assert.Equal(t, "ntf_1", got.ID)
		assert.Equal(t, types.KindNewDocument, got.Kind)
	default:
		t.Fatal("expected a delivered notification")
	}
}

func TestHub_DispatchToTenantWideScope(t *testing.T) {
	hub := NewHub(nil, testLogger())
	tenantSub := hub.Subscribe(types.NotificationScope{TenantID: "ten_1"})
	defer tenantSub.Close()

	// A user-level notification also reaches the tenant-wide subscriber.
	hub.dispatch(mustMarshal(t, testNotification("ntf_2", "ten_1", "usr_9")))

	select {
	case got := <-tenantSub.Events():
		assert.Equal(t, "ntf_2", got.ID)
	default:
		t.Fatal("expected tenant-wide delivery")
	}
}

func TestHub_TenantWideEventReachesUserSubscription(t *testing.T) {
	hub := NewHub(nil, testLogger())
	sub := hub.Subscribe(types.NotificationScope{TenantID: "ten_1", UserID: "usr_1"})
	defer sub.Close()

	// A document upload notifies the whole tenant: no user id on the
	// record. Every user-scoped subscription in the tenant receives it.
	hub.dispatch(mustMarshal(t, testNotification("ntf_doc", "ten_1", "")))

	select {
	case got := <-sub.Events():
		assert.Equal(t, "ntf_doc", got.ID)
		assert.Empty(t, got.UserID)
	default:
		t.Fatal("tenant-wide notification never reached the user's subscription")
	}
}

func TestHub_PublishCopiesPerSubscriber(t *testing.T) {
	hub := NewHub(nil, testLogger())
	userSub := hub.Subscribe(types.NotificationScope{TenantID: "ten_1", UserID: "usr_1"})
	defer userSub.Close()
	tenantSub := hub.Subscribe(types.NotificationScope{TenantID: "ten_1"})
	defer tenantSub.Close()

	hub.Publish(testNotification("ntf_shared", "ten_1", "usr_1"))

	var first, second *types.Notification
	select {
	case first = <-userSub.Events():
	default:
		t.Fatal("user subscription missed the event")
	}
	select {
	case second = <-tenantSub.Events():
	default:
		t.Fatal("tenant-wide subscription missed the event")
	}
	require.NotSame(t, first, second)

	// A feed marking its copy read must not flip the other feed's record.
	now := time.Now().UTC()
	first.ReadAt = &now
	assert.Nil(t, second.ReadAt)
}

func TestHub_NoDeliveryAcrossTenants(t *testing.T) {
	hub := NewHub(nil, testLogger())
	sub := hub.Subscribe(types.NotificationScope{TenantID: "ten_other"})
	defer sub.Close()

	hub.dispatch(mustMarshal(t, testNotification("ntf_3", "ten_1", "")))

	select {
	case <-sub.Events():
		t.Fatal("notification leaked across tenants")
	default:
	}
}

func TestHub_ResubscribeClosesPrevious(t *testing.T) {
	hub := NewHub(nil, testLogger())
	scope := types.NotificationScope{TenantID: "ten_1", UserID: "usr_1"}

	first := hub.Subscribe(scope)
	second := hub.Subscribe(scope)
	defer second.Close()

	_, open := <-first.Events()
	assert.False(t, open, "first subscription channel should be closed")

	hub.dispatch(mustMarshal(t, testNotification("ntf_4", "ten_1", "usr_1")))

	select {
	case got := <-second.Events():
		assert.Equal(t, "ntf_4", got.ID)
	default:
		t.Fatal("replacement subscription should receive events")
	}
}

func TestHub_CloseIsIdempotent(t *testing.T) {
	hub := NewHub(nil, testLogger())
	scope := types.NotificationScope{TenantID: "ten_1", UserID: "usr_1"}

	sub := hub.Subscribe(scope)
	sub.Close()
	assert.NotPanics(t, func() { sub.Close() })

	// The scope is released: a fresh Subscribe owns it again.
	next := hub.Subscribe(scope)
	defer next.Close()
	hub.dispatch(mustMarshal(t, testNotification("ntf_5", "ten_1", "usr_1")))

	select {
	case got := <-next.Events():
		assert.Equal(t, "ntf_5", got.ID)
	default:
		t.Fatal("expected delivery on the new subscription")
	}
}

func TestHub_StaleCloseDoesNotEvictSuccessor(t *testing.T) {
	hub := NewHub(nil, testLogger())
	scope := types.NotificationScope{TenantID: "ten_1", UserID: "usr_1"}

	first := hub.Subscribe(scope)
	second := hub.Subscribe(scope)
	defer second.Close()

	// first was already replaced; closing it again must not release second.
	first.Close()

	hub.dispatch(mustMarshal(t, testNotification("ntf_6", "ten_1", "usr_1")))

	select {
	case got := <-second.Events():
		assert.Equal(t, "ntf_6", got.ID)
	default:
		t.Fatal("successor subscription lost its scope")
	}
}

func TestHub_DropsMalformedPayload(t *testing.T) {
	hub := NewHub(nil, testLogger())
	sub := hub.Subscribe(types.NotificationScope{TenantID: "ten_1"})
	defer sub.Close()

	hub.dispatch([]byte("{not json"))
	hub.dispatch(mustMarshal(t, &types.Notification{Kind: types.KindSystem}))

	select {
	case <-sub.Events():
		t.Fatal("malformed payload should not be delivered")
	default:
	}
}

func TestHub_FullBufferDropsEvent(t *testing.T) {
	hub := NewHub(nil, testLogger())
	scope := types.NotificationScope{TenantID: "ten_1", UserID: "usr_1"}
	sub := hub.Subscribe(scope)
	defer sub.Close()

	for i := 0; i <= subscriptionBuffer; i++ {
		hub.dispatch(mustMarshal(t, testNotification("ntf_bulk", "ten_1", "usr_1")))
	}

	// The buffer is full; the overflow event was dropped, never blocked.
	assert.Len(t, sub.Events(), subscriptionBuffer)
}
