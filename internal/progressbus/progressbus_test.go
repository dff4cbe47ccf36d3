package progressbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	b := New()
	var mu sync.Mutex
	var got []Event
	unsub := b.OnProgress(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
	})
	defer unsub()

	b.Publish(Event{SubscriptionPath: "/repo", Status: StatusIndexing, FilesIndexed: 1})
	b.Publish(Event{SubscriptionPath: "/repo", Status: StatusCompleted, FilesIndexed: 2})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, StatusCompleted, got[1].Status)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	count := 0
	unsub := b.OnProgress(func(Event) { count++ })
	b.Publish(Event{SubscriptionPath: "/a", Status: StatusQueued})
	unsub()
	b.Publish(Event{SubscriptionPath: "/a", Status: StatusIndexing})
	assert.Equal(t, 1, count)
}

func TestPanickingSubscriberDoesNotBreakOthers(t *testing.T) {
	b := New()
	b.OnProgress(func(Event) { panic("boom") })
	secondCalled := false
	b.OnProgress(func(Event) { secondCalled = true })

	assert.NotPanics(t, func() {
		b.Publish(Event{SubscriptionPath: "/a", Status: StatusIndexing})
	})
	assert.True(t, secondCalled)
}

func TestSnapshotReturnsLastEvent(t *testing.T) {
	b := New()
	_, ok := b.Snapshot("/a")
	assert.False(t, ok)

	b.Publish(Event{SubscriptionPath: "/a", Status: StatusIndexing})
	ev, ok := b.Snapshot("/a")
	require.True(t, ok)
	assert.Equal(t, StatusIndexing, ev.Status)
}

func TestTerminalEventLingersThenExpires(t *testing.T) {
	b := New()
	b.Publish(Event{SubscriptionPath: "/a", Status: StatusCompleted, Timestamp: time.Now().Add(-31 * time.Second)})
	_, ok := b.Snapshot("/a")
	assert.False(t, ok, "terminal event older than the linger window should no longer be visible")
}

func TestAllSnapshotsOmitsExpiredTerminal(t *testing.T) {
	b := New()
	b.Publish(Event{SubscriptionPath: "/a", Status: StatusIndexing})
	b.Publish(Event{SubscriptionPath: "/b", Status: StatusCompleted, Timestamp: time.Now().Add(-1 * time.Hour)})

	all := b.AllSnapshots()
	_, hasA := all["/a"]
	_, hasB := all["/b"]
	assert.True(t, hasA)
	assert.False(t, hasB)
}

func TestForgetRemovesImmediately(t *testing.T) {
	b := New()
	b.Publish(Event{SubscriptionPath: "/a", Status: StatusIndexing})
	b.Forget("/a")
	_, ok := b.Snapshot("/a")
	assert.False(t, ok)
}
