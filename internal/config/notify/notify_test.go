package notify

import (
	"bytes"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/strata/internal/config/tree"
	"github.com/dshills/strata/internal/logger"
)

func TestNew(t *testing.T) {
	n := New()
	if n == nil {
		t.Fatal("New() returned nil")
	}
	defer n.Close()
}

func TestNew_WithAsync(t *testing.T) {
	n := New(WithAsync(100))
	defer n.Close()
	if !n.async {
		t.Error("expected async = true")
	}
}

func TestChangeType_String(t *testing.T) {
	tests := []struct {
		ct   ChangeType
		want string
	}{
		{ChangeAdded, "added"},
		{ChangeModified, "modified"},
		{ChangeRemoved, "removed"},
		{ChangeReload, "reload"},
		{ChangeType(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.ct.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.ct, got, tt.want)
		}
	}
}

func TestNotifier_Subscribe(t *testing.T) {
	n := New()
	defer n.Close()

	var received atomic.Bool

	sub := n.Subscribe(func(change Change) {
		received.Store(true)
	})

	n.Notify(Change{Path: "test", Type: ChangeModified})

	if !received.Load() {
		t.Error("observer did not receive notification")
	}

	sub.Unsubscribe()
	sub.Unsubscribe()

	received.Store(false)
	n.Notify(Change{Path: "test2", Type: ChangeModified})

	if received.Load() {
		t.Error("unsubscribed observer received notification")
	}
	if n.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", n.SubscriberCount())
	}
}

func TestNotifier_SubscribePath(t *testing.T) {
	n := New()
	defer n.Close()

	var dbChanges, hostChanges, kafkaChanges atomic.Int32

	n.SubscribePath("database", func(Change) { dbChanges.Add(1) })
	n.SubscribePath("database.host", func(Change) { hostChanges.Add(1) })
	n.SubscribePath("kafka", func(Change) { kafkaChanges.Add(1) })

	n.Notify(Change{Path: "database.host", Type: ChangeModified})
	n.Notify(Change{Path: "database.port", Type: ChangeAdded})
	n.Notify(Change{Path: "databases.x", Type: ChangeAdded})
	n.NotifyReload("rev")

	if got := dbChanges.Load(); got != 3 {
		t.Errorf("database observer got %d changes, want 3", got)
	}
	if got := hostChanges.Load(); got != 2 {
		t.Errorf("database.host observer got %d changes, want 2", got)
	}
	if got := kafkaChanges.Load(); got != 1 {
		t.Errorf("kafka observer got %d changes, want 1 (reload only)", got)
	}
}

func TestNotifier_DeliveryOrder(t *testing.T) {
	n := New()
	defer n.Close()

	var got []string
	n.Subscribe(func(c Change) { got = append(got, "a:"+c.Path) })
	n.Subscribe(func(c Change) { got = append(got, "b:"+c.Path) })

	n.Publish([]Change{{Path: "x"}, {Path: "y"}})

	assert.Equal(t, []string{"a:x", "b:x", "a:y", "b:y"}, got)
}

func TestNotifier_Async(t *testing.T) {
	n := New(WithAsync(10))

	var mu sync.Mutex
	var paths []string
	done := make(chan struct{})

	n.Subscribe(func(c Change) {
		mu.Lock()
		paths = append(paths, c.Path)
		mu.Unlock()
		if c.Type == ChangeReload {
			close(done)
		}
	})

	n.Publish([]Change{{Path: "a", Type: ChangeAdded}, {Path: "b", Type: ChangeAdded}})
	n.NotifyReload("r1")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for async notification")
	}
	n.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", ""}, paths)
}

func TestNotifier_CloseIsIdempotent(t *testing.T) {
	n := New(WithAsync(1))
	n.Close()
	n.Close()

	var called atomic.Bool
	n.Subscribe(func(Change) { called.Store(true) })
	n.Notify(Change{Path: "x"})
	assert.False(t, called.Load(), "closed notifier must not deliver")
}

func TestNotifier_ObserverPanic(t *testing.T) {
	var buf bytes.Buffer
	n := New(WithLogger(logger.New(&buf, zerolog.DebugLevel)))
	defer n.Close()

	var after atomic.Bool
	n.Subscribe(func(Change) { panic("boom") })
	n.Subscribe(func(Change) { after.Store(true) })

	n.Notify(Change{Path: "x", Type: ChangeModified})

	assert.True(t, after.Load(), "later observers still run")
	assert.Contains(t, buf.String(), "config observer panicked")
}

func mapOf(kv ...any) *tree.Map {
	m := tree.NewMap()
	for i := 0; i+1 < len(kv); i += 2 {
		m.Set(kv[i].(string), kv[i+1])
	}
	return m
}

func TestChanges(t *testing.T) {
	old := mapOf(
		"database", mapOf("host", "localhost", "port", int64(3306)),
		"debug", true,
	)
	updated := mapOf(
		"database", mapOf("host", "db.prod", "port", int64(3306), "pool", int64(5)),
	)

	changes := Changes(old, updated, "rev-2")
	require.Len(t, changes, 3)

	assert.Equal(t, Change{Path: "database.host", Type: ChangeModified, OldValue: "localhost", NewValue: "db.prod", Revision: "rev-2"}, changes[0])
	assert.Equal(t, Change{Path: "database.pool", Type: ChangeAdded, NewValue: int64(5), Revision: "rev-2"}, changes[1])
	assert.Equal(t, Change{Path: "debug", Type: ChangeRemoved, OldValue: true, Revision: "rev-2"}, changes[2])

	assert.Empty(t, Changes(old, old, "same"))
}

func TestChange_String(t *testing.T) {
	assert.Equal(t, "modified database.host", Change{Path: "database.host", Type: ChangeModified}.String())
	assert.Equal(t, "reload (revision abc)", Change{Type: ChangeReload, Revision: "abc"}.String())
}
