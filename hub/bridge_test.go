package hub

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"taskboard-api/domain"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return rc
}

func TestBridgeDeliversPublishedEventsToLocalRoom(t *testing.T) {
	rc := setupRedis(t)
	h := New(testLogger())
	c := h.NewConn(nil)
	h.Join(c, "user-1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go RunBridge(ctx, testLogger(), rc, "task-events", h)

	// The subscriber goroutine needs to be registered before the publish.
	time.Sleep(50 * time.Millisecond)

	b := NewRedisBroadcaster(rc, "task-events")
	ev := mustEvent(t, domain.TaskCreated, "user-1", domain.Task{ID: "t1", Title: "Draft"})
	if err := b.Publish(ctx, ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := recv(t, c)
	if got.Name != domain.TaskCreated || got.Room != "user-1" {
		t.Fatalf("unexpected event: %+v", got)
	}
	task, err := got.Task()
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if task.ID != "t1" {
		t.Fatalf("unexpected task id %s", task.ID)
	}
}

func TestBridgeIgnoresMalformedPayloads(t *testing.T) {
	rc := setupRedis(t)
	h := New(testLogger())
	c := h.NewConn(nil)
	h.Join(c, "user-1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go RunBridge(ctx, testLogger(), rc, "task-events", h)
	time.Sleep(50 * time.Millisecond)

	if err := rc.Publish(ctx, "task-events", "not json").Err(); err != nil {
		t.Fatalf("publish raw: %v", err)
	}
	b := NewRedisBroadcaster(rc, "task-events")
	ev := mustEvent(t, domain.TaskDeleted, "user-1", "t1")
	if err := b.Publish(ctx, ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := recv(t, c)
	if got.Name != domain.TaskDeleted {
		t.Fatalf("expected the well-formed event to arrive, got %+v", got)
	}
}

func TestLocalBroadcasterPublishesToHub(t *testing.T) {
	h := New(testLogger())
	c := h.NewConn(nil)
	h.Join(c, "user-1")

	b := LocalBroadcaster{Hub: h}
	ev := mustEvent(t, domain.TaskUpdated, "user-1", domain.Task{ID: "t1"})
	if err := b.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := recv(t, c); got.Name != domain.TaskUpdated {
		t.Fatalf("unexpected event %s", got.Name)
	}
}
