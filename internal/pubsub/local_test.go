package pubsub

import (
	"context"
	"testing"
	"time"
)

func TestLocalBroadcastDeliversToSubscriber(t *testing.T) {
	ctx := context.Background()
	l := NewLocal("node-a")

	msgs, cancel, err := l.Subscribe(ctx, "uploader")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if err := l.Broadcast(ctx, "uploader", []byte("hello")); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	select {
	case got := <-msgs:
		if string(got) != "hello" {
			t.Fatalf("got %q, want %q", got, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestLocalDirectBroadcastScopedToTargetNode(t *testing.T) {
	ctx := context.Background()
	l := NewLocal("node-a")

	msgs, cancel, err := l.Subscribe(ctx, "t")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if err := l.DirectBroadcast(ctx, "node-b", "t", []byte("nope")); err != nil {
		t.Fatalf("direct broadcast: %v", err)
	}
	select {
	case got := <-msgs:
		t.Fatalf("unexpected delivery to wrong node: %q", got)
	case <-time.After(50 * time.Millisecond):
	}

	if err := l.DirectBroadcast(ctx, "node-a", "t", []byte("yep")); err != nil {
		t.Fatalf("direct broadcast: %v", err)
	}
	select {
	case got := <-msgs:
		if string(got) != "yep" {
			t.Fatalf("got %q, want %q", got, "yep")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for direct broadcast")
	}
}

func TestLocalCancelStopsDelivery(t *testing.T) {
	ctx := context.Background()
	l := NewLocal("node-a")

	msgs, cancel, err := l.Subscribe(ctx, "t")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()

	_ = l.Broadcast(ctx, "t", []byte("x"))
	select {
	case got, ok := <-msgs:
		if ok {
			t.Fatalf("unexpected delivery after cancel: %q", got)
		}
	case <-time.After(50 * time.Millisecond):
	}
}
