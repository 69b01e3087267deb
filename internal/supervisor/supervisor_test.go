package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/VoiceLayer/dispatch/internal/pubsub"
	"github.com/VoiceLayer/dispatch/internal/types"
)

func TestNewRequiresNodeIDAndTransport(t *testing.T) {
	ctx := context.Background()

	if _, err := New(ctx, Options{Transport: pubsub.NewLocal("")}); err == nil {
		t.Fatal("expected error for missing NodeID")
	}
	if _, err := New(ctx, Options{NodeID: "node-a"}); err == nil {
		t.Fatal("expected error for missing Transport")
	}
}

func TestNewWiresTrackerToRingManager(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup, err := New(ctx, Options{
		NodeID:            "node-a",
		Transport:         pubsub.NewLocal("node-a"),
		VnodesPerEndpoint: 8,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sup.Close()

	ep := types.Endpoint{NodeID: "node-a", LocalHandle: []byte("E1")}
	if _, err := sup.Tracker.Track(ctx, types.ServiceType("worker"), ep, types.StateOnline); err != nil {
		t.Fatalf("Track: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		if ep, err := sup.Ring.FindOne(types.ServiceType("worker"), []byte("k")); err == nil && string(ep.LocalHandle) == "E1" {
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for ring manager to observe the tracked endpoint")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestCloseStopsTracker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup, err := New(ctx, Options{
		NodeID:    "node-a",
		Transport: pubsub.NewLocal("node-a"),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := sup.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ep := types.Endpoint{NodeID: "node-a", LocalHandle: []byte("E1")}
	if _, err := sup.Tracker.Track(ctx, types.ServiceType("worker"), ep, types.StateOnline); err == nil {
		t.Fatal("expected Track to fail on a closed tracker")
	}
}

func TestContextCancellationClosesTracker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	sup, err := New(ctx, Options{
		NodeID:    "node-a",
		Transport: pubsub.NewLocal("node-a"),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cancel()

	ep := types.Endpoint{NodeID: "node-a", LocalHandle: []byte("E1")}
	deadline := time.After(time.Second)
	for {
		if _, err := sup.Tracker.Track(context.Background(), types.ServiceType("worker"), ep, types.StateOnline); err != nil {
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for context cancellation to close the tracker")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
