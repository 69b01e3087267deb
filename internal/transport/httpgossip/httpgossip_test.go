package httpgossip

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"
)

func TestBroadcastDeliversToPeerOverHTTP(t *testing.T) {
	b := New("node-b", nil)
	serverB := httptest.NewServer(b.mux())
	defer serverB.Close()

	a := New("node-a", map[string]string{"node-b": serverB.URL})

	ctx := context.Background()
	sub, cancel, err := b.Subscribe(ctx, "dispatch:presence")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	if err := a.Broadcast(ctx, "dispatch:presence", []byte("hello")); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	select {
	case got := <-sub:
		if string(got) != "hello" {
			t.Fatalf("got %q, want %q", got, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for peer to receive broadcast")
	}
}

func TestDirectBroadcastToSelfStaysLocal(t *testing.T) {
	a := New("node-a", nil)
	ctx := context.Background()

	sub, cancel, err := a.Subscribe(ctx, "t")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	if err := a.DirectBroadcast(ctx, "", "t", []byte("x")); err != nil {
		t.Fatalf("DirectBroadcast: %v", err)
	}

	select {
	case got := <-sub:
		if string(got) != "x" {
			t.Fatalf("got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("expected local delivery")
	}
}

func TestDirectBroadcastToUnknownPeerFails(t *testing.T) {
	a := New("node-a", nil)
	if err := a.DirectBroadcast(context.Background(), "node-z", "t", []byte("x")); err == nil {
		t.Fatal("expected error for unknown peer")
	}
}
