package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/VoiceLayer/dispatch/internal/clock"
	"github.com/VoiceLayer/dispatch/internal/pubsub"
	"github.com/VoiceLayer/dispatch/internal/types"
)

type recordingRing struct {
	mu    sync.Mutex
	diffs []types.Diff
}

func (r *recordingRing) ApplyDiff(_ context.Context, d types.Diff) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diffs = append(r.diffs, d)
}

func (r *recordingRing) all() []types.Diff {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Diff(nil), r.diffs...)
}

func (r *recordingRing) waitFor(t *testing.T, n int) []types.Diff {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := r.all(); len(got) >= n {
			return got
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d diffs, got %d", n, len(r.all()))
	return nil
}

func newTestTracker(t *testing.T, nodeID string, transport pubsub.PubSub, ring RingApplier) *Tracker {
	t.Helper()
	fakeClk := clock.NewFake(time.Unix(0, 0))
	tr, err := New(context.Background(), nodeID, transport, ring,
		WithClock(fakeClk),
		WithBroadcastPeriod(50*time.Millisecond),
		WithMaxSilentPeriods(4),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestTrackEmitsJoin(t *testing.T) {
	transport := pubsub.NewLocal("node-a")
	ring := &recordingRing{}
	tr := newTestTracker(t, "node-a", transport, ring)

	ep := types.Endpoint{NodeID: "node-a", LocalHandle: []byte("ep1")}
	ref, err := tr.Track(context.Background(), "uploader", ep, types.StateOnline)
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if ref == 0 {
		t.Fatal("expected non-zero phx_ref")
	}

	diffs := ring.waitFor(t, 1)
	if len(diffs[0].Joins) != 1 || !diffs[0].Joins[0].Endpoint.Equal(ep) {
		t.Fatalf("unexpected diff: %+v", diffs[0])
	}
}

func TestTrackRejectsForeignEndpoint(t *testing.T) {
	transport := pubsub.NewLocal("node-a")
	ring := &recordingRing{}
	tr := newTestTracker(t, "node-a", transport, ring)

	ep := types.Endpoint{NodeID: "node-b", LocalHandle: []byte("ep1")}
	if _, err := tr.Track(context.Background(), "uploader", ep, types.StateOnline); err == nil {
		t.Fatal("expected error for foreign endpoint")
	}
}

func TestUpdateRequiresExistingEntry(t *testing.T) {
	transport := pubsub.NewLocal("node-a")
	ring := &recordingRing{}
	tr := newTestTracker(t, "node-a", transport, ring)

	ep := types.Endpoint{NodeID: "node-a", LocalHandle: []byte("ep1")}
	found, err := tr.Update(context.Background(), "uploader", ep, types.StateOffline)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if found {
		t.Fatal("expected not found for an untracked endpoint")
	}
}

func TestUpdateEmitsLeaveThenJoinOnStateChange(t *testing.T) {
	transport := pubsub.NewLocal("node-a")
	ring := &recordingRing{}
	tr := newTestTracker(t, "node-a", transport, ring)

	ep := types.Endpoint{NodeID: "node-a", LocalHandle: []byte("ep1")}
	ctx := context.Background()
	if _, err := tr.Track(ctx, "uploader", ep, types.StateOnline); err != nil {
		t.Fatalf("Track: %v", err)
	}
	ring.waitFor(t, 1)

	found, err := tr.Update(ctx, "uploader", ep, types.StateOffline)
	if err != nil || !found {
		t.Fatalf("Update: found=%v err=%v", found, err)
	}

	diffs := ring.waitFor(t, 2)
	d := diffs[1]
	if len(d.Leaves) != 1 || len(d.Joins) != 1 {
		t.Fatalf("expected one leave and one join, got %+v", d)
	}
	if d.Leaves[0].Meta.State != types.StateOnline || d.Joins[0].Meta.State != types.StateOffline {
		t.Fatalf("unexpected meta states: %+v", d)
	}
}

func TestUntrackIdempotent(t *testing.T) {
	transport := pubsub.NewLocal("node-a")
	ring := &recordingRing{}
	tr := newTestTracker(t, "node-a", transport, ring)

	ep := types.Endpoint{NodeID: "node-a", LocalHandle: []byte("ep1")}
	ctx := context.Background()
	if _, err := tr.Track(ctx, "uploader", ep, types.StateOnline); err != nil {
		t.Fatalf("Track: %v", err)
	}
	ring.waitFor(t, 1)

	if err := tr.Untrack(ctx, "uploader", ep); err != nil {
		t.Fatalf("Untrack: %v", err)
	}
	ring.waitFor(t, 2)

	if err := tr.Untrack(ctx, "uploader", ep); err != nil {
		t.Fatalf("second Untrack: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if got := len(ring.all()); got != 2 {
		t.Fatalf("expected no additional diff from idempotent untrack, got %d diffs", got)
	}
}

func TestListMergesLocalAndRemote(t *testing.T) {
	transport := pubsub.NewLocal("node-a")
	ring := &recordingRing{}
	tr := newTestTracker(t, "node-a", transport, ring)

	ep := types.Endpoint{NodeID: "node-a", LocalHandle: []byte("ep1")}
	ctx := context.Background()
	if _, err := tr.Track(ctx, "uploader", ep, types.StateOnline); err != nil {
		t.Fatalf("Track: %v", err)
	}

	entries, err := tr.List(ctx, "uploader")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || !entries[0].Endpoint.Equal(ep) {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	// A heartbeat from node-b adds a remote entry to the merged view.
	epB := types.Endpoint{NodeID: "node-b", LocalHandle: []byte("ep2")}
	payload, err := encodeHeartbeat("node-b", map[coord]types.Meta{
		makeCoord("uploader", epB): {NodeID: "node-b", State: types.StateOnline, PhxRef: 1},
	})
	if err != nil {
		t.Fatalf("encodeHeartbeat: %v", err)
	}
	if err := transport.Broadcast(ctx, PresenceTopic, payload); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		entries, err = tr.List(ctx, "uploader")
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(entries) == 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	seenLocal, seenRemote := false, false
	for _, e := range entries {
		seenLocal = seenLocal || e.Endpoint.Equal(ep)
		seenRemote = seenRemote || e.Endpoint.Equal(epB)
	}
	if len(entries) != 2 || !seenLocal || !seenRemote {
		t.Fatalf("expected merged local and remote entries, got %+v", entries)
	}
}

func TestRemoteHeartbeatConvergesAndExpires(t *testing.T) {
	ctx := context.Background()
	transport := pubsub.NewLocal("") // shared bus; DirectBroadcast("") reaches everyone in this fake

	ringA := &recordingRing{}
	fakeClk := clock.NewFake(time.Unix(0, 0))
	trA, err := New(ctx, "node-a", transport, ringA,
		WithClock(fakeClk), WithBroadcastPeriod(50*time.Millisecond), WithMaxSilentPeriods(4))
	if err != nil {
		t.Fatalf("New trA: %v", err)
	}
	defer trA.Close()

	ringB := &recordingRing{}
	fakeClkB := clock.NewFake(time.Unix(0, 0))
	trB, err := New(ctx, "node-b", transport, ringB,
		WithClock(fakeClkB), WithBroadcastPeriod(50*time.Millisecond), WithMaxSilentPeriods(4))
	if err != nil {
		t.Fatalf("New trB: %v", err)
	}

	epB := types.Endpoint{NodeID: "node-b", LocalHandle: []byte("x")}
	if _, err := trB.Track(ctx, "t", epB, types.StateOnline); err != nil {
		t.Fatalf("Track on B: %v", err)
	}

	// Drive B's heartbeat tick so A observes the join via gossip.
	fakeClkB.Advance(50 * time.Millisecond)

	diffs := ringA.waitFor(t, 1)
	if len(diffs[0].Joins) != 1 || !diffs[0].Joins[0].Endpoint.Equal(epB) {
		t.Fatalf("expected A to observe B's join via gossip: %+v", diffs[0])
	}

	// Sever B without a graceful Close (simulating transport severance):
	// B's clock is never advanced again, so it sends no further heartbeats,
	// while A's clock moves past the expiry horizon (4 * 50ms = 200ms). The
	// short pause lets A consume each tick before the next one is offered.
	for i := 0; i < 5; i++ {
		fakeClk.Advance(50 * time.Millisecond)
		time.Sleep(5 * time.Millisecond)
	}

	diffs = ringA.waitFor(t, 2)
	last := diffs[len(diffs)-1]
	if len(last.Leaves) != 1 || !last.Leaves[0].Endpoint.Equal(epB) {
		t.Fatalf("expected A to expire B's entry: %+v", last)
	}
}
