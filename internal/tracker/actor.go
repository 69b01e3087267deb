package tracker

import (
	"context"
	"time"

	"github.com/VoiceLayer/dispatch/internal/types"
)

// actorState is owned exclusively by the actor goroutine in run(); no
// other goroutine may touch it.
type actorState struct {
	local     map[coord]types.Meta
	remote    map[string]map[coord]types.Meta
	lastHeard map[string]time.Time
	phxSeq    map[coord]uint64 // never deleted: phx_ref must never decrease
}

func (t *Tracker) run(ctx context.Context, sub <-chan []byte, unsubscribe func()) {
	defer close(t.done)
	defer unsubscribe()

	ticker := t.clk.NewTicker(t.broadcastPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.shutdown()
			return
		case req := <-t.reqCh:
			req()
		case payload := <-sub:
			t.handleHeartbeat(ctx, payload)
		case now := <-ticker.C():
			t.onTick(ctx, now)
		}
	}
}

func (t *Tracker) onTick(ctx context.Context, now time.Time) {
	t.broadcastHeartbeat(ctx)
	t.expirePeers(ctx, now)
}

func (t *Tracker) broadcastHeartbeat(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "tracker.broadcast_heartbeat")
	defer span.End()

	payload, err := encodeHeartbeat(t.nodeID, t.state.local)
	if err != nil {
		t.log.Error("encode heartbeat failed", "err", err)
		return
	}
	if err := t.transport.Broadcast(ctx, PresenceTopic, payload); err != nil {
		// Transport failures are non-fatal: the next tick retries with
		// current full state.
		t.log.Warn("broadcast heartbeat failed, will retry next tick", "err", err)
	}
}

func (t *Tracker) handleHeartbeat(ctx context.Context, payload []byte) {
	ctx, span := tracer.Start(ctx, "tracker.handle_heartbeat")
	defer span.End()

	nodeID, received, err := decodeHeartbeat(payload)
	if err != nil {
		t.log.Warn("dropped malformed heartbeat", "err", err)
		return
	}
	if nodeID == t.nodeID {
		return // self-heartbeat; local state is authoritative already
	}

	now := t.clk.Now()
	t.state.lastHeard[nodeID] = now

	prior := t.state.remote[nodeID]
	diffs := diffAgainst(prior, received)
	t.state.remote[nodeID] = received

	t.applyDiffs(ctx, diffs)
}

func (t *Tracker) expirePeers(ctx context.Context, now time.Time) {
	horizon := time.Duration(t.maxSilent) * t.broadcastPeriod
	for nodeID, last := range t.state.lastHeard {
		if now.Sub(last) <= horizon {
			continue
		}
		t.log.Info("peer expired", "node_id", nodeID, "silent_for", now.Sub(last))
		diffs := leavesFor(t.state.remote[nodeID])
		t.applyDiffs(ctx, diffs)
		delete(t.state.remote, nodeID)
		delete(t.state.lastHeard, nodeID)
	}
}

func (t *Tracker) applyDiffs(ctx context.Context, diffs map[types.ServiceType]*types.Diff) {
	for _, d := range diffs {
		t.ring.ApplyDiff(ctx, *d)
	}
}

func (t *Tracker) shutdown() {
	ctx := context.Background()
	for c, meta := range t.state.local {
		t.ring.ApplyDiff(ctx, types.Diff{
			Type:   c.typ,
			Leaves: []types.Change{{Endpoint: c.endpoint(), Meta: meta}},
		})
	}
	// Flush one final heartbeat announcing departure (empty local state)
	// so remote replicas converge without waiting out the full expiry
	// horizon.
	payload, err := encodeHeartbeat(t.nodeID, nil)
	if err == nil {
		_ = t.transport.Broadcast(ctx, PresenceTopic, payload)
	}
	t.log.Info("tracker stopped", "node_id", t.nodeID)
}
