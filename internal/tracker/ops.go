package tracker

import (
	"context"

	"github.com/VoiceLayer/dispatch/internal/types"
)

// Track inserts or replaces a local entry, minting a fresh phx_ref. It
// fails if endpoint does not belong to this tracker's node.
func (t *Tracker) Track(ctx context.Context, typ types.ServiceType, endpoint types.Endpoint, state types.State) (uint64, error) {
	if endpoint.NodeID != t.nodeID {
		return 0, errConflictf("track: endpoint %s does not belong to node %s", endpoint, t.nodeID)
	}

	var ref uint64
	err := t.do(ctx, func() {
		ref = t.trackLocked(ctx, typ, endpoint, state)
	})
	return ref, err
}

// Update replaces an existing local entry's state, minting a fresh
// phx_ref. found is false if no prior Track exists for (typ, endpoint).
func (t *Tracker) Update(ctx context.Context, typ types.ServiceType, endpoint types.Endpoint, state types.State) (found bool, err error) {
	if endpoint.NodeID != t.nodeID {
		return false, errConflictf("update: endpoint %s does not belong to node %s", endpoint, t.nodeID)
	}
	err = t.do(ctx, func() {
		found = t.updateLocked(ctx, typ, endpoint, state)
	})
	return found, err
}

// Untrack removes the local entry, emitting a leave. Idempotent: removing
// an absent entry succeeds without emitting a second leave.
func (t *Tracker) Untrack(ctx context.Context, typ types.ServiceType, endpoint types.Endpoint) error {
	if endpoint.NodeID != t.nodeID {
		return errConflictf("untrack: endpoint %s does not belong to node %s", endpoint, t.nodeID)
	}
	return t.do(ctx, func() {
		t.untrackLocked(ctx, typ, endpoint)
	})
}

// List returns a snapshot of the merged local+remote view for typ.
func (t *Tracker) List(ctx context.Context, typ types.ServiceType) ([]types.PresenceEntry, error) {
	var out []types.PresenceEntry
	err := t.do(ctx, func() {
		out = t.listLocked(typ)
	})
	return out, err
}

// Subscribe is a convenience pass-through to the transport's per-type
// topic, where the Ring Manager publishes join/leave events.
func (t *Tracker) Subscribe(ctx context.Context, typ types.ServiceType) (<-chan []byte, func(), error) {
	return t.transport.Subscribe(ctx, string(typ))
}
