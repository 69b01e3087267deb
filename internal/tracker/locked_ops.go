package tracker

import (
	"context"
	"fmt"

	"github.com/VoiceLayer/dispatch/internal/types"
)

// errConflictf builds an error wrapping ErrConflict for a rejected
// cross-node ownership claim. Defined locally (rather than wrapping
// dispatch.ErrConflict directly) to avoid an import cycle with the root
// package, which aliases this package's sibling types; the root Registry
// facade maps ErrConflict back to dispatch.ErrConflict via errors.Is.
func errConflictf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrConflict)...)
}

// trackLocked must only run on the actor goroutine (via Tracker.do).
func (t *Tracker) trackLocked(ctx context.Context, typ types.ServiceType, endpoint types.Endpoint, state types.State) uint64 {
	c := makeCoord(typ, endpoint)
	t.state.phxSeq[c]++
	ref := t.state.phxSeq[c]
	meta := types.Meta{NodeID: t.nodeID, State: state, PhxRef: ref}
	t.state.local[c] = meta

	t.ring.ApplyDiff(ctx, types.Diff{
		Type:  typ,
		Joins: []types.Change{{Endpoint: endpoint, Meta: meta}},
	})
	return ref
}

// updateLocked must only run on the actor goroutine (via Tracker.do).
func (t *Tracker) updateLocked(ctx context.Context, typ types.ServiceType, endpoint types.Endpoint, state types.State) bool {
	c := makeCoord(typ, endpoint)
	old, ok := t.state.local[c]
	if !ok {
		return false
	}

	t.state.phxSeq[c]++
	ref := t.state.phxSeq[c]
	newMeta := types.Meta{NodeID: t.nodeID, State: state, PhxRef: ref}
	t.state.local[c] = newMeta

	if old.State != newMeta.State {
		t.ring.ApplyDiff(ctx, types.Diff{
			Type:   typ,
			Leaves: []types.Change{{Endpoint: endpoint, Meta: old}},
			Joins:  []types.Change{{Endpoint: endpoint, Meta: newMeta}},
		})
	}
	return true
}

// untrackLocked must only run on the actor goroutine (via Tracker.do).
func (t *Tracker) untrackLocked(ctx context.Context, typ types.ServiceType, endpoint types.Endpoint) {
	c := makeCoord(typ, endpoint)
	old, ok := t.state.local[c]
	if !ok {
		return // idempotent: nothing to remove, nothing to emit
	}
	delete(t.state.local, c)

	t.ring.ApplyDiff(ctx, types.Diff{
		Type:   typ,
		Leaves: []types.Change{{Endpoint: endpoint, Meta: old}},
	})
}

// listLocked must only run on the actor goroutine (via Tracker.do).
func (t *Tracker) listLocked(typ types.ServiceType) []types.PresenceEntry {
	out := make([]types.PresenceEntry, 0)
	for c, meta := range t.state.local {
		if c.typ != typ {
			continue
		}
		out = append(out, types.PresenceEntry{Type: typ, Endpoint: c.endpoint(), Meta: meta})
	}
	for _, entries := range t.state.remote {
		for c, meta := range entries {
			if c.typ != typ {
				continue
			}
			out = append(out, types.PresenceEntry{Type: typ, Endpoint: c.endpoint(), Meta: meta})
		}
	}
	return out
}
