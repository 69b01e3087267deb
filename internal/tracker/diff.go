package tracker

import "github.com/VoiceLayer/dispatch/internal/types"

// diffAgainst computes joins/leaves between a previously-known entry set
// and a freshly received one, grouped by service type. A (type, endpoint)
// present in both but with a changed phx_ref is reported as a leave of the
// old meta followed by a join of the new meta, so replace-in-place and
// leave-then-rejoin both flow through the same shape.
func diffAgainst(prior, received map[coord]types.Meta) map[types.ServiceType]*types.Diff {
	out := make(map[types.ServiceType]*types.Diff)

	get := func(typ types.ServiceType) *types.Diff {
		d, ok := out[typ]
		if !ok {
			d = &types.Diff{Type: typ}
			out[typ] = d
		}
		return d
	}

	for c, newMeta := range received {
		oldMeta, existed := prior[c]
		if !existed {
			get(c.typ).Joins = append(get(c.typ).Joins, types.Change{Endpoint: c.endpoint(), Meta: newMeta})
			continue
		}
		if oldMeta.PhxRef != newMeta.PhxRef || oldMeta.State != newMeta.State {
			d := get(c.typ)
			d.Leaves = append(d.Leaves, types.Change{Endpoint: c.endpoint(), Meta: oldMeta})
			d.Joins = append(d.Joins, types.Change{Endpoint: c.endpoint(), Meta: newMeta})
		}
	}
	for c, oldMeta := range prior {
		if _, stillPresent := received[c]; !stillPresent {
			get(c.typ).Leaves = append(get(c.typ).Leaves, types.Change{Endpoint: c.endpoint(), Meta: oldMeta})
		}
	}

	for typ, d := range out {
		if len(d.Joins) == 0 && len(d.Leaves) == 0 {
			delete(out, typ)
		}
	}
	return out
}

// leavesFor synthesizes an all-leave diff for every entry a peer owned,
// used on peer expiry.
func leavesFor(entries map[coord]types.Meta) map[types.ServiceType]*types.Diff {
	out := make(map[types.ServiceType]*types.Diff)
	for c, meta := range entries {
		d, ok := out[c.typ]
		if !ok {
			d = &types.Diff{Type: c.typ}
			out[c.typ] = d
		}
		d.Leaves = append(d.Leaves, types.Change{Endpoint: c.endpoint(), Meta: meta})
	}
	return out
}
