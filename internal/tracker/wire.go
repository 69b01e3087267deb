package tracker

import (
	"encoding/json"
	"fmt"

	"github.com/VoiceLayer/dispatch/internal/types"
)

// heartbeat is the full-state presence broadcast payload: the sender's
// owned entries plus their current phx_ref, idempotent and
// self-identifying.
type heartbeat struct {
	NodeID  string       `json:"node_id"`
	Entries []wireEntry  `json:"entries"`
}

type wireEntry struct {
	Type        string `json:"type"`
	NodeID      string `json:"node_id"`
	LocalHandle []byte `json:"local_handle"`
	State       string `json:"state"`
	PhxRef      uint64 `json:"phx_ref"`
}

func encodeHeartbeat(nodeID string, entries map[coord]types.Meta) ([]byte, error) {
	hb := heartbeat{NodeID: nodeID, Entries: make([]wireEntry, 0, len(entries))}
	for c, meta := range entries {
		ep := c.endpoint()
		hb.Entries = append(hb.Entries, wireEntry{
			Type:        string(c.typ),
			NodeID:      ep.NodeID,
			LocalHandle: ep.LocalHandle,
			State:       meta.State.String(),
			PhxRef:      meta.PhxRef,
		})
	}
	return json.Marshal(hb)
}

// decodeHeartbeat parses a heartbeat payload. Entries whose embedded
// node_id doesn't match the envelope's node_id are dropped as malformed
// (defensive rejection of conflicting ownership claims, per the spec's
// open question on cross-node conflicts).
func decodeHeartbeat(payload []byte) (nodeID string, entries map[coord]types.Meta, err error) {
	var hb heartbeat
	if err := json.Unmarshal(payload, &hb); err != nil {
		return "", nil, fmt.Errorf("decode heartbeat: %w", err)
	}
	if hb.NodeID == "" {
		return "", nil, fmt.Errorf("decode heartbeat: missing node_id")
	}

	entries = make(map[coord]types.Meta, len(hb.Entries))
	for _, e := range hb.Entries {
		if e.NodeID != hb.NodeID {
			continue
		}
		state, err := parseState(e.State)
		if err != nil {
			continue
		}
		c := makeCoord(types.ServiceType(e.Type), types.Endpoint{NodeID: e.NodeID, LocalHandle: e.LocalHandle})
		entries[c] = types.Meta{NodeID: e.NodeID, State: state, PhxRef: e.PhxRef}
	}
	return hb.NodeID, entries, nil
}

func parseState(s string) (types.State, error) {
	switch s {
	case "online":
		return types.StateOnline, nil
	case "offline":
		return types.StateOffline, nil
	default:
		return 0, fmt.Errorf("invalid state %q", s)
	}
}
