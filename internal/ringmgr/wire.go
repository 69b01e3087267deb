package ringmgr

import (
	"encoding/json"
	"fmt"

	"github.com/VoiceLayer/dispatch/internal/types"
)

type eventWire struct {
	Kind        string `json:"kind"`
	NodeID      string `json:"node_id"`
	LocalHandle []byte `json:"local_handle"`
	State       string `json:"state"`
	PhxRef      uint64 `json:"phx_ref"`
}

// EncodeEvent serializes a join/leave notification for publication on a
// service type's topic.
func EncodeEvent(e types.Event) ([]byte, error) {
	return json.Marshal(eventWire{
		Kind:        e.Kind.String(),
		NodeID:      e.Endpoint.NodeID,
		LocalHandle: e.Endpoint.LocalHandle,
		State:       e.Meta.State.String(),
		PhxRef:      e.Meta.PhxRef,
	})
}

// DecodeEvent inverts EncodeEvent. Subscribers on a type's topic use this to
// recover the join/leave notification from the raw payload.
func DecodeEvent(payload []byte) (types.Event, error) {
	var w eventWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return types.Event{}, fmt.Errorf("ringmgr: decode event: %w", err)
	}

	var kind types.EventKind
	switch w.Kind {
	case "join":
		kind = types.EventJoin
	case "leave":
		kind = types.EventLeave
	default:
		return types.Event{}, fmt.Errorf("ringmgr: unknown event kind %q", w.Kind)
	}

	var state types.State
	switch w.State {
	case "online":
		state = types.StateOnline
	case "offline":
		state = types.StateOffline
	default:
		return types.Event{}, fmt.Errorf("ringmgr: unknown state %q", w.State)
	}

	return types.Event{
		Kind:     kind,
		Endpoint: types.Endpoint{NodeID: w.NodeID, LocalHandle: w.LocalHandle},
		Meta:     types.Meta{NodeID: w.NodeID, State: state, PhxRef: w.PhxRef},
	}, nil
}
