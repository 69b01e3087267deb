package dispatch

import "github.com/VoiceLayer/dispatch/internal/types"

// Endpoint is an addressable worker in the cluster, identified by the pair
// (node_id, local_handle). Dispatch does not own an Endpoint's lifecycle —
// it only tracks presence of the pair.
type Endpoint = types.Endpoint

// ServiceType is an opaque, hashable tag partitioning the registry into
// independent consistent-hash rings.
type ServiceType = types.ServiceType

// State is the presence state of an entry.
type State = types.State

const (
	StateOnline  = types.StateOnline
	StateOffline = types.StateOffline
)

// Meta is the per-presence-entry metadata replicated alongside an
// Endpoint.
type Meta = types.Meta

// PresenceEntry is a single (type, endpoint, meta) tuple as seen in a
// Tracker's merged local+remote view.
type PresenceEntry = types.PresenceEntry

// Event is a single {:join|:leave, endpoint, meta} notification a
// subscriber receives on a type's topic.
type Event = types.Event

const (
	EventJoin  = types.EventJoin
	EventLeave = types.EventLeave
)
