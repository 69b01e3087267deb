// Package types holds the registry's core data model so that internal
// actor packages (tracker, ringmgr) and the public dispatch package can
// share it without an import cycle. The root package re-exports these as
// type aliases, the way the teacher's membership package aliases its
// overlay package's row types.
package types

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// Endpoint is an addressable worker in the cluster, identified by the pair
// (node_id, local_handle).
type Endpoint struct {
	NodeID      string
	LocalHandle []byte
}

// Serialize returns the canonical length-prefixed byte serialization of the
// endpoint, used both as the ring-membership key and for equality/tie-break
// comparisons.
func (e Endpoint) Serialize() []byte {
	buf := make([]byte, 0, 8+len(e.NodeID)+len(e.LocalHandle))
	buf = appendLengthPrefixed(buf, []byte(e.NodeID))
	buf = appendLengthPrefixed(buf, e.LocalHandle)
	return buf
}

func appendLengthPrefixed(buf, field []byte) []byte {
	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], uint32(len(field)))
	buf = append(buf, lenBytes[:]...)
	buf = append(buf, field...)
	return buf
}

// DeserializeEndpoint inverts Endpoint.Serialize. It is the ring's means of
// recovering an endpoint identity from the byte key a hashring.Ring hands
// back on lookup.
func DeserializeEndpoint(b []byte) (Endpoint, error) {
	nodeID, rest, err := readLengthPrefixed(b)
	if err != nil {
		return Endpoint{}, err
	}
	handle, rest, err := readLengthPrefixed(rest)
	if err != nil {
		return Endpoint{}, err
	}
	if len(rest) != 0 {
		return Endpoint{}, errors.New("types: trailing bytes after endpoint")
	}
	return Endpoint{NodeID: string(nodeID), LocalHandle: handle}, nil
}

func readLengthPrefixed(b []byte) (field, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, errors.New("types: truncated length prefix")
	}
	n := binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	if uint64(len(b)) < uint64(n) {
		return nil, nil, errors.New("types: truncated field")
	}
	return b[:n], b[n:], nil
}

// Equal reports whether two endpoints name the same (node_id, local_handle)
// coordinate.
func (e Endpoint) Equal(o Endpoint) bool {
	return e.NodeID == o.NodeID && bytes.Equal(e.LocalHandle, o.LocalHandle)
}

func (e Endpoint) String() string {
	return e.NodeID + "/" + string(e.LocalHandle)
}

// ServiceType is an opaque, hashable tag partitioning the registry into
// independent consistent-hash rings.
type ServiceType string

// State is the presence state of an entry.
type State int

const (
	StateOnline State = iota
	StateOffline
)

func (s State) String() string {
	if s == StateOnline {
		return "online"
	}
	return "offline"
}

// Meta is the per-presence-entry metadata replicated alongside an
// Endpoint.
type Meta struct {
	NodeID string
	State  State
	// PhxRef is a monotonically increasing per-entry version token minted
	// by the owning node, used to disambiguate replace-in-place from
	// leave-then-rejoin.
	PhxRef uint64
}

// PresenceEntry is a single (type, endpoint, meta) tuple as seen in a
// Tracker's merged local+remote view.
type PresenceEntry struct {
	Type     ServiceType
	Endpoint Endpoint
	Meta     Meta
}

// Change is one half of a join/leave diff: an endpoint transitioning into
// or out of a ring, carrying the meta that triggered the transition.
type Change struct {
	Endpoint Endpoint
	Meta     Meta
}

// Diff is the (type, joins, leaves) triple a Tracker emits and a Ring
// Manager applies.
type Diff struct {
	Type   ServiceType
	Joins  []Change
	Leaves []Change
}

// Event is a single {:join|:leave, endpoint, meta} notification published
// by the Ring Manager on a type's topic.
type Event struct {
	Kind     EventKind
	Endpoint Endpoint
	Meta     Meta
}

type EventKind int

const (
	EventJoin EventKind = iota
	EventLeave
)

func (k EventKind) String() string {
	if k == EventJoin {
		return "join"
	}
	return "leave"
}
