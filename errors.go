package dispatch

import "errors"

// Error taxonomy, per the registry's error handling design: every failure
// is a typed sentinel, never a panic, and transport failures never reach
// the caller because gossip is self-healing on the next heartbeat tick.
var (
	// ErrNotRegistered is returned by update/disable/enable on an
	// endpoint the local tracker does not own.
	ErrNotRegistered = errors.New("dispatch: not_registered")

	// ErrNoServiceForKey is returned when a ring lookup cannot resolve a
	// key because the type's ring is absent or empty.
	ErrNoServiceForKey = errors.New("dispatch: no_service_for_key")

	// ErrServiceUnavailable is surfaced by the client sugar when
	// resolution fails before a message could be delivered.
	ErrServiceUnavailable = errors.New("dispatch: service_unavailable")

	// ErrTimeout is returned by Call/MultiCall when the deadline elapses
	// before a reply arrives.
	ErrTimeout = errors.New("dispatch: timeout")

	// ErrConflict is returned when an owner operation names an endpoint
	// whose node_id does not belong to the local tracker. Gossip entries
	// claiming an endpoint under another node's heartbeat envelope are
	// dropped by the tracker and produce no error.
	ErrConflict = errors.New("dispatch: conflicting endpoint ownership")
)
