// Package tracker implements the Presence Tracker: a single-actor replica
// of cluster presence, converging via periodic full-state heartbeats
// broadcast over a pub/sub transport, with peer expiry on prolonged
// silence. It is the owner-side half of the registry; the Ring Manager
// (internal/ringmgr) consumes the diffs it emits.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/VoiceLayer/dispatch/internal/check"
	"github.com/VoiceLayer/dispatch/internal/clock"
	"github.com/VoiceLayer/dispatch/internal/logging"
	"github.com/VoiceLayer/dispatch/internal/pubsub"
	"github.com/VoiceLayer/dispatch/internal/types"
)

const PresenceTopic = "dispatch:presence"

var tracer = otel.Tracer("github.com/VoiceLayer/dispatch/internal/tracker")

// RingApplier is the Ring Manager's write-path, as seen by the Tracker.
type RingApplier interface {
	ApplyDiff(ctx context.Context, diff types.Diff)
}

var errClosed = errors.New("tracker: closed")

// ErrConflict is wrapped by every rejected owner operation naming an
// endpoint that does not belong to this tracker's node. The root Registry
// facade maps it to dispatch.ErrConflict.
var ErrConflict = errors.New("tracker: conflicting endpoint ownership")

// Tracker is a single logical serial actor: every owner operation and
// every gossip message is processed one at a time in its run loop, so no
// internal locking is needed around its local/remote/last-heard state.
type Tracker struct {
	nodeID          string
	transport       pubsub.PubSub
	clk             clock.Clock
	ring            RingApplier
	broadcastPeriod time.Duration
	maxSilent       int

	state *actorState // owned exclusively by the actor goroutine in run()

	reqCh  chan func()
	cancel context.CancelFunc
	done   chan struct{}
	log    interface {
		Debug(string, ...any)
		Info(string, ...any)
		Error(string, ...any)
		Warn(string, ...any)
	}
}

// Option configures a Tracker at construction.
type Option func(*Tracker)

func WithClock(c clock.Clock) Option {
	return func(t *Tracker) { t.clk = c }
}

func WithBroadcastPeriod(d time.Duration) Option {
	return func(t *Tracker) { t.broadcastPeriod = d }
}

func WithMaxSilentPeriods(n int) Option {
	return func(t *Tracker) { t.maxSilent = n }
}

// New creates a Tracker for nodeID, delivering converged diffs to ring,
// and starts its actor loop.
func New(ctx context.Context, nodeID string, transport pubsub.PubSub, ring RingApplier, opts ...Option) (*Tracker, error) {
	check.Assert(nodeID != "", "tracker.New: nodeID must not be empty")
	check.Assert(transport != nil, "tracker.New: transport must not be nil")
	check.Assert(ring != nil, "tracker.New: ring must not be nil")

	t := &Tracker{
		nodeID:          nodeID,
		transport:       transport,
		ring:            ring,
		clk:             clock.Real{},
		broadcastPeriod: 1500 * time.Millisecond,
		maxSilent:       20,
		reqCh:           make(chan func()),
		done:            make(chan struct{}),
		log:             logging.For("tracker"),
	}
	for _, opt := range opts {
		opt(t)
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	sub, unsubscribe, err := transport.Subscribe(runCtx, PresenceTopic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe to presence topic: %w", err)
	}

	t.state = &actorState{
		local:     make(map[coord]types.Meta),
		remote:    make(map[string]map[coord]types.Meta),
		lastHeard: make(map[string]time.Time),
		phxSeq:    make(map[coord]uint64),
	}

	go t.run(runCtx, sub, unsubscribe)
	return t, nil
}

// Close stops accepting owner operations, emits leaves for all local
// entries, flushes one final heartbeat, and terminates the actor loop.
func (t *Tracker) Close() error {
	t.cancel()
	<-t.done
	return nil
}

// do submits fn to the actor loop and waits for it to run, or for ctx to
// be cancelled first.
func (t *Tracker) do(ctx context.Context, fn func()) error {
	doneCh := make(chan struct{})
	wrapped := func() {
		fn()
		close(doneCh)
	}
	select {
	case t.reqCh <- wrapped:
	case <-t.done:
		return errClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
