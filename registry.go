package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/VoiceLayer/dispatch/internal/ringmgr"
	"github.com/VoiceLayer/dispatch/internal/supervisor"
	"github.com/VoiceLayer/dispatch/internal/tracker"
)

// PubSub is the transport the registry is parameterized by, re-exported so
// callers never import the internal package directly.
type PubSub = interface {
	Subscribe(ctx context.Context, topic string) (msgs <-chan []byte, cancel func(), err error)
	Broadcast(ctx context.Context, topic string, payload []byte) error
	DirectBroadcast(ctx context.Context, targetNode, topic string, payload []byte) error
}

// Registry is the public entry point: the owner-side API for registering
// local endpoints, plus read access to cluster-wide presence and key
// lookups. It translates facade calls into Tracker operations and Ring
// Manager queries, and is the only component aware of an endpoint's
// liveness (§4.3).
type Registry struct {
	nodeID string
	sup    *supervisor.Supervisor

	mu       sync.Mutex
	monitors map[localCoord]context.CancelFunc
}

type localCoord struct {
	typ    ServiceType
	handle string
}

// New starts a Registry for nodeID over transport, using cfg's tuning
// parameters. A zero-valued field in cfg falls back to DefaultConfig's
// value rather than reaching a broadcast period of zero, which would
// panic in time.NewTicker.
func New(ctx context.Context, nodeID string, transport PubSub, cfg Config) (*Registry, error) {
	def := DefaultConfig()
	if cfg.BroadcastPeriod <= 0 {
		cfg.BroadcastPeriod = def.BroadcastPeriod
	}
	if cfg.MaxSilentPeriods <= 0 {
		cfg.MaxSilentPeriods = def.MaxSilentPeriods
	}
	if cfg.VnodesPerEndpoint <= 0 {
		cfg.VnodesPerEndpoint = def.VnodesPerEndpoint
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = def.DefaultTimeout
	}

	sup, err := supervisor.New(ctx, supervisor.Options{
		NodeID:            nodeID,
		Transport:         transport,
		VnodesPerEndpoint: cfg.VnodesPerEndpoint,
		TrackerOpts: []tracker.Option{
			tracker.WithBroadcastPeriod(cfg.BroadcastPeriod),
			tracker.WithMaxSilentPeriods(cfg.MaxSilentPeriods),
		},
	})
	if err != nil {
		return nil, err
	}
	return &Registry{
		nodeID:   nodeID,
		sup:      sup,
		monitors: make(map[localCoord]context.CancelFunc),
	}, nil
}

// Close stops the underlying Tracker, emitting leaves for every local
// entry first.
func (r *Registry) Close() error {
	r.mu.Lock()
	for _, cancel := range r.monitors {
		cancel()
	}
	r.monitors = nil
	r.mu.Unlock()
	return r.sup.Close()
}

func (r *Registry) localEndpoint(handle []byte) Endpoint {
	return Endpoint{NodeID: r.nodeID, LocalHandle: handle}
}

// AddService registers endpoint as online for typ, returning its minted
// phx_ref. If done is non-nil, the registry monitors it and calls
// RemoveService automatically once it closes, the goroutine-done-channel
// realization of §4.3's endpoint liveness monitor design note; callers
// with no such channel must call RemoveService themselves on teardown.
func (r *Registry) AddService(ctx context.Context, typ ServiceType, handle []byte, done <-chan struct{}) (uint64, error) {
	ep := r.localEndpoint(handle)
	ref, err := r.sup.Tracker.Track(ctx, typ, ep, StateOnline)
	if err != nil {
		return 0, mapTrackerErr(err)
	}
	if done != nil {
		r.monitor(typ, handle, done)
	}
	return ref, nil
}

func (r *Registry) monitor(typ ServiceType, handle []byte, done <-chan struct{}) {
	lc := localCoord{typ: typ, handle: string(handle)}
	monitorCtx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	if old, ok := r.monitors[lc]; ok {
		old()
	}
	r.monitors[lc] = cancel
	r.mu.Unlock()

	go func() {
		select {
		case <-done:
			_ = r.RemoveService(context.Background(), typ, handle)
		case <-monitorCtx.Done():
		}
	}()
}

// EnableService flips endpoint back to online. Fails with ErrNotRegistered
// if no prior AddService exists for (typ, handle).
func (r *Registry) EnableService(ctx context.Context, typ ServiceType, handle []byte) error {
	return r.setState(ctx, typ, handle, StateOnline)
}

// DisableService flips endpoint to offline, removing it from lookups while
// keeping it in GetServices. Fails with ErrNotRegistered if no prior
// AddService exists.
func (r *Registry) DisableService(ctx context.Context, typ ServiceType, handle []byte) error {
	return r.setState(ctx, typ, handle, StateOffline)
}

func (r *Registry) setState(ctx context.Context, typ ServiceType, handle []byte, state State) error {
	ep := r.localEndpoint(handle)
	found, err := r.sup.Tracker.Update(ctx, typ, ep, state)
	if err != nil {
		return mapTrackerErr(err)
	}
	if !found {
		return ErrNotRegistered
	}
	return nil
}

// RemoveService unregisters endpoint. Idempotent: removing an absent
// endpoint succeeds without emitting a second leave.
func (r *Registry) RemoveService(ctx context.Context, typ ServiceType, handle []byte) error {
	lc := localCoord{typ: typ, handle: string(handle)}
	r.mu.Lock()
	if cancel, ok := r.monitors[lc]; ok {
		cancel()
		delete(r.monitors, lc)
	}
	r.mu.Unlock()

	ep := r.localEndpoint(handle)
	if err := r.sup.Tracker.Untrack(ctx, typ, ep); err != nil {
		return mapTrackerErr(err)
	}
	return nil
}

// GetServices returns every known entry (online and offline) for typ,
// across the merged local+remote view.
func (r *Registry) GetServices(ctx context.Context, typ ServiceType) ([]PresenceEntry, error) {
	return r.sup.Tracker.List(ctx, typ)
}

// GetOnlineServices returns the subset of GetServices with state online.
func (r *Registry) GetOnlineServices(ctx context.Context, typ ServiceType) ([]PresenceEntry, error) {
	all, err := r.sup.Tracker.List(ctx, typ)
	if err != nil {
		return nil, err
	}
	online := make([]PresenceEntry, 0, len(all))
	for _, e := range all {
		if e.Meta.State == StateOnline {
			online = append(online, e)
		}
	}
	return online, nil
}

// FindService resolves key to one online endpoint of typ via the Ring
// Manager.
func (r *Registry) FindService(typ ServiceType, key []byte) (Endpoint, error) {
	ep, err := r.sup.Ring.FindOne(typ, key)
	if err != nil {
		return Endpoint{}, mapRingErr(err)
	}
	return ep, nil
}

// FindMultiService resolves up to count distinct online endpoints of typ
// for key, in deterministic ring order.
func (r *Registry) FindMultiService(typ ServiceType, key []byte, count int) ([]Endpoint, error) {
	eps, err := r.sup.Ring.FindMany(typ, key, count)
	if err != nil {
		return nil, mapRingErr(err)
	}
	return eps, nil
}

// Subscribe begins receiving join/leave Events for typ. Events already
// online at subscribe time are replayed first as synthetic joins (§12
// catch-up replay), then live events follow.
func (r *Registry) Subscribe(ctx context.Context, typ ServiceType) (<-chan Event, func(), error) {
	raw, transportCancel, err := r.sup.Transport.Subscribe(ctx, string(typ))
	if err != nil {
		return nil, nil, err
	}

	out := make(chan Event, 64)
	done := make(chan struct{})
	var stopOnce sync.Once
	cancel := func() {
		stopOnce.Do(func() {
			transportCancel()
			close(done)
		})
	}

	catchUp := r.sup.Ring.GetAll(typ)

	go func() {
		defer close(out)
		for _, entry := range catchUp {
			ev := Event{Kind: EventJoin, Endpoint: entry.Endpoint, Meta: entry.Meta}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
		for {
			select {
			case payload, ok := <-raw:
				if !ok {
					return
				}
				ev, err := ringmgr.DecodeEvent(payload)
				if err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				case <-done:
					return
				}
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()

	return out, cancel, nil
}

func mapTrackerErr(err error) error {
	if errors.Is(err, tracker.ErrConflict) {
		return ErrConflict
	}
	return err
}

func mapRingErr(err error) error {
	if errors.Is(err, ringmgr.ErrNoServiceForKey) {
		return ErrNoServiceForKey
	}
	return err
}
