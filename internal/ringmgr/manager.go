// Package ringmgr implements the Ring Manager: one consistent-hash ring per
// service type, mutated by the diffs a Presence Tracker emits and read
// lock-free by key-lookup callers. It is the sibling actor the teacher's
// membership overlay would call a "view"; here the write path is still
// serialized (by the Tracker's own actor loop calling ApplyDiff one diff at
// a time) while reads never block on it, via hashring.Ring's copy-on-write
// snapshots.
package ringmgr

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/VoiceLayer/dispatch/internal/hashring"
	"github.com/VoiceLayer/dispatch/internal/logging"
	"github.com/VoiceLayer/dispatch/internal/pubsub"
	"github.com/VoiceLayer/dispatch/internal/types"
)

var tracer = otel.Tracer("github.com/VoiceLayer/dispatch/internal/ringmgr")

// ErrNoServiceForKey is returned when a type's ring is absent or empty for
// the requested key. The root package maps it to dispatch.ErrNoServiceForKey.
var ErrNoServiceForKey = errors.New("ringmgr: no_service_for_key")

// Manager owns one hashring.Ring per service type and publishes join/leave
// events to the type's topic as diffs are applied.
type Manager struct {
	transport         pubsub.PubSub
	vnodesPerEndpoint int
	log               interface {
		Debug(string, ...any)
		Warn(string, ...any)
	}

	mu    sync.RWMutex
	types map[types.ServiceType]*typeRing
}

// typeRing pairs a lock-free hash ring with the bookkeeping Manager needs to
// apply the suppression rule and serve GetAll; mutation is serialized by
// mu, which provides the single-writer guarantee the ring requires of its
// callers (its Add/Remove do not synchronize writers among themselves) and
// keeps ApplyDiff's multi-step add/remove sequence atomic.
type typeRing struct {
	mu     sync.Mutex
	ring   *hashring.Ring
	online map[string]types.PresenceEntry // serialize(endpoint) -> current online entry
}

// NewManager creates a Ring Manager publishing events over transport, using
// vnodesPerEndpoint virtual nodes per ring member (0 selects the default).
func NewManager(transport pubsub.PubSub, vnodesPerEndpoint int) *Manager {
	return &Manager{
		transport:         transport,
		vnodesPerEndpoint: vnodesPerEndpoint,
		log:               logging.For("ringmgr"),
		types:             make(map[types.ServiceType]*typeRing),
	}
}

func (m *Manager) ringFor(typ types.ServiceType) *typeRing {
	m.mu.RLock()
	tr, ok := m.types[typ]
	m.mu.RUnlock()
	if ok {
		return tr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if tr, ok := m.types[typ]; ok {
		return tr
	}
	tr = &typeRing{
		ring:   hashring.New(m.vnodesPerEndpoint),
		online: make(map[string]types.PresenceEntry),
	}
	m.types[typ] = tr
	return tr
}

// ApplyDiff mutates the ring for diff.Type and publishes the resulting
// join/leave events. It satisfies tracker.RingApplier structurally.
func (m *Manager) ApplyDiff(ctx context.Context, diff types.Diff) {
	var span trace.Span
	ctx, span = tracer.Start(ctx, "ringmgr.apply_diff",
		trace.WithAttributes(
			attribute.String("dispatch.service_type", string(diff.Type)),
			attribute.Int("dispatch.joins", len(diff.Joins)),
			attribute.Int("dispatch.leaves", len(diff.Leaves)),
		),
	)
	defer span.End()

	tr := m.ringFor(diff.Type)

	tr.mu.Lock()
	for _, leave := range diff.Leaves {
		if suppressedByJoin(leave, diff.Joins) {
			continue
		}
		key := string(leave.Endpoint.Serialize())
		if _, ok := tr.online[key]; ok {
			tr.ring.Remove(leave.Endpoint)
			delete(tr.online, key)
		}
	}
	for _, join := range diff.Joins {
		key := string(join.Endpoint.Serialize())
		if join.Meta.State == types.StateOnline {
			tr.ring.Add(join.Endpoint)
			tr.online[key] = types.PresenceEntry{Type: diff.Type, Endpoint: join.Endpoint, Meta: join.Meta}
		} else {
			tr.ring.Remove(join.Endpoint)
			delete(tr.online, key)
		}
	}
	tr.mu.Unlock()

	m.publish(ctx, diff)
}

// suppressedByJoin implements the replace-in-place rule: a leave is not
// applied to the ring if its endpoint also appears among joins with
// meta.state == online in the same diff. The leave event is still published
// by publish regardless.
func suppressedByJoin(leave types.Change, joins []types.Change) bool {
	for _, j := range joins {
		if j.Endpoint.Equal(leave.Endpoint) && j.Meta.State == types.StateOnline {
			return true
		}
	}
	return false
}

// publish emits every Leave then every Join on diff.Type's topic, matching
// the spec's "leaves before joins" wire ordering.
func (m *Manager) publish(ctx context.Context, diff types.Diff) {
	topic := string(diff.Type)
	for _, l := range diff.Leaves {
		m.publishOne(ctx, topic, types.Event{Kind: types.EventLeave, Endpoint: l.Endpoint, Meta: l.Meta})
	}
	for _, j := range diff.Joins {
		m.publishOne(ctx, topic, types.Event{Kind: types.EventJoin, Endpoint: j.Endpoint, Meta: j.Meta})
	}
}

// publishOne delivers ev to this node's own subscribers only. Every node
// derives join/leave events independently from the diffs its own Tracker
// emits, so cluster-broadcasting them would both duplicate each event (one
// locally derived, one relayed from every peer) and let a subscriber
// observe a join before its own ring reflects it. direct_broadcast with an
// empty target scopes delivery to the local node, avoiding the cluster hop.
func (m *Manager) publishOne(ctx context.Context, topic string, ev types.Event) {
	payload, err := EncodeEvent(ev)
	if err != nil {
		m.log.Warn("encode event failed", "err", err, "topic", topic)
		return
	}
	if err := m.transport.DirectBroadcast(ctx, "", topic, payload); err != nil {
		m.log.Warn("publish event failed, no retry for point-in-time events", "err", err, "topic", topic)
	}
}

// FindOne returns the endpoint owning key in typ's ring.
func (m *Manager) FindOne(typ types.ServiceType, key []byte) (types.Endpoint, error) {
	tr := m.ringFor(typ)
	id, ok := tr.ring.FindOne(key)
	if !ok {
		return types.Endpoint{}, ErrNoServiceForKey
	}
	ep, err := types.DeserializeEndpoint(id)
	if err != nil {
		return types.Endpoint{}, fmt.Errorf("ringmgr: corrupt ring member: %w", err)
	}
	return ep, nil
}

// FindMany returns up to n distinct endpoints walking clockwise from key's
// hash position in typ's ring.
func (m *Manager) FindMany(typ types.ServiceType, key []byte, n int) ([]types.Endpoint, error) {
	tr := m.ringFor(typ)
	ids := tr.ring.FindMany(key, n)
	if len(ids) == 0 {
		return nil, ErrNoServiceForKey
	}
	out := make([]types.Endpoint, 0, len(ids))
	for _, id := range ids {
		ep, err := types.DeserializeEndpoint(id)
		if err != nil {
			return nil, fmt.Errorf("ringmgr: corrupt ring member: %w", err)
		}
		out = append(out, ep)
	}
	return out, nil
}

// GetAll returns a snapshot of the online presence entries for typ.
func (m *Manager) GetAll(typ types.ServiceType) []types.PresenceEntry {
	tr := m.ringFor(typ)
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]types.PresenceEntry, 0, len(tr.online))
	for _, e := range tr.online {
		out = append(out, e)
	}
	return out
}
