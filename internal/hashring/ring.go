// Package hashring implements the vnode-augmented consistent-hash ring the
// Ring Manager keeps one of per service type. Reads are served from an
// immutable snapshot published by the single writer on every mutation, so
// concurrent lookups never take a lock, generalizing the teacher's
// rendezvous-hash ring (lib/hashring) to the vnode-ring shape the spec
// mandates, with a fixed MurmurHash3 x64 hash.
package hashring

import (
	"bytes"
	"sort"
	"sync/atomic"

	"github.com/spaolacci/murmur3"
)

// Member is the minimal shape a ring node needs: a stable byte identity.
// dispatch.Endpoint satisfies this via its Serialize method.
type Member interface {
	Serialize() []byte
}

type vnode struct {
	hash uint64
	key  []byte // Serialize() of the owning member, used for tie-break and identity
}

type snapshot struct {
	vnodes  []vnode // sorted by (hash, key)
	members map[string][]byte // serialized key -> serialized key (membership set + identity)
}

func emptySnapshot() *snapshot {
	return &snapshot{members: make(map[string][]byte)}
}

// Ring is a single-writer, many-reader consistent-hash ring for one
// service type.
type Ring struct {
	vnodesPerMember int
	current         atomic.Pointer[snapshot]
}

// New creates an empty ring with the given vnode replication factor.
func New(vnodesPerMember int) *Ring {
	if vnodesPerMember <= 0 {
		vnodesPerMember = 128
	}
	r := &Ring{vnodesPerMember: vnodesPerMember}
	r.current.Store(emptySnapshot())
	return r
}

// Add inserts a member into the ring. Idempotent: adding an already-present
// member is a no-op. Must only be called by the ring's single writer.
func (r *Ring) Add(m Member) {
	key := m.Serialize()
	skey := string(key)

	cur := r.current.Load()
	if _, ok := cur.members[skey]; ok {
		return
	}

	next := &snapshot{
		vnodes:  make([]vnode, len(cur.vnodes), len(cur.vnodes)+r.vnodesPerMember),
		members: make(map[string][]byte, len(cur.members)+1),
	}
	copy(next.vnodes, cur.vnodes)
	for k, v := range cur.members {
		next.members[k] = v
	}
	next.members[skey] = key

	for i := 0; i < r.vnodesPerMember; i++ {
		next.vnodes = append(next.vnodes, vnode{hash: vnodeHash(key, i), key: key})
	}
	sortVnodes(next.vnodes)

	r.current.Store(next)
}

// Remove deletes a member from the ring. Idempotent: removing an absent
// member is a no-op. Must only be called by the ring's single writer.
func (r *Ring) Remove(m Member) {
	key := m.Serialize()
	skey := string(key)

	cur := r.current.Load()
	if _, ok := cur.members[skey]; !ok {
		return
	}

	next := &snapshot{
		vnodes:  make([]vnode, 0, len(cur.vnodes)),
		members: make(map[string][]byte, len(cur.members)-1),
	}
	for k, v := range cur.members {
		if k == skey {
			continue
		}
		next.members[k] = v
	}
	for _, vn := range cur.vnodes {
		if bytes.Equal(vn.key, key) {
			continue
		}
		next.vnodes = append(next.vnodes, vn)
	}

	r.current.Store(next)
}

// Contains reports whether m is currently a ring member.
func (r *Ring) Contains(m Member) bool {
	cur := r.current.Load()
	_, ok := cur.members[string(m.Serialize())]
	return ok
}

// Size returns the number of distinct members currently in the ring.
func (r *Ring) Size() int {
	return len(r.current.Load().members)
}

// FindOne returns the member whose smallest vnode hash is >= hash(key),
// wrapping around the ring. It is a pure function of the current snapshot
// and key. Returns ok=false if the ring is empty.
func (r *Ring) FindOne(key []byte) (id []byte, ok bool) {
	cur := r.current.Load()
	if len(cur.vnodes) == 0 {
		return nil, false
	}
	h := keyHash(key)
	idx := searchVnodes(cur.vnodes, h)
	return cur.vnodes[idx].key, true
}

// FindMany returns up to n distinct members walking clockwise from key's
// hash position. The result is shorter than n iff the ring holds fewer
// than n distinct members.
func (r *Ring) FindMany(key []byte, n int) [][]byte {
	cur := r.current.Load()
	if len(cur.vnodes) == 0 || n <= 0 {
		return nil
	}
	h := keyHash(key)
	start := searchVnodes(cur.vnodes, h)

	seen := make(map[string]struct{}, n)
	out := make([][]byte, 0, n)
	total := len(cur.vnodes)
	for i := 0; i < total && len(out) < n; i++ {
		vn := cur.vnodes[(start+i)%total]
		sk := string(vn.key)
		if _, ok := seen[sk]; ok {
			continue
		}
		seen[sk] = struct{}{}
		out = append(out, vn.key)
	}
	return out
}

// Snapshot returns every distinct member currently in the ring, in no
// particular order.
func (r *Ring) Snapshot() [][]byte {
	cur := r.current.Load()
	out := make([][]byte, 0, len(cur.members))
	for _, v := range cur.members {
		out = append(out, v)
	}
	return out
}

func vnodeHash(key []byte, vnodeIndex int) uint64 {
	buf := make([]byte, len(key)+4)
	copy(buf, key)
	buf[len(key)+0] = byte(vnodeIndex)
	buf[len(key)+1] = byte(vnodeIndex >> 8)
	buf[len(key)+2] = byte(vnodeIndex >> 16)
	buf[len(key)+3] = byte(vnodeIndex >> 24)
	return murmur3.Sum64(buf)
}

func keyHash(key []byte) uint64 {
	return murmur3.Sum64(key)
}

func sortVnodes(v []vnode) {
	sort.Slice(v, func(i, j int) bool {
		if v[i].hash != v[j].hash {
			return v[i].hash < v[j].hash
		}
		return bytes.Compare(v[i].key, v[j].key) < 0
	})
}

// searchVnodes returns the index of the first vnode whose hash is >= h,
// wrapping to index 0 if h is greater than every vnode hash.
func searchVnodes(v []vnode, h uint64) int {
	idx := sort.Search(len(v), func(i int) bool { return v[i].hash >= h })
	if idx == len(v) {
		return 0
	}
	return idx
}
