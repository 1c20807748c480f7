package tracker

import (
	"sync"

	"github.com/jabolina/pmix-server/pkg/pmix/definition"
	"github.com/jabolina/pmix-server/pkg/pmix/types"
	"github.com/jabolina/pmix-server/pkg/pmix/wire"
)

// kindList holds every in-progress tracker of one Kind, mirroring the
// source's separate fences/gets/connects/disconnects/spawns lists.
type kindList struct {
	mu       sync.Mutex
	trackers []*Tracker
}

func (k *kindList) insert(t *Tracker) {
	k.mu.Lock()
	k.trackers = append(k.trackers, t)
	k.mu.Unlock()
}

// getOrCreate finds a tracker whose range list matches ranges, or
// builds one with build and inserts it, atomically under one lock so
// two concurrent contributors for the same range list can never create
// two trackers (which would defeat coalescing, spec property P2).
func (k *kindList) getOrCreate(ranges []types.Range, build func() *Tracker) (*Tracker, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, t := range k.trackers {
		if types.RangesEqual(t.Ranges, ranges) {
			return t, false
		}
	}
	t := build()
	k.trackers = append(k.trackers, t)
	return t, true
}

func (k *kindList) remove(t *Tracker) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for i, e := range k.trackers {
		if e == t {
			k.trackers = append(k.trackers[:i], k.trackers[i+1:]...)
			return
		}
	}
}

func (k *kindList) all() []*Tracker {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]*Tracker, len(k.trackers))
	copy(out, k.trackers)
	return out
}

// Manager owns every kind's tracker list. One Manager is created per
// server instance.
type Manager struct {
	log definition.Logger

	// ServerID stamps the header of every fanned-out reply: per the
	// original source's queue-reply macro, an outbound frame's
	// namespace/rank identify the *sender* (this server), never the
	// recipient peer — only Tag identifies which in-flight client
	// request the reply resumes.
	ServerID types.ID

	lists [5]*kindList
}

// NewManager creates an empty tracker manager.
func NewManager(log definition.Logger, serverID types.ID) *Manager {
	m := &Manager{log: log, ServerID: serverID}
	for i := range m.lists {
		m.lists[i] = &kindList{}
	}
	return m
}

func (m *Manager) list(kind Kind) *kindList {
	return m.lists[kind]
}

// GetOrCreate finds a tracker of kind whose range list is structurally
// equal to ranges, or creates one with a defensive deep copy of ranges
// if none exists (spec section 4.6, invariant I4's "fresh tracker"
// guarantee for the next occurrence of an identical collective).
// expected is only used when a tracker is freshly created — it sets
// how many local contributors this tracker waits for before the
// switchyard may invoke the host upcall (see Tracker.AddContributor).
// The second return value reports whether this call created the
// tracker.
func (m *Manager) GetOrCreate(kind Kind, ranges []types.Range, expected int) (*Tracker, bool) {
	list := m.list(kind)
	return list.getOrCreate(ranges, func() *Tracker {
		return &Tracker{
			Kind:     kind,
			Ranges:   types.CloneRanges(ranges),
			owner:    list,
			Expected: expected,
		}
	})
}

// NewSpawnTracker always creates and inserts a fresh tracker without
// searching for a structural match, so two distinct spawn requests
// from the same peer never share a tracker (spec section 9's flagged
// pre-existing bug).
func (m *Manager) NewSpawnTracker() *Tracker {
	list := m.list(KindSpawn)
	t := &Tracker{Kind: KindSpawn, owner: list}
	list.insert(t)
	return t
}

// removeFromOwner removes a tracker from its kind-list before any
// reply is queued (invariant I4), so that a subsequent identical
// collective starts a fresh tracker rather than reusing this one.
func removeFromOwner(t *Tracker) {
	if t.owner != nil {
		t.owner.remove(t)
	}
}

// FanStatus implements the status-only completion shape used by
// CONNECT and DISCONNECT: removes the tracker from its kind-list, packs
// status, and fans a refcount-shared copy to every contributor (spec
// section 4.6, "connect_release").
func (m *Manager) FanStatus(t *Tracker, status types.Status) {
	removeFromOwner(t)
	payload, err := wire.Pack(int32(status))
	if err != nil {
		m.log.Errorf("failed packing status reply: %v", err)
		return
	}
	t.SetReply(payload)
	m.fanOut(t)
}

// FanSpawn implements the status+namespace completion shape used by
// SPAWN (spec section 4.6, "spawn_release").
func (m *Manager) FanSpawn(t *Tracker, status types.Status, newNS types.Namespace) {
	removeFromOwner(t)
	p := wire.NewPacker()
	if err := p.Pack(int32(status)); err != nil {
		m.log.Errorf("failed packing spawn reply: %v", err)
		return
	}
	if err := p.Pack(string(newNS)); err != nil {
		m.log.Errorf("failed packing spawn reply: %v", err)
		return
	}
	t.SetReply(p.Bytes())
	m.fanOut(t)
}

// FanModex implements the modex-returning completion shape used by
// FENCE and GET: the caller has already packed status, ndata, and each
// record into the tracker's reply (via Tracker.SetReply, possibly
// already done inline by the host callback per spec section 9) before
// calling this to remove the tracker and fan it out.
func (m *Manager) FanModex(t *Tracker) {
	removeFromOwner(t)
	m.fanOut(t)
}

// fanOut constructs one OutFrame per contributor, echoing that
// contributor's request tag, and enqueues it on the contributor's send
// queue (spec section 4.6, "Fan-out discipline"). Contributors whose
// peer has already disconnected simply fail the enqueue silently (core
// already guards Enqueue on a closed peer) per the spec's open
// question in section 9.
func (m *Manager) fanOut(t *Tracker) {
	reply := t.Reply()
	if reply == nil {
		m.log.Errorf("fan-out attempted before tracker reply was set")
		return
	}
	for _, c := range t.Contributors() {
		frame := wire.OutFrame{
			Header: wire.Header{
				Namespace: string(m.ServerID.Namespace),
				Rank:      int32(m.ServerID.Rank),
				Type:      wire.User,
				Tag:       c.Tag,
				Nbytes:    uint32(len(reply.Bytes())),
			},
			Payload: reply.Bytes(),
		}
		c.Peer.Enqueue(frame)
		c.Peer.Release()
		reply.Release()
	}
}
