// Package tracker implements the collective tracker subsystem: for
// each kind of collective (fence, connect, disconnect, spawn, get) it
// coalesces contributions from local peers that share an identical
// participant set, hands the host exactly one upcall per distinct set,
// and fans the host's single completion reply back to every
// contributor (spec component C6).
package tracker

import (
	"sync"

	"github.com/jabolina/pmix-server/pkg/pmix/core"
	"github.com/jabolina/pmix-server/pkg/pmix/types"
)

// Kind names which command family a tracker belongs to. Two trackers
// of different kinds never coalesce even if their range lists match,
// matching the source's separate fences/gets/connects/disconnects/
// spawns lists.
type Kind int

const (
	KindFence Kind = iota
	KindGet
	KindConnect
	KindDisconnect
	KindSpawn
)

// Contributor is one local peer's request into a tracker: the peer
// (refcounted while referenced) and the tag to echo back on reply.
type Contributor struct {
	Peer *core.Peer
	Tag  uint32
}

// Tracker records one in-progress collective: its exact range list,
// every local contributor, and — once the host callback fires — a
// reference-counted reply buffer (invariant I6).
type Tracker struct {
	Kind   Kind
	Ranges []types.Range

	// Expected is how many local contributors this tracker waits for
	// before the switchyard invokes the host upcall, computed once at
	// creation from the range list against the peer table (spec
	// property P2: the host is called exactly once per distinct range
	// list, only after every local participant has checked in — not on
	// whichever contributor happens to arrive first).
	Expected int

	mu           sync.Mutex
	contributors []Contributor
	reply        *sharedReply

	owner *kindList
}

// Contributors returns a snapshot of the current contributor list.
func (t *Tracker) Contributors() []Contributor {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Contributor, len(t.contributors))
	copy(out, t.contributors)
	return out
}

// AddContributor appends (peer, tag) to the tracker, retaining the
// peer, unless an identical (socket, tag) pair is already present
// (invariant I3: no duplicate contributors). It reports whether this
// call is the one that brought the contributor count up to Expected —
// the switchyard invokes the host upcall only when this is true, so
// the call fires once the full local participant set has joined
// rather than as soon as the tracker is created.
func (t *Tracker) AddContributor(peer *core.Peer, tag uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.contributors {
		if c.Peer == peer && c.Tag == tag {
			return false
		}
	}
	peer.Retain()
	t.contributors = append(t.contributors, Contributor{Peer: peer, Tag: tag})
	expected := t.Expected
	if expected < 1 {
		expected = 1
	}
	return len(t.contributors) == expected
}

// SetReply stores the host-built reply buffer on the tracker. Called
// by the modex-returning callback path; the switchyard caller checks
// whether this happened synchronously (spec section 9, "synchronous-
// in-async callback pattern").
func (t *Tracker) SetReply(payload []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reply = newSharedReply(payload, len(t.contributors))
}

// HasReply reports whether the host has already populated the reply
// buffer, used by the switchyard to detect an inline (synchronous)
// host callback.
func (t *Tracker) HasReply() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reply != nil
}

// Reply returns the tracker's reply buffer, or nil if none has been
// set yet.
func (t *Tracker) Reply() *sharedReply {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reply
}

// sharedReply is a reference-counted reply payload: it starts with one
// reference per contributor present when the reply is set, the fan-out
// releases one reference as each contributor's frame is enqueued, and
// the last release clears the payload (invariant I6). Releases happen
// at enqueue time, not once the frame has been written to the socket.
type sharedReply struct {
	mu      sync.Mutex
	payload []byte
	refs    int
}

func newSharedReply(payload []byte, holders int) *sharedReply {
	if holders < 1 {
		holders = 1
	}
	return &sharedReply{payload: payload, refs: holders}
}

// Bytes returns the payload bytes; the caller must not mutate them, as
// they may be shared across several in-flight writes.
func (s *sharedReply) Bytes() []byte {
	return s.payload
}

// Release drops one holder's reference; once the last holder releases,
// the payload slice is cleared so it can be garbage-collected promptly.
func (s *sharedReply) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs > 0 {
		s.refs--
	}
	if s.refs == 0 {
		s.payload = nil
	}
}
