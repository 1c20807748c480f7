// Package core implements the peer table, handshake, send queue and
// event-driven reactor that sit between the rendezvous socket and the
// switchyard (spec components C1, C3, C4, C7, C8).
package core

import (
	"net"
	"sync"

	"github.com/jabolina/pmix-server/pkg/pmix/types"
	"github.com/jabolina/pmix-server/pkg/pmix/wire"
)

// ErrUnknownPeer is returned by BindSocket when no expected identity
// matches the handshake's claimed (namespace, rank) (spec error kind
// UNKNOWN).
type ErrUnknownPeer struct {
	ID types.ID
}

func (e ErrUnknownPeer) Error() string {
	return "pmix: unknown peer " + e.ID.String()
}

// Peer is one (identity, socket) entry. A single logical identity may
// have multiple Peer entries — one per socket — because a client may
// fork/exec a child that re-initializes against the same server (spec
// Data Model, "Peer").
type Peer struct {
	ID types.ID

	mu     sync.Mutex
	conn   net.Conn
	refs   int
	queue  []wire.OutFrame
	closed bool

	// signal wakes the peer's writer goroutine when Enqueue adds work;
	// it is created once the peer's sockets and goroutines are wired up
	// by the reactor (see Peer.ArmSignal).
	signal chan struct{}

	// OnClose is invoked exactly once, with this peer, when the
	// connection is declared gone (EOF/hard error). Trackers that
	// reference this peer are left untouched per spec section 9's open
	// question: fan-out to a dead peer just fails at write time.
	OnClose func(*Peer)
}

// ArmSignal installs the writer-wakeup channel and returns it, so the
// reactor can hand the same channel to the writer goroutine it spawns.
func (p *Peer) ArmSignal() chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.signal == nil {
		p.signal = make(chan struct{}, 1)
	}
	return p.signal
}

// Socket returns the bound connection, or nil if this entry is an
// expected-but-not-yet-connected pre-registration.
func (p *Peer) Socket() net.Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn
}

// Retain bumps the peer's reference count, mirroring the source's
// OBJ_RETAIN on every tracker contribution.
func (p *Peer) Retain() {
	p.mu.Lock()
	p.refs++
	p.mu.Unlock()
}

// Release drops the reference count. The peer table, not the tracker,
// owns final teardown; Release here only tracks how many trackers still
// point at this peer for diagnostic purposes.
func (p *Peer) Release() {
	p.mu.Lock()
	if p.refs > 0 {
		p.refs--
	}
	p.mu.Unlock()
}

// Table is the registry of expected and connected local clients, keyed
// by (namespace, rank, socket) (spec component C1).
type Table struct {
	mu    sync.Mutex
	byID  map[types.ID][]*Peer
}

// NewTable creates an empty peer table.
func NewTable() *Table {
	return &Table{byID: make(map[types.ID][]*Peer)}
}

// RegisterExpected pre-registers an identity with no bound socket yet,
// used by the lifecycle call that prepares a child's environment before
// it has connected.
func (t *Table) RegisterExpected(id types.ID) *Peer {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := &Peer{ID: id}
	t.byID[id] = append(t.byID[id], p)
	return p
}

// BindSocket finds an expected-but-unbound entry for id and binds conn
// to it, or appends a new entry if every existing entry for id already
// has a socket. If id has never been registered at all, it reports
// ErrUnknownPeer and the caller should close the socket.
func (t *Table) BindSocket(id types.ID, conn net.Conn) (*Peer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries, known := t.byID[id]
	if !known {
		return nil, ErrUnknownPeer{ID: id}
	}
	for _, p := range entries {
		p.mu.Lock()
		if p.conn == nil {
			p.conn = conn
			p.mu.Unlock()
			return p, nil
		}
		p.mu.Unlock()
	}
	p := &Peer{ID: id, conn: conn}
	t.byID[id] = append(entries, p)
	return p, nil
}

// Find returns the peer entry bound to (id, conn), or nil.
func (t *Table) Find(id types.ID, conn net.Conn) *Peer {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.byID[id] {
		if p.Socket() == conn {
			return p
		}
	}
	return nil
}

// Unregister removes one peer entry, called at finalize or when its
// socket closes.
func (t *Table) Unregister(p *Peer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entries := t.byID[p.ID]
	for i, e := range entries {
		if e == p {
			t.byID[p.ID] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(t.byID[p.ID]) == 0 {
		delete(t.byID, p.ID)
	}
}

// All returns every currently registered peer entry, used by Finalize
// to release everything.
func (t *Table) All() []*Peer {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*Peer
	for _, entries := range t.byID {
		out = append(out, entries...)
	}
	return out
}

// Contains reports whether id currently has at least one entry,
// expected or bound (Unregister drops an id once its last entry is
// removed), used by the switchyard to size a collective's expected local
// participant count down to the ranks that can actually contribute on
// this daemon.
func (t *Table) Contains(id types.ID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.byID[id]
	return ok
}

// CountNamespace returns the number of distinct locally registered
// identities in namespace ns, used to size a wildcard range's ("all
// ranks in this namespace") expected local participant count.
func (t *Table) CountNamespace(ns types.Namespace) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id := range t.byID {
		if id.Namespace == ns {
			n++
		}
	}
	return n
}
