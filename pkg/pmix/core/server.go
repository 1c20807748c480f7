package core

import (
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/jabolina/pmix-server/pkg/pmix/definition"
	"github.com/jabolina/pmix-server/pkg/pmix/host"
	"github.com/jabolina/pmix-server/pkg/pmix/wire"
)

// Dispatcher is implemented by the switchyard; the reactor hands it
// every complete frame it reads from a peer.
type Dispatcher interface {
	Dispatch(peer *Peer, hdr wire.Header, payload []byte)
}

// Reactor owns the rendezvous listener and every peer's socket I/O. A
// single Reactor goroutine accepts connections; each accepted
// connection gets its own read goroutine and write goroutine, which is
// the idiomatic-Go reading of the spec's single-threaded cooperative
// event loop (spec section 4.4, section 9 design notes: "a safer
// rewrite models the host boundary as message-passing").
type Reactor struct {
	Table      *Table
	Log        definition.Logger
	Version    string
	Module     *host.Module
	Dispatcher Dispatcher

	mu       sync.Mutex
	listener net.Listener
	path     string
	wg       sync.WaitGroup
	quit     chan struct{}
}

// Listen binds the rendezvous Unix-domain socket at path, mirroring
// spec section 4.8: listen, set non-blocking (here: goroutine-driven
// Accept, the Go equivalent), arm the accept event.
func (r *Reactor) Listen(path string) error {
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("pmix: listen on %s: %w", path, err)
	}
	r.mu.Lock()
	r.listener = ln
	r.path = path
	r.quit = make(chan struct{})
	r.mu.Unlock()

	r.wg.Add(1)
	go r.acceptLoop(ln)
	return nil
}

// acceptLoop is the reactor's "Accept" event: it runs the handshake on
// every incoming connection and, on success, installs the read and
// write goroutines (spec section 4.4, "Accept").
func (r *Reactor) acceptLoop(ln net.Listener) {
	defer r.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-r.quit:
				return
			default:
				r.Log.Warnf("accept failed: %v", err)
				return
			}
		}
		r.wg.Add(1)
		go r.handleConn(conn)
	}
}

func (r *Reactor) handleConn(conn net.Conn) {
	defer r.wg.Done()

	auth := AuthenticatorFromModule(r.Module)
	peer, err := Handshake(conn, r.Table, r.Version, auth, r.Log)
	if err != nil {
		r.Log.Warnf("handshake failed: %v", err)
		return
	}

	signal := peer.ArmSignal()
	peer.OnClose = func(p *Peer) {
		r.Table.Unregister(p)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		peer.writeLoop(r.Log, signal)
	}()

	r.readLoop(peer, conn)
}

// readLoop is the reactor's "Readable peer" event, drained until EOF
// or a hard error (spec section 4.4).
func (r *Reactor) readLoop(peer *Peer, conn net.Conn) {
	reader := wire.NewReader()
	err := reader.Fill(conn, func(hdr wire.Header, payload []byte) {
		r.Dispatcher.Dispatch(peer, hdr, payload)
	})
	if err != nil && !wire.IsWouldBlock(err) {
		log := definition.WithPeer(r.Log, string(peer.ID.Namespace), int32(peer.ID.Rank), 0)
		log.Debugf("read loop ending: %v", err)
	}
	peer.Close()
}

// Finalize tears down the accept loop, closes the listener, unlinks
// the rendezvous path, and waits for every spawned goroutine to exit
// (spec section 4.8, invariant satisfied: "no file remains at the
// rendezvous path" after finalize, P6).
func (r *Reactor) Finalize() {
	r.mu.Lock()
	ln := r.listener
	path := r.path
	quit := r.quit
	r.mu.Unlock()

	if quit != nil {
		close(quit)
	}
	if ln != nil {
		ln.Close()
	}
	for _, p := range r.Table.All() {
		p.Close()
	}
	r.wg.Wait()
	if path != "" {
		_ = os.Remove(path)
	}
}
