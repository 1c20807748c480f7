package core

import (
	"net"

	"github.com/jabolina/pmix-server/pkg/pmix/definition"
	"github.com/jabolina/pmix-server/pkg/pmix/wire"
)

// Enqueue appends frame to the peer's outbound FIFO and wakes the
// writer goroutine, preserving FIFO order (spec section 4.7, "Send
// queue", invariant I5). A peer that has already closed silently drops
// the frame rather than crashing (spec section 9's open question on a
// contributor disconnecting mid-tracker).
func (p *Peer) Enqueue(frame wire.OutFrame) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, frame)
	signal := p.signal
	p.mu.Unlock()

	if signal == nil {
		return
	}
	select {
	case signal <- struct{}{}:
	default:
	}
}

// nextFrame pops the frame at the head of the queue, and reports
// whether there was one to write right now.
func (p *Peer) nextFrame() (wire.OutFrame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return wire.OutFrame{}, false
	}
	frame := p.queue[0]
	p.queue = p.queue[1:]
	return frame, true
}

// writeLoop drains the peer's send queue onto its connection, one
// frame fully at a time, until the peer is closed. It is the per-peer
// writer the reactor spawns on successful handshake (spec section 4.4,
// "Writable peer").
func (p *Peer) writeLoop(log definition.Logger, signal chan struct{}) {
	for {
		frame, ok := p.nextFrame()
		if !ok {
			<-signal
			p.mu.Lock()
			closed := p.closed
			p.mu.Unlock()
			if closed {
				return
			}
			continue
		}

		w, err := wire.NewWriter(frame)
		if err != nil {
			log.Errorf("failed encoding frame for %s: %v", p.ID, err)
			continue
		}
		conn := p.Socket()
		if conn == nil {
			return
		}
		if err := drainFully(w, conn); err != nil {
			log.Errorf("write to %s failed, closing: %v", p.ID, err)
			p.Close()
			return
		}
	}
}

// drainFully calls Writer.Drain until the frame is fully written,
// retrying on the non-fatal would-block signal — on the reactor's
// plain blocking connections this resolves in one call, but the loop
// stays correct if a deadline is ever set on conn.
func drainFully(w *wire.Writer, conn net.Conn) error {
	for !w.Done() {
		if err := w.Drain(conn); err != nil {
			if wire.IsWouldBlock(err) {
				continue
			}
			return err
		}
	}
	return nil
}

// Close marks the peer closed, closes its socket, and wakes its writer
// goroutine so it can observe p.closed and exit; safe to call more than
// once.
func (p *Peer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	conn := p.conn
	signal := p.signal
	p.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if signal != nil {
		select {
		case signal <- struct{}{}:
		default:
		}
	}
	if p.OnClose != nil {
		p.OnClose(p)
	}
}
