package core

import (
	"net"
	"testing"
	"time"

	"github.com/jabolina/pmix-server/pkg/pmix/definition"
	"github.com/jabolina/pmix-server/pkg/pmix/types"
	"github.com/jabolina/pmix-server/pkg/pmix/wire"
)

func TestPeer_EnqueuePreservesFIFOOrder(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	p := &Peer{ID: types.ID{Namespace: "job1", Rank: 0}, conn: server}
	signal := p.ArmSignal()
	log := definition.NewDefaultLogger()
	log.ToggleDebug(false)

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.writeLoop(log, signal)
	}()

	for i := 0; i < 3; i++ {
		frame := wire.OutFrame{
			Header: wire.Header{Namespace: "server", Type: wire.User, Tag: uint32(i)},
		}
		p.Enqueue(frame)
	}

	for i := 0; i < 3; i++ {
		hdr, err := wire.ReadHeader(client)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if hdr.Tag != uint32(i) {
			t.Fatalf("frame %d arrived out of order: tag=%d", i, hdr.Tag)
		}
	}

	p.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("writeLoop did not exit after Close")
	}
}

func TestPeer_EnqueueAfterCloseIsDropped(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	p := &Peer{ID: types.ID{Namespace: "job1", Rank: 0}, conn: server}
	p.ArmSignal()
	p.Close()

	// Must not panic sending on a signal channel past Close.
	p.Enqueue(wire.OutFrame{Header: wire.Header{Type: wire.User}})

	if len(p.queue) != 0 {
		t.Fatalf("expected the post-close enqueue to be dropped, queue has %d entries", len(p.queue))
	}
}
