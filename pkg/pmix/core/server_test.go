package core

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jabolina/pmix-server/pkg/pmix/host"
	"github.com/jabolina/pmix-server/pkg/pmix/types"
	"github.com/jabolina/pmix-server/pkg/pmix/wire"
)

type echoDispatcher struct{}

func (echoDispatcher) Dispatch(peer *Peer, hdr wire.Header, payload []byte) {
	peer.Enqueue(wire.OutFrame{
		Header:  wire.Header{Namespace: hdr.Namespace, Rank: hdr.Rank, Type: wire.User, Tag: hdr.Tag, Nbytes: hdr.Nbytes},
		Payload: payload,
	})
}

func TestReactor_ListenAndFinalizeRemovesRendezvousFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pmix-test")
	r := &Reactor{
		Table:      NewTable(),
		Log:        newTestLogger(),
		Version:    "1.0.0",
		Module:     &host.Module{},
		Dispatcher: echoDispatcher{},
	}
	if err := r.Listen(path); err != nil {
		t.Fatalf("listen: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("rendezvous socket missing: %v", err)
	}

	r.Finalize()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected rendezvous path removed, stat err = %v", err)
	}
}

func TestReactor_HandshakeThenEcho(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pmix-test")
	table := NewTable()
	id := types.ID{Namespace: "job1", Rank: 0}
	table.RegisterExpected(id)

	r := &Reactor{
		Table:      table,
		Log:        newTestLogger(),
		Version:    "1.0.0",
		Module:     &host.Module{},
		Dispatcher: echoDispatcher{},
	}
	if err := r.Listen(path); err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer r.Finalize()

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	status, err := clientHandshake(t, conn, id, "1.0.0", nil)
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if status != types.StatusSuccess {
		t.Fatalf("handshake status = %v", status)
	}

	payload, _ := wire.Pack(int32(7))
	hdr := wire.Header{Namespace: string(id.Namespace), Rank: int32(id.Rank), Type: wire.User, Tag: 99, Nbytes: uint32(len(payload))}
	hb, _ := hdr.Encode()
	if err := wire.WriteFull(conn, hb); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if err := wire.WriteFull(conn, payload); err != nil {
		t.Fatalf("write payload: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	gotHdr, gotPayload, err := wire.ReadFrame(conn)
	if err != nil {
		t.Fatalf("read echo: %v", err)
	}
	if gotHdr.Tag != 99 {
		t.Fatalf("echoed tag = %d, want 99", gotHdr.Tag)
	}
	var n int32
	if err := wire.Unpack(gotPayload, &n); err != nil || n != 7 {
		t.Fatalf("echoed payload = %d, err = %v", n, err)
	}
}
