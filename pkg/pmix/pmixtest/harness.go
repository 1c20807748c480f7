// Package pmixtest provides small test doubles for exercising a
// pmix.Server end to end: a fake client that speaks the wire protocol
// directly over the rendezvous socket, and helpers for standing up a
// server rooted at a temporary directory. Grounded on the teacher's
// own test harness style (test/testing.go's UnityCluster/TestInvoker:
// small hand-rolled helper types driving a real instance, no mocking
// framework).
package pmixtest

import (
	"net"
	"testing"

	"github.com/jabolina/pmix-server/pkg/pmix"
	"github.com/jabolina/pmix-server/pkg/pmix/host"
	"github.com/jabolina/pmix-server/pkg/pmix/types"
	"github.com/jabolina/pmix-server/pkg/pmix/wire"
)

// StartServer builds and initializes a Server rooted at a fresh
// temporary directory, registering t.Cleanup to finalize it.
func StartServer(t *testing.T, module *host.Module, serverID types.ID) *pmix.Server {
	t.Helper()
	srv := pmix.New(
		pmix.WithModule(module),
		pmix.WithTmpDir(t.TempDir()),
		pmix.WithServerID(serverID),
	)
	if err := srv.Init(); err != nil {
		t.Fatalf("server init: %v", err)
	}
	t.Cleanup(func() {
		if err := srv.Finalize(); err != nil {
			t.Errorf("server finalize: %v", err)
		}
	})
	return srv
}

// Client is a minimal hand-rolled peer: enough wire protocol to
// handshake and exchange framed commands, without any of the real
// client library's state machine.
type Client struct {
	t    *testing.T
	conn net.Conn
	ID   types.ID
}

// Dial pre-registers id in srv's peer table, so its handshake can bind,
// and connects to srv's rendezvous socket without handshaking yet.
func Dial(t *testing.T, srv *pmix.Server, id types.ID) *Client {
	t.Helper()
	srv.Table().RegisterExpected(id)
	conn, err := net.Dial("unix", srv.Path())
	if err != nil {
		t.Fatalf("dial %s: %v", srv.Path(), err)
	}
	t.Cleanup(func() { conn.Close() })
	return &Client{t: t, conn: conn, ID: id}
}

// Handshake performs the connect-ack exchange (spec section 4.3) and
// returns the server's reply status.
func (c *Client) Handshake(version string, token []byte) types.Status {
	c.t.Helper()
	payload := append([]byte(version), 0)
	payload = append(payload, token...)
	hdr := wire.Header{
		Namespace: string(c.ID.Namespace),
		Rank:      int32(c.ID.Rank),
		Type:      wire.IdentPMIX,
		Tag:       0,
		Nbytes:    uint32(len(payload)),
	}
	if err := writeFrame(c.conn, hdr, payload); err != nil {
		c.t.Fatalf("handshake write: %v", err)
	}
	_, reply, err := wire.ReadFrame(c.conn)
	if err != nil {
		c.t.Fatalf("handshake read: %v", err)
	}
	var status int32
	if err := wire.Unpack(reply, &status); err != nil {
		c.t.Fatalf("handshake status decode: %v", err)
	}
	return types.Status(status)
}

// Send packs cmd followed by args, in order, into one USER frame
// tagged tag.
func (c *Client) Send(tag uint32, cmd int32, args ...interface{}) {
	c.t.Helper()
	p := wire.NewPacker()
	if err := p.Pack(cmd); err != nil {
		c.t.Fatalf("pack command: %v", err)
	}
	for _, a := range args {
		if err := p.Pack(a); err != nil {
			c.t.Fatalf("pack argument %v: %v", a, err)
		}
	}
	hdr := wire.Header{
		Namespace: string(c.ID.Namespace),
		Rank:      int32(c.ID.Rank),
		Type:      wire.User,
		Tag:       tag,
		Nbytes:    uint32(len(p.Bytes())),
	}
	if err := writeFrame(c.conn, hdr, p.Bytes()); err != nil {
		c.t.Fatalf("send frame: %v", err)
	}
}

// ReadReply blocks for the next full frame on this client's socket.
func (c *Client) ReadReply() (wire.Header, *wire.Unpacker) {
	c.t.Helper()
	hdr, payload, err := wire.ReadFrame(c.conn)
	if err != nil {
		c.t.Fatalf("read reply: %v", err)
	}
	return hdr, wire.NewUnpacker(payload)
}

// Close closes the underlying connection early, simulating a dropped
// peer (spec section 9's open question on disconnect during a live
// tracker).
func (c *Client) Close() {
	c.conn.Close()
}

func writeFrame(conn net.Conn, hdr wire.Header, payload []byte) error {
	hb, err := hdr.Encode()
	if err != nil {
		return err
	}
	if err := wire.WriteFull(conn, hb); err != nil {
		return err
	}
	return wire.WriteFull(conn, payload)
}
