package core

import (
	"bytes"
	"fmt"
	"net"

	hcversion "github.com/hashicorp/go-version"
	"github.com/jabolina/pmix-server/pkg/pmix/definition"
	"github.com/jabolina/pmix-server/pkg/pmix/host"
	"github.com/jabolina/pmix-server/pkg/pmix/types"
	"github.com/jabolina/pmix-server/pkg/pmix/wire"
)

// ErrVersionMismatch is returned when the connecting peer's version
// string does not match the server's (spec section 4.3 step 4).
var ErrVersionMismatch = fmt.Errorf("pmix: version mismatch")

// ErrMissingToken is returned when an IDENT_PMIX handshake carries no
// authentication token but the host registered an authenticator (spec
// error kind INVALID_ARG).
var ErrMissingToken = fmt.Errorf("pmix: missing authentication token")

// Handshake performs the connect-ack exchange on a freshly accepted
// socket (spec section 4.3). On success it returns the bound Peer and
// leaves conn set non-blocking-equivalent (the reactor's caller then
// spawns the read/write goroutines); on failure it closes conn itself
// and returns the error.
func Handshake(conn net.Conn, table *Table, serverVersion string, auth func([]byte) error, log definition.Logger) (*Peer, error) {
	hdr, err := wire.ReadHeader(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if hdr.Nbytes > wire.MaxCredSize {
		conn.Close()
		return nil, wire.ErrCredentialTooLarge
	}

	payload := make([]byte, hdr.Nbytes)
	if err := wire.ReadFull(conn, payload); err != nil {
		conn.Close()
		return nil, err
	}

	versionStr, token, err := splitCredential(payload)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if !versionsMatch(versionStr, serverVersion) {
		replyStatus(conn, hdr, types.StatusNotSupported)
		conn.Close()
		return nil, ErrVersionMismatch
	}

	id := types.ID{Namespace: types.Namespace(hdr.Namespace), Rank: types.Rank(hdr.Rank)}
	peer, err := table.BindSocket(id, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if hdr.Type == wire.IdentPMIX && auth != nil {
		if len(token) == 0 {
			table.Unregister(peer)
			conn.Close()
			return nil, ErrMissingToken
		}
		if err := auth(token); err != nil {
			replyStatus(conn, hdr, types.StatusUnreach)
			table.Unregister(peer)
			conn.Close()
			return nil, err
		}
	}

	if err := replyStatus(conn, hdr, types.StatusSuccess); err != nil {
		table.Unregister(peer)
		conn.Close()
		return nil, err
	}

	log.Debugf("handshake complete for %s", id)
	return peer, nil
}

// splitCredential parses the handshake payload: a NUL-terminated
// version string optionally followed by an authentication token.
func splitCredential(payload []byte) (version string, token []byte, err error) {
	i := bytes.IndexByte(payload, 0)
	if i < 0 {
		return string(payload), nil, nil
	}
	version = string(payload[:i])
	rest := payload[i+1:]
	if len(rest) > 0 {
		token = rest
	}
	return version, token, nil
}

// versionsMatch compares the connecting peer's version string against
// the server's using semantic-version equality rather than a byte
// comparison, so "1.2.0" and "v1.2.0" compare equal. If either string
// does not parse as a version, the two strings must match exactly.
func versionsMatch(clientVersion, serverVersion string) bool {
	cv, err := hcversion.NewVersion(clientVersion)
	if err != nil {
		return clientVersion == serverVersion
	}
	sv, err := hcversion.NewVersion(serverVersion)
	if err != nil {
		return clientVersion == serverVersion
	}
	return cv.Equal(sv)
}

// replyStatus sends the handshake's status reply: a header whose
// payload is a single int32 status.
func replyStatus(conn net.Conn, req wire.Header, status types.Status) error {
	payload, err := wire.Pack(int32(status))
	if err != nil {
		return err
	}
	reply := wire.Header{
		Namespace: req.Namespace,
		Rank:      req.Rank,
		Type:      wire.IdentPMIX,
		Tag:       req.Tag,
		Nbytes:    uint32(len(payload)),
	}
	if err := wire.WriteHeader(conn, reply); err != nil {
		return err
	}
	return wire.WriteFull(conn, payload)
}

// AuthenticatorFromModule adapts host.Module.Authenticate to the
// func([]byte) error shape Handshake takes, returning nil (no
// authenticator registered) when the host didn't provide one.
func AuthenticatorFromModule(m *host.Module) func([]byte) error {
	if m == nil || m.Authenticate == nil {
		return nil
	}
	return m.Authenticate
}
