// Package wire implements the fixed-layout message header, the
// blocking and non-blocking framing disciplines used over the
// rendezvous socket, and the typed payload codec.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"
)

// NSLEN bounds a namespace string on the wire.
const NSLEN = 256

// MaxCredSize caps a handshake payload (spec invariant I2).
const MaxCredSize = 1 << 20

// MsgType distinguishes the handshake header from steady-state frames.
type MsgType uint8

const (
	// IdentPMIX marks a connect-ack handshake header.
	IdentPMIX MsgType = 1
	// User marks a steady-state application frame.
	User MsgType = 2
)

// nativeEndian is resolved once at init time. The wire format is
// explicitly native-order (spec: "this is a local-socket protocol
// only"), so unlike a network protocol we do not fix big/little endian
// and instead detect the host's order, the same trick raw local-IPC
// framing code (netlink, PF_PACKET) uses.
var nativeEndian binary.ByteOrder

func init() {
	var x uint16 = 1
	b := (*[2]byte)(unsafe.Pointer(&x))
	if b[0] == 1 {
		nativeEndian = binary.LittleEndian
	} else {
		nativeEndian = binary.BigEndian
	}
}

// headerWireLen is the encoded size of a Header: NSLEN bytes namespace,
// 4 bytes rank, 1 byte type, 4 bytes tag, 4 bytes nbytes.
const headerWireLen = NSLEN + 4 + 1 + 4 + 4

// Header is the fixed framing header described by the spec: fixed-width
// namespace, int32 rank, enum type, uint32 tag, uint32 nbytes.
type Header struct {
	Namespace string
	Rank      int32
	Type      MsgType
	Tag       uint32
	Nbytes    uint32
}

// ErrCredentialTooLarge is returned when a handshake payload exceeds
// MaxCredSize (spec invariant I2, error kind BAD_PARAM).
var ErrCredentialTooLarge = errors.New("pmix: handshake credential exceeds MAX_CRED_SIZE")

// ErrNamespaceTooLong is returned when a namespace string does not fit
// the fixed-width wire field.
var ErrNamespaceTooLong = fmt.Errorf("pmix: namespace exceeds %d bytes", NSLEN-1)

// Encode writes h in the fixed wire layout.
func (h Header) Encode() ([]byte, error) {
	if len(h.Namespace) > NSLEN-1 {
		return nil, ErrNamespaceTooLong
	}
	buf := make([]byte, headerWireLen)
	copy(buf[0:NSLEN], h.Namespace)
	nativeEndian.PutUint32(buf[NSLEN:NSLEN+4], uint32(h.Rank))
	buf[NSLEN+4] = byte(h.Type)
	nativeEndian.PutUint32(buf[NSLEN+5:NSLEN+9], h.Tag)
	nativeEndian.PutUint32(buf[NSLEN+9:NSLEN+13], h.Nbytes)
	return buf, nil
}

// DecodeHeader parses a fixed-width header from exactly headerWireLen
// bytes.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) != headerWireLen {
		return Header{}, fmt.Errorf("pmix: short header: got %d want %d bytes", len(buf), headerWireLen)
	}
	var h Header
	nsBytes := buf[0:NSLEN]
	if i := bytes.IndexByte(nsBytes, 0); i >= 0 {
		nsBytes = nsBytes[:i]
	}
	h.Namespace = string(nsBytes)
	h.Rank = int32(nativeEndian.Uint32(buf[NSLEN : NSLEN+4]))
	h.Type = MsgType(buf[NSLEN+4])
	h.Tag = nativeEndian.Uint32(buf[NSLEN+5 : NSLEN+9])
	h.Nbytes = nativeEndian.Uint32(buf[NSLEN+9 : NSLEN+13])
	return h, nil
}

// HeaderWireLen exposes the fixed encoded header size to callers that
// need to size buffers without depending on package internals.
func HeaderWireLen() int { return headerWireLen }
