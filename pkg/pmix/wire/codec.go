package wire

import (
	"bytes"
	"io"

	"github.com/hashicorp/go-msgpack/codec"
)

// mh is the shared msgpack handle for every Pack/Unpack call. The spec
// treats "the serialization codec" as an opaque external service the
// core only ever calls through pack/unpack; this is that boundary.
var mh = &codec.MsgpackHandle{}

// Packer accumulates a sequence of typed values into one outgoing
// buffer, mirroring the spec's pack(buf, value, type) service: the
// switchyard packs a status, then per-command trailing fields, one
// call at a time, onto the same reply buffer.
type Packer struct {
	buf bytes.Buffer
	enc *codec.Encoder
}

// NewPacker starts a fresh outgoing buffer.
func NewPacker() *Packer {
	p := &Packer{}
	p.enc = codec.NewEncoder(&p.buf, mh)
	return p
}

// Pack appends the encoding of v.
func (p *Packer) Pack(v interface{}) error {
	return p.enc.Encode(v)
}

// Bytes returns the buffer accumulated so far.
func (p *Packer) Bytes() []byte {
	return p.buf.Bytes()
}

// Unpacker decodes a sequence of typed values from one incoming
// buffer in order, mirroring the spec's unpack(buf, &out, &count,
// type) service: the switchyard decodes a command's arguments one
// field at a time from the same request payload.
type Unpacker struct {
	dec *codec.Decoder
}

// NewUnpacker wraps payload for sequential decoding.
func NewUnpacker(payload []byte) *Unpacker {
	return &Unpacker{dec: codec.NewDecoder(bytes.NewReader(payload), mh)}
}

// Unpack decodes the next value into v, which must be a pointer.
func (u *Unpacker) Unpack(v interface{}) error {
	return u.dec.Decode(v)
}

// UnpackErrIsEOF reports whether err from Unpack indicates the buffer
// is exhausted, i.e. the "until EOF" loop terminator the spec's
// FENCE/FENCE_NB handler relies on.
func UnpackErrIsEOF(err error) bool {
	return err == io.EOF
}

// Pack is a one-shot convenience for encoding a single value.
func Pack(v interface{}) ([]byte, error) {
	p := NewPacker()
	if err := p.Pack(v); err != nil {
		return nil, err
	}
	return p.Bytes(), nil
}

// Unpack is a one-shot convenience for decoding a single value.
func Unpack(b []byte, v interface{}) error {
	return NewUnpacker(b).Unpack(v)
}
