package wire

import "testing"

func TestHeader_EncodeDecodeRoundTrip(t *testing.T) {
	h := Header{
		Namespace: "job1",
		Rank:      7,
		Type:      User,
		Tag:       42,
		Nbytes:    128,
	}
	buf, err := h.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(buf) != HeaderWireLen() {
		t.Fatalf("encoded length %d, want %d", len(buf), HeaderWireLen())
	}
	got, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestHeader_EncodeRejectsOversizeNamespace(t *testing.T) {
	big := make([]byte, NSLEN)
	for i := range big {
		big[i] = 'x'
	}
	h := Header{Namespace: string(big)}
	if _, err := h.Encode(); err != ErrNamespaceTooLong {
		t.Fatalf("expected ErrNamespaceTooLong, got %v", err)
	}
}

func TestDecodeHeader_RejectsShortBuffer(t *testing.T) {
	if _, err := DecodeHeader(make([]byte, HeaderWireLen()-1)); err == nil {
		t.Fatalf("expected error decoding short buffer")
	}
}
