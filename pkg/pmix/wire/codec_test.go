package wire

import (
	"bytes"
	"testing"
)

// TestCodec_RoundTrip exercises property P7: every value packed and
// unpacked through the codec comes back byte-for-byte equal.
func TestCodec_RoundTrip(t *testing.T) {
	cases := []interface{}{
		int32(0),
		int32(-7),
		"a namespace",
		[]string{"a", "b", "c"},
		[]byte{1, 2, 3, 4},
	}
	for _, want := range cases {
		b, err := Pack(want)
		if err != nil {
			t.Fatalf("pack %v: %v", want, err)
		}
		switch want.(type) {
		case int32:
			var got int32
			if err := Unpack(b, &got); err != nil {
				t.Fatalf("unpack: %v", err)
			}
			if got != want {
				t.Fatalf("got %v, want %v", got, want)
			}
		case string:
			var got string
			if err := Unpack(b, &got); err != nil {
				t.Fatalf("unpack: %v", err)
			}
			if got != want {
				t.Fatalf("got %v, want %v", got, want)
			}
		case []string:
			var got []string
			if err := Unpack(b, &got); err != nil {
				t.Fatalf("unpack: %v", err)
			}
			wantSlice := want.([]string)
			if len(got) != len(wantSlice) {
				t.Fatalf("got %v, want %v", got, wantSlice)
			}
			for i := range got {
				if got[i] != wantSlice[i] {
					t.Fatalf("got %v, want %v", got, wantSlice)
				}
			}
		case []byte:
			var got []byte
			if err := Unpack(b, &got); err != nil {
				t.Fatalf("unpack: %v", err)
			}
			if !bytes.Equal(got, want.([]byte)) {
				t.Fatalf("got %v, want %v", got, want)
			}
		}
	}
}

func TestPacker_SequentialValues(t *testing.T) {
	p := NewPacker()
	if err := p.Pack(int32(1)); err != nil {
		t.Fatalf("pack: %v", err)
	}
	if err := p.Pack("two"); err != nil {
		t.Fatalf("pack: %v", err)
	}
	if err := p.Pack(int32(3)); err != nil {
		t.Fatalf("pack: %v", err)
	}

	u := NewUnpacker(p.Bytes())
	var a int32
	var b string
	var c int32
	if err := u.Unpack(&a); err != nil {
		t.Fatalf("unpack a: %v", err)
	}
	if err := u.Unpack(&b); err != nil {
		t.Fatalf("unpack b: %v", err)
	}
	if err := u.Unpack(&c); err != nil {
		t.Fatalf("unpack c: %v", err)
	}
	if a != 1 || b != "two" || c != 3 {
		t.Fatalf("got (%d, %q, %d)", a, b, c)
	}

	var extra int32
	if err := u.Unpack(&extra); !UnpackErrIsEOF(err) {
		t.Fatalf("expected EOF past the last value, got %v", err)
	}
}
