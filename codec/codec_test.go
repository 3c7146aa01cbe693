package codec

import (
	"bytes"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

// pair is a minimal canonical object used to exercise Writer/Reader
// without pulling in package chain.
type pair struct {
	Name string
	N    uint64
}

func (p *pair) MarshalCanonical(w *Writer) error {
	w.ArrayHeader(2)
	w.String(p.Name)
	w.Uint64(p.N)
	return nil
}

func (p *pair) UnmarshalCanonical(r *Reader) error {
	n, err := r.ArrayHeader()
	if err != nil {
		return err
	}
	if n != 2 {
		return errTestMalformed
	}
	if p.Name, err = r.String(); err != nil {
		return err
	}
	if p.N, err = r.Uint64(); err != nil {
		return err
	}
	return nil
}

var errTestMalformed = &testErr{"pair: want 2 fields"}

type testErr struct{ s string }

func (e *testErr) Error() string { return e.s }

func TestRoundTrip(t *testing.T) {
	in := pair{Name: "alpha", N: 42}
	enc, err := Encode(&in)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	var out pair
	if err := Decode(enc, &out); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if out != in {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	in := pair{Name: "beta", N: 7}
	a, err := Encode(&in)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	b, err := Encode(&in)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("encode is not deterministic: %x != %x", a, b)
	}
}

func TestDecodeRejectsMap(t *testing.T) {
	// A canonical decoder must reject a map where a positional array was
	// expected (spec §4.1).
	buf, err := msgpack.Marshal(map[string]any{"name": "alpha", "n": 42})
	if err != nil {
		t.Fatalf("msgpack.Marshal failed: %v", err)
	}
	var out pair
	if err := Decode(buf, &out); err == nil {
		t.Fatalf("expected Decode to reject a map-encoded value")
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	in := pair{Name: "gamma", N: 1}
	enc, err := Encode(&in)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	enc = append(enc, 0x00)
	var out pair
	if err := Decode(enc, &out); err == nil {
		t.Fatalf("expected Decode to reject trailing bytes")
	}
}

func TestDecodeRejectsEmptyBuffer(t *testing.T) {
	var out pair
	if err := Decode(nil, &out); err == nil {
		t.Fatalf("expected Decode to reject an empty buffer")
	}
}

func TestDigestSHA256AndBLAKE3Differ(t *testing.T) {
	data := []byte("trinci-core")
	sha := SHA256.Sum(data)
	blake := BLAKE3.Sum(data)
	if sha == blake {
		t.Fatalf("expected SHA256 and BLAKE3 digests to differ")
	}
	if SHA256.Sum(data) != sha {
		t.Fatalf("SHA256.Sum is not deterministic")
	}
}

func TestHashDependsOnlyOnContent(t *testing.T) {
	a := pair{Name: "same", N: 1}
	b := pair{Name: "same", N: 1}
	ha, err := HashOf(&a)
	if err != nil {
		t.Fatalf("HashOf failed: %v", err)
	}
	hb, err := HashOf(&b)
	if err != nil {
		t.Fatalf("HashOf failed: %v", err)
	}
	if ha != hb {
		t.Fatalf("HashOf should be content-addressed: %s != %s", ha, hb)
	}

	c := pair{Name: "different", N: 1}
	hc, err := HashOf(&c)
	if err != nil {
		t.Fatalf("HashOf failed: %v", err)
	}
	if ha == hc {
		t.Fatalf("HashOf should distinguish different content")
	}
}
