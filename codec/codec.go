// Package codec implements the canonical, positional MessagePack
// encoding that every core object uses for hashing and signing (spec
// §4.1). Canonical form means: every structured object is an anonymous
// (positional) MessagePack array, never a map — decoding a map where an
// array was expected is rejected as Malformed, and so is any trailing
// byte left after a value is fully decoded.
package codec

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"

	"trinci-core/errs"
)

// Marshaler is implemented by every canonical object.
type Marshaler interface {
	MarshalCanonical(w *Writer) error
}

// Unmarshaler is implemented by every canonical object.
type Unmarshaler interface {
	UnmarshalCanonical(r *Reader) error
}

// Writer builds a canonical positional MessagePack encoding.
type Writer struct {
	buf *bytes.Buffer
	enc *msgpack.Encoder
}

func newWriter() *Writer {
	buf := &bytes.Buffer{}
	return &Writer{buf: buf, enc: msgpack.NewEncoder(buf)}
}

func (w *Writer) ArrayHeader(n int) { _ = w.enc.EncodeArrayLen(n) }
func (w *Writer) Bytes(b []byte)    { _ = w.enc.EncodeBytes(b) }
func (w *Writer) String(s string)   { _ = w.enc.EncodeString(s) }
func (w *Writer) Uint64(v uint64)   { _ = w.enc.EncodeUint64(v) }
func (w *Writer) Int64(v int64)     { _ = w.enc.EncodeInt64(v) }
func (w *Writer) Bool(v bool)       { _ = w.enc.EncodeBool(v) }

// Nil writes a nil (used for optional/absent fields, e.g. Account.Contract).
func (w *Writer) Nil() { _ = w.enc.EncodeNil() }

// OptBytes writes nil if present is false, otherwise the bytes.
func (w *Writer) OptBytes(b []byte, present bool) {
	if !present {
		w.Nil()
		return
	}
	w.Bytes(b)
}

// OptString writes nil if present is false, otherwise the string.
func (w *Writer) OptString(s string, present bool) {
	if !present {
		w.Nil()
		return
	}
	w.String(s)
}

// Raw writes the canonical encoding of a nested Marshaler inline (no
// extra wrapper), so nested objects compose into the same flat stream.
func (w *Writer) Raw(m Marshaler) error { return m.MarshalCanonical(w) }

// Reader walks a canonical positional MessagePack encoding.
type Reader struct {
	dec *msgpack.Decoder
}

func newReader(b []byte) *Reader {
	return &Reader{dec: msgpack.NewDecoder(bytes.NewReader(b))}
}

func (r *Reader) ArrayHeader() (int, error) {
	n, err := r.dec.DecodeArrayLen()
	if err != nil {
		return 0, errs.Wrap(errs.Malformed, "expected array header", err)
	}
	return n, nil
}

func (r *Reader) Bytes() ([]byte, error) {
	b, err := r.dec.DecodeBytes()
	if err != nil {
		return nil, errs.Wrap(errs.Malformed, "expected bytes", err)
	}
	return b, nil
}

func (r *Reader) String() (string, error) {
	s, err := r.dec.DecodeString()
	if err != nil {
		return "", errs.Wrap(errs.Malformed, "expected string", err)
	}
	return s, nil
}

func (r *Reader) Uint64() (uint64, error) {
	v, err := r.dec.DecodeUint64()
	if err != nil {
		return 0, errs.Wrap(errs.Malformed, "expected uint64", err)
	}
	return v, nil
}

func (r *Reader) Int64() (int64, error) {
	v, err := r.dec.DecodeInt64()
	if err != nil {
		return 0, errs.Wrap(errs.Malformed, "expected int64", err)
	}
	return v, nil
}

func (r *Reader) Bool() (bool, error) {
	v, err := r.dec.DecodeBool()
	if err != nil {
		return false, errs.Wrap(errs.Malformed, "expected bool", err)
	}
	return v, nil
}

// IsNil peeks at the next value; if it is nil, consumes it and returns true.
func (r *Reader) IsNil() (bool, error) {
	code, err := r.dec.PeekCode()
	if err != nil {
		return false, errs.Wrap(errs.Malformed, "peek code", err)
	}
	if code == msgpcode.Nil {
		_ = r.dec.DecodeNil()
		return true, nil
	}
	return false, nil
}

// OptBytes reads an optional byte slice: nil or bytes.
func (r *Reader) OptBytes() ([]byte, bool, error) {
	if nilv, err := r.IsNil(); err != nil {
		return nil, false, err
	} else if nilv {
		return nil, false, nil
	}
	b, err := r.Bytes()
	return b, err == nil, err
}

// OptString reads an optional string: nil or string.
func (r *Reader) OptString() (string, bool, error) {
	if nilv, err := r.IsNil(); err != nil {
		return "", false, err
	} else if nilv {
		return "", false, nil
	}
	s, err := r.String()
	return s, err == nil, err
}

// Encode produces the canonical encoding of m.
func Encode(m Marshaler) ([]byte, error) {
	w := newWriter()
	if err := m.MarshalCanonical(w); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}

// Decode fills u from the canonical encoding b, failing on trailing bytes.
func Decode(b []byte, u Unmarshaler) error {
	if len(b) == 0 {
		return errs.New(errs.Malformed, "empty buffer")
	}
	// The leading array-tag high nibble check (spec §4.1): the first
	// MessagePack byte for a fixarray/array16/array32 always has its
	// high nibble in {0x9, 0xd, 0xd} range (fixarray 0x90-0x9f, array16
	// 0xdc, array32 0xdd). Anything else (a map, a scalar) is rejected
	// up front rather than relying on the decoder to stumble into it.
	if !isArrayTag(b[0]) {
		return errs.New(errs.Malformed, "top-level value is not an array")
	}
	r := newReader(b)
	if err := u.UnmarshalCanonical(r); err != nil {
		return err
	}
	if _, err := r.dec.PeekCode(); err == nil {
		return errs.New(errs.Malformed, "trailing bytes after decode")
	}
	return nil
}

func isArrayTag(b byte) bool {
	if b >= 0x90 && b <= 0x9f {
		return true
	}
	return b == 0xdc || b == 0xdd
}

// HashOf returns the canonical hash of m using DefaultDigest.
func HashOf(m Marshaler) (Hash, error) {
	b, err := Encode(m)
	if err != nil {
		return "", err
	}
	return DefaultDigest.Sum(b), nil
}
