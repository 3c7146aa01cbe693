package chain

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"

	"trinci-core/codec"
	"trinci-core/errs"
)

// TxKind tags the outer Transaction sum type (spec §3: "Transaction is
// one of UnitTransaction{...} or BulkTransaction{...}").
type TxKind uint8

const (
	KindUnit TxKind = iota + 1
	KindBulk
)

// Transaction is the wire/storage envelope: TxData plus its signature.
type Transaction struct {
	Kind      TxKind
	Data      TxData
	Signature []byte
}

func (t *Transaction) MarshalCanonical(w *codec.Writer) error {
	w.ArrayHeader(3)
	w.Uint64(uint64(t.Kind))
	if err := t.Data.MarshalCanonical(w); err != nil {
		return err
	}
	w.Bytes(t.Signature)
	return nil
}

func (t *Transaction) UnmarshalCanonical(r *codec.Reader) error {
	n, err := r.ArrayHeader()
	if err != nil {
		return err
	}
	if n != 3 {
		return malformed("transaction: want 3 fields")
	}
	kind, err := r.Uint64()
	if err != nil {
		return err
	}
	t.Kind = TxKind(kind)
	if err := t.Data.UnmarshalCanonical(r); err != nil {
		return err
	}
	if t.Signature, err = r.Bytes(); err != nil {
		return err
	}
	switch t.Kind {
	case KindUnit:
		if t.Data.Kind != KindV1 {
			return malformed("unit transaction must carry V1 data")
		}
	case KindBulk:
		if t.Data.Kind != KindBulkV1 {
			return malformed("bulk transaction must carry BulkV1 data")
		}
	default:
		return malformed("transaction: unknown kind tag")
	}
	return nil
}

// Hash returns the canonical hash of the transaction's data (spec §3/§8:
// "hash(x) = digest(encode(x))", signatures are over data, hashes used
// in scenario vectors are over data too).
func (t *Transaction) Hash() (codec.Hash, error) {
	return dataHash(&t.Data)
}

func dataHash(d *TxData) (codec.Hash, error) {
	b, err := codec.Encode(d)
	if err != nil {
		return "", err
	}
	return codec.DefaultDigest.Sum(b), nil
}

// signingCaller returns the public key a Transaction's signature must
// verify against (spec §3 invariant: Unit verifies against data.caller;
// Bulk verifies against the bulk root's caller).
func (t *Transaction) signingCaller() (PublicKey, error) {
	switch t.Kind {
	case KindUnit:
		return t.Data.V1.Caller, nil
	case KindBulk:
		root := t.Data.BulkV1.Root
		if root.IsEmpty {
			return root.EmptyRoot.Caller, nil
		}
		return root.RootV1.Caller, nil
	default:
		return nil, malformed("signingCaller: unknown tx kind")
	}
}

// Sign signs the transaction's data with priv and sets t.Signature.
func Sign(t *Transaction, priv *ecdsa.PrivateKey) error {
	h, err := dataHash(&t.Data)
	if err != nil {
		return err
	}
	sig, err := SignHash(priv, h)
	if err != nil {
		return err
	}
	t.Signature = sig
	return nil
}

// SignHash signs an arbitrary digest with priv (spec §3: both a
// transaction's data hash and a block's data hash are signed the same
// way, over the raw digest bytes).
func SignHash(priv *ecdsa.PrivateKey, h codec.Hash) ([]byte, error) {
	sig, err := ecdsa.SignASN1(rand.Reader, priv, []byte(h))
	if err != nil {
		return nil, errs.Wrap(errs.Other, "sign hash", err)
	}
	return sig, nil
}

// VerifyHash verifies sig against h under the PKIX-encoded public key
// pub, used for both transaction signatures and block signatures.
func VerifyHash(pub PublicKey, h codec.Hash, sig []byte) error {
	parsed, err := x509.ParsePKIXPublicKey(pub)
	if err != nil {
		return errs.Wrap(errs.InvalidSignature, "parse public key", err)
	}
	ecpub, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return errs.New(errs.InvalidSignature, "key is not ECDSA")
	}
	if !ecdsa.VerifyASN1(ecpub, []byte(h), sig) {
		return errs.New(errs.InvalidSignature, "signature does not verify")
	}
	return nil
}

// Verify checks the transaction's signature against its caller's public
// key (spec §3 invariant, spec §8 "a single byte flip ... yields
// InvalidSignature").
func (t *Transaction) Verify() error {
	caller, err := t.signingCaller()
	if err != nil {
		return err
	}
	h, err := dataHash(&t.Data)
	if err != nil {
		return err
	}
	return VerifyHash(caller, h, t.Signature)
}

// NewKeypair is a convenience for tests and the CLI: a fresh P-384
// ECDSA keypair, the curve spec §8's scenario vectors use.
func NewKeypair() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
}

// EncodePublicKey renders a public key the way Transaction.Caller fields
// store it: PKIX/DER, matching what Verify expects to parse back.
func EncodePublicKey(pub *ecdsa.PublicKey) (PublicKey, error) {
	b, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return PublicKey(b), nil
}
