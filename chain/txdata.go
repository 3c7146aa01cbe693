package chain

import "trinci-core/codec"

// TxDataKind tags the TransactionData variant (spec §3). The tag is the
// first field written for any TransactionData so a decoder can dispatch
// on it before interpreting the rest of the array.
type TxDataKind uint8

const (
	KindV1 TxDataKind = iota + 1
	KindBulkRootV1
	KindBulkEmptyRoot
	KindBulkNodeV1
	KindBulkV1
)

// TxData is the sum type spec §3 calls TransactionData. Exactly one of
// the typed fields is populated, matching Kind.
type TxData struct {
	Kind         TxDataKind
	V1           *V1Data
	BulkRootV1   *V1Data // same shape as V1 (spec §3)
	BulkEmptyRoot *BulkEmptyRootData
	BulkNodeV1   *BulkNodeV1Data
	BulkV1       *BulkV1Data
}

// V1Data is spec §3's V1 (and, reused, BulkRootV1): {schema, account,
// fuel_limit, nonce, network, contract?, method, caller, args}.
type V1Data struct {
	Schema    string
	Account   string
	FuelLimit uint64
	Nonce     uint64
	Network   string
	Contract  []byte // optional
	Method    string
	Caller    PublicKey
	Args      []byte
}

// BulkEmptyRootData is spec §3's BulkEmptyRoot placeholder root:
// {fuel_limit, nonce, network, caller}.
type BulkEmptyRootData struct {
	FuelLimit uint64
	Nonce     uint64
	Network   string
	Caller    PublicKey
}

// BulkNodeV1Data is V1's fields plus DependsOn (spec §3 BulkNodeV1).
type BulkNodeV1Data struct {
	V1Data
	DependsOn codec.Hash // hash of the bulk root's data
}

// SignedTxNode is a BulkNodeV1 transaction embedded in a bulk's node list:
// {data: BulkNodeV1, signature}.
type SignedTxNode struct {
	Data      BulkNodeV1Data
	Signature []byte
}

// UnsignedRoot is the bulk's root: either a BulkRootV1 or BulkEmptyRoot,
// unsigned (spec §3: "txs: {root: UnsignedTransaction(...)}").
type UnsignedRoot struct {
	IsEmpty  bool
	RootV1   *V1Data            // set iff !IsEmpty
	EmptyRoot *BulkEmptyRootData // set iff IsEmpty
}

// BulkV1Data is spec §3's BulkV1: {schema, txs: {root, nodes?}}.
type BulkV1Data struct {
	Schema string
	Root   UnsignedRoot
	Nodes  []SignedTxNode // optional
}

func (d *TxData) MarshalCanonical(w *codec.Writer) error {
	w.ArrayHeader(2)
	w.Uint64(uint64(d.Kind))
	switch d.Kind {
	case KindV1:
		return d.V1.marshal(w)
	case KindBulkRootV1:
		return d.BulkRootV1.marshal(w)
	case KindBulkEmptyRoot:
		return d.BulkEmptyRoot.marshal(w)
	case KindBulkNodeV1:
		return d.BulkNodeV1.marshal(w)
	case KindBulkV1:
		return d.BulkV1.marshal(w)
	default:
		return malformed("unknown TransactionData kind")
	}
}

func (d *TxData) UnmarshalCanonical(r *codec.Reader) error {
	n, err := r.ArrayHeader()
	if err != nil {
		return err
	}
	if n != 2 {
		return malformed("txdata: want 2 fields")
	}
	kind, err := r.Uint64()
	if err != nil {
		return err
	}
	d.Kind = TxDataKind(kind)
	switch d.Kind {
	case KindV1:
		d.V1 = &V1Data{}
		return d.V1.unmarshal(r)
	case KindBulkRootV1:
		d.BulkRootV1 = &V1Data{}
		return d.BulkRootV1.unmarshal(r)
	case KindBulkEmptyRoot:
		d.BulkEmptyRoot = &BulkEmptyRootData{}
		return d.BulkEmptyRoot.unmarshal(r)
	case KindBulkNodeV1:
		d.BulkNodeV1 = &BulkNodeV1Data{}
		return d.BulkNodeV1.unmarshal(r)
	case KindBulkV1:
		d.BulkV1 = &BulkV1Data{}
		return d.BulkV1.unmarshal(r)
	default:
		return malformed("unknown TransactionData kind tag")
	}
}

func (v *V1Data) marshal(w *codec.Writer) error {
	w.ArrayHeader(9)
	w.String(v.Schema)
	w.String(v.Account)
	w.Uint64(v.FuelLimit)
	w.Uint64(v.Nonce)
	w.String(v.Network)
	w.OptBytes(v.Contract, v.Contract != nil)
	w.String(v.Method)
	w.Bytes(v.Caller)
	w.Bytes(v.Args)
	return nil
}

func (v *V1Data) unmarshal(r *codec.Reader) error {
	n, err := r.ArrayHeader()
	if err != nil {
		return err
	}
	if n != 9 {
		return malformed("v1: want 9 fields")
	}
	if v.Schema, err = r.String(); err != nil {
		return err
	}
	if v.Account, err = r.String(); err != nil {
		return err
	}
	if v.FuelLimit, err = r.Uint64(); err != nil {
		return err
	}
	if v.Nonce, err = r.Uint64(); err != nil {
		return err
	}
	if v.Network, err = r.String(); err != nil {
		return err
	}
	if v.Contract, _, err = r.OptBytes(); err != nil {
		return err
	}
	if v.Method, err = r.String(); err != nil {
		return err
	}
	var caller []byte
	if caller, err = r.Bytes(); err != nil {
		return err
	}
	v.Caller = PublicKey(caller)
	if v.Args, err = r.Bytes(); err != nil {
		return err
	}
	return nil
}

func (b *BulkEmptyRootData) marshal(w *codec.Writer) error {
	w.ArrayHeader(4)
	w.Uint64(b.FuelLimit)
	w.Uint64(b.Nonce)
	w.String(b.Network)
	w.Bytes(b.Caller)
	return nil
}

func (b *BulkEmptyRootData) unmarshal(r *codec.Reader) error {
	n, err := r.ArrayHeader()
	if err != nil {
		return err
	}
	if n != 4 {
		return malformed("bulk empty root: want 4 fields")
	}
	if b.FuelLimit, err = r.Uint64(); err != nil {
		return err
	}
	if b.Nonce, err = r.Uint64(); err != nil {
		return err
	}
	if b.Network, err = r.String(); err != nil {
		return err
	}
	var caller []byte
	if caller, err = r.Bytes(); err != nil {
		return err
	}
	b.Caller = PublicKey(caller)
	return nil
}

func (n *BulkNodeV1Data) marshal(w *codec.Writer) error {
	w.ArrayHeader(2)
	if err := n.V1Data.marshal(w); err != nil {
		return err
	}
	w.Bytes([]byte(n.DependsOn))
	return nil
}

func (n *BulkNodeV1Data) unmarshal(r *codec.Reader) error {
	m, err := r.ArrayHeader()
	if err != nil {
		return err
	}
	if m != 2 {
		return malformed("bulk node: want 2 fields")
	}
	if err := n.V1Data.unmarshal(r); err != nil {
		return err
	}
	dep, err := r.Bytes()
	if err != nil {
		return err
	}
	n.DependsOn = codec.Hash(dep)
	return nil
}

func (s *SignedTxNode) marshal(w *codec.Writer) error {
	w.ArrayHeader(2)
	if err := s.Data.marshal(w); err != nil {
		return err
	}
	w.Bytes(s.Signature)
	return nil
}

func (s *SignedTxNode) unmarshal(r *codec.Reader) error {
	n, err := r.ArrayHeader()
	if err != nil {
		return err
	}
	if n != 2 {
		return malformed("bulk signed node: want 2 fields")
	}
	if err := s.Data.unmarshal(r); err != nil {
		return err
	}
	if s.Signature, err = r.Bytes(); err != nil {
		return err
	}
	return nil
}

func (u *UnsignedRoot) marshal(w *codec.Writer) error {
	if u.IsEmpty {
		w.ArrayHeader(2)
		w.Uint64(uint64(KindBulkEmptyRoot))
		return u.EmptyRoot.marshal(w)
	}
	w.ArrayHeader(2)
	w.Uint64(uint64(KindBulkRootV1))
	return u.RootV1.marshal(w)
}

func (u *UnsignedRoot) unmarshal(r *codec.Reader) error {
	n, err := r.ArrayHeader()
	if err != nil {
		return err
	}
	if n != 2 {
		return malformed("bulk root: want 2 fields")
	}
	kind, err := r.Uint64()
	if err != nil {
		return err
	}
	switch TxDataKind(kind) {
	case KindBulkEmptyRoot:
		u.IsEmpty = true
		u.EmptyRoot = &BulkEmptyRootData{}
		return u.EmptyRoot.unmarshal(r)
	case KindBulkRootV1:
		u.IsEmpty = false
		u.RootV1 = &V1Data{}
		return u.RootV1.unmarshal(r)
	default:
		return malformed("bulk root: unexpected variant tag")
	}
}

func (b *BulkV1Data) marshal(w *codec.Writer) error {
	w.ArrayHeader(3)
	w.String(b.Schema)
	if err := b.Root.marshal(w); err != nil {
		return err
	}
	w.ArrayHeader(len(b.Nodes))
	for i := range b.Nodes {
		if err := b.Nodes[i].marshal(w); err != nil {
			return err
		}
	}
	return nil
}

func (b *BulkV1Data) unmarshal(r *codec.Reader) error {
	n, err := r.ArrayHeader()
	if err != nil {
		return err
	}
	if n != 3 {
		return malformed("bulkv1: want 3 fields")
	}
	if b.Schema, err = r.String(); err != nil {
		return err
	}
	if err := b.Root.unmarshal(r); err != nil {
		return err
	}
	cnt, err := r.ArrayHeader()
	if err != nil {
		return err
	}
	b.Nodes = make([]SignedTxNode, cnt)
	for i := 0; i < cnt; i++ {
		if err := b.Nodes[i].unmarshal(r); err != nil {
			return err
		}
	}
	return nil
}
