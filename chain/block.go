package chain

import "trinci-core/codec"

// GenesisSignature is the fixed five-byte sentinel signature of the
// genesis block (spec §3: "Genesis (height 0) has validator = none and
// a fixed five-byte sentinel signature").
var GenesisSignature = []byte{0x47, 0x45, 0x4e, 0x00, 0x00} // "GEN\0\0"

// BlockData is spec §3's BlockData: {validator?, height, size,
// prev_hash, txs_hash, rxs_hash, state_hash, timestamp}.
type BlockData struct {
	Validator PublicKey // optional: nil at genesis
	Height    uint64
	Size      uint64
	PrevHash  codec.Hash
	TxsHash   codec.Hash
	RxsHash   codec.Hash
	StateHash codec.Hash
	Timestamp int64
}

func (b *BlockData) MarshalCanonical(w *codec.Writer) error {
	w.ArrayHeader(8)
	w.OptBytes(b.Validator, b.Validator != nil)
	w.Uint64(b.Height)
	w.Uint64(b.Size)
	w.Bytes([]byte(b.PrevHash))
	w.Bytes([]byte(b.TxsHash))
	w.Bytes([]byte(b.RxsHash))
	w.Bytes([]byte(b.StateHash))
	w.Int64(b.Timestamp)
	return nil
}

func (b *BlockData) UnmarshalCanonical(r *codec.Reader) error {
	n, err := r.ArrayHeader()
	if err != nil {
		return err
	}
	if n != 8 {
		return malformed("blockdata: want 8 fields")
	}
	if b.Validator, _, err = r.OptBytes(); err != nil {
		return err
	}
	if b.Height, err = r.Uint64(); err != nil {
		return err
	}
	if b.Size, err = r.Uint64(); err != nil {
		return err
	}
	var h []byte
	if h, err = r.Bytes(); err != nil {
		return err
	}
	b.PrevHash = codec.Hash(h)
	if h, err = r.Bytes(); err != nil {
		return err
	}
	b.TxsHash = codec.Hash(h)
	if h, err = r.Bytes(); err != nil {
		return err
	}
	b.RxsHash = codec.Hash(h)
	if h, err = r.Bytes(); err != nil {
		return err
	}
	b.StateHash = codec.Hash(h)
	if b.Timestamp, err = r.Int64(); err != nil {
		return err
	}
	return nil
}

// Hash returns the canonical hash of the block's data.
func (b *BlockData) Hash() (codec.Hash, error) {
	enc, err := codec.Encode(b)
	if err != nil {
		return "", err
	}
	return codec.DefaultDigest.Sum(enc), nil
}

// Block is spec §3's Block: {data, signature}.
type Block struct {
	Data      BlockData
	Signature []byte
}

func (b *Block) MarshalCanonical(w *codec.Writer) error {
	w.ArrayHeader(2)
	if err := b.Data.MarshalCanonical(w); err != nil {
		return err
	}
	w.Bytes(b.Signature)
	return nil
}

func (b *Block) UnmarshalCanonical(r *codec.Reader) error {
	n, err := r.ArrayHeader()
	if err != nil {
		return err
	}
	if n != 2 {
		return malformed("block: want 2 fields")
	}
	if err := b.Data.UnmarshalCanonical(r); err != nil {
		return err
	}
	if b.Signature, err = r.Bytes(); err != nil {
		return err
	}
	return nil
}

// IsGenesis reports whether b is the genesis block (height 0, no validator).
func (b *Block) IsGenesis() bool {
	return b.Data.Height == 0 && b.Data.Validator == nil
}
