package dispatcher

import (
	"trinci-core/chain"
	"trinci-core/codec"
	"trinci-core/errs"
)

// BlockGossip is the payload carried on the BLOCK topic (spec §6: "BLOCK
// (proposed, outbound-gossip)"). A gossiped block arrives together with
// its ordered transaction-hash list, the same pairing the aligner's
// get-block-request response carries (spec §4.4 step 4), since BlockData
// only names a txs_hash trie root rather than the ordered list itself.
type BlockGossip struct {
	Block     chain.Block
	TxsHashes []codec.Hash
}

func (g *BlockGossip) MarshalCanonical(w *codec.Writer) error {
	w.ArrayHeader(2)
	if err := g.Block.MarshalCanonical(w); err != nil {
		return err
	}
	w.ArrayHeader(len(g.TxsHashes))
	for _, h := range g.TxsHashes {
		w.Bytes([]byte(h))
	}
	return nil
}

func (g *BlockGossip) UnmarshalCanonical(r *codec.Reader) error {
	n, err := r.ArrayHeader()
	if err != nil {
		return err
	}
	if n != 2 {
		return errs.New(errs.Malformed, "blockgossip: want 2 fields")
	}
	if err := g.Block.UnmarshalCanonical(r); err != nil {
		return err
	}
	count, err := r.ArrayHeader()
	if err != nil {
		return err
	}
	hashes := make([]codec.Hash, count)
	for i := range hashes {
		b, err := r.Bytes()
		if err != nil {
			return err
		}
		hashes[i] = codec.Hash(b)
	}
	g.TxsHashes = hashes
	return nil
}

// EncodeBlockGossip/DecodeBlockGossip are the BLOCK topic's wire pair.
func EncodeBlockGossip(g BlockGossip) ([]byte, error) { return codec.Encode(&g) }

func DecodeBlockGossip(b []byte) (BlockGossip, error) {
	var g BlockGossip
	err := codec.Decode(b, &g)
	return g, err
}
