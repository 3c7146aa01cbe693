package memstore

import (
	"trinci-core/chain"
	"trinci-core/codec"
	"trinci-core/store"
)

// overlay is a staged write buffer over a parent writable (either the
// root MemStore or another overlay), implementing store.Fork (spec
// glossary: "Fork"). Reads fall through to the parent for keys not
// written locally; Merge pushes local writes up one level; Discard
// drops them.
type overlay struct {
	parent writable

	blocks      map[uint64]chain.Block
	txs         map[codec.Hash]chain.Transaction
	rxs         map[codec.Hash]chain.Receipt
	txsHashes   map[uint64][]codec.Hash
	rxsHashes   map[uint64][]codec.Hash
	accounts    map[string]chain.Account
	accountData map[string]map[string][]byte
	config      map[string][]byte
}

func newOverlay(parent writable) *overlay {
	return &overlay{
		parent:      parent,
		blocks:      make(map[uint64]chain.Block),
		txs:         make(map[codec.Hash]chain.Transaction),
		rxs:         make(map[codec.Hash]chain.Receipt),
		txsHashes:   make(map[uint64][]codec.Hash),
		rxsHashes:   make(map[uint64][]codec.Hash),
		accounts:    make(map[string]chain.Account),
		accountData: make(map[string]map[string][]byte),
		config:      make(map[string][]byte),
	}
}

var _ store.Fork = (*overlay)(nil)
var _ writable = (*overlay)(nil)

func (o *overlay) Block(height uint64) (chain.Block, bool) {
	if b, ok := o.blocks[height]; ok {
		return b, true
	}
	return o.parent.Block(height)
}

func (o *overlay) LastBlock() (chain.Block, bool) {
	var best chain.Block
	found := false
	for _, b := range o.blocks {
		if !found || b.Data.Height > best.Data.Height {
			best, found = b, true
		}
	}
	if pb, ok := o.parent.LastBlock(); ok {
		if _, shadowed := o.blocks[pb.Data.Height]; !shadowed && (!found || pb.Data.Height > best.Data.Height) {
			best, found = pb, true
		}
	}
	return best, found
}

func (o *overlay) Tx(hash codec.Hash) (chain.Transaction, bool) {
	if tx, ok := o.txs[hash]; ok {
		return tx, true
	}
	return o.parent.Tx(hash)
}

func (o *overlay) Receipt(hash codec.Hash) (chain.Receipt, bool) {
	if rx, ok := o.rxs[hash]; ok {
		return rx, true
	}
	return o.parent.Receipt(hash)
}

func (o *overlay) TxsHashes(height uint64) ([]codec.Hash, bool) {
	if h, ok := o.txsHashes[height]; ok {
		return h, true
	}
	return o.parent.TxsHashes(height)
}

func (o *overlay) Account(id string) (chain.Account, bool) {
	if a, ok := o.accounts[id]; ok {
		return a, true
	}
	return o.parent.Account(id)
}

func (o *overlay) AccountData(id, name string) ([]byte, bool) {
	if d, ok := o.accountData[id]; ok {
		if v, ok := d[name]; ok {
			return v, true
		}
	}
	return o.parent.AccountData(id, name)
}

func (o *overlay) Config(name string) ([]byte, bool) {
	if v, ok := o.config[name]; ok {
		return v, true
	}
	return o.parent.Config(name)
}

func (o *overlay) StateHash(id string) codec.Hash {
	if id != "" {
		acc, _ := o.Account(id)
		data := make(map[string][]byte, len(o.accountData[id]))
		for k, v := range o.accountData[id] {
			data[k] = v
		}
		return foldAccount(id, acc, data)
	}
	// Whole-store fold: only practical against the root, so walk up.
	if root, ok := o.parent.(*MemStore); ok {
		root.mu.RLock()
		accounts := make(map[string]chain.Account, len(root.accounts))
		for k, v := range root.accounts {
			accounts[k] = v
		}
		accountData := make(map[string]map[string][]byte, len(root.accountData))
		for k, v := range root.accountData {
			accountData[k] = v
		}
		root.mu.RUnlock()
		for k, v := range o.accounts {
			accounts[k] = v
		}
		for k, v := range o.accountData {
			if _, ok := accountData[k]; !ok {
				accountData[k] = map[string][]byte{}
			}
			for kk, vv := range v {
				accountData[k][kk] = vv
			}
		}
		return foldStore(accounts, accountData)
	}
	// Nested fork: delegate to parent overlay's fold, then re-fold
	// accounts touched locally on top of it — in practice StateHash("")
	// is only read once per block, from the block-level fork directly
	// over the root store.
	return o.parent.StateHash("")
}

func (o *overlay) Fork() store.Fork { return newOverlay(o) }

func (o *overlay) putBlock(b chain.Block)                      { o.blocks[b.Data.Height] = b }
func (o *overlay) putTx(hash codec.Hash, tx chain.Transaction) { o.txs[hash] = tx }
func (o *overlay) putReceipt(hash codec.Hash, rx chain.Receipt) { o.rxs[hash] = rx }
func (o *overlay) putTxsHashes(height uint64, hashes []codec.Hash) { o.txsHashes[height] = hashes }
func (o *overlay) putRxsHashes(height uint64, hashes []codec.Hash) { o.rxsHashes[height] = hashes }
func (o *overlay) putAccount(a chain.Account)                  { o.accounts[a.ID] = a }
func (o *overlay) putAccountData(id, name string, data []byte) {
	d, ok := o.accountData[id]
	if !ok {
		d = make(map[string][]byte)
		o.accountData[id] = d
	}
	d[name] = data
}
func (o *overlay) putConfig(name string, data []byte) { o.config[name] = data }

func (o *overlay) PutBlock(b chain.Block)                      { o.putBlock(b) }
func (o *overlay) PutTx(hash codec.Hash, tx chain.Transaction) { o.putTx(hash, tx) }
func (o *overlay) PutReceipt(hash codec.Hash, rx chain.Receipt) { o.putReceipt(hash, rx) }
func (o *overlay) PutTxsHashes(height uint64, hashes []codec.Hash) { o.putTxsHashes(height, hashes) }
func (o *overlay) PutRxsHashes(height uint64, hashes []codec.Hash) { o.putRxsHashes(height, hashes) }
func (o *overlay) PutAccount(a chain.Account)                  { o.putAccount(a) }
func (o *overlay) PutAccountData(id, name string, data []byte) { o.putAccountData(id, name, data) }
func (o *overlay) PutConfig(name string, data []byte)          { o.putConfig(name, data) }

// TxsRoot/RxsRoot fold an ordered hash list into one digest: a simple
// deterministic root satisfying the store's contract (spec §4.5 step 3)
// without committing to a specific trie implementation, which spec §1
// leaves out of scope ("choice of storage backend").
func (o *overlay) TxsRoot(hashes []codec.Hash) codec.Hash { return foldHashes(hashes) }
func (o *overlay) RxsRoot(hashes []codec.Hash) codec.Hash { return foldHashes(hashes) }

func foldHashes(hashes []codec.Hash) codec.Hash {
	buf := make([]byte, 0, len(hashes)*32)
	for _, h := range hashes {
		buf = append(buf, []byte(h)...)
	}
	return codec.DefaultDigest.Sum(buf)
}

// Merge pushes every staged write up to the parent (spec §4.5 step 8).
// It cannot itself fail in this in-memory implementation, but returns
// an error to satisfy store.Fork for backends where merge can fail
// (e.g. a disk-backed store hitting an I/O error).
func (o *overlay) Merge() error {
	for _, b := range o.blocks {
		o.parent.putBlock(b)
	}
	for h, tx := range o.txs {
		o.parent.putTx(h, tx)
	}
	for h, rx := range o.rxs {
		o.parent.putReceipt(h, rx)
	}
	for height, hashes := range o.txsHashes {
		o.parent.putTxsHashes(height, hashes)
	}
	for height, hashes := range o.rxsHashes {
		o.parent.putRxsHashes(height, hashes)
	}
	for _, a := range o.accounts {
		o.parent.putAccount(a)
	}
	for id, data := range o.accountData {
		for name, v := range data {
			o.parent.putAccountData(id, name, v)
		}
	}
	for name, v := range o.config {
		o.parent.putConfig(name, v)
	}
	return nil
}

// Discard abandons every staged write (spec §4.5's "roll back the fork").
func (o *overlay) Discard() {
	o.blocks = make(map[uint64]chain.Block)
	o.txs = make(map[codec.Hash]chain.Transaction)
	o.rxs = make(map[codec.Hash]chain.Receipt)
	o.txsHashes = make(map[uint64][]codec.Hash)
	o.rxsHashes = make(map[uint64][]codec.Hash)
	o.accounts = make(map[string]chain.Account)
	o.accountData = make(map[string]map[string][]byte)
	o.config = make(map[string][]byte)
}
