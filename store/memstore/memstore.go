// Package memstore is the default in-memory Store implementation, the
// role core/virtual_machine.go's memState plays for the teacher's VM.
// Spec §1 Non-goals exclude "choice of storage backend" — this exists
// only so the rest of the module is exercisable without an external
// dependency.
package memstore

import (
	"sort"
	"sync"

	"trinci-core/chain"
	"trinci-core/codec"
	"trinci-core/store"
)

// writable is the subset of store.Fork's write methods shared by the
// root MemStore (which commits immediately) and every nested overlay
// (which stages until Merge). Keeping it separate from store.Fork lets
// MemStore satisfy it without also exposing Merge/Discard.
type writable interface {
	store.Store
	putBlock(b chain.Block)
	putTx(hash codec.Hash, tx chain.Transaction)
	putReceipt(hash codec.Hash, rx chain.Receipt)
	putTxsHashes(height uint64, hashes []codec.Hash)
	putRxsHashes(height uint64, hashes []codec.Hash)
	putAccount(a chain.Account)
	putAccountData(id, name string, data []byte)
	putConfig(name string, data []byte)
}

// MemStore is the root store: every write commits directly.
type MemStore struct {
	mu sync.RWMutex

	blocks      map[uint64]chain.Block
	txs         map[codec.Hash]chain.Transaction
	rxs         map[codec.Hash]chain.Receipt
	txsHashes   map[uint64][]codec.Hash
	rxsHashes   map[uint64][]codec.Hash
	accounts    map[string]chain.Account
	accountData map[string]map[string][]byte
	config      map[string][]byte
}

func New() *MemStore {
	return &MemStore{
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

var _ store.Store = (*MemStore)(nil)
var _ writable = (*MemStore)(nil)

func (m *MemStore) Block(height uint64) (chain.Block, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blocks[height]
	return b, ok
}

func (m *MemStore) LastBlock() (chain.Block, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var max uint64
	found := false
	for h := range m.blocks {
		if !found || h > max {
			max, found = h, true
		}
	}
	if !found {
		return chain.Block{}, false
	}
	return m.blocks[max], true
}

func (m *MemStore) Tx(hash codec.Hash) (chain.Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.txs[hash]
	return tx, ok
}

func (m *MemStore) Receipt(hash codec.Hash) (chain.Receipt, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rx, ok := m.rxs[hash]
	return rx, ok
}

func (m *MemStore) TxsHashes(height uint64) ([]codec.Hash, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.txsHashes[height]
	return h, ok
}

func (m *MemStore) Account(id string) (chain.Account, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	return a, ok
}

func (m *MemStore) AccountData(id, name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.accountData[id]
	if !ok {
		return nil, false
	}
	v, ok := d[name]
	return v, ok
}

func (m *MemStore) Config(name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.config[name]
	return v, ok
}

// StateHash folds every keyed space into one deterministic digest. For
// a non-empty id it folds only that account's data (used by contracts
// to read a scoped state root); the empty id folds the whole store,
// matching spec §4.5's BlockData.state_hash = fork.state_hash("").
func (m *MemStore) StateHash(id string) codec.Hash {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id != "" {
		return foldAccount(id, m.accounts[id], m.accountData[id])
	}
	return foldStore(m.accounts, m.accountData)
}

func (m *MemStore) Fork() store.Fork {
	return newOverlay(m)
}

func (m *MemStore) putBlock(b chain.Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[b.Data.Height] = b
}
func (m *MemStore) putTx(hash codec.Hash, tx chain.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs[hash] = tx
}
func (m *MemStore) putReceipt(hash codec.Hash, rx chain.Receipt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rxs[hash] = rx
}
func (m *MemStore) putTxsHashes(height uint64, hashes []codec.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txsHashes[height] = hashes
}
func (m *MemStore) putRxsHashes(height uint64, hashes []codec.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rxsHashes[height] = hashes
}
func (m *MemStore) putAccount(a chain.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = a
}
func (m *MemStore) putAccountData(id, name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.accountData[id]
	if !ok {
		d = make(map[string][]byte)
		m.accountData[id] = d
	}
	d[name] = data
}
func (m *MemStore) putConfig(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config[name] = data
}

func foldAccount(id string, a chain.Account, data map[string][]byte) codec.Hash {
	buf := []byte(id)
	enc, err := codec.Encode(&a)
	if err == nil {
		buf = append(buf, enc...)
	}
	names := make([]string, 0, len(data))
	for n := range data {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		buf = append(buf, n...)
		buf = append(buf, data[n]...)
	}
	return codec.DefaultDigest.Sum(buf)
}

func foldStore(accounts map[string]chain.Account, accountData map[string]map[string][]byte) codec.Hash {
	ids := make([]string, 0, len(accounts))
	for id := range accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	buf := make([]byte, 0, 256)
	for _, id := range ids {
		h := foldAccount(id, accounts[id], accountData[id])
		buf = append(buf, []byte(h)...)
	}
	return codec.DefaultDigest.Sum(buf)
}
