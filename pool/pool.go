// Package pool implements the staging area for unconfirmed transactions
// and confirmed-but-unexecuted block skeletons (spec §3 Pool, §4.2).
package pool

import (
	"sync"

	"trinci-core/chain"
	"trinci-core/codec"
	"trinci-core/errs"
)

// BlockInfo is spec §3's confirmed-slot payload.
type BlockInfo struct {
	Hash      codec.Hash
	HasHash   bool
	Validator chain.PublicKey
	Signature []byte
	TxsHashes []codec.Hash
	HasTxs    bool
	Timestamp int64
}

// Pool holds the three staging structures of spec §3: txs, unconfirmed,
// confirmed. One sync.RWMutex guards all three, since admission,
// block-ingest, and executor-drain all touch more than one of them
// atomically (spec §4.2 lists every operation as "under the pool write
// lock unless noted").
type Pool struct {
	mu sync.RWMutex

	txs         map[codec.Hash]*chain.Transaction // nil value: hash known, body not yet fetched
	unconfirmed []codec.Hash
	unconfirmedSet map[codec.Hash]struct{}
	confirmed   map[uint64]BlockInfo
}

func New() *Pool {
	return &Pool{
		txs:            make(map[codec.Hash]*chain.Transaction),
		unconfirmed:    make([]codec.Hash, 0),
		unconfirmedSet: make(map[codec.Hash]struct{}),
		confirmed:      make(map[uint64]BlockInfo),
	}
}

// Admit inserts (hash, Some(tx)) and appends hash to unconfirmed if
// absent (spec §4.2). Returns DuplicatedUnconfirmed/DuplicatedConfirmed
// on conflict with an existing entry that already has a body.
func (p *Pool) Admit(hash codec.Hash, tx *chain.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.txs[hash]; ok {
		if existing != nil {
			if _, pending := p.unconfirmedSet[hash]; pending {
				return errs.New(errs.DuplicatedUnconfirmed, hash.Hex())
			}
			return errs.New(errs.DuplicatedConfirmed, hash.Hex())
		}
		// Known hash without a body (alignment placeholder): fill it in.
		p.txs[hash] = tx
		return nil
	}

	p.txs[hash] = tx
	p.unconfirmed = append(p.unconfirmed, hash)
	p.unconfirmedSet[hash] = struct{}{}
	return nil
}

// NoteBlockHashes removes each hash from unconfirmed and, if no body is
// present yet, inserts a body-less placeholder (spec §4.2).
func (p *Pool) NoteBlockHashes(hashes []codec.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range hashes {
		p.removeUnconfirmedLocked(h)
		if _, ok := p.txs[h]; !ok {
			p.txs[h] = nil
		}
	}
}

func (p *Pool) removeUnconfirmedLocked(h codec.Hash) {
	if _, ok := p.unconfirmedSet[h]; !ok {
		return
	}
	delete(p.unconfirmedSet, h)
	for i, u := range p.unconfirmed {
		if u == h {
			p.unconfirmed = append(p.unconfirmed[:i], p.unconfirmed[i+1:]...)
			break
		}
	}
}

// InsertConfirmed fills a confirmed slot (spec §4.2).
func (p *Pool) InsertConfirmed(height uint64, info BlockInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmed[height] = info
}

// ReadyFor reports whether confirmed[height] has txs_hashes and every
// referenced hash has a full body (spec §4.2).
func (p *Pool) ReadyFor(height uint64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	info, ok := p.confirmed[height]
	if !ok || !info.HasTxs {
		return false
	}
	for _, h := range info.TxsHashes {
		if tx, ok := p.txs[h]; !ok || tx == nil {
			return false
		}
	}
	return true
}

// TakeConfirmed removes and returns the BlockInfo for height, leaving
// the slot present-but-empty so admission cannot race with the
// executor's read (spec §4.5 step 1: "Take the BlockInfo ... out of
// Pool, leaving the slot present but empty").
func (p *Pool) TakeConfirmed(height uint64) (BlockInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	info, ok := p.confirmed[height]
	if ok {
		p.confirmed[height] = BlockInfo{}
	}
	return info, ok
}

// RemoveConfirmed drops height's confirmed slot entirely (spec §4.5 step 9).
func (p *Pool) RemoveConfirmed(height uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.confirmed, height)
}

// Transaction returns a transaction's body if present (used by reads
// falling back to Pool per spec §4.3, and by the executor to pull a
// confirmed tx's body).
func (p *Pool) Transaction(hash codec.Hash) (*chain.Transaction, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	tx, ok := p.txs[hash]
	return tx, ok && tx != nil
}

// RemoveExecuted drops hash from txs entirely (spec §4.5 step 9: "the
// executed hashes from txs").
func (p *Pool) RemoveExecuted(hash codec.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.txs, hash)
}

// Status serves the pool's part of GetCoreStatsRequest (spec §6):
// (unconfirmed_hash, unconfirmed_len). last_block comes from the store.
type Status struct {
	UnconfirmedHash codec.Hash
	UnconfirmedLen  int
}

// Status computes the current unconfirmed digest and length. The
// "unconfirmed_hash" is the hash of the canonical concatenation of
// pending hashes in order, giving callers a cheap way to detect pool
// churn without transferring the whole list.
func (p *Pool) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	buf := make([]byte, 0, len(p.unconfirmed)*32)
	for _, h := range p.unconfirmed {
		buf = append(buf, []byte(h)...)
	}
	return Status{
		UnconfirmedHash: codec.DefaultDigest.Sum(buf),
		UnconfirmedLen:  len(p.unconfirmed),
	}
}

// Unconfirmed returns a snapshot of pending hashes in selection order.
func (p *Pool) Unconfirmed() []codec.Hash {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]codec.Hash, len(p.unconfirmed))
	copy(out, p.unconfirmed)
	return out
}

// Exists reports whether hash is already known to the pool, in any form.
func (p *Pool) Exists(hash codec.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.txs[hash]
	return ok
}

// ConfirmedInfo returns the BlockInfo currently staged for height, if any.
func (p *Pool) ConfirmedInfo(height uint64) (BlockInfo, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	info, ok := p.confirmed[height]
	return info, ok
}
