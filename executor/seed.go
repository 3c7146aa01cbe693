package executor

import (
	"sync"
	"sync/atomic"

	"trinci-core/codec"
	"trinci-core/contracthost"
)

// SeedSource holds the per-node randomness seed state spec §4.5
// describes: "(network_name, nonce, prev_hash, txs_hash, rxs_hash,
// previous_seed)". Per spec §9's design note it is "not actually
// global ... a per-node object shared by reference, with interior
// mutability guarded by fine-grained locks per field": the two
// frequently-touched counters use atomics, and the hash triplet (always
// refreshed together, once per block commit) shares one small mutex
// rather than one per field, since refreshing them independently would
// let a reader observe a torn (prev_hash, txs_hash, rxs_hash) tuple.
type SeedSource struct {
	networkName string // immutable after construction

	nonce        atomic.Uint64
	previousSeed atomic.Uint64

	hashMu   sync.RWMutex
	prevHash codec.Hash
	txsHash  codec.Hash
	rxsHash  codec.Hash
}

func NewSeedSource(networkName string) *SeedSource {
	return &SeedSource{networkName: networkName}
}

// RefreshAfterCommit updates prev_hash/txs_hash/rxs_hash from the new
// tip and resets previous_seed to 0 (spec §4.5 "Seed source": "After
// each block commit, prev_hash, txs_hash, rxs_hash are refreshed from
// the new tip and previous_seed is reset to 0").
func (s *SeedSource) RefreshAfterCommit(prevHash, txsHash, rxsHash codec.Hash) {
	s.hashMu.Lock()
	s.prevHash, s.txsHash, s.rxsHash = prevHash, txsHash, rxsHash
	s.hashMu.Unlock()
	s.previousSeed.Store(0)
}

// NextNonce increments and returns the seed nonce, consumed once per
// contract call that draws randomness.
func (s *SeedSource) NextNonce() uint64 { return s.nonce.Add(1) }

// Snapshot produces the immutable SeedMaterial a single contract call
// sees (contracthost.Call.Seed).
func (s *SeedSource) Snapshot() contracthost.SeedMaterial {
	s.hashMu.RLock()
	defer s.hashMu.RUnlock()
	return contracthost.SeedMaterial{
		NetworkName:  s.networkName,
		Nonce:        s.nonce.Load(),
		PrevHash:     []byte(s.prevHash),
		TxsHash:      []byte(s.txsHash),
		RxsHash:      []byte(s.rxsHash),
		PreviousSeed: s.previousSeed.Load(),
	}
}

// SetPreviousSeed records the seed a contract call actually produced,
// for the next call in the same block to chain from.
func (s *SeedSource) SetPreviousSeed(v uint64) { s.previousSeed.Store(v) }
