// Package store defines the persisted-state contract spec §6 leaves as
// an external collaborator ("its internal representation is out of
// scope") while pinning down the logical key spaces and the fork/merge
// interface every component above it (Executor, Dispatcher) depends on.
package store

import (
	"trinci-core/chain"
	"trinci-core/codec"
)

// Store is the keyed store of spec §6: block[height], tx[hash],
// rx[hash], txs_hashes[height], account[id], account_data[id][name],
// config[name]. Reads may proceed concurrently; there is a single
// writer at a time via Fork/Merge (spec §5 "the store exposes a single
// writer at a time").
type Store interface {
	Block(height uint64) (chain.Block, bool)
	LastBlock() (chain.Block, bool)
	Tx(hash codec.Hash) (chain.Transaction, bool)
	Receipt(hash codec.Hash) (chain.Receipt, bool)
	TxsHashes(height uint64) ([]codec.Hash, bool)
	Account(id string) (chain.Account, bool)
	AccountData(id, name string) ([]byte, bool)
	Config(name string) ([]byte, bool)

	// StateHash is a deterministic root over the space named by id (the
	// empty id names the whole-store root used for BlockData.state_hash,
	// spec §4.5 step 4). What "deterministic root" means internally
	// (trie, fold, whatever) is the store's business, not the
	// Executor's.
	StateHash(id string) codec.Hash

	// Fork opens a staged write overlay (spec glossary: "Fork").
	Fork() Fork
}

// Fork is a staged write overlay on a Store: reads fall through to the
// parent for keys not yet written in the overlay; writes are visible
// only to the fork until Merge commits them atomically, or the fork is
// discarded.
type Fork interface {
	Store

	PutBlock(b chain.Block)
	PutTx(hash codec.Hash, tx chain.Transaction)
	PutReceipt(hash codec.Hash, rx chain.Receipt)
	PutTxsHashes(height uint64, hashes []codec.Hash)
	PutRxsHashes(height uint64, hashes []codec.Hash)
	PutAccount(a chain.Account)
	PutAccountData(id, name string, data []byte)
	PutConfig(name string, data []byte)

	// TxsRoot/RxsRoot compute the trie-root spec §4.5 step 3 calls for
	// over the given ordered hash lists, via whatever root algorithm
	// the store implements (spec leaves this to the storage backend).
	TxsRoot(hashes []codec.Hash) codec.Hash
	RxsRoot(hashes []codec.Hash) codec.Hash

	// Merge commits the fork's writes into its parent atomically. On
	// failure the parent is unchanged (spec §4.5 step 8).
	Merge() error

	// Discard abandons the fork's writes (e.g. on transaction rollback,
	// spec §4.5's "roll back the fork").
	Discard()
}

// BlockchainSettingsKey is the config[name] key spec §6 names for the
// on-chain network settings.
const BlockchainSettingsKey = "blockchain:settings"

// BlockchainSettings is spec §6's required on-chain configuration:
// {network_name}.
type BlockchainSettings struct {
	NetworkName string
}
