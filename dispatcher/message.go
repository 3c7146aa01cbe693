// Package dispatcher implements the request handler over the wire
// message union (spec §4.3, §6): transaction/block admission, read
// lookups, block ingest and aligner hand-off, packed dispatch, and the
// PubSub subscription surface.
package dispatcher

import (
	"trinci-core/chain"
	"trinci-core/codec"
	"trinci-core/errs"
	"trinci-core/pool"
	"trinci-core/pubsub"
)

// MaxTipHeight is the height sentinel meaning "the current tip" (spec
// §6: "height = max-u64 means 'tip'").
const MaxTipHeight = ^uint64(0)

// Message is the tagged union spec §6 enumerates. Each concrete type
// below implements it as a marker.
type Message interface{ isMessage() }

type PutTransactionRequest struct {
	Confirm bool
	Tx      chain.Transaction
}
type PutTransactionResponse struct{ Hash codec.Hash }

type GetTransactionRequest struct {
	Hash        codec.Hash
	Destination string
	HasDest     bool
}
type GetTransactionResponse struct {
	Tx     chain.Transaction
	Origin string
	HasOrigin bool
}

type GetReceiptRequest struct{ Hash codec.Hash }
type GetReceiptResponse struct{ Rx chain.Receipt }

type GetBlockRequest struct {
	Height      uint64
	Txs         bool
	Destination string
	HasDest     bool
}
type GetBlockResponse struct {
	Block     chain.Block
	TxsBodies []chain.Transaction
	HasTxs    bool
	Origin    string
	HasOrigin bool
}

type GetAccountRequest struct {
	ID   string
	Data []string
}
type GetAccountResponse struct {
	Account chain.Account
	Data    [][]byte
	HasData []bool
}

type GetCoreStatsRequest struct{}
type GetCoreStatsResponse struct {
	UnconfirmedHash codec.Hash
	UnconfirmedLen  int
	LastBlock       chain.Block
	HasLastBlock    bool
}

type GetNetworkIdRequest struct{}
type GetNetworkIdResponse struct{ Name string }

type GetSeedRequest struct{}
type GetSeedResponse struct{ Seed []byte }

type GetP2pIdRequest struct{}
type GetP2pIdResponse struct{ ID string }

type Subscribe struct {
	ClientID string
	Topics   pubsub.Topic
}
type Unsubscribe struct {
	ClientID string
	Topics   pubsub.Topic
}

type ExecReadOnlyTransaction struct {
	Target   string
	Method   string
	Args     []byte
	Origin   chain.PublicKey
	Contract []byte
	MaxFuel  uint64
	Network  string
}

// Packed recursively wraps either a single message or a sequence of
// them (spec §6: "Packed{buf} — recursive envelope").
type Packed struct{ Messages []Message }

// Exception is the terminal failure carrier.
type Exception struct {
	Kind    errs.Kind
	Context string
}

func (PutTransactionRequest) isMessage()  {}
func (PutTransactionResponse) isMessage() {}
func (GetTransactionRequest) isMessage()  {}
func (GetTransactionResponse) isMessage() {}
func (GetReceiptRequest) isMessage()      {}
func (GetReceiptResponse) isMessage()     {}
func (GetBlockRequest) isMessage()        {}
func (GetBlockResponse) isMessage()       {}
func (GetAccountRequest) isMessage()      {}
func (GetAccountResponse) isMessage()     {}
func (GetCoreStatsRequest) isMessage()    {}
func (GetCoreStatsResponse) isMessage()   {}
func (GetNetworkIdRequest) isMessage()    {}
func (GetNetworkIdResponse) isMessage()   {}
func (GetSeedRequest) isMessage()         {}
func (GetSeedResponse) isMessage()        {}
func (GetP2pIdRequest) isMessage()        {}
func (GetP2pIdResponse) isMessage()       {}
func (Subscribe) isMessage()              {}
func (Unsubscribe) isMessage()            {}
func (ExecReadOnlyTransaction) isMessage() {}
func (Packed) isMessage()                 {}
func (Exception) isMessage()              {}

// NewException builds an Exception from any error, preserving its
// errs.Kind where the error carries one (spec §7: "validation and read
// errors are surfaced to the submitter as Exception").
func NewException(err error) Exception {
	return Exception{Kind: errs.KindOf(err), Context: err.Error()}
}

func toPoolBlockInfo(h codec.Hash, hasHash bool, validator chain.PublicKey, sig []byte, txsHashes []codec.Hash, timestamp int64) pool.BlockInfo {
	return pool.BlockInfo{
		Hash:      h,
		HasHash:   hasHash,
		Validator: validator,
		Signature: sig,
		TxsHashes: txsHashes,
		HasTxs:    true,
		Timestamp: timestamp,
	}
}
