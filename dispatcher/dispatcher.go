package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"trinci-core/chain"
	"trinci-core/codec"
	"trinci-core/contracthost"
	"trinci-core/errs"
	"trinci-core/executor"
	"trinci-core/pool"
	"trinci-core/pubsub"
	"trinci-core/store"
)

// MaxTxSize is the default maximum serialized transaction size (spec
// §4.3 point 1: "bound-check against a maximum serialized size (default
// 1 MiB)").
const MaxTxSize = 1 << 20

// MaxPackedDepth bounds Packed{buf} recursion (spec §4.3 point 4,
// default 32 levels).
const MaxPackedDepth = 32

// Gossip is the slice of the p2p transport the Dispatcher needs: its own
// id and outbound transaction gossip (spec §4.3 point 1's "publish to
// the TRANSACTION topic for gossip"). Defined here rather than depending
// on package p2p directly, so the transport stays swappable (spec §1
// Non-goals: "choice of wire transport"); p2p.Host satisfies this
// structurally.
type Gossip interface {
	ID() string
	GossipTransaction(ctx context.Context, data []byte) error
}

// Aligner is the narrow slice of the Aligner state machine the
// Dispatcher drives on a height gap (spec §4.3 point 3).
type Aligner interface {
	// Idle reports whether the aligner is currently idle (flag == true).
	Idle() bool
	// Start flips the pending flag and wakes the aligner's condvar
	// (spec §4.4 state 1 -> 2 transition).
	Start(ctx context.Context)
	// Feed forwards a block received mid-alignment to the aligner's inbox.
	Feed(b chain.Block)
}

// request is a queued (message, reply-handle) pair (spec §9 design
// note: "a send returns a reply-handle; the receiver produces a value
// on it exactly once").
type request struct {
	msg   Message
	reply chan Message
}

// Dispatcher is spec §4.3's message handler, the sole writer of Pool
// admissions (spec §3 Ownership).
type Dispatcher struct {
	store       store.Store
	pool        *pool.Pool
	pubsub      *pubsub.Registry
	peer        Gossip
	aligner     Aligner
	isValidator interface {
		IsValidator(chain.PublicKey) bool
	}
	execOpts executor.Options
	seed     *executor.SeedSource

	networkName string
	maxTxSize   int
	log         *logrus.Entry

	reqCh chan request
	wg    sync.WaitGroup

	onBlockStaged func()
}

// OnBlockStaged installs a hook invoked whenever IngestBlock stages a
// block directly into Pool's confirmed queue (the fast path, aligner
// idle). Node wiring uses this to wake the Executor's drain loop.
func (d *Dispatcher) OnBlockStaged(f func()) { d.onBlockStaged = f }

func New(
	st store.Store,
	p *pool.Pool,
	reg *pubsub.Registry,
	peer Gossip,
	aligner Aligner,
	isValidator interface{ IsValidator(chain.PublicKey) bool },
	execOpts executor.Options,
	seed *executor.SeedSource,
	networkName string,
	log *logrus.Entry,
) *Dispatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	d := &Dispatcher{
		store:       st,
		pool:        p,
		pubsub:      reg,
		peer:        peer,
		aligner:     aligner,
		isValidator: isValidator,
		execOpts:    execOpts,
		seed:        seed,
		networkName: networkName,
		maxTxSize:   MaxTxSize,
		log:         log.WithField("component", "dispatcher"),
		reqCh:       make(chan request, 256),
	}
	return d
}

// Run drains the request channel on a single goroutine, the spec §9
// "bounded channel of (message, one-shot-sender) pairs" pattern, until
// ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	d.wg.Add(1)
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-d.reqCh:
			r.reply <- d.handle(ctx, r.msg)
		}
	}
}

// Wait blocks until Run has returned.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// HandleUnicast answers a p2p unicast request frame (spec §4.4's
// get-block-request/get-transaction-request). The node wiring adapts
// p2p.RequestHandler's peer.ID parameter to a plain string before
// calling this, so Dispatcher never imports package p2p.
func (d *Dispatcher) HandleUnicast(ctx context.Context, from string, req []byte) ([]byte, error) {
	msg, err := DecodeMessage(req)
	if err != nil {
		return nil, err
	}
	resp := d.Dispatch(ctx, msg)
	return EncodeMessage(resp)
}

// Dispatch enqueues msg and blocks for its response (the client side of
// the reply-handle pattern).
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) Message {
	reply := make(chan Message, 1)
	select {
	case d.reqCh <- request{msg: msg, reply: reply}:
	case <-ctx.Done():
		return NewException(errs.New(errs.Other, "dispatcher: request queue closed"))
	}
	select {
	case resp := <-reply:
		return resp
	case <-ctx.Done():
		return NewException(errs.New(errs.Other, "dispatcher: cancelled waiting for response"))
	}
}

func (d *Dispatcher) handle(ctx context.Context, msg Message) Message {
	switch m := msg.(type) {
	case PutTransactionRequest:
		return d.handlePutTransaction(m)
	case GetTransactionRequest:
		return d.handleGetTransaction(m)
	case GetReceiptRequest:
		return d.handleGetReceipt(m)
	case GetBlockRequest:
		return d.handleGetBlock(ctx, m)
	case GetAccountRequest:
		return d.handleGetAccount(m)
	case GetCoreStatsRequest:
		return d.handleGetCoreStats()
	case GetNetworkIdRequest:
		return GetNetworkIdResponse{Name: d.networkName}
	case GetSeedRequest:
		snap := d.seed.Snapshot()
		return GetSeedResponse{Seed: encodeSeedMaterial(snap)}
	case GetP2pIdRequest:
		return GetP2pIdResponse{ID: d.peer.ID()}
	case Subscribe:
		d.pubsub.Subscribe(m.ClientID, m.Topics)
		return nil
	case Unsubscribe:
		d.pubsub.Unsubscribe(m.ClientID, m.Topics)
		return nil
	case ExecReadOnlyTransaction:
		return d.handleExecReadOnly(m)
	case Packed:
		return d.handlePacked(ctx, m, 0)
	default:
		return NewException(errs.New(errs.NotImplemented, "dispatcher: unknown message type"))
	}
}

// handlePutTransaction implements spec §4.3 point 1.
func (d *Dispatcher) handlePutTransaction(m PutTransactionRequest) Message {
	enc, err := codec.Encode(&m.Tx)
	if err != nil {
		return NewException(err)
	}
	if len(enc) > d.maxTxSize {
		return NewException(errs.New(errs.TooLargeTx, "transaction exceeds maximum serialized size"))
	}
	// A bare BulkRootV1/BulkEmptyRoot/BulkNodeV1 submitted directly (not
	// embedded in a BulkV1) is the wrong shape for its declared kind;
	// reject before CheckIntegrity dereferences the mismatched variant.
	switch m.Tx.Kind {
	case chain.KindUnit:
		if m.Tx.Data.Kind != chain.KindV1 {
			return NewException(errs.New(errs.WrongTxType, "unit transaction must carry V1 data"))
		}
	case chain.KindBulk:
		if m.Tx.Data.Kind != chain.KindBulkV1 {
			return NewException(errs.New(errs.WrongTxType, "bulk transaction must carry BulkV1 data"))
		}
	default:
		return NewException(errs.New(errs.WrongTxType, "unknown transaction kind"))
	}
	if err := m.Tx.Verify(); err != nil {
		return NewException(err)
	}
	if err := m.Tx.CheckIntegrity(); err != nil {
		return NewException(err)
	}
	if err := m.Tx.CheckNetwork(d.networkName); err != nil {
		return NewException(err)
	}

	hash, err := m.Tx.Hash()
	if err != nil {
		return NewException(err)
	}
	if _, ok := d.store.Tx(hash); ok {
		return NewException(errs.New(errs.DuplicatedConfirmed, hash.Hex()))
	}
	if err := d.pool.Admit(hash, &m.Tx); err != nil {
		return NewException(err)
	}

	d.pubsub.Publish(pubsub.Transaction, enc)
	if d.peer != nil {
		_ = d.peer.GossipTransaction(context.Background(), enc)
	}

	return PutTransactionResponse{Hash: hash}
}

func (d *Dispatcher) handleGetTransaction(m GetTransactionRequest) Message {
	if tx, ok := d.store.Tx(m.Hash); ok {
		return GetTransactionResponse{Tx: tx}
	}
	if tx, ok := d.pool.Transaction(m.Hash); ok {
		return GetTransactionResponse{Tx: *tx}
	}
	return NewException(errs.New(errs.ResourceNotFound, "transaction "+m.Hash.Hex()))
}

func (d *Dispatcher) handleGetReceipt(m GetReceiptRequest) Message {
	rx, ok := d.store.Receipt(m.Hash)
	if !ok {
		return NewException(errs.New(errs.ResourceNotFound, "receipt "+m.Hash.Hex()))
	}
	return GetReceiptResponse{Rx: rx}
}

func (d *Dispatcher) handleGetBlock(ctx context.Context, m GetBlockRequest) Message {
	height := m.Height
	if height == MaxTipHeight {
		last, ok := d.store.LastBlock()
		if !ok {
			return NewException(errs.New(errs.ResourceNotFound, "no blocks yet"))
		}
		height = last.Data.Height
	}
	block, ok := d.store.Block(height)
	if !ok {
		return NewException(errs.New(errs.ResourceNotFound, "block at height"))
	}
	resp := GetBlockResponse{Block: block}
	if m.Txs {
		hashes, _ := d.store.TxsHashes(height)
		bodies := make([]chain.Transaction, 0, len(hashes))
		for _, h := range hashes {
			if tx, ok := d.store.Tx(h); ok {
				bodies = append(bodies, tx)
			}
		}
		resp.TxsBodies = bodies
		resp.HasTxs = true
	}
	return resp
}

func (d *Dispatcher) handleGetAccount(m GetAccountRequest) Message {
	acc, ok := d.store.Account(m.ID)
	if !ok {
		return NewException(errs.New(errs.ResourceNotFound, "account "+m.ID))
	}
	data := make([][]byte, len(m.Data))
	has := make([]bool, len(m.Data))
	for i, key := range m.Data {
		if key == "*" {
			enc, err := codec.Encode(accountKeysEncoder{acc})
			if err != nil {
				return NewException(err)
			}
			data[i], has[i] = enc, true
			continue
		}
		v, ok := d.store.AccountData(m.ID, key)
		data[i], has[i] = v, ok
	}
	return GetAccountResponse{Account: acc, Data: data, HasData: has}
}

func (d *Dispatcher) handleGetCoreStats() Message {
	st := d.pool.Status()
	resp := GetCoreStatsResponse{UnconfirmedHash: st.UnconfirmedHash, UnconfirmedLen: st.UnconfirmedLen}
	if last, ok := d.store.LastBlock(); ok {
		resp.LastBlock, resp.HasLastBlock = last, true
	}
	return resp
}

// handleExecReadOnly implements spec §6's ExecReadOnlyTransaction (always enabled):
// build a synthetic V1 unit transaction from the request and execute it
// against a throw-away fork, never merging (spec §4.3 point 6).
func (d *Dispatcher) handleExecReadOnly(m ExecReadOnlyTransaction) Message {
	tx := &chain.Transaction{
		Kind: chain.KindUnit,
		Data: chain.TxData{Kind: chain.KindV1, V1: &chain.V1Data{
			Schema:    "read-only",
			Account:   m.Target,
			FuelLimit: m.MaxFuel,
			Nonce:     1,
			Network:   m.Network,
			Contract:  m.Contract,
			Method:    m.Method,
			Caller:    m.Origin,
			Args:      m.Args,
		}},
	}
	fork := d.store.Fork()
	defer fork.Discard()
	rx, err := executor.ExecuteUnit(fork, d.execOpts, tx, d.seed, time.Now().Unix())
	if err != nil {
		return NewException(err)
	}
	return GetReceiptResponse{Rx: rx}
}

// handlePacked recursively unpacks and re-packs (spec §4.3 point 4),
// rejecting anything past MaxPackedDepth.
func (d *Dispatcher) handlePacked(ctx context.Context, p Packed, depth int) Message {
	if depth >= MaxPackedDepth {
		return NewException(errs.New(errs.Malformed, "packed nesting too deep"))
	}
	out := make([]Message, len(p.Messages))
	for i, inner := range p.Messages {
		if nested, ok := inner.(Packed); ok {
			out[i] = d.handlePacked(ctx, nested, depth+1)
			continue
		}
		out[i] = d.handle(ctx, inner)
	}
	return Packed{Messages: out}
}

// nextExpectedHeight is the store's tip + 1, or 0 for an empty store
// (mirrors executor.Executor.nextHeight, the same notion from the other
// side of the commit boundary).
func (d *Dispatcher) nextExpectedHeight() uint64 {
	last, ok := d.store.LastBlock()
	if !ok {
		return 0
	}
	return last.Data.Height + 1
}

// IngestBlock implements spec §4.3 point 3: a gossiped or aligner-fetched
// block arrives paired with its ordered transaction-hash list (the BLOCK
// topic's proposed-block payload and the aligner's get-block-request
// response both carry the two together, spec §4.4 step 4). A block that
// exactly fills the next height is staged directly into Pool when the
// aligner is idle; anything else starts or feeds the Aligner.
func (d *Dispatcher) IngestBlock(ctx context.Context, b chain.Block, txsHashes []codec.Hash, sourceHint codec.Hash, hasHash bool) {
	if b.Data.Height == d.nextExpectedHeight() && d.aligner.Idle() {
		d.pool.NoteBlockHashes(txsHashes)
		d.pool.InsertConfirmed(b.Data.Height, toPoolBlockInfo(sourceHint, hasHash, b.Data.Validator, b.Signature, txsHashes, b.Data.Timestamp))
		if d.onBlockStaged != nil {
			d.onBlockStaged()
		}
		return
	}

	if d.aligner.Idle() {
		d.aligner.Start(ctx)
	} else {
		d.aligner.Feed(b)
	}
}

// encodeSeedMaterial renders a seed snapshot as the canonical encoding
// GetSeedResponse carries on the wire.
func encodeSeedMaterial(s contracthost.SeedMaterial) []byte {
	enc, _ := codec.Encode(seedMaterialEncoder{s})
	return enc
}

type seedMaterialEncoder struct{ s contracthost.SeedMaterial }

func (e seedMaterialEncoder) MarshalCanonical(w *codec.Writer) error {
	w.ArrayHeader(6)
	w.String(e.s.NetworkName)
	w.Uint64(e.s.Nonce)
	w.Bytes(e.s.PrevHash)
	w.Bytes(e.s.TxsHash)
	w.Bytes(e.s.RxsHash)
	w.Uint64(e.s.PreviousSeed)
	return nil
}

type accountKeysEncoder struct{ acc chain.Account }

func (a accountKeysEncoder) MarshalCanonical(w *codec.Writer) error {
	w.ArrayHeader(len(a.acc.Assets))
	for _, e := range a.acc.Assets {
		w.String(e.Key)
	}
	return nil
}
