// Package executor implements the deterministic block-execution
// pipeline: spec §4.5's single-transaction and bulk-transaction steps,
// wired together into the height-by-height commit loop.
package executor

import (
	"crypto/ecdsa"
	"crypto/x509"

	"github.com/sirupsen/logrus"

	"trinci-core/chain"
	"trinci-core/codec"
	"trinci-core/errs"
	"trinci-core/pool"
	"trinci-core/pubsub"
	"trinci-core/store"
	"trinci-core/validator"
)

// Executor is the sole writer of committed state (spec §3 Ownership:
// "the Executor is the sole writer of committed state"). It drains
// ready heights from Pool, executing and committing one block at a
// time, strictly in ascending contiguous order (spec §5 Ordering
// guarantees).
type Executor struct {
	store       store.Store
	pool        *pool.Pool
	pubsub      *pubsub.Registry
	seed        *SeedSource
	isValidator validator.Predicate
	opts        Options
	log         *logrus.Entry

	signer *ecdsa.PrivateKey // nil on a non-producing (follower) node
}

func New(st store.Store, p *pool.Pool, reg *pubsub.Registry, seed *SeedSource, isValidator validator.Predicate, opts Options, log *logrus.Entry) *Executor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Executor{
		store:       st,
		pool:        p,
		pubsub:      reg,
		seed:        seed,
		isValidator: isValidator,
		opts:        opts,
		log:         log.WithField("component", "executor"),
	}
}

// SetSigner installs the keypair this node signs produced blocks with.
// A node that only ever executes blocks signed by others (a pure
// follower) never calls this.
func (e *Executor) SetSigner(priv *ecdsa.PrivateKey) { e.signer = priv }

// DrainReady commits every currently-ready height in order, starting
// from the store's tip + 1, stopping at the first height that is not
// yet ready (spec §5: "The Executor never skips a height; a gap forces
// alignment" — the gap itself is the Aligner's job; DrainReady just
// stops and waits to be invoked again once Pool reports the next
// height ready).
func (e *Executor) DrainReady() error {
	for {
		height := e.nextHeight()
		if !e.pool.ReadyFor(height) {
			return nil
		}
		if err := e.commitHeight(height); err != nil {
			e.log.WithError(err).WithField("height", height).Error("block commit failed")
			return err
		}
	}
}

func (e *Executor) nextHeight() uint64 {
	last, ok := e.store.LastBlock()
	if !ok {
		return 0
	}
	return last.Data.Height + 1
}

// commitHeight implements spec §4.5 steps 1-9 for a single height.
func (e *Executor) commitHeight(height uint64) error {
	info, ok := e.pool.TakeConfirmed(height)
	if !ok {
		return errs.New(errs.Other, "commitHeight: no confirmed slot")
	}

	// ReadyFor(height) already guaranteed every hash here has a full body.
	txs := make([]*chain.Transaction, len(info.TxsHashes))
	for i, h := range info.TxsHashes {
		tx, _ := e.pool.Transaction(h)
		txs[i] = tx
	}

	blockFork := e.store.Fork()

	var lastBlock chain.Block
	if height > 0 {
		lb, ok := e.store.LastBlock()
		if !ok {
			blockFork.Discard()
			return errs.New(errs.Other, "commitHeight: no prior block for non-genesis height")
		}
		lastBlock = lb
	}

	rxHashes := make([]codec.Hash, len(txs))
	for i, tx := range txs {
		txFork := blockFork.Fork()
		rx, err := e.executeOne(txFork, tx, height, uint64(i), info.Timestamp)
		if err != nil {
			blockFork.Discard()
			return err
		}
		if err := txFork.Merge(); err != nil {
			blockFork.Discard()
			return err
		}
		rxHash, err := codec.HashOf(&rx)
		if err != nil {
			blockFork.Discard()
			return err
		}
		rxHashes[i] = rxHash
		blockFork.PutReceipt(info.TxsHashes[i], rx)
	}

	txsHash := blockFork.TxsRoot(info.TxsHashes)
	rxsHash := blockFork.RxsRoot(rxHashes)
	blockFork.PutTxsHashes(height, info.TxsHashes)
	blockFork.PutRxsHashes(height, rxHashes)
	stateHash := blockFork.StateHash("")

	data := chain.BlockData{
		Height:    height,
		Size:      uint64(len(txs)),
		TxsHash:   txsHash,
		RxsHash:   rxsHash,
		StateHash: stateHash,
		Timestamp: info.Timestamp,
	}
	if height > 0 {
		prevHash, err := lastBlock.Data.Hash()
		if err != nil {
			blockFork.Discard()
			return err
		}
		data.PrevHash = prevHash
	}

	block, err := e.sealBlock(data, height, info)
	if err != nil {
		blockFork.Discard()
		return err
	}

	blockFork.PutBlock(block)
	if err := blockFork.Merge(); err != nil {
		return errs.Wrap(errs.DatabaseFault, "merge block fork", err)
	}

	for _, h := range info.TxsHashes {
		e.pool.RemoveExecuted(h)
	}
	e.pool.RemoveConfirmed(height)

	prevH, _ := block.Data.Hash()
	e.seed.RefreshAfterCommit(prevH, txsHash, rxsHash)

	enc, err := codec.Encode(&block)
	if err == nil {
		e.pubsub.Publish(pubsub.BlockExec, enc)
	}

	return nil
}

// sealBlock implements spec §3/§4.5's genesis-vs-signed-vs-verify
// branch: genesis gets the fixed sentinel signature and no validator
// check; a block proposed by this node is signed; a block that already
// arrived signed (from the network) is verified against the expected
// hash and the is-validator predicate.
func (e *Executor) sealBlock(data chain.BlockData, height uint64, info pool.BlockInfo) (chain.Block, error) {
	if height == 0 {
		return chain.Block{Data: data, Signature: chain.GenesisSignature}, nil
	}

	data.Validator = info.Validator

	if len(info.Signature) == 0 {
		if e.signer == nil {
			return chain.Block{}, errs.New(errs.Other, "sealBlock: block unsigned and node has no signing key")
		}
		pub, err := x509.MarshalPKIXPublicKey(&e.signer.PublicKey)
		if err != nil {
			return chain.Block{}, err
		}
		data.Validator = pub
		h, err := data.Hash()
		if err != nil {
			return chain.Block{}, err
		}
		sig, err := chain.SignHash(e.signer, h)
		if err != nil {
			return chain.Block{}, err
		}
		return chain.Block{Data: data, Signature: sig}, nil
	}

	if !e.isValidator.IsValidator(data.Validator) {
		return chain.Block{}, errs.New(errs.InvalidSignature, "block validator is not a recognized validator")
	}
	h, err := data.Hash()
	if err != nil {
		return chain.Block{}, err
	}
	if info.HasHash && info.Hash != h {
		return chain.Block{}, errs.New(errs.BrokenIntegrity, "block hash does not match expected hash")
	}
	if err := chain.VerifyHash(data.Validator, h, info.Signature); err != nil {
		return chain.Block{}, err
	}
	return chain.Block{Data: data, Signature: info.Signature}, nil
}

// executeOne dispatches to ExecuteUnit or ExecuteBulk and stamps the
// result's height/index (spec §5: "the index field of each receipt
// equals that position").
func (e *Executor) executeOne(fork store.Fork, tx *chain.Transaction, height, index uint64, blockTimestamp int64) (chain.Receipt, error) {
	var (
		rx  chain.Receipt
		err error
	)
	switch tx.Kind {
	case chain.KindUnit:
		rx, err = ExecuteUnit(fork, e.opts, tx, e.seed, blockTimestamp)
	case chain.KindBulk:
		rx, err = ExecuteBulk(fork, e.opts, tx, e.seed, blockTimestamp)
	default:
		return chain.Receipt{}, errs.New(errs.WrongTxType, "executeOne: unknown transaction kind")
	}
	if err != nil {
		return chain.Receipt{}, err
	}
	rx.Height = height
	rx.Index = index
	return rx, nil
}
