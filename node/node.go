// Package node wires the core engine's components into one running
// process: store, pool, pubsub, p2p transport, dispatcher, aligner, and
// executor (spec §2 System Overview's data-flow diagram). Grounded on
// the teacher's core/network.go NewNode bootstrap sequence, generalized
// from "build one libp2p host" into "build the whole engine and wire
// its external collaborators together".
package node

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	p2pcore "github.com/libp2p/go-libp2p/core/peer"

	"trinci-core/aligner"
	"trinci-core/chain"
	"trinci-core/codec"
	"trinci-core/contracthost"
	"trinci-core/dispatcher"
	"trinci-core/executor"
	"trinci-core/p2p"
	"trinci-core/pool"
	"trinci-core/pubsub"
	"trinci-core/store"
	"trinci-core/store/memstore"
	"trinci-core/validator"
)

// Config bundles a node's startup configuration (grounded on the
// teacher's Config in pkg/config, narrowed to what this engine needs).
type Config struct {
	NetworkName    string
	ListenAddr     string
	DiscoveryTag   string
	BootstrapPeers []string

	// Validators seeds the is-validator predicate (spec §3: "a
	// validator whose identity satisfies the injected is-validator
	// predicate"). A follower node that never proposes blocks can leave
	// Signer nil.
	Validators []chain.PublicKey
	Signer     *ecdsa.PrivateKey

	Host       contracthost.Host // nil selects contracthost.NewWasmerHost()
	FuelPolicy contracthost.FuelPolicy
	Burner     executor.BurnFueler
	Store      store.Store // nil selects memstore.New()

	// GenesisFile, if set, names a YAML fixture applied to a fresh Store
	// before anything else runs (no-op if the store already has a block
	// at height 0). Its validators are merged into Validators.
	GenesisFile string

	Log *logrus.Entry
}

// Node is the assembled engine plus its running goroutines.
type Node struct {
	cfg Config
	log *logrus.Entry

	store  store.Store
	pool   *pool.Pool
	pubsub *pubsub.Registry
	peer   *p2p.Host

	dispatcher *dispatcher.Dispatcher
	aligner    *aligner.Aligner
	executor   *executor.Executor

	drainCh chan struct{}
	wg      sync.WaitGroup
}

// New assembles every component but starts nothing (call Run to start).
func New(ctx context.Context, cfg Config) (*Node, error) {
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "node")

	st := cfg.Store
	if st == nil {
		st = memstore.New()
	}

	validatorKeys := cfg.Validators
	if cfg.GenesisFile != "" {
		fx, err := LoadGenesisFixture(cfg.GenesisFile)
		if err != nil {
			return nil, err
		}
		genesisValidators, err := ApplyGenesis(st, *fx)
		if err != nil {
			return nil, fmt.Errorf("node: apply genesis: %w", err)
		}
		validatorKeys = append(append([]chain.PublicKey{}, validatorKeys...), genesisValidators...)
	}
	if err := CheckNetworkName(st, cfg.NetworkName); err != nil {
		return nil, err
	}

	p := pool.New()
	reg := pubsub.New(log)

	host, err := p2p.New(ctx, p2p.Config{
		ListenAddr:     cfg.ListenAddr,
		DiscoveryTag:   cfg.DiscoveryTag,
		BootstrapPeers: cfg.BootstrapPeers,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("node: start p2p transport: %w", err)
	}

	contractHost := cfg.Host
	if contractHost == nil {
		contractHost = contracthost.NewWasmerHost()
	}
	fuelPolicy := cfg.FuelPolicy
	if fuelPolicy == nil {
		fuelPolicy = contracthost.DefaultFuelPolicy
	}
	burner := cfg.Burner
	if burner == nil {
		burner = executor.NewSystemLedgerBurner("system")
	}
	execOpts := executor.Options{Host: contractHost, FuelPolicy: fuelPolicy, Burner: burner}

	seed := executor.NewSeedSource(cfg.NetworkName)
	validators := validator.NewSet(validatorKeys...)

	n := &Node{
		cfg:     cfg,
		log:     log,
		store:   st,
		pool:    p,
		pubsub:  reg,
		peer:    host,
		drainCh: make(chan struct{}, 1),
	}

	al := aligner.New(host, alignerAdmitter{n: n}, st, p, log)
	n.aligner = al

	d := dispatcher.New(st, p, reg, host, al, validators, execOpts, seed, cfg.NetworkName, log)
	n.dispatcher = d

	exec := executor.New(st, p, reg, seed, validators, execOpts, log)
	if cfg.Signer != nil {
		exec.SetSigner(cfg.Signer)
	}
	n.executor = exec

	al.OnCommit(n.signalDrain)
	d.OnBlockStaged(n.signalDrain)

	host.SetRequestHandler(func(ctx context.Context, from p2pcore.ID, req []byte) ([]byte, error) {
		return d.HandleUnicast(ctx, from.String(), req)
	})

	return n, nil
}

// alignerAdmitter adapts Node's Dispatcher into aligner.TxAdmitter
// (aligner depends only on this narrow interface, never on package
// dispatcher's concrete Dispatcher type directly beyond Message/Dispatch,
// which dispatcher already exports for exactly this purpose).
type alignerAdmitter struct{ n *Node }

func (a alignerAdmitter) Dispatch(ctx context.Context, msg dispatcher.Message) dispatcher.Message {
	return a.n.dispatcher.Dispatch(ctx, msg)
}

func (n *Node) signalDrain() {
	select {
	case n.drainCh <- struct{}{}:
	default:
	}
}

// Run starts every background loop and blocks until ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.dispatcher.Run(ctx)
	}()

	n.aligner.Run(ctx)

	blockCh, err := n.peer.Subscribe(p2p.TopicBlock)
	if err != nil {
		return fmt.Errorf("node: subscribe block topic: %w", err)
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.consumeBlockGossip(ctx, blockCh)
	}()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.drainLoop(ctx)
	}()

	n.signalDrain() // catch up on anything already staged at startup

	<-ctx.Done()
	n.wg.Wait()
	return nil
}

func (n *Node) consumeBlockGossip(ctx context.Context, ch <-chan p2p.GossipMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			g, err := dispatcher.DecodeBlockGossip(msg.Data)
			if err != nil {
				n.log.WithError(err).Warn("discarding malformed block gossip")
				continue
			}
			h, err := g.Block.Data.Hash()
			if err != nil {
				continue
			}
			n.dispatcher.IngestBlock(ctx, g.Block, g.TxsHashes, h, true)
		}
	}
}

// drainLoop wakes the Executor whenever Dispatcher or Aligner stage a
// new confirmed height (spec §2: "Executor drains Pool's confirmed
// queue").
func (n *Node) drainLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.drainCh:
			if err := n.executor.DrainReady(); err != nil {
				n.log.WithError(err).Error("drain ready failed")
			}
		}
	}
}

// SubmitTransaction is the node's local ingestion entrypoint for a
// client-signed transaction (spec §4.3 point 1).
func (n *Node) SubmitTransaction(ctx context.Context, tx chain.Transaction) (codec.Hash, error) {
	resp := n.dispatcher.Dispatch(ctx, dispatcher.PutTransactionRequest{Tx: tx})
	switch m := resp.(type) {
	case dispatcher.PutTransactionResponse:
		return m.Hash, nil
	case dispatcher.Exception:
		return "", fmt.Errorf("%s: %s", m.Kind, m.Context)
	default:
		return "", fmt.Errorf("node: unexpected dispatcher response %T", resp)
	}
}

// PublishBlock gossips a locally produced block on the BLOCK topic
// (spec §6 Topics: "BLOCK (proposed, outbound-gossip)").
func (n *Node) PublishBlock(ctx context.Context, b chain.Block, txsHashes []codec.Hash) error {
	enc, err := dispatcher.EncodeBlockGossip(dispatcher.BlockGossip{Block: b, TxsHashes: txsHashes})
	if err != nil {
		return err
	}
	return n.peer.GossipBlock(ctx, enc)
}

// Watch subscribes a new local, in-process caller (e.g. a CLI "watch"
// command) to the given topic bitmask and returns its event channel
// plus the generated subscriber id an Unwatch call needs. Remote
// subscribers identify themselves with their own peer id over the wire
// (dispatcher.Subscribe.ClientID); a local caller has no such id, so one
// is minted here.
func (n *Node) Watch(topics pubsub.Topic) (id string, events <-chan pubsub.Event) {
	id = uuid.NewString()
	return id, n.pubsub.Subscribe(id, topics)
}

// Unwatch drops a subscriber id returned by Watch.
func (n *Node) Unwatch(id string) { n.pubsub.Drop(id) }

// Close tears down the p2p transport.
func (n *Node) Close() error { return n.peer.Close() }

// Store/Pool/PubSub/Dispatcher expose the assembled components for
// advanced callers (e.g. the CLI's local status/read-only commands).
func (n *Node) Store() store.Store               { return n.store }
func (n *Node) Pool() *pool.Pool                 { return n.pool }
func (n *Node) PubSub() *pubsub.Registry         { return n.pubsub }
func (n *Node) Dispatcher() *dispatcher.Dispatcher { return n.dispatcher }
