// Package aligner implements spec §4.4's 9-state catch-up machine: a
// cooperative task woken by a shared (flag, condition-variable) pair,
// bringing a node from a known-stale tip back up to the network's
// consensus height by gathering blocks and their transaction bodies
// from trusted peers before handing everything to Pool.
package aligner

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"trinci-core/chain"
	"trinci-core/codec"
	"trinci-core/dispatcher"
	"trinci-core/errs"
	"trinci-core/pool"
	"trinci-core/store"
)

const (
	// DiscoveryWindow is spec §4.4 step 2's fixed response-collection window.
	DiscoveryWindow = 10 * time.Second
	// TopK is spec §4.4 step 3's "top K (default 5) most frequent" cutoff.
	TopK = 5
	// MaxDiscoveryResponses bounds step 2's response collection under a
	// flood (SPEC_FULL.md's resolution of the spec's flagged open question).
	MaxDiscoveryResponses = 512
	// RequestTimeout/MaxAttempts are spec §4.4 steps 4/7's per-request
	// retry policy.
	RequestTimeout = 5 * time.Second
	MaxAttempts    = 3
)

// PeerClient is the slice of the p2p transport the Aligner needs:
// enumerate connected peers and unicast a request to one of them. The
// Aligner never imports package p2p directly (spec §1 Non-goals: choice
// of wire transport); p2p.Host satisfies this structurally.
type PeerClient interface {
	Peers() []string
	Unicast(ctx context.Context, to string, req []byte) ([]byte, error)
}

// TxAdmitter is the slice of Dispatcher the Aligner feeds gathered
// transaction bodies through (spec §4.4 step 7: "funneled back to
// Dispatcher's normal admission path").
type TxAdmitter interface {
	Dispatch(ctx context.Context, msg dispatcher.Message) dispatcher.Message
}

type gatheredBlock struct {
	block     chain.Block
	txsHashes []codec.Hash
}

// Aligner is the spec §4.4 state machine.
type Aligner struct {
	peer  PeerClient
	admit TxAdmitter
	store store.Store
	pool  *pool.Pool
	log   *logrus.Entry

	mu      sync.Mutex
	cond    *sync.Cond
	idle    bool // flag: true means Idle, waiting on cond
	inbox   chan chain.Block
	runOnce sync.Once

	blacklistMu sync.Mutex
	blacklist   map[codec.Hash]struct{}

	onCommit func()
}

// OnCommit installs a hook invoked after a successful alignment pass
// stages its gathered blocks into Pool (spec §4.4 state 8). Node wiring
// uses this to wake the Executor's drain loop.
func (a *Aligner) OnCommit(f func()) { a.onCommit = f }

func New(peer PeerClient, admit TxAdmitter, st store.Store, p *pool.Pool, log *logrus.Entry) *Aligner {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	a := &Aligner{
		peer:      peer,
		admit:     admit,
		store:     st,
		pool:      p,
		log:       log.WithField("component", "aligner"),
		idle:      true,
		inbox:     make(chan chain.Block, 64),
		blacklist: make(map[codec.Hash]struct{}),
	}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// Idle implements dispatcher.Aligner.
func (a *Aligner) Idle() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.idle
}

// Start implements dispatcher.Aligner: flips the flag and wakes the
// condvar (spec §4.4 state 1 -> 2).
func (a *Aligner) Start(ctx context.Context) {
	a.mu.Lock()
	a.idle = false
	a.mu.Unlock()
	a.cond.Broadcast()
}

// Feed implements dispatcher.Aligner: forwards a block received
// mid-alignment to the aligner's inbox (spec §4.4: "if active, forward
// the block to the aligner's inbox").
func (a *Aligner) Feed(b chain.Block) {
	select {
	case a.inbox <- b:
	default:
		a.log.Warn("aligner inbox full, dropping fed block")
	}
}

// Run drives the state machine forever, processing one alignment pass
// per Start() wake-up, until ctx is cancelled. Call once from node
// wiring's startup.
func (a *Aligner) Run(ctx context.Context) {
	a.runOnce.Do(func() {
		go a.loop(ctx)
	})
}

func (a *Aligner) loop(ctx context.Context) {
	for {
		a.mu.Lock()
		for a.idle {
			done := make(chan struct{})
			go func() {
				select {
				case <-ctx.Done():
					a.cond.Broadcast()
				case <-done:
				}
			}()
			a.cond.Wait()
			close(done)
			if ctx.Err() != nil {
				a.mu.Unlock()
				return
			}
		}
		a.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		a.runAlignmentPass(ctx)
	}
}

// runAlignmentPass implements spec §4.4 states 2-9 for one catch-up
// attempt. A failed chain check loops back to peer discovery (state 5);
// anything else falls through to reset.
func (a *Aligner) runAlignmentPass(ctx context.Context) {
	for {
		localTip, localHash := a.localTip()

		selection := a.peerDiscovery(ctx, localTip)
		if len(selection.peers) == 0 {
			a.log.Warn("peer discovery produced no usable selection")
			a.reset()
			return
		}

		gathered, unexpected, err := a.blockGather(ctx, selection, localTip)
		if err != nil {
			a.log.WithError(err).Warn("block gather failed")
			a.reset()
			return
		}
		if len(gathered) == 0 {
			a.reset()
			return
		}

		oldest := gathered[0]
		if oldest.block.Data.PrevHash != localHash {
			a.blacklistHash(mustHash(gathered[len(gathered)-1].block))
			continue // back to peer discovery (state 2)
		}

		if err := a.transactionGather(ctx, selection, gathered); err != nil {
			a.log.WithError(err).Warn("transaction gather failed")
			a.reset()
			return
		}

		a.commit(gathered, unexpected, selection.height)
		a.reset()
		return
	}
}

func (a *Aligner) localTip() (uint64, codec.Hash) {
	last, ok := a.store.LastBlock()
	if !ok {
		return 0, ""
	}
	h, _ := last.Data.Hash()
	return last.Data.Height, h
}

func mustHash(b chain.Block) codec.Hash {
	h, _ := b.Data.Hash()
	return h
}

func (a *Aligner) blacklistHash(h codec.Hash) {
	a.blacklistMu.Lock()
	a.blacklist[h] = struct{}{}
	a.blacklistMu.Unlock()
}

func (a *Aligner) isBlacklisted(h codec.Hash) bool {
	a.blacklistMu.Lock()
	defer a.blacklistMu.Unlock()
	_, ok := a.blacklist[h]
	return ok
}

// reset implements spec §4.4 state 9.
func (a *Aligner) reset() {
	a.mu.Lock()
	a.idle = true
	a.mu.Unlock()
drain:
	for {
		select {
		case <-a.inbox:
		default:
			break drain
		}
	}
}

// discoveryResponse is spec §4.4 step 2's "(peer-id, last-block-hash,
// block)" record.
type discoveryResponse struct {
	peerID string
	hash   codec.Hash
	block  chain.Block
}

// selection is spec §4.4 step 3's output.
type selection struct {
	hash   codec.Hash
	height uint64
	peers  []string // the trusted peers advertising `hash`
}

// peerDiscovery implements spec §4.4 steps 2 and 3.
func (a *Aligner) peerDiscovery(ctx context.Context, localTip uint64) selection {
	dctx, cancel := context.WithTimeout(ctx, DiscoveryWindow)
	defer cancel()

	peers := a.peer.Peers()
	responses := make(chan discoveryResponse, len(peers))
	var wg sync.WaitGroup
	for _, p := range peers {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			req := dispatcher.GetBlockRequest{Height: dispatcher.MaxTipHeight, Txs: false}
			resp, err := a.request(dctx, p, req)
			if err != nil {
				return
			}
			gbr, ok := resp.(dispatcher.GetBlockResponse)
			if !ok {
				return
			}
			h, err := gbr.Block.Data.Hash()
			if err != nil {
				return
			}
			select {
			case responses <- discoveryResponse{peerID: p, hash: h, block: gbr.Block}:
			default:
			}
		}(p)
	}
	go func() {
		wg.Wait()
		close(responses)
	}()

	var collected []discoveryResponse
	for r := range responses {
		if len(collected) >= MaxDiscoveryResponses {
			a.log.Warn("peer discovery response cap reached, dropping further responses")
			continue
		}
		if r.block.Data.Height <= localTip {
			continue // "a height <= local tip are discarded"
		}
		if a.isBlacklisted(r.hash) {
			continue
		}
		collected = append(collected, r)
	}

	return a.consensusSelect(collected)
}

// consensusSelect implements spec §4.4 step 3: group by hash, take the
// top K most frequent, pick the greatest height among them.
func (a *Aligner) consensusSelect(collected []discoveryResponse) selection {
	type group struct {
		hash   codec.Hash
		height uint64
		count  int
		peers  []string
	}
	groups := make(map[codec.Hash]*group)
	for _, r := range collected {
		g, ok := groups[r.hash]
		if !ok {
			g = &group{hash: r.hash, height: r.block.Data.Height}
			groups[r.hash] = g
		}
		g.count++
		g.peers = append(g.peers, r.peerID)
	}

	ordered := make([]*group, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].count > ordered[j].count })
	if len(ordered) > TopK {
		ordered = ordered[:TopK]
	}

	var best *group
	for _, g := range ordered {
		if best == nil || g.height > best.height {
			best = g
		}
	}
	if best == nil {
		return selection{}
	}
	return selection{hash: best.hash, height: best.height, peers: best.peers}
}

// request encodes msg, unicasts it to peer with the fixed retry policy,
// and decodes the response.
func (a *Aligner) request(ctx context.Context, peer string, msg dispatcher.Message) (dispatcher.Message, error) {
	enc, err := dispatcher.EncodeMessage(msg)
	if err != nil {
		return nil, err
	}
	var lastErr error
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		rctx, cancel := context.WithTimeout(ctx, RequestTimeout)
		resp, err := a.peer.Unicast(rctx, peer, enc)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		return dispatcher.DecodeMessage(resp)
	}
	return nil, lastErr
}

// randomPeer picks a uniformly random surviving peer from a non-empty list.
func randomPeer(peers []string) string {
	return peers[rand.Intn(len(peers))]
}

// blockGather implements spec §4.4 steps 4 and 6: walk down from the
// selection's height to local_tip+1, one random trusted peer per
// request, stashing anything that arrives out of the expected range.
func (a *Aligner) blockGather(ctx context.Context, sel selection, localTip uint64) ([]gatheredBlock, []discoveryResponse, error) {
	var gathered []gatheredBlock
	var unexpected []discoveryResponse
	height := sel.height
	peers := append([]string(nil), sel.peers...)

	for {
		if len(peers) == 0 {
			return nil, nil, errs.New(errs.Other, "aligner: no surviving peers during block gather")
		}
		peer := randomPeer(peers)
		req := dispatcher.GetBlockRequest{Height: height, Txs: true}
		resp, err := a.request(ctx, peer, req)
		if err != nil {
			peers = removePeer(peers, peer)
			continue
		}
		gbr, ok := resp.(dispatcher.GetBlockResponse)
		if !ok || !gbr.HasTxs {
			peers = removePeer(peers, peer)
			continue
		}

		if gbr.Block.Data.Height > sel.height {
			unexpected = append(unexpected, discoveryResponse{peerID: peer, block: gbr.Block})
			continue
		}

		hashes := make([]codec.Hash, len(gbr.TxsBodies))
		for i, tx := range gbr.TxsBodies {
			h, err := tx.Hash()
			if err != nil {
				return nil, nil, err
			}
			hashes[i] = h
		}
		gathered = append([]gatheredBlock{{block: gbr.Block, txsHashes: hashes}}, gathered...)

		for _, tx := range gbr.TxsBodies {
			a.admit.Dispatch(ctx, dispatcher.PutTransactionRequest{Tx: tx})
		}

		if gbr.Block.Data.Height == localTip+1 {
			return gathered, unexpected, nil
		}
		height = gbr.Block.Data.Height - 1
	}
}

func removePeer(peers []string, p string) []string {
	out := peers[:0]
	for _, x := range peers {
		if x != p {
			out = append(out, x)
		}
	}
	return out
}

// transactionGather implements spec §4.4 step 7: for each gathered
// block's tx hashes, confirm the body is admitted (fetching it from a
// trusted peer first if the initial gather's embedded body round trip
// above didn't already cover it).
func (a *Aligner) transactionGather(ctx context.Context, sel selection, gathered []gatheredBlock) error {
	for _, gb := range gathered {
		for _, h := range gb.txsHashes {
			if !a.pool.Exists(h) {
				if err := a.fetchTransaction(ctx, sel, h); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (a *Aligner) fetchTransaction(ctx context.Context, sel selection, hash codec.Hash) error {
	peers := append([]string(nil), sel.peers...)
	for len(peers) > 0 {
		peer := randomPeer(peers)
		req := dispatcher.GetTransactionRequest{Hash: hash}
		resp, err := a.request(ctx, peer, req)
		if err != nil {
			peers = removePeer(peers, peer)
			continue
		}
		gtr, ok := resp.(dispatcher.GetTransactionResponse)
		if !ok {
			peers = removePeer(peers, peer)
			continue
		}
		a.admit.Dispatch(ctx, dispatcher.PutTransactionRequest{Tx: gtr.Tx})
		return nil
	}
	return errs.New(errs.ResourceNotFound, "aligner: could not fetch transaction "+hash.Hex())
}

// commit implements spec §4.4 step 8: stage every gathered block into
// Pool oldest-to-newest, then drain the unexpected stash in ascending
// contiguous height order, stopping at the first gap (SPEC_FULL.md's
// resolution of the spec's termination open question).
func (a *Aligner) commit(gathered []gatheredBlock, unexpected []discoveryResponse, selectionHeight uint64) {
	for _, gb := range gathered {
		a.pool.NoteBlockHashes(gb.txsHashes)
		a.pool.InsertConfirmed(gb.block.Data.Height, pool.BlockInfo{
			Validator: gb.block.Data.Validator,
			Signature: gb.block.Signature,
			TxsHashes: gb.txsHashes,
			HasTxs:    true,
			Timestamp: gb.block.Data.Timestamp,
		})
	}

	byHeight := make(map[uint64]discoveryResponse, len(unexpected))
	for _, u := range unexpected {
		byHeight[u.block.Data.Height] = u
	}
	for h := selectionHeight + 1; ; h++ {
		u, ok := byHeight[h]
		if !ok {
			break
		}
		a.pool.InsertConfirmed(h, pool.BlockInfo{
			Validator: u.block.Data.Validator,
			Signature: u.block.Signature,
			HasTxs:    false,
		})
	}

	if a.onCommit != nil {
		a.onCommit()
	}
}
