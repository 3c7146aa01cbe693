package dispatcher

import (
	"context"
	"crypto/ecdsa"
	"testing"
	"time"

	"trinci-core/chain"
	"trinci-core/codec"
	"trinci-core/contracthost"
	"trinci-core/errs"
	"trinci-core/executor"
	"trinci-core/pool"
	"trinci-core/pubsub"
	"trinci-core/store/memstore"
)

type fakeGossip struct {
	id       string
	gossiped [][]byte
}

func (g *fakeGossip) ID() string { return g.id }
func (g *fakeGossip) GossipTransaction(ctx context.Context, data []byte) error {
	g.gossiped = append(g.gossiped, data)
	return nil
}

type fakeAligner struct {
	idle    bool
	started bool
	fed     []chain.Block
}

func (a *fakeAligner) Idle() bool { return a.idle }
func (a *fakeAligner) Start(ctx context.Context) {
	a.started = true
	a.idle = false
}
func (a *fakeAligner) Feed(b chain.Block) { a.fed = append(a.fed, b) }

type alwaysValidator struct{}

func (alwaysValidator) IsValidator(chain.PublicKey) bool { return true }

func newTestDispatcher(t *testing.T, networkName string) (*Dispatcher, *memstore.MemStore, *pool.Pool, *fakeAligner) {
	t.Helper()
	st := memstore.New()
	p := pool.New()
	reg := pubsub.New(nil)
	seed := executor.NewSeedSource(networkName)
	opts := executor.Options{
		Host:       noopHost{},
		FuelPolicy: contracthost.DefaultFuelPolicy,
		Burner:     executor.NewSystemLedgerBurner("system"),
	}
	al := &fakeAligner{idle: true}
	d := New(st, p, reg, &fakeGossip{id: "peer-1"}, al, alwaysValidator{}, opts, seed, networkName, nil)
	return d, st, p, al
}

type noopHost struct{}

func (noopHost) Invoke(call contracthost.Call) (contracthost.Result, error) {
	return contracthost.Result{Success: true}, nil
}

func signedUnitTx(t *testing.T, network string) (*chain.Transaction, *ecdsaFixture) {
	t.Helper()
	fx := newEcdsaFixture(t)
	tx := &chain.Transaction{
		Kind: chain.KindUnit,
		Data: chain.TxData{
			Kind: chain.KindV1,
			V1: &chain.V1Data{
				Schema:    "dispatcher-test",
				Account:   "acct-1",
				FuelLimit: 100,
				Nonce:     1,
				Network:   network,
				Method:    "noop",
				Caller:    fx.pub,
			},
		},
	}
	if err := chain.Sign(tx, fx.priv); err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	return tx, fx
}

type ecdsaFixture struct {
	priv *ecdsa.PrivateKey
	pub  chain.PublicKey
}

func newEcdsaFixture(t *testing.T) *ecdsaFixture {
	t.Helper()
	priv, err := chain.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair failed: %v", err)
	}
	pub, err := chain.EncodePublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("EncodePublicKey failed: %v", err)
	}
	return &ecdsaFixture{priv: priv, pub: pub}
}

func runDispatcher(t *testing.T, d *Dispatcher) (context.Context, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	return ctx, cancel
}

func TestPutTransactionAdmitsAndResponds(t *testing.T) {
	d, st, p, _ := newTestDispatcher(t, "skynet")
	ctx, cancel := runDispatcher(t, d)
	defer cancel()

	tx, _ := signedUnitTx(t, "skynet")
	resp := d.Dispatch(ctx, PutTransactionRequest{Tx: *tx})
	putResp, ok := resp.(PutTransactionResponse)
	if !ok {
		t.Fatalf("expected a PutTransactionResponse, got %#v", resp)
	}
	if !p.Exists(putResp.Hash) {
		t.Fatalf("expected the transaction to be admitted to the pool")
	}
	if _, ok := st.Tx(putResp.Hash); ok {
		t.Fatalf("a merely-admitted transaction should not yet be in the store")
	}
}

func TestPutTransactionRejectsBadNetwork(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t, "skynet")
	ctx, cancel := runDispatcher(t, d)
	defer cancel()

	tx, _ := signedUnitTx(t, "other-network")
	resp := d.Dispatch(ctx, PutTransactionRequest{Tx: *tx})
	exc, ok := resp.(Exception)
	if !ok {
		t.Fatalf("expected an Exception, got %#v", resp)
	}
	if exc.Kind != errs.BadNetwork {
		t.Fatalf("expected BadNetwork, got %v", exc.Kind)
	}
}

func TestPutTransactionRejectsDuplicateConfirmed(t *testing.T) {
	d, st, _, _ := newTestDispatcher(t, "skynet")
	ctx, cancel := runDispatcher(t, d)
	defer cancel()

	tx, _ := signedUnitTx(t, "skynet")
	h, err := tx.Hash()
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	f := st.Fork()
	f.PutTx(h, *tx)
	if err := f.Merge(); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	resp := d.Dispatch(ctx, PutTransactionRequest{Tx: *tx})
	if _, ok := resp.(Exception); !ok {
		t.Fatalf("expected an Exception rejecting an already-confirmed transaction, got %#v", resp)
	}
}

func TestGetNetworkId(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t, "skynet")
	ctx, cancel := runDispatcher(t, d)
	defer cancel()

	resp := d.Dispatch(ctx, GetNetworkIdRequest{})
	got, ok := resp.(GetNetworkIdResponse)
	if !ok || got.Name != "skynet" {
		t.Fatalf("unexpected response: %#v", resp)
	}
}

func TestGetCoreStatsReportsPoolStatus(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t, "skynet")
	ctx, cancel := runDispatcher(t, d)
	defer cancel()

	tx, _ := signedUnitTx(t, "skynet")
	d.Dispatch(ctx, PutTransactionRequest{Tx: *tx})

	resp := d.Dispatch(ctx, GetCoreStatsRequest{})
	stats, ok := resp.(GetCoreStatsResponse)
	if !ok {
		t.Fatalf("expected GetCoreStatsResponse, got %#v", resp)
	}
	if stats.UnconfirmedLen != 1 {
		t.Fatalf("expected 1 unconfirmed transaction, got %d", stats.UnconfirmedLen)
	}
}

func TestPackedDispatchesEachMessage(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t, "skynet")
	ctx, cancel := runDispatcher(t, d)
	defer cancel()

	resp := d.Dispatch(ctx, Packed{Messages: []Message{GetNetworkIdRequest{}, GetCoreStatsRequest{}}})
	packed, ok := resp.(Packed)
	if !ok || len(packed.Messages) != 2 {
		t.Fatalf("expected a 2-message Packed response, got %#v", resp)
	}
	if _, ok := packed.Messages[0].(GetNetworkIdResponse); !ok {
		t.Fatalf("expected the first reply to be a GetNetworkIdResponse, got %#v", packed.Messages[0])
	}
}

func TestIngestBlockStagesDirectlyWhenAlignerIdle(t *testing.T) {
	d, _, p, al := newTestDispatcher(t, "skynet")
	al.idle = true

	h := codec.HashBytes([]byte("tx-1"))
	staged := false
	d.OnBlockStaged(func() { staged = true })

	block := chain.Block{Data: chain.BlockData{Height: 0}}
	d.IngestBlock(context.Background(), block, []codec.Hash{h}, "", false)

	if !staged {
		t.Fatalf("expected the onBlockStaged hook to fire")
	}
	info, ok := p.ConfirmedInfo(0)
	if !ok || !info.HasTxs {
		t.Fatalf("expected height 0 to be staged as confirmed, got %+v ok=%v", info, ok)
	}
	if p.ReadyFor(0) {
		t.Fatalf("expected height 0 to not be ready yet: %v has no body in the pool", h)
	}
	if al.started {
		t.Fatalf("did not expect the aligner to start for a block matching the next expected height")
	}
}

func TestIngestBlockStartsAlignerOnGap(t *testing.T) {
	d, _, _, al := newTestDispatcher(t, "skynet")
	al.idle = true

	block := chain.Block{Data: chain.BlockData{Height: 5}}
	d.IngestBlock(context.Background(), block, nil, "", false)

	if !al.started {
		t.Fatalf("expected a height gap to start the aligner")
	}
}

func TestIngestBlockFeedsAlignerWhenNotIdle(t *testing.T) {
	d, _, _, al := newTestDispatcher(t, "skynet")
	al.idle = false

	block := chain.Block{Data: chain.BlockData{Height: 5}}
	d.IngestBlock(context.Background(), block, nil, "", false)

	if len(al.fed) != 1 {
		t.Fatalf("expected the block to be fed to the already-running aligner, got %d", len(al.fed))
	}
}

func TestDispatchTimesOutOnCancelledContext(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t, "skynet")
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // never started Run; the request queue is never drained

	done := make(chan Message, 1)
	go func() { done <- d.Dispatch(ctx, GetNetworkIdRequest{}) }()

	select {
	case resp := <-done:
		if _, ok := resp.(Exception); !ok {
			t.Fatalf("expected an Exception when the context is already cancelled, got %#v", resp)
		}
	case <-time.After(time.Second):
		t.Fatalf("Dispatch did not return promptly on a cancelled context")
	}
}
