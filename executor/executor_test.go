package executor

import (
	"testing"

	"trinci-core/chain"
	"trinci-core/codec"
	"trinci-core/contracthost"
	"trinci-core/pool"
	"trinci-core/pubsub"
	"trinci-core/store/memstore"
	"trinci-core/validator"
)

func seedGenesis(t *testing.T, st *memstore.MemStore) {
	t.Helper()
	f := st.Fork()
	f.PutBlock(chain.Block{Data: chain.BlockData{Height: 0}, Signature: chain.GenesisSignature})
	if err := f.Merge(); err != nil {
		t.Fatalf("seeding genesis failed: %v", err)
	}
}

func TestDrainReadyCommitsASignedBlock(t *testing.T) {
	st := memstore.New()
	seedGenesis(t, st)

	p := pool.New()
	reg := pubsub.New(nil)
	seed := NewSeedSource("net")
	isValidator := validator.NewSet()

	f := st.Fork()
	caller := chain.PublicKey("caller-1")
	AttachContract(f, "acct-1", []byte("hash-1"), []byte("wasm"))
	burner := NewSystemLedgerBurner("system")
	burner.Credit(f, caller, 1000)
	if err := f.Merge(); err != nil {
		t.Fatalf("seeding account state failed: %v", err)
	}

	opts := Options{
		Host:       fakeHost{success: true, fuel: 5, ret: []byte("done")},
		FuelPolicy: contracthost.DefaultFuelPolicy,
		Burner:     burner,
	}
	ex := New(st, p, reg, seed, isValidator, opts, nil)

	signer, err := chain.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair failed: %v", err)
	}
	ex.SetSigner(signer)

	tx := newTestUnitTx("acct-1", caller, 100)
	txHash, err := tx.Hash()
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if err := p.Admit(txHash, tx); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	p.InsertConfirmed(1, pool.BlockInfo{HasTxs: true, TxsHashes: []codec.Hash{txHash}, Timestamp: 100})

	if err := ex.DrainReady(); err != nil {
		t.Fatalf("DrainReady failed: %v", err)
	}

	block, ok := st.LastBlock()
	if !ok || block.Data.Height != 1 {
		t.Fatalf("expected height 1 to be committed, got %+v ok=%v", block, ok)
	}
	if len(block.Signature) == 0 {
		t.Fatalf("expected the committed block to carry a signature")
	}
	if block.Data.PrevHash == "" {
		t.Fatalf("expected a non-empty prev_hash for a non-genesis block")
	}

	rx, ok := st.Receipt(txHash)
	if !ok {
		t.Fatalf("expected a receipt to be stored for the executed transaction")
	}
	if !rx.Success || string(rx.Returns) != "done" {
		t.Fatalf("unexpected receipt: %+v", rx)
	}
	if rx.Height != 1 || rx.Index != 0 {
		t.Fatalf("expected receipt height=1 index=0, got height=%d index=%d", rx.Height, rx.Index)
	}

	if p.Exists(txHash) {
		t.Fatalf("expected the executed hash to be gone from the pool")
	}
	if _, ok := p.ConfirmedInfo(1); ok {
		t.Fatalf("expected the confirmed slot to be cleared after commit")
	}
}

func TestDrainReadyStopsAtFirstUnreadyHeight(t *testing.T) {
	st := memstore.New()
	seedGenesis(t, st)

	p := pool.New()
	reg := pubsub.New(nil)
	seed := NewSeedSource("net")
	isValidator := validator.NewSet()
	opts := Options{
		Host:       fakeHost{success: true},
		FuelPolicy: contracthost.DefaultFuelPolicy,
		Burner:     NewSystemLedgerBurner("system"),
	}
	ex := New(st, p, reg, seed, isValidator, opts, nil)
	signer, err := chain.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair failed: %v", err)
	}
	ex.SetSigner(signer)

	// Height 1 never becomes ready (no confirmed slot staged at all).
	if err := ex.DrainReady(); err != nil {
		t.Fatalf("DrainReady failed: %v", err)
	}

	if _, ok := st.Block(1); ok {
		t.Fatalf("expected no progress without a ready height 1")
	}
}
