package pool

import (
	"testing"

	"trinci-core/chain"
	"trinci-core/codec"
	"trinci-core/errs"
)

func hashOf(s string) codec.Hash { return codec.HashBytes([]byte(s)) }

func TestAdmitThenDuplicate(t *testing.T) {
	p := New()
	h := hashOf("tx-1")
	tx := &chain.Transaction{}

	if err := p.Admit(h, tx); err != nil {
		t.Fatalf("first Admit failed: %v", err)
	}
	if err := p.Admit(h, tx); err == nil {
		t.Fatalf("expected second Admit to report a duplicate")
	} else if errs.KindOf(err) != errs.DuplicatedUnconfirmed {
		t.Fatalf("expected DuplicatedUnconfirmed, got %v", errs.KindOf(err))
	}
	if !p.Exists(h) {
		t.Fatalf("expected Exists to report the admitted hash")
	}
}

func TestAdmitFillsPlaceholder(t *testing.T) {
	p := New()
	h := hashOf("tx-1")
	p.NoteBlockHashes([]codec.Hash{h})
	if _, ok := p.Transaction(h); ok {
		t.Fatalf("expected a placeholder hash to have no body yet")
	}

	tx := &chain.Transaction{}
	if err := p.Admit(h, tx); err != nil {
		t.Fatalf("Admit of a placeholder's body should succeed, got %v", err)
	}
	if _, ok := p.Transaction(h); !ok {
		t.Fatalf("expected the body to be present after filling a placeholder")
	}
}

func TestAdmitConfirmedDuplicate(t *testing.T) {
	p := New()
	h := hashOf("tx-1")
	tx := &chain.Transaction{}
	if err := p.Admit(h, tx); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	// Once staged as part of a confirmed block (its body already filled
	// and no longer pending admission), a second Admit of the same body
	// is DuplicatedConfirmed rather than DuplicatedUnconfirmed.
	p.NoteBlockHashes([]codec.Hash{h})

	if err := p.Admit(h, tx); err == nil {
		t.Fatalf("expected a duplicate error")
	} else if errs.KindOf(err) != errs.DuplicatedConfirmed {
		t.Fatalf("expected DuplicatedConfirmed, got %v", errs.KindOf(err))
	}
}

func TestReadyForRequiresAllBodies(t *testing.T) {
	p := New()
	h1, h2 := hashOf("tx-1"), hashOf("tx-2")

	p.InsertConfirmed(11, BlockInfo{HasTxs: true, TxsHashes: []codec.Hash{h1, h2}})
	if p.ReadyFor(11) {
		t.Fatalf("expected ReadyFor to be false before any body arrives")
	}

	if err := p.Admit(h1, &chain.Transaction{}); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if p.ReadyFor(11) {
		t.Fatalf("expected ReadyFor to stay false with one body missing")
	}

	if err := p.Admit(h2, &chain.Transaction{}); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if !p.ReadyFor(11) {
		t.Fatalf("expected ReadyFor to be true once every body has arrived")
	}
}

func TestReadyForMonotoneUnderFurtherAdmissions(t *testing.T) {
	p := New()
	h := hashOf("tx-1")
	p.InsertConfirmed(11, BlockInfo{HasTxs: true, TxsHashes: []codec.Hash{h}})
	if err := p.Admit(h, &chain.Transaction{}); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if !p.ReadyFor(11) {
		t.Fatalf("expected ReadyFor(11) to be true")
	}

	// Admitting an unrelated transaction must not flip a previously-ready
	// height back to not-ready (spec §8: "ready_for(h) is monotone under
	// further admissions").
	if err := p.Admit(hashOf("tx-unrelated"), &chain.Transaction{}); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if !p.ReadyFor(11) {
		t.Fatalf("expected ReadyFor(11) to remain true after an unrelated admission")
	}
}

func TestTakeConfirmedLeavesSlotPresentButEmpty(t *testing.T) {
	p := New()
	p.InsertConfirmed(11, BlockInfo{HasTxs: true})

	info, ok := p.TakeConfirmed(11)
	if !ok || !info.HasTxs {
		t.Fatalf("expected to take the staged BlockInfo, got %+v ok=%v", info, ok)
	}

	again, ok := p.ConfirmedInfo(11)
	if !ok {
		t.Fatalf("expected the slot to still be present after Take")
	}
	if again.HasTxs {
		t.Fatalf("expected the slot to be empty after Take, got %+v", again)
	}
}

func TestCommitRemovesExecutedHashesFromTxsAndUnconfirmed(t *testing.T) {
	p := New()
	h := hashOf("tx-1")
	if err := p.Admit(h, &chain.Transaction{}); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	p.InsertConfirmed(11, BlockInfo{HasTxs: true, TxsHashes: []codec.Hash{h}})
	p.NoteBlockHashes([]codec.Hash{h})

	if _, ok := p.TakeConfirmed(11); !ok {
		t.Fatalf("expected to take the confirmed slot")
	}
	p.RemoveExecuted(h)
	p.RemoveConfirmed(11)

	if p.Exists(h) {
		t.Fatalf("expected the executed hash to be gone from txs")
	}
	for _, u := range p.Unconfirmed() {
		if u == h {
			t.Fatalf("expected the executed hash to be gone from unconfirmed")
		}
	}
	if _, ok := p.ConfirmedInfo(11); ok {
		t.Fatalf("expected the confirmed slot to be gone")
	}
}

func TestStatusReflectsUnconfirmedLength(t *testing.T) {
	p := New()
	if s := p.Status(); s.UnconfirmedLen != 0 {
		t.Fatalf("expected an empty pool to report length 0, got %d", s.UnconfirmedLen)
	}
	if err := p.Admit(hashOf("tx-1"), &chain.Transaction{}); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if err := p.Admit(hashOf("tx-2"), &chain.Transaction{}); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if s := p.Status(); s.UnconfirmedLen != 2 {
		t.Fatalf("expected length 2, got %d", s.UnconfirmedLen)
	}
}
