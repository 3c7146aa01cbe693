package executor

import (
	"testing"

	"trinci-core/chain"
	"trinci-core/store/memstore"
)

func TestSystemLedgerBurnerCreditThenBurn(t *testing.T) {
	m := memstore.New()
	f := m.Fork()
	b := NewSystemLedgerBurner("system")
	caller := chain.PublicKey("caller-1")

	b.Credit(f, caller, 100)
	res, err := b.Burn(f, caller, 30)
	if err != nil {
		t.Fatalf("Burn failed: %v", err)
	}
	if !res.Success || res.Units != 30 {
		t.Fatalf("expected a successful burn of 30 units, got %+v", res)
	}

	res2, err := b.Burn(f, caller, 100)
	if err != nil {
		t.Fatalf("Burn failed: %v", err)
	}
	if res2.Success {
		t.Fatalf("expected insufficient balance to fail the burn, got %+v", res2)
	}
	if res2.Units != 70 {
		t.Fatalf("expected the reported balance to be the remaining 70, got %d", res2.Units)
	}
}

func TestSystemLedgerBurnerZeroBalanceByDefault(t *testing.T) {
	m := memstore.New()
	f := m.Fork()
	b := NewSystemLedgerBurner("system")

	res, err := b.Burn(f, chain.PublicKey("never-credited"), 1)
	if err != nil {
		t.Fatalf("Burn failed: %v", err)
	}
	if res.Success {
		t.Fatalf("expected a never-credited caller to fail any non-zero burn")
	}
}

func TestEncodeDecodeUint64RoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 255, 1 << 40, ^uint64(0)} {
		enc := encodeUint64(v)
		if len(enc) != 8 {
			t.Fatalf("expected an 8-byte encoding, got %d", len(enc))
		}
		if got := decodeUint64(enc); got != v {
			t.Fatalf("round-trip mismatch: got %d, want %d", got, v)
		}
	}
}

func TestDecodeUint64RejectsWrongLength(t *testing.T) {
	if got := decodeUint64([]byte{1, 2, 3}); got != 0 {
		t.Fatalf("expected a malformed-length buffer to decode as 0, got %d", got)
	}
}
