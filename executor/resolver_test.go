package executor

import (
	"testing"

	"trinci-core/chain"
	"trinci-core/contracthost"
	"trinci-core/store/memstore"
)

func TestResolveContractFromAccount(t *testing.T) {
	m := memstore.New()
	f := m.Fork()
	AttachContract(f, "acct-1", []byte("hash-1"), []byte("wasm-bytes"))

	view := chain.NodeViewRoot(&chain.V1Data{Account: "acct-1"})
	code, err := ResolveContract(f, view)
	if err != nil {
		t.Fatalf("ResolveContract failed: %v", err)
	}
	if string(code) != "wasm-bytes" {
		t.Fatalf("unexpected code: %q", code)
	}
}

func TestResolveContractFromTransactionHash(t *testing.T) {
	m := memstore.New()
	f := m.Fork()
	f.PutAccountData("acct-1", "contract_code:hash-2", []byte("wasm-bytes-2"))

	view := chain.NodeViewRoot(&chain.V1Data{Account: "acct-1", Contract: []byte("hash-2")})
	code, err := ResolveContract(f, view)
	if err != nil {
		t.Fatalf("ResolveContract failed: %v", err)
	}
	if string(code) != "wasm-bytes-2" {
		t.Fatalf("unexpected code: %q", code)
	}
}

func TestResolveContractMissingAccount(t *testing.T) {
	m := memstore.New()
	f := m.Fork()

	view := chain.NodeViewRoot(&chain.V1Data{Account: "no-such-account"})
	if _, err := ResolveContract(f, view); err != contracthost.ErrContractNotFound {
		t.Fatalf("expected ErrContractNotFound, got %v", err)
	}
}

func TestResolveContractAccountWithNoContract(t *testing.T) {
	m := memstore.New()
	f := m.Fork()
	f.PutAccount(chain.Account{ID: "acct-1"})

	view := chain.NodeViewRoot(&chain.V1Data{Account: "acct-1"})
	if _, err := ResolveContract(f, view); err != contracthost.ErrContractNotFound {
		t.Fatalf("expected ErrContractNotFound, got %v", err)
	}
}
