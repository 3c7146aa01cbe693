package executor

import (
	"testing"

	"trinci-core/chain"
	"trinci-core/contracthost"
	"trinci-core/store/memstore"
)

type fakeHost struct {
	success bool
	fuel    uint64
	ret     []byte
}

func (h fakeHost) Invoke(call contracthost.Call) (contracthost.Result, error) {
	if call.Sink != nil {
		call.Sink.Emit("emitter", "event-name", []byte("event-data"))
	}
	if !h.success {
		return contracthost.Result{Success: false, Err: errTest}, nil
	}
	return contracthost.Result{Success: true, WasmFuelConsumed: h.fuel, ReturnData: h.ret}, nil
}

type testError string

func (e testError) Error() string { return string(e) }

const errTest = testError("contract failed")

func newTestUnitTx(account string, caller chain.PublicKey, fuelLimit uint64) *chain.Transaction {
	return &chain.Transaction{
		Kind: chain.KindUnit,
		Data: chain.TxData{
			Kind: chain.KindV1,
			V1: &chain.V1Data{
				Schema:    "test-schema",
				Account:   account,
				FuelLimit: fuelLimit,
				Nonce:     1,
				Network:   "net",
				Method:    "do-thing",
				Caller:    caller,
			},
		},
	}
}

func TestExecuteUnitSuccess(t *testing.T) {
	m := memstore.New()
	f := m.Fork()
	AttachContract(f, "acct-1", []byte("hash-1"), []byte("wasm"))

	caller := chain.PublicKey("caller-1")
	burner := NewSystemLedgerBurner("system")
	burner.Credit(f, caller, 1000)

	opts := Options{
		Host:       fakeHost{success: true, fuel: 10, ret: []byte("ok")},
		FuelPolicy: contracthost.DefaultFuelPolicy,
		Burner:     burner,
	}
	seed := NewSeedSource("net")
	tx := newTestUnitTx("acct-1", caller, 100)

	rx, err := ExecuteUnit(f, opts, tx, seed, 123)
	if err != nil {
		t.Fatalf("ExecuteUnit failed: %v", err)
	}
	if !rx.Success {
		t.Fatalf("expected success, got %+v", rx)
	}
	if rx.BurnedFuel != 100 {
		t.Fatalf("expected the full fuel_limit (100) to be charged under the default policy, got %d", rx.BurnedFuel)
	}
	if string(rx.Returns) != "ok" {
		t.Fatalf("unexpected returns: %q", rx.Returns)
	}
	if len(rx.Events) != 1 || rx.Events[0].EventName != "event-name" {
		t.Fatalf("expected one emitted event, got %+v", rx.Events)
	}
}

func TestExecuteUnitContractNotFound(t *testing.T) {
	m := memstore.New()
	f := m.Fork()
	caller := chain.PublicKey("caller-1")

	opts := Options{
		Host:       fakeHost{success: true},
		FuelPolicy: contracthost.DefaultFuelPolicy,
		Burner:     NewSystemLedgerBurner("system"),
	}
	seed := NewSeedSource("net")
	tx := newTestUnitTx("no-such-account", caller, 100)

	rx, err := ExecuteUnit(f, opts, tx, seed, 123)
	if err != nil {
		t.Fatalf("ExecuteUnit should not itself error on resolve failure, got %v", err)
	}
	if rx.Success {
		t.Fatalf("expected failure when no contract resolves")
	}
	if rx.BurnedFuel != fixedResolveFailureFuel {
		t.Fatalf("expected the fixed resolve-failure fuel charge, got %d", rx.BurnedFuel)
	}
}

func TestExecuteUnitHostInvocationFailure(t *testing.T) {
	m := memstore.New()
	f := m.Fork()
	AttachContract(f, "acct-1", []byte("hash-1"), []byte("wasm"))
	caller := chain.PublicKey("caller-1")

	opts := Options{
		Host:       fakeHost{success: false},
		FuelPolicy: contracthost.DefaultFuelPolicy,
		Burner:     NewSystemLedgerBurner("system"),
	}
	seed := NewSeedSource("net")
	tx := newTestUnitTx("acct-1", caller, 100)

	rx, err := ExecuteUnit(f, opts, tx, seed, 123)
	if err != nil {
		t.Fatalf("ExecuteUnit failed: %v", err)
	}
	if rx.Success {
		t.Fatalf("expected failure when the host invocation fails")
	}
}

func TestExecuteUnitInsufficientFuelBalance(t *testing.T) {
	m := memstore.New()
	f := m.Fork()
	AttachContract(f, "acct-1", []byte("hash-1"), []byte("wasm"))
	caller := chain.PublicKey("caller-1")
	// No credit: the caller's fuel balance is zero.

	opts := Options{
		Host:       fakeHost{success: true, fuel: 10},
		FuelPolicy: contracthost.DefaultFuelPolicy,
		Burner:     NewSystemLedgerBurner("system"),
	}
	seed := NewSeedSource("net")
	tx := newTestUnitTx("acct-1", caller, 100)

	rx, err := ExecuteUnit(f, opts, tx, seed, 123)
	if err != nil {
		t.Fatalf("ExecuteUnit failed: %v", err)
	}
	if rx.Success {
		t.Fatalf("expected failure when the caller cannot pay the burned fuel")
	}
}

func TestExecuteUnitRejectsWrongKind(t *testing.T) {
	tx := &chain.Transaction{Kind: chain.KindBulk}
	_, err := ExecuteUnit(nil, Options{}, tx, nil, 0)
	if err == nil {
		t.Fatalf("expected ExecuteUnit to reject a non-Unit transaction")
	}
}
