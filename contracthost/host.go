// Package contracthost defines the sandboxed contract host/guest
// boundary spec §1 keeps external ("contract execution mechanics beyond
// the host/guest contract" is explicitly out of scope) and spec §4.5
// pins down the shape of: "invoke the contract host with (origin,
// owner, caller, network, method, args, fuel_limit, block_timestamp,
// seed_source), receiving (wm_fuel_consumed, result_or_error)".
package contracthost

import "trinci-core/errs"

// SeedMaterial is the snapshot of the executor's seed source a contract
// call may consume for deterministic randomness (spec §4.5 "Seed
// source"). It is passed by value: the host never mutates the
// executor's live seed state directly.
type SeedMaterial struct {
	NetworkName  string
	Nonce        uint64
	PrevHash     []byte
	TxsHash      []byte
	RxsHash      []byte
	PreviousSeed uint64
}

// EventSink receives contract events and indexer writes produced during
// a call, merged into the receipt on success (spec §4.5 step 2).
type EventSink interface {
	Emit(emitterAccount, eventName string, eventData []byte)
	Index(key string, value []byte)
}

// Call is the full input to one guest invocation (spec §4.5 step 2).
type Call struct {
	Code           []byte // the resolved contract's WASM bytes
	Origin         []byte // the transaction's caller public key
	Owner          string // the account the contract is attached to
	Caller         []byte // the immediate caller (may differ from Origin for nested calls; equals Origin at top level)
	Network        string
	Method         string
	Args           []byte
	FuelLimit      uint64
	BlockTimestamp int64
	Seed           SeedMaterial
	Sink           EventSink
}

// Result is the guest's output (spec §4.5: "(wm_fuel_consumed,
// result_or_error)").
type Result struct {
	WasmFuelConsumed uint64
	Success          bool
	ReturnData       []byte
	Err              error
}

// Host is the sandboxed contract execution boundary. Anything beyond
// this call shape — guest ABI, memory layout, which host functions a
// contract may import — is intentionally unspecified here (spec §1
// Non-goal).
type Host interface {
	Invoke(call Call) (Result, error)
}

// FuelPolicy translates a guest's consumed WASM fuel into TRINCI fuel
// (spec §4.5 step 4: "current policy: 0 -> 0, else the tx's
// fuel_limit"). It is pluggable so a node can tune the conversion
// without touching the execution pipeline.
type FuelPolicy func(wasmFuelConsumed, fuelLimit uint64) uint64

// DefaultFuelPolicy implements the spec's stated current policy.
func DefaultFuelPolicy(wasmFuelConsumed, fuelLimit uint64) uint64 {
	if wasmFuelConsumed == 0 {
		return 0
	}
	return fuelLimit
}

// ErrContractNotFound is returned by a Resolver when an account has no
// attached contract and none was supplied on the transaction (spec
// §4.5 step 1).
var ErrContractNotFound = errs.New(errs.ResourceNotFound, "contract not found")
