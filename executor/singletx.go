package executor

import (
	"trinci-core/chain"
	"trinci-core/codec"
	"trinci-core/contracthost"
	"trinci-core/errs"
	"trinci-core/store"
)

// Options bundles an Executor's injected collaborators (spec §4.5):
// the contract host, the fuel-translation policy, and the burn-fuel
// method.
type Options struct {
	Host       contracthost.Host
	FuelPolicy contracthost.FuelPolicy
	Burner     BurnFueler
}

// stepResult is one contract step's outcome (a unit tx, a bulk root, or
// one bulk node), before it is folded into a Receipt.
type stepResult struct {
	success    bool
	returns    []byte
	burnedFuel uint64
	events     []chain.Event
}

// stepSink adapts contracthost.EventSink to accumulate events tagged
// with the producing sub-transaction's hash (spec §3: "on insertion
// into a receipt, the executor sets event_tx to the hash of the
// producing transaction's data").
type stepSink struct {
	txHash codec.Hash
	events []chain.Event
}

func (s *stepSink) Emit(emitterAccount, eventName string, eventData []byte) {
	s.events = append(s.events, chain.Event{
		EventTx:        s.txHash,
		EmitterAccount: emitterAccount,
		EventName:      eventName,
		EventData:      eventData,
	})
}

// Index carries indexer output through the call untouched; consumption
// is an external read-model collaborator's concern (spec §1 Non-goal).
func (s *stepSink) Index(key string, value []byte) {}

// fixedResolveFailureFuel is the fixed error-fuel charge spec §4.5 step
// 1 calls for when contract resolution fails.
const fixedResolveFailureFuel = 1

// executeStep runs one contract step — resolve contract, invoke host,
// roll back on failure, translate fuel, burn it — shared by the single
// Unit path and each bulk root/node (spec §4.5 "Single-transaction
// execution" steps 1-4, reused by "Bulk-transaction execution").
func executeStep(fork store.Fork, opts Options, view chain.TxView, subTxHash codec.Hash, seed *SeedSource, blockTimestamp int64) stepResult {
	code, err := ResolveContract(fork, view)
	if err != nil {
		return stepResult{success: false, burnedFuel: fixedResolveFailureFuel, returns: []byte(err.Error())}
	}

	sink := &stepSink{txHash: subTxHash}
	call := contracthost.Call{
		Code:           code,
		Origin:         view.Caller(),
		Owner:          view.Account(),
		Caller:         view.Caller(),
		Network:        view.Network(),
		Method:         view.Method(),
		Args:           view.Args(),
		FuelLimit:      view.FuelLimit(),
		BlockTimestamp: blockTimestamp,
		Seed:           seed.Snapshot(),
		Sink:           sink,
	}

	res, err := opts.Host.Invoke(call)
	if err != nil || !res.Success {
		fork.Discard()
		msg := "contract invocation failed"
		switch {
		case res.Err != nil:
			msg = res.Err.Error()
		case err != nil && (errs.KindOf(err) == errs.SmartContractFault || errs.KindOf(err) == errs.ResourceNotFound):
			msg = err.Error()
		}
		return stepResult{success: false, burnedFuel: fixedResolveFailureFuel, returns: []byte(msg)}
	}

	fuelToBurn := opts.FuelPolicy(res.WasmFuelConsumed, view.FuelLimit())

	burnResult, err := opts.Burner.Burn(fork, view.Caller(), fuelToBurn)
	if err != nil || !burnResult.Success || fuelToBurn > view.FuelLimit() {
		fork.Discard()
		reduced := fuelToBurn
		if reduced > view.FuelLimit() {
			reduced = view.FuelLimit()
		}
		_, _ = opts.Burner.Burn(fork, view.Caller(), reduced)
		return stepResult{
			success:    false,
			burnedFuel: reduced,
			returns:    []byte("error burning fuel"),
			events:     sink.events,
		}
	}

	return stepResult{
		success:    true,
		returns:    res.ReturnData,
		burnedFuel: fuelToBurn,
		events:     sink.events,
	}
}

// ExecuteUnit runs a UnitTransaction's single step directly against
// fork (spec §4.5 "Single-transaction execution").
func ExecuteUnit(fork store.Fork, opts Options, tx *chain.Transaction, seed *SeedSource, blockTimestamp int64) (chain.Receipt, error) {
	if tx.Kind != chain.KindUnit {
		return chain.Receipt{}, errs.New(errs.WrongTxType, "ExecuteUnit requires a UnitTransaction")
	}
	txHash, err := tx.Hash()
	if err != nil {
		return chain.Receipt{}, err
	}
	res := executeStep(fork, opts, tx.View(), txHash, seed, blockTimestamp)
	return chain.Receipt{
		BurnedFuel: res.burnedFuel,
		Success:    res.success,
		Returns:    res.returns,
		Events:     res.events,
	}, nil
}
