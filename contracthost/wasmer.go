package contracthost

import (
	"github.com/wasmerio/wasmer-go/wasmer"

	"trinci-core/errs"
)

// WasmerHost is the default Host, loading a contract's WASM bytes with
// wasmer-go (the teacher's own contract engine, core/virtual_machine.go's
// "heavy" VM tier) and invoking its exported method. Per spec §1's
// Non-goal on contract execution mechanics, the guest ABI here is
// deliberately minimal: a contract exports a function named after the
// transaction's Method taking no parameters and returning one i32 (an
// opaque "result code"), encoded into Result.ReturnData as its 4 raw
// bytes. This is enough to exercise the host/guest boundary end to end
// without prescribing a contract SDK.
type WasmerHost struct {
	engine *wasmer.Engine
}

func NewWasmerHost() *WasmerHost {
	return &WasmerHost{engine: wasmer.NewEngine()}
}

func (h *WasmerHost) Invoke(call Call) (Result, error) {
	store := wasmer.NewStore(h.engine)
	module, err := wasmer.NewModule(store, call.Code)
	if err != nil {
		return Result{}, errs.Wrap(errs.WasmMachineFault, "compile contract module", err)
	}

	imports := wasmer.NewImportObject()
	instance, err := wasmer.NewInstance(module, imports)
	if err != nil {
		return Result{}, errs.Wrap(errs.WasmMachineFault, "instantiate contract module", err)
	}
	defer instance.Close()

	fn, err := instance.Exports.GetFunction(call.Method)
	if err != nil {
		return Result{
			Success: false,
			Err:     errs.Wrap(errs.SmartContractFault, "method not exported: "+call.Method, err),
		}, nil
	}

	out, err := fn()
	if err != nil {
		return Result{
			Success: false,
			Err:     errs.Wrap(errs.SmartContractFault, "contract call trapped", err),
		}, nil
	}

	consumed := estimateFuel(call.Args)
	return Result{
		WasmFuelConsumed: consumed,
		Success:          true,
		ReturnData:       encodeI32Result(out),
	}, nil
}

// estimateFuel stands in for wasmer's metering middleware (not wired in
// this tier): fuel scales with input size, giving a deterministic,
// reproducible consumption figure across nodes without requiring a
// metering build of the engine.
func estimateFuel(args []byte) uint64 {
	return uint64(len(args)) + 1
}

func encodeI32Result(v interface{}) []byte {
	n, ok := v.(int32)
	if !ok {
		return nil
	}
	return []byte{byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)}
}
