package executor

import (
	"trinci-core/chain"
	"trinci-core/codec"
	"trinci-core/errs"
	"trinci-core/store"
)

// bulkResult is one sub-step's contribution to a bulk's combined
// Returns list (spec §4.5 "Bulk-transaction execution": "returns is a
// list of (sub_tx_hash_hex, BulkResult{success, result, fuel_consumed})
// encoded canonically").
type bulkResult struct {
	Success      bool
	Result       []byte
	FuelConsumed uint64
}

func (r *bulkResult) marshal(w *codec.Writer) error {
	w.ArrayHeader(3)
	w.Bool(r.Success)
	w.Bytes(r.Result)
	w.Uint64(r.FuelConsumed)
	return nil
}

// bulkEntry pairs a sub-transaction's hash (hex, per spec's
// "sub_tx_hash_hex") with its bulkResult.
type bulkEntry struct {
	Hash   string
	Result bulkResult
}

func (e *bulkEntry) marshal(w *codec.Writer) error {
	w.ArrayHeader(2)
	w.String(e.Hash)
	return e.Result.marshal(w)
}

func encodeBulkReturns(entries []bulkEntry) ([]byte, error) {
	return codec.Encode(bulkReturns(entries))
}

// bulkReturns adapts a []bulkEntry to codec.Marshaler so it can reuse
// codec.Encode's top-level array-tag framing.
type bulkReturns []bulkEntry

func (b bulkReturns) MarshalCanonical(w *codec.Writer) error {
	w.ArrayHeader(len(b))
	for i := range b {
		if err := b[i].marshal(w); err != nil {
			return err
		}
	}
	return nil
}

// rootSubTx builds the (TxData, TxView) pair for a bulk's root step,
// handling the BulkEmptyRoot short-circuit spec §4.5 calls for: "the
// root step returns success with an empty value and no contract call".
func rootSubTx(b *chain.BulkV1Data) (isEmpty bool, view chain.TxView, data chain.TxData) {
	if b.Root.IsEmpty {
		return true, nil, chain.TxData{Kind: chain.KindBulkEmptyRoot, BulkEmptyRoot: b.Root.EmptyRoot}
	}
	return false, chain.NodeViewRoot(b.Root.RootV1), chain.TxData{Kind: chain.KindBulkRootV1, BulkRootV1: b.Root.RootV1}
}

// ExecuteBulk runs a BulkTransaction's root then nodes in order (spec
// §4.5 "Bulk-transaction execution"): any failure rolls back the whole
// fork and short-circuits remaining steps; fuel sums into one receipt;
// events from every sub-step are merged, each tagged with its producing
// sub-tx's own data hash.
func ExecuteBulk(fork store.Fork, opts Options, tx *chain.Transaction, seed *SeedSource, blockTimestamp int64) (chain.Receipt, error) {
	if tx.Kind != chain.KindBulk {
		return chain.Receipt{}, errs.New(errs.WrongTxType, "ExecuteBulk requires a BulkTransaction")
	}
	b := tx.Data.BulkV1

	var (
		burned  uint64
		events  []chain.Event
		entries []bulkEntry
		failed  bool
		retBuf  []byte
	)

	isEmpty, rootView, rootData := rootSubTx(b)
	rootHash, err := codec.HashOf(&rootData)
	if err != nil {
		return chain.Receipt{}, err
	}

	if isEmpty {
		entries = append(entries, bulkEntry{
			Hash:   rootHash.Hex(),
			Result: bulkResult{Success: true},
		})
	} else {
		res := executeStep(fork, opts, rootView, rootHash, seed, blockTimestamp)
		burned += res.burnedFuel
		events = append(events, res.events...)
		entries = append(entries, bulkEntry{
			Hash:   rootHash.Hex(),
			Result: bulkResult{Success: res.success, Result: res.returns, FuelConsumed: res.burnedFuel},
		})
		if !res.success {
			failed = true
		}
	}

	for i := range b.Nodes {
		if failed {
			break
		}
		node := &b.Nodes[i].Data
		nodeData := chain.TxData{Kind: chain.KindBulkNodeV1, BulkNodeV1: node}
		nodeHash, err := codec.HashOf(&nodeData)
		if err != nil {
			return chain.Receipt{}, err
		}
		res := executeStep(fork, opts, chain.NodeView(node), nodeHash, seed, blockTimestamp)
		burned += res.burnedFuel
		events = append(events, res.events...)
		entries = append(entries, bulkEntry{
			Hash:   nodeHash.Hex(),
			Result: bulkResult{Success: res.success, Result: res.returns, FuelConsumed: res.burnedFuel},
		})
		if !res.success {
			failed = true
		}
	}

	retBuf, err = encodeBulkReturns(entries)
	if err != nil {
		return chain.Receipt{}, err
	}

	return chain.Receipt{
		BurnedFuel: burned,
		Success:    !failed,
		Returns:    retBuf,
		Events:     events,
	}, nil
}
