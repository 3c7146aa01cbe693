package executor

import (
	"trinci-core/chain"
	"trinci-core/store"
)

// BurnFuelResult is the configured burn-fuel method's authoritative
// reply (spec §4.5 step 5: "The method's returned {success, units} is
// authoritative").
type BurnFuelResult struct {
	Success bool
	Units   uint64
}

// BurnFueler invokes the node's configured burn-fuel method on the
// system account. Spec §1 keeps contract execution mechanics out of
// scope, so the on-chain accounting it performs is pluggable; the
// default below debits a plain account_data balance, which is enough
// to exercise the pipeline's success/failure branches (spec §4.5 step
// 5) without prescribing a system contract ABI.
type BurnFueler interface {
	Burn(fork store.Fork, from chain.PublicKey, units uint64) (BurnFuelResult, error)
}

const fuelBalanceKey = "fuel_balance"

// SystemLedgerBurner is the default BurnFueler: a per-caller uint64
// balance kept in account_data under the system account.
type SystemLedgerBurner struct {
	SystemAccount string
}

func NewSystemLedgerBurner(systemAccount string) *SystemLedgerBurner {
	return &SystemLedgerBurner{SystemAccount: systemAccount}
}

func (b *SystemLedgerBurner) Burn(fork store.Fork, from chain.PublicKey, units uint64) (BurnFuelResult, error) {
	key := string(from)
	data, _ := fork.AccountData(b.SystemAccount, key)
	balance := decodeUint64(data)
	if balance < units {
		return BurnFuelResult{Success: false, Units: balance}, nil
	}
	balance -= units
	fork.PutAccountData(b.SystemAccount, key, encodeUint64(balance))
	return BurnFuelResult{Success: true, Units: units}, nil
}

// Credit funds a caller's fuel balance; used by tests and account
// bootstrapping (genesis) ahead of any transaction execution.
func (b *SystemLedgerBurner) Credit(fork store.Fork, to chain.PublicKey, units uint64) {
	key := string(to)
	data, _ := fork.AccountData(b.SystemAccount, key)
	balance := decodeUint64(data) + units
	fork.PutAccountData(b.SystemAccount, key, encodeUint64(balance))
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

func decodeUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
