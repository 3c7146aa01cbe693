package executor

import (
	"trinci-core/chain"
	"trinci-core/contracthost"
	"trinci-core/store"
)

// codeDataKey is the account_data name under which a resolved
// contract's WASM bytes are stored, keyed by the contract hash attached
// to the account or named on a transaction. Spec §6 lists account_data
// as a generic [id][name]->bytes space and leaves contract code storage
// to the external contract-sandbox collaborator (spec §1 Non-goal); this
// is the one convention this module needs to exercise that boundary.
func codeDataKey(contractHash []byte) string {
	return "contract_code:" + string(contractHash)
}

// ResolveContract implements spec §4.5 step 1: use the transaction's
// contract hash if present, otherwise query the fork for the account's
// current contract ("app_hash_check"), then load that contract's code
// bytes. Returns contracthost.ErrContractNotFound if neither the
// transaction nor the account names a usable contract.
func ResolveContract(fork store.Fork, view chain.TxView) ([]byte, error) {
	hash := view.Contract()
	if hash == nil {
		acc, ok := fork.Account(view.Account())
		if !ok || acc.Contract == nil {
			return nil, contracthost.ErrContractNotFound
		}
		hash = acc.Contract
	}
	code, ok := fork.AccountData(view.Account(), codeDataKey(hash))
	if !ok {
		return nil, contracthost.ErrContractNotFound
	}
	return code, nil
}

// AttachContract is the companion write-side convenience used by tests
// and the CLI to install a contract on an account ahead of execution.
func AttachContract(fork store.Fork, accountID string, contractHash, code []byte) {
	acc, ok := fork.Account(accountID)
	if !ok {
		acc = chain.Account{ID: accountID}
	}
	acc.Contract = contractHash
	fork.PutAccount(acc)
	fork.PutAccountData(accountID, codeDataKey(contractHash), code)
}
