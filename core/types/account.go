package types

import "math/big"

// Account tracks the native balance and call nonce for an address. Fungible
// token balances live in their own keyspace and are managed by the state
// manager rather than inlined here.
type Account struct {
	Nonce         uint64   `json:"nonce"`
	BalanceNative *big.Int `json:"balanceNative"`
}

// Clone returns a deep copy of the account with a non-nil native balance.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{BalanceNative: big.NewInt(0)}
	}
	clone := &Account{Nonce: a.Nonce, BalanceNative: big.NewInt(0)}
	if a.BalanceNative != nil {
		clone.BalanceNative = new(big.Int).Set(a.BalanceNative)
	}
	return clone
}
