package main

import (
	"math/big"
	"testing"

	"invoicechain/config"
	"invoicechain/core/state"
	"invoicechain/crypto"
	"invoicechain/storage"
)

func bech(fill byte) string {
	b := make([]byte, 20)
	for i := range b {
		b[i] = fill
	}
	return crypto.NewAddress(crypto.InvoicePrefix, b).String()
}

func TestSeedGenesisRunsOncePerStore(t *testing.T) {
	manager := state.NewManager(storage.NewMemDB())
	cfg := &config.Config{
		WrappedNativeToken: bech(0x11),
		GenesisTokens: map[string]string{
			bech(0x01): "100",
		},
	}

	if err := seedGenesis(cfg, manager); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// Simulated restart against the same store must not re-mint.
	if err := seedGenesis(cfg, manager); err != nil {
		t.Fatalf("second seed: %v", err)
	}

	token, err := cfg.WrappedNative()
	if err != nil {
		t.Fatalf("wrapped native: %v", err)
	}
	var holder [20]byte
	for i := range holder {
		holder[i] = 0x01
	}
	balance, err := manager.TokenBalance(token, holder)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected 100 after restart, got %s", balance)
	}
}

func TestSeedGenesisRejectsMalformedEntries(t *testing.T) {
	manager := state.NewManager(storage.NewMemDB())
	cfg := &config.Config{
		WrappedNativeToken: bech(0x11),
		GenesisTokens: map[string]string{
			bech(0x01): "not-a-number",
		},
	}
	if err := seedGenesis(cfg, manager); err == nil {
		t.Fatal("expected malformed amount to fail")
	}
}
