package state

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"invoicechain/native/invoice"
	"invoicechain/storage"
)

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemDB())
}

func TestNativeMintAndWrap(t *testing.T) {
	manager := newTestManager(t)
	holder := testAddr(0x01)
	sink := testAddr(0xA0)
	wrapped := testAddr(0x11)

	if err := manager.MintNative(holder, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	balance, err := manager.NativeBalance(holder)
	if err != nil {
		t.Fatalf("native balance: %v", err)
	}
	if balance.Int64() != 100 {
		t.Fatalf("expected 100, got %s", balance)
	}

	if err := manager.WrapNative(holder, wrapped, sink, big.NewInt(150)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if err := manager.WrapNative(holder, wrapped, sink, big.NewInt(60)); err != nil {
		t.Fatalf("wrap: %v", err)
	}
	balance, _ = manager.NativeBalance(holder)
	if balance.Int64() != 40 {
		t.Fatalf("expected native 40, got %s", balance)
	}
	wrappedBalance, err := manager.TokenBalance(wrapped, sink)
	if err != nil {
		t.Fatalf("token balance: %v", err)
	}
	if wrappedBalance.Int64() != 60 {
		t.Fatalf("expected wrapped 60, got %s", wrappedBalance)
	}
}

func TestTokenTransfer(t *testing.T) {
	manager := newTestManager(t)
	token := testAddr(0x10)
	from := testAddr(0x01)
	to := testAddr(0x02)

	if err := manager.TokenMint(token, from, big.NewInt(50)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := manager.TokenTransfer(token, from, to, big.NewInt(70)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	// A failed transfer must leave both balances untouched.
	balance, _ := manager.TokenBalance(token, from)
	if balance.Int64() != 50 {
		t.Fatalf("sender balance changed: %s", balance)
	}
	if err := manager.TokenTransfer(token, from, to, big.NewInt(30)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	fromBalance, _ := manager.TokenBalance(token, from)
	toBalance, _ := manager.TokenBalance(token, to)
	if fromBalance.Int64() != 20 || toBalance.Int64() != 30 {
		t.Fatalf("unexpected balances: from=%s to=%s", fromBalance, toBalance)
	}
}

func TestInvoiceRoundTrip(t *testing.T) {
	manager := newTestManager(t)
	addr := testAddr(0xA0)
	inv := &invoice.Invoice{
		Address:         addr,
		Kind:            invoice.KindSplitEscrow,
		Client:          testAddr(0x01),
		Provider:        testAddr(0x02),
		Resolver:        testAddr(0x03),
		Token:           testAddr(0x10),
		WrappedNative:   testAddr(0x11),
		DAO:             testAddr(0x0D),
		DAOFee:          1_000,
		TerminationTime: 2_000_000,
		Amounts:         []*big.Int{big.NewInt(10), big.NewInt(20)},
		Total:           big.NewInt(30),
		Released:        big.NewInt(0),
	}

	exists, err := manager.InvoiceExists(addr)
	if err != nil || exists {
		t.Fatalf("unexpected pre-existing invoice: exists=%v err=%v", exists, err)
	}
	if err := manager.InvoicePut(inv); err != nil {
		t.Fatalf("put: %v", err)
	}
	exists, err = manager.InvoiceExists(addr)
	if err != nil || !exists {
		t.Fatalf("expected invoice to exist: exists=%v err=%v", exists, err)
	}

	stored, ok := manager.InvoiceGet(addr)
	if !ok {
		t.Fatal("invoice not found")
	}
	if stored.Kind != invoice.KindSplitEscrow || stored.DAOFee != 1_000 {
		t.Fatalf("unexpected stored invoice: %+v", stored)
	}
	if len(stored.Amounts) != 2 || stored.Amounts[1].Int64() != 20 {
		t.Fatalf("milestone schedule lost: %+v", stored.Amounts)
	}
	if stored.Total.Int64() != 30 {
		t.Fatalf("expected total 30, got %s", stored.Total)
	}

	// A record that fails validation never reaches the store.
	bad := inv.Clone()
	bad.Total = big.NewInt(31)
	if err := manager.InvoicePut(bad); err == nil {
		t.Fatal("expected corrupt invoice to be rejected")
	}
}

func TestImplementationRegistry(t *testing.T) {
	manager := newTestManager(t)
	version, err := manager.ImplementationAppend(invoice.KindEscrow, testAddr(0xE0))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if version != 0 {
		t.Fatalf("expected version 0, got %d", version)
	}
	version, err = manager.ImplementationAppend(invoice.KindEscrow, testAddr(0xE1))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if version != 1 {
		t.Fatalf("expected version 1, got %d", version)
	}
	impls, err := manager.ImplementationsGet(invoice.KindEscrow)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(impls) != 2 || impls[0] != testAddr(0xE0) || impls[1] != testAddr(0xE1) {
		t.Fatalf("unexpected registry contents: %x", impls)
	}
	other, err := manager.ImplementationsGet(invoice.KindUpdatable)
	if err != nil {
		t.Fatalf("get other kind: %v", err)
	}
	if len(other) != 0 {
		t.Fatal("kinds must not share version lists")
	}
}

func TestResolutionRates(t *testing.T) {
	manager := newTestManager(t)
	resolver := testAddr(0x03)
	_, ok, err := manager.ResolutionRate(resolver)
	if err != nil || ok {
		t.Fatalf("expected unset rate: ok=%v err=%v", ok, err)
	}
	if err := manager.ResolutionRatePut(resolver, 500); err != nil {
		t.Fatalf("put: %v", err)
	}
	rate, ok, err := manager.ResolutionRate(resolver)
	if err != nil || !ok || rate != 500 {
		t.Fatalf("unexpected rate: %d ok=%v err=%v", rate, ok, err)
	}
}

func TestCountersAndIndex(t *testing.T) {
	manager := newTestManager(t)
	count, err := manager.InvoiceCounter()
	if err != nil || count != 0 {
		t.Fatalf("expected fresh counter 0: %d err=%v", count, err)
	}
	if err := manager.SetInvoiceCounter(3); err != nil {
		t.Fatalf("set counter: %v", err)
	}
	count, _ = manager.InvoiceCounter()
	if count != 3 {
		t.Fatalf("expected 3, got %d", count)
	}

	addr := testAddr(0xA7)
	if err := manager.InvoiceIndexPut(2, addr); err != nil {
		t.Fatalf("index put: %v", err)
	}
	got, ok, err := manager.InvoiceIndexGet(2)
	if err != nil || !ok || got != addr {
		t.Fatalf("index lookup failed: %x ok=%v err=%v", got, ok, err)
	}
	if _, ok, _ := manager.InvoiceIndexGet(9); ok {
		t.Fatal("missing id must not resolve")
	}
}

func TestGenesisMarker(t *testing.T) {
	manager := newTestManager(t)
	seeded, err := manager.GenesisSeeded()
	if err != nil || seeded {
		t.Fatalf("fresh store must be unseeded: seeded=%v err=%v", seeded, err)
	}
	if err := manager.MarkGenesisSeeded(); err != nil {
		t.Fatalf("mark: %v", err)
	}
	seeded, err = manager.GenesisSeeded()
	if err != nil || !seeded {
		t.Fatalf("expected seeded store: seeded=%v err=%v", seeded, err)
	}
}

func TestOpenDisputeIdsStartAtOne(t *testing.T) {
	manager := newTestManager(t)
	first, err := manager.OpenDispute(testAddr(0x03), testAddr(0xA0), [32]byte{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	second, err := manager.OpenDispute(testAddr(0x03), testAddr(0xA1), [32]byte{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if first != 1 || second != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", first, second)
	}
}
