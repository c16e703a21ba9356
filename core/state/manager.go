package state

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"invoicechain/core/types"
	"invoicechain/native/invoice"
	"invoicechain/storage"
)

var (
	// ErrInsufficientFunds rejects a transfer the sender cannot cover.
	ErrInsufficientFunds = errors.New("state: insufficient funds")
)

// Key layout. Everything is JSON over the KV store; addresses and tokens are
// hex-encoded in keys so prefixes stay scannable.
const (
	prefixAccount      = "acct/"
	prefixTokenBalance = "tok/"
	prefixInvoice      = "inv/"
	prefixImpl         = "reg/impl/"
	prefixRate         = "reg/rate/"
	prefixIndex        = "reg/idx/"
	keyInvoiceCounter  = "ctr/invoice"
	keyDisputeCounter  = "ctr/dispute"
	keyGenesisSeeded   = "genesis/seeded"
)

// Manager persists accounts, token balances, invoices and registry entries on
// a key-value database. It is the single mutable shared resource of the
// settlement core: every engine call runs against one Manager and commits or
// aborts as a whole, serialized by the manager's lock.
type Manager struct {
	mu sync.Mutex
	db storage.Database
}

// NewManager wraps the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func accountKey(addr [20]byte) []byte {
	return []byte(prefixAccount + hex.EncodeToString(addr[:]))
}

func tokenBalanceKey(token, holder [20]byte) []byte {
	return []byte(prefixTokenBalance + hex.EncodeToString(token[:]) + "/" + hex.EncodeToString(holder[:]))
}

func invoiceKey(addr [20]byte) []byte {
	return []byte(prefixInvoice + hex.EncodeToString(addr[:]))
}

func implKey(kind invoice.Kind) []byte {
	return []byte(prefixImpl + string(kind))
}

func rateKey(resolver [20]byte) []byte {
	return []byte(prefixRate + hex.EncodeToString(resolver[:]))
}

func indexKey(id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return []byte(prefixIndex + hex.EncodeToString(buf[:]))
}

func (m *Manager) getJSON(key []byte, out interface{}) (bool, error) {
	raw, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: corrupt record at %s: %w", key, err)
	}
	return true, nil
}

func (m *Manager) putJSON(key []byte, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return m.db.Put(key, raw)
}

// --- Accounts and native balances ---

// GetAccount loads the account for the address, returning a zeroed account
// when none is stored yet.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getAccountLocked(addr)
}

func (m *Manager) getAccountLocked(addr [20]byte) (*types.Account, error) {
	account := &types.Account{}
	ok, err := m.getJSON(accountKey(addr), account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &types.Account{BalanceNative: big.NewInt(0)}, nil
	}
	if account.BalanceNative == nil {
		account.BalanceNative = big.NewInt(0)
	}
	return account, nil
}

// PutAccount stores the account.
func (m *Manager) PutAccount(addr [20]byte, account *types.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putJSON(accountKey(addr), account.Clone())
}

// MintNative credits native currency to an address. Used by genesis funding
// and tests; the settlement engines never mint.
func (m *Manager) MintNative(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: mint amount must be non-negative")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	account, err := m.getAccountLocked(addr)
	if err != nil {
		return err
	}
	account.BalanceNative = new(big.Int).Add(account.BalanceNative, amount)
	return m.putJSON(accountKey(addr), account)
}

// NativeBalance reads an address's native balance.
func (m *Manager) NativeBalance(addr [20]byte) (*big.Int, error) {
	account, err := m.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(account.BalanceNative), nil
}

// --- Fungible token balances ---

func (m *Manager) tokenBalanceLocked(token, holder [20]byte) (*big.Int, error) {
	var encoded string
	ok, err := m.getJSON(tokenBalanceKey(token, holder), &encoded)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	balance, valid := new(big.Int).SetString(encoded, 10)
	if !valid {
		return nil, fmt.Errorf("state: corrupt balance for holder %x", holder)
	}
	return balance, nil
}

func (m *Manager) setTokenBalanceLocked(token, holder [20]byte, balance *big.Int) error {
	return m.putJSON(tokenBalanceKey(token, holder), balance.String())
}

// TokenBalance reads the holder's balance in the token.
func (m *Manager) TokenBalance(token, holder [20]byte) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokenBalanceLocked(token, holder)
}

// TokenTransfer moves token value between holders, failing without partial
// effects when the sender's balance cannot cover the amount.
func (m *Manager) TokenTransfer(token, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: negative transfer amount")
	}
	if amount.Sign() == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	fromBalance, err := m.tokenBalanceLocked(token, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	toBalance, err := m.tokenBalanceLocked(token, to)
	if err != nil {
		return err
	}
	if err := m.setTokenBalanceLocked(token, from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return m.setTokenBalanceLocked(token, to, new(big.Int).Add(toBalance, amount))
}

// TokenMint credits token value to a holder. Used by genesis funding and
// tests; the settlement engines only move existing value.
func (m *Manager) TokenMint(token, holder [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: mint amount must be non-negative")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, err := m.tokenBalanceLocked(token, holder)
	if err != nil {
		return err
	}
	return m.setTokenBalanceLocked(token, holder, new(big.Int).Add(balance, amount))
}

// WrapNative debits native currency from the sender and credits the wrapped
// token to the recipient, implementing the native-to-wrapped deposit adapter.
func (m *Manager) WrapNative(from [20]byte, token [20]byte, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: wrap amount must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	account, err := m.getAccountLocked(from)
	if err != nil {
		return err
	}
	if account.BalanceNative.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	balance, err := m.tokenBalanceLocked(token, to)
	if err != nil {
		return err
	}
	account.BalanceNative = new(big.Int).Sub(account.BalanceNative, amount)
	if err := m.putJSON(accountKey(from), account); err != nil {
		return err
	}
	return m.setTokenBalanceLocked(token, to, new(big.Int).Add(balance, amount))
}

// --- Invoices ---

// InvoicePut sanitizes and stores the invoice.
func (m *Manager) InvoicePut(inv *invoice.Invoice) error {
	sanitized, err := invoice.SanitizeInvoice(inv)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putJSON(invoiceKey(sanitized.Address), sanitized)
}

// InvoiceGet loads the invoice stored at the address.
func (m *Manager) InvoiceGet(addr [20]byte) (*invoice.Invoice, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv := &invoice.Invoice{}
	ok, err := m.getJSON(invoiceKey(addr), inv)
	if err != nil || !ok {
		return nil, false
	}
	// Clone fills nil big.Int fields on records written before a field
	// existed.
	return inv.Clone(), true
}

// InvoiceExists reports whether an instance is deployed at the address.
func (m *Manager) InvoiceExists(addr [20]byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Has(invoiceKey(addr))
}

// --- Implementation registry ---

// ImplementationsGet returns the ordered version list for the kind.
func (m *Manager) ImplementationsGet(kind invoice.Kind) ([][20]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.implementationsLocked(kind)
}

func (m *Manager) implementationsLocked(kind invoice.Kind) ([][20]byte, error) {
	var impls [][20]byte
	if _, err := m.getJSON(implKey(kind), &impls); err != nil {
		return nil, err
	}
	return impls, nil
}

// ImplementationAppend appends a version for the kind and returns its index.
func (m *Manager) ImplementationAppend(kind invoice.Kind, impl [20]byte) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	impls, err := m.implementationsLocked(kind)
	if err != nil {
		return 0, err
	}
	impls = append(impls, impl)
	if err := m.putJSON(implKey(kind), impls); err != nil {
		return 0, err
	}
	return uint32(len(impls) - 1), nil
}

// --- Resolution rates ---

// ResolutionRatePut records a resolver's fee rate in basis points.
func (m *Manager) ResolutionRatePut(resolver [20]byte, bps uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putJSON(rateKey(resolver), bps)
}

// ResolutionRate reads a resolver's registered fee rate.
func (m *Manager) ResolutionRate(resolver [20]byte) (uint32, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var bps uint32
	ok, err := m.getJSON(rateKey(resolver), &bps)
	if err != nil {
		return 0, false, err
	}
	return bps, ok, nil
}

// --- Counters and indexes ---

func (m *Manager) counterLocked(key string) (uint64, error) {
	var value uint64
	if _, err := m.getJSON([]byte(key), &value); err != nil {
		return 0, err
	}
	return value, nil
}

// InvoiceCounter returns the next sequential invoice id.
func (m *Manager) InvoiceCounter() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counterLocked(keyInvoiceCounter)
}

// SetInvoiceCounter stores the next sequential invoice id.
func (m *Manager) SetInvoiceCounter(value uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putJSON([]byte(keyInvoiceCounter), value)
}

// InvoiceIndexPut records the id → instance address mapping.
func (m *Manager) InvoiceIndexPut(id uint64, addr [20]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putJSON(indexKey(id), addr)
}

// InvoiceIndexGet resolves an invoice id to its instance address.
func (m *Manager) InvoiceIndexGet(id uint64) ([20]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var addr [20]byte
	ok, err := m.getJSON(indexKey(id), &addr)
	if err != nil {
		return [20]byte{}, false, err
	}
	return addr, ok, nil
}

// GenesisSeeded reports whether genesis balances were already applied to this
// store.
func (m *Manager) GenesisSeeded() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Has([]byte(keyGenesisSeeded))
}

// MarkGenesisSeeded records that genesis balances were applied, making the
// seeding step a one-time operation across restarts.
func (m *Manager) MarkGenesisSeeded() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Put([]byte(keyGenesisSeeded), []byte{1})
}

// OpenDispute allocates the next dispute correlation id. Ids start at 1 so a
// zero DisputeID always means "no arbitrator dispute open".
func (m *Manager) OpenDispute(arbitrator, invoiceAddr [20]byte, details [32]byte) (uint64, error) {
	_ = arbitrator
	_ = invoiceAddr
	_ = details
	m.mu.Lock()
	defer m.mu.Unlock()
	current, err := m.counterLocked(keyDisputeCounter)
	if err != nil {
		return 0, err
	}
	next := current + 1
	if err := m.putJSON([]byte(keyDisputeCounter), next); err != nil {
		return 0, err
	}
	return next, nil
}
