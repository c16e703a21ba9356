package registry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"invoicechain/core/events"
	"invoicechain/core/types"
	"invoicechain/crypto"
	nativecommon "invoicechain/native/common"
	"invoicechain/native/invoice"
)

const moduleName = "factory"

var (
	// ErrNilState marks an engine used before its state backend was wired.
	ErrNilState = errors.New("factory: state not configured")
	// ErrInvalidWrappedNative rejects factory construction without a wrapped
	// native token; every downstream instance needs it to accept native
	// deposits.
	ErrInvalidWrappedNative = errors.New("factory: invalid wrapped native token")
	// ErrUnauthorized rejects registry mutations from non-admin callers.
	ErrUnauthorized = errors.New("factory: unauthorized caller")
	// ErrImplementationNotFound is returned by Create when the template kind
	// has no registered versions.
	ErrImplementationNotFound = errors.New("factory: implementation does not exist")
	// ErrInstanceExists rejects a deterministic deployment onto an address
	// that already hosts an instance.
	ErrInstanceExists = errors.New("factory: instance already deployed at address")
	// ErrInvalidRate rejects a resolution rate above 100%.
	ErrInvalidRate = errors.New("factory: resolution rate bps out of range")
)

type factoryState interface {
	ImplementationsGet(kind invoice.Kind) ([][20]byte, error)
	ImplementationAppend(kind invoice.Kind, impl [20]byte) (uint32, error)
	ResolutionRatePut(resolver [20]byte, bps uint32) error
	ResolutionRate(resolver [20]byte) (uint32, bool, error)
	InvoiceCounter() (uint64, error)
	SetInvoiceCounter(uint64) error
	InvoiceIndexPut(id uint64, addr [20]byte) error
	InvoiceIndexGet(id uint64) ([20]byte, bool, error)
	InvoiceExists(addr [20]byte) (bool, error)
}

type factoryEvent struct {
	evt *types.Event
}

func (e factoryEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e factoryEvent) Event() *types.Event { return e.evt }

// Engine owns the versioned implementation registry and deploys invoice
// instances from it. It is never consulted again after deployment except as
// an address/version registry.
type Engine struct {
	state    factoryState
	invoices *invoice.Engine
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	address  [20]byte
	admin    [20]byte
	wrapped  [20]byte
}

// NewEngine constructs a factory bound to the supplied invoice engine. The
// wrapped-native token address is required; construction fails without it.
func NewEngine(address, admin, wrappedNative [20]byte, invoices *invoice.Engine) (*Engine, error) {
	if wrappedNative == ([20]byte{}) {
		return nil, ErrInvalidWrappedNative
	}
	if invoices == nil {
		return nil, errors.New("factory: invoice engine required")
	}
	return &Engine{
		invoices: invoices,
		emitter:  events.NoopEmitter{},
		address:  address,
		admin:    admin,
		wrapped:  wrappedNative,
	}, nil
}

// SetState configures the state backend used by the registry.
func (e *Engine) SetState(state factoryState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses configures the module pause view.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(factoryEvent{evt: evt})
}

// Address returns the factory's own registry address, part of every derived
// instance address.
func (e *Engine) Address() [20]byte { return e.address }

// WrappedNative returns the wrapped-native token configured at construction.
func (e *Engine) WrappedNative() [20]byte { return e.wrapped }

// AddImplementation appends a template version for the kind. The registry is
// append-only: a mis-added implementation is superseded by adding a corrected
// one, never removed. The new entry becomes the kind's current version.
func (e *Engine) AddImplementation(caller [20]byte, kind invoice.Kind, impl [20]byte) (uint32, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	if caller != e.admin {
		return 0, ErrUnauthorized
	}
	normalized, err := invoice.NormalizeKind(string(kind))
	if err != nil {
		return 0, err
	}
	if !normalized.Known() {
		return 0, fmt.Errorf("factory: unknown template kind %q", kind)
	}
	if impl == ([20]byte{}) {
		return 0, fmt.Errorf("factory: implementation address required")
	}
	version, err := e.state.ImplementationAppend(normalized, impl)
	if err != nil {
		return 0, err
	}
	e.emit(NewImplementationAddedEvent(normalized, version, impl))
	return version, nil
}

// CurrentVersion returns the default version index used by Create for the
// kind.
func (e *Engine) CurrentVersion(kind invoice.Kind) (uint32, [20]byte, error) {
	if e == nil || e.state == nil {
		return 0, [20]byte{}, ErrNilState
	}
	impls, err := e.state.ImplementationsGet(kind)
	if err != nil {
		return 0, [20]byte{}, err
	}
	if len(impls) == 0 {
		return 0, [20]byte{}, ErrImplementationNotFound
	}
	version := uint32(len(impls) - 1)
	return version, impls[version], nil
}

func kindWord(kind invoice.Kind) [32]byte {
	var word [32]byte
	copy(word[:], kind)
	return word
}

func addressFromHash(hash [32]byte) [20]byte {
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

func (e *Engine) sequentialAddress(kind invoice.Kind, id uint64) [20]byte {
	word := kindWord(kind)
	var idBytes [8]byte
	binary.BigEndian.PutUint64(idBytes[:], id)
	return addressFromHash(crypto.Keccak256(e.address[:], word[:], idBytes[:]))
}

func (e *Engine) deterministicAddress(kind invoice.Kind, version uint32, salt [32]byte) [20]byte {
	word := kindWord(kind)
	var versionBytes [4]byte
	binary.BigEndian.PutUint32(versionBytes[:], version)
	inner := crypto.Keccak256(word[:], versionBytes[:])
	return addressFromHash(crypto.Keccak256([]byte{0xff}, e.address[:], salt[:], inner[:]))
}

// PredictDeterministicAddress computes the address a CreateDeterministic call
// with the same salt will deploy to. Prediction and deployment are exactly
// equal for a fixed (kind, current version, salt).
func (e *Engine) PredictDeterministicAddress(kind invoice.Kind, salt [32]byte) ([20]byte, error) {
	version, _, err := e.CurrentVersion(kind)
	if err != nil {
		return [20]byte{}, err
	}
	return e.deterministicAddress(kind, version, salt), nil
}

func (e *Engine) deploy(addr [20]byte, kind invoice.Kind, version uint32, provider [20]byte, amounts []*big.Int, initData []byte) (*invoice.Invoice, error) {
	id, err := e.state.InvoiceCounter()
	if err != nil {
		return nil, err
	}
	inv, err := e.invoices.Init(addr, id, kind, version, provider, amounts, initData)
	if err != nil {
		return nil, err
	}
	if err := e.state.InvoiceIndexPut(id, addr); err != nil {
		return nil, err
	}
	if err := e.state.SetInvoiceCounter(id + 1); err != nil {
		return nil, err
	}
	e.emit(NewInvoiceCreatedEvent(inv))
	return inv, nil
}

// Create deploys a new instance of the kind's current version and runs its
// one-time init. The provider and milestone schedule are forwarded into init
// alongside the ABI payload.
func (e *Engine) Create(caller [20]byte, kind invoice.Kind, provider [20]byte, amounts []*big.Int, initData []byte) (*invoice.Invoice, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	_ = caller // any address may deploy; authority lives inside the instance
	version, _, err := e.CurrentVersion(kind)
	if err != nil {
		return nil, err
	}
	id, err := e.state.InvoiceCounter()
	if err != nil {
		return nil, err
	}
	addr := e.sequentialAddress(kind, id)
	return e.deploy(addr, kind, version, provider, amounts, initData)
}

// CreateDeterministic deploys at the salt-derived address computed by
// PredictDeterministicAddress. Deploying twice with the same salt fails; the
// factory never silently redeploys over an existing instance.
func (e *Engine) CreateDeterministic(caller [20]byte, kind invoice.Kind, provider [20]byte, amounts []*big.Int, initData []byte, salt [32]byte) (*invoice.Invoice, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	_ = caller
	version, _, err := e.CurrentVersion(kind)
	if err != nil {
		return nil, err
	}
	addr := e.deterministicAddress(kind, version, salt)
	exists, err := e.state.InvoiceExists(addr)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrInstanceExists
	}
	return e.deploy(addr, kind, version, provider, amounts, initData)
}

// UpdateResolutionRate records the caller's own resolution fee rate. Existing
// instances keep the rate copied at their creation.
func (e *Engine) UpdateResolutionRate(caller [20]byte, rateBps uint32, details [32]byte) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if rateBps > 10_000 {
		return ErrInvalidRate
	}
	if err := e.state.ResolutionRatePut(caller, rateBps); err != nil {
		return err
	}
	e.emit(NewResolutionRateUpdatedEvent(caller, rateBps, details))
	return nil
}

// ResolutionRate reads a resolver's registered rate.
func (e *Engine) ResolutionRate(resolver [20]byte) (uint32, bool, error) {
	if e == nil || e.state == nil {
		return 0, false, ErrNilState
	}
	return e.state.ResolutionRate(resolver)
}

// InvoiceAddress resolves a sequential invoice id to its instance address.
func (e *Engine) InvoiceAddress(id uint64) ([20]byte, bool, error) {
	if e == nil || e.state == nil {
		return [20]byte{}, false, ErrNilState
	}
	return e.state.InvoiceIndexGet(id)
}

// InvoiceCount returns the number of instances deployed so far.
func (e *Engine) InvoiceCount() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	return e.state.InvoiceCounter()
}
