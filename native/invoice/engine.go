package invoice

import (
	"fmt"
	"math/big"
	"time"

	"invoicechain/core/events"
	"invoicechain/core/types"
	nativecommon "invoicechain/native/common"
)

const moduleName = "invoice"

// bpsDenominator is the basis-point scale shared by the DAO fee split and the
// resolver's resolution fee.
const bpsDenominator = 10_000

// rulingClientShare maps an arbitrator verdict to the client's percentage of
// the held balance. Ruling 0 (arbitrator refused to rule) settles as an even
// split; the provider always receives the remainder, so the table fully
// determines both awards.
var rulingClientShare = map[uint8]uint8{
	0: 50,
	1: 100,
	2: 75,
	3: 50,
	4: 25,
	5: 0,
}

type engineState interface {
	InvoicePut(*Invoice) error
	InvoiceGet(addr [20]byte) (*Invoice, bool)
	TokenBalance(token, holder [20]byte) (*big.Int, error)
	TokenTransfer(token, from, to [20]byte, amount *big.Int) error
	WrapNative(from [20]byte, token [20]byte, to [20]byte, amount *big.Int) error
}

// RateSource exposes the factory's per-resolver resolution-rate registry. The
// rate is read once at Init time and copied into the instance.
type RateSource interface {
	ResolutionRate(resolver [20]byte) (uint32, bool, error)
}

// DisputeAllocator assigns dispute correlation ids when an arbitrator-variant
// invoice is locked.
type DisputeAllocator interface {
	OpenDispute(arbitrator, invoiceAddr [20]byte, details [32]byte) (uint64, error)
}

type invoiceEvent struct {
	evt *types.Event
}

func (e invoiceEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e invoiceEvent) Event() *types.Event { return e.evt }

// Engine wires the invoice state machine with external state and event
// emitters. All operations are synchronous and atomic: a returned error means
// no state was committed.
type Engine struct {
	state    engineState
	rates    RateSource
	disputes DisputeAllocator
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	nowFn    func() int64
}

// NewEngine creates an invoice engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRateSource configures the resolution-rate registry consulted at Init.
func (e *Engine) SetRateSource(rates RateSource) { e.rates = rates }

// SetDisputeAllocator configures the arbitrator dispute-id source.
func (e *Engine) SetDisputeAllocator(allocator DisputeAllocator) { e.disputes = allocator }

// SetPauses configures the module pause view.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(invoiceEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (e *Engine) loadInvoice(addr [20]byte) (*Invoice, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	inv, ok := e.state.InvoiceGet(addr)
	if !ok {
		return nil, ErrNotFound
	}
	return inv, nil
}

func (e *Engine) storeInvoice(inv *Invoice) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	return e.state.InvoicePut(inv)
}

func (e *Engine) held(inv *Invoice) (*big.Int, error) {
	return e.state.TokenBalance(inv.Token, inv.Address)
}

// Get returns the invoice stored at the address.
func (e *Engine) Get(addr [20]byte) (*Invoice, error) {
	return e.loadInvoice(addr)
}

// Held returns the invoice's current held balance in its settlement token.
func (e *Engine) Held(addr [20]byte) (*big.Int, error) {
	inv, err := e.loadInvoice(addr)
	if err != nil {
		return nil, err
	}
	return e.held(inv)
}

// Init performs the one-time initialisation of a freshly deployed instance.
// The factory calls it immediately after allocating the instance address; the
// payload is the ABI tuple for the instance's template kind. A second call at
// the same address fails.
func (e *Engine) Init(addr [20]byte, id uint64, kind Kind, version uint32, provider [20]byte, amounts []*big.Int, data []byte) (*Invoice, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if _, ok := e.state.InvoiceGet(addr); ok {
		return nil, ErrAlreadyInitialized
	}
	if !kind.Known() {
		return nil, fmt.Errorf("invoice: unknown template kind %q", kind)
	}
	if provider == ([20]byte{}) {
		return nil, fmt.Errorf("invoice: provider required")
	}
	inv := &Invoice{
		Address:  addr,
		ID:       id,
		Kind:     kind,
		Version:  version,
		Provider: provider,
	}
	var base BaseInit
	switch kind {
	case KindEscrow:
		decoded, err := DecodeBaseInit(data)
		if err != nil {
			return nil, err
		}
		base = decoded
	case KindSplitEscrow:
		decoded, err := DecodeSplitInit(data)
		if err != nil {
			return nil, err
		}
		base = decoded.BaseInit
		if decoded.DAOFee > 0 && decoded.DAO == ([20]byte{}) {
			return nil, ErrInvalidDAO
		}
		inv.ClientReceiver = decoded.ClientReceiver
		inv.ProviderReceiver = decoded.ProviderReceiver
		inv.DAO = decoded.DAO
		inv.DAOFee = decoded.DAOFee
	case KindUpdatable:
		decoded, err := DecodeUpdatableInit(data)
		if err != nil {
			return nil, err
		}
		base = decoded.BaseInit
		inv.ProviderReceiver = decoded.ProviderReceiver
	}
	if base.Client == ([20]byte{}) {
		return nil, fmt.Errorf("invoice: client required")
	}
	if base.Resolver == ([20]byte{}) {
		return nil, fmt.Errorf("invoice: resolver required")
	}
	if !base.ResolverType.Valid() {
		return nil, ErrInvalidResolverType
	}
	if base.WrappedNative == ([20]byte{}) {
		return nil, ErrInvalidWrappedNative
	}
	if base.Token == ([20]byte{}) {
		return nil, fmt.Errorf("invoice: token required")
	}
	now := e.now()
	if base.TerminationTime <= now {
		return nil, fmt.Errorf("invoice: termination time must be in the future")
	}
	for i, amt := range amounts {
		if amt == nil || amt.Sign() <= 0 {
			return nil, fmt.Errorf("invoice: milestone %d amount must be positive", i)
		}
	}
	inv.Client = base.Client
	inv.ResolverType = base.ResolverType
	inv.Resolver = base.Resolver
	inv.Token = base.Token
	inv.WrappedNative = base.WrappedNative
	inv.TerminationTime = base.TerminationTime
	inv.DetailsHash = base.DetailsHash
	inv.Verified = !base.RequireVerification
	inv.CreatedAt = now
	inv.Amounts = make([]*big.Int, len(amounts))
	for i, amt := range amounts {
		inv.Amounts[i] = new(big.Int).Set(amt)
	}
	inv.Total = MilestoneTotal(inv.Amounts)
	inv.Released = big.NewInt(0)
	inv.Settled = big.NewInt(0)
	if base.ResolverType == ResolverIndividual && e.rates != nil {
		rate, ok, err := e.rates.ResolutionRate(base.Resolver)
		if err != nil {
			return nil, err
		}
		if ok {
			inv.ResolutionRate = rate
		}
	}
	sanitized, err := SanitizeInvoice(inv)
	if err != nil {
		return nil, err
	}
	if err := e.storeInvoice(sanitized); err != nil {
		return nil, err
	}
	if sanitized.Verified {
		e.emit(NewVerifiedEvent(sanitized))
	}
	return sanitized.Clone(), nil
}

func (e *Engine) depositGate(inv *Invoice, sender [20]byte) error {
	if inv.Verified {
		return nil
	}
	if sender != inv.Client {
		return ErrDepositNotAllowed
	}
	return nil
}

// Deposit accepts a settlement-token transfer into the invoice's held
// balance. Any sender is accepted once the client has verified the invoice,
// otherwise only the client may fund it.
func (e *Engine) Deposit(addr, sender [20]byte, amount *big.Int) error {
	inv, err := e.loadInvoice(addr)
	if err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return fmt.Errorf("invoice: deposit amount must be positive")
	}
	if err := e.depositGate(inv, sender); err != nil {
		return err
	}
	if err := e.state.TokenTransfer(inv.Token, sender, inv.Address, amt); err != nil {
		return err
	}
	held, err := e.held(inv)
	if err != nil {
		return err
	}
	e.emit(NewDepositedEvent(inv, sender, amt, held, false))
	return nil
}

// DepositNative accepts a native-currency deposit, auto-wrapping it into the
// invoice's wrapped token. The invoice must be denominated in the wrapped
// native token.
func (e *Engine) DepositNative(addr, sender [20]byte, amount *big.Int) error {
	inv, err := e.loadInvoice(addr)
	if err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return fmt.Errorf("invoice: deposit amount must be positive")
	}
	if inv.Token != inv.WrappedNative {
		return ErrTokenMismatch
	}
	if err := e.depositGate(inv, sender); err != nil {
		return err
	}
	if err := e.state.WrapNative(sender, inv.WrappedNative, inv.Address, amt); err != nil {
		return err
	}
	held, err := e.held(inv)
	if err != nil {
		return err
	}
	e.emit(NewDepositedEvent(inv, sender, amt, held, true))
	return nil
}

// daoCut computes the floor basis-point share of a provider-bound payout that
// is diverted to the fee recipient. Client-bound amounts are never cut.
func daoCut(inv *Invoice, providerPortion *big.Int) *big.Int {
	if inv.Kind != KindSplitEscrow || inv.DAOFee == 0 || inv.DAO == ([20]byte{}) {
		return big.NewInt(0)
	}
	cut := new(big.Int).Mul(providerPortion, new(big.Int).SetUint64(uint64(inv.DAOFee)))
	return cut.Div(cut, big.NewInt(bpsDenominator))
}

func (e *Engine) providerRecipient(inv *Invoice) [20]byte {
	if inv.ProviderReceiver != ([20]byte{}) {
		return inv.ProviderReceiver
	}
	return inv.Provider
}

func (e *Engine) clientRecipient(inv *Invoice) [20]byte {
	if inv.ClientReceiver != ([20]byte{}) {
		return inv.ClientReceiver
	}
	return inv.Client
}

// payProvider settles a provider-bound amount through the fee-splitting
// extension, returning the DAO cut that was diverted.
func (e *Engine) payProvider(inv *Invoice, amount *big.Int) (*big.Int, error) {
	cut := daoCut(inv, amount)
	remainder := new(big.Int).Sub(amount, cut)
	if cut.Sign() > 0 {
		if err := e.state.TokenTransfer(inv.Token, inv.Address, inv.DAO, cut); err != nil {
			return nil, err
		}
	}
	if remainder.Sign() > 0 {
		if err := e.state.TokenTransfer(inv.Token, inv.Address, e.providerRecipient(inv), remainder); err != nil {
			return nil, err
		}
	}
	return cut, nil
}

func (e *Engine) payClient(inv *Invoice, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return nil
	}
	return e.state.TokenTransfer(inv.Token, inv.Address, e.clientRecipient(inv), amount)
}

// Release pays out the current milestone to the provider and advances the
// cursor by exactly one. The invoice record is committed before the outbound
// transfers are issued.
func (e *Engine) Release(addr, caller [20]byte) error {
	inv, err := e.loadInvoice(addr)
	if err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if caller != inv.Client {
		return ErrUnauthorized
	}
	if inv.Locked {
		return ErrLocked
	}
	if inv.Milestone >= uint64(len(inv.Amounts)) {
		return ErrMilestonesExhausted
	}
	due := cloneBigInt(inv.Amounts[inv.Milestone])
	held, err := e.held(inv)
	if err != nil {
		return err
	}
	if held.Cmp(due) < 0 {
		return ErrInsufficientBalance
	}
	completed := inv.Milestone
	inv.Milestone++
	inv.Released = new(big.Int).Add(inv.Released, due)
	if err := e.storeInvoice(inv); err != nil {
		return err
	}
	if _, err := e.payProvider(inv, due); err != nil {
		return err
	}
	e.emit(NewReleasedEvent(inv, completed, due))
	return nil
}

// AddMilestones appends to the milestone schedule and recomputes the total.
// Completed milestones and the release cursor are unaffected.
func (e *Engine) AddMilestones(addr, caller [20]byte, newAmounts []*big.Int) error {
	inv, err := e.loadInvoice(addr)
	if err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if caller != inv.Client {
		return ErrUnauthorized
	}
	if inv.Locked {
		return ErrLocked
	}
	if len(newAmounts) == 0 {
		return fmt.Errorf("invoice: no milestones supplied")
	}
	for i, amt := range newAmounts {
		if amt == nil || amt.Sign() <= 0 {
			return fmt.Errorf("invoice: milestone %d amount must be positive", i)
		}
	}
	for _, amt := range newAmounts {
		inv.Amounts = append(inv.Amounts, new(big.Int).Set(amt))
		inv.Total = new(big.Int).Add(inv.Total, amt)
	}
	if err := e.storeInvoice(inv); err != nil {
		return err
	}
	e.emit(NewMilestonesAddedEvent(inv, len(newAmounts)))
	return nil
}

// Verify permanently widens deposit authority to any sender. Only the client
// may call it; repeat calls are no-ops.
func (e *Engine) Verify(addr, caller [20]byte) error {
	inv, err := e.loadInvoice(addr)
	if err != nil {
		return err
	}
	if caller != inv.Client {
		return ErrUnauthorized
	}
	if inv.Verified {
		return nil
	}
	inv.Verified = true
	if err := e.storeInvoice(inv); err != nil {
		return err
	}
	e.emit(NewVerifiedEvent(inv))
	return nil
}

// Lock opens a dispute, suspending release, withdraw and schedule changes.
// For the arbitrator variant a dispute id is allocated through the configured
// allocator; the individual variant simply authorizes the resolver.
func (e *Engine) Lock(addr, caller [20]byte, details [32]byte) error {
	inv, err := e.loadInvoice(addr)
	if err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if caller != inv.Client && caller != inv.Provider {
		return ErrUnauthorized
	}
	if inv.Locked {
		return ErrLocked
	}
	held, err := e.held(inv)
	if err != nil {
		return err
	}
	if held.Sign() <= 0 {
		return ErrNothingToDispute
	}
	inv.Locked = true
	if inv.ResolverType == ResolverArbitrator {
		if e.disputes == nil {
			return fmt.Errorf("invoice: dispute allocator not configured")
		}
		disputeID, err := e.disputes.OpenDispute(inv.Resolver, inv.Address, details)
		if err != nil {
			return err
		}
		inv.DisputeID = disputeID
	}
	if err := e.storeInvoice(inv); err != nil {
		return err
	}
	e.emit(NewLockedEvent(inv, caller, details))
	return nil
}

// Resolve settles an open dispute on an individual-resolver invoice. The
// resolver's fee is computed on the disputed balance at the instance's
// resolution rate; the proposed split must exhaust the held balance exactly.
// The disputed balance accrues in Settled; the milestone release ledger is
// untouched.
func (e *Engine) Resolve(addr, caller [20]byte, clientAward, providerAward *big.Int, details [32]byte) error {
	inv, err := e.loadInvoice(addr)
	if err != nil {
		return err
	}
	if inv.ResolverType != ResolverIndividual {
		return ErrInvalidResolverType
	}
	if !inv.Locked {
		return ErrNotLocked
	}
	if caller != inv.Resolver {
		return ErrUnauthorized
	}
	clientAmt := cloneBigInt(clientAward)
	providerAmt := cloneBigInt(providerAward)
	if clientAmt.Sign() < 0 || providerAmt.Sign() < 0 {
		return fmt.Errorf("invoice: awards must be non-negative")
	}
	held, err := e.held(inv)
	if err != nil {
		return err
	}
	if held.Sign() <= 0 {
		return ErrNothingToDispute
	}
	fee := new(big.Int).Mul(held, new(big.Int).SetUint64(uint64(inv.ResolutionRate)))
	fee.Div(fee, big.NewInt(bpsDenominator))
	sum := new(big.Int).Add(clientAmt, providerAmt)
	sum.Add(sum, fee)
	if sum.Cmp(held) != 0 {
		return ErrAwardMismatch
	}
	inv.Locked = false
	inv.Settled = new(big.Int).Add(inv.Settled, held)
	if err := e.storeInvoice(inv); err != nil {
		return err
	}
	if err := e.payClient(inv, clientAmt); err != nil {
		return err
	}
	if providerAmt.Sign() > 0 {
		if _, err := e.payProvider(inv, providerAmt); err != nil {
			return err
		}
	}
	if fee.Sign() > 0 {
		if err := e.state.TokenTransfer(inv.Token, inv.Address, inv.Resolver, fee); err != nil {
			return err
		}
	}
	e.emit(NewResolvedEvent(inv, clientAmt, providerAmt, fee, details))
	return nil
}

// Rule settles an open dispute on an arbitrator invoice according to the
// fixed ruling table. No resolution fee is withheld on this path; the
// arbitrator collects its own fee off-ledger. The disputed balance accrues in
// Settled, as in Resolve.
func (e *Engine) Rule(addr, caller [20]byte, disputeID uint64, ruling uint8) error {
	inv, err := e.loadInvoice(addr)
	if err != nil {
		return err
	}
	if inv.ResolverType != ResolverArbitrator {
		return ErrInvalidResolverType
	}
	if !inv.Locked {
		return ErrNotLocked
	}
	if caller != inv.Resolver {
		return ErrUnauthorized
	}
	if disputeID == 0 || disputeID != inv.DisputeID {
		return ErrDisputeMismatch
	}
	share, ok := rulingClientShare[ruling]
	if !ok {
		return ErrInvalidRuling
	}
	held, err := e.held(inv)
	if err != nil {
		return err
	}
	clientAward := new(big.Int).Mul(held, new(big.Int).SetUint64(uint64(share)))
	clientAward.Div(clientAward, big.NewInt(100))
	providerAward := new(big.Int).Sub(held, clientAward)
	inv.Locked = false
	inv.DisputeID = 0
	inv.Settled = new(big.Int).Add(inv.Settled, held)
	if err := e.storeInvoice(inv); err != nil {
		return err
	}
	if err := e.payClient(inv, clientAward); err != nil {
		return err
	}
	if providerAward.Sign() > 0 {
		if _, err := e.payProvider(inv, providerAward); err != nil {
			return err
		}
	}
	e.emit(NewRuledEvent(inv, clientAward, providerAward, ruling))
	return nil
}

// Withdraw is the client's safety valve: after the termination deadline, with
// no dispute open, the entire held balance returns to the client and the
// invoice becomes terminal.
func (e *Engine) Withdraw(addr, caller [20]byte) error {
	inv, err := e.loadInvoice(addr)
	if err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if caller != inv.Client {
		return ErrUnauthorized
	}
	if inv.Locked {
		return ErrLocked
	}
	if e.now() < inv.TerminationTime {
		return ErrTerminationNotReached
	}
	held, err := e.held(inv)
	if err != nil {
		return err
	}
	if held.Sign() <= 0 {
		return ErrInsufficientBalance
	}
	inv.Milestone = uint64(len(inv.Amounts))
	inv.Settled = new(big.Int).Add(inv.Settled, held)
	if err := e.storeInvoice(inv); err != nil {
		return err
	}
	if err := e.payClient(inv, held); err != nil {
		return err
	}
	e.emit(NewWithdrawnEvent(inv, held))
	return nil
}

func (e *Engine) requireUpdatable(inv *Invoice) error {
	if inv.Kind != KindUpdatable {
		return ErrRedirectUnsupported
	}
	return nil
}

// UpdateClient transfers client authority to a new address.
func (e *Engine) UpdateClient(addr, caller, next [20]byte) error {
	inv, err := e.loadInvoice(addr)
	if err != nil {
		return err
	}
	if err := e.requireUpdatable(inv); err != nil {
		return err
	}
	if caller != inv.Client {
		return ErrUnauthorized
	}
	if next == ([20]byte{}) {
		return fmt.Errorf("invoice: client required")
	}
	previous := inv.Client
	inv.Client = next
	if err := e.storeInvoice(inv); err != nil {
		return err
	}
	e.emit(NewClientUpdatedEvent(inv, previous))
	return nil
}

// UpdateProvider transfers provider authority to a new address.
func (e *Engine) UpdateProvider(addr, caller, next [20]byte) error {
	inv, err := e.loadInvoice(addr)
	if err != nil {
		return err
	}
	if err := e.requireUpdatable(inv); err != nil {
		return err
	}
	if caller != inv.Provider {
		return ErrUnauthorized
	}
	if next == ([20]byte{}) {
		return fmt.Errorf("invoice: provider required")
	}
	previous := inv.Provider
	inv.Provider = next
	if err := e.storeInvoice(inv); err != nil {
		return err
	}
	e.emit(NewProviderUpdatedEvent(inv, previous))
	return nil
}

// UpdateClientReceiver redirects client-bound payouts without moving
// authority.
func (e *Engine) UpdateClientReceiver(addr, caller, receiver [20]byte) error {
	inv, err := e.loadInvoice(addr)
	if err != nil {
		return err
	}
	if err := e.requireUpdatable(inv); err != nil {
		return err
	}
	if caller != inv.Client {
		return ErrUnauthorized
	}
	inv.ClientReceiver = receiver
	if err := e.storeInvoice(inv); err != nil {
		return err
	}
	e.emit(NewClientReceiverUpdatedEvent(inv))
	return nil
}

// UpdateProviderReceiver redirects provider-bound payouts without moving
// authority.
func (e *Engine) UpdateProviderReceiver(addr, caller, receiver [20]byte) error {
	inv, err := e.loadInvoice(addr)
	if err != nil {
		return err
	}
	if err := e.requireUpdatable(inv); err != nil {
		return err
	}
	if caller != inv.Provider {
		return ErrUnauthorized
	}
	inv.ProviderReceiver = receiver
	if err := e.storeInvoice(inv); err != nil {
		return err
	}
	e.emit(NewProviderReceiverUpdatedEvent(inv))
	return nil
}
