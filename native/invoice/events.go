package invoice

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"invoicechain/core/types"
	"invoicechain/crypto"
)

const (
	EventTypeInvoiceDeposited               = "invoice.deposited"
	EventTypeInvoiceReleased                = "invoice.released"
	EventTypeInvoiceMilestonesAdded         = "invoice.milestones_added"
	EventTypeInvoiceVerified                = "invoice.verified"
	EventTypeInvoiceLocked                  = "invoice.locked"
	EventTypeInvoiceResolved                = "invoice.resolved"
	EventTypeInvoiceRuled                   = "invoice.ruled"
	EventTypeInvoiceWithdrawn               = "invoice.withdrawn"
	EventTypeInvoiceClientUpdated           = "invoice.client_updated"
	EventTypeInvoiceProviderUpdated         = "invoice.provider_updated"
	EventTypeInvoiceClientReceiverUpdated   = "invoice.client_receiver_updated"
	EventTypeInvoiceProviderReceiverUpdated = "invoice.provider_receiver_updated"
)

func formatAddr(addr [20]byte) string {
	return crypto.NewAddress(crypto.InvoicePrefix, addr[:]).String()
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatHash(h [32]byte) string {
	return "0x" + hex.EncodeToString(h[:])
}

func baseAttrs(inv *Invoice) map[string]string {
	attrs := make(map[string]string)
	if inv == nil {
		return attrs
	}
	attrs["invoice"] = formatAddr(inv.Address)
	attrs["id"] = strconv.FormatUint(inv.ID, 10)
	attrs["kind"] = string(inv.Kind)
	return attrs
}

// NewDepositedEvent reports an accepted deposit together with the resulting
// held balance.
func NewDepositedEvent(inv *Invoice, sender [20]byte, amount, held *big.Int, wrapped bool) *types.Event {
	attrs := baseAttrs(inv)
	attrs["sender"] = formatAddr(sender)
	attrs["amount"] = formatAmount(amount)
	attrs["held"] = formatAmount(held)
	attrs["wrapped"] = strconv.FormatBool(wrapped)
	return &types.Event{Type: EventTypeInvoiceDeposited, Attributes: attrs}
}

// NewReleasedEvent reports a milestone payout.
func NewReleasedEvent(inv *Invoice, milestone uint64, amount *big.Int) *types.Event {
	attrs := baseAttrs(inv)
	attrs["milestone"] = strconv.FormatUint(milestone, 10)
	attrs["amount"] = formatAmount(amount)
	attrs["released"] = formatAmount(inv.Released)
	return &types.Event{Type: EventTypeInvoiceReleased, Attributes: attrs}
}

// NewMilestonesAddedEvent reports an extended milestone schedule.
func NewMilestonesAddedEvent(inv *Invoice, added int) *types.Event {
	attrs := baseAttrs(inv)
	attrs["added"] = strconv.Itoa(added)
	attrs["count"] = strconv.Itoa(len(inv.Amounts))
	attrs["total"] = formatAmount(inv.Total)
	return &types.Event{Type: EventTypeInvoiceMilestonesAdded, Attributes: attrs}
}

// NewVerifiedEvent reports the client widening deposit authority.
func NewVerifiedEvent(inv *Invoice) *types.Event {
	attrs := baseAttrs(inv)
	attrs["client"] = formatAddr(inv.Client)
	return &types.Event{Type: EventTypeInvoiceVerified, Attributes: attrs}
}

// NewLockedEvent reports an opened dispute.
func NewLockedEvent(inv *Invoice, sender [20]byte, details [32]byte) *types.Event {
	attrs := baseAttrs(inv)
	attrs["sender"] = formatAddr(sender)
	attrs["details"] = formatHash(details)
	if inv.DisputeID != 0 {
		attrs["disputeId"] = strconv.FormatUint(inv.DisputeID, 10)
	}
	return &types.Event{Type: EventTypeInvoiceLocked, Attributes: attrs}
}

// NewResolvedEvent reports an individual-resolver dispute outcome.
func NewResolvedEvent(inv *Invoice, clientAward, providerAward, resolutionFee *big.Int, details [32]byte) *types.Event {
	attrs := baseAttrs(inv)
	attrs["clientAward"] = formatAmount(clientAward)
	attrs["providerAward"] = formatAmount(providerAward)
	attrs["resolutionFee"] = formatAmount(resolutionFee)
	attrs["details"] = formatHash(details)
	return &types.Event{Type: EventTypeInvoiceResolved, Attributes: attrs}
}

// NewRuledEvent reports an arbitrator-contract dispute outcome.
func NewRuledEvent(inv *Invoice, clientAward, providerAward *big.Int, ruling uint8) *types.Event {
	attrs := baseAttrs(inv)
	attrs["clientAward"] = formatAmount(clientAward)
	attrs["providerAward"] = formatAmount(providerAward)
	attrs["ruling"] = strconv.FormatUint(uint64(ruling), 10)
	return &types.Event{Type: EventTypeInvoiceRuled, Attributes: attrs}
}

// NewWithdrawnEvent reports the client reclaiming the remaining balance after
// the termination deadline.
func NewWithdrawnEvent(inv *Invoice, balance *big.Int) *types.Event {
	attrs := baseAttrs(inv)
	attrs["balance"] = formatAmount(balance)
	return &types.Event{Type: EventTypeInvoiceWithdrawn, Attributes: attrs}
}

// NewClientUpdatedEvent reports a client authority transfer.
func NewClientUpdatedEvent(inv *Invoice, previous [20]byte) *types.Event {
	attrs := baseAttrs(inv)
	attrs["previous"] = formatAddr(previous)
	attrs["client"] = formatAddr(inv.Client)
	return &types.Event{Type: EventTypeInvoiceClientUpdated, Attributes: attrs}
}

// NewProviderUpdatedEvent reports a provider authority transfer.
func NewProviderUpdatedEvent(inv *Invoice, previous [20]byte) *types.Event {
	attrs := baseAttrs(inv)
	attrs["previous"] = formatAddr(previous)
	attrs["provider"] = formatAddr(inv.Provider)
	return &types.Event{Type: EventTypeInvoiceProviderUpdated, Attributes: attrs}
}

// NewClientReceiverUpdatedEvent reports a client payout redirect.
func NewClientReceiverUpdatedEvent(inv *Invoice) *types.Event {
	attrs := baseAttrs(inv)
	attrs["clientReceiver"] = formatAddr(inv.ClientReceiver)
	return &types.Event{Type: EventTypeInvoiceClientReceiverUpdated, Attributes: attrs}
}

// NewProviderReceiverUpdatedEvent reports a provider payout redirect.
func NewProviderReceiverUpdatedEvent(inv *Invoice) *types.Event {
	attrs := baseAttrs(inv)
	attrs["providerReceiver"] = formatAddr(inv.ProviderReceiver)
	return &types.Event{Type: EventTypeInvoiceProviderReceiverUpdated, Attributes: attrs}
}
