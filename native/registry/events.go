package registry

import (
	"encoding/hex"
	"strconv"
	"strings"

	"invoicechain/core/types"
	"invoicechain/crypto"
	"invoicechain/native/invoice"
)

const (
	EventTypeInvoiceCreated        = "factory.invoice_created"
	EventTypeImplementationAdded   = "factory.implementation_added"
	EventTypeResolutionRateUpdated = "factory.resolution_rate_updated"
)

func formatAddr(addr [20]byte) string {
	return crypto.NewAddress(crypto.InvoicePrefix, addr[:]).String()
}

// NewInvoiceCreatedEvent reports a deployed and initialised instance.
func NewInvoiceCreatedEvent(inv *invoice.Invoice) *types.Event {
	attrs := make(map[string]string)
	if inv == nil {
		return &types.Event{Type: EventTypeInvoiceCreated, Attributes: attrs}
	}
	attrs["id"] = strconv.FormatUint(inv.ID, 10)
	attrs["invoice"] = formatAddr(inv.Address)
	attrs["kind"] = string(inv.Kind)
	attrs["version"] = strconv.FormatUint(uint64(inv.Version), 10)
	amounts := make([]string, 0, len(inv.Amounts))
	for _, amt := range inv.Amounts {
		if amt != nil {
			amounts = append(amounts, amt.String())
		}
	}
	attrs["amounts"] = strings.Join(amounts, ",")
	return &types.Event{Type: EventTypeInvoiceCreated, Attributes: attrs}
}

// NewImplementationAddedEvent reports a registry append and the new current
// version index.
func NewImplementationAddedEvent(kind invoice.Kind, version uint32, impl [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeImplementationAdded,
		Attributes: map[string]string{
			"kind":           string(kind),
			"version":        strconv.FormatUint(uint64(version), 10),
			"implementation": formatAddr(impl),
		},
	}
}

// NewResolutionRateUpdatedEvent reports a resolver updating its own fee rate.
func NewResolutionRateUpdatedEvent(resolver [20]byte, rateBps uint32, details [32]byte) *types.Event {
	return &types.Event{
		Type: EventTypeResolutionRateUpdated,
		Attributes: map[string]string{
			"resolver": formatAddr(resolver),
			"rateBps":  strconv.FormatUint(uint64(rateBps), 10),
			"details":  "0x" + hex.EncodeToString(details[:]),
		},
	}
}
