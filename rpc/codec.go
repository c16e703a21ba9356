package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"invoicechain/crypto"
	"invoicechain/native/invoice"
)

func parseAddr(field, value string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return out, fmt.Errorf("%s is required", field)
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return out, fmt.Errorf("%s: %v", field, err)
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

// parseOptionalAddr treats an empty string as the zero address, used for
// clearing receivers and for optional tuple fields.
func parseOptionalAddr(field, value string) ([20]byte, error) {
	if strings.TrimSpace(value) == "" {
		return [20]byte{}, nil
	}
	return parseAddr(field, value)
}

func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%s: not a decimal amount: %q", field, value)
	}
	return amount, nil
}

func parseAmounts(field string, values []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(values))
	for i, value := range values {
		amount, err := parseAmount(fmt.Sprintf("%s[%d]", field, i), value)
		if err != nil {
			return nil, err
		}
		out[i] = amount
	}
	return out, nil
}

func parseHash(field, value string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if trimmed == "" {
		return out, nil
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("%s: %v", field, err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("%s: expected 32 bytes, got %d", field, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func parseHexData(field, value string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if trimmed == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", field, err)
	}
	return raw, nil
}

func formatAddr(addr [20]byte) string {
	return crypto.NewAddress(crypto.InvoicePrefix, addr[:]).String()
}

func formatOptionalAddr(addr [20]byte) string {
	if addr == ([20]byte{}) {
		return ""
	}
	return formatAddr(addr)
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// invoiceView is the read-model rendering of an instance, with bech32
// addresses and decimal amounts.
type invoiceView struct {
	Address          string   `json:"address"`
	ID               uint64   `json:"id"`
	Kind             string   `json:"kind"`
	Version          uint32   `json:"version"`
	Client           string   `json:"client"`
	Provider         string   `json:"provider"`
	ClientReceiver   string   `json:"clientReceiver,omitempty"`
	ProviderReceiver string   `json:"providerReceiver,omitempty"`
	ResolverType     uint8    `json:"resolverType"`
	Resolver         string   `json:"resolver"`
	ResolutionRate   uint32   `json:"resolutionRateBps"`
	Token            string   `json:"token"`
	WrappedNative    string   `json:"wrappedNative"`
	Amounts          []string `json:"amounts"`
	Milestone        uint64   `json:"milestone"`
	Total            string   `json:"total"`
	Released         string   `json:"released"`
	Settled          string   `json:"settled"`
	Locked           bool     `json:"locked"`
	DisputeID        uint64   `json:"disputeId,omitempty"`
	TerminationTime  int64    `json:"terminationTime"`
	DetailsHash      string   `json:"detailsHash"`
	Verified         bool     `json:"verified"`
	DAO              string   `json:"dao,omitempty"`
	DAOFee           uint32   `json:"daoFeeBps,omitempty"`
	CreatedAt        int64    `json:"createdAt"`
}

func renderInvoice(inv *invoice.Invoice) invoiceView {
	amounts := make([]string, len(inv.Amounts))
	for i, amt := range inv.Amounts {
		amounts[i] = formatAmount(amt)
	}
	return invoiceView{
		Address:          formatAddr(inv.Address),
		ID:               inv.ID,
		Kind:             string(inv.Kind),
		Version:          inv.Version,
		Client:           formatAddr(inv.Client),
		Provider:         formatAddr(inv.Provider),
		ClientReceiver:   formatOptionalAddr(inv.ClientReceiver),
		ProviderReceiver: formatOptionalAddr(inv.ProviderReceiver),
		ResolverType:     uint8(inv.ResolverType),
		Resolver:         formatAddr(inv.Resolver),
		ResolutionRate:   inv.ResolutionRate,
		Token:            formatAddr(inv.Token),
		WrappedNative:    formatAddr(inv.WrappedNative),
		Amounts:          amounts,
		Milestone:        inv.Milestone,
		Total:            formatAmount(inv.Total),
		Released:         formatAmount(inv.Released),
		Settled:          formatAmount(inv.Settled),
		Locked:           inv.Locked,
		DisputeID:        inv.DisputeID,
		TerminationTime:  inv.TerminationTime,
		DetailsHash:      "0x" + hex.EncodeToString(inv.DetailsHash[:]),
		Verified:         inv.Verified,
		DAO:              formatOptionalAddr(inv.DAO),
		DAOFee:           inv.DAOFee,
		CreatedAt:        inv.CreatedAt,
	}
}
