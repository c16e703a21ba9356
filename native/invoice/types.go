package invoice

import (
	"fmt"
	"math/big"
	"strings"
)

// Kind identifies the template family an invoice was cloned from. The tag is
// fixed-width on the wire (at most 32 bytes) and lower-cased canonical.
type Kind string

const (
	// KindEscrow is the base milestone escrow template.
	KindEscrow Kind = "escrow"
	// KindSplitEscrow adds payout receivers and a DAO fee split on every
	// provider-bound payment.
	KindSplitEscrow Kind = "split-escrow"
	// KindUpdatable adds authority and receiver reassignment on top of the
	// base template.
	KindUpdatable Kind = "updatable"
)

// NormalizeKind canonicalises a template tag, enforcing the fixed-width limit.
func NormalizeKind(tag string) (Kind, error) {
	trimmed := strings.ToLower(strings.TrimSpace(tag))
	if trimmed == "" {
		return "", fmt.Errorf("invoice: empty template kind")
	}
	if len(trimmed) > 32 {
		return "", fmt.Errorf("invoice: template kind exceeds 32 bytes: %s", tag)
	}
	return Kind(trimmed), nil
}

// Known reports whether the kind maps to a template family this engine can
// instantiate.
func (k Kind) Known() bool {
	switch k {
	case KindEscrow, KindSplitEscrow, KindUpdatable:
		return true
	default:
		return false
	}
}

// ResolverType selects the arbitration capability wired into an invoice.
type ResolverType uint8

const (
	// ResolverIndividual designates a trusted address that settles disputes
	// by calling Resolve with an explicit award split.
	ResolverIndividual ResolverType = iota
	// ResolverArbitrator designates an external ruling authority that calls
	// back through Rule with a numeric verdict.
	ResolverArbitrator
)

// Valid reports whether the resolver type is a known tag.
func (t ResolverType) Valid() bool {
	switch t {
	case ResolverIndividual, ResolverArbitrator:
		return true
	default:
		return false
	}
}

// Invoice captures one agreement's milestone ledger together with its
// authority, arbitration and payout configuration. Instances are created once
// by the factory and never destroyed; exhausted or withdrawn invoices simply
// become terminal.
type Invoice struct {
	Address          [20]byte     `json:"address"`
	ID               uint64       `json:"id"`
	Kind             Kind         `json:"kind"`
	Version          uint32       `json:"version"`
	Client           [20]byte     `json:"client"`
	Provider         [20]byte     `json:"provider"`
	ClientReceiver   [20]byte     `json:"clientReceiver"`
	ProviderReceiver [20]byte     `json:"providerReceiver"`
	ResolverType     ResolverType `json:"resolverType"`
	Resolver         [20]byte     `json:"resolver"`
	ResolutionRate   uint32       `json:"resolutionRate"`
	Token            [20]byte     `json:"token"`
	WrappedNative    [20]byte     `json:"wrappedNative"`
	Amounts          []*big.Int   `json:"amounts"`
	Milestone        uint64       `json:"milestone"`
	Total            *big.Int     `json:"total"`
	Released         *big.Int     `json:"released"`
	Settled          *big.Int     `json:"settled"`
	Locked           bool         `json:"locked"`
	DisputeID        uint64       `json:"disputeId"`
	TerminationTime  int64        `json:"terminationTime"`
	DetailsHash      [32]byte     `json:"detailsHash"`
	Verified         bool         `json:"verified"`
	DAO              [20]byte     `json:"dao"`
	DAOFee           uint32       `json:"daoFee"`
	CreatedAt        int64        `json:"createdAt"`
}

// Clone returns a deep copy of the invoice so callers can safely mutate the
// copy without affecting the stored instance.
func (inv *Invoice) Clone() *Invoice {
	if inv == nil {
		return nil
	}
	clone := *inv
	if len(inv.Amounts) > 0 {
		clone.Amounts = make([]*big.Int, len(inv.Amounts))
		for i, amt := range inv.Amounts {
			if amt != nil {
				clone.Amounts[i] = new(big.Int).Set(amt)
			} else {
				clone.Amounts[i] = big.NewInt(0)
			}
		}
	}
	if inv.Total != nil {
		clone.Total = new(big.Int).Set(inv.Total)
	} else {
		clone.Total = big.NewInt(0)
	}
	if inv.Released != nil {
		clone.Released = new(big.Int).Set(inv.Released)
	} else {
		clone.Released = big.NewInt(0)
	}
	if inv.Settled != nil {
		clone.Settled = new(big.Int).Set(inv.Settled)
	} else {
		clone.Settled = big.NewInt(0)
	}
	return &clone
}

// MilestoneTotal sums the supplied milestone schedule.
func MilestoneTotal(amounts []*big.Int) *big.Int {
	total := big.NewInt(0)
	for _, amt := range amounts {
		if amt != nil {
			total.Add(total, amt)
		}
	}
	return total
}

// SanitizeInvoice validates and normalises the supplied invoice, returning a
// cloned instance with non-nil amount fields. The function does not mutate the
// original value.
func SanitizeInvoice(inv *Invoice) (*Invoice, error) {
	if inv == nil {
		return nil, fmt.Errorf("invoice: nil invoice")
	}
	clone := inv.Clone()
	if !clone.Kind.Known() {
		return nil, fmt.Errorf("invoice: unknown template kind %q", clone.Kind)
	}
	if !clone.ResolverType.Valid() {
		return nil, ErrInvalidResolverType
	}
	if clone.ResolutionRate > 10_000 {
		return nil, fmt.Errorf("invoice: resolution rate bps out of range: %d", clone.ResolutionRate)
	}
	if clone.DAOFee > 10_000 {
		return nil, fmt.Errorf("invoice: dao fee bps out of range: %d", clone.DAOFee)
	}
	for i, amt := range clone.Amounts {
		if amt == nil || amt.Sign() <= 0 {
			return nil, fmt.Errorf("invoice: milestone %d amount must be positive", i)
		}
	}
	if clone.Milestone > uint64(len(clone.Amounts)) {
		return nil, fmt.Errorf("invoice: milestone cursor %d beyond schedule of %d", clone.Milestone, len(clone.Amounts))
	}
	if clone.Total.Cmp(MilestoneTotal(clone.Amounts)) != 0 {
		return nil, fmt.Errorf("invoice: total does not match milestone schedule")
	}
	if clone.Released.Sign() < 0 {
		return nil, fmt.Errorf("invoice: released must be non-negative")
	}
	if clone.Released.Cmp(clone.Total) > 0 {
		return nil, fmt.Errorf("invoice: released exceeds milestone total")
	}
	if clone.Settled.Sign() < 0 {
		return nil, fmt.Errorf("invoice: settled must be non-negative")
	}
	return clone, nil
}
