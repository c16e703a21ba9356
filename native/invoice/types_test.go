package invoice

import (
	"math/big"
	"strings"
	"testing"
)

func TestNormalizeKind(t *testing.T) {
	kind, err := NormalizeKind("  Split-Escrow ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if kind != KindSplitEscrow {
		t.Fatalf("expected %q, got %q", KindSplitEscrow, kind)
	}
	if !kind.Known() {
		t.Fatal("expected known kind")
	}

	if _, err := NormalizeKind(""); err == nil {
		t.Fatal("expected empty kind to fail")
	}
	if _, err := NormalizeKind(strings.Repeat("x", 33)); err == nil {
		t.Fatal("expected oversized kind to fail")
	}

	custom, err := NormalizeKind("something-else")
	if err != nil {
		t.Fatalf("normalize custom: %v", err)
	}
	if custom.Known() {
		t.Fatal("custom kind must not be known")
	}
}

func TestResolverTypeValid(t *testing.T) {
	if !ResolverIndividual.Valid() || !ResolverArbitrator.Valid() {
		t.Fatal("declared resolver types must be valid")
	}
	if ResolverType(2).Valid() {
		t.Fatal("unknown resolver type must be invalid")
	}
}

func validInvoice() *Invoice {
	return &Invoice{
		Address:         newTestAddress(0xA0),
		Kind:            KindEscrow,
		Client:          newTestAddress(0x01),
		Provider:        newTestAddress(0x02),
		Resolver:        newTestAddress(0x03),
		Token:           newTestAddress(0x10),
		WrappedNative:   newTestAddress(0x11),
		TerminationTime: 2_000_000,
		Amounts:         []*big.Int{big.NewInt(10), big.NewInt(20)},
		Total:           big.NewInt(30),
		Released:        big.NewInt(0),
	}
}

func TestSanitizeInvoice(t *testing.T) {
	sanitized, err := SanitizeInvoice(validInvoice())
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if sanitized.Total.Int64() != 30 {
		t.Fatalf("unexpected total %s", sanitized.Total)
	}

	cases := []struct {
		name   string
		mutate func(*Invoice)
	}{
		{"unknown kind", func(inv *Invoice) { inv.Kind = Kind("mystery") }},
		{"bad resolver type", func(inv *Invoice) { inv.ResolverType = ResolverType(7) }},
		{"rate above 100%", func(inv *Invoice) { inv.ResolutionRate = 10_001 }},
		{"dao fee above 100%", func(inv *Invoice) { inv.Kind = KindSplitEscrow; inv.DAOFee = 10_001 }},
		{"zero milestone", func(inv *Invoice) { inv.Amounts[0] = big.NewInt(0) }},
		{"nil milestone", func(inv *Invoice) { inv.Amounts[1] = nil }},
		{"cursor past schedule", func(inv *Invoice) { inv.Milestone = 3 }},
		{"total mismatch", func(inv *Invoice) { inv.Total = big.NewInt(31) }},
		{"released beyond total", func(inv *Invoice) { inv.Released = big.NewInt(31) }},
		{"negative settled", func(inv *Invoice) { inv.Settled = big.NewInt(-1) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inv := validInvoice()
			tc.mutate(inv)
			if _, err := SanitizeInvoice(inv); err == nil {
				t.Fatal("expected sanitize to fail")
			}
		})
	}
}

func TestCloneIsolation(t *testing.T) {
	inv := validInvoice()
	clone := inv.Clone()
	clone.Amounts[0].SetInt64(999)
	clone.Total.SetInt64(999)
	if inv.Amounts[0].Int64() != 10 || inv.Total.Int64() != 30 {
		t.Fatal("clone shares big.Int storage with the original")
	}
}

func TestMilestoneTotal(t *testing.T) {
	total := MilestoneTotal([]*big.Int{big.NewInt(1), nil, big.NewInt(2)})
	if total.Int64() != 3 {
		t.Fatalf("expected 3, got %s", total)
	}
}
