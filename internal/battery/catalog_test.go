package battery

import (
	"testing"
)

func TestDefaultCatalogValidates(t *testing.T) {
	if err := DefaultCatalog().Validate(); err != nil {
		t.Fatalf("default catalog invalid: %v", err)
	}
}

func TestResolveVariantLayoutDuality(t *testing.T) {
	// The same logical value resolves to a 32-bit two-word field on
	// v1 and a 16-bit one-word field at another address on v3.
	cases := []struct {
		variant Variant
		addr    uint16
		words   uint16
	}{
		{VariantV1, 32102, 2},
		{VariantV2, 32102, 2},
		{VariantV3, 31102, 1},
	}

	for _, tc := range cases {
		regs := resolved(t, tc.variant)
		reg, ok := regs["battery_power"]
		if !ok {
			t.Fatalf("%s: battery_power missing", tc.variant)
		}
		if reg.Addr != tc.addr || reg.Words != tc.words {
			t.Fatalf("%s: battery_power at %d/%d words, want %d/%d",
				tc.variant, reg.Addr, reg.Words, tc.addr, tc.words)
		}
		if reg.Kind != KindInt {
			t.Fatalf("%s: battery_power kind %s, want int", tc.variant, reg.Kind)
		}
	}
}

func TestResolveExactlyOnePerName(t *testing.T) {
	for _, variant := range SupportedVariants {
		regs, err := DefaultCatalog().Resolve(variant)
		if err != nil {
			t.Fatalf("Resolve(%s) err=%v", variant, err)
		}
		seen := make(map[string]int)
		for _, r := range regs {
			seen[r.Name]++
		}
		for name, n := range seen {
			if n != 1 {
				t.Fatalf("%s: %q resolved %d times", variant, name, n)
			}
		}
	}
}

func TestResolveOrderedByAddress(t *testing.T) {
	regs, err := DefaultCatalog().Resolve(VariantV1)
	if err != nil {
		t.Fatalf("Resolve err=%v", err)
	}
	for i := 1; i < len(regs); i++ {
		if regs[i-1].Addr >= regs[i].Addr {
			t.Fatalf("registers not address ordered: %q (%d) before %q (%d)",
				regs[i-1].Name, regs[i-1].Addr, regs[i].Name, regs[i].Addr)
		}
	}
}

func TestResolveDropsAbsentDefinitions(t *testing.T) {
	v1 := resolved(t, VariantV1)
	v3 := resolved(t, VariantV3)

	if _, ok := v1["ac_offgrid_power"]; !ok {
		t.Fatal("v1 should expose ac_offgrid_power")
	}
	if _, ok := v3["ac_offgrid_power"]; ok {
		t.Fatal("v3 should not expose ac_offgrid_power")
	}
	if _, ok := v1["wifi_signal"]; ok {
		t.Fatal("v1 should not expose wifi_signal")
	}
	if _, ok := v3["wifi_signal"]; !ok {
		t.Fatal("v3 should expose wifi_signal")
	}
}

func TestResolveUnsupportedVariant(t *testing.T) {
	if _, err := DefaultCatalog().Resolve(Variant("v9")); err == nil {
		t.Fatal("expected error for unsupported variant")
	}
}

func TestValidateRejectsBadWidth(t *testing.T) {
	c := NewCatalog([]Definition{
		{Name: "bad", Layouts: same(100, KindUint, 3), Scale: 1, Tier: TierHigh},
	})
	if err := c.Validate(); err == nil {
		t.Fatal("expected width/kind consistency error")
	}
}

func TestValidateRejectsOverlap(t *testing.T) {
	c := NewCatalog([]Definition{
		{Name: "a", Layouts: same(100, KindUint, 2), Scale: 1, Tier: TierHigh},
		{Name: "b", Layouts: same(101, KindUint, 1), Scale: 1, Tier: TierHigh},
	})
	if err := c.Validate(); err == nil {
		t.Fatal("expected overlap error")
	}
}

func TestValidateRejectsDuplicateNames(t *testing.T) {
	c := NewCatalog([]Definition{
		{Name: "a", Layouts: same(100, KindUint, 1), Scale: 1, Tier: TierHigh},
		{Name: "a", Layouts: same(200, KindUint, 1), Scale: 1, Tier: TierHigh},
	})
	if err := c.Validate(); err == nil {
		t.Fatal("expected duplicate name error")
	}
}

func TestParseVariant(t *testing.T) {
	if v, err := ParseVariant("v2"); err != nil || v != VariantV2 {
		t.Fatalf("ParseVariant(v2) = %v, %v", v, err)
	}
	if _, err := ParseVariant("venus"); err == nil {
		t.Fatal("expected error for unknown variant string")
	}
}
