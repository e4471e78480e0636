package battery

import (
	"fmt"
	"sort"
)

// Catalog is the static register metadata for every supported variant.
// Resolve flattens it once at startup; nothing downstream branches on
// the variant again.
type Catalog struct {
	defs []Definition
}

// DefaultCatalog returns the built-in Venus register catalog.
func DefaultCatalog() *Catalog {
	return &Catalog{defs: table}
}

// NewCatalog wraps an explicit definition list, mainly for tests.
func NewCatalog(defs []Definition) *Catalog {
	return &Catalog{defs: defs}
}

// Validate checks the catalog for programming errors: inconsistent
// width/encoding pairs, duplicate names and overlapping address ranges
// within a variant. These are fatal at startup, never at runtime.
func (c *Catalog) Validate() error {
	seen := make(map[string]bool, len(c.defs))
	for _, d := range c.defs {
		if d.Name == "" {
			return fmt.Errorf("catalog: definition with empty name")
		}
		if seen[d.Name] {
			return fmt.Errorf("catalog: duplicate definition %q", d.Name)
		}
		seen[d.Name] = true
		if len(d.Layouts) == 0 {
			return fmt.Errorf("catalog: %q has no layout for any variant", d.Name)
		}
		for v, l := range d.Layouts {
			if err := checkLayout(l); err != nil {
				return fmt.Errorf("catalog: %q (%s): %w", d.Name, v, err)
			}
		}
		if d.Kind(VariantV1) == KindBitfield || d.Kind(VariantV2) == KindBitfield || d.Kind(VariantV3) == KindBitfield {
			if d.Access != ReadOnly {
				return fmt.Errorf("catalog: %q: bitfields are read-only", d.Name)
			}
		}
	}

	for _, v := range SupportedVariants {
		regs, err := c.Resolve(v)
		if err != nil {
			return err
		}
		for i := 1; i < len(regs); i++ {
			prev, cur := regs[i-1], regs[i]
			if uint32(prev.Addr)+uint32(prev.Words) > uint32(cur.Addr) {
				return fmt.Errorf("catalog: %s: %q overlaps %q at address %d",
					v, prev.Name, cur.Name, cur.Addr)
			}
		}
	}
	return nil
}

func checkLayout(l Layout) error {
	switch l.Kind {
	case KindUint, KindInt:
		if l.Words != 1 && l.Words != 2 && l.Words != 4 {
			return fmt.Errorf("integer width must be 1, 2 or 4 words, got %d", l.Words)
		}
	case KindASCII:
		if l.Words < 1 {
			return fmt.Errorf("ascii field needs at least one word")
		}
	case KindBitfield:
		if l.Words < 1 || l.Words > 4 {
			return fmt.Errorf("bitfield width must be 1-4 words, got %d", l.Words)
		}
	default:
		return fmt.Errorf("unknown encoding kind %d", l.Kind)
	}
	return nil
}

// Kind returns the encoding of the definition on the given variant, or
// the zero Kind when the value does not exist there.
func (d Definition) Kind(v Variant) Kind {
	return d.Layouts[v].Kind
}

// Resolve returns the active registers for a variant, ordered by
// address. Definitions without a layout for the variant are dropped.
func (c *Catalog) Resolve(variant Variant) ([]Register, error) {
	ok := false
	for _, v := range SupportedVariants {
		if v == variant {
			ok = true
		}
	}
	if !ok {
		return nil, fmt.Errorf("catalog: unsupported variant %q", variant)
	}

	regs := make([]Register, 0, len(c.defs))
	for _, d := range c.defs {
		l, present := d.Layouts[variant]
		if !present {
			continue
		}
		regs = append(regs, Register{
			Name:       d.Name,
			Addr:       l.Addr,
			Kind:       l.Kind,
			Words:      l.Words,
			Scale:      d.Scale,
			Unit:       d.Unit,
			Access:     d.Access,
			Min:        d.Min,
			Max:        d.Max,
			Step:       d.Step,
			Tier:       d.Tier,
			Dependency: d.Dependency,
			Bits:       d.Bits,
		})
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].Addr < regs[j].Addr })
	return regs, nil
}
