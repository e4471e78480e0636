package battery

import (
	"errors"
	"time"
)

// Variant identifies a hardware/firmware generation of the Venus battery.
// It is selected once at configuration time; the register map differs
// between generations.
type Variant string

const (
	VariantV1 Variant = "v1" // Venus C / D
	VariantV2 Variant = "v2" // Venus E
	VariantV3 Variant = "v3" // revised firmware register map
)

var SupportedVariants = []Variant{VariantV1, VariantV2, VariantV3}

func ParseVariant(s string) (Variant, error) {
	for _, v := range SupportedVariants {
		if s == string(v) {
			return v, nil
		}
	}
	return "", errors.New("unsupported device variant: " + s)
}

// Kind is the register encoding.
type Kind uint8

const (
	KindUint Kind = iota
	KindInt
	KindASCII
	KindBitfield
)

func (k Kind) String() string {
	switch k {
	case KindUint:
		return "uint"
	case KindInt:
		return "int"
	case KindASCII:
		return "ascii"
	case KindBitfield:
		return "bitfield"
	}
	return "unknown"
}

// Access is the register access mode.
type Access uint8

const (
	ReadOnly Access = iota
	WriteOnly
	ReadWrite
)

// Tier is a polling cadence class.
type Tier string

const (
	TierHigh    Tier = "high"
	TierMedium  Tier = "medium"
	TierLow     Tier = "low"
	TierVeryLow Tier = "very_low"
)

// Tiers in cadence order, fastest first.
var Tiers = []Tier{TierHigh, TierMedium, TierLow, TierVeryLow}

// Faster reports whether a ticks more often than b by default ordering.
func (a Tier) Faster(b Tier) bool {
	rank := func(t Tier) int {
		for i, x := range Tiers {
			if x == t {
				return i
			}
		}
		return len(Tiers)
	}
	return rank(a) < rank(b)
}

// Layout is the variant-specific placement of a logical value. Kind and
// Words are part of the layout because the same logical value can be a
// 32-bit field on one generation and a 16-bit field on another; the
// grouping is always explicit, never inferred from the address span.
type Layout struct {
	Addr  uint16
	Kind  Kind
	Words uint16
}

// Definition is one immutable row of the register catalog.
type Definition struct {
	Name    string
	Layouts map[Variant]Layout // absent variant = value does not exist there

	Scale float64 // multiplicative, applied after raw decode; -1 flips sign (dBm)
	Unit  string

	Access         Access
	Min, Max, Step float64 // write bounds, meaningful for writable entries

	Tier       Tier
	Dependency bool // always polled while anything derived depends on it

	Bits map[uint]string // bitfield position -> flag name
}

// Register is a Definition resolved against the active variant: a single
// address column, ready for the scheduler and codec.
type Register struct {
	Name  string
	Addr  uint16
	Kind  Kind
	Words uint16

	Scale float64
	Unit  string

	Access         Access
	Min, Max, Step float64

	Tier       Tier
	Dependency bool

	Bits map[uint]string
}

// Writable reports whether the register accepts writes.
func (r Register) Writable() bool {
	return r.Access == WriteOnly || r.Access == ReadWrite
}

// Value is one decoded entry of the state snapshot. Exactly one of
// Number, Text or Flags carries the payload, according to Kind.
type Value struct {
	Name  string          `json:"name"`
	Kind  Kind            `json:"-"`
	Num   float64         `json:"value,omitempty"`
	Text  string          `json:"text,omitempty"`
	Flags map[string]bool `json:"flags,omitempty"`
	Unit  string          `json:"unit,omitempty"`

	Updated time.Time `json:"updated"`
	Valid   bool      `json:"valid"`
}
