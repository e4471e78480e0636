package battery

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrMalformedLength means the raw word count does not match the
	// register width. Word counts are static, so hitting this at
	// runtime is a programming error.
	ErrMalformedLength = errors.New("malformed register length")

	// ErrOutOfRange means a write value violates the register's
	// min/max/step bounds or does not fit its word width.
	ErrOutOfRange = errors.New("value out of range")

	// ErrNotWritable means the register's access mode or encoding
	// does not accept writes.
	ErrNotWritable = errors.New("register not writable")
)

// Decode converts raw holding-register words into a typed value per the
// register definition. The returned Value carries no timestamp; the
// coordinator stamps it on publish.
func Decode(reg Register, words []uint16) (Value, error) {
	if len(words) != int(reg.Words) {
		return Value{}, fmt.Errorf("decode %q: got %d words, want %d: %w",
			reg.Name, len(words), reg.Words, ErrMalformedLength)
	}

	v := Value{Name: reg.Name, Kind: reg.Kind, Unit: reg.Unit}

	switch reg.Kind {
	case KindUint:
		v.Num = float64(rawUint(words)) * reg.Scale

	case KindInt:
		v.Num = float64(rawInt(words)) * reg.Scale

	case KindASCII:
		b := make([]byte, 0, len(words)*2)
		for _, w := range words {
			b = append(b, byte(w>>8), byte(w&0xFF))
		}
		v.Text = strings.TrimRight(string(b), "\x00 ")

	case KindBitfield:
		// Bit 0 is the least significant bit of the big-endian word
		// concatenation. Only set bits appear; unknown set bits are
		// kept as reserved flags so no information is dropped.
		raw := rawUint(words)
		flags := make(map[string]bool)
		for bit := uint(0); bit < uint(reg.Words)*16; bit++ {
			if raw&(1<<bit) == 0 {
				continue
			}
			name, known := reg.Bits[bit]
			if !known {
				name = fmt.Sprintf("reserved_bit_%d", bit)
			}
			flags[name] = true
		}
		v.Flags = flags
	}

	return v, nil
}

// Encode validates a write value against the register definition and
// converts it to raw words in the same order convention Decode uses.
func Encode(reg Register, value float64) ([]uint16, error) {
	if !reg.Writable() {
		return nil, fmt.Errorf("encode %q: %w", reg.Name, ErrNotWritable)
	}
	if reg.Kind != KindUint && reg.Kind != KindInt {
		return nil, fmt.Errorf("encode %q: %s registers: %w", reg.Name, reg.Kind, ErrNotWritable)
	}
	if value < reg.Min || value > reg.Max {
		return nil, fmt.Errorf("encode %q: %v outside [%v, %v]: %w",
			reg.Name, value, reg.Min, reg.Max, ErrOutOfRange)
	}
	if reg.Step > 0 {
		offset := math.Remainder(value-reg.Min, reg.Step)
		if math.Abs(offset) > 1e-9 {
			return nil, fmt.Errorf("encode %q: %v not a multiple of step %v: %w",
				reg.Name, value, reg.Step, ErrOutOfRange)
		}
	}

	raw := int64(math.Round(value / reg.Scale))
	bits := uint(reg.Words) * 16

	switch reg.Kind {
	case KindUint:
		if raw < 0 || (bits < 64 && raw > int64(1)<<bits-1) {
			return nil, fmt.Errorf("encode %q: raw %d does not fit %d words: %w",
				reg.Name, raw, reg.Words, ErrOutOfRange)
		}
	case KindInt:
		min := -(int64(1) << (bits - 1))
		max := int64(1)<<(bits-1) - 1
		if raw < min || raw > max {
			return nil, fmt.Errorf("encode %q: raw %d does not fit %d words: %w",
				reg.Name, raw, reg.Words, ErrOutOfRange)
		}
	}

	uraw := uint64(raw)
	if bits < 64 {
		uraw &= 1<<bits - 1
	}

	words := make([]uint16, reg.Words)
	for i := range words {
		shift := uint(len(words)-1-i) * 16
		words[i] = uint16(uraw >> shift)
	}
	return words, nil
}

// rawUint concatenates words high word first.
func rawUint(words []uint16) uint64 {
	var raw uint64
	for _, w := range words {
		raw = raw<<16 | uint64(w)
	}
	return raw
}

// rawInt is rawUint with two's-complement sign extension.
func rawInt(words []uint16) int64 {
	raw := rawUint(words)
	bits := uint(len(words)) * 16
	if bits < 64 && raw&(1<<(bits-1)) != 0 {
		return int64(raw) - int64(1)<<bits
	}
	return int64(raw)
}
