package fog

import (
	"errors"
	"fmt"
)

// ErrInvalidMaskPattern is returned when a textual mask contains characters other than '0' and '1'.
var ErrInvalidMaskPattern = errors.New("invalid mask pattern")

// Mask is a packed bit array with one bit per logical cell in row-major order.
// Bit i lives in byte i/8 at position i%8 (least significant bit first).
type Mask struct {
	bits []byte
	n    int
}

// NewMask returns an all-zero mask of n bits.
func NewMask(n int) *Mask {
	if n < 0 {
		n = 0
	}
	return &Mask{bits: make([]byte, MaskByteLen(n)), n: n}
}

// WrapMask views an existing packed slice as a mask of n bits.
// Returns false when the slice is too short to hold n bits.
func WrapMask(bits []byte, n int) (*Mask, bool) {
	if n < 0 || len(bits) < MaskByteLen(n) {
		return nil, false
	}
	return &Mask{bits: bits, n: n}, true
}

// MaskByteLen returns ceil(n/8).
func MaskByteLen(n int) int {
	return (n + 7) / 8
}

// Len returns the number of bits.
func (m *Mask) Len() int { return m.n }

// Bytes returns the packed storage.
func (m *Mask) Bytes() []byte { return m.bits }

// Set sets bit i. Out-of-range indices are ignored.
func (m *Mask) Set(i int) {
	if i < 0 || i >= m.n {
		return
	}
	m.bits[i/8] |= 1 << (i % 8)
}

// Get reports bit i. Out-of-range indices read as 0.
func (m *Mask) Get(i int) bool {
	if i < 0 || i >= m.n {
		return false
	}
	return m.bits[i/8]&(1<<(i%8)) != 0
}

// Count returns the number of set bits.
func (m *Mask) Count() int {
	count := 0
	for i := 0; i < m.n; i++ {
		if m.Get(i) {
			count++
		}
	}
	return count
}

// ParseMaskPattern packs a string of '0'/'1' characters, first character = bit 0.
func ParseMaskPattern(pattern string) (*Mask, error) {
	m := NewMask(len(pattern))
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '1':
			m.Set(i)
		case '0':
		default:
			return nil, fmt.Errorf("%w: %q at offset %d", ErrInvalidMaskPattern, pattern[i], i)
		}
	}
	return m, nil
}
