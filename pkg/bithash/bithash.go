// Package bithash provides an immutable, arbitrary-width bit vector used as
// the result of every image hashing algorithm.
package bithash

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"math/bits"
	"strings"
)

// ErrMalformed is returned when a hex or bit string cannot be parsed.
var ErrMalformed = errors.New("bithash: malformed hash")

// Hash is an unsigned integer of arbitrary width stored most significant bit
// first. The zero value is an empty hash of length 0.
type Hash struct {
	value  *big.Int
	length int
}

// New builds a hash from bits ordered most significant first.
func New(bits []bool) Hash {
	value := new(big.Int)
	for i, bit := range bits {
		if bit {
			value.SetBit(value, len(bits)-1-i, 1)
		}
	}
	return Hash{value: value, length: len(bits)}
}

// ParseBits parses a string of '0' and '1' characters.
func ParseBits(s string) (Hash, error) {
	if s == "" {
		return Hash{}, nil
	}
	for _, c := range s {
		if c != '0' && c != '1' {
			return Hash{}, fmt.Errorf("%w: invalid bit %q", ErrMalformed, c)
		}
	}
	value, ok := new(big.Int).SetString(s, 2)
	if !ok {
		return Hash{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	return Hash{value: value, length: len(s)}, nil
}

// ParseHex parses a hexadecimal string. Every digit contributes four bits to
// the hash length, so leading zero digits are preserved on output.
func ParseHex(s string) (Hash, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Hash{}, nil
	}
	for _, c := range s {
		if !isHexDigit(c) {
			return Hash{}, fmt.Errorf("%w: invalid hex digit %q", ErrMalformed, c)
		}
	}
	value, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return Hash{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	return Hash{value: value, length: 4 * len(s)}, nil
}

func isHexDigit(c rune) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func (h Hash) int() *big.Int {
	if h.value == nil {
		return new(big.Int)
	}
	return h.value
}

// Len returns the number of bits the hash was constructed with.
func (h Hash) Len() int {
	return h.length
}

// Int returns a copy of the hash magnitude.
func (h Hash) Int() *big.Int {
	return new(big.Int).Set(h.int())
}

// IsZero reports whether no bit is set.
func (h Hash) IsZero() bool {
	return h.int().Sign() == 0
}

// Hex returns the lowercase hexadecimal form, left-padded with zeros to
// ceil(Len/4) digits.
func (h Hash) Hex() string {
	digits := (h.length + 3) / 4
	if digits == 0 {
		return ""
	}
	return leftPad(h.int().Text(16), digits)
}

// Bits returns the '0'/'1' form, exactly Len characters long.
func (h Hash) Bits() string {
	if h.length == 0 {
		return ""
	}
	return leftPad(h.int().Text(2), h.length)
}

func leftPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

// String implements fmt.Stringer with the hex form.
func (h Hash) String() string {
	return h.Hex()
}

// Equal reports whether both hashes have the same magnitude. Leading zero
// bits, and therefore the stored length, are ignored.
func (h Hash) Equal(other Hash) bool {
	return h.int().Cmp(other.int()) == 0
}

// Distance returns the Hamming distance between the two hashes after
// left-padding the shorter one with zeros.
func (h Hash) Distance(other Hash) int {
	xor := new(big.Int).Xor(h.int(), other.int())
	n := 0
	for _, word := range xor.Bits() {
		n += bits.OnesCount(uint(word))
	}
	return n
}

// Uint64s splits the hash into 64-bit words, most significant word first.
// The value is left-padded to a multiple of 64 bits.
func (h Hash) Uint64s() []uint64 {
	words := (h.length + 63) / 64
	if bl := h.int().BitLen(); (bl+63)/64 > words {
		words = (bl + 63) / 64
	}
	out := make([]uint64, words)
	v := h.int()
	mask := new(big.Int).SetUint64(^uint64(0))
	for i := 0; i < words; i++ {
		shifted := new(big.Int).Rsh(v, uint(64*(words-1-i)))
		out[i] = shifted.And(shifted, mask).Uint64()
	}
	return out
}

// MarshalText encodes the hash as hex.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

// UnmarshalText decodes a hex string.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHex(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// MarshalJSON encodes the hash as a hex JSON string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Hex())
}

// UnmarshalJSON decodes a hex JSON string. null leaves the hash untouched.
func (h *Hash) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return h.UnmarshalText([]byte(s))
}
