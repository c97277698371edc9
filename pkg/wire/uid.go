package wire

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

const base58Alphabet = "123456789abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"

// UID errors.
var (
	ErrEmptyUID   = errors.New("empty uid")
	ErrInvalidUID = errors.New("invalid uid")
)

// EncodeUID returns the base58 form of a numeric UID.
func EncodeUID(uid uint32) string {
	return base58Encode(uint64(uid))
}

// DecodeUID parses a base58 UID. Values wider than 32 bits are folded into
// the 32 bit address space the same way the daemon does it.
func DecodeUID(s string) (uint32, error) {
	if s == "" {
		return 0, ErrEmptyUID
	}
	v, err := base58Decode(s)
	if err != nil {
		return 0, err
	}
	if v > 0xFFFFFFFF {
		return fold64(v), nil
	}
	return uint32(v), nil
}

func base58Encode(v uint64) string {
	var out []byte
	for v >= 58 {
		out = append(out, base58Alphabet[v%58])
		v /= 58
	}
	out = append(out, base58Alphabet[v])
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

func base58Decode(s string) (uint64, error) {
	var v uint64
	for _, r := range s {
		idx := strings.IndexRune(base58Alphabet, r)
		if idx < 0 {
			return 0, fmt.Errorf("%w: %q contains %q", ErrInvalidUID, s, r)
		}
		hi, lo := bits.Mul64(v, 58)
		if hi != 0 {
			return 0, fmt.Errorf("%w: %q overflows 64 bits", ErrInvalidUID, s)
		}
		sum, carry := bits.Add64(lo, uint64(idx), 0)
		if carry != 0 {
			return 0, fmt.Errorf("%w: %q overflows 64 bits", ErrInvalidUID, s)
		}
		v = sum
	}
	return v, nil
}

// fold64 maps a 64 bit UID of older firmware onto its 32 bit address.
func fold64(v uint64) uint32 {
	v1 := uint32(v & 0xFFFFFFFF)
	v2 := uint32(v >> 32)

	uid := v1 & 0x00000FFF
	uid |= (v1 & 0x0F000000) >> 12
	uid |= (v2 & 0x0000003F) << 16
	uid |= (v2 & 0x000F0000) << 6
	uid |= (v2 & 0x3F000000) << 2
	return uid
}
