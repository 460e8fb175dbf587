package generator

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Deterministic Page Generator
//
// Maps an arbitrary address string to a page of exactly PageLength symbols
// over the 29-symbol Babel alphabet. Each position is keyed independently:
//
//	page[i] = Alphabet[ first8bytes(SHA-256(address ":" i)) mod 29 ]
//
// SHA-256 gives a uniform keyed PRF, per-position keying makes every
// character independently pseudo-random yet perfectly reproducible, and the
// mod-29 bias is far below anything observable (≪ 2⁻⁵⁰). The function is
// total: any byte string, including the empty string, yields a valid page.

// Alphabet is the 29-symbol Babel character set, in canonical order:
// space, comma, period, then the 26 lowercase ASCII letters.
const Alphabet = " ,.abcdefghijklmnopqrstuvwxyz"

// PageLength is the fixed page size in symbols.
const PageLength = 3200

// canonicalSeed derives the no-seed form of RandomAddress so that calling
// it without a seed is still deterministic.
const canonicalSeed = "babel:canonical"

// AddressToPage materializes the page behind an address. Same address,
// byte-identical page, always. Addresses are opaque: hex structure is not
// required and empty addresses are valid.
func AddressToPage(address string) string {
	var page strings.Builder
	page.Grow(PageLength)

	for i := 0; i < PageLength; i++ {
		h := sha256.Sum256([]byte(address + ":" + strconv.Itoa(i)))
		v := binary.BigEndian.Uint64(h[:8])
		page.WriteByte(Alphabet[v%uint64(len(Alphabet))])
	}
	return page.String()
}

// ValidatePage checks that a page is exactly PageLength symbols and every
// symbol belongs to the alphabet. The reason string is empty for valid pages.
func ValidatePage(page string) (bool, string) {
	if len(page) != PageLength {
		return false, fmt.Sprintf("invalid length %d, want %d", len(page), PageLength)
	}
	for i := 0; i < len(page); i++ {
		if !isAlphabet(page[i]) {
			return false, fmt.Sprintf("invalid character at %d", i)
		}
	}
	return true, ""
}

// RandomAddress derives a 64-hex-char address from a seed. An empty seed
// maps to a fixed canonical seed, so the no-seed form is deterministic too.
func RandomAddress(seed string) string {
	if seed == "" {
		seed = canonicalSeed
	}
	h := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(h[:])
}

func isAlphabet(b byte) bool {
	return b == ' ' || b == ',' || b == '.' || (b >= 'a' && b <= 'z')
}
