// Package verifcid checks the content identifiers attached to stored
// blocks before they are trusted.
package verifcid

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

const (
	// MinDigestSize is the minimum size for hash digests
	MinDigestSize = 20
	// MaxDigestSize is the maximum size for cryptographic hash digests
	MaxDigestSize = 128
)

var (
	ErrPossiblyInsecureHashFunction = errors.New("potentially insecure hash functions not allowed")
	ErrDigestTooSmall               = fmt.Errorf("digest too small: must be at least %d bytes", MinDigestSize)
	ErrDigestTooLarge               = fmt.Errorf("digest too large: must be at most %d bytes", MaxDigestSize)
	ErrNotRaw                       = errors.New("block cid must use the raw codec")
)

// Allowlist defines the hash functions accepted for block identifiers.
type Allowlist interface {
	IsAllowed(code uint64) bool
}

type allowlist map[uint64]bool

func (al allowlist) IsAllowed(code uint64) bool {
	return al[code]
}

// NewAllowlist returns an Allowlist accepting the given multihash codes.
func NewAllowlist(codes ...uint64) Allowlist {
	al := make(allowlist, len(codes))
	for _, c := range codes {
		al[c] = true
	}
	return al
}

// DefaultAllowlist accepts the hash functions blocks are written with, plus
// a few stronger ones.
var DefaultAllowlist = NewAllowlist(
	mh.SHA2_256,
	mh.SHA2_512,
	mh.SHA3_256,
	mh.BLAKE2B_MIN+31, // blake2b-256
	mh.BLAKE3,
)

// ValidateCid validates the codec and the multihash behind a block CID.
func ValidateCid(allowlist Allowlist, c cid.Cid) error {
	pref := c.Prefix()
	if pref.Codec != cid.Raw {
		return ErrNotRaw
	}
	if !allowlist.IsAllowed(pref.MhType) {
		return ErrPossiblyInsecureHashFunction
	}
	if pref.MhLength < MinDigestSize {
		return ErrDigestTooSmall
	}
	if pref.MhLength > MaxDigestSize {
		return ErrDigestTooLarge
	}
	return nil
}
