// Package dshelp provides utilities for parsing and creating
// datastore keys used by inodefs
package dshelp

import (
	"encoding/binary"
	"fmt"

	"github.com/ipfs/go-datastore"
	"github.com/multiformats/go-base32"
)

// NewKeyFromBinary creates a new key from a byte slice.
func NewKeyFromBinary(rawKey []byte) datastore.Key {
	buf := make([]byte, 1+base32.RawStdEncoding.EncodedLen(len(rawKey)))
	buf[0] = '/'
	base32.RawStdEncoding.Encode(buf[1:], rawKey)
	return datastore.RawKey(string(buf))
}

// BinaryFromDsKey returns the byte slice corresponding to the given Key.
func BinaryFromDsKey(k datastore.Key) ([]byte, error) {
	return base32.RawStdEncoding.DecodeString(k.String()[1:])
}

// Uint64ToBinary returns the fixed width big-endian form of n.
func Uint64ToBinary(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}

// Uint64ToDsKey creates a Key from a numeric identifier.
func Uint64ToDsKey(n uint64) datastore.Key {
	return NewKeyFromBinary(Uint64ToBinary(n))
}

// DsKeyToUint64 converts a Key created by Uint64ToDsKey back to the
// identifier. Only the last path component is considered, so keys returned
// by namespaced queries can be passed as they are.
func DsKeyToUint64(dsKey datastore.Key) (uint64, error) {
	kb, err := BinaryFromDsKey(datastore.RawKey("/" + dsKey.BaseNamespace()))
	if err != nil {
		return 0, err
	}
	if len(kb) != 8 {
		return 0, fmt.Errorf("key %s: expected 8 bytes, got %d", dsKey, len(kb))
	}
	return binary.BigEndian.Uint64(kb), nil
}
