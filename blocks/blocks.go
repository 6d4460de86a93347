// Package blocks contains the lowest level data unit of the filesystem.
// A block is raw data accompanied by the numeric identifier the blockstore
// assigned to it and a CID computed from its contents.
package blocks

import (
	"errors"
	"fmt"

	cid "github.com/ipfs/go-cid"
	u "github.com/ipfs/go-ipfs-util"
	mh "github.com/multiformats/go-multihash"
)

// ErrWrongHash is returned when the Cid of a block is not the expected
// according to the contents. It is currently used only when debugging.
var ErrWrongHash = errors.New("data did not match given hash")

// ID identifies a block within one blockstore. Identifiers start at 1.
type ID uint64

// NoBlock is the zero ID. It marks an unused direct pointer slot.
const NoBlock ID = 0

func (id ID) String() string {
	return fmt.Sprintf("%d", uint64(id))
}

// A Block is a singular, immutable unit of data. It is never modified once
// written: new writes always produce a new block.
type Block struct {
	id   ID
	cid  cid.Cid
	data []byte
}

// NewBlock creates a Block object from opaque data. It will hash the data.
func NewBlock(id ID, data []byte) Block {
	return Block{id: id, data: data, cid: cid.NewCidV1(cid.Raw, u.Hash(data))}
}

// NewBlockWithCid creates a new block when the hash of the data
// is already known, this is used to save time in situations where
// we are able to be confident that the data is correct.
func NewBlockWithCid(id ID, data []byte, c cid.Cid) (Block, error) {
	if u.Debug {
		chkc, err := c.Prefix().Sum(data)
		if err != nil {
			return Block{}, err
		}

		if !chkc.Equals(c) {
			return Block{}, ErrWrongHash
		}
	}
	return Block{id: id, data: data, cid: c}, nil
}

// ID returns the blockstore identifier of the block.
func (b Block) ID() ID {
	return b.id
}

// Multihash returns the hash contained in the block CID.
func (b Block) Multihash() mh.Multihash {
	return b.cid.Hash()
}

// RawData returns the block raw contents as a byte slice.
func (b Block) RawData() []byte {
	return b.data
}

// Cid returns the content identifier of the block.
func (b Block) Cid() cid.Cid {
	return b.cid
}

// Size is the length of the block contents in bytes.
func (b Block) Size() int {
	return len(b.data)
}

// String provides a human-readable representation of the block.
func (b Block) String() string {
	return fmt.Sprintf("[Block %d %s]", b.id, b.cid)
}

// Loggable returns a go-log loggable item.
func (b Block) Loggable() map[string]interface{} {
	return map[string]interface{}{
		"block": b.id,
		"cid":   b.cid.String(),
	}
}
