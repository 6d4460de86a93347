// Package blockstore implements a thin wrapper over a datastore, giving a
// clean interface for allocating and reading immutable blocks.
package blockstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ipfs/inodefs/blocks"
	"github.com/ipfs/inodefs/datastore/dshelp"
	"github.com/ipfs/inodefs/verifcid"

	cid "github.com/ipfs/go-cid"
	ds "github.com/ipfs/go-datastore"
	dsns "github.com/ipfs/go-datastore/namespace"
	dsq "github.com/ipfs/go-datastore/query"
	cbor "github.com/ipfs/go-ipld-cbor"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("blockstore")

// DefaultPrefix namespaces blockstore datastores
const DefaultPrefix = "/blocks"

// ErrHashMismatch is an error returned when the hash of a block
// is different than expected.
var ErrHashMismatch = errors.New("block in storage has different hash than requested")

// ErrNotFound is returned when a block identifier is unknown to the store.
var ErrNotFound = errors.New("blockstore: block not found")

// Blockstore wraps a Datastore. Blocks are written once and never updated
// or removed; every write allocates a new block.
type Blockstore interface {
	// AllocateAndWrite stores data in a new block. The identifier is one
	// greater than the number of blocks stored before the call.
	AllocateAndWrite(ctx context.Context, data []byte) (blocks.ID, error)

	Has(ctx context.Context, id blocks.ID) (bool, error)

	// Get returns the block for the given identifier, or ErrNotFound.
	Get(ctx context.Context, id blocks.ID) (blocks.Block, error)

	// GetSize returns the size of the block data, or -1 and ErrNotFound.
	GetSize(ctx context.Context, id blocks.ID) (int, error)

	// Len returns the number of stored blocks.
	Len() int

	// AllKeysChan returns a channel from which
	// the identifiers in the Blockstore can be read. It should respect
	// the given context, closing the channel if it becomes Done.
	AllKeysChan(ctx context.Context) (<-chan blocks.ID, error)

	// HashOnRead specifies if every read block should be
	// rehashed to make sure it matches its CID.
	HashOnRead(enabled bool)
}

// storedBlock is the datastore representation of a block.
type storedBlock struct {
	Cid  cid.Cid
	Data []byte
}

func init() {
	cbor.RegisterCborType(storedBlock{})
}

type blockstore struct {
	datastore ds.Batching

	lk    sync.Mutex
	count int

	rehash bool
}

var _ Blockstore = (*blockstore)(nil)

// NewBlockstore returns a default Blockstore implementation
// using the provided datastore.Batching backend. Blocks already present
// under the prefix are counted so that new identifiers keep increasing.
func NewBlockstore(ctx context.Context, d ds.Batching) (Blockstore, error) {
	return NewBlockstoreWPrefix(ctx, d, DefaultPrefix)
}

// NewBlockstoreWPrefix is like NewBlockstore but stores blocks under the
// given key prefix.
func NewBlockstoreWPrefix(ctx context.Context, d ds.Batching, prefix string) (Blockstore, error) {
	bs := &blockstore{
		datastore: dsns.Wrap(d, ds.NewKey(prefix)),
	}

	res, err := bs.datastore.Query(ctx, dsq.Query{KeysOnly: true})
	if err != nil {
		return nil, err
	}
	defer res.Close()
	for e := range res.Next() {
		if e.Error != nil {
			return nil, e.Error
		}
		bs.count++
	}
	if bs.count > 0 {
		log.Debugf("blockstore: found %d existing blocks", bs.count)
	}
	return bs, nil
}

func (bs *blockstore) HashOnRead(enabled bool) {
	bs.rehash = enabled
}

func (bs *blockstore) AllocateAndWrite(ctx context.Context, data []byte) (blocks.ID, error) {
	bs.lk.Lock()
	defer bs.lk.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)

	id := blocks.ID(bs.count + 1)
	blk := blocks.NewBlock(id, buf)

	val, err := cbor.DumpObject(&storedBlock{Cid: blk.Cid(), Data: buf})
	if err != nil {
		return blocks.NoBlock, err
	}
	if err := bs.datastore.Put(ctx, dshelp.Uint64ToDsKey(uint64(id)), val); err != nil {
		return blocks.NoBlock, err
	}
	bs.count++

	log.Debugf("blockstore: allocated %s", blk)
	return id, nil
}

func (bs *blockstore) Get(ctx context.Context, id blocks.ID) (blocks.Block, error) {
	if id == blocks.NoBlock {
		log.Error("undefined block id in blockstore")
		return blocks.Block{}, ErrNotFound
	}

	val, err := bs.datastore.Get(ctx, dshelp.Uint64ToDsKey(uint64(id)))
	if err == ds.ErrNotFound {
		return blocks.Block{}, ErrNotFound
	}
	if err != nil {
		return blocks.Block{}, err
	}

	var sb storedBlock
	if err := cbor.DecodeInto(val, &sb); err != nil {
		return blocks.Block{}, fmt.Errorf("decoding block %d: %w", id, err)
	}
	if err := verifcid.ValidateCid(verifcid.DefaultAllowlist, sb.Cid); err != nil {
		return blocks.Block{}, fmt.Errorf("block %d: %w", id, err)
	}

	if bs.rehash {
		rb := blocks.NewBlock(id, sb.Data)
		if !rb.Cid().Equals(sb.Cid) {
			return blocks.Block{}, ErrHashMismatch
		}
		return rb, nil
	}
	return blocks.NewBlockWithCid(id, sb.Data, sb.Cid)
}

func (bs *blockstore) Has(ctx context.Context, id blocks.ID) (bool, error) {
	if id == blocks.NoBlock {
		return false, nil
	}
	return bs.datastore.Has(ctx, dshelp.Uint64ToDsKey(uint64(id)))
}

func (bs *blockstore) GetSize(ctx context.Context, id blocks.ID) (int, error) {
	blk, err := bs.Get(ctx, id)
	if err != nil {
		return -1, err
	}
	return blk.Size(), nil
}

func (bs *blockstore) Len() int {
	bs.lk.Lock()
	defer bs.lk.Unlock()
	return bs.count
}

// AllKeysChan runs a query for keys from the blockstore.
//
// AllKeysChan respects context.
func (bs *blockstore) AllKeysChan(ctx context.Context) (<-chan blocks.ID, error) {
	// KeysOnly, because that would be _a lot_ of data.
	res, err := bs.datastore.Query(ctx, dsq.Query{KeysOnly: true})
	if err != nil {
		return nil, err
	}

	output := make(chan blocks.ID, dsq.KeysOnlyBufSize)
	go func() {
		defer func() {
			res.Close() // ensure exit (signals early exit, too)
			close(output)
		}()

		for {
			e, ok := res.NextSync()
			if !ok {
				return
			}
			if e.Error != nil {
				log.Errorf("blockstore.AllKeysChan got err: %s", e.Error)
				return
			}

			n, err := dshelp.DsKeyToUint64(ds.RawKey(e.Key))
			if err != nil {
				log.Warnf("error parsing key from binary: %s", err)
				continue
			}

			select {
			case <-ctx.Done():
				return
			case output <- blocks.ID(n):
			}
		}
	}()

	return output, nil
}
