package blockstore

import (
	"context"
	"fmt"
	"time"

	"github.com/ipfs/inodefs/blocks"
	"github.com/ipfs/inodefs/datastore/dshelp"

	bloom "github.com/ipfs/bbloom"
	metrics "github.com/ipfs/go-metrics-interface"
	"go.uber.org/atomic"
)

// bloomCached returns a Blockstore that caches Has requests using a Bloom
// filter. bloomSize is size of bloom filter in bytes. hashCount specifies the
// number of hashing functions in the bloom filter (usually known as k).
func bloomCached(ctx context.Context, bs Blockstore, bloomSize, hashCount int) (*bloomcache, error) {
	bl, err := bloom.New(float64(bloomSize), float64(hashCount))
	if err != nil {
		return nil, err
	}
	bc := &bloomcache{
		blockstore: bs,
		bloom:      bl,
		hits: metrics.NewCtx(ctx, "bloom.hits_total",
			"Number of cache hits in bloom cache").Counter(),
		total: metrics.NewCtx(ctx, "bloom_total",
			"Total number of requests to bloom cache").Counter(),
		buildChan: make(chan struct{}),
	}
	go func() {
		err := bc.build(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				log.Warning("Cache rebuild closed by context finishing: ", err)
			default:
				log.Error(err)
			}
			return
		}
	}()
	return bc, nil
}

type bloomcache struct {
	active atomic.Bool

	bloom    *bloom.Bloom
	buildErr error

	buildChan  chan struct{}
	blockstore Blockstore

	// Statistics
	hits  metrics.Counter
	total metrics.Counter
}

var _ Blockstore = (*bloomcache)(nil)

func (b *bloomcache) BloomActive() bool {
	return b.active.Load()
}

// Wait blocks until the bloom filter has been built or the context ends.
func (b *bloomcache) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.buildChan:
		return b.buildErr
	}
}

func (b *bloomcache) build(ctx context.Context) error {
	evt := time.Now()
	defer func() {
		log.Debugf("bloomcache.build took %s", time.Since(evt))
	}()
	defer close(b.buildChan)

	ch, err := b.blockstore.AllKeysChan(ctx)
	if err != nil {
		b.buildErr = fmt.Errorf("AllKeysChan failed in bloomcache rebuild with: %v", err)
		return b.buildErr
	}
	for {
		select {
		case id, ok := <-ch:
			if !ok {
				b.active.Store(true)
				return nil
			}
			b.bloom.AddTS(bloomKey(id)) // Use binary key, the more compact the better
		case <-ctx.Done():
			b.buildErr = ctx.Err()
			return b.buildErr
		}
	}
}

func bloomKey(id blocks.ID) []byte {
	return dshelp.Uint64ToBinary(uint64(id))
}

// if ok == false has is inconclusive
// if ok == true then has respons to question: is it contained
func (b *bloomcache) hasCached(id blocks.ID) (has bool, ok bool) {
	b.total.Inc()
	if id == blocks.NoBlock {
		// Return cache invalid so call to blockstore
		// in case of invalid key is forwarded deeper
		return false, false
	}
	if b.BloomActive() {
		blr := b.bloom.HasTS(bloomKey(id))
		if !blr { // not contained in bloom is only conclusive answer bloom gives
			b.hits.Inc()
			return false, true
		}
	}
	return false, false
}

func (b *bloomcache) Has(ctx context.Context, id blocks.ID) (bool, error) {
	if has, ok := b.hasCached(id); ok {
		return has, nil
	}

	return b.blockstore.Has(ctx, id)
}

func (b *bloomcache) GetSize(ctx context.Context, id blocks.ID) (int, error) {
	if has, ok := b.hasCached(id); ok && !has {
		return -1, ErrNotFound
	}

	return b.blockstore.GetSize(ctx, id)
}

func (b *bloomcache) Get(ctx context.Context, id blocks.ID) (blocks.Block, error) {
	if has, ok := b.hasCached(id); ok && !has {
		return blocks.Block{}, ErrNotFound
	}

	return b.blockstore.Get(ctx, id)
}

func (b *bloomcache) AllocateAndWrite(ctx context.Context, data []byte) (blocks.ID, error) {
	id, err := b.blockstore.AllocateAndWrite(ctx, data)
	if err == nil {
		b.bloom.AddTS(bloomKey(id))
	}
	return id, err
}

func (b *bloomcache) Len() int {
	return b.blockstore.Len()
}

func (b *bloomcache) HashOnRead(enabled bool) {
	b.blockstore.HashOnRead(enabled)
}

func (b *bloomcache) AllKeysChan(ctx context.Context) (<-chan blocks.ID, error) {
	return b.blockstore.AllKeysChan(ctx)
}
