package blockstore

import (
	"context"

	"github.com/ipfs/inodefs/blocks"

	lru "github.com/hashicorp/golang-lru"
	metrics "github.com/ipfs/go-metrics-interface"
)

type cacheHave bool
type cacheSize int

// arccache wraps a BlockStore with an Adaptive Replacement Cache (ARC) that
// does not store the actual blocks, just metadata about them: existence and
// size. This provides block access-time improvements, allowing
// to short-cut many searches without querying the underlying datastore.
type arccache struct {
	cache      *lru.TwoQueueCache
	blockstore Blockstore

	hits  metrics.Counter
	total metrics.Counter
}

var _ Blockstore = (*arccache)(nil)

func newARCCachedBS(ctx context.Context, bs Blockstore, lruSize int) (*arccache, error) {
	cache, err := lru.New2Q(lruSize)
	if err != nil {
		return nil, err
	}
	c := &arccache{cache: cache, blockstore: bs}
	c.hits = metrics.NewCtx(ctx, "arc.hits_total", "Number of ARC cache hits").Counter()
	c.total = metrics.NewCtx(ctx, "arc_total", "Total number of ARC cache requests").Counter()
	return c, nil
}

func (b *arccache) Has(ctx context.Context, id blocks.ID) (bool, error) {
	if has, _, ok := b.queryCache(id); ok {
		return has, nil
	}
	has, err := b.blockstore.Has(ctx, id)
	if err != nil {
		return false, err
	}
	b.cacheHave(id, has)
	return has, nil
}

func (b *arccache) GetSize(ctx context.Context, id blocks.ID) (int, error) {
	if has, blockSize, ok := b.queryCache(id); ok {
		if !has {
			// don't have it, return
			return -1, ErrNotFound
		}
		if blockSize >= 0 {
			// have it and we know the size
			return blockSize, nil
		}
		// we have it but don't know the size, ask the datastore.
	}
	blockSize, err := b.blockstore.GetSize(ctx, id)
	if err == ErrNotFound {
		b.cacheHave(id, false)
	} else if err == nil {
		b.cacheSize(id, blockSize)
	}
	return blockSize, err
}

func (b *arccache) Get(ctx context.Context, id blocks.ID) (blocks.Block, error) {
	if id == blocks.NoBlock {
		log.Error("undefined block id in arc cache")
		return blocks.Block{}, ErrNotFound
	}

	if has, _, ok := b.queryCache(id); ok && !has {
		return blocks.Block{}, ErrNotFound
	}

	bl, err := b.blockstore.Get(ctx, id)
	if err == ErrNotFound {
		b.cacheHave(id, false)
	} else if err == nil {
		b.cacheSize(id, bl.Size())
	}
	return bl, err
}

func (b *arccache) AllocateAndWrite(ctx context.Context, data []byte) (blocks.ID, error) {
	id, err := b.blockstore.AllocateAndWrite(ctx, data)
	if err == nil {
		b.cacheSize(id, len(data))
	}
	return id, err
}

func (b *arccache) Len() int {
	return b.blockstore.Len()
}

func (b *arccache) HashOnRead(enabled bool) {
	b.blockstore.HashOnRead(enabled)
}

func (b *arccache) cacheHave(id blocks.ID, have bool) {
	b.cache.Add(id, cacheHave(have))
}

func (b *arccache) cacheSize(id blocks.ID, blockSize int) {
	b.cache.Add(id, cacheSize(blockSize))
}

// queryCache checks if the identifier is in the cache. If so, it returns:
//
//   - exists (bool): whether the block is known to exist or not.
//   - size (int): the size if cached, or -1 if not cached.
//   - ok (bool): whether present in the cache.
//
// When ok is false, the answer in inconclusive and the caller must ignore the
// other two return values. Querying the underying store is necessary.
//
// When ok is true, exists carries the correct answer, and size carries the
// size, if known, or -1 if not.
func (b *arccache) queryCache(id blocks.ID) (exists bool, size int, ok bool) {
	b.total.Inc()
	if id == blocks.NoBlock {
		// Return cache invalid so the call to blockstore happens
		// in case of invalid key and correct error is created.
		return false, -1, false
	}

	h, ok := b.cache.Get(id)
	if ok {
		b.hits.Inc()
		switch h := h.(type) {
		case cacheHave:
			return bool(h), -1, true
		case cacheSize:
			return true, int(h), true
		}
	}
	return false, -1, false
}

func (b *arccache) AllKeysChan(ctx context.Context) (<-chan blocks.ID, error) {
	return b.blockstore.AllKeysChan(ctx)
}
