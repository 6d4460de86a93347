package blockstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ipfs/inodefs/blocks"

	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	syncds "github.com/ipfs/go-datastore/sync"
)

var bg = context.Background()

func testBloomCached(ctx context.Context, bs Blockstore) (*bloomcache, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	opts := DefaultCacheOpts()
	opts.HasARCCacheSize = 0
	bbs, err := CachedBlockstore(ctx, bs, opts)
	if err == nil {
		return bbs.(*bloomcache), nil
	}
	return nil, err
}

func TestAllocateAddsToBloom(t *testing.T) {
	bs, _ := newTestBlockstore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	cachedbs, err := testBloomCached(ctx, bs)
	if err != nil {
		t.Fatal(err)
	}

	if err := cachedbs.Wait(ctx); err != nil {
		t.Fatalf("Failed while waiting for the filter to build: %d", cachedbs.bloom.ElementsAdded())
	}

	id1, err := cachedbs.AllocateAndWrite(bg, []byte("foo"))
	if err != nil {
		t.Fatal(err)
	}
	empty, err := cachedbs.AllocateAndWrite(bg, []byte{})
	if err != nil {
		t.Fatal(err)
	}

	has, err := cachedbs.Has(bg, id1)
	if err != nil {
		t.Fatal(err)
	}
	blockSize, err := cachedbs.GetSize(bg, id1)
	if err != nil {
		t.Fatal(err)
	}
	if blockSize == -1 || !has {
		t.Fatal("added block is reported missing")
	}

	has, err = cachedbs.Has(bg, empty+1)
	if err != nil {
		t.Fatal(err)
	}
	blockSize, err = cachedbs.GetSize(bg, empty+1)
	if err != nil && err != ErrNotFound {
		t.Fatal(err)
	}
	if blockSize > -1 || has {
		t.Fatal("not added block is reported to be in blockstore")
	}

	has, err = cachedbs.Has(bg, empty)
	if err != nil {
		t.Fatal(err)
	}
	blockSize, err = cachedbs.GetSize(bg, empty)
	if err != nil {
		t.Fatal(err)
	}
	if blockSize != 0 || !has {
		t.Fatal("added block is reported missing")
	}
}

func TestReturnsErrorWhenSizeNegative(t *testing.T) {
	bs, _ := newTestBlockstore(t)
	_, err := bloomCached(context.Background(), bs, -1, 1)
	if err == nil {
		t.Fail()
	}
}

func TestHasIsBloomCached(t *testing.T) {
	cd := &callbackDatastore{f: func() {}, ds: ds.NewMapDatastore()}
	bs, err := NewBlockstore(bg, syncds.MutexWrap(cd))
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 1000; i++ {
		if _, err := bs.AllocateAndWrite(bg, []byte{byte(i), byte(i >> 8)}); err != nil {
			t.Fatal(err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	cachedbs, err := testBloomCached(ctx, bs)
	if err != nil {
		t.Fatal(err)
	}

	if err := cachedbs.Wait(ctx); err != nil {
		t.Fatalf("Failed while waiting for the filter to build: %d", cachedbs.bloom.ElementsAdded())
	}

	cacheFails := 0
	cd.SetFunc(func() {
		cacheFails++
	})

	for i := 0; i < 1000; i++ {
		cachedbs.Has(bg, blocks.ID(2000+i))
	}

	if float64(cacheFails)/float64(1000) > float64(0.05) {
		t.Fatalf("Bloom filter has cache miss rate of more than 5%%")
	}

	cacheFails = 0
	block, err := cachedbs.AllocateAndWrite(bg, []byte("newBlock"))
	if err != nil {
		t.Fatal(err)
	}

	if cacheFails != 1 {
		t.Fatalf("expected one datastore write: %d", cacheFails)
	}

	cachedbs.Has(bg, block)

	if cacheFails != 2 {
		t.Fatalf("expected two datastore hits: %d", cacheFails)
	}

	if has, err := cachedbs.Has(bg, block); !has || err != nil {
		t.Fatal("has gave wrong response")
	}

	bl, err := cachedbs.Get(bg, block)
	if bl.Size() != len("newBlock") || err != nil {
		t.Fatal("Get gave wrong response")
	}
}

type callbackDatastore struct {
	sync.Mutex
	f  func()
	ds ds.Datastore
}

func (c *callbackDatastore) SetFunc(f func()) {
	c.Lock()
	defer c.Unlock()
	c.f = f
}

func (c *callbackDatastore) CallF() {
	c.Lock()
	defer c.Unlock()
	c.f()
}

func (c *callbackDatastore) Put(ctx context.Context, key ds.Key, value []byte) (err error) {
	c.CallF()
	return c.ds.Put(ctx, key, value)
}

func (c *callbackDatastore) Get(ctx context.Context, key ds.Key) (value []byte, err error) {
	c.CallF()
	return c.ds.Get(ctx, key)
}

func (c *callbackDatastore) Has(ctx context.Context, key ds.Key) (exists bool, err error) {
	c.CallF()
	return c.ds.Has(ctx, key)
}

func (c *callbackDatastore) GetSize(ctx context.Context, key ds.Key) (size int, err error) {
	c.CallF()
	return c.ds.GetSize(ctx, key)
}

func (c *callbackDatastore) Close() error {
	return nil
}

func (c *callbackDatastore) Delete(ctx context.Context, key ds.Key) (err error) {
	c.CallF()
	return c.ds.Delete(ctx, key)
}

func (c *callbackDatastore) Query(ctx context.Context, q dsq.Query) (dsq.Results, error) {
	c.CallF()
	return c.ds.Query(ctx, q)
}

func (c *callbackDatastore) Sync(ctx context.Context, key ds.Key) error {
	c.CallF()
	return c.ds.Sync(ctx, key)
}

func (c *callbackDatastore) Batch(_ context.Context) (ds.Batch, error) {
	return ds.NewBasicBatch(c), nil
}
