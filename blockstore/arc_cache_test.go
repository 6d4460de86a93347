package blockstore

import (
	"context"
	"testing"

	"github.com/ipfs/inodefs/blocks"

	ds "github.com/ipfs/go-datastore"
	syncds "github.com/ipfs/go-datastore/sync"
)

var exampleData = []byte("foo")

func testArcCached(ctx context.Context, bs Blockstore) (*arccache, error) {
	if ctx == nil {
		ctx = context.TODO()
	}
	opts := DefaultCacheOpts()
	opts.HasBloomFilterSize = 0
	opts.HasBloomFilterHashes = 0
	bbs, err := CachedBlockstore(ctx, bs, opts)
	if err == nil {
		return bbs.(*arccache), nil
	}
	return nil, err
}

func createStores(t testing.TB) (*arccache, Blockstore, *callbackDatastore) {
	cd := &callbackDatastore{f: func() {}, ds: ds.NewMapDatastore()}
	bs, err := NewBlockstore(bg, syncds.MutexWrap(cd))
	if err != nil {
		t.Fatal(err)
	}
	arc, err := testArcCached(context.TODO(), bs)
	if err != nil {
		t.Fatal(err)
	}
	return arc, bs, cd
}

func trap(message string, cd *callbackDatastore, t *testing.T) {
	cd.SetFunc(func() {
		t.Fatal(message)
	})
}
func untrap(cd *callbackDatastore) {
	cd.SetFunc(func() {})
}

func TestAllocateFillsCache(t *testing.T) {
	arc, _, cd := createStores(t)

	id, err := arc.AllocateAndWrite(bg, exampleData)
	if err != nil {
		t.Fatal(err)
	}

	trap("has hit datastore", cd, t)
	if has, err := arc.Has(bg, id); !has || err != nil {
		t.Fatal("has returned invalid result")
	}
	if size, err := arc.GetSize(bg, id); size != len(exampleData) || err != nil {
		t.Fatal("getsize returned invalid result")
	}
}

func TestHasRequestTriggersCache(t *testing.T) {
	arc, _, cd := createStores(t)

	arc.Has(bg, 1)
	trap("has hit datastore", cd, t)
	if has, err := arc.Has(bg, 1); has || err != nil {
		t.Fatal("has was true but there is no such block")
	}

	untrap(cd)
	id, err := arc.AllocateAndWrite(bg, exampleData)
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Fatalf("expected first block to be 1, got %s", id)
	}

	trap("has hit datastore", cd, t)

	if has, err := arc.Has(bg, 1); !has || err != nil {
		t.Fatal("has returned invalid result")
	}
}

func TestGetFillsCache(t *testing.T) {
	arc, _, cd := createStores(t)

	if _, err := arc.Get(bg, 1); err != ErrNotFound {
		t.Fatal("block was found or there was no error")
	}

	trap("has hit datastore", cd, t)

	if has, err := arc.Has(bg, 1); has || err != nil {
		t.Fatal("has was true but there is no such block")
	}
	if _, err := arc.GetSize(bg, 1); err != ErrNotFound {
		t.Fatal("getsize was true but there is no such block")
	}

	untrap(cd)

	if _, err := arc.AllocateAndWrite(bg, exampleData); err != nil {
		t.Fatal(err)
	}

	trap("has hit datastore", cd, t)

	if has, err := arc.Has(bg, 1); !has || err != nil {
		t.Fatal("has returned invalid result")
	}
	if blockSize, err := arc.GetSize(bg, 1); blockSize != len(exampleData) || err != nil {
		t.Fatal("getsize returned invalid result", blockSize, err)
	}
}

func TestGetFalseShortCircuit(t *testing.T) {
	arc, _, cd := createStores(t)

	arc.Has(bg, 7)

	trap("get hit datastore", cd, t)

	if _, err := arc.Get(bg, 7); err != ErrNotFound {
		t.Fatal("expected ErrNotFound got", err)
	}
}

func TestArcCreationFailure(t *testing.T) {
	if arc, err := newARCCachedBS(context.TODO(), nil, -1); arc != nil || err == nil {
		t.Fatal("expected error and no cache")
	}
}

func TestInvalidKey(t *testing.T) {
	arc, _, _ := createStores(t)

	bl, err := arc.Get(bg, blocks.NoBlock)
	if err != ErrNotFound {
		t.Fatal("expected ErrNotFound for the zero id", err)
	}
	if bl.RawData() != nil {
		t.Fatal("expected no data")
	}
}

func TestGetSizeAfterSucessfulGetIsCached(t *testing.T) {
	arc, bs, cd := createStores(t)

	id, err := bs.AllocateAndWrite(bg, exampleData)
	if err != nil {
		t.Fatal(err)
	}

	arc.Get(bg, id)

	trap("has hit datastore", cd, t)
	arc.GetSize(bg, id)
}

func TestLenDelegates(t *testing.T) {
	arc, bs, _ := createStores(t)

	for i := 0; i < 3; i++ {
		if _, err := arc.AllocateAndWrite(bg, exampleData); err != nil {
			t.Fatal(err)
		}
	}
	if arc.Len() != 3 || bs.Len() != 3 {
		t.Fatalf("expected 3 blocks, got %d/%d", arc.Len(), bs.Len())
	}
}
