package blockstore

import (
	"github.com/ipfs/inodefs/blocks"
	"github.com/ipfs/inodefs/datastore/dshelp"

	ds "github.com/ipfs/go-datastore"
	cbor "github.com/ipfs/go-ipld-cbor"
)

func putStored(d ds.Datastore, id blocks.ID, sb *storedBlock) error {
	val, err := cbor.DumpObject(sb)
	if err != nil {
		return err
	}
	return d.Put(bg, dshelp.Uint64ToDsKey(uint64(id)), val)
}
