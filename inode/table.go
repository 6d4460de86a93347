package inode

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ipfs/inodefs/datastore/dshelp"

	ds "github.com/ipfs/go-datastore"
	dsns "github.com/ipfs/go-datastore/namespace"
	dsq "github.com/ipfs/go-datastore/query"
)

// DefaultPrefix namespaces the inode table in its datastore.
const DefaultPrefix = "/inodes"

// ErrNotFound is returned when an inode identifier is not in the table.
var ErrNotFound = errors.New("inode: not found")

// Table holds every inode record keyed by identifier. Callers always
// receive copies: the only way to change a stored inode is Put or Update.
type Table struct {
	datastore ds.Batching
}

// NewTable returns a Table storing its records in d.
func NewTable(d ds.Batching) *Table {
	return NewTableWPrefix(d, DefaultPrefix)
}

// NewTableWPrefix is like NewTable but stores records under prefix.
func NewTableWPrefix(d ds.Batching, prefix string) *Table {
	return &Table{
		datastore: dsns.Wrap(d, ds.NewKey(prefix)),
	}
}

func key(id ID) ds.Key {
	return dshelp.Uint64ToDsKey(uint64(id))
}

// Put stores nd, replacing any record with the same identifier.
func (t *Table) Put(ctx context.Context, nd *Inode) error {
	val, err := encode(nd)
	if err != nil {
		return fmt.Errorf("encoding inode %d: %w", nd.ID, err)
	}
	return t.datastore.Put(ctx, key(nd.ID), val)
}

// Get returns a copy of the inode with the given identifier, or ErrNotFound.
func (t *Table) Get(ctx context.Context, id ID) (*Inode, error) {
	val, err := t.datastore.Get(ctx, key(id))
	if err == ds.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	nd, err := decode(val)
	if err != nil {
		return nil, fmt.Errorf("decoding inode %d: %w", id, err)
	}
	return nd, nil
}

// Has reports whether the table holds an inode with the given identifier.
func (t *Table) Has(ctx context.Context, id ID) (bool, error) {
	return t.datastore.Has(ctx, key(id))
}

// Delete removes the inode. Removing an unknown identifier is not an error.
func (t *Table) Delete(ctx context.Context, id ID) error {
	return t.datastore.Delete(ctx, key(id))
}

// Update loads the inode, applies fn to it and stores the result. Nothing
// is written when fn returns an error. The updated inode is returned.
func (t *Table) Update(ctx context.Context, id ID, fn func(*Inode) error) (*Inode, error) {
	nd, err := t.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(nd); err != nil {
		return nil, err
	}
	if nd.ID != id {
		return nil, fmt.Errorf("inode %d: update changed the identifier to %d", id, nd.ID)
	}
	if err := t.Put(ctx, nd); err != nil {
		return nil, err
	}
	return nd.Copy(), nil
}

// All returns every inode in the table ordered by identifier.
func (t *Table) All(ctx context.Context) ([]*Inode, error) {
	res, err := t.datastore.Query(ctx, dsq.Query{})
	if err != nil {
		return nil, err
	}
	defer res.Close()

	var out []*Inode
	for r := range res.Next() {
		if r.Error != nil {
			return nil, r.Error
		}
		nd, err := decode(r.Value)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", r.Key, err)
		}
		out = append(out, nd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MaxID returns the largest identifier in the table, or 0 when it is empty.
func (t *Table) MaxID(ctx context.Context) (ID, error) {
	res, err := t.datastore.Query(ctx, dsq.Query{KeysOnly: true})
	if err != nil {
		return 0, err
	}
	defer res.Close()

	var highest ID
	for r := range res.Next() {
		if r.Error != nil {
			return 0, r.Error
		}
		n, err := dshelp.DsKeyToUint64(ds.RawKey(r.Key))
		if err != nil {
			return 0, err
		}
		if ID(n) > highest {
			highest = ID(n)
		}
	}
	return highest, nil
}
