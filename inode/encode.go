package inode

import (
	"fmt"

	"github.com/ipfs/inodefs/blocks"

	cbor "github.com/ipfs/go-ipld-cbor"
)

// record is the CBOR representation of an inode in the datastore.
type record struct {
	ID       uint64
	Name     string
	Kind     int
	Size     uint64
	Pointers []uint64
	Children []uint64
}

func init() {
	cbor.RegisterCborType(record{})
}

func encode(nd *Inode) ([]byte, error) {
	r := record{
		ID:       uint64(nd.ID),
		Name:     nd.Name,
		Kind:     int(nd.Kind),
		Size:     nd.Size,
		Pointers: make([]uint64, NumDirectPointers),
	}
	for i, p := range nd.DirectPointers {
		r.Pointers[i] = uint64(p)
	}
	if nd.IsDir() {
		r.Children = make([]uint64, len(nd.Children))
		for i, c := range nd.Children {
			r.Children[i] = uint64(c)
		}
	}
	return cbor.DumpObject(&r)
}

func decode(data []byte) (*Inode, error) {
	var r record
	if err := cbor.DecodeInto(data, &r); err != nil {
		return nil, err
	}
	if len(r.Pointers) > NumDirectPointers {
		return nil, fmt.Errorf("inode %d: %d direct pointers, at most %d allowed", r.ID, len(r.Pointers), NumDirectPointers)
	}

	nd := New(ID(r.ID), r.Name, Kind(r.Kind))
	nd.Size = r.Size
	for i, p := range r.Pointers {
		nd.DirectPointers[i] = blocks.ID(p)
	}
	if nd.IsDir() {
		for _, c := range r.Children {
			nd.Children = append(nd.Children, ID(c))
		}
	}
	return nd, nil
}
