// Package inode models the metadata records of the filesystem: files and
// directories, and the table that holds them.
package inode

import (
	"fmt"

	"github.com/ipfs/inodefs/blocks"

	"github.com/samber/lo"
)

// NumDirectPointers is the number of block references a file inode holds.
const NumDirectPointers = 4

// ID identifies an inode. Identifiers start at 1 and are never reused.
type ID uint64

func (id ID) String() string {
	return fmt.Sprintf("%d", uint64(id))
}

// Kind is the type of an inode.
type Kind int

const (
	File Kind = iota
	Directory
)

func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case Directory:
		return "directory"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Inode describes one file or directory.
type Inode struct {
	ID   ID
	Name string
	Kind Kind

	// Size is the cumulative number of bytes written to a file.
	Size uint64

	// DirectPointers reference the blocks of a file in write order.
	// Unused slots hold blocks.NoBlock and only appear at the tail.
	DirectPointers [NumDirectPointers]blocks.ID

	// Children lists the entries of a directory in insertion order.
	// It is always nil for files.
	Children []ID
}

// New creates an inode of the given kind. Directories start with an empty
// child list.
func New(id ID, name string, kind Kind) *Inode {
	nd := &Inode{
		ID:   id,
		Name: name,
		Kind: kind,
	}
	if kind == Directory {
		nd.Children = []ID{}
	}
	return nd
}

// IsDir reports whether the inode is a directory.
func (nd *Inode) IsDir() bool {
	return nd.Kind == Directory
}

// AddEntry appends child to the directory entries. It does nothing for
// files.
func (nd *Inode) AddEntry(child ID) {
	if !nd.IsDir() {
		return
	}
	nd.Children = append(nd.Children, child)
}

// HasEntry reports whether child is listed in the directory.
func (nd *Inode) HasEntry(child ID) bool {
	return lo.Contains(nd.Children, child)
}

// RemoveEntry drops every occurrence of child from the directory entries
// and reports whether anything was removed.
func (nd *Inode) RemoveEntry(child ID) bool {
	if !nd.IsDir() {
		return false
	}
	kept := lo.Without(nd.Children, child)
	removed := len(kept) != len(nd.Children)
	nd.Children = kept
	return removed
}

// FreeSlot returns the index of the first unused direct pointer.
func (nd *Inode) FreeSlot() (int, bool) {
	for i, p := range nd.DirectPointers {
		if p == blocks.NoBlock {
			return i, true
		}
	}
	return -1, false
}

// Blocks returns the occupied direct pointers in slot order.
func (nd *Inode) Blocks() []blocks.ID {
	return lo.Filter(nd.DirectPointers[:], func(p blocks.ID, _ int) bool {
		return p != blocks.NoBlock
	})
}

// Copy returns a deep copy of the inode.
func (nd *Inode) Copy() *Inode {
	out := *nd
	if nd.Children != nil {
		out.Children = make([]ID, len(nd.Children))
		copy(out.Children, nd.Children)
	}
	return &out
}

func (nd *Inode) String() string {
	return fmt.Sprintf("%s %q (id %d)", nd.Kind, nd.Name, nd.ID)
}
