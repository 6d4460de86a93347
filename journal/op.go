package journal

import (
	"fmt"

	"github.com/ipfs/inodefs/inode"
)

// Operation labels as they appear in journal transcripts.
const (
	LabelCreateDirectory = "create directory"
	LabelCreateFile      = "create file"
	LabelAddToDirectory  = "add file to directory"
)

// Op is a reversible structural operation recorded in the journal. The set
// of operations is closed: only this package can implement it.
type Op interface {
	// Label is the short operation name.
	Label() string
	// String describes the operation with its arguments.
	String() string

	isOp()
}

// CreateDirectory records the creation of directory ID.
type CreateDirectory struct {
	ID   inode.ID
	Name string
}

func (CreateDirectory) Label() string { return LabelCreateDirectory }

func (op CreateDirectory) String() string {
	return fmt.Sprintf("created directory %s with id %d", op.Name, op.ID)
}

func (CreateDirectory) isOp() {}

// CreateFile records the creation of file ID.
type CreateFile struct {
	ID   inode.ID
	Name string
}

func (CreateFile) Label() string { return LabelCreateFile }

func (op CreateFile) String() string {
	return fmt.Sprintf("created file %s with id %d", op.Name, op.ID)
}

func (CreateFile) isOp() {}

// AddToDirectory records that File was appended to the entries of Parent.
type AddToDirectory struct {
	File   inode.ID
	Parent inode.ID
}

func (AddToDirectory) Label() string { return LabelAddToDirectory }

func (op AddToDirectory) String() string {
	return fmt.Sprintf("added file %d to directory %d", op.File, op.Parent)
}

func (AddToDirectory) isOp() {}

var (
	_ Op = CreateDirectory{}
	_ Op = CreateFile{}
	_ Op = AddToDirectory{}
)
