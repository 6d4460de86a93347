package mfs

import (
	"context"
	"errors"
	"fmt"

	"github.com/ipfs/inodefs/inode"
	"github.com/ipfs/inodefs/internal"
	"github.com/ipfs/inodefs/journal"
)

// Undo reverses the newest journal entry and removes it from the journal.
// It returns the reversed entry, or ok == false when the journal is empty.
// Calling Undo again keeps reversing older entries. When the reversal fails
// the entry stays in the journal so Undo can be retried.
func (fs *FileSystem) Undo(ctx context.Context) (e journal.Entry, ok bool, err error) {
	ctx, span := internal.StartSpan(ctx, "Undo")
	defer span.End()

	fs.lk.Lock()
	defer fs.lk.Unlock()

	e, ok = fs.journal.Last()
	if !ok {
		log.Info("nothing to undo")
		return journal.Entry{}, false, nil
	}

	switch op := e.Op.(type) {
	case journal.CreateDirectory:
		err = fs.table.Delete(ctx, op.ID)
	case journal.CreateFile:
		err = fs.table.Delete(ctx, op.ID)
	case journal.AddToDirectory:
		err = fs.unlink(ctx, op.Parent, op.File)
	default:
		log.Errorf("undo: cannot reverse journal entry %d (%T)", e.Seq, e.Op)
		return e, true, fmt.Errorf("entry %d: %w", e.Seq, ErrUnknownOp)
	}
	if err != nil {
		return e, true, fmt.Errorf("undoing %q: %w", e.Label(), err)
	}

	if _, err := fs.journal.PopLast(); err != nil {
		return e, true, err
	}
	log.Infow("undone", "fs", fs.id, "seq", e.Seq, "op", e.Label())
	return e, true, nil
}

// unlink removes every occurrence of child from the entries of dir. A
// parent that is gone or no longer a directory is left alone.
func (fs *FileSystem) unlink(ctx context.Context, dir, child inode.ID) error {
	_, err := fs.table.Update(ctx, dir, func(nd *inode.Inode) error {
		if !nd.IsDir() {
			return errNotDirectory
		}
		nd.RemoveEntry(child)
		return nil
	})
	switch {
	case errors.Is(err, inode.ErrNotFound):
		log.Warnf("undo: directory %d no longer exists", dir)
		return nil
	case errors.Is(err, errNotDirectory):
		log.Warnf("undo: inode %d is no longer a directory", dir)
		return nil
	}
	return err
}
