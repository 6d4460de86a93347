package mfs

import (
	"context"
	"fmt"
	"io"

	"github.com/ipfs/inodefs/inode"
	"github.com/ipfs/inodefs/internal"
	"github.com/ipfs/inodefs/journal"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ListEntry is one line of a directory listing.
type ListEntry struct {
	// Depth is 0 for top-level directories.
	Depth int
	Inode *inode.Inode
}

// CreateDirectory creates an empty directory and returns it.
func (fs *FileSystem) CreateDirectory(ctx context.Context, name string) (*inode.Inode, error) {
	ctx, span := internal.StartSpan(ctx, "CreateDirectory", trace.WithAttributes(attribute.String("name", name)))
	defer span.End()

	return fs.create(ctx, name, inode.Directory)
}

// AddFileToDirectory appends file to the entries of dir. Adding to an inode
// that is not a directory only logs an error: nothing changes, nothing is
// journaled and nil is returned. The entry is not checked against the
// table, so it may name an inode that no longer exists.
func (fs *FileSystem) AddFileToDirectory(ctx context.Context, dir, file inode.ID) error {
	ctx, span := internal.StartSpan(ctx, "AddFileToDirectory", trace.WithAttributes(
		attribute.Stringer("dir", dir),
		attribute.Stringer("file", file),
	))
	defer span.End()

	fs.lk.Lock()
	defer fs.lk.Unlock()

	parent, err := fs.table.Get(ctx, dir)
	if err != nil {
		return fmt.Errorf("directory %d: %w", dir, err)
	}
	if !parent.IsDir() {
		log.Errorf("cannot add inode %d to %s: not a directory", file, parent)
		return nil
	}
	if dir == file {
		return fmt.Errorf("inode %d: %w", dir, ErrSelfLink)
	}
	if parent.HasEntry(file) {
		return fmt.Errorf("inode %d in directory %d: %w", file, dir, ErrAlreadyLinked)
	}

	_, err = fs.table.Update(ctx, dir, func(nd *inode.Inode) error {
		nd.AddEntry(file)
		return nil
	})
	if err != nil {
		return err
	}

	fs.record(journal.AddToDirectory{File: file, Parent: dir})
	return nil
}

// List walks the directory tree. Top-level directories are the ones no
// other directory contains, in identifier order; directories reachable only
// through a cycle are then listed as top-level too. Every entry is followed
// by its children in insertion order, and each inode appears once.
func (fs *FileSystem) List(ctx context.Context) ([]ListEntry, error) {
	ctx, span := internal.StartSpan(ctx, "List")
	defer span.End()

	all, err := fs.table.All(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[inode.ID]*inode.Inode, len(all))
	contained := make(map[inode.ID]struct{})
	for _, nd := range all {
		byID[nd.ID] = nd
		for _, c := range nd.Children {
			contained[c] = struct{}{}
		}
	}

	var (
		out     []ListEntry
		visited = make(map[inode.ID]struct{}, len(all))
		stack   []ListEntry
	)
	walk := func(root *inode.Inode) {
		stack = append(stack[:0], ListEntry{Inode: root})
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if _, ok := visited[top.Inode.ID]; ok {
				continue
			}
			visited[top.Inode.ID] = struct{}{}
			out = append(out, top)

			children := top.Inode.Children
			for i := len(children) - 1; i >= 0; i-- {
				child, ok := byID[children[i]]
				if !ok {
					log.Debugf("listing: skipping missing entry %d of %s", children[i], top.Inode)
					continue
				}
				stack = append(stack, ListEntry{Depth: top.Depth + 1, Inode: child})
			}
		}
	}

	for _, nd := range all {
		if _, ok := contained[nd.ID]; ok || !nd.IsDir() {
			continue
		}
		walk(nd)
	}
	for _, nd := range all {
		if _, ok := visited[nd.ID]; ok || !nd.IsDir() {
			continue
		}
		walk(nd)
	}
	return out, nil
}

// WriteListing writes the directory listing to w.
func (fs *FileSystem) WriteListing(ctx context.Context, w io.Writer) error {
	entries, err := fs.List(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		nd := e.Inode
		if nd.IsDir() {
			_, err = fmt.Fprintf(w, "Directory %s (ID: %d):\n", nd.Name, nd.ID)
		} else {
			_, err = fmt.Fprintf(w, " - File %s (ID: %d, Size: %d bytes)\n", nd.Name, nd.ID, nd.Size)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
