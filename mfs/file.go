package mfs

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/ipfs/inodefs/blocks"
	"github.com/ipfs/inodefs/blockstore"
	"github.com/ipfs/inodefs/inode"
	"github.com/ipfs/inodefs/internal"

	pool "github.com/libp2p/go-buffer-pool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// InvalidData is what ReadFile returns for contents that are not valid
// UTF-8 text.
const InvalidData = "invalid data"

// CreateFile creates an empty file and returns it.
func (fs *FileSystem) CreateFile(ctx context.Context, name string) (*inode.Inode, error) {
	ctx, span := internal.StartSpan(ctx, "CreateFile", trace.WithAttributes(attribute.String("name", name)))
	defer span.End()

	return fs.create(ctx, name, inode.File)
}

// WriteToFile stores data in a new block referenced by the first free
// direct pointer of the file, and returns the updated file. A file with no
// free pointer is left untouched and ErrCapacityExceeded is returned.
//
// Writes are not journaled and cannot be undone.
func (fs *FileSystem) WriteToFile(ctx context.Context, file inode.ID, data []byte) (*inode.Inode, error) {
	ctx, span := internal.StartSpan(ctx, "WriteToFile", trace.WithAttributes(
		attribute.Stringer("file", file),
		attribute.Int("size", len(data)),
	))
	defer span.End()

	fs.lk.Lock()
	defer fs.lk.Unlock()

	nd, err := fs.table.Update(ctx, file, func(nd *inode.Inode) error {
		if nd.IsDir() {
			return fmt.Errorf("inode %d: %w", nd.ID, ErrNotFile)
		}
		slot, ok := nd.FreeSlot()
		if !ok {
			return fmt.Errorf("file %d: %w", nd.ID, ErrCapacityExceeded)
		}
		id, err := fs.blockstore.AllocateAndWrite(ctx, data)
		if err != nil {
			return fmt.Errorf("writing block: %w", err)
		}
		nd.DirectPointers[slot] = id
		nd.Size += uint64(len(data))
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCapacityExceeded) {
			log.Warnf("write of %d bytes to file %d dropped: all direct pointers in use", len(data), file)
		}
		return nil, err
	}

	log.Debugw("wrote", "fs", fs.id, "file", file, "bytes", len(data), "size", nd.Size)
	return nd, nil
}

// ReadFile returns the contents of the file as text. Blocks are read in
// pointer order; contents that are not valid UTF-8 read as InvalidData.
func (fs *FileSystem) ReadFile(ctx context.Context, file inode.ID) (string, error) {
	ctx, span := internal.StartSpan(ctx, "ReadFile", trace.WithAttributes(attribute.Stringer("file", file)))
	defer span.End()

	nd, err := fs.table.Get(ctx, file)
	if err != nil {
		return "", fmt.Errorf("file %d: %w", file, err)
	}

	var (
		blks  []blocks.Block
		total int
	)
	for _, id := range nd.Blocks() {
		blk, err := fs.blockstore.Get(ctx, id)
		if errors.Is(err, blockstore.ErrNotFound) {
			log.Warnf("file %d references missing block %s", file, id)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("reading block %s of file %d: %w", id, file, err)
		}
		blks = append(blks, blk)
		total += blk.Size()
	}
	if uint64(total) != nd.Size {
		log.Debugf("file %d records size %d but its blocks hold %d bytes", file, nd.Size, total)
	}

	buf := pool.Get(total)[:0]
	defer func() { pool.Put(buf) }()
	for _, blk := range blks {
		buf = append(buf, blk.RawData()...)
	}

	if !utf8.Valid(buf) {
		return InvalidData, nil
	}
	return string(buf), nil
}
