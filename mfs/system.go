// Package mfs implements an in-memory journaled filesystem.
//
// A FileSystem coordinates three stores:
//  1. the inode table, holding file and directory metadata
//  2. the blockstore, holding immutable file contents
//  3. the journal, recording every structural change so it can be undone
//
// Every mutation goes through the FileSystem, which persists it and records
// it in the journal before returning.
package mfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ipfs/inodefs/blockstore"
	"github.com/ipfs/inodefs/inode"
	"github.com/ipfs/inodefs/internal"
	"github.com/ipfs/inodefs/journal"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	ds "github.com/ipfs/go-datastore"
	logging "github.com/ipfs/go-log/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var log = logging.Logger("mfs")

var (
	errNotDirectory = errors.New("mfs: not a directory")

	// ErrNotFile is returned when data is written to a directory.
	ErrNotFile = errors.New("mfs: not a file")

	// ErrCapacityExceeded is returned when a file has no free direct
	// pointer left for another block.
	ErrCapacityExceeded = errors.New("mfs: file has no free direct pointer")

	// ErrSelfLink is returned when a directory is added to itself. Longer
	// cycles through other directories are allowed.
	ErrSelfLink = errors.New("mfs: directory cannot contain itself")

	// ErrAlreadyLinked is returned when an inode is already an entry of
	// the directory. Undoing an add removes the entry, so a directory lists
	// each inode at most once.
	ErrAlreadyLinked = errors.New("mfs: already an entry of the directory")

	// ErrUnknownOp is returned by Undo for a journal operation it cannot
	// reverse.
	ErrUnknownOp = errors.New("mfs: unknown journal operation")
)

// FileSystem is the coordinator of the inode table, the blockstore and the
// journal. It allows a single writer: operations are serialized.
type FileSystem struct {
	id uuid.UUID

	lk sync.Mutex
	// lastID is the most recently assigned inode identifier. It only
	// grows, even when undo removes inodes.
	lastID inode.ID

	table      *inode.Table
	blockstore blockstore.Blockstore
	journal    *journal.Journal

	cacheOpts  blockstore.CacheOpts
	hashOnRead bool
	clock      clock.Clock
}

// Option configures a FileSystem at creation.
type Option func(*FileSystem)

// WithCacheOpts sets the caches wrapped around the default blockstore.
// A zero CacheOpts disables caching.
func WithCacheOpts(opts blockstore.CacheOpts) Option {
	return func(fs *FileSystem) {
		fs.cacheOpts = opts
	}
}

// WithHashOnRead makes the blockstore verify every block it reads.
func WithHashOnRead(enabled bool) Option {
	return func(fs *FileSystem) {
		fs.hashOnRead = enabled
	}
}

// WithBlockstore replaces the default blockstore. Cache options are
// ignored for a custom blockstore.
func WithBlockstore(bs blockstore.Blockstore) Option {
	return func(fs *FileSystem) {
		fs.blockstore = bs
	}
}

// WithClock sets the clock used to timestamp journal entries.
func WithClock(clk clock.Clock) Option {
	return func(fs *FileSystem) {
		fs.clock = clk
	}
}

// NewFileSystem creates a FileSystem storing inodes and blocks in d.
// Inodes already present in d keep their identifiers and new ones are
// numbered after them.
func NewFileSystem(ctx context.Context, d ds.Batching, opts ...Option) (*FileSystem, error) {
	fs := &FileSystem{
		id:        uuid.New(),
		table:     inode.NewTable(d),
		cacheOpts: blockstore.DefaultCacheOpts(),
		clock:     clock.New(),
	}
	for _, opt := range opts {
		opt(fs)
	}
	fs.journal = journal.NewWithClock(fs.clock)

	if fs.blockstore == nil {
		bs, err := blockstore.NewBlockstore(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("opening blockstore: %w", err)
		}
		bs, err = blockstore.CachedBlockstore(ctx, bs, fs.cacheOpts)
		if err != nil {
			return nil, fmt.Errorf("caching blockstore: %w", err)
		}
		fs.blockstore = bs
	}
	if fs.hashOnRead {
		fs.blockstore.HashOnRead(true)
	}

	last, err := fs.table.MaxID(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading inode table: %w", err)
	}
	fs.lastID = last

	log.Debugw("filesystem created", "fs", fs.id, "lastID", last, "blocks", fs.blockstore.Len())
	return fs, nil
}

// ID returns the identifier of this filesystem instance.
func (fs *FileSystem) ID() uuid.UUID {
	return fs.id
}

// Blockstore returns the blockstore holding file contents.
func (fs *FileSystem) Blockstore() blockstore.Blockstore {
	return fs.blockstore
}

// Journal returns a copy of the journal entries, oldest first.
func (fs *FileSystem) Journal() []journal.Entry {
	return fs.journal.Entries()
}

// WriteJournal writes a transcript of the journal to w.
func (fs *FileSystem) WriteJournal(w io.Writer) error {
	_, err := fs.journal.WriteTo(w)
	return err
}

// Lookup returns a copy of the inode with the given identifier.
func (fs *FileSystem) Lookup(ctx context.Context, id inode.ID) (*inode.Inode, error) {
	ctx, span := internal.StartSpan(ctx, "Lookup", trace.WithAttributes(attribute.Stringer("inode", id)))
	defer span.End()

	return fs.table.Get(ctx, id)
}

// nextID must be called with fs.lk held.
func (fs *FileSystem) nextID() inode.ID {
	fs.lastID++
	return fs.lastID
}

// record appends op to the journal and commits it. It must be called with
// fs.lk held, after the change op describes has been persisted.
func (fs *FileSystem) record(op journal.Op) journal.Entry {
	e := fs.journal.Append(op)
	fs.journal.Commit()
	e.Committed = true
	log.Debugw("journaled", "fs", fs.id, "seq", e.Seq, "op", e.Label())
	return e
}

// create stores a new inode of the given kind and journals op for it.
func (fs *FileSystem) create(ctx context.Context, name string, kind inode.Kind) (*inode.Inode, error) {
	fs.lk.Lock()
	defer fs.lk.Unlock()

	nd := inode.New(fs.nextID(), name, kind)
	if err := fs.table.Put(ctx, nd); err != nil {
		return nil, fmt.Errorf("storing %s: %w", nd, err)
	}

	if kind == inode.Directory {
		fs.record(journal.CreateDirectory{ID: nd.ID, Name: name})
	} else {
		fs.record(journal.CreateFile{ID: nd.ID, Name: name})
	}
	log.Infow("created", "fs", fs.id, "kind", kind, "name", name, "id", nd.ID)
	return nd, nil
}
