package shell

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ipfs/inodefs/blockstore"
	"github.com/ipfs/inodefs/mfs"

	"github.com/alecthomas/units"
	ds "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	leveldb "github.com/ipfs/go-ds-leveldb"
	measure "github.com/ipfs/go-ds-measure"
	metrics "github.com/ipfs/go-metrics-interface"
	mbase "github.com/multiformats/go-multibase"
)

// MetricsScope prefixes every metric of the shell filesystem.
const MetricsScope = "inodefs"

// Datastore backends. Both keep their data in memory.
const (
	MapDatastore     = "map"
	LevelDBDatastore = "leveldb"
)

type CacheConfig struct {
	// Sizes accept byte quantities such as "512KiB".
	BloomFilterSize   string
	BloomFilterHashes int
	ARCCacheSize      int
}

type Config struct {
	// LogLevel applies to every subsystem logger.
	LogLevel   string
	Datastore  string
	HashOnRead bool
	// CidBase is the multibase used to print block CIDs.
	CidBase string
	Cache   CacheConfig
}

var DefaultConfig = Config{
	LogLevel:   "error",
	Datastore:  MapDatastore,
	HashOnRead: false,
	CidBase:    "base32",
	Cache: CacheConfig{
		BloomFilterSize:   "512KiB",
		BloomFilterHashes: blockstore.DefaultCacheOpts().HasBloomFilterHashes,
		ARCCacheSize:      blockstore.DefaultCacheOpts().HasARCCacheSize,
	},
}

// ReadConfig decodes a JSON config. Fields missing from r keep their
// default values.
func ReadConfig(r io.Reader) (Config, error) {
	config := DefaultConfig
	err := json.NewDecoder(r).Decode(&config)
	if err != nil {
		return Config{}, fmt.Errorf("reading and decoding config: %w", err)
	}
	return config, nil
}

// Options returns the filesystem options matching the config.
func (c Config) Options() ([]mfs.Option, error) {
	var bloomSize units.Base2Bytes
	if c.Cache.BloomFilterSize != "" {
		var err error
		bloomSize, err = units.ParseBase2Bytes(c.Cache.BloomFilterSize)
		if err != nil {
			return nil, fmt.Errorf("parsing bloom filter size: %w", err)
		}
	}
	return []mfs.Option{
		mfs.WithHashOnRead(c.HashOnRead),
		mfs.WithCacheOpts(blockstore.CacheOpts{
			HasBloomFilterSize:   int(bloomSize),
			HasBloomFilterHashes: c.Cache.BloomFilterHashes,
			HasARCCacheSize:      c.Cache.ARCCacheSize,
		}),
	}, nil
}

// OpenDatastore returns the configured datastore backend, measured under
// the given metrics prefix.
func (c Config) OpenDatastore(prefix string) (ds.Batching, error) {
	var d ds.Batching
	switch c.Datastore {
	case "", MapDatastore:
		d = dssync.MutexWrap(ds.NewMapDatastore())
	case LevelDBDatastore:
		ldb, err := leveldb.NewDatastore("", nil)
		if err != nil {
			return nil, fmt.Errorf("opening leveldb: %w", err)
		}
		d = ldb
	default:
		return nil, fmt.Errorf("unknown datastore %q", c.Datastore)
	}
	return measure.New(prefix, d), nil
}

// Encoder returns the multibase encoder for printing CIDs.
func (c Config) Encoder() (mbase.Encoder, error) {
	if c.CidBase == "" {
		return mbase.MustNewEncoder(mbase.Base32), nil
	}
	return mbase.EncoderByName(c.CidBase)
}

// NewShell opens a filesystem as configured and returns a shell on it.
func (c Config) NewShell(ctx context.Context, out io.Writer) (*Shell, error) {
	opts, err := c.Options()
	if err != nil {
		return nil, err
	}
	enc, err := c.Encoder()
	if err != nil {
		return nil, err
	}
	d, err := c.OpenDatastore(MetricsScope + ".datastore")
	if err != nil {
		return nil, err
	}
	ctx = metrics.CtxScope(ctx, MetricsScope)
	fs, err := mfs.NewFileSystem(ctx, d, opts...)
	if err != nil {
		return nil, err
	}
	return &Shell{FS: fs, Out: out, Encoder: &enc}, nil
}
