package mfs

import (
	"context"
	"fmt"

	"github.com/ipfs/inodefs/blocks"
	"github.com/ipfs/inodefs/internal"

	bitfield "github.com/ipfs/go-bitfield"
	"go.uber.org/multierr"
)

// Check verifies the consistency of the inode table against the identifier
// counter and the blockstore. Every violation found is reported in the
// returned error.
func (fs *FileSystem) Check(ctx context.Context) error {
	ctx, span := internal.StartSpan(ctx, "Check")
	defer span.End()

	fs.lk.Lock()
	defer fs.lk.Unlock()

	all, err := fs.table.All(ctx)
	if err != nil {
		return err
	}

	// one bit per allocated block identifier, rounded up to whole bytes
	nblocks := fs.blockstore.Len() + 1
	usedBlocks, err := bitfield.NewBitfield((nblocks + 7) / 8 * 8)
	if err != nil {
		return err
	}

	var errs error
	for _, nd := range all {
		if nd.ID == 0 || nd.ID > fs.lastID {
			errs = multierr.Append(errs, fmt.Errorf("%s: identifier above last assigned %d", nd, fs.lastID))
		}

		if nd.IsDir() {
			if len(nd.Blocks()) != 0 {
				errs = multierr.Append(errs, fmt.Errorf("%s: directory references blocks", nd))
			}
			for _, c := range nd.Children {
				if c == 0 || c > fs.lastID {
					errs = multierr.Append(errs, fmt.Errorf("%s: entry %d was never assigned", nd, c))
				}
			}
			continue
		}

		free := false
		for slot, p := range nd.DirectPointers {
			if p == blocks.NoBlock {
				free = true
				continue
			}
			if free {
				errs = multierr.Append(errs, fmt.Errorf("%s: pointer in slot %d follows an empty slot", nd, slot))
			}
			if int(p) >= nblocks {
				errs = multierr.Append(errs, fmt.Errorf("%s: block %s was never allocated", nd, p))
				continue
			}
			if usedBlocks.Bit(int(p)) {
				errs = multierr.Append(errs, fmt.Errorf("%s: block %s is referenced twice", nd, p))
			}
			usedBlocks.SetBit(int(p))

			has, err := fs.blockstore.Has(ctx, p)
			if err != nil {
				return multierr.Append(errs, err)
			}
			if !has {
				errs = multierr.Append(errs, fmt.Errorf("%s: block %s is missing", nd, p))
			}
		}
		if len(nd.Blocks()) == 0 && nd.Size != 0 {
			errs = multierr.Append(errs, fmt.Errorf("%s: size %d without blocks", nd, nd.Size))
		}
	}

	if errs != nil {
		log.Warnf("consistency check found %d problems", len(multierr.Errors(errs)))
	}
	return errs
}
