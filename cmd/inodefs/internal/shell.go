// Package shell runs line-oriented command scripts against a filesystem.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ipfs/inodefs/inode"
	"github.com/ipfs/inodefs/mfs"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	mbase "github.com/multiformats/go-multibase"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

// ErrUsage is returned for malformed commands.
var ErrUsage = errors.New("usage")

// DemoScript creates a small tree, writes a file, and undoes the last
// operation, printing the state along the way.
const DemoScript = `# two directories with three files
mkdir Documents
mkdir Pictures
touch doc1.txt
touch doc2.txt
touch pic1.jpg
add 1 3
add 1 4
add 2 5
write 3 Hello, World!

echo
echo === Directory Listing ===
ls

echo
echo === Read File ===
cat 3

echo
echo === Journal ===
journal

echo
echo === Undo Operation ===
undo

echo
echo === Final Journal ===
journal

echo
echo === New Directory Listing ===
ls
`

// Shell executes commands against a filesystem and writes their output.
type Shell struct {
	FS  *mfs.FileSystem
	Out io.Writer

	// Encoder prints block CIDs. Base32 is used when it is nil.
	Encoder *mbase.Encoder
}

// Run executes every line of r. Blank lines and lines starting with # are
// skipped. Run stops at the first failing command.
func (s *Shell) Run(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := s.Exec(ctx, line); err != nil {
			return fmt.Errorf("line %d: %s: %w", lineno, line, err)
		}
	}
	return scanner.Err()
}

// Exec executes a single command.
func (s *Shell) Exec(ctx context.Context, line string) error {
	name, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)
	args := strings.Fields(rest)

	switch name {
	case "echo":
		return s.printf("%s\n", rest)
	case "mkdir":
		if len(args) != 1 {
			return fmt.Errorf("%w: mkdir NAME", ErrUsage)
		}
		nd, err := s.FS.CreateDirectory(ctx, args[0])
		if err != nil {
			return err
		}
		return s.printf("Created directory %s with ID %d\n", nd.Name, nd.ID)
	case "touch":
		if len(args) != 1 {
			return fmt.Errorf("%w: touch NAME", ErrUsage)
		}
		nd, err := s.FS.CreateFile(ctx, args[0])
		if err != nil {
			return err
		}
		return s.printf("Created file %s with ID %d\n", nd.Name, nd.ID)
	case "add":
		ids, err := parseIDs(args, 2)
		if err != nil {
			return fmt.Errorf("%w: add DIR FILE", err)
		}
		if err := s.FS.AddFileToDirectory(ctx, ids[0], ids[1]); err != nil {
			return err
		}
		parent, err := s.FS.Lookup(ctx, ids[0])
		if err != nil {
			return err
		}
		if !parent.IsDir() {
			return s.printf("Ignored: %d is not a directory\n", ids[0])
		}
		return s.printf("Added %d to directory %d\n", ids[1], ids[0])
	case "write":
		if len(args) < 1 {
			return fmt.Errorf("%w: write FILE TEXT", ErrUsage)
		}
		ids, err := parseIDs(args[:1], 1)
		if err != nil {
			return fmt.Errorf("%w: write FILE TEXT", err)
		}
		text := strings.TrimSpace(strings.TrimPrefix(rest, args[0]))
		nd, err := s.FS.WriteToFile(ctx, ids[0], []byte(text))
		if err != nil {
			return err
		}
		return s.printf("Wrote %s to file %d, size now %s\n",
			humanize.Bytes(uint64(len(text))), nd.ID, humanize.Bytes(nd.Size))
	case "cat":
		ids, err := parseIDs(args, 1)
		if err != nil {
			return fmt.Errorf("%w: cat FILE", err)
		}
		text, err := s.FS.ReadFile(ctx, ids[0])
		if err != nil {
			return err
		}
		return s.printf("%s\n", text)
	case "ls":
		return s.FS.WriteListing(ctx, s.Out)
	case "journal":
		return s.FS.WriteJournal(s.Out)
	case "undo":
		e, ok, err := s.FS.Undo(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return s.printf("Nothing to undo\n")
		}
		return s.printf("Undid: %s\n", e)
	case "stat":
		ids, err := parseIDs(args, 1)
		if err != nil {
			return fmt.Errorf("%w: stat ID", err)
		}
		nd, err := s.FS.Lookup(ctx, ids[0])
		if err != nil {
			return err
		}
		return s.stat(ctx, nd)
	case "metrics":
		return s.printMetrics()
	case "fsck":
		if err := s.FS.Check(ctx); err != nil {
			for _, e := range multierr.Errors(err) {
				if err := s.printf("%s\n", e); err != nil {
					return err
				}
			}
			return err
		}
		return s.printf("Filesystem consistency check passed\n")
	default:
		return fmt.Errorf("unknown command %q", name)
	}
}

func (s *Shell) stat(ctx context.Context, nd *inode.Inode) error {
	if nd.IsDir() {
		return s.printf("%d: directory %s, %d entries %v\n", nd.ID, nd.Name, len(nd.Children), nd.Children)
	}

	enc := mbase.MustNewEncoder(mbase.Base32)
	if s.Encoder != nil {
		enc = *s.Encoder
	}
	var contents []byte
	var cids []string
	for _, id := range nd.Blocks() {
		blk, err := s.FS.Blockstore().Get(ctx, id)
		if err != nil {
			return fmt.Errorf("block %s: %w", id, err)
		}
		contents = append(contents, blk.RawData()...)
		cids = append(cids, fmt.Sprintf("%s=%s", id, blk.Cid().Encode(enc)))
	}

	err := s.printf("%d: file %s, %s (%d bytes), %s\n",
		nd.ID, nd.Name, humanize.Bytes(nd.Size), nd.Size, mimetype.Detect(contents))
	if err != nil {
		return err
	}
	for _, c := range cids {
		if err := s.printf("  block %s\n", c); err != nil {
			return err
		}
	}
	return nil
}

// printMetrics prints the counters of the filesystem. Nothing is printed
// unless a prometheus backend was injected for go-metrics-interface.
func (s *Shell) printMetrics() error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), MetricsScope) {
			continue
		}
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				if err := s.printf("%s %v\n", mf.GetName(), c.GetValue()); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (s *Shell) printf(format string, args ...interface{}) error {
	_, err := fmt.Fprintf(s.Out, format, args...)
	return err
}

func parseIDs(args []string, n int) ([]inode.ID, error) {
	if len(args) != n {
		return nil, ErrUsage
	}
	ids := make([]inode.ID, n)
	for i, a := range args {
		v, err := strconv.ParseUint(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad identifier %q", ErrUsage, a)
		}
		ids[i] = inode.ID(v)
	}
	return ids, nil
}
