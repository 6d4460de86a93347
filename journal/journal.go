// Package journal keeps an append-only log of reversible filesystem
// operations. Entries are removed only from the end, newest first.
package journal

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrEmpty is returned by PopLast when the journal holds no entries.
var ErrEmpty = errors.New("journal: no entries")

// Entry is one record of the journal.
type Entry struct {
	// Seq is the 1-based position at which the entry was appended.
	Seq       uint64
	Op        Op
	Committed bool
	Time      time.Time
}

// Label returns the label of the recorded operation.
func (e Entry) Label() string {
	if e.Op == nil {
		return ""
	}
	return e.Op.Label()
}

func (e Entry) String() string {
	if e.Op == nil {
		return "<empty>"
	}
	return e.Op.String()
}

// Journal is an ordered log of entries. It is safe for concurrent use.
type Journal struct {
	lk      sync.Mutex
	entries []Entry
	seq     uint64

	// committed is the number of leading entries already committed.
	committed int

	clock clock.Clock
}

// New returns an empty journal.
func New() *Journal {
	return NewWithClock(clock.New())
}

// NewWithClock returns an empty journal stamping entries with clk.
func NewWithClock(clk clock.Clock) *Journal {
	return &Journal{clock: clk}
}

// Append adds an uncommitted entry for op at the end of the journal.
func (j *Journal) Append(op Op) Entry {
	j.lk.Lock()
	defer j.lk.Unlock()

	j.seq++
	e := Entry{
		Seq:  j.seq,
		Op:   op,
		Time: j.clock.Now(),
	}
	j.entries = append(j.entries, e)
	return e
}

// Commit marks the entries appended since the previous commit as committed
// and returns how many were marked.
func (j *Journal) Commit() int {
	j.lk.Lock()
	defer j.lk.Unlock()

	n := 0
	for i := j.committed; i < len(j.entries); i++ {
		j.entries[i].Committed = true
		n++
	}
	j.committed = len(j.entries)
	return n
}

// PopLast removes and returns the newest entry.
func (j *Journal) PopLast() (Entry, error) {
	j.lk.Lock()
	defer j.lk.Unlock()

	if len(j.entries) == 0 {
		return Entry{}, ErrEmpty
	}
	last := len(j.entries) - 1
	e := j.entries[last]
	j.entries[last] = Entry{}
	j.entries = j.entries[:last]
	if j.committed > len(j.entries) {
		j.committed = len(j.entries)
	}
	return e, nil
}

// Last returns the newest entry without removing it.
func (j *Journal) Last() (Entry, bool) {
	j.lk.Lock()
	defer j.lk.Unlock()

	if len(j.entries) == 0 {
		return Entry{}, false
	}
	return j.entries[len(j.entries)-1], true
}

// Entries returns a copy of the journal, oldest first.
func (j *Journal) Entries() []Entry {
	j.lk.Lock()
	defer j.lk.Unlock()

	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Len returns the number of entries.
func (j *Journal) Len() int {
	j.lk.Lock()
	defer j.lk.Unlock()
	return len(j.entries)
}

// Pending returns the number of uncommitted entries.
func (j *Journal) Pending() int {
	j.lk.Lock()
	defer j.lk.Unlock()
	return len(j.entries) - j.committed
}

// WriteTo writes a numbered transcript of the journal to w.
func (j *Journal) WriteTo(w io.Writer) (int64, error) {
	var total int64
	n, err := fmt.Fprintln(w, "Journal Entries:")
	total += int64(n)
	if err != nil {
		return total, err
	}
	for i, e := range j.Entries() {
		n, err := fmt.Fprintf(w, "%d. %s [Committed: %t]\n", i+1, e, e.Committed)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
