package journal

import (
	"bytes"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func TestAppendCommit(t *testing.T) {
	j := New()
	require.Zero(t, j.Len())
	require.Zero(t, j.Commit())

	e := j.Append(CreateDirectory{ID: 1, Name: "Documents"})
	require.Equal(t, uint64(1), e.Seq)
	require.False(t, e.Committed)
	require.Equal(t, LabelCreateDirectory, e.Label())
	require.Equal(t, 1, j.Pending())

	require.Equal(t, 1, j.Commit())
	require.Zero(t, j.Pending())

	j.Append(CreateFile{ID: 2, Name: "doc1.txt"})
	j.Append(AddToDirectory{File: 2, Parent: 1})
	require.Equal(t, 2, j.Pending())
	require.Equal(t, 2, j.Commit(), "only entries since the last commit are marked")

	for _, e := range j.Entries() {
		require.True(t, e.Committed)
	}
}

func TestPopLastIsLIFO(t *testing.T) {
	j := New()
	_, err := j.PopLast()
	require.ErrorIs(t, err, ErrEmpty)

	j.Append(CreateDirectory{ID: 1, Name: "a"})
	j.Append(CreateFile{ID: 2, Name: "b"})
	j.Commit()
	j.Append(AddToDirectory{File: 2, Parent: 1})

	last, ok := j.Last()
	require.True(t, ok)
	require.Equal(t, AddToDirectory{File: 2, Parent: 1}, last.Op)

	e, err := j.PopLast()
	require.NoError(t, err)
	require.Equal(t, LabelAddToDirectory, e.Label())
	require.False(t, e.Committed)
	require.Zero(t, j.Pending())

	e, err = j.PopLast()
	require.NoError(t, err)
	require.Equal(t, CreateFile{ID: 2, Name: "b"}, e.Op)

	e, err = j.PopLast()
	require.NoError(t, err)
	require.Equal(t, CreateDirectory{ID: 1, Name: "a"}, e.Op)

	_, ok = j.Last()
	require.False(t, ok)
	_, err = j.PopLast()
	require.ErrorIs(t, err, ErrEmpty)
}

func TestSequenceKeepsGrowing(t *testing.T) {
	j := New()
	j.Append(CreateFile{ID: 1, Name: "a"})
	_, err := j.PopLast()
	require.NoError(t, err)

	e := j.Append(CreateFile{ID: 2, Name: "b"})
	require.Equal(t, uint64(2), e.Seq)
}

func TestEntryTime(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	j := NewWithClock(clk)

	first := j.Append(CreateDirectory{ID: 1, Name: "a"})
	clk.Add(time.Minute)
	second := j.Append(CreateFile{ID: 2, Name: "b"})

	require.Equal(t, time.Minute, second.Time.Sub(first.Time))
	require.True(t, first.Time.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
}

func TestEntriesIsACopy(t *testing.T) {
	j := New()
	j.Append(CreateFile{ID: 1, Name: "a"})
	entries := j.Entries()
	entries[0].Committed = true
	require.Equal(t, 1, j.Pending())
}

func TestWriteTo(t *testing.T) {
	clk := clock.NewMock()
	j := NewWithClock(clk)
	j.Append(CreateDirectory{ID: 1, Name: "Documents"})
	j.Commit()
	j.Append(CreateFile{ID: 2, Name: "doc1.txt"})

	var buf bytes.Buffer
	n, err := j.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)
	require.Equal(t, "Journal Entries:\n"+
		"1. created directory Documents with id 1 [Committed: true]\n"+
		"2. created file doc1.txt with id 2 [Committed: false]\n", buf.String())
}
