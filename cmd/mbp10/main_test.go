package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exitwal "mbp10/infra/wal/exit"
)

const mbo = `ts_recv,ts_event,rtype,publisher_id,instrument_id,action,side,price,size,channel_id,order_id,flags,ts_in_delta,sequence,symbol
2025-07-17T07:05:09.035627674Z,2025-07-17T07:05:09.035627674Z,160,2,1108,R,N,,0,0,0,8,0,0,ARL
2025-07-17T08:05:03.360677248Z,2025-07-17T08:05:03.360500000Z,160,2,1108,A,B,5.510000000,100,0,817593,130,165200,851012,ARL
2025-07-17T08:05:03.360842036Z,2025-07-17T08:05:03.360665000Z,160,2,1108,A,A,21.330000000,100,0,817597,130,166875,851013,ARL
2025-07-17T08:05:03.361002000Z,2025-07-17T08:05:03.360900000Z,160,2,1108,T,A,5.510000000,40,0,0,130,165000,851014,ARL
2025-07-17T08:05:03.361102000Z,2025-07-17T08:05:03.361000000Z,160,2,1108,F,A,5.510000000,40,0,817593,130,165000,851015,ARL
2025-07-17T08:05:03.361202000Z,2025-07-17T08:05:03.361100000Z,160,2,1108,C,A,21.330000000,100,0,817597,130,165000,851016,ARL
`

func writeInput(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mbo.csv")
	require.NoError(t, os.WriteFile(path, []byte(mbo), 0o644))
	return path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(b), "\n"), "\n")
}

func TestRunWritesMBP10(t *testing.T) {
	t.Setenv("MBP10_CONFIG", "")
	in := writeInput(t)
	out := filepath.Join(t.TempDir(), "mbp.csv")

	require.NoError(t, run([]string{"-out", out, "-log-level", "error", in}))

	lines := readLines(t, out)
	require.Len(t, lines, 7)
	assert.True(t, strings.HasPrefix(lines[0], ",ts_recv,ts_event,rtype"))
	assert.True(t, strings.HasPrefix(lines[1], "0,2025-07-17T07:05:09.035627674Z,"))
	assert.Contains(t, lines[2], ",A,B,0,5.51,100,130,165000,851012,5.51,100,1,0.00,0,0,")
	assert.Contains(t, lines[4], ",T,A,0,5.51,40,130,165000,851014,5.51,60,1,21.33,100,1,")
	assert.Contains(t, lines[6], ",C,A,1,21.33,100,130,165000,851016,5.51,60,1,0.00,0,0,")
	assert.True(t, strings.HasSuffix(lines[6], ",ARL,817597"))
}

func TestJournalReplayReproducesOutput(t *testing.T) {
	t.Setenv("MBP10_CONFIG", "")
	in := writeInput(t)
	dir := t.TempDir()
	first := filepath.Join(dir, "first.csv")
	second := filepath.Join(dir, "second.csv")
	journal := filepath.Join(dir, "journal")

	require.NoError(t, run([]string{"-out", first, "-journal", journal, "-log-level", "error", in}))
	require.NoError(t, run([]string{"-source", "journal", "-in", journal, "-out", second, "-log-level", "error"}))

	assert.Equal(t, readLines(t, first), readLines(t, second))
}

func TestRepeatedRunsShareOneJournal(t *testing.T) {
	t.Setenv("MBP10_CONFIG", "")
	in := writeInput(t)
	dir := t.TempDir()
	first := filepath.Join(dir, "first.csv")
	replayed := filepath.Join(dir, "replayed.csv")
	journal := filepath.Join(dir, "journal")

	require.NoError(t, run([]string{"-out", first, "-journal", journal, "-log-level", "error", in}))
	require.NoError(t, run([]string{"-out", "", "-journal", journal, "-log-level", "error", in}))
	require.NoError(t, run([]string{"-source", "journal", "-in", journal, "-out", replayed, "-log-level", "error"}))

	want := readLines(t, first)
	got := readLines(t, replayed)
	require.Len(t, got, 1+2*(len(want)-1))
	assert.Equal(t, want, got[:len(want)])
	// The second run starts with a reset, so its book matches the first.
	assert.True(t, strings.HasPrefix(got[len(want)], "6,2025-07-17T07:05:09.035627674Z,"))
}

func TestRepeatedRunsKeepUndeliveredOutbox(t *testing.T) {
	t.Setenv("MBP10_CONFIG", "")
	in := writeInput(t)
	outbox := filepath.Join(t.TempDir(), "outbox")

	require.NoError(t, run([]string{"-out", "", "-outbox", outbox, "-log-level", "error", in}))
	require.NoError(t, run([]string{"-out", "", "-outbox", outbox, "-log-level", "error", in}))

	box, err := exitwal.Open(outbox, exitwal.Options{})
	require.NoError(t, err)
	defer box.Close()
	n, err := box.Pending()
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.Equal(t, uint64(12), box.NextSeq())
}

func TestRunFailsOnMissingInput(t *testing.T) {
	t.Setenv("MBP10_CONFIG", "")
	err := run([]string{"-out", "", "-log-level", "error", filepath.Join(t.TempDir(), "nope.csv")})
	assert.Error(t, err)
}

func TestRunRejectsUnknownSource(t *testing.T) {
	t.Setenv("MBP10_CONFIG", "")
	err := run([]string{"-source", "stdin", "-log-level", "error"})
	assert.Error(t, err)
}
