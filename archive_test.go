package raf

import (
	"bytes"
	"io"
	"log/slog"
	"math"
	"os"
	"runtime"
	"strings"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/meigma/raf/cache/disk"
	"github.com/meigma/raf/internal/testutil"
)

func sampleBuilder() *testutil.Builder {
	return testutil.NewBuilder().
		Add("DATA/Characters/Annie/Annie.skn", []byte("annie skin mesh")).
		Add("DATA/Characters/Annie/Annie.dds", bytes.Repeat([]byte{0xAB}, 300)).
		Add("LEVELS/Map1/Scene/room.nvr", []byte("room")).
		Add("empty.txt", nil).
		Add("hello.txt", []byte("hello, world"))
}

func openSample(t *testing.T, opts ...Option) (*Archive, *testutil.Builder, string) {
	t.Helper()
	b := sampleBuilder()
	metaPath, dataPath, _ := b.Write(t)
	a, err := Open(metaPath, dataPath, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, b, dataPath
}

func TestOpenRoundTrip(t *testing.T) {
	t.Parallel()

	b := sampleBuilder()
	metaPath, dataPath, layout := b.Write(t)

	a, err := Open(metaPath, dataPath)
	require.NoError(t, err)
	defer a.Close()

	files := b.Files()
	entries := a.Entries()
	require.Len(t, entries, len(files))
	assert.Equal(t, len(files), a.Len())

	for i, f := range files {
		e := entries[i]
		assert.Equal(t, f.Path, e.Path)
		assert.Equal(t, uint64(layout.DataOffsets[i]), e.DataOffset)
		assert.Equal(t, uint64(len(f.Content)), e.DataSize)

		got, err := a.ReadEntry(e)
		require.NoError(t, err, f.Path)
		assert.Equal(t, len(f.Content), len(got))
		if len(f.Content) > 0 {
			assert.Equal(t, f.Content, got, f.Path)
		}
	}
}

func TestOpenReadOnlyMode(t *testing.T) {
	t.Parallel()

	a, _, _ := openSample(t, WithAccessMode(ModeRead))
	e, ok := a.Lookup("hello.txt")
	require.True(t, ok)

	got, err := a.ReadEntry(e)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello, world"), got)
}

func TestOpenMissingFiles(t *testing.T) {
	t.Parallel()

	metaPath, dataPath, _ := sampleBuilder().Write(t)
	missing := metaPath + ".missing"

	tests := []struct {
		name     string
		meta     string
		data     string
		contains string
	}{
		{"metadata", missing, dataPath, "metadata"},
		{"data", metaPath, missing, "data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a, err := Open(tt.meta, tt.data)
			require.Error(t, err)
			assert.Nil(t, a)
			assert.ErrorIs(t, err, ErrIO)
			assert.ErrorIs(t, err, os.ErrNotExist)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestOpenCorruptIndex(t *testing.T) {
	t.Parallel()

	meta, data, layout := sampleBuilder().Build()
	testutil.PutUint32(meta, layout.HashOffset(1), 0x12345678)
	metaPath, dataPath := testutil.WriteFiles(t, t.TempDir(), meta, data)

	a, err := Open(metaPath, dataPath)
	require.Error(t, err)
	assert.Nil(t, a)
	assert.ErrorIs(t, err, ErrCorruptIndex)

	var cerr *CorruptIndexError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 1, cerr.Index)
	assert.Equal(t, "DATA/Characters/Annie/Annie.dds", cerr.Path)
}

func TestOpenTruncatedMetadata(t *testing.T) {
	t.Parallel()

	meta, data, _ := sampleBuilder().Build()
	metaPath, dataPath := testutil.WriteFiles(t, t.TempDir(), meta[:len(meta)-3], data)

	_, err := Open(metaPath, dataPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)
}

func TestOpenMaxEntries(t *testing.T) {
	t.Parallel()

	metaPath, dataPath, _ := sampleBuilder().Write(t)
	_, err := Open(metaPath, dataPath, WithMaxEntries(2))
	assert.ErrorIs(t, err, ErrTooManyEntries)
}

func TestOpenLogs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	openSample(t, WithLogger(logger))

	out := buf.String()
	assert.Contains(t, out, "opened archive")
	assert.Contains(t, out, "entries=5")
	assert.Contains(t, out, "mode=rw")
}

func TestReadEntryPrefixOfDataFile(t *testing.T) {
	t.Parallel()

	a, _, dataPath := openSample(t)
	raw, err := os.ReadFile(dataPath)
	require.NoError(t, err)

	for _, n := range []uint64{0, 1, 10, uint64(len(raw))} {
		got, err := a.ReadEntry(Entry{Path: "prefix", DataOffset: 0, DataSize: n})
		require.NoError(t, err)
		assert.Equal(t, raw[:n], got)
	}
}

func TestReadEntrySizeLimit(t *testing.T) {
	t.Parallel()

	a, _, _ := openSample(t)

	_, err := a.ReadEntry(Entry{Path: "huge", DataSize: math.MaxUint32 + 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSizeLimit)
	assert.NotErrorIs(t, err, ErrIO)

	// The archive stays usable.
	e, ok := a.Lookup("hello.txt")
	require.True(t, ok)
	_, err = a.ReadEntry(e)
	assert.NoError(t, err)
}

func TestReadEntryConfiguredSizeLimit(t *testing.T) {
	t.Parallel()

	a, _, _ := openSample(t, WithMaxEntrySize(16))

	e, ok := a.Lookup("DATA/Characters/Annie/Annie.dds")
	require.True(t, ok)
	_, err := a.ReadEntry(e)
	assert.ErrorIs(t, err, ErrSizeLimit)

	e, ok = a.Lookup("hello.txt")
	require.True(t, ok)
	_, err = a.ReadEntry(e)
	assert.NoError(t, err)
}

func TestWithMaxEntrySizeClamps(t *testing.T) {
	t.Parallel()

	for _, limit := range []uint64{0, math.MaxUint32 + 1, math.MaxUint64} {
		cfg := newConfig([]Option{WithMaxEntrySize(limit)})
		assert.Equal(t, uint64(MaxEntrySize), cfg.maxEntrySize)
	}
}

func TestReadEntryPastEnd(t *testing.T) {
	t.Parallel()

	a, _, _ := openSample(t)
	_, err := a.ReadEntry(Entry{Path: "ghost", DataOffset: 1 << 20, DataSize: 4})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)
	assert.Contains(t, err.Error(), "ghost")
}

func TestLookup(t *testing.T) {
	t.Parallel()

	a, _, _ := openSample(t)

	e, ok := a.Lookup("data/characters/annie/annie.skn")
	require.True(t, ok)
	assert.Equal(t, "DATA/Characters/Annie/Annie.skn", e.Path)

	_, ok = a.Lookup("DATA/Characters/Annie")
	assert.False(t, ok, "directories are not entries")

	_, ok = a.Lookup("missing.txt")
	assert.False(t, ok)
}

func TestLookupDuplicateFirstWins(t *testing.T) {
	t.Parallel()

	metaPath, dataPath, _ := testutil.NewBuilder().
		Add("dup.txt", []byte("first")).
		Add("DUP.TXT", []byte("second")).
		Write(t)
	a, err := Open(metaPath, dataPath)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, 2, a.Len())
	e, ok := a.Lookup("Dup.txt")
	require.True(t, ok)
	assert.Equal(t, 0, e.Index)
}

func TestEntriesIsCopy(t *testing.T) {
	t.Parallel()

	a, _, _ := openSample(t)
	entries := a.Entries()
	entries[0].Path = "mutated"
	entries[0].DataSize = 0

	assert.Equal(t, "DATA/Characters/Annie/Annie.skn", a.Entries()[0].Path)
	_, ok := a.Lookup("DATA/Characters/Annie/Annie.skn")
	assert.True(t, ok)
}

func TestAll(t *testing.T) {
	t.Parallel()

	a, b, _ := openSample(t)
	var paths []string
	for e := range a.All() {
		paths = append(paths, e.Path)
	}
	want := make([]string, 0, len(b.Files()))
	for _, f := range b.Files() {
		want = append(want, f.Path)
	}
	assert.Equal(t, want, paths)
}

func TestClose(t *testing.T) {
	t.Parallel()

	metaPath, dataPath, _ := sampleBuilder().Write(t)
	a, err := Open(metaPath, dataPath)
	require.NoError(t, err)

	e, ok := a.Lookup("hello.txt")
	require.True(t, ok)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close(), "second Close is a no-op")

	_, err = a.ReadEntry(e)
	assert.ErrorIs(t, err, ErrClosed)

	assert.Equal(t, 5, a.Len(), "index survives Close")
}

func TestString(t *testing.T) {
	t.Parallel()

	a, _, _ := openSample(t)
	s := a.String()
	assert.True(t, strings.HasPrefix(s, "raf.Archive{"))
	assert.Contains(t, s, "archive.raf")
	assert.Contains(t, s, "archive.raf.dat")
}

func TestEntryDigest(t *testing.T) {
	t.Parallel()

	a, _, _ := openSample(t)
	e, ok := a.Lookup("hello.txt")
	require.True(t, ok)

	d, err := a.EntryDigest(e)
	require.NoError(t, err)
	assert.Equal(t, digest.FromString("hello, world"), d)

	_, err = a.EntryDigest(Entry{DataSize: math.MaxUint32 + 1})
	assert.ErrorIs(t, err, ErrSizeLimit)
}

func TestReadEntryCache(t *testing.T) {
	t.Parallel()

	c := testutil.NewMockCache()
	a, _, dataPath := openSample(t, WithCache(c))

	e, ok := a.Lookup("hello.txt")
	require.True(t, ok)

	first, err := a.ReadEntry(e)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Puts())
	assert.Equal(t, 1, c.Len())

	// Overwrite the data file in place; a cache hit never sees the change.
	require.NoError(t, os.WriteFile(dataPath, make([]byte, 1024), 0o600))

	second, err := a.ReadEntry(e)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, c.Puts())
}

func TestReadEntryDiskCache(t *testing.T) {
	t.Parallel()

	c, err := disk.New(t.TempDir())
	require.NoError(t, err)
	a, b, _ := openSample(t, WithCache(c))

	for range 2 {
		for i, e := range a.Entries() {
			got, err := a.ReadEntry(e)
			require.NoError(t, err)
			assert.Equal(t, len(b.Files()[i].Content), len(got))
		}
	}
	assert.Positive(t, c.SizeBytes())
}

func TestReadEntryConcurrent(t *testing.T) {
	t.Parallel()

	for _, withCache := range []bool{false, true} {
		var opts []Option
		if withCache {
			opts = append(opts, WithCache(testutil.NewMockCache()))
		}
		a, b, _ := openSample(t, opts...)
		entries := a.Entries()

		var g errgroup.Group
		for i := range 200 {
			idx := i % len(entries)
			g.Go(func() error {
				got, err := a.ReadEntry(entries[idx])
				if err != nil {
					return err
				}
				want := b.Files()[idx].Content
				if len(want) > 0 && !bytes.Equal(got, want) {
					t.Errorf("entry %d: content mismatch", idx)
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())
	}
}

func TestReadEntryBeyondDataFile(t *testing.T) {
	meta, data, layout := sampleBuilder().Build()
	testutil.PutUint32(meta, layout.DataSizeOffset(4), math.MaxInt32)
	metaPath, dataPath := testutil.WriteFiles(t, t.TempDir(), meta, data)

	a, err := Open(metaPath, dataPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	e, ok := a.Lookup("hello.txt")
	require.True(t, ok)
	require.Equal(t, uint64(math.MaxInt32), e.DataSize)

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, err = a.ReadEntry(e)
	runtime.ReadMemStats(&after)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Contains(t, err.Error(), "hello.txt")
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(1<<20))

	// The last byte of the data file is still readable.
	_, err = a.ReadEntry(Entry{Path: "tail", DataOffset: uint64(len(data)) - 1, DataSize: 1})
	require.NoError(t, err)
	_, err = a.ReadEntry(Entry{Path: "tail", DataOffset: uint64(len(data)), DataSize: 1})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func openFDs(t *testing.T) int {
	t.Helper()
	fds, err := os.ReadDir("/proc/self/fd")
	require.NoError(t, err)
	return len(fds)
}

// Not parallel: counts the process's open descriptors.
func TestOpenFailureClosesHandles(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("descriptor counting needs /proc/self/fd")
	}

	metaPath, dataPath, _ := sampleBuilder().Write(t)
	meta, data, layout := sampleBuilder().Build()
	testutil.PutUint32(meta, layout.HashOffset(2), 0xdeadbeef)
	badMeta, badData := testutil.WriteFiles(t, t.TempDir(), meta, data)
	truncMeta, truncData := testutil.WriteFiles(t, t.TempDir(), meta[:layout.RecordOffset(1)], data)

	tests := []struct {
		name string
		meta string
		data string
		want error
	}{
		{"missing metadata", metaPath + ".missing", dataPath, os.ErrNotExist},
		{"missing data", metaPath, dataPath + ".missing", os.ErrNotExist},
		{"tampered hash", badMeta, badData, ErrCorruptIndex},
		{"truncated metadata", truncMeta, truncData, ErrIO},
	}

	// The first file open may start runtime descriptors such as the poller.
	a, err := Open(metaPath, dataPath)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := openFDs(t)
			for range 20 {
				a, err := Open(tt.meta, tt.data)
				require.ErrorIs(t, err, tt.want)
				require.Nil(t, a)
			}
			assert.Equal(t, before, openFDs(t))
		})
	}
}
