package sdcard_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardkit/cardfs/pkg/engine/memory"
	"github.com/cardkit/cardfs/pkg/sdcard"
	"github.com/cardkit/cardfs/pkg/transport"
)

// quietOpts keeps test runs fast and silent.
func quietOpts() sdcard.Options {
	return sdcard.Options{
		MountRetryDelay: time.Millisecond,
		SettleDelay:     time.Millisecond,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// newTestCard builds a card over a fresh in-memory engine and sim bus.
func newTestCard(t *testing.T) (*sdcard.Card, *memory.Engine, *transport.SimBus) {
	t.Helper()

	eng := memory.New(memory.DefaultConfig())
	bus := &transport.SimBus{}
	return sdcard.New(eng, bus, quietOpts()), eng, bus
}

// initCard initializes the card and registers cleanup.
func initCard(t *testing.T, card *sdcard.Card) {
	t.Helper()

	res := card.Initialize(context.Background())
	require.True(t, res.IsOK(), "initialize failed: %s", res.Message())
	t.Cleanup(card.Close)
}

func TestInitializeAndClose(t *testing.T) {
	ctx := context.Background()
	card, _, bus := newTestCard(t)

	require.False(t, card.IsMounted())
	assert.Equal(t, "unmounted", card.FilesystemType())

	res := card.Initialize(ctx)
	require.True(t, res.IsOK())
	assert.True(t, card.IsMounted())
	assert.Equal(t, "FAT32", card.FilesystemType())
	assert.True(t, bus.Initialized())

	assert.True(t, card.Initialize(ctx).IsOK(), "initialize is idempotent")
	assert.Equal(t, 1, bus.Inits())

	card.Close()
	assert.False(t, card.IsMounted())
	assert.False(t, bus.Initialized())

	card.Close() // second close is a no-op
	assert.Equal(t, "unmounted", card.FilesystemType())
}

func TestInitializeBusFailure(t *testing.T) {
	eng := memory.New(memory.DefaultConfig())
	bus := &transport.SimBus{InitErr: assert.AnError}
	card := sdcard.New(eng, bus, quietOpts())

	res := card.Initialize(context.Background())
	require.True(t, res.IsError())
	assert.Equal(t, sdcard.KindInitFailed, res.Kind())
	assert.False(t, card.IsMounted())
	assert.False(t, bus.Initialized())
}

func TestInitializeRetriesMount(t *testing.T) {
	card, eng, bus := newTestCard(t)
	eng.FailMounts(2)

	res := card.Initialize(context.Background())
	require.True(t, res.IsOK(), "third attempt should succeed")
	assert.Equal(t, 2, bus.Resets(), "each failed attempt resets the bus")
	card.Close()
}

func TestInitializeExhaustsRetries(t *testing.T) {
	eng := memory.New(memory.DefaultConfig())
	eng.FailMounts(10)
	bus := &transport.SimBus{}

	opts := quietOpts()
	opts.MountAttempts = 3
	card := sdcard.New(eng, bus, opts)

	res := card.Initialize(context.Background())
	require.True(t, res.IsError())
	assert.Equal(t, sdcard.KindMountFailed, res.Kind())
	assert.Contains(t, res.Message(), "3 attempts")
	assert.False(t, card.IsMounted())
	assert.False(t, bus.Initialized(), "failed bring-up must release the bus")
}

func TestOperationsRequireMount(t *testing.T) {
	ctx := context.Background()
	card, _, _ := newTestCard(t)

	assert.Equal(t, sdcard.KindMountFailed, card.ReadFile(ctx, "/f").Kind())
	assert.Equal(t, sdcard.KindMountFailed, card.WriteFile(ctx, "/f", nil, false).Kind())
	assert.Equal(t, sdcard.KindMountFailed, card.ListDirectory(ctx, "/").Kind())
	assert.Equal(t, sdcard.KindMountFailed, card.CreateDirectory(ctx, "/d").Kind())
	assert.Equal(t, sdcard.KindMountFailed, card.DeleteFile(ctx, "/f").Kind())
	assert.Equal(t, sdcard.KindMountFailed, card.Capacity(ctx).Kind())
	assert.Equal(t, sdcard.KindMountFailed, card.Format(ctx, "fat32").Kind())
	assert.Equal(t, sdcard.KindMountFailed, card.Sync(ctx).Kind())
	assert.False(t, card.FileExists(ctx, "/f"))
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	card, _, _ := newTestCard(t)
	initCard(t, card)

	payload := []byte("sensor log line 1\n")
	require.True(t, card.WriteFile(ctx, "/log.txt", payload, false).IsOK())

	res := card.ReadFile(ctx, "/log.txt")
	require.True(t, res.IsOK())
	assert.Equal(t, payload, res.Value())

	// Relative paths address the same file.
	same := card.ReadFile(ctx, "log.txt")
	require.True(t, same.IsOK())
	assert.Equal(t, payload, same.Value())
}

func TestWriteFileAppend(t *testing.T) {
	ctx := context.Background()
	card, _, _ := newTestCard(t)
	initCard(t, card)

	require.True(t, card.WriteTextFile(ctx, "/notes.txt", "a", false).IsOK())
	require.True(t, card.WriteTextFile(ctx, "/notes.txt", "b", true).IsOK())

	res := card.ReadFile(ctx, "/notes.txt")
	require.True(t, res.IsOK())
	assert.Equal(t, "ab", string(res.Value()))

	// Non-append rewrite truncates.
	require.True(t, card.WriteTextFile(ctx, "/notes.txt", "c", false).IsOK())
	assert.Equal(t, "c", string(card.ReadFile(ctx, "/notes.txt").Value()))
}

func TestAppendCreatesMissingFile(t *testing.T) {
	ctx := context.Background()
	card, _, _ := newTestCard(t)
	initCard(t, card)

	require.True(t, card.WriteTextFile(ctx, "/fresh.txt", "first", true).IsOK())
	assert.Equal(t, "first", string(card.ReadFile(ctx, "/fresh.txt").Value()))
}

func TestReadFileChunk(t *testing.T) {
	ctx := context.Background()
	card, _, _ := newTestCard(t)
	initCard(t, card)

	require.True(t, card.WriteTextFile(ctx, "/chunk.txt", "0123456789", false).IsOK())

	res := card.ReadFileChunk(ctx, "/chunk.txt", 3, 4)
	require.True(t, res.IsOK())
	assert.Equal(t, "3456", string(res.Value()))

	t.Run("chunk past end is truncated", func(t *testing.T) {
		res := card.ReadFileChunk(ctx, "/chunk.txt", 8, 100)
		require.True(t, res.IsOK())
		assert.Equal(t, "89", string(res.Value()))
	})

	t.Run("chunk at end is empty", func(t *testing.T) {
		res := card.ReadFileChunk(ctx, "/chunk.txt", 10, 4)
		require.True(t, res.IsOK())
		assert.Empty(t, res.Value())
	})
}

func TestReadMissingFile(t *testing.T) {
	ctx := context.Background()
	card, _, _ := newTestCard(t)
	initCard(t, card)

	res := card.ReadFile(ctx, "/ghost.txt")
	require.True(t, res.IsError())
	assert.Equal(t, sdcard.KindNotFound, res.Kind())
}

func TestListDirectoryOrdering(t *testing.T) {
	ctx := context.Background()
	card, _, _ := newTestCard(t)
	initCard(t, card)

	// Created out of order on purpose.
	require.True(t, card.WriteTextFile(ctx, "/b.txt", "b", false).IsOK())
	require.True(t, card.CreateDirectory(ctx, "/z").IsOK())
	require.True(t, card.WriteTextFile(ctx, "/a.txt", "a", false).IsOK())
	require.True(t, card.WriteTextFile(ctx, "/.hidden", "h", false).IsOK())

	res := card.ListDirectory(ctx, "/")
	require.True(t, res.IsOK())

	var names []string
	for _, entry := range res.Value() {
		names = append(names, entry.Name)
	}
	assert.Equal(t, []string{"z", "a.txt", "b.txt"}, names,
		"directories first, then names, dot entries skipped")

	first := res.Value()[0]
	assert.True(t, first.IsDirectory)
	assert.Equal(t, "/z", first.FullPath)
}

func TestListDirectoryUsesCurrentDirectory(t *testing.T) {
	ctx := context.Background()
	card, _, _ := newTestCard(t)
	initCard(t, card)

	require.True(t, card.CreateDirectory(ctx, "/sub").IsOK())
	require.True(t, card.WriteTextFile(ctx, "/sub/inner.txt", "x", false).IsOK())

	assert.Equal(t, "/", card.CurrentDirectory())
	require.True(t, card.OpenDirectory(ctx, "/sub").IsOK())
	assert.Equal(t, "/sub", card.CurrentDirectory())

	res := card.ListDirectory(ctx, "")
	require.True(t, res.IsOK())
	require.Len(t, res.Value(), 1)
	assert.Equal(t, "inner.txt", res.Value()[0].Name)
	assert.Equal(t, "/sub/inner.txt", res.Value()[0].FullPath)
}

func TestOpenDirectoryMissing(t *testing.T) {
	ctx := context.Background()
	card, _, _ := newTestCard(t)
	initCard(t, card)

	res := card.OpenDirectory(ctx, "/nowhere")
	require.True(t, res.IsError())
	assert.Equal(t, sdcard.KindNotFound, res.Kind())
	assert.Equal(t, "/", card.CurrentDirectory(), "failed change keeps the old directory")
}

func TestDirectoryLifecycle(t *testing.T) {
	ctx := context.Background()
	card, _, _ := newTestCard(t)
	initCard(t, card)

	require.True(t, card.CreateDirectory(ctx, "/data").IsOK())
	assert.Equal(t, sdcard.KindPermissionDenied, card.CreateDirectory(ctx, "/data").Kind(),
		"duplicate directory is rejected")

	require.True(t, card.WriteTextFile(ctx, "/data/f.txt", "x", false).IsOK())
	assert.Equal(t, sdcard.KindPermissionDenied, card.RemoveDirectory(ctx, "/data").Kind(),
		"non-empty directory cannot be removed")

	require.True(t, card.DeleteFile(ctx, "/data/f.txt").IsOK())
	require.True(t, card.RemoveDirectory(ctx, "/data").IsOK())
	assert.False(t, card.FileExists(ctx, "/data"))
}

func TestFileExistsAndGetFileInfo(t *testing.T) {
	ctx := context.Background()
	card, _, _ := newTestCard(t)
	initCard(t, card)

	assert.False(t, card.FileExists(ctx, "/info.txt"))
	require.True(t, card.WriteTextFile(ctx, "/info.txt", "12345", false).IsOK())
	assert.True(t, card.FileExists(ctx, "/info.txt"))

	res := card.GetFileInfo(ctx, "/info.txt")
	require.True(t, res.IsOK())
	entry := res.Value()
	assert.Equal(t, "info.txt", entry.Name)
	assert.Equal(t, "/info.txt", entry.FullPath)
	assert.Equal(t, uint64(5), entry.Size)
	assert.False(t, entry.IsDirectory)

	missing := card.GetFileInfo(ctx, "/ghost.txt")
	require.True(t, missing.IsError())
	assert.Equal(t, sdcard.KindNotFound, missing.Kind())
}

func TestDeleteFile(t *testing.T) {
	ctx := context.Background()
	card, _, _ := newTestCard(t)
	initCard(t, card)

	require.True(t, card.WriteTextFile(ctx, "/gone.txt", "x", false).IsOK())
	require.True(t, card.DeleteFile(ctx, "/gone.txt").IsOK())
	assert.False(t, card.FileExists(ctx, "/gone.txt"))

	res := card.DeleteFile(ctx, "/gone.txt")
	require.True(t, res.IsError())
	assert.Equal(t, sdcard.KindNotFound, res.Kind())
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	card, _, _ := newTestCard(t)
	initCard(t, card)

	require.True(t, card.WriteTextFile(ctx, "/old.txt", "payload", false).IsOK())
	require.True(t, card.Rename(ctx, "/old.txt", "/new.txt").IsOK())

	assert.False(t, card.FileExists(ctx, "/old.txt"))
	assert.Equal(t, "payload", string(card.ReadFile(ctx, "/new.txt").Value()))
}

func TestCopyFile(t *testing.T) {
	ctx := context.Background()
	card, _, _ := newTestCard(t)
	initCard(t, card)

	require.True(t, card.WriteTextFile(ctx, "/src.txt", "copy me", false).IsOK())
	require.True(t, card.CopyFile(ctx, "/src.txt", "/dst.txt").IsOK())

	assert.Equal(t, "copy me", string(card.ReadFile(ctx, "/dst.txt").Value()))
	assert.Equal(t, "copy me", string(card.ReadFile(ctx, "/src.txt").Value()),
		"source is untouched")
}

func TestCopyFileMissingSource(t *testing.T) {
	ctx := context.Background()
	card, _, _ := newTestCard(t)
	initCard(t, card)

	res := card.CopyFile(ctx, "/ghost.txt", "/dst.txt")
	require.True(t, res.IsError())
	assert.Equal(t, sdcard.KindNotFound, res.Kind())
	assert.Contains(t, res.Message(), "reading source")
	assert.False(t, card.FileExists(ctx, "/dst.txt"),
		"failed copy must not leave a destination behind")
}

func TestCapacity(t *testing.T) {
	ctx := context.Background()
	card, _, _ := newTestCard(t)
	initCard(t, card)

	res := card.Capacity(ctx)
	require.True(t, res.IsOK())

	info := res.Value()
	// Default memory geometry: 4096 clusters of 8 x 512-byte sectors.
	assert.Equal(t, uint64(4096*8*512), info.TotalBytes)
	assert.Equal(t, info.TotalBytes, info.FreeBytes, "empty volume is all free")

	require.True(t, card.WriteFile(ctx, "/blob.bin", make([]byte, 5000), false).IsOK())

	after := card.Capacity(ctx)
	require.True(t, after.IsOK())
	// 5000 bytes round up to two 4096-byte clusters.
	assert.Equal(t, info.FreeBytes-2*4096, after.Value().FreeBytes)

	assert.Contains(t, after.Value().String(), "free of")
}

func TestWriteFileDiskFull(t *testing.T) {
	ctx := context.Background()
	eng := memory.New(memory.Config{
		TotalClusters:     4,
		SectorsPerCluster: 1,
		SectorSize:        512,
	})
	card := sdcard.New(eng, &transport.SimBus{}, quietOpts())
	initCard(t, card)

	res := card.WriteFile(ctx, "/huge.bin", make([]byte, 4*512+1), false)
	require.True(t, res.IsError())
	assert.Equal(t, sdcard.KindDiskFull, res.Kind())
}

func TestWriteFileShortWrite(t *testing.T) {
	ctx := context.Background()
	card, eng, _ := newTestCard(t)
	initCard(t, card)

	eng.SetWriteLimit(4)

	res := card.WriteFile(ctx, "/short.bin", []byte("0123456789"), false)
	require.True(t, res.IsError())
	assert.Equal(t, sdcard.KindIoError, res.Kind(),
		"a partial whole-file write is never success")
	assert.Contains(t, res.Message(), "short write")
}

func TestWriteProtectedCard(t *testing.T) {
	ctx := context.Background()
	card, eng, _ := newTestCard(t)
	initCard(t, card)

	eng.SetWriteProtected(true)

	res := card.WriteTextFile(ctx, "/nope.txt", "x", false)
	require.True(t, res.IsError())
	assert.Equal(t, sdcard.KindPermissionDenied, res.Kind())
}

func TestSync(t *testing.T) {
	ctx := context.Background()
	card, _, _ := newTestCard(t)
	initCard(t, card)

	assert.True(t, card.Sync(ctx).IsOK())
}

func TestFormat(t *testing.T) {
	ctx := context.Background()
	card, _, _ := newTestCard(t)
	initCard(t, card)

	require.True(t, card.WriteTextFile(ctx, "/wiped.txt", "x", false).IsOK())

	require.True(t, card.Format(ctx, "fat32").IsOK())
	assert.False(t, card.FileExists(ctx, "/wiped.txt"))

	listing := card.ListDirectory(ctx, "/")
	require.True(t, listing.IsOK())
	assert.Empty(t, listing.Value())
}
