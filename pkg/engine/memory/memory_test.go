package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardkit/cardfs/pkg/engine"
	"github.com/cardkit/cardfs/pkg/engine/enginetest"
	"github.com/cardkit/cardfs/pkg/engine/memory"
)

func TestEngineConformance(t *testing.T) {
	suite := &enginetest.Suite{
		NewEngine: func(t *testing.T) engine.Engine {
			return memory.New(memory.DefaultConfig())
		},
	}
	suite.Run(t)
}

func TestFailMounts(t *testing.T) {
	ctx := context.Background()
	eng := memory.New(memory.DefaultConfig())
	eng.FailMounts(2)

	assert.Equal(t, engine.StatusNotReady, eng.Mount(ctx))
	assert.Equal(t, engine.StatusNotReady, eng.Mount(ctx))
	assert.Equal(t, engine.StatusOK, eng.Mount(ctx))
}

func TestWriteProtection(t *testing.T) {
	ctx := context.Background()
	eng := memory.New(memory.DefaultConfig())
	require.Equal(t, engine.StatusOK, eng.Mount(ctx))

	f, status := eng.Open(ctx, "/later.txt",
		engine.OpenWrite|engine.OpenCreateAlways)
	require.Equal(t, engine.StatusOK, status)

	eng.SetWriteProtected(true)

	_, wstatus := f.Write([]byte("x"))
	assert.Equal(t, engine.StatusWriteProtected, wstatus)
	require.Equal(t, engine.StatusOK, f.Close())

	_, status = eng.Open(ctx, "/blocked.txt",
		engine.OpenWrite|engine.OpenCreateAlways)
	assert.Equal(t, engine.StatusWriteProtected, status)

	assert.Equal(t, engine.StatusWriteProtected, eng.Mkdir(ctx, "/blocked"))
}

func TestWriteLimitTruncates(t *testing.T) {
	ctx := context.Background()
	eng := memory.New(memory.DefaultConfig())
	require.Equal(t, engine.StatusOK, eng.Mount(ctx))

	eng.SetWriteLimit(3)

	f, status := eng.Open(ctx, "/short.txt",
		engine.OpenWrite|engine.OpenCreateAlways)
	require.Equal(t, engine.StatusOK, status)

	n, wstatus := f.Write([]byte("abcdef"))
	assert.Equal(t, engine.StatusOK, wstatus, "short writes report success")
	assert.Equal(t, 3, n)
	require.Equal(t, engine.StatusOK, f.Close())
}

func TestVolumeFull(t *testing.T) {
	ctx := context.Background()
	eng := memory.New(memory.Config{
		TotalClusters:     2,
		SectorsPerCluster: 1,
		SectorSize:        512,
		Kind:              engine.KindFAT12,
	})
	require.Equal(t, engine.StatusOK, eng.Mount(ctx))

	f, status := eng.Open(ctx, "/fill.bin",
		engine.OpenWrite|engine.OpenCreateAlways)
	require.Equal(t, engine.StatusOK, status)

	n, wstatus := f.Write(make([]byte, 1024))
	require.Equal(t, engine.StatusOK, wstatus)
	require.Equal(t, 1024, n)

	_, wstatus = f.Write([]byte("overflow"))
	assert.Equal(t, engine.StatusNoSpace, wstatus)
	require.Equal(t, engine.StatusOK, f.Close())

	assert.Equal(t, engine.StatusNoSpace, eng.Mkdir(ctx, "/nodice"))

	free, status := eng.FreeSpace(ctx)
	require.Equal(t, engine.StatusOK, status)
	assert.Zero(t, free.FreeClusters)
}

func TestUnmountKeepsContents(t *testing.T) {
	ctx := context.Background()
	eng := memory.New(memory.DefaultConfig())
	require.Equal(t, engine.StatusOK, eng.Mount(ctx))

	f, status := eng.Open(ctx, "/persist.txt",
		engine.OpenWrite|engine.OpenCreateAlways)
	require.Equal(t, engine.StatusOK, status)
	_, wstatus := f.Write([]byte("still here"))
	require.Equal(t, engine.StatusOK, wstatus)
	require.Equal(t, engine.StatusOK, f.Close())

	require.Equal(t, engine.StatusOK, eng.Unmount(ctx))
	require.Equal(t, engine.StatusOK, eng.Mount(ctx))

	info, status := eng.Stat(ctx, "/persist.txt")
	require.Equal(t, engine.StatusOK, status)
	assert.Equal(t, uint64(10), info.Size)
}
