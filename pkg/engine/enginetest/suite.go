// Package enginetest provides a conformance suite that every
// engine.Engine implementation must pass. Backend packages run it from
// their own tests with a factory for a fresh, unmounted engine:
//
//	func TestEngineConformance(t *testing.T) {
//		suite := &enginetest.Suite{
//			NewEngine: func(t *testing.T) engine.Engine {
//				return memory.New(memory.DefaultConfig())
//			},
//		}
//		suite.Run(t)
//	}
package enginetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardkit/cardfs/pkg/engine"
)

// Suite exercises the engine.Engine contract against a backend.
type Suite struct {
	// NewEngine returns a fresh, unmounted engine on an empty volume.
	NewEngine func(t *testing.T) engine.Engine
}

// Run executes all conformance tests as subtests.
func (s *Suite) Run(t *testing.T) {
	t.Run("Mount", s.testMount)
	t.Run("MountGating", s.testMountGating)
	t.Run("OpenFlags", s.testOpenFlags)
	t.Run("FileIO", s.testFileIO)
	t.Run("SeekTellSize", s.testSeekTellSize)
	t.Run("ClosedFile", s.testClosedFile)
	t.Run("Stat", s.testStat)
	t.Run("Directories", s.testDirectories)
	t.Run("Unlink", s.testUnlink)
	t.Run("Rename", s.testRename)
	t.Run("FreeSpace", s.testFreeSpace)
	t.Run("MakeFilesystem", s.testMakeFilesystem)
}

// mounted returns a freshly mounted engine.
func (s *Suite) mounted(t *testing.T) engine.Engine {
	t.Helper()

	eng := s.NewEngine(t)
	require.Equal(t, engine.StatusOK, eng.Mount(context.Background()))
	t.Cleanup(func() { eng.Unmount(context.Background()) })
	return eng
}

// writeFile creates path with the given content.
func writeFile(t *testing.T, eng engine.Engine, path string, content []byte) {
	t.Helper()

	f, status := eng.Open(context.Background(), path,
		engine.OpenWrite|engine.OpenCreateAlways)
	require.Equal(t, engine.StatusOK, status)

	n, status := f.Write(content)
	require.Equal(t, engine.StatusOK, status)
	require.Equal(t, len(content), n)
	require.Equal(t, engine.StatusOK, f.Close())
}

// readFile returns the full content of path.
func readFile(t *testing.T, eng engine.Engine, path string) []byte {
	t.Helper()

	f, status := eng.Open(context.Background(), path, engine.OpenRead)
	require.Equal(t, engine.StatusOK, status)
	defer f.Close()

	buf := make([]byte, f.Size())
	n, status := f.Read(buf)
	require.Equal(t, engine.StatusOK, status)
	return buf[:n]
}

func (s *Suite) testMount(t *testing.T) {
	ctx := context.Background()
	eng := s.NewEngine(t)

	require.Equal(t, engine.StatusOK, eng.Mount(ctx))
	assert.Equal(t, engine.StatusOK, eng.Mount(ctx), "mount should be idempotent")
	assert.NotEqual(t, engine.KindUnknown, eng.Kind())

	require.Equal(t, engine.StatusOK, eng.Unmount(ctx))
	assert.Equal(t, engine.StatusOK, eng.Unmount(ctx), "unmount should be idempotent")

	require.Equal(t, engine.StatusOK, eng.Mount(ctx), "remount after unmount")
	require.Equal(t, engine.StatusOK, eng.Unmount(ctx))
}

func (s *Suite) testMountGating(t *testing.T) {
	ctx := context.Background()
	eng := s.NewEngine(t)

	_, status := eng.Open(ctx, "/f", engine.OpenRead)
	assert.Equal(t, engine.StatusNotReady, status)

	_, status = eng.Stat(ctx, "/f")
	assert.Equal(t, engine.StatusNotReady, status)

	_, status = eng.OpenDir(ctx, "/")
	assert.Equal(t, engine.StatusNotReady, status)

	assert.Equal(t, engine.StatusNotReady, eng.Mkdir(ctx, "/d"))
	assert.Equal(t, engine.StatusNotReady, eng.Unlink(ctx, "/f"))
	assert.Equal(t, engine.StatusNotReady, eng.Rename(ctx, "/f", "/g"))

	_, status = eng.FreeSpace(ctx)
	assert.Equal(t, engine.StatusNotReady, status)

	assert.Equal(t, engine.StatusNotReady, eng.MakeFilesystem(ctx, engine.FormatOptions{}))
	assert.Equal(t, engine.StatusNotReady, eng.Sync(ctx))
}

func (s *Suite) testOpenFlags(t *testing.T) {
	ctx := context.Background()
	eng := s.mounted(t)

	t.Run("read missing file", func(t *testing.T) {
		_, status := eng.Open(ctx, "/missing.txt", engine.OpenRead)
		assert.Equal(t, engine.StatusNoFile, status)
	})

	t.Run("missing parent directory", func(t *testing.T) {
		_, status := eng.Open(ctx, "/nodir/f.txt",
			engine.OpenWrite|engine.OpenCreateAlways)
		assert.Equal(t, engine.StatusNoPath, status)
	})

	t.Run("create new", func(t *testing.T) {
		f, status := eng.Open(ctx, "/new.txt",
			engine.OpenWrite|engine.OpenCreateNew)
		require.Equal(t, engine.StatusOK, status)
		require.Equal(t, engine.StatusOK, f.Close())

		_, status = eng.Open(ctx, "/new.txt",
			engine.OpenWrite|engine.OpenCreateNew)
		assert.Equal(t, engine.StatusExists, status,
			"create-new must refuse an existing file")
	})

	t.Run("create always truncates", func(t *testing.T) {
		writeFile(t, eng, "/trunc.txt", []byte("old content"))

		f, status := eng.Open(ctx, "/trunc.txt",
			engine.OpenWrite|engine.OpenCreateAlways)
		require.Equal(t, engine.StatusOK, status)
		assert.Equal(t, uint64(0), f.Size())
		require.Equal(t, engine.StatusOK, f.Close())
	})

	t.Run("open always preserves content", func(t *testing.T) {
		writeFile(t, eng, "/keep.txt", []byte("kept"))

		f, status := eng.Open(ctx, "/keep.txt",
			engine.OpenRead|engine.OpenWrite|engine.OpenAlways)
		require.Equal(t, engine.StatusOK, status)
		assert.Equal(t, uint64(4), f.Size())
		require.Equal(t, engine.StatusOK, f.Close())
	})

	t.Run("open a directory", func(t *testing.T) {
		require.Equal(t, engine.StatusOK, eng.Mkdir(ctx, "/adir"))

		_, status := eng.Open(ctx, "/adir", engine.OpenRead)
		assert.Equal(t, engine.StatusDenied, status)
	})
}

func (s *Suite) testFileIO(t *testing.T) {
	eng := s.mounted(t)

	content := []byte("the quick brown fox jumps over the lazy dog")
	writeFile(t, eng, "/fox.txt", content)
	assert.Equal(t, content, readFile(t, eng, "/fox.txt"))

	t.Run("read at end of file", func(t *testing.T) {
		f, status := eng.Open(context.Background(), "/fox.txt", engine.OpenRead)
		require.Equal(t, engine.StatusOK, status)
		defer f.Close()

		require.Equal(t, engine.StatusOK, f.Seek(f.Size()))
		n, status := f.Read(make([]byte, 16))
		assert.Equal(t, engine.StatusOK, status)
		assert.Zero(t, n, "end of file reads zero bytes without error")
	})

	t.Run("partial read", func(t *testing.T) {
		f, status := eng.Open(context.Background(), "/fox.txt", engine.OpenRead)
		require.Equal(t, engine.StatusOK, status)
		defer f.Close()

		buf := make([]byte, 9)
		n, status := f.Read(buf)
		require.Equal(t, engine.StatusOK, status)
		assert.Equal(t, 9, n)
		assert.Equal(t, []byte("the quick"), buf)
		assert.Equal(t, uint64(9), f.Tell())
	})

	t.Run("overwrite middle", func(t *testing.T) {
		writeFile(t, eng, "/mid.txt", []byte("aaaaaa"))

		f, status := eng.Open(context.Background(), "/mid.txt",
			engine.OpenRead|engine.OpenWrite|engine.OpenAlways)
		require.Equal(t, engine.StatusOK, status)
		require.Equal(t, engine.StatusOK, f.Seek(2))

		n, status := f.Write([]byte("bb"))
		require.Equal(t, engine.StatusOK, status)
		require.Equal(t, 2, n)
		require.Equal(t, engine.StatusOK, f.Close())

		assert.Equal(t, []byte("aabbaa"), readFile(t, eng, "/mid.txt"))
	})
}

func (s *Suite) testSeekTellSize(t *testing.T) {
	eng := s.mounted(t)
	writeFile(t, eng, "/seek.txt", []byte("0123456789"))

	t.Run("seek and tell", func(t *testing.T) {
		f, status := eng.Open(context.Background(), "/seek.txt", engine.OpenRead)
		require.Equal(t, engine.StatusOK, status)
		defer f.Close()

		assert.Equal(t, uint64(0), f.Tell())
		assert.Equal(t, uint64(10), f.Size())

		require.Equal(t, engine.StatusOK, f.Seek(5))
		assert.Equal(t, uint64(5), f.Tell())

		buf := make([]byte, 5)
		n, status := f.Read(buf)
		require.Equal(t, engine.StatusOK, status)
		assert.Equal(t, 5, n)
		assert.Equal(t, []byte("56789"), buf)
	})

	t.Run("seek past end read-only clamps", func(t *testing.T) {
		f, status := eng.Open(context.Background(), "/seek.txt", engine.OpenRead)
		require.Equal(t, engine.StatusOK, status)
		defer f.Close()

		require.Equal(t, engine.StatusOK, f.Seek(100))
		assert.Equal(t, uint64(10), f.Tell())
	})

	t.Run("seek past end writable extends", func(t *testing.T) {
		f, status := eng.Open(context.Background(), "/extend.txt",
			engine.OpenRead|engine.OpenWrite|engine.OpenCreateAlways)
		require.Equal(t, engine.StatusOK, status)
		defer f.Close()

		require.Equal(t, engine.StatusOK, f.Seek(4))
		assert.Equal(t, uint64(4), f.Tell())
		assert.Equal(t, uint64(4), f.Size())
	})
}

func (s *Suite) testClosedFile(t *testing.T) {
	eng := s.mounted(t)

	f, status := eng.Open(context.Background(), "/closed.txt",
		engine.OpenRead|engine.OpenWrite|engine.OpenCreateAlways)
	require.Equal(t, engine.StatusOK, status)
	require.Equal(t, engine.StatusOK, f.Close())

	assert.Equal(t, engine.StatusInvalidObject, f.Close(), "double close")

	_, status = f.Read(make([]byte, 1))
	assert.Equal(t, engine.StatusInvalidObject, status)

	_, status = f.Write([]byte("x"))
	assert.Equal(t, engine.StatusInvalidObject, status)

	assert.Equal(t, engine.StatusInvalidObject, f.Seek(0))
	assert.Equal(t, engine.StatusInvalidObject, f.Sync())
}

func (s *Suite) testStat(t *testing.T) {
	ctx := context.Background()
	eng := s.mounted(t)

	writeFile(t, eng, "/stat.txt", []byte("hello"))
	require.Equal(t, engine.StatusOK, eng.Mkdir(ctx, "/statdir"))

	t.Run("file", func(t *testing.T) {
		info, status := eng.Stat(ctx, "/stat.txt")
		require.Equal(t, engine.StatusOK, status)
		assert.Equal(t, "stat.txt", info.Name)
		assert.Equal(t, uint64(5), info.Size)
		assert.False(t, info.Attr.IsDirectory())
	})

	t.Run("directory", func(t *testing.T) {
		info, status := eng.Stat(ctx, "/statdir")
		require.Equal(t, engine.StatusOK, status)
		assert.Equal(t, "statdir", info.Name)
		assert.True(t, info.Attr.IsDirectory())
	})

	t.Run("root", func(t *testing.T) {
		_, status := eng.Stat(ctx, "/")
		assert.Equal(t, engine.StatusInvalidName, status)
	})

	t.Run("missing", func(t *testing.T) {
		_, status := eng.Stat(ctx, "/nope")
		assert.Equal(t, engine.StatusNoFile, status)
	})

	t.Run("missing parent", func(t *testing.T) {
		_, status := eng.Stat(ctx, "/nope/deeper")
		assert.Equal(t, engine.StatusNoPath, status)
	})
}

// listNames drains a directory iterator.
func listNames(t *testing.T, eng engine.Engine, path string) []string {
	t.Helper()

	dir, status := eng.OpenDir(context.Background(), path)
	require.Equal(t, engine.StatusOK, status)
	defer dir.Close()

	var names []string
	for {
		entry, status := dir.Read()
		require.Equal(t, engine.StatusOK, status)
		if entry == nil {
			return names
		}
		names = append(names, entry.Name)
	}
}

func (s *Suite) testDirectories(t *testing.T) {
	ctx := context.Background()
	eng := s.mounted(t)

	require.Equal(t, engine.StatusOK, eng.Mkdir(ctx, "/docs"))
	require.Equal(t, engine.StatusOK, eng.Mkdir(ctx, "/docs/sub"))
	writeFile(t, eng, "/docs/readme.md", []byte("# docs"))

	t.Run("existing directory", func(t *testing.T) {
		assert.Equal(t, engine.StatusExists, eng.Mkdir(ctx, "/docs"))
	})

	t.Run("missing parent", func(t *testing.T) {
		assert.Equal(t, engine.StatusNoPath, eng.Mkdir(ctx, "/ghost/sub"))
	})

	t.Run("subdirectory has dot entries", func(t *testing.T) {
		names := listNames(t, eng, "/docs")
		assert.Contains(t, names, ".")
		assert.Contains(t, names, "..")
		assert.Contains(t, names, "sub")
		assert.Contains(t, names, "readme.md")
	})

	t.Run("root has no dot entries", func(t *testing.T) {
		names := listNames(t, eng, "/")
		assert.NotContains(t, names, ".")
		assert.NotContains(t, names, "..")
		assert.Contains(t, names, "docs")
	})

	t.Run("iterator end is not an error", func(t *testing.T) {
		dir, status := eng.OpenDir(ctx, "/docs/sub")
		require.Equal(t, engine.StatusOK, status)
		defer dir.Close()

		seen := 0
		for {
			entry, status := dir.Read()
			require.Equal(t, engine.StatusOK, status)
			if entry == nil {
				break
			}
			seen++
		}
		assert.Equal(t, 2, seen, "empty subdirectory holds only dot entries")

		entry, status := dir.Read()
		assert.Equal(t, engine.StatusOK, status)
		assert.Nil(t, entry, "reads past the end keep returning nil")
	})

	t.Run("open missing directory", func(t *testing.T) {
		_, status := eng.OpenDir(ctx, "/ghost")
		assert.Equal(t, engine.StatusNoPath, status)
	})

	t.Run("open a file as directory", func(t *testing.T) {
		_, status := eng.OpenDir(ctx, "/docs/readme.md")
		assert.Equal(t, engine.StatusNoPath, status)
	})
}

func (s *Suite) testUnlink(t *testing.T) {
	ctx := context.Background()
	eng := s.mounted(t)

	writeFile(t, eng, "/gone.txt", []byte("bye"))
	require.Equal(t, engine.StatusOK, eng.Unlink(ctx, "/gone.txt"))

	_, status := eng.Stat(ctx, "/gone.txt")
	assert.Equal(t, engine.StatusNoFile, status)

	t.Run("missing file", func(t *testing.T) {
		assert.Equal(t, engine.StatusNoFile, eng.Unlink(ctx, "/never"))
	})

	t.Run("non-empty directory", func(t *testing.T) {
		require.Equal(t, engine.StatusOK, eng.Mkdir(ctx, "/full"))
		writeFile(t, eng, "/full/f.txt", []byte("x"))

		assert.Equal(t, engine.StatusDenied, eng.Unlink(ctx, "/full"))
	})

	t.Run("empty directory", func(t *testing.T) {
		require.Equal(t, engine.StatusOK, eng.Mkdir(ctx, "/empty"))
		require.Equal(t, engine.StatusOK, eng.Unlink(ctx, "/empty"))

		_, status := eng.OpenDir(ctx, "/empty")
		assert.Equal(t, engine.StatusNoPath, status)
	})
}

func (s *Suite) testRename(t *testing.T) {
	ctx := context.Background()
	eng := s.mounted(t)

	writeFile(t, eng, "/old.txt", []byte("payload"))
	require.Equal(t, engine.StatusOK, eng.Rename(ctx, "/old.txt", "/new.txt"))

	_, status := eng.Stat(ctx, "/old.txt")
	assert.Equal(t, engine.StatusNoFile, status)
	assert.Equal(t, []byte("payload"), readFile(t, eng, "/new.txt"))

	t.Run("missing source", func(t *testing.T) {
		assert.Equal(t, engine.StatusNoFile, eng.Rename(ctx, "/ghost", "/dst"))
	})

	t.Run("existing target", func(t *testing.T) {
		writeFile(t, eng, "/occupied.txt", []byte("here"))
		assert.Equal(t, engine.StatusExists,
			eng.Rename(ctx, "/new.txt", "/occupied.txt"))
	})

	t.Run("directory moves its subtree", func(t *testing.T) {
		require.Equal(t, engine.StatusOK, eng.Mkdir(ctx, "/src"))
		require.Equal(t, engine.StatusOK, eng.Mkdir(ctx, "/src/inner"))
		writeFile(t, eng, "/src/inner/deep.txt", []byte("deep"))

		require.Equal(t, engine.StatusOK, eng.Rename(ctx, "/src", "/dst"))

		assert.Equal(t, []byte("deep"), readFile(t, eng, "/dst/inner/deep.txt"))
		_, status := eng.OpenDir(ctx, "/src")
		assert.Equal(t, engine.StatusNoPath, status)
	})
}

func (s *Suite) testFreeSpace(t *testing.T) {
	ctx := context.Background()
	eng := s.mounted(t)

	before, status := eng.FreeSpace(ctx)
	require.Equal(t, engine.StatusOK, status)
	require.NotZero(t, before.FreeClusters)
	require.NotZero(t, before.SectorsPerCluster)
	assert.Greater(t, before.TotalEntries, uint64(2),
		"entry count includes the two reserved FAT entries")

	clusterBytes := uint64(before.SectorsPerCluster) * 512
	writeFile(t, eng, "/big.bin", make([]byte, 3*clusterBytes))

	after, status := eng.FreeSpace(ctx)
	require.Equal(t, engine.StatusOK, status)
	assert.Equal(t, before.FreeClusters-3, after.FreeClusters)

	require.Equal(t, engine.StatusOK, eng.Unlink(ctx, "/big.bin"))

	restored, status := eng.FreeSpace(ctx)
	require.Equal(t, engine.StatusOK, status)
	assert.Equal(t, before.FreeClusters, restored.FreeClusters,
		"unlink returns the file's clusters")
}

func (s *Suite) testMakeFilesystem(t *testing.T) {
	ctx := context.Background()
	eng := s.mounted(t)

	before, status := eng.FreeSpace(ctx)
	require.Equal(t, engine.StatusOK, status)

	writeFile(t, eng, "/wiped.txt", []byte("soon gone"))
	require.Equal(t, engine.StatusOK, eng.Mkdir(ctx, "/wipeddir"))

	require.Equal(t, engine.StatusOK,
		eng.MakeFilesystem(ctx, engine.FormatOptions{FATCount: 1, RootEntries: 512}))

	assert.Empty(t, listNames(t, eng, "/"), "formatting empties the volume")

	after, status := eng.FreeSpace(ctx)
	require.Equal(t, engine.StatusOK, status)
	assert.Equal(t, before.FreeClusters, after.FreeClusters)
}
