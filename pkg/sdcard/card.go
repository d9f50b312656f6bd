// Package sdcard is the client layer for file and directory operations on a
// removable card formatted with a FAT-family filesystem.
//
// A Card owns the mount state and the bus lifetime and exposes whole-file
// and directory operations; Handle gives positioned, incremental I/O on one
// open file. The on-disk work is delegated to an engine.Engine; the bus
// bring-up to a transport.Transport. Every fallible operation reports
// through the Result carrier.
//
// The layer is single-threaded by design: operations block until the engine
// completes and there is no internal locking. Callers needing concurrent
// access must serialize the Card and all of its live Handles behind one
// mutual-exclusion boundary.
package sdcard

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/cardkit/cardfs/pkg/engine"
	"github.com/cardkit/cardfs/pkg/transport"
)

// Options tunes a Card session.
type Options struct {
	// Bus is the serial bus configuration handed to the transport.
	Bus transport.BusConfig

	// MountAttempts bounds the mount retry loop in Initialize. Some media
	// need settling time after power-up, so a failed mount is retried
	// after a bus reset. Zero means DefaultMountAttempts.
	MountAttempts int

	// MountRetryDelay is the pause between mount attempts. Zero means
	// DefaultMountRetryDelay.
	MountRetryDelay time.Duration

	// SettleDelay is the pause between bus bring-up and the first mount
	// attempt. Zero means DefaultSettleDelay.
	SettleDelay time.Duration

	// SectorSize is the assumed sector size of the medium, used for
	// capacity arithmetic. Zero means DefaultSectorSize.
	SectorSize uint32

	// Logger receives session lifecycle events. Nil means slog.Default.
	Logger *slog.Logger
}

// Defaults for Options fields left zero.
const (
	DefaultMountAttempts   = 5
	DefaultMountRetryDelay = 10 * time.Millisecond
	DefaultSettleDelay     = 100 * time.Millisecond
	DefaultSectorSize      = 512
)

// CapacityInfo reports the card's total and free capacity in bytes.
type CapacityInfo struct {
	TotalBytes uint64
	FreeBytes  uint64
}

// String renders the capacity in human-readable units.
func (ci CapacityInfo) String() string {
	return fmt.Sprintf("%s free of %s",
		humanize.IBytes(ci.FreeBytes), humanize.IBytes(ci.TotalBytes))
}

// Card is one filesystem session on a removable card.
//
// A Card starts unmounted; Initialize brings the bus up and mounts the
// volume, and Close tears both down again. Close runs at most once
// effectively and must be called when the session is no longer needed,
// conventionally via defer. All Handles opened through the Card must be
// closed before the Card itself.
type Card struct {
	opts Options
	eng  engine.Engine
	bus  transport.Transport
	log  *slog.Logger

	mounted    bool
	busUp      bool
	fsKind     engine.FilesystemKind
	currentDir string
}

// New returns an unmounted Card driving eng over bus.
func New(eng engine.Engine, bus transport.Transport, opts Options) *Card {
	if opts.MountAttempts <= 0 {
		opts.MountAttempts = DefaultMountAttempts
	}
	if opts.MountRetryDelay <= 0 {
		opts.MountRetryDelay = DefaultMountRetryDelay
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.SectorSize == 0 {
		opts.SectorSize = DefaultSectorSize
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Card{
		opts:       opts,
		eng:        eng,
		bus:        bus,
		log:        log,
		currentDir: "/",
	}
}

// Initialize brings up the bus and mounts the filesystem.
//
// Mounting is retried up to Options.MountAttempts times with a bus reset and
// a short delay between attempts. On an already mounted Card this is a
// no-op success. If every attempt fails, any bring-up performed is fully
// reversed and the Card is left unmounted.
func (c *Card) Initialize(ctx context.Context) Result[Unit] {
	if c.mounted {
		return OkUnit()
	}

	if err := c.bus.Init(c.opts.Bus); err != nil {
		return Fail[Unit](KindInitFailed, "bus initialization failed: "+err.Error())
	}
	c.busUp = true

	// Some cards are not ready to be probed right after power-up.
	time.Sleep(c.opts.SettleDelay)

	var status engine.Status
	for attempt := 1; attempt <= c.opts.MountAttempts; attempt++ {
		status = c.eng.Mount(ctx)
		if status == engine.StatusOK {
			c.mounted = true
			c.fsKind = c.eng.Kind()
			c.currentDir = "/"
			c.log.Debug("card mounted",
				"attempt", attempt,
				"filesystem", c.fsKind.String(),
			)
			return OkUnit()
		}

		c.log.Debug("mount attempt failed",
			"attempt", attempt,
			"status", status.String(),
		)
		c.bus.Reset()
		time.Sleep(c.opts.MountRetryDelay)
	}

	c.bus.Deinit()
	c.busUp = false

	return Fail[Unit](KindMountFailed, fmt.Sprintf(
		"mount failed after %d attempts, last status %s",
		c.opts.MountAttempts, status))
}

// Close unmounts the filesystem and releases the bus. It is idempotent and
// safe to call on a Card whose Initialize never succeeded.
func (c *Card) Close() {
	if c.mounted {
		if status := c.eng.Unmount(context.Background()); status != engine.StatusOK {
			c.log.Warn("unmount reported failure", "status", status.String())
		}
		c.mounted = false
	}
	if c.busUp {
		c.bus.Deinit()
		c.busUp = false
	}
}

// IsMounted reports whether the card is currently mounted.
func (c *Card) IsMounted() bool { return c.mounted }

// FilesystemType returns the display name of the detected filesystem
// variant, or "unmounted" while no volume is mounted.
func (c *Card) FilesystemType() string {
	if !c.mounted {
		return "unmounted"
	}
	return c.fsKind.String()
}

// notMounted is the uniform failure for operations requiring a mount.
func notMounted[T any]() Result[T] {
	return Fail[T](KindMountFailed, "card not mounted")
}

// Capacity computes the card's total and free capacity from the engine's
// cluster geometry.
//
// The two reserved entries at the head of the allocation table never map to
// data clusters, hence the -2 on the total entry count. Sizes are computed
// at the fixed sector size the session was configured with.
func (c *Card) Capacity(ctx context.Context) Result[CapacityInfo] {
	if !c.mounted {
		return notMounted[CapacityInfo]()
	}

	free, status := c.eng.FreeSpace(ctx)
	if status != engine.StatusOK {
		return FailErr[CapacityInfo](statusError(status, "free space query failed", ""))
	}

	clusterBytes := uint64(free.SectorsPerCluster) * uint64(c.opts.SectorSize)

	return Ok(CapacityInfo{
		TotalBytes: (free.TotalEntries - 2) * clusterBytes,
		FreeBytes:  free.FreeClusters * clusterBytes,
	})
}

// OpenDirectory makes path the session's current directory. The directory
// must exist; on success subsequent ListDirectory("") calls target it.
func (c *Card) OpenDirectory(ctx context.Context, path string) Result[Unit] {
	if !c.mounted {
		return notMounted[Unit]()
	}

	normalized := NormalizePath(path)

	dir, status := c.eng.OpenDir(ctx, normalized)
	if status != engine.StatusOK {
		return FailErr[Unit](statusError(status, "open directory failed", normalized))
	}
	dir.Close()

	c.currentDir = normalized
	return OkUnit()
}

// CurrentDirectory returns the session's current directory path.
func (c *Card) CurrentDirectory() string { return c.currentDir }

// ListDirectory enumerates the directory at path, or the current directory
// when path is empty.
//
// The synthetic self and parent entries and any name beginning with a dot
// are skipped. Entries come back directories first, then lexicographically
// by name within each group, so listings are stable for interactive
// browsing and for tests.
func (c *Card) ListDirectory(ctx context.Context, path string) Result[[]FileEntry] {
	if !c.mounted {
		return notMounted[[]FileEntry]()
	}

	target := c.currentDir
	if path != "" {
		target = NormalizePath(path)
	}

	dir, status := c.eng.OpenDir(ctx, target)
	if status != engine.StatusOK {
		return FailErr[[]FileEntry](statusError(status, "open directory failed", target))
	}
	defer dir.Close()

	entries := []FileEntry{}
	for {
		info, status := dir.Read()
		if status != engine.StatusOK {
			return FailErr[[]FileEntry](statusError(status, "read directory failed", target))
		}
		if info == nil {
			break
		}
		if strings.HasPrefix(info.Name, ".") {
			continue
		}

		entries = append(entries, newFileEntry(info, JoinPath(target, info.Name)))
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDirectory != entries[j].IsDirectory {
			return entries[i].IsDirectory
		}
		return entries[i].Name < entries[j].Name
	})

	return Ok(entries)
}

// CreateDirectory creates a directory at path. The parent must exist.
func (c *Card) CreateDirectory(ctx context.Context, path string) Result[Unit] {
	if !c.mounted {
		return notMounted[Unit]()
	}

	normalized := NormalizePath(path)
	if status := c.eng.Mkdir(ctx, normalized); status != engine.StatusOK {
		return FailErr[Unit](statusError(status, "create directory failed", normalized))
	}

	return OkUnit()
}

// RemoveDirectory removes the directory at path. The engine refuses to
// remove a non-empty directory.
func (c *Card) RemoveDirectory(ctx context.Context, path string) Result[Unit] {
	if !c.mounted {
		return notMounted[Unit]()
	}

	normalized := NormalizePath(path)
	if status := c.eng.Unlink(ctx, normalized); status != engine.StatusOK {
		return FailErr[Unit](statusError(status, "remove directory failed", normalized))
	}

	return OkUnit()
}

// FileExists reports whether an entry exists at path.
//
// Any stat failure reports false, including failures that are not "does not
// exist" (for instance a transient I/O fault). Callers that must tell those
// apart should use GetFileInfo instead.
func (c *Card) FileExists(ctx context.Context, path string) bool {
	if !c.mounted {
		return false
	}

	_, status := c.eng.Stat(ctx, NormalizePath(path))
	return status == engine.StatusOK
}

// GetFileInfo stats path and returns its directory entry.
func (c *Card) GetFileInfo(ctx context.Context, path string) Result[FileEntry] {
	if !c.mounted {
		return notMounted[FileEntry]()
	}

	normalized := NormalizePath(path)
	info, status := c.eng.Stat(ctx, normalized)
	if status != engine.StatusOK {
		return FailErr[FileEntry](statusError(status, "stat failed", normalized))
	}

	return Ok(newFileEntry(info, normalized))
}

// ReadFile reads the whole file at path into memory.
//
// The buffer is sized from the engine's size query and truncated to the
// bytes actually read, so an engine returning fewer bytes without error is
// handled gracefully.
func (c *Card) ReadFile(ctx context.Context, path string) Result[[]byte] {
	if !c.mounted {
		return notMounted[[]byte]()
	}

	normalized := NormalizePath(path)
	file, status := c.eng.Open(ctx, normalized, engine.OpenRead)
	if status != engine.StatusOK {
		return FailErr[[]byte](statusError(status, "open file failed", normalized))
	}

	buf := make([]byte, file.Size())
	n, status := file.Read(buf)
	file.Close()

	if status != engine.StatusOK {
		return FailErr[[]byte](statusError(status, "read file failed", normalized))
	}

	return Ok(buf[:n])
}

// ReadFileChunk reads up to size bytes of the file at path, starting at
// offset. The returned buffer is truncated to the bytes actually read.
func (c *Card) ReadFileChunk(ctx context.Context, path string, offset, size uint64) Result[[]byte] {
	if !c.mounted {
		return notMounted[[]byte]()
	}

	normalized := NormalizePath(path)
	file, status := c.eng.Open(ctx, normalized, engine.OpenRead)
	if status != engine.StatusOK {
		return FailErr[[]byte](statusError(status, "open file failed", normalized))
	}

	if status := file.Seek(offset); status != engine.StatusOK {
		file.Close()
		return FailErr[[]byte](statusError(status, "seek failed", normalized))
	}

	buf := make([]byte, size)
	n, status := file.Read(buf)
	file.Close()

	if status != engine.StatusOK {
		return FailErr[[]byte](statusError(status, "read file failed", normalized))
	}

	return Ok(buf[:n])
}

// WriteFile writes data to the file at path, creating or truncating it, or
// appending to it when append is true.
//
// A short write acknowledged by the engine is escalated to KindIoError even
// though the engine call itself succeeded; a partial whole-file write is
// never treated as success.
func (c *Card) WriteFile(ctx context.Context, path string, data []byte, append bool) Result[Unit] {
	if !c.mounted {
		return notMounted[Unit]()
	}

	normalized := NormalizePath(path)

	flags := engine.OpenWrite | engine.OpenCreateAlways
	if append {
		flags = engine.OpenWrite | engine.OpenAlways
	}

	file, status := c.eng.Open(ctx, normalized, flags)
	if status != engine.StatusOK {
		return FailErr[Unit](statusError(status, "open file failed", normalized))
	}

	if append {
		if status := file.Seek(file.Size()); status != engine.StatusOK {
			file.Close()
			return FailErr[Unit](statusError(status, "seek to end failed", normalized))
		}
	}

	n, status := file.Write(data)
	file.Close()

	if status != engine.StatusOK {
		return FailErr[Unit](statusError(status, "write file failed", normalized))
	}
	if n != len(data) {
		return FailErr[Unit](&CardError{
			Kind:    KindIoError,
			Message: fmt.Sprintf("short write: %d of %d bytes", n, len(data)),
			Path:    normalized,
		})
	}

	return OkUnit()
}

// WriteTextFile writes content as raw bytes to the file at path.
func (c *Card) WriteTextFile(ctx context.Context, path, content string, append bool) Result[Unit] {
	return c.WriteFile(ctx, path, []byte(content), append)
}

// DeleteFile removes the file at path.
func (c *Card) DeleteFile(ctx context.Context, path string) Result[Unit] {
	if !c.mounted {
		return notMounted[Unit]()
	}

	normalized := NormalizePath(path)
	if status := c.eng.Unlink(ctx, normalized); status != engine.StatusOK {
		return FailErr[Unit](statusError(status, "delete file failed", normalized))
	}

	return OkUnit()
}

// Rename moves the entry at oldPath to newPath.
func (c *Card) Rename(ctx context.Context, oldPath, newPath string) Result[Unit] {
	if !c.mounted {
		return notMounted[Unit]()
	}

	oldNorm := NormalizePath(oldPath)
	newNorm := NormalizePath(newPath)

	if status := c.eng.Rename(ctx, oldNorm, newNorm); status != engine.StatusOK {
		return FailErr[Unit](statusError(status,
			"rename failed: "+oldNorm+" -> "+newNorm, ""))
	}

	return OkUnit()
}

// CopyFile copies the file at srcPath to dstPath.
//
// The copy is composed from ReadFile and WriteFile and is not transactional:
// if the write phase fails after a successful read, a zero-length or partial
// destination file may be left behind.
func (c *Card) CopyFile(ctx context.Context, srcPath, dstPath string) Result[Unit] {
	data := c.ReadFile(ctx, srcPath)
	if data.IsError() {
		return Fail[Unit](data.Kind(), "copy failed reading source: "+data.Message())
	}

	written := c.WriteFile(ctx, dstPath, data.Value(), false)
	if written.IsError() {
		return Fail[Unit](written.Kind(), "copy failed writing destination: "+written.Message())
	}

	return OkUnit()
}

// Sync flushes all pending writes on the volume to the medium.
func (c *Card) Sync(ctx context.Context) Result[Unit] {
	if !c.mounted {
		return notMounted[Unit]()
	}

	if status := c.eng.Sync(ctx); status != engine.StatusOK {
		return FailErr[Unit](statusError(status, "sync failed", ""))
	}

	return OkUnit()
}

// Format destructively recreates the filesystem on the card.
//
// The session must already be mounted; the mount is only used to validate
// session state before the engine's make-filesystem primitive runs with a
// single allocation table, automatic cluster sizing and 512 root entries.
// Unrecognized kind strings default to exFAT, the most capacious variant.
func (c *Card) Format(ctx context.Context, filesystemKind string) Result[Unit] {
	if !c.mounted {
		return notMounted[Unit]()
	}

	var kind engine.FilesystemKind
	switch strings.ToUpper(filesystemKind) {
	case "FAT12":
		kind = engine.KindFAT12
	case "FAT16":
		kind = engine.KindFAT16
	case "FAT32":
		kind = engine.KindFAT32
	case "EXFAT":
		kind = engine.KindExFAT
	default:
		kind = engine.KindExFAT
	}

	c.log.Info("formatting card", "filesystem", kind.String())

	opts := engine.FormatOptions{
		Kind:        kind,
		FATCount:    1,
		RootEntries: 512,
		ClusterSize: 0,
	}
	if status := c.eng.MakeFilesystem(ctx, opts); status != engine.StatusOK {
		return FailErr[Unit](statusError(status, "format failed", ""))
	}

	return OkUnit()
}
