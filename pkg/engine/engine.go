// Package engine defines the contract between the card session layer and an
// underlying FAT filesystem engine.
//
// The session layer (pkg/sdcard) never touches on-disk structures itself: it
// drives an Engine through a narrow operation set and receives a native
// Status code back from every call. Cluster allocation, directory-entry
// mutation and the block-device protocol are entirely the engine's business.
//
// Implementations in this repository (memory, badgerfs) simulate a card on
// the host; an implementation binding a real FatFs port would live out of
// tree behind the same interface.
package engine

import "context"

// Status is the closed set of native result codes an engine reports.
//
// The set is modeled on the FatFs FRESULT vocabulary, with one addition:
// StatusNoSpace reports an exhausted medium explicitly instead of
// overloading StatusDenied. Callers translate Status values at the boundary
// and must tolerate codes they do not recognize.
type Status int

const (
	// StatusOK means the operation succeeded.
	StatusOK Status = iota

	// StatusDiskError indicates a hard failure in the lower storage layer.
	StatusDiskError

	// StatusInternalError indicates an assertion failure inside the engine.
	StatusInternalError

	// StatusNotReady means the medium is not ready or no volume is mounted.
	StatusNotReady

	// StatusNoFile means the file was not found.
	StatusNoFile

	// StatusNoPath means a directory component of the path was not found.
	StatusNoPath

	// StatusInvalidName means the path string is malformed for the volume.
	StatusInvalidName

	// StatusDenied means access was refused (read-only entry, directory
	// in the way, or an operation the entry's attributes forbid).
	StatusDenied

	// StatusExists means the target name already exists.
	StatusExists

	// StatusInvalidObject means a file or directory object is stale or
	// was never opened.
	StatusInvalidObject

	// StatusWriteProtected means the medium is physically write protected.
	StatusWriteProtected

	// StatusNoFilesystem means no valid FAT volume was found on the medium.
	StatusNoFilesystem

	// StatusMkfsAborted means volume creation gave up (geometry too small
	// or parameters unsatisfiable).
	StatusMkfsAborted

	// StatusTimeout means the engine could not get access to the volume
	// within its configured period.
	StatusTimeout

	// StatusLocked means the operation was rejected by file sharing control.
	StatusLocked

	// StatusTooManyOpenFiles means the engine's open-object table is full.
	StatusTooManyOpenFiles

	// StatusInvalidParameter means a caller-supplied parameter is invalid.
	StatusInvalidParameter

	// StatusNoSpace means the medium has no free clusters left.
	StatusNoSpace
)

// String returns the symbolic name of the status code for diagnostics.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusDiskError:
		return "DISK_ERROR"
	case StatusInternalError:
		return "INTERNAL_ERROR"
	case StatusNotReady:
		return "NOT_READY"
	case StatusNoFile:
		return "NO_FILE"
	case StatusNoPath:
		return "NO_PATH"
	case StatusInvalidName:
		return "INVALID_NAME"
	case StatusDenied:
		return "DENIED"
	case StatusExists:
		return "EXISTS"
	case StatusInvalidObject:
		return "INVALID_OBJECT"
	case StatusWriteProtected:
		return "WRITE_PROTECTED"
	case StatusNoFilesystem:
		return "NO_FILESYSTEM"
	case StatusMkfsAborted:
		return "MKFS_ABORTED"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusLocked:
		return "LOCKED"
	case StatusTooManyOpenFiles:
		return "TOO_MANY_OPEN_FILES"
	case StatusInvalidParameter:
		return "INVALID_PARAMETER"
	case StatusNoSpace:
		return "NO_SPACE"
	default:
		return "UNRECOGNIZED"
	}
}

// OpenFlag selects the access and creation disposition for Engine.Open.
// The bit layout follows the FatFs FA_* flags.
type OpenFlag uint8

const (
	// OpenRead grants read access.
	OpenRead OpenFlag = 0x01

	// OpenWrite grants write access.
	OpenWrite OpenFlag = 0x02

	// OpenCreateNew creates the file and fails with StatusExists if it
	// is already present.
	OpenCreateNew OpenFlag = 0x04

	// OpenCreateAlways creates the file, truncating it if present.
	OpenCreateAlways OpenFlag = 0x08

	// OpenAlways opens the file, creating it if absent. The position is
	// left at the start; callers wanting append semantics seek to the end.
	OpenAlways OpenFlag = 0x10
)

// Attr holds the FAT attribute bits of a directory entry.
type Attr uint8

const (
	AttrReadOnly  Attr = 0x01
	AttrHidden    Attr = 0x02
	AttrSystem    Attr = 0x04
	AttrVolumeID  Attr = 0x08
	AttrDirectory Attr = 0x10
	AttrArchive   Attr = 0x20
)

// IsDirectory reports whether the directory bit is set.
func (a Attr) IsDirectory() bool {
	return a&AttrDirectory != 0
}

// EntryInfo is the engine-level record returned by Stat and Dir.Read.
// It carries the leaf name only; path context belongs to the caller.
type EntryInfo struct {
	// Name is the entry's leaf name within its directory.
	Name string

	// Size is the file size in bytes. Zero for directories.
	Size uint64

	// Attr holds the entry's FAT attribute bits.
	Attr Attr
}

// FreeInfo describes the allocation state of the mounted volume as reported
// by Engine.FreeSpace. Capacity in bytes is derived by the caller from the
// cluster geometry and an assumed sector size.
type FreeInfo struct {
	// FreeClusters is the number of unallocated clusters.
	FreeClusters uint64

	// TotalEntries is the total number of FAT entries, including the two
	// reserved entries at the head of the table that never map to data.
	TotalEntries uint64

	// SectorsPerCluster is the cluster size in sectors.
	SectorsPerCluster uint32
}

// FilesystemKind identifies the FAT variant detected on (or requested for)
// a volume.
type FilesystemKind int

const (
	KindUnknown FilesystemKind = iota
	KindFAT12
	KindFAT16
	KindFAT32
	KindExFAT
)

// String returns the conventional display name of the variant.
func (k FilesystemKind) String() string {
	switch k {
	case KindFAT12:
		return "FAT12"
	case KindFAT16:
		return "FAT16"
	case KindFAT32:
		return "FAT32"
	case KindExFAT:
		return "exFAT"
	default:
		return "unknown"
	}
}

// FormatOptions parameterizes Engine.MakeFilesystem.
type FormatOptions struct {
	// Kind is the FAT variant to create.
	Kind FilesystemKind

	// FATCount is the number of allocation tables to write.
	FATCount int

	// RootEntries is the root directory entry count (FAT12/16 only;
	// engines ignore it for FAT32 and exFAT).
	RootEntries int

	// ClusterSize is the allocation unit size in bytes. Zero lets the
	// engine choose based on volume size.
	ClusterSize uint32
}

// Engine is the filesystem engine the session layer drives.
//
// Every operation returns a Status; StatusOK means success and anything else
// is a failure the caller translates into its own taxonomy. Operations other
// than Mount require a mounted volume and report StatusNotReady otherwise.
//
// Engines are used single-threaded by the session layer and are not required
// to be safe for concurrent use.
type Engine interface {
	// Mount attaches the engine to the medium and detects the volume.
	Mount(ctx context.Context) Status

	// Unmount detaches from the medium. Unmounting an unmounted engine
	// is a no-op reporting StatusOK.
	Unmount(ctx context.Context) Status

	// Kind reports the FAT variant detected by the last successful Mount,
	// or KindUnknown if never mounted.
	Kind() FilesystemKind

	// Open opens the file at path according to flags and returns the
	// engine file object on success.
	Open(ctx context.Context, path string, flags OpenFlag) (File, Status)

	// Stat looks up the entry at path.
	Stat(ctx context.Context, path string) (*EntryInfo, Status)

	// OpenDir opens the directory at path for enumeration.
	OpenDir(ctx context.Context, path string) (Dir, Status)

	// Mkdir creates a directory. The parent must already exist.
	Mkdir(ctx context.Context, path string) Status

	// Unlink removes a file, or a directory if it is empty. Removing a
	// non-empty directory reports StatusDenied.
	Unlink(ctx context.Context, path string) Status

	// Rename moves an entry to a new path on the same volume.
	Rename(ctx context.Context, oldPath, newPath string) Status

	// FreeSpace reports the volume's allocation state.
	FreeSpace(ctx context.Context) (*FreeInfo, Status)

	// MakeFilesystem creates a new volume on the medium, destroying all
	// existing data.
	MakeFilesystem(ctx context.Context, opts FormatOptions) Status

	// Sync flushes all cached data for the whole volume to the medium.
	Sync(ctx context.Context) Status
}

// File is one open engine file object. It is exclusively owned by the caller
// that obtained it from Engine.Open and must be closed exactly once; Close
// on an already closed object reports StatusInvalidObject.
type File interface {
	// Read reads up to len(p) bytes from the current position and returns
	// the number of bytes actually read. Fewer bytes than requested, or
	// zero at end of file, is not an error.
	Read(p []byte) (int, Status)

	// Write writes p at the current position and returns the number of
	// bytes actually written. A short count with StatusOK is possible and
	// is the caller's concern.
	Write(p []byte) (int, Status)

	// Seek moves the position to an absolute byte offset. Seeking beyond
	// the end of a writable file extends it, as FatFs does.
	Seek(pos uint64) Status

	// Tell returns the current byte position.
	Tell() uint64

	// Size returns the current file size in bytes.
	Size() uint64

	// Sync flushes this file's buffered data to the medium.
	Sync() Status

	// Close flushes and releases the object.
	Close() Status
}

// Dir is an open directory enumeration. Read returns entries in on-volume
// order, including the synthetic "." and ".." entries where the volume has
// them; filtering is the caller's concern.
type Dir interface {
	// Read returns the next entry, or (nil, StatusOK) at the end.
	Read() (*EntryInfo, Status)

	// Close releases the enumeration.
	Close() Status
}
