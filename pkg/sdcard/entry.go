package sdcard

import "github.com/cardkit/cardfs/pkg/engine"

// FileEntry is one directory listing row. Entries are produced fresh on
// every listing or stat call, are never mutated afterwards, and belong to
// the caller once returned.
type FileEntry struct {
	// Name is the entry's leaf name.
	Name string

	// FullPath is the canonical absolute path of the entry.
	FullPath string

	// Size is the file size in bytes. Zero for directories.
	Size uint64

	// IsDirectory reports whether the entry is a directory.
	IsDirectory bool

	// Attributes holds the engine's raw attribute bits for the entry.
	Attributes engine.Attr
}

// newFileEntry builds a FileEntry from an engine record and the canonical
// path it was resolved at.
func newFileEntry(info *engine.EntryInfo, fullPath string) FileEntry {
	return FileEntry{
		Name:        info.Name,
		FullPath:    fullPath,
		Size:        info.Size,
		IsDirectory: info.Attr.IsDirectory(),
		Attributes:  info.Attr,
	}
}
