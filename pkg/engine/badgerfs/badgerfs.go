// Package badgerfs provides a filesystem engine persisted in BadgerDB.
//
// The engine keeps a card image in an embedded key-value store, giving
// host-side development a durable fake card: contents survive process
// restarts and can be inspected with standard Badger tooling. Mount opens
// the database, Unmount closes it, and MakeFilesystem drops the image.
//
// Key schema:
//
//	Data Type  Prefix  Key Format   Value
//	=========  ======  ==========   =====================
//	Metadata   "m:"    m:<path>     entryMeta (JSON)
//	Content    "c:"    c:<path>     raw file bytes
//
// Paths in keys are canonical absolute paths, so all children of a
// directory share the prefix "m:<dir>/" and directory listings and subtree
// renames are prefix scans.
package badgerfs

import (
	"context"
	"encoding/json"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/cardkit/cardfs/pkg/engine"
)

// Config parameterizes the engine.
type Config struct {
	// Dir is the Badger database directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps the database in memory, for tests.
	InMemory bool

	// TotalClusters is the simulated volume size in clusters.
	TotalClusters uint64

	// SectorsPerCluster is the cluster size in sectors.
	SectorsPerCluster uint32

	// SectorSize is the sector size in bytes.
	SectorSize uint32

	// Kind is the FAT variant the volume reports after mounting.
	Kind engine.FilesystemKind
}

// DefaultConfig returns a 64 MiB FAT32-flavored image layout.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:               dir,
		TotalClusters:     16384,
		SectorsPerCluster: 8,
		SectorSize:        512,
		Kind:              engine.KindFAT32,
	}
}

// entryMeta is the JSON-encoded per-entry metadata record.
type entryMeta struct {
	Dir  bool   `json:"dir"`
	Size uint64 `json:"size"`
	Attr uint8  `json:"attr"`
}

func keyMeta(path string) []byte    { return []byte("m:" + path) }
func keyContent(path string) []byte { return []byte("c:" + path) }

func encodeMeta(m entryMeta) []byte {
	buf, err := json.Marshal(m)
	if err != nil {
		// entryMeta has no unmarshalable fields.
		panic(err)
	}
	return buf
}

func decodeMeta(val []byte) (entryMeta, error) {
	var m entryMeta
	err := json.Unmarshal(val, &m)
	return m, err
}

// Engine implements engine.Engine on a BadgerDB card image.
type Engine struct {
	cfg Config

	db           *badger.DB
	mounted      bool
	usedClusters uint64
}

var _ engine.Engine = (*Engine)(nil)

// New returns an unmounted engine for the given image configuration.
// Zero-valued geometry fields fall back to DefaultConfig.
func New(cfg Config) *Engine {
	def := DefaultConfig(cfg.Dir)
	if cfg.TotalClusters == 0 {
		cfg.TotalClusters = def.TotalClusters
	}
	if cfg.SectorsPerCluster == 0 {
		cfg.SectorsPerCluster = def.SectorsPerCluster
	}
	if cfg.SectorSize == 0 {
		cfg.SectorSize = def.SectorSize
	}
	if cfg.Kind == engine.KindUnknown {
		cfg.Kind = def.Kind
	}

	return &Engine{cfg: cfg}
}

func (e *Engine) clusterBytes() uint64 {
	return uint64(e.cfg.SectorsPerCluster) * uint64(e.cfg.SectorSize)
}

func (e *Engine) clustersFor(n uint64) uint64 {
	cb := e.clusterBytes()
	return (n + cb - 1) / cb
}

func (e *Engine) freeClusters() uint64 {
	return e.cfg.TotalClusters - e.usedClusters
}

// Mount opens the database, lays out an empty image on first use, and
// recomputes the allocation state from the stored metadata.
func (e *Engine) Mount(ctx context.Context) engine.Status {
	if e.mounted {
		return engine.StatusOK
	}

	opts := badger.DefaultOptions(e.cfg.Dir).
		WithInMemory(e.cfg.InMemory).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return engine.StatusNotReady
	}

	err = db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(keyMeta("/")); err == badger.ErrKeyNotFound {
			return txn.Set(keyMeta("/"), encodeMeta(entryMeta{
				Dir:  true,
				Attr: uint8(engine.AttrDirectory),
			}))
		} else if err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return engine.StatusDiskError
	}

	used, err := scanUsedClusters(db, e.clustersFor)
	if err != nil {
		db.Close()
		return engine.StatusDiskError
	}

	e.db = db
	e.usedClusters = used
	e.mounted = true
	return engine.StatusOK
}

// scanUsedClusters walks all metadata records and totals the clusters the
// image occupies: one per subdirectory, the content's rounded-up cluster
// count per file.
func scanUsedClusters(db *badger.DB, clustersFor func(uint64) uint64) (uint64, error) {
	var used uint64

	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte("m:")})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if string(it.Item().Key()) == "m:/" {
				continue
			}
			err := it.Item().Value(func(val []byte) error {
				meta, err := decodeMeta(val)
				if err != nil {
					return err
				}
				if meta.Dir {
					used++
				} else {
					used += clustersFor(meta.Size)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	return used, err
}

// Unmount closes the database.
func (e *Engine) Unmount(ctx context.Context) engine.Status {
	if !e.mounted {
		return engine.StatusOK
	}

	e.mounted = false
	if err := e.db.Close(); err != nil {
		return engine.StatusDiskError
	}
	e.db = nil
	return engine.StatusOK
}

// Kind reports the configured FAT variant.
func (e *Engine) Kind() engine.FilesystemKind {
	return e.cfg.Kind
}

// getMeta fetches the metadata record for path inside txn.
func getMeta(txn *badger.Txn, path string) (*entryMeta, error) {
	item, err := txn.Get(keyMeta(path))
	if err != nil {
		return nil, err
	}

	var meta entryMeta
	err = item.Value(func(val []byte) error {
		var derr error
		meta, derr = decodeMeta(val)
		return derr
	})
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// parentPath returns the canonical parent of a canonical non-root path.
func parentPath(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}

// statStatus resolves a lookup failure on path into the native status,
// distinguishing a missing leaf from a missing directory component.
func statStatus(txn *badger.Txn, path string) engine.Status {
	parent := parentPath(path)
	meta, err := getMeta(txn, parent)
	if err == badger.ErrKeyNotFound {
		return engine.StatusNoPath
	}
	if err != nil {
		return engine.StatusDiskError
	}
	if !meta.Dir {
		return engine.StatusNoPath
	}
	return engine.StatusNoFile
}

// Open opens or creates the file at path according to flags. Content is
// buffered in the file object and written back on Sync and Close.
func (e *Engine) Open(ctx context.Context, path string, flags engine.OpenFlag) (engine.File, engine.Status) {
	if !e.mounted {
		return nil, engine.StatusNotReady
	}

	writable := flags&engine.OpenWrite != 0
	create := flags&(engine.OpenCreateNew|engine.OpenCreateAlways|engine.OpenAlways) != 0

	var buf []byte
	status := engine.StatusOK

	err := e.db.Update(func(txn *badger.Txn) error {
		meta, err := getMeta(txn, path)
		switch {
		case err == badger.ErrKeyNotFound:
			if !create || !writable {
				status = statStatus(txn, path)
				return nil
			}

			pmeta, perr := getMeta(txn, parentPath(path))
			if perr == badger.ErrKeyNotFound {
				status = engine.StatusNoPath
				return nil
			}
			if perr != nil {
				return perr
			}
			if !pmeta.Dir {
				status = engine.StatusNoPath
				return nil
			}

			newMeta := entryMeta{Attr: uint8(engine.AttrArchive)}
			if err := txn.Set(keyMeta(path), encodeMeta(newMeta)); err != nil {
				return err
			}
			return txn.Set(keyContent(path), nil)

		case err != nil:
			return err

		case meta.Dir:
			status = engine.StatusDenied
			return nil

		case flags&engine.OpenCreateNew != 0:
			status = engine.StatusExists
			return nil
		}

		if flags&engine.OpenCreateAlways != 0 {
			// Truncate in place; the cluster release happens below.
			if err := txn.Set(keyMeta(path), encodeMeta(entryMeta{Attr: meta.Attr})); err != nil {
				return err
			}
			e.usedClusters -= e.clustersFor(meta.Size)
			return txn.Set(keyContent(path), nil)
		}

		item, err := txn.Get(keyContent(path))
		if err != nil {
			return err
		}
		buf, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, engine.StatusDiskError
	}
	if status != engine.StatusOK {
		return nil, status
	}

	return &file{
		eng:      e,
		path:     path,
		buf:      buf,
		readable: flags&engine.OpenRead != 0,
		writable: writable,
	}, engine.StatusOK
}

// Stat looks up the entry at path.
func (e *Engine) Stat(ctx context.Context, path string) (*engine.EntryInfo, engine.Status) {
	if !e.mounted {
		return nil, engine.StatusNotReady
	}
	if path == "/" {
		return nil, engine.StatusInvalidName
	}

	var info *engine.EntryInfo
	status := engine.StatusOK

	err := e.db.View(func(txn *badger.Txn) error {
		meta, err := getMeta(txn, path)
		if err == badger.ErrKeyNotFound {
			status = statStatus(txn, path)
			return nil
		}
		if err != nil {
			return err
		}

		info = metaEntryInfo(path, meta)
		return nil
	})
	if err != nil {
		return nil, engine.StatusDiskError
	}
	if status != engine.StatusOK {
		return nil, status
	}

	return info, engine.StatusOK
}

// OpenDir snapshots the directory's children for enumeration.
func (e *Engine) OpenDir(ctx context.Context, path string) (engine.Dir, engine.Status) {
	if !e.mounted {
		return nil, engine.StatusNotReady
	}

	var entries []*engine.EntryInfo
	status := engine.StatusOK

	err := e.db.View(func(txn *badger.Txn) error {
		meta, err := getMeta(txn, path)
		if err == badger.ErrKeyNotFound {
			status = engine.StatusNoPath
			return nil
		}
		if err != nil {
			return err
		}
		if !meta.Dir {
			status = engine.StatusNoPath
			return nil
		}

		if path != "/" {
			entries = append(entries,
				&engine.EntryInfo{Name: ".", Attr: engine.AttrDirectory},
				&engine.EntryInfo{Name: "..", Attr: engine.AttrDirectory},
			)
		}

		prefix := "m:" + strings.TrimSuffix(path, "/") + "/"
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(prefix)})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			childPath := string(it.Item().Key())[len("m:"):]
			leaf := childPath[len(prefix)-len("m:"):]
			if strings.ContainsRune(leaf, '/') {
				// Deeper descendant, not a direct child.
				continue
			}

			err := it.Item().Value(func(val []byte) error {
				m, derr := decodeMeta(val)
				if derr != nil {
					return derr
				}
				entries = append(entries, metaEntryInfo(childPath, &m))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, engine.StatusDiskError
	}
	if status != engine.StatusOK {
		return nil, status
	}

	return &dirIterator{entries: entries}, engine.StatusOK
}

// Mkdir creates a directory under an existing parent.
func (e *Engine) Mkdir(ctx context.Context, path string) engine.Status {
	if !e.mounted {
		return engine.StatusNotReady
	}

	status := engine.StatusOK
	err := e.db.Update(func(txn *badger.Txn) error {
		if _, err := getMeta(txn, path); err == nil {
			status = engine.StatusExists
			return nil
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		pmeta, err := getMeta(txn, parentPath(path))
		if err == badger.ErrKeyNotFound {
			status = engine.StatusNoPath
			return nil
		}
		if err != nil {
			return err
		}
		if !pmeta.Dir {
			status = engine.StatusNoPath
			return nil
		}
		if e.freeClusters() < 1 {
			status = engine.StatusNoSpace
			return nil
		}

		return txn.Set(keyMeta(path), encodeMeta(entryMeta{
			Dir:  true,
			Attr: uint8(engine.AttrDirectory),
		}))
	})
	if err != nil {
		return engine.StatusDiskError
	}
	if status == engine.StatusOK {
		e.usedClusters++
	}
	return status
}

// Unlink removes a file or an empty directory.
func (e *Engine) Unlink(ctx context.Context, path string) engine.Status {
	if !e.mounted {
		return engine.StatusNotReady
	}
	if path == "/" {
		return engine.StatusInvalidName
	}

	status := engine.StatusOK
	var released uint64

	err := e.db.Update(func(txn *badger.Txn) error {
		meta, err := getMeta(txn, path)
		if err == badger.ErrKeyNotFound {
			status = engine.StatusNoFile
			return nil
		}
		if err != nil {
			return err
		}

		if meta.Dir {
			if hasChildren(txn, path) {
				status = engine.StatusDenied
				return nil
			}
			released = 1
			return txn.Delete(keyMeta(path))
		}

		released = e.clustersFor(meta.Size)
		if err := txn.Delete(keyMeta(path)); err != nil {
			return err
		}
		return txn.Delete(keyContent(path))
	})
	if err != nil {
		return engine.StatusDiskError
	}
	if status == engine.StatusOK {
		e.usedClusters -= released
	}
	return status
}

// hasChildren reports whether the directory at path has any entry.
func hasChildren(txn *badger.Txn, path string) bool {
	prefix := "m:" + strings.TrimSuffix(path, "/") + "/"
	it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(prefix)})
	defer it.Close()

	it.Rewind()
	return it.Valid()
}

// Rename moves an entry, together with its whole subtree for directories.
func (e *Engine) Rename(ctx context.Context, oldPath, newPath string) engine.Status {
	if !e.mounted {
		return engine.StatusNotReady
	}

	status := engine.StatusOK
	err := e.db.Update(func(txn *badger.Txn) error {
		meta, err := getMeta(txn, oldPath)
		if err == badger.ErrKeyNotFound {
			status = engine.StatusNoFile
			return nil
		}
		if err != nil {
			return err
		}

		if _, err := getMeta(txn, newPath); err == nil {
			status = engine.StatusExists
			return nil
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		pmeta, err := getMeta(txn, parentPath(newPath))
		if err == badger.ErrKeyNotFound {
			status = engine.StatusNoPath
			return nil
		}
		if err != nil {
			return err
		}
		if !pmeta.Dir {
			status = engine.StatusNoPath
			return nil
		}

		if err := moveEntry(txn, oldPath, newPath); err != nil {
			return err
		}
		if meta.Dir {
			return moveSubtree(txn, oldPath, newPath)
		}
		return nil
	})
	if err != nil {
		return engine.StatusDiskError
	}
	return status
}

// moveEntry rewrites one entry's metadata and content keys.
func moveEntry(txn *badger.Txn, oldPath, newPath string) error {
	item, err := txn.Get(keyMeta(oldPath))
	if err != nil {
		return err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	if err := txn.Set(keyMeta(newPath), val); err != nil {
		return err
	}
	if err := txn.Delete(keyMeta(oldPath)); err != nil {
		return err
	}

	citem, err := txn.Get(keyContent(oldPath))
	if err == badger.ErrKeyNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	cval, err := citem.ValueCopy(nil)
	if err != nil {
		return err
	}
	if err := txn.Set(keyContent(newPath), cval); err != nil {
		return err
	}
	return txn.Delete(keyContent(oldPath))
}

// moveSubtree relocates every descendant of oldPath under newPath.
func moveSubtree(txn *badger.Txn, oldPath, newPath string) error {
	prefix := "m:" + strings.TrimSuffix(oldPath, "/") + "/"

	// Collect first: mutating while iterating is undefined.
	var descendants []string
	it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(prefix)})
	for it.Rewind(); it.Valid(); it.Next() {
		descendants = append(descendants, string(it.Item().Key())[len("m:"):])
	}
	it.Close()

	for _, oldChild := range descendants {
		newChild := newPath + strings.TrimPrefix(oldChild, oldPath)
		if err := moveEntry(txn, oldChild, newChild); err != nil {
			return err
		}
	}
	return nil
}

// FreeSpace reports the image's allocation state.
func (e *Engine) FreeSpace(ctx context.Context) (*engine.FreeInfo, engine.Status) {
	if !e.mounted {
		return nil, engine.StatusNotReady
	}

	return &engine.FreeInfo{
		FreeClusters:      e.freeClusters(),
		TotalEntries:      e.cfg.TotalClusters + 2,
		SectorsPerCluster: e.cfg.SectorsPerCluster,
	}, engine.StatusOK
}

// MakeFilesystem drops the whole image and lays out an empty volume.
func (e *Engine) MakeFilesystem(ctx context.Context, opts engine.FormatOptions) engine.Status {
	if !e.mounted {
		return engine.StatusNotReady
	}
	if e.cfg.TotalClusters == 0 {
		return engine.StatusMkfsAborted
	}

	if err := e.db.DropAll(); err != nil {
		return engine.StatusDiskError
	}

	err := e.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyMeta("/"), encodeMeta(entryMeta{
			Dir:  true,
			Attr: uint8(engine.AttrDirectory),
		}))
	})
	if err != nil {
		return engine.StatusDiskError
	}

	e.usedClusters = 0
	if opts.Kind != engine.KindUnknown {
		e.cfg.Kind = opts.Kind
	}
	return engine.StatusOK
}

// Sync flushes Badger's write-ahead state to disk.
func (e *Engine) Sync(ctx context.Context) engine.Status {
	if !e.mounted {
		return engine.StatusNotReady
	}
	if e.cfg.InMemory {
		return engine.StatusOK
	}
	if err := e.db.Sync(); err != nil {
		return engine.StatusDiskError
	}
	return engine.StatusOK
}

func metaEntryInfo(path string, meta *entryMeta) *engine.EntryInfo {
	info := &engine.EntryInfo{
		Name: leafName(path),
		Attr: engine.Attr(meta.Attr),
	}
	if !meta.Dir {
		info.Size = meta.Size
	}
	return info
}

func leafName(path string) string {
	idx := strings.LastIndexByte(path, '/')
	return path[idx+1:]
}

// dirIterator walks a snapshot of a directory's entries.
type dirIterator struct {
	entries []*engine.EntryInfo
	index   int
	closed  bool
}

var _ engine.Dir = (*dirIterator)(nil)

func (it *dirIterator) Read() (*engine.EntryInfo, engine.Status) {
	if it.closed {
		return nil, engine.StatusInvalidObject
	}
	if it.index >= len(it.entries) {
		return nil, engine.StatusOK
	}

	entry := it.entries[it.index]
	it.index++
	return entry, engine.StatusOK
}

func (it *dirIterator) Close() engine.Status {
	if it.closed {
		return engine.StatusInvalidObject
	}
	it.closed = true
	return engine.StatusOK
}
