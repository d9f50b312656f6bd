// Package memory provides an in-memory filesystem engine.
//
// The engine simulates a FAT volume on the host: a tree of nodes with
// cluster-granular space accounting against a configured geometry. It backs
// tests and development environments where no physical card exists, and it
// exposes a few fault knobs (mount failures, write protection, short
// writes) so session-level failure handling can be exercised.
package memory

import (
	"context"
	"strings"

	"github.com/cardkit/cardfs/pkg/engine"
)

// Config fixes the simulated volume's geometry.
type Config struct {
	// TotalClusters is the number of data clusters on the volume.
	TotalClusters uint64

	// SectorsPerCluster is the cluster size in sectors.
	SectorsPerCluster uint32

	// SectorSize is the sector size in bytes.
	SectorSize uint32

	// Kind is the FAT variant the volume reports after mounting.
	Kind engine.FilesystemKind
}

// DefaultConfig returns a small FAT32-flavored volume: 4096 clusters of
// 8 sectors, 512-byte sectors (16 MiB).
func DefaultConfig() Config {
	return Config{
		TotalClusters:     4096,
		SectorsPerCluster: 8,
		SectorSize:        512,
		Kind:              engine.KindFAT32,
	}
}

// node is one entry in the simulated volume tree.
type node struct {
	name     string
	dir      bool
	attr     engine.Attr
	data     []byte
	children map[string]*node
	order    []string // child names in creation order
}

func newDirNode(name string) *node {
	return &node{
		name:     name,
		dir:      true,
		attr:     engine.AttrDirectory,
		children: map[string]*node{},
	}
}

func (n *node) addChild(child *node) {
	n.children[child.name] = child
	n.order = append(n.order, child.name)
}

func (n *node) removeChild(name string) {
	delete(n.children, name)
	for i, existing := range n.order {
		if existing == name {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
}

// Engine implements engine.Engine on an in-memory tree.
type Engine struct {
	cfg Config

	mounted        bool
	root           *node
	usedClusters   uint64
	writeProtected bool
	failMounts     int
	writeLimit     int
}

var _ engine.Engine = (*Engine)(nil)

// New returns an unmounted in-memory engine with the given geometry.
// Zero-valued Config fields fall back to DefaultConfig.
func New(cfg Config) *Engine {
	def := DefaultConfig()
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

// Fault knobs
// ===========

// FailMounts makes the next n Mount calls fail with StatusNotReady, which
// exercises the session's bounded mount retry loop.
func (e *Engine) FailMounts(n int) { e.failMounts = n }

// SetWriteProtected toggles simulated physical write protection.
func (e *Engine) SetWriteProtected(on bool) { e.writeProtected = on }

// SetWriteLimit caps every write to n bytes, silently acknowledged with
// StatusOK, simulating an engine that reports short writes without error.
// Zero removes the cap.
func (e *Engine) SetWriteLimit(n int) { e.writeLimit = n }

// cluster arithmetic

func (e *Engine) clusterBytes() uint64 {
	return uint64(e.cfg.SectorsPerCluster) * uint64(e.cfg.SectorSize)
}

// clustersFor returns the clusters a payload of n bytes occupies. An empty
// file occupies none, as on a real FAT volume.
func (e *Engine) clustersFor(n uint64) uint64 {
	cb := e.clusterBytes()
	return (n + cb - 1) / cb
}

func (e *Engine) freeClusters() uint64 {
	return e.cfg.TotalClusters - e.usedClusters
}

// path resolution

// resolve walks a canonical absolute path to its node.
func (e *Engine) resolve(path string) *node {
	if path == "/" {
		return e.root
	}

	current := e.root
	for _, part := range strings.Split(strings.TrimPrefix(path, "/"), "/") {
		if current == nil || !current.dir {
			return nil
		}
		current = current.children[part]
	}

	return current
}

// resolveParent walks to the parent directory of path and returns it with
// the leaf name.
func (e *Engine) resolveParent(path string) (*node, string) {
	trimmed := strings.TrimPrefix(path, "/")
	idx := strings.LastIndexByte(trimmed, '/')
	if idx < 0 {
		return e.root, trimmed
	}

	parent := e.resolve("/" + trimmed[:idx])
	if parent == nil || !parent.dir {
		return nil, ""
	}

	return parent, trimmed[idx+1:]
}

// Engine interface
// ================

// Mount attaches the engine. The first Mount of a fresh engine lays out an
// empty volume.
func (e *Engine) Mount(ctx context.Context) engine.Status {
	if e.failMounts > 0 {
		e.failMounts--
		return engine.StatusNotReady
	}
	if e.mounted {
		return engine.StatusOK
	}
	if e.root == nil {
		e.root = newDirNode("")
	}

	e.mounted = true
	return engine.StatusOK
}

// Unmount detaches the engine, keeping the volume contents.
func (e *Engine) Unmount(ctx context.Context) engine.Status {
	e.mounted = false
	return engine.StatusOK
}

// Kind reports the configured FAT variant.
func (e *Engine) Kind() engine.FilesystemKind {
	return e.cfg.Kind
}

// Open opens or creates the file at path according to flags.
func (e *Engine) Open(ctx context.Context, path string, flags engine.OpenFlag) (engine.File, engine.Status) {
	if !e.mounted {
		return nil, engine.StatusNotReady
	}

	writable := flags&engine.OpenWrite != 0
	if writable && e.writeProtected {
		return nil, engine.StatusWriteProtected
	}

	target := e.resolve(path)
	if target != nil && target.dir {
		return nil, engine.StatusDenied
	}

	create := flags&(engine.OpenCreateNew|engine.OpenCreateAlways|engine.OpenAlways) != 0

	switch {
	case target == nil && (!create || !writable):
		parent, _ := e.resolveParent(path)
		if parent == nil {
			return nil, engine.StatusNoPath
		}
		return nil, engine.StatusNoFile

	case target == nil:
		parent, leaf := e.resolveParent(path)
		if parent == nil {
			return nil, engine.StatusNoPath
		}
		if leaf == "" {
			return nil, engine.StatusInvalidName
		}
		target = &node{name: leaf, attr: engine.AttrArchive}
		parent.addChild(target)

	case flags&engine.OpenCreateNew != 0:
		return nil, engine.StatusExists

	case flags&engine.OpenCreateAlways != 0:
		e.usedClusters -= e.clustersFor(uint64(len(target.data)))
		target.data = nil
	}

	return &file{
		eng:      e,
		node:     target,
		readable: flags&engine.OpenRead != 0,
		writable: writable,
	}, engine.StatusOK
}

// Stat looks up the entry at path. Statting the root is rejected with
// StatusInvalidName, matching FAT engines that have no root entry record.
func (e *Engine) Stat(ctx context.Context, path string) (*engine.EntryInfo, engine.Status) {
	if !e.mounted {
		return nil, engine.StatusNotReady
	}
	if path == "/" {
		return nil, engine.StatusInvalidName
	}

	target := e.resolve(path)
	if target == nil {
		if parent, _ := e.resolveParent(path); parent == nil {
			return nil, engine.StatusNoPath
		}
		return nil, engine.StatusNoFile
	}

	return entryInfo(target), engine.StatusOK
}

// OpenDir opens the directory at path for enumeration.
func (e *Engine) OpenDir(ctx context.Context, path string) (engine.Dir, engine.Status) {
	if !e.mounted {
		return nil, engine.StatusNotReady
	}

	target := e.resolve(path)
	if target == nil {
		return nil, engine.StatusNoPath
	}
	if !target.dir {
		return nil, engine.StatusNoPath
	}

	return newDirIterator(target, target != e.root), engine.StatusOK
}

// Mkdir creates a directory under an existing parent.
func (e *Engine) Mkdir(ctx context.Context, path string) engine.Status {
	if !e.mounted {
		return engine.StatusNotReady
	}
	if e.writeProtected {
		return engine.StatusWriteProtected
	}

	parent, leaf := e.resolveParent(path)
	if parent == nil {
		return engine.StatusNoPath
	}
	if leaf == "" {
		return engine.StatusInvalidName
	}
	if _, exists := parent.children[leaf]; exists {
		return engine.StatusExists
	}
	// A subdirectory consumes one cluster for its entry table.
	if e.freeClusters() < 1 {
		return engine.StatusNoSpace
	}

	parent.addChild(newDirNode(leaf))
	e.usedClusters++
	return engine.StatusOK
}

// Unlink removes a file or an empty directory.
func (e *Engine) Unlink(ctx context.Context, path string) engine.Status {
	if !e.mounted {
		return engine.StatusNotReady
	}
	if e.writeProtected {
		return engine.StatusWriteProtected
	}
	if path == "/" {
		return engine.StatusInvalidName
	}

	target := e.resolve(path)
	if target == nil {
		return engine.StatusNoFile
	}
	if target.dir && len(target.children) > 0 {
		return engine.StatusDenied
	}

	parent, leaf := e.resolveParent(path)
	parent.removeChild(leaf)

	if target.dir {
		e.usedClusters--
	} else {
		e.usedClusters -= e.clustersFor(uint64(len(target.data)))
	}

	return engine.StatusOK
}

// Rename moves the entry at oldPath to newPath.
func (e *Engine) Rename(ctx context.Context, oldPath, newPath string) engine.Status {
	if !e.mounted {
		return engine.StatusNotReady
	}
	if e.writeProtected {
		return engine.StatusWriteProtected
	}

	target := e.resolve(oldPath)
	if target == nil {
		return engine.StatusNoFile
	}
	if e.resolve(newPath) != nil {
		return engine.StatusExists
	}

	newParent, newLeaf := e.resolveParent(newPath)
	if newParent == nil {
		return engine.StatusNoPath
	}
	if newLeaf == "" {
		return engine.StatusInvalidName
	}

	oldParent, oldLeaf := e.resolveParent(oldPath)
	oldParent.removeChild(oldLeaf)
	target.name = newLeaf
	newParent.addChild(target)

	return engine.StatusOK
}

// FreeSpace reports the simulated volume's allocation state.
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

// MakeFilesystem recreates an empty volume, destroying all contents.
func (e *Engine) MakeFilesystem(ctx context.Context, opts engine.FormatOptions) engine.Status {
	if !e.mounted {
		return engine.StatusNotReady
	}
	if e.writeProtected {
		return engine.StatusWriteProtected
	}
	if e.cfg.TotalClusters == 0 {
		return engine.StatusMkfsAborted
	}

	e.root = newDirNode("")
	e.usedClusters = 0
	if opts.Kind != engine.KindUnknown {
		e.cfg.Kind = opts.Kind
	}

	return engine.StatusOK
}

// Sync is a no-op: the tree has no write-back cache.
func (e *Engine) Sync(ctx context.Context) engine.Status {
	if !e.mounted {
		return engine.StatusNotReady
	}
	return engine.StatusOK
}

func entryInfo(n *node) *engine.EntryInfo {
	info := &engine.EntryInfo{
		Name: n.name,
		Attr: n.attr,
	}
	if !n.dir {
		info.Size = uint64(len(n.data))
	}
	return info
}
