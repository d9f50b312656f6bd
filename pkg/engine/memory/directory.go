package memory

import "github.com/cardkit/cardfs/pkg/engine"

// dirIterator enumerates one directory's entries in creation order. For
// subdirectories the synthetic "." and ".." entries are emitted first, as a
// FAT volume stores them; the root has none.
type dirIterator struct {
	node      *node
	synthetic []string
	index     int
	closed    bool
}

var _ engine.Dir = (*dirIterator)(nil)

func newDirIterator(n *node, withDotEntries bool) *dirIterator {
	it := &dirIterator{node: n}
	if withDotEntries {
		it.synthetic = []string{".", ".."}
	}
	return it
}

// Read returns the next entry, or (nil, StatusOK) once exhausted.
func (it *dirIterator) Read() (*engine.EntryInfo, engine.Status) {
	if it.closed {
		return nil, engine.StatusInvalidObject
	}

	if it.index < len(it.synthetic) {
		name := it.synthetic[it.index]
		it.index++
		return &engine.EntryInfo{Name: name, Attr: engine.AttrDirectory}, engine.StatusOK
	}

	childIndex := it.index - len(it.synthetic)
	for childIndex < len(it.node.order) {
		name := it.node.order[childIndex]
		it.index++
		child, ok := it.node.children[name]
		if !ok {
			// Removed since the iterator was opened; skip.
			childIndex = it.index - len(it.synthetic)
			continue
		}
		return entryInfo(child), engine.StatusOK
	}

	return nil, engine.StatusOK
}

// Close ends the enumeration.
func (it *dirIterator) Close() engine.Status {
	if it.closed {
		return engine.StatusInvalidObject
	}
	it.closed = true
	return engine.StatusOK
}
