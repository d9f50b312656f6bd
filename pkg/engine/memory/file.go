package memory

import "github.com/cardkit/cardfs/pkg/engine"

// file is one open file object on the in-memory volume.
type file struct {
	eng      *Engine
	node     *node
	pos      uint64
	readable bool
	writable bool
	closed   bool
}

var _ engine.File = (*file)(nil)

// Read copies bytes from the current position. At end of file it returns
// zero bytes with StatusOK.
func (f *file) Read(p []byte) (int, engine.Status) {
	if f.closed {
		return 0, engine.StatusInvalidObject
	}
	if !f.readable {
		return 0, engine.StatusDenied
	}

	size := uint64(len(f.node.data))
	if f.pos >= size {
		return 0, engine.StatusOK
	}

	n := copy(p, f.node.data[f.pos:])
	f.pos += uint64(n)
	return n, engine.StatusOK
}

// Write copies bytes at the current position, extending the file as needed.
//
// If the extension would exceed the volume's free clusters the write is
// refused whole with StatusNoSpace. With a write limit configured, the
// payload is silently capped and acknowledged with StatusOK so callers can
// exercise short-write handling.
func (f *file) Write(p []byte) (int, engine.Status) {
	if f.closed {
		return 0, engine.StatusInvalidObject
	}
	if !f.writable {
		return 0, engine.StatusDenied
	}
	if f.eng.writeProtected {
		return 0, engine.StatusWriteProtected
	}

	if f.eng.writeLimit > 0 && len(p) > f.eng.writeLimit {
		p = p[:f.eng.writeLimit]
	}
	if len(p) == 0 {
		return 0, engine.StatusOK
	}

	end := f.pos + uint64(len(p))
	if !f.grow(end) {
		return 0, engine.StatusNoSpace
	}

	copy(f.node.data[f.pos:], p)
	f.pos = end
	return len(p), engine.StatusOK
}

// Seek moves the position to an absolute offset. Seeking past the end of a
// writable file extends it with zeros; on a read-only file the position is
// clamped to the size.
func (f *file) Seek(pos uint64) engine.Status {
	if f.closed {
		return engine.StatusInvalidObject
	}

	size := uint64(len(f.node.data))
	if pos > size {
		if !f.writable {
			f.pos = size
			return engine.StatusOK
		}
		if !f.grow(pos) {
			return engine.StatusNoSpace
		}
	}

	f.pos = pos
	return engine.StatusOK
}

// Tell returns the current position.
func (f *file) Tell() uint64 { return f.pos }

// Size returns the current file size.
func (f *file) Size() uint64 { return uint64(len(f.node.data)) }

// Sync is a no-op on the in-memory volume.
func (f *file) Sync() engine.Status {
	if f.closed {
		return engine.StatusInvalidObject
	}
	return engine.StatusOK
}

// Close releases the object. A second Close reports StatusInvalidObject.
func (f *file) Close() engine.Status {
	if f.closed {
		return engine.StatusInvalidObject
	}
	f.closed = true
	return engine.StatusOK
}

// grow extends the file to size bytes, charging the cluster delta against
// the volume. It reports false without side effects when space runs out.
func (f *file) grow(size uint64) bool {
	current := uint64(len(f.node.data))
	if size <= current {
		return true
	}

	delta := f.eng.clustersFor(size) - f.eng.clustersFor(current)
	if delta > f.eng.freeClusters() {
		return false
	}

	f.node.data = append(f.node.data, make([]byte, size-current)...)
	f.eng.usedClusters += delta
	return true
}
