package badgerfs

import (
	badger "github.com/dgraph-io/badger/v4"

	"github.com/cardkit/cardfs/pkg/engine"
)

// file is an open handle onto a stored file. Content is buffered in memory;
// Sync and Close write it back to the database in one transaction. Cluster
// accounting is charged as the buffer grows so free-space queries stay
// accurate while the file is open.
type file struct {
	eng  *Engine
	path string

	buf      []byte
	pos      uint64
	readable bool
	writable bool
	dirty    bool
	closed   bool
}

var _ engine.File = (*file)(nil)

func (f *file) Read(p []byte) (int, engine.Status) {
	if f.closed {
		return 0, engine.StatusInvalidObject
	}
	if !f.readable {
		return 0, engine.StatusDenied
	}
	if f.pos >= uint64(len(f.buf)) {
		return 0, engine.StatusOK
	}

	n := copy(p, f.buf[f.pos:])
	f.pos += uint64(n)
	return n, engine.StatusOK
}

func (f *file) Write(p []byte) (int, engine.Status) {
	if f.closed {
		return 0, engine.StatusInvalidObject
	}
	if !f.writable {
		return 0, engine.StatusDenied
	}

	end := f.pos + uint64(len(p))
	if !f.grow(end) {
		return 0, engine.StatusNoSpace
	}

	copy(f.buf[f.pos:], p)
	f.pos = end
	f.dirty = true
	return len(p), engine.StatusOK
}

func (f *file) Seek(pos uint64) engine.Status {
	if f.closed {
		return engine.StatusInvalidObject
	}

	if pos > uint64(len(f.buf)) {
		if !f.writable {
			f.pos = uint64(len(f.buf))
			return engine.StatusOK
		}
		if !f.grow(pos) {
			return engine.StatusNoSpace
		}
		f.dirty = true
	}

	f.pos = pos
	return engine.StatusOK
}

func (f *file) Tell() uint64 {
	return f.pos
}

func (f *file) Size() uint64 {
	return uint64(len(f.buf))
}

func (f *file) Sync() engine.Status {
	if f.closed {
		return engine.StatusInvalidObject
	}
	return f.flush()
}

func (f *file) Close() engine.Status {
	if f.closed {
		return engine.StatusInvalidObject
	}

	status := f.flush()
	f.closed = true
	return status
}

// flush writes the buffered content and refreshed metadata back to the
// database. No-op while the buffer is clean.
func (f *file) flush() engine.Status {
	if !f.dirty {
		return engine.StatusOK
	}

	err := f.eng.db.Update(func(txn *badger.Txn) error {
		meta, err := getMeta(txn, f.path)
		if err != nil {
			return err
		}

		meta.Size = uint64(len(f.buf))
		if err := txn.Set(keyMeta(f.path), encodeMeta(*meta)); err != nil {
			return err
		}
		return txn.Set(keyContent(f.path), f.buf)
	})
	if err != nil {
		return engine.StatusDiskError
	}

	f.dirty = false
	return engine.StatusOK
}

// grow extends the buffer to size bytes, charging the cluster delta.
// Returns false, without side effects, when the image is out of space.
func (f *file) grow(size uint64) bool {
	if size <= uint64(len(f.buf)) {
		return true
	}

	delta := f.eng.clustersFor(size) - f.eng.clustersFor(uint64(len(f.buf)))
	if delta > f.eng.freeClusters() {
		return false
	}

	grown := make([]byte, size)
	copy(grown, f.buf)
	f.buf = grown
	f.eng.usedClusters += delta
	return true
}
