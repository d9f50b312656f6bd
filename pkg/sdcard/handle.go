package sdcard

import (
	"context"

	"github.com/cardkit/cardfs/pkg/engine"
)

// Handle is an exclusive stream handle to one open file.
//
// A Handle owns exactly one engine file object from OpenFile until Close;
// it must not be copied. Close is idempotent and should be deferred right
// after a successful OpenFile so the engine object is released on every
// exit path. A Handle is only meaningful while the Card that produced it
// stays mounted.
type Handle struct {
	file engine.File
	path string
	open bool
}

// parseMode maps an open-mode token onto engine open flags. The second
// return reports append positioning; ok is false for unrecognized tokens.
func parseMode(mode string) (flags engine.OpenFlag, appendMode, ok bool) {
	switch mode {
	case "r":
		return engine.OpenRead, false, true
	case "w":
		return engine.OpenWrite | engine.OpenCreateAlways, false, true
	case "a":
		return engine.OpenWrite | engine.OpenAlways, true, true
	case "r+":
		return engine.OpenRead | engine.OpenWrite, false, true
	case "w+":
		return engine.OpenRead | engine.OpenWrite | engine.OpenCreateAlways, false, true
	case "a+":
		return engine.OpenRead | engine.OpenWrite | engine.OpenAlways, true, true
	default:
		return 0, false, false
	}
}

// OpenFile opens the file at path for stream I/O and returns the Handle.
//
// mode is one of "r", "w", "a", "r+", "w+", "a+" with the conventional
// meanings; any other token fails with KindInvalidParameter before the
// engine is touched. For the append modes the handle is positioned at the
// current end of file; if that positioning fails the just-opened engine
// object is closed and the seek failure surfaces.
func (c *Card) OpenFile(ctx context.Context, path, mode string) Result[*Handle] {
	if !c.mounted {
		return notMounted[*Handle]()
	}

	flags, appendMode, ok := parseMode(mode)
	if !ok {
		return Fail[*Handle](KindInvalidParameter, "invalid open mode: "+mode)
	}

	normalized := NormalizePath(path)
	file, status := c.eng.Open(ctx, normalized, flags)
	if status != engine.StatusOK {
		return FailErr[*Handle](statusError(status, "open file failed", normalized))
	}

	if appendMode {
		if status := file.Seek(file.Size()); status != engine.StatusOK {
			file.Close()
			return FailErr[*Handle](statusError(status, "seek to end failed", normalized))
		}
	}

	return Ok(&Handle{
		file: file,
		path: normalized,
		open: true,
	})
}

// IsOpen reports whether the handle still owns an open engine file object.
func (h *Handle) IsOpen() bool { return h.open }

// Path returns the canonical path the handle was opened at, or "" after
// Close.
func (h *Handle) Path() string { return h.path }

// Close releases the engine file object. It is idempotent: only the first
// call reaches the engine, later calls are no-ops.
func (h *Handle) Close() {
	if !h.open {
		return
	}
	h.file.Close()
	h.open = false
	h.path = ""
}

// notOpen is the uniform failure for operations on a closed handle.
func notOpen[T any]() Result[T] {
	return Fail[T](KindPermissionDenied, "file not open")
}

// Read reads up to size bytes from the current position. The returned
// buffer is truncated to the bytes actually obtained; it is empty, not an
// error, at end of file.
func (h *Handle) Read(size int) Result[[]byte] {
	if !h.open {
		return notOpen[[]byte]()
	}

	buf := make([]byte, size)
	n, status := h.file.Read(buf)
	if status != engine.StatusOK {
		return FailErr[[]byte](statusError(status, "read failed", h.path))
	}

	return Ok(buf[:n])
}

// ReadLine reads one text line from the current position.
//
// Bytes are consumed one at a time until a line feed (consumed, excluded
// from the result) or end of file. Carriage returns are stripped wherever
// they appear in the accumulated line. At end of file with no pending
// characters the result is the empty string, not an error.
func (h *Handle) ReadLine() Result[string] {
	if !h.open {
		return notOpen[string]()
	}

	var line []byte
	buf := make([]byte, 1)
	for {
		n, status := h.file.Read(buf)
		if status != engine.StatusOK {
			return FailErr[string](statusError(status, "read failed", h.path))
		}
		if n == 0 {
			break
		}
		if buf[0] == '\n' {
			break
		}
		if buf[0] != '\r' {
			line = append(line, buf[0])
		}
	}

	return Ok(string(line))
}

// Write writes data at the current position and returns the number of
// bytes actually written. Unlike the whole-file Card.WriteFile, a short
// write here is not escalated: callers wanting atomicity compare the count
// to len(data) themselves.
func (h *Handle) Write(data []byte) Result[int] {
	if !h.open {
		return notOpen[int]()
	}

	n, status := h.file.Write(data)
	if status != engine.StatusOK {
		return FailErr[int](statusError(status, "write failed", h.path))
	}

	return Ok(n)
}

// WriteString writes text as raw bytes at the current position.
func (h *Handle) WriteString(text string) Result[int] {
	return h.Write([]byte(text))
}

// Seek moves the position to an absolute byte offset.
func (h *Handle) Seek(position uint64) Result[Unit] {
	if !h.open {
		return notOpen[Unit]()
	}

	if status := h.file.Seek(position); status != engine.StatusOK {
		return FailErr[Unit](statusError(status, "seek failed", h.path))
	}

	return OkUnit()
}

// Tell returns the current byte position.
func (h *Handle) Tell() Result[uint64] {
	if !h.open {
		return notOpen[uint64]()
	}
	return Ok(h.file.Tell())
}

// Size returns the current file size in bytes.
func (h *Handle) Size() Result[uint64] {
	if !h.open {
		return notOpen[uint64]()
	}
	return Ok(h.file.Size())
}

// Flush forces this handle's buffered writes to the medium.
func (h *Handle) Flush() Result[Unit] {
	if !h.open {
		return notOpen[Unit]()
	}

	if status := h.file.Sync(); status != engine.StatusOK {
		return FailErr[Unit](statusError(status, "flush failed", h.path))
	}

	return OkUnit()
}
