package sdcard

import "github.com/cardkit/cardfs/pkg/engine"

// ErrorKind is the closed set of outcomes a card operation can report.
//
// Exactly one kind is attached to every operation result. Native engine
// status codes are folded into this set at the boundary by TranslateStatus;
// callers branch on kinds, never on message strings.
type ErrorKind int

const (
	// KindSuccess means the operation completed.
	KindSuccess ErrorKind = iota

	// KindInitFailed means the bus or card bring-up failed.
	KindInitFailed

	// KindMountFailed means mounting was exhausted, or an operation
	// required a mounted card and found none.
	KindMountFailed

	// KindNotFound means a file or a path component does not exist.
	KindNotFound

	// KindPermissionDenied means access was refused: a write-protected
	// medium, a denied engine operation, a name collision on create, or
	// an operation on a closed stream handle.
	KindPermissionDenied

	// KindDiskFull means the medium has no space left.
	KindDiskFull

	// KindIoError means a transfer-level failure, including a short write
	// detected on a whole-file write.
	KindIoError

	// KindInvalidParameter means caller misuse, such as a malformed open
	// mode token.
	KindInvalidParameter

	// KindEngineError means the engine reported an opaque failure with no
	// more specific mapping.
	KindEngineError

	// KindUnknown covers any untranslatable condition.
	KindUnknown
)

// Description returns a fixed human-readable sentence for the kind. The text
// is diagnostic only and takes no part in control flow.
func (k ErrorKind) Description() string {
	switch k {
	case KindSuccess:
		return "operation completed successfully"
	case KindInitFailed:
		return "card or bus initialization failed"
	case KindMountFailed:
		return "filesystem mount failed or card not mounted"
	case KindNotFound:
		return "file or directory not found"
	case KindPermissionDenied:
		return "permission denied"
	case KindDiskFull:
		return "no space left on card"
	case KindIoError:
		return "input/output error"
	case KindInvalidParameter:
		return "invalid parameter"
	case KindEngineError:
		return "filesystem engine error"
	case KindUnknown:
		return "unknown error"
	default:
		return "undefined error"
	}
}

// String returns the symbolic name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindSuccess:
		return "Success"
	case KindInitFailed:
		return "InitFailed"
	case KindMountFailed:
		return "MountFailed"
	case KindNotFound:
		return "NotFound"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindDiskFull:
		return "DiskFull"
	case KindIoError:
		return "IoError"
	case KindInvalidParameter:
		return "InvalidParameter"
	case KindEngineError:
		return "EngineError"
	default:
		return "Unknown"
	}
}

// TranslateStatus folds a native engine status code into an ErrorKind.
//
// The mapping is total: codes without a specific mapping degrade to
// KindUnknown rather than failing, so every engine call site can produce a
// reportable outcome no matter what the engine returns.
func TranslateStatus(status engine.Status) ErrorKind {
	switch status {
	case engine.StatusOK:
		return KindSuccess
	case engine.StatusNoFile, engine.StatusNoPath:
		return KindNotFound
	case engine.StatusInvalidName, engine.StatusInvalidParameter:
		return KindInvalidParameter
	case engine.StatusDenied, engine.StatusWriteProtected,
		engine.StatusLocked, engine.StatusExists:
		return KindPermissionDenied
	case engine.StatusDiskError, engine.StatusInternalError, engine.StatusTimeout:
		return KindIoError
	case engine.StatusNotReady:
		return KindInitFailed
	case engine.StatusNoSpace:
		return KindDiskFull
	case engine.StatusNoFilesystem, engine.StatusMkfsAborted,
		engine.StatusInvalidObject, engine.StatusTooManyOpenFiles:
		return KindEngineError
	default:
		return KindUnknown
	}
}

// CardError is the failure payload carried by every error Result.
type CardError struct {
	// Kind is the error category.
	Kind ErrorKind

	// Message is a human-readable description of what failed. Diagnostic
	// only; not meant to be parsed.
	Message string

	// Path is the card path related to the failure, when one applies.
	Path string
}

// Error implements the error interface.
func (e *CardError) Error() string {
	if e.Path != "" {
		return e.Message + ": " + e.Path
	}
	return e.Message
}

// statusError builds a CardError from a native engine status.
func statusError(status engine.Status, message, path string) *CardError {
	return &CardError{
		Kind:    TranslateStatus(status),
		Message: message + " (" + status.String() + ")",
		Path:    path,
	}
}
