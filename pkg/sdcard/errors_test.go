package sdcard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cardkit/cardfs/pkg/engine"
)

func TestTranslateStatus(t *testing.T) {
	tests := []struct {
		status engine.Status
		want   ErrorKind
	}{
		{engine.StatusOK, KindSuccess},
		{engine.StatusNoFile, KindNotFound},
		{engine.StatusNoPath, KindNotFound},
		{engine.StatusInvalidName, KindInvalidParameter},
		{engine.StatusInvalidParameter, KindInvalidParameter},
		{engine.StatusDenied, KindPermissionDenied},
		{engine.StatusWriteProtected, KindPermissionDenied},
		{engine.StatusLocked, KindPermissionDenied},
		{engine.StatusExists, KindPermissionDenied},
		{engine.StatusDiskError, KindIoError},
		{engine.StatusInternalError, KindIoError},
		{engine.StatusTimeout, KindIoError},
		{engine.StatusNotReady, KindInitFailed},
		{engine.StatusNoSpace, KindDiskFull},
		{engine.StatusNoFilesystem, KindEngineError},
		{engine.StatusMkfsAborted, KindEngineError},
		{engine.StatusInvalidObject, KindEngineError},
		{engine.StatusTooManyOpenFiles, KindEngineError},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, TranslateStatus(tt.status))
		})
	}
}

func TestTranslateStatusUnknownFallback(t *testing.T) {
	assert.Equal(t, KindUnknown, TranslateStatus(engine.Status(9999)))
}

func TestDiskFullIsNotPermissionDenied(t *testing.T) {
	// An exhausted medium and a refused operation are distinct outcomes.
	assert.NotEqual(t,
		TranslateStatus(engine.StatusNoSpace),
		TranslateStatus(engine.StatusDenied))
}

func TestErrorKindStringsAreDistinct(t *testing.T) {
	kinds := []ErrorKind{
		KindSuccess, KindInitFailed, KindMountFailed, KindNotFound,
		KindPermissionDenied, KindDiskFull, KindIoError,
		KindInvalidParameter, KindEngineError, KindUnknown,
	}

	seen := map[string]bool{}
	for _, k := range kinds {
		assert.NotEmpty(t, k.Description())
		assert.False(t, seen[k.String()], "duplicate name %q", k.String())
		seen[k.String()] = true
	}
}

func TestCardErrorError(t *testing.T) {
	withPath := &CardError{Kind: KindNotFound, Message: "stat failed", Path: "/a.txt"}
	assert.Equal(t, "stat failed: /a.txt", withPath.Error())

	withoutPath := &CardError{Kind: KindIoError, Message: "sync failed"}
	assert.Equal(t, "sync failed", withoutPath.Error())
}

func TestStatusErrorCarriesStatusName(t *testing.T) {
	err := statusError(engine.StatusNoFile, "open file failed", "/gone.txt")
	assert.Equal(t, KindNotFound, err.Kind)
	assert.Contains(t, err.Message, "NO_FILE")
	assert.Equal(t, "/gone.txt", err.Path)
}
