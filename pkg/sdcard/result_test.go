package sdcard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultOk(t *testing.T) {
	r := Ok(42)

	assert.True(t, r.IsOK())
	assert.False(t, r.IsError())
	assert.Equal(t, KindSuccess, r.Kind())
	assert.Empty(t, r.Message())
	assert.Nil(t, r.Err())
	assert.Equal(t, 42, r.Value())
	assert.Equal(t, 42, r.ValueOr(0))
}

func TestResultFail(t *testing.T) {
	r := Fail[string](KindNotFound, "no such file")

	assert.False(t, r.IsOK())
	assert.True(t, r.IsError())
	assert.Equal(t, KindNotFound, r.Kind())
	assert.Equal(t, "no such file", r.Message())
	require.NotNil(t, r.Err())
	assert.Equal(t, "fallback", r.ValueOr("fallback"))
}

func TestResultValuePanicsOnError(t *testing.T) {
	r := Fail[int](KindIoError, "broken")
	assert.Panics(t, func() { r.Value() })
}

func TestFailErrPanicsOnNil(t *testing.T) {
	assert.Panics(t, func() { FailErr[int](nil) })
}

func TestFailErrCarriesError(t *testing.T) {
	cardErr := &CardError{Kind: KindDiskFull, Message: "volume full", Path: "/big"}
	r := FailErr[Unit](cardErr)

	assert.Equal(t, KindDiskFull, r.Kind())
	assert.Same(t, cardErr, r.Err())
}

func TestOkUnit(t *testing.T) {
	r := OkUnit()
	assert.True(t, r.IsOK())
	assert.Equal(t, KindSuccess, r.Kind())
}
