package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMosaicErrorIs(t *testing.T) {
	err := NewMosaicError(ErrCodeMissingDependency, "item-1/spcflatness", "fft analysis not available", nil)
	wrapped := fmt.Errorf("analysing corpus: %w", err)

	assert.True(t, errors.Is(wrapped, ErrMissingDependency))
	assert.False(t, errors.Is(wrapped, ErrConfiguration))

	var me *MosaicError
	assert.True(t, errors.As(wrapped, &me))
	assert.Equal(t, "item-1/spcflatness", me.Key)
}

func TestMosaicErrorMessage(t *testing.T) {
	cause := errors.New("disk full")
	err := NewMosaicError(ErrCodeStorageWrite, "a.wav/rms", "failed to persist analysis", cause)

	assert.Equal(t, "a.wav/rms: failed to persist analysis: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "weights: no positive weight", ConfigError("weights", "no positive weight").Error())
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleSource.Valid())
	assert.True(t, RoleOutput.Valid())
	assert.False(t, Role("sidechain").Valid())
}
