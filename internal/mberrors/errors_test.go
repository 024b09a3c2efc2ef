package mberrors_test

import (
	"errors"
	"testing"

	"github.com/chim331u/mediabutler/internal/mberrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorUnwrapAndIs(t *testing.T) {
	cause := errors.New("disk full")
	err := mberrors.New(mberrors.Space, "filemover.move", "not enough free space", cause)

	require.ErrorIs(t, err, cause)
	assert.True(t, mberrors.Is(err, mberrors.Space))
	assert.False(t, mberrors.Is(err, mberrors.Transient))
	assert.Equal(t, mberrors.Space, mberrors.KindOf(err))
}

func TestKindOfNonMBError(t *testing.T) {
	assert.Equal(t, mberrors.Unknown, mberrors.KindOf(errors.New("boom")))
}

func TestRetryablePolicy(t *testing.T) {
	assert.True(t, mberrors.Transient.Retryable())
	assert.True(t, mberrors.ClassifierTimeout.Retryable())
	assert.False(t, mberrors.Permission.Retryable())
	assert.False(t, mberrors.Unavailable.Retryable())
}

func TestRequiresUserPolicy(t *testing.T) {
	assert.True(t, mberrors.Permission.RequiresUser())
	assert.True(t, mberrors.Space.RequiresUser())
	assert.False(t, mberrors.Transient.RequiresUser())
}
