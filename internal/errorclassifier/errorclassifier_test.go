package errorclassifier_test

import (
	"context"
	"testing"
	"time"

	"github.com/chim331u/mediabutler/internal/errorclassifier"
	"github.com/chim331u/mediabutler/internal/mberrors"
	"github.com/stretchr/testify/assert"
)

func TestClassifyPermissionIsNotRetryableAndNeedsUser(t *testing.T) {
	err := mberrors.New(mberrors.Permission, "filemover.move", "denied", nil)
	c := errorclassifier.Classify(context.Background(), errorclassifier.ErrorContext{Err: err})

	assert.Equal(t, mberrors.Permission, c.Kind)
	assert.False(t, c.CanRetry)
	assert.True(t, c.RequiresUser)
	assert.Equal(t, errorclassifier.WaitForUser, c.Action)
}

func TestClassifyTransientRetriesWithBackoffUntilExhausted(t *testing.T) {
	err := mberrors.New(mberrors.Transient, "filemover.copy", "i/o error", nil)

	first := errorclassifier.Classify(context.Background(), errorclassifier.ErrorContext{Err: err, RetryAttempts: 0})
	assert.True(t, first.CanRetry)
	assert.Equal(t, errorclassifier.AutomaticRetry, first.Action)
	assert.Equal(t, 5*time.Second, first.RecommendedDelay)

	third := errorclassifier.Classify(context.Background(), errorclassifier.ErrorContext{Err: err, RetryAttempts: 2})
	assert.True(t, third.CanRetry)
	assert.Equal(t, 60*time.Second, third.RecommendedDelay)

	exhausted := errorclassifier.Classify(context.Background(), errorclassifier.ErrorContext{Err: err, RetryAttempts: 3})
	assert.False(t, exhausted.CanRetry, "retries exhausted at max_retries")
}

func TestClassifyClassifierTimeoutUsesFixedDelay(t *testing.T) {
	err := mberrors.New(mberrors.ClassifierTimeout, "classifier.classify", "deadline exceeded", nil)
	c := errorclassifier.Classify(context.Background(), errorclassifier.ErrorContext{Err: err, RetryAttempts: 0})
	assert.True(t, c.CanRetry)
	assert.Equal(t, 5*time.Second, c.RecommendedDelay)
}

func TestClassifyUnknownFallsBackWhenErrorUnrecognized(t *testing.T) {
	c := errorclassifier.Classify(context.Background(), errorclassifier.ErrorContext{Err: assertErr("boom")})
	assert.Equal(t, mberrors.Unknown, c.Kind)
	assert.True(t, c.RequiresUser)
	assert.Equal(t, errorclassifier.EscalateToAdmin, c.Action)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
