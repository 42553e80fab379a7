package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy(maxRetries int) retryPolicy {
	return retryPolicy{maxRetries: maxRetries, baseDelay: time.Millisecond, maxDelay: 5 * time.Millisecond}
}

func TestIsBusyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"database is locked", errors.New("database is locked"), true},
		{"database table is locked", errors.New("database table is locked"), true},
		{"SQLITE_BUSY", errors.New("SQLITE_BUSY"), true},
		{"SQLITE_LOCKED", errors.New("SQLITE_LOCKED"), true},
		{"error code 5", errors.New("error (5): database busy"), true},
		{"unrelated error", errors.New("connection refused"), false},
		{"constraint violation", errors.New("FOREIGN KEY constraint failed"), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, isBusyError(tt.err))
		})
	}
}

func TestRetryPolicy_Do(t *testing.T) {
	t.Parallel()

	t.Run("succeeds on first attempt", func(t *testing.T) {
		attempts := 0
		err := testPolicy(5).do(context.Background(), func() error {
			attempts++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("retries on busy error and succeeds", func(t *testing.T) {
		attempts := 0
		err := testPolicy(5).do(context.Background(), func() error {
			attempts++
			if attempts < 3 {
				return errors.New("database is locked")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("fails immediately on non-busy error", func(t *testing.T) {
		attempts := 0
		err := testPolicy(5).do(context.Background(), func() error {
			attempts++
			return errors.New("connection refused")
		})
		require.Error(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("exhausts all retries on persistent busy error", func(t *testing.T) {
		attempts := 0
		err := testPolicy(3).do(context.Background(), func() error {
			attempts++
			return errors.New("database is locked")
		})
		require.Error(t, err)
		assert.Equal(t, 4, attempts) // 1 initial + 3 retries
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		attempts := 0
		err := retryPolicy{maxRetries: 10, baseDelay: time.Second, maxDelay: time.Second}.do(ctx, func() error {
			attempts++
			return errors.New("database is locked")
		})
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
	})

	t.Run("zero retries means one attempt only", func(t *testing.T) {
		attempts := 0
		err := testPolicy(0).do(context.Background(), func() error {
			attempts++
			return errors.New("database is locked")
		})
		require.Error(t, err)
		assert.Equal(t, 1, attempts)
	})
}

func TestRetryPolicy_DelayIsCapped(t *testing.T) {
	t.Parallel()

	p := retryPolicy{maxRetries: 40, baseDelay: 50 * time.Millisecond, maxDelay: 2 * time.Second}
	for attempt := 0; attempt < 40; attempt++ {
		d := p.delay(attempt)
		assert.Positive(t, d)
		assert.LessOrEqual(t, d, 2*time.Second)
	}
}
