package physicalpool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/connpool/pkg/connector/core"
)

func TestRetryPolicy(t *testing.T) {
	errRefused := errors.New("connection refused")

	tests := []struct {
		name      string
		policy    core.RetryPolicy
		failures  int
		wantCalls int
		wantErr   bool
	}{
		{"no retries succeeds", core.RetryPolicy{}, 0, 1, false},
		{"no retries fails", core.RetryPolicy{}, 1, 1, true},
		{"recovers within retries", core.RetryPolicy{Attempts: 2, Interval: time.Millisecond}, 2, 3, false},
		{"retries exhausted", core.RetryPolicy{Attempts: 2, Interval: time.Millisecond}, 5, 3, true},
		{"negative attempts", core.RetryPolicy{Attempts: -1}, 1, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := newRetryPolicy(tt.policy).Execute(context.Background(), func() error {
				calls++
				if calls <= tt.failures {
					return errRefused
				}
				return nil
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errRefused)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetryPolicyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newRetryPolicy(core.RetryPolicy{Attempts: 3, Interval: time.Hour}).Execute(ctx, func() error {
		return errors.New("down")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
