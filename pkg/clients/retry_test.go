package clients

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/protspace/pkg/errors"
)

func TestRetryPolicyExecute(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   bool
	}{
		{"first try succeeds", []error{nil}, 1, false},
		{"retryable then success", []error{errors.New(errors.ErrorTypeTimeout, "slow"), nil}, 2, false},
		{"non retryable stops", []error{errors.New(errors.ErrorTypeValidation, "bad")}, 1, true},
		{"exhausts attempts", []error{
			errors.New(errors.ErrorTypeConnection, "a"),
			errors.New(errors.ErrorTypeConnection, "b"),
			errors.New(errors.ErrorTypeConnection, "c"),
		}, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rp := NewRetryPolicy(3, time.Millisecond)
			calls := 0
			err := rp.Execute(context.Background(), func() error {
				e := tt.errs[calls]
				calls++
				return e
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetryPolicyCancelled(t *testing.T) {
	rp := NewRetryPolicy(5, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := rp.Execute(ctx, func() error {
		calls++
		cancel()
		return errors.New(errors.ErrorTypeTimeout, "slow")
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))
	assert.Equal(t, 1, calls)
}

func TestRetryPolicyDelayBounds(t *testing.T) {
	rp := NewRetryPolicy(10, 100*time.Millisecond)
	rp.MaxDelay = time.Second

	d0 := rp.calculateDelay(0)
	assert.GreaterOrEqual(t, d0, 75*time.Millisecond)
	assert.LessOrEqual(t, d0, 125*time.Millisecond)

	d9 := rp.calculateDelay(9)
	assert.LessOrEqual(t, d9, 1250*time.Millisecond)
}

func TestRateLimiterUnlimited(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	assert.True(t, rl.Allow())
	assert.NoError(t, rl.Wait(context.Background()))

	limited := NewRateLimiter(1, 1)
	assert.True(t, limited.Allow())
	assert.False(t, limited.Allow())
}
