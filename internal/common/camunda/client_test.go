package camunda

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payplan-workers/internal/common/errors"
)

func newTestClient(maxRetries int) *Client {
	return &Client{config: &ClientConfig{
		RequestTimeout: time.Second,
		RetryConfig: &RetryConfig{
			MaxRetries: maxRetries,
			BaseDelay:  time.Millisecond,
			MaxDelay:   5 * time.Millisecond,
		},
	}}
}

func TestIsRetryableZeebeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"connection refused", stderrors.New("dial tcp: connection refused"), true},
		{"deadline", stderrors.New("rpc error: code = DeadlineExceeded desc = context deadline exceeded"), true},
		{"unavailable", stderrors.New("rpc error: code = Unavailable"), true},
		{"not found", stderrors.New("rpc error: code = NotFound desc = no job"), false},
		{"invalid argument", stderrors.New("rpc error: code = InvalidArgument"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableZeebeError(tt.err))
		})
	}
}

func TestMapZeebeError(t *testing.T) {
	err := mapZeebeError(stderrors.New("connection reset by peer"), "publish message plan-event", 2)
	std, ok := errors.AsStandard(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeExternalService, std.Code)
	assert.True(t, std.Retryable)
	assert.Equal(t, "zeebe", std.Metadata["service"])
	assert.Contains(t, std.Details, "after 3 attempts")

	err = mapZeebeError(stderrors.New("rpc error: code = PermissionDenied desc = permission denied"), "publish", 0)
	assert.False(t, errors.IsTransient(err))
}

func TestExecuteWithRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		result, err := newTestClient(3).ExecuteWithRetry(ctx, func(context.Context) (interface{}, error) {
			calls++
			if calls < 3 {
				return nil, stderrors.New("unavailable")
			}
			return "ok", nil
		}, "topology")

		require.NoError(t, err)
		assert.Equal(t, "ok", result)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry terminal errors", func(t *testing.T) {
		calls := 0
		_, err := newTestClient(3).ExecuteWithRetry(ctx, func(context.Context) (interface{}, error) {
			calls++
			return nil, stderrors.New("invalid argument: missing correlation key")
		}, "publish")

		require.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.False(t, errors.IsTransient(err))
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		_, err := newTestClient(2).ExecuteWithRetry(ctx, func(context.Context) (interface{}, error) {
			calls++
			return nil, stderrors.New("timeout")
		}, "publish")

		require.Error(t, err)
		assert.Equal(t, 3, calls)
		assert.True(t, errors.IsTransient(err))
	})

	t.Run("stops on cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		client := newTestClient(5)
		client.config.RetryConfig.BaseDelay = time.Hour
		client.config.RetryConfig.MaxDelay = time.Hour

		_, err := client.ExecuteWithRetry(cctx, func(context.Context) (interface{}, error) {
			cancel()
			return nil, stderrors.New("unavailable")
		}, "publish")

		require.Error(t, err)
		assert.True(t, errors.IsTransient(err))
		std, _ := errors.AsStandard(err)
		assert.Contains(t, std.Details, context.Canceled.Error())
	})
}
