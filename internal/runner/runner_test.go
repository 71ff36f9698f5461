package runner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPreservesOrder(t *testing.T) {
	n := 20
	results := Run(context.Background(), n, 4, func(ctx context.Context, i int) (int, error) {
		// Reverse-order completion pressure: later indices sleep less.
		time.Sleep(time.Duration(n-i) * time.Millisecond / 4)
		return i, nil
	})
	require.Len(t, results, n)
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, i, r.Value)
	}
}

func TestRunIsolatesPerItemFailure(t *testing.T) {
	results := Run(context.Background(), 5, 3, func(ctx context.Context, i int) (string, error) {
		if i == 2 {
			return "", errors.New("server unreachable")
		}
		return fmt.Sprintf("ok-%d", i), nil
	})
	require.Len(t, results, 5)
	for i, r := range results {
		if i == 2 {
			assert.Error(t, r.Err)
			assert.Empty(t, r.Value)
		} else {
			assert.NoError(t, r.Err)
			assert.Equal(t, fmt.Sprintf("ok-%d", i), r.Value)
		}
	}
}

func TestRunIsolatesPanic(t *testing.T) {
	results := Run(context.Background(), 3, 2, func(ctx context.Context, i int) (int, error) {
		if i == 1 {
			panic("boom")
		}
		return i, nil
	})
	require.Len(t, results, 3)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[2].Err)
}

func TestRunEmptyBatchSpawnsNoWorkers(t *testing.T) {
	var started atomic.Int64
	results := Run(context.Background(), 0, 5, func(ctx context.Context, i int) (int, error) {
		started.Add(1)
		return i, nil
	})
	assert.Empty(t, results)
	assert.Equal(t, int64(0), started.Load())
}

func TestRunRespectsConcurrencyCeiling(t *testing.T) {
	var concurrent, maxConcurrent atomic.Int64

	Run(context.Background(), 10, 3, func(ctx context.Context, i int) (int, error) {
		c := concurrent.Add(1)
		defer concurrent.Add(-1)
		for {
			m := maxConcurrent.Load()
			if c <= m || maxConcurrent.CompareAndSwap(m, c) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return i, nil
	})
	assert.LessOrEqual(t, maxConcurrent.Load(), int64(3))
}

func TestConcurrencyFromEnvDefaultsOnInvalidValues(t *testing.T) {
	cases := []string{"", "0", "-1", "not-a-number"}
	for _, v := range cases {
		t.Run(v, func(t *testing.T) {
			t.Setenv("MCP_CONCURRENCY", v)
			assert.Equal(t, defaultConcurrency, ConcurrencyFromEnv())
		})
	}
}

func TestConcurrencyFromEnvHonorsValidValue(t *testing.T) {
	t.Setenv("MCP_CONCURRENCY", "8")
	assert.Equal(t, 8, ConcurrencyFromEnv())
}
