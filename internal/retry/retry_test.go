package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		transient bool
	}{
		{"econnrefused errno", syscall.ECONNREFUSED, true},
		{"etimedout errno", syscall.ETIMEDOUT, true},
		{"eacces errno", syscall.EACCES, false},
		{"enoent errno", syscall.ENOENT, false},
		{"401", errors.New("request failed: 401 unauthorized"), false},
		{"403", errors.New("403 forbidden"), false},
		{"429 at start", errors.New("429 too many requests"), true},
		{"502 with status preamble", errors.New("status: 502 bad gateway"), true},
		{"bare timeout", errors.New("operation timeout"), true},
		{"connection reset message", errors.New("connection reset by peer"), true},
		{"network unavailable message", errors.New("network unavailable"), true},
		{"validation error", errors.New("validation_error: missing field"), false},
		{"net timeout error", fakeNetErr{timeout: true}, true},
		{"net non-timeout error", fakeNetErr{timeout: false}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.transient, IsTransient(c.err))
		})
	}
}

type fakeNetErr struct{ timeout bool }

func (fakeNetErr) Error() string     { return "net error" }
func (f fakeNetErr) Timeout() bool   { return f.timeout }
func (fakeNetErr) Temporary() bool   { return false }

var _ net.Error = fakeNetErr{}

func TestDelayBounds(t *testing.T) {
	cfg := Config{BaseDelay: 10 * time.Millisecond, MaxDelay: 1 * time.Second}
	for attempt := 0; attempt < 6; attempt++ {
		base := BaseDelay(attempt, cfg)
		lower := time.Duration(0.75 * float64(base))
		upper := time.Duration(1.25 * float64(base))
		for i := 0; i < 20; i++ {
			d := Delay(attempt, cfg)
			assert.GreaterOrEqual(t, d, lower)
			assert.LessOrEqual(t, d, upper)
		}
	}
}

func TestBaseDelayCapsAtMaxDelay(t *testing.T) {
	cfg := Config{BaseDelay: 100 * time.Millisecond, MaxDelay: 150 * time.Millisecond}
	assert.Equal(t, 150*time.Millisecond, BaseDelay(10, cfg))
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	cfg := Config{MaxRetries: 3, BaseDelay: 5 * time.Millisecond, MaxDelay: 20 * time.Millisecond, TotalBudget: 10 * time.Second}
	budget := NewBudget(cfg.TotalBudget)

	attempts := 0
	err := Do(context.Background(), cfg, budget, func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return syscall.ECONNREFUSED
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestDoPropagatesNonTransientImmediately(t *testing.T) {
	cfg := Config{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, TotalBudget: time.Second}
	budget := NewBudget(cfg.TotalBudget)

	attempts := 0
	err := Do(context.Background(), cfg, budget, func(ctx context.Context) error {
		attempts++
		return errors.New("validation_error: bad input")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoExhaustsRetriesAndSurfacesLastError(t *testing.T) {
	cfg := Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, TotalBudget: 10 * time.Second}
	budget := NewBudget(cfg.TotalBudget)

	attempts := 0
	wantErr := fmt.Errorf("connection refused attempt %d", 99)
	err := Do(context.Background(), cfg, budget, func(ctx context.Context) error {
		attempts++
		return wantErr
	})
	require.Error(t, err)
	assert.Equal(t, cfg.MaxRetries+1, attempts)
	assert.Equal(t, wantErr, err)
}

func TestDoFailsImmediatelyWhenBudgetAlreadyConsumed(t *testing.T) {
	cfg := Config{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, TotalBudget: time.Millisecond}
	budget := NewBudget(cfg.TotalBudget)
	time.Sleep(5 * time.Millisecond)

	attempts := 0
	err := Do(context.Background(), cfg, budget, func(ctx context.Context) error {
		attempts++
		return syscall.ECONNREFUSED
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestFromEnvDefaults(t *testing.T) {
	os.Unsetenv("MCP_MAX_RETRIES")
	os.Unsetenv("MCP_RETRY_DELAY")
	os.Unsetenv("MCP_TIMEOUT")

	cfg := FromEnv()
	assert.Equal(t, defaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, time.Duration(defaultBaseDelayMs)*time.Millisecond, cfg.BaseDelay)
	assert.Equal(t, time.Duration(defaultTimeoutSecs)*time.Second, cfg.TotalBudget)
}

func TestFromEnvMaxDelayFormula(t *testing.T) {
	t.Setenv("MCP_TIMEOUT", "20")
	cfg := FromEnv()
	// maxDelayMs = min(10_000, (20_000 - 5_000)/2) = 7_500
	assert.Equal(t, 7500*time.Millisecond, cfg.MaxDelay)
}
