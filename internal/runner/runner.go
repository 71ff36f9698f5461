// Package runner implements the Concurrency Runner (spec.md §4.4): a
// bounded worker pool that fans out over an ordered batch of items and
// returns order-preserving, per-item-isolated results.
package runner

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 5

// ConcurrencyFromEnv reads MCP_CONCURRENCY, falling back to the default of
// 5 when unset, zero, negative, or non-numeric (spec.md §8 boundary case).
func ConcurrencyFromEnv() int {
	v := strings.TrimSpace(os.Getenv("MCP_CONCURRENCY"))
	if v == "" {
		return defaultConcurrency
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return defaultConcurrency
	}
	return n
}

// Result is one item's outcome: exactly one of Value or Err is meaningful.
type Result[T any] struct {
	Value T
	Err   error
}

// Process is applied to each input item; a panic or returned error becomes
// an isolated failure for that item and never escapes the Runner.
type Process[T any] func(ctx context.Context, index int) (T, error)

// Run fans process out over n items with up to min(concurrency, n) workers,
// each pulling the next un-started index from a shared monotonic counter
// (spec.md §4.4: "no work stealing, no priority"). The returned slice has
// length n and results[i] always corresponds to input i, regardless of
// completion order. An empty batch spawns no workers.
func Run[T any](ctx context.Context, n, concurrency int, process Process[T]) []Result[T] {
	results := make([]Result[T], n)
	if n == 0 {
		return results
	}
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}
	workers := concurrency
	if workers > n {
		workers = n
	}

	var next atomic.Int64
	var g errgroup.Group

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				i := int(next.Add(1)) - 1
				if i >= n {
					return nil
				}
				results[i] = runOne(ctx, i, process)
			}
		})
	}

	// Workers always return nil — a per-item failure is captured in
	// results, never propagated — so Wait only ever blocks until every
	// worker has drained the counter.
	_ = g.Wait()
	return results
}

func runOne[T any](ctx context.Context, index int, process Process[T]) (result Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result = Result[T]{Value: zero, Err: fmt.Errorf("panic processing item %d: %v", index, r)}
		}
	}()
	v, err := process(ctx, index)
	return Result[T]{Value: v, Err: err}
}
