package pagination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/shop-insights/pkg/logging"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel tasks.
	// Shopify REST leaks 2 calls/s per store, so a handful of workers is enough
	// to keep the bucket busy without tripping 429s.
	MaxConcurrency int
	// Timeout per task
	Timeout time.Duration
	// FailFast cancels all remaining tasks on the first error
	FailFast bool
}

// DefaultConfig returns safe default configuration for the Admin API
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        30 * time.Second,
	}
}

// Task fetches the value for a single key
type Task[K comparable, V any] func(ctx context.Context, key K) (V, error)

// TaskResult represents the outcome of a single task
type TaskResult[K comparable, V any] struct {
	Key   K
	Value V
	Error error
}

// BatchFetcher runs independent lookups on a bounded worker pool
type BatchFetcher[K comparable, V any] struct {
	config Config
	logger zerolog.Logger
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher[K comparable, V any](config Config) *BatchFetcher[K, V] {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &BatchFetcher[K, V]{
		config: config,
		logger: logging.NewLogger(logging.ComponentPagination),
	}
}

// FetchAll runs task once per key and collects the values by key.
//
// In FailFast mode the first failure cancels the remaining tasks and is
// returned as err; no partial map is returned. Otherwise failures are
// collected per key in the second map and err is only set when ctx itself
// ends before all tasks are done.
func (bf *BatchFetcher[K, V]) FetchAll(ctx context.Context, keys []K, task Task[K, V]) (map[K]V, map[K]error, error) {
	start := time.Now()

	values := make(map[K]V, len(keys))
	failures := make(map[K]error)
	if len(keys) == 0 {
		return values, failures, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan K)
	results := make(chan TaskResult[K, V])

	// Fill queue until all keys are handed out or the run is cancelled
	go func() {
		defer close(queue)
		for _, key := range keys {
			select {
			case queue <- key:
			case <-runCtx.Done():
				return
			}
		}
	}()

	workers := min(bf.config.MaxConcurrency, len(keys))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go bf.worker(runCtx, queue, results, task, &wg, i)
	}

	// Close results channel when all workers done
	go func() {
		wg.Wait()
		close(results)
	}()

	var firstErr error
	done := 0
	for result := range results {
		if result.Error != nil {
			if bf.config.FailFast {
				if firstErr == nil {
					firstErr = fmt.Errorf("%v: %w", result.Key, result.Error)
					cancel()
				}
				continue
			}

			bf.logger.Warn().
				Err(result.Error).
				Str("key", fmt.Sprint(result.Key)).
				Msg("Task failed")
			failures[result.Key] = result.Error
			continue
		}

		values[result.Key] = result.Value
		done++

		// Progress logging every 50 tasks
		if done%50 == 0 {
			bf.logger.Info().
				Int("fetched", done).
				Int("total", len(keys)).
				Float64("progress_pct", float64(done)/float64(len(keys))*100).
				Msg("Fetch progress")
		}
	}

	if firstErr != nil {
		return nil, nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	bf.logger.Debug().
		Int("tasks", len(keys)).
		Int("failed", len(failures)).
		Int("workers", workers).
		Dur("duration", time.Since(start)).
		Msg("Batch complete")

	return values, failures, nil
}

// worker processes keys from the queue
func (bf *BatchFetcher[K, V]) worker(ctx context.Context, queue <-chan K, results chan<- TaskResult[K, V], task Task[K, V], wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for key := range queue {
		if ctx.Err() != nil {
			bf.logger.Debug().
				Int("worker_id", workerID).
				Int("tasks_processed", processed).
				Msg("Worker stopping (context cancelled)")
			return
		}

		taskCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
		value, err := task(taskCtx, key)
		cancel()

		// The collector drains until every worker is done, so this never blocks forever
		results <- TaskResult[K, V]{Key: key, Value: value, Error: err}
		processed++
	}

	if processed > 0 {
		bf.logger.Debug().
			Int("worker_id", workerID).
			Int("tasks_processed", processed).
			Msg("Worker completed")
	}
}
