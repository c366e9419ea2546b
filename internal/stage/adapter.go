// Package stage runs the reasoning stages of a pipeline iteration. Every
// stage follows the same shape: batch the input records, call the agent
// once per batch under a bounded worker pool, retry transport failures
// with backoff, validate the returned JSON, and hand the surviving items
// to the reconciler. A stage only errors when every batch failed; anything
// less is a partial result the controller keeps working with.
package stage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kingrea/courtside/internal/agent"
)

// ErrAllBatchesFailed marks a total stage failure: no batch produced a
// usable response.
var ErrAllBatchesFailed = errors.New("stage: all batches failed")

// Adapter executes batched agent calls for the stages.
type Adapter struct {
	client      agent.Client
	log         *logrus.Entry
	batchSize   int
	maxRetries  int
	workers     int
	backoff     time.Duration
	timeout     time.Duration
	temperature float64
	maxTokens   int

	sleep func(context.Context, time.Duration)
}

// AdapterConfig tunes the adapter.
type AdapterConfig struct {
	BatchSize  int
	MaxRetries int
	Workers    int
	Backoff    time.Duration
	// Timeout bounds each agent call. Retries get a fresh deadline.
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

// NewAdapter wires an adapter. Zero config fields get workable defaults.
func NewAdapter(client agent.Client, log *logrus.Entry, cfg AdapterConfig) *Adapter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &Adapter{
		client:      client,
		log:         log,
		batchSize:   cfg.BatchSize,
		maxRetries:  cfg.MaxRetries,
		workers:     cfg.Workers,
		backoff:     cfg.Backoff,
		timeout:     cfg.Timeout,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		sleep:       sleepCtx,
	}
}

// batch splits items into groups of at most batchSize.
func batch[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

// callBatches runs one agent call per payload under the worker pool.
// The result slice is index-aligned with payloads; a nil entry means that
// batch failed after retries. The error is non-nil only when every batch
// failed, or the context was cancelled.
func (a *Adapter) callBatches(ctx context.Context, stage, system string, payloads []string) ([]json.RawMessage, error) {
	if len(payloads) == 0 {
		return nil, nil
	}

	results := make([]json.RawMessage, len(payloads))
	sem := make(chan struct{}, a.workers)
	var wg sync.WaitGroup
	for i, payload := range payloads {
		wg.Add(1)
		go func(i int, payload string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			raw, err := a.callWithRetry(ctx, stage, system, payload)
			if err != nil {
				a.log.WithError(err).WithFields(logrus.Fields{
					"stage": stage,
					"batch": i,
				}).Warn("batch failed")
				return
			}
			results[i] = raw
		}(i, payload)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	failed := 0
	for _, r := range results {
		if r == nil {
			failed++
		}
	}
	if failed == len(payloads) {
		return nil, fmt.Errorf("%w: stage %s, %d batches", ErrAllBatchesFailed, stage, failed)
	}
	if failed > 0 {
		a.log.WithFields(logrus.Fields{
			"stage":  stage,
			"failed": failed,
			"total":  len(payloads),
		}).Warn("stage degraded to partial result")
	}
	return results, nil
}

// callWithRetry retries transport failures with exponential backoff.
// A response that is not retryable (schema or auth trouble) fails the
// batch immediately.
func (a *Adapter) callWithRetry(ctx context.Context, stage, system, payload string) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt < a.maxRetries; attempt++ {
		if attempt > 0 {
			a.sleep(ctx, a.backoff*time.Duration(1<<(attempt-1)))
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}
		raw, err := a.completeOnce(ctx, system, payload)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !agent.Retryable(err) {
			break
		}
		a.log.WithError(err).WithFields(logrus.Fields{
			"stage":   stage,
			"attempt": attempt + 1,
		}).Debug("retrying after transport failure")
	}
	return nil, lastErr
}

// completeOnce runs one attempt under its own deadline, so a stalled call
// surfaces as retryable DeadlineExceeded instead of hanging the stage.
func (a *Adapter) completeOnce(ctx context.Context, system, payload string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.client.Complete(ctx, agent.Request{
		System:      system,
		User:        payload,
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
		ForceJSON:   true,
	})
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
