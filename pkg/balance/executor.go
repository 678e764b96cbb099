package balance

import (
	"context"
	"fmt"

	"github.com/gembridge/gembridge/pkg/errutils"
	"github.com/gembridge/gembridge/pkg/keypool"
	"github.com/gembridge/gembridge/pkg/metrics"
	"github.com/gembridge/gembridge/pkg/upstream"
	"github.com/sirupsen/logrus"
)

// Operation issues one upstream call authenticated by the given credential.
type Operation func(credential string) (*upstream.Response, error)

// Executor runs operations against the credential pool, rotating to a fresh
// credential on retryable failure.
type Executor struct {
	pool        *keypool.Pool
	maxAttempts int
	mets        *metrics.Metrics
}

func New(pool *keypool.Pool, maxAttempts int, mets *metrics.Metrics) *Executor {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Executor{
		pool:        pool,
		maxAttempts: maxAttempts,
		mets:        mets,
	}
}

// WithRetry invokes op with a pool credential, retrying with a different,
// not-yet-tried credential on retryable failure. Non-retryable failures are
// surfaced immediately without rotation; exhaustion surfaces the last failure.
func (e *Executor) WithRetry(ctx context.Context, modelID string, op Operation) (*upstream.Response, error) {
	attempts := e.maxAttempts
	if n := e.pool.Len(); n < attempts {
		attempts = n
	}

	tried := make(map[string]bool, attempts)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}

		key, ok := e.pool.Next(tried)
		if !ok {
			break
		}
		tried[key] = true

		resp, err := op(key)
		if err == nil {
			e.pool.MarkSuccess(key)
			e.observe(true)
			return resp, nil
		}
		lastErr = err

		if !errutils.IsRetryable(err) {
			e.observe(false)
			return nil, err
		}

		e.pool.MarkFailure(key)
		if e.mets != nil {
			e.mets.KeyRotations.Inc()
		}
		logrus.WithContext(ctx).WithError(err).Warnf(
			"[balancer] attempt %d/%d failed for model %s, rotating credential", attempt, attempts, modelID)
	}

	e.observe(false)
	if lastErr == nil {
		return nil, fmt.Errorf("no upstream credential available")
	}
	return nil, lastErr
}

// WithoutBalancing invokes op once with a fixed credential and no rotation.
// Used for read-only metadata calls where failover buys nothing.
func (e *Executor) WithoutBalancing(ctx context.Context, op Operation) (*upstream.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := op(e.pool.Primary())
	e.observe(err == nil)
	return resp, err
}

func (e *Executor) observe(ok bool) {
	if e.mets == nil {
		return
	}
	outcome := "error"
	if ok {
		outcome = "success"
	}
	e.mets.UpstreamCalls.WithLabelValues(outcome).Inc()
	e.mets.KeysAvailable.Set(float64(e.pool.Available()))
}
