/*
 * MIT License
 *
 * Copyright (c) 2022-2025 Arsene Tochemey Gandote
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/flowchartsman/retry"
	"go.uber.org/multierr"
)

// Operation is a unit of work executed against a single node of the cluster.
type Operation[T any] func(node *Node) (T, error)

const (
	retryInitialDelay = 10 * time.Millisecond
	retryMaxDelay     = 100 * time.Millisecond
)

// InvokeWithFailover runs the given operation on the pinned node and fails
// over to the next consistently selected healthy node when the failure is
// retryable. The retry budget equals the membership size so that a full
// rotation over the cluster is attempted at most once per call.
//
// A non-retryable failure is returned to the caller untouched. When the
// budget runs out the last failure is wrapped with ErrRetryExhausted.
func InvokeWithFailover[T any](ctx context.Context, cluster *Cluster, op Operation[T]) (T, error) {
	var (
		zero    T
		out     T
		lastErr error
		fatal   bool
	)

	retrier := retry.NewRetrier(cluster.membership.Size(), retryInitialDelay, retryMaxDelay)
	err := retrier.RunContext(ctx, func(ctx context.Context) error {
		node, err := cluster.pinnedNode()
		if err != nil {
			fatal = true
			return retry.Stop(err)
		}

		cluster.metrics.attempts.Inc()
		result, err := op(node)
		if err != nil {
			if !cluster.classifier.Retryable(err) {
				fatal = true
				return retry.Stop(err)
			}
			node.setHealthy(false)
			cluster.metrics.failovers.Inc()
			cluster.logger.Warnf("operation failed on node=(%s), failing over: %v", node.ID(), err)
			lastErr = err
			return err
		}

		out = result
		return nil
	})
	if err != nil {
		if fatal || lastErr == nil {
			return zero, err
		}
		cluster.metrics.exhausted.Inc()
		return zero, fmt.Errorf("%w: %w", ErrRetryExhausted, lastErr)
	}
	return out, nil
}

// healthySweep runs op once on every node currently marked healthy, in
// membership order. A node failure never aborts the sweep: it is logged,
// folded into failures, and the remaining nodes are still attempted.
//
// out is the value produced by the last node that succeeded. err is terminal
// (empty healthy subset or cancelled context) and means the sweep never ran.
func healthySweep[T any](ctx context.Context, cluster *Cluster, op Operation[T]) (out T, failures error, err error) {
	if err := ctx.Err(); err != nil {
		return out, nil, err
	}

	healthy := cluster.membership.Healthy()
	if len(healthy) == 0 {
		return out, nil, ErrNoHealthyNode
	}

	for _, node := range healthy {
		cluster.metrics.attempts.Inc()
		result, opErr := op(node)
		if opErr != nil {
			cluster.logger.Warnf("operation failed on node=(%s): %v", node.ID(), opErr)
			failures = multierr.Append(failures, fmt.Errorf("node=(%s): %w", node.ID(), opErr))
			continue
		}
		out = result
	}
	return out, failures, nil
}

// InvokeOnAllHealthy runs the given operation on every healthy node of the
// membership and returns the result of the last node that succeeded.
//
// Individual node failures are logged and swallowed, never surfaced, so a
// partial delivery looks like a success to the caller. Only an empty healthy
// subset or a cancelled context fails the call.
func InvokeOnAllHealthy[T any](ctx context.Context, cluster *Cluster, op Operation[T]) (T, error) {
	out, _, err := healthySweep(ctx, cluster, op)
	return out, err
}

// InvokeOnAllHealthyWithRetry runs the given operation on every healthy node
// and reruns the whole sweep when any node of the previous sweep failed with
// a retryable error. The retried unit is the full sweep, so the operation
// must be idempotent on the nodes that already accepted it.
func InvokeOnAllHealthyWithRetry[T any](ctx context.Context, cluster *Cluster, op Operation[T]) (T, error) {
	var (
		zero    T
		out     T
		lastErr error
		fatal   bool
	)

	retrier := retry.NewRetrier(cluster.membership.Size(), retryInitialDelay, retryMaxDelay)
	err := retrier.RunContext(ctx, func(ctx context.Context) error {
		result, failures, err := healthySweep(ctx, cluster, op)
		if err != nil {
			fatal = true
			return retry.Stop(err)
		}
		if failures != nil {
			if !cluster.classifier.Retryable(failures) {
				fatal = true
				return retry.Stop(failures)
			}
			lastErr = failures
			return failures
		}
		out = result
		return nil
	})
	if err != nil {
		if fatal || lastErr == nil {
			return zero, err
		}
		cluster.metrics.exhausted.Inc()
		return zero, fmt.Errorf("%w: %w", ErrRetryExhausted, lastErr)
	}
	return out, nil
}

// InvokeOnAllBestEffort runs the given operation on every node of the
// membership regardless of health. It returns the result of the last node
// that succeeded, or ErrNoResult carrying the accumulated per-node failures
// when no node produced one.
func InvokeOnAllBestEffort[T any](ctx context.Context, cluster *Cluster, op Operation[T]) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	var (
		out      T
		acquired bool
		failures error
	)

	for _, node := range cluster.membership.All() {
		cluster.metrics.attempts.Inc()
		result, err := op(node)
		if err != nil {
			cluster.logger.Warnf("operation failed on node=(%s): %v", node.ID(), err)
			failures = multierr.Append(failures, fmt.Errorf("node=(%s): %w", node.ID(), err))
			continue
		}
		out = result
		acquired = true
	}

	if !acquired {
		return zero, fmt.Errorf("%w: %w", ErrNoResult, failures)
	}
	return out, nil
}
