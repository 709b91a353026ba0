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
	"errors"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func retryableFailure() error {
	return &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}
}

func TestInvokeWithFailover(t *testing.T) {
	t.Run("With success on the pinned node", func(t *testing.T) {
		agents := startFakeAgents(t, 3)
		cluster := newTestCluster(t, agents, nil)

		out, err := InvokeWithFailover(context.Background(), cluster, func(node *Node) (string, error) {
			return node.ID(), nil
		})
		require.NoError(t, err)
		assert.Equal(t, cluster.Primary().ID(), out)
		assert.Same(t, cluster.Primary(), cluster.Current())
	})
	t.Run("With failover to the next healthy node", func(t *testing.T) {
		agents := startFakeAgents(t, 3)
		cluster := newTestCluster(t, agents, nil)
		primaryID := cluster.Primary().ID()

		attempts := atomic.NewInt64(0)
		out, err := InvokeWithFailover(context.Background(), cluster, func(node *Node) (string, error) {
			attempts.Inc()
			if node.ID() == primaryID {
				return "", retryableFailure()
			}
			return node.ID(), nil
		})

		require.NoError(t, err)
		assert.NotEqual(t, primaryID, out)
		assert.EqualValues(t, 2, attempts.Load())
		assert.False(t, cluster.Primary().Healthy())
		assert.NotSame(t, cluster.Primary(), cluster.Current())
		assert.Equal(t, out, cluster.Current().ID())
	})
	t.Run("With repeated calls converging on the same replacement", func(t *testing.T) {
		agents := startFakeAgents(t, 3)
		cluster := newTestCluster(t, agents, nil)
		primaryID := cluster.Primary().ID()

		failPrimary := func(node *Node) (string, error) {
			if node.ID() == primaryID {
				return "", retryableFailure()
			}
			return node.ID(), nil
		}

		first, err := InvokeWithFailover(context.Background(), cluster, failPrimary)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			again, err := InvokeWithFailover(context.Background(), cluster, failPrimary)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	})
	t.Run("With a non-retryable error propagating immediately", func(t *testing.T) {
		agents := startFakeAgents(t, 3)
		cluster := newTestCluster(t, agents, nil)

		fatal := errors.New("marshaling failed")
		attempts := atomic.NewInt64(0)
		_, err := InvokeWithFailover(context.Background(), cluster, func(*Node) (string, error) {
			attempts.Inc()
			return "", fatal
		})

		require.ErrorIs(t, err, fatal)
		require.NotErrorIs(t, err, ErrRetryExhausted)
		assert.EqualValues(t, 1, attempts.Load())
		// a fatal error must not cost the node its health flag
		assert.True(t, cluster.Primary().Healthy())
	})
	t.Run("With the retry budget exhausted", func(t *testing.T) {
		agents := startFakeAgents(t, 3)
		cluster := newTestCluster(t, agents, nil)

		attempts := atomic.NewInt64(0)
		_, err := InvokeWithFailover(context.Background(), cluster, func(*Node) (string, error) {
			attempts.Inc()
			return "", retryableFailure()
		})

		require.ErrorIs(t, err, ErrRetryExhausted)
		assert.EqualValues(t, cluster.Membership().Size(), attempts.Load())
	})
	t.Run("With no healthy node left", func(t *testing.T) {
		agents := startFakeAgents(t, 2)
		cluster := newTestCluster(t, agents, nil)

		// take the whole cluster down so the forced sweep cannot heal it
		for _, agent := range agents {
			agent.down.Store(true)
		}
		for _, node := range cluster.Membership().All() {
			node.setHealthy(false)
		}

		invoked := atomic.NewBool(false)
		_, err := InvokeWithFailover(context.Background(), cluster, func(*Node) (string, error) {
			invoked.Store(true)
			return "", nil
		})

		require.ErrorIs(t, err, ErrNoHealthyNode)
		assert.False(t, invoked.Load())
	})
}

func TestInvokeOnAllHealthy(t *testing.T) {
	t.Run("With every healthy node invoked in order", func(t *testing.T) {
		agents := startFakeAgents(t, 3)
		cluster := newTestCluster(t, agents, nil)

		var visited []string
		out, err := InvokeOnAllHealthy(context.Background(), cluster, func(node *Node) (string, error) {
			visited = append(visited, node.ID())
			return node.ID(), nil
		})

		require.NoError(t, err)
		all := cluster.Membership().All()
		require.Len(t, visited, len(all))
		for i, node := range all {
			assert.Equal(t, node.ID(), visited[i])
		}
		assert.Equal(t, all[len(all)-1].ID(), out)
	})
	t.Run("With a node failure not aborting the sweep", func(t *testing.T) {
		agents := startFakeAgents(t, 3)
		cluster := newTestCluster(t, agents, nil)
		failing := cluster.Membership().All()[0].ID()

		invoked := atomic.NewInt64(0)
		out, err := InvokeOnAllHealthy(context.Background(), cluster, func(node *Node) (string, error) {
			invoked.Inc()
			if node.ID() == failing {
				return "", retryableFailure()
			}
			return node.ID(), nil
		})

		// a partial delivery is silent, the caller sees the last success
		require.NoError(t, err)
		assert.EqualValues(t, 3, invoked.Load())
		all := cluster.Membership().All()
		assert.Equal(t, all[len(all)-1].ID(), out)
		// broadcast failures never demote a node, only probes and the
		// failover loop own the health flag
		assert.True(t, cluster.Membership().AllHealthy())
	})
	t.Run("With unhealthy nodes skipped", func(t *testing.T) {
		agents := startFakeAgents(t, 3)
		cluster := newTestCluster(t, agents, nil)
		skipped := cluster.Membership().All()[1]
		skipped.setHealthy(false)

		var visited []string
		_, err := InvokeOnAllHealthy(context.Background(), cluster, func(node *Node) (string, error) {
			visited = append(visited, node.ID())
			return node.ID(), nil
		})

		require.NoError(t, err)
		assert.Len(t, visited, 2)
		assert.NotContains(t, visited, skipped.ID())
	})
	t.Run("With no healthy node", func(t *testing.T) {
		agents := startFakeAgents(t, 2)
		cluster := newTestCluster(t, agents, nil)
		for _, node := range cluster.Membership().All() {
			node.setHealthy(false)
		}

		_, err := InvokeOnAllHealthy(context.Background(), cluster, func(node *Node) (string, error) {
			return node.ID(), nil
		})
		require.ErrorIs(t, err, ErrNoHealthyNode)
	})
	t.Run("With a cancelled context", func(t *testing.T) {
		agents := startFakeAgents(t, 2)
		cluster := newTestCluster(t, agents, nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := InvokeOnAllHealthy(ctx, cluster, func(node *Node) (string, error) {
			return node.ID(), nil
		})
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestInvokeOnAllHealthyWithRetry(t *testing.T) {
	t.Run("With a transient failure healed by the next sweep", func(t *testing.T) {
		agents := startFakeAgents(t, 3)
		cluster := newTestCluster(t, agents, nil)
		failing := cluster.Membership().All()[1].ID()

		sweeps := atomic.NewInt64(0)
		invoked := atomic.NewInt64(0)
		out, err := InvokeOnAllHealthyWithRetry(context.Background(), cluster, func(node *Node) (string, error) {
			if node.ID() == cluster.Membership().All()[0].ID() {
				sweeps.Inc()
			}
			invoked.Inc()
			if node.ID() == failing && sweeps.Load() == 1 {
				return "", retryableFailure()
			}
			return node.ID(), nil
		})

		require.NoError(t, err)
		assert.NotEmpty(t, out)
		assert.EqualValues(t, 2, sweeps.Load())
		assert.EqualValues(t, 6, invoked.Load())
	})
	t.Run("With a persistent failure exhausting the budget", func(t *testing.T) {
		agents := startFakeAgents(t, 2)
		cluster := newTestCluster(t, agents, nil)
		failing := cluster.Membership().All()[0].ID()

		_, err := InvokeOnAllHealthyWithRetry(context.Background(), cluster, func(node *Node) (string, error) {
			if node.ID() == failing {
				return "", retryableFailure()
			}
			return node.ID(), nil
		})
		require.ErrorIs(t, err, ErrRetryExhausted)
	})
	t.Run("With a non-retryable failure stopping the retry", func(t *testing.T) {
		agents := startFakeAgents(t, 2)
		cluster := newTestCluster(t, agents, nil)

		fatal := errors.New("marshaling failed")
		sweeps := atomic.NewInt64(0)
		_, err := InvokeOnAllHealthyWithRetry(context.Background(), cluster, func(node *Node) (string, error) {
			if node.ID() == cluster.Membership().All()[0].ID() {
				sweeps.Inc()
			}
			return "", fatal
		})

		require.ErrorIs(t, err, fatal)
		require.NotErrorIs(t, err, ErrRetryExhausted)
		assert.EqualValues(t, 1, sweeps.Load())
	})
}

func TestInvokeOnAllBestEffort(t *testing.T) {
	t.Run("With unhealthy nodes still attempted", func(t *testing.T) {
		agents := startFakeAgents(t, 3)
		cluster := newTestCluster(t, agents, nil)
		cluster.Membership().All()[0].setHealthy(false)

		invoked := atomic.NewInt64(0)
		out, err := InvokeOnAllBestEffort(context.Background(), cluster, func(node *Node) (string, error) {
			invoked.Inc()
			return node.ID(), nil
		})

		require.NoError(t, err)
		assert.EqualValues(t, 3, invoked.Load())
		all := cluster.Membership().All()
		assert.Equal(t, all[len(all)-1].ID(), out)
	})
	t.Run("With partial failures swallowed", func(t *testing.T) {
		agents := startFakeAgents(t, 3)
		cluster := newTestCluster(t, agents, nil)
		failing := cluster.Membership().All()[2].ID()

		out, err := InvokeOnAllBestEffort(context.Background(), cluster, func(node *Node) (string, error) {
			if node.ID() == failing {
				return "", retryableFailure()
			}
			return node.ID(), nil
		})

		require.NoError(t, err)
		assert.Equal(t, cluster.Membership().All()[1].ID(), out)
	})
	t.Run("With every node failing", func(t *testing.T) {
		agents := startFakeAgents(t, 2)
		cluster := newTestCluster(t, agents, nil)

		_, err := InvokeOnAllBestEffort(context.Background(), cluster, func(*Node) (string, error) {
			return "", retryableFailure()
		})
		require.ErrorIs(t, err, ErrNoResult)
	})
}
