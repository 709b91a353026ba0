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

// Package cluster implements a failover-aware client over a fixed set of
// consul agents.
//
// A Cluster pins single-target traffic to one consistently selected node,
// fails over to the next healthy node when a call fails with a retryable
// error, and converges back to the primary node once a background health
// sweep observes the whole membership healthy again.
package cluster

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/atomic"

	"github.com/tochemey/consulcluster/log"
)

// Cluster is a client-side routing layer over a fixed membership of agents.
//
// The zero value is not usable; use New.
type Cluster struct {
	config     *Config
	membership *Membership

	// primary is fixed at construction by consistent selection over the
	// full membership. current is the node single-target traffic is pinned
	// to; it drifts away from primary during partial outages and is
	// restored by the health monitor once the cluster heals.
	primary *Node
	current *atomic.Pointer[Node]

	// selectionLock serializes the read-and-possibly-reselect sequence on
	// current. It is never held across a network call.
	selectionLock sync.Mutex

	monitor    *healthMonitor
	classifier *classifier
	logger     log.Logger
	metrics    *metrics
	started    *atomic.Bool
}

// New creates a Cluster from the given configuration, probes every configured
// node and starts the background health monitor.
//
// Construction fails fast when the configuration is invalid, when any node is
// unreachable, or when the observed agent modes violate the configured node
// mode constraint.
func New(ctx context.Context, config *Config) (*Cluster, error) {
	config.Sanitize()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	nodes := make([]*Node, 0, len(config.Nodes))
	for _, address := range config.Nodes {
		node, err := newNode(address, config)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}

	cluster := &Cluster{
		config:     config,
		membership: newMembership(nodes, config.Hasher),
		current:    atomic.NewPointer[Node](nil),
		classifier: newClassifier(config.RetryableErrors),
		logger:     config.Logger,
		metrics:    newMetrics(config.Registerer),
		started:    atomic.NewBool(false),
	}

	for _, node := range cluster.membership.All() {
		if err := node.probe(); err != nil {
			return nil, fmt.Errorf("node=(%s) is unreachable: %w", node.ID(), err)
		}
	}

	if err := cluster.checkNodeMode(); err != nil {
		return nil, err
	}

	// the primary is fixed over the full membership, not the healthy
	// subset, so that every process with the same key and node list
	// agrees on it
	primary, err := cluster.membership.Select(config.SelectionKey, cluster.membership.All())
	if err != nil {
		return nil, err
	}
	primary.setPrimary(true)
	cluster.primary = primary
	cluster.current.Store(primary)

	cluster.monitor = newHealthMonitor(
		cluster.membership,
		config.HealthCheckInterval,
		cluster.restorePrimary,
		cluster.logger,
		cluster.metrics,
	)

	if err := cluster.monitor.Start(ctx); err != nil {
		return nil, err
	}

	cluster.started.Store(true)
	cluster.logger.Infof("cluster started with %d nodes, primary=(%s)", cluster.membership.Size(), primary.ID())
	return cluster, nil
}

// Stop stops the background health monitor. The underlying agent clients
// hold no resources of their own, so a stopped cluster can still serve
// calls, just without health refreshes.
func (x *Cluster) Stop(ctx context.Context) {
	if !x.started.CompareAndSwap(true, false) {
		return
	}
	x.monitor.Stop(ctx)
	x.logger.Info("cluster stopped")
}

// Membership returns the fixed node membership of the cluster
func (x *Cluster) Membership() *Membership {
	return x.membership
}

// Primary returns the consistent-hash assigned primary node
func (x *Cluster) Primary() *Node {
	return x.primary
}

// Current returns the node single-target traffic is currently pinned to
func (x *Cluster) Current() *Node {
	return x.current.Load()
}

// checkNodeMode enforces the configured operating mode constraint against
// the modes observed by the startup probes
func (x *Cluster) checkNodeMode() error {
	if x.config.Mode == ModeAny {
		return nil
	}

	for _, node := range x.membership.All() {
		if node.Mode() != x.config.Mode.String() {
			return fmt.Errorf("%w: node=(%s) runs in %s mode, %s required",
				ErrNodeModeViolation, node.ID(), node.Mode(), x.config.Mode)
		}
	}
	return nil
}

// pinnedNode returns the node single-target traffic should use for the next
// attempt, reselecting among the healthy subset when the pinned node is
// marked unhealthy.
//
// When no healthy node remains it triggers one immediate synchronous health
// sweep so the next caller works from fresh flags, then fails with
// ErrNoHealthyNode.
func (x *Cluster) pinnedNode() (*Node, error) {
	x.selectionLock.Lock()

	current := x.current.Load()
	if current.Healthy() {
		x.selectionLock.Unlock()
		return current, nil
	}

	healthy := x.membership.Healthy()
	if len(healthy) == 0 {
		// sweep outside the lock, a healing sweep re-acquires it to
		// restore the primary
		x.selectionLock.Unlock()
		x.monitor.Sweep()
		return nil, ErrNoHealthyNode
	}

	replacement, err := x.membership.Select(x.config.SelectionKey, healthy)
	if err != nil {
		x.selectionLock.Unlock()
		return nil, err
	}

	x.current.Store(replacement)
	x.selectionLock.Unlock()
	x.logger.Infof("pinned node moved from node=(%s) to node=(%s)", current.ID(), replacement.ID())
	return replacement, nil
}

// restorePrimary pins traffic back to the primary node. Invoked by the
// health monitor after a sweep that observed the whole membership healthy.
func (x *Cluster) restorePrimary() {
	x.selectionLock.Lock()
	defer x.selectionLock.Unlock()

	if x.current.Load() != x.primary {
		x.current.Store(x.primary)
		x.logger.Infof("whole cluster healthy, pinned node restored to primary=(%s)", x.primary.ID())
	}
}
