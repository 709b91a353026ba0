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
	"time"

	goset "github.com/deckarep/golang-set/v2"
	"go.uber.org/atomic"

	"github.com/tochemey/consulcluster/internal/ticker"
)

// TTLReporter keeps a set of TTL checks passing by heartbeating them on a
// fixed interval against every node of the cluster, healthy or not.
//
// Heartbeats are periodic and self-correcting so a failed delivery is only
// logged; the next tick retries naturally.
type TTLReporter struct {
	client   *Client
	checkIDs goset.Set[string]
	ticker   *ticker.Ticker
	started  *atomic.Bool
	dead     *atomic.Bool
	stopped  chan struct{}
}

// NewTTLReporter creates a TTL reporter heartbeating through the given
// client on the given interval
func NewTTLReporter(client *Client, interval time.Duration) *TTLReporter {
	return &TTLReporter{
		client:   client,
		checkIDs: goset.NewSet[string](),
		ticker:   ticker.New(interval),
		started:  atomic.NewBool(false),
		dead:     atomic.NewBool(false),
		stopped:  make(chan struct{}),
	}
}

// Track adds the given TTL check to the heartbeat set
func (x *TTLReporter) Track(checkID string) {
	x.checkIDs.Add(checkID)
}

// Untrack removes the given TTL check from the heartbeat set
func (x *TTLReporter) Untrack(checkID string) {
	x.checkIDs.Remove(checkID)
}

// Tracked returns the IDs of the checks currently heartbeated
func (x *TTLReporter) Tracked() []string {
	return x.checkIDs.ToSlice()
}

// Start starts the heartbeat loop. Starting an already running reporter is
// a no-op; a stopped reporter cannot be restarted.
func (x *TTLReporter) Start() error {
	if x.dead.Load() {
		return ErrReporterStopped
	}
	if !x.started.CompareAndSwap(false, true) {
		return nil
	}

	x.ticker.Start()
	go x.run()
	return nil
}

// Stop stops the heartbeat loop. A stopped reporter cannot be restarted.
func (x *TTLReporter) Stop() {
	if !x.started.CompareAndSwap(true, false) {
		return
	}
	x.dead.Store(true)
	x.ticker.Stop()
	close(x.stopped)
}

func (x *TTLReporter) run() {
	for {
		select {
		case <-x.ticker.Ticks:
			x.beat()
		case <-x.stopped:
			return
		}
	}
}

// beat reports every tracked check passing, once per node
func (x *TTLReporter) beat() {
	for _, checkID := range x.checkIDs.ToSlice() {
		if err := x.client.PassTTL(checkID, "periodic heartbeat"); err != nil {
			x.client.cluster.logger.Warnf("heartbeat failed for check=(%s): %v", checkID, err)
		}
	}
}
