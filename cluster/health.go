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
	"time"

	"github.com/reugn/go-quartz/job"
	quartzlogger "github.com/reugn/go-quartz/logger"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/atomic"

	"github.com/tochemey/consulcluster/log"
)

// healthMonitor probes every node of the membership on a fixed interval.
//
// A probe failure marks the node unhealthy and never aborts the sweep; once
// a sweep observes the whole membership healthy the monitor invokes the
// allHealthy callback so the router can restore the primary node.
type healthMonitor struct {
	membership *Membership
	interval   time.Duration
	scheduler  quartz.Scheduler
	started    *atomic.Bool
	allHealthy func()
	logger     log.Logger
	metrics    *metrics
}

// newHealthMonitor creates a health monitor for the given membership
func newHealthMonitor(membership *Membership, interval time.Duration, allHealthy func(), logger log.Logger, metrics *metrics) *healthMonitor {
	scheduler, _ := quartz.NewStdScheduler(quartz.WithLogger(quartzlogger.NewSimpleLogger(nil, quartzlogger.LevelOff)))
	return &healthMonitor{
		membership: membership,
		interval:   interval,
		scheduler:  scheduler,
		started:    atomic.NewBool(false),
		allHealthy: allHealthy,
		logger:     logger,
		metrics:    metrics,
	}
}

// Start starts the periodic sweep
func (x *healthMonitor) Start(ctx context.Context) error {
	if !x.started.CompareAndSwap(false, true) {
		return nil
	}

	x.scheduler.Start(ctx)

	sweepJob := job.NewFunctionJob[bool](
		func(context.Context) (bool, error) {
			x.Sweep()
			return true, nil
		},
	)

	detail := quartz.NewJobDetail(sweepJob, quartz.NewJobKey("nodes-health-sweep"))
	return x.scheduler.ScheduleJob(detail, quartz.NewSimpleTrigger(x.interval))
}

// Stop stops the periodic sweep and waits for any in-flight job to finish
func (x *healthMonitor) Stop(ctx context.Context) {
	if !x.started.CompareAndSwap(true, false) {
		return
	}

	_ = x.scheduler.Clear()
	x.scheduler.Stop()
	x.scheduler.Wait(ctx)
}

// Sweep probes every node of the membership once.
//
// It is invoked by the scheduler on each tick and synchronously by the
// failover loop when the healthy subset turns up empty, so that the next
// caller works from the freshest possible signal.
func (x *healthMonitor) Sweep() {
	for _, node := range x.membership.All() {
		if err := node.probe(); err != nil {
			x.logger.Warnf("health probe failed on node=(%s): %v", node.ID(), err)
		}
	}

	x.metrics.sweeps.Inc()
	x.metrics.healthyNodes.Set(float64(len(x.membership.Healthy())))

	if x.membership.AllHealthy() {
		x.allHealthy()
	}
}
